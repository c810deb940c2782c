package session

import (
	"context"
	"fmt"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
)

func (n *Node) send(ctx context.Context, frame proto.Frame) error {
	n.mu.Lock()
	link := n.link
	n.mu.Unlock()
	if link == nil {
		return ErrNotConnected
	}
	frame.From = n.roster.LocalActor()
	return link.Send(ctx, frame)
}

// Broadcast sends a countdown to every member. The room echoes it back, so
// the local receiver runs it through the same path as everyone else.
func (n *Node) Broadcast(ctx context.Context, msg proto.StartCountdown) error {
	frame, err := proto.NewFrame(proto.FrameCountdown, msg)
	if err != nil {
		return err
	}
	frame.To = proto.ToAll
	if err := n.send(ctx, frame); err != nil {
		return fmt.Errorf("broadcast countdown: %w", err)
	}
	return nil
}

// Call sends call to one actor.
func (n *Node) Call(ctx context.Context, actor int32, call proto.Call) error {
	frame, err := proto.NewFrame(proto.FrameCall, call)
	if err != nil {
		return err
	}
	frame.To = actor
	if err := n.send(ctx, frame); err != nil {
		return fmt.Errorf("call %s on %d: %w", call.Kind, actor, err)
	}
	return nil
}

// CallAll sends call to every member, this one included.
func (n *Node) CallAll(ctx context.Context, call proto.Call) error {
	frame, err := proto.NewFrame(proto.FrameCall, call)
	if err != nil {
		return err
	}
	frame.To = proto.ToAll
	if err := n.send(ctx, frame); err != nil {
		return fmt.Errorf("call %s on all: %w", call.Kind, err)
	}
	return nil
}

// SetProperty writes a room property. The local copy is updated at once so
// the writer can read its own value before the room confirms it.
func (n *Node) SetProperty(ctx context.Context, key string, value []byte) error {
	frame, err := proto.NewFrame(proto.FramePropertySet, proto.Property{Key: key, Value: value})
	if err != nil {
		return err
	}
	n.storeProperty(key, value)
	if err := n.send(ctx, frame); err != nil {
		return fmt.Errorf("set property %s: %w", key, err)
	}
	return nil
}

// Property returns the last known value of a room property.
func (n *Node) Property(key string) ([]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	value, ok := n.properties[key]
	return value, ok
}

func (n *Node) storeProperty(key string, value []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if value == nil {
		delete(n.properties, key)
		return
	}
	n.properties[key] = value
}
