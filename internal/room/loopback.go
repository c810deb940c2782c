package room

import (
	"context"
	"fmt"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
)

// Endpoint attaches an in-process peer to the room. Frames pass through the
// wire encoding in both directions so in-process peers see exactly what a
// remote one would.
type Endpoint struct {
	room   *Room
	member *Member
}

// Connect joins the room and returns an endpoint bound to the new member.
func (r *Room) Connect(ctx context.Context, name string) (*Endpoint, error) {
	member, err := r.Join(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Endpoint{room: r, member: member}, nil
}

func (e *Endpoint) Actor() int32 { return e.member.Actor }

func (e *Endpoint) Send(_ context.Context, frame proto.Frame) error {
	data, err := proto.Encode(frame)
	if err != nil {
		return fmt.Errorf("loopback send: %w", err)
	}
	decoded, err := proto.Decode(data)
	if err != nil {
		return fmt.Errorf("loopback send: %w", err)
	}
	return e.room.Route(e.member.Actor, decoded)
}

func (e *Endpoint) Receive(ctx context.Context) (proto.Frame, error) {
	select {
	case <-ctx.Done():
		return proto.Frame{}, ctx.Err()
	case frame, ok := <-e.member.Outbox():
		if !ok {
			return proto.Frame{}, ErrClosed
		}
		data, err := proto.Encode(frame)
		if err != nil {
			return proto.Frame{}, fmt.Errorf("loopback receive: %w", err)
		}
		return proto.Decode(data)
	}
}

func (e *Endpoint) Close() error {
	e.room.Leave(context.Background(), e.member.Actor)
	return nil
}
