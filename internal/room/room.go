// Package room is the relay every peer connects to. It hands out actor ids,
// elects the coordinator, stores room properties and fans frames out in the
// order it accepts them.
package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging/lifecycle"
)

var (
	ErrFull          = errors.New("room: full")
	ErrClosed        = errors.New("room: closed")
	ErrUnknownMember = errors.New("room: unknown member")
	ErrForbidden     = errors.New("room: frame type is relay-only")
)

type Config struct {
	MaxMembers     int
	OutboxCapacity int
}

func DefaultConfig() Config {
	return Config{MaxMembers: 16, OutboxCapacity: 256}
}

type Deps struct {
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Logger    telemetry.Logger
}

// Member is one connected peer. Frames addressed to it queue in its outbox
// until the transport drains them.
type Member struct {
	Actor int32
	Name  string

	outbox    chan proto.Frame
	done      chan struct{}
	closeOnce sync.Once
}

// Outbox yields frames in relay order. It is closed when the member leaves.
func (m *Member) Outbox() <-chan proto.Frame { return m.outbox }

// Done is closed when the member leaves.
func (m *Member) Done() <-chan struct{} { return m.done }

func (m *Member) close() {
	m.closeOnce.Do(func() {
		close(m.done)
		close(m.outbox)
	})
}

// departure records a member removed while the room lock was held. Its
// announcement is published once the transport calls Leave.
type departure struct {
	member   *Member
	previous int32
	current  int32
}

type Room struct {
	cfg  Config
	deps Deps

	mu          sync.Mutex
	members     map[int32]*Member
	evicted     map[int32]departure
	nextID      int32
	coordinator int32
	properties  map[string][]byte
	states      map[int32]roster.Peer
	closed      bool
}

func New(cfg Config, deps Deps) *Room {
	if cfg.MaxMembers <= 0 {
		cfg.MaxMembers = DefaultConfig().MaxMembers
	}
	if cfg.OutboxCapacity <= 0 {
		cfg.OutboxCapacity = DefaultConfig().OutboxCapacity
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.NopLogger()
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	return &Room{
		cfg:         cfg,
		deps:        deps,
		members:     make(map[int32]*Member),
		evicted:     make(map[int32]departure),
		coordinator: roster.NoActor,
		properties:  make(map[string][]byte),
		states:      make(map[int32]roster.Peer),
	}
}

// Join admits a peer, sends it the room snapshot and announces it to everyone
// else.
func (r *Room) Join(ctx context.Context, name string) (*Member, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if len(r.members) >= r.cfg.MaxMembers {
		r.mu.Unlock()
		return nil, ErrFull
	}
	r.nextID++
	member := &Member{
		Actor:  r.nextID,
		Name:   name,
		outbox: make(chan proto.Frame, r.cfg.OutboxCapacity),
		done:   make(chan struct{}),
	}
	r.members[member.Actor] = member

	previous := r.coordinator
	r.electLocked()
	welcome := proto.Welcome{
		Actor:       member.Actor,
		Coordinator: r.coordinator,
		Members:     r.memberListLocked(),
		Properties:  r.propertiesLocked(),
		States:      r.statesLocked(),
	}
	r.sendLocked(member, r.serverFrame(proto.FrameWelcome, member.Actor, welcome))
	r.fanoutLocked(r.serverFrame(proto.FrameMemberJoined, proto.ToAll, proto.Member{Actor: member.Actor, Name: name}), member.Actor)
	changed := previous != r.coordinator
	if changed {
		r.fanoutLocked(r.serverFrame(proto.FrameCoordinator, proto.ToAll, proto.CoordinatorChange{Previous: previous, Current: r.coordinator}), member.Actor)
	}
	current := r.coordinator
	count := len(r.members)
	r.mu.Unlock()

	r.storeMembers(count)
	lifecycle.PeerJoined(ctx, r.deps.Publisher, lifecycle.PeerPayload{Actor: member.Actor, Name: name})
	if changed {
		lifecycle.CoordinatorChanged(ctx, r.deps.Publisher, lifecycle.CoordinatorPayload{Previous: previous, Current: current})
	}
	r.deps.Logger.Printf("[room] %s joined as %d (coordinator %d)", name, member.Actor, current)
	return member, nil
}

// Leave removes a member and re-elects the coordinator if needed. Leaving
// after an eviction only publishes the departure.
func (r *Room) Leave(ctx context.Context, actor int32) {
	r.mu.Lock()
	member, ok := r.members[actor]
	if !ok {
		gone, evicted := r.evicted[actor]
		delete(r.evicted, actor)
		count := len(r.members)
		r.mu.Unlock()
		if evicted {
			r.announce(ctx, gone, count)
		}
		return
	}
	gone := r.removeLocked(member)
	count := len(r.members)
	r.mu.Unlock()

	r.announce(ctx, gone, count)
}

// removeLocked drops member, re-elects and tells everyone else.
func (r *Room) removeLocked(member *Member) departure {
	delete(r.members, member.Actor)
	delete(r.states, member.Actor)
	member.close()

	previous := r.coordinator
	r.electLocked()
	r.fanoutLocked(r.serverFrame(proto.FrameMemberLeft, proto.ToAll, proto.Member{Actor: member.Actor, Name: member.Name}), roster.NoActor)
	if previous != r.coordinator {
		r.fanoutLocked(r.serverFrame(proto.FrameCoordinator, proto.ToAll, proto.CoordinatorChange{Previous: previous, Current: r.coordinator}), roster.NoActor)
	}
	return departure{member: member, previous: previous, current: r.coordinator}
}

func (r *Room) announce(ctx context.Context, gone departure, count int) {
	r.storeMembers(count)
	lifecycle.PeerLeft(ctx, r.deps.Publisher, lifecycle.PeerPayload{Actor: gone.member.Actor, Name: gone.member.Name})
	if gone.previous != gone.current {
		lifecycle.CoordinatorChanged(ctx, r.deps.Publisher, lifecycle.CoordinatorPayload{Previous: gone.previous, Current: gone.current})
	}
	r.deps.Logger.Printf("[room] %s (%d) left (coordinator %d)", gone.member.Name, gone.member.Actor, gone.current)
}

// Route relays a frame sent by from. From is always overwritten with the
// sender's actor id.
func (r *Room) Route(from int32, frame proto.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[from]; !ok {
		return ErrUnknownMember
	}
	frame.Version = proto.Version
	frame.From = from

	switch frame.Type {
	case proto.FrameCountdown, proto.FrameCall:
		if frame.To == proto.ToAll {
			r.fanoutLocked(frame, roster.NoActor)
			return nil
		}
		target, ok := r.members[frame.To]
		if !ok {
			return fmt.Errorf("route %s to %d: %w", frame.Type, frame.To, ErrUnknownMember)
		}
		r.sendLocked(target, frame)
		return nil

	case proto.FramePropertySet:
		var prop proto.Property
		if err := frame.Decode(&prop); err != nil {
			r.reject()
			return fmt.Errorf("route property: %w", err)
		}
		if prop.Value == nil {
			delete(r.properties, prop.Key)
		} else {
			r.properties[prop.Key] = append([]byte(nil), prop.Value...)
		}
		out, err := proto.NewFrame(proto.FrameProperty, prop)
		if err != nil {
			return err
		}
		out.From = from
		r.fanoutLocked(out, roster.NoActor)
		return nil

	case proto.FramePeerState:
		var state roster.Peer
		if err := frame.Decode(&state); err != nil {
			r.reject()
			return fmt.Errorf("route peer state: %w", err)
		}
		state.ActorID = from
		if member := r.members[from]; state.Name == "" {
			state.Name = member.Name
		}
		r.states[from] = state
		out, err := proto.NewFrame(proto.FramePeerState, state)
		if err != nil {
			return err
		}
		out.From = from
		r.fanoutLocked(out, from)
		return nil

	case proto.FrameWorldItem, proto.FrameInventory:
		coordinator, ok := r.members[r.coordinator]
		if !ok {
			return fmt.Errorf("route %s: %w", frame.Type, ErrUnknownMember)
		}
		r.sendLocked(coordinator, frame)
		return nil

	default:
		r.reject()
		return fmt.Errorf("route %s: %w", frame.Type, ErrForbidden)
	}
}

// Coordinator returns the elected member, or NoActor in an empty room.
func (r *Room) Coordinator() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coordinator
}

// Property returns a stored room property.
func (r *Room) Property(key string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.properties[key]
	return value, ok
}

// Info is the room summary served over HTTP.
type Info struct {
	Coordinator int32          `json:"coordinator"`
	Members     []proto.Member `json:"members"`
	Properties  []string       `json:"properties"`
	States      []roster.Peer  `json:"states"`
}

func (r *Room) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.properties))
	for key := range r.properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return Info{
		Coordinator: r.coordinator,
		Members:     r.memberListLocked(),
		Properties:  keys,
		States:      r.statesLocked(),
	}
}

// Close disconnects every member and refuses new joins.
func (r *Room) Close() {
	r.mu.Lock()
	r.closed = true
	for actor, member := range r.members {
		member.close()
		delete(r.members, actor)
	}
	clear(r.evicted)
	r.coordinator = roster.NoActor
	r.mu.Unlock()
	r.storeMembers(0)
}

func (r *Room) electLocked() {
	r.coordinator = roster.NoActor
	for actor := range r.members {
		if r.coordinator == roster.NoActor || actor < r.coordinator {
			r.coordinator = actor
		}
	}
}

func (r *Room) serverFrame(t proto.FrameType, to int32, body any) proto.Frame {
	frame, err := proto.NewFrame(t, body)
	if err != nil {
		r.deps.Logger.Printf("[room] encode %s: %v", t, err)
	}
	frame.To = to
	return frame
}

// fanoutLocked queues frame for every member except skip.
func (r *Room) fanoutLocked(frame proto.Frame, skip int32) {
	actors := make([]int32, 0, len(r.members))
	for actor := range r.members {
		if actor != skip {
			actors = append(actors, actor)
		}
	}
	sort.Slice(actors, func(i, j int) bool { return actors[i] < actors[j] })
	for _, actor := range actors {
		if member, ok := r.members[actor]; ok {
			r.sendLocked(member, frame)
		}
	}
}

// sendLocked never blocks. A member that stops draining is disconnected, so
// every member either sees the full relay order or nothing more of it.
func (r *Room) sendLocked(member *Member, frame proto.Frame) {
	if r.members[member.Actor] != member {
		return
	}
	select {
	case member.outbox <- frame:
		r.add(telemetry.MetricFramesRelayed)
	default:
		r.add(telemetry.MetricMembersEvicted)
		r.deps.Logger.Printf("[room] outbox full for %d at %s, disconnecting", member.Actor, frame.Type)
		r.evicted[member.Actor] = r.removeLocked(member)
	}
}

func (r *Room) memberListLocked() []proto.Member {
	list := make([]proto.Member, 0, len(r.members))
	for _, member := range r.members {
		list = append(list, proto.Member{Actor: member.Actor, Name: member.Name})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Actor < list[j].Actor })
	return list
}

func (r *Room) propertiesLocked() map[string][]byte {
	out := make(map[string][]byte, len(r.properties))
	for key, value := range r.properties {
		out[key] = append([]byte(nil), value...)
	}
	return out
}

func (r *Room) statesLocked() []roster.Peer {
	out := make([]roster.Peer, 0, len(r.states))
	for _, state := range r.states {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out
}

func (r *Room) reject() {
	r.add(telemetry.MetricFramesRejected)
}

func (r *Room) add(key string) {
	if r.deps.Metrics != nil {
		r.deps.Metrics.Add(key, 1)
	}
}

func (r *Room) storeMembers(count int) {
	if r.deps.Metrics != nil {
		r.deps.Metrics.Store(telemetry.MetricRoomMembers, uint64(count))
	}
}
