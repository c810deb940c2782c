// Package roster tracks the peers connected to the current session.
package roster

import (
	"sort"
	"sync"
)

// NoActor is the sentinel for "no peer".
const NoActor int32 = -1

// Peer is a snapshot of one connected participant.
type Peer struct {
	ActorID    int32  `json:"actor" msgpack:"actor"`
	Name       string `json:"name" msgpack:"name"`
	Alive      bool   `json:"alive" msgpack:"alive"`
	Conscious  bool   `json:"conscious" msgpack:"conscious"`
	PassedOut  bool   `json:"passedOut" msgpack:"passedOut"`
	Bot        bool   `json:"bot" msgpack:"bot"`
	Position   Vec3   `json:"position" msgpack:"position"`
	Forward    Vec3   `json:"forward" msgpack:"forward"`
	Spectating int32  `json:"spectating" msgpack:"spectating"`
}

// Active reports whether the peer can be picked for gameplay effects.
func (p Peer) Active() bool {
	return p.Alive && !p.Bot && !p.PassedOut
}

// Roster is the read side consumed by the gateway, effects and the hazard engine.
type Roster interface {
	Local() (Peer, bool)
	Peers() []Peer
	Peer(actor int32) (Peer, bool)
	PeerByName(name string) (Peer, bool)
}

// Table is the in-memory roster kept current by the transport.
type Table struct {
	mu    sync.RWMutex
	peers map[int32]Peer
	local int32
}

func NewTable() *Table {
	return &Table{peers: make(map[int32]Peer), local: NoActor}
}

// SetLocal records which actor this process controls.
func (t *Table) SetLocal(actor int32) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.local = actor
	t.mu.Unlock()
}

func (t *Table) LocalActor() int32 {
	if t == nil {
		return NoActor
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.local
}

// Upsert stores the latest snapshot for a peer.
func (t *Table) Upsert(peer Peer) {
	if t == nil || peer.ActorID == NoActor {
		return
	}
	t.mu.Lock()
	t.peers[peer.ActorID] = peer
	t.mu.Unlock()
}

// Update applies fn to a stored peer and reports whether it existed.
func (t *Table) Update(actor int32, fn func(*Peer)) bool {
	if t == nil || fn == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	peer, ok := t.peers[actor]
	if !ok {
		return false
	}
	fn(&peer)
	t.peers[actor] = peer
	return true
}

func (t *Table) Remove(actor int32) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.peers, actor)
	t.mu.Unlock()
}

// Reset forgets every peer, including the local one.
func (t *Table) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.peers = make(map[int32]Peer)
	t.local = NoActor
	t.mu.Unlock()
}

func (t *Table) Local() (Peer, bool) {
	if t == nil {
		return Peer{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	peer, ok := t.peers[t.local]
	return peer, ok
}

// Peers returns every known peer ordered by actor id.
func (t *Table) Peers() []Peer {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	peers := make([]Peer, 0, len(t.peers))
	for _, peer := range t.peers {
		peers = append(peers, peer)
	}
	t.mu.RUnlock()
	sort.Slice(peers, func(i, j int) bool { return peers[i].ActorID < peers[j].ActorID })
	return peers
}

func (t *Table) Peer(actor int32) (Peer, bool) {
	if t == nil {
		return Peer{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	peer, ok := t.peers[actor]
	return peer, ok
}

func (t *Table) PeerByName(name string) (Peer, bool) {
	if t == nil || name == "" {
		return Peer{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, peer := range t.peers {
		if peer.Name == name {
			return peer, true
		}
	}
	return Peer{}, false
}

// AliveCount counts peers that are alive and not bots.
func AliveCount(r Roster) int {
	if r == nil {
		return 0
	}
	count := 0
	for _, peer := range r.Peers() {
		if peer.Alive && !peer.Bot {
			count++
		}
	}
	return count
}

// Filter returns the peers accepted by keep, preserving order.
func Filter(peers []Peer, keep func(Peer) bool) []Peer {
	out := make([]Peer, 0, len(peers))
	for _, peer := range peers {
		if keep(peer) {
			out = append(out, peer)
		}
	}
	return out
}
