package hazard

import (
	"sync"

	"github.com/google/uuid"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/world"
)

// CommandType enumerates the notifications the engine accepts from outside
// its own goroutine.
type CommandType uint8

const (
	CommandSpawn CommandType = iota + 1
	CommandWorldItem
	CommandInventory
	CommandPeerLeft
)

// Command is a staged notification applied at the start of the next step.
type Command struct {
	Type       CommandType
	Hazard     uuid.UUID
	Actor      int32
	Fuse       float64
	Present    bool
	Position   roster.Vec3
	PickedUpBy int32
	Slots      []world.Slot
	Held       int
}

// CommandBuffer stores staged commands in a fixed-size ring. It is safe for
// concurrent producers and a single consumer.
type CommandBuffer struct {
	mu      sync.Mutex
	data    []Command
	head    int
	tail    int
	count   int
	metrics telemetry.Metrics
}

// NewCommandBuffer constructs a ring buffer with the provided capacity.
func NewCommandBuffer(capacity int, metrics telemetry.Metrics) *CommandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &CommandBuffer{
		data:    make([]Command, capacity),
		metrics: metrics,
	}
}

func (b *CommandBuffer) Capacity() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Push stages a command, returning false if the buffer is full.
func (b *CommandBuffer) Push(cmd Command) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == len(b.data) {
		if b.metrics != nil {
			b.metrics.Add(telemetry.MetricCommandOverflow, 1)
		}
		return false
	}
	b.data[b.tail] = cmd
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	b.storeOccupancyLocked()
	return true
}

// Drain returns all staged commands in FIFO order and clears the buffer.
func (b *CommandBuffer) Drain() []Command {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	commands := make([]Command, b.count)
	for i := 0; i < b.count; i++ {
		commands[i] = b.data[(b.head+i)%len(b.data)]
		b.data[(b.head+i)%len(b.data)] = Command{}
	}
	b.head = 0
	b.tail = 0
	b.count = 0
	b.storeOccupancyLocked()
	return commands
}

func (b *CommandBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *CommandBuffer) storeOccupancyLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(telemetry.MetricCommandOccupancy, uint64(b.count))
}
