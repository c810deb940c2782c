package hazard

import (
	"testing"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
)

func TestCommandBufferWrapsAndOverflows(t *testing.T) {
	metrics := telemetry.NewCounters()
	buffer := NewCommandBuffer(2, metrics)

	if !buffer.Push(Command{Type: CommandSpawn, Actor: 1}) {
		t.Fatalf("expected first push to succeed")
	}
	if !buffer.Push(Command{Type: CommandSpawn, Actor: 2}) {
		t.Fatalf("expected second push to succeed")
	}
	if buffer.Push(Command{Type: CommandSpawn, Actor: 3}) {
		t.Fatalf("expected push to fail when full")
	}
	if got := metrics.Get(telemetry.MetricCommandOverflow); got != 1 {
		t.Fatalf("expected overflow metric 1, got %d", got)
	}
	if got := metrics.Get(telemetry.MetricCommandOccupancy); got != 2 {
		t.Fatalf("expected occupancy 2, got %d", got)
	}

	drained := buffer.Drain()
	if len(drained) != 2 || drained[0].Actor != 1 || drained[1].Actor != 2 {
		t.Fatalf("expected FIFO drain of actors 1,2, got %+v", drained)
	}

	buffer.Push(Command{Type: CommandPeerLeft, Actor: 4})
	buffer.Push(Command{Type: CommandPeerLeft, Actor: 5})
	drained = buffer.Drain()
	if len(drained) != 2 || drained[0].Actor != 4 || drained[1].Actor != 5 {
		t.Fatalf("expected wraparound drain of actors 4,5, got %+v", drained)
	}
	if buffer.Len() != 0 {
		t.Fatalf("expected empty buffer, got %d", buffer.Len())
	}
	if got := metrics.Get(telemetry.MetricCommandOccupancy); got != 0 {
		t.Fatalf("expected occupancy 0 after drain, got %d", got)
	}
}

func TestNilCommandBuffer(t *testing.T) {
	var buffer *CommandBuffer
	if buffer.Push(Command{}) {
		t.Fatalf("expected nil buffer push to fail")
	}
	if buffer.Drain() != nil || buffer.Len() != 0 || buffer.Capacity() != 0 {
		t.Fatalf("expected nil buffer to be inert")
	}
}
