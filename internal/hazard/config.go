package hazard

// Config tunes the fuse simulation. Zero values are replaced with defaults.
type Config struct {
	TickRate        int
	CatchupMaxTicks int
	CommandCapacity int

	// Epsilon is the fuse value treated as burnt out.
	Epsilon float64
	// DebounceTicks is how long a fresh holder is protected from another handoff.
	DebounceTicks int
	// SyncEvery is the number of steps between partial inventory syncs.
	SyncEvery uint64

	WaitSeconds     float64
	CloseRadius     float64
	TouchRadius     float64
	ReturnMargin    float64
	TransferEquip   float64
	ReturnEquip     float64
	ExplosionOffset float64
}

func DefaultConfig() Config {
	return Config{
		TickRate:        60,
		CatchupMaxTicks: 4,
		CommandCapacity: 256,
		Epsilon:         0.1,
		DebounceTicks:   60,
		SyncEvery:       30,
		WaitSeconds:     5,
		CloseRadius:     10,
		TouchRadius:     1.5,
		ReturnMargin:    0.25,
		TransferEquip:   1,
		ReturnEquip:     0.2,
		ExplosionOffset: 0.6,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickRate <= 0 {
		c.TickRate = d.TickRate
	}
	if c.CatchupMaxTicks <= 0 {
		c.CatchupMaxTicks = d.CatchupMaxTicks
	}
	if c.CommandCapacity <= 0 {
		c.CommandCapacity = d.CommandCapacity
	}
	if c.Epsilon <= 0 {
		c.Epsilon = d.Epsilon
	}
	if c.DebounceTicks <= 0 {
		c.DebounceTicks = d.DebounceTicks
	}
	if c.SyncEvery == 0 {
		c.SyncEvery = d.SyncEvery
	}
	if c.WaitSeconds <= 0 {
		c.WaitSeconds = d.WaitSeconds
	}
	if c.CloseRadius <= 0 {
		c.CloseRadius = d.CloseRadius
	}
	if c.TouchRadius <= 0 {
		c.TouchRadius = d.TouchRadius
	}
	if c.ReturnMargin <= 0 {
		c.ReturnMargin = d.ReturnMargin
	}
	if c.TransferEquip <= 0 {
		c.TransferEquip = d.TransferEquip
	}
	if c.ReturnEquip <= 0 {
		c.ReturnEquip = d.ReturnEquip
	}
	if c.ExplosionOffset <= 0 {
		c.ExplosionOffset = d.ExplosionOffset
	}
	return c
}
