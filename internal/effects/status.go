package effects

// Status enumerates the affliction bars of a character.
type Status int32

const (
	StatusInjury Status = iota
	StatusHunger
	StatusCold
	StatusPoison
	StatusCrab
	StatusCurse
	StatusDrowsy
	StatusWeight
	StatusHot
	StatusThorns
	StatusSpores
	StatusWeb
)

// AllStatuses lists every status in declaration order.
func AllStatuses() []Status {
	return []Status{
		StatusInjury, StatusHunger, StatusCold, StatusPoison,
		StatusCrab, StatusCurse, StatusDrowsy, StatusWeight,
		StatusHot, StatusThorns, StatusSpores, StatusWeb,
	}
}

// cleansable reports whether a cleanse clears s.
func (s Status) cleansable() bool {
	switch s {
	case StatusWeight, StatusThorns, StatusCurse, StatusHunger, StatusDrowsy:
		return false
	}
	return true
}
