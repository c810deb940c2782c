package trigger

import "strings"

// Key identifies one of the fixed user-actionable triggers. The numeric value
// travels on the wire as the trigger key code.
type Key int32

const (
	// None marks a broadcast that must not propagate a per-key cooldown.
	None Key = -1

	Cleanse        Key = 'T'
	Boost          Key = 'B'
	Hunger         Key = 'H'
	CatchHazard    Key = 'V'
	Threat         Key = 'M'
	ClearThreatHUD Key = 'U'
)

var all = []Key{Cleanse, Boost, Hunger, CatchHazard, Threat, ClearThreatHUD}

// All returns every known key in a stable order.
func All() []Key {
	keys := make([]Key, len(all))
	copy(keys, all)
	return keys
}

// Valid reports whether k belongs to the static key set.
func (k Key) Valid() bool {
	for _, known := range all {
		if k == known {
			return true
		}
	}
	return false
}

// Utility keys bypass gating and never count towards usage limits.
func (k Key) Utility() bool {
	return k == Threat || k == ClearThreatHUD
}

func (k Key) String() string {
	if !k.Valid() {
		return "none"
	}
	return string(rune(k))
}

// Parse maps a single letter, case-insensitive, onto a key.
func Parse(value string) (Key, bool) {
	value = strings.TrimSpace(strings.ToUpper(value))
	if len(value) != 1 {
		return None, false
	}
	key := Key(value[0])
	if !key.Valid() {
		return None, false
	}
	return key, true
}

// FromCode converts a wire key code, returning None for unknown values.
func FromCode(code int32) Key {
	key := Key(code)
	if !key.Valid() {
		return None
	}
	return key
}
