package preprocess

import (
	"fmt"
	"strings"
)

// Mode selects how hard the slimmer compresses.
type Mode int

const (
	ModeLight Mode = iota
	ModeAggressive
	ModeUltra
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeAggressive:
		return "aggressive"
	case ModeUltra:
		return "ultra"
	default:
		return "light"
	}
}

// ParseMode converts a mode name. An empty string selects ModeLight.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "light":
		return ModeLight, nil
	case "aggressive":
		return ModeAggressive, nil
	case "ultra":
		return ModeUltra, nil
	}
	return ModeLight, fmt.Errorf("unknown slimming mode %q (want light, aggressive or ultra)", s)
}

// Stronger returns the next harsher mode. Ultra is already the strongest.
func (m Mode) Stronger() Mode {
	if m >= ModeUltra {
		return ModeUltra
	}
	return m + 1
}

// FrameCap is how many continuation frames are kept after an entry.
func (m Mode) FrameCap() int {
	switch m {
	case ModeAggressive:
		return 5
	case ModeUltra:
		return 2
	default:
		return 10
	}
}

// MessageLimit is the maximum message length in characters.
func (m Mode) MessageLimit() int {
	switch m {
	case ModeAggressive:
		return 250
	case ModeUltra:
		return 100
	default:
		return 500
	}
}
