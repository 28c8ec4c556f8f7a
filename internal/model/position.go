package model

import "fmt"

// Position is the strategy's directional exposure. It doubles as the
// signal type: a signal is the position the strategy wants to hold.
type Position int8

const (
	Flat Position = iota
	Long
	Short
)

func (p Position) String() string {
	switch p {
	case Flat:
		return "flat"
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return fmt.Sprintf("position(%d)", int8(p))
	}
}

// Sign returns +1 for Long, -1 for Short and 0 for Flat.
func (p Position) Sign() float64 {
	switch p {
	case Long:
		return 1
	case Short:
		return -1
	}
	return 0
}

// MarshalText encodes the position by name.
func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText, plus the
// exchange-style side names "buy" and "sell".
func (p *Position) UnmarshalText(b []byte) error {
	pos, err := ParsePosition(string(b))
	if err != nil {
		return err
	}
	*p = pos
	return nil
}

// ParsePosition converts a position or side name into a Position.
func ParsePosition(s string) (Position, error) {
	switch s {
	case "flat", "none", "":
		return Flat, nil
	case "long", "buy", "Buy":
		return Long, nil
	case "short", "sell", "Sell":
		return Short, nil
	}
	return Flat, fmt.Errorf("model: unknown position %q", s)
}
