package common

import (
	"fmt"

	"github.com/pkg/errors"
)

var ErrUnsupportedSide = errors.New("unsupported side")

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Validate returns ErrUnsupportedSide for anything that is not Buy or Sell.
func (s Side) Validate() error {
	if !s.Valid() {
		return errors.Wrapf(ErrUnsupportedSide, "side %d", int(s))
	}
	return nil
}

// Opposite returns the side a resting order must have to trade against s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}
