package lnm

import (
	"errors"
	"fmt"
)

// Leverage is a multiplier in [1, 100].
type Leverage struct {
	v float64
}

const (
	leverageMin float64 = 1
	leverageMax float64 = 100
)

var LeverageMin = Leverage{v: leverageMin}
var LeverageMax = Leverage{v: leverageMax}

var ErrLeverageOutOfRange = errors.New("leverage out of range [1, 100]")

// NewLeverage validates a raw leverage multiplier.
func NewLeverage(v float64) (Leverage, error) {
	if v < leverageMin || v > leverageMax {
		return Leverage{}, fmt.Errorf("%w: %v", ErrLeverageOutOfRange, v)
	}
	return Leverage{v: v}, nil
}

func (l Leverage) Float64() float64 { return l.v }
func (l Leverage) String() string   { return fmt.Sprintf("%gx", l.v) }

// BoundedPercentage is a validated percentage in [0, 100].
type BoundedPercentage struct {
	v float64
}

var ErrPercentageOutOfRange = errors.New("percentage out of range [0, 100]")

// NewBoundedPercentage validates a raw percentage.
func NewBoundedPercentage(v float64) (BoundedPercentage, error) {
	if v < 0 || v > 100 {
		return BoundedPercentage{}, fmt.Errorf("%w: %v", ErrPercentageOutOfRange, v)
	}
	return BoundedPercentage{v: v}, nil
}

func (p BoundedPercentage) Float64() float64 { return p.v }
