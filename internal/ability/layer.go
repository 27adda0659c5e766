package ability

import (
	"errors"

	"github.com/qiboda/atom-sub003/internal/invariant"
	"github.com/qiboda/atom-sub003/internal/telemetry"
)

// ErrNonPositiveDelta is returned when a layer change asks for zero or a
// negative amount.
var ErrNonPositiveDelta = errors.New("ability: layer delta must be positive")

// BuffLayer is a buff's stack count, clamped to [0, max].
type BuffLayer struct {
	layer int
	max   int
}

// NewBuffLayer returns a layer at 1 with the given maximum. A maximum below
// one is raised to one.
func NewBuffLayer(maxLayer int) BuffLayer {
	if maxLayer < 1 {
		maxLayer = 1
	}
	return BuffLayer{layer: 1, max: maxLayer}
}

// Layer returns the current stack count.
func (l BuffLayer) Layer() int { return l.layer }

// Max returns the stack limit.
func (l BuffLayer) Max() int { return l.max }

// Add raises the layer by n, stopping at the maximum.
func (l *BuffLayer) Add(n int) (int, error) {
	return l.AddWith(nil, n)
}

// AddWith is Add reporting contract violations through logger.
func (l *BuffLayer) AddWith(logger telemetry.Logger, n int) (int, error) {
	if n <= 0 {
		invariant.Violation(logger, "add_layer(%d): delta must be positive", n)
		return l.layer, ErrNonPositiveDelta
	}
	l.layer = min(l.layer+n, l.max)
	return l.layer, nil
}

// Remove lowers the layer by n, stopping at zero.
func (l *BuffLayer) Remove(n int) (int, error) {
	return l.RemoveWith(nil, n)
}

// RemoveWith is Remove reporting contract violations through logger.
func (l *BuffLayer) RemoveWith(logger telemetry.Logger, n int) (int, error) {
	if n <= 0 {
		invariant.Violation(logger, "remove_layer(%d): delta must be positive", n)
		return l.layer, ErrNonPositiveDelta
	}
	l.layer = max(l.layer-n, 0)
	return l.layer, nil
}
