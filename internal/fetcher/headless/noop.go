package headless

import (
	"context"
	"errors"
)

// Noop is used when headless rendering is disabled.
type Noop struct{}

// NewNoop creates a renderer that always fails.
func NewNoop() *Noop {
	return &Noop{}
}

// Render always returns an error.
func (n *Noop) Render(context.Context, string) ([]byte, int, error) {
	return nil, 0, errors.New("headless rendering disabled")
}
