package counter

import (
	"fmt"
)

// Counter is a 64 bit counter
type Counter struct {
	count uint64
}

// New creates a new 64 bit counter
func New() *Counter {
	return new(Counter)
}

// Reset sets the counter back to zero
func (c *Counter) Reset() {
	c.count = 0
}

// Increment raises the counter by one
func (c *Counter) Increment() {
	c.count++
}

// Decrement lowers the counter by one. Aggregate bookkeeping needs this
// to balance the increment issued when a route becomes valid against
// the decrement issued when it stops being valid.
func (c *Counter) Decrement() {
	c.count--
}

// Value returns the current count
func (c *Counter) Value() uint64 {
	return uint64(c.count)
}

// String implements fmt.Stringer
func (c *Counter) String() string {
	return fmt.Sprintf("%d", c.count)
}
