package errors

import (
	"errors"
	"sync"
)

// Collector accumulates non-fatal errors raised while a stage keeps going,
// such as entries the walker had to skip.
type Collector struct {
	errs  []error
	mutex sync.RWMutex
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{errs: make([]error, 0)}
}

// Add records err. Nil errors are ignored.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.errs = append(c.errs, err)
}

// Errors returns a copy of the recorded errors.
func (c *Collector) Errors() []error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]error, len(c.errs))
	copy(result, c.errs)
	return result
}

// Len returns the number of recorded errors.
func (c *Collector) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.errs)
}

// HasErrors returns true if anything was recorded.
func (c *Collector) HasErrors() bool {
	return c.Len() > 0
}

// Err joins everything recorded so far, or returns nil.
func (c *Collector) Err() error {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if len(c.errs) == 0 {
		return nil
	}
	return errors.Join(c.errs...)
}

// Clear drops all recorded errors.
func (c *Collector) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.errs = c.errs[:0]
}
