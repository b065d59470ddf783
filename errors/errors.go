// Package errors gathers several errors into one.
package errors

import (
	"errors"
	"fmt"
)

// Collection accumulates errors from independent steps so they can be
// reported together. It is not safe for concurrent use.
type Collection struct {
	errors []error
}

// Add appends err. Nil errors are ignored.
func (c *Collection) Add(err error) {
	if err != nil {
		c.errors = append(c.errors, err)
	}
}

// Addf appends a formatted error. The format may use %w.
func (c *Collection) Addf(format string, args ...any) {
	c.errors = append(c.errors, fmt.Errorf(format, args...)) //nolint:err113
}

// Len returns the number of collected errors.
func (c *Collection) Len() int {
	return len(c.errors)
}

// HasError reports whether anything was collected.
func (c *Collection) HasError() bool {
	return len(c.errors) > 0
}

// GetError returns nil, the only error, or all of them joined.
func (c *Collection) GetError() error {
	switch len(c.errors) {
	case 0:
		return nil
	case 1:
		return c.errors[0]
	default:
		return errors.Join(c.errors...)
	}
}
