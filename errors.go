package graph

import (
	"errors"
	"fmt"
	"strings"

	"pipelined.dev/graph/topology"
)

var (
	// ErrCycle is returned if an edit would close a dependency cycle.
	ErrCycle = topology.ErrCycle
	// ErrDanglingNode is returned if an edit refers to an unknown node.
	ErrDanglingNode = errors.New("graph: unknown node")
	// ErrDanglingPort is returned if an edit refers to a port the node
	// doesn't have.
	ErrDanglingPort = errors.New("graph: unknown port")
	// ErrNotConnected is returned if an edit removes a connection that
	// doesn't exist.
	ErrNotConnected = errors.New("graph: not connected")
	// ErrInvalidNode is returned if an added node has no process
	// function or negative port counts.
	ErrInvalidNode = errors.New("graph: invalid node")
	// ErrClosed is returned if host method is called after Close.
	ErrClosed = errors.New("graph: host closed")
	// ErrInvalidConfig is returned if a host option carries an invalid
	// value.
	ErrInvalidConfig = errors.New("graph: invalid configuration")
)

// EditError is returned when a graph edit is rejected. The running
// snapshot is always left untouched.
type EditError struct {
	Op  string
	Err error
}

func (e *EditError) Error() string {
	return fmt.Sprintf("graph: %s: %v", e.Op, e.Err)
}

// Unwrap returns the rejection cause.
func (e *EditError) Unwrap() error {
	return e.Err
}

// flushErrors wraps errors that might occure when multiple node flush
// hooks are failing.
type flushErrors []error

func (e flushErrors) Error() string {
	s := []string{}
	for _, fe := range e {
		s = append(s, fe.Error())
	}
	return strings.Join(s, ",")
}

// ret returns untyped nil if error list is empty.
func (e flushErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
