package network

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted is returned by Start on a listener that is running.
var ErrAlreadyStarted = errors.New("listener already started")

// BindError reports that the UDP endpoint could not be opened. No
// background work has been started when it is returned.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind udp %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }
