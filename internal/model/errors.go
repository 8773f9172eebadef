package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNodeSpec marks an invalid or missing node request. Raised at
	// construction time only, callers are not expected to retry.
	ErrNodeSpec = errors.New("invalid node spec")

	// ErrInsufficientNodes is returned by a cluster which cannot satisfy
	// an allocation request.
	ErrInsufficientNodes = errors.New("insufficient nodes")

	// ErrAlreadyAllocated marks a second allocation attempt on a service
	// which still holds its nodes. This is a caller bug, not a transient
	// condition.
	ErrAlreadyAllocated = errors.New("nodes already allocated")

	// ErrDirtyNode marks an allocated node whose logger slot was still
	// bound, meaning a previous owner never released it.
	ErrDirtyNode = errors.New("node not released by previous service")

	// ErrHookNotImplemented is returned by the default lifecycle hooks a
	// concrete service type did not override.
	ErrHookNotImplemented = errors.New("hook not implemented")
)

// TimeoutError is returned by Service.Wait when the shared deadline ran
// out before every node finished. Nodes holds the stragglers in the
// order they were checked.
type TimeoutError struct {
	Timeout time.Duration
	Nodes   []string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for service nodes to finish, still alive: %s",
		e.Timeout, strings.Join(e.Nodes, ", "))
}
