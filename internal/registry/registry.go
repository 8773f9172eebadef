// Package registry tracks every service instance created within one
// harness run, in creation order. Identity assignment happens here:
// each instance receives its order among same-typed peers and a
// run-wide sequence number exactly once, at registration.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Member is the view the registry has of a registered service when the
// run tears down leftovers.
type Member interface {
	Stop(ctx context.Context) error
	Clean(ctx context.Context) error
	Free(ctx context.Context) error
}

// Identity names one service instance within a run.
type Identity struct {
	TypeTag string
	Order   int
	Seq     int
}

// String renders the service id, unique within a run.
func (id Identity) String() string {
	return fmt.Sprintf("%s-%d-%d", id.TypeTag, id.Order, id.Seq)
}

type entry struct {
	id     Identity
	member Member
}

// Registry is an append-only sequence of service instances. It is not
// synchronized: services are constructed and registered from a single
// goroutine.
type Registry struct {
	runID   uuid.UUID
	entries []entry
}

func New() *Registry {
	return &Registry{runID: uuid.New()}
}

// RunID identifies this harness run, e.g. in collected log paths and
// the history store.
func (r *Registry) RunID() uuid.UUID { return r.runID }

// Register appends m and assigns its identity in a single step. Order
// counts the already registered members sharing the type tag, Seq runs
// over the whole registry.
func (r *Registry) Register(typeTag string, m Member) Identity {
	order := 0
	for _, e := range r.entries {
		if e.id.TypeTag == typeTag {
			order++
		}
	}
	id := Identity{TypeTag: typeTag, Order: order, Seq: len(r.entries)}
	r.entries = append(r.entries, entry{id: id, member: m})
	return id
}

func (r *Registry) Len() int { return len(r.entries) }

// String lists registered service ids in registration order.
// Allocation failures embed it so an operator can see who holds the
// nodes.
func (r *Registry) String() string {
	ids := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		ids = append(ids, e.id.String())
	}
	return "[" + strings.Join(ids, " ") + "]"
}

// StopAll stops every registered service, newest first, and keeps
// going past failures.
func (r *Registry) StopAll(ctx context.Context) error {
	return r.sweep(ctx, "stop", Member.Stop)
}

// CleanAll cleans every registered service, newest first.
func (r *Registry) CleanAll(ctx context.Context) error {
	return r.sweep(ctx, "clean", Member.Clean)
}

// FreeAll returns every registered service's nodes to the cluster,
// newest first.
func (r *Registry) FreeAll(ctx context.Context) error {
	return r.sweep(ctx, "free", Member.Free)
}

func (r *Registry) sweep(ctx context.Context, op string, f func(Member, context.Context) error) error {
	var errs []error
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if err := f(e.member, ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", op, e.id, err))
		}
	}
	return errors.Join(errs...)
}
