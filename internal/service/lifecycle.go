package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rig/rig/internal/model"
)

// Start brings the service up on every node in allocation order.
//
// Before the first start hook runs, every node gets a best effort stop
// and clean pass. Leftovers of a previous run must never block a fresh
// start, so operational failures there are logged and swallowed. A
// missing hook implementation still fails, that is a programming
// error, not leftover state.
//
// Start time and start duration are captured on the first call only, a
// restart does not move them.
func (s *Service) Start(ctx context.Context) error {
	ctx = s.opCtx(ctx)
	s.logger.InfoContext(ctx, "starting service")
	if s.startTime.IsZero() {
		s.startTime = time.Now()
	}

	s.logger.DebugContext(ctx, "killing processes and cleaning up before start")
	for _, node := range s.nodes {
		if err := s.hook.StopNode(ctx, node); err != nil {
			if errors.Is(err, model.ErrHookNotImplemented) {
				return fmt.Errorf("%s: %w", s.WhoAmI(node), err)
			}
			s.logger.DebugContext(ctx, "pre-start stop failed, ignored", "node", node.String(), "error", err)
		}
		if err := s.hook.CleanNode(ctx, node); err != nil {
			if errors.Is(err, model.ErrHookNotImplemented) {
				return fmt.Errorf("%s: %w", s.WhoAmI(node), err)
			}
			s.logger.DebugContext(ctx, "pre-start clean failed, ignored", "node", node.String(), "error", err)
		}
	}

	for _, node := range s.nodes {
		s.logger.DebugContext(ctx, "starting node", "node", node.String())
		if err := s.hook.StartNode(ctx, node); err != nil {
			return fmt.Errorf("starting %s: %w", s.WhoAmI(node), err)
		}
	}

	if s.startDuration < 0 {
		s.startDuration = time.Since(s.startTime)
	}
	return nil
}

// Wait blocks until every node reports its work finished, under one
// shared budget for the whole call. Nodes are asked in allocation
// order and each gets whatever remains of the budget. A non-positive
// timeout means DefaultWaitTimeout.
//
// Exceeding the budget interrupts nothing. The result only names the
// nodes still alive, as a *model.TimeoutError the caller may treat as
// a test failure while the run goes on.
func (s *Service) Wait(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	ctx = s.opCtx(ctx)

	var unfinished []string
	deadline := time.Now().Add(timeout)
	for _, node := range s.nodes {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			unfinished = append(unfinished, node.String())
			continue
		}
		s.logger.DebugContext(ctx, "waiting for node", "node", node.String(), "remaining", remaining)
		finished, err := s.hook.WaitNode(ctx, node, remaining)
		switch {
		case errors.Is(err, model.ErrHookNotImplemented):
			return fmt.Errorf("%s: %w", s.WhoAmI(node), err)
		case err != nil:
			s.logger.ErrorContext(ctx, "waiting for node failed", "node", node.String(), "error", err)
		}
		if !finished {
			unfinished = append(unfinished, node.String())
		}
	}

	if len(unfinished) > 0 {
		return &model.TimeoutError{Timeout: timeout, Nodes: unfinished}
	}
	return nil
}

// Stop halts the service on every node. Stop time and stop duration
// track the latest call, every Stop overwrites them.
func (s *Service) Stop(ctx context.Context) error {
	ctx = s.opCtx(ctx)
	s.stopTime = time.Now()
	s.logger.InfoContext(ctx, "stopping service")
	for _, node := range s.nodes {
		s.logger.InfoContext(ctx, "stopping node", "node", node.String())
		if err := s.hook.StopNode(ctx, node); err != nil {
			return fmt.Errorf("stopping %s: %w", s.WhoAmI(node), err)
		}
	}
	s.stopDuration = time.Since(s.stopTime)
	return nil
}

// Clean removes persistent per-node state, logs, data files and the
// like. Meant to run after Stop.
func (s *Service) Clean(ctx context.Context) error {
	ctx = s.opCtx(ctx)
	s.cleanTime = time.Now()
	s.logger.InfoContext(ctx, "cleaning service")
	for _, node := range s.nodes {
		s.logger.InfoContext(ctx, "cleaning node", "node", node.String())
		if err := s.hook.CleanNode(ctx, node); err != nil {
			return fmt.Errorf("cleaning %s: %w", s.WhoAmI(node), err)
		}
	}
	return nil
}

// Run executes one full start, wait, stop cycle.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	if err := s.Wait(ctx, DefaultWaitTimeout); err != nil {
		return err
	}
	return s.Stop(ctx)
}

// Lifecycle is the start, wait, stop surface RunParallel drives.
// *Service implements it.
type Lifecycle interface {
	Start(ctx context.Context) error
	Wait(ctx context.Context, timeout time.Duration) error
	Stop(ctx context.Context) error
}

// RunParallel drives several instances through start, wait, and stop
// with phase barriers: every instance starts before any is awaited and
// every instance is awaited before any stops. Within a phase the
// listed order holds. This lets a producer and a consumer both come up
// before either's completion is checked, even though each instance's
// own node loop stays sequential.
//
// The first error wins and ends the run. Cleanup of instances left
// running is the registry's teardown job, not RunParallel's.
func RunParallel(ctx context.Context, services ...Lifecycle) error {
	for _, s := range services {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}
	for _, s := range services {
		if err := s.Wait(ctx, DefaultWaitTimeout); err != nil {
			return err
		}
	}
	for _, s := range services {
		if err := s.Stop(ctx); err != nil {
			return err
		}
	}
	return nil
}
