// Package logcollect pulls the log files services declared off their
// nodes onto the local disk for post-run inspection.
package logcollect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-rig/rig/internal/cluster"
	"github.com/go-rig/rig/internal/parallel"
	"github.com/go-rig/rig/internal/service"
)

// Source is the view of a service the collector needs.
type Source interface {
	ID() string
	Nodes() []*cluster.Node
	Logs() map[string]service.LogDescriptor
}

type job struct {
	serviceID string
	node      *cluster.Node
	name      string
	path      string
}

// Collect fetches every log marked for default collection from every
// node of the given services into dest/<service-id>/<hostname>/<name>,
// with at most limit fetches in flight. Collection is best effort: a
// failed fetch is reported in the joined error and the rest proceeds.
func Collect(ctx context.Context, dest string, limit int, services ...Source) error {
	var jobs []job
	for _, svc := range services {
		for _, node := range svc.Nodes() {
			for name, desc := range svc.Logs() {
				if !desc.CollectDefault {
					continue
				}
				jobs = append(jobs, job{
					serviceID: svc.ID(),
					node:      node,
					name:      name,
					path:      desc.Path,
				})
			}
		}
	}

	var mu sync.Mutex
	var errs []error

	err := parallel.ForEach(ctx, limit, jobs, func(ctx context.Context, j job) error {
		if err := fetch(ctx, dest, j); err != nil {
			slog.WarnContext(ctx, "collecting log failed",
				"service", j.serviceID, "node", j.node.String(), "log", j.name, "error", err)
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s %s %s: %w", j.serviceID, j.node, j.name, err))
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func fetch(ctx context.Context, dest string, j job) error {
	dir := filepath.Join(dest, j.serviceID, j.node.Account.Hostname)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, j.name))
	if err != nil {
		return err
	}
	if err := j.node.Account.Fetch(ctx, j.path, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
