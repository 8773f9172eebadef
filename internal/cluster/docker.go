package cluster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"

	"github.com/go-rig/rig/internal/model"
)

const DefaultDockerImage = "alpine:3.20"

// DockerCluster provisions one container per node on demand. It only
// provides Linux nodes, a spec asking for anything else is refused up
// front.
type DockerCluster struct {
	image string

	mu    sync.Mutex
	owned map[*Node]testcontainers.Container
}

func NewDockerCluster(image string) *DockerCluster {
	if image == "" {
		image = DefaultDockerImage
	}
	return &DockerCluster{
		image: image,
		owned: make(map[*Node]testcontainers.Container),
	}
}

func (d *DockerCluster) Alloc(ctx context.Context, spec Spec) ([]*Node, error) {
	for osTag, want := range spec {
		if osTag != Linux && want > 0 {
			return nil, fmt.Errorf("%w: docker clusters provide only %s nodes, %d %s node(s) requested",
				model.ErrInsufficientNodes, Linux, want, osTag)
		}
	}

	want := spec[Linux]
	var nodes []*Node
	for i := 0; i < want; i++ {
		ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:      d.image,
				Entrypoint: []string{"sleep", "infinity"},
			},
			Started: true,
		})
		if err != nil {
			d.release(context.WithoutCancel(ctx), nodes)
			return nil, fmt.Errorf("can't start container %d of %d: %w", i+1, want, err)
		}
		node := NewNode(Linux, NewAccount(shortID(ctr.GetContainerID()), &dockerTransport{ctr: ctr}))
		d.mu.Lock()
		d.owned[node] = ctr
		d.mu.Unlock()
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (d *DockerCluster) Free(ctx context.Context, node *Node) error {
	d.mu.Lock()
	ctr, ok := d.owned[node]
	delete(d.owned, node)
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("node %s was not allocated from this cluster", node)
	}
	if err := ctr.Terminate(ctx); err != nil {
		return fmt.Errorf("can't terminate container for node %s: %w", node, err)
	}
	return nil
}

func (d *DockerCluster) release(ctx context.Context, nodes []*Node) {
	for _, n := range nodes {
		if err := d.Free(ctx, n); err != nil {
			slog.WarnContext(ctx, "releasing partially allocated node", "node", n, "error", err)
		}
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

type dockerTransport struct {
	ctr testcontainers.Container
}

func (t *dockerTransport) Run(ctx context.Context, cmd string) error {
	code, out, err := t.ctr.Exec(ctx, []string{"/bin/sh", "-c", cmd}, tcexec.Multiplexed())
	if err != nil {
		return fmt.Errorf("command %q failed: %w", cmd, err)
	}
	if code != 0 {
		b, _ := io.ReadAll(out)
		return fmt.Errorf("command %q exited %d: %s", cmd, code, bytes.TrimSpace(b))
	}
	return nil
}

func (t *dockerTransport) Output(ctx context.Context, cmd string) ([]byte, error) {
	code, out, err := t.ctr.Exec(ctx, []string{"/bin/sh", "-c", cmd}, tcexec.Multiplexed())
	if err != nil {
		return nil, fmt.Errorf("command %q failed: %w", cmd, err)
	}
	b, err := io.ReadAll(out)
	if err != nil {
		return nil, fmt.Errorf("reading output of %q: %w", cmd, err)
	}
	if code != 0 {
		return b, fmt.Errorf("command %q exited %d: %s", cmd, code, bytes.TrimSpace(b))
	}
	return b, nil
}

func (t *dockerTransport) Fetch(ctx context.Context, path string, w io.Writer) error {
	rc, err := t.ctr.CopyFileFromContainer(ctx, path)
	if err != nil {
		return fmt.Errorf("can't fetch %s: %w", path, err)
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("can't fetch %s: %w", path, err)
	}
	return nil
}
