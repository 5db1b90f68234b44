// Package dockertest provides an in-memory docker.RuntimeAPI for tests.
package dockertest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"

	"github.com/warfair1337/wn-dockctl/internal/docker"
)

// Container describes one fake container. Zero-valued detail fields are
// served as empty but valid responses.
type Container struct {
	ID        string
	Name      string
	State     string
	StartedAt time.Time
	Usage     uint64
	Stats     map[string]uint64
	Titles    []string
	PIDs      []string

	InspectErr error
	StatsErr   error
	TopErr     error
}

// Runtime is a concurrency-safe fake of the Docker API.
type Runtime struct {
	mu         sync.Mutex
	containers []Container
	calls      []string

	ListErr   error
	ActionErr error
}

func New(containers ...Container) *Runtime {
	return &Runtime{containers: containers}
}

// Runtime implements docker.Provider.
func (r *Runtime) Runtime(context.Context) (docker.RuntimeAPI, error) {
	return r, nil
}

// Calls returns the recorded "method id" strings in call order.
func (r *Runtime) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *Runtime) record(method, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, strings.TrimSpace(method+" "+id))
}

func (r *Runtime) find(id string) (Container, error) {
	for _, c := range r.containers {
		if c.ID == id {
			return c, nil
		}
	}
	return Container{}, fmt.Errorf("No such container: %s", id)
}

func (r *Runtime) ContainerList(_ context.Context, options container.ListOptions) ([]types.Container, error) {
	r.record("list", "")
	if r.ListErr != nil {
		return nil, r.ListErr
	}
	out := make([]types.Container, 0, len(r.containers))
	for _, c := range r.containers {
		if !options.All && c.State != "running" {
			continue
		}
		out = append(out, types.Container{ID: c.ID, Names: []string{"/" + c.Name}, State: c.State})
	}
	return out, nil
}

func (r *Runtime) ContainerInspect(_ context.Context, id string) (types.ContainerJSON, error) {
	r.record("inspect", id)
	c, err := r.find(id)
	if err != nil {
		return types.ContainerJSON{}, err
	}
	if c.InspectErr != nil {
		return types.ContainerJSON{}, c.InspectErr
	}
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:    c.ID,
			Name:  "/" + c.Name,
			State: &types.ContainerState{Status: c.State, StartedAt: c.StartedAt.Format(time.RFC3339Nano)},
		},
	}, nil
}

func (r *Runtime) ContainerStats(_ context.Context, id string, _ bool) (types.ContainerStats, error) {
	r.record("stats", id)
	c, err := r.find(id)
	if err != nil {
		return types.ContainerStats{}, err
	}
	if c.StatsErr != nil {
		return types.ContainerStats{}, c.StatsErr
	}
	var stats types.StatsJSON
	stats.MemoryStats.Usage = c.Usage
	stats.MemoryStats.Stats = c.Stats
	raw, err := json.Marshal(stats)
	if err != nil {
		return types.ContainerStats{}, err
	}
	return types.ContainerStats{Body: io.NopCloser(strings.NewReader(string(raw))), OSType: "linux"}, nil
}

func (r *Runtime) ContainerTop(_ context.Context, id string, _ []string) (container.ContainerTopOKBody, error) {
	r.record("top", id)
	c, err := r.find(id)
	if err != nil {
		return container.ContainerTopOKBody{}, err
	}
	if c.TopErr != nil {
		return container.ContainerTopOKBody{}, c.TopErr
	}
	titles := c.Titles
	if titles == nil {
		titles = []string{"UID", "PID", "PPID", "C", "STIME", "TTY", "TIME", "CMD"}
	}
	col := -1
	for i, t := range titles {
		if strings.EqualFold(t, "pid") {
			col = i
		}
	}
	procs := make([][]string, 0, len(c.PIDs))
	for _, pid := range c.PIDs {
		row := make([]string, len(titles))
		for i := range row {
			row[i] = "x"
		}
		if col >= 0 {
			row[col] = pid
		}
		procs = append(procs, row)
	}
	return container.ContainerTopOKBody{Titles: titles, Processes: procs}, nil
}

func (r *Runtime) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	return r.action("start", id)
}

func (r *Runtime) ContainerStop(_ context.Context, id string, _ container.StopOptions) error {
	return r.action("stop", id)
}

func (r *Runtime) ContainerRestart(_ context.Context, id string, _ container.StopOptions) error {
	return r.action("restart", id)
}

func (r *Runtime) action(method, id string) error {
	r.record(method, id)
	if r.ActionErr != nil {
		return r.ActionErr
	}
	_, err := r.find(id)
	return err
}
