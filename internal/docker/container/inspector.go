package container

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"golang.org/x/sync/errgroup"

	"github.com/warfair1337/wn-dockctl/internal/docker"
	"github.com/warfair1337/wn-dockctl/internal/model"
)

const (
	defaultWorkers     = 8
	defaultCallTimeout = 10 * time.Second
)

var errPIDColumnMissing = errors.New("pid column missing from process listing")

// Inspector enumerates containers and fetches details for the running ones.
type Inspector struct {
	conns       docker.Provider
	logger      *slog.Logger
	workers     int
	callTimeout time.Duration
}

func NewInspector(conns docker.Provider, workers int, callTimeout time.Duration, logger *slog.Logger) *Inspector {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Inspector{
		conns:       conns,
		logger:      logger,
		workers:     workers,
		callTimeout: callTimeout,
	}
}

// Enumerate lists every container in runtime order. Running containers get
// their start time, memory sample and pid set filled in by a bounded pool of
// workers; a failed fetch is recorded on that sample only.
func (i *Inspector) Enumerate(ctx context.Context) ([]model.ContainerSample, error) {
	api, err := i.conns.Runtime(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrRuntimeUnavailable, err)
	}

	listCtx, cancel := context.WithTimeout(ctx, i.callTimeout)
	list, err := api.ContainerList(listCtx, dockercontainer.ListOptions{All: true})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: list containers: %w", model.ErrRuntimeUnavailable, err)
	}

	samples := make([]model.ContainerSample, len(list))
	var g errgroup.Group
	g.SetLimit(i.workers)
	for idx, c := range list {
		samples[idx] = model.ContainerSample{ContainerSummary: summarize(c)}
		if !samples[idx].Running() {
			continue
		}
		sample := &samples[idx]
		g.Go(func() error {
			i.inspectRunning(ctx, api, sample)
			return nil
		})
	}
	_ = g.Wait()
	return samples, nil
}

func (i *Inspector) inspectRunning(ctx context.Context, api docker.RuntimeAPI, s *model.ContainerSample) {
	cctx, cancel := context.WithTimeout(ctx, i.callTimeout)
	defer cancel()

	if startedAt, err := fetchStartedAt(cctx, api, s.ID); err != nil {
		i.fail(s, model.StepInspect, err)
	} else {
		s.StartedAt = model.Some(startedAt)
	}

	if usage, err := fetchMemory(cctx, api, s.ID); err != nil {
		i.fail(s, model.StepStats, err)
	} else {
		s.Memory = model.Some(usage)
	}

	if pids, err := fetchPIDs(cctx, api, s.ID); err != nil {
		i.fail(s, model.StepTop, err)
	} else {
		s.PIDs = model.Some(pids)
	}
}

func (i *Inspector) fail(s *model.ContainerSample, step string, err error) {
	statsErr := &model.ContainerStatsError{ContainerID: s.ID, Step: step, Err: err}
	s.Failures = append(s.Failures, statsErr)
	i.logger.Warn("container detail fetch failed", "container_id", model.ShortID(s.ID), "container_name", s.Name, "step", step, "error", err)
}

func summarize(c types.Container) model.ContainerSummary {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	if name == "" {
		name = model.ShortID(c.ID)
	}
	return model.ContainerSummary{
		ID:    c.ID,
		Name:  name,
		State: model.ContainerState(strings.ToLower(c.State)),
	}
}

func fetchStartedAt(ctx context.Context, api docker.RuntimeAPI, id string) (time.Time, error) {
	info, err := api.ContainerInspect(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return time.Time{}, errors.New("inspect response has no state")
	}
	startedAt, err := time.Parse(time.RFC3339Nano, info.State.StartedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse started_at %q: %w", info.State.StartedAt, err)
	}
	return startedAt, nil
}

// fetchMemory reads one non-streaming stats sample. cgroup v1 reports page
// cache as "cache"; cgroup v2 has no such key and "inactive_file" is the
// closest equivalent.
func fetchMemory(ctx context.Context, api docker.RuntimeAPI, id string) (model.MemoryUsage, error) {
	resp, err := api.ContainerStats(ctx, id, false)
	if err != nil {
		return model.MemoryUsage{}, err
	}
	if resp.Body == nil {
		return model.MemoryUsage{}, errors.New("stats response has no body")
	}
	defer resp.Body.Close()

	var stats types.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return model.MemoryUsage{}, fmt.Errorf("decode stats: %w", err)
	}

	cache, ok := stats.MemoryStats.Stats["cache"]
	if !ok {
		cache = stats.MemoryStats.Stats["inactive_file"]
	}
	return model.MemoryUsage{UsageBytes: stats.MemoryStats.Usage, CacheBytes: cache}, nil
}

func fetchPIDs(ctx context.Context, api docker.RuntimeAPI, id string) ([]string, error) {
	top, err := api.ContainerTop(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	col := -1
	for idx, title := range top.Titles {
		if strings.EqualFold(strings.TrimSpace(title), "pid") {
			col = idx
			break
		}
	}
	if col < 0 {
		return nil, errPIDColumnMissing
	}

	pids := make([]string, 0, len(top.Processes))
	for _, proc := range top.Processes {
		if col >= len(proc) {
			continue
		}
		pids = append(pids, strings.TrimSpace(proc[col]))
	}
	return pids, nil
}
