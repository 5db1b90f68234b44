package accelerator

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/warfair1337/wn-dockctl/internal/model"
)

const (
	DefaultBinary    = "nvidia-smi"
	defaultTimeout   = 5 * time.Second
	defaultWaitDelay = time.Second
)

var (
	deviceFields  = []string{"index", "name", "memory.total", "memory.used", "memory.free"}
	processFields = []string{"pid", "used_memory"}
)

// Runner executes a command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs the binary directly. WaitDelay bounds how long Run waits
// for stdout to close after ctx kills the process, since a wrapper script can
// leave children holding the pipe.
type ExecRunner struct {
	WaitDelay time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = defaultWaitDelay
	}
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Accountant reads device summaries and per-process memory from nvidia-smi.
type Accountant struct {
	binary   string
	timeout  time.Duration
	runner   Runner
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

func NewAccountant(binary string, timeout time.Duration, runner Runner, logger *slog.Logger) *Accountant {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if runner == nil {
		runner = ExecRunner{WaitDelay: timeout / 4}
	}
	return &Accountant{
		binary:   binary,
		timeout:  timeout,
		runner:   runner,
		lookPath: exec.LookPath,
		logger:   logger,
	}
}

// Summarize returns the detected devices and the pid -> MiB map. A host
// without the nvidia-smi binary yields empty results and no error.
func (a *Accountant) Summarize(ctx context.Context) ([]model.AcceleratorDevice, model.AcceleratorProcessMap, error) {
	if _, err := a.lookPath(a.binary); err != nil {
		a.logger.Debug("accelerator cli not found, reporting no devices", "binary", a.binary)
		return []model.AcceleratorDevice{}, model.AcceleratorProcessMap{}, nil
	}

	deviceRows, err := a.query(ctx, "--query-gpu="+strings.Join(deviceFields, ","))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: device query: %w", model.ErrAcceleratorQueryFailed, err)
	}
	devices, err := parseDevices(deviceRows)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", model.ErrAcceleratorQueryFailed, err)
	}

	processRows, err := a.query(ctx, "--query-compute-apps="+strings.Join(processFields, ","))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: process query: %w", model.ErrAcceleratorQueryFailed, err)
	}
	pidMemory, err := parseProcesses(processRows)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", model.ErrAcceleratorQueryFailed, err)
	}
	return devices, pidMemory, nil
}

func (a *Accountant) query(ctx context.Context, selector string) ([][]string, error) {
	qctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	out, err := a.runner.Run(qctx, a.binary, selector, "--format=csv,noheader,nounits")
	if err != nil {
		return nil, err
	}
	return readCSV(string(out))
}

func readCSV(raw string) ([][]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	reader := csv.NewReader(strings.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

func parseDevices(rows [][]string) ([]model.AcceleratorDevice, error) {
	out := make([]model.AcceleratorDevice, 0, len(rows))
	for i, row := range rows {
		if len(row) != len(deviceFields) {
			return nil, fmt.Errorf("device row %d: expected %d fields, got %d", i, len(deviceFields), len(row))
		}
		total, err := parseMiB(row[2])
		if err != nil {
			return nil, fmt.Errorf("device row %d memory.total: %w", i, err)
		}
		used, err := parseMiB(row[3])
		if err != nil {
			return nil, fmt.Errorf("device row %d memory.used: %w", i, err)
		}
		free, err := parseMiB(row[4])
		if err != nil {
			return nil, fmt.Errorf("device row %d memory.free: %w", i, err)
		}
		out = append(out, model.AcceleratorDevice{
			Index:         strings.TrimSpace(row[0]),
			Name:          strings.TrimSpace(row[1]),
			MemoryTotalMB: total,
			MemoryUsedMB:  used,
			MemoryFreeMB:  free,
		})
	}
	return out, nil
}

// parseProcesses sums rows sharing a pid, which happens when one process
// holds memory on several devices.
func parseProcesses(rows [][]string) (model.AcceleratorProcessMap, error) {
	out := make(model.AcceleratorProcessMap, len(rows))
	for i, row := range rows {
		if len(row) != len(processFields) {
			return nil, fmt.Errorf("process row %d: expected %d fields, got %d", i, len(processFields), len(row))
		}
		pid := strings.TrimSpace(row[0])
		if _, err := strconv.ParseUint(pid, 10, 64); err != nil {
			return nil, fmt.Errorf("process row %d pid %q: %w", i, pid, err)
		}
		used, err := parseMiB(row[1])
		if err != nil {
			return nil, fmt.Errorf("process row %d used_memory: %w", i, err)
		}
		out[pid] += used
	}
	return out, nil
}

// parseMiB accepts an integer MiB value. Fields the driver cannot report
// ("[N/A]", "[Not Supported]") count as zero.
func parseMiB(raw string) (int64, error) {
	v := normalizeField(raw)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", raw, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %q", raw)
	}
	return n, nil
}

func normalizeField(raw string) string {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(strings.Trim(v, "[]")) {
	case "", "n/a", "not supported":
		return ""
	default:
		return v
	}
}
