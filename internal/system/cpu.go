package system

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const procCPUInfo = "/proc/cpuinfo"

// readCPUModelFromProc returns the first "model name" (x86) or "Hardware"
// (ARM) entry of a cpuinfo file. ARM kernels often expose only the latter,
// which leaves gopsutil's ModelName empty.
func readCPUModelFromProc(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var hardware string
	s := bufio.NewScanner(f)
	for s.Scan() {
		key, value, ok := strings.Cut(s.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "model name":
			return value, nil
		case "hardware":
			if hardware == "" {
				hardware = value
			}
		}
	}
	if err := s.Err(); err != nil {
		return "", fmt.Errorf("scan %s: %w", path, err)
	}
	return hardware, nil
}
