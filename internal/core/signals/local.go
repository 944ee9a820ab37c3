package signals

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/opswatch/opswatch-backend-go/internal/database/models"
)

// LocalSource reads host-level signals from the machine the engine
// runs on. It backs the built-in self-monitoring rules.
type LocalSource struct {
	logger *logrus.Logger
}

// NewLocalSource creates a local host signal source.
func NewLocalSource(logger *logrus.Logger) *LocalSource {
	return &LocalSource{logger: logger}
}

// Name returns the source name
func (s *LocalSource) Name() string { return "local" }

// Fetch returns the requested observation for the local host.
func (s *LocalSource) Fetch(ctx context.Context, target string, query Query) (float64, error) {
	switch query.Type {
	case models.ConditionMetric:
		return s.fetchMetric(ctx, query.Expr)
	case models.ConditionLogKeyword:
		return s.countLogMatches(query.Expr)
	default:
		return 0, fmt.Errorf("local source does not support %s conditions", query.Type)
	}
}

func (s *LocalSource) fetchMetric(ctx context.Context, metric string) (float64, error) {
	switch metric {
	case "cpu_percent":
		percents, err := cpu.PercentWithContext(ctx, time.Second, false)
		if err != nil {
			return 0, fmt.Errorf("failed to read cpu usage: %w", err)
		}
		if len(percents) == 0 {
			return 0, fmt.Errorf("no cpu usage sample available")
		}
		return percents[0], nil

	case "mem_percent":
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to read memory usage: %w", err)
		}
		return vm.UsedPercent, nil

	case "disk_percent":
		usage, err := disk.UsageWithContext(ctx, "/")
		if err != nil {
			return 0, fmt.Errorf("failed to read disk usage: %w", err)
		}
		return usage.UsedPercent, nil

	case "load1":
		avg, err := load.AvgWithContext(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to read load average: %w", err)
		}
		return avg.Load1, nil

	default:
		return 0, fmt.Errorf("unknown local metric %q", metric)
	}
}

// countLogMatches counts keyword occurrences in a log file. Expr is
// "path|keyword".
func (s *LocalSource) countLogMatches(expr string) (float64, error) {
	path, keyword, ok := strings.Cut(expr, "|")
	if !ok {
		return 0, fmt.Errorf("log condition expression must be path|keyword, got %q", expr)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	var count float64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), keyword) {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan log file: %w", err)
	}

	return count, nil
}
