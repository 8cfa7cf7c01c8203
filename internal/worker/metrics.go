package worker

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"syscall"

	"github.com/Electrostatics/apbs-aws/internal/models"
)

// SnapshotRusage reads the cumulative resource usage of all terminated
// children. Call before and after a subprocess and diff the snapshots.
func SnapshotRusage() (*models.RusageSnapshot, error) {
	var usage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_CHILDREN, &usage); err != nil {
		return nil, fmt.Errorf("getrusage failed: %w", err)
	}
	return &models.RusageSnapshot{
		UserTime:      timevalSeconds(usage.Utime),
		SystemTime:    timevalSeconds(usage.Stime),
		MaxRSS:        usage.Maxrss,
		IXRSS:         usage.Ixrss,
		IDRSS:         usage.Idrss,
		ISRSS:         usage.Isrss,
		MinorFaults:   usage.Minflt,
		MajorFaults:   usage.Majflt,
		Swaps:         usage.Nswap,
		InBlock:       usage.Inblock,
		OutBlock:      usage.Oublock,
		MsgSent:       usage.Msgsnd,
		MsgReceived:   usage.Msgrcv,
		Signals:       usage.Nsignals,
		VolCtxSwitch:  usage.Nvcsw,
		IvolCtxSwitch: usage.Nivcsw,
	}, nil
}

func timevalSeconds(tv syscall.Timeval) float64 {
	return float64(tv.Sec) + float64(tv.Usec)/1e6
}

// DeltaRusage subtracts prev from next componentwise. Times are rounded to
// two decimals; counter wraparound is not a concern at job timescales.
func DeltaRusage(next, prev *models.RusageSnapshot) models.RusageSnapshot {
	return models.RusageSnapshot{
		UserTime:      round2(next.UserTime - prev.UserTime),
		SystemTime:    round2(next.SystemTime - prev.SystemTime),
		MaxRSS:        next.MaxRSS - prev.MaxRSS,
		IXRSS:         next.IXRSS - prev.IXRSS,
		IDRSS:         next.IDRSS - prev.IDRSS,
		ISRSS:         next.ISRSS - prev.ISRSS,
		MinorFaults:   next.MinorFaults - prev.MinorFaults,
		MajorFaults:   next.MajorFaults - prev.MajorFaults,
		Swaps:         next.Swaps - prev.Swaps,
		InBlock:       next.InBlock - prev.InBlock,
		OutBlock:      next.OutBlock - prev.OutBlock,
		MsgSent:       next.MsgSent - prev.MsgSent,
		MsgReceived:   next.MsgReceived - prev.MsgReceived,
		Signals:       next.Signals - prev.Signals,
		VolCtxSwitch:  next.VolCtxSwitch - prev.VolCtxSwitch,
		IvolCtxSwitch: next.IvolCtxSwitch - prev.IvolCtxSwitch,
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// StorageBytes sums the sizes of regular files under dir, recursively.
func StorageBytes(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return total, nil
}

// WriteMetricsFile renders the metrics document to <dir>/<kind>-metrics.json
// so it is uploaded with the rest of the working directory.
func WriteMetricsFile(dir string, kind models.JobKind, metrics models.ExecutionMetrics) error {
	doc := models.MetricsDoc{Metrics: metrics}
	body, err := json.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	name := filepath.Join(dir, fmt.Sprintf("%s-metrics.json", kind))
	if err := os.WriteFile(name, body, 0o644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
