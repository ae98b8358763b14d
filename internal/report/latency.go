package report

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// LatencyStats summarizes the bus latency of one operation kind in a
// session. All figures are microseconds.
type LatencyStats struct {
	Op     string
	Count  int
	Mean   float64
	StdDev float64
	P50    float64
	P90    float64
	P99    float64
}

// LatencyStatsFor computes latency statistics for one operation kind
// ("read" or "write").
func (g *Generator) LatencyStatsFor(sessionID, op string) (LatencyStats, error) {
	latencies, err := g.store.Latencies(sessionID, op)
	if err != nil {
		return LatencyStats{}, fmt.Errorf("load %s latencies: %w", op, err)
	}

	s := LatencyStats{Op: op, Count: len(latencies)}
	if len(latencies) == 0 {
		return s, nil
	}

	sort.Float64s(latencies)
	s.Mean = stat.Mean(latencies, nil)
	if len(latencies) > 1 {
		s.StdDev = stat.StdDev(latencies, nil)
	}
	s.P50 = stat.Quantile(0.5, stat.Empirical, latencies, nil)
	s.P90 = stat.Quantile(0.9, stat.Empirical, latencies, nil)
	s.P99 = stat.Quantile(0.99, stat.Empirical, latencies, nil)
	return s, nil
}

// WriteLatencyReport writes a plain-text latency table covering reads and
// writes for the session.
func (g *Generator) WriteLatencyReport(sessionID string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Register bus latency, session %s (all times in us)\n\n", sessionID)
	fmt.Fprintf(&b, "%-6s %8s %10s %10s %10s %10s %10s\n",
		"op", "count", "mean", "stddev", "p50", "p90", "p99")

	for _, op := range []string{"read", "write"} {
		s, err := g.LatencyStatsFor(sessionID, op)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%-6s %8d %10.1f %10.1f %10.1f %10.1f %10.1f\n",
			s.Op, s.Count, s.Mean, s.StdDev, s.P50, s.P90, s.P99)
	}

	path := filepath.Join(g.outDir, "latency.txt")
	if err := g.fs.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("write latency report: %w", err)
	}
	return path, nil
}
