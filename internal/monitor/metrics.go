// Package monitor implements the memctl terminal dashboard: a metrics
// client scraping a memoryd server and a BubbleTea model rendering it.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metric names scraped from the server.
const (
	opsMetric      = "memoryd_api_operations_total"
	durationMetric = "memoryd_api_operation_duration_seconds"
)

// Client scrapes a memoryd server's /health and /metrics endpoints.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a metrics client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 2 * time.Second,
		},
	}
}

// OpStats holds the cumulative counters for one API operation.
type OpStats struct {
	Success float64
	Errors  float64

	// DurSum and DurCount come from the duration histogram; their
	// ratio is the all-time average latency in seconds.
	DurSum   float64
	DurCount float64
}

// Total returns all invocations of the operation.
func (o OpStats) Total() float64 {
	return o.Success + o.Errors
}

// Snapshot is one scrape of the server. Counters are cumulative; rates
// come from diffing two snapshots with Since.
type Snapshot struct {
	At      time.Time
	Healthy bool
	Version string

	// Ops maps operation name (store, retrieve, search, ...) to its
	// counters.
	Ops map[string]OpStats

	// Runtime metrics from the default Prometheus collectors.
	Goroutines float64
	HeapBytes  float64

	// StartTime is process_start_time_seconds; zero when the collector
	// does not provide it.
	StartTime float64
}

// TotalOps returns all operations across the snapshot.
func (s Snapshot) TotalOps() float64 {
	var total float64
	for _, st := range s.Ops {
		total += st.Total()
	}
	return total
}

// TotalErrors returns all failed operations across the snapshot.
func (s Snapshot) TotalErrors() float64 {
	var total float64
	for _, st := range s.Ops {
		total += st.Errors
	}
	return total
}

// Uptime returns the server's uptime in seconds, zero when unknown.
func (s Snapshot) Uptime() int64 {
	if s.StartTime == 0 {
		return 0
	}
	up := s.At.Sub(time.Unix(int64(s.StartTime), 0))
	if up < 0 {
		return 0
	}
	return int64(up.Seconds())
}

// Rates are per-second figures over the interval between two snapshots.
type Rates struct {
	// OpRate is total operations per second.
	OpRate float64

	// ErrorRate is failed operations per second.
	ErrorRate float64

	// AvgLatency is the mean operation latency in seconds over the
	// interval.
	AvgLatency float64

	// PerOp maps operation name to its rate.
	PerOp map[string]float64
}

// Since computes rates between prev and this snapshot. A counter going
// backwards means the server restarted; the current value then counts
// as the delta.
func (s Snapshot) Since(prev Snapshot) Rates {
	r := Rates{PerOp: make(map[string]float64)}
	dt := s.At.Sub(prev.At).Seconds()
	if dt <= 0 {
		return r
	}

	var dOps, dErrs, dSum, dCount float64
	for op, cur := range s.Ops {
		p := prev.Ops[op]
		dOp := counterDelta(cur.Total(), p.Total())
		r.PerOp[op] = dOp / dt

		dOps += dOp
		dErrs += counterDelta(cur.Errors, p.Errors)
		dSum += counterDelta(cur.DurSum, p.DurSum)
		dCount += counterDelta(cur.DurCount, p.DurCount)
	}

	r.OpRate = dOps / dt
	r.ErrorRate = dErrs / dt
	if dCount > 0 {
		r.AvgLatency = dSum / dCount
	}
	return r
}

func counterDelta(cur, prev float64) float64 {
	if cur < prev {
		return cur
	}
	return cur - prev
}

// healthResponse mirrors the server's GET /health body.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Fetch scrapes the server once.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		At:  time.Now(),
		Ops: make(map[string]OpStats),
	}

	health, err := c.fetchHealth(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Healthy = health.Status == "ok"
	snap.Version = health.Version

	families, err := c.fetchMetricFamilies(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	if fam, ok := families[opsMetric]; ok {
		for _, m := range fam.GetMetric() {
			op, outcome := labelValue(m, "operation"), labelValue(m, "outcome")
			st := snap.Ops[op]
			if outcome == "error" {
				st.Errors += m.GetCounter().GetValue()
			} else {
				st.Success += m.GetCounter().GetValue()
			}
			snap.Ops[op] = st
		}
	}

	if fam, ok := families[durationMetric]; ok {
		for _, m := range fam.GetMetric() {
			op := labelValue(m, "operation")
			st := snap.Ops[op]
			st.DurSum += m.GetHistogram().GetSampleSum()
			st.DurCount += float64(m.GetHistogram().GetSampleCount())
			snap.Ops[op] = st
		}
	}

	snap.Goroutines = gaugeValue(families, "go_goroutines")
	snap.HeapBytes = gaugeValue(families, "go_memstats_heap_alloc_bytes")
	snap.StartTime = gaugeValue(families, "process_start_time_seconds")

	return snap, nil
}

func (c *Client) fetchHealth(ctx context.Context) (healthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return healthResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return healthResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return healthResponse{}, fmt.Errorf("unexpected status code %d from /health", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return healthResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return health, nil
}

func (c *Client) fetchMetricFamilies(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/metrics", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from /metrics", resp.StatusCode)
	}

	parser := expfmt.TextParser{}
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metrics: %w", err)
	}
	return families, nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

// gaugeValue returns the first sample of a gauge or untyped family,
// zero when absent.
func gaugeValue(families map[string]*dto.MetricFamily, name string) float64 {
	fam, ok := families[name]
	if !ok || len(fam.GetMetric()) == 0 {
		return 0
	}
	m := fam.GetMetric()[0]
	if g := m.GetGauge(); g != nil {
		return g.GetValue()
	}
	return m.GetUntyped().GetValue()
}
