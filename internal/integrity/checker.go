// Package integrity runs periodic whole-chain validation sweeps and publishes
// the result to gRPC health and metrics.
package integrity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service reporting ledger integrity.
const ServiceName = "starnotary.Ledger"

// Config holds sweep configuration.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// ChainValidator is the part of *ledger.Ledger the sweep needs.
type ChainValidator interface {
	Height(ctx context.Context) (int64, error)
	ValidateChain(ctx context.Context) ([]int64, error)
}

// Report is the outcome of one sweep.
type Report struct {
	CheckedAt     time.Time `json:"checkedAt"`
	Height        int64     `json:"height"`
	FailedHeights []int64   `json:"failedHeights"`
	Error         string    `json:"error,omitempty"`
}

// Valid reports whether the sweep completed without finding tampering.
func (r Report) Valid() bool { return r.Error == "" && len(r.FailedHeights) == 0 }

// MetricsRecordFunc is an optional callback for recording sweep results.
type MetricsRecordFunc func(failed int)

// Checker periodically re-validates the whole chain.
type Checker struct {
	chain     ChainValidator
	cfg       Config
	health    *health.Server
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu   sync.RWMutex
	last *Report
}

// New creates a Checker.
func New(chain ChainValidator, cfg Config, logger *zap.Logger) *Checker {
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}
	return &Checker{chain: chain, cfg: cfg, logger: logger}
}

// SetHealthServer makes each sweep publish ServiceName's serving status.
func (c *Checker) SetHealthServer(hs *health.Server) {
	c.health = hs
}

// SetMetricsRecord configures the metrics recording callback.
func (c *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	c.onMetrics = fn
}

// Start sweeps once immediately, then on every tick until ctx is done.
func (c *Checker) Start(ctx context.Context) {
	c.CheckOnce(ctx)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.CheckOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckOnce runs a single sweep and stores its report.
func (c *Checker) CheckOnce(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	r := Report{CheckedAt: time.Now().UTC(), FailedHeights: []int64{}}

	height, err := c.chain.Height(ctx)
	if err == nil {
		r.Height = height
		r.FailedHeights, err = c.chain.ValidateChain(ctx)
	}
	if err != nil {
		r.Error = err.Error()
		c.logger.Error("integrity: sweep failed", zap.Error(err))
	} else if len(r.FailedHeights) > 0 {
		c.logger.Warn("integrity: chain invalid",
			zap.Int64("height", r.Height),
			zap.Int64s("failed_heights", r.FailedHeights),
		)
	} else {
		c.logger.Info("integrity: chain valid", zap.Int64("height", r.Height))
	}

	if c.onMetrics != nil {
		c.onMetrics(len(r.FailedHeights))
	}
	if c.health != nil {
		status := healthpb.HealthCheckResponse_SERVING
		if !r.Valid() {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		c.health.SetServingStatus(ServiceName, status)
	}

	c.mu.Lock()
	c.last = &r
	c.mu.Unlock()
	return r
}

// Last returns the most recent report, if a sweep has run.
func (c *Checker) Last() (Report, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return Report{}, false
	}
	return *c.last, true
}
