package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taskmaster/scheduler/internal/infrastructure/logger"
	"github.com/taskmaster/scheduler/internal/infrastructure/metrics"
	"github.com/taskmaster/scheduler/internal/ports"
)

// Sweeper removes stale objects left under the dataset prefix when deleting
// the previous blob failed during a write. The newest keep objects survive.
type Sweeper struct {
	gateway ports.BlobGateway
	prefix  string
	keep    int
	timeout time.Duration
	logger  *logger.Logger
	metrics *metrics.Dataset
	cron    *cron.Cron
}

// NewSweeper creates a sweeper for prefix that keeps the newest keep objects
func NewSweeper(gateway ports.BlobGateway, prefix string, keep int, logger *logger.Logger, m *metrics.Dataset) *Sweeper {
	if keep < 1 {
		keep = 1
	}
	if m == nil {
		m = metrics.NewDataset(nil)
	}
	return &Sweeper{
		gateway: gateway,
		prefix:  prefix,
		keep:    keep,
		timeout: time.Minute,
		logger:  logger.WithComponent("sweeper"),
		metrics: m,
	}
}

// Sweep deletes every object under the prefix except the newest ones and
// returns how many were removed. It keeps going after a failed delete.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	objects, err := s.gateway.List(ctx, ports.ListOptions{Prefix: s.prefix})
	logBlobOperation(s.logger, "list", s.prefix, start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to list blobs: %w", err)
	}
	if len(objects) <= s.keep {
		return 0, nil
	}

	var (
		removed int
		errs    []error
	)
	for _, obj := range objects[s.keep:] {
		start := time.Now()
		err := s.gateway.Delete(ctx, obj.URL)
		logBlobOperation(s.logger, "delete", obj.URL, start, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", obj.Pathname, err))
			continue
		}
		removed++
	}

	s.metrics.Swept.Add(float64(removed))
	s.logger.Infow("Orphaned blobs swept", "removed", removed, "failed", len(errs))

	return removed, errors.Join(errs...)
}

// Start runs Sweep on the given cron schedule until Stop is called.
func (s *Sweeper) Start(schedule string) error {
	c := cron.New(
		cron.WithParser(cron.NewParser(
			cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		),
	)

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.WithError(err).Error("Sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	s.cron = c
	c.Start()
	s.logger.Infow("Sweeper started", "schedule", schedule, "keep", s.keep)
	return nil
}

// Stop halts scheduled sweeps and waits for a running one to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Sweeper stopped")
}
