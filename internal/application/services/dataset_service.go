package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/taskmaster/scheduler/internal/domain/entities"
	"github.com/taskmaster/scheduler/internal/infrastructure/config"
	"github.com/taskmaster/scheduler/internal/infrastructure/logger"
	"github.com/taskmaster/scheduler/internal/infrastructure/metrics"
	"github.com/taskmaster/scheduler/internal/ports"
)

const datasetContentType = "application/json"

// DatasetService implements whole-document read and replace on top of a blob
// gateway. The current dataset is the newest object under the prefix; a
// replace deletes it (best effort) and writes a new one.
type DatasetService struct {
	gateway ports.BlobGateway
	cfg     config.BlobConfig
	logger  *logger.Logger
	metrics *metrics.Dataset
	now     func() time.Time

	mu        sync.Mutex
	lastStamp int64
}

// NewDatasetService creates a new dataset service
func NewDatasetService(gateway ports.BlobGateway, cfg config.BlobConfig, logger *logger.Logger, m *metrics.Dataset) *DatasetService {
	if m == nil {
		m = metrics.NewDataset(nil)
	}
	return &DatasetService{
		gateway: gateway,
		cfg:     cfg,
		logger:  logger.WithComponent("dataset"),
		metrics: m,
		now:     time.Now,
	}
}

// EnsureConfigured returns entities.ErrMissingToken when no blob credential is set.
func (s *DatasetService) EnsureConfigured() error {
	if s.cfg.Token == "" {
		return entities.ErrMissingToken
	}
	return nil
}

// Get returns the current dataset. No object under the prefix means an empty
// dataset, which also covers a crash between delete and write in Replace.
func (s *DatasetService) Get(ctx context.Context) (*entities.Dataset, error) {
	if err := s.EnsureConfigured(); err != nil {
		return nil, err
	}

	latest, err := s.latest(ctx)
	if err != nil {
		s.metrics.Reads.WithLabelValues("error").Inc()
		return nil, err
	}

	if latest == nil {
		s.metrics.Reads.WithLabelValues("empty").Inc()
		ds := &entities.Dataset{}
		ds.Normalize()
		return ds, nil
	}

	start := time.Now()
	body, err := s.gateway.Fetch(ctx, latest.URL)
	logBlobOperation(s.logger, "fetch", latest.URL, start, err)
	if err != nil {
		s.metrics.Reads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to fetch blob data: %w", err)
	}

	var ds entities.Dataset
	if err := json.Unmarshal(body, &ds); err != nil {
		s.metrics.Reads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to decode dataset %s: %w", latest.Pathname, err)
	}
	ds.Normalize()

	s.metrics.Reads.WithLabelValues("ok").Inc()
	s.logger.Debugw("Dataset loaded",
		"pathname", latest.Pathname,
		"tasks", len(ds.Tasks),
		"events", len(ds.Events),
	)

	return &ds, nil
}

// Replace makes ds the current dataset and returns the reference of the new
// object. Failing to delete the previous object is logged and ignored.
func (s *DatasetService) Replace(ctx context.Context, ds entities.Dataset) (string, error) {
	if err := s.EnsureConfigured(); err != nil {
		return "", err
	}

	ds.Normalize()
	body, err := json.Marshal(ds)
	if err != nil {
		return "", fmt.Errorf("failed to encode dataset: %w", err)
	}

	s.deletePrevious(ctx)

	pathname := s.nextPathname()
	start := time.Now()
	obj, err := s.gateway.Put(ctx, pathname, body, ports.PutOptions{
		ContentType: datasetContentType,
		Access:      s.cfg.Access,
	})
	logBlobOperation(s.logger, "put", pathname, start, err)
	if err != nil {
		s.metrics.Writes.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to store data: %w", err)
	}

	s.metrics.Writes.WithLabelValues("ok").Inc()
	s.metrics.DocumentBytes.Observe(float64(len(body)))
	s.logger.Infow("Dataset stored",
		"url", obj.URL,
		"tasks", len(ds.Tasks),
		"events", len(ds.Events),
		"bytes", len(body),
	)

	return obj.URL, nil
}

func (s *DatasetService) latest(ctx context.Context) (*ports.BlobObject, error) {
	start := time.Now()
	objects, err := s.gateway.List(ctx, ports.ListOptions{Prefix: s.cfg.Prefix, Limit: 1})
	logBlobOperation(s.logger, "list", s.cfg.Prefix, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list blobs: %w", err)
	}
	if len(objects) == 0 {
		return nil, nil
	}
	return &objects[0], nil
}

func (s *DatasetService) deletePrevious(ctx context.Context) {
	previous, err := s.latest(ctx)
	if err == nil && previous != nil {
		start := time.Now()
		err = s.gateway.Delete(ctx, previous.URL)
		logBlobOperation(s.logger, "delete", previous.URL, start, err)
	}
	if err != nil {
		s.metrics.DeleteFailures.Inc()
		s.logger.WithError(err).Warn("Error deleting previous blob")
	}
}

// logBlobOperation records a gateway call that started at start.
func logBlobOperation(l *logger.Logger, op, ref string, start time.Time, err error) {
	l.LogBlobOperation(op, ref, float64(time.Since(start).Microseconds())/1000, err)
}

// nextPathname returns "<prefix>-<unix millis>.json" with a stamp strictly
// greater than any stamp this service handed out before.
func (s *DatasetService) nextPathname() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := s.now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp

	return fmt.Sprintf("%s-%d.json", s.cfg.Prefix, stamp)
}
