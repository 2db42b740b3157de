package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/taskmaster/scheduler/internal/adapters/blob"
	"github.com/taskmaster/scheduler/internal/domain/entities"
	"github.com/taskmaster/scheduler/internal/infrastructure/config"
	"github.com/taskmaster/scheduler/internal/infrastructure/logger"
	"github.com/taskmaster/scheduler/internal/infrastructure/metrics"
	"github.com/taskmaster/scheduler/internal/ports"
)

// flakyGateway fails selected operations of an in-memory gateway.
type flakyGateway struct {
	*blob.MemoryGateway
	listErr   error
	deleteErr error
	putErr    error
	fetchBody []byte
	deletes   int
}

func (g *flakyGateway) List(ctx context.Context, opts ports.ListOptions) ([]ports.BlobObject, error) {
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.MemoryGateway.List(ctx, opts)
}

func (g *flakyGateway) Fetch(ctx context.Context, url string) ([]byte, error) {
	if g.fetchBody != nil {
		return g.fetchBody, nil
	}
	return g.MemoryGateway.Fetch(ctx, url)
}

func (g *flakyGateway) Delete(ctx context.Context, url string) error {
	g.deletes++
	if g.deleteErr != nil {
		return g.deleteErr
	}
	return g.MemoryGateway.Delete(ctx, url)
}

func (g *flakyGateway) Put(ctx context.Context, pathname string, body []byte, opts ports.PutOptions) (*ports.BlobObject, error) {
	if g.putErr != nil {
		return nil, g.putErr
	}
	return g.MemoryGateway.Put(ctx, pathname, body, opts)
}

func newDatasetService(gw ports.BlobGateway, token string) (*DatasetService, *metrics.Dataset) {
	m := metrics.NewDataset(nil)
	svc := NewDatasetService(gw, config.BlobConfig{
		Token:  token,
		Prefix: "scheduler-data",
		Access: "public",
	}, logger.NewNop(), m)
	return svc, m
}

func sampleDataset() entities.Dataset {
	due := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return entities.Dataset{
		Tasks: []entities.Task{
			{ID: "t1", Title: "Write report", DueDate: &due, Priority: entities.PriorityHigh, Tags: []string{"work"}},
		},
		Events: []entities.Event{
			{ID: "e1", Title: "Standup", Start: due, End: due.Add(15 * time.Minute)},
		},
	}
}

func TestDatasetService_EmptyStoreYieldsEmptyArrays(t *testing.T) {
	svc, m := newDatasetService(blob.NewMemoryGateway(), "token")

	ds, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, ds.Tasks)
	assert.NotNil(t, ds.Events)
	assert.Empty(t, ds.Tasks)
	assert.Empty(t, ds.Events)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reads.WithLabelValues("empty")))
}

func TestDatasetService_RoundTrip(t *testing.T) {
	gw := blob.NewMemoryGateway()
	svc, m := newDatasetService(gw, "token")
	ctx := context.Background()

	url, err := svc.Replace(ctx, sampleDataset())
	require.NoError(t, err)
	assert.Regexp(t, `^memory://scheduler-data-\d+\.json$`, url)

	ds, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleDataset(), *ds)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Writes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reads.WithLabelValues("ok")))
}

func TestDatasetService_ReplaceKeepsOneObject(t *testing.T) {
	gw := blob.NewMemoryGateway()
	svc, _ := newDatasetService(gw, "token")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ds := sampleDataset()
		ds.Tasks[0].Title = fmt.Sprintf("v%d", i)
		_, err := svc.Replace(ctx, ds)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, gw.Len())
	ds, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", ds.Tasks[0].Title)
}

func TestDatasetService_PathnamesAreStrictlyIncreasing(t *testing.T) {
	gw := blob.NewMemoryGateway()
	svc, _ := newDatasetService(gw, "token")
	frozen := time.UnixMilli(1700000000000)
	svc.now = func() time.Time { return frozen }

	assert.Equal(t, "scheduler-data-1700000000000.json", svc.nextPathname())
	assert.Equal(t, "scheduler-data-1700000000001.json", svc.nextPathname())

	// A clock that steps back never reuses a stamp.
	frozen = frozen.Add(-time.Second)
	assert.Equal(t, "scheduler-data-1700000000002.json", svc.nextPathname())
}

func TestDatasetService_WritesWithinOneMillisecond(t *testing.T) {
	gw := blob.NewMemoryGateway()
	svc, _ := newDatasetService(gw, "token")
	svc.now = func() time.Time { return time.UnixMilli(42) }
	ctx := context.Background()

	_, err := svc.Replace(ctx, sampleDataset())
	require.NoError(t, err)
	_, err = svc.Replace(ctx, entities.Dataset{})
	require.NoError(t, err)

	ds, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, ds.Tasks)
}

func TestDatasetService_DeleteFailureIsSwallowed(t *testing.T) {
	gw := &flakyGateway{MemoryGateway: blob.NewMemoryGateway()}
	svc, m := newDatasetService(gw, "token")
	ctx := context.Background()

	_, err := svc.Replace(ctx, sampleDataset())
	require.NoError(t, err)

	gw.deleteErr = errors.New("delete refused")
	ds := sampleDataset()
	ds.Tasks[0].Title = "newer"
	_, err = svc.Replace(ctx, ds)
	require.NoError(t, err)

	assert.Equal(t, 2, gw.Len(), "the stale object stays behind")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeleteFailures))

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "newer", got.Tasks[0].Title, "reads pick the newest object")
}

func TestDatasetService_PutFailure(t *testing.T) {
	gw := &flakyGateway{MemoryGateway: blob.NewMemoryGateway(), putErr: errors.New("quota exceeded")}
	svc, m := newDatasetService(gw, "token")

	_, err := svc.Replace(context.Background(), sampleDataset())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Writes.WithLabelValues("error")))
}

func TestDatasetService_MissingToken(t *testing.T) {
	gw := &flakyGateway{MemoryGateway: blob.NewMemoryGateway()}
	svc, _ := newDatasetService(gw, "")
	ctx := context.Background()

	assert.True(t, errors.Is(svc.EnsureConfigured(), entities.ErrMissingToken))

	_, err := svc.Get(ctx)
	assert.True(t, errors.Is(err, entities.ErrMissingToken))

	_, err = svc.Replace(ctx, sampleDataset())
	assert.True(t, errors.Is(err, entities.ErrMissingToken))
	assert.Equal(t, 0, gw.deletes)
	assert.Equal(t, 0, gw.Len())
}

func TestDatasetService_ListFailure(t *testing.T) {
	gw := &flakyGateway{MemoryGateway: blob.NewMemoryGateway(), listErr: errors.New("unreachable")}
	svc, m := newDatasetService(gw, "token")

	_, err := svc.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reads.WithLabelValues("error")))
}

func TestDatasetService_CorruptDocument(t *testing.T) {
	gw := &flakyGateway{MemoryGateway: blob.NewMemoryGateway()}
	svc, _ := newDatasetService(gw, "token")
	ctx := context.Background()

	_, err := svc.Replace(ctx, sampleDataset())
	require.NoError(t, err)

	gw.fetchBody = []byte("{not json")
	_, err = svc.Get(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode dataset")
}

func TestDatasetService_StoredDocumentMissingCollections(t *testing.T) {
	gw := &flakyGateway{MemoryGateway: blob.NewMemoryGateway()}
	svc, _ := newDatasetService(gw, "token")
	ctx := context.Background()

	_, err := svc.Replace(ctx, entities.Dataset{})
	require.NoError(t, err)

	gw.fetchBody = []byte(`{"tasks":[{"id":"a","title":"x","priority":"low"}]}`)
	ds, err := svc.Get(ctx)
	require.NoError(t, err)
	require.Len(t, ds.Tasks, 1)
	assert.Equal(t, []string{}, ds.Tasks[0].Tags)
	assert.NotNil(t, ds.Events)
}

func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func blobOps(logs *observer.ObservedLogs) []string {
	var ops []string
	for _, entry := range logs.All() {
		if op, ok := entry.ContextMap()["op"].(string); ok {
			ops = append(ops, op)
		}
	}
	return ops
}

func TestDatasetService_LogsEveryGatewayCall(t *testing.T) {
	log, logs := observedLogger()
	svc := NewDatasetService(blob.NewMemoryGateway(), config.BlobConfig{Token: "token", Prefix: "scheduler-data"}, log, nil)
	ctx := context.Background()

	_, err := svc.Replace(ctx, sampleDataset())
	require.NoError(t, err)
	_, err = svc.Replace(ctx, sampleDataset())
	require.NoError(t, err)
	_, err = svc.Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"list", "put", "list", "delete", "put", "list", "fetch"}, blobOps(logs))
}

func TestDatasetService_LogsFailedDeleteWithError(t *testing.T) {
	log, logs := observedLogger()
	gw := &flakyGateway{MemoryGateway: blob.NewMemoryGateway()}
	svc := NewDatasetService(gw, config.BlobConfig{Token: "token", Prefix: "scheduler-data"}, log, nil)
	ctx := context.Background()

	_, err := svc.Replace(ctx, sampleDataset())
	require.NoError(t, err)
	gw.deleteErr = errors.New("delete refused")
	_, err = svc.Replace(ctx, sampleDataset())
	require.NoError(t, err)

	failed := logs.FilterMessage("Blob operation failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "delete", failed[0].ContextMap()["op"])

	warned := logs.FilterMessage("Error deleting previous blob").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "delete refused", warned[0].ContextMap()["error"])
}
