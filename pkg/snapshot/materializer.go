// Package snapshot renders reports in the background and keeps the results,
// so a view can be compared against what it showed earlier.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/hospital-analytics/pkg/analytics/views"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/logger"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"github.com/synaptica-ai/hospital-analytics/pkg/observability/metrics"
)

var ErrUnknownReport = views.ErrUnknownReport

// statusTimeout bounds each status write. Writes get their own deadline so a
// report that ran out of time can still be recorded as failed.
const statusTimeout = 5 * time.Second

// Runner computes a named report.
type Runner interface {
	Run(ctx context.Context, name string, params views.Params) (views.Report, error)
}

type Request struct {
	Report      string            `json:"report"`
	Params      map[string]string `json:"params,omitempty"`
	RequestedBy string            `json:"-"`
}

type Materializer struct {
	repo    Repository
	runner  Runner
	workers chan struct{}
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewMaterializer(repo Repository, runner Runner, maxWorkers int, timeout time.Duration) *Materializer {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Materializer{
		repo:    repo,
		runner:  runner,
		workers: make(chan struct{}, maxWorkers),
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue records a queued snapshot and renders it on a worker.
func (m *Materializer) Enqueue(ctx context.Context, req Request) (models.ReportSnapshot, error) {
	name := strings.TrimSpace(req.Report)
	if !views.HasReport(name) {
		return models.ReportSnapshot{}, fmt.Errorf("%w: %q", ErrUnknownReport, name)
	}

	snap := models.ReportSnapshot{
		ID:          uuid.New(),
		Report:      name,
		Params:      req.Params,
		Status:      models.SnapshotQueued,
		RequestedBy: req.RequestedBy,
		CreatedAt:   m.now(),
	}
	if err := m.repo.Create(ctx, &snap); err != nil {
		return models.ReportSnapshot{}, fmt.Errorf("creating snapshot: %w", err)
	}

	m.wg.Add(1)
	go m.run(snap.ID, name, views.Params(req.Params))

	return snap, nil
}

func (m *Materializer) Get(ctx context.Context, id uuid.UUID) (models.ReportSnapshot, error) {
	return m.repo.Get(ctx, id)
}

func (m *Materializer) List(ctx context.Context, limit int) ([]models.ReportSnapshot, error) {
	return m.repo.List(ctx, limit)
}

// Wait blocks until every enqueued snapshot has finished.
func (m *Materializer) Wait() {
	m.wg.Wait()
}

func (m *Materializer) run(id uuid.UUID, name string, params views.Params) {
	defer m.wg.Done()
	m.workers <- struct{}{}
	defer func() { <-m.workers }()

	log := logger.Log.WithFields(map[string]interface{}{"snapshot_id": id.String(), "report": name})

	if err := m.write(func(ctx context.Context) error { return m.repo.MarkRunning(ctx, id, m.now()) }); err != nil {
		log.WithError(err).Warn("Failed to mark snapshot running")
	}

	report, err := m.render(name, params)
	if err != nil {
		m.fail(id, err)
		return
	}
	payload, err := json.Marshal(report.Data)
	if err != nil {
		m.fail(id, fmt.Errorf("encoding report: %w", err))
		return
	}
	if err := m.write(func(ctx context.Context) error { return m.repo.Complete(ctx, id, payload, m.now()) }); err != nil {
		log.WithError(err).Error("Failed to store snapshot")
		metrics.ObserveSnapshot(models.SnapshotFailed)
		return
	}
	metrics.ObserveSnapshot(models.SnapshotCompleted)
	log.Info("Snapshot completed")
}

func (m *Materializer) render(name string, params views.Params) (views.Report, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	return m.runner.Run(ctx, name, params)
}

func (m *Materializer) write(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	return fn(ctx)
}

func (m *Materializer) fail(id uuid.UUID, err error) {
	logger.Log.WithError(err).WithField("snapshot_id", id.String()).Error("Report snapshot failed")
	metrics.ObserveSnapshot(models.SnapshotFailed)
	if uerr := m.write(func(ctx context.Context) error { return m.repo.Fail(ctx, id, err.Error(), m.now()) }); uerr != nil {
		logger.Log.WithError(uerr).Warn("Failed to record snapshot failure")
	}
}
