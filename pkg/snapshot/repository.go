package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/hospital-analytics/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("snapshot not found")

const defaultListLimit = 50

type Repository interface {
	Create(ctx context.Context, snap *models.ReportSnapshot) error
	MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error
	Complete(ctx context.Context, id uuid.UUID, payload []byte, at time.Time) error
	Fail(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	Get(ctx context.Context, id uuid.UUID) (models.ReportSnapshot, error)
	List(ctx context.Context, limit int) ([]models.ReportSnapshot, error)
}

type snapshotModel struct {
	ID           uuid.UUID      `gorm:"primaryKey;column:id"`
	Report       string         `gorm:"column:report;index"`
	Params       datatypes.JSON `gorm:"column:params"`
	Status       string         `gorm:"column:status"`
	Payload      datatypes.JSON `gorm:"column:payload"`
	ErrorMessage string         `gorm:"column:error_message"`
	RequestedBy  string         `gorm:"column:requested_by"`
	CreatedAt    time.Time      `gorm:"column:created_at;index"`
	StartedAt    *time.Time     `gorm:"column:started_at"`
	CompletedAt  *time.Time     `gorm:"column:completed_at"`
}

func (snapshotModel) TableName() string {
	return "report_snapshots"
}

func modelToDomain(model *snapshotModel) models.ReportSnapshot {
	params := map[string]string{}
	if len(model.Params) > 0 {
		_ = json.Unmarshal(model.Params, &params)
	}
	snap := models.ReportSnapshot{
		ID:           model.ID,
		Report:       model.Report,
		Params:       params,
		Status:       model.Status,
		ErrorMessage: model.ErrorMessage,
		RequestedBy:  model.RequestedBy,
		CreatedAt:    model.CreatedAt,
		StartedAt:    model.StartedAt,
		CompletedAt:  model.CompletedAt,
	}
	if len(model.Payload) > 0 {
		snap.Payload = json.RawMessage(model.Payload)
	}
	return snap
}

// GormRepository keeps snapshots in PostgreSQL with JSON columns for the
// parameters and the rendered payload.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&snapshotModel{})
}

func (r *GormRepository) Create(ctx context.Context, snap *models.ReportSnapshot) error {
	params, err := json.Marshal(snap.Params)
	if err != nil {
		return fmt.Errorf("encoding snapshot params: %w", err)
	}
	model := &snapshotModel{
		ID:          snap.ID,
		Report:      snap.Report,
		Params:      datatypes.JSON(params),
		Status:      snap.Status,
		RequestedBy: snap.RequestedBy,
		CreatedAt:   snap.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *GormRepository) update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&snapshotModel{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":     models.SnapshotRunning,
		"started_at": at,
	})
}

func (r *GormRepository) Complete(ctx context.Context, id uuid.UUID, payload []byte, at time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":        models.SnapshotCompleted,
		"payload":       datatypes.JSON(payload),
		"completed_at":  at,
		"error_message": "",
	})
}

func (r *GormRepository) Fail(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":        models.SnapshotFailed,
		"error_message": reason,
		"completed_at":  at,
	})
}

func (r *GormRepository) Get(ctx context.Context, id uuid.UUID) (models.ReportSnapshot, error) {
	var model snapshotModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ReportSnapshot{}, ErrNotFound
	}
	if err != nil {
		return models.ReportSnapshot{}, err
	}
	return modelToDomain(&model), nil
}

func (r *GormRepository) List(ctx context.Context, limit int) ([]models.ReportSnapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var records []snapshotModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	result := make([]models.ReportSnapshot, 0, len(records))
	for i := range records {
		result = append(result, modelToDomain(&records[i]))
	}
	return result, nil
}

// MemoryRepository is used with the memory store driver and in tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	snaps map[uuid.UUID]models.ReportSnapshot
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{snaps: make(map[uuid.UUID]models.ReportSnapshot)}
}

func (r *MemoryRepository) Create(_ context.Context, snap *models.ReportSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps[snap.ID] = *snap
	return nil
}

func (r *MemoryRepository) mutate(id uuid.UUID, fn func(*models.ReportSnapshot)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snaps[id]
	if !ok {
		return ErrNotFound
	}
	fn(&snap)
	r.snaps[id] = snap
	return nil
}

func (r *MemoryRepository) MarkRunning(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.mutate(id, func(s *models.ReportSnapshot) {
		s.Status = models.SnapshotRunning
		s.StartedAt = &at
	})
}

func (r *MemoryRepository) Complete(_ context.Context, id uuid.UUID, payload []byte, at time.Time) error {
	return r.mutate(id, func(s *models.ReportSnapshot) {
		s.Status = models.SnapshotCompleted
		s.Payload = append(json.RawMessage(nil), payload...)
		s.ErrorMessage = ""
		s.CompletedAt = &at
	})
}

func (r *MemoryRepository) Fail(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	return r.mutate(id, func(s *models.ReportSnapshot) {
		s.Status = models.SnapshotFailed
		s.ErrorMessage = reason
		s.CompletedAt = &at
	})
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (models.ReportSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.snaps[id]
	if !ok {
		return models.ReportSnapshot{}, ErrNotFound
	}
	return snap, nil
}

func (r *MemoryRepository) List(_ context.Context, limit int) ([]models.ReportSnapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	r.mu.RLock()
	out := make([]models.ReportSnapshot, 0, len(r.snaps))
	for _, s := range r.snaps {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ Repository = (*GormRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
