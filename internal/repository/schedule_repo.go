package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/domain"
	"gorm.io/gorm"
)

// ScheduleRepository handles database operations for outreach schedules
type ScheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Upsert creates or updates the schedule of a tenant
func (r *ScheduleRepository) Upsert(ctx context.Context, req *domain.UpsertScheduleRequest) (*domain.Schedule, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("tenant ID cannot be empty")
	}
	if !req.Frequency.Valid() {
		return nil, fmt.Errorf("invalid schedule frequency %q: %w", req.Frequency, domain.ErrInvariant)
	}

	var schedule domain.Schedule
	err := r.db.WithContext(ctx).Where("tenant_id = ?", req.TenantID).First(&schedule).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		schedule = domain.Schedule{TenantID: req.TenantID, IsActive: true}
	case err != nil:
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}

	schedule.Frequency = req.Frequency
	if req.IsActive != nil {
		schedule.IsActive = *req.IsActive
	}

	if err := r.db.WithContext(ctx).Save(&schedule).Error; err != nil {
		return nil, fmt.Errorf("failed to save schedule: %w", err)
	}
	return &schedule, nil
}

// GetByTenant retrieves the schedule of a tenant, or nil when none exists
func (r *ScheduleRepository) GetByTenant(ctx context.Context, tenantID string) (*domain.Schedule, error) {
	var schedule domain.Schedule
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&schedule).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

// DueSchedules returns the active schedules whose next run has arrived.
func (r *ScheduleRepository) DueSchedules(ctx context.Context, now time.Time) ([]*domain.Schedule, error) {
	var schedules []*domain.Schedule
	if err := r.db.WithContext(ctx).
		Where("is_active = ? AND frequency <> ?", true, domain.FrequencyDisabled).
		Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	due := make([]*domain.Schedule, 0, len(schedules))
	for _, s := range schedules {
		if s.Due(now) {
			due = append(due, s)
		}
	}
	return due, nil
}

// MarkSent advances last_sent from prev to sentAt only when the stored value
// still equals prev, so two schedulers racing the same tenant produce at most
// one enqueue. It reports whether this caller won the advance.
func (r *ScheduleRepository) MarkSent(ctx context.Context, tenantID string, prev *time.Time, sentAt time.Time) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&domain.Schedule{}).
		Where("tenant_id = ?", tenantID)
	if prev == nil {
		query = query.Where("last_sent IS NULL")
	} else {
		query = query.Where("last_sent = ?", *prev)
	}

	result := query.Updates(map[string]interface{}{
		"last_sent":  sentAt,
		"updated_at": time.Now().UTC(),
	})
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark schedule sent: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
