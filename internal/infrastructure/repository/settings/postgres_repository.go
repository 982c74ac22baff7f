// Package settings implements the settings repository on PostgreSQL.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "concierge-server/internal/domain/settings"
	"concierge-server/internal/infrastructure/database/entities"
)

const automationKey = "automation_enabled"

// Repository persists operator settings.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a settings repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ domain.Repository = (*Repository)(nil)

// GetAutomationSwitch reads the global automation switch. A missing row
// means automation has never been toggled off and defaults to enabled.
func (r *Repository) GetAutomationSwitch(ctx context.Context) (domain.AutomationSwitch, error) {
	var entity entities.Setting
	err := r.db.WithContext(ctx).Where("key = ?", automationKey).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.AutomationSwitch{Enabled: true}, nil
	}
	if err != nil {
		return domain.AutomationSwitch{}, fmt.Errorf("read automation switch: %w", err)
	}
	return domain.AutomationSwitch{
		Enabled:   entity.Value == "true",
		ToggledAt: entity.UpdatedAt,
	}, nil
}

// SetAutomationSwitch writes the global automation switch.
func (r *Repository) SetAutomationSwitch(ctx context.Context, enabled bool) (domain.AutomationSwitch, error) {
	value := "false"
	if enabled {
		value = "true"
	}
	entity := entities.Setting{Key: automationKey, Value: value, UpdatedAt: time.Now()}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entity).Error
	if err != nil {
		return domain.AutomationSwitch{}, fmt.Errorf("write automation switch: %w", err)
	}

	return domain.AutomationSwitch{Enabled: enabled, ToggledAt: entity.UpdatedAt}, nil
}
