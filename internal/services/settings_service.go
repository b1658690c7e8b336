package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pulsekeep/pulsekeep/internal/app_interfaces"
	"github.com/pulsekeep/pulsekeep/internal/models"
)

var ErrNoSuchSetting = errors.New("no such setting")

var _ app_interfaces.SettingsService = (*SettingsService)(nil)

// SettingsService is the opaque key/value passthrough over the settings
// table. Values are arbitrary JSON documents stored as-is.
type SettingsService struct {
	db *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

func (s *SettingsService) Get(ctx context.Context, key string) ([]byte, error) {
	var row models.Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSuchSetting
	}
	if err != nil {
		return nil, err
	}
	return []byte(row.Value), nil
}

func (s *SettingsService) Set(ctx context.Context, key string, value []byte) error {
	row := models.Setting{
		Key:       key,
		Value:     datatypes.JSON(value),
		UpdatedAt: time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

// Delete removes a setting; deleting a missing key is not an error.
func (s *SettingsService) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.Setting{}).Error
}
