package app

import (
	"errors"
	"strings"

	"github.com/talkincode/wagate/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GetSettingsStringValue reads a sys_config value, empty when unset.
func (a *Application) GetSettingsStringValue(category, key string) string {
	var cfg domain.SysConfig
	err := a.gormDB.Where("type = ? and name = ?", category, key).First(&cfg).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			zap.L().Warn("read setting failed",
				zap.String("type", category), zap.String("name", key), zap.Error(err))
		}
		return ""
	}
	return strings.TrimSpace(cfg.Value)
}

// SaveSetting creates or updates a sys_config value.
func (a *Application) SaveSetting(category, key, value string) error {
	return a.gormDB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", category, key).
			Update("value", value)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		return tx.Create(&domain.SysConfig{Type: category, Name: key, Value: value}).Error
	})
}
