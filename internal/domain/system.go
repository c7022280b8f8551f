package domain

import (
	"time"
)

// SysConfig is a runtime setting that can be changed through the API and
// survives restarts. (type, name) is unique.
type SysConfig struct {
	ID        int64     `json:"id,string"`
	Sort      int       `json:"sort"`
	Type      string    `gorm:"size:64;uniqueIndex:idx_sys_config_key" json:"type"`
	Name      string    `gorm:"size:128;uniqueIndex:idx_sys_config_key" json:"name"`
	Value     string    `json:"value"`
	Remark    string    `json:"remark"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SysConfig) TableName() string {
	return "sys_config"
}

// Setting keys.
const (
	ConfigTypeWebhook = "webhook"
	ConfigNameURL     = "url"
)
