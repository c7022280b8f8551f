package app

import (
	"github.com/talkincode/wagate/internal/domain"
	"go.uber.org/zap"
)

type settingSeed struct {
	Type        string
	Name        string
	Default     func(a *Application) string
	Description string
}

var settingSeeds = []settingSeed{
	{
		Type:        domain.ConfigTypeWebhook,
		Name:        domain.ConfigNameURL,
		Default:     func(a *Application) string { return a.appConfig.Webhook.URL },
		Description: "Incoming message webhook URL, empty disables forwarding",
	},
}

// checkSettings seeds missing sys_config rows from the loaded configuration.
func (a *Application) checkSettings() {
	for sortid, seed := range settingSeeds {
		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", seed.Type, seed.Name).
			Count(&count)
		if count > 0 {
			continue
		}
		value := seed.Default(a)
		if err := a.gormDB.Create(&domain.SysConfig{
			Sort:   sortid,
			Type:   seed.Type,
			Name:   seed.Name,
			Value:  value,
			Remark: seed.Description,
		}).Error; err != nil {
			zap.L().Error("failed to initialize config", zap.String("type", seed.Type), zap.String("name", seed.Name), zap.Error(err))
			continue
		}
		zap.L().Info("initialized config",
			zap.String("key", seed.Type+"."+seed.Name),
			zap.String("default", value))
	}
}
