package migration

import (
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		res, err := Migrate(conn)
		if err != nil {
			return err
		}
		log.Info("schema ready",
			zap.String("dialect", conn.Dialector.Name()),
			zap.Uint("version", res.Version),
			zap.Bool("auto_migrate", res.Auto),
		)

		if !cfg.Bootstrap.EnsureDefaultUser {
			return nil
		}
		user, err := seed.EnsureDefaultUser(conn, cfg.Bootstrap.UserName, cfg.Bootstrap.UserEmail)
		if err != nil {
			return err
		}
		log.Info("default user ready", zap.String("user_id", user.ID.String()))
		return nil
	}),
)
