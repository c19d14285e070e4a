package app

import (
	"context"

	"github.com/hsmazur/Taberna3/configs"
	"github.com/hsmazur/Taberna3/internal/adapter/repo"
	"github.com/hsmazur/Taberna3/internal/bootstrap"
	"github.com/hsmazur/Taberna3/internal/logging"
)

func Migrate(ctx context.Context, cfg configs.Config, up bool) error {
	db, err := bootstrap.OpenMySQL(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := repo.NewMigrator(db.DB)
	if err != nil {
		return err
	}
	if up {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil {
		return err
	}
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	logging.New("migrate").Info("schema migrated", "up", up, "version", v, "dirty", dirty)
	return nil
}
