package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/hsmazur/Taberna3/cmd/taberna/app"
	"github.com/hsmazur/Taberna3/configs"
	"github.com/hsmazur/Taberna3/internal/logging"
	"github.com/hsmazur/Taberna3/internal/shutdown"
)

func loadConfig(c *cli.Context) (configs.Config, error) {
	cfg, err := configs.Load(c.String("config-dir"), c.String("env"))
	if err != nil {
		return configs.Config{}, err
	}
	logging.Init(cfg.App.Name, cfg.App.LogFile, cfg.App.LogLevel)
	return cfg, nil
}

// withConfig runs fn with the loaded config and a context cancelled on SIGINT/SIGTERM.
func withConfig(fn func(ctx context.Context, cfg configs.Config) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		ctx, cancel := shutdown.WithSignals(c.Context)
		defer cancel()
		return fn(ctx, cfg)
	}
}

func main() {
	cliApp := &cli.App{
		Name:  "taberna",
		Usage: "food ordering API and background worker",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "directory holding base.yaml and <env>.yaml"},
			&cli.StringFlag{Name: "env", Value: "dev", EnvVars: []string{"APP_ENV"}, Usage: "dev | staging | prod"},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: withConfig(app.Serve),
			},
			{
				Name:   "worker",
				Usage:  "run the e-mail consumer, status command consumer and outbox relay",
				Action: withConfig(app.Work),
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back the database schema",
				Subcommands: []*cli.Command{
					{
						Name: "up",
						Action: withConfig(func(ctx context.Context, cfg configs.Config) error {
							return app.Migrate(ctx, cfg, true)
						}),
					},
					{
						Name: "down",
						Action: withConfig(func(ctx context.Context, cfg configs.Config) error {
							return app.Migrate(ctx, cfg, false)
						}),
					},
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
