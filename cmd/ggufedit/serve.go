package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/ggufedit/internal/api"
	"github.com/samcharles93/ggufedit/internal/editor"
	"github.com/samcharles93/ggufedit/internal/logger"
	"github.com/samcharles93/ggufedit/internal/metrics"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		root        string
		readTimeout time.Duration
		withMetrics bool
		maxBody     int64
		settings    updateSettings
	)

	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve the GGUF files of a directory over a REST API",
		Before: setup,
		Flags: append(updateFlags(&settings),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.StringFlag{
				Name:        "root",
				Usage:       "directory of .gguf files to serve",
				Value:       ".",
				Destination: &root,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.BoolFlag{
				Name:        "metrics",
				Usage:       "expose Prometheus metrics at /metrics",
				Value:       true,
				Destination: &withMetrics,
			},
			&cli.Int64Flag{
				Name:        "max-body",
				Usage:       "maximum update request size in bytes",
				Value:       api.DefaultMaxBodyBytes,
				Destination: &maxBody,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyUpdateConfig(cmd, appConfig, &settings)
			applyServeConfig(cmd, appConfig, &addr, &root, &withMetrics)

			cfg := api.Config{
				Root: root,
				Editor: editor.Options{
					NoInsert:     settings.noInsert,
					ForceRewrite: settings.forceRewrite,
					Backup:       settings.backup,
					BackupSuffix: settings.backupSuffix,
				},
				MaxBodyBytes: maxBody,
				Logger:       log,
			}
			if withMetrics {
				m := metrics.New()
				cfg.Editor.Metrics = m
				cfg.MetricsHandler = m.Handler()
			}
			server := api.NewServer(cfg)

			e := echo.New()
			e.Use(middleware.RequestID())
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "root", root, "metrics", withMetrics)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			if err := sc.Start(ctx, e); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fail(err)
			}
			return nil
		},
	}
}
