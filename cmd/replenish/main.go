package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andresuchdata/autopo-replenishment/internal/app"
	"github.com/andresuchdata/autopo-replenishment/internal/config"
	"github.com/andresuchdata/autopo-replenishment/internal/domain"
	"github.com/andresuchdata/autopo-replenishment/internal/pipeline"
	"github.com/andresuchdata/autopo-replenishment/internal/storage"
	"github.com/andresuchdata/autopo-replenishment/pkg/logger"
	"github.com/urfave/cli/v2"
)

const (
	exitFailure    = 1
	exitValidation = 2
	exitLocked     = 3
	exitPartial    = 4
)

// exitCode maps a run outcome to the process exit status.
func exitCode(err error) int {
	var coder cli.ExitCoder
	switch {
	case err == nil:
		return 0
	case errors.As(err, &coder):
		return coder.ExitCode()
	case errors.Is(err, domain.ErrValidation):
		return exitValidation
	case errors.Is(err, domain.ErrRunInProgress):
		return exitLocked
	case errors.Is(err, domain.ErrPartialFailure):
		return exitPartial
	default:
		return exitFailure
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "replenish",
		Usage: "Compute inventory replenishment recommendations and alerts",
		Before: func(c *cli.Context) error {
			cfg := config.Load()
			logger.Configure(cfg.Log.Level, cfg.Log.Format)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run-analysis",
				Usage: "Analyze every active product of a source for one analysis date",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source",
						Usage: "Marketplace or channel identifier (required)",
					},
					&cli.StringFlag{
						Name:  "date",
						Usage: "Analysis date (YYYY-MM-DD), defaults to today (UTC)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Compute and report without writing recommendations or alerts",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Analyze at most N products (0 means all)",
					},
				},
				Action: runAnalysis,
			},
			{
				Name:  "list-exports",
				Usage: "List recommendation exports in object storage",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source",
						Usage: "Only list exports of this source",
					},
				},
				Action: listExports,
			},
		},
	}
}

func runAnalysis(c *cli.Context) error {
	date, err := pipeline.ParseAnalysisDate(c.String("date"))
	if err != nil {
		return cli.Exit(err.Error(), exitCode(err))
	}

	req := pipeline.RunRequest{
		Source:       c.String("source"),
		AnalysisDate: date,
		DryRun:       c.Bool("dry-run"),
		Limit:        c.Int("limit"),
	}
	if err := req.Validate(); err != nil {
		return cli.Exit(err.Error(), exitCode(err))
	}

	application, err := app.New(config.Load())
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	defer application.Close()

	summary, err := application.Runner.Run(c.Context, req)
	if summary != nil {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(summary); encErr != nil {
			logger.Log.Warn().Err(encErr).Msg("failed to print run summary")
		}
	}
	if err != nil {
		return cli.Exit(err.Error(), exitCode(err))
	}
	return nil
}

func listExports(c *cli.Context) error {
	cfg := config.Load()
	if !cfg.Export.Enabled {
		return cli.Exit("export storage is disabled; set EXPORT_ENABLED=true", exitValidation)
	}

	client, err := storage.NewMinioClient(cfg.Export)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	prefix := storage.ExportPrefix(strings.TrimSpace(c.String("source")))
	objects, err := client.ListObjects(c.Context, prefix)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	for _, obj := range objects {
		fmt.Fprintf(c.App.Writer, "%s\t%d\n", obj.Key, obj.Size)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		logger.Log.Error().Err(err).Msg("replenish failed")
		stop()
		os.Exit(exitCode(err))
	}
}
