// Command reconcile sweeps the media corpus: it classifies every record,
// repairs or purges the broken ones, and runs the related batch operations
// (description sync, id backfill, origin rewrite, duplicate collapse).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mediaplan/medialib/pkg/medialib"
	"github.com/mediaplan/medialib/pkg/medialib/config"
	"github.com/mediaplan/medialib/pkg/medialib/migrate"
	"github.com/mediaplan/medialib/pkg/medialib/reconcile"
)

type flags struct {
	ownerID     string
	batchSize   int
	dryRun      bool
	graceWindow time.Duration

	syncDescriptions bool
	backfillIDs      bool
	dedupe           bool

	retiredOrigins string
	currentOrigin  string

	skipSweep bool
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var f flags
	flag.StringVar(&f.ownerID, "owner", "", "restrict the sweep to one owner id")
	flag.IntVar(&f.batchSize, "batch-size", 100, "records loaded per page")
	flag.BoolVar(&f.dryRun, "dry-run", false, "report actions without applying them")
	flag.DurationVar(&f.graceWindow, "grace-window", reconcile.DefaultGraceWindow,
		"age below which byte-less records are flagged instead of purged")
	flag.BoolVar(&f.syncDescriptions, "sync-descriptions", false, "prune and backfill the description side-store")
	flag.BoolVar(&f.backfillIDs, "backfill-ids", false, "assign ids to legacy records lacking one")
	flag.BoolVar(&f.dedupe, "dedupe", false, "collapse records sharing owner and filename")
	flag.StringVar(&f.retiredOrigins, "rewrite-from", "", "comma-separated retired origins to rewrite")
	flag.StringVar(&f.currentOrigin, "rewrite-to", "", "current origin rewritten URLs point at")
	flag.BoolVar(&f.skipSweep, "skip-sweep", false, "run only the selected batch operations")
	flag.Parse()

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		fatal(logger, "load configuration", err)
	}

	ctx := context.Background()
	components, err := cfg.BuildComponents(ctx)
	if err != nil {
		fatal(logger, "build components", err)
	}

	var retired []string
	if f.retiredOrigins != "" {
		for _, origin := range strings.Split(f.retiredOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				retired = append(retired, origin)
			}
		}
	}

	detector, err := reconcile.NewDetector(reconcile.Config{
		Repository:     components.Repository,
		Source:         medialib.NewSourceResolver(components.Stores),
		Descriptions:   components.Descriptions,
		GraceWindow:    f.graceWindow,
		RetiredOrigins: retired,
		Logger:         logger,
	})
	if err != nil {
		fatal(logger, "build detector", err)
	}

	driver, err := migrate.NewDriver(components.Repository, detector, logger)
	if err != nil {
		fatal(logger, "build driver", err)
	}

	if f.backfillIDs {
		if _, err := driver.BackfillIDs(ctx); err != nil {
			fatal(logger, "backfill ids", err)
		}
	}

	if len(retired) > 0 && f.currentOrigin != "" {
		if _, err := driver.RewriteOrigins(ctx, retired, f.currentOrigin); err != nil {
			fatal(logger, "rewrite origins", err)
		}
	}

	if f.dedupe {
		if _, err := driver.Deduplicate(ctx); err != nil {
			fatal(logger, "deduplicate", err)
		}
	}

	if !f.skipSweep {
		result, err := driver.Run(ctx, migrate.Options{
			OwnerID:   f.ownerID,
			BatchSize: f.batchSize,
			DryRun:    f.dryRun,
			OnProgress: func(processed int64) {
				logger.Info("sweep progress", "processed", processed)
			},
		})
		if err != nil {
			fatal(logger, "reconciliation sweep", err)
		}
		if len(result.FailedIDs) > 0 {
			logger.Warn("records with errors", "ids", strings.Join(result.FailedIDs, ","))
		}
	}

	if f.syncDescriptions {
		if _, err := driver.SyncDescriptions(ctx); err != nil {
			fatal(logger, "sync descriptions", err)
		}
	}

	logger.Info("reconcile finished")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
