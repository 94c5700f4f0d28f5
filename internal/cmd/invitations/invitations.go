// Package invitations parses invitations command flags and launches the
// campaign engine runtime.
package invitations

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/surveycast/internal/platform/cmd"
	"github.com/louisbranch/surveycast/internal/services/invitations/app"
)

// Config holds invitations command configuration.
type Config struct {
	Port           int           `env:"SURVEYCAST_INVITATIONS_PORT" envDefault:"8091"`
	DBPath         string        `env:"SURVEYCAST_INVITATIONS_DB_PATH" envDefault:"data/invitations.db"`
	BaseURL        string        `env:"SURVEYCAST_INVITATIONS_BASE_URL" envDefault:"http://localhost:8091"`
	Concurrency    int           `env:"SURVEYCAST_INVITATIONS_CONCURRENCY" envDefault:"5"`
	MaxAttempts    int           `env:"SURVEYCAST_INVITATIONS_MAX_ATTEMPTS" envDefault:"5"`
	SweepInterval  time.Duration `env:"SURVEYCAST_INVITATIONS_SWEEP_INTERVAL" envDefault:"15m"`
	SweepBatchSize int           `env:"SURVEYCAST_INVITATIONS_SWEEP_BATCH_SIZE" envDefault:"10"`
	SweepPacing    time.Duration `env:"SURVEYCAST_INVITATIONS_SWEEP_PACING" envDefault:"1s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The invitations health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The invitations SQLite database path")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Public base URL used to build invitation links")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Maximum in-flight sends per dispatch")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Send attempts per entry before abandonment (0 = retry forever)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Interval between cross-survey sweep runs")
	fs.IntVar(&cfg.SweepBatchSize, "sweep-batch-size", cfg.SweepBatchSize, "Sweep batch size")
	fs.DurationVar(&cfg.SweepPacing, "sweep-pacing", cfg.SweepPacing, "Pause between sweep batches")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the invitations runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceInvitations, func(context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			Port:           cfg.Port,
			DBPath:         cfg.DBPath,
			BaseURL:        cfg.BaseURL,
			Concurrency:    cfg.Concurrency,
			MaxAttempts:    cfg.MaxAttempts,
			SweepInterval:  cfg.SweepInterval,
			SweepBatchSize: cfg.SweepBatchSize,
			SweepPacing:    cfg.SweepPacing,
		})
	})
}
