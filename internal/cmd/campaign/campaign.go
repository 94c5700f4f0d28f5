// Package campaign runs the cross-survey invitation sweep as a one-shot
// maintenance command.
package campaign

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	entrypoint "github.com/louisbranch/surveycast/internal/platform/cmd"
	"github.com/louisbranch/surveycast/internal/services/invitations/app"
	"github.com/louisbranch/surveycast/internal/services/invitations/domain"
	"github.com/louisbranch/surveycast/internal/services/invitations/mail"
	"github.com/louisbranch/surveycast/internal/services/invitations/storage/sqlite"
	"github.com/louisbranch/surveycast/internal/services/invitations/token"
)

// Config holds campaign command configuration.
type Config struct {
	DBPath      string        `env:"SURVEYCAST_INVITATIONS_DB_PATH" envDefault:"data/invitations.db"`
	BaseURL     string        `env:"SURVEYCAST_INVITATIONS_BASE_URL" envDefault:"http://localhost:8091"`
	MaxAttempts int           `env:"SURVEYCAST_INVITATIONS_MAX_ATTEMPTS" envDefault:"5"`
	Pacing      time.Duration `env:"SURVEYCAST_INVITATIONS_SWEEP_PACING" envDefault:"1s"`

	SurveyID  string
	BatchSize int
	Pending   bool
	DryRun    bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The invitations SQLite database path")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Public base URL used to build invitation links")
	fs.StringVar(&cfg.SurveyID, "survey", "", "Restrict the sweep to one survey ID")
	fs.IntVar(&cfg.BatchSize, "batch-size", 0, "Sweep batch size (0 = configured default)")
	fs.BoolVar(&cfg.Pending, "pending", false, "Print the pending invitation count and exit")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Log invitation mail instead of delivering it")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the campaign command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open invitations sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close invitations sqlite store: %v", closeErr)
		}
	}()

	if cfg.Pending {
		pendingCount, err := store.CountPendingEntries(ctx)
		if err != nil {
			return fmt.Errorf("count pending invitations: %w", err)
		}
		fmt.Fprintf(out, "pending invitations: %d\n", pendingCount)
		return nil
	}

	tokenConfig, err := token.LoadConfigFromEnv(nil)
	if err != nil {
		return fmt.Errorf("load access token config: %w", err)
	}
	tokenIssuer, err := token.NewIssuer(tokenConfig)
	if err != nil {
		return fmt.Errorf("build access token issuer: %w", err)
	}
	sender, err := buildSender(cfg.DryRun)
	if err != nil {
		return err
	}

	engine := app.NewEngine(store, app.EngineConfig{
		BaseURL:        cfg.BaseURL,
		MaxAttempts:    cfg.MaxAttempts,
		SweepBatchSize: cfg.BatchSize,
		SweepPacing:    cfg.Pacing,
	}, sender, tokenIssuer, nil, nil)

	report, err := engine.Sweep.Run(ctx, domain.SweepOptions{
		SurveyID:  cfg.SurveyID,
		BatchSize: cfg.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("run invitation sweep: %w", err)
	}

	fmt.Fprintf(out, "sweep complete: processed=%d sent=%d failed=%d abandoned=%d\n",
		report.TotalProcessed, report.SentCount, report.FailedCount, report.AbandonedCount)
	for _, result := range report.Results {
		if result.Status == domain.StatusSent {
			continue
		}
		fmt.Fprintf(errOut, "  survey=%s respondent=%s status=%s error=%s\n",
			result.SurveyID, result.RespondentID, domain.StatusLabel(result.Status), result.Error)
	}
	return nil
}

func buildSender(dryRun bool) (domain.Sender, error) {
	if dryRun {
		return mail.NewLogSender(nil), nil
	}
	smtpConfig, err := mail.LoadSMTPConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load smtp config: %w", err)
	}
	if !smtpConfig.Configured() {
		return mail.NewLogSender(nil), nil
	}
	sender, err := mail.NewSMTPSender(smtpConfig)
	if err != nil {
		return nil, fmt.Errorf("build smtp sender: %w", err)
	}
	return sender, nil
}
