package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/mudanza/internal/config"
	"github.com/dropDatabas3/mudanza/internal/ledger"
	"github.com/dropDatabas3/mudanza/internal/migrate"
	"github.com/dropDatabas3/mudanza/internal/observability/logger"
	"github.com/dropDatabas3/mudanza/internal/rate"
	"github.com/dropDatabas3/mudanza/internal/stream"
	"github.com/dropDatabas3/mudanza/internal/workos"
)

func migrateCmd(configPath *string) *cobra.Command {
	var (
		input       string
		ledgerPath  string
		skip        int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrar usuarios del export JSONL hacia WorkOS",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(*configPath)
			if err != nil {
				return err
			}
			if cfg.WorkOS.APIKey == "" {
				return fmt.Errorf("falta WORKOS_API_KEY (flag/env/.env)")
			}
			if concurrency > 0 {
				cfg.Migrate.Concurrency = concurrency
			}
			stopMetrics := startMetrics(cfg)
			defer stopMetrics()

			runID := uuid.NewString()[:8]
			log := logger.With(logger.Component("migrate"), logger.RunID(runID))

			// Cruce opcional contra el ledger: --skip es responsabilidad del
			// caller, acá solo avisamos si no cierra con lo ya confirmado.
			if cfg.Migrate.LedgerCheck {
				if n, err := ledger.CountLines(ledgerPath); err == nil && n != skip {
					log.Warn("skip does not match ledger line count",
						logger.Int("skip", skip), logger.Int("ledger_lines", n))
				}
			}

			wc := workos.New(cfg.WorkOS.BaseURL, cfg.WorkOS.APIKey, workosOptions(cfg)...)

			r, err := stream.Open(input, skip)
			if err != nil {
				return err
			}
			defer r.Close()

			led, err := ledger.OpenWriter(ledgerPath)
			if err != nil {
				return err
			}
			defer led.Close()

			eng := migrate.NewEngine(migrate.Params{
				Concurrency:       cfg.Migrate.Concurrency,
				DefaultRetryAfter: cfg.DefaultRetryAfter(),
				MaxRetries:        cfg.Migrate.MaxRetries,
				RunID:             runID,
			}, migrate.NewWorker(wc), led)

			stats, err := eng.Run(cmd.Context(), r)
			if stats != nil {
				fmt.Printf("completed %d/%d (created=%d updated=%d unresolved=%d parse_errors=%d skipped=%d)\n",
					stats.Completed(), stats.Total(),
					stats.Created.Load(), stats.Updated.Load(), stats.Unresolved.Load(),
					stats.ParseErrors, stats.Skipped)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Export JSONL de Auth0 (requerido)")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "migrated.jsonl", "Ledger append-only de resultados")
	cmd.Flags().IntVar(&skip, "skip", 0, "Registros a saltear (reanudación por offset)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Override del tope de concurrencia")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// workosOptions arma el presupuesto local de requests si está habilitado:
// Redis si hay addr (ventana compartida entre procesos), memoria si no.
func workosOptions(cfg *config.Config) []workos.Option {
	if !cfg.Rate.Enabled {
		return nil
	}
	var l rate.Limiter
	if cfg.Rate.Redis.Addr != "" {
		client := rdb.NewClient(&rdb.Options{
			Addr:        cfg.Rate.Redis.Addr,
			DB:          cfg.Rate.Redis.DB,
			DialTimeout: 3 * time.Second,
		})
		l = rate.NewRedisLimiter(client, cfg.Rate.Redis.Prefix, cfg.Rate.MaxRequests, cfg.RateWindow())
	} else {
		l = rate.NewMemoryLimiter(cfg.Rate.MaxRequests, cfg.RateWindow())
	}
	return []workos.Option{workos.WithRateGate(l)}
}
