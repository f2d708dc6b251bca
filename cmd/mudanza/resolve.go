package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/mudanza/internal/auth0"
	"github.com/dropDatabas3/mudanza/internal/dupes"
	"github.com/dropDatabas3/mudanza/internal/ledger"
	"github.com/dropDatabas3/mudanza/internal/observability/logger"
	"github.com/dropDatabas3/mudanza/internal/util/atomicwrite"
)

func resolveCmd(configPath *string) *cobra.Command {
	var (
		input       string
		outDir      string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolver grupos de cuentas duplicadas contra Auth0",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth0.Domain == "" || cfg.Auth0.Token == "" {
				return fmt.Errorf("faltan AUTH0_DOMAIN / AUTH0_MGMT_TOKEN (flag/env/.env)")
			}
			if concurrency > 0 {
				cfg.Migrate.Concurrency = concurrency
			}
			stopMetrics := startMetrics(cfg)
			defer stopMetrics()

			runID := uuid.NewString()[:8]
			log := logger.With(logger.Component("resolve"), logger.RunID(runID))

			groups, err := dupes.ReadGroups(input)
			if err != nil {
				return err
			}
			log.Info("candidate groups loaded", logger.Count(len(groups)), logger.Path(input))

			// Preflight: con muchos grupos una corrida puede tardar; mejor
			// enterarse ahora de que el token no llega al final.
			auth0.WarnIfExpiring(cfg.Auth0.Token, estimateRun(len(groups), cfg.Migrate.Concurrency))

			a0 := auth0.New(cfg.Auth0.Domain, cfg.Auth0.Token,
				auth0.WithCacheTTL(cfg.Auth0CacheTTL()))

			sinks, closeSinks, err := openSinks(outDir)
			if err != nil {
				return err
			}
			defer closeSinks()

			res := dupes.NewResolver(a0, dupes.Params{
				Concurrency:       cfg.Migrate.Concurrency,
				DefaultRetryAfter: cfg.DefaultRetryAfter(),
				MaxRetries:        cfg.Migrate.MaxRetries,
				RunID:             runID,
			}, sinks)

			sum, err := res.Run(cmd.Context(), groups)
			if err != nil {
				return err
			}

			sumPath := filepath.Join(outDir, "summary.json")
			if err := atomicwrite.AtomicWriteJSON(sumPath, sum, 0o644); err != nil {
				return err
			}
			b, _ := json.Marshal(sum)
			fmt.Println(string(b))
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "CSV de candidatos duplicados (requerido)")
	cmd.Flags().StringVar(&outDir, "out-dir", "decisions", "Directorio de salida (keep/manual_review/skip + summary)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Override del tope de concurrencia")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// openSinks crea los tres destinos disjuntos de decisiones.
func openSinks(dir string) (dupes.Sinks, func(), error) {
	var s dupes.Sinks
	names := []struct {
		w    **ledger.Writer
		file string
	}{
		{&s.Keep, "keep.jsonl"},
		{&s.ManualReview, "manual_review.jsonl"},
		{&s.Skip, "skip.jsonl"},
	}
	var opened []*ledger.Writer
	closeAll := func() {
		for _, w := range opened {
			_ = w.Close()
		}
	}
	if err := ensureDir(dir); err != nil {
		return s, nil, err
	}
	for _, n := range names {
		w, err := ledger.OpenWriter(filepath.Join(dir, n.file))
		if err != nil {
			closeAll()
			return s, nil, err
		}
		*n.w = w
		opened = append(opened, w)
	}
	return s, closeAll, nil
}

// estimateRun: heurística grosera (1s por grupo bajo el tope) solo para el
// warning de expiración del token.
func estimateRun(groups, concurrency int) time.Duration {
	if concurrency < 1 {
		concurrency = 1
	}
	return time.Duration(groups/concurrency+1) * time.Second
}
