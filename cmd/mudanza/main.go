// mudanza: migración bulk de usuarios Auth0 → WorkOS.
//
// Subcomandos:
//
//	migrate  - corre el engine de migración batch sobre un export JSONL
//	resolve  - resuelve grupos de cuentas duplicadas contra Auth0
//	sqlgen   - genera (y opcionalmente aplica) los UPDATE downstream
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/mudanza/internal/config"
	"github.com/dropDatabas3/mudanza/internal/metrics"
	"github.com/dropDatabas3/mudanza/internal/observability/logger"
)

func main() {
	// .env primero: las credenciales viven ahí en dev. Silencioso si falta.
	_ = godotenv.Load()

	var configPath string

	root := &cobra.Command{
		Use:           "mudanza",
		Short:         "Migración de usuarios Auth0 → WorkOS",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOr("MUDANZA_CONFIG", ""), "Path al YAML de configuración (opcional, env MUDANZA_CONFIG)")

	root.AddCommand(migrateCmd(&configPath))
	root.AddCommand(resolveCmd(&configPath))
	root.AddCommand(sqlgenCmd(&configPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// setup carga config, inicializa logger y métricas. Común a todos los
// subcomandos; se llama recién en RunE, con los flags ya parseados.
func setup(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "mudanza",
	})
	if err := metrics.Register(nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startMetrics levanta el status server si está habilitado. Retorna el
// shutdown (noop si está apagado).
func startMetrics(cfg *config.Config) func() {
	if !cfg.Metrics.Enabled {
		return func() {}
	}
	srv := metrics.NewServer(cfg.Metrics.Addr)
	errc := srv.Start()
	go func() {
		if err, ok := <-errc; ok && err != nil {
			logger.Named("metrics").Warn("status server failed", logger.Err(err))
		}
	}()
	logger.Named("metrics").Info("status server listening", logger.String("addr", cfg.Metrics.Addr))
	return func() { _ = srv.Shutdown() }
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
