package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/mudanza/internal/observability/logger"
	"github.com/dropDatabas3/mudanza/internal/sqlgen"
	"github.com/dropDatabas3/mudanza/internal/util/atomicwrite"
)

func sqlgenCmd(configPath *string) *cobra.Command {
	var (
		keepPath   string
		ledgerPath string
		outPath    string
		apply      bool
	)

	cmd := &cobra.Command{
		Use:   "sqlgen",
		Short: "Generar los UPDATE downstream desde keep + ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(*configPath)
			if err != nil {
				return err
			}

			res, err := sqlgen.Generate(keepPath, ledgerPath, sqlgen.Params{
				Table:     cfg.SQLGen.Table,
				IDColumn:  cfg.SQLGen.IDColumn,
				SetColumn: cfg.SQLGen.SetColumn,
			})
			if err != nil {
				return err
			}

			if err := atomicwrite.AtomicWriteFile(outPath, res.SQL, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s: %d statements, %d skipped\n", outPath, res.Statements, res.Unmapped)

			if apply {
				logger.S().Infow("applying generated sql", "path", outPath, "statements", res.Statements)
				return sqlgen.Apply(cmd.Context(), cfg.SQLGen.DSN, res.SQL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&keepPath, "keep", "decisions/keep.jsonl", "Decisiones keep (JSONL)")
	cmd.Flags().StringVar(&ledgerPath, "ledger", "migrated.jsonl", "Ledger de migración (mapping auth0→workos)")
	cmd.Flags().StringVar(&outPath, "out", "updates.sql", "Archivo SQL generado")
	cmd.Flags().BoolVar(&apply, "apply", false, "Ejecutar el SQL generado contra Postgres (SQLGEN_DSN)")
	return cmd
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
