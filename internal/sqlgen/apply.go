package sqlgen

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/mudanza/internal/observability/logger"
)

// Apply ejecuta el SQL generado contra Postgres en un solo Exec (el texto ya
// viene envuelto en BEGIN/COMMIT). Pensado para el flag --apply de sqlgen.
func Apply(ctx context.Context, dsn string, sql []byte) error {
	if dsn == "" {
		return fmt.Errorf("sqlgen apply: missing DSN (sqlgen.dsn / SQLGEN_DSN)")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("pgxpool: %w", err)
	}
	defer pool.Close()

	start := time.Now()
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("exec generated sql: %w", err)
	}
	logger.Named("sqlgen").Info("applied generated sql",
		logger.Duration(time.Since(start).Truncate(time.Millisecond)))
	return nil
}
