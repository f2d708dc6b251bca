package auth0

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/dropDatabas3/mudanza/internal/observability/logger"
)

// TokenExpiry decodifica el token de Management API SIN verificar firma
// (no tenemos la clave del tenant y no hace falta: es solo un preflight)
// y retorna su exp.
func TokenExpiry(token string) (time.Time, error) {
	parser := jwt.NewParser()
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("decode management token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("management token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// WarnIfExpiring avisa antes de arrancar una corrida larga si el token va a
// vencer en el medio. Un token que no parsea como JWT no es error (podría ser
// opaco); solo se loguea en debug.
func WarnIfExpiring(token string, runEstimate time.Duration) {
	log := logger.Named("auth0")
	exp, err := TokenExpiry(token)
	if err != nil {
		log.Debug("management token preflight skipped", zap.Error(err))
		return
	}
	left := time.Until(exp)
	if left <= 0 {
		log.Error("management token already expired", zap.Time("exp", exp))
		return
	}
	if left < runEstimate {
		log.Warn("management token may expire mid-run",
			zap.Time("exp", exp), logger.Duration(left))
	}
}
