// Package types define tipos de dominio compartidos entre paquetes.
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Errores sentinela compartidos.
var (
	// ErrNoMatch: el fallback por email no encontró ninguna cuenta.
	ErrNoMatch = errors.New("no matching account")
)

// RateLimitError es la señal de throttling de Auth0 o WorkOS (o del presupuesto
// local). Nunca se cuenta como fallo permanente: dispara el ciclo de backoff.
type RateLimitError struct {
	// Service identifica el origen: "auth0" | "workos" | "local".
	Service string
	// RetryAfter es el hint del header Retry-After. 0 = sin hint.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Service, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Service)
}

// AsRateLimit clasifica un error como señal de rate limit.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// AmbiguousMatchError: el fallback por email encontró más de una cuenta.
// Fallo blando por registro: se loguea y la corrida sigue.
type AmbiguousMatchError struct {
	Email string
	Count int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous match: %d accounts for %s", e.Count, e.Email)
}

// IsSoft retorna true si el error es un fallo blando por registro
// (no encontrado o match ambiguo) que no debe abortar la corrida.
func IsSoft(err error) bool {
	var am *AmbiguousMatchError
	return errors.Is(err, ErrNoMatch) || errors.As(err, &am)
}

// RetryAfterHint parsea un header Retry-After en segundos. Retorna 0 si el
// header falta o no es numérico (el formato HTTP-date no se usa en estas APIs).
func RetryAfterHint(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
