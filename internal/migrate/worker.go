package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/mudanza/internal/domain/types"
	"github.com/dropDatabas3/mudanza/internal/observability/logger"
	"github.com/dropDatabas3/mudanza/internal/stream"
	"github.com/dropDatabas3/mudanza/internal/workos"
)

func isRateLimit(err error) bool {
	_, ok := types.AsRateLimit(err)
	return ok
}

// Worker materializa o actualiza en WorkOS la cuenta correspondiente a un
// registro, con protocolo upsert-with-fallback idempotente:
//
//  1. registro con workos_user_id ⇒ SIEMPRE rama update, nunca create.
//  2. sin id ⇒ create con back-reference al user de Auth0.
//  3. create falla (no rate limit) ⇒ buscar por email lowercased:
//     exactamente 1 ⇒ update; 0 o 2+ ⇒ Unresolved (blando).
//
// Un rate limit en CUALQUIER paso se propaga sin tocar: lo maneja el Backoff.
type Worker struct {
	wc *workos.Client
}

func NewWorker(wc *workos.Client) *Worker {
	return &Worker{wc: wc}
}

// Process retorna un Outcome, o un error que es o bien *types.RateLimitError
// (retryable) o bien fatal para la corrida.
func (w *Worker) Process(ctx context.Context, rec *stream.Record) (Outcome, error) {
	if rec.WorkOSID != "" {
		return w.update(ctx, rec, rec.WorkOSID)
	}

	u, err := w.wc.CreateUser(ctx, workos.CreateUserRequest{
		Email:         strings.ToLower(rec.Email),
		EmailVerified: bool(rec.EmailVerified),
		FirstName:     rec.GivenName,
		LastName:      rec.FamilyName,
		ExternalID:    rec.SourceID(),
		Metadata:      recordMetadata(rec),
	})
	if err == nil {
		return &Created{User: u}, nil
	}
	if isRateLimit(err) {
		return nil, err
	}

	// Fallback: el create pudo fallar porque la cuenta ya existe (corrida
	// anterior interrumpida). Buscamos por email y decidimos.
	logger.From(ctx).Debug("create failed, falling back to email search",
		logger.RecordIndex(rec.Index), logger.Err(err))
	return w.fallback(ctx, rec)
}

func (w *Worker) update(ctx context.Context, rec *stream.Record, id string) (Outcome, error) {
	existing, err := w.wc.GetUser(ctx, id)
	if err != nil {
		if isRateLimit(err) {
			return nil, err
		}
		if errors.Is(err, workos.ErrNotFound) {
			return &Unresolved{Reason: fmt.Sprintf("target account %s not found", id)}, nil
		}
		return nil, err
	}
	return w.applyUpdate(ctx, rec, existing)
}

func (w *Worker) fallback(ctx context.Context, rec *stream.Record) (Outcome, error) {
	matches, err := w.wc.ListUsersByEmail(ctx, rec.Email)
	if err != nil {
		// rate limit o fatal, en ambos casos sube tal cual
		return nil, err
	}
	switch len(matches) {
	case 1:
		return w.applyUpdate(ctx, rec, &matches[0])
	case 0:
		return &Unresolved{Reason: fmt.Sprintf("could not find or create account for %s", rec.Email)}, nil
	default:
		return &Unresolved{Reason: fmt.Sprintf("could not find or create: %d accounts match %s", len(matches), rec.Email)}, nil
	}
}

// applyUpdate mergea el registro sobre la cuenta existente: la verificación
// nunca se degrada, los nombres del export pisan solo si vienen, la metadata
// se acumula.
func (w *Worker) applyUpdate(ctx context.Context, rec *stream.Record, existing *workos.User) (Outcome, error) {
	verified := existing.EmailVerified || bool(rec.EmailVerified)

	first := existing.FirstName
	if rec.GivenName != "" {
		first = rec.GivenName
	}
	last := existing.LastName
	if rec.FamilyName != "" {
		last = rec.FamilyName
	}

	meta := make(map[string]string, len(existing.Metadata)+4)
	for k, v := range existing.Metadata {
		meta[k] = v
	}
	for k, v := range recordMetadata(rec) {
		meta[k] = v
	}

	extID := existing.ExternalID
	if extID == "" {
		extID = rec.SourceID()
	}

	u, err := w.wc.UpdateUser(ctx, existing.ID, workos.UpdateUserRequest{
		EmailVerified: &verified,
		FirstName:     first,
		LastName:      last,
		ExternalID:    extID,
		Metadata:      meta,
	})
	if err != nil {
		return nil, err
	}
	return &Updated{User: u}, nil
}

// recordMetadata arma la metadata con back-reference al origen más los campos
// de perfil escalares que trajo la línea.
func recordMetadata(rec *stream.Record) map[string]string {
	meta := map[string]string{"auth0_user_id": rec.SourceID()}
	if rec.Region != "" {
		meta["region"] = rec.Region
	}
	for k, v := range rec.Extra {
		switch tv := v.(type) {
		case string:
			meta[k] = tv
		case bool:
			meta[k] = fmt.Sprintf("%t", tv)
		case float64:
			meta[k] = strings.TrimSuffix(fmt.Sprintf("%v", tv), ".0")
		}
	}
	return meta
}
