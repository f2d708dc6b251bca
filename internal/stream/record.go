package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dropDatabas3/mudanza/internal/validation"
)

// FlexBool acepta bool o string ("true"/"false"/"1"/"0"), porque los exports
// de Auth0 serializan email_verified de las dos formas según la conexión.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*b = true
	case bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte("null")):
		*b = false
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("email_verified: want bool or string, got %s", data)
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "yes":
			*b = true
		case "false", "0", "no", "":
			*b = false
		default:
			return fmt.Errorf("email_verified: unrecognized value %q", s)
		}
	}
	return nil
}

// Record es una unidad de entrada: un usuario a migrar, o una línea de mapping
// del ledger para replay (esa trae workos_user_id + auth0_user_id y toma
// siempre la rama de update). Inmutable una vez leído.
type Record struct {
	UserID        string   `json:"user_id"`
	Email         string   `json:"email"`
	EmailVerified FlexBool `json:"email_verified"`
	GivenName     string   `json:"given_name"`
	FamilyName    string   `json:"family_name"`
	Region        string   `json:"region"`

	// WorkOSID presente ⇒ la cuenta ya existe en el destino (rama update).
	WorkOSID string `json:"workos_user_id"`

	// Auth0UserID es el nombre del campo en las líneas del ledger; si user_id
	// viene vacío se usa como alias.
	Auth0UserID string `json:"auth0_user_id"`

	// Extra conserva los campos de perfil no tipados de la línea original.
	Extra map[string]any `json:"-"`

	// Index es la posición 0-based del registro en el stream.
	Index int `json:"-"`
}

// conocidos: claves ya representadas por campos tipados.
var knownFields = map[string]struct{}{
	"user_id": {}, "email": {}, "email_verified": {}, "given_name": {},
	"family_name": {}, "region": {}, "workos_user_id": {}, "auth0_user_id": {},
	"created": {}, // presente en líneas de ledger, no es perfil
}

// SourceID retorna el identificador estable en Auth0 (user_id o su alias).
func (r *Record) SourceID() string {
	if r.UserID != "" {
		return r.UserID
	}
	return r.Auth0UserID
}

// parseRecord valida el shape mínimo además del JSON en sí.
func parseRecord(line []byte, idx int) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, err
	}
	if rec.SourceID() == "" {
		return nil, fmt.Errorf("missing user_id")
	}
	// Sin workos_user_id la migración necesita un email utilizable.
	if rec.WorkOSID == "" && !validation.ValidEmail(rec.Email) {
		return nil, fmt.Errorf("invalid email %q", rec.Email)
	}

	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err == nil {
		for k := range raw {
			if _, ok := knownFields[k]; ok {
				delete(raw, k)
			}
		}
		if len(raw) > 0 {
			rec.Extra = raw
		}
	}
	rec.Index = idx
	return &rec, nil
}
