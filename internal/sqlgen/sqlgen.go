// Package sqlgen es el consumidor downstream de las decisiones keep: junta
// el ledger de migración (mapping auth0→workos) con los keep y emite los
// UPDATE para recablear la tabla local al identificador nuevo.
package sqlgen

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dropDatabas3/mudanza/internal/dupes"
	"github.com/dropDatabas3/mudanza/internal/ledger"
	"github.com/dropDatabas3/mudanza/internal/validation"
)

// Params fija tabla y columnas del UPDATE generado.
type Params struct {
	Table     string
	IDColumn  string
	SetColumn string
}

func (p Params) validate() error {
	for _, ident := range []string{p.Table, p.IDColumn, p.SetColumn} {
		if !validation.ValidSQLIdent(ident) {
			return fmt.Errorf("sqlgen: invalid identifier %q", ident)
		}
	}
	return nil
}

// Result es el artefacto generado más sus contadores.
type Result struct {
	SQL        []byte
	Statements int
	Unmapped   int
}

// Generate lee las decisiones keep (JSONL) y el ledger (JSONL) y produce el
// texto SQL. Un keep sin mapping en el ledger NUNCA produce un UPDATE: queda
// como comentario para revisión.
func Generate(keepPath, ledgerPath string, p Params) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	mapping, err := readMapping(ledgerPath)
	if err != nil {
		return nil, err
	}
	decisions, err := readKeeps(keepPath)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("-- mudanza sqlgen\n")
	fmt.Fprintf(&buf, "-- source: %s + %s\n", keepPath, ledgerPath)
	buf.WriteString("BEGIN;\n")

	res := &Result{}
	for _, dec := range decisions {
		if dec.Chosen == nil {
			res.Unmapped++
			fmt.Fprintf(&buf, "-- SKIP: keep decision for %s has no chosen candidate\n", dec.Email)
			continue
		}
		workosID, ok := mapping[dec.Chosen.Auth0Sub]
		if !ok {
			res.Unmapped++
			fmt.Fprintf(&buf, "-- SKIP (no ledger mapping): local id %s email %s auth0 %s\n",
				dec.Chosen.ID, dec.Email, dec.Chosen.Auth0Sub)
			continue
		}
		fmt.Fprintf(&buf, "UPDATE %s SET %s = '%s' WHERE %s = '%s';\n",
			p.Table, p.SetColumn, escape(workosID), p.IDColumn, escape(dec.Chosen.ID))
		res.Statements++
	}

	buf.WriteString("COMMIT;\n")
	fmt.Fprintf(&buf, "-- %d statements, %d skipped\n", res.Statements, res.Unmapped)
	res.SQL = buf.Bytes()
	return res, nil
}

// escape dobla las comillas simples (los ids vienen de sistemas propios, pero
// el texto generado se aplica tal cual).
func escape(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// readMapping indexa el ledger por auth0_user_id. La última línea gana: una
// re-corrida puede haber re-confirmado el mismo usuario.
func readMapping(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	m := make(map[string]string)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var o ledger.Outcome
		if err := json.Unmarshal(b, &o); err != nil {
			return nil, fmt.Errorf("ledger line %d: %w", line, err)
		}
		if o.Auth0UserID != "" && o.WorkOSUserID != "" {
			m[o.Auth0UserID] = o.WorkOSUserID
		}
	}
	return m, sc.Err()
}

func readKeeps(path string) ([]dupes.Decision, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keep decisions %s: %w", path, err)
	}
	defer f.Close()

	var out []dupes.Decision
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var dec dupes.Decision
		if err := json.Unmarshal(b, &dec); err != nil {
			return nil, fmt.Errorf("keep decisions line %d: %w", line, err)
		}
		if dec.Action != dupes.ActionKeep {
			return nil, fmt.Errorf("keep decisions line %d: unexpected action %q", line, dec.Action)
		}
		out = append(out, dec)
	}
	return out, sc.Err()
}
