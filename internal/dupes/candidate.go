package dupes

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Candidate es una cuenta local candidata a duplicado. Input de solo lectura.
type Candidate struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Auth0Sub   string `json:"auth0Sub"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
	SuperUser  bool   `json:"isSuperUser"`
	Provider   string `json:"provider,omitempty"`
	ProviderID string `json:"providerId,omitempty"`
}

// Group agrupa candidatos que comparten email (la clave del grupo, en
// minúsculas). El orden de los candidatos es el de entrada.
type Group struct {
	Email      string
	Candidates []Candidate
}

// columnas requeridas del CSV de candidatos
var requiredCols = []string{"id", "email", "auth0_sub"}

// ReadGroups lee el CSV tabular de candidatos (header en la primera fila) y
// los agrupa por email preservando el orden de primera aparición. Valida el
// schema: las columnas requeridas tienen que estar.
func ReadGroups(path string) ([]Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredCols {
		if _, ok := col[c]; !ok {
			return nil, fmt.Errorf("candidates csv: missing required column %q", c)
		}
	}

	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	byEmail := make(map[string]int)
	var groups []Group
	line := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("candidates csv line %d: %w", line, err)
		}

		super, _ := strconv.ParseBool(get(row, "is_super_user"))
		c := Candidate{
			ID:         get(row, "id"),
			Email:      get(row, "email"),
			Auth0Sub:   get(row, "auth0_sub"),
			CreatedAt:  get(row, "created_at"),
			UpdatedAt:  get(row, "updated_at"),
			SuperUser:  super,
			Provider:   get(row, "provider"),
			ProviderID: get(row, "provider_id"),
		}
		if c.ID == "" || c.Email == "" {
			return nil, fmt.Errorf("candidates csv line %d: id and email are required", line)
		}

		key := strings.ToLower(c.Email)
		idx, ok := byEmail[key]
		if !ok {
			idx = len(groups)
			byEmail[key] = idx
			groups = append(groups, Group{Email: key})
		}
		groups[idx].Candidates = append(groups[idx].Candidates, c)
	}
	return groups, nil
}
