// Package ledger implementa el sink append-only de resultados: una línea
// JSON autocontenida por registro procesado, usada para auditoría y para
// reanudar corridas con un offset externo.
package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Outcome es la línea que queda en el ledger por cada registro exitoso.
// Nunca se muta después de escribirse.
type Outcome struct {
	WorkOSUserID string `json:"workos_user_id"`
	Auth0UserID  string `json:"auth0_user_id"`
	Created      bool   `json:"created"`
}

// Writer es un sink JSONL append-only. Los appends están serializados y cada
// línea se fsyncea antes de retornar: si el proceso muere después de N líneas,
// a lo sumo N registros quedaron confirmados.
type Writer struct {
	mu sync.Mutex
	f  *os.File
}

// OpenWriter abre (o crea) el archivo en modo append.
func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

// Append serializa v como una línea JSON y la persiste (write + fsync) antes
// de retornar. No deduplica contra corridas anteriores: la reanudación es
// responsabilidad del caller via offset explícito.
func (w *Writer) Append(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal ledger line: %w", err)
	}
	b = append(b, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(b); err != nil {
		return fmt.Errorf("append ledger line: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("fsync ledger: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// CountLines cuenta las líneas no vacías de un ledger existente. Se usa para
// el cruce (solo warning) contra un --skip provisto a mano. Un archivo
// inexistente cuenta como 0.
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) > 0 {
			n++
		}
	}
	return n, sc.Err()
}
