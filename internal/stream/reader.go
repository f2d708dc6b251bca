// Package stream convierte un archivo JSONL append-only en una secuencia
// lazy y ordenada de registros parseados.
package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/dropDatabas3/mudanza/internal/observability/logger"
)

// Líneas de export de Auth0 pueden ser largas (app_metadata arbitraria).
const maxLineBytes = 4 * 1024 * 1024

// ParseError es un fallo de parseo acotado a UNA línea: se loguea con su
// índice 0-based y el stream continúa. Nunca aborta la corrida.
type ParseError struct {
	Index int
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Reader lee registros en orden de archivo. Los primeros Skip registros se
// leen (para mantener la cuenta de posición) pero no se emiten.
type Reader struct {
	f    *os.File
	sc   *bufio.Scanner
	skip int

	idx       int // posición del próximo registro (0-based, cuenta líneas no vacías)
	skipped   int
	parseErrs int

	log *zap.Logger
}

// Open abre el archivo y posiciona el reader. skip cuenta por posición de
// lectura, no por orden de completitud (§ resume).
func Open(path string, skip int) (*Reader, error) {
	if skip < 0 {
		return nil, fmt.Errorf("skip must be >= 0 (got %d)", skip)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{
		f:    f,
		sc:   sc,
		skip: skip,
		log:  logger.Named("stream"),
	}, nil
}

// Next retorna el próximo registro válido y dispatchable, o false al agotar
// el stream. Una línea malformada se loguea y se salta; una línea dentro del
// rango de skip se lee pero no se emite.
func (r *Reader) Next() (*Record, bool) {
	for r.sc.Scan() {
		line := bytes.TrimSpace(r.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		idx := r.idx
		r.idx++

		if idx < r.skip {
			r.skipped++
			continue
		}

		rec, err := parseRecord(line, idx)
		if err != nil {
			r.parseErrs++
			perr := &ParseError{Index: idx, Err: err}
			r.log.Warn("skipping malformed record", logger.RecordIndex(idx), logger.Err(perr))
			continue
		}
		return rec, true
	}
	return nil, false
}

// Err retorna el error de I/O del scanner, si hubo (EOF no es error).
func (r *Reader) Err() error { return r.sc.Err() }

// ReadCount: total de registros leídos (incluye saltados y malformados).
func (r *Reader) ReadCount() int { return r.idx }

// Skipped: registros consumidos por el offset de reanudación.
func (r *Reader) Skipped() int { return r.skipped }

// ParseErrors: líneas descartadas por parseo.
func (r *Reader) ParseErrors() int { return r.parseErrs }

func (r *Reader) Close() error { return r.f.Close() }
