package migrate

import "github.com/dropDatabas3/mudanza/internal/workos"

// Outcome es el resultado tipado de procesar UN registro. El paso que escribe
// el ledger lo consume exhaustivamente: Created y Updated dejan línea,
// Unresolved solo se loguea y se cuenta.
type Outcome interface{ isOutcome() }

// Created: se creó una cuenta nueva en el destino.
type Created struct{ User *workos.User }

// Updated: se actualizó una cuenta existente (rama idempotente o fallback).
type Updated struct{ User *workos.User }

// Unresolved: fallo blando por registro ("could not find or create").
// La corrida sigue con los demás registros.
type Unresolved struct{ Reason string }

func (*Created) isOutcome()    {}
func (*Updated) isOutcome()    {}
func (*Unresolved) isOutcome() {}
