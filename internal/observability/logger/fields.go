package logger

import (
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/mudanza/internal/util"
)

// =================================================================================
// CAMPOS ESTÁNDAR - MIGRACIÓN
// =================================================================================

// RunID crea un campo para el ID de la corrida.
func RunID(v string) zap.Field {
	return zap.String("run_id", v)
}

// RecordIndex crea un campo para la posición (0-based) del registro en el stream.
func RecordIndex(v int) zap.Field {
	return zap.Int("record_index", v)
}

// Auth0ID crea un campo para el user_id de Auth0.
func Auth0ID(v string) zap.Field {
	return zap.String("auth0_user_id", v)
}

// WorkOSID crea un campo para el id de usuario en WorkOS.
func WorkOSID(v string) zap.Field {
	return zap.String("workos_user_id", v)
}

// Email crea un campo para el email, enmascarado: los logs pueden terminar
// en sistemas con menos garantías que los sinks de decisiones.
func Email(v string) zap.Field {
	return zap.String("email", util.MaskEmail(v))
}

// Action crea un campo para la acción de una decisión (keep/skip/manual_review).
func Action(v string) zap.Field {
	return zap.String("action", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Service crea un campo para el servicio remoto (auth0 | workos).
func Service(v string) zap.Field {
	return zap.String("service", v)
}

// Status crea un campo para el status code HTTP de una llamada remota.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// RetryAfter crea un campo para la espera pedida por un rate limit.
func RetryAfter(v time.Duration) zap.Field {
	return zap.Duration("retry_after", v)
}

// Attempt crea un campo para el número de intento de una tarea.
func Attempt(v int) zap.Field {
	return zap.Int("attempt", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// =================================================================================
// CAMPOS ESTÁNDAR - DATOS
// =================================================================================

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Path crea un campo para una ruta de archivo.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Key crea un campo genérico para una clave.
func Key(v string) zap.Field {
	return zap.String("key", v)
}

// Any crea un campo genérico para cualquier tipo.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
