package logger

import (
	"time"

	"go.uber.org/zap"
)

// Campos estándar para mantener nombres consistentes en todo el servicio.

// Namespace crea un campo para el id del namespace.
func Namespace(v string) zap.Field {
	return zap.String("namespace", v)
}

// KeyID crea un campo para el kid de una clave de firma.
// Los kid no son secretos; el material de la clave nunca se loguea.
func KeyID(v string) zap.Field {
	return zap.String("kid", v)
}

// Algorithm crea un campo para el algoritmo de firma.
func Algorithm(v string) zap.Field {
	return zap.String("alg", v)
}

// Op crea un campo para la operación actual (provision, sign, verify, rotate).
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Attempt crea un campo para el número de intento de una rotación.
func Attempt(v int) zap.Field {
	return zap.Int("attempt", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Addr crea un campo para una dirección de red.
func Addr(v string) zap.Field {
	return zap.String("addr", v)
}

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// Duration crea un campo para la duración del request.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}
