package repository

import "errors"

var (
	// ErrNotFound indica que el namespace o la clave solicitada no existe.
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un conflicto de escritura (ej: namespace duplicado).
	ErrConflict = errors.New("conflict")

	// ErrUnsupportedAlgorithm indica que ningún handler soporta la familia del algoritmo.
	// En este caso no se toca el storage.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// ErrInvalidKey indica que la clave externa no existe, el lookup falló o está revocada.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidKeyID indica que el kid del token no coincide con ninguna clave viva
	// (ni la actual ni la anterior).
	ErrInvalidKeyID = errors.New("invalid key identifier")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
