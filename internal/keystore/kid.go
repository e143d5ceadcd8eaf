package keystore

import (
	"fmt"
	"strings"

	"github.com/dropDatabas3/keymint/internal/domain/repository"
)

// Formato wire del header kid (otros servicios lo parsean igual):
//   - simétrico: "<namespace>:<keyID>"
//   - externo:   la referencia de la clave tal cual, sin namespace

// EncodeKid arma el kid de un token simétrico.
func EncodeKid(namespace, keyID string) string {
	return namespace + ":" + keyID
}

// ParseKid recupera (namespace, keyID) de un kid simétrico.
// Divide en el PRIMER separador: un keyID puede contener ':' sin romper el parseo.
func ParseKid(kid string) (namespace, keyID string, err error) {
	idx := strings.Index(kid, ":")
	if idx <= 0 || idx == len(kid)-1 {
		return "", "", fmt.Errorf("%w: malformed kid %q", repository.ErrInvalidKeyID, kid)
	}
	return kid[:idx], kid[idx+1:], nil
}
