package keystore

// Family identifica la familia de algoritmos que atiende cada handler.
type Family int

const (
	FamilyUnknown Family = iota

	// FamilyHMAC: HS256/HS384/HS512. Claves simétricas generadas localmente,
	// con rotación read-triggered sobre el record store.
	FamilyHMAC

	// FamilyExternal: EdDSA/ES*/RS*. La clave vive en el registry externo y se
	// re-resuelve en cada uso.
	FamilyExternal
)

func (f Family) String() string {
	switch f {
	case FamilyHMAC:
		return "hmac"
	case FamilyExternal:
		return "external"
	default:
		return "unknown"
	}
}

// familyForAlgorithm mapea un algoritmo concreto a su familia.
// El switch es exhaustivo sobre los algoritmos soportados: cualquier otro
// valor cae en FamilyUnknown y la operación falla con ErrUnsupportedAlgorithm
// sin tocar el storage.
func familyForAlgorithm(alg string) Family {
	switch alg {
	case "HS256", "HS384", "HS512":
		return FamilyHMAC
	case "EdDSA", "ES256", "ES384", "ES512", "RS256", "RS384", "RS512":
		return FamilyExternal
	default:
		return FamilyUnknown
	}
}
