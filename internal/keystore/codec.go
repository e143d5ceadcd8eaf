package keystore

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/keymint/internal/domain/repository"
)

// Integración con el codec de tokens (golang-jwt). La matemática de firma se
// consume como caja negra; acá solo se arma el header, se hace el peek sin
// verificar y se mapea el material de clave a los tipos que espera el codec.

// tokenHeader es el resultado del peek sin verificar del header JOSE.
type tokenHeader struct {
	Alg string
	Kid string
}

// decodeHeader lee alg y kid del token sin validar la firma.
func decodeHeader(token string) (tokenHeader, error) {
	t, _, err := jwtv5.NewParser().ParseUnverified(token, jwtv5.MapClaims{})
	if err != nil {
		return tokenHeader{}, fmt.Errorf("decode token header: %w", err)
	}
	var h tokenHeader
	h.Alg, _ = t.Header["alg"].(string)
	h.Kid, _ = t.Header["kid"].(string)
	return h, nil
}

// signToken firma los claims con el algoritmo dado y setea kid/typ en el header.
// key es []byte para HMAC o una private key asimétrica.
func signToken(alg, kid string, claims jwtv5.MapClaims, key any) (string, error) {
	method := jwtv5.GetSigningMethod(alg)
	if method == nil {
		return "", fmt.Errorf("algorithm %q: %w", alg, repository.ErrUnsupportedAlgorithm)
	}
	tk := jwtv5.NewWithClaims(method, claims)
	tk.Header["kid"] = kid
	tk.Header["typ"] = "JWT"
	return tk.SignedString(key)
}

// verifyToken valida firma y claims temporales con leeway = tolerancia de
// reloj. now es el reloj del handler, inyectable en tests.
func verifyToken(token, alg string, key any, leeway time.Duration, now func() time.Time) (map[string]any, error) {
	claims := jwtv5.MapClaims{}
	parsed, err := jwtv5.ParseWithClaims(token, claims,
		func(t *jwtv5.Token) (any, error) { return key, nil },
		jwtv5.WithValidMethods([]string{alg}),
		jwtv5.WithLeeway(leeway),
		jwtv5.WithTimeFunc(now),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if !parsed.Valid {
		return nil, jwtv5.ErrTokenUnverifiable
	}
	return map[string]any(claims), nil
}

// privateKeyFromMaterial parsea material del registry externo.
// Acepta PEM PKCS8 o, para EdDSA, una seed/clave ed25519 cruda.
func privateKeyFromMaterial(alg string, material []byte) (any, error) {
	if block, _ := pem.Decode(material); block != nil {
		pk, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key PKCS8: %w", err)
		}
		return pk, nil
	}
	if alg == "EdDSA" {
		switch len(material) {
		case ed25519.SeedSize:
			return ed25519.NewKeyFromSeed(material), nil
		case ed25519.PrivateKeySize:
			return ed25519.PrivateKey(material), nil
		}
	}
	return nil, fmt.Errorf("unrecognized key material for %s", alg)
}

// publicKeyFor deriva la clave de verificación de una private key externa.
func publicKeyFor(priv any) (any, error) {
	switch pk := priv.(type) {
	case ed25519.PrivateKey:
		return pk.Public(), nil
	case *ecdsa.PrivateKey:
		return pk.Public(), nil
	case *rsa.PrivateKey:
		return pk.Public(), nil
	default:
		return nil, fmt.Errorf("unsupported private key type %T", priv)
	}
}
