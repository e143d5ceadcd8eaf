package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dropDatabas3/keymint/internal/domain/repository"
)

// HTTPClient resuelve claves contra un registry remoto vía JSON.
//
// Contrato wire: GET {base}/v1/keys/{ref} →
//
//	200 {"id": "...", "material": "<base64>", "status": "active|revoked"}
//	404 clave inexistente
//
// Cualquier otro status o error de red es un fallo de lookup, distinguible de
// not-found para el caller.
type HTTPClient struct {
	base   string
	token  string
	client *http.Client
}

// NewHTTP crea el cliente. token es opcional (bearer auth).
func NewHTTP(base, token string) *HTTPClient {
	return &HTTPClient{
		base:   base,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type keyResponse struct {
	ID       string `json:"id"`
	Material string `json:"material"`
	Status   string `json:"status"`
}

func (c *HTTPClient) Resolve(ctx context.Context, keyRef string) (*repository.ExternalKey, error) {
	u := c.base + "/v1/keys/" + url.PathEscape(keyRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry: lookup %s: %w", keyRef, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// sigue abajo
	case http.StatusNotFound:
		return nil, fmt.Errorf("external key %s: %w", keyRef, repository.ErrNotFound)
	default:
		return nil, fmt.Errorf("registry: lookup %s: unexpected status %d", keyRef, resp.StatusCode)
	}

	var kr keyResponse
	if err := json.NewDecoder(resp.Body).Decode(&kr); err != nil {
		return nil, fmt.Errorf("registry: decode response for %s: %w", keyRef, err)
	}
	material, err := base64.StdEncoding.DecodeString(kr.Material)
	if err != nil {
		return nil, fmt.Errorf("registry: decode material for %s: %w", keyRef, err)
	}

	status := repository.ExternalKeyStatus(kr.Status)
	switch status {
	case repository.ExternalKeyActive, repository.ExternalKeyRevoked:
	default:
		status = repository.ExternalKeyUnknown
	}
	return &repository.ExternalKey{ID: kr.ID, Material: material, Status: status}, nil
}
