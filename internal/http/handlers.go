package http

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/keymint/internal/domain/repository"
	"github.com/dropDatabas3/keymint/internal/keystore"
)

// Handlers agrupa los controllers de la API sobre el facade.
type Handlers struct {
	svc *keystore.Service
}

func NewHandlers(svc *keystore.Service) *Handlers {
	return &Handlers{svc: svc}
}

// POST /v1/namespaces
func (h *Handlers) Provision(w http.ResponseWriter, r *http.Request) {
	var opts keystore.NamespaceOptions
	if !ReadJSON(w, r, &opts) {
		return
	}
	if err := h.svc.Provision(r.Context(), opts); err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{
		"id":        opts.ID,
		"algorithm": opts.Algorithm,
	})
}

type signRequest struct {
	Namespace string         `json:"namespace"`
	Claims    map[string]any `json:"claims"`
}

// POST /v1/tokens
func (h *Handlers) Sign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.Namespace == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "namespace requerido")
		return
	}
	token, err := h.svc.Sign(r.Context(), req.Namespace, req.Claims)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"token": token})
}

type verifyRequest struct {
	Token string `json:"token"`
}

// POST /v1/verify
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "token requerido")
		return
	}
	claims, err := h.svc.Verify(r.Context(), req.Token)
	if err != nil {
		// Verificación fallida no es un error del servidor.
		WriteJSON(w, http.StatusOK, map[string]any{
			"valid": false,
			"error": verifyErrorCode(err),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"valid":  true,
		"claims": claims,
	})
}

// writeDomainError mapea los sentinels del dominio a status HTTP.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrUnsupportedAlgorithm):
		WriteError(w, http.StatusUnprocessableEntity, "unsupported_algorithm", err.Error())
	case repository.IsNotFound(err):
		WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, repository.ErrInvalidKey):
		WriteError(w, http.StatusUnprocessableEntity, "invalid_key", err.Error())
	case errors.Is(err, repository.ErrInvalidKeyID):
		WriteError(w, http.StatusBadRequest, "invalid_kid", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func verifyErrorCode(err error) string {
	switch {
	case errors.Is(err, repository.ErrInvalidKeyID):
		return "unknown_kid"
	case errors.Is(err, repository.ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, repository.ErrUnsupportedAlgorithm):
		return "unsupported_algorithm"
	case repository.IsNotFound(err):
		return "unknown_namespace"
	default:
		return "invalid_token"
	}
}
