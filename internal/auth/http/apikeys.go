package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hyperfoil/horreum-auth/internal/auth/domain"
	"github.com/hyperfoil/horreum-auth/internal/auth/service"
	"github.com/hyperfoil/horreum-auth/pkg/httpx"
	"github.com/hyperfoil/horreum-auth/pkg/slogx"
)

// ApiKeysHandler serves the per-user credential management endpoints. Every
// handler operates strictly on the authenticated caller's own keys.
type ApiKeysHandler struct {
	ApiKeyService *service.ApiKeyService
}

type createApiKeyRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`

	// ExpirationDays overrides the default validity window when positive.
	ExpirationDays int `json:"expirationDays"`
}

type createApiKeyResponse struct {
	service.ApiKeySummary

	// Key is the plaintext credential. This response is the only place it
	// ever appears.
	Key string `json:"key"`
}

// HandleCreate issues a new API key for the authenticated user.
func (h *ApiKeysHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := httpx.IdentityFromContext(ctx)

	var req createApiKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	keyType, err := domain.ParseKeyType(req.Type)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "unknown key type")
		return
	}

	summary, plaintext, err := h.ApiKeyService.Issue(ctx, id.Username, req.Name, keyType, req.ExpirationDays)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, createApiKeyResponse{
		ApiKeySummary: summary,
		Key:           plaintext,
	})
}

// HandleList returns the authenticated user's keys, oldest first. Archived
// keys are omitted; plaintext and digests never appear.
func (h *ApiKeysHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := httpx.IdentityFromContext(ctx)

	keys, err := h.ApiKeyService.List(ctx, id.Username)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, keys)
}

type renameApiKeyRequest struct {
	Name string `json:"name"`
}

// HandleRename changes the display name of one of the caller's keys.
func (h *ApiKeysHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := httpx.IdentityFromContext(ctx)

	keyID, err := pathID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	var req renameApiKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		httpx.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.ApiKeyService.Rename(ctx, id.Username, keyID, req.Name); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRevoke permanently disables one of the caller's keys.
func (h *ApiKeysHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := httpx.IdentityFromContext(ctx)

	keyID, err := pathID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid key id")
		return
	}

	if err := h.ApiKeyService.Revoke(ctx, id.Username, keyID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// writeServiceError maps service sentinels onto HTTP statuses. Anything
// unrecognized is a 500 with the detail kept in the log, not the response.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "api key not found")
	case errors.Is(err, service.ErrBadRequest):
		httpx.WriteError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, service.ErrInvalidState):
		httpx.WriteError(w, http.StatusConflict, "operation not permitted in current state")
	default:
		slogx.FromContext(r.Context()).Error("request failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
