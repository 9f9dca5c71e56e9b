// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"

	"keystore-service/internal/constraint"
	"keystore-service/internal/domain"
	"keystore-service/internal/middleware"
	"keystore-service/internal/platform"
	"keystore-service/internal/usecase"
	"keystore-service/pkg/httputil"
)

var aliasRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// EntryHandler はキーストアエントリのHTTPハンドラを提供する。
type EntryHandler struct {
	service *usecase.EntryService
	authCtx *platform.AuthorizationContext
}

// NewEntryHandler は新しいEntryHandlerを生成する。
func NewEntryHandler(service *usecase.EntryService, authCtx *platform.AuthorizationContext) *EntryHandler {
	return &EntryHandler{
		service: service,
		authCtx: authCtx,
	}
}

func validateAlias(alias string) error {
	if alias == "" {
		return domain.ErrInvalidAlias
	}
	if len(alias) > 64 {
		return domain.ErrInvalidAlias
	}
	if !aliasRegex.MatchString(alias) {
		return domain.ErrInvalidAlias
	}
	return nil
}

// CreateEntryRequest はエントリ生成のリクエスト形式。
type CreateEntryRequest struct {
	Alias      string            `json:"alias"`
	Protection ProtectionRequest `json:"protection"`
}

// EntryMetadataResponse はエントリメタデータのレスポンス形式。
type EntryMetadataResponse struct {
	Alias      string             `json:"alias"`
	Protection ProtectionResponse `json:"protection"`
	Encrypted  bool               `json:"encrypted"`
	CreatedAt  string             `json:"created_at"`
}

// EntryListResponse はエントリ一覧のレスポンス形式。
type EntryListResponse struct {
	Entries []EntryMetadataResponse `json:"entries"`
}

// UseKeyRequest は鍵利用のリクエスト形式。
type UseKeyRequest struct {
	Purpose         string     `json:"purpose"`
	AuthenticatedAt *time.Time `json:"authenticated_at,omitempty"`
}

// KeyResponse は鍵のレスポンス形式。
type KeyResponse struct {
	Alias string `json:"alias"`
	Key   string `json:"key"`
}

func toMetadataResponse(m *domain.EntryMetadata) EntryMetadataResponse {
	return EntryMetadataResponse{
		Alias:      m.Alias,
		Protection: toProtectionResponse(m.Params),
		Encrypted:  m.Encrypted,
		CreatedAt:  m.CreatedAt.Format(time.RFC3339),
	}
}

// CreateEntry は新しいキーストアエントリを生成する。
func (h *EntryHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST_BODY", "request body must be valid JSON")
		return
	}
	if err := validateAlias(req.Alias); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_ALIAS", "invalid alias format")
		return
	}

	params, err := buildParams(h.authCtx, req.Protection)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "CREATE_ENTRY", req.Alias, "FAILED")
		httputil.Error(w, http.StatusBadRequest, "INVALID_PROTECTION_PARAMS", err.Error())
		return
	}

	metadata, err := h.service.CreateEntry(r.Context(), req.Alias, params)
	if err != nil {
		if errors.Is(err, domain.ErrEntryAlreadyExists) {
			middleware.WriteAuditLog(r.Context(), "CREATE_ENTRY", req.Alias, "FAILED")
			httputil.Error(w, http.StatusConflict, "ENTRY_ALREADY_EXISTS", "entry already exists for this alias")
			return
		}
		middleware.WriteAuditLog(r.Context(), "CREATE_ENTRY", req.Alias, "FAILED")
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "CREATE_ENTRY", req.Alias, "SUCCESS")
	httputil.JSON(w, http.StatusCreated, toMetadataResponse(metadata))
}

// GetEntry はエントリメタデータを取得する。
func (h *EntryHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	if err := validateAlias(alias); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_ALIAS", "invalid alias format")
		return
	}

	metadata, err := h.service.GetEntry(r.Context(), alias)
	if err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			httputil.Error(w, http.StatusNotFound, "ENTRY_NOT_FOUND", "entry not found for this alias")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, toMetadataResponse(metadata))
}

// ListEntries はエントリ一覧を取得する。
func (h *EntryHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListEntries(r.Context())
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := EntryListResponse{
		Entries: make([]EntryMetadataResponse, len(entries)),
	}
	for i, m := range entries {
		response.Entries[i] = toMetadataResponse(m)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// UseKey は保護パラメータの制約を検証した上で鍵を取得する。
func (h *EntryHandler) UseKey(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	if err := validateAlias(alias); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_ALIAS", "invalid alias format")
		return
	}

	var req UseKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_REQUEST_BODY", "request body must be valid JSON")
		return
	}

	purpose, err := constraint.ParsePurposes([]string{req.Purpose})
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PURPOSE", "unknown purpose")
		return
	}

	key, err := h.service.UseKey(r.Context(), alias, purpose, req.AuthenticatedAt)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "USE_KEY", alias, "FAILED")
		switch {
		case errors.Is(err, domain.ErrEntryNotFound):
			httputil.Error(w, http.StatusNotFound, "ENTRY_NOT_FOUND", "entry not found for this alias")
		case errors.Is(err, domain.ErrKeyNotYetValid):
			httputil.Error(w, http.StatusForbidden, "KEY_NOT_YET_VALID", "key validity period has not started")
		case errors.Is(err, domain.ErrKeyExpired):
			httputil.Error(w, http.StatusGone, "KEY_EXPIRED", "key validity period has ended for this operation")
		case errors.Is(err, domain.ErrPurposeNotPermitted):
			httputil.Error(w, http.StatusForbidden, "PURPOSE_NOT_PERMITTED", "requested purpose is not permitted for this key")
		case errors.Is(err, domain.ErrAuthenticationRequired):
			httputil.Error(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "user authentication is required to use this key")
		case errors.Is(err, domain.ErrAuthenticationExpired):
			httputil.Error(w, http.StatusUnauthorized, "AUTHENTICATION_EXPIRED", "user authentication has expired")
		default:
			httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return
	}

	middleware.WriteAuditLog(r.Context(), "USE_KEY", alias, "SUCCESS")
	httputil.JSON(w, http.StatusOK, KeyResponse{
		Alias: key.Alias,
		Key:   base64.StdEncoding.EncodeToString(key.Key),
	})
}

// DeleteEntry はエントリを削除する。
func (h *EntryHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	if err := validateAlias(alias); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_ALIAS", "invalid alias format")
		return
	}

	if err := h.service.DeleteEntry(r.Context(), alias); err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			middleware.WriteAuditLog(r.Context(), "DELETE_ENTRY", alias, "FAILED")
			httputil.Error(w, http.StatusNotFound, "ENTRY_NOT_FOUND", "entry not found for this alias")
			return
		}
		middleware.WriteAuditLog(r.Context(), "DELETE_ENTRY", alias, "FAILED")
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	middleware.WriteAuditLog(r.Context(), "DELETE_ENTRY", alias, "SUCCESS")
	w.WriteHeader(http.StatusNoContent)
}
