package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"keystore-service/internal/constraint"
	"keystore-service/internal/domain"
	"keystore-service/internal/keyparams"
	"keystore-service/internal/platform"
	"keystore-service/internal/usecase"
)

// mockEntryRepository はテスト用のモックリポジトリ。
type mockEntryRepository struct {
	existsResult   bool
	existsErr      error
	createErr      error
	findResult     *domain.KeyEntry
	findErr        error
	findAllResult  []*domain.KeyEntry
	findAllErr     error
	deleteResult   bool
	deleteErr      error
	createdEntries []*domain.KeyEntry
}

func (m *mockEntryRepository) ExistsByAlias(ctx context.Context, alias string) (bool, error) {
	return m.existsResult, m.existsErr
}

func (m *mockEntryRepository) Create(ctx context.Context, entry *domain.KeyEntry) error {
	if m.createErr != nil {
		return m.createErr
	}
	entry.CreatedAt = time.Now()
	m.createdEntries = append(m.createdEntries, entry)
	return nil
}

func (m *mockEntryRepository) FindByAlias(ctx context.Context, alias string) (*domain.KeyEntry, error) {
	return m.findResult, m.findErr
}

func (m *mockEntryRepository) FindAll(ctx context.Context) ([]*domain.KeyEntry, error) {
	return m.findAllResult, m.findAllErr
}

func (m *mockEntryRepository) DeleteByAlias(ctx context.Context, alias string) (bool, error) {
	return m.deleteResult, m.deleteErr
}

// mockKMSClient はテスト用のモックKMSクライアント。
type mockKMSClient struct {
	encryptErr    error
	decryptResult []byte
	decryptErr    error
}

func (m *mockKMSClient) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if m.encryptErr != nil {
		return nil, m.encryptErr
	}
	return append([]byte("wrapped:"), plaintext...), nil
}

func (m *mockKMSClient) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if m.decryptErr != nil {
		return nil, m.decryptErr
	}
	if m.decryptResult != nil {
		return m.decryptResult, nil
	}
	return []byte("unwrapped-key"), nil
}

func setupHandler(repo *mockEntryRepository, kms *mockKMSClient) *EntryHandler {
	service := usecase.NewEntryService(repo, kms)
	return NewEntryHandler(service, platform.NewAuthorizationContext("test-app"))
}

func withAlias(req *http.Request, alias string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("alias", alias)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func storedEntry(t *testing.T, configure func(*keyparams.Builder)) *domain.KeyEntry {
	t.Helper()
	b, err := keyparams.NewBuilder(platform.NewAuthorizationContext("test-app"))
	if err != nil {
		t.Fatalf("failed to create builder: %v", err)
	}
	if configure != nil {
		configure(b)
	}
	params, err := b.Build()
	if err != nil {
		t.Fatalf("failed to build params: %v", err)
	}
	return &domain.KeyEntry{
		ID:          "entry-id",
		Alias:       "backup-key",
		Params:      params,
		KeyMaterial: []byte("stored-material"),
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateEntry_Success(t *testing.T) {
	repo := &mockEntryRepository{existsResult: false}
	h := setupHandler(repo, &mockKMSClient{})

	body := `{
		"alias": "backup-key",
		"protection": {
			"encryption_required": true,
			"purposes": ["encrypt", "decrypt"],
			"block_modes": ["gcm"]
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/entries", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateEntry(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("want status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp EntryMetadataResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Alias != "backup-key" {
		t.Errorf("want alias backup-key, got %s", resp.Alias)
	}
	if !resp.Encrypted {
		t.Error("want encrypted=true")
	}
	if !resp.Protection.EncryptionRequired {
		t.Error("want encryption_required=true")
	}
	if len(resp.Protection.Purposes) != 2 {
		t.Errorf("want 2 purposes, got %v", resp.Protection.Purposes)
	}
	if resp.Protection.UserAuthValiditySeconds != -1 {
		t.Errorf("want default auth validity -1, got %d", resp.Protection.UserAuthValiditySeconds)
	}
	// ダイジェスト未指定はレスポンスでも省略される
	if resp.Protection.Digests != nil {
		t.Errorf("want digests omitted, got %v", *resp.Protection.Digests)
	}
}

func TestCreateEntry_SpecifiedEmptyDigests(t *testing.T) {
	repo := &mockEntryRepository{existsResult: false}
	h := setupHandler(repo, &mockKMSClient{})

	body := `{"alias": "backup-key", "protection": {"digests": []}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/entries", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateEntry(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("want status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp EntryMetadataResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	// 明示的な空配列は空配列として返される
	if resp.Protection.Digests == nil {
		t.Fatal("want digests present, got omitted")
	}
	if len(*resp.Protection.Digests) != 0 {
		t.Errorf("want empty digests, got %v", *resp.Protection.Digests)
	}
}

func TestCreateEntry_InvalidJSON(t *testing.T) {
	h := setupHandler(&mockEntryRepository{}, &mockKMSClient{})

	req := httptest.NewRequest(http.MethodPost, "/v1/entries", strings.NewReader("{invalid"))
	rec := httptest.NewRecorder()
	h.CreateEntry(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}

func TestCreateEntry_InvalidAlias(t *testing.T) {
	h := setupHandler(&mockEntryRepository{}, &mockKMSClient{})

	for _, alias := range []string{"", "has space", strings.Repeat("a", 65)} {
		body := `{"alias": ` + jsonString(alias) + `, "protection": {}}`
		req := httptest.NewRequest(http.MethodPost, "/v1/entries", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.CreateEntry(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("alias %q: want status 400, got %d", alias, rec.Code)
		}
	}
}

// jsonString はテスト用にJSON文字列リテラルを生成する。
func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestCreateEntry_InvalidProtection(t *testing.T) {
	h := setupHandler(&mockEntryRepository{}, &mockKMSClient{})

	cases := map[string]string{
		"unknown purpose":  `{"alias": "k", "protection": {"purposes": ["fly"]}}`,
		"invalid duration": `{"alias": "k", "protection": {"user_auth_validity_seconds": -5}}`,
	}
	for name, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/entries", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.CreateEntry(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: want status 400, got %d", name, rec.Code)
		}
	}
}

func TestCreateEntry_AlreadyExists(t *testing.T) {
	repo := &mockEntryRepository{existsResult: true}
	h := setupHandler(repo, &mockKMSClient{})

	body := `{"alias": "backup-key", "protection": {}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/entries", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateEntry(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("want status 409, got %d", rec.Code)
	}

	var resp map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["code"] != "ENTRY_ALREADY_EXISTS" {
		t.Errorf("want code ENTRY_ALREADY_EXISTS, got %v", resp["code"])
	}
}

func TestGetEntry_Success(t *testing.T) {
	repo := &mockEntryRepository{findResult: storedEntry(t, nil)}
	h := setupHandler(repo, &mockKMSClient{})

	req := withAlias(httptest.NewRequest(http.MethodGet, "/v1/entries/backup-key", nil), "backup-key")
	rec := httptest.NewRecorder()
	h.GetEntry(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}

	var resp EntryMetadataResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Alias != "backup-key" {
		t.Errorf("want alias backup-key, got %s", resp.Alias)
	}
}

func TestGetEntry_NotFound(t *testing.T) {
	repo := &mockEntryRepository{findResult: nil}
	h := setupHandler(repo, &mockKMSClient{})

	req := withAlias(httptest.NewRequest(http.MethodGet, "/v1/entries/missing", nil), "missing")
	rec := httptest.NewRecorder()
	h.GetEntry(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("want status 404, got %d", rec.Code)
	}
}

func TestListEntries_Success(t *testing.T) {
	repo := &mockEntryRepository{
		findAllResult: []*domain.KeyEntry{storedEntry(t, nil)},
	}
	h := setupHandler(repo, &mockKMSClient{})

	req := httptest.NewRequest(http.MethodGet, "/v1/entries", nil)
	rec := httptest.NewRecorder()
	h.ListEntries(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}

	var resp EntryListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Entries) != 1 {
		t.Errorf("want 1 entry, got %d", len(resp.Entries))
	}
}

func TestUseKey_Success(t *testing.T) {
	repo := &mockEntryRepository{findResult: storedEntry(t, nil)}
	h := setupHandler(repo, &mockKMSClient{})

	body := `{"purpose": "encrypt"}`
	req := withAlias(httptest.NewRequest(http.MethodPost, "/v1/entries/backup-key/key", strings.NewReader(body)), "backup-key")
	rec := httptest.NewRecorder()
	h.UseKey(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp KeyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(resp.Key)
	if err != nil {
		t.Fatalf("failed to decode key: %v", err)
	}
	if string(decoded) != "stored-material" {
		t.Errorf("want stored material, got %s", string(decoded))
	}
}

func TestUseKey_UnknownPurpose(t *testing.T) {
	repo := &mockEntryRepository{findResult: storedEntry(t, nil)}
	h := setupHandler(repo, &mockKMSClient{})

	body := `{"purpose": "fly"}`
	req := withAlias(httptest.NewRequest(http.MethodPost, "/v1/entries/backup-key/key", strings.NewReader(body)), "backup-key")
	rec := httptest.NewRecorder()
	h.UseKey(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}

func TestUseKey_PurposeNotPermitted(t *testing.T) {
	entry := storedEntry(t, func(b *keyparams.Builder) {
		b.SetPurposes(constraint.PurposeSign)
	})
	repo := &mockEntryRepository{findResult: entry}
	h := setupHandler(repo, &mockKMSClient{})

	body := `{"purpose": "encrypt"}`
	req := withAlias(httptest.NewRequest(http.MethodPost, "/v1/entries/backup-key/key", strings.NewReader(body)), "backup-key")
	rec := httptest.NewRecorder()
	h.UseKey(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("want status 403, got %d", rec.Code)
	}

	var resp map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["code"] != "PURPOSE_NOT_PERMITTED" {
		t.Errorf("want code PURPOSE_NOT_PERMITTED, got %v", resp["code"])
	}
}

func TestUseKey_Expired(t *testing.T) {
	end := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := storedEntry(t, func(b *keyparams.Builder) {
		b.SetKeyValidityEnd(&end)
	})
	repo := &mockEntryRepository{findResult: entry}
	h := setupHandler(repo, &mockKMSClient{})

	body := `{"purpose": "decrypt"}`
	req := withAlias(httptest.NewRequest(http.MethodPost, "/v1/entries/backup-key/key", strings.NewReader(body)), "backup-key")
	rec := httptest.NewRecorder()
	h.UseKey(rec, req)

	if rec.Code != http.StatusGone {
		t.Errorf("want status 410, got %d", rec.Code)
	}
}

func TestUseKey_AuthenticationRequired(t *testing.T) {
	entry := storedEntry(t, func(b *keyparams.Builder) {
		b.SetUserAuthenticators(constraint.AuthenticatorLockScreen)
	})
	repo := &mockEntryRepository{findResult: entry}
	h := setupHandler(repo, &mockKMSClient{})

	body := `{"purpose": "encrypt"}`
	req := withAlias(httptest.NewRequest(http.MethodPost, "/v1/entries/backup-key/key", strings.NewReader(body)), "backup-key")
	rec := httptest.NewRecorder()
	h.UseKey(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("want status 401, got %d", rec.Code)
	}
}

func TestUseKey_NotFound(t *testing.T) {
	repo := &mockEntryRepository{findResult: nil}
	h := setupHandler(repo, &mockKMSClient{})

	body := `{"purpose": "encrypt"}`
	req := withAlias(httptest.NewRequest(http.MethodPost, "/v1/entries/missing/key", strings.NewReader(body)), "missing")
	rec := httptest.NewRecorder()
	h.UseKey(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("want status 404, got %d", rec.Code)
	}
}

func TestDeleteEntry_Success(t *testing.T) {
	repo := &mockEntryRepository{deleteResult: true}
	h := setupHandler(repo, &mockKMSClient{})

	req := withAlias(httptest.NewRequest(http.MethodDelete, "/v1/entries/backup-key", nil), "backup-key")
	rec := httptest.NewRecorder()
	h.DeleteEntry(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("want status 204, got %d", rec.Code)
	}
}

func TestDeleteEntry_NotFound(t *testing.T) {
	repo := &mockEntryRepository{deleteResult: false}
	h := setupHandler(repo, &mockKMSClient{})

	req := withAlias(httptest.NewRequest(http.MethodDelete, "/v1/entries/missing", nil), "missing")
	rec := httptest.NewRecorder()
	h.DeleteEntry(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("want status 404, got %d", rec.Code)
	}
}
