package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	goDeliver "github.com/MrEthical07/goDeliver"
	"github.com/MrEthical07/goDeliver/catalog"
	"github.com/MrEthical07/goDeliver/invoice"
	"github.com/MrEthical07/goDeliver/jwt"
	"github.com/MrEthical07/goDeliver/metrics/export/prometheus"
	"github.com/MrEthical07/goDeliver/password"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testAdminEmail  = "admin@example.com"
	testAdminSecret = "correct horse battery staple"
	alicePassword   = "alice-password"
)

type testServer struct {
	*httptest.Server
	engine  *goDeliver.Engine
	catalog *catalog.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithSecret(t, testAdminSecret)
}

// testPasswords trades hash strength for test speed.
func testPasswords(t *testing.T) *password.Hasher {
	t.Helper()
	hasher, err := password.New(password.Config{
		MemoryKB:    8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   8,
	})
	require.NoError(t, err)
	return hasher
}

func newTestServerWithSecret(t *testing.T, adminSecret string) *testServer {
	t.Helper()
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)

	store, err := catalog.Open("sqlite", filepath.Join(dir, "catalog.db"), catalog.Options{
		FilesDir: filepath.Join(dir, "files"),
		Logger:   logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	renderer, err := invoice.NewPDFRenderer(invoice.Options{Dir: filepath.Join(dir, "bills")}, logger)
	require.NoError(t, err)

	engine, err := goDeliver.New().
		WithAccounts(store).
		WithFiles(store).
		WithRenderer(renderer).
		WithLedger(store).
		WithLogger(logger).
		WithMetricsEnabled(true).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("httpapi-test-signing-key"),
		Issuer:        "godeliver",
	})
	require.NoError(t, err)

	h, err := NewHandler(engine, store, renderer, tokens, testPasswords(t), Options{
		AdminEmail:  testAdminEmail,
		AdminSecret: adminSecret,
		Metrics:     prometheus.NewPrometheusExporter(engine).Handler(),
		Logger:      logger,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, engine: engine, catalog: store}
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (s *testServer) postJSON(t *testing.T, path, bearer string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, data := s.do(t, http.MethodPost, path, bearer, bytes.NewReader(raw), "application/json")
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return resp, out
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	resp, body := s.postJSON(t, "/admin/login", "", map[string]string{"email": testAdminEmail, "secret": testAdminSecret})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tok, _ := body["token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

func (s *testServer) addItem(t *testing.T, bearer string, fields map[string]string, fileName, content string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return s.do(t, http.MethodPost, "/admin/items", bearer, &buf, mw.FormDataContentType())
}

func seedStore(t *testing.T, s *testServer) string {
	t.Helper()
	resp, _ := s.postJSON(t, "/signup", "", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": alicePassword,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	admin := s.adminToken(t)
	r, body := s.addItem(t, admin, map[string]string{
		"title": "Physics Notes", "desc": "Mechanics", "price": "100",
		"newSubjectCode": "PHY 101", "newSubjectName": "Physics",
	}, "physics.pdf", "PHYSICS-CONTENT")
	require.Equal(t, http.StatusCreated, r.StatusCode, string(body))
	r, body = s.addItem(t, admin, map[string]string{
		"title": "Chemistry Notes", "desc": "Organic", "price": "50", "subject": "chem",
	}, "chemistry.pdf", "CHEMISTRY-CONTENT")
	require.Equal(t, http.StatusCreated, r.StatusCode, string(body))
	return admin
}

func TestCheckoutRedeemDownloadLifecycle(t *testing.T) {
	s := newTestServer(t)
	admin := seedStore(t, s)

	// client prices are ignored in favour of the catalog
	resp, body := s.postJSON(t, "/checkout", "", map[string]any{
		"email": "alice@example.com",
		"cart": []map[string]any{
			{"title": "Physics Notes", "price": 1, "quantity": 2},
			{"title": "Chemistry Notes", "price": 1, "quantity": 1},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "250.00", body["subtotal"])
	assert.Equal(t, "45.00", body["tax"])
	assert.Equal(t, "295.00", body["total"])

	passwords, ok := body["passwords"].(map[string]any)
	require.True(t, ok)
	require.Len(t, passwords, 2)
	secret, _ := passwords["Physics Notes"].(string)
	require.Len(t, secret, 6)

	bill, _ := body["download"].(string)
	require.True(t, strings.HasPrefix(bill, "/download-bill/"), bill)
	billResp, billBody := s.do(t, http.MethodGet, bill, "", nil, "")
	assert.Equal(t, http.StatusOK, billResp.StatusCode)
	assert.True(t, bytes.HasPrefix(billBody, []byte("%PDF-")))

	status := map[string]string{"email": "alice@example.com", "title": "Physics Notes"}
	_, st := s.postJSON(t, "/check-password-status", "", status)
	assert.Equal(t, true, st["hasPassword"])

	resp, denied := s.postJSON(t, "/verify-password", "", map[string]string{
		"email": "alice@example.com", "title": "Physics Notes", "password": "000000",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, false, denied["success"])

	redeem := map[string]string{"email": "alice@example.com", "title": "Physics Notes", "password": secret}
	resp, ok1 := s.postJSON(t, "/verify-password", "", redeem)
	require.Equal(t, http.StatusOK, resp.StatusCode, ok1)
	link, _ := ok1["download"].(string)
	require.True(t, strings.HasPrefix(link, "/download/"), link)

	resp, again := s.postJSON(t, "/verify-password", "", redeem)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, msgPasswordDenied, again["message"])

	_, st = s.postJSON(t, "/check-password-status", "", status)
	assert.Equal(t, false, st["hasPassword"])

	dl, content := s.do(t, http.MethodGet, link, "", nil, "")
	require.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, "PHYSICS-CONTENT", string(content))
	assert.Contains(t, dl.Header.Get("Content-Disposition"), "attachment")

	dl, content = s.do(t, http.MethodGet, link, "", nil, "")
	assert.Equal(t, http.StatusForbidden, dl.StatusCode)
	assert.Contains(t, string(content), msgLinkDenied)

	resp, data := s.do(t, http.MethodGet, "/admin/user-purchases/"+url.PathEscape("alice@example.com"), admin, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var purchases struct {
		Purchases []map[string]any `json:"purchases"`
	}
	require.NoError(t, json.Unmarshal(data, &purchases))
	assert.Len(t, purchases.Purchases, 2)

	resp, data = s.do(t, http.MethodGet, "/metrics", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "godeliver_token_consumed_total 1")
}

func TestLegacyDownloadLinkWithQueryToken(t *testing.T) {
	s := newTestServer(t)
	seedStore(t, s)

	_, body := s.postJSON(t, "/checkout", "", map[string]any{
		"email": "alice@example.com",
		"cart":  []map[string]any{{"title": "Chemistry Notes", "quantity": 1}},
	})
	secret := body["passwords"].(map[string]any)["Chemistry Notes"].(string)
	_, ok := s.postJSON(t, "/verify-password", "", map[string]string{
		"email": "alice@example.com", "title": "Chemistry Notes", "password": secret,
	})
	token := strings.TrimPrefix(ok["download"].(string), "/download/")

	dl, content := s.do(t, http.MethodGet, "/download/"+url.PathEscape("Chemistry Notes")+"?token="+token, "", nil, "")
	require.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Equal(t, "CHEMISTRY-CONTENT", string(content))
}

func TestCheckoutRejections(t *testing.T) {
	s := newTestServer(t)
	seedStore(t, s)

	resp, _ := s.postJSON(t, "/checkout", "", map[string]any{"email": "alice@example.com", "cart": []any{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := s.postJSON(t, "/checkout", "", map[string]any{
		"email": "alice@example.com",
		"cart":  []map[string]any{{"title": "Biology Notes", "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["message"], "Biology Notes")

	resp, _ = s.postJSON(t, "/checkout", "", map[string]any{
		"email": "nobody@example.com",
		"cart":  []map[string]any{{"title": "Physics Notes", "quantity": 1}},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.postJSON(t, "/checkout", "", map[string]any{
		"email": "alice@example.com",
		"cart":  []map[string]any{{"title": "Physics Notes", "quantity": 0}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDownloadRejectsUnknownToken(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/download/" + strings.Repeat("a", 32), "/download/short"} {
		resp, body := s.do(t, http.MethodGet, path, "", nil, "")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, path)
		assert.Contains(t, string(body), msgLinkDenied)
	}

	resp, _ := s.do(t, http.MethodGet, "/download-bill/..%2Fcatalog.db", "", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSignupDuplicate(t *testing.T) {
	s := newTestServer(t)
	alice := map[string]string{"name": "Alice", "email": "alice@example.com", "password": alicePassword}
	resp, _ := s.postJSON(t, "/signup", "", alice)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := s.postJSON(t, "/signup", "", alice)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Email already registered.", body["message"])

	resp, _ = s.postJSON(t, "/signup", "", map[string]string{"email": "bob@example.com", "password": alicePassword})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.postJSON(t, "/signup", "", map[string]string{"name": "Bob", "email": "bob@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = s.postJSON(t, "/signup", "", map[string]string{"name": "Bob", "email": "bob@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["message"], "at least 8 characters")

	resp, _ = s.postJSON(t, "/signup", "", map[string]string{"name": "Admin", "email": testAdminEmail, "password": alicePassword})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	seedStore(t, s)

	resp, body := s.postJSON(t, "/login", "", map[string]string{"email": "alice@example.com", "password": alicePassword})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["success"])
	user, _ := body["user"].(map[string]any)
	assert.Equal(t, "alice@example.com", user["email"])
	assert.NotContains(t, user, "PasswordHash")

	for _, creds := range []map[string]string{
		{"email": "alice@example.com", "password": "not-alice-password"},
		{"email": "nobody@example.com", "password": alicePassword},
	} {
		resp, body := s.postJSON(t, "/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, creds["email"])
		assert.Equal(t, msgBadLogin, body["message"])
	}

	resp, _ = s.postJSON(t, "/login", "", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = s.postJSON(t, "/login", "", map[string]string{"email": testAdminEmail, "password": testAdminSecret})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Please use admin login for administrator account", body["message"])

	resp, body = s.postJSON(t, "/login", "", map[string]string{
		"email": testAdminEmail, "password": testAdminSecret, "role": "admin",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)
	seedStore(t, s)

	resp, body := s.postJSON(t, "/change-password", "", map[string]string{
		"email": "alice@example.com", "currentPassword": "wrong-password", "newPassword": "alice-new-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Current password is incorrect", body["message"])

	resp, _ = s.postJSON(t, "/change-password", "", map[string]string{
		"email": "alice@example.com", "currentPassword": alicePassword, "newPassword": "tiny",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.postJSON(t, "/change-password", "", map[string]string{
		"email": "nobody@example.com", "currentPassword": alicePassword, "newPassword": "alice-new-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = s.postJSON(t, "/change-password", "", map[string]string{
		"email": "alice@example.com", "currentPassword": alicePassword, "newPassword": "alice-new-password",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, _ = s.postJSON(t, "/login", "", map[string]string{"email": "alice@example.com", "password": alicePassword})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = s.postJSON(t, "/login", "", map[string]string{"email": "alice@example.com", "password": "alice-new-password"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminChangePasswordRotatesSecret(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken(t)
	rotate := map[string]string{"currentPassword": testAdminSecret, "newPassword": "a brand new admin secret"}

	resp, _ := s.postJSON(t, "/admin/change-password", "", rotate)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := s.postJSON(t, "/admin/change-password", admin, map[string]string{
		"currentPassword": "wrong", "newPassword": "a brand new admin secret",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Current password is incorrect", body["message"])

	resp, body = s.postJSON(t, "/admin/change-password", admin, rotate)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Password updated successfully", body["message"])

	resp, _ = s.postJSON(t, "/admin/login", "", map[string]string{"email": testAdminEmail, "secret": testAdminSecret})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, body = s.postJSON(t, "/admin/login", "", map[string]string{"email": testAdminEmail, "secret": "a brand new admin secret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])

	stored, ok, err := s.catalog.Setting(context.Background(), adminSecretSetting)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(stored, "$argon2id$"), stored)
}

func TestRecordPurchase(t *testing.T) {
	s := newTestServer(t)
	admin := seedStore(t, s)
	record := map[string]any{
		"email": "alice@example.com",
		"purchases": []map[string]any{
			{"title": "Physics Notes", "price": 1, "quantity": 2, "invoice": "manual-1"},
		},
	}

	resp, _ := s.postJSON(t, "/record-purchase", "", record)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := s.postJSON(t, "/record-purchase", admin, record)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	rows, _ := body["purchases"].([]any)
	require.Len(t, rows, 1)

	entries, err := s.catalog.Purchases(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Physics Notes", entries[0].Title)
	assert.True(t, entries[0].UnitPrice.Equal(decimal.NewFromInt(100)), entries[0].UnitPrice.String())
	assert.Equal(t, 2, entries[0].Quantity)

	// recording a sale issues no OTP
	_, st := s.postJSON(t, "/check-password-status", "", map[string]string{"email": "alice@example.com", "title": "Physics Notes"})
	assert.Equal(t, false, st["hasPassword"])

	resp, body = s.postJSON(t, "/record-purchase", admin, map[string]any{
		"email":     "alice@example.com",
		"purchases": []map[string]any{{"title": "Biology Notes"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["message"], "Biology Notes")

	resp, _ = s.postJSON(t, "/record-purchase", admin, map[string]any{
		"email":     "nobody@example.com",
		"purchases": []map[string]any{{"title": "Physics Notes"}},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.postJSON(t, "/record-purchase", admin, map[string]any{"email": "alice@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := seedStore(t, s)

	resp, _ := s.postJSON(t, "/admin/login", "", map[string]string{"email": testAdminEmail, "secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	for _, path := range []string{"/admin/users", "/admin/user-purchases/alice@example.com"} {
		resp, _ := s.do(t, http.MethodGet, path, "", nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	resp, data := s.do(t, http.MethodGet, "/admin/users", admin, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "alice@example.com")

	resp, data = s.do(t, http.MethodGet, "/subjects", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"phy_101":"PHY 101 - Physics"`)

	resp, subjects := s.postJSON(t, "/admin/subjects", admin, map[string]string{"code": "BIO", "name": "Biology"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, subjects["subjects"], "bio")

	r, _ := s.addItem(t, admin, map[string]string{"title": "Physics Notes", "price": "10"}, "", "")
	assert.Equal(t, http.StatusConflict, r.StatusCode)
	r, _ = s.addItem(t, admin, map[string]string{"title": "Bad", "price": "abc"}, "", "")
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)

	resp, data = s.do(t, http.MethodDelete, "/admin/items/"+url.PathEscape("Physics Notes"), admin, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"file_deleted":true`)

	resp, _ = s.do(t, http.MethodDelete, "/admin/items/"+url.PathEscape("Physics Notes"), admin, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, data = s.do(t, http.MethodGet, "/items", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(data), "Physics Notes")
	assert.Contains(t, string(data), "Chemistry Notes")
}

func TestAdminLoginDisabledWithoutSecret(t *testing.T) {
	s := newTestServerWithSecret(t, "")

	resp, _ := s.postJSON(t, "/admin/login", "", map[string]string{"email": testAdminEmail, "secret": ""})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = s.postJSON(t, "/login", "", map[string]string{"email": testAdminEmail, "password": "anything", "role": "admin"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNewHandlerRequiresCollaborators(t *testing.T) {
	_, err := NewHandler(nil, nil, nil, nil, nil, Options{})
	assert.Error(t, err)

	_, err = NewHandler(stubEngine{}, &catalog.Store{}, stubInvoices{}, stubTokens{}, nil, Options{})
	assert.Error(t, err)
}
