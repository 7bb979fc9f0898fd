package main

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medpay/medpay/internal/config"
	"github.com/medpay/medpay/internal/domain/billing"
	"github.com/medpay/medpay/internal/platform/db"
	"github.com/medpay/medpay/migrations"
)

func TestResolveSigningKey_FromSecret(t *testing.T) {
	key, generated, err := resolveSigningKey("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if generated {
		t.Error("expected generated=false when a secret is set")
	}
	if string(key) != "0123456789abcdef0123456789abcdef" {
		t.Errorf("unexpected key %q", key)
	}
}

func TestResolveSigningKey_Random(t *testing.T) {
	a, generated, err := resolveSigningKey("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !generated {
		t.Error("expected generated=true for an empty secret")
	}
	if len(a) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(a))
	}
	b, _, _ := resolveSigningKey("")
	if string(a) == string(b) {
		t.Error("two random keys should differ")
	}
}

func TestNewLogger_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := newLogger("production", tt.level).GetLevel(); got != tt.want {
			t.Errorf("newLogger(%q) level = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestMigrationSource(t *testing.T) {
	if migrationSource("") != fs.FS(migrations.FS) {
		t.Error("expected embedded migrations by default")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("SELECT 1;"), 0o644); err != nil {
		t.Fatal(err)
	}
	schema, err := db.NewSchema("public", migrationSource(dir))
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := db.NewMigrator(nil, schema).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Name != "001_init.sql" {
		t.Errorf("unexpected migrations: %+v", loaded)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	schema, err := db.NewSchema("public", migrations.FS)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := db.NewMigrator(nil, schema).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(loaded) == 0 || loaded[0].Version != 1 {
		t.Fatalf("expected migration 1 first, got %+v", loaded)
	}
	for _, table := range []string{"patients", "medicines", "patient_medicines"} {
		if !strings.Contains(loaded[0].SQL, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("core migration does not create %s", table)
		}
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Env:            "development",
		JWTIssuer:      "medpay",
		AccessTokenTTL: 30 * time.Minute,
		BcryptCost:     4,
		Currency:       "RWF",
		SnowflakeNode:  1,
		CORSOrigins:    []string{"http://localhost:3000"},
	}
}

func newTestServer(t *testing.T) *server {
	t.Helper()
	schema, err := db.NewSchema("public", migrations.FS)
	if err != nil {
		t.Fatal(err)
	}
	srv, err := newServer(testConfig(), zerolog.Nop(), nil, schema, []byte("main-test-signing-key-0123456789ab"))
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return srv
}

func serve(srv *server, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_Routes(t *testing.T) {
	srv := newTestServer(t)

	registered := make(map[string]bool)
	for _, r := range srv.echo.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /",
		"GET /health",
		"GET /health/db",
		"GET /metrics",
		"POST /register",
		"POST /login",
		"GET /patients",
		"POST /add_medicine",
		"GET /medicines",
		"POST /assign_medicine",
		"POST /get_medicine_assigned/:patient_id",
		"POST /initiate_payment/:patient_id",
		"POST /verify_payment/:patient_id",
	} {
		if !registered[want] {
			t.Errorf("route %s not registered", want)
		}
	}
}

func TestNewServer_Welcome(t *testing.T) {
	rec := serve(newTestServer(t), http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["message"] != "Welcome to the Medical API" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected a request id header")
	}
}

func TestNewServer_ProtectedWithoutToken(t *testing.T) {
	srv := newTestServer(t)
	for _, target := range []string{"/patients", "/medicines"} {
		rec := serve(srv, http.MethodGet, target, "")
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", target, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Invalid or missing token") {
			t.Errorf("%s: unexpected body %s", target, rec.Body.String())
		}
	}
}

func TestNewServer_UnknownRoutesNotGuarded(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		method, target string
		code           int
	}{
		{http.MethodGet, "/no_such_route", http.StatusNotFound},
		{http.MethodPost, "/medicines/extra/segment", http.StatusNotFound},
		{http.MethodGet, "/assign_medicine", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/medicines", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := serve(srv, tt.method, tt.target, "")
		if rec.Code != tt.code {
			t.Errorf("%s %s: expected %d, got %d: %s", tt.method, tt.target, tt.code, rec.Code, rec.Body.String())
		}
	}
}

func TestMoneyEncodedAsNumber(t *testing.T) {
	intent := billing.PaymentIntent{PatientName: "Alice", AmountToPay: decimal.RequireFromString("1500"), Currency: "RWF"}
	b, err := json.Marshal(intent)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"amount_to_pay":1500`) {
		t.Errorf("expected a numeric amount, got %s", b)
	}

	var back billing.PaymentIntent
	if err := json.Unmarshal(b, &back); err != nil || !back.AmountToPay.Equal(intent.AmountToPay) {
		t.Errorf("round trip: %v %s", err, back.AmountToPay)
	}
}

func TestNewServer_ValidTokenReachesStore(t *testing.T) {
	srv := newTestServer(t)
	token, _, err := srv.tokens.Issue("patient-1")
	if err != nil {
		t.Fatal(err)
	}
	// The guard passes; with no pool the connection middleware answers.
	rec := serve(srv, http.MethodPost, "/verify_payment/not-a-uuid", token)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewServer_Metrics(t *testing.T) {
	srv := newTestServer(t)
	serve(srv, http.MethodGet, "/medicines", "")

	rec := serve(srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "medpay_auth_failures_total") {
		t.Error("auth failure counter missing from /metrics")
	}
	if !strings.Contains(body, "medpay_http_requests_total") {
		t.Error("request counter missing from /metrics")
	}
}

func TestInfraSkipper(t *testing.T) {
	e := echo.New()
	for path, want := range map[string]bool{
		"/":          true,
		"/health":    true,
		"/health/db": true,
		"/metrics":   true,
		"/register":  false,
		"/login":     false,
		"/patients":  false,
	} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
		c.SetPath(path)
		if got := infraSkipper(c); got != want {
			t.Errorf("infraSkipper(%s) = %v, want %v", path, got, want)
		}
	}
}
