package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/config"
	"github.com/carevault/carevault/internal/domain/appointment"
	"github.com/carevault/carevault/internal/domain/prescription"
	"github.com/carevault/carevault/internal/domain/share"
	"github.com/carevault/carevault/internal/platform/auth"
)

type stubPrescriptions map[uuid.UUID]*prescription.Prescription

func (s stubPrescriptions) GetByID(_ context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return nil, prescription.ErrNotFound
}

type stubParties map[uuid.UUID]*appointment.Parties

func (s stubParties) GetParties(_ context.Context, id uuid.UUID) (*appointment.Parties, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return nil, appointment.ErrNotFound
}

func devConfig() *config.Config {
	return &config.Config{
		Env:                 "development",
		CORSOrigins:         []string{"http://localhost:3000"},
		ShareBaseURL:        "http://localhost:3000/share",
		ShareRateLimitRPS:   5,
		ShareRateLimitBurst: 2,
		RequestTimeout:      5 * time.Second,
		MetricsEnabled:      true,
	}
}

type testEnv struct {
	e              *echo.Echo
	prescriptionID uuid.UUID
	patientID      uuid.UUID
}

func newTestEnv(cfg *config.Config) *testEnv {
	return newLoggedTestEnv(cfg, zerolog.Nop())
}

func newLoggedTestEnv(cfg *config.Config, logger zerolog.Logger) *testEnv {
	env := &testEnv{prescriptionID: uuid.New(), patientID: uuid.New()}
	appointmentID := uuid.New()

	prescriptions := stubPrescriptions{env.prescriptionID: {
		ID:            env.prescriptionID,
		AppointmentID: appointmentID,
		Medications:   []prescription.Medication{{Name: "Ibuprofen", Dosage: "200mg", Frequency: "as needed"}},
		Status:        prescription.StatusFinalized,
	}}
	parties := stubParties{appointmentID: {
		AppointmentID: appointmentID,
		DoctorID:      uuid.New(),
		DoctorName:    "Dr. Lena Park",
		PatientID:     env.patientID,
	}}

	env.e = newServer(cfg, logger, backend{
		tokens:        share.NewMemoryStore(),
		prescriptions: prescriptions,
		parties:       parties,
	})
	return env
}

func (env *testEnv) do(method, path string, authenticated bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if authenticated {
		req.Header.Set(auth.HeaderUserID, env.patientID.String())
		req.Header.Set(auth.HeaderUserRole, "patient")
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(devConfig())

	rec := env.do(http.MethodGet, "/health", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Error("expected request id header")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected security headers on every response")
	}
}

func TestServer_ShareLifecycle(t *testing.T) {
	env := newTestEnv(devConfig())
	owner := "/share/prescriptions/" + env.prescriptionID.String()

	rec := env.do(http.MethodPost, owner, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}

	rec = env.do(http.MethodPost, owner, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Token string `json:"token"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(created.URL, "http://localhost:3000/share/") {
		t.Errorf("unexpected share url %q", created.URL)
	}

	rec = env.do(http.MethodGet, "/share/"+created.Token, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from share link, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Dr. Lena Park") {
		t.Errorf("expected doctor name in view: %s", rec.Body.String())
	}

	rec = env.do(http.MethodDelete, owner, true)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"revoked_count":1`) {
		t.Fatalf("unexpected revoke response %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/share/"+created.Token, false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after revocation, got %d", rec.Code)
	}
}

func TestServer_AccessLogMasksShareToken(t *testing.T) {
	var buf bytes.Buffer
	env := newLoggedTestEnv(devConfig(), zerolog.New(&buf))

	rec := env.do(http.MethodPost, "/share/prescriptions/"+env.prescriptionID.String(), true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	for _, path := range []string{"/share/" + created.Token, "/share/" + created.Token + "/"} {
		buf.Reset()
		env.do(http.MethodGet, path, false)
		if buf.Len() == 0 {
			t.Fatalf("%s: expected an access log line", path)
		}
		if strings.Contains(buf.String(), created.Token) {
			t.Errorf("%s: share token written to access log: %s", path, buf.String())
		}
		if !strings.Contains(buf.String(), share.MaskToken(created.Token)) {
			t.Errorf("%s: expected masked token in log: %s", path, buf.String())
		}
	}
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(devConfig())

	rec := env.do(http.MethodPost, "/share/prescriptions/"+env.prescriptionID.String(), true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	env.do(http.MethodGet, "/share/no-such-token", false)

	rec = env.do(http.MethodGet, "/metrics", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"carevault_share_links_issued_total 1",
		`carevault_share_resolves_total{outcome="invalid"} 1`,
		`route="/share/:token"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	if strings.Contains(body, "no-such-token") {
		t.Error("raw share token leaked into metric labels")
	}

	cfg := devConfig()
	cfg.MetricsEnabled = false
	if rec := newTestEnv(cfg).do(http.MethodGet, "/metrics", false); rec.Code != http.StatusNotFound {
		t.Errorf("expected /metrics to be absent when disabled, got %d", rec.Code)
	}
}

func (env *testEnv) resolveVia(token, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodGet, "/share/"+token, nil)
	req.RemoteAddr = "192.0.2.1:5555"
	req.Header.Set(echo.HeaderXForwardedFor, forwardedFor)
	req.Header.Set(echo.HeaderXRealIP, forwardedFor)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec.Code
}

func TestServer_RateLimitIgnoresForwardedHeaders(t *testing.T) {
	cfg := devConfig()
	cfg.ShareRateLimitRPS = 0.001
	env := newTestEnv(cfg)

	limited := 0
	for i := 0; i < 20; i++ {
		if env.resolveVia("unknown-token", fmt.Sprintf("198.51.100.%d", i+1)) == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 18 {
		t.Fatalf("expected 18 of 20 requests limited with burst 2, got %d", limited)
	}
}

func TestServer_RateLimitTrustsConfiguredProxy(t *testing.T) {
	cfg := devConfig()
	cfg.ShareRateLimitRPS = 0.001
	cfg.TrustedProxies = []string{"192.0.2.0/24"}
	env := newTestEnv(cfg)

	for i := 0; i < 5; i++ {
		if code := env.resolveVia("unknown-token", fmt.Sprintf("198.51.100.%d", i+1)); code != http.StatusNotFound {
			t.Fatalf("client %d behind trusted proxy: expected 404, got %d", i+1, code)
		}
	}
	for i := 0; i < 2; i++ {
		env.resolveVia("unknown-token", "203.0.113.9")
	}
	if code := env.resolveVia("unknown-token", "203.0.113.9"); code != http.StatusTooManyRequests {
		t.Fatalf("expected the forwarded client to be limited, got %d", code)
	}
}

func TestServer_ShareRouteIsRateLimited(t *testing.T) {
	cfg := devConfig()
	cfg.ShareRateLimitRPS = 0.001
	cfg.ShareRateLimitBurst = 2
	env := newTestEnv(cfg)

	for i := 0; i < 2; i++ {
		if rec := env.do(http.MethodGet, "/share/unknown-token", false); rec.Code != http.StatusNotFound {
			t.Fatalf("request %d: expected 404, got %d", i+1, rec.Code)
		}
	}
	if rec := env.do(http.MethodGet, "/share/unknown-token", false); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	// Owner routes are not behind the share limiter.
	if rec := env.do(http.MethodGet, "/share/prescriptions/"+env.prescriptionID.String(), true); rec.Code != http.StatusOK {
		t.Fatalf("expected owner route to be unaffected, got %d", rec.Code)
	}
}

func TestMigrationFiles_Embedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles(""), ".")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected embedded migrations")
	}
}

func TestMigrateCmd_Subcommands(t *testing.T) {
	cmd := migrateCmd()
	for _, name := range []string{"up", "status"} {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Fatalf("expected %q subcommand, got %v", name, err)
		}
		schema, err := sub.Flags().GetString("schema")
		if err != nil || schema != "public" {
			t.Errorf("%s: expected default schema public, got %q (%v)", name, schema, err)
		}
	}
}
