package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"participium/pkg/apperr"
	"participium/pkg/identity"
)

var secret = []byte("test-secret")

func captureIdentity(t *testing.T, req *http.Request) identity.Identity {
	t.Helper()
	var got identity.Identity
	h := AuthMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = identity.FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestAuthMiddlewareResolvesIdentity(t *testing.T) {
	token, err := GenerateToken(secret, time.Hour, 42, "mrossi", "staff")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	got := captureIdentity(t, req)
	if !got.Authenticated || got.CallerID != 42 || got.Role != identity.RoleStaff || got.Username != "mrossi" {
		t.Fatalf("identity = %+v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/stream?token="+token, nil)
	if got := captureIdentity(t, req); got.CallerID != 42 {
		t.Fatalf("query token ignored: %+v", got)
	}
}

func TestAuthMiddlewareFallsBackToAnonymous(t *testing.T) {
	expired, _ := GenerateToken(secret, -time.Minute, 42, "x", "STAFF")
	otherKey, _ := GenerateToken([]byte("other"), time.Hour, 42, "x", "STAFF")
	unknownRole, _ := GenerateToken(secret, time.Hour, 42, "x", "MAYOR")

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"garbage", "Bearer not-a-token"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + otherKey},
		{"unknown role", "Bearer " + unknownRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := captureIdentity(t, req); got.Authenticated {
				t.Fatalf("identity = %+v, want anonymous", got)
			}
		})
	}
}

func TestParseTokenAcceptsStringUserID(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "17",
		"role":    "CITIZEN",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, _ := token.SignedString(secret)

	claims, err := ParseToken(secret, signed)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID.Int64() != 17 {
		t.Fatalf("user id = %d", claims.UserID)
	}
}

func TestParseTokenRejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": 1, "role": "ADMIN"})
	signed, _ := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := ParseToken(secret, signed); err == nil {
		t.Fatal("unsigned token accepted")
	}
}

func TestTraceAndLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	var ctxTrace string
	h := TraceMiddleware(LoggerMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxTrace = TraceIDFromContext(r.Context())
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	req.Header.Set("X-Trace-Id", "trace-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("X-Trace-Id") != "trace-123" || ctxTrace != "trace-123" {
		t.Fatalf("trace id not propagated: header=%q ctx=%q", rec.Header().Get("X-Trace-Id"), ctxTrace)
	}
	out := buf.String()
	if strings.Count(out, `"trace_id":"trace-123"`) != 2 || !strings.Contains(out, `"status":418`) {
		t.Fatalf("log output = %s", out)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatal("trace id not generated")
	}
}

func TestRecoverer(t *testing.T) {
	var buf bytes.Buffer
	h := Recoverer(zerolog.New(&buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatal("panic value leaked to client")
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Fatal("panic not logged")
	}
}

func TestOutcomeAndNormalizePath(t *testing.T) {
	if Outcome(nil) != "ok" || Outcome(apperr.NotEligible("x")) != "not_eligible" || Outcome(errors.New("x")) != "error" {
		t.Fatal("unexpected outcome labels")
	}
	if got := normalizePath("/api/reports/12/start"); got != "/api/reports/:id/start" {
		t.Fatalf("normalizePath = %q", got)
	}
}
