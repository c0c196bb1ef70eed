package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-456",
			Issuer:    "https://idp.test",
			Audience:  jwt.ClaimStrings{"fhir-search"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		TenantID:   "tenant_abc",
		Roles:      []string{"physician", "nurse"},
		FHIRScopes: []string{"user/Patient.read", "user/Observation.rs"},
	}
}

func runWithHeader(mw echo.MiddlewareFunc, header string, handler echo.HandlerFunc) error {
	req := httptest.NewRequest(http.MethodGet, "/fhir/Patient", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := echo.New().NewContext(req, httptest.NewRecorder())
	return mw(handler)(c)
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	otherIssuer := validClaims()
	otherIssuer.Issuer = "https://evil.test"

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage", "Bearer not.a.jwt"},
		{"expired", "Bearer " + createTestToken(t, expired, testSigningKey)},
		{"wrong key", "Bearer " + createTestToken(t, validClaims(), []byte("other-key"))},
		{"wrong issuer", "Bearer " + createTestToken(t, otherIssuer, testSigningKey)},
	}
	mw := JWTMiddleware(JWTConfig{Issuer: "https://idp.test", Audience: "fhir-search", SigningKey: testSigningKey})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runWithHeader(mw, tt.header, ok)
			if got := statusOf(err); got != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", got)
			}
		})
	}
}

func TestJWTMiddleware_ClaimsExtraction(t *testing.T) {
	tokenStr := createTestToken(t, validClaims(), testSigningKey)
	mw := JWTMiddleware(JWTConfig{Issuer: "https://idp.test", Audience: "fhir-search", SigningKey: testSigningKey})

	called := false
	err := runWithHeader(mw, "Bearer "+tokenStr, func(c echo.Context) error {
		called = true
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "user-456" {
			t.Errorf("user id = %s", uid)
		}
		if roles := RolesFromContext(ctx); len(roles) != 2 || roles[0] != "physician" {
			t.Errorf("roles = %v", roles)
		}
		if scopes := ScopesFromContext(ctx); len(scopes) != 2 || scopes[1] != "user/Observation.rs" {
			t.Errorf("scopes = %v", scopes)
		}
		if tid, _ := c.Get("jwt_tenant_id").(string); tid != "tenant_abc" {
			t.Errorf("tenant = %s", tid)
		}
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}

// jwksServer serves an OIDC discovery document and a JWKS holding key.
func jwksServer(t *testing.T, kid string, key *rsa.PublicKey) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"issuer": srv.URL, "jwks_uri": srv.URL + "/jwks"})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestJWTMiddleware_JWKSDiscovery(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	srv := jwksServer(t, "k1", &priv.PublicKey)

	claims := validClaims()
	claims.Issuer = srv.URL
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatal(err)
	}

	mw := JWTMiddleware(JWTConfig{Issuer: srv.URL})
	if err := runWithHeader(mw, "Bearer "+signed, ok); err != nil {
		t.Errorf("expected valid RS256 token, got %v", err)
	}

	token.Header["kid"] = "unknown"
	unknownKid, _ := token.SignedString(priv)
	if got := statusOf(runWithHeader(mw, "Bearer "+unknownKid, ok)); got != http.StatusUnauthorized {
		t.Errorf("unknown kid: status = %d", got)
	}
}

func TestDiscoverJWKSURL_Errors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	if _, err := DiscoverJWKSURL(srv.Client(), srv.URL); err == nil {
		t.Error("expected error for missing discovery document")
	}
}

func TestDevAuthMiddleware_NoToken(t *testing.T) {
	mw := DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey})
	err := runWithHeader(mw, "", func(c echo.Context) error {
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "dev-user" {
			t.Errorf("user id = %s", uid)
		}
		if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != "admin" {
			t.Errorf("roles = %v", roles)
		}
		if scopes := ScopesFromContext(ctx); len(scopes) != 1 || scopes[0] != "user/*.*" {
			t.Errorf("scopes = %v", scopes)
		}
		if tid, _ := c.Get("jwt_tenant_id").(string); tid != "default" {
			t.Errorf("tenant = %s", tid)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_ValidatesPresentedToken(t *testing.T) {
	mw := DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey})

	if got := statusOf(runWithHeader(mw, "Bearer garbage", ok)); got != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d", got)
	}

	claims := validClaims()
	claims.Roles = []string{"billing"}
	err := runWithHeader(mw, "Bearer "+createTestToken(t, claims, testSigningKey), func(c echo.Context) error {
		if roles := RolesFromContext(c.Request().Context()); len(roles) != 1 || roles[0] != "billing" {
			t.Errorf("roles = %v", roles)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
