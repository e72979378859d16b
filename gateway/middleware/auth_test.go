package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "gateway-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func TestAuthenticator(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{
		Enabled:    true,
		HMACSecret: testSecret,
		Issuer:     "kelili",
		Audience:   "kelili-gateway",
	}, nil)

	var subject string
	handler := auth.Middleware(ScopeWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = r.Context().Value(ContextKeySubject).(string)
		w.WriteHeader(http.StatusNoContent)
	}))

	valid := jwt.MapClaims{
		"sub":   "alice",
		"iss":   "kelili",
		"aud":   "kelili-gateway",
		"scope": "blobs:read blobs:write",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Basic abc", http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, valid), http.StatusNoContent},
		{"wrong issuer", "Bearer " + signToken(t, with(valid, "iss", "other")), http.StatusUnauthorized},
		{"wrong audience", "Bearer " + signToken(t, with(valid, "aud", "other")), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, with(valid, "exp", time.Now().Add(-time.Hour).Unix())), http.StatusUnauthorized},
		{"no expiry", "Bearer " + signToken(t, without(valid, "exp")), http.StatusUnauthorized},
		{"missing scope", "Bearer " + signToken(t, with(valid, "scope", "blobs:read")), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/v1/blobs", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			require.Equal(t, tc.want, res.Code)
		})
	}
	require.Equal(t, "alice", subject)
}

func TestAuthenticatorDisabled(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	res := httptest.NewRecorder()
	auth.Middleware(ScopeWrite)(okHandler()).ServeHTTP(res, httptest.NewRequest(http.MethodPut, "/v1/blobs", nil))
	require.Equal(t, http.StatusOK, res.Code)
}

func with(claims jwt.MapClaims, key string, value any) jwt.MapClaims {
	out := jwt.MapClaims{}
	for k, v := range claims {
		out[k] = v
	}
	out[key] = value
	return out
}

func without(claims jwt.MapClaims, key string) jwt.MapClaims {
	out := with(claims, key, nil)
	delete(out, key)
	return out
}
