// ABOUTME: Tests for the HTTP authentication middleware
// ABOUTME: Covers header parsing, token verification, and anonymous mode

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		token   string
		wantErr bool
	}{
		{header: "", wantErr: true},
		{header: "Basic abc", wantErr: true},
		{header: "Bearer ", wantErr: true},
		{header: "Bearer abc.def", token: "abc.def"},
	}
	for _, tt := range tests {
		token, errMsg := extractBearerToken(tt.header)
		assert.Equal(t, tt.token, token, tt.header)
		assert.Equal(t, tt.wantErr, errMsg != "", tt.header)
	}
}

func newAuthTestServer(verifier TokenVerifier, got **Identity) http.Handler {
	return HTTPAuthMiddleware(verifier, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	token, err := verifier.Generate("caller", "bot", time.Hour)
	require.NoError(t, err)

	var got *Identity
	h := newAuthTestServer(verifier, &got)

	req := httptest.NewRequest(http.MethodPost, "/api/messages", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "caller", got.AppID())
}

func TestHTTPAuthMiddleware_Rejects(t *testing.T) {
	verifier := NewJWTVerifier(testSecret)
	var got *Identity
	h := newAuthTestServer(verifier, &got)

	for _, header := range []string{"", "Bearer not-a-token"} {
		req := httptest.NewRequest(http.MethodPost, "/api/messages", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
	assert.Nil(t, got)
}

func TestHTTPAuthMiddleware_NilVerifierIsAnonymous(t *testing.T) {
	var got *Identity
	h := newAuthTestServer(nil, &got)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.False(t, got.Authenticated)
}
