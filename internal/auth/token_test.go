package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestExtractTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")

	token, err := ExtractTokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)
}

func TestExtractTokenFromRequestRejectsBadHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractTokenFromRequest(req)
	assert.Error(t, err)

	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, err = ExtractTokenFromRequest(req)
	assert.Error(t, err)
}

func TestExtractUserIDFromJWT(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "user-1"})

	sub, err := ExtractUserIDFromJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)
}

func TestExtractUserIDFromJWTWithoutSubject(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"aud": "orders"})

	_, err := ExtractUserIDFromJWT(token)
	assert.Error(t, err)

	_, err = ExtractUserIDFromJWT("")
	assert.Error(t, err)
}

func TestUserIDContextRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-1")
	assert.Equal(t, "user-1", UserID(ctx))
	assert.Equal(t, "", UserID(context.Background()))
}
