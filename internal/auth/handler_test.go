package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	sharedauth "docvault-backend/internal/shared/auth"
	"docvault-backend/internal/users"
)

func setupRouter(t *testing.T) (*gin.Engine, *sharedauth.Issuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := users.NewService(users.NewMemoryRepo())
	svc.HashCost = bcrypt.MinCost
	issuer, err := sharedauth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	NewHandler(svc, issuer).RegisterRoutes(r.Group(""))
	return r, issuer
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestRegisterThenLogin(t *testing.T) {
	r, issuer := setupRouter(t)

	resp := postJSON(r, "/auth/register", gin.H{"username": "ann", "email": "ann@example.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.NotContains(t, resp.Body.String(), "password")

	var created users.User
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	resp = postJSON(r, "/auth/login", gin.H{"email": "ann@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body loginResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	claims, err := issuer.Verify(body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, claims.Subject)
	assert.Equal(t, "viewer", claims.Role)
	assert.False(t, claims.CanTriggerIngestion)
}

func TestRegisterValidation(t *testing.T) {
	r, _ := setupRouter(t)

	cases := []gin.H{
		{"username": "ann", "email": "not-an-email", "password": "secret1"},
		{"username": "ann", "email": "ann@example.com", "password": "123"},
		{"email": "ann@example.com", "password": "secret1"},
	}
	for _, body := range cases {
		resp := postJSON(r, "/auth/register", body)
		assert.Equal(t, http.StatusBadRequest, resp.Code, "body=%v", body)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	r, _ := setupRouter(t)
	body := gin.H{"username": "ann", "email": "ann@example.com", "password": "secret1"}
	require.Equal(t, http.StatusCreated, postJSON(r, "/auth/register", body).Code)
	assert.Equal(t, http.StatusConflict, postJSON(r, "/auth/register", body).Code)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	r, _ := setupRouter(t)
	require.Equal(t, http.StatusCreated, postJSON(r, "/auth/register", gin.H{"username": "ann", "email": "ann@example.com", "password": "secret1"}).Code)

	resp := postJSON(r, "/auth/login", gin.H{"email": "ann@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}
