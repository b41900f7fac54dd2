package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"financial-reporter/internal/shared/auth"
)

func identityRouter(t *testing.T) (*gin.Engine, *auth.Verifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	verifier, err := auth.NewVerifier("test-secret", "dev")
	require.NoError(t, err)

	r := gin.New()
	r.Use(Identity(verifier))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": UserIDFromContext(c), "guest": IsGuest(c)})
	})
	return r, verifier
}

func TestIdentityFromBearer(t *testing.T) {
	r, verifier := identityRouter(t)
	token, err := verifier.Sign(auth.Claims{Sub: "user-7"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"userId":"user-7","guest":false}`, resp.Body.String())
}

func TestIdentityFromGuestHeader(t *testing.T) {
	r, _ := identityRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Guest-Id", "g1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"userId":"guest:g1","guest":true}`, resp.Body.String())
}

func TestIdentityAllowsAnonymous(t *testing.T) {
	r, _ := identityRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/whoami", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"userId":"","guest":false}`, resp.Body.String())
}

func TestIdentityRejectsMalformedBearer(t *testing.T) {
	r, _ := identityRouter(t)

	for _, header := range []string{"Bearer", "Bearer not.a.jwt", "Basic abc"} {
		t.Run(header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			req.Header.Set("Authorization", header)
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)
			assert.Equal(t, http.StatusUnauthorized, resp.Code)
		})
	}
}
