package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazar_back_end/internal/cache"
	"bazar_back_end/internal/models"
)

func init() { gin.SetMode(gin.TestMode) }

func router(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	r.GET("/", append(mw, func(c *gin.Context) {
		p := PrincipalFrom(c)
		c.JSON(http.StatusOK, gin.H{"user": p.UserID, "role": p.Role})
	})...)
	return r
}

func get(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5000"
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	auth := NewAuth("s3cret")
	r := router(auth.Required())

	token, err := auth.Sign(models.Principal{UserID: "u-1", Role: "admin"}, time.Hour)
	require.NoError(t, err)

	w := get(r, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"u-1","role":"admin"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusUnauthorized, get(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Token "+token).Code)

	other, _ := NewAuth("other").Sign(models.Principal{UserID: "u-1"}, time.Hour)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer "+other).Code)

	expired, _ := auth.Sign(models.Principal{UserID: "u-1"}, -time.Minute)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer "+expired).Code)
}

func TestAuthWithoutSecretRejectsEverything(t *testing.T) {
	auth := NewAuth("")
	r := router(auth.Required())

	_, err := auth.Sign(models.Principal{UserID: "u-1"}, time.Hour)
	assert.Error(t, err)

	// A token signed with an empty HMAC key must not verify.
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           "u-1",
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer "+forged).Code)
}

func TestAuthRejectsTokensWithoutExpiryOrUser(t *testing.T) {
	auth := NewAuth("s3cret")
	r := router(auth.Required())

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u-1"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer "+noExp).Code)

	noUser, _ := auth.Sign(models.Principal{}, time.Hour)
	assert.Equal(t, http.StatusUnauthorized, get(r, "Bearer "+noUser).Code)
}

func TestAuthOptional(t *testing.T) {
	auth := NewAuth("s3cret")
	r := router(auth.Optional())

	w := get(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"","role":""}`, w.Body.String())

	w = get(r, "Bearer garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"","role":""}`, w.Body.String())

	token, _ := auth.Sign(models.Principal{UserID: "u-2"}, time.Hour)
	w = get(r, "Bearer "+token)
	assert.JSONEq(t, `{"user":"u-2","role":""}`, w.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	auth := NewAuth("s3cret")
	r := router(auth.Required(), RequireAdmin)

	user, _ := auth.Sign(models.Principal{UserID: "u-1", Role: "customer"}, time.Hour)
	admin, _ := auth.Sign(models.Principal{UserID: "u-9", Role: "admin"}, time.Hour)

	assert.Equal(t, http.StatusForbidden, get(r, "Bearer "+user).Code)
	assert.Equal(t, http.StatusOK, get(r, "Bearer "+admin).Code)
}

func TestWindowLimit(t *testing.T) {
	r := router(WindowLimit(cache.NewMemory(), "track", 2, time.Minute))

	first := get(r, "")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, get(r, "").Code)

	w := get(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestIPLimiter(t *testing.T) {
	l := NewIPLimiter(0.001, 1)
	r := router(l.Middleware())

	assert.Equal(t, http.StatusOK, get(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "").Code)

	assert.Equal(t, 0, l.Sweep(time.Now()))
	assert.Equal(t, 1, l.Sweep(time.Now().Add(5*time.Minute)))
	assert.Equal(t, http.StatusOK, get(r, "").Code, "swept visitors start with a fresh bucket")
}
