package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"bazar_back_end/internal/models"
)

const principalKey = "principal"

var errNoSecret = errors.New("no token signing secret configured")

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Auth verifies HS256 bearer tokens issued by the account service.
type Auth struct {
	secret []byte
}

// NewAuth verifies with secret. An empty secret rejects every token.
func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// Sign issues a token for p. The account service owns login; this is used
// by tooling and tests.
func (a *Auth) Sign(p models.Principal, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errNoSecret
	}
	claims := Claims{
		UserID: p.UserID,
		Email:  p.Email,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Auth) parse(header string) (models.Principal, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return models.Principal{}, errors.New("malformed Authorization header")
	}
	if len(a.secret) == 0 {
		return models.Principal{}, errNoSecret
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return models.Principal{}, err
	}
	if claims.UserID == "" {
		return models.Principal{}, errors.New("token has no user_id")
	}
	return models.Principal{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

// Required rejects requests without a valid token.
func (a *Auth) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		p, err := a.parse(header)
		if err != nil {
			LoggerFrom(c).Debug("token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// Optional attaches the principal when a valid token is present. Checkout
// and tracking work for guests too.
func (a *Auth) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); header != "" {
			if p, err := a.parse(header); err == nil {
				c.Set(principalKey, p)
			}
		}
		c.Next()
	}
}

// PrincipalFrom returns the caller, or the zero Principal for guests.
func PrincipalFrom(c *gin.Context) models.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(models.Principal); ok {
			return p
		}
	}
	return models.Principal{}
}
