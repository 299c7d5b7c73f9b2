package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	issuer      = "handsup"
	clientIDKey = "client_id"
)

var errInvalidToken = errors.New("invalid or expired token")

// Auth issues and verifies the HS256 session tokens of API clients.
type Auth struct {
	secret []byte
	ttl    time.Duration
}

func NewAuth(secret string, ttl time.Duration) *Auth {
	return &Auth{secret: []byte(secret), ttl: ttl}
}

// Issue returns a signed token for clientID.
func (a *Auth) Issue(clientID string) (string, error) {
	claims := jwt.MapClaims{
		clientIDKey: clientID,
		"exp":       time.Now().Add(a.ttl).Unix(),
		"iss":       issuer,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify checks the token and returns its client id.
func (a *Auth) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errInvalidToken
	}
	id, _ := claims[clientIDKey].(string)
	if id == "" {
		return "", errInvalidToken
	}
	return id, nil
}

// Middleware requires a valid token, from the Authorization header or,
// for websocket upgrades, the token query parameter.
func (a *Auth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			tokenString = strings.TrimPrefix(header, "Bearer ")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token missing"})
			return
		}

		id, err := a.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(clientIDKey, id)
		c.Next()
	}
}

// CreateSession creates a client id and returns a token for it.
func (h *Handler) CreateSession(c *gin.Context) {
	clientID := uuid.New().String()

	token, err := h.Auth.Issue(clientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "client_id": clientID})
}
