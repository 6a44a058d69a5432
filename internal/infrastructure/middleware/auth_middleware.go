package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dowhatkennydoes/distancedoc-sub000/internal/core/domain"
)

// ParticipantClaims are the JWT claims issued to call participants.
type ParticipantClaims struct {
	ParticipantID string `json:"participant_id"`
	SessionID     string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken creates a signed participant token. Used by the session
// bootstrap endpoint; agents present it when attaching to the relay.
func IssueToken(secret string, participant domain.ParticipantID, session domain.SessionID, ttl time.Duration) (string, error) {
	claims := ParticipantClaims{
		ParticipantID: string(participant),
		SessionID:     string(session),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(participant),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and verifies a participant token.
func ValidateToken(secret, tokenString string) (*ParticipantClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ParticipantClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*ParticipantClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// AuthMiddleware requires a valid Bearer token and stores the claims in
// the request context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := ValidateToken(secret, parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set("participant_id", domain.ParticipantID(claims.ParticipantID))
		if claims.SessionID != "" {
			c.Set("session_id", domain.SessionID(claims.SessionID))
		}
		c.Next()
	}
}

// OptionalAuthMiddleware validates a token when present but lets
// anonymous requests through. Used on the websocket attach endpoint so
// deployments can phase auth in.
func OptionalAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			if claims, err := ValidateToken(secret, parts[1]); err == nil {
				c.Set("participant_id", domain.ParticipantID(claims.ParticipantID))
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
