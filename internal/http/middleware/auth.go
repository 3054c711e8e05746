// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. With a JWT secret configured,
// requests must carry an HS256 bearer token whose subject becomes the user
// ID. Without one (local development, tests) the X-User-ID header is trusted.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// CtxKeyUserID is the Gin context key holding the authenticated user ID.
const CtxKeyUserID = "userID"

// HeaderUserID is the development identity header.
const HeaderUserID = "X-User-ID"

// AnonymousUser is used when no identity is available and auth is optional.
const AnonymousUser = "demo-user"

// AuthOptions configures Auth.
type AuthOptions struct {
	// Secret verifies HS256 bearer tokens. Empty disables verification and
	// trusts X-User-ID.
	Secret string
	// Issuer, when set, must match the token's iss claim.
	Issuer string
}

var (
	errMissingToken = errors.New("missing bearer token")
	errNoSubject    = errors.New("token has no subject")
)

// Auth stores the caller's user ID under CtxKeyUserID.
func Auth(opts AuthOptions) gin.HandlerFunc {
	secret := []byte(opts.Secret)
	popts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if opts.Issuer != "" {
		popts = append(popts, jwt.WithIssuer(opts.Issuer))
	}
	parser := jwt.NewParser(popts...)

	return func(c *gin.Context) {
		if len(secret) == 0 {
			uid := strings.TrimSpace(c.GetHeader(HeaderUserID))
			if uid == "" {
				uid = AnonymousUser
			}
			c.Set(CtxKeyUserID, uid)
			c.Next()
			return
		}

		uid, err := subjectFromBearer(c.GetHeader("Authorization"), parser, secret)
		if err != nil {
			LoggerFrom(c).Debug().Err(err).Msg("rejected bearer token")
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		c.Set(CtxKeyUserID, uid)
		c.Next()
	}
}

func subjectFromBearer(header string, parser *jwt.Parser, secret []byte) (string, error) {
	scheme, raw, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return "", errMissingToken
	}
	var claims jwt.RegisteredClaims
	if _, err := parser.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}); err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errNoSubject
	}
	return claims.Subject, nil
}

// UserID returns the identity set by Auth, or AnonymousUser.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(CtxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return AnonymousUser
}

// abortJSON writes the API error envelope from inside middleware.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
