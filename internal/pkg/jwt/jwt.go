package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
)

const (
	TokenTypeAccess = "access"
	TokenTypeSSE    = "sse"

	sseTokenTTL = 5 * time.Minute
)

var ErrInvalidClaims = errors.New("token is missing required claims")

// Claims is the identity carried by every token this service mints.
type Claims struct {
	UserID     string
	EmployeeID string
	Role       user.Role
	Type       string
}

type Service interface {
	GenerateAccessToken(userID, employeeID string, role user.Role) (token string, expiresAt int64, err error)
	GenerateSSEToken(userID, employeeID string, role user.Role) (token string, expiresIn int, err error)
	ValidateSSEToken(tokenString string) (Claims, error)
	JWTAuth() *jwtauth.JWTAuth
}

type JWTService struct {
	accessTokenTTL time.Duration
	tokenAuth      *jwtauth.JWTAuth
	now            func() time.Time
}

func (j *JWTService) JWTAuth() *jwtauth.JWTAuth {
	return j.tokenAuth
}

// NewJWTService parses accessTokenExpirationTime as a Go duration ("15m", "1h").
func NewJWTService(secretKey string, accessTokenExpirationTime string) (*JWTService, error) {
	ttl, err := time.ParseDuration(accessTokenExpirationTime)
	if err != nil {
		return nil, fmt.Errorf("failed to parse access token expiration: %w", err)
	}
	return &JWTService{
		accessTokenTTL: ttl,
		tokenAuth:      jwtauth.New("HS256", []byte(secretKey), nil, jwt.WithAcceptableSkew(30*time.Second)),
		now:            time.Now,
	}, nil
}

func (j *JWTService) GenerateAccessToken(userID, employeeID string, role user.Role) (token string, expiresAt int64, err error) {
	expiresAt = j.now().Add(j.accessTokenTTL).Unix()
	_, token, err = j.tokenAuth.Encode(map[string]interface{}{
		"user_id":     userID,
		"employee_id": employeeID,
		"role":        string(role),
		"type":        TokenTypeAccess,
		"exp":         expiresAt,
	})
	return token, expiresAt, err
}

// GenerateSSEToken generates a short-lived token for SSE connections, which
// cannot carry an Authorization header from a browser EventSource.
func (j *JWTService) GenerateSSEToken(userID, employeeID string, role user.Role) (token string, expiresIn int, err error) {
	_, token, err = j.tokenAuth.Encode(map[string]interface{}{
		"user_id":     userID,
		"employee_id": employeeID,
		"role":        string(role),
		"type":        TokenTypeSSE,
		"exp":         j.now().Add(sseTokenTTL).Unix(),
	})
	if err != nil {
		return "", 0, err
	}
	return token, int(sseTokenTTL.Seconds()), nil
}

func (j *JWTService) ValidateSSEToken(tokenString string) (Claims, error) {
	token, err := j.tokenAuth.Decode(tokenString)
	if err != nil {
		return Claims{}, err
	}
	claims, err := ClaimsFromMap(token.PrivateClaims())
	if err != nil {
		return Claims{}, err
	}
	if claims.Type != TokenTypeSSE {
		return Claims{}, jwt.ErrInvalidJWT()
	}
	return claims, nil
}

// ClaimsFromContext reads the claims jwtauth.Verifier stored on the request.
func ClaimsFromContext(ctx context.Context) (Claims, error) {
	_, raw, err := jwtauth.FromContext(ctx)
	if err != nil {
		return Claims{}, err
	}
	return ClaimsFromMap(raw)
}

func ClaimsFromMap(raw map[string]interface{}) (Claims, error) {
	str := func(key string) string {
		v, _ := raw[key].(string)
		return v
	}
	c := Claims{
		UserID:     str("user_id"),
		EmployeeID: str("employee_id"),
		Role:       user.Role(str("role")),
		Type:       str("type"),
	}
	if c.UserID == "" || c.Role == "" {
		return Claims{}, ErrInvalidClaims
	}
	return c, nil
}
