package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"participium/pkg/identity"
)

type UserClaims struct {
	UserID   identity.FlexID `json:"user_id"`
	Username string          `json:"username"`
	Role     string          `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for the given account.
func GenerateToken(secret []byte, ttl time.Duration, userID int64, username, role string) (string, error) {
	now := time.Now()
	claims := UserClaims{
		UserID:   identity.FlexID(userID),
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func ParseToken(secret []byte, tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token claims")
}

// BearerToken reads the Authorization header, then the token query
// parameter that EventSource clients have to use.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// IdentityFromToken turns a token into an identity. Any failure yields the
// anonymous identity.
func IdentityFromToken(secret []byte, tokenString string) identity.Identity {
	if tokenString == "" {
		return identity.Anonymous
	}
	claims, err := ParseToken(secret, tokenString)
	if err != nil {
		return identity.Anonymous
	}
	role, ok := identity.ParseBroadRole(claims.Role)
	if !ok || claims.UserID.Int64() <= 0 {
		return identity.Anonymous
	}
	return identity.Identity{
		CallerID:      claims.UserID.Int64(),
		Username:      claims.Username,
		Authenticated: true,
		Role:          role,
	}
}

// AuthMiddleware resolves the caller identity and stores it on the request
// context. It never rejects a request; handlers run the guards.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromToken(secret, BearerToken(r))
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
		})
	}
}
