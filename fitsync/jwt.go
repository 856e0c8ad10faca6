// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/FitGenius/FitGenius-sub001/internal/auth"
)

// ClientAuthenticator extracts caller identity from HTTP requests.
// Implementations validate auth (e.g., JWT) and provide user, tenant, and
// device identifiers. An empty tenant id with a nil error means the token is
// valid but carries no active tenant; handlers map that to the
// "Tenant context required" response.
type ClientAuthenticator interface {
	GetUserID(r *http.Request) (string, error)
	GetTenantID(r *http.Request) (string, error)
	GetSourceID(r *http.Request) (string, error)
}

// JWTAuth handles JWT authentication.
type JWTAuth struct {
	secret []byte
}

// NewJWTAuth creates a new JWT authenticator.
func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{
		secret: []byte(secret),
	}
}

// JWTClaims carries identity for multi-tenant multi-device sync.
type JWTClaims struct {
	TenantID string `json:"tid"` // Active tenant
	DeviceID string `json:"did"` // Device ID (becomes the change-log source)
	jwt.RegisteredClaims
}

// GenerateToken generates a JWT for the given user, tenant, and device.
func (j *JWTAuth) GenerateToken(userID, tenantID, deviceID string, expiration time.Duration) (string, error) {
	claims := &JWTClaims{
		TenantID: tenantID,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "fitsync",
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken validates a JWT and returns the claims.
func (j *JWTAuth) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		if claims.Subject == "" {
			return nil, fmt.Errorf("missing sub (user ID) in token")
		}
		if claims.DeviceID == "" {
			return nil, fmt.Errorf("missing did (device ID) in token")
		}
		// tid may legitimately be absent: a signed-in user without an active
		// tenant cannot sync, but the token itself is valid.
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

func (j *JWTAuth) claimsFromRequest(r *http.Request) (*JWTClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("authorization header required")
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return nil, fmt.Errorf("bearer token required")
	}

	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}

// GetUserID extracts the user ID from the JWT sub claim.
func (j *JWTAuth) GetUserID(r *http.Request) (string, error) {
	claims, err := j.claimsFromRequest(r)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// GetTenantID extracts the active tenant from the tid claim.
func (j *JWTAuth) GetTenantID(r *http.Request) (string, error) {
	claims, err := j.claimsFromRequest(r)
	if err != nil {
		return "", err
	}
	return claims.TenantID, nil
}

// GetSourceID extracts the device ID from the did claim.
func (j *JWTAuth) GetSourceID(r *http.Request) (string, error) {
	claims, err := j.claimsFromRequest(r)
	if err != nil {
		return "", err
	}
	return claims.DeviceID, nil
}

// Middleware validates the bearer token and stores the caller identity in
// the request context.
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := j.claimsFromRequest(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprintf(w, `{"error":"Authentication required"}`)
			return
		}

		ctx := auth.SetUserID(r.Context(), claims.Subject)
		ctx = auth.SetTenantID(ctx, claims.TenantID)
		ctx = auth.SetSourceID(ctx, claims.DeviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
