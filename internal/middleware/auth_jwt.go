package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"storefront/internal/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey       = "user_id"       // int64
	CtxUserRoleKey     = "user_role"     // string
	CtxTokenVersionKey = "token_version" // int
	CtxAuthOptionalKey = "auth_optional" // bool

	AccessTokenCookie = "access_token"
)

var errNoToken = errors.New("no token")

// AuthJWT requires a valid HS256 access token.
func AuthJWT(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := authenticate(c, cfg.JWTSecret); err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			return next(c)
		}
	}
}

// OptionalAuthJWT lets anonymous requests through. A token that is present
// but invalid is still rejected.
func OptionalAuthJWT(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(CtxAuthOptionalKey, true)
			err := authenticate(c, cfg.JWTSecret)
			if err != nil && !errors.Is(err, errNoToken) {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			return next(c)
		}
	}
}

// AccessClaims is what the auth service puts into access tokens. Sub is
// numeric and shadows RegisteredClaims.Subject.
type AccessClaims struct {
	Sub          json.Number `json:"sub"`
	Role         string      `json:"role"`
	TokenVersion *int        `json:"tv"`
	jwt.RegisteredClaims
}

func (c AccessClaims) userID() (int64, error) {
	id, err := c.Sub.Int64()
	if err != nil || id <= 0 {
		return 0, errors.New("invalid sub")
	}
	return id, nil
}

func parseAccessToken(raw, secret string) (AccessClaims, error) {
	var claims AccessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return AccessClaims{}, err
	}
	if claims.Role == "" {
		return AccessClaims{}, errors.New("invalid role")
	}
	if claims.TokenVersion == nil || *claims.TokenVersion < 0 {
		return AccessClaims{}, errors.New("invalid tv")
	}
	return claims, nil
}

func authenticate(c echo.Context, secret string) error {
	raw, err := tokenFromRequest(c)
	if err != nil {
		return err
	}
	claims, err := parseAccessToken(raw, secret)
	if err != nil {
		return err
	}
	userID, err := claims.userID()
	if err != nil {
		return err
	}

	c.Set(CtxUserIDKey, userID)
	c.Set(CtxUserRoleKey, claims.Role)
	c.Set(CtxTokenVersionKey, *claims.TokenVersion)
	return nil
}

// Authorization: Bearer first, then the access_token cookie.
func tokenFromRequest(c echo.Context) (string, error) {
	if authz := c.Request().Header.Get("Authorization"); authz != "" {
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", errors.New("malformed authorization header")
		}
		raw := strings.TrimSpace(parts[1])
		if raw == "" {
			return "", errors.New("empty bearer token")
		}
		return raw, nil
	}
	if ck, err := c.Cookie(AccessTokenCookie); err == nil && ck.Value != "" {
		return ck.Value, nil
	}
	return "", errNoToken
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}
