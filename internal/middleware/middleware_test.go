package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type userRepoMock struct{ mock.Mock }

func (m *userRepoMock) FindByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *userRepoMock) LockByID(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims(userID int64, role model.Role, tv int) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":  userID,
		"role": string(role),
		"tv":   tv,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
}

func run(e *echo.Echo, req *http.Request, mws []echo.MiddlewareFunc, h echo.HandlerFunc) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	_ = h(c)
	return rec
}

func okHandler(c echo.Context) error {
	uid, _ := c.Get(CtxUserIDKey).(int64)
	return c.JSON(http.StatusOK, map[string]int64{"user_id": uid})
}

func TestAuthJWT(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}
	e := echo.New()

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"no token", func(r *http.Request) {}, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims(7, model.RoleUser, 0)))
		}, http.StatusOK},
		{"cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: signToken(t, testSecret, validClaims(7, model.RoleUser, 0))})
		}, http.StatusOK},
		{"wrong secret", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signToken(t, "other", validClaims(7, model.RoleUser, 0)))
		}, http.StatusUnauthorized},
		{"expired", func(r *http.Request) {
			cl := validClaims(7, model.RoleUser, 0)
			cl["exp"] = time.Now().Add(-time.Minute).Unix()
			r.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, cl))
		}, http.StatusUnauthorized},
		{"missing role", func(r *http.Request) {
			cl := validClaims(7, model.RoleUser, 0)
			delete(cl, "role")
			r.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, cl))
		}, http.StatusUnauthorized},
		{"basic scheme", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic abc")
		}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rec := run(e, req, []echo.MiddlewareFunc{AuthJWT(cfg)}, okHandler)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestOptionalAuthJWT(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}
	e := echo.New()

	t.Run("anonymous passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := run(e, req, []echo.MiddlewareFunc{OptionalAuthJWT(cfg)}, okHandler)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"user_id":0}`, rec.Body.String())
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := run(e, req, []echo.MiddlewareFunc{OptionalAuthJWT(cfg)}, okHandler)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("anonymous skips token version guard", func(t *testing.T) {
		users := &userRepoMock{}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := run(e, req, []echo.MiddlewareFunc{OptionalAuthJWT(cfg), TokenVersionGuard(users)}, okHandler)
		assert.Equal(t, http.StatusOK, rec.Code)
		users.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})
}

func TestTokenVersionGuard(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}
	e := echo.New()

	cases := []struct {
		name   string
		user   *model.User
		err    error
		status int
	}{
		{"matching version", &model.User{ID: 7, TokenVersion: 2, IsActive: true}, nil, http.StatusOK},
		{"bumped version", &model.User{ID: 7, TokenVersion: 3, IsActive: true}, nil, http.StatusUnauthorized},
		{"inactive", &model.User{ID: 7, TokenVersion: 2, IsActive: false}, nil, http.StatusUnauthorized},
		{"unknown user", nil, repository.ErrNotFound, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			users := &userRepoMock{}
			users.On("FindByID", mock.Anything, int64(7)).Return(tc.user, tc.err)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims(7, model.RoleUser, 2)))
			rec := run(e, req, []echo.MiddlewareFunc{AuthJWT(cfg), TokenVersionGuard(users)}, okHandler)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestAdminRoleGuard(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims(1, model.RoleUser, 0)))
	rec := run(e, req, []echo.MiddlewareFunc{AuthJWT(cfg), AdminRoleGuard()}, okHandler)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims(1, model.RoleAdmin, 0)))
	rec = run(e, req, []echo.MiddlewareFunc{AuthJWT(cfg), AdminRoleGuard()}, okHandler)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCartSession(t *testing.T) {
	e := echo.New()
	sessionHandler := func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get(CtxCartSessionKey).(string))
	}

	t.Run("issues cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := run(e, req, []echo.MiddlewareFunc{CartSession(time.Hour, false)}, sessionHandler)
		require.Equal(t, http.StatusOK, rec.Code)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, CartSessionCookie, cookies[0].Name)
		assert.Equal(t, rec.Body.String(), cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, 3600, cookies[0].MaxAge)
	})

	t.Run("reuses valid cookie", func(t *testing.T) {
		id := "0b9f3c1e-5a2d-4d0e-9a44-2f1b7c6d8e90"
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CartSessionCookie, Value: id})
		rec := run(e, req, []echo.MiddlewareFunc{CartSession(time.Hour, false)}, sessionHandler)
		assert.Equal(t, id, rec.Body.String())
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("replaces malformed cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CartSessionCookie, Value: "../../etc"})
		rec := run(e, req, []echo.MiddlewareFunc{CartSession(time.Hour, false)}, sessionHandler)
		assert.NotEqual(t, "../../etc", rec.Body.String())
		assert.Len(t, rec.Result().Cookies(), 1)
	})
}

func TestCheckoutRateLimit(t *testing.T) {
	e := echo.New()
	mw := CheckoutRateLimit(0.001, 2)
	withUser := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(CtxUserIDKey, int64(9))
			return next(c)
		}
	}

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
		rec := run(e, req, []echo.MiddlewareFunc{withUser, mw}, okHandler)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestParseAccessToken(t *testing.T) {
	t.Run("string sub", func(t *testing.T) {
		cl := validClaims(0, model.RoleAdmin, 3)
		cl["sub"] = "42"
		claims, err := parseAccessToken(signToken(t, testSecret, cl), testSecret)
		require.NoError(t, err)
		id, err := claims.userID()
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
		assert.Equal(t, 3, *claims.TokenVersion)
	})

	t.Run("other algorithm", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS512, validClaims(7, model.RoleUser, 0))
		raw, err := tok.SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = parseAccessToken(raw, testSecret)
		assert.Error(t, err)
	})

	t.Run("missing tv", func(t *testing.T) {
		cl := validClaims(7, model.RoleUser, 0)
		delete(cl, "tv")
		_, err := parseAccessToken(signToken(t, testSecret, cl), testSecret)
		assert.Error(t, err)
	})

	t.Run("non-positive sub", func(t *testing.T) {
		claims, err := parseAccessToken(signToken(t, testSecret, validClaims(0, model.RoleUser, 0)), testSecret)
		require.NoError(t, err)
		_, err = claims.userID()
		assert.Error(t, err)
	})
}
