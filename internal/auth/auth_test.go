package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/enrollment-service/internal/domain"
	apperrors "github.com/spec-kit/enrollment-service/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", time.Minute)
	caller := domain.Caller{UserID: "inst-1", Role: domain.RoleInstructor, ScopeIDs: []string{"off-1", "off-2"}}

	token, expiresAt, err := tm.GenerateToken(caller)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, caller, claims.Caller())
}

func TestParseTokenRejects(t *testing.T) {
	tm := NewTokenManager("secret", time.Minute)

	other, _, err := NewTokenManager("other", time.Minute).GenerateToken(domain.Caller{UserID: "stu-1", Role: domain.RoleStudent})
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Role: domain.RoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "stu-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	unknownRole, _, err := tm.GenerateToken(domain.Caller{UserID: "x", Role: "REGISTRAR"})
	require.NoError(t, err)

	noSubject, _, err := tm.GenerateToken(domain.Caller{Role: domain.RoleStudent})
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong secret": other,
		"expired":      expired,
		"unknown role": unknownRole,
		"no subject":   noSubject,
		"garbage":      "not-a-jwt",
	} {
		_, err := tm.ParseToken(token)
		assert.Error(t, err, name)
	}
}

func newTestApp(tm *TokenManager, guards ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).SendString(domainErr.Code)
		},
	})
	handlers := append([]fiber.Handler{NewAuthMiddleware(tm).Handle}, guards...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		caller, ok := CallerFromContext(c)
		if !ok {
			return fiber.ErrInternalServerError
		}
		return c.SendString(caller.UserID)
	})
	app.Get("/whoami", handlers...)
	return app
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", time.Minute)
	app := newTestApp(tm)

	token, _, err := tm.GenerateToken(domain.Caller{UserID: "stu-1", Role: domain.RoleStudent})
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, fiber.StatusOK},
		{"lowercase scheme", "bearer " + token, fiber.StatusOK},
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, fiber.StatusUnauthorized},
		{"bad token", "Bearer nope", fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/whoami", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestRequireRole(t *testing.T) {
	tm := NewTokenManager("secret", time.Minute)
	app := newTestApp(tm, RequireRole(domain.RoleInstructor, domain.RoleAdvisor))

	studentToken, _, err := tm.GenerateToken(domain.Caller{UserID: "stu-1", Role: domain.RoleStudent})
	require.NoError(t, err)
	advisorToken, _, err := tm.GenerateToken(domain.Caller{UserID: "adv-1", Role: domain.RoleAdvisor, ScopeIDs: []string{"batch-a"}})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+studentToken)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+advisorToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
