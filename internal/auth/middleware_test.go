package auth

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/library-system/auth-service/internal/domain"
	apperrors "github.com/library-system/auth-service/pkg/util"
)

type rotatorFunc func(ctx context.Context, refreshToken string) (domain.Session, error)

func (f rotatorFunc) Rotate(ctx context.Context, refreshToken string) (domain.Session, error) {
	return f(ctx, refreshToken)
}

type verifierFunc func(ctx context.Context, token string) (domain.Identity, error)

func (f verifierFunc) VerifyAccess(ctx context.Context, token string) (domain.Identity, error) {
	return f(ctx, token)
}

func newTestApp(m *Middleware) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).SendString(domainErr.Code)
		},
	})
	api := app.Group("/api", m.Handle)
	api.Get("/whoami", func(c *fiber.Ctx) error {
		identity, ok := IdentityFromContext(c.UserContext())
		if !ok {
			return c.SendString("anonymous")
		}
		return c.SendString(identity.Username)
	})
	api.Get("/private", RequireAuthenticated(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	api.Get("/admin", RequireRole(domain.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, path string, headers map[string]string) (int, string, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body), map[string]string{
		HeaderNewAccessToken:  resp.Header.Get(HeaderNewAccessToken),
		HeaderNewRefreshToken: resp.Header.Get(HeaderNewRefreshToken),
	}
}

func noRotation(t *testing.T) SessionRotator {
	return rotatorFunc(func(context.Context, string) (domain.Session, error) {
		t.Error("rotation not expected")
		return domain.Session{}, errors.New("unexpected rotation")
	})
}

func TestMiddlewareWithoutTokenPassesThrough(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(NewMiddleware(f.verifier, noRotation(t), nil, nil))

	status, body, _ := doRequest(t, app, "/api/whoami", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "anonymous", body)

	status, _, _ = doRequest(t, app, "/api/private", nil)
	require.Equal(t, fiber.StatusUnauthorized, status)

	status, _, _ = doRequest(t, app, "/api/whoami", map[string]string{"Authorization": "Basic abc"})
	require.Equal(t, fiber.StatusOK, status)
}

func TestMiddlewareAcceptsValidAccessToken(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(NewMiddleware(f.verifier, noRotation(t), nil, nil))

	token, _, err := f.issuer.Issue("alice", PurposeAccess)
	require.NoError(t, err)

	status, body, headers := doRequest(t, app, "/api/whoami", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "alice", body)
	require.Empty(t, headers[HeaderNewAccessToken])

	status, _, _ = doRequest(t, app, "/api/whoami", map[string]string{"Authorization": "bearer " + token})
	require.Equal(t, fiber.StatusOK, status)
}

func TestMiddlewareRejectsInvalidAccessToken(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(NewMiddleware(f.verifier, noRotation(t), nil, nil))

	refresh, _, err := f.issuer.Issue("alice", PurposeRefresh)
	require.NoError(t, err)

	for _, token := range []string{"garbage", refresh} {
		status, body, _ := doRequest(t, app, "/api/whoami", map[string]string{"Authorization": "Bearer " + token})
		require.Equal(t, fiber.StatusUnauthorized, status)
		require.Equal(t, apperrors.CodeUnauthorized, body)
	}
}

func TestMiddlewareExpiredWithoutRefreshHeader(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(NewMiddleware(f.verifier, noRotation(t), nil, nil))

	token, _, err := f.issuer.Issue("alice", PurposeAccess)
	require.NoError(t, err)
	f.clock.Advance(testAccessDuration)

	status, _, _ := doRequest(t, app, "/api/whoami", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, fiber.StatusUnauthorized, status)
}

func TestMiddlewareTransparentRefresh(t *testing.T) {
	f := newFixture(t)

	var presented string
	rotator := rotatorFunc(func(_ context.Context, refreshToken string) (domain.Session, error) {
		presented = refreshToken
		return domain.Session{
			Identity: domain.Identity{Username: "alice", Role: domain.RoleUser},
			Tokens:   domain.TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh"},
		}, nil
	})
	app := newTestApp(NewMiddleware(f.verifier, rotator, nil, nil))

	token, _, err := f.issuer.Issue("alice", PurposeAccess)
	require.NoError(t, err)
	f.clock.Advance(testAccessDuration + time.Minute)

	status, body, headers := doRequest(t, app, "/api/whoami", map[string]string{
		"Authorization":    "Bearer " + token,
		HeaderRefreshToken: "old-refresh",
	})
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "alice", body)
	require.Equal(t, "old-refresh", presented)
	require.Equal(t, "new-access", headers[HeaderNewAccessToken])
	require.Equal(t, "new-refresh", headers[HeaderNewRefreshToken])
}

func TestMiddlewareRefreshFailureIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	rotator := rotatorFunc(func(context.Context, string) (domain.Session, error) {
		return domain.Session{}, ErrRefreshReuseDetected
	})
	app := newTestApp(NewMiddleware(f.verifier, rotator, nil, nil))

	token, _, err := f.issuer.Issue("alice", PurposeAccess)
	require.NoError(t, err)
	f.clock.Advance(testAccessDuration)

	status, _, headers := doRequest(t, app, "/api/whoami", map[string]string{
		"Authorization":    "Bearer " + token,
		HeaderRefreshToken: "stolen",
	})
	require.Equal(t, fiber.StatusUnauthorized, status)
	require.Empty(t, headers[HeaderNewAccessToken])
	require.Empty(t, headers[HeaderNewRefreshToken])
}

func TestMiddlewareVerifierFailureIsInternal(t *testing.T) {
	verifier := verifierFunc(func(context.Context, string) (domain.Identity, error) {
		return domain.Identity{}, errors.New("member store down")
	})
	app := newTestApp(NewMiddleware(verifier, noRotation(t), nil, nil))

	status, body, _ := doRequest(t, app, "/api/whoami", map[string]string{"Authorization": "Bearer anything"})
	require.Equal(t, fiber.StatusInternalServerError, status)
	require.Equal(t, apperrors.CodeInternal, body)
}

func TestRequireRole(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(NewMiddleware(f.verifier, noRotation(t), nil, nil))

	user, _, err := f.issuer.Issue("alice", PurposeAccess)
	require.NoError(t, err)
	admin, _, err := f.issuer.Issue("root", PurposeAccess)
	require.NoError(t, err)

	status, _, _ := doRequest(t, app, "/api/admin", map[string]string{"Authorization": "Bearer " + user})
	require.Equal(t, fiber.StatusForbidden, status)

	status, _, _ = doRequest(t, app, "/api/admin", map[string]string{"Authorization": "Bearer " + admin})
	require.Equal(t, fiber.StatusOK, status)

	status, _, _ = doRequest(t, app, "/api/admin", nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
}
