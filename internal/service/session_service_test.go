package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/library-system/auth-service/internal/auth"
	"github.com/library-system/auth-service/internal/domain"
	"github.com/library-system/auth-service/internal/events"
	"github.com/library-system/auth-service/internal/observability"
	"github.com/library-system/auth-service/internal/repository"
)

const (
	accessDuration  = time.Minute
	refreshDuration = time.Hour
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	clock    *testClock
	members  *repository.MemoryMemberRepository
	store    *repository.MemoryRefreshStore
	verifier *auth.Verifier
	sessions *SessionService
	audit    *AuditService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}

	signer, err := auth.NewSigner(
		[]byte(strings.Repeat("a", 32)),
		[]byte(strings.Repeat("r", 32)),
		auth.WithIssuer("library-test"),
		auth.WithSignerClock(clock.Now),
	)
	require.NoError(t, err)
	issuer, err := auth.NewIssuer(signer, auth.IssuerConfig{
		Issuer:          "library-test",
		AccessDuration:  accessDuration,
		RefreshDuration: refreshDuration,
	}, clock.Now)
	require.NoError(t, err)

	members := repository.NewMemoryMemberRepository()
	hasher := newTestHasher(t)
	memberService := NewMemberService(members, hasher, nil)
	_, err = memberService.Register(context.Background(), "alice", "correct-horse", domain.RoleUser)
	require.NoError(t, err)
	_, err = memberService.Register(context.Background(), "bob", "battery-staple", domain.RoleUser)
	require.NoError(t, err)

	store := repository.NewMemoryRefreshStore(clock.Now)
	verifier := auth.NewVerifier(signer, members)
	dispatcher := events.NewInMemoryDispatcher()
	audit := NewAuditService(dispatcher, nil)
	audit.RegisterHandlers()

	sessions, err := NewSessionService(SessionDependencies{
		Members:  members,
		Hasher:   hasher,
		Issuer:   issuer,
		Verifier: verifier,
		Store:    store,
		Events:   dispatcher,
		Metrics:  observability.NewMetrics("test"),
		Clock:    clock.Now,
	})
	require.NoError(t, err)

	return &harness{
		clock:    clock,
		members:  members,
		store:    store,
		verifier: verifier,
		sessions: sessions,
		audit:    audit,
	}
}

func (h *harness) login(t *testing.T, username, password string) domain.Session {
	t.Helper()
	session, err := h.sessions.Login(context.Background(), username, password)
	require.NoError(t, err)
	return session
}

func TestLoginIssuesVerifiablePair(t *testing.T) {
	h := newHarness(t)

	session := h.login(t, "alice", "correct-horse")
	require.Equal(t, domain.Identity{Username: "alice", Role: domain.RoleUser}, session.Identity)
	require.NotEmpty(t, session.Tokens.AccessToken)
	require.NotEmpty(t, session.Tokens.RefreshToken)

	identity, err := h.verifier.VerifyAccess(context.Background(), session.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", identity.Username)

	record, err := h.store.Get(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, auth.Fingerprint(session.Tokens.RefreshToken), record.Value)
	require.NotEqual(t, session.Tokens.RefreshToken, record.Value)
	require.Equal(t, 1, h.audit.Count(events.EventLoginSucceeded))
}

func TestLoginWrongPasswordLeavesRecordUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session := h.login(t, "alice", "correct-horse")
	before, err := h.store.Get(ctx, "alice")
	require.NoError(t, err)

	_, err = h.sessions.Login(ctx, "alice", "wrong")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)

	after, err := h.store.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, before.Value, after.Value)

	_, err = h.sessions.Rotate(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)

	_, err = h.sessions.Login(ctx, "bob", "wrong")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = h.store.Get(ctx, "bob")
	require.ErrorIs(t, err, repository.ErrRefreshRecordNotFound)
}

func TestLoginUnknownUserMatchesWrongPassword(t *testing.T) {
	h := newHarness(t)

	_, errUnknown := h.sessions.Login(context.Background(), "mallory", "whatever")
	_, errWrong := h.sessions.Login(context.Background(), "alice", "whatever")

	require.ErrorIs(t, errUnknown, auth.ErrInvalidCredentials)
	require.ErrorIs(t, errWrong, auth.ErrInvalidCredentials)
	require.Equal(t, 2, h.audit.Count(events.EventLoginFailed))
}

func TestRotateReturnsFreshPairAndDetectsReuse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session := h.login(t, "alice", "correct-horse")
	rotated, err := h.sessions.Rotate(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, session.Tokens.RefreshToken, rotated.Tokens.RefreshToken)
	require.NotEqual(t, session.Tokens.AccessToken, rotated.Tokens.AccessToken)
	require.Equal(t, "alice", rotated.Identity.Username)

	_, err = h.sessions.Rotate(ctx, session.Tokens.RefreshToken)
	require.ErrorIs(t, err, auth.ErrRefreshReuseDetected)
	require.Equal(t, 1, h.audit.Count(events.EventRefreshReuseDetected))

	_, err = h.store.Get(ctx, "alice")
	require.ErrorIs(t, err, repository.ErrRefreshRecordNotFound)
}

func TestSecondLoginSupersedesFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.login(t, "alice", "correct-horse")
	second := h.login(t, "alice", "correct-horse")

	_, err := h.sessions.Rotate(ctx, first.Tokens.RefreshToken)
	require.ErrorIs(t, err, auth.ErrRefreshReuseDetected)

	_, err = h.sessions.Rotate(ctx, second.Tokens.RefreshToken)
	require.ErrorIs(t, err, auth.ErrRefreshRevoked)
}

func TestOnlyNewestRotatedTokenIsAccepted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session := h.login(t, "alice", "correct-horse")
	issued := []string{session.Tokens.RefreshToken}
	for i := 0; i < 5; i++ {
		h.clock.Advance(time.Second)
		next, err := h.sessions.Rotate(ctx, issued[len(issued)-1])
		require.NoError(t, err)
		issued = append(issued, next.Tokens.RefreshToken)
	}

	record, err := h.store.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, auth.Fingerprint(issued[len(issued)-1]), record.Value)

	for _, stale := range issued[:len(issued)-1] {
		h.login(t, "alice", "correct-horse")
		_, err := h.sessions.Rotate(ctx, stale)
		require.ErrorIs(t, err, auth.ErrRefreshReuseDetected)
	}
}

func TestReuseRevokesNewestToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session := h.login(t, "alice", "correct-horse")
	newest, err := h.sessions.Rotate(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)

	_, err = h.sessions.Rotate(ctx, session.Tokens.RefreshToken)
	require.ErrorIs(t, err, auth.ErrRefreshReuseDetected)

	_, err = h.sessions.Rotate(ctx, newest.Tokens.RefreshToken)
	require.ErrorIs(t, err, auth.ErrRefreshRevoked)

	again := h.login(t, "alice", "correct-horse")
	_, err = h.sessions.Rotate(ctx, again.Tokens.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutRevokesSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session := h.login(t, "alice", "correct-horse")
	h.sessions.Logout(ctx, session.Tokens.RefreshToken)

	_, err := h.sessions.Rotate(ctx, session.Tokens.RefreshToken)
	require.ErrorIs(t, err, auth.ErrRefreshRevoked)
	require.Equal(t, 1, h.audit.Count(events.EventLoggedOut))
}

func TestLogoutToleratesBadTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session := h.login(t, "alice", "correct-horse")
	h.sessions.Logout(ctx, "garbage")
	h.sessions.Logout(ctx, session.Tokens.AccessToken)

	_, err := h.sessions.Rotate(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, 0, h.audit.Count(events.EventLoggedOut))
}

func TestLogoutWithExpiredTokenKeepsNewerSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.login(t, "alice", "correct-horse")
	h.clock.Advance(30 * 24 * time.Hour)
	second := h.login(t, "alice", "correct-horse")

	h.sessions.Logout(ctx, first.Tokens.RefreshToken)

	_, err := h.sessions.Rotate(ctx, second.Tokens.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, 0, h.audit.Count(events.EventLoggedOut))
}

func TestLogoutWithExpiredCurrentToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session := h.login(t, "alice", "correct-horse")
	h.clock.Advance(refreshDuration)

	h.sessions.Logout(ctx, session.Tokens.RefreshToken)

	_, err := h.store.Get(ctx, "alice")
	require.ErrorIs(t, err, repository.ErrRefreshRecordNotFound)
}

func TestRotateExpiredRefreshToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session := h.login(t, "alice", "correct-horse")
	h.clock.Advance(refreshDuration)

	_, err := h.sessions.Rotate(ctx, session.Tokens.RefreshToken)
	require.ErrorIs(t, err, auth.ErrRefreshExpired)

	_, err = h.store.Get(ctx, "alice")
	require.ErrorIs(t, err, repository.ErrRefreshRecordNotFound)
}

func TestRotateExpiredTokenKeepsNewerSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	old := h.login(t, "alice", "correct-horse")
	h.clock.Advance(refreshDuration - time.Minute)
	current := h.login(t, "alice", "correct-horse")
	h.clock.Advance(2 * time.Minute)

	_, err := h.sessions.Rotate(ctx, old.Tokens.RefreshToken)
	require.ErrorIs(t, err, auth.ErrRefreshExpired)

	_, err = h.sessions.Rotate(ctx, current.Tokens.RefreshToken)
	require.NoError(t, err)
}

func TestRotateRejectsMalformedAndAccessTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session := h.login(t, "alice", "correct-horse")

	_, err := h.sessions.Rotate(ctx, "not-a-jwt")
	require.ErrorIs(t, err, auth.ErrRefreshMalformed)

	_, err = h.sessions.Rotate(ctx, session.Tokens.AccessToken)
	require.ErrorIs(t, err, auth.ErrRefreshMalformed)

	_, err = h.sessions.Rotate(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)
}

func TestRotateUnknownPrincipal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session := h.login(t, "alice", "correct-horse")
	h.members.Remove("alice")

	_, err := h.sessions.Rotate(ctx, session.Tokens.RefreshToken)
	require.ErrorIs(t, err, auth.ErrUnknownPrincipal)

	_, err = h.verifier.VerifyAccess(ctx, session.Tokens.AccessToken)
	require.ErrorIs(t, err, auth.ErrUnknownPrincipal)
}

func TestConcurrentRotationHasSingleWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	session := h.login(t, "alice", "correct-horse")

	const contenders = 8
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.sessions.Rotate(ctx, session.Tokens.RefreshToken)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		require.True(t,
			errors.Is(err, auth.ErrRefreshReuseDetected) || errors.Is(err, auth.ErrRefreshRevoked),
			"unexpected error: %v", err)
	}
	require.Equal(t, 1, winners)
}

func TestRevoke(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session := h.login(t, "alice", "correct-horse")
	require.NoError(t, h.sessions.Revoke(ctx, "alice", "root"))

	_, err := h.sessions.Rotate(ctx, session.Tokens.RefreshToken)
	require.ErrorIs(t, err, auth.ErrRefreshRevoked)
	require.Equal(t, 1, h.audit.Count(events.EventSessionRevoked))
}

func TestAccessTokenExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	session := h.login(t, "alice", "correct-horse")
	h.clock.Advance(accessDuration + time.Second)

	_, err := h.verifier.VerifyAccess(ctx, session.Tokens.AccessToken)
	require.ErrorIs(t, err, auth.ErrTokenExpired)

	rotated, err := h.sessions.Rotate(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)
	_, err = h.verifier.VerifyAccess(ctx, rotated.Tokens.AccessToken)
	require.NoError(t, err)
}

type brokenStore struct {
	repository.RefreshStore
}

func (brokenStore) Put(context.Context, string, string, time.Duration) error {
	return errors.New("store unavailable")
}

func TestLoginStoreFailureIsInternal(t *testing.T) {
	h := newHarness(t)
	h.sessions.store = brokenStore{RefreshStore: h.store}

	_, err := h.sessions.Login(context.Background(), "alice", "correct-horse")
	require.Error(t, err)
	require.Equal(t, auth.KindInternal, auth.KindOf(err))
}

func TestNewSessionServiceRequiresCollaborators(t *testing.T) {
	_, err := NewSessionService(SessionDependencies{})
	require.Error(t, err)
}
