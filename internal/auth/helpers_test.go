package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/library-system/auth-service/internal/domain"
	"github.com/library-system/auth-service/internal/repository"
)

const (
	testIssuer          = "library-test"
	testAccessDuration  = 15 * time.Minute
	testRefreshDuration = 24 * time.Hour
)

var (
	testAccessKey  = []byte(strings.Repeat("a", 32))
	testRefreshKey = []byte(strings.Repeat("r", 32))
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	clock    *manualClock
	signer   *Signer
	issuer   *Issuer
	verifier *Verifier
	members  *repository.MemoryMemberRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newManualClock()
	signer, err := NewSigner(testAccessKey, testRefreshKey, WithIssuer(testIssuer), WithSignerClock(clock.Now))
	require.NoError(t, err)
	issuer, err := NewIssuer(signer, IssuerConfig{
		Issuer:          testIssuer,
		AccessDuration:  testAccessDuration,
		RefreshDuration: testRefreshDuration,
	}, clock.Now)
	require.NoError(t, err)

	members := repository.NewMemoryMemberRepository()
	for username, role := range map[string]domain.Role{"alice": domain.RoleUser, "root": domain.RoleAdmin} {
		require.NoError(t, members.Create(context.Background(), &domain.Member{Username: username, Role: role}))
	}
	return &fixture{
		clock:    clock,
		signer:   signer,
		issuer:   issuer,
		verifier: NewVerifier(signer, members),
		members:  members,
	}
}
