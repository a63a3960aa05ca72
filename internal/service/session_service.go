package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/library-system/auth-service/internal/auth"
	"github.com/library-system/auth-service/internal/domain"
	"github.com/library-system/auth-service/internal/events"
	"github.com/library-system/auth-service/internal/observability"
	"github.com/library-system/auth-service/internal/repository"
)

// SessionService runs login, refresh rotation, logout and revocation. It is
// the only writer of refresh records.
//
// Per member the session moves NoSession -> Active on login, stays Active
// across rotations, and becomes Revoked on logout, admin revocation, reuse
// detection or refresh expiry. The next login makes it Active again.
type SessionService struct {
	members  repository.MemberRepository
	hasher   auth.PasswordHasher
	issuer   *auth.Issuer
	verifier *auth.Verifier
	store    repository.RefreshStore
	events   events.Dispatcher
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      auth.Clock
}

// SessionDependencies encapsulates collaborators of the session service.
type SessionDependencies struct {
	Members  repository.MemberRepository
	Hasher   auth.PasswordHasher
	Issuer   *auth.Issuer
	Verifier *auth.Verifier
	Store    repository.RefreshStore
	Events   events.Dispatcher
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Clock    auth.Clock
}

type dummyComparer interface {
	CompareDummy(plain string)
}

// NewSessionService builds the service.
func NewSessionService(deps SessionDependencies) (*SessionService, error) {
	if deps.Members == nil || deps.Hasher == nil || deps.Issuer == nil || deps.Verifier == nil || deps.Store == nil {
		return nil, errors.New("session service: members, hasher, issuer, verifier and store are required")
	}
	if deps.Events == nil {
		deps.Events = events.NewInMemoryDispatcher()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &SessionService{
		members:  deps.Members,
		hasher:   deps.Hasher,
		issuer:   deps.Issuer,
		verifier: deps.Verifier,
		store:    deps.Store,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      deps.Clock,
	}, nil
}

// Login checks credentials, mints a pair and overwrites the member's refresh
// record, which invalidates any refresh token issued earlier.
func (s *SessionService) Login(ctx context.Context, username, password string) (domain.Session, error) {
	member, err := s.members.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			if d, ok := s.hasher.(dummyComparer); ok {
				d.CompareDummy(password)
			}
			s.loginFailed(ctx, username, "unknown_username")
			return domain.Session{}, auth.NewError(auth.KindInvalidCredentials, err)
		}
		s.metrics.RecordLogin("error")
		return domain.Session{}, fmt.Errorf("lookup member: %w", err)
	}

	if err := s.hasher.Compare(member.PasswordHash, password); err != nil {
		if auth.IsMismatch(err) {
			s.loginFailed(ctx, username, "wrong_password")
			return domain.Session{}, auth.NewError(auth.KindInvalidCredentials, err)
		}
		s.metrics.RecordLogin("error")
		return domain.Session{}, fmt.Errorf("verify password: %w", err)
	}

	pair, err := s.issuer.IssuePair(member.Username)
	if err != nil {
		s.metrics.RecordLogin("error")
		return domain.Session{}, fmt.Errorf("issue tokens: %w", err)
	}

	ttl := s.issuer.Duration(auth.PurposeRefresh)
	if err := s.store.Put(ctx, member.Username, auth.Fingerprint(pair.RefreshToken), ttl); err != nil {
		s.metrics.RecordLogin("error")
		return domain.Session{}, fmt.Errorf("store refresh record: %w", err)
	}

	s.metrics.RecordLogin("success")
	s.publish(ctx, events.New(events.EventLoginSucceeded, member.Username, s.now(), nil))
	return domain.Session{Identity: member.Identity(), Tokens: pair}, nil
}

// Rotate exchanges the presented refresh token for a new pair. The presented
// token must equal the one on file; any other value revokes the session.
func (s *SessionService) Rotate(ctx context.Context, presented string) (domain.Session, error) {
	session, err := s.rotate(ctx, presented)
	if err != nil {
		s.metrics.RecordRotation(auth.KindOf(err).String())
		return domain.Session{}, err
	}
	s.metrics.RecordRotation("success")
	return session, nil
}

func (s *SessionService) rotate(ctx context.Context, presented string) (domain.Session, error) {
	subject, err := s.verifier.VerifyRefresh(presented)
	if err != nil {
		if auth.KindOf(err) == auth.KindRefreshExpired && subject != "" {
			s.expireRecord(ctx, subject, presented)
		}
		return domain.Session{}, err
	}

	member, err := s.members.GetByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			s.rejected(ctx, subject, auth.KindUnknownPrincipal)
			return domain.Session{}, auth.NewError(auth.KindUnknownPrincipal, err)
		}
		return domain.Session{}, fmt.Errorf("lookup member: %w", err)
	}

	pair, err := s.issuer.IssuePair(member.Username)
	if err != nil {
		return domain.Session{}, fmt.Errorf("issue tokens: %w", err)
	}

	err = s.store.Swap(ctx, member.Username,
		auth.Fingerprint(presented),
		auth.Fingerprint(pair.RefreshToken),
		s.issuer.Duration(auth.PurposeRefresh),
	)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrRefreshRecordNotFound):
		s.rejected(ctx, member.Username, auth.KindRefreshRevoked)
		return domain.Session{}, auth.NewError(auth.KindRefreshRevoked, err)
	case errors.Is(err, repository.ErrRefreshRecordMismatch):
		s.logger.Warn("refresh token reuse detected; session revoked", zap.String("username", member.Username))
		s.publish(ctx, events.New(events.EventRefreshReuseDetected, member.Username, s.now(), nil))
		return domain.Session{}, auth.NewError(auth.KindRefreshReuseDetected, err)
	default:
		return domain.Session{}, fmt.Errorf("rotate refresh record: %w", err)
	}

	s.publish(ctx, events.New(events.EventRefreshRotated, member.Username, s.now(), nil))
	return domain.Session{Identity: member.Identity(), Tokens: pair}, nil
}

// Logout revokes the session named by the refresh token. It never fails: an
// unreadable token is ignored and store failures are only logged. An expired
// token only ends the session if it is still the one on file.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) {
	s.metrics.RecordLogout()

	subject, err := s.verifier.VerifyRefresh(refreshToken)
	switch {
	case err == nil:
		if err := s.store.Delete(ctx, subject); err != nil {
			s.logger.Error("logout: delete refresh record", zap.String("username", subject), zap.Error(err))
			return
		}
	case auth.KindOf(err) == auth.KindRefreshExpired && subject != "":
		deleted, err := s.store.DeleteIfMatch(ctx, subject, auth.Fingerprint(refreshToken))
		if err != nil {
			s.logger.Error("logout: delete refresh record", zap.String("username", subject), zap.Error(err))
			return
		}
		if !deleted {
			s.logger.Debug("logout with superseded refresh token", zap.String("username", subject))
			return
		}
	default:
		s.logger.Debug("logout with unusable refresh token", zap.String("kind", auth.KindOf(err).String()))
		return
	}
	s.publish(ctx, events.New(events.EventLoggedOut, subject, s.now(), nil))
}

// Revoke deletes the member's refresh record, forcing a new login once the
// current access token expires.
func (s *SessionService) Revoke(ctx context.Context, username, revokedBy string) error {
	if err := s.store.Delete(ctx, username); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.publish(ctx, events.New(events.EventSessionRevoked, username, s.now(),
		events.SessionRevokedPayload{RevokedBy: revokedBy}))
	return nil
}

// expireRecord drops the record of an expired refresh token if it is still
// the one on file.
func (s *SessionService) expireRecord(ctx context.Context, username, presented string) {
	deleted, err := s.store.DeleteIfMatch(ctx, username, auth.Fingerprint(presented))
	if err != nil {
		s.logger.Error("delete expired refresh record", zap.String("username", username), zap.Error(err))
		return
	}
	if deleted {
		s.rejected(ctx, username, auth.KindRefreshExpired)
	}
}

func (s *SessionService) loginFailed(ctx context.Context, username, reason string) {
	s.metrics.RecordLogin(auth.KindInvalidCredentials.String())
	s.logger.Info("login failed", zap.String("username", username), zap.String("reason", reason))
	s.publish(ctx, events.New(events.EventLoginFailed, username, s.now(), events.LoginFailedPayload{Reason: reason}))
}

func (s *SessionService) rejected(ctx context.Context, username string, kind auth.Kind) {
	s.publish(ctx, events.New(events.EventRefreshRejected, username, s.now(),
		events.RefreshRejectedPayload{Kind: kind.String()}))
}

func (s *SessionService) publish(ctx context.Context, event events.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(event.Type)), zap.Error(err))
	}
}
