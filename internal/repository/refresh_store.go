package repository

import (
	"context"
	"errors"
	"time"

	"github.com/library-system/auth-service/internal/domain"
)

var (
	// ErrRefreshRecordNotFound means no refresh record is on file for the member.
	ErrRefreshRecordNotFound = errors.New("refresh record not found")
	// ErrRefreshRecordMismatch means the presented value differed from the stored
	// one. The record has already been deleted when this is returned.
	ErrRefreshRecordMismatch = errors.New("refresh record mismatch")
)

// RefreshStore keeps at most one refresh record per username.
//
// Swap and DeleteIfMatch must be atomic per username: two concurrent calls
// presenting the same value can never both observe a match.
type RefreshStore interface {
	// Get returns the live record or ErrRefreshRecordNotFound.
	Get(ctx context.Context, username string) (*domain.RefreshRecord, error)
	// Put creates or overwrites the record.
	Put(ctx context.Context, username, value string, ttl time.Duration) error
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, username string) error
	// Swap replaces presented with next. A missing record yields
	// ErrRefreshRecordNotFound; a different stored value deletes the record and
	// yields ErrRefreshRecordMismatch.
	Swap(ctx context.Context, username, presented, next string, ttl time.Duration) error
	// DeleteIfMatch removes the record only while it still holds value.
	DeleteIfMatch(ctx context.Context, username, value string) (bool, error)
}
