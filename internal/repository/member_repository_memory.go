package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/library-system/auth-service/internal/domain"
)

// MemoryMemberRepository keeps members in process memory. It backs local
// runs without Postgres and tests.
type MemoryMemberRepository struct {
	mu      sync.RWMutex
	members map[string]domain.Member
}

// NewMemoryMemberRepository returns an empty repository.
func NewMemoryMemberRepository() *MemoryMemberRepository {
	return &MemoryMemberRepository{members: make(map[string]domain.Member)}
}

func (r *MemoryMemberRepository) Create(_ context.Context, member *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[member.Username]; exists {
		return domain.ErrMemberExists
	}
	now := time.Now()
	member.ID = uuid.NewString()
	member.CreatedAt = now
	member.UpdatedAt = now
	r.members[member.Username] = *member
	return nil
}

func (r *MemoryMemberRepository) GetByUsername(_ context.Context, username string) (*domain.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	member, ok := r.members[username]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	return &member, nil
}

// Remove deletes a member, as an administrator would through member management.
func (r *MemoryMemberRepository) Remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, username)
}
