package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/library-system/auth-service/internal/domain"
)

// MemberRepository defines the member lookups authentication depends on.
// Member management itself lives outside this service.
type MemberRepository interface {
	Create(ctx context.Context, member *domain.Member) error
	GetByUsername(ctx context.Context, username string) (*domain.Member, error)
}

type memberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository returns a Postgres-backed implementation.
func NewMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &memberRepository{pool: pool}
}

func (r *memberRepository) Create(ctx context.Context, member *domain.Member) error {
	const query = `
        INSERT INTO members (username, password_hash, role)
        VALUES ($1, $2, $3)
        ON CONFLICT (username) DO NOTHING
        RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		member.Username,
		member.PasswordHash,
		member.Role,
	).Scan(&member.ID, &member.CreatedAt, &member.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrMemberExists
	}
	return err
}

func (r *memberRepository) GetByUsername(ctx context.Context, username string) (*domain.Member, error) {
	const query = `
        SELECT id, username, password_hash, role, created_at, updated_at
        FROM members WHERE username=$1`

	var member domain.Member
	if err := r.pool.QueryRow(ctx, query, username).Scan(
		&member.ID,
		&member.Username,
		&member.PasswordHash,
		&member.Role,
		&member.CreatedAt,
		&member.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}
