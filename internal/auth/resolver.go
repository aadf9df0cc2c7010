package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/npezzotti/go-reveal/internal/database"
	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/rs/zerolog"
)

const lastLoginTimeout = 5 * time.Second

var ErrAuthFailure = errors.New("invalid username or password")

// AdminCredentials is the bootstrap administrator taken from
// configuration. It works even when no performer records exist.
type AdminCredentials struct {
	Username     string
	PasswordHash string
	RoomId       string
}

type Resolver struct {
	repo   database.RevealRepository
	hasher PasswordHasher
	admin  AdminCredentials
	log    zerolog.Logger
	now    func() time.Time

	pending sync.WaitGroup
}

func NewResolver(repo database.RevealRepository, hasher PasswordHasher, admin AdminCredentials, logger zerolog.Logger) *Resolver {
	admin.Username = NormalizeUsername(admin.Username)
	return &Resolver{
		repo:   repo,
		hasher: hasher,
		admin:  admin,
		log:    logger,
		now:    time.Now,
	}
}

func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Resolve maps a login to a session. The username is matched
// case-insensitively, the password exactly (after trimming).
func (r *Resolver) Resolve(ctx context.Context, username, password string) (types.Session, error) {
	username = NormalizeUsername(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return types.Session{}, ErrAuthFailure
	}

	p, err := r.repo.GetPerformerByUsername(ctx, username)
	switch {
	case err == nil:
		if r.hasher.Verify(p.PasswordHash, password) {
			r.recordLogin(p.Id)
			return sessionFor(p), nil
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return types.Session{}, fmt.Errorf("lookup performer: %w", err)
	}

	if r.admin.Username != "" && username == r.admin.Username && r.hasher.Verify(r.admin.PasswordHash, password) {
		return types.Session{
			Username: r.admin.Username,
			Name:     "Administrator",
			Role:     types.RoleAdmin,
			RoomId:   r.admin.RoomId,
		}, nil
	}

	return types.Session{}, ErrAuthFailure
}

func sessionFor(p database.Performer) types.Session {
	role := p.Role
	if role == "" {
		role = types.RolePerformer
	}
	return types.Session{
		PerformerId: p.Id,
		Name:        p.Name,
		Username:    p.Username,
		Role:        role,
		RoomId:      p.Slug,
	}
}

// recordLogin updates last_login in the background. Failures are only
// logged; login never waits on it.
func (r *Resolver) recordLogin(performerId string) {
	at := r.now()
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), lastLoginTimeout)
		defer cancel()

		if err := r.repo.UpdateLastLogin(ctx, performerId, at); err != nil {
			r.log.Warn().Err(err).Str("performer_id", performerId).Msg("failed to update last login")
		}
	}()
}

// Wait blocks until background last login updates have finished.
func (r *Resolver) Wait() {
	r.pending.Wait()
}
