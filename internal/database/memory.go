package database

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/npezzotti/go-reveal/internal/types"
)

// MemoryRevealRepository keeps performers and rooms in process memory.
// It backs the "memory" database driver and mirrors the Postgres
// constraints: unique slug, unique case-insensitive username and
// compare-and-swap room writes.
type MemoryRevealRepository struct {
	mu         sync.Mutex
	performers map[string]Performer
	rooms      map[string]Room
	now        func() time.Time
}

func NewMemoryRevealRepository() *MemoryRevealRepository {
	return &MemoryRevealRepository{
		performers: make(map[string]Performer),
		rooms:      make(map[string]Room),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryRevealRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryRevealRepository) Close() error {
	return nil
}

func (m *MemoryRevealRepository) CreatePerformer(ctx context.Context, params CreatePerformerParams) (Performer, Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.createLocked(params)
}

func (m *MemoryRevealRepository) createLocked(params CreatePerformerParams) (Performer, Room, error) {
	if err := m.checkUnique(params, ""); err != nil {
		return Performer{}, Room{}, err
	}

	now := m.now()
	p := Performer{
		Id:           params.Id,
		Name:         params.Name,
		Username:     params.Username,
		PasswordHash: params.PasswordHash,
		Slug:         params.Slug,
		Role:         params.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.performers[p.Id] = p

	return p, m.resetRoomLocked(params.Slug, params.StartAt), nil
}

func (m *MemoryRevealRepository) UpsertPerformer(ctx context.Context, params CreatePerformerParams) (Performer, Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, found := m.findLocked(func(p Performer) bool { return p.Slug == params.Slug })
	if !found {
		return m.createLocked(params)
	}

	if err := m.checkUnique(params, existing.Id); err != nil {
		return Performer{}, Room{}, err
	}

	existing.Name = params.Name
	existing.Username = params.Username
	existing.PasswordHash = params.PasswordHash
	existing.Role = params.Role
	existing.UpdatedAt = m.now()
	m.performers[existing.Id] = existing

	return existing, m.resetRoomLocked(params.Slug, params.StartAt), nil
}

func (m *MemoryRevealRepository) checkUnique(params CreatePerformerParams, skipId string) error {
	for _, p := range m.performers {
		if p.Id == skipId {
			continue
		}
		if p.Slug == params.Slug {
			return ErrDuplicateSlug
		}
		if strings.EqualFold(p.Username, params.Username) {
			return ErrDuplicateUsername
		}
	}
	return nil
}

func (m *MemoryRevealRepository) resetRoomLocked(id string, startAt int) Room {
	now := m.now()
	r, ok := m.rooms[id]
	if !ok {
		r = Room{Id: id, StartAt: startAt, CreatedAt: now}
	}
	r.Status = types.RoomStatusIdle
	r.VideoId = nil
	r.Version++
	r.UpdatedAt = now
	m.rooms[id] = r
	return r
}

func (m *MemoryRevealRepository) findLocked(match func(Performer) bool) (Performer, bool) {
	for _, p := range m.performers {
		if match(p) {
			return p, true
		}
	}
	return Performer{}, false
}

func (m *MemoryRevealRepository) ListPerformers(ctx context.Context) ([]Performer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	performers := make([]Performer, 0, len(m.performers))
	for _, p := range m.performers {
		performers = append(performers, p)
	}
	sort.Slice(performers, func(i, j int) bool {
		if performers[i].CreatedAt.Equal(performers[j].CreatedAt) {
			return performers[i].Id < performers[j].Id
		}
		return performers[i].CreatedAt.Before(performers[j].CreatedAt)
	})

	return performers, nil
}

func (m *MemoryRevealRepository) GetPerformerById(ctx context.Context, id string) (Performer, error) {
	return m.find(func(p Performer) bool { return p.Id == id })
}

func (m *MemoryRevealRepository) GetPerformerByUsername(ctx context.Context, username string) (Performer, error) {
	return m.find(func(p Performer) bool { return strings.EqualFold(p.Username, username) })
}

func (m *MemoryRevealRepository) GetPerformerBySlug(ctx context.Context, slug string) (Performer, error) {
	return m.find(func(p Performer) bool { return p.Slug == slug })
}

func (m *MemoryRevealRepository) find(match func(Performer) bool) (Performer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.findLocked(match); ok {
		return p, nil
	}
	return Performer{}, sql.ErrNoRows
}

func (m *MemoryRevealRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.performers[id]
	if !ok {
		return sql.ErrNoRows
	}
	at = at.UTC()
	p.LastLogin = &at
	m.performers[id] = p
	return nil
}

func (m *MemoryRevealRepository) DeletePerformer(ctx context.Context, id string) (Performer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.performers[id]
	if !ok {
		return Performer{}, sql.ErrNoRows
	}
	delete(m.performers, id)
	delete(m.rooms, p.Slug)
	return p, nil
}

func (m *MemoryRevealRepository) GetRoom(ctx context.Context, id string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[id]
	if !ok {
		return Room{}, sql.ErrNoRows
	}
	return r, nil
}

func (m *MemoryRevealRepository) CreateRoomIfNotExists(ctx context.Context, id string, startAt int) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[id]; ok {
		return r, nil
	}

	now := m.now()
	r := Room{
		Id:        id,
		Status:    types.RoomStatusIdle,
		StartAt:   startAt,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.rooms[id] = r
	return r, nil
}

func (m *MemoryRevealRepository) UpdateRoom(ctx context.Context, params UpdateRoomParams) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[params.Id]
	if !ok {
		return Room{}, sql.ErrNoRows
	}
	if r.Version != params.ExpectedVersion {
		return Room{}, ErrVersionConflict
	}

	r.Status = params.Status
	r.VideoId = params.VideoId
	if r.Status == types.RoomStatusIdle {
		r.VideoId = nil
	}
	r.StartAt = params.StartAt
	r.Version++
	r.UpdatedAt = m.now()
	m.rooms[r.Id] = r
	return r, nil
}
