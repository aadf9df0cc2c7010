package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRevealRepository struct {
	mock.Mock
}

func (m *MockRevealRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockRevealRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRevealRepository) CreatePerformer(ctx context.Context, params CreatePerformerParams) (Performer, Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Performer), args.Get(1).(Room), args.Error(2)
}
func (m *MockRevealRepository) UpsertPerformer(ctx context.Context, params CreatePerformerParams) (Performer, Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Performer), args.Get(1).(Room), args.Error(2)
}
func (m *MockRevealRepository) ListPerformers(ctx context.Context) ([]Performer, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Performer), args.Error(1)
}
func (m *MockRevealRepository) GetPerformerById(ctx context.Context, id string) (Performer, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Performer), args.Error(1)
}
func (m *MockRevealRepository) GetPerformerByUsername(ctx context.Context, username string) (Performer, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(Performer), args.Error(1)
}
func (m *MockRevealRepository) GetPerformerBySlug(ctx context.Context, slug string) (Performer, error) {
	args := m.Called(ctx, slug)
	return args.Get(0).(Performer), args.Error(1)
}
func (m *MockRevealRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}
func (m *MockRevealRepository) DeletePerformer(ctx context.Context, id string) (Performer, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Performer), args.Error(1)
}
func (m *MockRevealRepository) GetRoom(ctx context.Context, id string) (Room, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRevealRepository) CreateRoomIfNotExists(ctx context.Context, id string, startAt int) (Room, error) {
	args := m.Called(ctx, id, startAt)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRevealRepository) UpdateRoom(ctx context.Context, params UpdateRoomParams) (Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Room), args.Error(1)
}
