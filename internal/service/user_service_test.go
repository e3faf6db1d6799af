package service

import (
	"context"
	"testing"

	"github.com/Freeeeeet/tutoring_scheduler/internal/model"
	"github.com/Freeeeeet/tutoring_scheduler/internal/repository/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterTelegramUser_CreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(memstore.New().Users(), zap.NewNop())

	created, err := svc.RegisterTelegramUser(ctx, TelegramProfile{TelegramID: 42, Username: "luis", FirstName: "Luis"})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.False(t, created.IsTutor)

	updated, err := svc.RegisterTelegramUser(ctx, TelegramProfile{TelegramID: 42, Username: "luis_p", FirstName: "Luis", LastName: "Pérez"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	got, err := svc.GetByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "luis_p", got.Username)
	assert.Equal(t, "Luis Pérez", got.DisplayName())
}

func TestUserService_Lookups(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := NewUserService(store.Users(), zap.NewNop())

	tutor := &model.User{Email: "Ana@Example.com", IsTutor: true}
	require.NoError(t, store.Users().Create(ctx, tutor))
	require.NoError(t, store.Users().Create(ctx, &model.User{Email: "luis@example.com"}))

	got, err := svc.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, tutor.ID, got.ID)

	_, err = svc.GetByID(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.GetByTelegramID(ctx, 1)
	assert.ErrorIs(t, err, ErrUserNotFound)

	tutors, err := svc.ListTutors(ctx)
	require.NoError(t, err)
	require.Len(t, tutors, 1)
	assert.Equal(t, tutor.ID, tutors[0].ID)
}
