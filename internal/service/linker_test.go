package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/wingcoach-server/internal/mocks"
	"github.com/dtroode/wingcoach-server/internal/model"
	"github.com/dtroode/wingcoach-server/internal/repository/memory"
	"github.com/dtroode/wingcoach-server/internal/testutil"
)

func strPtr(s string) *string { return &s }

func googleIdentity(subject, email string, verified bool) model.ExternalIdentity {
	return model.ExternalIdentity{
		Provider:      model.AuthProviderGoogle,
		Subject:       subject,
		Email:         strPtr(email),
		EmailVerified: verified,
	}
}

func TestAccountLinker_CreatesThenFindsBySubject(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserRepository()
	linker := NewAccountLinker(store, testutil.MakeNoopLogger())

	identity := googleIdentity("g-1", "b@x.com", true)
	identity.Name = strPtr("Bo")

	first, err := linker.Resolve(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", first.Email)
	assert.True(t, first.LinkedTo(model.AuthProviderGoogle, "g-1"))
	assert.False(t, first.HasPassword())
	assert.Equal(t, model.SubscriptionFree, first.SubscriptionStatus)
	require.NotNil(t, first.Name)
	assert.Equal(t, "Bo", *first.Name)

	second, err := linker.Resolve(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestAccountLinker_SubjectWinsOverEmail(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserRepository()
	linker := NewAccountLinker(store, testutil.MakeNoopLogger())

	first, err := linker.Resolve(ctx, googleIdentity("g-1", "old@x.com", true))
	require.NoError(t, err)

	// The provider reports a new email for the same subject.
	again, err := linker.Resolve(ctx, googleIdentity("g-1", "new@x.com", true))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "old@x.com", again.Email)
}

func TestAccountLinker_LinksPasswordAccountOnVerifiedEmail(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserRepository()
	linker := NewAccountLinker(store, testutil.MakeNoopLogger())

	hash := "hash"
	existing, err := store.Create(ctx, model.User{
		ID:           uuid.New(),
		Email:        "a@x.com",
		PasswordHash: &hash,
		AuthProvider: model.AuthProviderNone,
	})
	require.NoError(t, err)

	user, err := linker.Resolve(ctx, googleIdentity("g-7", "a@x.com", true))
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
	assert.True(t, user.LinkedTo(model.AuthProviderGoogle, "g-7"))
	assert.True(t, user.HasPassword())

	// A later Apple sign-in with the same verified email re-links the account.
	apple := model.ExternalIdentity{
		Provider:      model.AuthProviderApple,
		Subject:       "a-7",
		Email:         strPtr("a@x.com"),
		EmailVerified: true,
	}
	user, err = linker.Resolve(ctx, apple)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
	assert.True(t, user.LinkedTo(model.AuthProviderApple, "a-7"))
}

func TestAccountLinker_RefusesLinkOnUnverifiedEmail(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserRepository()
	linker := NewAccountLinker(store, testutil.MakeNoopLogger())

	_, err := linker.Resolve(ctx, googleIdentity("g-1", "a@x.com", true))
	require.NoError(t, err)

	_, err = linker.Resolve(ctx, googleIdentity("g-2", "a@x.com", false))
	require.ErrorIs(t, err, model.ErrAccountConflict)

	_, err = store.GetByProvider(ctx, model.AuthProviderGoogle, "g-2")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAccountLinker_EmailRequiredToCreate(t *testing.T) {
	ctx := context.Background()
	linker := NewAccountLinker(memory.NewUserRepository(), testutil.MakeNoopLogger())

	_, err := linker.Resolve(ctx, model.ExternalIdentity{Provider: model.AuthProviderApple, Subject: "a-1"})
	require.ErrorIs(t, err, model.ErrEmailRequired)

	_, err = linker.Resolve(ctx, model.ExternalIdentity{Provider: model.AuthProviderApple, Subject: "a-1", Email: strPtr("")})
	require.ErrorIs(t, err, model.ErrEmailRequired)

	_, err = linker.Resolve(ctx, model.ExternalIdentity{Provider: model.AuthProviderApple})
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestAccountLinker_CreateConflictResolvesAgain(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewUserStore(t)
	linker := NewAccountLinker(store, testutil.MakeNoopLogger())

	winner := model.User{ID: uuid.New(), Email: "r@x.com", AuthProvider: model.AuthProviderGoogle, AuthProviderID: strPtr("g-r")}

	store.On("GetByProvider", mock.Anything, model.AuthProviderGoogle, "g-r").Return(model.User{}, model.ErrNotFound).Once()
	store.On("GetByEmail", mock.Anything, "r@x.com").Return(model.User{}, model.ErrNotFound).Once()
	store.On("Create", mock.Anything, mock.AnythingOfType("model.User")).
		Return(model.User{}, fmt.Errorf("%w: email", model.ErrAccountConflict)).Once()
	store.On("GetByProvider", mock.Anything, model.AuthProviderGoogle, "g-r").Return(winner, nil).Once()

	user, err := linker.Resolve(ctx, googleIdentity("g-r", "r@x.com", true))
	require.NoError(t, err)
	assert.Equal(t, winner.ID, user.ID)
}

func TestAccountLinker_PersistentConflictPropagates(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewUserStore(t)
	linker := NewAccountLinker(store, testutil.MakeNoopLogger())

	store.On("GetByProvider", mock.Anything, model.AuthProviderGoogle, "g-r").Return(model.User{}, model.ErrNotFound).Twice()
	store.On("GetByEmail", mock.Anything, "r@x.com").Return(model.User{}, model.ErrNotFound).Twice()
	store.On("Create", mock.Anything, mock.Anything).Return(model.User{}, model.ErrAccountConflict).Once()

	_, err := linker.Resolve(ctx, googleIdentity("g-r", "r@x.com", true))
	require.ErrorIs(t, err, model.ErrAccountConflict)
}

func TestAccountLinker_StoreErrorIsWrapped(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewUserStore(t)
	linker := NewAccountLinker(store, testutil.MakeNoopLogger())

	store.On("GetByProvider", mock.Anything, mock.Anything, mock.Anything).Return(model.User{}, assert.AnError).Once()

	_, err := linker.Resolve(ctx, googleIdentity("g-1", "a@x.com", true))
	require.ErrorIs(t, err, assert.AnError)
}

func TestAccountLinker_ConcurrentFirstSignIn(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserRepository()
	linker := NewAccountLinker(store, testutil.MakeNoopLogger())

	const workers = 16
	ids := make([]uuid.UUID, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, err := linker.Resolve(ctx, googleIdentity("g-race", "race@x.com", true))
			ids[i], errs[i] = user.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}
