package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	allowed bool
	err     error
	calls   int
}

func (r *countingRepo) HasPermission(context.Context, uuid.UUID, string, uuid.UUID) (bool, error) {
	r.calls++
	return r.allowed, r.err
}

func TestIsAuthorizedCachesAnswer(t *testing.T) {
	repo := &countingRepo{allowed: true}
	svc := NewService(repo, DefaultConfig())
	user, resource := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		ok, err := svc.IsAuthorized(context.Background(), user, ActionAccept, resource)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, repo.calls)

	svc.Invalidate()
	_, err := svc.IsAuthorized(context.Background(), user, ActionAccept, resource)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestIsAuthorizedDoesNotCacheErrors(t *testing.T) {
	repo := &countingRepo{err: errors.New("connection refused")}
	svc := NewService(repo, DefaultConfig())
	user, resource := uuid.New(), uuid.New()

	_, err := svc.IsAuthorized(context.Background(), user, ActionAccept, resource)
	require.Error(t, err)

	repo.err = nil
	repo.allowed = true
	ok, err := svc.IsAuthorized(context.Background(), user, ActionAccept, resource)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, repo.calls)
}

func TestAnonymousUserIsNeverAuthorized(t *testing.T) {
	repo := &countingRepo{allowed: true}
	svc := NewService(repo, DefaultConfig())

	ok, err := svc.IsAuthorized(context.Background(), uuid.Nil, ActionAccept, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, repo.calls)
}
