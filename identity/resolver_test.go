package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCachesPerSession(t *testing.T) {
	calls := 0
	r := NewResolver(func(ctx context.Context, id string) (Profile, error) {
		calls++
		return Profile{ID: id, Username: "alice", Avatar: "https://cdn.example.com/a.png"}, nil
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		p, err := r.Resolve(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "alice", p.Username)
	}
	assert.Equal(t, 1, calls)
}

func TestResolveFillsFallbackAvatar(t *testing.T) {
	r := NewResolver(func(ctx context.Context, id string) (Profile, error) {
		return Profile{ID: id, Username: "bob"}, nil
	})

	p, err := r.Resolve(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, FallbackAvatar, p.Avatar)
}

func TestResolveDoesNotCacheFailures(t *testing.T) {
	calls := 0
	fail := true
	r := NewResolver(func(ctx context.Context, id string) (Profile, error) {
		calls++
		if fail {
			return Profile{}, errors.New("user not found")
		}
		return Profile{ID: id, Username: "carol"}, nil
	})

	ctx := context.Background()
	_, err := r.Resolve(ctx, "u1")
	require.Error(t, err)

	fail = false
	p, err := r.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "carol", p.Username)
	assert.Equal(t, 2, calls)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	username := "old-name"
	calls := 0
	r := NewResolver(func(ctx context.Context, id string) (Profile, error) {
		calls++
		return Profile{ID: id, Username: username}, nil
	})

	ctx := context.Background()
	p, err := r.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "old-name", p.Username)

	username = "new-name"
	r.Invalidate("u1")

	p, err = r.Resolve(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new-name", p.Username)
	assert.Equal(t, 2, calls)
}

func TestResolveIsPerID(t *testing.T) {
	r := NewResolver(func(ctx context.Context, id string) (Profile, error) {
		return Profile{ID: id, Username: "user-" + id}, nil
	})

	ctx := context.Background()
	a, err := r.Resolve(ctx, "u1")
	require.NoError(t, err)
	b, err := r.Resolve(ctx, "u2")
	require.NoError(t, err)
	assert.NotEqual(t, a.Username, b.Username)
}
