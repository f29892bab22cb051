package lazy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolved_ReturnsValueWithoutLoader(t *testing.T) {
	v := Resolved("table")

	require.True(t, v.IsResolved())
	require.False(t, v.IsLazy())

	got, err := v.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "table", got)
}

func TestLazy_InvokesLoaderEveryResolve(t *testing.T) {
	calls := 0
	v := Lazy(func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	})

	require.True(t, v.IsLazy())

	first, err := v.Resolve(context.Background())
	require.NoError(t, err)
	second, err := v.Resolve(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, first)
	require.Equal(t, 2, second)
}

func TestLazy_PropagatesLoaderError(t *testing.T) {
	boom := errors.New("boom")
	v := Lazy(func(ctx context.Context) (string, error) { return "", boom })

	_, err := v.Resolve(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestEmpty(t *testing.T) {
	var v Value[string]
	require.True(t, v.IsEmpty())
	require.True(t, Lazy[string](nil).IsEmpty())

	_, err := v.Resolve(context.Background())
	require.ErrorIs(t, err, ErrEmpty)
}
