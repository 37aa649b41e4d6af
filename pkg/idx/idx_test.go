package idx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	t.Parallel()

	id := idx.New()
	require.NotEmpty(t, id.String())

	parsed, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
	require.False(t, id.IsZero())
}

func TestOrdering(t *testing.T) {
	t.Parallel()

	a := idx.NewAt(time.Unix(1, 0).UTC())
	b := idx.NewAt(time.Unix(2, 0).UTC())

	// Check valid comparisons, I usually always get this wrong
	require.Equal(t, -1, idx.Compare(a, b))
	require.Equal(t, 1, idx.Compare(b, a))
	require.Equal(t, 0, idx.Compare(a, a))
}

func TestTimeExtraction(t *testing.T) {
	t.Parallel()

	tm := time.Unix(1700000000, 0).UTC()
	id := idx.NewAt(tm)

	require.WithinDuration(t, tm, id.Time(), time.Millisecond)
}

func TestPrefixed(t *testing.T) {
	t.Parallel()

	s := idx.NewPrefixed("tok")
	require.True(t, strings.HasPrefix(s, "tok_"))

	prefix, id, err := idx.SplitPrefixed(s)
	require.NoError(t, err)
	require.Equal(t, "tok", prefix)
	require.False(t, id.IsZero())

	t.Run("rejects malformed", func(t *testing.T) {
		for _, bad := range []string{"", "tok", "_01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV", "tok_nope"} {
			_, _, err := idx.SplitPrefixed(bad)
			require.ErrorIs(t, err, idx.ErrInvalid, "input %q", bad)
		}
	})
}

func TestMustParse(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() { idx.MustParse("01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV") })
	require.Panics(t, func() { idx.MustParse("not-a-ulid") })
}
