package device

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("single device", func(t *testing.T) {
		s, err := Parse("0")
		require.NoError(t, err)
		assert.Equal(t, []string{"0"}, s.IDs())
		assert.Equal(t, 1, s.Count())
	})

	t.Run("multiple devices with whitespace", func(t *testing.T) {
		s, err := Parse(" 0, 1 ,3")
		require.NoError(t, err)
		assert.Equal(t, []string{"0", "1", "3"}, s.IDs())
		assert.Equal(t, "0,1,3", s.String())
	})

	t.Run("empty list is CPU fallback", func(t *testing.T) {
		s, err := Parse("")
		require.NoError(t, err)
		assert.True(t, s.Empty())
		assert.Equal(t, 1, s.Count())
		assert.Equal(t, "", s.String())
	})

	t.Run("empty entry is rejected", func(t *testing.T) {
		_, err := Parse("0,,1")
		assert.ErrorContains(t, err, "empty entry")

		_, err = Parse("0,1,")
		assert.ErrorContains(t, err, "empty entry")
	})

	t.Run("duplicate entry is rejected", func(t *testing.T) {
		_, err := Parse("0,1,0")
		assert.ErrorContains(t, err, "duplicate entry")
	})
}

// The device count for a visible list of length n must equal min(n, max).
func TestClampCount(t *testing.T) {
	const max = 2
	for n := 0; n <= 8; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			ids := make([]string, 0, n)
			for i := 0; i < n; i++ {
				ids = append(ids, fmt.Sprintf("%d", i))
			}
			s, err := Parse(strings.Join(ids, ","))
			require.NoError(t, err)

			clamped := s.Clamp(max)
			want := n
			if want > max {
				want = max
			}
			if n == 0 {
				// CPU fallback still launches a single process.
				want = 1
			}
			assert.Equal(t, want, clamped.Count())
		})
	}
}

func TestClampPreservesOrder(t *testing.T) {
	s, err := Parse("3,1,0,2")
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "1"}, s.Clamp(2).IDs())
}

func TestClampDefaultMax(t *testing.T) {
	s, err := Parse("0,1,2,3")
	require.NoError(t, err)
	assert.Equal(t, DefaultMax, s.Clamp(0).Count())
	assert.Equal(t, DefaultMax, s.Clamp(-5).Count())
}

func TestPolicyResolve(t *testing.T) {
	t.Run("explicit list wins over env", func(t *testing.T) {
		t.Setenv(VisibleEnv, "6,7")
		s, err := Policy{Visible: "0,1,2", Max: 2}.Resolve()
		require.NoError(t, err)
		assert.Equal(t, []string{"0", "1"}, s.IDs())
	})

	t.Run("falls back to env", func(t *testing.T) {
		t.Setenv(VisibleEnv, "4,5,6")
		s, err := Policy{Max: 2}.Resolve()
		require.NoError(t, err)
		assert.Equal(t, []string{"4", "5"}, s.IDs())
	})

	t.Run("unset env is CPU fallback", func(t *testing.T) {
		t.Setenv(VisibleEnv, "")
		s, err := Policy{}.Resolve()
		require.NoError(t, err)
		assert.True(t, s.Empty())
	})

	t.Run("invalid explicit list", func(t *testing.T) {
		_, err := Policy{Visible: "0,,1"}.Resolve()
		assert.Error(t, err)
	})
}
