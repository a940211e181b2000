package registry

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSemVer(t *testing.T) {
	tests := []struct {
		in   string
		want SemVer
	}{
		{"1.2.3", SemVer{1, 2, 3}},
		{"v2.0.1", SemVer{2, 0, 1}},
		{"1.2", SemVer{1, 2, 0}},
		{"3", SemVer{3, 0, 0}},
		{"0.0.0", SemVer{0, 0, 0}},
	}
	for _, tt := range tests {
		got, err := ParseSemVer(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseSemVer_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3.4", "1..3", "1.-2.0", "1.x"} {
		_, err := ParseSemVer(in)
		assert.True(t, errors.Is(err, ErrInvalidVersion), "input %q", in)
	}
}

func TestSemVerCompare(t *testing.T) {
	assert.Equal(t, 0, SemVer{1, 2, 0}.Compare(SemVer{1, 2, 0}))
	assert.Equal(t, -1, SemVer{1, 2, 3}.Compare(SemVer{1, 3, 0}))
	assert.Equal(t, 1, SemVer{2, 0, 0}.Compare(SemVer{1, 99, 99}))
	assert.Equal(t, -1, SemVer{1, 2, 3}.Compare(SemVer{1, 2, 4}))

	// "2" pads to 2.0.0
	a, err := ParseSemVer("2")
	require.NoError(t, err)
	b, err := ParseSemVer("2.0.0")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Compare(b))
}

func TestSemVerSortDescending(t *testing.T) {
	versions := []SemVer{{1, 0, 0}, {1, 10, 0}, {1, 2, 0}, {2, 0, 0}}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Compare(versions[j]) > 0
	})
	assert.Equal(t, []SemVer{{2, 0, 0}, {1, 10, 0}, {1, 2, 0}, {1, 0, 0}}, versions)
}
