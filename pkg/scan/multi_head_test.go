package scan

import (
	"cmp"
	"iter"
	"slices"
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/nobletooth/objcache/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiHead(t *testing.T) {
	s1 := slices.Values([]utils.Pair[string, int]{{Key: "k1", Value: 11}, {Key: "k2", Value: 21}, {Key: "k3", Value: 31}, {Key: "k4", Value: 41}})
	s2 := slices.Values([]utils.Pair[string, int]{{Key: "k1", Value: 12}, {Key: "k2", Value: 22}, {Key: "k5", Value: 52}, {Key: "k6", Value: 62}})
	s3 := slices.Values([]utils.Pair[string, int]{{Key: "k1", Value: 13}, {Key: "k2", Value: 23}, {Key: "k4", Value: 43}, {Key: "k5", Value: 53}})
	s4 := slices.Values([]utils.Pair[string, int]{{Key: "k3", Value: 34}})
	merged, err := MultiHead(cmp.Compare, []iter.Seq[utils.Pair[string, int]]{s1, s2, s3, s4})
	require.NoError(t, err)

	expected := []utils.Pair[string, int]{{Key: "k1", Value: 11}, {Key: "k2", Value: 21}, {Key: "k3", Value: 31}, {Key: "k4", Value: 41}, {Key: "k5", Value: 52}, {Key: "k6", Value: 62}}
	assert.Equal(t, expected, slices.Collect(merged))
}

func TestMultiHead_EdgeCases(t *testing.T) {
	t.Run("empty_sequences_are_skipped", func(t *testing.T) {
		empty := slices.Values([]utils.Pair[string, int]{})
		s := slices.Values([]utils.Pair[string, int]{{Key: "a", Value: 1}, {Key: "b", Value: 2}})
		merged, err := MultiHead(cmp.Compare, []iter.Seq[utils.Pair[string, int]]{empty, s, empty})
		require.NoError(t, err)
		assert.Equal(t, []utils.Pair[string, int]{{Key: "a", Value: 1}, {Key: "b", Value: 2}}, slices.Collect(merged))
	})
	t.Run("all_empty", func(t *testing.T) {
		empty := slices.Values([]utils.Pair[string, int]{})
		merged, err := MultiHead(cmp.Compare, []iter.Seq[utils.Pair[string, int]]{empty})
		require.NoError(t, err)
		assert.Empty(t, slices.Collect(merged))
	})
	t.Run("early_stop", func(t *testing.T) {
		s1 := slices.Values([]utils.Pair[string, int]{{Key: "a", Value: 1}, {Key: "c", Value: 3}})
		s2 := slices.Values([]utils.Pair[string, int]{{Key: "b", Value: 2}})
		merged, err := MultiHead(cmp.Compare, []iter.Seq[utils.Pair[string, int]]{s1, s2})
		require.NoError(t, err)
		var got []string
		for pair := range merged {
			got = append(got, pair.Key)
			if len(got) == 2 {
				break
			}
		}
		assert.Equal(t, []string{"a", "b"}, got)
	})
	t.Run("invalid_arguments", func(t *testing.T) {
		_, err := MultiHead[iter.Seq[utils.Pair[string, int]]](nil, []iter.Seq[utils.Pair[string, int]]{})
		assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
		_, err = MultiHead(cmp.Compare[string], []iter.Seq[utils.Pair[string, int]]{})
		assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	})
}

func TestMultiHead_IsLazyAndReusable(t *testing.T) {
	pulls := 0
	counted := func(yield func(utils.Pair[string, int]) bool) {
		for _, pair := range []utils.Pair[string, int]{{Key: "a", Value: 1}, {Key: "b", Value: 2}} {
			pulls++
			if !yield(pair) {
				return
			}
		}
	}
	merged, err := MultiHead(cmp.Compare, []iter.Seq[utils.Pair[string, int]]{counted})
	require.NoError(t, err)
	assert.Zero(t, pulls, "Nothing is pulled before iteration")

	assert.Equal(t, []utils.Pair[string, int]{{Key: "a", Value: 1}, {Key: "b", Value: 2}}, slices.Collect(merged))
	assert.Equal(t, []utils.Pair[string, int]{{Key: "a", Value: 1}, {Key: "b", Value: 2}}, slices.Collect(merged))
}
