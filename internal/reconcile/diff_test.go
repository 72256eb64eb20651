package reconcile

import (
	"errors"
	"iter"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikolay-makurin/entityview/pkg/types"
)

func ids(pairs ...int64) []types.IDAndChecksum {
	out := make([]types.IDAndChecksum, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, types.IDAndChecksum{ID: pairs[i], Checksum: pairs[i+1]})
	}
	return out
}

func collect(t *testing.T, seq iter.Seq2[types.ChangeMessage, error]) []types.ChangeMessage {
	t.Helper()
	var out []types.ChangeMessage
	for m, err := range seq {
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func change(ct types.ChangeType, id int64) types.ChangeMessage {
	return types.ChangeMessage{ChangeType: ct, ObjectType: types.ObjectEntity, ObjectID: id}
}

func TestDiff(t *testing.T) {
	testCases := []struct {
		name    string
		truth   []types.IDAndChecksum
		replica []types.IDAndChecksum
		want    []types.ChangeMessage
	}{
		{
			name:    "interleaved create and delete",
			truth:   ids(1, 0, 3, 0),
			replica: ids(2, 0, 4, 0),
			want: []types.ChangeMessage{
				change(types.ChangeCreate, 1),
				change(types.ChangeDelete, 2),
				change(types.ChangeCreate, 3),
				change(types.ChangeDelete, 4),
			},
		},
		{
			name:    "checksum mismatch",
			truth:   ids(1, 0, 2, 0, 3, 0),
			replica: ids(1, 55, 2, 0, 3, 55),
			want: []types.ChangeMessage{
				change(types.ChangeUpdate, 1),
				change(types.ChangeUpdate, 3),
			},
		},
		{
			name:    "empty replica",
			truth:   ids(5, 1, 6, 1),
			replica: nil,
			want: []types.ChangeMessage{
				change(types.ChangeCreate, 5),
				change(types.ChangeCreate, 6),
			},
		},
		{
			name:    "empty truth",
			truth:   nil,
			replica: ids(7, 1),
			want:    []types.ChangeMessage{change(types.ChangeDelete, 7)},
		},
		{
			name:    "both empty",
			truth:   nil,
			replica: nil,
			want:    nil,
		},
		{
			name:    "identical",
			truth:   ids(1, 9, 2, 8, 3, 7),
			replica: ids(1, 9, 2, 8, 3, 7),
			want:    nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := collect(t, Diff(types.ObjectEntity, SliceStream(tc.truth), SliceStream(tc.replica)))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDiff_MatchesSetDifference(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	for run := 0; run < 50; run++ {
		truthMap := map[int64]int64{}
		replicaMap := map[int64]int64{}
		for i := 0; i < 200; i++ {
			id := rng.Int64N(300)
			truthMap[id] = rng.Int64N(3)
			if rng.IntN(4) > 0 {
				replicaMap[id] = truthMap[id]
			}
		}
		for i := 0; i < 30; i++ {
			replicaMap[rng.Int64N(300)] = rng.Int64N(3)
		}

		expected := map[int64]types.ChangeType{}
		for id, c := range truthMap {
			rc, ok := replicaMap[id]
			switch {
			case !ok:
				expected[id] = types.ChangeCreate
			case rc != c:
				expected[id] = types.ChangeUpdate
			}
		}
		for id := range replicaMap {
			if _, ok := truthMap[id]; !ok {
				expected[id] = types.ChangeDelete
			}
		}

		got := collect(t, Diff(types.ObjectEntity, SliceStream(sorted(truthMap)), SliceStream(sorted(replicaMap))))
		require.Len(t, got, len(expected))
		for i, m := range got {
			assert.Equal(t, expected[m.ObjectID], m.ChangeType, "id %d", m.ObjectID)
			if i > 0 {
				assert.Less(t, got[i-1].ObjectID, m.ObjectID)
			}
		}
	}
}

func sorted(m map[int64]int64) []types.IDAndChecksum {
	out := make([]types.IDAndChecksum, 0, len(m))
	for id, c := range m {
		out = append(out, types.IDAndChecksum{ID: id, Checksum: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// counting yields ascending ids forever and records how many were pulled.
func counting(pulled *int) Stream {
	return func(yield func(types.IDAndChecksum, error) bool) {
		for id := int64(1); ; id++ {
			*pulled++
			if !yield(types.IDAndChecksum{ID: id}, nil) {
				return
			}
		}
	}
}

func TestDiff_IsLazy(t *testing.T) {
	var pulled int
	seq := Diff(types.ObjectEntity, counting(&pulled), SliceStream(nil))

	var got []int64
	for m, err := range seq {
		require.NoError(t, err)
		got = append(got, m.ObjectID)
		if len(got) == 3 {
			break
		}
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
	assert.LessOrEqual(t, pulled, 4)
}

func TestDiff_RejectsUnorderedStream(t *testing.T) {
	seq := Diff(types.ObjectEntity, SliceStream(ids(1, 0, 1, 0)), SliceStream(nil))

	var err error
	for _, e := range seq {
		if e != nil {
			err = e
		}
	}
	assert.ErrorIs(t, err, ErrNotAscending)
}

func TestDiff_PropagatesStreamError(t *testing.T) {
	boom := errors.New("boom")
	failing := func(yield func(types.IDAndChecksum, error) bool) {
		if !yield(types.IDAndChecksum{ID: 1}, nil) {
			return
		}
		yield(types.IDAndChecksum{}, boom)
	}

	var changes []types.ChangeMessage
	var err error
	for m, e := range Diff(types.ObjectEntity, SliceStream(nil), failing) {
		if e != nil {
			err = e
			continue
		}
		changes = append(changes, m)
	}
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []types.ChangeMessage{change(types.ChangeDelete, 1)}, changes)
}

func TestPages(t *testing.T) {
	var pulled int
	seq := Diff(types.ObjectEntity, counting(&pulled), SliceStream(nil))

	var pages [][]types.ChangeMessage
	for page, err := range Pages(seq, 1000) {
		require.NoError(t, err)
		pages = append(pages, page)
		if len(pages) == 2 {
			break
		}
	}
	require.Len(t, pages, 2)
	assert.Len(t, pages[0], 1000)
	assert.Equal(t, int64(1001), pages[1][0].ObjectID)
}

func TestPages_PartialLastPage(t *testing.T) {
	seq := Diff(types.ObjectEntity, SliceStream(ids(1, 0, 2, 0, 3, 0)), SliceStream(nil))

	var sizes []int
	for page, err := range Pages(seq, 2) {
		require.NoError(t, err)
		sizes = append(sizes, len(page))
	}
	assert.Equal(t, []int{2, 1}, sizes)
}
