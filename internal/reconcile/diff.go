// Package reconcile detects drift between truth and replica by merging two
// ascending (id, checksum) streams.
package reconcile

import (
	"errors"
	"fmt"
	"iter"

	"github.com/nikolay-makurin/entityview/pkg/types"
)

var ErrNotAscending = errors.New("checksum stream is not strictly ascending")

// Stream yields IDAndChecksum values in strictly ascending id order.
type Stream = iter.Seq2[types.IDAndChecksum, error]

// Diff lazily merges truth and replica into the changes that bring the
// replica in line: ids only in truth are created, ids only in the replica are
// deleted and ids whose checksums differ are updated. Changes are yielded in
// ascending id order. Both streams must be salted identically.
func Diff(objectType types.ObjectType, truth, replica Stream) iter.Seq2[types.ChangeMessage, error] {
	return func(yield func(types.ChangeMessage, error) bool) {
		t := newCursor("truth", truth)
		defer t.stop()
		r := newCursor("replica", replica)
		defer r.stop()

		if err := t.advance(); err != nil {
			yield(types.ChangeMessage{}, err)
			return
		}
		if err := r.advance(); err != nil {
			yield(types.ChangeMessage{}, err)
			return
		}

		for t.ok || r.ok {
			var change *types.ChangeMessage
			var err error
			switch {
			case t.ok && (!r.ok || t.cur.ID < r.cur.ID):
				change = message(types.ChangeCreate, objectType, t.cur.ID)
				err = t.advance()
			case r.ok && (!t.ok || r.cur.ID < t.cur.ID):
				change = message(types.ChangeDelete, objectType, r.cur.ID)
				err = r.advance()
			default:
				if t.cur.Checksum != r.cur.Checksum {
					change = message(types.ChangeUpdate, objectType, t.cur.ID)
				}
				if err = t.advance(); err == nil {
					err = r.advance()
				}
			}
			if change != nil && !yield(*change, nil) {
				return
			}
			if err != nil {
				yield(types.ChangeMessage{}, err)
				return
			}
		}
	}
}

func message(ct types.ChangeType, ot types.ObjectType, id int64) *types.ChangeMessage {
	return &types.ChangeMessage{ChangeType: ct, ObjectType: ot, ObjectID: id}
}

// cursor pulls one element at a time from a Stream.
type cursor struct {
	name    string
	next    func() (types.IDAndChecksum, error, bool)
	stop    func()
	cur     types.IDAndChecksum
	ok      bool
	started bool
}

func newCursor(name string, s Stream) *cursor {
	next, stop := iter.Pull2(s)
	return &cursor{name: name, next: next, stop: stop}
}

func (c *cursor) advance() error {
	v, err, ok := c.next()
	if !ok {
		c.ok = false
		return nil
	}
	if err != nil {
		c.ok = false
		return fmt.Errorf("read %s stream: %w", c.name, err)
	}
	if c.started && v.ID <= c.cur.ID {
		c.ok = false
		return fmt.Errorf("%s stream id %d after %d: %w", c.name, v.ID, c.cur.ID, ErrNotAscending)
	}
	c.cur, c.ok, c.started = v, true, true
	return nil
}

// Pages groups seq into slices of at most size elements. An error ends the
// sequence after it is yielded; elements buffered before it are dropped.
func Pages[T any](seq iter.Seq2[T, error], size int) iter.Seq2[[]T, error] {
	if size <= 0 {
		size = 1
	}
	return func(yield func([]T, error) bool) {
		page := make([]T, 0, size)
		for v, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			page = append(page, v)
			if len(page) == size {
				if !yield(page, nil) {
					return
				}
				page = make([]T, 0, size)
			}
		}
		if len(page) > 0 {
			yield(page, nil)
		}
	}
}

// SliceStream adapts an in-memory ascending slice to a Stream.
func SliceStream(items []types.IDAndChecksum) Stream {
	return func(yield func(types.IDAndChecksum, error) bool) {
		for _, v := range items {
			if !yield(v, nil) {
				return
			}
		}
	}
}
