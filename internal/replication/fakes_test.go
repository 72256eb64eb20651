package replication

import (
	"context"
	"errors"
	"iter"
	"slices"

	"github.com/nikolay-makurin/entityview/internal/reconcile"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

type fakeProvider struct {
	rows     map[int64]types.ObjectData
	truth    []types.IDAndChecksum
	salts    []int64
	maxChars []int
	err      error
}

func (f *fakeProvider) GetObjectData(ctx context.Context, ids []int64, maxAnnotationChars int) iter.Seq2[types.ObjectData, error] {
	f.maxChars = append(f.maxChars, maxAnnotationChars)
	return func(yield func(types.ObjectData, error) bool) {
		if f.err != nil {
			yield(types.ObjectData{}, f.err)
			return
		}
		for _, id := range ids {
			row, ok := f.rows[id]
			if !ok {
				continue
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

func (f *fakeProvider) StreamIDsAndChecksums(ctx context.Context, salt int64, scope types.Scope) reconcile.Stream {
	f.salts = append(f.salts, salt)
	return reconcile.SliceStream(f.truth)
}

type fakeWriter struct {
	batches []*types.Batch
	err     error
}

func (f *fakeWriter) Write(ctx context.Context, batch *types.Batch) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, batch)
	return nil
}

type fakeReplica struct {
	items []types.IDAndChecksum
	salts []int64
	err   error
}

func (f *fakeReplica) StreamIDsAndChecksums(ctx context.Context, salt int64, scope types.Scope) reconcile.Stream {
	f.salts = append(f.salts, salt)
	if f.err != nil {
		return func(yield func(types.IDAndChecksum, error) bool) {
			yield(types.IDAndChecksum{}, f.err)
		}
	}
	return reconcile.SliceStream(f.items)
}

type fakeLock struct {
	held     bool
	checkErr error
	resets   int
}

func (f *fakeLock) IsLockExpired(ctx context.Context, t types.ReplicationType, viewID int64) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return !f.held, nil
}

func (f *fakeLock) ResetLock(ctx context.Context, t types.ReplicationType, viewID int64) error {
	f.resets++
	return nil
}

type fakeScopes struct {
	scopes map[int64]types.Scope
	calls  int
}

func (f *fakeScopes) ResolveScope(ctx context.Context, viewID int64) (types.Scope, error) {
	f.calls++
	s, ok := f.scopes[viewID]
	if !ok {
		return types.Scope{}, errors.New("no such view")
	}
	return s, nil
}

type fakePublisher struct {
	pages [][]types.ChangeMessage
	err   error
}

func (f *fakePublisher) PushChangeMessagesToReplicationQueue(ctx context.Context, messages []types.ChangeMessage) error {
	if f.err != nil {
		return f.err
	}
	f.pages = append(f.pages, slices.Clone(messages))
	return nil
}

func (f *fakePublisher) all() []types.ChangeMessage {
	var out []types.ChangeMessage
	for _, p := range f.pages {
		out = append(out, p...)
	}
	return out
}

type fakeQueue struct {
	bodies [][]byte
	attrs  map[string]string
	err    error
}

func (f *fakeQueue) Publish(ctx context.Context, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.bodies = append(f.bodies, body)
	return nil
}

func (f *fakeQueue) Attributes(ctx context.Context, names ...string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.attrs, nil
}
