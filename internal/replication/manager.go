package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikolay-makurin/entityview/internal/config"
	"github.com/nikolay-makurin/entityview/internal/reconcile"
	"github.com/nikolay-makurin/entityview/internal/telemetry"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

// Publisher re-enters detected changes into the replication path.
type Publisher interface {
	PushChangeMessagesToReplicationQueue(ctx context.Context, messages []types.ChangeMessage) error
}

type Dependencies struct {
	Providers map[types.ReplicationType]DataProvider
	Writer    Writer
	Replica   ReplicaChecksums
	Lock      Lock
	Scopes    ScopeResolver
	Publisher Publisher
	// Rand seeds reconciliation salts. A randomly seeded source is used
	// when nil.
	Rand *rand.Rand
}

// Manager applies change batches to the replica and repairs drift.
type Manager struct {
	cfg  config.ReplicationConfig
	deps Dependencies

	mu  sync.Mutex
	rng *rand.Rand
}

func NewManager(cfg config.ReplicationConfig, deps Dependencies) (*Manager, error) {
	if deps.Writer == nil || deps.Replica == nil || deps.Lock == nil || deps.Scopes == nil || deps.Publisher == nil {
		return nil, errors.New("replication manager requires writer, replica, lock, scopes and publisher")
	}
	if len(deps.Providers) == 0 {
		return nil, errors.New("replication manager requires at least one data provider")
	}
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.ReconcilePageSize <= 0 {
		cfg.ReconcilePageSize = 1000
	}
	return &Manager{cfg: cfg, deps: deps, rng: rng}, nil
}

// Replicate applies a batch of changes. Each replication type is written as
// one delete-then-insert unit, so redelivering the same batch converges to
// the same replica state.
func (m *Manager) Replicate(ctx context.Context, changes []types.ChangeMessage) error {
	for _, g := range GroupByReplicationType(changes) {
		if err := m.replicateGroup(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// ReplicateOne refreshes a single object.
func (m *Manager) ReplicateOne(ctx context.Context, t types.ReplicationType, id int64) error {
	g := NewDataGroup(t)
	g.AddForCreateOrUpdate(id)
	return m.replicateGroup(ctx, g)
}

func (m *Manager) replicateGroup(ctx context.Context, g *DataGroup) error {
	provider, ok := m.deps.Providers[g.Type]
	if !ok {
		return fmt.Errorf("no data provider for replication type %s", g.Type)
	}

	batch := &types.Batch{Type: g.Type, DeleteIDs: g.IDsToDelete}
	if len(g.IDsToCreateOrUpdate) > 0 {
		for row, err := range provider.GetObjectData(ctx, g.IDsToCreateOrUpdate, m.cfg.MaxAnnotationChars) {
			if err != nil {
				return fmt.Errorf("failed to read %s object data: %w", g.Type, err)
			}
			batch.Rows = append(batch.Rows, row)
		}
	}

	if err := m.deps.Writer.Write(ctx, batch); err != nil {
		return fmt.Errorf("failed to write %s batch: %w", g.Type, err)
	}

	telemetry.ObjectsReplicated.WithLabelValues(string(g.Type), "delete").Add(float64(len(batch.DeleteIDs)))
	telemetry.ObjectsReplicated.WithLabelValues(string(g.Type), "insert").Add(float64(len(batch.Rows)))
	slog.Debug("Replicated batch", "type", g.Type, "deleted", len(batch.DeleteIDs), "inserted", len(batch.Rows))
	return nil
}

// Reconcile compares the view's truth scope with the replica and republishes
// every difference as a change message. A run is skipped while the view's
// lock has not expired; the lock is reset after every attempted run.
func (m *Manager) Reconcile(ctx context.Context, viewID int64) (err error) {
	scope, err := m.deps.Scopes.ResolveScope(ctx, viewID)
	if err != nil {
		return fmt.Errorf("failed to resolve scope of view %d: %w", viewID, err)
	}
	provider, ok := m.deps.Providers[scope.Type]
	if !ok {
		return fmt.Errorf("no data provider for replication type %s", scope.Type)
	}
	objectType, ok := ObjectTypeOf(scope.Type)
	if !ok {
		return fmt.Errorf("no object type for replication type %s", scope.Type)
	}

	expired, err := m.deps.Lock.IsLockExpired(ctx, scope.Type, viewID)
	if err != nil {
		return fmt.Errorf("failed to check reconciliation lock: %w", err)
	}
	if !expired {
		slog.Info("Reconciliation lock not expired, skipping", "view_id", viewID, "type", scope.Type)
		telemetry.ReconcileRuns.WithLabelValues("skipped").Inc()
		return nil
	}

	runID := uuid.NewString()
	log := slog.With("run_id", runID, "view_id", viewID, "type", scope.Type)
	start := time.Now()
	defer func() {
		if rerr := m.deps.Lock.ResetLock(context.WithoutCancel(ctx), scope.Type, viewID); rerr != nil {
			log.Error("Failed to reset reconciliation lock", "error", rerr)
			err = errors.Join(err, rerr)
		}
		result := "completed"
		if err != nil {
			result = "failed"
		}
		telemetry.ReconcileRuns.WithLabelValues(result).Inc()
	}()

	salt := m.nextSalt()
	truth := provider.StreamIDsAndChecksums(ctx, salt, scope)
	replica := m.deps.Replica.StreamIDsAndChecksums(ctx, salt, scope)

	var total int
	for page, perr := range reconcile.Pages(reconcile.Diff(objectType, truth, replica), m.cfg.ReconcilePageSize) {
		if perr != nil {
			return fmt.Errorf("reconcile view %d: %w", viewID, perr)
		}
		if err := m.deps.Publisher.PushChangeMessagesToReplicationQueue(ctx, page); err != nil {
			return fmt.Errorf("reconcile view %d: %w", viewID, err)
		}
		for _, c := range page {
			telemetry.ReconcileChanges.WithLabelValues(string(scope.Type), string(c.ChangeType)).Inc()
		}
		total += len(page)
	}

	log.Info("Reconciliation finished", "changes", total, "duration", time.Since(start))
	return nil
}

func (m *Manager) nextSalt() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Int64()
}
