package pipeline

import (
	"container/heap"
	"sync"

	"github.com/nikolay-makurin/entityview/pkg/types"
)

// lsnHeap is a min-heap of WAL positions.
type lsnHeap []types.LSN

func (h lsnHeap) Len() int           { return len(h) }
func (h lsnHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h lsnHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *lsnHeap) Push(x any) {
	*h = append(*h, x.(types.LSN))
}

func (h *lsnHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// CheckpointManager tracks captured WAL positions whose change messages
// have not been published yet. The safe LSN never passes an unpublished
// position, so acknowledging it to the server loses nothing.
type CheckpointManager struct {
	mu       sync.Mutex
	inflight lsnHeap
	// pending counts outstanding Track calls per position.
	pending map[types.LSN]int
	safeLSN types.LSN
}

func NewCheckpointManager(startLSN types.LSN) *CheckpointManager {
	return &CheckpointManager{
		pending: make(map[types.LSN]int),
		safeLSN: startLSN,
	}
}

// Track registers lsn as in flight. A position may be tracked more than
// once; it is released after the same number of MarkDone calls.
func (cm *CheckpointManager) Track(lsn types.LSN) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.pending[lsn] == 0 {
		heap.Push(&cm.inflight, lsn)
	}
	cm.pending[lsn]++
}

func (cm *CheckpointManager) MarkDone(lsn types.LSN) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.pending[lsn] > 0 {
		cm.pending[lsn]--
	}
	for cm.inflight.Len() > 0 {
		low := cm.inflight[0]
		if cm.pending[low] > 0 {
			break
		}
		heap.Pop(&cm.inflight)
		delete(cm.pending, low)
		if low > cm.safeLSN {
			cm.safeLSN = low
		}
	}
}

func (cm *CheckpointManager) GetSafeLSN() types.LSN {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.safeLSN
}
