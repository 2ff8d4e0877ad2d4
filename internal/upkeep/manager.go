package upkeep

import (
	"context"
	"sync"

	"github.com/blazelabs/lottery-engine/pkg/common/logger"
)

// Manager starts a set of workers and stops them together on shutdown.
type Manager struct {
	workers []Worker
	wg      sync.WaitGroup
}

func NewManager(workers ...Worker) *Manager {
	return &Manager{workers: workers}
}

func (m *Manager) Start(ctx context.Context) {
	for _, w := range m.workers {
		m.wg.Add(1)
		go func(w Worker) {
			defer m.wg.Done()
			if err := w.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("worker exited", "worker", w.Name(), "error", err)
			}
		}(w)
	}
}

func (m *Manager) Stop() {
	var stopWg sync.WaitGroup
	for _, w := range m.workers {
		stopWg.Add(1)
		go func(w Worker) {
			defer stopWg.Done()
			if err := w.Stop(); err != nil {
				logger.Error("worker stop failed", "worker", w.Name(), "error", err)
			}
		}(w)
	}
	stopWg.Wait()
	m.wg.Wait()
}
