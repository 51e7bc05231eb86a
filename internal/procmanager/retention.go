package procmanager

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const sweeperMinInterval = time.Second

// runRetentionSweeper periodically evicts terminal records whose EndedAt is
// older than retentionSeconds, along with their Output Store logs. Running
// processes are never swept. It exits once ctx is cancelled.
func (m *Manager) runRetentionSweeper(ctx context.Context) {
	defer close(m.sweeperDone)

	interval := time.Duration(m.retentionSeconds) * time.Second / 10
	if interval < sweeperMinInterval {
		interval = sweeperMinInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepExpired()
		}
	}
}

func (m *Manager) sweepExpired() {
	cutoff := time.Now().Add(-time.Duration(m.retentionSeconds) * time.Second)

	m.mu.RLock()
	var expired []string
	for id, e := range m.entries {
		r := e.snapshot()
		if !r.Status.IsTerminal() || r.EndedAt == nil {
			continue
		}
		if r.EndedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.mu.Lock()
		delete(m.entries, id)
		m.mu.Unlock()

		if err := m.store.Clear(id); err != nil {
			m.logger.Debug("retention sweep: clear failed", zap.String("process_id", id), zap.Error(err))
		}
	}
}
