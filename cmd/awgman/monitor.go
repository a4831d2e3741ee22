package main

import (
	"context"
	"time"

	"awgman/pkg/config"
	"awgman/pkg/lifecycle"
	"awgman/pkg/logging"
	"awgman/pkg/model"
	"awgman/pkg/store"
)

// statusPersistInterval throttles how often derived client statuses are
// written back to the model document. The derived status is a display hint;
// losing up to a minute of it on crash is fine, rewriting the document every
// poll is not.
const statusPersistInterval = time.Minute

// runMonitor polls every running server's interface, derives each client's
// active/inactive status from handshake recency and persists the result with
// throttling.
func runMonitor(ctx context.Context, ctrl *lifecycle.Controller, st *store.Store, cfg *config.Config) {
	ticker := time.NewTicker(cfg.MonitorInterval())
	defer ticker.Stop()

	dirty := false
	lastPersist := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var ids []string
		st.View(func(m *model.Model) {
			for _, s := range m.Servers {
				ids = append(ids, s.ID)
			}
		})

		for _, id := range ids {
			if pollServer(ctx, ctrl, st, id) {
				dirty = true
			}
		}
		ctrl.RunningCount(ctx)

		if dirty && time.Since(lastPersist) >= statusPersistInterval {
			if err := st.Save(); err != nil {
				logging.Warnf("persisting client statuses: %v", err)
				continue
			}
			dirty = false
			lastPersist = time.Now()
		}
	}
}

// pollServer collects one server's traffic and updates its clients' derived
// status in memory. Returns true when any status changed.
func pollServer(ctx context.Context, ctrl *lifecycle.Controller, st *store.Store, id string) bool {
	unlock := st.LockServer(id)
	defer unlock()

	var srv *model.Server
	st.View(func(m *model.Model) { srv = m.Server(id) })
	if srv == nil {
		return false
	}

	peers, err := ctrl.Traffic(ctx, id)
	if err != nil {
		logging.Debugf("traffic poll for %s: %v", id, err)
		return false
	}

	changed := false
	st.Update(func(m *model.Model) {
		for _, client := range srv.Clients {
			status := "inactive"
			if p, ok := peers[client.PublicKey]; ok && p.Active {
				status = "active"
			}
			if client.Status != status {
				client.Status = status
				changed = true
			}
		}
	})
	return changed
}
