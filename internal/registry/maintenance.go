package registry

import (
	"sort"
	"time"

	"videowall/pkg/logging"
)

// SweepResult summarizes one cleanup pass.
type SweepResult struct {
	Checked int
	Removed []string
}

// SweepClients re-stages liveness for every client and removes those whose
// last heartbeat is older than the cleanup threshold. The scan runs in two
// passes so the write locks are held only for the clients that actually
// changed: a read-locked snapshot collects candidates, then each candidate
// is re-checked under the write locks in case a heartbeat arrived in
// between.
func (co *Coordinator) SweepClients() SweepResult {
	now := time.Now()
	co.clients.mu.RLock()
	checked := len(co.clients.clients)
	var candidates []string
	var staged []string
	for id, c := range co.clients.clients {
		if now.Sub(c.LastSeen) > co.thresholds.CleanupAfter {
			candidates = append(candidates, id)
			continue
		}
		if co.thresholds.StatusFor(now.Sub(c.LastSeen)) != c.lastStage {
			staged = append(staged, id)
		}
	}
	co.clients.mu.RUnlock()
	sort.Strings(candidates)
	sort.Strings(staged)

	removed := make([]string, 0, len(candidates))
	if len(candidates) > 0 || len(staged) > 0 {
		co.groups.mu.Lock()
		co.clients.mu.Lock()
		for _, id := range candidates {
			c, ok := co.clients.getLocked(id)
			if !ok {
				continue
			}
			if time.Since(c.LastSeen) <= co.thresholds.CleanupAfter {
				continue
			}
			co.detachLocked(c)
			co.clients.removeLocked(id)
			removed = append(removed, id)

			co.logger.WithFields(logging.Fields{
				"client_id": id,
				"hostname":  c.Hostname,
				"last_seen": c.LastSeen,
			}).Info("Expired client removed")
			co.publish("client_removed", ChannelClients, map[string]interface{}{
				"client_id": id,
				"reason":    "expired",
			})
		}
		for _, id := range staged {
			c, ok := co.clients.getLocked(id)
			if !ok {
				continue
			}
			stage := co.thresholds.StatusFor(time.Since(c.LastSeen))
			if stage == c.lastStage {
				continue
			}
			previous := c.lastStage
			c.lastStage = stage
			co.publish("client_status_changed", ChannelClients, map[string]interface{}{
				"client_id": id,
				"status":    string(stage),
				"previous":  string(previous),
			})
		}
		co.clients.mu.Unlock()
		co.groups.mu.Unlock()
	}

	if co.metrics != nil && co.metrics.SweepRemovals != nil && len(removed) > 0 {
		co.metrics.SweepRemovals.WithLabelValues("expired").Add(float64(len(removed)))
	}
	co.updateGauges()
	return SweepResult{Checked: checked, Removed: removed}
}

func (co *Coordinator) updateGauges() {
	if co.metrics == nil || co.metrics.ClientsGauge == nil || co.metrics.GroupsGauge == nil {
		return
	}
	for status, n := range co.clients.CountByStatus() {
		co.metrics.ClientsGauge.WithLabelValues(string(status)).Set(float64(n))
	}
	for status, n := range co.groups.CountByStatus() {
		co.metrics.GroupsGauge.WithLabelValues(string(status)).Set(float64(n))
	}
}

// StatusSummary is the coordinator-wide headcount.
type StatusSummary struct {
	TotalClients    int
	TotalGroups     int
	ClientsByStatus map[ClientStatus]int
	GroupsByStatus  map[GroupStatus]int
}

// Status reports current table sizes and status breakdowns.
func (co *Coordinator) Status() StatusSummary {
	return StatusSummary{
		TotalClients:    co.clients.Count(),
		TotalGroups:     co.groups.Count(),
		ClientsByStatus: co.clients.CountByStatus(),
		GroupsByStatus:  co.groups.CountByStatus(),
	}
}

// State is a point-in-time copy of both tables, used by the snapshot store.
type State struct {
	Clients []Client
	Groups  []Group
}

// ExportState snapshots both tables in one consistent read.
func (co *Coordinator) ExportState() State {
	co.groups.mu.RLock()
	defer co.groups.mu.RUnlock()
	co.clients.mu.RLock()
	defer co.clients.mu.RUnlock()

	st := State{
		Clients: co.clients.listLocked(""),
		Groups:  make([]Group, 0, len(co.groups.order)),
	}
	for _, id := range co.groups.order {
		if g, ok := co.groups.getLocked(id); ok {
			st.Groups = append(st.Groups, *g.clone())
		}
	}
	return st
}

// Rehydrate seeds both tables from a snapshot. Call it once at startup,
// before serving requests. Cross-references are repaired rather than
// trusted: a snapshot can be arbitrarily stale relative to what the clients
// last saw.
func (co *Coordinator) Rehydrate(st State) {
	co.groups.mu.Lock()
	defer co.groups.mu.Unlock()
	co.clients.mu.Lock()
	defer co.clients.mu.Unlock()

	groups := make([]Group, len(st.Groups))
	copy(groups, st.Groups)
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].ID < groups[j].ID
		}
		return groups[i].CreatedAt.Before(groups[j].CreatedAt)
	})
	for i := range groups {
		co.groups.seedLocked(groups[i].clone())
	}
	for i := range st.Clients {
		co.clients.putLocked(st.Clients[i].clone())
	}

	repaired := 0
	for _, c := range co.clients.clients {
		if c.GroupID == "" {
			continue
		}
		g, ok := co.groups.getLocked(c.GroupID)
		if !ok {
			co.logger.WithFields(logging.Fields{
				"client_id": c.ID,
				"group_id":  c.GroupID,
			}).Warn("Snapshot references missing group; clearing assignment")
			c.GroupID = ""
			c.StreamID = ""
			repaired++
			continue
		}
		if _, ok := g.Members[c.ID]; !ok {
			g.Members[c.ID] = &Membership{
				ClientID:   c.ID,
				StreamID:   c.StreamID,
				AssignedAt: c.RegisteredAt,
			}
			repaired++
		}
	}
	for _, g := range co.groups.groups {
		for id, m := range g.Members {
			c, ok := co.clients.getLocked(id)
			if !ok {
				co.logger.WithFields(logging.Fields{
					"group_id":  g.ID,
					"client_id": id,
				}).Warn("Snapshot membership references missing client; dropping seat")
				delete(g.Members, id)
				repaired++
				continue
			}
			if m.StreamID != c.StreamID {
				m.StreamID = c.StreamID
			}
		}
	}

	co.logger.WithFields(logging.Fields{
		"clients":  len(st.Clients),
		"groups":   len(st.Groups),
		"repaired": repaired,
	}).Info("Registry rehydrated from snapshot")
}
