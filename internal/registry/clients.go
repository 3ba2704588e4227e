package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"videowall/pkg/logging"
)

// ClientRegistry manages the in-memory table of display clients. All public
// methods take the registry's own lock; methods with a Locked suffix expect
// the caller (the Coordinator) to hold it already.
type ClientRegistry struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	thresholds Thresholds
	logger     logging.Logger
}

// NewClientRegistry creates an empty client table.
func NewClientRegistry(logger logging.Logger, thresholds Thresholds) *ClientRegistry {
	return &ClientRegistry{
		clients:    make(map[string]*Client),
		thresholds: thresholds,
		logger:     logger,
	}
}

// ClientIDForHostname derives the stable client ID used for idempotent
// registration: the same box re-registering always lands on the same record.
func ClientIDForHostname(hostname string) string {
	id := strings.ToLower(strings.TrimSpace(hostname))
	id = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, id)
	return id
}

// StatusOf derives a client's staged status from its heartbeat age.
func (r *ClientRegistry) StatusOf(c *Client) ClientStatus {
	return r.thresholds.StatusFor(time.Since(c.LastSeen))
}

// Heartbeat refreshes a client's last-seen timestamp. Unknown IDs are a
// logged no-op so a heartbeat racing ahead of registration never surfaces
// as a failure; the client self-heals by re-registering.
func (r *ClientRegistry) Heartbeat(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientID]
	if !ok {
		r.logger.WithField("client_id", clientID).Warn("Heartbeat from unknown client ignored")
		return false
	}
	c.LastSeen = time.Now()
	return true
}

// Get returns a snapshot copy of one client.
func (r *ClientRegistry) Get(clientID string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[clientID]
	if !ok {
		return Client{}, false
	}
	return *c.clone(), true
}

// List returns snapshot copies of every client, ordered by ID for stable
// output.
func (r *ClientRegistry) List() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked("")
}

func (r *ClientRegistry) listLocked(groupID string) []Client {
	out := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		if groupID != "" && c.GroupID != groupID {
			continue
		}
		out = append(out, *c.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CountByStatus buckets all clients by their staged status.
func (r *ClientRegistry) CountByStatus() map[ClientStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[ClientStatus]int{
		ClientActive:       0,
		ClientInactive:     0,
		ClientDisconnected: 0,
	}
	asOf := time.Now()
	for _, c := range r.clients {
		counts[r.thresholds.StatusFor(asOf.Sub(c.LastSeen))]++
	}
	return counts
}

func (r *ClientRegistry) getLocked(clientID string) (*Client, bool) {
	c, ok := r.clients[clientID]
	return c, ok
}

func (r *ClientRegistry) putLocked(c *Client) {
	r.clients[c.ID] = c
}

func (r *ClientRegistry) removeLocked(clientID string) (*Client, bool) {
	c, ok := r.clients[clientID]
	if ok {
		delete(r.clients, clientID)
	}
	return c, ok
}

// activeCountLocked counts the group's clients whose heartbeat falls inside
// the slot-liveness window. This count drives how many cropped streams the
// group advertises.
func (r *ClientRegistry) activeCountLocked(groupID string, asOf time.Time) int {
	n := 0
	for _, c := range r.clients {
		if c.GroupID != groupID {
			continue
		}
		if asOf.Sub(c.LastSeen) <= r.thresholds.SlotLiveness {
			n++
		}
	}
	return n
}

// clearGroupLocked detaches every client of a group, returning the IDs that
// were touched. Used by the group-delete cascade.
func (r *ClientRegistry) clearGroupLocked(groupID string) []string {
	var cleared []string
	for _, c := range r.clients {
		if c.GroupID != groupID {
			continue
		}
		c.GroupID = ""
		c.StreamID = ""
		cleared = append(cleared, c.ID)
	}
	sort.Strings(cleared)
	return cleared
}
