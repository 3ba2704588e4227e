package registry

import (
	"fmt"
	"time"

	"videowall/internal/geometry"
)

// ClientStatus is derived from heartbeat age, never stored.
type ClientStatus string

const (
	ClientActive       ClientStatus = "active"
	ClientInactive     ClientStatus = "inactive"
	ClientDisconnected ClientStatus = "disconnected"
)

// GroupStatus tracks the wall's streaming lifecycle.
type GroupStatus string

const (
	GroupInactive GroupStatus = "inactive"
	GroupStarting GroupStatus = "starting"
	GroupActive   GroupStatus = "active"
	GroupStopping GroupStatus = "stopping"
)

// ParseGroupStatus validates a status string from an update request.
func ParseGroupStatus(s string) (GroupStatus, error) {
	switch GroupStatus(s) {
	case GroupInactive, GroupStarting, GroupActive, GroupStopping:
		return GroupStatus(s), nil
	default:
		return "", fmt.Errorf("unknown group status %q", s)
	}
}

// Thresholds configures how heartbeat age maps onto liveness decisions.
// Status staging and slot eligibility deliberately use separate windows: a
// client can be "inactive" for display purposes while still holding its
// stream slot.
type Thresholds struct {
	// ActiveWithin stages a client as active when its last heartbeat is at
	// most this old.
	ActiveWithin time.Duration
	// InactiveWithin stages a client as inactive up to this age; beyond it
	// the client is disconnected.
	InactiveWithin time.Duration
	// SlotLiveness is the window used when counting active clients for
	// stream slot fan-out.
	SlotLiveness time.Duration
	// CleanupAfter is the age at which the sweeper removes a client
	// entirely.
	CleanupAfter time.Duration
}

// DefaultThresholds returns the standard staging windows.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ActiveWithin:   30 * time.Second,
		InactiveWithin: 120 * time.Second,
		SlotLiveness:   60 * time.Second,
		CleanupAfter:   300 * time.Second,
	}
}

// StatusFor stages a heartbeat age into a client status.
func (t Thresholds) StatusFor(age time.Duration) ClientStatus {
	switch {
	case age <= t.ActiveWithin:
		return ClientActive
	case age <= t.InactiveWithin:
		return ClientInactive
	default:
		return ClientDisconnected
	}
}

// Client is one registered display device.
type Client struct {
	ID           string    `json:"id"`
	Hostname     string    `json:"hostname"`
	DisplayName  string    `json:"display_name,omitempty"`
	IP           string    `json:"ip,omitempty"`
	Platform     string    `json:"platform,omitempty"`
	GroupID      string    `json:"group_id,omitempty"`
	StreamID     string    `json:"stream_id,omitempty"`
	VideoFile    string    `json:"video_file,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
	RegisteredAt time.Time `json:"registered_at"`

	// lastStage is the staged status the sweep last published for this
	// client, so each transition is announced exactly once.
	lastStage ClientStatus
}

func (c *Client) clone() *Client {
	cp := *c
	return &cp
}

// Membership is one client's seat inside a group, kept as a denormalized
// index so capacity checks and slot lookups don't scan the client table.
type Membership struct {
	ClientID   string    `json:"client_id"`
	StreamID   string    `json:"stream_id,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Group is one video wall: a set of screens tiled over a single source
// frame.
type Group struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	ScreenCount int                    `json:"screen_count"`
	Orientation geometry.Orientation   `json:"orientation"`
	GridRows    int                    `json:"grid_rows,omitempty"`
	GridCols    int                    `json:"grid_cols,omitempty"`
	Status      GroupStatus            `json:"status"`
	BasePort    int                    `json:"base_port"`
	SRTPort     int                    `json:"srt_port"`
	FrameWidth  int                    `json:"frame_width,omitempty"`
	FrameHeight int                    `json:"frame_height,omitempty"`
	VideoFile   string                 `json:"video_file,omitempty"`
	Members     map[string]*Membership `json:"members"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func (g *Group) clone() *Group {
	cp := *g
	cp.Members = make(map[string]*Membership, len(g.Members))
	for id, m := range g.Members {
		mc := *m
		cp.Members[id] = &mc
	}
	return &cp
}

// memberHolding returns the member currently holding streamID, excluding
// exceptID. Used to enforce slot exclusivity.
func (g *Group) memberHolding(streamID, exceptID string) *Membership {
	for id, m := range g.Members {
		if id == exceptID {
			continue
		}
		if m.StreamID == streamID {
			return m
		}
	}
	return nil
}
