package registry

import (
	"fmt"
	"time"

	"videowall/internal/geometry"
)

// ClientInfo is a read-time view: the stored client plus its staged status
// and resolved group name.
type ClientInfo struct {
	Client
	Status    ClientStatus
	GroupName string
}

// GroupInfo is a read-time view: the stored group plus live-computed
// counts. Nothing here is cached; staleness is bounded by how often the
// caller asks.
type GroupInfo struct {
	Group
	ActiveClients    int
	AvailableStreams []string
}

// Viewport pairs a crop region with the stream that carries it.
type Viewport struct {
	geometry.Region
	StreamID string `json:"stream_id"`
}

// Layout describes the full splitter output of a streaming group.
type Layout struct {
	GroupID     string
	GroupName   string
	FrameWidth  int
	FrameHeight int
	Orientation geometry.Orientation
	FullFrame   Viewport
	Screens     []Viewport
}

// AssignmentInfo is what a display box polls for: where it sits, what to
// play, and which part of the frame it shows.
type AssignmentInfo struct {
	Client   Client
	Group    *Group
	Viewport *geometry.Region
}

// GetClient returns one client with computed fields.
func (co *Coordinator) GetClient(clientID string) (ClientInfo, error) {
	co.groups.mu.RLock()
	defer co.groups.mu.RUnlock()
	co.clients.mu.RLock()
	defer co.clients.mu.RUnlock()

	c, ok := co.clients.getLocked(clientID)
	if !ok {
		return ClientInfo{}, fmt.Errorf("%w: %q", ErrClientNotFound, clientID)
	}
	return co.clientInfoLocked(c), nil
}

// ListClients returns all clients, optionally filtered to one group.
func (co *Coordinator) ListClients(groupID string) []ClientInfo {
	co.groups.mu.RLock()
	defer co.groups.mu.RUnlock()
	co.clients.mu.RLock()
	defer co.clients.mu.RUnlock()

	clients := co.clients.listLocked(groupID)
	out := make([]ClientInfo, 0, len(clients))
	for i := range clients {
		out = append(out, co.clientInfoLocked(&clients[i]))
	}
	return out
}

// ListActiveClients returns the clients whose heartbeat falls inside the
// slot-liveness window, optionally filtered to one group.
func (co *Coordinator) ListActiveClients(groupID string) []ClientInfo {
	now := time.Now()
	all := co.ListClients(groupID)
	out := make([]ClientInfo, 0, len(all))
	for _, ci := range all {
		if now.Sub(ci.LastSeen) <= co.thresholds.SlotLiveness {
			out = append(out, ci)
		}
	}
	return out
}

func (co *Coordinator) clientInfoLocked(c *Client) ClientInfo {
	info := ClientInfo{
		Client: *c.clone(),
		Status: co.thresholds.StatusFor(time.Since(c.LastSeen)),
	}
	if c.GroupID != "" {
		if g, ok := co.groups.getLocked(c.GroupID); ok {
			info.GroupName = g.Name
		}
	}
	return info
}

// GetGroup returns one group with live counts.
func (co *Coordinator) GetGroup(groupID string) (GroupInfo, error) {
	co.groups.mu.RLock()
	defer co.groups.mu.RUnlock()
	co.clients.mu.RLock()
	defer co.clients.mu.RUnlock()

	g, ok := co.groups.getLocked(groupID)
	if !ok {
		return GroupInfo{}, fmt.Errorf("%w: %q", ErrGroupNotFound, groupID)
	}
	return co.groupInfoLocked(g), nil
}

// ListGroups returns all groups in creation order with live counts.
func (co *Coordinator) ListGroups() []GroupInfo {
	co.groups.mu.RLock()
	defer co.groups.mu.RUnlock()
	co.clients.mu.RLock()
	defer co.clients.mu.RUnlock()

	out := make([]GroupInfo, 0, len(co.groups.order))
	for _, id := range co.groups.order {
		if g, ok := co.groups.getLocked(id); ok {
			out = append(out, co.groupInfoLocked(g))
		}
	}
	return out
}

func (co *Coordinator) groupInfoLocked(g *Group) GroupInfo {
	active := co.clients.activeCountLocked(g.ID, time.Now())
	return GroupInfo{
		Group:            *g.clone(),
		ActiveClients:    active,
		AvailableStreams: AvailableStreams(g.ID, g.ScreenCount, active),
	}
}

// ClientAssignment resolves what a display box should play right now. The
// viewport is present only while the group is streaming and the client
// holds a stream.
func (co *Coordinator) ClientAssignment(clientID string) (AssignmentInfo, error) {
	co.groups.mu.RLock()
	defer co.groups.mu.RUnlock()
	co.clients.mu.RLock()
	defer co.clients.mu.RUnlock()

	c, ok := co.clients.getLocked(clientID)
	if !ok {
		return AssignmentInfo{}, fmt.Errorf("%w: %q", ErrClientNotFound, clientID)
	}
	info := AssignmentInfo{Client: *c.clone()}
	if c.GroupID == "" {
		return info, nil
	}
	g, ok := co.groups.getLocked(c.GroupID)
	if !ok {
		return info, nil
	}
	info.Group = g.clone()
	if g.Status != GroupActive || c.StreamID == "" {
		return info, nil
	}
	if region, ok := co.viewportForStream(g, c.StreamID); ok {
		info.Viewport = &region
	}
	return info, nil
}

func (co *Coordinator) viewportForStream(g *Group, streamID string) (geometry.Region, bool) {
	idx, ok := SlotIndex(g.ID, streamID)
	if !ok {
		return geometry.Region{}, false
	}
	if idx < 0 {
		return geometry.FullFrame(g.FrameWidth, g.FrameHeight), true
	}
	plan, err := geometry.PlanLayout(g.FrameWidth, g.FrameHeight, g.Orientation, g.ScreenCount, g.GridRows, g.GridCols)
	if err != nil || idx >= len(plan.Regions) {
		return geometry.Region{}, false
	}
	return plan.Regions[idx], true
}

// GroupLayout returns the crop plan of a streaming group, one viewport per
// screen plus the shareable full frame. Asking for the layout of a stopped
// group is an error: there is no frame to crop.
func (co *Coordinator) GroupLayout(groupID string) (Layout, error) {
	co.groups.mu.RLock()
	defer co.groups.mu.RUnlock()

	g, ok := co.groups.getLocked(groupID)
	if !ok {
		return Layout{}, fmt.Errorf("%w: %q", ErrGroupNotFound, groupID)
	}
	if g.Status != GroupActive {
		return Layout{}, fmt.Errorf("%w: group %q is not streaming", ErrStreamNotAvailable, g.Name)
	}
	plan, err := geometry.PlanLayout(g.FrameWidth, g.FrameHeight, g.Orientation, g.ScreenCount, g.GridRows, g.GridCols)
	if err != nil {
		return Layout{}, err
	}

	layout := Layout{
		GroupID:     g.ID,
		GroupName:   g.Name,
		FrameWidth:  g.FrameWidth,
		FrameHeight: g.FrameHeight,
		Orientation: g.Orientation,
		FullFrame: Viewport{
			Region:   geometry.FullFrame(g.FrameWidth, g.FrameHeight),
			StreamID: FullStreamID(g.ID),
		},
		Screens: make([]Viewport, 0, len(plan.Regions)),
	}
	for _, r := range plan.Regions {
		layout.Screens = append(layout.Screens, Viewport{
			Region:   r,
			StreamID: SlotStreamID(g.ID, r.Index),
		})
	}
	return layout, nil
}
