package registry

import (
	"fmt"
	"strings"
	"sync"

	"videowall/internal/geometry"
	"videowall/pkg/logging"
)

const (
	basePortStart = 10000
	portBlockSize = 10
	srtPortOffset = 80
)

// GroupRegistry manages the in-memory table of display groups. All public
// methods take the registry's own lock; methods with a Locked suffix expect
// the caller (the Coordinator) to hold it already.
type GroupRegistry struct {
	mu     sync.RWMutex
	groups map[string]*Group
	// order preserves creation order. First-fit assignment scans it, so a
	// client lands in the oldest group with a free screen.
	order     []string
	portIndex int
	logger    logging.Logger
}

// NewGroupRegistry creates an empty group table.
func NewGroupRegistry(logger logging.Logger) *GroupRegistry {
	return &GroupRegistry{
		groups: make(map[string]*Group),
		logger: logger,
	}
}

// normalizeLayout applies the layout consistency rule shared by create and
// update: grid orientations derive screen_count from rows*cols and reject
// non-positive dimensions; linear orientations clamp screen_count to at
// least one screen.
func normalizeLayout(orientation geometry.Orientation, screenCount, rows, cols int) (int, error) {
	if orientation == geometry.OrientationGrid {
		if rows <= 0 || cols <= 0 {
			return 0, fmt.Errorf("%w: %dx%d", ErrInvalidGrid, rows, cols)
		}
		return rows * cols, nil
	}
	if screenCount < 1 {
		screenCount = 1
	}
	return screenCount, nil
}

// Get returns a snapshot copy of one group.
func (r *GroupRegistry) Get(groupID string) (Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.groups[groupID]
	if !ok {
		return Group{}, false
	}
	return *g.clone(), true
}

// List returns snapshot copies of every group in creation order.
func (r *GroupRegistry) List() []Group {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Group, 0, len(r.order))
	for _, id := range r.order {
		if g, ok := r.groups[id]; ok {
			out = append(out, *g.clone())
		}
	}
	return out
}

// Count returns the number of groups.
func (r *GroupRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// CountByStatus buckets all groups by lifecycle status.
func (r *GroupRegistry) CountByStatus() map[GroupStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[GroupStatus]int{
		GroupInactive: 0,
		GroupStarting: 0,
		GroupActive:   0,
		GroupStopping: 0,
	}
	for _, g := range r.groups {
		counts[g.Status]++
	}
	return counts
}

func (r *GroupRegistry) getLocked(groupID string) (*Group, bool) {
	g, ok := r.groups[groupID]
	return g, ok
}

// nameTakenLocked reports whether name collides with an existing group,
// comparing case-insensitively. exceptID skips the group being renamed.
func (r *GroupRegistry) nameTakenLocked(name, exceptID string) (string, bool) {
	for _, g := range r.groups {
		if g.ID == exceptID {
			continue
		}
		if strings.EqualFold(g.Name, name) {
			return g.Name, true
		}
	}
	return "", false
}

// allocatePortsLocked hands out the next port block. Read-and-increment
// happens under the group lock, so two concurrent creates can never share a
// block.
func (r *GroupRegistry) allocatePortsLocked() (basePort, srtPort int) {
	basePort = basePortStart + r.portIndex*portBlockSize
	r.portIndex++
	return basePort, basePort + srtPortOffset
}

func (r *GroupRegistry) insertLocked(g *Group) {
	r.groups[g.ID] = g
	r.order = append(r.order, g.ID)
}

func (r *GroupRegistry) removeLocked(groupID string) (*Group, bool) {
	g, ok := r.groups[groupID]
	if !ok {
		return nil, false
	}
	delete(r.groups, groupID)
	for i, id := range r.order {
		if id == groupID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return g, true
}

// seedLocked restores a group from a snapshot and advances the port counter
// past its block, so groups created after a restart don't collide with
// rehydrated ones.
func (r *GroupRegistry) seedLocked(g *Group) {
	if g.Members == nil {
		g.Members = make(map[string]*Membership)
	}
	r.insertLocked(g)
	if g.BasePort >= basePortStart {
		next := (g.BasePort-basePortStart)/portBlockSize + 1
		if next > r.portIndex {
			r.portIndex = next
		}
	}
}

// firstFitLocked returns the oldest streaming group with a free screen, or
// nil when every wall is full or idle.
func (r *GroupRegistry) firstFitLocked() *Group {
	for _, id := range r.order {
		g, ok := r.groups[id]
		if !ok {
			continue
		}
		if g.Status == GroupActive && len(g.Members) < g.ScreenCount {
			return g
		}
	}
	return nil
}
