package bosun

import "time"

// RegisterClientRequest is sent by a display client when it comes online.
// Registration is idempotent per hostname: re-registering refreshes the
// heartbeat and keeps any existing group/stream assignment.
type RegisterClientRequest struct {
	Hostname       string `json:"hostname" binding:"required"`
	DisplayName    string `json:"display_name,omitempty"`
	Platform       string `json:"platform,omitempty"`
	IP             string `json:"ip,omitempty"`
	PreferredGroup string `json:"preferred_group_id,omitempty"`
}

// RegisterClientResponse reports the outcome of a registration call.
type RegisterClientResponse struct {
	ClientID string `json:"client_id"`
	GroupID  string `json:"group_id,omitempty"`
	StreamID string `json:"stream_id,omitempty"`
	Action   string `json:"action"` // "registered" or "updated"
}

// ClientView is the read model for a registered display client.
type ClientView struct {
	ClientID          string    `json:"client_id"`
	Hostname          string    `json:"hostname"`
	DisplayName       string    `json:"display_name,omitempty"`
	IP                string    `json:"ip,omitempty"`
	Platform          string    `json:"platform,omitempty"`
	Status            string    `json:"status"`
	LastSeen          time.Time `json:"last_seen"`
	LastSeenFormatted string    `json:"last_seen_formatted"`
	GroupID           string    `json:"group_id,omitempty"`
	GroupName         string    `json:"group_name,omitempty"`
	StreamID          string    `json:"stream_id,omitempty"`
	VideoFile         string    `json:"video_file,omitempty"`
}

// CreateGroupRequest creates a new wall group.
type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description,omitempty"`
	ScreenCount int    `json:"screen_count"`
	Orientation string `json:"orientation" binding:"required"`
	GridRows    int    `json:"grid_rows,omitempty"`
	GridCols    int    `json:"grid_cols,omitempty"`
	VideoFile   string `json:"video_file,omitempty"`
}

// UpdateGroupRequest patches group fields. Nil pointers leave the field
// untouched.
type UpdateGroupRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	ScreenCount *int    `json:"screen_count,omitempty"`
	Orientation *string `json:"orientation,omitempty"`
	GridRows    *int    `json:"grid_rows,omitempty"`
	GridCols    *int    `json:"grid_cols,omitempty"`
	Status      *string `json:"status,omitempty"`
	VideoFile   *string `json:"video_file,omitempty"`
}

// GroupMemberView describes one client's membership inside a group.
type GroupMemberView struct {
	ClientID   string    `json:"client_id"`
	StreamID   string    `json:"stream_id,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// GroupView is the read model for a group, including the live-computed
// active client count and currently available streams.
type GroupView struct {
	GroupID          string            `json:"group_id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	ScreenCount      int               `json:"screen_count"`
	Orientation      string            `json:"orientation"`
	GridRows         int               `json:"grid_rows,omitempty"`
	GridCols         int               `json:"grid_cols,omitempty"`
	Status           string            `json:"status"`
	BasePort         int               `json:"base_port"`
	SRTPort          int               `json:"srt_port"`
	FrameWidth       int               `json:"frame_width,omitempty"`
	FrameHeight      int               `json:"frame_height,omitempty"`
	VideoFile        string            `json:"video_file,omitempty"`
	ActiveClients    int               `json:"active_clients"`
	AvailableStreams []string          `json:"available_streams"`
	Members          []GroupMemberView `json:"members"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// AssignGroupRequest moves a client into a group, or out of any group
// when GroupID is null.
type AssignGroupRequest struct {
	GroupID *string `json:"group_id"`
}

// AssignStreamRequest pins a client to a stream slot. An empty StreamID
// asks the coordinator to pick the first free slot.
type AssignStreamRequest struct {
	StreamID string `json:"stream_id,omitempty"`
}

// AssignVideoRequest points a legacy non-streaming client at a local file.
type AssignVideoRequest struct {
	VideoFile string `json:"video_file" binding:"required"`
}

// StartStreamRequest starts a group's wall output. Frame dimensions
// default to 1920x1080 when omitted.
type StartStreamRequest struct {
	FrameWidth  int    `json:"frame_width,omitempty"`
	FrameHeight int    `json:"frame_height,omitempty"`
	VideoFile   string `json:"video_file,omitempty"`
}

// ViewportView is one crop region of a planned layout.
type ViewportView struct {
	Index    int    `json:"index"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	StreamID string `json:"stream_id"`
	Position string `json:"position"`
}

// LayoutResponse is the full set of viewports for a frame split. FullFrame
// is the shareable uncropped stream; Viewports are the per-screen crops in
// slot order.
type LayoutResponse struct {
	GroupID     string         `json:"group_id,omitempty"`
	GroupName   string         `json:"group_name,omitempty"`
	FrameWidth  int            `json:"frame_width"`
	FrameHeight int            `json:"frame_height"`
	Orientation string         `json:"orientation"`
	FullFrame   *ViewportView  `json:"full_frame,omitempty"`
	Viewports   []ViewportView `json:"viewports"`
}

// AssignmentView tells one client what to pull and how to crop it.
type AssignmentView struct {
	ClientID  string        `json:"client_id"`
	GroupID   string        `json:"group_id,omitempty"`
	GroupName string        `json:"group_name,omitempty"`
	StreamID  string        `json:"stream_id,omitempty"`
	StreamURL string        `json:"stream_url,omitempty"`
	SRTPort   int           `json:"srt_port,omitempty"`
	VideoFile string        `json:"video_file,omitempty"`
	Viewport  *ViewportView `json:"viewport,omitempty"`
}

// StatusResponse summarises the coordinator's registry state.
type StatusResponse struct {
	Service         string                 `json:"service"`
	Version         string                 `json:"version"`
	Clients         int                    `json:"clients"`
	ActiveClients   int                    `json:"active_clients"`
	Groups          int                    `json:"groups"`
	ActiveGroups    int                    `json:"active_groups"`
	ClientsByStatus map[string]int         `json:"clients_by_status"`
	GroupsByStatus  map[string]int         `json:"groups_by_status"`
	WebSocket       map[string]interface{} `json:"websocket,omitempty"`
}
