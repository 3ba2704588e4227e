package handlers

import (
	"net/http"

	"videowall/internal/registry"
	"videowall/pkg/api/bosun"
	"videowall/pkg/api/common"
	"videowall/pkg/logging"

	"github.com/gin-gonic/gin"
)

// RegisterClient handles a display box announcing itself. Registration is
// idempotent per hostname; the coordinator decides group placement and the
// stream slot.
func (h *BosunHandlers) RegisterClient(c *gin.Context) {
	var req bosun.RegisterClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid_payload", err)
		return
	}

	ip := req.IP
	if ip == "" {
		ip = c.ClientIP()
	}

	result, err := h.coordinator.RegisterClient(registry.RegistrationInput{
		Hostname:       req.Hostname,
		DisplayName:    req.DisplayName,
		Platform:       req.Platform,
		IP:             ip,
		PreferredGroup: req.PreferredGroup,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.Action == "registered" {
		status = http.StatusCreated
	}
	c.JSON(status, bosun.RegisterClientResponse{
		ClientID: result.Client.ID,
		GroupID:  result.Client.GroupID,
		StreamID: result.Client.StreamID,
		Action:   result.Action,
	})
}

// Heartbeat refreshes a client's last_seen. A 404 tells the box its record
// was swept and it should re-register.
func (h *BosunHandlers) Heartbeat(c *gin.Context) {
	clientID := c.Param("id")
	if !h.coordinator.Heartbeat(clientID) {
		c.JSON(http.StatusNotFound, common.ErrorResponse{
			Error:   "unknown client, re-register",
			Code:    "not_found",
			Service: serviceName,
		})
		return
	}
	c.JSON(http.StatusOK, common.SuccessResponse{Success: true})
}

// ListClients returns all clients, filtered by ?group_id= when given.
// ?active=true restricts the list to clients inside the slot-liveness
// window, the same set the allocator counts when fanning out streams.
func (h *BosunHandlers) ListClients(c *gin.Context) {
	var clients []registry.ClientInfo
	if c.Query("active") == "true" {
		clients = h.coordinator.ListActiveClients(c.Query("group_id"))
	} else {
		clients = h.coordinator.ListClients(c.Query("group_id"))
	}
	views := make([]bosun.ClientView, 0, len(clients))
	for _, info := range clients {
		views = append(views, clientView(info))
	}
	c.JSON(http.StatusOK, gin.H{"clients": views})
}

// GetClient returns a single client view
func (h *BosunHandlers) GetClient(c *gin.Context) {
	info, err := h.coordinator.GetClient(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, clientView(info))
}

// RemoveClient deletes a client record and frees its seat
func (h *BosunHandlers) RemoveClient(c *gin.Context) {
	clientID := c.Param("id")
	if err := h.coordinator.RemoveClient(clientID); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.WithFields(logging.Fields{"client_id": clientID}).Info("Client removed by admin")
	c.JSON(http.StatusOK, common.SuccessResponse{Success: true, Message: "client removed"})
}

// AssignGroup moves a client between groups; a null group_id unassigns
func (h *BosunHandlers) AssignGroup(c *gin.Context) {
	var req bosun.AssignGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid_payload", err)
		return
	}

	groupID := ""
	if req.GroupID != nil {
		groupID = *req.GroupID
	}
	if _, err := h.coordinator.AssignClientToGroup(c.Param("id"), groupID); err != nil {
		h.respondError(c, err)
		return
	}

	info, err := h.coordinator.GetClient(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, clientView(info))
}

// AssignStream pins a client to a stream slot; an empty stream_id lets the
// coordinator pick
func (h *BosunHandlers) AssignStream(c *gin.Context) {
	var req bosun.AssignStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid_payload", err)
		return
	}

	if _, err := h.coordinator.AssignStream(c.Param("id"), req.StreamID); err != nil {
		h.respondError(c, err)
		return
	}

	info, err := h.coordinator.GetClient(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, clientView(info))
}

// AssignVideo points a legacy non-streaming client at a local file
func (h *BosunHandlers) AssignVideo(c *gin.Context) {
	var req bosun.AssignVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid_payload", err)
		return
	}

	if _, err := h.coordinator.AssignVideo(c.Param("id"), req.VideoFile); err != nil {
		h.respondError(c, err)
		return
	}

	info, err := h.coordinator.GetClient(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, clientView(info))
}

// GetAssignment is the poll endpoint for display boxes: which stream to
// pull, from where, and which crop of the frame to show.
func (h *BosunHandlers) GetAssignment(c *gin.Context) {
	info, err := h.coordinator.ClientAssignment(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	view := bosun.AssignmentView{
		ClientID:  info.Client.ID,
		StreamID:  info.Client.StreamID,
		VideoFile: info.Client.VideoFile,
	}
	if info.Group != nil {
		view.GroupID = info.Group.ID
		view.GroupName = info.Group.Name
		view.SRTPort = info.Group.SRTPort
		view.StreamURL = h.streamURL(info.Group.SRTPort, info.Client.StreamID)
	}
	if info.Viewport != nil {
		vp := bosun.ViewportView{
			Index:    info.Viewport.Index,
			X:        info.Viewport.X,
			Y:        info.Viewport.Y,
			Width:    info.Viewport.Width,
			Height:   info.Viewport.Height,
			StreamID: info.Client.StreamID,
			Position: info.Viewport.Position,
		}
		view.Viewport = &vp
	}

	c.JSON(http.StatusOK, view)
}
