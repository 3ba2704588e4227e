package handlers

import (
	"net/http"

	"videowall/internal/geometry"
	"videowall/internal/registry"
	"videowall/pkg/api/bosun"
	"videowall/pkg/api/common"
	"videowall/pkg/logging"

	"github.com/gin-gonic/gin"
)

// CreateGroup provisions a new wall group with an allocated port block
func (h *BosunHandlers) CreateGroup(c *gin.Context) {
	var req bosun.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid_payload", err)
		return
	}
	orientation, err := geometry.ParseOrientation(req.Orientation)
	if err != nil {
		h.badRequest(c, "invalid_orientation", err)
		return
	}

	g, err := h.coordinator.CreateGroup(registry.CreateGroupInput{
		Name:        req.Name,
		Description: req.Description,
		ScreenCount: req.ScreenCount,
		Orientation: orientation,
		GridRows:    req.GridRows,
		GridCols:    req.GridCols,
		VideoFile:   req.VideoFile,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	info, err := h.coordinator.GetGroup(g.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, groupView(info))
}

// ListGroups returns all groups in creation order
func (h *BosunHandlers) ListGroups(c *gin.Context) {
	groups := h.coordinator.ListGroups()
	views := make([]bosun.GroupView, 0, len(groups))
	for _, info := range groups {
		views = append(views, groupView(info))
	}
	c.JSON(http.StatusOK, gin.H{"groups": views})
}

// GetGroup returns a single group with live counts
func (h *BosunHandlers) GetGroup(c *gin.Context) {
	info, err := h.coordinator.GetGroup(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, groupView(info))
}

// UpdateGroup applies a partial update; the grid invariant is re-checked
// on every mutation
func (h *BosunHandlers) UpdateGroup(c *gin.Context) {
	var req bosun.UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid_payload", err)
		return
	}

	in := registry.UpdateGroupInput{
		Name:        req.Name,
		Description: req.Description,
		ScreenCount: req.ScreenCount,
		GridRows:    req.GridRows,
		GridCols:    req.GridCols,
		VideoFile:   req.VideoFile,
	}
	if req.Orientation != nil {
		orientation, err := geometry.ParseOrientation(*req.Orientation)
		if err != nil {
			h.badRequest(c, "invalid_orientation", err)
			return
		}
		in.Orientation = &orientation
	}
	if req.Status != nil {
		status, err := registry.ParseGroupStatus(*req.Status)
		if err != nil {
			h.badRequest(c, "invalid_status", err)
			return
		}
		in.Status = &status
	}

	g, err := h.coordinator.UpdateGroup(c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	info, err := h.coordinator.GetGroup(g.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, groupView(info))
}

// DeleteGroup removes an idle group and unseats its members
func (h *BosunHandlers) DeleteGroup(c *gin.Context) {
	groupID := c.Param("id")
	if err := h.coordinator.DeleteGroup(groupID); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.WithFields(logging.Fields{"group_id": groupID}).Info("Group deleted by admin")
	c.JSON(http.StatusOK, common.SuccessResponse{Success: true, Message: "group deleted"})
}

// StartStream marks a group live and seats its members. The request body
// is optional; omitted dimensions fall back to configured defaults.
func (h *BosunHandlers) StartStream(c *gin.Context) {
	var req bosun.StartStreamRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid_payload", err)
			return
		}
	}

	g, err := h.coordinator.StartStream(c.Param("id"), registry.StartStreamInput{
		FrameWidth:  req.FrameWidth,
		FrameHeight: req.FrameHeight,
		VideoFile:   req.VideoFile,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	info, err := h.coordinator.GetGroup(g.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, groupView(info))
}

// StopStream takes a group offline; members keep their seats but lose
// their streams
func (h *BosunHandlers) StopStream(c *gin.Context) {
	g, err := h.coordinator.StopStream(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	info, err := h.coordinator.GetGroup(g.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, groupView(info))
}

// GetGroupLayout returns the crop plan of a streaming group
func (h *BosunHandlers) GetGroupLayout(c *gin.Context) {
	layout, err := h.coordinator.GroupLayout(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	full := viewportView(layout.FullFrame)
	resp := bosun.LayoutResponse{
		GroupID:     layout.GroupID,
		GroupName:   layout.GroupName,
		FrameWidth:  layout.FrameWidth,
		FrameHeight: layout.FrameHeight,
		Orientation: string(layout.Orientation),
		FullFrame:   &full,
		Viewports:   make([]bosun.ViewportView, 0, len(layout.Screens)),
	}
	for _, v := range layout.Screens {
		resp.Viewports = append(resp.Viewports, viewportView(v))
	}

	c.JSON(http.StatusOK, resp)
}
