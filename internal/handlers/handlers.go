package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"videowall/internal/registry"
	"videowall/internal/websocket"
	"videowall/pkg/api/bosun"
	"videowall/pkg/api/common"
	"videowall/pkg/auth"
	"videowall/pkg/logging"
	"videowall/pkg/middleware"
	"videowall/pkg/version"

	"github.com/gin-gonic/gin"
)

const serviceName = "bosun"

// Display timestamp format used by dashboards alongside the raw RFC3339
// last_seen field.
const lastSeenLayout = "2006-01-02 15:04:05"

// BosunHandlers contains the HTTP handlers for the coordinator service
type BosunHandlers struct {
	coordinator *registry.Coordinator
	hub         *websocket.Hub
	streamHost  string
	logger      logging.Logger
	startTime   time.Time
}

// NewBosunHandlers creates a new handlers instance. streamHost is the
// address advertised to display clients in SRT stream URLs.
func NewBosunHandlers(coordinator *registry.Coordinator, hub *websocket.Hub, streamHost string, logger logging.Logger) *BosunHandlers {
	return &BosunHandlers{
		coordinator: coordinator,
		hub:         hub,
		streamHost:  streamHost,
		logger:      logger,
		startTime:   time.Now(),
	}
}

// RegisterRoutes attaches all bosun routes. Display boxes register and
// poll without credentials; admin mutations require the service token when
// one is configured.
func (h *BosunHandlers) RegisterRoutes(router *gin.Engine, serviceToken string) {
	// Display client self-service
	router.POST("/clients", h.RegisterClient)
	router.POST("/clients/:id/heartbeat", h.Heartbeat)
	router.GET("/clients/:id/assignment", h.GetAssignment)

	// Read-only views
	router.GET("/clients", h.ListClients)
	router.GET("/clients/:id", h.GetClient)
	router.GET("/groups", h.ListGroups)
	router.GET("/groups/:id", h.GetGroup)
	router.GET("/groups/:id/layout", h.GetGroupLayout)
	router.GET("/status", h.GetStatus)
	router.GET("/ws", h.HandleWebSocket)

	admin := router.Group("/")
	if serviceToken != "" {
		admin.Use(auth.ServiceAuthMiddleware(serviceToken))
	}
	admin.DELETE("/clients/:id", h.RemoveClient)
	admin.POST("/clients/:id/group", h.AssignGroup)
	admin.POST("/clients/:id/stream", h.AssignStream)
	admin.POST("/clients/:id/video", h.AssignVideo)
	admin.POST("/groups", h.CreateGroup)
	admin.PUT("/groups/:id", h.UpdateGroup)
	admin.DELETE("/groups/:id", h.DeleteGroup)
	admin.POST("/groups/:id/stream/start", h.StartStream)
	admin.POST("/groups/:id/stream/stop", h.StopStream)
}

// HandleWebSocket serves the admin event feed
func (h *BosunHandlers) HandleWebSocket(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

// GetStatus reports registry headcounts and hub connectivity
func (h *BosunHandlers) GetStatus(c *gin.Context) {
	summary := h.coordinator.Status()

	resp := bosun.StatusResponse{
		Service:         serviceName,
		Version:         version.Version,
		Clients:         summary.TotalClients,
		Groups:          summary.TotalGroups,
		ActiveClients:   summary.ClientsByStatus[registry.ClientActive],
		ActiveGroups:    summary.GroupsByStatus[registry.GroupActive],
		ClientsByStatus: make(map[string]int, len(summary.ClientsByStatus)),
		GroupsByStatus:  make(map[string]int, len(summary.GroupsByStatus)),
	}
	for status, n := range summary.ClientsByStatus {
		resp.ClientsByStatus[string(status)] = n
	}
	for status, n := range summary.GroupsByStatus {
		resp.GroupsByStatus[string(status)] = n
	}
	if h.hub != nil {
		resp.WebSocket = h.hub.GetStats()
	}

	c.JSON(http.StatusOK, resp)
}

// respondError maps registry sentinels onto HTTP statuses. Anything not in
// the taxonomy is a 500.
func (h *BosunHandlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, registry.ErrClientNotFound), errors.Is(err, registry.ErrGroupNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, registry.ErrDuplicateName):
		status, code = http.StatusConflict, "duplicate_name"
	case errors.Is(err, registry.ErrGroupActive):
		status, code = http.StatusConflict, "group_active"
	case errors.Is(err, registry.ErrCapacityExceeded):
		status, code = http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, registry.ErrStreamNotAvailable):
		status, code = http.StatusConflict, "stream_not_available"
	case errors.Is(err, registry.ErrInvalidGrid):
		status, code = http.StatusBadRequest, "invalid_grid"
	}

	if status == http.StatusInternalServerError {
		middleware.GetContextLogger(c, h.logger).WithError(err).Error("Unhandled registry error")
	}
	c.JSON(status, common.ErrorResponse{Error: err.Error(), Code: code, Service: serviceName})
}

func (h *BosunHandlers) badRequest(c *gin.Context, code string, err error) {
	middleware.GetContextLogger(c, h.logger).WithError(err).Warn("Rejected request payload")
	c.JSON(http.StatusBadRequest, common.ErrorResponse{Error: err.Error(), Code: code, Service: serviceName})
}

func (h *BosunHandlers) streamURL(srtPort int, streamID string) string {
	if h.streamHost == "" || streamID == "" {
		return ""
	}
	return fmt.Sprintf("srt://%s:%d?streamid=%s", h.streamHost, srtPort, streamID)
}

func clientView(info registry.ClientInfo) bosun.ClientView {
	return bosun.ClientView{
		ClientID:          info.ID,
		Hostname:          info.Hostname,
		DisplayName:       info.DisplayName,
		IP:                info.IP,
		Platform:          info.Platform,
		Status:            string(info.Status),
		LastSeen:          info.LastSeen,
		LastSeenFormatted: info.LastSeen.Format(lastSeenLayout),
		GroupID:           info.GroupID,
		GroupName:         info.GroupName,
		StreamID:          info.StreamID,
		VideoFile:         info.VideoFile,
	}
}

func groupView(info registry.GroupInfo) bosun.GroupView {
	members := make([]bosun.GroupMemberView, 0, len(info.Members))
	for _, m := range info.Members {
		members = append(members, bosun.GroupMemberView{
			ClientID:   m.ClientID,
			StreamID:   m.StreamID,
			AssignedAt: m.AssignedAt,
		})
	}
	// Seating order, same as slot re-assignment on restart.
	sort.Slice(members, func(i, j int) bool {
		if !members[i].AssignedAt.Equal(members[j].AssignedAt) {
			return members[i].AssignedAt.Before(members[j].AssignedAt)
		}
		return members[i].ClientID < members[j].ClientID
	})

	return bosun.GroupView{
		GroupID:          info.ID,
		Name:             info.Name,
		Description:      info.Description,
		ScreenCount:      info.ScreenCount,
		Orientation:      string(info.Orientation),
		GridRows:         info.GridRows,
		GridCols:         info.GridCols,
		Status:           string(info.Status),
		BasePort:         info.BasePort,
		SRTPort:          info.SRTPort,
		FrameWidth:       info.FrameWidth,
		FrameHeight:      info.FrameHeight,
		VideoFile:        info.VideoFile,
		ActiveClients:    info.ActiveClients,
		AvailableStreams: info.AvailableStreams,
		Members:          members,
		CreatedAt:        info.CreatedAt,
		UpdatedAt:        info.UpdatedAt,
	}
}

func viewportView(v registry.Viewport) bosun.ViewportView {
	return bosun.ViewportView{
		Index:    v.Index,
		X:        v.X,
		Y:        v.Y,
		Width:    v.Width,
		Height:   v.Height,
		StreamID: v.StreamID,
		Position: v.Position,
	}
}
