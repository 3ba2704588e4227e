package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"videowall/internal/registry"
	"videowall/internal/websocket"
	"videowall/pkg/api/bosun"
	"videowall/pkg/logging"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.NewLoggerWithService("test")
	co := registry.NewCoordinator(registry.CoordinatorConfig{Logger: logger})
	hub := websocket.NewHub(logger, nil)
	go hub.Run()

	router := gin.New()
	NewBosunHandlers(co, hub, "wall.local", logger).RegisterRoutes(router, "")
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func createGroup(t *testing.T, router *gin.Engine, req bosun.CreateGroupRequest) bosun.GroupView {
	t.Helper()
	w := doJSON(t, router, "POST", "/groups", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create group: expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var view bosun.GroupView
	decode(t, w, &view)
	return view
}

func startStream(t *testing.T, router *gin.Engine, groupID string) bosun.GroupView {
	t.Helper()
	w := doJSON(t, router, "POST", "/groups/"+groupID+"/stream/start", bosun.StartStreamRequest{FrameWidth: 1920, FrameHeight: 1080})
	if w.Code != http.StatusOK {
		t.Fatalf("start stream: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var view bosun.GroupView
	decode(t, w, &view)
	return view
}

func registerClient(t *testing.T, router *gin.Engine, hostname string) bosun.RegisterClientResponse {
	t.Helper()
	w := doJSON(t, router, "POST", "/clients", bosun.RegisterClientRequest{Hostname: hostname})
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		t.Fatalf("register %s: unexpected status %d (%s)", hostname, w.Code, w.Body.String())
	}
	var resp bosun.RegisterClientResponse
	decode(t, w, &resp)
	return resp
}

func TestRegisterAndAssignmentFlow(t *testing.T) {
	router := newTestRouter(t)

	group := createGroup(t, router, bosun.CreateGroupRequest{
		Name:        "Lobby",
		Orientation: "grid",
		GridRows:    2,
		GridCols:    2,
	})
	if group.ScreenCount != 4 || group.SRTPort != 10080 {
		t.Fatalf("unexpected group: %+v", group)
	}
	startStream(t, router, group.GroupID)

	first := registerClient(t, router, "Lobby-Pi-01")
	if first.ClientID != "lobby-pi-01" || first.Action != "registered" {
		t.Fatalf("unexpected registration: %+v", first)
	}
	if first.GroupID != group.GroupID {
		t.Errorf("first-fit did not seat the client: %+v", first)
	}
	fullStream := fmt.Sprintf("live/%s/test", group.GroupID)
	if first.StreamID != fullStream {
		t.Errorf("expected full-frame stream %q, got %q", fullStream, first.StreamID)
	}

	// Re-registration is idempotent.
	again := registerClient(t, router, "Lobby-Pi-01")
	if again.Action != "updated" || again.StreamID != first.StreamID {
		t.Errorf("re-registration changed the assignment: %+v", again)
	}

	second := registerClient(t, router, "Lobby-Pi-02")
	if second.StreamID != fullStream+"0" {
		t.Errorf("expected slot test0 for second client, got %q", second.StreamID)
	}

	w := doJSON(t, router, "GET", "/clients/"+first.ClientID+"/assignment", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("assignment: expected 200, got %d", w.Code)
	}
	var assignment bosun.AssignmentView
	decode(t, w, &assignment)
	if assignment.GroupName != "Lobby" || assignment.SRTPort != 10080 {
		t.Errorf("unexpected assignment: %+v", assignment)
	}
	wantURL := fmt.Sprintf("srt://wall.local:10080?streamid=%s", fullStream)
	if assignment.StreamURL != wantURL {
		t.Errorf("stream URL = %q, want %q", assignment.StreamURL, wantURL)
	}
	if assignment.Viewport == nil {
		t.Fatal("expected a viewport for a streaming group")
	}
	if assignment.Viewport.Width != 1920 || assignment.Viewport.Height != 1080 {
		t.Errorf("full-frame viewport should span the frame: %+v", assignment.Viewport)
	}
}

func TestCreateGroupValidation(t *testing.T) {
	router := newTestRouter(t)

	// Name is required.
	w := doJSON(t, router, "POST", "/groups", bosun.CreateGroupRequest{Orientation: "horizontal"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing name: expected 400, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/groups", bosun.CreateGroupRequest{Name: "Wall", Orientation: "diagonal"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad orientation: expected 400, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/groups", bosun.CreateGroupRequest{Name: "Wall", Orientation: "grid", GridRows: 0, GridCols: 3})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid grid: expected 400, got %d (%s)", w.Code, w.Body.String())
	}
	var errResp map[string]interface{}
	decode(t, w, &errResp)
	if errResp["code"] != "invalid_grid" {
		t.Errorf("expected invalid_grid code, got %v", errResp["code"])
	}

	createGroup(t, router, bosun.CreateGroupRequest{Name: "Lobby", Orientation: "horizontal", ScreenCount: 2})
	w = doJSON(t, router, "POST", "/groups", bosun.CreateGroupRequest{Name: "LOBBY", Orientation: "vertical", ScreenCount: 3})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate name: expected 409, got %d", w.Code)
	}
	decode(t, w, &errResp)
	if errResp["code"] != "duplicate_name" {
		t.Errorf("expected duplicate_name code, got %v", errResp["code"])
	}
}

func TestGroupLifecycleEndpoints(t *testing.T) {
	router := newTestRouter(t)

	group := createGroup(t, router, bosun.CreateGroupRequest{
		Name:        "Stage",
		Orientation: "grid",
		GridRows:    2,
		GridCols:    2,
	})

	// Layout of a group that is not streaming is refused.
	w := doJSON(t, router, "GET", "/groups/"+group.GroupID+"/layout", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("layout while idle: expected 409, got %d", w.Code)
	}

	startStream(t, router, group.GroupID)

	w = doJSON(t, router, "GET", "/groups/"+group.GroupID+"/layout", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("layout: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var layout bosun.LayoutResponse
	decode(t, w, &layout)
	if len(layout.Viewports) != 4 {
		t.Errorf("expected 4 viewports, got %d", len(layout.Viewports))
	}
	if layout.FullFrame == nil || layout.FullFrame.Width != 1920 {
		t.Errorf("expected full frame viewport, got %+v", layout.FullFrame)
	}
	if layout.Viewports[3].X != 960 || layout.Viewports[3].Y != 540 {
		t.Errorf("unexpected last cell: %+v", layout.Viewports[3])
	}

	// Active groups cannot be deleted.
	w = doJSON(t, router, "DELETE", "/groups/"+group.GroupID, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("delete active: expected 409, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/groups/"+group.GroupID+"/stream/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", w.Code)
	}
	var stopped bosun.GroupView
	decode(t, w, &stopped)
	if stopped.Status != "inactive" {
		t.Errorf("expected inactive after stop, got %q", stopped.Status)
	}

	w = doJSON(t, router, "DELETE", "/groups/"+group.GroupID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete idle: expected 200, got %d", w.Code)
	}
	w = doJSON(t, router, "GET", "/groups/"+group.GroupID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("deleted group should 404, got %d", w.Code)
	}
}

func TestUpdateGroupEndpoint(t *testing.T) {
	router := newTestRouter(t)
	group := createGroup(t, router, bosun.CreateGroupRequest{Name: "Side Wall", Orientation: "horizontal", ScreenCount: 3})

	name := "Side Wall East"
	rows, cols := 2, 3
	orientation := "grid"
	w := doJSON(t, router, "PUT", "/groups/"+group.GroupID, bosun.UpdateGroupRequest{
		Name:        &name,
		Orientation: &orientation,
		GridRows:    &rows,
		GridCols:    &cols,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var updated bosun.GroupView
	decode(t, w, &updated)
	if updated.Name != name || updated.ScreenCount != 6 {
		t.Errorf("grid update should force screen_count to rows*cols: %+v", updated)
	}

	badStatus := "exploded"
	w = doJSON(t, router, "PUT", "/groups/"+group.GroupID, bosun.UpdateGroupRequest{Status: &badStatus})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad status: expected 400, got %d", w.Code)
	}
}

func TestClientAdminEndpoints(t *testing.T) {
	router := newTestRouter(t)

	a := createGroup(t, router, bosun.CreateGroupRequest{Name: "North", Orientation: "horizontal", ScreenCount: 2})
	b := createGroup(t, router, bosun.CreateGroupRequest{Name: "South", Orientation: "horizontal", ScreenCount: 2})
	startStream(t, router, a.GroupID)

	box := registerClient(t, router, "roamer")
	if box.GroupID != a.GroupID {
		t.Fatalf("expected first-fit into North, got %+v", box)
	}

	// Explicit reassignment works even though South is not streaming.
	w := doJSON(t, router, "POST", "/clients/roamer/group", bosun.AssignGroupRequest{GroupID: &b.GroupID})
	if w.Code != http.StatusOK {
		t.Fatalf("assign group: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var view bosun.ClientView
	decode(t, w, &view)
	if view.GroupID != b.GroupID || view.GroupName != "South" {
		t.Errorf("unexpected view after reassignment: %+v", view)
	}

	w = doJSON(t, router, "POST", "/clients/roamer/video", bosun.AssignVideoRequest{VideoFile: "loop.mp4"})
	if w.Code != http.StatusOK {
		t.Fatalf("assign video: expected 200, got %d", w.Code)
	}
	decode(t, w, &view)
	if view.VideoFile != "loop.mp4" {
		t.Errorf("video file not applied: %+v", view)
	}

	// Unassign via null group_id.
	w = doJSON(t, router, "POST", "/clients/roamer/group", bosun.AssignGroupRequest{GroupID: nil})
	if w.Code != http.StatusOK {
		t.Fatalf("unassign: expected 200, got %d", w.Code)
	}
	view = bosun.ClientView{}
	decode(t, w, &view)
	if view.GroupID != "" || view.StreamID != "" {
		t.Errorf("expected unassigned client, got %+v", view)
	}

	// No group means no stream to pin.
	w = doJSON(t, router, "POST", "/clients/roamer/stream", bosun.AssignStreamRequest{StreamID: "live/x/test0"})
	if w.Code != http.StatusConflict {
		t.Errorf("stream without group: expected 409, got %d", w.Code)
	}

	w = doJSON(t, router, "DELETE", "/clients/roamer", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove: expected 200, got %d", w.Code)
	}
	w = doJSON(t, router, "GET", "/clients/roamer", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("removed client should 404, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/clients/ghost/heartbeat", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("heartbeat for unknown client should 404, got %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	router := newTestRouter(t)
	group := createGroup(t, router, bosun.CreateGroupRequest{Name: "Atrium", Orientation: "vertical", ScreenCount: 2})
	startStream(t, router, group.GroupID)
	registerClient(t, router, "atrium-box")

	w := doJSON(t, router, "GET", "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", w.Code)
	}
	var status bosun.StatusResponse
	decode(t, w, &status)
	if status.Service != "bosun" {
		t.Errorf("unexpected service name %q", status.Service)
	}
	if status.Clients != 1 || status.ActiveClients != 1 {
		t.Errorf("unexpected client counts: %+v", status)
	}
	if status.Groups != 1 || status.ActiveGroups != 1 {
		t.Errorf("unexpected group counts: %+v", status)
	}
	if status.ClientsByStatus["active"] != 1 || status.GroupsByStatus["active"] != 1 {
		t.Errorf("unexpected breakdowns: %+v", status)
	}
}

func TestListClientsActiveFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logging.NewLoggerWithService("test")
	co := registry.NewCoordinator(registry.CoordinatorConfig{Logger: logger})
	hub := websocket.NewHub(logger, nil)
	go hub.Run()

	now := time.Now()
	co.Rehydrate(registry.State{Clients: []registry.Client{
		{ID: "fresh-box", Hostname: "fresh-box", LastSeen: now, RegisteredAt: now.Add(-time.Hour)},
		{ID: "idle-box", Hostname: "idle-box", LastSeen: now.Add(-10 * time.Minute), RegisteredAt: now.Add(-time.Hour)},
	}})

	router := gin.New()
	NewBosunHandlers(co, hub, "wall.local", logger).RegisterRoutes(router, "")

	var list struct {
		Clients []bosun.ClientView `json:"clients"`
	}
	w := doJSON(t, router, "GET", "/clients", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	decode(t, w, &list)
	if len(list.Clients) != 2 {
		t.Fatalf("expected both clients, got %+v", list.Clients)
	}

	w = doJSON(t, router, "GET", "/clients?active=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("active list: expected 200, got %d", w.Code)
	}
	list.Clients = nil
	decode(t, w, &list)
	if len(list.Clients) != 1 || list.Clients[0].ClientID != "fresh-box" {
		t.Errorf("active filter should keep only the live box, got %+v", list.Clients)
	}
}

func TestServiceTokenGuardsAdminRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logging.NewLoggerWithService("test")
	co := registry.NewCoordinator(registry.CoordinatorConfig{Logger: logger})
	hub := websocket.NewHub(logger, nil)
	go hub.Run()

	router := gin.New()
	NewBosunHandlers(co, hub, "", logger).RegisterRoutes(router, "hunter2")

	// Admin mutation without a token is refused.
	w := doJSON(t, router, "POST", "/groups", bosun.CreateGroupRequest{Name: "Locked", Orientation: "horizontal", ScreenCount: 2})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	// Display boxes register and read without credentials.
	if resp := registerClient(t, router, "open-box"); resp.ClientID != "open-box" {
		t.Fatalf("unexpected open registration: %+v", resp)
	}
	if w := doJSON(t, router, "GET", "/groups", nil); w.Code != http.StatusOK {
		t.Fatalf("reads should be open, got %d", w.Code)
	}

	payload, _ := json.Marshal(bosun.CreateGroupRequest{Name: "Locked", Orientation: "horizontal", ScreenCount: 2})
	req, _ := http.NewRequestWithContext(context.Background(), "POST", "/groups", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer hunter2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with token, got %d (%s)", rec.Code, rec.Body.String())
	}
}
