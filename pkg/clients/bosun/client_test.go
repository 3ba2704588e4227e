package bosun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"videowall/pkg/api/bosun"
	"videowall/pkg/clients"
)

// newTestClient creates a client without an executor so tests use the direct
// client.Do path. This avoids retry policies wrapping errors as ExceededError.
func newTestClient(baseURL, token string) *Client {
	return &Client{
		baseURL:      baseURL,
		serviceToken: token,
		httpClient:   &http.Client{},
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://localhost:18090", ServiceToken: "secret"})
	if c.baseURL != "http://localhost:18090" {
		t.Fatalf("expected baseURL http://localhost:18090, got %s", c.baseURL)
	}
	if c.serviceToken != "secret" {
		t.Fatalf("expected service token secret, got %s", c.serviceToken)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil HTTP client")
	}
	if c.httpClient.Timeout != 30*time.Second {
		t.Fatalf("expected timeout 30s, got %v", c.httpClient.Timeout)
	}
	if c.httpExecutor == nil {
		t.Fatal("expected non-nil httpExecutor")
	}
	if c.shouldRetry == nil {
		t.Fatal("expected non-nil shouldRetry")
	}
}

func TestRegisterSuccess(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotContentType string
	var gotBody bosun.RegisterClientRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")

		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprint(w, `{"client_id":"c-1","group_id":"g-1","stream_id":"live/g-1/test","action":"registered"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "secret")
	resp, err := c.Register(context.Background(), &bosun.RegisterClientRequest{
		Hostname: "pi-lobby-01",
		Platform: "linux/arm64",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotMethod != "POST" {
		t.Fatalf("expected POST, got %s", gotMethod)
	}
	if gotPath != "/clients" {
		t.Fatalf("expected /clients, got %s", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer token header, got %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Fatalf("expected json content type, got %q", gotContentType)
	}
	if gotBody.Hostname != "pi-lobby-01" {
		t.Fatalf("expected hostname pi-lobby-01, got %s", gotBody.Hostname)
	}
	if resp.ClientID != "c-1" {
		t.Fatalf("expected client c-1, got %s", resp.ClientID)
	}
	if resp.StreamID != "live/g-1/test" {
		t.Fatalf("expected stream live/g-1/test, got %s", resp.StreamID)
	}
	if resp.Action != "registered" {
		t.Fatalf("expected action registered, got %s", resp.Action)
	}
}

func TestRegisterWithoutTokenOmitsAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"client_id":"c-1","action":"registered"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	if _, err := c.Register(context.Background(), &bosun.RegisterClientRequest{Hostname: "pi-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("expected no auth header, got %q", gotAuth)
	}
}

func TestHeartbeatNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprint(w, `{"error":"unknown client, re-register","code":"not_found","service":"bosun"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	err := c.Heartbeat(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", apiErr.StatusCode)
	}
	if apiErr.Code != "not_found" {
		t.Fatalf("expected code not_found, got %s", apiErr.Code)
	}
	if !strings.Contains(apiErr.Error(), "unknown client") {
		t.Fatalf("expected message in error string, got %q", apiErr.Error())
	}
}

func TestListClientsGroupFilter(t *testing.T) {
	var gotFilter string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFilter = r.URL.Query().Get("group_id")
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"clients":[{"client_id":"c-1","hostname":"pi-1","status":"active"},{"client_id":"c-2","hostname":"pi-2","status":"inactive"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	clientList, err := c.ListClients(context.Background(), "g-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotFilter != "g-1" {
		t.Fatalf("expected group_id filter g-1, got %q", gotFilter)
	}
	if len(clientList) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(clientList))
	}
	if clientList[0].ClientID != "c-1" || clientList[1].Status != "inactive" {
		t.Fatalf("unexpected clients: %+v", clientList)
	}
}

func TestListActiveClientsQuery(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"clients":[{"client_id":"c-1","hostname":"pi-1","status":"active"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	clientList, err := c.ListActiveClients(context.Background(), "g-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery.Get("active") != "true" || gotQuery.Get("group_id") != "g-1" {
		t.Fatalf("unexpected query %v", gotQuery)
	}
	if len(clientList) != 1 || clientList[0].ClientID != "c-1" {
		t.Fatalf("unexpected clients: %+v", clientList)
	}
}

func TestAssignGroupDetachSendsNull(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"client_id":"c-1","hostname":"pi-1","status":"active"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "secret")
	view, err := c.AssignGroup(context.Background(), "c-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/clients/c-1/group" {
		t.Fatalf("expected /clients/c-1/group, got %s", gotPath)
	}
	if !strings.Contains(gotBody, `"group_id":null`) {
		t.Fatalf("expected explicit null group_id, got %s", gotBody)
	}
	if view.ClientID != "c-1" {
		t.Fatalf("expected client c-1, got %s", view.ClientID)
	}
}

func TestCreateGroupConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = fmt.Fprint(w, `{"error":"group name already in use","code":"duplicate_name","service":"bosun"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "secret")
	_, err := c.CreateGroup(context.Background(), &bosun.CreateGroupRequest{
		Name:        "Lobby",
		ScreenCount: 2,
		Orientation: "horizontal",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", apiErr.StatusCode)
	}
	if apiErr.Code != "duplicate_name" {
		t.Fatalf("expected code duplicate_name, got %s", apiErr.Code)
	}
}

func TestGetLayoutDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/groups/g-1/layout" {
			t.Errorf("expected /groups/g-1/layout, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{
			"group_id": "g-1",
			"group_name": "Lobby",
			"frame_width": 1920,
			"frame_height": 1080,
			"orientation": "horizontal",
			"full_frame": {"index": 0, "x": 0, "y": 0, "width": 1920, "height": 1080, "stream_id": "live/g-1/test", "position": "Full Frame"},
			"viewports": [
				{"index": 0, "x": 0, "y": 0, "width": 960, "height": 1080, "stream_id": "live/g-1/test0", "position": "Column 1"},
				{"index": 1, "x": 960, "y": 0, "width": 960, "height": 1080, "stream_id": "live/g-1/test1", "position": "Column 2"}
			]
		}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	layout, err := c.GetLayout(context.Background(), "g-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if layout.GroupName != "Lobby" {
		t.Fatalf("expected group Lobby, got %s", layout.GroupName)
	}
	if layout.FullFrame == nil || layout.FullFrame.Width != 1920 {
		t.Fatalf("expected 1920-wide full frame, got %+v", layout.FullFrame)
	}
	if len(layout.Viewports) != 2 {
		t.Fatalf("expected 2 viewports, got %d", len(layout.Viewports))
	}
	if layout.Viewports[1].X != 960 || layout.Viewports[1].StreamID != "live/g-1/test1" {
		t.Fatalf("unexpected second viewport: %+v", layout.Viewports[1])
	}
}

func TestStatusDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{
			"service": "bosun",
			"version": "1.2.3",
			"clients": 4,
			"active_clients": 3,
			"groups": 2,
			"active_groups": 1,
			"clients_by_status": {"active": 3, "inactive": 1},
			"groups_by_status": {"active": 1, "idle": 1}
		}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Service != "bosun" {
		t.Fatalf("expected service bosun, got %s", status.Service)
	}
	if status.Clients != 4 || status.ActiveClients != 3 {
		t.Fatalf("unexpected client totals: %+v", status)
	}
	if status.ClientsByStatus["inactive"] != 1 {
		t.Fatalf("expected 1 inactive client, got %d", status.ClientsByStatus["inactive"])
	}
}

func TestDeleteGroupDiscardsBody(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"success":true,"message":"group deleted"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "secret")
	if err := c.DeleteGroup(context.Background(), "g-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != "DELETE" {
		t.Fatalf("expected DELETE, got %s", gotMethod)
	}
}

func TestStartStreamSendsOverrides(t *testing.T) {
	var gotBody bosun.StartStreamRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"group_id":"g-1","name":"Lobby","status":"active","screen_count":2,"orientation":"horizontal","base_port":10000,"srt_port":10080,"available_streams":["live/g-1/test"],"members":[]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "secret")
	group, err := c.StartStream(context.Background(), "g-1", &bosun.StartStreamRequest{FrameWidth: 3840, FrameHeight: 2160})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody.FrameWidth != 3840 || gotBody.FrameHeight != 2160 {
		t.Fatalf("expected 3840x2160 overrides, got %+v", gotBody)
	}
	if group.Status != "active" {
		t.Fatalf("expected active group, got %s", group.Status)
	}
	if group.SRTPort != 10080 {
		t.Fatalf("expected srt port 10080, got %d", group.SRTPort)
	}
}

func TestDecodeErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `not-json`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	_, err := c.Status(context.Background())
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Heartbeat(ctx, "c-1"); err == nil {
		t.Fatal("expected error from canceled context")
	}
}

func TestExecutorRetriesServerErrors(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"service":"bosun","version":"dev","clients":0,"active_clients":0,"groups":0,"active_groups":0,"clients_by_status":{},"groups_by_status":{}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL: srv.URL,
		ExecutorConfig: &clients.HTTPExecutorConfig{
			MaxRetries: 2,
			BaseDelay:  time.Millisecond,
			MaxDelay:   5 * time.Millisecond,
		},
	})
	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Service != "bosun" {
		t.Fatalf("expected service bosun, got %s", status.Service)
	}
	if hits != 2 {
		t.Fatalf("expected one retry after 502, got %d hits", hits)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	withMsg := &APIError{StatusCode: 409, Code: "group_active", Message: "stop the stream first"}
	if withMsg.Error() != "bosun returned status 409: stop the stream first" {
		t.Fatalf("unexpected error string: %q", withMsg.Error())
	}
	bare := &APIError{StatusCode: 500}
	if bare.Error() != "bosun returned status 500" {
		t.Fatalf("unexpected error string: %q", bare.Error())
	}
}
