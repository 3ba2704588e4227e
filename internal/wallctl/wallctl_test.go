package wallctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"videowall/pkg/api/bosun"
	bosunclient "videowall/pkg/clients/bosun"
)

func TestValidateOrientation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		input       string
		expectError bool
	}{
		{name: "horizontal", input: "horizontal"},
		{name: "vertical", input: "vertical"},
		{name: "grid", input: "grid"},
		{name: "empty", input: "", expectError: true},
		{name: "unknown", input: "diagonal", expectError: true},
		{name: "wrong case", input: "Horizontal", expectError: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := validateOrientation(tc.input)
			if tc.expectError && err == nil {
				t.Fatalf("expected error for %q, got none", tc.input)
			}
			if !tc.expectError && err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.input, err)
			}
		})
	}
}

func newGroupListServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/groups" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"groups":[
			{"group_id":"g-1","name":"Lobby","status":"active","screen_count":3,"orientation":"horizontal","base_port":10000,"srt_port":10080,"active_clients":2,"available_streams":["live/g-1/test"],"members":[]},
			{"group_id":"g-2","name":"Atrium","status":"idle","screen_count":4,"orientation":"grid","grid_rows":2,"grid_cols":2,"base_port":10010,"srt_port":10090,"active_clients":0,"available_streams":[],"members":[]}
		]}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveGroup(t *testing.T) {
	srv := newGroupListServer(t)
	cli := bosunclient.NewClient(bosunclient.Config{BaseURL: srv.URL})

	byID, err := resolveGroup(context.Background(), cli, "g-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byID.Name != "Atrium" {
		t.Fatalf("expected Atrium, got %s", byID.Name)
	}

	byName, err := resolveGroup(context.Background(), cli, "lobby")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if byName.GroupID != "g-1" {
		t.Fatalf("expected g-1, got %s", byName.GroupID)
	}

	if _, err := resolveGroup(context.Background(), cli, "basement"); err == nil {
		t.Fatal("expected error for unknown group")
	}
}

func TestResolveClientByHostname(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"clients":[{"client_id":"c-1","hostname":"pi-lobby-01","status":"active"}]}`)
	}))
	defer srv.Close()

	cli := bosunclient.NewClient(bosunclient.Config{BaseURL: srv.URL})
	client, err := resolveClient(context.Background(), cli, "PI-LOBBY-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.ClientID != "c-1" {
		t.Fatalf("expected c-1, got %s", client.ClientID)
	}
}

func TestGroupsListCommand(t *testing.T) {
	srv := newGroupListServer(t)

	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"groups", "list", "--server", srv.URL})
	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "NAME") || !strings.Contains(out, "SRT PORT") {
		t.Fatalf("expected table header, got:\n%s", out)
	}
	if !strings.Contains(out, "Lobby") || !strings.Contains(out, "2/3") {
		t.Fatalf("expected Lobby row with occupancy, got:\n%s", out)
	}
	if !strings.Contains(out, "grid 2x2") {
		t.Fatalf("expected grid layout description, got:\n%s", out)
	}
}

func TestClientsAssignRequiresExactlyOneTarget(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"clients", "assign", "pi-1"})
	err := root.Execute()
	if err == nil {
		t.Fatal("expected error with no target flag")
	}
	if !strings.Contains(err.Error(), "exactly one of") {
		t.Fatalf("unexpected error: %v", err)
	}

	root = NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"clients", "assign", "pi-1", "--group", "lobby", "--detach"})
	err = root.Execute()
	if err == nil || !strings.Contains(err.Error(), "exactly one of") {
		t.Fatalf("expected exactly-one error with two targets, got: %v", err)
	}
}

func TestGroupsCreateValidation(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"groups", "create", "--orientation", "grid"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "--name is required") {
		t.Fatalf("expected missing-name error, got: %v", err)
	}

	root = NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"groups", "create", "--name", "atrium", "--orientation", "grid"})
	err = root.Execute()
	if err == nil || !strings.Contains(err.Error(), "--rows and --cols") {
		t.Fatalf("expected grid dimension error, got: %v", err)
	}
}

func TestStatusCommandJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"service":"bosun","version":"1.0.0","clients":2,"active_clients":1,"groups":1,"active_groups":1,"clients_by_status":{"active":1,"stale":1},"groups_by_status":{"active":1}}`)
	}))
	defer srv.Close()

	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"status", "--server", srv.URL, "--output", "json"})
	if err := root.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var st bosun.StatusResponse
	if err := json.Unmarshal(buf.Bytes(), &st); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if st.Service != "bosun" || st.Clients != 2 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestResolveTokenFallsBackToServiceToken(t *testing.T) {
	token = ""
	t.Setenv("WALLCTL_TOKEN", "")
	t.Setenv("SERVICE_TOKEN", "host-secret")
	if got := resolveToken(); got != "host-secret" {
		t.Fatalf("expected SERVICE_TOKEN fallback, got %q", got)
	}

	token = "flag-wins"
	defer func() { token = "" }()
	if got := resolveToken(); got != "flag-wins" {
		t.Fatalf("expected the flag to take precedence, got %q", got)
	}
}
