package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/llmhub/termmux/internal/channel"
	"github.com/llmhub/termmux/internal/fanout"
	"github.com/llmhub/termmux/internal/mux"
	"github.com/llmhub/termmux/internal/session"
)

type fakeChannel struct {
	mu      sync.Mutex
	inputs  []string
	resizes [][2]uint16
	ep      *channel.Endpoint
	onEvent channel.EventHandler
}

func (c *fakeChannel) SendInput(data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs = append(c.inputs, data)
	return nil
}

func (c *fakeChannel) Resize(cols, rows uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resizes = append(c.resizes, [2]uint16{cols, rows})
}

func (c *fakeChannel) Start()                      {}
func (c *fakeChannel) Close()                      {}
func (c *fakeChannel) Endpoint() *channel.Endpoint { return c.ep }

func (c *fakeChannel) sentInputs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.inputs...)
}

func (c *fakeChannel) lastResize() ([2]uint16, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.resizes) == 0 {
		return [2]uint16{}, false
	}
	return c.resizes[len(c.resizes)-1], true
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []*fakeChannel
}

func (o *fakeOpener) Open(ctx context.Context, contextKey, backendKey string, cols, rows uint16, onEvent channel.EventHandler) (session.Channel, error) {
	ch := &fakeChannel{
		ep:      &channel.Endpoint{ServerKey: backendKey, ServerName: "vps-1", Host: "10.0.0.5"},
		onEvent: onEvent,
	}
	o.mu.Lock()
	o.opened = append(o.opened, ch)
	o.mu.Unlock()
	return ch, nil
}

func (o *fakeOpener) channel(i int) *fakeChannel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened[i]
}

func setupAPI(t *testing.T) (*httptest.Server, *fakeOpener) {
	t.Helper()
	opener := &fakeOpener{}
	b := fanout.NewBroadcaster()
	m := session.NewManager(opener, b, 0)
	Mux = mux.NewController(m, 0, 0)
	Sessions = m
	StatusFanout = b

	srv := httptest.NewServer(Router())
	t.Cleanup(srv.Close)
	return srv, opener
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func createTerminal(t *testing.T, srv *httptest.Server, contextKey, serverKey string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/terminals",
		map[string]string{"context_key": contextKey, "server_key": serverKey})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create terminal: status %d", resp.StatusCode)
	}
	return body["id"].(string)
}

func TestHealthCheck(t *testing.T) {
	srv, _ := setupAPI(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", resp.StatusCode, body)
	}
}

func TestCreateAndListTerminals(t *testing.T) {
	srv, _ := setupAPI(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/terminals",
		map[string]string{"context_key": "proj-1", "server_key": "host-A"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	if body["name"] != "bash" || body["status"] != "connecting" {
		t.Errorf("created terminal = %v", body)
	}
	if body["pane_width"].(float64) != mux.DefaultPaneWidth {
		t.Errorf("pane_width = %v", body["pane_width"])
	}

	resp, list := doJSON(t, http.MethodGet, srv.URL+"/api/v1/terminals", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	sessions := list["sessions"].([]interface{})
	if len(sessions) != 1 {
		t.Fatalf("listed %d sessions", len(sessions))
	}
	if list["active_session_id"] != body["id"] {
		t.Error("new terminal not focused")
	}
}

func TestCreateBeyondCapIsConflict(t *testing.T) {
	srv, _ := setupAPI(t)
	for i := 0; i < mux.MaxSessions; i++ {
		createTerminal(t, srv, "", "")
	}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/terminals", map[string]string{})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("7th create status = %d, want 409", resp.StatusCode)
	}
	if body["detail"] == "" {
		t.Error("missing user-visible reason")
	}
}

func TestDeleteGuards(t *testing.T) {
	srv, _ := setupAPI(t)
	only := createTerminal(t, srv, "", "")

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/terminals/"+only, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("delete last status = %d, want 409", resp.StatusCode)
	}

	second := createTerminal(t, srv, "", "")
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/terminals/no-such-id", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete unknown status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/terminals/"+second, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}
}

func TestReuseFocusesExisting(t *testing.T) {
	srv, _ := setupAPI(t)
	id := createTerminal(t, srv, "proj-1", "host-A")
	createTerminal(t, srv, "proj-2", "host-B")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/terminals/reuse",
		map[string]string{"context_key": "proj-1", "server_key": "host-A"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reuse status = %d, want 200", resp.StatusCode)
	}
	if body["created"] != false {
		t.Error("reuse reported a creation")
	}
	if body["terminal"].(map[string]interface{})["id"] != id {
		t.Error("reuse returned the wrong session")
	}
}

func TestRenameRecolorFocus(t *testing.T) {
	srv, _ := setupAPI(t)
	a := createTerminal(t, srv, "", "")
	b := createTerminal(t, srv, "", "")

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/api/v1/terminals/"+a+"/name",
		map[string]string{"name": "build"})
	if resp.StatusCode != http.StatusOK || body["name"] != "build" {
		t.Errorf("rename = %d %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/terminals/"+a+"/name",
		map[string]string{"name": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty rename status = %d, want 400", resp.StatusCode)
	}

	idx := 2
	resp, body = doJSON(t, http.MethodPut, srv.URL+"/api/v1/terminals/"+b+"/color",
		map[string]interface{}{"palette_index": idx})
	if resp.StatusCode != http.StatusOK || body["color"] != mux.PaletteColor(idx) {
		t.Errorf("recolor = %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/terminals/"+a+"/focus", nil)
	if resp.StatusCode != http.StatusOK || body["active_session_id"] != a {
		t.Errorf("focus = %d %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/terminals/no-such-id/name",
		map[string]string{"name": "ghost"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("rename unknown status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/terminals/no-such-id/color",
		map[string]interface{}{"palette_index": 0})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("recolor unknown status = %d, want 404", resp.StatusCode)
	}
}

func TestDividerDragOverAPI(t *testing.T) {
	srv, _ := setupAPI(t)
	id := createTerminal(t, srv, "", "")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/terminals/"+id+"/divider",
		map[string]interface{}{"phase": "start", "x": 1000})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("drag start status = %d", resp.StatusCode)
	}

	_, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/terminals/"+id+"/divider",
		map[string]interface{}{"phase": "move", "x": 2000})
	if body["pane_width"].(float64) != mux.MaxPaneWidth {
		t.Errorf("pane_width = %v, want clamp %d", body["pane_width"], mux.MaxPaneWidth)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/terminals/"+id+"/divider",
		map[string]interface{}{"phase": "wiggle", "x": 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad phase status = %d, want 400", resp.StatusCode)
	}
}

func TestViewportSwitch(t *testing.T) {
	srv, _ := setupAPI(t)

	_, body := doJSON(t, http.MethodPut, srv.URL+"/api/v1/layout/viewport",
		map[string]int{"width": 500})
	if body["is_narrow_viewport"] != true {
		t.Errorf("500px viewport = %v, want narrow", body)
	}

	_, body = doJSON(t, http.MethodPut, srv.URL+"/api/v1/layout/viewport",
		map[string]int{"width": 1280})
	if body["is_narrow_viewport"] != false {
		t.Errorf("1280px viewport = %v, want desktop", body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := setupAPI(t)
	createTerminal(t, srv, "proj-1", "host-A")
	createTerminal(t, srv, "proj-2", "host-B")
	StatusFanout.Broadcast("host-A", fanout.StatusError, "host unreachable")

	_, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/terminals/status", nil)
	if body["active_sessions"].(float64) != 2 {
		t.Errorf("active_sessions = %v", body["active_sessions"])
	}
	backends := body["backends"].(map[string]interface{})
	hostA := backends["host-A"].(map[string]interface{})
	if hostA["status"] != "error" || !strings.Contains(hostA["message"].(string), "unreachable") {
		t.Errorf("host-A status = %v", hostA)
	}
}

func TestReconnectEndpointGuards(t *testing.T) {
	srv, opener := setupAPI(t)
	id := createTerminal(t, srv, "proj-1", "host-A")

	// Session is connecting; reconnect is invalid until it settles.
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/terminals/"+id+"/reconnect", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("reconnect while connecting = %d, want 409", resp.StatusCode)
	}

	opener.channel(0).onEvent(channel.Event{Type: channel.EventDisconnected})
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/terminals/"+id+"/reconnect", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reconnect = %d %v", resp.StatusCode, body)
	}
	if body["status"] != "connecting" {
		t.Errorf("status after reconnect = %v", body["status"])
	}
	if len(opener.opened) != 2 {
		t.Errorf("reconnect opened %d channels total, want 2", len(opener.opened))
	}
}

func TestListTerminalsOrderSurvivesFocusChanges(t *testing.T) {
	srv, _ := setupAPI(t)
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, createTerminal(t, srv, fmt.Sprintf("proj-%d", i), ""))
	}
	doJSON(t, http.MethodPost, srv.URL+"/api/v1/terminals/"+ids[0]+"/focus", nil)

	_, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/terminals", nil)
	sessions := body["sessions"].([]interface{})
	for i, raw := range sessions {
		if raw.(map[string]interface{})["id"] != ids[i] {
			t.Fatalf("render order changed at %d", i)
		}
	}
}
