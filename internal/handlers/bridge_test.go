package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"conductbridge"
	"conductbridge/internal/conductip"
	"conductbridge/internal/service"
)

func doRequest(r http.Handler, method, target, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	for k, vv := range authHeader(token) {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}})

	w := doRequest(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status=%d, body=%s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != statusOK {
		t.Fatalf("expected status %q, got %q", statusOK, body["status"])
	}
}

func TestGetDeviceStatus(t *testing.T) {
	st := &mockStatus{status: conductbridge.DeviceStatus{
		State:   conductbridge.StateConnectionFailure,
		Message: "connection refused by device",
	}}
	s := &service.Service{Authorization: &mockAuth{parseID: 1}, Status: st}
	r := newTestRouter(s)

	// Requires auth.
	if w := doRequest(r, http.MethodGet, "/api/v1/device/status", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", w.Code)
	}

	w := doRequest(r, http.MethodGet, "/api/v1/device/status", "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	var got conductbridge.DeviceStatus
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.State != conductbridge.StateConnectionFailure || got.Message != "connection refused by device" {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestGetRooms(t *testing.T) {
	p := &mockPoller{rooms: []conductbridge.Room{
		{ID: "r1", Label: "Control A", Panels: []conductbridge.Panel{{ID: "p1"}}},
		{ID: "r2", Label: "Control B"},
	}}
	s := &service.Service{Authorization: &mockAuth{parseID: 1}, Poller: p}
	r := newTestRouter(s)

	w := doRequest(r, http.MethodGet, "/api/v1/rooms", "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Count int                  `json:"count"`
		Rooms []conductbridge.Room `json:"rooms"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || len(resp.Rooms) != 2 || resp.Rooms[0].ID != "r1" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestGetPanelSalvos(t *testing.T) {
	p := &mockPoller{panelSalvos: map[string][]conductbridge.Salvo{
		"p1": {{ID: "s1", Label: "Morning"}},
		"p2": {},
	}}
	s := &service.Service{Authorization: &mockAuth{parseID: 1}, Poller: p}
	r := newTestRouter(s)

	w := doRequest(r, http.MethodGet, "/api/v1/panels/p1/salvos", "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	if p.lastPanelID != "p1" {
		t.Fatalf("expected lookup for p1, got %q", p.lastPanelID)
	}
	var resp struct {
		Count  int                   `json:"count"`
		Salvos []conductbridge.Salvo `json:"salvos"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 || resp.Salvos[0].ID != "s1" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	// Known panel with no salvos is a 200 with an empty list, not a 404.
	if w := doRequest(r, http.MethodGet, "/api/v1/panels/p2/salvos", "valid"); w.Code != http.StatusOK {
		t.Fatalf("empty panel status=%d, body=%s", w.Code, w.Body.String())
	}

	// Unknown panel is a 404.
	if w := doRequest(r, http.MethodGet, "/api/v1/panels/nope/salvos", "valid"); w.Code != http.StatusNotFound {
		t.Fatalf("unknown panel status=%d, body=%s", w.Code, w.Body.String())
	}
}

func TestGetActiveSalvos(t *testing.T) {
	p := &mockPoller{active: []string{"s1", "s3"}}
	s := &service.Service{Authorization: &mockAuth{parseID: 1}, Poller: p}
	r := newTestRouter(s)

	w := doRequest(r, http.MethodGet, "/api/v1/salvos/active", "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Count    int      `json:"count"`
		SalvoIDs []string `json:"salvo_ids"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || len(resp.SalvoIDs) != 2 {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestTriggerSalvo(t *testing.T) {
	tests := []struct {
		name       string
		triggerErr error
		wantCode   int
	}{
		{name: "success", wantCode: http.StatusOK},
		{
			name:       "device unreachable",
			triggerErr: &conductip.Failure{Kind: conductip.KindConnectionFailure, Message: "connection refused by device"},
			wantCode:   http.StatusBadGateway,
		},
		{
			name:       "bridge unconfigured",
			triggerErr: &conductip.Failure{Kind: conductip.KindConfigurationIncomplete, Message: "device host is not configured"},
			wantCode:   http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			sv := &mockSalvos{triggerErr: tt.triggerErr}
			s := &service.Service{Authorization: &mockAuth{parseID: 1}, Salvos: sv}
			r := newTestRouter(s)

			w := doRequest(r, http.MethodPost, "/api/v1/salvos/s1/trigger", "valid")
			if w.Code != tt.wantCode {
				t.Fatalf("status=%d, want %d, body=%s", w.Code, tt.wantCode, w.Body.String())
			}
			if sv.triggers != 1 || sv.triggerLast != "s1" {
				t.Fatalf("trigger call mismatch: %d calls, last %q", sv.triggers, sv.triggerLast)
			}
			if tt.wantCode == http.StatusOK {
				var resp map[string]string
				_ = json.Unmarshal(w.Body.Bytes(), &resp)
				if resp["status"] != statusTriggered || resp["salvo_id"] != "s1" {
					t.Fatalf("unexpected body: %s", w.Body.String())
				}
			}
		})
	}
}
