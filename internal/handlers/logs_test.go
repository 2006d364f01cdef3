package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"conductbridge"
	"conductbridge/internal/service"
)

func TestLogsHandler_ListAndValidation(t *testing.T) {
	auth := &mockAuth{parseID: 99}
	now := time.Now().UTC().Truncate(time.Second)
	events := []conductbridge.BridgeEvent{
		{EventID: "e1", OccurredAt: now, Type: conductbridge.EventDefinitionsChanged, Description: "device topology changed"},
		{EventID: "e2", OccurredAt: now.Add(1 * time.Second), Type: conductbridge.EventSalvoTriggered, Description: "salvo triggered"},
	}
	logs := &mockEventLog{resp: events}
	s := &service.Service{
		Authorization: auth,
		EventLog:      logs,
	}
	r := newTestRouter(s)

	// Invalid 'from' is a 400.
	if w := doRequest(r, http.MethodGet, "/api/v1/logs?from=notatime", "valid"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid 'from', got %d", w.Code)
	}

	// Invalid 'to' is a 400.
	if w := doRequest(r, http.MethodGet, "/api/v1/logs?to=also-bad", "valid"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid 'to', got %d", w.Code)
	}

	// from > to is a 400.
	q := "/api/v1/logs?from=" + now.Add(time.Hour).Format(time.RFC3339) + "&to=" + now.Format(time.RFC3339)
	if w := doRequest(r, http.MethodGet, q, "valid"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", w.Code)
	}

	// Valid range and type; lowercase type is normalized before the service call.
	q = "/api/v1/logs?from=" + now.Format(time.RFC3339) +
		"&to=" + now.Add(2*time.Second).Format(time.RFC3339) +
		"&type=salvo_triggered"
	w := doRequest(r, http.MethodGet, q, "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("logs status=%d, body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Count  int                         `json:"count"`
		Events []conductbridge.BridgeEvent `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Count != 2 || len(out.Events) != 2 {
		t.Fatalf("unexpected response: %+v", out)
	}
	if logs.lastType != conductbridge.EventSalvoTriggered {
		t.Fatalf("expected normalized type %q, got %q", conductbridge.EventSalvoTriggered, logs.lastType)
	}
	if !logs.lastFrom.Equal(now) {
		t.Fatalf("from not passed through: %v", logs.lastFrom)
	}
}

func TestLogsHandler_DateOnlyToIsEndOfDay(t *testing.T) {
	logs := &mockEventLog{}
	s := &service.Service{
		Authorization: &mockAuth{parseID: 1},
		EventLog:      logs,
	}
	r := newTestRouter(s)

	w := doRequest(r, http.MethodGet, "/api/v1/logs?from=2026-08-01&to=2026-08-02", "valid")
	if w.Code != http.StatusOK {
		t.Fatalf("logs status=%d, body=%s", w.Code, w.Body.String())
	}

	wantFrom := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !logs.lastFrom.Equal(wantFrom) {
		t.Fatalf("from=%v, want %v", logs.lastFrom, wantFrom)
	}
	// to covers the whole day, not just midnight.
	if logs.lastTo.Before(time.Date(2026, 8, 2, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("date-only 'to' should reach end of day, got %v", logs.lastTo)
	}
}

func TestParseQueryTime(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2026-08-29T10:30:00Z", want: time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)},
		{in: "2026-08-29 10:30:00", want: time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)},
		{in: "2026-08-29", want: time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)},
		{in: "29/08/2026", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseQueryTime(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("expected error for %q", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("parse %q = %v, want %v", tc.in, got, tc.want)
		}
	}
}
