package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"conductbridge"
	"conductbridge/internal/service"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockPoller struct {
	rooms       []conductbridge.Room
	panelSalvos map[string][]conductbridge.Salvo
	active      []string

	lastPanelID string
}

func (m *mockPoller) Run(ctx context.Context) {}
func (m *mockPoller) Rooms() []conductbridge.Room {
	return m.rooms
}
func (m *mockPoller) PanelSalvos(panelID string) ([]conductbridge.Salvo, bool) {
	m.lastPanelID = panelID
	s, ok := m.panelSalvos[panelID]
	return s, ok
}
func (m *mockPoller) ActiveSalvoIDs() []string {
	return m.active
}
func (m *mockPoller) IsSalvoActive(salvoID string) bool {
	for _, id := range m.active {
		if id == salvoID {
			return true
		}
	}
	return false
}

type mockSalvos struct {
	triggerErr  error
	triggerLast string
	triggers    int
}

func (m *mockSalvos) Trigger(ctx context.Context, salvoID string) error {
	m.triggers++
	m.triggerLast = salvoID
	return m.triggerErr
}

type mockStatus struct {
	status conductbridge.DeviceStatus
}

func (m *mockStatus) Current() conductbridge.DeviceStatus {
	return m.status
}

type mockEventLog struct {
	resp     []conductbridge.BridgeEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]conductbridge.BridgeEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, NewHub(nil), nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
