package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	helix "github.com/nicklaw5/helix/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/flygOn-LiTe/widget-platform/internal/config"
	apperrors "github.com/flygOn-LiTe/widget-platform/internal/errors"
	"github.com/flygOn-LiTe/widget-platform/internal/sse"
	"github.com/flygOn-LiTe/widget-platform/internal/twitch"
)

// --- Mock implementations ---

type mockTokenStore struct {
	tokens map[string]twitch.UserToken
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{tokens: make(map[string]twitch.UserToken)}
}

func (m *mockTokenStore) SaveTokens(_ context.Context, userID, accessToken, refreshToken string) error {
	m.tokens[userID] = twitch.UserToken{UserID: userID, AccessToken: accessToken, RefreshToken: refreshToken}
	return nil
}

func (m *mockTokenStore) GetTokens(_ context.Context, userID string) (twitch.UserToken, error) {
	token, ok := m.tokens[userID]
	if !ok {
		return twitch.UserToken{}, twitch.ErrNoToken
	}
	return token, nil
}

type mockAuthAPI struct {
	tokenResp *helix.UserAccessTokenResponse
	tokenErr  error
	usersResp *helix.UsersResponse
	usersErr  error
	userToken string
}

func (m *mockAuthAPI) RequestUserAccessToken(_ string) (*helix.UserAccessTokenResponse, error) {
	return m.tokenResp, m.tokenErr
}

func (m *mockAuthAPI) SetUserAccessToken(token string) {
	m.userToken = token
}

func (m *mockAuthAPI) GetUsers(_ *helix.UsersParams) (*helix.UsersResponse, error) {
	return m.usersResp, m.usersErr
}

type mockSubscriptionManager struct {
	results map[string]twitch.SubscriptionResult
	errs    map[string]error
	calls   []string
}

func (m *mockSubscriptionManager) EnsureSubscribed(_ context.Context, eventType, userID string) (twitch.SubscriptionResult, error) {
	m.calls = append(m.calls, eventType)
	if err, ok := m.errs[eventType]; ok {
		return twitch.SubscriptionResult{}, err
	}
	if result, ok := m.results[eventType]; ok {
		return result, nil
	}
	return twitch.SubscriptionResult{EventType: eventType, Created: true, Reason: "subscription created"}, nil
}

type mockEventRouter struct {
	msg    *twitch.UpdateMessage
	err    error
	events []twitch.WebhookEvent
}

func (m *mockEventRouter) Route(_ context.Context, event twitch.WebhookEvent) (*twitch.UpdateMessage, error) {
	m.events = append(m.events, event)
	return m.msg, m.err
}

// --- Test helpers ---

func newTestServer(t *testing.T, opts ...func(*Server)) *Server {
	t.Helper()

	widgetTmpl := template.Must(template.New("widget.html").Parse(`Widget {{.BackendURL}} {{.UserID}}`))
	barTmpl := template.Must(template.New("followerbar-2.html").Parse(`Bar {{.BackendURL}} {{.UserID}}`))

	store := sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!!"))
	store.Options = &sessions.Options{
		Path:   "/",
		MaxAge: 3600,
	}

	e := echo.New()
	// Install error middleware for tests to match production behavior
	e.Use(apperrors.Middleware())

	hub := sse.NewHub()
	t.Cleanup(hub.Stop)

	srv := &Server{
		echo: e,
		config: &config.Config{
			TwitchClientID: "test-client-id",
			WebhookSecret:  testWebhookSecret,
			PublicURL:      "widgets.example.com",
			FrontendURL:    "dashboard.example.com",
			Port:           "3001",
		},
		tokens:         newMockTokenStore(),
		router:         &mockEventRouter{},
		subscriptions:  &mockSubscriptionManager{},
		hub:            hub,
		sessionStore:   store,
		sseLimits:      NewConnectionLimits(100, 10),
		webhookLimiter: rate.NewLimiter(rate.Inf, 0),
		widgetTemplate: widgetTmpl,
		barTemplate:    barTmpl,
	}

	for _, opt := range opts {
		opt(srv)
	}

	// Register routes so endpoints are available for testing
	srv.registerRoutes()

	return srv
}

func withAuthAPI(api authAPI) func(*Server) {
	return func(s *Server) {
		s.auth = api
	}
}

func withRouter(router eventRouter) func(*Server) {
	return func(s *Server) {
		s.router = router
	}
}

func withSubscriptions(subs subscriptionManager) func(*Server) {
	return func(s *Server) {
		s.subscriptions = subs
	}
}

func withCORS() func(*Server) {
	return func(s *Server) {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     []string{s.config.FrontendBaseURL()},
			AllowMethods:     []string{http.MethodGet, http.MethodPost},
			AllowCredentials: true,
		}))
	}
}

func setSessionUserID(t *testing.T, srv *Server, req *http.Request, rec *httptest.ResponseRecorder, userID string) {
	t.Helper()
	session, err := srv.sessionStore.Get(req, sessionName)
	require.NoError(t, err)
	session.Values[sessionKeyUserID] = userID
	session.Values[sessionKeyLogin] = fmt.Sprintf("login_%s", userID)
	require.NoError(t, session.Save(req, rec))
}

// loginRequest builds a request carrying a valid session cookie for userID.
func loginRequest(t *testing.T, srv *Server, method, target string, userID string) *http.Request {
	t.Helper()

	seed := httptest.NewRequest(http.MethodGet, "/", nil)
	seedRec := httptest.NewRecorder()
	setSessionUserID(t, srv, seed, seedRec, userID)

	req := httptest.NewRequest(method, target, nil)
	for _, cookie := range seedRec.Result().Cookies() {
		req.AddCookie(cookie)
	}
	return req
}
