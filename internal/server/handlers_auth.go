package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	helix "github.com/nicklaw5/helix/v2"

	apperrors "github.com/flygOn-LiTe/widget-platform/internal/errors"
)

const (
	twitchAuthURL        = "https://id.twitch.tv/oauth2/authorize"
	twitchScopes         = "user:read:email moderator:read:followers channel:read:subscriptions"
	sessionKeyOAuthState = "oauthState"
	sessionKeyLogin      = "login"
)

func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, err := s.sessionStore.Get(c.Request(), sessionName)
		if err != nil {
			return apperrors.UnauthorizedError("invalid session")
		}

		userID, ok := session.Values[sessionKeyUserID].(string)
		if !ok || userID == "" {
			return apperrors.UnauthorizedError("not logged in")
		}

		c.Set("userID", userID)
		return next(c)
	}
}

func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *Server) handleAuthRedirect(c echo.Context) error {
	state, err := generateOAuthState()
	if err != nil {
		return apperrors.InternalError("failed to start login", err)
	}

	session, _ := s.sessionStore.Get(c.Request(), sessionName)
	session.Values[sessionKeyOAuthState] = state
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}

	authURL := fmt.Sprintf(
		"%s?client_id=%s&redirect_uri=%s&response_type=code&scope=%s&state=%s",
		twitchAuthURL,
		url.QueryEscape(s.config.TwitchClientID),
		url.QueryEscape(s.config.BackendBaseURL()+"/auth/twitch/callback"),
		url.QueryEscape(twitchScopes),
		url.QueryEscape(state),
	)

	return c.Redirect(http.StatusFound, authURL)
}

func (s *Server) handleAuthCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return apperrors.ValidationError("missing code parameter")
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return apperrors.ValidationError("invalid session")
	}
	expectedState, ok := session.Values[sessionKeyOAuthState].(string)
	if !ok || expectedState == "" || c.QueryParam("state") != expectedState {
		return apperrors.ValidationError("invalid OAuth state")
	}
	delete(session.Values, sessionKeyOAuthState)

	tokenResp, err := s.auth.RequestUserAccessToken(code)
	if err != nil {
		return apperrors.ExternalError("failed to exchange authorization code", err)
	}
	if tokenResp.StatusCode >= 400 {
		return apperrors.ExternalError("failed to exchange authorization code",
			fmt.Errorf("twitch returned status %d: %s", tokenResp.StatusCode, tokenResp.ErrorMessage))
	}

	s.auth.SetUserAccessToken(tokenResp.Data.AccessToken)
	usersResp, err := s.auth.GetUsers(&helix.UsersParams{})
	if err != nil {
		return apperrors.ExternalError("failed to look up authenticated user", err)
	}
	if usersResp.StatusCode >= 400 || len(usersResp.Data.Users) == 0 {
		return apperrors.ExternalError("failed to look up authenticated user",
			fmt.Errorf("twitch returned status %d: %s", usersResp.StatusCode, usersResp.ErrorMessage))
	}
	user := usersResp.Data.Users[0]

	ctx := c.Request().Context()
	if err := s.tokens.SaveTokens(ctx, user.ID, tokenResp.Data.AccessToken, tokenResp.Data.RefreshToken); err != nil {
		return apperrors.InternalError("failed to store tokens", err)
	}

	session.Values[sessionKeyUserID] = user.ID
	session.Values[sessionKeyLogin] = user.Login
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}

	slog.Info("User logged in", "user_id", user.ID, "login", user.Login)
	return c.Redirect(http.StatusFound, s.config.FrontendBaseURL()+"/user/dashboard")
}
