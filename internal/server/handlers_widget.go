package server

import (
	"bytes"
	"html/template"
	"log/slog"

	"github.com/labstack/echo/v4"

	apperrors "github.com/flygOn-LiTe/widget-platform/internal/errors"
)

func renderTemplate(c echo.Context, tmpl *template.Template, data any) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		slog.Error("Template execution failed", "path", c.Request().URL.Path, "error", err)
		return apperrors.InternalError("failed to render page", err)
	}
	return c.HTMLBlob(200, buf.Bytes())
}

func (s *Server) handleWidget(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return apperrors.ValidationError("missing userId parameter")
	}

	data := map[string]any{
		"BackendURL": s.config.BackendBaseURL(),
		"UserID":     userID,
	}
	return renderTemplate(c, s.widgetTemplate, data)
}

func (s *Server) handleFollowerBar(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return apperrors.ValidationError("missing userId parameter")
	}

	data := map[string]any{
		"BackendURL": s.config.BackendBaseURL(),
		"UserID":     userID,
	}
	return renderTemplate(c, s.barTemplate, data)
}
