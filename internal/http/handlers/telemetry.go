package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/buildhive/aws-connections/internal/http/viewmodels"
	"github.com/buildhive/aws-connections/internal/http/views"
	"github.com/buildhive/aws-connections/internal/telemetry"
)

// HandleTelemetryGet loads the project telemetry settings from the host
// and renders the editing form.
func (h *Handlers) HandleTelemetryGet(c *echo.Context) error {
	projectID := strings.TrimSpace(c.Param("projectId"))
	if projectID == "" {
		return RenderNotFound(c)
	}
	f, err := telemetry.Load(c.Request().Context(), h.Client, projectID)
	if err != nil {
		return h.RenderError(c, err)
	}
	h.RememberProject(c, projectID)
	return h.RenderComponent(c, views.TelemetryPage(viewmodels.TelemetryPage(f, h.CSRFToken(c))))
}

// HandleTelemetrySave re-loads the current settings, applies the posted
// edits and saves them back to the host.
func (h *Handlers) HandleTelemetrySave(c *echo.Context) error {
	return h.telemetryAction(c, func(f *telemetry.Form) error {
		return f.Save(c.Request().Context())
	}, "Settings saved.")
}

// HandleTelemetryTest applies the posted edits and probes the trace
// endpoint without persisting.
func (h *Handlers) HandleTelemetryTest(c *echo.Context) error {
	return h.telemetryAction(c, func(f *telemetry.Form) error {
		return f.TestTraces(c.Request().Context())
	}, "Trace endpoint reachable.")
}

func (h *Handlers) telemetryAction(c *echo.Context, run func(*telemetry.Form) error, notice string) error {
	projectID := strings.TrimSpace(c.FormValue("projectId"))
	if projectID == "" {
		return RenderNotFound(c)
	}
	f, err := telemetry.Load(c.Request().Context(), h.Client, projectID)
	if err != nil {
		return h.RenderError(c, err)
	}
	if err := applyTelemetryValues(c, f); err != nil {
		page := viewmodels.TelemetryPage(f, h.CSRFToken(c))
		page.Alert = err.Error()
		return h.RenderComponent(c, views.TelemetryPage(page))
	}

	actionErr := run(f)
	page := viewmodels.TelemetryPage(f, h.CSRFToken(c))
	switch {
	case actionErr == nil:
		page.Notice = notice
	case errors.Is(actionErr, telemetry.ErrSaveRejected):
		// Per-key messages already render next to the fields.
	default:
		page.Alert = actionErr.Error()
	}
	return h.RenderComponent(c, views.TelemetryPage(page))
}

func applyTelemetryValues(c *echo.Context, f *telemetry.Form) error {
	if err := c.Request().ParseForm(); err != nil {
		return err
	}
	posted := c.Request().PostForm
	get := func(key string) string { return strings.TrimSpace(posted.Get(key)) }
	has := func(key string) bool { _, ok := posted[key]; return ok }

	// Checkboxes are absent when unchecked, so toggles apply
	// unconditionally while text fields only apply when posted.
	return f.Update(func(s *telemetry.Settings) {
		s.EventLog.Enabled = get("telemetry.events.enabled") == "true"
		if has("telemetry.events.artifacts.storage.days") {
			if days, err := strconv.Atoi(get("telemetry.events.artifacts.storage.days")); err == nil {
				s.EventLog.ArtifactStorageDays = days
			}
		}
		s.Metrics.Enabled = get("telemetry.metrics.enabled") == "true"
		s.Traces.Enabled = get("telemetry.traces.enabled") == "true"
		if has("telemetry.traces.endpoint.url") {
			s.Traces.EndpointURL = get("telemetry.traces.endpoint.url")
		}
		if has("telemetry.traces.endpoint.ssl") {
			s.Traces.EndpointSSL = get("telemetry.traces.endpoint.ssl")
		}
		s.Traces.EndpointGzip = get("telemetry.traces.endpoint.gzip") == "true"
		if has("telemetry.traces.endpoint.headers") {
			s.Traces.EndpointHeaders = get("telemetry.traces.endpoint.headers")
		}
	})
}
