package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"
	"github.com/buildhive/aws-connections/internal/config"
	"github.com/buildhive/aws-connections/internal/hostapi"
	"github.com/buildhive/aws-connections/internal/telemetry"
)

type telemetryHost struct {
	saved        map[string]json.RawMessage
	saveResponse string
	testResponse string
	readOnly     bool
}

func (th *telemetryHost) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(telemetry.SettingsPath, func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"eventLogData": map[string]any{
				"telemetry.events.enabled":                true,
				"telemetry.events.artifacts.storage.days": 14,
			},
			"metricsData": map[string]any{"telemetry.metrics.enabled": false},
			"tracesData": map[string]any{
				"telemetry.traces.enabled":      true,
				"telemetry.traces.endpoint.url": "https://otlp.example.com",
			},
			"urlData": map[string]any{
				"testTracesUrl":   "/admin/telemetry/testTraces.html",
				"formEndpointUrl": "/admin/telemetry/save.html",
			},
			"projectId":  r.URL.Query().Get("projectId"),
			"isReadOnly": th.readOnly,
		}
		_ = json.NewEncoder(w).Encode(payload)
	})
	mux.HandleFunc("/admin/telemetry/save.html", func(w http.ResponseWriter, r *http.Request) {
		var doc map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&doc)
		th.saved = doc
		_, _ = io.WriteString(w, th.saveResponse)
	})
	mux.HandleFunc("/admin/telemetry/testTraces.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, th.testResponse)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTelemetryHandlers(t *testing.T, th *telemetryHost) *Handlers {
	t.Helper()
	srv := th.server(t)
	return &Handlers{
		Cfg:    config.Config{HostBaseURL: srv.URL},
		Client: hostapi.NewClient(hostapi.Options{BaseURL: srv.URL}),
		Forms:  NewFormRegistry(),
	}
}

func TestHandleTelemetryGetRendersSeededSettings(t *testing.T) {
	h := newTelemetryHandlers(t, &telemetryHost{})

	c, rec := newHandlerContext(http.MethodGet, "/projects/Proj1/telemetry", "")
	c.SetPathValues(echo.PathValues{{Name: "projectId", Value: "Proj1"}})

	if err := h.HandleTelemetryGet(c); err != nil {
		t.Fatalf("HandleTelemetryGet() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `value="14"`) {
		t.Fatalf("response missing retention days: %q", body)
	}
	if !strings.Contains(body, "https://otlp.example.com") {
		t.Fatalf("response missing trace endpoint url")
	}
}

func TestHandleTelemetrySavePostsWholeDocument(t *testing.T) {
	th := &telemetryHost{saveResponse: `<response/>`}
	h := newTelemetryHandlers(t, th)

	posted := url.Values{}
	posted.Set("projectId", "Proj1")
	posted.Set("telemetry.events.enabled", "true")
	posted.Set("telemetry.events.artifacts.storage.days", "30")
	posted.Set("telemetry.traces.enabled", "true")
	posted.Set("telemetry.traces.endpoint.url", "https://otlp.example.com")

	c, rec := newHandlerContext(http.MethodPost, "/telemetry/save", posted.Encode())
	if err := h.HandleTelemetrySave(c); err != nil {
		t.Fatalf("HandleTelemetrySave() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "Settings saved.") {
		t.Fatalf("response missing save notice: %q", rec.Body.String())
	}

	var eventLog struct {
		Days int `json:"telemetry.events.artifacts.storage.days"`
	}
	if err := json.Unmarshal(th.saved["eventLogModel"], &eventLog); err != nil {
		t.Fatalf("decode saved event log: %v", err)
	}
	if eventLog.Days != 30 {
		t.Fatalf("saved retention days=%d want 30", eventLog.Days)
	}
}

func TestHandleTelemetrySaveRendersPerKeyErrors(t *testing.T) {
	th := &telemetryHost{
		saveResponse: `<errors><error id="telemetry.traces.endpoint.url">Endpoint is unreachable</error></errors>`,
	}
	h := newTelemetryHandlers(t, th)

	posted := url.Values{}
	posted.Set("projectId", "Proj1")
	posted.Set("telemetry.traces.enabled", "true")

	c, rec := newHandlerContext(http.MethodPost, "/telemetry/save", posted.Encode())
	if err := h.HandleTelemetrySave(c); err != nil {
		t.Fatalf("HandleTelemetrySave() error = %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Endpoint is unreachable") {
		t.Fatalf("response missing field error: %q", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "Settings saved.") {
		t.Fatalf("rejected save must not show the success notice")
	}
}

func TestHandleTelemetryTestFailureShowsAlert(t *testing.T) {
	th := &telemetryHost{
		testResponse: `<errors><error id="unexpected">connection refused</error></errors>`,
	}
	h := newTelemetryHandlers(t, th)

	posted := url.Values{}
	posted.Set("projectId", "Proj1")
	posted.Set("telemetry.traces.enabled", "true")
	posted.Set("telemetry.traces.endpoint.url", "https://otlp.example.com")

	c, rec := newHandlerContext(http.MethodPost, "/telemetry/test", posted.Encode())
	if err := h.HandleTelemetryTest(c); err != nil {
		t.Fatalf("HandleTelemetryTest() error = %v", err)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("response missing failure message: %q", rec.Body.String())
	}
}

func TestHandleTelemetrySaveReadOnlyProject(t *testing.T) {
	th := &telemetryHost{readOnly: true, saveResponse: `<response/>`}
	h := newTelemetryHandlers(t, th)

	posted := url.Values{}
	posted.Set("projectId", "Proj1")
	posted.Set("telemetry.events.enabled", "true")

	c, rec := newHandlerContext(http.MethodPost, "/telemetry/save", posted.Encode())
	if err := h.HandleTelemetrySave(c); err != nil {
		t.Fatalf("HandleTelemetrySave() error = %v", err)
	}
	if th.saved != nil {
		t.Fatal("read-only project must not reach the save endpoint")
	}
	if !strings.Contains(rec.Body.String(), "read-only") {
		t.Fatalf("response missing read-only message: %q", rec.Body.String())
	}
}