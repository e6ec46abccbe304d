// Package telemetry implements the project telemetry configuration form:
// event log retention, metrics exposure and OTLP trace export settings,
// saved as one JSON document to a host endpoint.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/buildhive/aws-connections/internal/connection"
)

// ErrSaveRejected signals that the host rejected the settings; the per-key
// messages are available via Errors.
var ErrSaveRejected = errors.New("telemetry settings rejected")

// ErrTestFailed wraps the host's message for a failed trace-endpoint test.
var ErrTestFailed = errors.New("trace endpoint test failed")

// EventLogSettings controls build event log collection. The JSON keys are
// the host's property names.
type EventLogSettings struct {
	Enabled             bool `json:"telemetry.events.enabled"`
	ArtifactStorageDays int  `json:"telemetry.events.artifacts.storage.days"`
}

// MetricsSettings controls the metrics endpoint.
type MetricsSettings struct {
	Enabled bool `json:"telemetry.metrics.enabled"`
}

// TracesSettings controls OTLP trace export.
type TracesSettings struct {
	Enabled         bool   `json:"telemetry.traces.enabled"`
	EndpointURL     string `json:"telemetry.traces.endpoint.url"`
	EndpointSSL     string `json:"telemetry.traces.endpoint.ssl"`
	EndpointGzip    bool   `json:"telemetry.traces.endpoint.gzip"`
	EndpointHeaders string `json:"telemetry.traces.endpoint.headers"`
}

// Settings is the full submission payload.
type Settings struct {
	EventLog  EventLogSettings `json:"eventLogModel"`
	Metrics   MetricsSettings  `json:"metricsModel"`
	Traces    TracesSettings   `json:"tracesModel"`
	ProjectID string           `json:"projectId"`
}

// URLs carries the host-supplied endpoints for the telemetry form.
type URLs struct {
	TestTracesURL      string `json:"testTracesUrl"`
	AgentEventLogsURL  string `json:"agentEventLogsUrl"`
	BuildEventsLogsURL string `json:"buildEventsLogsUrl"`
	MetricsEndpointURL string `json:"metricsEndpointUrl"`
	FormEndpointURL    string `json:"formEndpointUrl"`
}

// Client is the transport slice the telemetry form needs.
type Client interface {
	PostJSON(ctx context.Context, target string, payload any) ([]byte, error)
	GetJSON(ctx context.Context, target string, out any) error
}

// SettingsPath is the host endpoint serving the telemetry seed payload.
const SettingsPath = "/admin/telemetry/formProps.html"

type pagePayload struct {
	EventLog  EventLogSettings `json:"eventLogData"`
	Metrics   MetricsSettings  `json:"metricsData"`
	Traces    TracesSettings   `json:"tracesData"`
	URLs      URLs             `json:"urlData"`
	ProjectID string           `json:"projectId"`
	ReadOnly  bool             `json:"isReadOnly"`
}

// Load fetches the telemetry seed payload for a project and builds the
// form around it.
func Load(ctx context.Context, client Client, projectID string) (*Form, error) {
	var payload pagePayload
	target := SettingsPath + "?projectId=" + url.QueryEscape(projectID)
	if err := client.GetJSON(ctx, target, &payload); err != nil {
		return nil, fmt.Errorf("load telemetry settings: %w", err)
	}
	settings := Settings{
		EventLog:  payload.EventLog,
		Metrics:   payload.Metrics,
		Traces:    payload.Traces,
		ProjectID: payload.ProjectID,
	}
	if settings.ProjectID == "" {
		settings.ProjectID = projectID
	}
	return NewForm(client, payload.URLs, settings, payload.ReadOnly), nil
}

// Form is one telemetry editing session.
type Form struct {
	client   Client
	urls     URLs
	readOnly bool

	mu       sync.Mutex
	settings Settings
	errors   map[string]string
}

// NewForm builds a telemetry form seeded with the host-provided settings.
func NewForm(client Client, urls URLs, settings Settings, readOnly bool) *Form {
	return &Form{
		client:   client,
		urls:     urls,
		readOnly: readOnly,
		settings: settings,
		errors:   map[string]string{},
	}
}

// Settings returns the current settings snapshot.
func (f *Form) Settings() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

// URLs returns the host endpoints backing the form.
func (f *Form) URLs() URLs {
	return f.urls
}

// ReadOnly reports whether the project denies telemetry edits.
func (f *Form) ReadOnly() bool {
	return f.readOnly
}

// Update applies an edit to the whole settings document.
func (f *Form) Update(apply func(*Settings)) error {
	if f.readOnly {
		return errors.New("telemetry settings are read-only for this project")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	apply(&f.settings)
	return nil
}

// Errors returns a copy of the per-key error map from the last save.
func (f *Form) Errors() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.errors))
	for key, msg := range f.errors {
		out[key] = msg
	}
	return out
}

// Save posts the settings document. Host-side rejections land in Errors and
// come back as ErrSaveRejected; a nil return clears previous errors.
func (f *Form) Save(ctx context.Context) error {
	f.mu.Lock()
	payload := f.settings
	f.mu.Unlock()

	doc, err := f.client.PostJSON(ctx, f.urls.FormEndpointURL, payload)
	if err != nil {
		return err
	}
	raw, err := connection.ParseErrors(doc)
	if err != nil {
		return fmt.Errorf("parse save response: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if raw == nil {
		f.errors = map[string]string{}
		return nil
	}
	f.errors = map[string]string(raw)
	return ErrSaveRejected
}

// TestTraces posts only the traces section to the trace-endpoint test
// endpoint. The host's failure message comes back wrapped in ErrTestFailed.
func (f *Form) TestTraces(ctx context.Context) error {
	f.mu.Lock()
	payload := f.settings.Traces
	projectID := f.settings.ProjectID
	f.mu.Unlock()

	target := f.urls.TestTracesURL + "?projectId=" + url.QueryEscape(projectID)
	doc, err := f.client.PostJSON(ctx, target, payload)
	if err != nil {
		return err
	}
	raw, err := connection.ParseErrors(doc)
	if err != nil {
		return fmt.Errorf("parse test response: %w", err)
	}
	if raw == nil {
		return nil
	}
	messages := make([]string, 0, len(raw))
	for _, msg := range raw {
		messages = append(messages, msg)
	}
	return fmt.Errorf("%w: %s", ErrTestFailed, strings.Join(messages, "; "))
}
