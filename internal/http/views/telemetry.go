package views

import (
	"context"
	"io"

	"github.com/a-h/templ"
	"github.com/buildhive/aws-connections/internal/http/viewmodels"
)

// TelemetryPage renders the telemetry settings form.
func TelemetryPage(data viewmodels.TelemetryPageData) templ.Component {
	return Layout(data.Title, telemetryForm(data))
}

func telemetryForm(data viewmodels.TelemetryPageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := Alert(data.Alert).Render(ctx, w); err != nil {
			return err
		}

		ew := &errWriter{w: w}
		if data.Notice != "" {
			ew.printf(`<div class="alert alert-success" role="status">%s</div>`, esc(data.Notice))
		}
		ew.raw(`<form method="post" action="/telemetry/save" class="telemetry-form">`)
		ew.printf(`<input type="hidden" name="csrf" value="%s">`, esc(data.CSRFToken))
		ew.printf(`<input type="hidden" name="projectId" value="%s">`, esc(data.ProjectID))

		ew.raw(`<fieldset class="subform"><legend>Build event log</legend>`)
		telemetryToggle(ew, data, "telemetry.events.enabled", "Collect build events", data.Settings.EventLog.Enabled)
		telemetryNumber(ew, data, "telemetry.events.artifacts.storage.days", "Artifact retention (days)", data.Settings.EventLog.ArtifactStorageDays)
		ew.raw(`</fieldset>`)

		ew.raw(`<fieldset class="subform"><legend>Metrics</legend>`)
		telemetryToggle(ew, data, "telemetry.metrics.enabled", "Expose metrics endpoint", data.Settings.Metrics.Enabled)
		if data.URLs.MetricsEndpointURL != "" {
			ew.printf(`<p class="hint">Endpoint: <code>%s</code></p>`, esc(data.URLs.MetricsEndpointURL))
		}
		ew.raw(`</fieldset>`)

		ew.raw(`<fieldset class="subform"><legend>Traces</legend>`)
		telemetryToggle(ew, data, "telemetry.traces.enabled", "Export traces", data.Settings.Traces.Enabled)
		telemetryText(ew, data, "telemetry.traces.endpoint.url", "OTLP endpoint URL", data.Settings.Traces.EndpointURL)
		telemetryText(ew, data, "telemetry.traces.endpoint.ssl", "TLS certificate", data.Settings.Traces.EndpointSSL)
		telemetryToggle(ew, data, "telemetry.traces.endpoint.gzip", "Compress payloads", data.Settings.Traces.EndpointGzip)
		telemetryText(ew, data, "telemetry.traces.endpoint.headers", "Extra headers", data.Settings.Traces.EndpointHeaders)
		ew.raw(`</fieldset>`)

		ew.raw(`<div class="form-actions">`)
		ew.printf(`<button type="submit" class="btn btn-primary"%s>Save</button>`, disabled(data.ReadOnly))
		ew.printf(`<button type="submit" class="btn" formaction="/telemetry/test">Test trace endpoint</button>`)
		ew.raw(`</div></form>`)
		return ew.err
	})
}

func telemetryToggle(ew *errWriter, data viewmodels.TelemetryPageData, key, label string, value bool) {
	ew.printf(`<div class="field-row field-row-checkbox"><label><input type="checkbox" name="%s" value="true"%s%s> %s</label></div>`,
		esc(key), checked(value), disabled(data.ReadOnly), esc(label))
	telemetryError(ew, data, key)
}

func telemetryText(ew *errWriter, data viewmodels.TelemetryPageData, key, label, value string) {
	ew.printf(`<div class="field-row"><label for="%s">%s</label><input type="text" id="%s" name="%s" value="%s"%s></div>`,
		esc(key), esc(label), esc(key), esc(key), esc(value), disabled(data.ReadOnly))
	telemetryError(ew, data, key)
}

func telemetryNumber(ew *errWriter, data viewmodels.TelemetryPageData, key, label string, value int) {
	ew.printf(`<div class="field-row"><label for="%s">%s</label><input type="number" id="%s" name="%s" value="%d"%s></div>`,
		esc(key), esc(label), esc(key), esc(key), value, disabled(data.ReadOnly))
	telemetryError(ew, data, key)
}

func telemetryError(ew *errWriter, data viewmodels.TelemetryPageData, key string) {
	if msg, ok := data.Errors[key]; ok {
		ew.printf(`<span class="field-error">%s</span>`, esc(msg))
	}
}
