package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type fakeClient struct {
	target  string
	payload any
	doc     []byte
	err     error
}

func (c *fakeClient) PostJSON(ctx context.Context, target string, payload any) ([]byte, error) {
	c.target = target
	c.payload = payload
	return c.doc, c.err
}

func (c *fakeClient) GetJSON(ctx context.Context, target string, out any) error {
	c.target = target
	if c.err != nil {
		return c.err
	}
	return json.Unmarshal(c.doc, out)
}

func testURLs() URLs {
	return URLs{
		TestTracesURL:   "/admin/telemetry/testTraces.html",
		FormEndpointURL: "/admin/telemetry/settings.html",
	}
}

func testSettings() Settings {
	return Settings{
		EventLog:  EventLogSettings{Enabled: true, ArtifactStorageDays: 14},
		Metrics:   MetricsSettings{Enabled: true},
		Traces:    TracesSettings{Enabled: true, EndpointURL: "https://otlp.example.test:4318"},
		ProjectID: "ProjectA",
	}
}

func TestSettingsWireNames(t *testing.T) {
	t.Parallel()

	encoded, err := json.Marshal(testSettings())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{
		`"eventLogModel"`,
		`"metricsModel"`,
		`"tracesModel"`,
		`"telemetry.events.enabled":true`,
		`"telemetry.events.artifacts.storage.days":14`,
		`"telemetry.traces.endpoint.url":"https://otlp.example.test:4318"`,
		`"projectId":"ProjectA"`,
	} {
		if !strings.Contains(string(encoded), want) {
			t.Fatalf("payload missing %s: %s", want, encoded)
		}
	}
}

func TestSaveSuccessClearsErrors(t *testing.T) {
	t.Parallel()

	client := &fakeClient{doc: []byte(`<errors><error id="telemetry.traces.endpoint.url">invalid url</error></errors>`)}
	f := NewForm(client, testURLs(), testSettings(), false)

	if err := f.Save(context.Background()); !errors.Is(err, ErrSaveRejected) {
		t.Fatalf("Save got=%v want ErrSaveRejected", err)
	}
	if got := f.Errors()["telemetry.traces.endpoint.url"]; got != "invalid url" {
		t.Fatalf("error got=%q", got)
	}

	client.doc = []byte(`<response/>`)
	if err := f.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(f.Errors()) != 0 {
		t.Fatalf("errors not cleared after successful save: %v", f.Errors())
	}
	if client.target != "/admin/telemetry/settings.html" {
		t.Fatalf("save target got=%q", client.target)
	}
}

func TestTestTraces(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		client := &fakeClient{doc: []byte(`<response/>`)}
		f := NewForm(client, testURLs(), testSettings(), false)

		if err := f.TestTraces(context.Background()); err != nil {
			t.Fatalf("TestTraces: %v", err)
		}
		if client.target != "/admin/telemetry/testTraces.html?projectId=ProjectA" {
			t.Fatalf("target got=%q", client.target)
		}
		if _, ok := client.payload.(TracesSettings); !ok {
			t.Fatalf("payload should be the traces section only, got %T", client.payload)
		}
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()
		client := &fakeClient{doc: []byte(`<errors><error id="endpoint">connection refused</error></errors>`)}
		f := NewForm(client, testURLs(), testSettings(), false)

		err := f.TestTraces(context.Background())
		if !errors.Is(err, ErrTestFailed) {
			t.Fatalf("got=%v want ErrTestFailed", err)
		}
		if !strings.Contains(err.Error(), "connection refused") {
			t.Fatalf("host message missing: %v", err)
		}
	})
}

func TestLoadSeedsForm(t *testing.T) {
	t.Parallel()

	client := &fakeClient{doc: []byte(`{
		"eventLogData": {"telemetry.events.enabled": true, "telemetry.events.artifacts.storage.days": 30},
		"metricsData": {"telemetry.metrics.enabled": false},
		"tracesData": {"telemetry.traces.enabled": true, "telemetry.traces.endpoint.url": "https://otlp.example.test"},
		"urlData": {"testTracesUrl": "/test.html", "formEndpointUrl": "/form.html"},
		"projectId": "ProjectA",
		"isReadOnly": true
	}`)}

	f, err := Load(context.Background(), client, "ProjectA")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if client.target != SettingsPath+"?projectId=ProjectA" {
		t.Fatalf("target got=%q", client.target)
	}
	settings := f.Settings()
	if !settings.EventLog.Enabled || settings.EventLog.ArtifactStorageDays != 30 {
		t.Fatalf("event log settings got=%+v", settings.EventLog)
	}
	if settings.Metrics.Enabled {
		t.Fatalf("metrics should be disabled")
	}
	if f.URLs().FormEndpointURL != "/form.html" {
		t.Fatalf("form endpoint got=%q", f.URLs().FormEndpointURL)
	}
	if !f.ReadOnly() {
		t.Fatalf("read-only flag lost")
	}
}

func TestReadOnlyRejectsEdits(t *testing.T) {
	t.Parallel()

	f := NewForm(&fakeClient{}, testURLs(), testSettings(), true)
	err := f.Update(func(s *Settings) {
		s.Metrics.Enabled = false
	})
	if err == nil {
		t.Fatalf("Update should fail on a read-only form")
	}
	if !f.Settings().Metrics.Enabled {
		t.Fatalf("read-only settings were mutated")
	}
}
