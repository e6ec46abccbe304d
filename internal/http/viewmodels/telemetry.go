package viewmodels

import "github.com/buildhive/aws-connections/internal/telemetry"

// TelemetryPageData drives the telemetry settings page.
type TelemetryPageData struct {
	Title     string
	CSRFToken string
	ProjectID string
	ReadOnly  bool

	Settings telemetry.Settings
	URLs     telemetry.URLs

	Errors map[string]string
	Notice string
	Alert  string
}

// TelemetryPage assembles the page data from a telemetry form.
func TelemetryPage(f *telemetry.Form, csrfToken string) TelemetryPageData {
	settings := f.Settings()
	return TelemetryPageData{
		Title:     "Telemetry Settings",
		CSRFToken: csrfToken,
		ProjectID: settings.ProjectID,
		ReadOnly:  f.ReadOnly(),
		Settings:  settings,
		URLs:      f.URLs(),
		Errors:    f.Errors(),
	}
}
