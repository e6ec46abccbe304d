// Package viewmodels builds the data passed into view components.
package viewmodels

import (
	"sort"

	"github.com/buildhive/aws-connections/internal/connection"
	"github.com/buildhive/aws-connections/internal/form"
	"github.com/buildhive/aws-connections/internal/hostapi"
)

// SelectOption is one entry of a selector widget.
type SelectOption struct {
	Key      string
	Label    string
	Selected bool
}

// TestDialogData is the outcome dialog of the test-connection flow.
type TestDialogData struct {
	Success   bool
	AccountID string
	UserID    string
	UserARN   string
	Messages  []string
}

// ConnectionPageData drives the connection form page.
type ConnectionPageData struct {
	Title     string
	CSRFToken string
	FormKey   string

	ProjectID    string
	ConnectionID string
	IsCreate     bool
	SubmitLabel  string

	ShowProviderSelector bool
	Providers            []SelectOption
	ProvidersLoading     bool
	ProvidersError       string

	DisplayName string
	GeneratedID string

	Regions         []SelectOption
	CredentialTypes []SelectOption
	CredentialsType connection.CredentialsType

	AccessKeyID        string
	SecretAccessKey    string
	SessionCredentials bool
	StsEndpoint        string
	ShowRotation       bool
	RotationMessage    string

	IAMRoleARN            string
	IAMRoleSessionName    string
	UpstreamConnections   []SelectOption
	UpstreamLoading       bool
	UpstreamError         string
	ExternalID            string
	DefaultProviderUsable bool

	AllowedInBuilds      bool
	AllowedInSubProjects bool

	FieldErrors map[connection.FieldName]string
	Alert       string
	Test        *TestDialogData
	CloseHref   string
}

// ConnectionPage assembles the page data from a live form session.
func ConnectionPage(f *form.Form, csrfToken, formKey string) ConnectionPageData {
	cfg := f.Config()
	values := f.Values()

	title := "Edit AWS Connection"
	if f.IsCreate() {
		title = "New AWS Connection"
	}

	data := ConnectionPageData{
		Title:     title,
		CSRFToken: csrfToken,
		FormKey:   formKey,

		ProjectID:    cfg.ProjectID,
		ConnectionID: values[connection.FieldConnectionID].Key(),
		IsCreate:     f.IsCreate(),
		SubmitLabel:  f.Mode().SubmitLabel(),

		ShowProviderSelector: f.Mode().ShowsProviderSelector() && !cfg.DisableTypeSelection,

		DisplayName: values[connection.FieldDisplayName].Key(),

		CredentialsType: f.CredentialsType(),

		AccessKeyID:        values[connection.FieldAccessKeyID].Key(),
		SecretAccessKey:    values[connection.FieldSecretAccessKey].Key(),
		StsEndpoint:        values[connection.FieldStsEndpoint].Key(),
		ShowRotation:       f.ShowsRotation(),
		RotationMessage:    f.RotationMessage(),
		IAMRoleARN:         values[connection.FieldIAMRoleARN].Key(),
		IAMRoleSessionName: values[connection.FieldIAMRoleSessionName].Key(),

		DefaultProviderUsable: cfg.DefaultCredProviderEnabled,

		FieldErrors: f.FieldErrors(),
		Alert:       f.Alert(),
		CloseHref:   f.CloseLocation(),
	}
	if b, ok := values[connection.FieldSessionCredentials].Bool(); ok {
		data.SessionCredentials = b
	}
	if b, ok := values[connection.FieldAllowedInBuilds].Bool(); ok {
		data.AllowedInBuilds = b
	}
	if b, ok := values[connection.FieldAllowedInProjects].Bool(); ok {
		data.AllowedInSubProjects = b
	}

	selectedRegion := values[connection.FieldRegion].Key()
	for _, opt := range connection.RegionOptions(cfg.AllRegions) {
		data.Regions = append(data.Regions, SelectOption{
			Key:      opt.Key,
			Label:    opt.Label,
			Selected: opt.Key == selectedRegion,
		})
	}

	for _, opt := range connection.CredentialsTypeOptions {
		data.CredentialTypes = append(data.CredentialTypes, SelectOption{
			Key:      opt.Key,
			Label:    opt.Label,
			Selected: connection.CredentialsType(opt.Key) == data.CredentialsType,
		})
	}

	providers := f.Providers.Snapshot()
	data.ProvidersLoading = providers.Loading
	if providers.Err != nil {
		data.ProvidersError = providers.Err.Error()
	}
	for _, opt := range providers.Data {
		data.Providers = append(data.Providers, SelectOption{
			Key:      opt.Key,
			Label:    opt.Label,
			Selected: opt.Key == connection.ProviderKey,
		})
	}

	upstream := f.AwsConnections.Snapshot()
	data.UpstreamLoading = upstream.Loading
	if upstream.Err != nil {
		data.UpstreamError = upstream.Err.Error()
	}
	selectedUpstream := values[connection.FieldAwsConnectionID].Key()
	data.UpstreamConnections = upstreamOptions(upstream.Data, selectedUpstream)

	data.GeneratedID = f.GeneratedID.Snapshot().Data
	data.ExternalID = f.ExternalID.Snapshot().Data

	return data
}

// TestDialog converts a test outcome for display. Field errors join the
// dialog message list since the dialog never touches the form.
func TestDialog(outcome form.TestOutcome) *TestDialogData {
	dialog := &TestDialogData{
		Success:   outcome.Success,
		AccountID: outcome.Identity.AccountID,
		UserID:    outcome.Identity.UserID,
		UserARN:   outcome.Identity.UserARN,
		Messages:  append([]string(nil), outcome.Messages...),
	}
	for _, msg := range outcome.FieldErrors {
		dialog.Messages = append(dialog.Messages, msg)
	}
	sort.Strings(dialog.Messages)
	return dialog
}

func upstreamOptions(conns []hostapi.AvailableConnection, selected string) []SelectOption {
	out := make([]SelectOption, 0, len(conns))
	for _, conn := range conns {
		out = append(out, SelectOption{
			Key:      conn.Key,
			Label:    conn.Label,
			Selected: conn.Key == selected,
		})
	}
	return out
}
