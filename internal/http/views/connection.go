package views

import (
	"context"
	"io"

	"github.com/a-h/templ"
	"github.com/buildhive/aws-connections/internal/connection"
	"github.com/buildhive/aws-connections/internal/http/viewmodels"
)

const defaultProviderDocsHref = "https://docs.aws.amazon.com/sdkref/latest/guide/standardized-credentials.html"

// ConnectionPage renders the full connection form.
func ConnectionPage(data viewmodels.ConnectionPageData) templ.Component {
	return Layout(data.Title, connectionForm(data))
}

func connectionForm(data viewmodels.ConnectionPageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := Alert(data.Alert).Render(ctx, w); err != nil {
			return err
		}

		ew := &errWriter{w: w}
		ew.printf(`<form method="post" action="/connections/save" class="connection-form">`)
		ew.printf(`<input type="hidden" name="csrf" value="%s">`, esc(data.CSRFToken))
		ew.printf(`<input type="hidden" name="formKey" value="%s">`, esc(data.FormKey))
		ew.printf(`<input type="hidden" name="projectId" value="%s">`, esc(data.ProjectID))

		if data.ShowProviderSelector {
			renderProviderSelector(ew, data)
		}

		textRow(ew, data, connection.FieldDisplayName, "Display name", data.DisplayName, false)
		if data.IsCreate && data.GeneratedID != "" {
			ew.printf(`<p class="hint">Suggested ID: <code>%s</code></p>`, esc(data.GeneratedID))
		}
		textRow(ew, data, connection.FieldConnectionID, "Connection ID", data.ConnectionID, !data.IsCreate)

		selectRow(ew, data, connection.FieldRegion, "AWS region", data.Regions)
		selectRow(ew, data, connection.FieldCredentialsType, "Type", data.CredentialTypes)

		switch data.CredentialsType {
		case connection.CredentialsAccessKeys:
			renderAccessKeys(ew, data)
		case connection.CredentialsIAMRole:
			renderIAMRole(ew, data)
		case connection.CredentialsDefaultProvider:
			renderDefaultProvider(ew, data)
		}

		checkboxRow(ew, connection.FieldAllowedInBuilds, "Available to build steps", data.AllowedInBuilds)
		checkboxRow(ew, connection.FieldAllowedInProjects, "Available in sub-projects", data.AllowedInSubProjects)

		ew.printf(`<div class="form-actions">`)
		ew.printf(`<button type="submit" class="btn btn-primary">%s</button>`, esc(data.SubmitLabel))
		ew.printf(`<button type="submit" class="btn" formaction="/connections/test">Test Connection</button>`)
		ew.printf(`<a class="btn btn-ghost" href="%s">Cancel</a>`, esc(data.CloseHref))
		ew.raw(`</div></form>`)
		if ew.err != nil {
			return ew.err
		}

		if data.ShowRotation {
			if err := rotationBlock(data).Render(ctx, w); err != nil {
				return err
			}
		}
		if data.Test != nil {
			return TestDialog(*data.Test).Render(ctx, w)
		}
		return nil
	})
}

func renderProviderSelector(ew *errWriter, data viewmodels.ConnectionPageData) {
	ew.raw(`<div class="field-row"><label>Provider</label>`)
	switch {
	case data.ProvidersLoading:
		ew.raw(`<span class="hint">Loading providers...</span>`)
	case data.ProvidersError != "":
		ew.printf(`<span class="field-error">%s</span>`, esc(data.ProvidersError))
	default:
		ew.printf(`<select name="%s">`, esc(string(connection.FieldProviderType)))
		for _, opt := range data.Providers {
			ew.printf(`<option value="%s"%s>%s</option>`, esc(opt.Key), selected(opt.Selected), esc(opt.Label))
		}
		ew.raw(`</select>`)
	}
	ew.raw(`</div>`)
}

func renderAccessKeys(ew *errWriter, data viewmodels.ConnectionPageData) {
	ew.raw(`<fieldset class="subform"><legend>Access keys</legend>`)
	textRow(ew, data, connection.FieldAccessKeyID, "Access key ID", data.AccessKeyID, false)
	secretRow(ew, data)
	checkboxRow(ew, connection.FieldSessionCredentials, "Use session credentials", data.SessionCredentials)
	textRow(ew, data, connection.FieldStsEndpoint, "STS endpoint", data.StsEndpoint, false)
	ew.raw(`</fieldset>`)
}

func renderIAMRole(ew *errWriter, data viewmodels.ConnectionPageData) {
	ew.raw(`<fieldset class="subform"><legend>IAM role</legend>`)

	name := string(connection.FieldAwsConnectionID)
	msg, hasErr := data.FieldErrors[connection.FieldAwsConnectionID]
	ew.printf(`<div class="%s"><label for="%s">AWS connection</label>`, FieldRowClass(hasErr), esc(name))
	switch {
	case data.UpstreamLoading:
		ew.raw(`<span class="hint">Loading connections...</span>`)
	case data.UpstreamError != "":
		ew.printf(`<span class="field-error">%s</span>`, esc(data.UpstreamError))
	default:
		ew.printf(`<select id="%s" name="%s"><option value="">-- select --</option>`, esc(name), esc(name))
		for _, opt := range data.UpstreamConnections {
			ew.printf(`<option value="%s"%s>%s</option>`, esc(opt.Key), selected(opt.Selected), esc(opt.Label))
		}
		ew.raw(`</select>`)
	}
	if hasErr {
		ew.printf(`<span class="field-error">%s</span>`, esc(msg))
	}
	ew.raw(`</div>`)

	textRow(ew, data, connection.FieldIAMRoleARN, "Role ARN", data.IAMRoleARN, false)
	textRow(ew, data, connection.FieldIAMRoleSessionName, "Session tag", data.IAMRoleSessionName, false)
	textRow(ew, data, connection.FieldStsEndpoint, "STS endpoint", data.StsEndpoint, false)

	if data.ExternalID != "" {
		ew.printf(`<div class="field-row"><label>External ID</label><code class="copyable" data-copy="%s">%s</code></div>`,
			esc(data.ExternalID), esc(data.ExternalID))
	}
	ew.raw(`</fieldset>`)
}

func renderDefaultProvider(ew *errWriter, data viewmodels.ConnectionPageData) {
	if data.DefaultProviderUsable {
		return
	}
	ew.printf(`<div class="notice notice-warning">The default credential provider chain is disabled on this server. <a href="%s">Learn more</a></div>`,
		defaultProviderDocsHref)
}

func rotationBlock(data viewmodels.ConnectionPageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}
		ew.raw(`<form method="post" action="/connections/rotate" class="rotation-form">`)
		ew.printf(`<input type="hidden" name="csrf" value="%s">`, esc(data.CSRFToken))
		ew.printf(`<input type="hidden" name="formKey" value="%s">`, esc(data.FormKey))
		ew.raw(`<button type="submit" class="btn btn-outline">Rotate access keys</button>`)
		if data.RotationMessage != "" {
			ew.printf(`<span class="field-error">%s</span>`, esc(data.RotationMessage))
		}
		ew.raw(`</form>`)
		return ew.err
	})
}

// TestDialog renders the non-blocking test outcome dialog.
func TestDialog(data viewmodels.TestDialogData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}
		ew.raw(`<dialog open class="test-dialog">`)
		if data.Success {
			ew.raw(`<h2>Connection verified</h2><dl>`)
			ew.printf(`<dt>Account</dt><dd>%s</dd>`, esc(data.AccountID))
			ew.printf(`<dt>User</dt><dd>%s</dd>`, esc(data.UserID))
			ew.printf(`<dt>ARN</dt><dd>%s</dd>`, esc(data.UserARN))
			ew.raw(`</dl>`)
		} else {
			ew.raw(`<h2>Connection failed</h2><ul>`)
			for _, msg := range data.Messages {
				ew.printf(`<li>%s</li>`, esc(msg))
			}
			ew.raw(`</ul>`)
		}
		ew.raw(`<form method="dialog"><button class="btn">Close</button></form></dialog>`)
		return ew.err
	})
}

func textRow(ew *errWriter, data viewmodels.ConnectionPageData, field connection.FieldName, label, value string, isDisabled bool) {
	name := string(field)
	msg, hasErr := data.FieldErrors[field]
	inputType := "text"
	if field == connection.FieldSecretAccessKey {
		inputType = "password"
	}
	ew.printf(`<div class="%s"><label for="%s">%s</label>`, FieldRowClass(hasErr), esc(name), esc(label))
	ew.printf(`<input type="%s" id="%s" name="%s" value="%s"%s>`, inputType, esc(name), esc(name), esc(value), disabled(isDisabled))
	if hasErr {
		ew.printf(`<span class="field-error">%s</span>`, esc(msg))
	}
	ew.raw(`</div>`)
}

func secretRow(ew *errWriter, data viewmodels.ConnectionPageData) {
	textRow(ew, data, connection.FieldSecretAccessKey, "Secret access key", data.SecretAccessKey, false)
}

func selectRow(ew *errWriter, data viewmodels.ConnectionPageData, field connection.FieldName, label string, options []viewmodels.SelectOption) {
	name := string(field)
	msg, hasErr := data.FieldErrors[field]
	ew.printf(`<div class="%s"><label for="%s">%s</label>`, FieldRowClass(hasErr), esc(name), esc(label))
	ew.printf(`<select id="%s" name="%s">`, esc(name), esc(name))
	for _, opt := range options {
		ew.printf(`<option value="%s"%s>%s</option>`, esc(opt.Key), selected(opt.Selected), esc(opt.Label))
	}
	ew.raw(`</select>`)
	if hasErr {
		ew.printf(`<span class="field-error">%s</span>`, esc(msg))
	}
	ew.raw(`</div>`)
}

func checkboxRow(ew *errWriter, field connection.FieldName, label string, value bool) {
	name := string(field)
	ew.printf(`<div class="field-row field-row-checkbox"><label><input type="checkbox" name="%s" value="true"%s> %s</label></div>`,
		esc(name), checked(value), esc(label))
}
