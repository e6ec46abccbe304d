// Package form owns the lifecycle of one AWS connection editing session:
// seeding values from the host configuration, tracking edits and per-field
// errors, and running the submit, test-connection and key-rotation flows
// against the host.
package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/buildhive/aws-connections/internal/connection"
	"github.com/buildhive/aws-connections/internal/datasource"
	"github.com/buildhive/aws-connections/internal/hostapi"
	"github.com/buildhive/aws-connections/internal/metrics"
)

// ErrFieldErrors signals that the host rejected a submit with per-field
// errors; they are available via FieldErrors.
var ErrFieldErrors = errors.New("submit rejected with field errors")

// Client is the part of the host API the form needs. *hostapi.Client
// satisfies it; tests substitute fakes.
type Client interface {
	SaveConnection(ctx context.Context, saveURL string, params connection.RequestParams) ([]byte, error)
	TestConnection(ctx context.Context, testURL string, params connection.RequestParams) ([]byte, error)
	AvailableConnections(ctx context.Context, listURL, projectID, resource string, filter func(typeTag string) bool) ([]hostapi.AvailableConnection, error)
	SupportedProviders(ctx context.Context, providersURL, projectID string) ([]connection.Option, error)
	GenerateID(ctx context.Context, displayName, projectID string) (string, error)
	ExternalID(ctx context.Context, externalIDURL, projectID, connectionParam, connectionID string) (string, error)
	RotateKeys(ctx context.Context, rotateURL, connectionID, projectID string) error
	LoadConnection(ctx context.Context, projectID, connectionID string) (connection.Config, error)
}

// Options wires a Form's collaborators.
type Options struct {
	Config    connection.Config
	Mode      connection.Mode
	Client    Client
	Encryptor connection.Encryptor
	// OnClose overrides the default close behavior. Nil means navigate to
	// the project's connections tab.
	OnClose func()
}

// TestOutcome is the result of the non-persisting test-connection flow,
// shown in a dialog that never closes the form.
type TestOutcome struct {
	Success     bool
	Identity    connection.CallerIdentity
	FieldErrors map[connection.FieldName]string
	// Messages lists host errors that resolved to no field, in no
	// particular order.
	Messages []string
}

// Form is one editing session. All methods are safe for concurrent use;
// handlers for the same session may overlap when the user double-submits.
type Form struct {
	client  Client
	enc     connection.Encryptor
	mode    connection.Mode
	onClose func()

	mu          sync.Mutex
	cfg         connection.Config
	values      connection.Values
	fieldErrors map[connection.FieldName]string
	alert       string
	rotationMsg string
	idTriggered bool

	Providers      *datasource.Source[[]connection.Option]
	AwsConnections *datasource.Source[[]hostapi.AvailableConnection]
	GeneratedID    *datasource.Source[string]
	ExternalID     *datasource.Source[string]
}

// New builds a Form seeded from the configuration. The generated-id source
// is triggered once right away when the configuration already carries a
// display name but no id yet.
func New(opts Options) *Form {
	f := &Form{
		client:      opts.Client,
		enc:         opts.Encryptor,
		mode:        opts.Mode,
		onClose:     opts.OnClose,
		cfg:         opts.Config,
		values:      connection.InitialValues(opts.Config, nil),
		fieldErrors: map[connection.FieldName]string{},
	}

	f.Providers = datasource.New("supported-providers", func(ctx context.Context) ([]connection.Option, error) {
		cfg := f.snapshotConfig()
		return f.client.SupportedProviders(ctx, cfg.SupportedProvidersURL, cfg.ProjectID)
	})
	f.AwsConnections = datasource.New("available-aws-connections", func(ctx context.Context) ([]hostapi.AvailableConnection, error) {
		cfg := f.snapshotConfig()
		return f.client.AvailableConnections(ctx, cfg.AvailableConnectionsURL, cfg.ProjectID, cfg.AvailableConnectionsRes, func(typeTag string) bool {
			return connection.CredentialsType(typeTag) == connection.CredentialsAccessKeys
		})
	})
	f.GeneratedID = datasource.New("generated-id", func(ctx context.Context) (string, error) {
		f.mu.Lock()
		displayName := f.values[connection.FieldDisplayName].Key()
		projectID := f.cfg.ProjectID
		f.mu.Unlock()
		return f.client.GenerateID(ctx, displayName, projectID)
	})
	f.ExternalID = datasource.New("external-id", func(ctx context.Context) (string, error) {
		cfg := f.snapshotConfig()
		connectionID := f.upstreamConnectionID()
		if connectionID == "" {
			return "", nil
		}
		return f.client.ExternalID(ctx, cfg.ExternalIDsURL, cfg.ProjectID, cfg.ExternalIDsConnectionParam, connectionID)
	})
	return f
}

// Config returns the current configuration snapshot. Rotation is the only
// operation that mutates it mid-session.
func (f *Form) Config() connection.Config {
	return f.snapshotConfig()
}

// Mode returns the cosmetic display mode.
func (f *Form) Mode() connection.Mode {
	return f.mode
}

// IsCreate reports whether the session edits a brand-new connection.
func (f *Form) IsCreate() bool {
	return f.snapshotConfig().IsCreate()
}

// Values returns a copy of the live form values.
func (f *Form) Values() connection.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values.Clone()
}

// Value returns one field's current value.
func (f *Form) Value(name connection.FieldName) connection.Value {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[name]
}

// FieldErrors returns a copy of the per-field error map from the last
// submit attempt.
func (f *Form) FieldErrors() map[connection.FieldName]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[connection.FieldName]string, len(f.fieldErrors))
	for name, msg := range f.fieldErrors {
		out[name] = msg
	}
	return out
}

// Alert returns the transient non-field error from the last operation, or
// "".
func (f *Form) Alert() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alert
}

// RotationMessage returns the inline message near the rotate control from
// the last rotation attempt, or "".
func (f *Form) RotationMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rotationMsg
}

// SetValue stores an edit and clears the field's pending error. Editing the
// display name of an unsaved connection triggers the generated-id source;
// changing the region rewrites the STS endpoint when the user has not
// customized it.
func (f *Form) SetValue(ctx context.Context, name connection.FieldName, value connection.Value) {
	f.mu.Lock()
	prev := f.values[name]
	f.values[name] = value
	delete(f.fieldErrors, name)

	if name == connection.FieldRegion {
		derived := connection.StsEndpointForRegion(prev.Key())
		current := f.values[connection.FieldStsEndpoint].Key()
		if current == "" || current == derived {
			f.values[connection.FieldStsEndpoint] = connection.String(connection.StsEndpointForRegion(value.Key()))
		}
	}
	triggerID := name == connection.FieldDisplayName && f.cfg.IsCreate()
	reloadExternal := name == connection.FieldAwsConnectionID
	f.mu.Unlock()

	if triggerID {
		f.GeneratedID.Reload(ctx)
	}
	if reloadExternal {
		f.ExternalID.Reload(ctx)
	}
}

// CredentialsType returns the normalized discriminator for sub-form
// dispatch.
func (f *Form) CredentialsType() connection.CredentialsType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return connection.CredentialsTypeOf(f.values[connection.FieldCredentialsType])
}

// ShowsRotation reports whether the rotate action is offered: only on a
// saved connection whose key pair was already persisted.
func (f *Form) ShowsRotation() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.cfg.IsCreate() && f.cfg.AccessKeyID != "" && f.cfg.SecretAccessKey != ""
}

// TriggerInitialGeneratedID fires the generated-id fetch once for a new
// connection created with a prefilled display name. Repeated calls do
// nothing.
func (f *Form) TriggerInitialGeneratedID(ctx context.Context) {
	f.mu.Lock()
	fire := !f.idTriggered &&
		f.cfg.IsCreate() &&
		f.values[connection.FieldDisplayName].Key() != "" &&
		f.values[connection.FieldConnectionID].IsNull() &&
		f.values[connection.FieldID].IsNull()
	f.idTriggered = true
	f.mu.Unlock()
	if fire {
		f.GeneratedID.Reload(ctx)
	}
}

// Submit serializes the current values and posts them to the save endpoint.
// Host-reported field errors land in FieldErrors and come back as
// ErrFieldErrors; transport failures set the alert. A nil return means the
// connection was persisted and the session should close.
func (f *Form) Submit(ctx context.Context) error {
	start := time.Now()
	err := f.submit(ctx)
	metrics.FormOperationDuration.WithLabelValues("submit").Observe(time.Since(start).Seconds())
	metrics.FormOperationsTotal.WithLabelValues("submit", metrics.OperationStatus(err)).Inc()
	return err
}

func (f *Form) submit(ctx context.Context) error {
	f.mu.Lock()
	f.fieldErrors = map[connection.FieldName]string{}
	f.alert = ""
	cfg := f.cfg
	values := f.values.Clone()
	f.mu.Unlock()

	params, err := connection.BuildRequestParams(cfg, values, f.enc)
	if err != nil {
		f.setAlert(err.Error())
		return err
	}
	if cfg.IsCreate() {
		// A new connection sends its id as the id property; the
		// connectionId parameter identifies only existing records.
		params[string(connection.FieldID)] = params[string(connection.FieldConnectionID)]
		delete(params, string(connection.FieldConnectionID))
	}

	doc, err := f.client.SaveConnection(ctx, cfg.ConnectionsURL, params)
	if err != nil {
		slog.Error("connection save failed", "project", cfg.ProjectID, "err", err)
		f.setAlert(err.Error())
		return err
	}

	raw, err := connection.ParseErrors(doc)
	if err != nil {
		f.setAlert("unreadable response from server")
		return fmt.Errorf("parse save response: %w", err)
	}
	if raw == nil {
		return nil
	}

	fieldErrs := connection.FieldErrors(raw)
	f.mu.Lock()
	if fieldErrs != nil {
		f.fieldErrors = fieldErrs
	} else {
		f.alert = firstMessage(raw)
	}
	f.mu.Unlock()
	return ErrFieldErrors
}

// Test serializes the current values and posts them to the test endpoint
// without persisting. The outcome is for display in a dialog; the error
// return covers transport and encoding failures only.
func (f *Form) Test(ctx context.Context) (TestOutcome, error) {
	start := time.Now()
	outcome, err := f.test(ctx)
	metrics.FormOperationDuration.WithLabelValues("test").Observe(time.Since(start).Seconds())
	metrics.FormOperationsTotal.WithLabelValues("test", metrics.OperationStatus(err)).Inc()
	return outcome, err
}

func (f *Form) test(ctx context.Context) (TestOutcome, error) {
	f.mu.Lock()
	cfg := f.cfg
	values := f.values.Clone()
	f.mu.Unlock()

	params, err := connection.BuildRequestParams(cfg, values, f.enc)
	if err != nil {
		return TestOutcome{}, err
	}
	doc, err := f.client.TestConnection(ctx, cfg.TestConnectionURL, params)
	if err != nil {
		return TestOutcome{}, err
	}

	if identity, ok := connection.ParseCallerIdentity(doc); ok {
		return TestOutcome{Success: true, Identity: identity}, nil
	}
	raw, err := connection.ParseErrors(doc)
	if err != nil {
		return TestOutcome{}, fmt.Errorf("parse test response: %w", err)
	}
	outcome := TestOutcome{FieldErrors: connection.FieldErrors(raw)}
	for key, msg := range raw {
		if _, ok := connection.ResolveErrorField(key); !ok {
			outcome.Messages = append(outcome.Messages, msg)
		}
	}
	return outcome, nil
}

// RotateKeys asks the host to rotate the access key pair and, on success,
// re-fetches the connection and splices the fresh key material into the
// live configuration and values. On failure the host's message is kept for
// inline display and nothing else changes.
func (f *Form) RotateKeys(ctx context.Context) error {
	start := time.Now()
	err := f.rotateKeys(ctx)
	metrics.FormOperationDuration.WithLabelValues("rotate").Observe(time.Since(start).Seconds())
	metrics.FormOperationsTotal.WithLabelValues("rotate", metrics.OperationStatus(err)).Inc()
	return err
}

func (f *Form) rotateKeys(ctx context.Context) error {
	f.mu.Lock()
	f.rotationMsg = ""
	cfg := f.cfg
	f.mu.Unlock()

	if err := f.client.RotateKeys(ctx, cfg.RotateKeyURL, cfg.ConnectionID, cfg.ProjectID); err != nil {
		var rotErr *hostapi.RotationError
		if errors.As(err, &rotErr) {
			f.mu.Lock()
			f.rotationMsg = rotErr.Message
			f.mu.Unlock()
		} else {
			f.setAlert(err.Error())
		}
		return err
	}

	fresh, err := f.client.LoadConnection(ctx, cfg.ProjectID, cfg.ConnectionID)
	if err != nil {
		slog.Error("reload after rotation failed", "connection", cfg.ConnectionID, "err", err)
		f.setAlert("keys rotated but the connection could not be reloaded")
		return err
	}

	f.mu.Lock()
	f.cfg.AccessKeyID = fresh.AccessKeyID
	f.cfg.SecretAccessKey = fresh.SecretAccessKey
	f.values[connection.FieldAccessKeyID] = connection.String(fresh.AccessKeyID)
	if fresh.SecretAccessKey != "" {
		f.values[connection.FieldSecretAccessKey] = connection.String(connection.SecretStub)
	}
	f.mu.Unlock()
	return nil
}

// Close invokes the host-supplied close callback when there is one and
// reports whether it did. Without a callback the caller should navigate to
// CloseLocation.
func (f *Form) Close() bool {
	if f.onClose == nil {
		return false
	}
	f.onClose()
	return true
}

// CloseLocation is the default navigation target after closing: the
// project's connections tab.
func (f *Form) CloseLocation() string {
	cfg := f.snapshotConfig()
	return "/admin/editProject.html?projectId=" + url.QueryEscape(cfg.ProjectID) + "&tab=oauthConnections"
}

func (f *Form) snapshotConfig() connection.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *Form) upstreamConnectionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[connection.FieldAwsConnectionID].Key()
}

func (f *Form) setAlert(msg string) {
	f.mu.Lock()
	f.alert = msg
	f.mu.Unlock()
}

func firstMessage(raw connection.ResponseErrors) string {
	for _, msg := range raw {
		return msg
	}
	return ""
}
