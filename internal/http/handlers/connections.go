package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/buildhive/aws-connections/internal/connection"
	"github.com/buildhive/aws-connections/internal/datasource"
	"github.com/buildhive/aws-connections/internal/form"
	"github.com/buildhive/aws-connections/internal/http/viewmodels"
	"github.com/buildhive/aws-connections/internal/http/views"
)

// checkboxFields are absent from a post when unchecked, so they apply
// unconditionally when their sub-form was rendered.
var checkboxFields = map[connection.FieldName]bool{
	connection.FieldSessionCredentials: true,
	connection.FieldAllowedInBuilds:    true,
	connection.FieldAllowedInProjects:  true,
}

// HandleIndex redirects to the last edited project or shows a short
// landing page.
func (h *Handlers) HandleIndex(c *echo.Context) error {
	if h.Sessions != nil {
		if projectID := h.Sessions.GetString(c.Request().Context(), SessionKeyLastProject); projectID != "" {
			return c.Redirect(http.StatusSeeOther, "/projects/"+projectID+"/connections/new")
		}
	}
	return c.HTML(http.StatusOK,
		`<p>Open <code>/projects/&lt;projectId&gt;/connections/new</code> to create an AWS connection.</p>`)
}

// HandleConnectionNew starts a create-mode editing session.
func (h *Handlers) HandleConnectionNew(c *echo.Context) error {
	return h.startSession(c, "")
}

// HandleConnectionEdit starts an edit-mode session for an existing
// connection.
func (h *Handlers) HandleConnectionEdit(c *echo.Context) error {
	connectionID := strings.TrimSpace(c.Param("connectionId"))
	if connectionID == "" {
		return RenderNotFound(c)
	}
	return h.startSession(c, connectionID)
}

func (h *Handlers) startSession(c *echo.Context, connectionID string) error {
	projectID := strings.TrimSpace(c.Param("projectId"))
	if projectID == "" {
		return RenderNotFound(c)
	}
	ctx := c.Request().Context()

	cfg, err := h.Client.LoadConnection(ctx, projectID, connectionID)
	if err != nil {
		return h.RenderError(c, err)
	}
	cfg.ProjectID = projectID

	f := form.New(form.Options{
		Config:    cfg,
		Mode:      modeFromQuery(c.QueryParam("mode")),
		Client:    h.Client,
		Encryptor: h.Encryptor,
	})

	// Selector data is fetched up front; individual failures surface as
	// inline notes, not page errors.
	_ = datasource.RefreshAll(ctx, f.Providers, f.AwsConnections)
	if f.CredentialsType() == connection.CredentialsIAMRole {
		_ = f.ExternalID.Refresh(ctx)
	}
	f.TriggerInitialGeneratedID(ctx)

	key := h.Forms.Put(f)
	h.RememberProject(c, projectID)
	return h.RenderComponent(c, views.ConnectionPage(viewmodels.ConnectionPage(f, h.CSRFToken(c), key)))
}

// HandleConnectionSave applies the posted edits and submits them to the
// host.
func (h *Handlers) HandleConnectionSave(c *echo.Context) error {
	f, key, err := h.sessionFromPost(c)
	if err != nil || f == nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.applyPostedValues(c, f); err != nil {
		return h.RenderError(c, err)
	}

	if err := f.Submit(ctx); err == nil {
		h.Forms.Delete(key)
		return c.Redirect(http.StatusSeeOther, f.CloseLocation())
	} else if !errors.Is(err, form.ErrFieldErrors) {
		c.Logger().Warn("connection save rejected by host",
			"project_id", f.Config().ProjectID,
			"error", err,
		)
	}
	// Field errors and host rejections both render inline on the form.
	return h.RenderComponent(c, views.ConnectionPage(viewmodels.ConnectionPage(f, h.CSRFToken(c), key)))
}

// HandleConnectionTest applies the posted edits and runs the
// test-connection flow without persisting.
func (h *Handlers) HandleConnectionTest(c *echo.Context) error {
	f, key, err := h.sessionFromPost(c)
	if err != nil || f == nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.applyPostedValues(c, f); err != nil {
		return h.RenderError(c, err)
	}

	outcome, testErr := f.Test(ctx)
	page := viewmodels.ConnectionPage(f, h.CSRFToken(c), key)
	if testErr != nil {
		page.Test = &viewmodels.TestDialogData{Messages: []string{testErr.Error()}}
	} else {
		page.Test = viewmodels.TestDialog(outcome)
	}
	return h.RenderComponent(c, views.ConnectionPage(page))
}

// HandleConnectionRotate runs the key-rotation flow for the session.
func (h *Handlers) HandleConnectionRotate(c *echo.Context) error {
	f, key, err := h.sessionFromPost(c)
	if err != nil || f == nil {
		return err
	}
	// The rotation outcome, success or failure, renders inline.
	_ = f.RotateKeys(c.Request().Context())
	return h.RenderComponent(c, views.ConnectionPage(viewmodels.ConnectionPage(f, h.CSRFToken(c), key)))
}

// selectorData is the JSON snapshot of the session's remote selector
// sources.
type selectorData struct {
	Providers             []connection.Option `json:"providers"`
	ProvidersLoading      bool                `json:"providersLoading"`
	ProvidersError        string              `json:"providersError,omitempty"`
	AwsConnections        []upstreamItem      `json:"awsConnections"`
	AwsConnectionsLoading bool                `json:"awsConnectionsLoading"`
	AwsConnectionsError   string              `json:"awsConnectionsError,omitempty"`
}

type upstreamItem struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	TypeTag string `json:"typeTag"`
}

// HandleSelectorData serves the selector source snapshots for an editing
// session. refresh=1 kicks off a background reload first; the caller polls
// until loading clears.
func (h *Handlers) HandleSelectorData(c *echo.Context) error {
	key := strings.TrimSpace(c.QueryParam("formKey"))
	if key == "" {
		return c.String(http.StatusBadRequest, "missing form key")
	}
	f, ok := h.Forms.Get(key)
	if !ok {
		return c.String(http.StatusGone, "Editing session expired. Reload the page and try again.")
	}

	if c.QueryParam("refresh") == "1" {
		// The reload outlives this request.
		ctx := context.WithoutCancel(c.Request().Context())
		f.Providers.Reload(ctx)
		f.AwsConnections.Reload(ctx)
	}

	providers := f.Providers.Snapshot()
	upstream := f.AwsConnections.Snapshot()
	data := selectorData{
		Providers:             providers.Data,
		ProvidersLoading:      providers.Loading,
		AwsConnections:        make([]upstreamItem, 0, len(upstream.Data)),
		AwsConnectionsLoading: upstream.Loading,
	}
	if data.Providers == nil {
		data.Providers = []connection.Option{}
	}
	if providers.Err != nil {
		data.ProvidersError = providers.Err.Error()
	}
	if upstream.Err != nil {
		data.AwsConnectionsError = upstream.Err.Error()
	}
	for _, conn := range upstream.Data {
		data.AwsConnections = append(data.AwsConnections, upstreamItem{
			Key:     conn.Key,
			Label:   conn.Label,
			TypeTag: conn.TypeTag,
		})
	}
	return c.JSON(http.StatusOK, data)
}

// sessionFromPost resolves the posted form key. A nil form with a nil
// error means the rejection response was already written; callers must
// bail out instead of touching the form.
func (h *Handlers) sessionFromPost(c *echo.Context) (*form.Form, string, error) {
	key := strings.TrimSpace(c.FormValue("formKey"))
	if key == "" {
		return nil, "", c.String(http.StatusBadRequest, "missing form key")
	}
	f, ok := h.Forms.Get(key)
	if !ok {
		return nil, "", c.String(http.StatusGone, "Editing session expired. Reload the page and try again.")
	}
	return f, key, nil
}

// applyPostedValues folds the posted fields into the session. Checkbox
// fields apply unconditionally since browsers omit unchecked boxes.
func (h *Handlers) applyPostedValues(c *echo.Context, f *form.Form) error {
	req := c.Request()
	if err := req.ParseForm(); err != nil {
		return err
	}
	posted := req.PostForm
	ctx := req.Context()
	cfg := f.Config()
	regions := connection.RegionOptions(cfg.AllRegions)

	// The session-credentials checkbox only renders inside the access-keys
	// sub-form. A post made from another sub-form omits it without meaning
	// "cleared", so it is forced only when that sub-form was shown.
	postedType := connection.CredentialsType(posted.Get(string(connection.FieldCredentialsType)))
	if postedType == "" {
		postedType = f.CredentialsType()
	}

	for _, name := range connection.AllFieldNames {
		raw, present := posted[string(name)]
		if checkboxFields[name] {
			if name == connection.FieldSessionCredentials && postedType != connection.CredentialsAccessKeys {
				continue
			}
			f.SetValue(ctx, name, connection.Bool(present && len(raw) > 0 && raw[0] == "true"))
			continue
		}
		if !present {
			continue
		}
		value := ""
		if len(raw) > 0 {
			value = raw[0]
		}

		switch name {
		case connection.FieldRegion:
			f.SetValue(ctx, name, optionValue(regions, value))
		case connection.FieldCredentialsType:
			f.SetValue(ctx, name, optionValue(connection.CredentialsTypeOptions, value))
		case connection.FieldProviderType, connection.FieldAwsConnectionID:
			f.SetValue(ctx, name, optionValue(nil, value))
		default:
			f.SetValue(ctx, name, connection.String(value))
		}
	}
	return nil
}

func optionValue(opts []connection.Option, key string) connection.Value {
	if key == "" {
		return connection.Null()
	}
	for _, opt := range opts {
		if opt.Key == key {
			return connection.OptionOf(opt)
		}
	}
	return connection.OptionOf(connection.Option{Key: key, Label: key})
}

func modeFromQuery(raw string) connection.Mode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "embedded":
		return connection.ModeEmbedded
	case "convert":
		return connection.ModeConvert
	default:
		return connection.ModeDefault
	}
}
