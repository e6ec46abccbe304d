package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"
	"github.com/buildhive/aws-connections/internal/config"
	"github.com/buildhive/aws-connections/internal/connection"
	"github.com/buildhive/aws-connections/internal/hostapi"
)

type stubEncryptor struct{}

func (stubEncryptor) Encrypt(plaintext, publicKey string) (string, error) {
	return "enc(" + plaintext + ")", nil
}

// fakeHost simulates the host endpoints the connection page touches. Save
// and test responses are swappable per test.
type fakeHost struct {
	saveForm     url.Values
	saveResponse string
	testResponse string
	connectionID string
}

func (fh *fakeHost) page() string {
	return `<html><body><script>
const config = {
	projectId: 'Proj1',
	connectionId: '` + fh.connectionID + `',
	displayName: 'Prod account',
	region: 'eu-west-1',
	defaultRegion: 'us-east-1',
	credentialsType: 'awsAccessKeys',
	accessKeyId: 'AKIAEXAMPLE',
	secretAccessKey: 'cipher',
	sessionCredentialsEnabled: 'true',
	publicKey: 'aa:03',
	connectionsUrl: '/admin/connections/save.html',
	testConnectionUrl: '/repo/aws-test-connection.html',
	supportedProvidersUrl: '/admin/supportedProviders.html',
	availableAwsConnectionsControllerUrl: '/admin/availableAwsConnections.html',
	availableAwsConnectionsControllerResource: 'AWS_CONNECTIONS',
	rotateKeyControllerUrl: '/admin/rotateKeys.html',
	externalIdsControllerUrl: '/admin/externalIds.html',
	externalIdsConnectionParam: 'connectionId',
	isDefaultCredProviderEnabled: 'true' === 'true',
	disableTypeSelection: 'false' === 'true',
};
const allRegions = {
	allRegionKeys: 'us-east-1,eu-west-1',
	allRegionValues: 'US East (N. Virginia),Europe (Ireland)',
};
</script></body></html>`
}

func (fh *fakeHost) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/oauth/awsConnection.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, fh.page())
	})
	mux.HandleFunc("/admin/supportedProviders.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"AWS":"Amazon Web Services"}`)
	})
	mux.HandleFunc("/admin/availableAwsConnections.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[["upConn","Shared keys","AWS","awsAccessKeys"]]`)
	})
	mux.HandleFunc("/generateId.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ProdAccount\n")
	})
	mux.HandleFunc("/admin/externalIds.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `"ext-1234"`)
	})
	mux.HandleFunc("/admin/rotateKeys.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})
	mux.HandleFunc("/admin/connections/save.html", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		fh.saveForm = r.PostForm
		_, _ = io.WriteString(w, fh.saveResponse)
	})
	mux.HandleFunc("/repo/aws-test-connection.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, fh.testResponse)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newConnectionHandlers(t *testing.T, fh *fakeHost) *Handlers {
	t.Helper()
	srv := fh.server(t)
	return &Handlers{
		Cfg:       config.Config{HostBaseURL: srv.URL},
		Client:    hostapi.NewClient(hostapi.Options{BaseURL: srv.URL}),
		Encryptor: stubEncryptor{},
		Forms:     NewFormRegistry(),
	}
}

func newHandlerContext(method, target, body string) (*echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

func extractFormKey(t *testing.T, body string) string {
	t.Helper()
	marker := `name="formKey" value="`
	idx := strings.Index(body, marker)
	if idx < 0 {
		t.Fatalf("response missing form key field: %q", body)
	}
	rest := body[idx+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		t.Fatalf("unterminated form key value")
	}
	return rest[:end]
}

func TestHandleConnectionNewRendersSeededForm(t *testing.T) {
	fh := &fakeHost{}
	h := newConnectionHandlers(t, fh)

	c, rec := newHandlerContext(http.MethodGet, "/projects/Proj1/connections/new", "")
	c.SetPathValues(echo.PathValues{{Name: "projectId", Value: "Proj1"}})

	if err := h.HandleConnectionNew(c); err != nil {
		t.Fatalf("HandleConnectionNew() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusOK)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "New AWS Connection") {
		t.Fatalf("response missing create title: %q", body)
	}
	if !strings.Contains(body, `value="Prod account"`) {
		t.Fatalf("response missing seeded display name")
	}
	if !strings.Contains(body, "Amazon Web Services") {
		t.Fatalf("response missing provider option")
	}
	if !strings.Contains(body, "Europe (Ireland)") {
		t.Fatalf("response missing region catalog option")
	}
	key := extractFormKey(t, body)
	if _, ok := h.Forms.Get(key); !ok {
		t.Fatalf("form key %q not registered", key)
	}
}

func TestHandleConnectionEditRendersExistingConnection(t *testing.T) {
	fh := &fakeHost{connectionID: "awsConn1"}
	h := newConnectionHandlers(t, fh)

	c, rec := newHandlerContext(http.MethodGet, "/projects/Proj1/connections/awsConn1", "")
	c.SetPathValues(echo.PathValues{
		{Name: "projectId", Value: "Proj1"},
		{Name: "connectionId", Value: "awsConn1"},
	})

	if err := h.HandleConnectionEdit(c); err != nil {
		t.Fatalf("HandleConnectionEdit() error = %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Edit AWS Connection") {
		t.Fatalf("response missing edit title: %q", body)
	}
	if !strings.Contains(body, "AKIAEXAMPLE") {
		t.Fatalf("response missing access key id")
	}
}

func TestHandleConnectionSaveRedirectsOnSuccess(t *testing.T) {
	fh := &fakeHost{connectionID: "awsConn1", saveResponse: `<response/>`}
	h := newConnectionHandlers(t, fh)

	key := startSessionForTest(t, h, "awsConn1")

	posted := url.Values{}
	posted.Set("formKey", key)
	posted.Set("prop:displayName", "Renamed account")
	posted.Set("prop:awsRegionName", "eu-west-1")
	posted.Set("prop:awsCredentialsType", "awsAccessKeys")
	posted.Set("prop:awsAccessKeyId", "AKIAEXAMPLE")

	c, rec := newHandlerContext(http.MethodPost, "/connections/save", posted.Encode())
	if err := h.HandleConnectionSave(c); err != nil {
		t.Fatalf("HandleConnectionSave() error = %v", err)
	}
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusSeeOther)
	}
	if got := rec.Header().Get("Location"); !strings.Contains(got, "projectId=Proj1") {
		t.Fatalf("redirect location=%q missing project", got)
	}
	if got := fh.saveForm.Get("prop:displayName"); got != "Renamed account" {
		t.Fatalf("posted display name got=%q want %q", got, "Renamed account")
	}
	if _, ok := h.Forms.Get(key); ok {
		t.Fatal("session should be dropped after a successful save")
	}
}

func TestHandleConnectionSaveRendersFieldErrors(t *testing.T) {
	fh := &fakeHost{
		connectionID: "awsConn1",
		saveResponse: `<errors><error id="displayName">Name is required</error></errors>`,
	}
	h := newConnectionHandlers(t, fh)
	key := startSessionForTest(t, h, "awsConn1")

	posted := url.Values{}
	posted.Set("formKey", key)
	posted.Set("prop:displayName", "")

	c, rec := newHandlerContext(http.MethodPost, "/connections/save", posted.Encode())
	if err := h.HandleConnectionSave(c); err != nil {
		t.Fatalf("HandleConnectionSave() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "Name is required") {
		t.Fatalf("response missing field error: %q", rec.Body.String())
	}
	if _, ok := h.Forms.Get(key); !ok {
		t.Fatal("session should survive a rejected save")
	}
}

func TestHandleConnectionSaveExpiredSession(t *testing.T) {
	fh := &fakeHost{}
	h := newConnectionHandlers(t, fh)

	posted := url.Values{}
	posted.Set("formKey", "gone")
	c, rec := newHandlerContext(http.MethodPost, "/connections/save", posted.Encode())
	if err := h.HandleConnectionSave(c); err != nil {
		t.Fatalf("HandleConnectionSave() error = %v", err)
	}
	if rec.Code != http.StatusGone {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusGone)
	}
}

func TestHandleConnectionTestShowsIdentity(t *testing.T) {
	fh := &fakeHost{
		connectionID: "awsConn1",
		testResponse: `<response><callerIdentity accountId="123456789012" userId="AIDAX" userArn="arn:aws:iam::123456789012:user/ci"/></response>`,
	}
	h := newConnectionHandlers(t, fh)
	key := startSessionForTest(t, h, "awsConn1")

	posted := url.Values{}
	posted.Set("formKey", key)
	c, rec := newHandlerContext(http.MethodPost, "/connections/test", posted.Encode())
	if err := h.HandleConnectionTest(c); err != nil {
		t.Fatalf("HandleConnectionTest() error = %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "123456789012") {
		t.Fatalf("response missing caller account: %q", body)
	}
	if _, ok := h.Forms.Get(key); !ok {
		t.Fatal("test must not close the session")
	}
}

func startSessionForTest(t *testing.T, h *Handlers, connectionID string) string {
	t.Helper()
	target := "/projects/Proj1/connections/new"
	values := echo.PathValues{{Name: "projectId", Value: "Proj1"}}
	handle := h.HandleConnectionNew
	if connectionID != "" {
		target = "/projects/Proj1/connections/" + connectionID
		values = append(values, echo.PathValues{{Name: "connectionId", Value: connectionID}}...)
		handle = h.HandleConnectionEdit
	}
	c, rec := newHandlerContext(http.MethodGet, target, "")
	c.SetPathValues(values)
	if err := handle(c); err != nil {
		t.Fatalf("start session: %v", err)
	}
	return extractFormKey(t, rec.Body.String())
}

func TestSelectorDataReturnsSnapshots(t *testing.T) {
	h := newConnectionHandlers(t, &fakeHost{})
	key := startSessionForTest(t, h, "")

	c, rec := newHandlerContext(http.MethodGet, "/connections/data?formKey="+key, "")
	if err := h.HandleSelectorData(c); err != nil {
		t.Fatalf("HandleSelectorData: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status got=%d want %d", rec.Code, http.StatusOK)
	}

	var data struct {
		Providers []struct {
			Key   string `json:"key"`
			Label string `json:"label"`
		} `json:"providers"`
		AwsConnections []struct {
			Key     string `json:"key"`
			TypeTag string `json:"typeTag"`
		} `json:"awsConnections"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode selector data: %v", err)
	}
	if len(data.Providers) == 0 || data.Providers[0].Key != "AWS" {
		t.Fatalf("providers got=%v", data.Providers)
	}
	if len(data.AwsConnections) != 1 || data.AwsConnections[0].Key != "upConn" {
		t.Fatalf("awsConnections got=%v", data.AwsConnections)
	}
	if data.AwsConnections[0].TypeTag != "awsAccessKeys" {
		t.Fatalf("typeTag got=%q", data.AwsConnections[0].TypeTag)
	}
}

func TestSelectorDataExpiredSession(t *testing.T) {
	h := newConnectionHandlers(t, &fakeHost{})

	c, rec := newHandlerContext(http.MethodGet, "/connections/data?formKey=gone", "")
	if err := h.HandleSelectorData(c); err != nil {
		t.Fatalf("HandleSelectorData: %v", err)
	}
	if rec.Code != http.StatusGone {
		t.Fatalf("status got=%d want %d", rec.Code, http.StatusGone)
	}
}

func TestHandleConnectionSaveMissingFormKey(t *testing.T) {
	h := newConnectionHandlers(t, &fakeHost{})

	c, rec := newHandlerContext(http.MethodPost, "/connections/save", "prop:displayName=Prod")
	if err := h.HandleConnectionSave(c); err != nil {
		t.Fatalf("HandleConnectionSave() error = %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleConnectionRotateExpiredSession(t *testing.T) {
	h := newConnectionHandlers(t, &fakeHost{})

	posted := url.Values{}
	posted.Set("formKey", "gone")
	c, rec := newHandlerContext(http.MethodPost, "/connections/rotate", posted.Encode())
	if err := h.HandleConnectionRotate(c); err != nil {
		t.Fatalf("HandleConnectionRotate() error = %v", err)
	}
	if rec.Code != http.StatusGone {
		t.Fatalf("status=%d want %d", rec.Code, http.StatusGone)
	}
}

func TestSessionCredentialsSurviveSubFormSwitch(t *testing.T) {
	fh := &fakeHost{
		connectionID: "awsConn1",
		saveResponse: `<errors><error id="awsIamRoleArn">Role ARN is required</error></errors>`,
	}
	h := newConnectionHandlers(t, fh)
	key := startSessionForTest(t, h, "awsConn1")

	f, ok := h.Forms.Get(key)
	if !ok {
		t.Fatal("session not registered")
	}
	if on, _ := f.Value(connection.FieldSessionCredentials).Bool(); !on {
		t.Fatal("session credentials should start enabled")
	}

	// A post from the IAM-role sub-form omits the checkbox entirely.
	posted := url.Values{}
	posted.Set("formKey", key)
	posted.Set("prop:awsCredentialsType", "awsAssumeIamRole")
	c, _ := newHandlerContext(http.MethodPost, "/connections/save", posted.Encode())
	if err := h.HandleConnectionSave(c); err != nil {
		t.Fatalf("HandleConnectionSave() error = %v", err)
	}
	if on, _ := f.Value(connection.FieldSessionCredentials).Bool(); !on {
		t.Fatal("switching sub-forms cleared the session credentials toggle")
	}

	// On the access-keys sub-form an omitted checkbox does mean unchecked.
	posted = url.Values{}
	posted.Set("formKey", key)
	posted.Set("prop:awsCredentialsType", "awsAccessKeys")
	c, _ = newHandlerContext(http.MethodPost, "/connections/save", posted.Encode())
	if err := h.HandleConnectionSave(c); err != nil {
		t.Fatalf("HandleConnectionSave() error = %v", err)
	}
	if on, _ := f.Value(connection.FieldSessionCredentials).Bool(); on {
		t.Fatal("unchecked box on the access-keys sub-form should clear the toggle")
	}
}
