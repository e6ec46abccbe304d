package devhost

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/buildhive/aws-connections/internal/connection"
	"github.com/buildhive/aws-connections/internal/hostapi"
	"github.com/buildhive/aws-connections/internal/telemetry"
)

// DefaultRegions is the simulator's region catalog. The Osaka local region
// carries a literal comma, which exercises the '#' escape of the list
// encoding.
var DefaultRegions = connection.RegionCatalog{
	Keys: connection.JoinList([]string{
		"us-east-1", "us-east-2", "us-west-1", "us-west-2",
		"eu-west-1", "eu-central-1", "ap-northeast-1", "ap-northeast-3",
		"cn-north-1",
	}),
	Labels: connection.JoinList([]string{
		"US East (N. Virginia)", "US East (Ohio)",
		"US West (N. California)", "US West (Oregon)",
		"Europe (Ireland)", "Europe (Frankfurt)",
		"Asia Pacific (Tokyo)", "Asia Pacific (Osaka, Local)",
		"China (Beijing)",
	}),
}

// Options wires a Server. Nil prober and rotator default to the offline
// local fakes; passing STSProber and IAMRotator runs against real AWS.
type Options struct {
	Store   *Store
	Prober  Prober
	Rotator Rotator
	Regions connection.RegionCatalog

	// DefaultChainEnabled gates the default-credential-provider type,
	// mirroring the host capability flag.
	DefaultChainEnabled bool
}

// Server serves the host endpoints the panel consumes.
type Server struct {
	store               *Store
	prober              Prober
	rotator             Rotator
	regions             connection.RegionCatalog
	defaultChainEnabled bool

	e   *echo.Echo
	srv *http.Server
}

// NewServer builds the simulator around a store.
func NewServer(opts Options) *Server {
	s := &Server{
		store:               opts.Store,
		prober:              opts.Prober,
		rotator:             opts.Rotator,
		regions:             opts.Regions,
		defaultChainEnabled: opts.DefaultChainEnabled,
		e:                   echo.New(),
	}
	if s.prober == nil {
		s.prober = LocalProber{}
	}
	if s.rotator == nil {
		s.rotator = LocalRotator{}
	}
	if s.regions.Keys == "" {
		s.regions = DefaultRegions
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.e.GET("/healthz", func(c *echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	s.e.GET(hostapi.ConnectionPagePath, s.handleConnectionPage)
	s.e.POST(saveConnectionPath, s.handleSave)
	s.e.POST(hostapi.TestConnectionPath, s.handleTest)
	s.e.POST(availableConnectionsPath, s.handleAvailableConnections)
	s.e.GET(supportedProvidersPath, s.handleSupportedProviders)
	s.e.POST("/"+hostapi.GenerateIDPath, s.handleGenerateID)
	s.e.POST(externalIDsPath, s.handleExternalID)
	s.e.POST(rotateKeysPath, s.handleRotateKeys)
	s.e.GET(telemetry.SettingsPath, s.handleTelemetryProps)
	s.e.POST(telemetrySavePath, s.handleTelemetrySave)
	s.e.POST(telemetryTestPath, s.handleTelemetryTest)
}

const (
	saveConnectionPath       = "/admin/connections/save.html"
	availableConnectionsPath = "/admin/availableAwsConnections.html"
	supportedProvidersPath   = "/admin/supportedProviders.html"
	externalIDsPath          = "/admin/externalIds.html"
	rotateKeysPath           = "/admin/rotateKeys.html"
	telemetrySavePath        = "/admin/telemetry/save.html"
	telemetryTestPath        = "/admin/telemetry/testTraces.html"
)

// Handler exposes the routed handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.e,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.srv.ListenAndServe()
}

// Shutdown stops an already started server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// handleConnectionPage serves the edit-page fragment with the embedded
// config and region literals, in the relaxed notation the real host emits.
func (s *Server) handleConnectionPage(c *echo.Context) error {
	projectID := c.QueryParam("projectId")
	connectionID := c.QueryParam("connectionId")

	cfg := connection.Config{
		ProjectID:    projectID,
		ConnectionID: connectionID,
		Region:       "",
		PublicKey:    s.store.PublicKey(),

		ConnectionsURL:             saveConnectionPath,
		TestConnectionURL:          hostapi.TestConnectionPath,
		SupportedProvidersURL:      supportedProvidersPath,
		AvailableConnectionsURL:    availableConnectionsPath,
		AvailableConnectionsRes:    "availableAwsConnections",
		RotateKeyURL:               rotateKeysPath,
		ExternalIDsURL:             externalIDsPath,
		ExternalIDsConnectionParam: "connectionId",
		DefaultCredProviderEnabled: s.defaultChainEnabled,
	}
	if conn, ok := s.store.Get(projectID, connectionID); ok {
		cfg.DisplayName = conn.DisplayName
		cfg.Region = conn.Region
		cfg.CredentialsType = conn.CredentialsType
		cfg.AccessKeyID = conn.AccessKeyID
		cfg.SecretAccessKey = s.storedSecretToken(conn)
		cfg.SessionCredentialsEnabled = conn.SessionCredentialsEnabled
		cfg.StsEndpoint = conn.StsEndpoint
		cfg.IAMRoleARN = conn.IAMRoleARN
		cfg.IAMRoleSessionName = conn.IAMRoleSessionName
		cfg.AwsConnectionID = conn.UpstreamConnectionID
		cfg.AllowedInBuilds = conn.AllowedInBuilds
		cfg.AllowedInSubProjects = conn.AllowedInSubProjects
	}

	page := renderConnectionPage(cfg, s.regions)
	return c.HTML(http.StatusOK, page)
}

func (s *Server) handleSave(c *echo.Context) error {
	if err := c.Request().ParseForm(); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	posted := c.Request().PostForm
	projectID := firstNonEmptyValue(posted.Get("projectId"), c.QueryParam("projectId"))

	id := posted.Get(string(connection.FieldID))
	isCreate := id != ""
	if !isCreate {
		id = posted.Get(string(connection.FieldConnectionID))
	}

	conn := Connection{
		ID:                        id,
		ProjectID:                 projectID,
		DisplayName:               posted.Get(string(connection.FieldDisplayName)),
		Region:                    posted.Get(string(connection.FieldRegion)),
		CredentialsType:           posted.Get(string(connection.FieldCredentialsType)),
		AccessKeyID:               posted.Get(string(connection.FieldAccessKeyID)),
		SessionCredentialsEnabled: posted.Get(string(connection.FieldSessionCredentials)),
		StsEndpoint:               posted.Get(string(connection.FieldStsEndpoint)),
		IAMRoleARN:                posted.Get(string(connection.FieldIAMRoleARN)),
		IAMRoleSessionName:        posted.Get(string(connection.FieldIAMRoleSessionName)),
		UpstreamConnectionID:      posted.Get(string(connection.FieldAwsConnectionID)),
		AllowedInBuilds:           posted.Get(string(connection.FieldAllowedInBuilds)) == "true",
		AllowedInSubProjects:      posted.Get(string(connection.FieldAllowedInProjects)) == "true",
	}

	secret, secretErr := s.resolveSecret(projectID, id, posted.Get(string(connection.FieldSecretAccessKey)))
	conn.SecretAccessKey = secret

	errs := s.store.Validate(conn, isCreate)
	if secretErr != nil {
		if errs == nil {
			errs = map[string]string{}
		}
		errs["awsSecretAccessKey"] = "The secret access key could not be decrypted"
	}
	if conn.CredentialsType == string(connection.CredentialsDefaultProvider) && !s.defaultChainEnabled {
		if errs == nil {
			errs = map[string]string{}
		}
		errs["awsCredentialsType"] = "The default credential provider chain is disabled on this server"
	}
	if errs != nil {
		return s.xmlErrors(c, errs)
	}

	s.store.Put(conn)
	return c.XMLBlob(http.StatusOK, []byte(`<response status="saved"/>`))
}

func (s *Server) handleTest(c *echo.Context) error {
	if err := c.Request().ParseForm(); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	posted := c.Request().PostForm
	projectID := posted.Get("projectId")
	connectionID := posted.Get(string(connection.FieldConnectionID))
	if connectionID == "" {
		connectionID = posted.Get(string(connection.FieldID))
	}

	creds := Credentials{
		Region:      posted.Get(string(connection.FieldRegion)),
		StsEndpoint: posted.Get(string(connection.FieldStsEndpoint)),
	}
	switch connection.CredentialsType(posted.Get(string(connection.FieldCredentialsType))) {
	case connection.CredentialsAccessKeys:
		secret, err := s.resolveSecret(projectID, connectionID, posted.Get(string(connection.FieldSecretAccessKey)))
		if err != nil {
			return s.xmlErrors(c, map[string]string{"awsSecretAccessKey": "The secret access key could not be decrypted"})
		}
		creds.AccessKeyID = posted.Get(string(connection.FieldAccessKeyID))
		creds.SecretAccessKey = secret
	case connection.CredentialsIAMRole:
		upstreamID := posted.Get(string(connection.FieldAwsConnectionID))
		upstream, ok := s.store.Get(projectID, upstreamID)
		if !ok {
			return s.xmlErrors(c, map[string]string{"awsConnectionId": fmt.Sprintf("AWS connection %q does not exist", upstreamID)})
		}
		creds.AccessKeyID = upstream.AccessKeyID
		creds.SecretAccessKey = upstream.SecretAccessKey
		creds.RoleARN = posted.Get(string(connection.FieldIAMRoleARN))
		creds.RoleSessionName = posted.Get(string(connection.FieldIAMRoleSessionName))
		creds.ExternalID = s.store.ExternalID(projectID, connectionID)
	case connection.CredentialsDefaultProvider:
		if !s.defaultChainEnabled {
			return s.xmlErrors(c, map[string]string{"awsCredentialsType": "The default credential provider chain is disabled on this server"})
		}
		creds.UseDefaultChain = true
	default:
		return s.xmlErrors(c, map[string]string{"awsCredentialsType": "Unknown credentials type"})
	}

	identity, err := s.prober.CallerIdentity(c.Request().Context(), creds)
	if err != nil {
		return s.xmlErrors(c, map[string]string{connection.ErrorKeyUnexpected: err.Error()})
	}
	doc := fmt.Sprintf(`<response><callerIdentity accountId="%s" userId="%s" userArn="%s"/></response>`,
		xmlAttr(identity.AccountID), xmlAttr(identity.UserID), xmlAttr(identity.UserARN))
	return c.XMLBlob(http.StatusOK, []byte(doc))
}

func (s *Server) handleAvailableConnections(c *echo.Context) error {
	projectID := c.QueryParam("projectId")
	tuples := make([][]string, 0)
	for _, conn := range s.store.List(projectID) {
		tuples = append(tuples, []string{
			conn.ID,
			conn.DisplayName,
			connection.ProviderKey,
			conn.CredentialsType,
		})
	}
	return c.JSON(http.StatusOK, tuples)
}

func (s *Server) handleSupportedProviders(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		connection.ProviderKey: connection.ProviderName,
	})
}

func (s *Server) handleGenerateID(c *echo.Context) error {
	name := c.FormValue("name")
	parentID := c.FormValue("parentId")
	return c.String(http.StatusOK, s.store.GenerateID(parentID, name))
}

func (s *Server) handleExternalID(c *echo.Context) error {
	projectID := c.QueryParam("projectId")
	connectionID := c.QueryParam("connectionId")
	if connectionID == "" {
		return c.String(http.StatusBadRequest, "connectionId is required")
	}
	return c.JSON(http.StatusOK, s.store.ExternalID(projectID, connectionID))
}

func (s *Server) handleRotateKeys(c *echo.Context) error {
	projectID := c.FormValue("projectId")
	connectionID := c.FormValue("connectionId")

	fail := func(message string) error {
		return c.JSON(http.StatusOK, map[string]any{
			"errors": []map[string]string{{"message": message}},
		})
	}

	conn, ok := s.store.Get(projectID, connectionID)
	if !ok {
		return fail(fmt.Sprintf("connection %q not found", connectionID))
	}
	if connection.CredentialsType(conn.CredentialsType) != connection.CredentialsAccessKeys {
		return fail("only access-key connections can rotate keys")
	}

	keyID, secret, err := s.rotator.Rotate(c.Request().Context(), Credentials{
		Region:          conn.Region,
		AccessKeyID:     conn.AccessKeyID,
		SecretAccessKey: conn.SecretAccessKey,
	})
	if err != nil {
		return fail(err.Error())
	}
	s.store.UpdateKeys(projectID, connectionID, keyID, secret)
	return c.JSON(http.StatusOK, map[string]any{})
}

func (s *Server) handleTelemetryProps(c *echo.Context) error {
	projectID := c.QueryParam("projectId")
	settings := s.store.Telemetry(projectID)
	return c.JSON(http.StatusOK, map[string]any{
		"eventLogData": settings.EventLog,
		"metricsData":  settings.Metrics,
		"tracesData":   settings.Traces,
		"urlData": telemetry.URLs{
			TestTracesURL:   telemetryTestPath,
			FormEndpointURL: telemetrySavePath,
		},
		"projectId":  projectID,
		"isReadOnly": false,
	})
}

func (s *Server) handleTelemetrySave(c *echo.Context) error {
	var settings telemetry.Settings
	if err := json.NewDecoder(c.Request().Body).Decode(&settings); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	errs := map[string]string{}
	if settings.EventLog.Enabled && settings.EventLog.ArtifactStorageDays <= 0 {
		errs["telemetry.events.artifacts.storage.days"] = "Retention must be at least one day"
	}
	if settings.Traces.Enabled && strings.TrimSpace(settings.Traces.EndpointURL) == "" {
		errs["telemetry.traces.endpoint.url"] = "An endpoint URL is required when trace export is enabled"
	}
	if len(errs) > 0 {
		return s.xmlErrors(c, errs)
	}
	s.store.PutTelemetry(settings.ProjectID, settings)
	return c.XMLBlob(http.StatusOK, []byte(`<response status="saved"/>`))
}

func (s *Server) handleTelemetryTest(c *echo.Context) error {
	var traces telemetry.TracesSettings
	if err := json.NewDecoder(c.Request().Body).Decode(&traces); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(traces.EndpointURL) == "" {
		return s.xmlErrors(c, map[string]string{connection.ErrorKeyUnexpected: "no endpoint URL to probe"})
	}
	if !strings.HasPrefix(traces.EndpointURL, "http://") && !strings.HasPrefix(traces.EndpointURL, "https://") {
		return s.xmlErrors(c, map[string]string{connection.ErrorKeyUnexpected: "the endpoint URL is not an HTTP URL"})
	}
	return c.XMLBlob(http.StatusOK, []byte(`<response status="ok"/>`))
}

// storedSecretToken is the opaque value the edit page carries in place of
// the stored secret. Resending it verbatim means the secret is unchanged.
func (s *Server) storedSecretToken(conn Connection) string {
	if conn.SecretAccessKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(conn.ProjectID + "\x00" + conn.ID + "\x00" + conn.SecretAccessKey))
	return "stored:" + hex.EncodeToString(sum[:16])
}

// resolveSecret turns the posted secret parameter back into plaintext: the
// stored token keeps the previous secret, anything else must decrypt.
func (s *Server) resolveSecret(projectID, connectionID, posted string) (string, error) {
	if posted == "" {
		return "", nil
	}
	if strings.HasPrefix(posted, "stored:") {
		conn, ok := s.store.Get(projectID, connectionID)
		if ok && posted == s.storedSecretToken(conn) {
			return conn.SecretAccessKey, nil
		}
		return "", fmt.Errorf("stale stored-secret token")
	}
	return s.store.DecryptSecret(posted)
}

type xmlError struct {
	ID      string `xml:"id,attr"`
	Message string `xml:",chardata"`
}

type xmlErrorsDoc struct {
	XMLName xml.Name   `xml:"errors"`
	Errors  []xmlError `xml:"error"`
}

func (s *Server) xmlErrors(c *echo.Context, errs map[string]string) error {
	keys := make([]string, 0, len(errs))
	for key := range errs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	doc := xmlErrorsDoc{}
	for _, key := range keys {
		doc.Errors = append(doc.Errors, xmlError{ID: key, Message: errs[key]})
	}
	body, err := xml.Marshal(doc)
	if err != nil {
		return err
	}
	return c.XMLBlob(http.StatusOK, body)
}

func xmlAttr(v string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(v))
	return b.String()
}

func firstNonEmptyValue(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
