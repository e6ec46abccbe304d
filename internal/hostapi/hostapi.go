// Package hostapi is the client for the host server's connection endpoints:
// saving and testing connections, listing selector data, generating ids,
// looking up external ids and rotating access keys. Every operation is a
// single request; failures are reported, never retried.
package hostapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/buildhive/aws-connections/internal/connection"
	"github.com/buildhive/aws-connections/internal/metrics"
)

const (
	// TestConnectionPath is the host's fixed test-connection endpoint.
	TestConnectionPath = "/repo/aws-test-connection.html"
	// GenerateIDPath is the host's id-generation endpoint, relative to the
	// admin page the panel is embedded into.
	GenerateIDPath = "generateId.html"
	// ConnectionPagePath serves the edit-page fragment with the embedded
	// configuration literals.
	ConnectionPagePath = "/admin/oauth/awsConnection.html"

	defaultTimeout   = 60 * time.Second
	maxErrorBodySize = 1 << 20 // 1 MiB
)

// ErrAPI is the sentinel wrapped by every APIError.
var ErrAPI = errors.New("host api error")

// APIError reports a non-success response from the host.
type APIError struct {
	StatusCode int
	Status     string
	Summary    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	status := strings.TrimSpace(e.Status)
	summary := strings.TrimSpace(e.Summary)
	if status != "" && summary != "" {
		return fmt.Sprintf("host api error: %s: %s", status, summary)
	}
	if status != "" {
		return fmt.Sprintf("host api error: %s", status)
	}
	if summary != "" {
		return fmt.Sprintf("host api error: %s", summary)
	}
	return "host api error"
}

func (e *APIError) Unwrap() error {
	return ErrAPI
}

// Options configures a Client.
type Options struct {
	// BaseURL is the host server root; relative endpoint paths resolve
	// against it.
	BaseURL string
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to one host server.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient builds a Client for the host at opts.BaseURL.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
	}
}

// AvailableConnection is one selectable upstream AWS connection, as listed
// by the available-connections endpoint.
type AvailableConnection struct {
	Key     string
	Label   string
	TypeTag string
}

// SaveConnection posts the serialized form to the save endpoint and returns
// the raw XML response document for the interpreter.
func (c *Client) SaveConnection(ctx context.Context, saveURL string, params connection.RequestParams) ([]byte, error) {
	return c.postForm(ctx, saveURL, formValues(params))
}

// TestConnection posts the serialized form to the test endpoint without
// persisting anything and returns the raw XML response document.
func (c *Client) TestConnection(ctx context.Context, testURL string, params connection.RequestParams) ([]byte, error) {
	if strings.TrimSpace(testURL) == "" {
		testURL = TestConnectionPath
	}
	return c.postForm(ctx, testURL, formValues(params))
}

// AvailableConnections lists the upstream AWS connections usable by the
// IAM-role sub-form. filter, when non-nil, keeps only entries whose type tag
// it accepts.
func (c *Client) AvailableConnections(ctx context.Context, listURL, projectID, resource string, filter func(typeTag string) bool) ([]AvailableConnection, error) {
	query := url.Values{}
	query.Set("projectId", projectID)
	query.Set("resource", resource)

	body, err := c.postForm(ctx, listURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var tuples [][]string
	if err := json.Unmarshal(body, &tuples); err != nil {
		return nil, fmt.Errorf("decode available connections: %w", err)
	}

	out := make([]AvailableConnection, 0, len(tuples))
	for _, tuple := range tuples {
		if len(tuple) < 2 {
			continue
		}
		conn := AvailableConnection{Key: tuple[0], Label: tuple[1]}
		if len(tuple) > 3 {
			conn.TypeTag = tuple[3]
		}
		if filter != nil && !filter(conn.TypeTag) {
			continue
		}
		out = append(out, conn)
	}
	return out, nil
}

// SupportedProviders fetches the provider key to display label mapping and
// returns it as options sorted by label.
func (c *Client) SupportedProviders(ctx context.Context, providersURL, projectID string) ([]connection.Option, error) {
	query := url.Values{}
	query.Set("projectId", projectID)

	body, err := c.get(ctx, providersURL+"?"+query.Encode())
	if err != nil {
		return nil, err
	}
	var providers map[string]string
	if err := json.Unmarshal(body, &providers); err != nil {
		return nil, fmt.Errorf("decode supported providers: %w", err)
	}

	out := make([]connection.Option, 0, len(providers))
	for key, label := range providers {
		out = append(out, connection.Option{Key: key, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

// GenerateID derives a connection id candidate from a display name.
func (c *Client) GenerateID(ctx context.Context, displayName, projectID string) (string, error) {
	form := url.Values{}
	form.Set("object", "awsConnection")
	form.Set("name", displayName)
	form.Set("parentId", projectID)

	body, err := c.postForm(ctx, GenerateIDPath, form)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// ExternalID fetches the role-trust external id for a connection. The name
// of the connection-identifying parameter is dictated by the host.
func (c *Client) ExternalID(ctx context.Context, externalIDURL, projectID, connectionParam, connectionID string) (string, error) {
	if connectionParam == "" {
		connectionParam = "connectionId"
	}
	query := url.Values{}
	query.Set("projectId", projectID)
	query.Set(connectionParam, connectionID)

	body, err := c.postForm(ctx, externalIDURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	var externalID string
	if err := json.Unmarshal(body, &externalID); err != nil {
		return "", fmt.Errorf("decode external id: %w", err)
	}
	return externalID, nil
}

type rotationResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ErrRotationFailed is the sentinel wrapped by RotationError.
var ErrRotationFailed = errors.New("key rotation failed")

// RotationError carries the host-reported rotation failure message.
type RotationError struct {
	Message string
}

func (e *RotationError) Error() string {
	return fmt.Sprintf("key rotation failed: %s", e.Message)
}

func (e *RotationError) Unwrap() error {
	return ErrRotationFailed
}

// RotateKeys asks the host to rotate the connection's access key pair. A
// host-side failure comes back as a RotationError; the previous keys stay
// valid in that case.
func (c *Client) RotateKeys(ctx context.Context, rotateURL, connectionID, projectID string) error {
	form := url.Values{}
	form.Set("connectionId", connectionID)
	form.Set("projectId", projectID)

	body, err := c.postForm(ctx, rotateURL, form)
	if err != nil {
		return err
	}
	var decoded rotationResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("decode rotation response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return &RotationError{Message: decoded.Errors[0].Message}
	}
	return nil
}

// LoadConnection fetches the edit-page fragment for an existing connection
// and reconstructs its configuration from the embedded literals.
func (c *Client) LoadConnection(ctx context.Context, projectID, connectionID string) (connection.Config, error) {
	query := url.Values{}
	query.Set("projectId", projectID)
	query.Set("connectionId", connectionID)

	body, err := c.get(ctx, ConnectionPagePath+"?"+query.Encode())
	if err != nil {
		return connection.Config{}, err
	}
	cfg, err := ParseEmbeddedConfig(body)
	if err != nil {
		metrics.PageConfigParseFailuresTotal.Inc()
		return connection.Config{}, err
	}
	return cfg, nil
}

// GetJSON fetches a JSON document into out.
func (c *Client) GetJSON(ctx context.Context, target string, out any) error {
	body, err := c.get(ctx, target)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response payload: %w", err)
	}
	return nil
}

// PostJSON posts a JSON payload and returns the raw response body. The
// telemetry form submits its settings this way.
func (c *Client) PostJSON(ctx context.Context, target string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(target), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, target string, form url.Values) ([]byte, error) {
	var body io.Reader
	encoded := ""
	if form != nil {
		encoded = form.Encode()
	}
	body = strings.NewReader(encoded)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(target), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(target), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Summary:    strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}

func (c *Client) resolve(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	return c.baseURL + "/" + strings.TrimLeft(target, "/")
}

// formValues turns serialized request parameters into a form body. A nil
// parameter is sent as a present-but-empty value, which the host treats as
// an instruction to clear the stored field.
func formValues(params connection.RequestParams) url.Values {
	form := url.Values{}
	for key, value := range params {
		if value == nil {
			form.Set(key, "")
			continue
		}
		form.Set(key, *value)
	}
	return form
}
