// Package connection models one AWS connection as edited in the settings
// panel: the configuration payload handed over by the host server, the live
// form values keyed by wire field names, and the transforms between them.
package connection

import "strings"

const (
	// ProviderKey identifies the AWS provider on the wire.
	ProviderKey = "AWS"
	// ProviderName is the display label for the AWS provider.
	ProviderName = "Amazon Web Services (AWS)"
)

// FieldName is the externally visible name of a form field. These names map
// 1:1 onto request parameters of the host's save endpoint and onto the error
// ids the host reports back, so they are part of the wire contract.
type FieldName string

const (
	FieldProviderType       FieldName = "__providerType"
	FieldDisplayName        FieldName = "prop:displayName"
	FieldFeatureID          FieldName = "prop:featureId"
	FieldID                 FieldName = "prop:id"
	FieldConnectionID       FieldName = "connectionId"
	FieldRegion             FieldName = "prop:awsRegionName"
	FieldCredentialsType    FieldName = "prop:awsCredentialsType"
	FieldAccessKeyID        FieldName = "prop:awsAccessKeyId"
	FieldSecretAccessKey    FieldName = "prop:encrypted:secure:awsSecretAccessKey"
	FieldSessionCredentials FieldName = "prop:awsSessionCredentials"
	FieldStsEndpoint        FieldName = "prop:awsStsEndpoint"
	FieldIAMRoleARN         FieldName = "prop:awsIamRoleArn"
	FieldAwsConnectionID    FieldName = "prop:awsConnectionId"
	FieldIAMRoleSessionName FieldName = "prop:awsIamRoleSessionName"
	FieldAllowedInBuilds    FieldName = "prop:forBuilds"
	FieldAllowedInProjects  FieldName = "prop:awsAllowedInSubProjects"
)

// AllFieldNames lists every known field in registry order. Error-key
// resolution matches against this list by suffix.
var AllFieldNames = []FieldName{
	FieldProviderType,
	FieldDisplayName,
	FieldFeatureID,
	FieldID,
	FieldConnectionID,
	FieldRegion,
	FieldCredentialsType,
	FieldAccessKeyID,
	FieldSecretAccessKey,
	FieldSessionCredentials,
	FieldStsEndpoint,
	FieldIAMRoleARN,
	FieldAwsConnectionID,
	FieldIAMRoleSessionName,
	FieldAllowedInBuilds,
	FieldAllowedInProjects,
}

// Option is a key plus display label, the selected entry of a selector
// field. Only the key travels on the wire.
type Option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Mode selects the cosmetic variant of the form.
type Mode int

const (
	// ModeDefault shows the provider-type selector and a "Save" submit.
	ModeDefault Mode = iota
	// ModeEmbedded hides the provider-type selector.
	ModeEmbedded
	// ModeConvert relabels the submit action for converting legacy profiles.
	ModeConvert
)

// SubmitLabel returns the submit button label for the mode.
func (m Mode) SubmitLabel() string {
	if m == ModeConvert {
		return "Convert"
	}
	return "Save"
}

// ShowsProviderSelector reports whether the provider-type selector widget is
// rendered for the mode.
func (m Mode) ShowsProviderSelector() bool {
	return m == ModeDefault
}

// RegionCatalog carries the host's region list as two parallel
// delimiter-encoded strings (keys and display labels).
type RegionCatalog struct {
	Keys   string `json:"allRegionKeys"`
	Labels string `json:"allRegionValues"`
}

// Config is the authoritative record for one AWS connection, produced
// server-side and handed to the panel as its initialization payload. The
// JSON tags match the object literal embedded in the host's edit page.
type Config struct {
	ProjectID    string `json:"projectId"`
	ConnectionID string `json:"connectionId"`
	FeatureID    string `json:"featureId"`
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`

	Region          string `json:"region"`
	DefaultRegion   string `json:"defaultRegion"`
	CredentialsType string `json:"credentialsType"`

	AccessKeyID string `json:"accessKeyId"`
	// SecretAccessKey holds the already-encrypted secret as stored by the
	// host, never the plaintext.
	SecretAccessKey           string `json:"secretAccessKey"`
	SessionCredentialsEnabled string `json:"sessionCredentialsEnabled"`
	StsEndpoint               string `json:"stsEndpoint"`

	IAMRoleARN         string `json:"iamRoleArn"`
	IAMRoleSessionName string `json:"iamRoleSessionName"`
	AwsConnectionID    string `json:"awsConnectionId"`

	BuildStepsFeatureEnabled  bool `json:"buildStepsFeatureEnabled"`
	SubProjectsFeatureEnabled bool `json:"subProjectsFeatureEnabled"`
	AllowedInBuilds           bool `json:"allowedInBuildsValue"`
	AllowedInSubProjects      bool `json:"allowedInSubProjectsValue"`

	// PublicKey is the host's RSA public key used for client-side secret
	// encryption, hex modulus and exponent concatenated.
	PublicKey string `json:"publicKey"`

	ConnectionsURL             string        `json:"connectionsUrl"`
	TestConnectionURL          string        `json:"testConnectionUrl"`
	SupportedProvidersURL      string        `json:"supportedProvidersUrl"`
	AvailableConnectionsURL    string        `json:"availableAwsConnectionsControllerUrl"`
	AvailableConnectionsRes    string        `json:"availableAwsConnectionsControllerResource"`
	RotateKeyURL               string        `json:"rotateKeyControllerUrl"`
	ExternalIDsURL             string        `json:"externalIdsControllerUrl"`
	ExternalIDsConnectionParam string        `json:"externalIdsConnectionParam"`
	AllRegions                 RegionCatalog `json:"allRegions"`

	DefaultCredProviderEnabled bool `json:"isDefaultCredProviderEnabled"`
	DisableTypeSelection       bool `json:"disableTypeSelection"`
}

// IsCreate reports whether the panel edits a brand-new connection. A
// non-empty connection id means the record already exists host-side.
func (c Config) IsCreate() bool {
	return strings.TrimSpace(c.ConnectionID) == ""
}
