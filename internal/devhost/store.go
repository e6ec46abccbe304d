// Package devhost is an in-memory stand-in for the host server the panel
// talks to. It implements the connection endpoints for real: secrets arrive
// encrypted with the store's RSA key, saves validate like the host does, and
// the test and rotation flows can run against live AWS or a local fake.
package devhost

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"github.com/buildhive/aws-connections/internal/connection"
	"github.com/buildhive/aws-connections/internal/secure"
	"github.com/buildhive/aws-connections/internal/telemetry"
)

// Connection is one stored AWS connection. The secret is kept in plaintext;
// the store is a development tool, not a credential vault.
type Connection struct {
	ID              string
	ProjectID       string
	DisplayName     string
	Region          string
	CredentialsType string

	AccessKeyID               string
	SecretAccessKey           string
	SessionCredentialsEnabled string
	StsEndpoint               string

	IAMRoleARN           string
	IAMRoleSessionName   string
	UpstreamConnectionID string

	AllowedInBuilds      bool
	AllowedInSubProjects bool
}

// Store holds projects, their connections and telemetry settings. The zero
// value is not usable; NewStore generates the RSA keypair.
type Store struct {
	key *rsa.PrivateKey

	mu        sync.Mutex
	projects  map[string]map[string]*Connection
	telemetry map[string]telemetry.Settings
}

// NewStore builds an empty store with a fresh 2048-bit keypair.
func NewStore() (*Store, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate host keypair: %w", err)
	}
	return &Store{
		key:       key,
		projects:  make(map[string]map[string]*Connection),
		telemetry: make(map[string]telemetry.Settings),
	}, nil
}

// PublicKey returns the wire-format public key embedded into the edit page.
func (s *Store) PublicKey() string {
	return secure.PublicKeyString(&s.key.PublicKey)
}

// DecryptSecret recovers a submitted secret.
func (s *Store) DecryptSecret(ciphertext string) (string, error) {
	return secure.Decrypt(ciphertext, s.key)
}

// Get returns a copy of a stored connection.
func (s *Store) Get(projectID, id string) (Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.projects[projectID][id]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

// List returns the project's connections ordered by id.
func (s *Store) List(projectID string) []Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns := s.projects[projectID]
	out := make([]Connection, 0, len(conns))
	for _, conn := range conns {
		out = append(out, *conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Put stores a connection, replacing any previous record with the same id.
func (s *Store) Put(conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projects[conn.ProjectID] == nil {
		s.projects[conn.ProjectID] = make(map[string]*Connection)
	}
	stored := conn
	s.projects[conn.ProjectID][conn.ID] = &stored
}

// UpdateKeys swaps the access key pair of a stored connection.
func (s *Store) UpdateKeys(projectID, id, accessKeyID, secretAccessKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.projects[projectID][id]
	if !ok {
		return false
	}
	conn.AccessKeyID = accessKeyID
	conn.SecretAccessKey = secretAccessKey
	return true
}

// GenerateID derives a connection id from a display name, unique within the
// project. An empty or fully non-alphanumeric name falls back to a generic
// stem.
func (s *Store) GenerateID(projectID, displayName string) string {
	stem := idStem(displayName)

	s.mu.Lock()
	defer s.mu.Unlock()
	conns := s.projects[projectID]
	if _, taken := conns[stem]; !taken {
		return stem
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", stem, n)
		if _, taken := conns[candidate]; !taken {
			return candidate
		}
	}
}

// ExternalID returns the stable role-trust external id for a connection.
// The same project and connection always map to the same id.
func (s *Store) ExternalID(projectID, connectionID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(projectID+"/"+connectionID)).String()
}

// Telemetry returns the stored telemetry settings for a project, zero if
// the project has none yet.
func (s *Store) Telemetry(projectID string) telemetry.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings := s.telemetry[projectID]
	settings.ProjectID = projectID
	return settings
}

// PutTelemetry stores the telemetry settings for a project.
func (s *Store) PutTelemetry(projectID string, settings telemetry.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings.ProjectID = projectID
	s.telemetry[projectID] = settings
}

func idStem(displayName string) string {
	var b strings.Builder
	upperNext := false
	for _, r := range strings.TrimSpace(displayName) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if upperNext {
				r = unicode.ToUpper(r)
				upperNext = false
			}
			b.WriteRune(r)
		default:
			upperNext = b.Len() > 0
		}
	}
	stem := b.String()
	if stem == "" {
		return "awsConnection"
	}
	if unicode.IsDigit(rune(stem[0])) {
		stem = "awsConnection" + stem
	}
	return stem
}

// Validate checks a connection the way the host does and returns error
// messages keyed by the host's short error ids. A nil map means the record
// is acceptable.
func (s *Store) Validate(conn Connection, isCreate bool) map[string]string {
	errs := map[string]string{}
	if strings.TrimSpace(conn.DisplayName) == "" {
		errs["displayName"] = "The display name must not be empty"
	}
	if strings.TrimSpace(conn.ID) == "" {
		errs["id"] = "The connection id must not be empty"
	} else if !validID(conn.ID) {
		errs["id"] = "The connection id contains unsupported characters"
	} else if isCreate {
		if _, exists := s.Get(conn.ProjectID, conn.ID); exists {
			errs["id"] = fmt.Sprintf("The connection id %q is already in use", conn.ID)
		}
	}
	if strings.TrimSpace(conn.Region) == "" {
		errs["awsRegionName"] = "An AWS region must be selected"
	}

	switch connection.CredentialsType(conn.CredentialsType) {
	case connection.CredentialsAccessKeys:
		if strings.TrimSpace(conn.AccessKeyID) == "" {
			errs["awsAccessKeyId"] = "The access key ID must not be empty"
		}
		if conn.SecretAccessKey == "" {
			errs["awsSecretAccessKey"] = "The secret access key must not be empty"
		}
	case connection.CredentialsIAMRole:
		if strings.TrimSpace(conn.IAMRoleARN) == "" {
			errs["awsIamRoleArn"] = "The IAM role ARN must not be empty"
		} else if !strings.HasPrefix(conn.IAMRoleARN, "arn:") {
			errs["awsIamRoleArn"] = "The IAM role ARN is malformed"
		}
		if strings.TrimSpace(conn.UpstreamConnectionID) == "" {
			errs["awsConnectionId"] = "An AWS connection to assume the role with is required"
		}
	case connection.CredentialsDefaultProvider:
		// Nothing beyond the region; availability is gated elsewhere.
	default:
		errs["awsCredentialsType"] = fmt.Sprintf("Unknown credentials type %q", conn.CredentialsType)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validID(id string) bool {
	for i, r := range id {
		if unicode.IsLetter(r) || r == '_' {
			continue
		}
		if unicode.IsDigit(r) && i > 0 {
			continue
		}
		return false
	}
	return true
}
