package connection

import "fmt"

// Encryptor is the host-supplied secret transform: plaintext plus the
// server's public key in, wire ciphertext out.
type Encryptor interface {
	Encrypt(plaintext, publicKey string) (string, error)
}

// RequestParams is the flat wire representation of a form submission. A nil
// entry is an explicit null telling the save endpoint to clear the stored
// field, as opposed to omitting it.
type RequestParams map[string]*string

// BuildRequestParams serializes the form values for the save and test
// endpoints. The fixed projectId, saveConnection and providerType markers
// are always present. The secret field resends the stored ciphertext when
// the user left the stub untouched and encrypts the new plaintext
// otherwise. Fields belonging to credential-type variants other than the
// selected one are nulled so stale values from a previously selected type
// never reach the persisted record.
func BuildRequestParams(cfg Config, values Values, enc Encryptor) (RequestParams, error) {
	params := RequestParams{
		"projectId":      ptr(cfg.ProjectID),
		"saveConnection": ptr("save"),
		"providerType":   ptr(ProviderKey),
	}

	for name, value := range values {
		if value.IsNull() {
			params[string(name)] = nil
			continue
		}
		if name == FieldSecretAccessKey {
			secret, _ := value.Str()
			if secret == SecretStub {
				params[string(name)] = ptr(cfg.SecretAccessKey)
				continue
			}
			encrypted, err := enc.Encrypt(secret, cfg.PublicKey)
			if err != nil {
				return nil, fmt.Errorf("encrypt secret access key: %w", err)
			}
			params[string(name)] = ptr(encrypted)
			continue
		}
		if s, ok := value.Str(); ok {
			params[string(name)] = ptr(s)
		} else if b, ok := value.Bool(); ok {
			params[string(name)] = ptr(fmt.Sprintf("%t", b))
		} else if opt, ok := value.Option(); ok {
			params[string(name)] = ptr(opt.Key)
		}
	}

	switch credentialsTypeOfParams(params) {
	case CredentialsAccessKeys:
		params[string(FieldIAMRoleARN)] = nil
		params[string(FieldAwsConnectionID)] = nil
	case CredentialsIAMRole:
		params[string(FieldAccessKeyID)] = nil
		params[string(FieldSecretAccessKey)] = nil
	default:
		params[string(FieldAccessKeyID)] = nil
		params[string(FieldSecretAccessKey)] = nil
		params[string(FieldIAMRoleARN)] = nil
		params[string(FieldAwsConnectionID)] = nil
	}

	return params, nil
}

func credentialsTypeOfParams(params RequestParams) CredentialsType {
	if v := params[string(FieldCredentialsType)]; v != nil {
		return CredentialsType(*v)
	}
	return ""
}

func ptr(s string) *string { return &s }
