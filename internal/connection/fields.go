package connection

import "strings"

// SecretStub is the fixed-length placeholder seeded into the secret field
// when a secret already exists host-side. The field renders as populated
// without ever carrying the real value; the serializer recognizes the stub
// and resends the stored ciphertext instead.
const SecretStub = "••••••••••" +
	"••••••••••" +
	"••••••••••" +
	"••••••••••"

// DefaultSessionName is the default IAM role session tag.
const DefaultSessionName = "BuildHive-session"

// InitialValues computes the seed form values for a configuration. Every
// registered field is present; fields without a configured or derivable
// value hold null.
//
// providerType is the option matching the AWS provider from the supported
// providers list, if already fetched; the plain provider name is used until
// then.
func InitialValues(cfg Config, providerType *Option) Values {
	regions := RegionOptions(cfg.AllRegions)

	region := firstNonEmpty(cfg.Region, cfg.DefaultRegion)
	regionValue := Null()
	if opt, ok := findOption(regions, region); ok {
		regionValue = OptionOf(opt)
	} else if len(regions) > 0 {
		regionValue = OptionOf(regions[0])
	}

	credType := Value(OptionOf(CredentialsTypeOptions[0]))
	if opt, ok := findOption(CredentialsTypeOptions, cfg.CredentialsType); ok {
		credType = OptionOf(opt)
	}

	stsEndpoint := cfg.StsEndpoint
	if stsEndpoint == "" {
		stsEndpoint = StsEndpointForRegion(regionValue.Key())
	}

	sessionCreds := true
	if cfg.SessionCredentialsEnabled != "" {
		sessionCreds = cfg.SessionCredentialsEnabled == "true"
	}

	provider := Value(String(ProviderName))
	if providerType != nil {
		provider = OptionOf(*providerType)
	}

	vs := Values{
		FieldProviderType:       provider,
		FieldDisplayName:        String(firstNonEmpty(cfg.DisplayName, ProviderName)),
		FieldFeatureID:          stringOrNull(cfg.FeatureID),
		FieldID:                 stringOrNull(cfg.ID),
		FieldConnectionID:       stringOrNull(cfg.ConnectionID),
		FieldRegion:             regionValue,
		FieldCredentialsType:    credType,
		FieldAccessKeyID:        stringOrNull(cfg.AccessKeyID),
		FieldSecretAccessKey:    Null(),
		FieldSessionCredentials: Bool(sessionCreds),
		FieldStsEndpoint:        String(stsEndpoint),
		FieldIAMRoleARN:         stringOrNull(cfg.IAMRoleARN),
		FieldAwsConnectionID:    stringOrNull(cfg.AwsConnectionID),
		FieldIAMRoleSessionName: String(firstNonEmpty(cfg.IAMRoleSessionName, DefaultSessionName)),
		FieldAllowedInBuilds:    Bool(cfg.AllowedInBuilds),
		FieldAllowedInProjects:  Bool(cfg.AllowedInSubProjects),
	}
	if cfg.SecretAccessKey != "" {
		vs[FieldSecretAccessKey] = String(SecretStub)
	}
	return vs
}

func findOption(opts []Option, key string) (Option, bool) {
	for _, opt := range opts {
		if opt.Key == key {
			return opt, true
		}
	}
	return Option{}, false
}

func stringOrNull(s string) Value {
	if s == "" {
		return Null()
	}
	return String(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
