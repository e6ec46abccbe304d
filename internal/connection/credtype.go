package connection

// CredentialsType is the three-way discriminator selecting which credential
// sub-form is meaningful. The raw keys are part of the wire contract.
type CredentialsType string

const (
	CredentialsAccessKeys      CredentialsType = "awsAccessKeys"
	CredentialsIAMRole         CredentialsType = "awsAssumeIamRole"
	CredentialsDefaultProvider CredentialsType = "defaultProvider"
)

// CredentialsTypeOptions is the fixed selector content, in the order the
// host presents it. The first entry doubles as the default for unset
// configurations.
var CredentialsTypeOptions = []Option{
	{Key: string(CredentialsAccessKeys), Label: "Access keys"},
	{Key: string(CredentialsIAMRole), Label: "IAM role"},
	{Key: string(CredentialsDefaultProvider), Label: "Default Credential Provider Chain"},
}

// Known reports whether the tag belongs to the closed set. Callers render
// nothing for unknown tags instead of guessing.
func (t CredentialsType) Known() bool {
	switch t {
	case CredentialsAccessKeys, CredentialsIAMRole, CredentialsDefaultProvider:
		return true
	default:
		return false
	}
}

// CredentialsTypeOf normalizes the credential-type form value to its raw
// key. The value may be the raw key itself or an option wrapping it.
func CredentialsTypeOf(v Value) CredentialsType {
	if opt, ok := v.Option(); ok {
		return CredentialsType(opt.Key)
	}
	s, _ := v.Str()
	return CredentialsType(s)
}
