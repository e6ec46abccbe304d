package devhost

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
	"github.com/buildhive/aws-connections/internal/connection"
)

const awsCallTimeout = 30 * time.Second

// Credentials is the resolved credential request for a probe. Static keys
// and the default chain are mutually exclusive; a role ARN means the base
// credentials assume that role first.
type Credentials struct {
	Region      string
	StsEndpoint string

	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	UseDefaultChain bool

	RoleARN         string
	RoleSessionName string
	ExternalID      string
}

// Prober resolves credentials to a caller identity.
type Prober interface {
	CallerIdentity(ctx context.Context, creds Credentials) (connection.CallerIdentity, error)
}

// Rotator replaces an access key pair with a fresh one.
type Rotator interface {
	Rotate(ctx context.Context, creds Credentials) (accessKeyID, secretAccessKey string, err error)
}

type stsAPI interface {
	GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
	AssumeRole(context.Context, *sts.AssumeRoleInput, ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

type iamAPI interface {
	CreateAccessKey(context.Context, *iam.CreateAccessKeyInput, ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error)
	DeleteAccessKey(context.Context, *iam.DeleteAccessKeyInput, ...func(*iam.Options)) (*iam.DeleteAccessKeyOutput, error)
}

// STSProber calls the real STS GetCallerIdentity with the resolved
// credentials.
type STSProber struct {
	// newSTS overrides client construction in tests.
	newSTS func(cfg aws.Config, endpoint string) stsAPI
}

func (p *STSProber) CallerIdentity(ctx context.Context, creds Credentials) (connection.CallerIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, awsCallTimeout)
	defer cancel()

	cfg, err := loadAwsConfig(ctx, creds)
	if err != nil {
		return connection.CallerIdentity{}, err
	}
	client := p.stsClient(cfg, creds.StsEndpoint)

	if creds.RoleARN != "" {
		sessionName := creds.RoleSessionName
		if sessionName == "" {
			sessionName = connection.DefaultSessionName
		}
		input := &sts.AssumeRoleInput{
			RoleArn:         aws.String(creds.RoleARN),
			RoleSessionName: aws.String(sessionName),
		}
		if creds.ExternalID != "" {
			input.ExternalId = aws.String(creds.ExternalID)
		}
		assumed, err := client.AssumeRole(ctx, input)
		if err != nil {
			return connection.CallerIdentity{}, fmt.Errorf("assume role: %w", err)
		}
		assumedCfg := cfg.Copy()
		assumedCfg.Credentials = credentials.NewStaticCredentialsProvider(
			aws.ToString(assumed.Credentials.AccessKeyId),
			aws.ToString(assumed.Credentials.SecretAccessKey),
			aws.ToString(assumed.Credentials.SessionToken),
		)
		client = p.stsClient(assumedCfg, creds.StsEndpoint)
	}

	identity, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return connection.CallerIdentity{}, fmt.Errorf("get caller identity: %w", err)
	}
	return connection.CallerIdentity{
		AccountID: aws.ToString(identity.Account),
		UserID:    aws.ToString(identity.UserId),
		UserARN:   aws.ToString(identity.Arn),
	}, nil
}

func (p *STSProber) stsClient(cfg aws.Config, endpoint string) stsAPI {
	if p.newSTS != nil {
		return p.newSTS(cfg, endpoint)
	}
	return sts.NewFromConfig(cfg, func(o *sts.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// IAMRotator rotates access keys through the IAM API using the connection's
// own credentials: create the replacement first, delete the old key only
// after the new pair is stored.
type IAMRotator struct {
	newIAM func(cfg aws.Config) iamAPI
}

func (r *IAMRotator) Rotate(ctx context.Context, creds Credentials) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, awsCallTimeout)
	defer cancel()

	cfg, err := loadAwsConfig(ctx, creds)
	if err != nil {
		return "", "", err
	}
	client := r.iamClient(cfg)

	created, err := client.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{})
	if err != nil {
		return "", "", fmt.Errorf("create access key: %w", err)
	}
	newKeyID := aws.ToString(created.AccessKey.AccessKeyId)
	newSecret := aws.ToString(created.AccessKey.SecretAccessKey)

	if _, err := client.DeleteAccessKey(ctx, &iam.DeleteAccessKeyInput{
		AccessKeyId: aws.String(creds.AccessKeyID),
	}); err != nil {
		// The new pair is live; report the leak rather than losing it.
		return newKeyID, newSecret, fmt.Errorf("delete previous access key: %w", err)
	}
	return newKeyID, newSecret, nil
}

func (r *IAMRotator) iamClient(cfg aws.Config) iamAPI {
	if r.newIAM != nil {
		return r.newIAM(cfg)
	}
	return iam.NewFromConfig(cfg)
}

func loadAwsConfig(ctx context.Context, creds Credentials) (aws.Config, error) {
	region := strings.TrimSpace(creds.Region)
	if region == "" {
		return aws.Config{}, errors.New("aws region is required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		// A buildable client keeps AWS_CA_BUNDLE and other transport
		// settings working.
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(awsCallTimeout)),
	}
	if !creds.UseDefaultChain {
		if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
			return aws.Config{}, errors.New("access key credentials are required")
		}
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID,
			creds.SecretAccessKey,
			creds.SessionToken,
		)))
	}
	return awsconfig.LoadDefaultConfig(ctx, loadOpts...)
}

// LocalProber fabricates identities without network access. The account id
// is derived from the access key so the same keys always resolve to the
// same identity.
type LocalProber struct{}

func (LocalProber) CallerIdentity(_ context.Context, creds Credentials) (connection.CallerIdentity, error) {
	seed := creds.AccessKeyID
	if creds.UseDefaultChain {
		seed = "default-chain"
	}
	if seed == "" {
		return connection.CallerIdentity{}, errors.New("no credentials to resolve")
	}
	sum := sha256.Sum256([]byte(seed))
	accountID := fmt.Sprintf("%012d", bigEndian48(sum[:6])%1_000_000_000_000)
	userID := "AIDA" + strings.ToUpper(hex.EncodeToString(sum[6:14]))
	name := "local"
	if creds.RoleARN != "" {
		name = creds.RoleARN[strings.LastIndexByte(creds.RoleARN, '/')+1:]
	}
	return connection.CallerIdentity{
		AccountID: accountID,
		UserID:    userID,
		UserARN:   fmt.Sprintf("arn:aws:iam::%s:user/%s", accountID, name),
	}, nil
}

// LocalRotator mints fake key pairs, for running the rotation flow without
// touching IAM.
type LocalRotator struct{}

func (LocalRotator) Rotate(_ context.Context, creds Credentials) (string, string, error) {
	if creds.AccessKeyID == "" {
		return "", "", errors.New("no access key to rotate")
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "AKIA" + suffix[:16], strings.ToLower(suffix), nil
}

func bigEndian48(b []byte) uint64 {
	var v uint64
	for _, octet := range b {
		v = v<<8 | uint64(octet)
	}
	return v
}
