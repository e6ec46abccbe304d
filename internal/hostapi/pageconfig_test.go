package hostapi

import (
	"errors"
	"testing"
)

const editPage = `
<div class="connection-edit">
<script type="text/javascript">
  const config = {
    projectId: 'ProjectA',
    connectionId: 'connA',
    displayName: 'Prod account',
    region: 'cn-north-1',
    credentialsType: 'awsAccessKeys',
    accessKeyId: 'AKIAEXAMPLE',
    secretAccessKey: 'stored',
    sessionCredentialsEnabled: 'false',
    isDefaultCredProviderEnabled: 'true' === 'true',
    disableTypeSelection: 'false' === 'true',
    publicKey: 'deadbeef:010001',
    testConnectionUrl: '/repo/aws-test-connection.html',
    rotateKeyControllerUrl: '/admin/rotate.html',
    externalIdsConnectionParam: 'awsConnectionId',
  };
  const allRegions = {
    allRegionKeys: 'us-east-1,cn-north-1',
    allRegionValues: 'US East (N. Virginia),China (Beijing)',
  };
</script>
</div>`

func TestParseEmbeddedConfig(t *testing.T) {
	t.Parallel()

	cfg, err := ParseEmbeddedConfig([]byte(editPage))
	if err != nil {
		t.Fatalf("ParseEmbeddedConfig: %v", err)
	}

	if cfg.ProjectID != "ProjectA" {
		t.Fatalf("projectId got=%q want %q", cfg.ProjectID, "ProjectA")
	}
	if cfg.ConnectionID != "connA" {
		t.Fatalf("connectionId got=%q want %q", cfg.ConnectionID, "connA")
	}
	if cfg.DisplayName != "Prod account" {
		t.Fatalf("displayName got=%q", cfg.DisplayName)
	}
	if cfg.SessionCredentialsEnabled != "false" {
		t.Fatalf("sessionCredentialsEnabled got=%q want %q", cfg.SessionCredentialsEnabled, "false")
	}
	if !cfg.DefaultCredProviderEnabled {
		t.Fatalf("isDefaultCredProviderEnabled should normalize to true")
	}
	if cfg.DisableTypeSelection {
		t.Fatalf("disableTypeSelection should normalize to false")
	}
	if cfg.ExternalIDsConnectionParam != "awsConnectionId" {
		t.Fatalf("externalIdsConnectionParam got=%q", cfg.ExternalIDsConnectionParam)
	}
	if len(cfg.AllRegions.Keys) == 0 {
		t.Fatalf("region catalog not merged: %+v", cfg.AllRegions)
	}
	if cfg.AllRegions.Keys != "us-east-1,cn-north-1" {
		t.Fatalf("region keys got=%q", cfg.AllRegions.Keys)
	}
}

func TestParseEmbeddedConfigMissingLiteral(t *testing.T) {
	t.Parallel()

	_, err := ParseEmbeddedConfig([]byte(`<html><body>no script here</body></html>`))
	if !errors.Is(err, ErrPageConfigNotFound) {
		t.Fatalf("got %v, want ErrPageConfigNotFound", err)
	}
}

func TestParseEmbeddedConfigQuotedValues(t *testing.T) {
	t.Parallel()

	page := `const config = {
		projectId: "P\'s project",
		displayName: 'Braces { inside } string',
		stsEndpoint: 'https://sts.eu-west-1.amazonaws.com',
	};`
	cfg, err := ParseEmbeddedConfig([]byte(page))
	if err != nil {
		t.Fatalf("ParseEmbeddedConfig: %v", err)
	}
	if cfg.DisplayName != "Braces { inside } string" {
		t.Fatalf("displayName got=%q", cfg.DisplayName)
	}
	if cfg.StsEndpoint != "https://sts.eu-west-1.amazonaws.com" {
		t.Fatalf("stsEndpoint got=%q", cfg.StsEndpoint)
	}
}

func TestRelaxedToJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare keys", in: `{a: 'b'}`, want: `{"a": "b"}`},
		{name: "trailing comma", in: `{a: 'b',}`, want: `{"a": "b"}`},
		{name: "booleans kept", in: `{a: true, b: false, c: null}`, want: `{"a": true, "b": false, "c": null}`},
		{name: "escaped single quote", in: `{a: 'it\'s'}`, want: `{"a": "it's"}`},
		{name: "double quote inside single", in: `{a: 'say "hi"'}`, want: `{"a": "say \"hi\""}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := relaxedToJSON(tc.in)
			if err != nil {
				t.Fatalf("relaxedToJSON(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("got=%q want %q", got, tc.want)
			}
		})
	}
}
