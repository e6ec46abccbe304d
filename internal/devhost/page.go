package devhost

import (
	"fmt"
	"strings"

	"github.com/buildhive/aws-connections/internal/connection"
)

// renderConnectionPage produces the edit-page fragment the panel scrapes.
// The literals use the host's relaxed notation: bare keys, single-quoted
// strings, trailing commas and boolean comparison artifacts.
func renderConnectionPage(cfg connection.Config, regions connection.RegionCatalog) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><title>AWS Connection</title></head><body>\n")
	b.WriteString("<div id=\"aws-connection-root\"></div>\n<script>\n")

	b.WriteString("const config = {\n")
	writeStr(&b, "projectId", cfg.ProjectID)
	writeStr(&b, "connectionId", cfg.ConnectionID)
	writeStr(&b, "displayName", cfg.DisplayName)
	writeStr(&b, "region", cfg.Region)
	writeStr(&b, "defaultRegion", "us-east-1")
	writeStr(&b, "credentialsType", cfg.CredentialsType)
	writeStr(&b, "accessKeyId", cfg.AccessKeyID)
	writeStr(&b, "secretAccessKey", cfg.SecretAccessKey)
	writeStr(&b, "sessionCredentialsEnabled", cfg.SessionCredentialsEnabled)
	writeStr(&b, "stsEndpoint", cfg.StsEndpoint)
	writeStr(&b, "iamRoleArn", cfg.IAMRoleARN)
	writeStr(&b, "iamRoleSessionName", cfg.IAMRoleSessionName)
	writeStr(&b, "awsConnectionId", cfg.AwsConnectionID)
	writeBool(&b, "allowedInBuildsValue", cfg.AllowedInBuilds)
	writeBool(&b, "allowedInSubProjectsValue", cfg.AllowedInSubProjects)
	writeStr(&b, "publicKey", cfg.PublicKey)
	writeStr(&b, "connectionsUrl", cfg.ConnectionsURL)
	writeStr(&b, "testConnectionUrl", cfg.TestConnectionURL)
	writeStr(&b, "supportedProvidersUrl", cfg.SupportedProvidersURL)
	writeStr(&b, "availableAwsConnectionsControllerUrl", cfg.AvailableConnectionsURL)
	writeStr(&b, "availableAwsConnectionsControllerResource", cfg.AvailableConnectionsRes)
	writeStr(&b, "rotateKeyControllerUrl", cfg.RotateKeyURL)
	writeStr(&b, "externalIdsControllerUrl", cfg.ExternalIDsURL)
	writeStr(&b, "externalIdsConnectionParam", cfg.ExternalIDsConnectionParam)
	writeBool(&b, "isDefaultCredProviderEnabled", cfg.DefaultCredProviderEnabled)
	writeBool(&b, "disableTypeSelection", cfg.DisableTypeSelection)
	b.WriteString("};\n")

	b.WriteString("const allRegions = {\n")
	writeStr(&b, "allRegionKeys", regions.Keys)
	writeStr(&b, "allRegionValues", regions.Labels)
	b.WriteString("};\n")

	b.WriteString("</script>\n</body></html>\n")
	return b.String()
}

func writeStr(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "\t%s: '%s',\n", key, jsEscape(value))
}

// writeBool emits the host's boolean artifact: a string compared against
// 'true' instead of a bare literal.
func writeBool(b *strings.Builder, key string, value bool) {
	fmt.Fprintf(b, "\t%s: '%t' === 'true',\n", key, value)
}

func jsEscape(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '<':
			// Keeps a literal </script> inside a value from closing the tag.
			b.WriteString(`<`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
