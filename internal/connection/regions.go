package connection

import (
	"fmt"
	"strings"
)

// Region lists travel as a single comma-joined string. A literal comma
// inside an entry is escaped as '#'; surrounding brackets are tolerated and
// stripped.

// SplitList decodes a delimiter-encoded list into its entries.
func SplitList(serialized string) []string {
	serialized = strings.NewReplacer("[", "", "]", "").Replace(serialized)
	if serialized == "" {
		return nil
	}
	parts := strings.Split(serialized, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.ReplaceAll(strings.TrimSpace(p), "#", ","))
	}
	return out
}

// JoinList encodes entries back into the delimiter-encoded form. It is the
// inverse of SplitList for entries without leading or trailing whitespace.
func JoinList(entries []string) string {
	if len(entries) == 0 {
		return ""
	}
	escaped := make([]string, 0, len(entries))
	for _, e := range entries {
		escaped = append(escaped, strings.ReplaceAll(strings.TrimSpace(e), ",", "#"))
	}
	return strings.Join(escaped, ",")
}

// RegionOptions pairs the catalog's parallel key and label lists into
// selector options. A missing label falls back to the key.
func RegionOptions(catalog RegionCatalog) []Option {
	keys := SplitList(catalog.Keys)
	labels := SplitList(catalog.Labels)
	out := make([]Option, 0, len(keys))
	for i, key := range keys {
		label := key
		if i < len(labels) {
			label = labels[i]
		}
		out = append(out, Option{Key: key, Label: label})
	}
	return out
}

// StsEndpointForRegion derives the default regional STS endpoint. China
// regions live under the .com.cn partition.
func StsEndpointForRegion(region string) string {
	if strings.HasPrefix(region, "cn") {
		return fmt.Sprintf("https://sts.%s.amazonaws.com.cn", region)
	}
	return fmt.Sprintf("https://sts.%s.amazonaws.com", region)
}
