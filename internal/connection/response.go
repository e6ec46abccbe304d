package connection

import (
	"encoding/xml"
	"strings"
)

// ErrorKeyUnexpected is what the host reports for failures it cannot tie to
// a field. It always resolves to the connection-id field so the form shows a
// visible error state.
const ErrorKeyUnexpected = "unexpected"

// ResponseErrors maps raw server error ids to human-readable messages.
type ResponseErrors map[string]string

// CallerIdentity is the successful outcome of the test-connection flow.
type CallerIdentity struct {
	AccountID string
	UserID    string
	UserARN   string
}

type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlNode  `xml:",any"`
	Text     string     `xml:",chardata"`
}

func (n xmlNode) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// ParseErrors extracts every error element under an errors root from the
// host's XML response. It returns nil when the document carries no errors,
// and an error only when the document is not XML at all.
func ParseErrors(doc []byte) (ResponseErrors, error) {
	root, err := parseDoc(doc)
	if err != nil {
		return nil, err
	}
	result := ResponseErrors{}
	collectErrors(root, result)
	if len(result) == 0 {
		return nil, nil
	}
	return result, nil
}

// ParseCallerIdentity extracts the callerIdentity element the test endpoint
// answers with. The second return is false when the document has none.
func ParseCallerIdentity(doc []byte) (CallerIdentity, bool) {
	root, err := parseDoc(doc)
	if err != nil {
		return CallerIdentity{}, false
	}
	node, ok := findElement(root, "callerIdentity")
	if !ok {
		return CallerIdentity{}, false
	}
	return CallerIdentity{
		AccountID: node.attr("accountId"),
		UserID:    node.attr("userId"),
		UserARN:   node.attr("userArn"),
	}, true
}

// ResolveErrorField maps a raw server error key onto a known field name by
// suffix match. The "unexpected" key always lands on the connection-id
// field; keys matching nothing are dropped by returning false.
func ResolveErrorField(key string) (FieldName, bool) {
	if key == ErrorKeyUnexpected {
		return FieldConnectionID, true
	}
	for _, name := range AllFieldNames {
		if strings.HasSuffix(string(name), key) {
			return name, true
		}
	}
	return "", false
}

// FieldErrors resolves raw response errors into a per-field error map.
// Unresolvable keys are silently dropped; surfacing a generic alert for
// those is the orchestrator's concern.
func FieldErrors(raw ResponseErrors) map[FieldName]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[FieldName]string)
	for key, msg := range raw {
		if field, ok := ResolveErrorField(key); ok {
			out[field] = msg
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseDoc(doc []byte) (xmlNode, error) {
	var root xmlNode
	if err := xml.Unmarshal(doc, &root); err != nil {
		return xmlNode{}, err
	}
	return root, nil
}

func collectErrors(node xmlNode, into ResponseErrors) {
	if node.XMLName.Local == "errors" {
		for _, child := range node.Children {
			if child.XMLName.Local == "error" {
				into[child.attr("id")] = strings.TrimSpace(child.Text)
			}
		}
	}
	for _, child := range node.Children {
		collectErrors(child, into)
	}
}

func findElement(node xmlNode, name string) (xmlNode, bool) {
	if node.XMLName.Local == name {
		return node, true
	}
	for _, child := range node.Children {
		if found, ok := findElement(child, name); ok {
			return found, true
		}
	}
	return xmlNode{}, false
}
