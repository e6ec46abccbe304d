package hostapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/buildhive/aws-connections/internal/connection"
)

// ErrPageConfigNotFound reports an edit page without the expected embedded
// configuration literal.
var ErrPageConfigNotFound = errors.New("page config literal not found")

var (
	configMarkerRe  = regexp.MustCompile(`const\s+config\s*=\s*\{`)
	regionsMarkerRe = regexp.MustCompile(`const\s+allRegions\s*=\s*\{`)
	// The page template renders booleans as string comparisons.
	boolArtifactRe = regexp.MustCompile(`['"](true|false)['"]\s*===\s*['"]true['"]`)
)

// ParseEmbeddedConfig reconstructs a connection configuration from the
// script literals the host embeds into the edit page. The config literal is
// required; the region catalog literal is optional and merged in when
// present.
func ParseEmbeddedConfig(page []byte) (connection.Config, error) {
	text := string(page)

	configLiteral, err := extractObjectLiteral(text, configMarkerRe)
	if err != nil {
		return connection.Config{}, err
	}
	var cfg connection.Config
	if err := unmarshalRelaxed(configLiteral, &cfg); err != nil {
		return connection.Config{}, fmt.Errorf("parse config literal: %w", err)
	}

	regionsLiteral, err := extractObjectLiteral(text, regionsMarkerRe)
	if err == nil {
		var regions connection.RegionCatalog
		if err := unmarshalRelaxed(regionsLiteral, &regions); err != nil {
			return connection.Config{}, fmt.Errorf("parse region catalog literal: %w", err)
		}
		cfg.AllRegions = regions
	}
	return cfg, nil
}

// extractObjectLiteral finds the marker and returns the balanced {...} that
// starts at its trailing brace.
func extractObjectLiteral(text string, marker *regexp.Regexp) (string, error) {
	loc := marker.FindStringIndex(text)
	if loc == nil {
		return "", ErrPageConfigNotFound
	}
	start := loc[1] - 1 // the opening brace matched by the marker

	depth := 0
	inString := false
	var quote byte
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch ch {
			case '\\':
				i++
			case quote:
				inString = false
			}
			continue
		}
		switch ch {
		case '\'', '"':
			inString = true
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unbalanced literal", ErrPageConfigNotFound)
}

// unmarshalRelaxed decodes a JS object literal: single-quoted strings,
// unquoted keys, trailing commas and rendered boolean comparisons are all
// accepted.
func unmarshalRelaxed(literal string, out any) error {
	normalized := boolArtifactRe.ReplaceAllStringFunc(literal, func(artifact string) string {
		if sub := boolArtifactRe.FindStringSubmatch(artifact); sub != nil && sub[1] == "true" {
			return "true"
		}
		return "false"
	})
	strictJSON, err := relaxedToJSON(normalized)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(strictJSON), out)
}

// relaxedToJSON rewrites a relaxed object literal into strict JSON.
func relaxedToJSON(literal string) (string, error) {
	var b strings.Builder
	b.Grow(len(literal))

	i := 0
	for i < len(literal) {
		ch := literal[i]
		switch {
		case ch == '\'' || ch == '"':
			quoted, rest, err := readQuoted(literal[i:])
			if err != nil {
				return "", err
			}
			b.WriteString(quoted)
			i = len(literal) - len(rest)
		case ch == ',':
			// Drop trailing commas before a closing bracket.
			j := i + 1
			for j < len(literal) && isSpace(literal[j]) {
				j++
			}
			if j < len(literal) && (literal[j] == '}' || literal[j] == ']') {
				i++
				continue
			}
			b.WriteByte(ch)
			i++
		case isIdentStart(ch):
			j := i
			for j < len(literal) && isIdentPart(literal[j]) {
				j++
			}
			word := literal[i:j]
			switch word {
			case "true", "false", "null":
				b.WriteString(word)
			default:
				// A bare identifier in key position gets quoted.
				b.WriteByte('"')
				b.WriteString(word)
				b.WriteByte('"')
			}
			i = j
		default:
			b.WriteByte(ch)
			i++
		}
	}
	return b.String(), nil
}

// readQuoted consumes one quoted string and returns its strict-JSON form
// plus the remaining input.
func readQuoted(s string) (string, string, error) {
	quote := s[0]
	var b strings.Builder
	b.WriteByte('"')
	i := 1
	for i < len(s) {
		ch := s[i]
		switch ch {
		case '\\':
			if i+1 >= len(s) {
				return "", "", fmt.Errorf("truncated escape in string literal")
			}
			next := s[i+1]
			if next == '\'' {
				b.WriteByte('\'')
			} else {
				b.WriteByte('\\')
				b.WriteByte(next)
			}
			i += 2
		case quote:
			b.WriteByte('"')
			return b.String(), s[i+1:], nil
		case '"':
			b.WriteString(`\"`)
			i++
		default:
			b.WriteByte(ch)
			i++
		}
	}
	return "", "", fmt.Errorf("unterminated string literal")
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '$' || unicode.IsLetter(rune(ch))
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}
