package ipn

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const maxDecodeDepth = 512

const (
	reasonDepth       = "Maximum stack depth exceeded."
	reasonControlChar = "Unexpected control character found."
	reasonSyntax      = "Syntax error, malformed JSON."
	reasonUTF8        = "Malformed UTF-8 characters, possibly incorrectly encoded."
	reasonUnknown     = "Unknown error."
)

var vendorVariants = []struct {
	variant   string
	canonical string
}{
	{variant: "SigningCertUrl", canonical: "SigningCertURL"},
	{variant: "SubscribeUrl", canonical: "SubscribeURL"},
	{variant: "UnsubscribeUrl", canonical: "UnsubscribeURL"},
}

// KeySpec is one required entry; any of its names satisfies it.
type KeySpec []string

func Key(name string) KeySpec {
	return KeySpec{name}
}

func AnyOf(names ...string) KeySpec {
	return KeySpec(names)
}

func (k KeySpec) String() string {
	return strings.Join(k, "|")
}

// Decode parses a JSON object into a field mapping.
func Decode(raw []byte) (map[string]any, error) {
	if !utf8.Valid(raw) {
		return nil, malformed(reasonUTF8)
	}
	if exceedsDepth(raw, maxDecodeDepth) {
		return nil, malformed(reasonDepth)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, malformed(decodeReason(err))
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, malformed(reasonSyntax)
	}

	fields, ok := value.(map[string]any)
	if !ok {
		return nil, malformed(reasonUnknown)
	}
	return fields, nil
}

// RequireKeys fails with ErrMissingKeys listing every unsatisfied entry.
func RequireKeys(fields map[string]any, specs []KeySpec) error {
	missing := make([]string, 0)
	for _, spec := range specs {
		if !hasAnyKey(fields, spec) {
			missing = append(missing, spec.String())
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingKeys, strings.Join(missing, ", "))
}

// NormalizeVendorVariant renames camelCase URL keys to their canonical form in place.
// A present variant overwrites the canonical key.
func NormalizeVendorVariant(fields map[string]any) map[string]any {
	for _, v := range vendorVariants {
		value, ok := fields[v.variant]
		if !ok || value == nil {
			continue
		}
		fields[v.canonical] = value
		delete(fields, v.variant)
	}
	return fields
}

func hasAnyKey(fields map[string]any, spec KeySpec) bool {
	for _, name := range spec {
		if value, ok := fields[name]; ok && value != nil {
			return true
		}
	}
	return false
}

func malformed(reason string) error {
	return fmt.Errorf("%w. Failed to decode the message: %s", ErrMalformedPayload, reason)
}

func decodeReason(err error) string {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		if strings.Contains(syntaxErr.Error(), "in string literal") {
			return reasonControlChar
		}
		return reasonSyntax
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return reasonSyntax
	}
	return reasonUnknown
}

// exceedsDepth counts container nesting outside string literals.
func exceedsDepth(raw []byte, limit int) bool {
	depth := 0
	inString := false
	escaped := false
	for _, b := range raw {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{', '[':
			depth++
			if depth > limit {
				return true
			}
		case '}', ']':
			depth--
		}
	}
	return false
}

func stringField(fields map[string]any, key string) (string, bool) {
	value, ok := fields[key]
	if !ok || value == nil {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		if v {
			return "1", true
		}
		return "", true
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v), true
		}
		return string(encoded), true
	}
}
