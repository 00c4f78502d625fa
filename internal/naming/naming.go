package naming

import (
	"crypto/sha1" // #nosec G505 -- used for name shortening, not security.
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/juju/errors"
	"golang.org/x/text/encoding/unicode"
)

const (
	MinChars = 2
	MaxChars = 26

	// AssignmentPrefix starts every generated policy assignment name.
	AssignmentPrefix = "ALZ-"
	// AssignmentFieldChars is the per-field length used for assignment names.
	AssignmentFieldChars = 6
	// AssignmentNameLength is the Azure limit for policy assignment names at
	// management group scope.
	AssignmentNameLength = 24
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

var nameReplacer = strings.NewReplacer("/", "_", "+", ".")

// Generate hashes each field to perFieldChars characters and concatenates
// the results in order.
func Generate(fields []string, perFieldChars int) (string, error) {
	if err := ValidateChars(perFieldChars); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, field := range fields {
		h, err := hash(field, perFieldChars)
		if err != nil {
			return "", errors.Trace(err)
		}
		b.WriteString(h)
	}
	return b.String(), nil
}

// Hash returns the chars-long name fragment for a single field.
func Hash(field string, chars int) (string, error) {
	if err := ValidateChars(chars); err != nil {
		return "", err
	}
	return hash(field, chars)
}

// AssignmentName composes the 24 character policy assignment name from the
// assignment scope, its definition id and its display name.
func AssignmentName(scope, definitionID, displayName string) (string, error) {
	if scope == "" {
		return "", errors.NotValidf("empty scope")
	}
	parts := make([]string, 0, 3)
	for _, field := range []string{scope, definitionID, displayName} {
		h, err := hash(field, AssignmentFieldChars)
		if err != nil {
			return "", errors.Trace(err)
		}
		parts = append(parts, h)
	}
	return AssignmentPrefix + strings.Join(parts, "-"), nil
}

// ValidateChars checks that chars is an even number in [MinChars, MaxChars].
func ValidateChars(chars int) error {
	if chars < MinChars || chars > MaxChars || chars%2 != 0 {
		return errors.NotValidf("per field chars %d (must be even, %d-%d)", chars, MinChars, MaxChars)
	}
	return nil
}

func hash(field string, chars int) (string, error) {
	encoded, err := utf16le.NewEncoder().String(field)
	if err != nil {
		return "", errors.Annotatef(err, "encoding %q", field)
	}
	sum := sha1.Sum([]byte(encoded)) // #nosec G401
	digest := hex.EncodeToString(sum[:])

	out := base64.StdEncoding.EncodeToString(hexToBytes(digest[:hexLength(chars)]))
	out = strings.TrimRight(out, "=")
	return nameReplacer.Replace(out), nil
}

// hexLength is the number of hex digits that re-encode to exactly chars
// base64 characters.
func hexLength(chars int) int {
	n := chars * 3 / 2
	if chars%4 != 0 {
		n--
	}
	return n
}

// hexToBytes decodes pairs of hex digits. A trailing odd digit becomes a
// byte holding only that digit's value, which previously generated names
// depend on.
func hexToBytes(s string) []byte {
	out := make([]byte, 0, (len(s)+1)/2)
	for i := 0; i+1 < len(s); i += 2 {
		out = append(out, nibble(s[i])<<4|nibble(s[i+1]))
	}
	if len(s)%2 == 1 {
		out = append(out, nibble(s[len(s)-1]))
	}
	return out
}

func nibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
