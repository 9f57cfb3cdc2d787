/*
Package ticker normalizes A-share security codes and resolves the issuer
organization ids the cninfo search API requires. Resolution is a pure lookup
against a table loaded once at startup.
*/
package ticker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	// ErrInvalidTicker marks input with no extractable 6-digit code.
	ErrInvalidTicker = errors.New("invalid ticker")
	// ErrUnknownTicker marks a code absent from the org-id table.
	ErrUnknownTicker = errors.New("no org id mapping for ticker")
)

var (
	normalizedPattern = regexp.MustCompile(`^\d{6}\.(SZ|SH)$`)
	barePattern       = regexp.MustCompile(`^\d{6}$`)
	digitRunPattern   = regexp.MustCompile(`\d{6}`)
)

// Normalize converts any accepted ticker form to the canonical
// "000001.SZ" / "600000.SH" shape. Bare 6-digit codes infer the exchange
// from the leading digit (6 is Shanghai, 0 and 3 are Shenzhen); free text
// containing a 6-digit run uses the first run. Normalization is idempotent.
func Normalize(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))

	if normalizedPattern.MatchString(code) {
		return code, nil
	}

	if barePattern.MatchString(code) {
		if strings.HasPrefix(code, "6") {
			return code + ".SH", nil
		}
		return code + ".SZ", nil
	}

	if run := digitRunPattern.FindString(code); run != "" {
		return Normalize(run)
	}

	return "", fmt.Errorf("%w: %q (accepted forms: 600000, 000001.SZ, 600000.SH)", ErrInvalidTicker, raw)
}

// QueryParam renders a normalized code in the form some cninfo endpoints
// expect, e.g. "000001.SZ" becomes "sz000001".
func QueryParam(normalized string) string {
	code, suffix, ok := strings.Cut(normalized, ".")
	if !ok {
		return normalized
	}
	return strings.ToLower(suffix) + code
}

// Identity is the exchange-qualified code plus the issuer organization id.
type Identity struct {
	Code   string // 6-digit numeric code
	Suffix string // "SZ" or "SH"
	OrgID  string
}

// Normalized returns the canonical ticker form.
func (i Identity) Normalized() string {
	return i.Code + "." + i.Suffix
}

// Resolver maps codes to organization ids. The table is immutable after
// construction; Resolve never performs I/O.
type Resolver struct {
	orgIDs map[string]string
}

// NewResolver builds a resolver from a code to org-id map. The map is copied.
func NewResolver(orgIDs map[string]string) *Resolver {
	m := make(map[string]string, len(orgIDs))
	for k, v := range orgIDs {
		m[k] = v
	}
	return &Resolver{orgIDs: m}
}

// LoadResolver reads a JSON object of {"000001": "gssz0000001", ...}.
func LoadResolver(path string) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read org-id table %s: %w", path, err)
	}
	var orgIDs map[string]string
	if err := json.Unmarshal(data, &orgIDs); err != nil {
		return nil, fmt.Errorf("failed to parse org-id table %s: %w", path, err)
	}
	return &Resolver{orgIDs: orgIDs}, nil
}

// Len reports the number of mapped codes.
func (r *Resolver) Len() int {
	return len(r.orgIDs)
}

// Resolve returns the identity for a normalized ticker, or ErrUnknownTicker
// when the table has no org id for its code.
func (r *Resolver) Resolve(normalized string) (Identity, error) {
	code, suffix, ok := strings.Cut(normalized, ".")
	if !ok {
		return Identity{}, fmt.Errorf("%w: %q is not in normalized form", ErrInvalidTicker, normalized)
	}
	orgID, found := r.orgIDs[code]
	if !found {
		return Identity{}, fmt.Errorf("%w: %s", ErrUnknownTicker, normalized)
	}
	return Identity{Code: code, Suffix: suffix, OrgID: orgID}, nil
}
