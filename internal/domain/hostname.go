package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var hostnameRegexp = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func IsValidHostname(h string) bool {
	return len(h) > 0 && len(h) <= 255 && hostnameRegexp.MatchString(h)
}

// InvalidHostnameError is the warning raised for a declared hostname that
// cannot become a CNAME. The hostname is skipped, never fatal.
type InvalidHostnameError struct {
	Hostname string
	Reason   string
}

func NewInvalidHostnameError(hostname, reason string) *InvalidHostnameError {
	return &InvalidHostnameError{Hostname: hostname, Reason: reason}
}

func (e *InvalidHostnameError) Error() string {
	return fmt.Sprintf("invalid hostname %q: %s", e.Hostname, e.Reason)
}

// SplitHostname splits an FQDN into its subdomain and registrable domain.
// The domain is the last two labels; everything before it is the subdomain.
//
//	"app.example.com"     -> ("app", "example.com")
//	"a.b.example.com"     -> ("a.b", "example.com")
//	"example.com"         -> error, no subdomain
func SplitHostname(fqdn string) (subdomain, domain string, err error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(fqdn), ".")
	if !IsValidHostname(trimmed) {
		return "", "", NewInvalidHostnameError(fqdn, "not a valid DNS name")
	}
	parts := strings.Split(trimmed, ".")
	if len(parts) < 3 {
		return "", "", NewInvalidHostnameError(fqdn, "at least three labels are required")
	}
	return strings.Join(parts[:len(parts)-2], "."), strings.Join(parts[len(parts)-2:], "."), nil
}
