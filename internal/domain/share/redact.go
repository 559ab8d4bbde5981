package share

import "strings"

const routePrefix = "/share/"

// RedactPath masks the token segment of a /share/<token> request path, and
// keeps whatever follows it, so access logs never hold a usable link. Owner
// routes under /share/prescriptions and /share/tokens are left alone.
func RedactPath(path string) string {
	rest, ok := strings.CutPrefix(path, routePrefix)
	if !ok {
		return path
	}
	trimmed := strings.TrimLeft(rest, "/")
	lead := routePrefix + rest[:len(rest)-len(trimmed)]

	segment, tail, hasTail := strings.Cut(trimmed, "/")
	switch segment {
	case "", "prescriptions", "tokens":
		return path
	}
	if hasTail {
		return lead + MaskToken(segment) + "/" + tail
	}
	return lead + MaskToken(segment)
}
