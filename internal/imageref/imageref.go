// Package imageref parses, builds, and validates container image references
// of the form [registry/][scope/]repository[:tag].
package imageref

import (
	"strings"
)

// DefaultRegistry is assumed when a reference does not name a registry.
const DefaultRegistry = "docker.io"

// ImageReference is a parsed image reference. It is a value type and should
// be treated as immutable once returned by Parse.
type ImageReference struct {
	// Registry is the registry host, including any port. Always populated;
	// defaults to DefaultRegistry when the reference omits it.
	Registry string

	// Scope is the namespace/owner segment one level above the repository.
	// Empty for single-segment references such as "nginx".
	Scope string

	// Repository is the final path segment. Never empty after a successful
	// parse.
	Repository string

	// Tag is the tag portion of the reference, if any.
	Tag string
}

// Parse decomposes a raw image reference into its parts.
//
// The trailing colon denotes a tag only when nothing after it contains a
// path separator and either the text before it has no "/" at all (plain
// "repo:tag") or its last "/" comes after its last "." (so a registry port
// such as "host.com:5000/repo" is not mistaken for a tag). IPv6 registry
// hosts are not handled by this heuristic.
func Parse(raw string) ImageReference {
	ref := ImageReference{Registry: DefaultRegistry}
	remaining := strings.TrimSpace(raw)

	// Tag extraction.
	if idx := strings.LastIndex(remaining, ":"); idx >= 0 {
		before, after := remaining[:idx], remaining[idx+1:]
		if !strings.Contains(after, "/") && isTagSeparator(before) {
			ref.Tag = after
			remaining = before
		}
	}

	// Registry extraction: a first segment containing a dot is a host.
	if idx := strings.Index(remaining, "/"); idx >= 0 {
		if first := remaining[:idx]; strings.Contains(first, ".") {
			ref.Registry = first
			remaining = remaining[idx+1:]
		}
	}

	// Scope/repository split. Only the last two segments are significant.
	segments := strings.Split(remaining, "/")
	if len(segments) >= 2 {
		ref.Scope = segments[len(segments)-2]
		ref.Repository = segments[len(segments)-1]
	} else {
		ref.Repository = remaining
	}

	return ref
}

// isTagSeparator reports whether a colon following before splits off a tag
// rather than a registry port.
func isTagSeparator(before string) bool {
	lastSlash := strings.LastIndex(before, "/")
	if lastSlash < 0 {
		return true
	}
	return lastSlash > strings.LastIndex(before, ".")
}

// Build joins the scope and repository back into a path, appending the tag
// when includeTag is set. The registry is intentionally never re-emitted:
// consumers such as workflow dispatch receive it out-of-band.
func Build(ref ImageReference, includeTag bool) string {
	var b strings.Builder
	if ref.Scope != "" {
		b.WriteString(ref.Scope)
		b.WriteString("/")
	}
	b.WriteString(ref.Repository)
	if includeTag && ref.Tag != "" {
		b.WriteString(":")
		b.WriteString(ref.Tag)
	}
	return b.String()
}
