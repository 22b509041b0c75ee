package imageref

import (
	"fmt"
	"regexp"
	"strings"
)

// maxReferenceLength bounds the accepted input size.
const maxReferenceLength = 500

// defaultAllowedRegistries are the registries accepted out of the box.
// Additional private registries can be added through the validator.
var defaultAllowedRegistries = []string{
	"docker.io",
	"ghcr.io",
	"gcr.io",
	"registry.hub.docker.com",
	"quay.io",
}

// dangerousChars would enable shell, SQL, or command injection in any
// downstream consumer of the reference.
const dangerousChars = "<>;\"'`$(){}[]\\|&"

var referencePattern = regexp.MustCompile(
	`^(?:[a-z0-9](?:[a-z0-9._-]*[a-z0-9])?(?::[0-9]+)?/)?` + // registry host with optional port
		`[a-z0-9]+(?:[._-][a-z0-9]+)*` + // first path segment
		`(?:/[a-z0-9]+(?:[._-][a-z0-9]+)*)*` + // further path segments
		`(?::[A-Za-z0-9_][A-Za-z0-9._-]{0,127})?$`) // tag

// Validator checks untrusted image references before they reach the parser
// or any dispatch input construction.
type Validator struct {
	allowed map[string]struct{}
}

// NewValidator returns a validator accepting the default public registries
// plus any extra (private) registries given. Extras may carry a port
// ("registry.example.com:5000"); it is stripped, since the allow-list holds
// bare hostnames.
func NewValidator(extra ...string) *Validator {
	allowed := make(map[string]struct{}, len(defaultAllowedRegistries)+len(extra))
	for _, r := range defaultAllowedRegistries {
		allowed[r] = struct{}{}
	}
	for _, r := range extra {
		if r = stripPort(strings.TrimSpace(r)); r != "" {
			allowed[r] = struct{}{}
		}
	}
	return &Validator{allowed: allowed}
}

// stripPort drops a trailing :port from a registry host.
func stripPort(registry string) string {
	if host, _, found := strings.Cut(registry, ":"); found {
		return host
	}
	return registry
}

// Validate returns nil when raw is a syntactically well-formed reference
// whose registry is in the allow-list, and a descriptive error otherwise.
// The error text is safe to surface to callers.
func (v *Validator) Validate(raw string) error {
	if raw == "" {
		return fmt.Errorf("image reference is required")
	}
	if len(raw) > maxReferenceLength {
		return fmt.Errorf("image reference is too long (max %d characters)", maxReferenceLength)
	}

	raw = strings.TrimSpace(raw)

	if strings.ContainsAny(raw, dangerousChars) {
		return fmt.Errorf("image reference contains invalid characters")
	}
	if !referencePattern.MatchString(raw) {
		return fmt.Errorf("invalid image reference format")
	}

	// Ports vary per deployment, so the lookup ignores them.
	registry := stripPort(Parse(raw).Registry)
	if _, ok := v.allowed[registry]; !ok {
		return fmt.Errorf("registry %q is not allowed", registry)
	}

	return nil
}
