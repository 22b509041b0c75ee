package imageref

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorValidate(t *testing.T) {
	t.Parallel()

	v := NewValidator()

	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{name: "bare repository", raw: "nginx"},
		{name: "repository with tag", raw: "nginx:1.27"},
		{name: "scoped repository", raw: "library/nginx:alpine"},
		{name: "allowed registry", raw: "ghcr.io/owner/app:v1.2"},
		{name: "allowed registry no tag", raw: "quay.io/prometheus/node-exporter"},
		{
			name:    "empty input",
			raw:     "",
			wantErr: "required",
		},
		{
			name:    "too long",
			raw:     "docker.io/" + strings.Repeat("a", 500),
			wantErr: "too long",
		},
		{
			name:    "semicolon rejected",
			raw:     "nginx;rm-rf",
			wantErr: "invalid characters",
		},
		{
			name:    "dollar rejected even in valid structure",
			raw:     "ghcr.io/owner/app:$tag",
			wantErr: "invalid characters",
		},
		{
			name:    "backtick rejected",
			raw:     "nginx:`id`",
			wantErr: "invalid characters",
		},
		{
			name:    "pipe rejected",
			raw:     "nginx|cat",
			wantErr: "invalid characters",
		},
		{
			name:    "uppercase repository rejected",
			raw:     "Nginx",
			wantErr: "format",
		},
		{
			name:    "double slash rejected",
			raw:     "ghcr.io//app",
			wantErr: "format",
		},
		{
			name:    "trailing colon rejected",
			raw:     "nginx:",
			wantErr: "format",
		},
		{
			name:    "tag starting with dash rejected",
			raw:     "nginx:-bad",
			wantErr: "format",
		},
		{
			name:    "well-formed but disallowed registry",
			raw:     "evil.example.com/owner/app:v1",
			wantErr: `registry "evil.example.com" is not allowed`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := v.Validate(tt.raw)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidatorExtraRegistries(t *testing.T) {
	t.Parallel()

	v := NewValidator("registry.internal.corp", " ", "")

	assert.NoError(t, v.Validate("registry.internal.corp/team/app:v1"))
	// Ports on the host are tolerated; the allow-list holds bare hostnames.
	assert.NoError(t, v.Validate("registry.internal.corp:5000/team/app:v1"))
	assert.Error(t, v.Validate("other.internal.corp/team/app:v1"))
}

// Configured registries may be written with their port, as deployment
// configs naturally do. The entry must match references both with and
// without the port.
func TestValidatorExtraRegistryWithPort(t *testing.T) {
	t.Parallel()

	v := NewValidator("registry.example.com:5000")

	assert.NoError(t, v.Validate("registry.example.com:5000/team/app:v1"))
	assert.NoError(t, v.Validate("registry.example.com/team/app:v1"))
	assert.Error(t, v.Validate("registry.other.com:5000/team/app:v1"))
}

func TestValidatorTagLength(t *testing.T) {
	t.Parallel()

	v := NewValidator()

	assert.NoError(t, v.Validate("nginx:"+strings.Repeat("a", 128)))
	assert.Error(t, v.Validate("nginx:"+strings.Repeat("a", 129)))
}
