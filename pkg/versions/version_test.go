package versions

import (
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionInfo(t *testing.T) {
	t.Parallel()

	info := GetVersionInfo()

	// Test binaries carry no ldflags, so the version is manufactured from
	// the commit.
	assert.True(t, strings.HasPrefix(info.Version, "build-"), "got version %q", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), info.Platform)
	assert.NotEmpty(t, info.Commit)
}
