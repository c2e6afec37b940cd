package version

import (
	"strings"
	"testing"
)

func TestStringIncludesBuildInfo(t *testing.T) {
	out := String()
	for _, want := range []string{Version, Commit, BuildDate} {
		if !strings.Contains(out, want) {
			t.Fatalf("version string %q missing %q", out, want)
		}
	}
}
