package shared

import (
	"strings"
	"testing"
)

func TestVersionInfo(t *testing.T) {
	info := VersionInfo()

	if !strings.Contains(info, Version) {
		t.Errorf("Version info should contain version %s, got: %s", Version, info)
	}
	if !strings.Contains(info, BuildTime) {
		t.Errorf("Version info should contain build time %s, got: %s", BuildTime, info)
	}
	if !strings.Contains(info, GitCommit) {
		t.Errorf("Version info should contain git commit %s, got: %s", GitCommit, info)
	}
}
