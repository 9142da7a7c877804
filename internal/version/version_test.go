package version

import (
	"runtime"
	"strings"
	"testing"
)

func withBuildVars(t *testing.T, version, dirty string) {
	t.Helper()
	oldVersion, oldDirty := Version, Dirty
	Version, Dirty = version, dirty
	t.Cleanup(func() { Version, Dirty = oldVersion, oldDirty })
}

func TestString(t *testing.T) {
	tests := []struct {
		version, dirty, want string
	}{
		{"1.2.3", "false", "1.2.3"},
		{"1.2.3", "true", "1.2.3-dirty"},
		{"dev", "", "dev"},
	}

	for _, tt := range tests {
		withBuildVars(t, tt.version, tt.dirty)
		if got := String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestGet(t *testing.T) {
	withBuildVars(t, "0.4.0", "true")

	info := Get()
	if info.Version != "0.4.0" || !info.Dirty {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", info.Platform)
	}
}

func TestAppTitle(t *testing.T) {
	withBuildVars(t, "0.4.0", "false")

	if got := AppTitle(); got != "cinetag/0.4.0" {
		t.Errorf("AppTitle() = %q", got)
	}
}

func TestFull(t *testing.T) {
	withBuildVars(t, "0.4.0", "true")

	out := Full()
	for _, want := range []string{"cinetag 0.4.0-dirty", "Dirty:      yes", "Go version:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Full() missing %q:\n%s", want, out)
		}
	}
}
