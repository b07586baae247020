package internal

import (
	"fmt"
	"runtime"
	"testing"
)

// Sets the linker-flag variables for the duration of a test.
func setBuild(t *testing.T, v, s, c string) {
	t.Helper()
	oldV, oldS, oldC := version, stage, gitCommit
	t.Cleanup(func() { version, stage, gitCommit = oldV, oldS, oldC })
	version, stage, gitCommit = v, s, c
}

func TestLabel(t *testing.T) {
	if got := Label("port"); got != "org.cruciblehq.cradle.port" {
		t.Fatalf("Label = %q", got)
	}
}

func TestVersion(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", undefined},
		{"  ", undefined},
		{"1.2.3", "1.2.3"},
		{"v1.2.3", "1.2.3"},
		{"V2.0.0-RC1", "2.0.0-rc1"},
	}
	for _, tt := range tests {
		setBuild(t, tt.raw, "", "")
		if got := Version(); got != tt.want {
			t.Errorf("Version() with %q = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestVersionString(t *testing.T) {
	setBuild(t, "1.0.0", "", "abc123")
	if !IsLocal() {
		t.Fatal("build without stage should be local")
	}
	if got := VersionString(); got != localBuild {
		t.Fatalf("VersionString = %q, want %q", got, localBuild)
	}

	setBuild(t, "v1.0.0", "main", "abc123")
	want := fmt.Sprintf("1.0.0 abc123 [%s]", runtime.GOARCH)
	if got := VersionString(); got != want {
		t.Fatalf("VersionString = %q, want %q", got, want)
	}

	setBuild(t, "1.0.0", "Staging", "abc123")
	want = fmt.Sprintf("1.0.0+staging abc123 [%s]", runtime.GOARCH)
	if got := VersionString(); got != want {
		t.Fatalf("VersionString = %q, want %q", got, want)
	}
}

func TestPlatform(t *testing.T) {
	if got, want := Platform(), runtime.GOOS+"/"+runtime.GOARCH; got != want {
		t.Fatalf("Platform = %q, want %q", got, want)
	}
}

func TestStageAndCommit(t *testing.T) {
	setBuild(t, "", "", "")
	if Stage() != undefined || GitCommit() != undefined {
		t.Fatalf("unset stage/commit = %q/%q", Stage(), GitCommit())
	}

	setBuild(t, "1.0.0", " Beta ", "abc123")
	if got := Stage(); got != "beta" {
		t.Fatalf("Stage = %q, want beta", got)
	}
}

func TestModes(t *testing.T) {
	t.Cleanup(func() {
		SetQuiet(false)
		SetDebug(false)
		SetVerbose(false)
	})

	SetQuiet(true)
	SetDebug(true)
	SetVerbose(true)
	if !IsQuiet() || !IsDebug() || !IsVerbose() {
		t.Fatal("modes not enabled")
	}
}
