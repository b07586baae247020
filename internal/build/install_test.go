package build

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadManifestsFollowsIncludes(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"requirements.txt":     "-r base.txt\n-c constraints/pins.txt\n-r https://example.com/extra.txt\nflask==2.0.0\n",
		"base.txt":             "requests>=2.0\n-r requirements.txt\n",
		"constraints/pins.txt": "urllib3==1.26.18\n",
	})

	set, err := loadManifests(filepath.Join(dir, "requirements.txt"))
	if err != nil {
		t.Fatalf("loadManifests: %v", err)
	}

	wantFiles := []string{
		filepath.Join(dir, "requirements.txt"),
		filepath.Join(dir, "base.txt"),
		filepath.Join(dir, "constraints", "pins.txt"),
	}
	if diff := cmp.Diff(wantFiles, set.files); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}
	if set.root != dir {
		t.Fatalf("root = %q, want %q", set.root, dir)
	}

	// Constraints restrict versions but are not requirements.
	want := []string{"flask", "requests"}
	if diff := cmp.Diff(want, set.main.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadManifestsErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{
			name:  "missing manifest",
			files: map[string]string{},
		},
		{
			name:  "syntax error",
			files: map[string]string{"requirements.txt": "flask==\n"},
		},
		{
			name:  "missing include",
			files: map[string]string{"requirements.txt": "-r other.txt\n"},
		},
		{
			name:  "syntax error in include",
			files: map[string]string{"requirements.txt": "-r other.txt\n", "other.txt": "fl@sk==1.0\n"},
		},
		{
			name:  "absolute include",
			files: map[string]string{"requirements.txt": "-r /etc/requirements.txt\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeTree(t, dir, tt.files)

			_, err := loadManifests(filepath.Join(dir, "requirements.txt"))
			if !errors.Is(err, ErrDependencyInstall) {
				t.Fatalf("err = %v, want ErrDependencyInstall", err)
			}
		})
	}
}

func TestTail(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "shorter than n", in: "a\nb\n", n: 5, want: "a\nb"},
		{name: "keeps last lines", in: "1\n2\n3\n4\n", n: 2, want: "3\n4"},
		{name: "skips blank lines", in: "ERROR: x\n\n  \r\nERROR: y\r\n", n: 5, want: "ERROR: x\nERROR: y"},
		{name: "empty", in: "", n: 3, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tail(tt.in, tt.n); got != tt.want {
				t.Fatalf("tail = %q, want %q", got, tt.want)
			}
		})
	}
}
