package build

import (
	"errors"
	"strings"
	"testing"

	"github.com/cruciblehq/cradle/internal/launchfile"
	"github.com/google/go-cmp/cmp"
)

func TestPreflight(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"requirements.txt": "flask==2.0.0\nrequests>=2.0\ngunicorn ; sys_platform == 'linux'\n",
		"app.py":           "print()",
	})

	report, err := Preflight(launchfile.Default(dir))
	if err != nil {
		t.Fatalf("Preflight: %v", err)
	}

	if !report.Found {
		t.Fatalf("entry point not found, warnings: %v", report.Warnings)
	}
	if report.Entrypoint != "/app/app.py" {
		t.Fatalf("Entrypoint = %q, want /app/app.py", report.Entrypoint)
	}
	if report.Requirements != 3 {
		t.Fatalf("Requirements = %d, want 3", report.Requirements)
	}

	want := []string{
		"requirement requests on line 2 is not pinned to an exact version",
		"requirement gunicorn on line 3 is not pinned to an exact version",
	}
	if diff := cmp.Diff(want, report.Warnings); diff != "" {
		t.Fatalf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestPreflightEntrypoint(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		command launchfile.Command
		warning string
	}{
		{
			name:    "missing script",
			files:   map[string]string{"main.py": "print()"},
			warning: "not found in source tree",
		},
		{
			name:    "excluded script",
			files:   map[string]string{"app.py": "print()", ".dockerignore": "*.py\n"},
			warning: "is excluded by .dockerignore",
		},
		{
			name:    "script is a directory",
			files:   map[string]string{"app.py/": ""},
			warning: "is a directory",
		},
		{
			name:    "no derivable script",
			files:   map[string]string{},
			command: launchfile.Command{"uvicorn", "main:app"},
			warning: "no entry point script",
		},
		{
			name:    "script outside workdir",
			files:   map[string]string{},
			command: launchfile.Command{"/usr/local/bin/serve"},
			warning: "can only be checked at start",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.files["requirements.txt"] = "flask==2.0.0\n"
			writeTree(t, dir, tt.files)

			f := launchfile.Default(dir)
			if tt.command != nil {
				f.Command = tt.command
			}

			report, err := Preflight(f)
			if err != nil {
				t.Fatalf("Preflight: %v", err)
			}
			if report.Found {
				t.Fatal("entry point reported as found")
			}
			if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], tt.warning) {
				t.Fatalf("warnings = %v, want one containing %q", report.Warnings, tt.warning)
			}
		})
	}
}

func TestPreflightErrors(t *testing.T) {
	t.Run("manifest syntax", func(t *testing.T) {
		dir := t.TempDir()
		writeTree(t, dir, map[string]string{"requirements.txt": "flask==\n", "app.py": ""})

		_, err := Preflight(launchfile.Default(dir))
		if !errors.Is(err, ErrDependencyInstall) {
			t.Fatalf("err = %v, want ErrDependencyInstall", err)
		}
	})

	t.Run("invalid launch file", func(t *testing.T) {
		dir := t.TempDir()
		writeTree(t, dir, map[string]string{"requirements.txt": "flask==2.0.0\n", "app.py": ""})

		f := launchfile.Default(dir)
		f.Port = 70000
		_, err := Preflight(f)
		if !errors.Is(err, launchfile.ErrInvalid) {
			t.Fatalf("err = %v, want launchfile.ErrInvalid", err)
		}
	})

	t.Run("missing source tree", func(t *testing.T) {
		dir := t.TempDir()
		writeTree(t, dir, map[string]string{"requirements.txt": "flask==2.0.0\n"})

		f := launchfile.Default(dir)
		f.Source = "src"
		_, err := Preflight(f)
		if !errors.Is(err, ErrFileSystemOperation) {
			t.Fatalf("err = %v, want ErrFileSystemOperation", err)
		}
	})
}
