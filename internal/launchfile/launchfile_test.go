package launchfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseDefaults(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if f.Base != DefaultBase {
		t.Errorf("Base = %q, want %q", f.Base, DefaultBase)
	}
	if f.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", f.Port, DefaultPort)
	}
	if diff := cmp.Diff(DefaultCommand, f.Command); diff != "" {
		t.Errorf("Command mismatch (-want +got):\n%s", diff)
	}
	if f.Install.Run != "pip install --no-cache-dir -r requirements.txt" {
		t.Errorf("Install.Run = %q", f.Install.Run)
	}
	if f.Install.Freeze != "pip freeze --all" {
		t.Errorf("Install.Freeze = %q", f.Install.Freeze)
	}
	if f.ImageManifestPath() != "/app/requirements.txt" {
		t.Errorf("ImageManifestPath = %q, want /app/requirements.txt", f.ImageManifestPath())
	}
}

func TestParseFull(t *testing.T) {
	f, err := Parse(strings.NewReader(`
name: rembg-web
base: docker.io/library/python:3.11-slim
manifest: deps/requirements-prod.txt
source: src
workdir: /srv
port: 8080
command: gunicorn -b 0.0.0.0:8080 app:app
env:
  PYTHONUNBUFFERED: "1"
setup:
  - run: apt-get update && apt-get install -y libgl1
  - platform: linux/arm64
    steps:
      - run: echo arm
platforms: [linux/amd64, linux/arm64]
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if diff := cmp.Diff(Command{"gunicorn", "-b", "0.0.0.0:8080", "app:app"}, f.Command); diff != "" {
		t.Errorf("Command mismatch (-want +got):\n%s", diff)
	}
	if f.ImageManifestPath() != "/srv/requirements-prod.txt" {
		t.Errorf("ImageManifestPath = %q", f.ImageManifestPath())
	}
	if f.ExposedPort() != "8080/tcp" {
		t.Errorf("ExposedPort = %q, want 8080/tcp", f.ExposedPort())
	}
	if len(f.Setup) != 2 || len(f.Setup[1].Steps) != 1 {
		t.Fatalf("Setup = %+v, want two steps with a nested group", f.Setup)
	}
	if f.EntrypointPath() != "" {
		t.Errorf("EntrypointPath = %q, want empty for flag-led command", f.EntrypointPath())
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("expose: 80\n"))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*File)
	}{
		{"port too low", func(f *File) { f.Port = -1 }},
		{"port too high", func(f *File) { f.Port = 70000 }},
		{"relative workdir", func(f *File) { f.Workdir = "app" }},
		{"absolute manifest", func(f *File) { f.Manifest = "/tmp/requirements.txt" }},
		{"empty command", func(f *File) { f.Command = Command{""} }},
		{"bad name", func(f *File) { f.Name = "My App" }},
		{"conflicting PORT env", func(f *File) { f.Env = map[string]string{"PORT": "10000"} }},
		{"bad env key", func(f *File) { f.Env = map[string]string{"A=B": "x"} }},
		{"bad platform", func(f *File) { f.Platforms = []string{"not/a/real/platform"} }},
		{"run and copy", func(f *File) { f.Setup = []Step{{Run: "true", Copy: "a b"}} }},
		{"platform without group", func(f *File) { f.Setup = []Step{{Run: "true", Platform: "linux/amd64"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Default(".")
			tt.mutate(f)
			err := f.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestValidateMatchingPortEnv(t *testing.T) {
	f := Default(".")
	f.Env = map[string]string{"PORT": "7860"}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEntrypointPath(t *testing.T) {
	tests := []struct {
		name       string
		command    Command
		entrypoint string
		want       string
	}{
		{"interpreter and script", Command{"python", "app.py"}, "", "/app/app.py"},
		{"relative executable", Command{"./run.sh"}, "", "/app/run.sh"},
		{"absolute interpreter", Command{"/usr/local/bin/python", "app.py"}, "", "/app/app.py"},
		{"absolute executable", Command{"/srv/bin/start", "--fast"}, "", "/srv/bin/start"},
		{"interpreter flags", Command{"python", "-u", "app.py"}, "", "/app/app.py"},
		{"interpreter flag values", Command{"python3.11", "-X", "dev", "-W", "ignore", "app.py"}, "", "/app/app.py"},
		{"clustered module flag", Command{"python", "-um", "server"}, "", ""},
		{"shell script", Command{"sh", "./entry.sh"}, "", "/app/entry.sh"},
		{"shell command", Command{"bash", "-c", "python app.py"}, "", ""},
		{"shell errexit", Command{"sh", "-e", "start.sh"}, "", "/app/start.sh"},
		{"node eval", Command{"node", "-e", "require('./x.js')"}, "", ""},
		{"node script", Command{"node", "--enable-source-maps", "server.js"}, "", "/app/server.js"},
		{"module invocation", Command{"python", "-m", "server"}, "", ""},
		{"module reference", Command{"uvicorn", "main:app"}, "", ""},
		{"subcommand", Command{"flask", "run"}, "", ""},
		{"bare executable", Command{"serve"}, "", ""},
		{"script in subdir", Command{"python", "src/app.py"}, "", "/app/src/app.py"},
		{"explicit", Command{"python", "-m", "server"}, "server/__main__.py", "/app/server/__main__.py"},
		{"explicit absolute", Command{"serve"}, "/usr/bin/serve", "/usr/bin/serve"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Default(".")
			f.Command = tt.command
			f.Entrypoint = tt.entrypoint
			if got := f.EntrypointPath(); got != tt.want {
				t.Fatalf("EntrypointPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSourceEntrypoint(t *testing.T) {
	dir := t.TempDir()
	f := Default(dir)

	want := filepath.Join(f.SourceDir(), "app.py")
	if got := f.SourceEntrypoint(); got != want {
		t.Fatalf("SourceEntrypoint() = %q, want %q", got, want)
	}

	f.Command = Command{"/usr/local/bin/serve"}
	if got := f.SourceEntrypoint(); got != "" {
		t.Fatalf("SourceEntrypoint() = %q, want empty outside workdir", got)
	}
}

func TestImageEnv(t *testing.T) {
	f := Default(".")
	f.Env = map[string]string{"PYTHONUNBUFFERED": "1", "A": "b", "PORT": "7860"}

	want := []string{"A=b", "PORT=7860", "PYTHONUNBUFFERED=1"}
	if diff := cmp.Diff(want, f.ImageEnv()); diff != "" {
		t.Fatalf("ImageEnv mismatch (-want +got):\n%s", diff)
	}
}

func TestInstallQuotesManifest(t *testing.T) {
	f, err := Parse(strings.NewReader("manifest: \"my deps.txt\"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Install.Run != "pip install --no-cache-dir -r 'my deps.txt'" {
		t.Fatalf("Install.Run = %q", f.Install.Run)
	}
}

func TestLoadDirectoryWithoutFile(t *testing.T) {
	dir := t.TempDir()

	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Dir() != dir {
		t.Fatalf("Dir() = %q, want %q", f.Dir(), dir)
	}
	if f.ManifestPath() != filepath.Join(dir, DefaultManifest) {
		t.Fatalf("ManifestPath() = %q", f.ManifestPath())
	}
}

func TestLoadDirectoryWithFile(t *testing.T) {
	dir := t.TempDir()
	body := "name: web\nport: 9000\n"
	if err := os.WriteFile(filepath.Join(dir, DefaultFilename), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Name != "web" || f.Port != 9000 {
		t.Fatalf("got name=%q port=%d, want web/9000", f.Name, f.Port)
	}
	if f.SourceDir() != dir {
		t.Fatalf("SourceDir() = %q, want %q", f.SourceDir(), dir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
