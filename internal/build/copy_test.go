package build

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCopy(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		workdir string
		src     string
		dest    string
		wantErr bool
	}{
		{
			name:  "absolute dest",
			input: "file.txt /opt/file.txt",
			src:   "file.txt",
			dest:  "/opt/file.txt",
		},
		{
			name:    "relative dest with workdir",
			input:   "file.txt out/",
			workdir: "/app",
			src:     "file.txt",
			dest:    "/app/out",
		},
		{
			name:    "relative dest is cleaned",
			input:   "file.txt ./out/../bin/",
			workdir: "/app",
			src:     "file.txt",
			dest:    "/app/bin",
		},
		{
			name:    "relative dest without workdir",
			input:   "file.txt out/",
			wantErr: true,
		},
		{
			name:    "missing destination",
			input:   "file.txt",
			wantErr: true,
		},
		{
			name:    "too many tokens",
			input:   "a b c",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, dest, err := parseCopy(tt.input, tt.workdir)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertParseCopy(t, src, dest, tt.src, tt.dest)
		})
	}
}

func assertParseCopy(t *testing.T, gotSrc, gotDest, wantSrc, wantDest string) {
	t.Helper()
	if gotSrc != wantSrc {
		t.Errorf("src = %q, want %q", gotSrc, wantSrc)
	}
	if gotDest != wantDest {
		t.Errorf("dest = %q, want %q", gotDest, wantDest)
	}
}

// Creates files under dir. Names ending in "/" become directories.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if name[len(name)-1] == '/' {
			if err := os.MkdirAll(p, 0o755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// Reads a tar stream into a name to content map. Directories map to "/",
// symlinks to "-> target".
func readTar(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	entries := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return entries
		}
		if err != nil {
			t.Fatalf("reading tar: %v", err)
		}
		if hdr.Uid != 0 || hdr.Gid != 0 {
			t.Errorf("%s: owner %d:%d, want 0:0", hdr.Name, hdr.Uid, hdr.Gid)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			entries[hdr.Name] = "/"
		case tar.TypeSymlink:
			entries[hdr.Name] = "-> " + hdr.Linkname
		default:
			data, err := io.ReadAll(tr)
			if err != nil {
				t.Fatal(err)
			}
			entries[hdr.Name] = string(data)
		}
	}
}

func archiveDir(t *testing.T, dir, prefix string, flt *filter) map[string]string {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := writeDirToTar(tw, dir, prefix, flt); err != nil {
		t.Fatalf("writeDirToTar: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return readTar(t, &buf)
}

func TestWriteDirToTarWithPrefix(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"app.py":       "print()",
		"static/a.css": "body{}",
		"empty/":       "",
	})

	got := archiveDir(t, dir, "src", nil)
	want := map[string]string{
		"src/":             "/",
		"src/app.py":       "print()",
		"src/empty/":       "/",
		"src/static/":      "/",
		"src/static/a.css": "body{}",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("archive mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteDirToTarContentsOnly(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"app.py":           "print()",
		"requirements.txt": "flask==2.0.0\n",
	})

	got := archiveDir(t, dir, "", nil)
	want := map[string]string{
		"app.py":           "print()",
		"requirements.txt": "flask==2.0.0\n",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("archive mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteDirToTarFilter(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		".dockerignore":        "__pycache__\n*.log\n.git\n",
		"app.py":               "print()",
		"debug.log":            "noise",
		"__pycache__/app.pyc":  "bytecode",
		".git/HEAD":            "ref: main",
		"dist/image.tar":       "archive",
		"templates/index.html": "<html>",
	})

	flt, err := newFilter(dir, filepath.Join(dir, "dist"))
	if err != nil {
		t.Fatalf("newFilter: %v", err)
	}

	got := archiveDir(t, dir, "", flt)
	want := map[string]string{
		".dockerignore":        "__pycache__\n*.log\n.git\n",
		"app.py":               "print()",
		"templates/":           "/",
		"templates/index.html": "<html>",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("archive mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteDirToTarKeepsSymlinks(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"app.py": "print()"})
	if err := os.Symlink("app.py", filepath.Join(dir, "main.py")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got := archiveDir(t, dir, "", nil)
	if got["main.py"] != "-> app.py" {
		t.Fatalf("main.py = %q, want symlink to app.py", got["main.py"])
	}
}

func TestWriteFileToTar(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"requirements.txt": "flask==2.0.0\n"})

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := writeFileToTar(tw, filepath.Join(dir, "requirements.txt"), "reqs.txt"); err != nil {
		t.Fatalf("writeFileToTar: %v", err)
	}
	tw.Close()

	got := readTar(t, &buf)
	if diff := cmp.Diff(map[string]string{"reqs.txt": "flask==2.0.0\n"}, got); diff != "" {
		t.Fatalf("archive mismatch (-want +got):\n%s", diff)
	}
}
