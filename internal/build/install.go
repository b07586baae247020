package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cruciblehq/cradle/internal/requirements"
	"github.com/cruciblehq/cradle/internal/runtime"
)

// Installer stderr lines kept in a DependencyInstallError.
const stderrTail = 20

// Options whose value names another manifest file.
var includeOptions = map[string]bool{
	"-r":            true,
	"--requirement": true,
	"-c":            true,
	"--constraint":  true,
}

// A dependency manifest and every local file it includes.
type manifestSet struct {
	main  *requirements.Manifest // Root manifest with -r includes merged in.
	root  string                 // Directory of the root manifest.
	files []string               // Absolute paths, root manifest first.
}

// Reads the manifest at p and, recursively, the files it includes with
// -r or -c.
//
// Requirements of -r includes are merged into the result so the installed
// set can be checked against them; constraint files only restrict versions
// and are copied but not merged. Remote includes are left to the installer.
// Every failure wraps [ErrDependencyInstall].
func loadManifests(p string) (*manifestSet, error) {
	set := &manifestSet{root: filepath.Dir(p)}
	seen := make(map[string]bool)

	var load func(p string, merge bool) (*requirements.Manifest, error)
	load = func(p string, merge bool) (*requirements.Manifest, error) {
		if seen[p] {
			return nil, nil
		}
		seen[p] = true

		fh, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDependencyInstall, err)
		}
		defer fh.Close()

		m, err := requirements.Parse(fh)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrDependencyInstall, p, err)
		}
		set.files = append(set.files, p)

		for _, opt := range m.Options {
			if !includeOptions[opt.Name] || strings.Contains(opt.Value, "://") {
				continue
			}
			if filepath.IsAbs(opt.Value) {
				return nil, fmt.Errorf("%w: %s: line %d: include %q must be relative", ErrDependencyInstall, p, opt.Line, opt.Value)
			}

			child := filepath.Join(filepath.Dir(p), filepath.FromSlash(opt.Value))
			isRequirement := opt.Name == "-r" || opt.Name == "--requirement"
			included, err := load(child, isRequirement)
			if err != nil {
				return nil, err
			}
			if included != nil && isRequirement && merge {
				m.Requirements = append(m.Requirements, included.Requirements...)
			}
		}
		return m, nil
	}

	m, err := load(p, true)
	if err != nil {
		return nil, err
	}
	set.main = m
	return set, nil
}

// Copies the manifest files into the workdir, installs them and records the
// installed set.
//
// Included files keep their position relative to the root manifest, so the
// installer resolves them the same way inside the container. A failing
// installer, unreadable freeze output or an installed set that does not
// satisfy the manifest all fail with [ErrDependencyInstall].
func (p *pipeline) install(ctx context.Context, ctr *runtime.Container, state *stepState) (*requirements.Lock, error) {
	f := p.file

	for _, src := range p.manifests.files {
		rel, err := filepath.Rel(p.manifests.root, src)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDependencyInstall, err)
		}
		dest := path.Join(f.Workdir, filepath.ToSlash(rel))
		if err := executeHostCopy(ctx, ctr, src, dest, ""); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDependencyInstall, err)
		}
	}

	slog.Info("installing dependencies", "manifest", f.ImageManifestPath(), "command", f.Install.Run)
	installed, err := p.runInstaller(ctx, ctr, state, f.Install.Run)
	if err != nil {
		return nil, err
	}
	slog.Debug("installer output", "stdout", installed)

	frozen, err := p.runInstaller(ctx, ctr, state, f.Install.Freeze)
	if err != nil {
		return nil, err
	}

	lock, err := requirements.ParseLock(strings.NewReader(frozen))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q output: %w", ErrDependencyInstall, f.Install.Freeze, err)
	}

	if missing := lock.Unsatisfied(p.manifests.main); len(missing) > 0 {
		return nil, fmt.Errorf("%w: installed set does not satisfy the manifest: %s",
			ErrDependencyInstall, strings.Join(missing, ", "))
	}

	slog.Info("dependencies installed", "packages", len(lock.Packages), "digest", lock.Digest())
	return lock, nil
}

// Runs an installer command in the workdir and returns its stdout.
func (p *pipeline) runInstaller(ctx context.Context, ctr *runtime.Container, state *stepState, command string) (string, error) {
	result, err := ctr.Exec(ctx, state.shell, command, state.environ(), p.file.Workdir)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("%w: %q exited with code %d: %s",
			ErrDependencyInstall, command, result.ExitCode, tail(result.Stderr, stderrTail))
	}
	return result.Stdout, nil
}

// Returns the last n non-blank lines of s.
func tail(s string, n int) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, strings.TrimRight(l, "\r"))
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
