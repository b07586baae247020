package requirements

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Header line identifying a lock file.
const lockHeader = "# cradle dependency lock"

// An installed package.
type Package struct {
	Name    string // Project name as reported by the installer.
	Version string // Exact version, or a direct reference ("@ url", "-e ...").
}

// Returns the normalized project name.
func (p Package) Key() string {
	return Normalize(p.Name)
}

func (p Package) String() string {
	switch {
	case p.Name == "":
		return p.Version
	case strings.HasPrefix(p.Version, "@"):
		return p.Name + " " + p.Version
	default:
		return p.Name + "==" + p.Version
	}
}

// The installed dependency set of an image.
type Lock struct {
	Packages []Package // Sorted by normalized name.
}

// A difference between two locks.
type Change struct {
	Name string // Normalized project name.
	Old  string // Version in the first lock, empty if added.
	New  string // Version in the second lock, empty if removed.
}

func (c Change) String() string {
	switch {
	case c.Old == "":
		return fmt.Sprintf("+ %s %s", c.Name, c.New)
	case c.New == "":
		return fmt.Sprintf("- %s %s", c.Name, c.Old)
	default:
		return fmt.Sprintf("~ %s %s -> %s", c.Name, c.Old, c.New)
	}
}

// Parses installer freeze output or a lock file.
//
// Accepts "name==version", "name @ url" and "-e ..." lines. Comments and
// blank lines are ignored. The result is sorted and deduplicated by
// normalized name; the last occurrence wins.
func ParseLock(r io.Reader) (*Lock, error) {
	byKey := make(map[string]Package)
	var unnamed []Package

	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		pkg, err := parsePackage(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrSyntax, n, err)
		}
		if pkg.Name == "" {
			unnamed = append(unnamed, pkg)
			continue
		}
		byKey[pkg.Key()] = pkg
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	l := &Lock{Packages: make([]Package, 0, len(byKey)+len(unnamed))}
	for _, p := range byKey {
		l.Packages = append(l.Packages, p)
	}
	l.Packages = append(l.Packages, unnamed...)
	l.sort()
	return l, nil
}

func parsePackage(line string) (Package, error) {
	if strings.HasPrefix(line, "-e ") || strings.HasPrefix(line, "--editable") {
		return Package{Version: line}, nil
	}
	if name, ref, ok := strings.Cut(line, " @ "); ok {
		name = strings.TrimSpace(name)
		if !namePattern.MatchString(name) {
			return Package{}, fmt.Errorf("invalid project name %q", name)
		}
		return Package{Name: name, Version: "@ " + strings.TrimSpace(ref)}, nil
	}

	name, version, ok := strings.Cut(line, "==")
	if !ok {
		return Package{}, fmt.Errorf("expected name==version, got %q", line)
	}
	name = strings.TrimSpace(name)
	version = strings.TrimPrefix(strings.TrimSpace(version), "=")
	if !namePattern.MatchString(name) {
		return Package{}, fmt.Errorf("invalid project name %q", name)
	}
	if !versionPattern.MatchString(version) {
		return Package{}, fmt.Errorf("invalid version %q", version)
	}
	return Package{Name: name, Version: version}, nil
}

// Orders packages by normalized name, unnamed entries last by text.
func (l *Lock) sort() {
	slices.SortFunc(l.Packages, func(a, b Package) int {
		if (a.Name == "") != (b.Name == "") {
			if a.Name == "" {
				return 1
			}
			return -1
		}
		if c := strings.Compare(a.Key(), b.Key()); c != 0 {
			return c
		}
		return strings.Compare(a.Version, b.Version)
	})
}

// Canonical text of the package list, one package per line.
//
// Named packages are written under their normalized names, so spelling
// variants of a name produce the same text.
func (l *Lock) canonical() []byte {
	var b bytes.Buffer
	for _, p := range l.Packages {
		if p.Name != "" {
			p.Name = p.Key()
		}
		b.WriteString(p.String())
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// Fingerprint of the installed set.
//
// Two locks have the same digest exactly when they list the same packages
// at the same versions, regardless of order or name spelling.
func (l *Lock) Digest() digest.Digest {
	return digest.FromBytes(l.canonical())
}

// Returns the installed version of a project, if present.
func (l *Lock) Version(name string) (string, bool) {
	key := Normalize(name)
	for _, p := range l.Packages {
		if p.Name != "" && p.Key() == key {
			return p.Version, true
		}
	}
	return "", false
}

// Writes the lock in its file format: a header, the digest and the
// canonical package list.
func (l *Lock) WriteTo(w io.Writer) (int64, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s\n# digest: %s\n", lockHeader, l.Digest())
	b.Write(l.canonical())
	n, err := w.Write(b.Bytes())
	return int64(n), err
}

// Lists named manifest requirements the lock does not satisfy.
//
// A requirement is unsatisfied when its project is missing or an exact pin
// disagrees with the installed version. Requirements with environment
// markers are skipped because they may legitimately not apply.
func (l *Lock) Unsatisfied(m *Manifest) []string {
	var out []string
	for _, r := range m.Requirements {
		if r.Name == "" || r.Marker != "" {
			continue
		}
		have, ok := l.Version(r.Name)
		if !ok {
			out = append(out, r.Key())
			continue
		}
		if want, pinned := r.Pin(); pinned && !r.AcceptsPinned(have) {
			out = append(out, fmt.Sprintf("%s (want %s, have %s)", r.Key(), want, have))
		}
	}
	return out
}

// Compares two locks.
//
// Changes are sorted by name. Unnamed entries are compared by text.
func Diff(a, b *Lock) []Change {
	index := func(l *Lock) map[string]string {
		m := make(map[string]string, len(l.Packages))
		for _, p := range l.Packages {
			if p.Name == "" {
				m[p.Version] = p.Version
				continue
			}
			m[p.Key()] = p.Version
		}
		return m
	}

	old, cur := index(a), index(b)
	var changes []Change

	for name, ov := range old {
		nv, ok := cur[name]
		switch {
		case !ok:
			changes = append(changes, Change{Name: name, Old: ov})
		case nv != ov:
			changes = append(changes, Change{Name: name, Old: ov, New: nv})
		}
	}
	for name, nv := range cur {
		if _, ok := old[name]; !ok {
			changes = append(changes, Change{Name: name, New: nv})
		}
	}

	slices.SortFunc(changes, func(x, y Change) int {
		return strings.Compare(x.Name, y.Name)
	})
	return changes
}
