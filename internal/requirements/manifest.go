package requirements

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	namePattern    = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	versionPattern = regexp.MustCompile(`^[A-Za-z0-9.*+!_-]+$`)
	separatorRun   = regexp.MustCompile(`[-_.]+`)
)

// Comparison operators in longest-first order, so "===" wins over "==".
var operators = []string{"===", "~=", "==", "!=", "<=", ">=", "<", ">"}

// Installer options accepted on their own line. The value says whether the
// option takes an argument.
var knownOptions = map[string]bool{
	"-r":                true,
	"--requirement":     true,
	"-c":                true,
	"--constraint":      true,
	"-e":                true,
	"--editable":        true,
	"-i":                true,
	"--index-url":       true,
	"--extra-index-url": true,
	"-f":                true,
	"--find-links":      true,
	"--trusted-host":    true,
	"--no-binary":       true,
	"--only-binary":     true,
	"--no-index":        false,
	"--pre":             false,
	"--prefer-binary":   false,
	"--require-hashes":  false,
}

// A single version clause, such as ">=2.0".
type Clause struct {
	Op      string
	Version string
}

func (c Clause) String() string {
	return c.Op + c.Version
}

// A requirement line.
type Requirement struct {
	Name      string   // Project name as written.
	Extras    []string // Requested extras.
	Specifier []Clause // Version clauses, in order.
	Marker    string   // Environment marker after ';', verbatim.
	URL       string   // Direct reference ("name @ url" or a bare URL/path).
	Line      int      // 1-based line number in the manifest.
}

// Returns the PEP 503 normalized project name.
func (r Requirement) Key() string {
	return Normalize(r.Name)
}

// Returns the exact version pinned with "==" or "===", if any.
func (r Requirement) Pin() (string, bool) {
	if len(r.Specifier) != 1 {
		return "", false
	}
	c := r.Specifier[0]
	if (c.Op == "==" || c.Op == "===") && !strings.Contains(c.Version, "*") {
		return c.Version, true
	}
	return "", false
}

// Reports whether an installed version satisfies the requirement's exact
// pin. "==" compares PEP 440 canonical forms; "===" compares the strings
// case-insensitively. Unpinned requirements accept any version.
func (r Requirement) AcceptsPinned(version string) bool {
	want, ok := r.Pin()
	if !ok {
		return true
	}
	if r.Specifier[0].Op == "===" {
		return strings.EqualFold(strings.TrimSpace(want), strings.TrimSpace(version))
	}
	return matchesPin(want, version)
}

// An installer option line, kept verbatim.
type Option struct {
	Name  string
	Value string
	Line  int
}

// The ordered content of a requirements file.
type Manifest struct {
	Requirements []Requirement
	Options      []Option
}

// Returns the normalized names of all named requirements, in order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Requirements))
	for _, r := range m.Requirements {
		if r.Name != "" {
			names = append(names, r.Key())
		}
	}
	return names
}

// Lowercases a project name and collapses runs of '-', '_' and '.' into '-'.
func Normalize(name string) string {
	return separatorRun.ReplaceAllString(strings.ToLower(name), "-")
}

// Parses a pip requirements file.
//
// Comments, blank lines and backslash continuations are handled the way pip
// handles them. Errors wrap [ErrSyntax] or [ErrConflict] and carry the line
// number.
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	pins := make(map[string]Requirement)

	lines, err := logicalLines(r)
	if err != nil {
		return nil, err
	}

	for _, l := range lines {
		if strings.HasPrefix(l.text, "-") {
			opt, err := parseOption(l.text, l.number)
			if err != nil {
				return nil, err
			}
			m.Options = append(m.Options, opt)
			continue
		}

		req, err := parseRequirement(l.text, l.number)
		if err != nil {
			return nil, err
		}

		if v, ok := req.Pin(); ok && req.Marker == "" {
			if prev, seen := pins[req.Key()]; seen {
				if pv, _ := prev.Pin(); !prev.AcceptsPinned(v) || !req.AcceptsPinned(pv) {
					return nil, fmt.Errorf("%w: %s pinned to %s on line %d and %s on line %d",
						ErrConflict, req.Name, pv, prev.Line, v, req.Line)
				}
			}
			pins[req.Key()] = req
		}

		m.Requirements = append(m.Requirements, req)
	}

	return m, nil
}

type logicalLine struct {
	text   string
	number int
}

// Joins continuations and strips comments, returning non-empty lines tagged
// with the number of the line they started on.
func logicalLines(r io.Reader) ([]logicalLine, error) {
	var out []logicalLine
	var buf strings.Builder
	var start, n int

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		n++
		raw := scanner.Text()
		if buf.Len() == 0 {
			start = n
		}

		if strings.HasSuffix(raw, `\`) {
			buf.WriteString(strings.TrimSuffix(raw, `\`))
			continue
		}
		buf.WriteString(raw)

		text := strings.TrimSpace(stripComment(buf.String()))
		buf.Reset()
		if text != "" {
			out = append(out, logicalLine{text: text, number: start})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if buf.Len() > 0 {
		if text := strings.TrimSpace(stripComment(buf.String())); text != "" {
			out = append(out, logicalLine{text: text, number: start})
		}
	}

	return out, nil
}

// Removes a '#' comment that starts the line or follows whitespace.
func stripComment(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && (i == 0 || s[i-1] == ' ' || s[i-1] == '\t') {
			return s[:i]
		}
	}
	return s
}

func parseOption(text string, line int) (Option, error) {
	if len(text) < 2 {
		return Option{}, fmt.Errorf("%w: line %d: malformed option %q", ErrSyntax, line, text)
	}

	var name, value string
	if strings.HasPrefix(text, "--") {
		name, value = text, ""
		if i := strings.IndexAny(text, "= \t"); i >= 0 {
			name, value = text[:i], strings.TrimSpace(text[i+1:])
		}
	} else {
		// Short options take their value glued or separated: "-rbase.txt", "-r base.txt".
		name, value = text[:2], strings.TrimSpace(text[2:])
	}

	takesArg, ok := knownOptions[name]
	if !ok {
		return Option{}, fmt.Errorf("%w: line %d: unknown option %q", ErrSyntax, line, name)
	}
	if takesArg && value == "" {
		return Option{}, fmt.Errorf("%w: line %d: option %s requires a value", ErrSyntax, line, name)
	}
	if !takesArg && value != "" {
		return Option{}, fmt.Errorf("%w: line %d: option %s takes no value", ErrSyntax, line, name)
	}

	return Option{Name: name, Value: value, Line: line}, nil
}

func parseRequirement(text string, line int) (Requirement, error) {
	req := Requirement{Line: line}
	syntax := func(format string, args ...any) error {
		return fmt.Errorf("%w: line %d: "+format, append([]any{ErrSyntax, line}, args...)...)
	}

	// Per-requirement options such as --hash are irrelevant to the set.
	if i := strings.Index(text, " --"); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}

	// Bare URLs and paths.
	if strings.Contains(text, "://") && !strings.Contains(text, " @ ") ||
		strings.HasPrefix(text, ".") || strings.HasPrefix(text, "/") {
		req.URL = text
		return req, nil
	}

	if spec, marker, ok := strings.Cut(text, ";"); ok {
		text = strings.TrimSpace(spec)
		req.Marker = strings.TrimSpace(marker)
		if req.Marker == "" {
			return req, syntax("empty environment marker")
		}
	}

	if name, url, ok := strings.Cut(text, " @ "); ok {
		text = strings.TrimSpace(name)
		req.URL = strings.TrimSpace(url)
		if req.URL == "" {
			return req, syntax("empty direct reference")
		}
	}

	rest := text
	end := strings.IndexAny(rest, "[<>=!~ \t(")
	if end < 0 {
		end = len(rest)
	}
	req.Name = rest[:end]
	rest = strings.TrimSpace(rest[end:])

	if !namePattern.MatchString(req.Name) {
		return req, syntax("invalid project name %q", req.Name)
	}

	if strings.HasPrefix(rest, "[") {
		rb := strings.IndexByte(rest, ']')
		if rb < 0 {
			return req, syntax("unterminated extras in %q", text)
		}
		for _, e := range strings.Split(rest[1:rb], ",") {
			e = strings.TrimSpace(e)
			if !namePattern.MatchString(e) {
				return req, syntax("invalid extra %q", e)
			}
			req.Extras = append(req.Extras, e)
		}
		rest = strings.TrimSpace(rest[rb+1:])
	}

	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		rest = strings.TrimSpace(rest[1 : len(rest)-1])
	}

	if rest == "" {
		return req, nil
	}
	if req.URL != "" {
		return req, syntax("direct reference cannot carry a version specifier")
	}

	for _, part := range strings.Split(rest, ",") {
		clause, err := parseClause(strings.TrimSpace(part))
		if err != nil {
			return req, syntax("%v", err)
		}
		req.Specifier = append(req.Specifier, clause)
	}

	return req, nil
}

func parseClause(s string) (Clause, error) {
	for _, op := range operators {
		v, ok := strings.CutPrefix(s, op)
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			return Clause{}, fmt.Errorf("missing version after %q", op)
		}
		if !versionPattern.MatchString(v) {
			return Clause{}, fmt.Errorf("invalid version %q", v)
		}
		if strings.Contains(v, "*") && op != "==" && op != "!=" {
			return Clause{}, fmt.Errorf("wildcard version %q requires == or !=", v)
		}
		return Clause{Op: op, Version: v}, nil
	}
	return Clause{}, fmt.Errorf("invalid version clause %q", s)
}
