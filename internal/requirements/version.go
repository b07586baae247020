package requirements

import (
	"regexp"
	"strings"
)

// PEP 440 version grammar, matched against the lowercased version.
var pep440 = regexp.MustCompile(`^v?` +
	`(?:(\d+)!)?` + // epoch
	`(\d+(?:\.\d+)*)` + // release
	`(?:[-_.]?(a|b|c|rc|alpha|beta|pre|preview)[-_.]?(\d+)?)?` + // pre-release
	`(?:-(\d+)|[-_.]?(post|rev|r)[-_.]?(\d+)?)?` + // post-release
	`(?:[-_.]?(dev)[-_.]?(\d+)?)?` + // development release
	`(?:\+([a-z0-9]+(?:[-_.][a-z0-9]+)*))?$`) // local label

var preReleaseTags = map[string]string{
	"a":       "a",
	"alpha":   "a",
	"b":       "b",
	"beta":    "b",
	"c":       "rc",
	"rc":      "rc",
	"pre":     "rc",
	"preview": "rc",
}

// Returns the canonical PEP 440 form of a version.
//
// Trailing zero release segments are dropped, so "2.0.0" and "2" share a
// form, and spelling variants such as "1.0-RC.1" become "1rc1". Strings that
// are not PEP 440 versions are returned trimmed and lowercased.
func CanonicalVersion(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	m := pep440.FindStringSubmatch(v)
	if m == nil {
		return v
	}

	var b strings.Builder
	if epoch := number(m[1]); epoch != "0" {
		b.WriteString(epoch + "!")
	}

	release := strings.Split(m[2], ".")
	for i := range release {
		release[i] = number(release[i])
	}
	for len(release) > 1 && release[len(release)-1] == "0" {
		release = release[:len(release)-1]
	}
	b.WriteString(strings.Join(release, "."))

	if m[3] != "" {
		b.WriteString(preReleaseTags[m[3]] + number(m[4]))
	}
	switch {
	case m[5] != "":
		b.WriteString(".post" + number(m[5]))
	case m[6] != "":
		b.WriteString(".post" + number(m[7]))
	}
	if m[8] != "" {
		b.WriteString(".dev" + number(m[9]))
	}
	if m[10] != "" {
		b.WriteString("+" + separatorRun.ReplaceAllString(m[10], "."))
	}
	return b.String()
}

// Reports whether an installed version satisfies an "==" pin.
//
// A pin without a local label ignores the installed version's local label.
func matchesPin(want, have string) bool {
	w, h := CanonicalVersion(want), CanonicalVersion(have)
	if !strings.Contains(w, "+") {
		h, _, _ = strings.Cut(h, "+")
	}
	return w == h
}

// Strips leading zeros from a numeric segment. An empty segment is zero.
func number(s string) string {
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}
