package requirements

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustLock(t *testing.T, s string) *Lock {
	t.Helper()
	l, err := ParseLock(strings.NewReader(s))
	if err != nil {
		t.Fatalf("ParseLock: %v", err)
	}
	return l
}

func TestParseLockSortsAndNormalizes(t *testing.T) {
	l := mustLock(t, `Werkzeug==2.0.3
click==8.1.7
Flask==2.0.0
-e git+https://example.com/repo.git#egg=local
requests @ file:///tmp/requests.whl
itsdangerous==2.1.2
`)

	want := []Package{
		{Name: "click", Version: "8.1.7"},
		{Name: "Flask", Version: "2.0.0"},
		{Name: "itsdangerous", Version: "2.1.2"},
		{Name: "requests", Version: "@ file:///tmp/requests.whl"},
		{Name: "Werkzeug", Version: "2.0.3"},
		{Version: "-e git+https://example.com/repo.git#egg=local"},
	}
	if diff := cmp.Diff(want, l.Packages); diff != "" {
		t.Fatalf("packages mismatch (-want +got):\n%s", diff)
	}
}

func TestLockDigestIsOrderIndependent(t *testing.T) {
	a := mustLock(t, "flask==2.0.0\nclick==8.1.7\n")
	b := mustLock(t, "click==8.1.7\nFlask==2.0.0\n# pip output\n")
	if a.Digest() != mustLock(t, "click==8.1.7\nflask==2.0.0\n").Digest() {
		t.Fatal("digest depends on input order")
	}
	if a.Digest() != b.Digest() {
		t.Fatalf("digest depends on name spelling: %s != %s", a.Digest(), b.Digest())
	}
}

func TestLockDigestNormalizesNames(t *testing.T) {
	a := mustLock(t, "Flask==2.0.0\nFlask_Cors==4.0.0\n")
	b := mustLock(t, "flask==2.0.0\nflask-cors==4.0.0\n")
	if a.Digest() != b.Digest() {
		t.Fatalf("digests differ: %s != %s", a.Digest(), b.Digest())
	}
}

func TestLockDigestChangesWithVersion(t *testing.T) {
	a := mustLock(t, "flask==2.0.0\n")
	b := mustLock(t, "flask==2.0.1\n")
	if a.Digest() == b.Digest() {
		t.Fatal("different versions produced the same digest")
	}
}

func TestLockRoundTripThroughFile(t *testing.T) {
	l := mustLock(t, "flask==2.0.0\nclick==8.1.7\n")

	var buf bytes.Buffer
	if _, err := l.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !strings.HasPrefix(buf.String(), lockHeader+"\n# digest: sha256:") {
		t.Fatalf("lock file = %q, want header and digest", buf.String())
	}

	back, err := ParseLock(&buf)
	if err != nil {
		t.Fatalf("ParseLock: %v", err)
	}
	if back.Digest() != l.Digest() {
		t.Fatalf("digest after round trip = %s, want %s", back.Digest(), l.Digest())
	}
}

func TestParseLockErrors(t *testing.T) {
	for _, in := range []string{"flask\n", "flask==\n", "bad name==1.0\n"} {
		if _, err := ParseLock(strings.NewReader(in)); !errors.Is(err, ErrSyntax) {
			t.Errorf("ParseLock(%q) = %v, want ErrSyntax", in, err)
		}
	}
}

func TestLockUnsatisfied(t *testing.T) {
	m, err := Parse(strings.NewReader(`flask==2.0.0
flask-cors
numpy ; sys_platform == "win32"
./local
rembg==2.0.50
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	l := mustLock(t, "Flask==2.0.0\nFlask_Cors==4.0.0\nrembg==2.0.49\n")

	want := []string{"rembg (want 2.0.50, have 2.0.49)"}
	if diff := cmp.Diff(want, l.Unsatisfied(m)); diff != "" {
		t.Fatalf("unsatisfied mismatch (-want +got):\n%s", diff)
	}
}

func TestLockUnsatisfiedComparesCanonicalVersions(t *testing.T) {
	m, err := Parse(strings.NewReader("flask==2.0\nclick==8.1.7RC1\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	l := mustLock(t, "Flask==2.0.0\nclick==8.1.7rc1\n")
	if got := l.Unsatisfied(m); len(got) != 0 {
		t.Fatalf("Unsatisfied = %v, want none", got)
	}
}

func TestDiff(t *testing.T) {
	a := mustLock(t, "flask==2.0.0\nclick==8.1.7\nnumpy==1.26.0\n")
	b := mustLock(t, "Flask==2.0.1\nclick==8.1.7\npillow==10.0.0\n")

	want := []Change{
		{Name: "flask", Old: "2.0.0", New: "2.0.1"},
		{Name: "numpy", Old: "1.26.0"},
		{Name: "pillow", New: "10.0.0"},
	}
	if diff := cmp.Diff(want, Diff(a, b)); diff != "" {
		t.Fatalf("diff mismatch (-want +got):\n%s", diff)
	}
	if len(Diff(a, a)) != 0 {
		t.Fatal("lock differs from itself")
	}
}

func TestChangeString(t *testing.T) {
	tests := map[Change]string{
		{Name: "flask", Old: "1", New: "2"}: "~ flask 1 -> 2",
		{Name: "flask", New: "2"}:           "+ flask 2",
		{Name: "flask", Old: "1"}:           "- flask 1",
	}
	for c, want := range tests {
		if got := c.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
