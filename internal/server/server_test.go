package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/cruciblehq/cradle/internal/build"
	"github.com/cruciblehq/cradle/internal/launch"
	"github.com/cruciblehq/cradle/internal/launchfile"
	"github.com/cruciblehq/cradle/internal/protocol"
	"github.com/cruciblehq/cradle/internal/runtime"
)

// Points the XDG runtime directory at a temporary directory so PID and
// socket files never touch the real ones.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	xdg.Reload()
	t.Cleanup(xdg.Reload)
}

// Sends one raw request line through a server without a runtime and returns
// the decoded response.
func exchange(t *testing.T, s *Server, line string) (*protocol.Envelope, []byte) {
	t.Helper()

	client, srv := net.Pipe()
	defer client.Close()

	go s.handle(srv)

	client.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := client.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	resp, err := bufio.NewReader(client).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	env, payload, err := protocol.Decode(resp)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return env, payload
}

func request(t *testing.T, cmd protocol.Command, payload any) string {
	t.Helper()
	data, err := protocol.Encode(cmd, payload)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func expectError(t *testing.T, env *protocol.Envelope, payload []byte, kind protocol.ErrorKind) *protocol.ErrorResult {
	t.Helper()
	if env.Command != protocol.CmdError {
		t.Fatalf("command = %q, want %q", env.Command, protocol.CmdError)
	}
	res, err := protocol.DecodePayload[protocol.ErrorResult](payload)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != kind {
		t.Fatalf("kind = %q, want %q (message %q)", res.Kind, kind, res.Message)
	}
	return res
}

func TestHandleStatus(t *testing.T) {
	s := newServer(filepath.Join(t.TempDir(), "cradle.sock"), nil)
	s.startedAt = time.Now()
	s.builds = 2
	s.launches = 3
	s.launched["web-1"] = &launch.Launched{ID: "web-1"}
	s.launched["web-2"] = &launch.Launched{ID: "web-2"}
	if !s.untrack("web-2") || s.untrack("web-2") {
		t.Fatal("untrack should report web-2 once")
	}

	env, payload := exchange(t, s, request(t, protocol.CmdStatus, nil))
	if env.Command != protocol.CmdOK {
		t.Fatalf("command = %q, want ok", env.Command)
	}

	res, err := protocol.DecodePayload[protocol.StatusResult](payload)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Running || res.Pid != os.Getpid() || res.Builds != 2 || res.Launches != 3 || res.Active != 1 {
		t.Fatalf("status = %+v", res)
	}
}

func TestHandleInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"malformed json", "{not json"},
		{"missing command", `{"payload":{}}`},
		{"unknown command", `{"command":"image-destroy"}`},
		{"relative build path", `{"command":"build","payload":{"path":"app","output":"/tmp/out"}}`},
		{"relative build output", `{"command":"build","payload":{"path":"/app","output":"dist"}}`},
		{"relative image", `{"command":"run","payload":{"image":"dist/image.tar"}}`},
		{"stop without id", `{"command":"stop","payload":{}}`},
		{"status without id", `{"command":"container-status"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(filepath.Join(t.TempDir(), "cradle.sock"), nil)
			env, payload := exchange(t, s, tt.line)
			expectError(t, env, payload, protocol.KindInvalid)
		})
	}
}

func TestHandleBuildMissingLaunchFile(t *testing.T) {
	s := newServer(filepath.Join(t.TempDir(), "cradle.sock"), nil)
	req := &protocol.BuildRequest{
		Path:   filepath.Join(t.TempDir(), "missing.yaml"),
		Output: t.TempDir(),
	}

	env, payload := exchange(t, s, request(t, protocol.CmdBuild, req))
	expectError(t, env, payload, protocol.KindInvalid)
}

func TestHandleBuildBadManifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("flask==\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "dist")

	s := newServer(filepath.Join(t.TempDir(), "cradle.sock"), nil)
	env, payload := exchange(t, s, request(t, protocol.CmdBuild, &protocol.BuildRequest{Path: dir, Output: out}))
	expectError(t, env, payload, protocol.KindDependencyInstall)

	if _, err := os.Stat(filepath.Join(out, build.ImageFilename)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("image archive present after failed build: %v", err)
	}
}

func TestHandleShutdown(t *testing.T) {
	isolate(t)
	s := newServer(filepath.Join(t.TempDir(), "cradle.sock"), nil)

	env, _ := exchange(t, s, request(t, protocol.CmdShutdown, nil))
	if env.Command != protocol.CmdOK {
		t.Fatalf("command = %q, want ok", env.Command)
	}

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	// A second stop is harmless.
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartAndStop(t *testing.T) {
	isolate(t)
	socket := filepath.Join(t.TempDir(), "run", "cradle.sock")
	s := newServer(socket, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	info, err := os.Stat(socket)
	if err != nil {
		t.Fatalf("socket missing: %v", err)
	}
	if info.Mode().Perm() != socketMode {
		t.Fatalf("socket mode = %v, want %v", info.Mode().Perm(), os.FileMode(socketMode))
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	fmt.Fprintln(conn, request(t, protocol.CmdStatus, nil))
	resp, err := bufio.NewReader(conn).ReadBytes('\n')
	conn.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if env, _, err := protocol.Decode(resp); err != nil || env.Command != protocol.CmdOK {
		t.Fatalf("response = %s, err = %v", resp, err)
	}

	s.Stop()
	if _, err := os.Stat(socket); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("socket left behind: %v", err)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want protocol.ErrorKind
	}{
		{fmt.Errorf("%w: docker.io/library/nope: not found", runtime.ErrImageResolution), protocol.KindImageResolution},
		{fmt.Errorf("%w: platform linux/amd64: %w", build.ErrBuild, build.ErrDependencyInstall), protocol.KindDependencyInstall},
		{fmt.Errorf("%w: /app/app.py", launch.ErrEntryPointNotFound), protocol.KindEntryPointNotFound},
		{fmt.Errorf("%w: port", launchfile.ErrInvalid), protocol.KindInvalid},
		{fmt.Errorf("%w: x", runtime.ErrContainerMissing), protocol.KindInvalid},
		{build.ErrDependencyDrift, protocol.KindInvalid},
		{errors.New("boom"), protocol.KindInternal},
		{runtime.ErrRuntime, protocol.KindInternal},
	}

	for _, tt := range tests {
		if got := errorKind(tt.err); got != tt.want {
			t.Errorf("errorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
