package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cruciblehq/cradle/internal"
	"github.com/cruciblehq/cradle/internal/build"
	"github.com/cruciblehq/cradle/internal/launch"
	"github.com/cruciblehq/cradle/internal/launchfile"
	"github.com/cruciblehq/cradle/internal/protocol"
	"github.com/cruciblehq/cradle/internal/runtime"
)

// Handles a build command.
//
// The launch file is read on the daemon side, so the request carries paths
// only. The build is cancelled if the client disconnects.
func (s *Server) handleBuild(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.BuildRequest](payload)
	if err != nil {
		s.fail(conn, err)
		return
	}
	if err := requireAbs("path", req.Path); err != nil {
		s.fail(conn, err)
		return
	}
	if err := requireAbs("output", req.Output); err != nil {
		s.fail(conn, err)
		return
	}

	f, err := launchfile.Load(req.Path)
	if err != nil {
		s.fail(conn, err)
		return
	}

	result, err := build.Run(ctx, s.runtime, build.Options{
		File:      f,
		Output:    req.Output,
		Locked:    req.Locked,
		Platforms: req.Platforms,
	})
	if err != nil {
		s.fail(conn, err)
		return
	}

	s.mu.Lock()
	s.builds++
	s.mu.Unlock()

	s.respond(conn, protocol.CmdOK, buildResult(result))
}

// Handles a run command by launching the image detached.
//
// The process is waited on in the background so its exit is logged and the
// container reports stopped afterwards.
func (s *Server) handleRun(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := protocol.DecodePayload[protocol.RunRequest](payload)
	if err != nil {
		s.fail(conn, err)
		return
	}
	if err := requireAbs("image", req.Image); err != nil {
		s.fail(conn, err)
		return
	}

	launched, err := launch.Start(ctx, s.runtime, launch.Options{
		Image:    req.Image,
		ID:       req.ID,
		Platform: req.Platform,
	})
	if err != nil {
		s.fail(conn, err)
		return
	}

	s.track(launched)

	s.respond(conn, protocol.CmdOK, &protocol.RunResult{
		ID:      launched.ID,
		Pid:     launched.Process.Pid(),
		LogPath: launched.LogPath,
	})
}

// Records a detached launch until its process exits or it is stopped.
//
// The exit status is collected in the background so the task is reaped and
// the container reports stopped.
func (s *Server) track(l *launch.Launched) {
	s.mu.Lock()
	s.launches++
	s.launched[l.ID] = l
	s.mu.Unlock()

	go func() {
		code, err := l.Process.Wait(context.Background())
		s.untrack(l.ID)
		if err != nil {
			slog.Warn("failed to wait for launched process", "id", l.ID, "error", err)
			return
		}
		slog.Info("launched process exited", "id", l.ID, "status", code)
	}()
}

// Forgets a detached launch. Reports whether it was tracked.
func (s *Server) untrack(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.launched[id]
	delete(s.launched, id)
	return ok
}

// Handles a stop command. The container is killed and removed.
func (s *Server) handleStop(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := decodeContainerRequest(payload)
	if err != nil {
		s.fail(conn, err)
		return
	}

	ctr, err := s.runtime.LoadContainer(ctx, req.ID)
	if err != nil {
		s.fail(conn, err)
		return
	}
	ctr.Destroy(ctx)

	s.untrack(req.ID)

	slog.Info("container stopped", "id", req.ID)
	s.respond(conn, protocol.CmdOK, nil)
}

// Handles a container-status command.
func (s *Server) handleContainerStatus(ctx context.Context, conn net.Conn, payload json.RawMessage) {
	req, err := decodeContainerRequest(payload)
	if err != nil {
		s.fail(conn, err)
		return
	}

	state, err := s.runtime.Container(req.ID).Status(ctx)
	if err != nil {
		s.fail(conn, err)
		return
	}

	s.respond(conn, protocol.CmdOK, &protocol.ContainerStatusResult{ID: req.ID, State: state})
}

// Handles a status command.
func (s *Server) handleStatus(conn net.Conn) {
	s.mu.Lock()
	builds, launches, active := s.builds, s.launches, len(s.launched)
	s.mu.Unlock()

	uptime := time.Since(s.startedAt).Truncate(time.Second)

	s.respond(conn, protocol.CmdOK, &protocol.StatusResult{
		Running:  true,
		Version:  internal.VersionString(),
		Pid:      os.Getpid(),
		Uptime:   uptime.String(),
		Builds:   builds,
		Launches: launches,
		Active:   active,
	})
}

// Handles a shutdown command.
func (s *Server) handleShutdown(conn net.Conn) {
	s.respond(conn, protocol.CmdOK, nil)
	slog.Info("shutdown requested")

	go func() {
		s.Stop()
	}()
}

func decodeContainerRequest(payload json.RawMessage) (*protocol.ContainerRequest, error) {
	req, err := protocol.DecodePayload[protocol.ContainerRequest](payload)
	if err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, fmt.Errorf("%w: container id is required", protocol.ErrMalformed)
	}
	return req, nil
}

// The daemon's working directory is unrelated to the client's, so paths
// must arrive absolute.
func requireAbs(field, p string) error {
	if !filepath.IsAbs(p) {
		return fmt.Errorf("%w: %s %q must be an absolute path", protocol.ErrMalformed, field, p)
	}
	return nil
}

func buildResult(r *build.Result) *protocol.BuildResult {
	images := make([]protocol.BuildImage, len(r.Images))
	for i, img := range r.Images {
		images[i] = protocol.BuildImage{
			Platform: img.Platform,
			Path:     img.Path,
			Digest:   img.Digest.String(),
			Size:     img.Size,
		}
	}
	return &protocol.BuildResult{
		Output:       r.Output,
		Images:       images,
		Lock:         r.LockPath,
		Dependencies: r.Dependencies.String(),
		Packages:     r.Packages,
	}
}

// Classifies an error for the wire.
func errorKind(err error) protocol.ErrorKind {
	switch {
	case errors.Is(err, runtime.ErrImageResolution):
		return protocol.KindImageResolution
	case errors.Is(err, build.ErrDependencyInstall):
		return protocol.KindDependencyInstall
	case errors.Is(err, launch.ErrEntryPointNotFound):
		return protocol.KindEntryPointNotFound
	case errors.Is(err, launchfile.ErrInvalid),
		errors.Is(err, launchfile.ErrNotFound),
		errors.Is(err, protocol.ErrMalformed),
		errors.Is(err, ErrUnknownCommand),
		errors.Is(err, runtime.ErrContainerMissing),
		errors.Is(err, build.ErrDependencyDrift):
		return protocol.KindInvalid
	default:
		return protocol.KindInternal
	}
}
