package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"

	"github.com/cruciblehq/cradle/internal/protocol"
)

// Talks to the daemon over its Unix socket.
//
// Every call opens a connection, sends one request and reads one response.
// Cancelling a call's context closes the connection, which makes the daemon
// cancel the request.
type Client struct {
	socketPath string
}

// Creates a client for the daemon listening on socketPath.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Asks the daemon to build a launch definition.
func (c *Client) Build(ctx context.Context, req *protocol.BuildRequest) (*protocol.BuildResult, error) {
	payload, err := c.call(ctx, protocol.CmdBuild, req)
	if err != nil {
		return nil, err
	}
	return protocol.DecodePayload[protocol.BuildResult](payload)
}

// Asks the daemon to launch an image detached.
func (c *Client) Run(ctx context.Context, req *protocol.RunRequest) (*protocol.RunResult, error) {
	payload, err := c.call(ctx, protocol.CmdRun, req)
	if err != nil {
		return nil, err
	}
	return protocol.DecodePayload[protocol.RunResult](payload)
}

// Stops and removes a launched container.
func (c *Client) Stop(ctx context.Context, id string) error {
	_, err := c.call(ctx, protocol.CmdStop, &protocol.ContainerRequest{ID: id})
	return err
}

// Returns the state of a launched container.
func (c *Client) ContainerStatus(ctx context.Context, id string) (*protocol.ContainerStatusResult, error) {
	payload, err := c.call(ctx, protocol.CmdContainerStatus, &protocol.ContainerRequest{ID: id})
	if err != nil {
		return nil, err
	}
	return protocol.DecodePayload[protocol.ContainerStatusResult](payload)
}

// Returns the daemon status.
func (c *Client) Status(ctx context.Context) (*protocol.StatusResult, error) {
	payload, err := c.call(ctx, protocol.CmdStatus, nil)
	if err != nil {
		return nil, err
	}
	return protocol.DecodePayload[protocol.StatusResult](payload)
}

// Asks the daemon to shut down.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.call(ctx, protocol.CmdShutdown, nil)
	return err
}

// Performs one request-response exchange and returns the response payload.
//
// An error response becomes a [RemoteError].
func (c *Client) call(ctx context.Context, cmd protocol.Command, payload any) (json.RawMessage, error) {
	data, err := protocol.Encode(cmd, payload)
	if err != nil {
		return nil, err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, c.socketPath)
		}
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, c.transportError(ctx, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	env, resp, err := protocol.Decode(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequest, err)
	}

	switch env.Command {
	case protocol.CmdOK:
		return resp, nil
	case protocol.CmdError:
		res, err := protocol.DecodePayload[protocol.ErrorResult](resp)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRequest, err)
		}
		return nil, &RemoteError{Kind: res.Kind, Message: res.Message}
	default:
		return nil, fmt.Errorf("%w: unexpected response %q", ErrRequest, env.Command)
	}
}

// Prefers the context's error over the I/O error its cancellation caused.
func (c *Client) transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %w", ErrRequest, err)
}
