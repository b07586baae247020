package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Identifies a request or a response in an [Envelope].
type Command string

const (
	CmdBuild           Command = "build"            // Build a launch definition.
	CmdRun             Command = "run"              // Launch an image detached.
	CmdStop            Command = "stop"             // Stop and remove a launched container.
	CmdContainerStatus Command = "container-status" // Query a launched container.
	CmdStatus          Command = "status"           // Query the daemon.
	CmdShutdown        Command = "shutdown"         // Stop the daemon.

	CmdOK    Command = "ok"    // Successful response.
	CmdError Command = "error" // Failed response carrying an [ErrorResult].
)

// A single message on the daemon socket.
//
// Messages are JSON objects terminated by a newline. The payload shape
// depends on the command.
type Envelope struct {
	Command Command         `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encodes a message. A nil payload is omitted.
//
// The result does not include the terminating newline.
func Encode(cmd Command, payload any) ([]byte, error) {
	env := Envelope{Command: cmd}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decodes a message and returns its envelope and raw payload.
func Decode(data []byte) (*Envelope, json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("%w: empty message", ErrMalformed)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if env.Command == "" {
		return nil, nil, fmt.Errorf("%w: missing command", ErrMalformed)
	}
	return &env, env.Payload, nil
}

// Decodes a payload into T. An absent payload yields the zero value.
func DecodePayload[T any](payload json.RawMessage) (*T, error) {
	v := new(T)
	if len(payload) == 0 || string(payload) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return v, nil
}
