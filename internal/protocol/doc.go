// Package protocol defines the messages exchanged between the cradle CLI
// and the daemon.
//
// Each connection carries one request and one response. Both are
// newline-terminated JSON envelopes of the form
//
//	{"command": "build", "payload": {...}}
//
// Responses use [CmdOK] with a command-specific result, or [CmdError] with
// an [ErrorResult] whose kind names the failure category.
package protocol
