// Package client is the CLI side of the daemon protocol.
//
// Errors reported by the daemon come back as [*RemoteError] values that
// match the same sentinels a local build or launch would return, so callers
// handle both paths alike.
package client
