// Package server implements the cradle daemon.
//
// The daemon listens on a Unix domain socket for JSON-encoded commands
// from the cradle CLI. Each connection carries a single request-response
// exchange: the client sends a newline-delimited JSON envelope, the
// server dispatches the command, and writes the result back before
// closing the connection.
//
// Builds are delegated to the build package and detached launches to the
// launch package. Failed requests carry an error kind, so a client can tell
// an unresolvable base image from a failed dependency install or a missing
// entry point.
//
// Example usage:
//
//	srv, err := server.New(server.Config{
//	    Runtime: runtime.Config{
//	        Address:     "/run/containerd/containerd.sock",
//	        Namespace:   "cradle",
//	        Snapshotter: "overlayfs",
//	        Runtime:     "io.containerd.runc.v2",
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop()
//
//	<-srv.Done()
package server
