// Package runtime manages images and containers backed by containerd.
//
// A [Runtime] connects to a containerd daemon with a configured namespace,
// snapshotter and runtime shim. Base images are resolved either by pulling a
// normalized registry reference or by importing an OCI archive; both paths
// unpack the layers for the target platform. Resolution failures wrap
// [ErrImageResolution].
//
// Build containers run an idle task so commands can be executed inside them
// and tar streams extracted into their filesystem. When the build is done,
// the snapshot diff is committed as a new layer and exported as an OCI
// archive with the launch settings applied to the image config.
//
// Launch containers run the image's own command as process 1 on the host
// network. [Runtime.FileExists] inspects an image's layers directly so an
// entry point can be verified before anything is started.
//
// Example usage:
//
//	rt, err := runtime.New(runtime.Config{
//	    Address:     "/run/containerd/containerd.sock",
//	    Namespace:   "cradle",
//	    Snapshotter: "overlayfs",
//	    Runtime:     "io.containerd.runc.v2",
//	})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	tag, err := rt.ResolveBase(ctx, "python:3.10-slim", "linux/amd64")
//	if err != nil {
//	    return err
//	}
//
//	ctr, err := rt.StartContainer(ctx, tag, "app-build", "linux/amd64")
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	result, err := ctr.Exec(ctx, "/bin/sh", "pip install flask", nil, "/app")
//	if err != nil {
//	    return err
//	}
//
//	exported, err := ctr.Export(ctx, "dist/image.tar", runtime.ImageConfig{
//	    Cmd: []string{"python", "app.py"},
//	})
package runtime
