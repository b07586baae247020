// Package build turns a launch definition into a runnable OCI archive.
//
// The pipeline is linear. The dependency manifest is parsed before anything
// is pulled, then for each target platform a build container is started
// from the base image, setup steps run, the manifest is installed, the
// installed set is recorded, the application tree is copied into the workdir
// and the container diff is exported with the start command, declared port
// and labels in its image config. The installed set of the first platform is
// written next to the archive as dependencies.lock.
//
// Every failure is fatal. Archives are renamed into place only once fully
// written, and a failed build removes the archives it would have produced,
// so no image.tar survives a failed or cancelled build.
//
// Container operations are delegated to the runtime package. Setup step
// state (environment variables, working directory, shell) accumulates across
// steps and carries over to the installer commands.
//
// Example usage:
//
//	f, err := launchfile.Load(".")
//	if err != nil {
//	    return err
//	}
//	result, err := build.Run(ctx, rt, build.Options{
//	    File:   f,
//	    Output: "dist",
//	})
//	if err != nil {
//	    return err
//	}
package build
