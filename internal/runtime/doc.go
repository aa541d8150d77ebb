// Package runtime manages build containers backed by containerd.
//
// A [Runtime] connects to a containerd daemon, pulls stage base images,
// and creates containers with overlayfs snapshots. Each [Container]
// wraps a running containerd task: commands can be executed inside it
// (optionally under a restricted user identity), files can be copied in
// and out as tar streams, and the final filesystem state can be
// committed and exported as an OCI archive. Containers should be
// destroyed when no longer needed to release their snapshot and task
// resources.
//
// Example usage:
//
//	rt, err := runtime.New("/run/containerd/containerd.sock", "slipway")
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	ctr, err := rt.StartContainer(ctx, "docker.io/library/node:22", "client-yard", "linux/amd64")
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	result, err := ctr.Exec(ctx, runtime.ExecSpec{Command: "npm ci", Workdir: "/build"})
//	if err != nil {
//	    return err
//	}
//
//	if err := ctr.Export(ctx, "dist"); err != nil {
//	    return err
//	}
package runtime
