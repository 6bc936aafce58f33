package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// dockerClient is a trimmed-down adaptation of the shared Docker client the
// rest of this module's agents used for long-lived named containers: this
// one only ever creates one ephemeral, unnamed container per sandbox run and
// tears it down on every exit path, so the network/volume/lookup-by-label
// surface that client carried has no role here.
type dockerClient struct {
	api *client.Client
}

func newDockerClient() (*dockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return &dockerClient{api: cli}, nil
}

func (c *dockerClient) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}

// containerSpec describes the one-shot container the sandbox needs.
type containerSpec struct {
	Image           string
	WorkspaceHost   string
	WorkspaceTarget string
	Cmd             []string
	Env             []string
	NanoCPUs        int64
	MemoryBytes     int64
	PidsLimit       int64
	NetworkNone     bool
	// ExtraHosts lets the container resolve the sandbox's own egress proxy
	// (host.docker.internal -> host-gateway) when NetworkNone is false.
	ExtraHosts []string
	// User, ReadonlyRootfs, SecurityOpt, and DropAllCaps implement spec
	// §4.5's non-privileged execution identity and read-only view of
	// non-workspace state: the workspace bind mount is the one writable
	// path, everything else in the container's filesystem is read-only.
	User           string
	ReadonlyRootfs bool
	SecurityOpt    []string
	DropAllCaps    bool
}

func (c *dockerClient) runOnce(ctx context.Context, spec containerSpec) (exitCode int, stdout, stderr string, err error) {
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs:  spec.NanoCPUs,
			Memory:    spec.MemoryBytes,
			PidsLimit: &spec.PidsLimit,
		},
		Mounts: []mount.Mount{
			{
				Type:     mount.TypeBind,
				Source:   spec.WorkspaceHost,
				Target:   spec.WorkspaceTarget,
				ReadOnly: false,
			},
		},
		AutoRemove:     false,
		ExtraHosts:     spec.ExtraHosts,
		ReadonlyRootfs: spec.ReadonlyRootfs,
		SecurityOpt:    spec.SecurityOpt,
	}
	if spec.ReadonlyRootfs {
		// A read-only rootfs still needs a writable /tmp for the
		// interpreter's own scratch files; tmpfs keeps that off the image
		// layer without loosening the rootfs itself.
		hostCfg.Tmpfs = map[string]string{"/tmp": "rw,noexec,nosuid,size=64m"}
	}
	if spec.DropAllCaps {
		hostCfg.CapDrop = []string{"ALL"}
	}
	if spec.NetworkNone {
		hostCfg.NetworkMode = "none"
	}

	resp, err := c.api.ContainerCreate(ctx, &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Cmd,
		Env:        spec.Env,
		WorkingDir: spec.WorkspaceTarget,
		User:       spec.User,
		Tty:        false,
	}, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return 0, "", "", fmt.Errorf("create container: %w", err)
	}
	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.api.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	}()

	if err := c.api.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return 0, "", "", fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := c.api.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	var waitErr error
	var status container.WaitResponse
	select {
	case waitErr = <-errCh:
	case status = <-statusCh:
	case <-ctx.Done():
		return 0, "", "", ctx.Err()
	}
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return 0, "", "", fmt.Errorf("wait container: %w", waitErr)
	}

	logsReader, err := c.api.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return int(status.StatusCode), "", "", fmt.Errorf("fetch logs: %w", err)
	}
	defer logsReader.Close()
	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, logsReader); err != nil {
		_, _ = io.Copy(&outBuf, logsReader)
	}
	return int(status.StatusCode), strings.TrimSpace(outBuf.String()), strings.TrimSpace(errBuf.String()), nil
}
