package sandbox

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/moduleforge/builder/internal/events"
	"github.com/moduleforge/builder/internal/policy"
	"github.com/moduleforge/builder/internal/report"
)

// nonRootUID is the container process identity for every sandbox run,
// per spec §4.5's non-privileged execution identity requirement —
// "nobody:nogroup" on the vast majority of language-runtime base images.
const nonRootUID = "65534:65534"

// DockerRunner is the primary Runner backend, adapted from this module's
// shared Docker helpers (container creation, resource caps, log capture):
// each Run call gets its own disposable workspace and container, destroyed
// on every exit path including cancellation.
type DockerRunner struct {
	Image     string // image providing the language runtime the test suite runs under
	TempRoot  string // parent dir for ephemeral workspaces; os.TempDir() if empty
	TestCmd   []string
}

func NewDockerRunner(image string, cmd []string) *DockerRunner {
	return &DockerRunner{Image: image, TestCmd: cmd}
}

func (r *DockerRunner) Run(ctx context.Context, req Request) (Result, error) {
	root := r.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	workspace, cleanup, err := materializeWorkspace(root, req.Bundle)
	if err != nil {
		return Result{State: StateAborted}, err
	}
	defer cleanup()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = time.Duration(req.Profile.WallClockSec) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cli, err := newDockerClient()
	if err != nil {
		return Result{State: StateAborted}, fmt.Errorf("acquire docker client: %w", err)
	}
	defer cli.Close()

	start := time.Now()
	cmd := r.TestCmd
	if len(cmd) == 0 {
		cmd = []string{"sh", "-c", "python -m pytest -q"}
	}
	const containerWorkdir = "/workspace"

	env := DeterministicEnv(req.Profile.RandomSeed, fixedClockUnixTime)
	var extraHosts []string
	if req.Profile.Network == policy.NetworkAllowlist {
		proxy, perr := StartEgressProxy(req.Profile)
		if perr != nil {
			return Result{State: StateAborted}, fmt.Errorf("start egress proxy: %w", perr)
		}
		defer proxy.Stop()
		proxyURL := "http://host.docker.internal:" + proxy.Port()
		env = append(env, "HTTP_PROXY="+proxyURL, "HTTPS_PROXY="+proxyURL, "NO_PROXY=localhost,127.0.0.1")
		extraHosts = []string{"host.docker.internal:host-gateway"}
	}

	var maxProcs int64 = int64(req.Profile.MaxProcesses)
	spec := containerSpec{
		Image:           r.Image,
		WorkspaceHost:   workspace,
		WorkspaceTarget: containerWorkdir,
		Cmd:             cmd,
		Env:             env,
		NanoCPUs:        int64(req.Profile.CPUSeconds * 1e9),
		MemoryBytes:     req.Profile.MemoryBytes,
		PidsLimit:       maxProcs,
		NetworkNone:     req.Profile.Network == policy.NetworkNone,
		ExtraHosts:      extraHosts,
		User:            nonRootUID,
		ReadonlyRootfs:  true,
		SecurityOpt:     []string{"no-new-privileges:true"},
		DropAllCaps:     true,
	}

	exitCode, stdout, stderr, runErr := cli.runOnce(runCtx, spec)
	usage := ResourceUsage{WallClock: time.Since(start)}

	if runCtx.Err() == context.DeadlineExceeded {
		rep := report.Report{CapabilitySuiteResults: map[string]bool{}}
		rep.Findings = append(rep.Findings, report.Finding{
			Severity: report.SeverityFatal,
			Kind:     report.KindTimeout,
			Message:  fmt.Sprintf("sandbox execution exceeded %s", timeout),
		})
		return Result{Report: rep, Usage: usage, State: StateAborted}, nil
	}
	if ctx.Err() != nil {
		return Result{State: StateAborted}, ctx.Err()
	}
	if runErr != nil {
		return Result{State: StateAborted}, fmt.Errorf("sandbox container execution failed: %w", runErr)
	}

	rep, ok := readHarnessReport(workspace)
	if !ok {
		rep = report.Report{CapabilitySuiteResults: map[string]bool{}}
		rep.Findings = append(rep.Findings, report.Finding{
			Severity: report.SeverityFatal,
			Kind:     report.KindRuntime,
			Message:  fmt.Sprintf("test suite exited %d without producing a report; stdout=%q stderr=%q", exitCode, events.Redact(truncate(stdout, 2000)), events.Redact(truncate(stderr, 2000))),
		})
	}
	rep.Sort()
	return Result{Report: rep, Usage: usage, State: StateReleased}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
