package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/codexec/codexec/internal/config"
	"github.com/codexec/codexec/internal/registry"
)

// Container labels identifying sandboxes managed by this service. The reaper
// keys off LabelManaged; LabelSessionID ties a container back to its record.
const (
	LabelManaged     = "code-executor"
	LabelSessionID   = "session_id"
	LabelEnvironment = "environment"
)

// exit code the in-sandbox `timeout` wrapper reports on a timeout kill.
const timeoutExitCode = 124

// StderrContainerGone is the stderr text reported when the sandbox vanished
// before an exec. Callers use it to tell a dead session from failing code.
const StderrContainerGone = "Container not found. Session may have expired."

// delay between writing the source file and the exec that reads it; the
// exec can otherwise observe a missing or partially written file.
const fileSettleDelay = 100 * time.Millisecond

// dockerAPI is the slice of the Docker Engine client the executor uses.
// *client.Client satisfies it; tests fake it.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	ContainerStatsOneShot(ctx context.Context, containerID string) (container.StatsResponseReader, error)
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// Result is the outcome of one code execution. ExecuteCode always returns
// one; sandbox failures surface as exit code -1 with a readable stderr, not
// as Go errors.
type Result struct {
	Stdout        string
	Stderr        string
	ExitCode      int
	ExecutionTime float64
	Timestamp     time.Time
}

// Executor creates sandbox containers, runs one command per call inside
// them, and collects results. It is the only component that talks to the
// Docker daemon.
type Executor struct {
	docker dockerAPI
	reg    *registry.Registry
	cfg    *config.Config
	logger *slog.Logger
}

// New connects to the Docker daemon configured in cfg.
func New(cfg *config.Config, reg *registry.Registry, logger *slog.Logger) (*Executor, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.DockerSocket != "" {
		opts = append(opts, client.WithHost("unix://"+cfg.DockerSocket))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return newWithAPI(cli, cfg, reg, logger), nil
}

func newWithAPI(api dockerAPI, cfg *config.Config, reg *registry.Registry, logger *slog.Logger) *Executor {
	return &Executor{
		docker: api,
		reg:    reg,
		cfg:    cfg,
		logger: logger,
	}
}

func (e *Executor) Close() error {
	return e.docker.Close()
}

// Ping verifies the Docker daemon is reachable.
func (e *Executor) Ping(ctx context.Context) error {
	if _, err := e.docker.Ping(ctx); err != nil {
		return fmt.Errorf("pinging docker daemon: %w", err)
	}
	return nil
}

// CreateContainer creates and starts a sandbox for the session. The
// container runs a benign sleep so it stays alive for repeated execs; every
// resource and security policy is fixed by configuration, never by request.
func (e *Executor) CreateContainer(ctx context.Context, sessionID, environment string) (string, error) {
	return e.create(ctx, "session", sessionID, environment)
}

func (e *Executor) create(ctx context.Context, namePrefix, sessionID, environment string) (string, error) {
	image, err := e.reg.ResolveImage(environment, e.cfg.DockerImagePrefix)
	if err != nil {
		return "", err
	}

	memory, err := units.RAMInBytes(e.cfg.ContainerMemoryLimit)
	if err != nil {
		return "", fmt.Errorf("parse memory limit %q: %w", e.cfg.ContainerMemoryLimit, err)
	}
	pids := int64(e.cfg.ContainerPidsLimit)

	defaults := e.reg.Defaults()

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:    memory,
			CPUPeriod: 100000,
			CPUQuota:  int64(e.cfg.ContainerCPULimit * 100000),
			PidsLimit: &pids,
		},
		ReadonlyRootfs: e.cfg.ReadOnly,
		NetworkMode:    "bridge",
		Tmpfs: map[string]string{
			"/tmp": fmt.Sprintf("size=%s,noexec,nosuid,nodev", e.cfg.TmpfsSize),
		},
	}
	if e.cfg.NetworkDisabled {
		hostCfg.NetworkMode = "none"
	}
	if e.cfg.NoNewPrivileges {
		hostCfg.SecurityOpt = []string{"no-new-privileges:true"}
	}

	containerCfg := &container.Config{
		Image:      image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: defaults.WorkspaceDir,
		User:       defaults.ExecutorUser,
		Labels: map[string]string{
			LabelManaged:     "true",
			LabelSessionID:   sessionID,
			LabelEnvironment: environment,
		},
	}

	name := fmt.Sprintf("%s-%s", namePrefix, shortID(sessionID))
	resp, err := e.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", fmt.Errorf("image %q not found, build it first: docker build -t %s environments/%s/", image, image, environment)
		}
		return "", fmt.Errorf("container create: %w", err)
	}

	if err := e.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Don't leave a created-but-never-started container behind.
		e.docker.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("container start: %w", err)
	}

	e.logger.Info("sandbox created",
		"container_id", shortID(resp.ID), "session_id", sessionID, "environment", environment)
	return resp.ID, nil
}

// ExecuteCode writes the source into the sandbox, optionally compiles it,
// and runs it under the configured hard timeout. It never returns a Go
// error: every failure becomes a Result the caller can persist.
func (e *Executor) ExecuteCode(ctx context.Context, containerID, environment, code, filename, stdin string) *Result {
	if filename == "" {
		name, err := e.reg.DefaultFilename(environment)
		if err != nil {
			return errResult("Execution error: " + err.Error())
		}
		filename = name
	}

	defaults := e.reg.Defaults()
	filePath := path.Join(defaults.WorkspaceDir, filename)

	if err := e.writeFile(ctx, containerID, filePath, code); err != nil {
		return execFailure(err)
	}
	time.Sleep(fileSettleDelay)

	compileArgv, err := e.reg.ExpandCompileCommand(environment, filePath)
	if err != nil {
		return errResult("Execution error: " + err.Error())
	}
	if len(compileArgv) > 0 {
		res := e.runGuarded(ctx, containerID, compileArgv, "")
		if res.ExitCode != 0 {
			return res
		}
	}

	runArgv, err := e.reg.ExpandRunCommand(environment, filePath)
	if err != nil {
		return errResult("Execution error: " + err.Error())
	}
	return e.runGuarded(ctx, containerID, runArgv, stdin)
}

// runGuarded wraps argv in the in-sandbox timeout guard and executes it,
// measuring wall-clock around the exec.
func (e *Executor) runGuarded(ctx context.Context, containerID string, argv []string, stdin string) *Result {
	cmd := append([]string{"timeout", strconv.Itoa(e.cfg.ExecutionTimeout)}, argv...)

	start := time.Now()
	stdout, stderr, exitCode, err := e.runExec(ctx, containerID, cmd, stdin)
	elapsed := time.Since(start)

	if err != nil {
		return execFailure(err)
	}

	out := strings.ToValidUTF8(string(stdout), "�")
	errOut := strings.ToValidUTF8(string(stderr), "�")
	if exitCode == timeoutExitCode {
		errOut = "Execution timed out\n" + errOut
	}

	return &Result{
		Stdout:        out,
		Stderr:        errOut,
		ExitCode:      exitCode,
		ExecutionTime: roundMillis(elapsed),
		Timestamp:     time.Now().UTC(),
	}
}

// writeFile pipes the source bytes into `cat > path` over an attached exec.
func (e *Executor) writeFile(ctx context.Context, containerID, filePath, code string) error {
	execCfg := container.ExecOptions{
		Cmd:          []string{"sh", "-c", "cat > " + filePath},
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		User:         e.reg.Defaults().ExecutorUser,
	}

	execResp, err := e.docker.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return err
	}

	attach, err := e.docker.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return err
	}
	defer attach.Close()

	if _, err := attach.Conn.Write([]byte(code)); err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	if err := attach.CloseWrite(); err != nil {
		return fmt.Errorf("close stdin: %w", err)
	}

	// cat exits once stdin closes; drain until then.
	if _, err := stdcopy.StdCopy(io.Discard, io.Discard, attach.Reader); err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	return nil
}

// runExec runs cmd in the container with demultiplexed output and returns
// the exit code. When stdin is non-empty it is streamed to the process and
// the write side half-closed, same as the source upload.
func (e *Executor) runExec(ctx context.Context, containerID string, cmd []string, stdin string) (stdout, stderr []byte, exitCode int, err error) {
	execCfg := container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  stdin != "",
		User:         e.reg.Defaults().ExecutorUser,
	}

	execResp, err := e.docker.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return nil, nil, 0, err
	}

	attach, err := e.docker.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, nil, 0, err
	}
	defer attach.Close()

	if stdin != "" {
		go func() {
			io.Copy(attach.Conn, strings.NewReader(stdin))
			attach.CloseWrite()
		}()
	}

	var outBuf, errBuf strings.Builder
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, attach.Reader); err != nil {
		return nil, nil, 0, err
	}

	inspect, err := e.docker.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, nil, 0, err
	}
	return []byte(outBuf.String()), []byte(errBuf.String()), inspect.ExitCode, nil
}

// StopContainer stops the sandbox gracefully, then force-removes it.
// A container that is already gone is not an error.
func (e *Executor) StopContainer(ctx context.Context, containerID string) error {
	stopTimeout := 5
	err := e.docker.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &stopTimeout})
	if err != nil && !client.IsErrNotFound(err) {
		e.logger.Warn("container stop", "container_id", shortID(containerID), "error", err)
	}

	err = e.docker.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container remove: %w", err)
	}
	return nil
}

// Sweep removes every managed container whose session_id label the liveness
// predicate does not recognize, and returns the removed container ids.
// Containers the predicate errors on are skipped, never removed.
func (e *Executor) Sweep(ctx context.Context, live func(context.Context, string) (bool, error)) ([]string, error) {
	f := filters.NewArgs()
	f.Add("label", LabelManaged+"=true")

	containers, err := e.docker.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: f,
	})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	var removed []string
	for _, ctr := range containers {
		sessionID := ctr.Labels[LabelSessionID]
		if sessionID != "" {
			ok, err := live(ctx, sessionID)
			if err != nil {
				e.logger.Warn("sweep: liveness check failed, keeping container",
					"container_id", shortID(ctr.ID), "session_id", sessionID, "error", err)
				continue
			}
			if ok {
				continue
			}
		}

		if err := e.StopContainer(ctx, ctr.ID); err != nil {
			e.logger.Warn("sweep: remove failed", "container_id", shortID(ctr.ID), "error", err)
			continue
		}
		e.logger.Info("sweep: removed orphaned container",
			"container_id", shortID(ctr.ID), "session_id", sessionID)
		removed = append(removed, ctr.ID)
	}
	return removed, nil
}

// RunOnce is the ephemeral-mode shortcut: fresh sandbox, one execution,
// guaranteed teardown even when the execution fails.
func (e *Executor) RunOnce(ctx context.Context, environment, code, filename, stdin string) (*Result, error) {
	containerID, err := e.create(ctx, "ephemeral", uuid.New().String(), environment)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := e.StopContainer(context.WithoutCancel(ctx), containerID); err != nil {
			e.logger.Warn("ephemeral teardown", "container_id", shortID(containerID), "error", err)
		}
	}()

	return e.ExecuteCode(ctx, containerID, environment, code, filename, stdin), nil
}

func errResult(stderr string) *Result {
	return &Result{
		Stderr:    stderr,
		ExitCode:  -1,
		Timestamp: time.Now().UTC(),
	}
}

func execFailure(err error) *Result {
	if client.IsErrNotFound(err) {
		return errResult(StderrContainerGone)
	}
	return errResult("Execution error: " + err.Error())
}

func roundMillis(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
