package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Process is a started simulator run.
type Process interface {
	// PID returns the operating system process ID.
	PID() int

	// Wait blocks until the process exits.
	Wait() error

	// Release gives up any resources held for the process without waiting.
	Release() error
}

// Spawner starts the simulator for a job.
type Spawner interface {
	Start(ctx context.Context, job Job) (Process, error)
}

// ExecSpawner starts Binary with the job's config path as sole argument,
// standard output and error redirected into the run directory.
type ExecSpawner struct {
	Binary string
}

// Start launches the simulator for job. The process is placed in its own
// process group and is not tied to ctx: cancelling ctx before Start prevents
// the launch, cancelling it afterwards leaves the process running.
func (s *ExecSpawner) Start(ctx context.Context, job Job) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logFile, err := os.OpenFile(job.LogPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	errFile, err := os.OpenFile(job.ErrPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open error file: %w", err)
	}
	defer errFile.Close()

	cmd := exec.Command(s.Binary, job.ConfigPath)
	cmd.Dir = job.WorkDir
	cmd.Stdout = logFile
	cmd.Stderr = errFile
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start simulator: %w", err)
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Release() error {
	return p.cmd.Process.Release()
}
