package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"satharness/internal/logging"
)

// waitDelay bounds how long Wait keeps reading pipes after the child is
// gone (grandchildren may hold them open).
const waitDelay = 2 * time.Second

var _ AuditedExecutor = (*DirectExecutor)(nil)

// DirectExecutor executes commands directly on the host using os/exec.
type DirectExecutor struct {
	mu     sync.RWMutex
	config ExecutorConfig

	// auditCallback is called for execution events
	auditCallback func(AuditEvent)
}

// NewDirectExecutor creates a new direct executor with default config.
func NewDirectExecutor() *DirectExecutor {
	logging.TactileDebug("Creating new DirectExecutor with default config")
	return NewDirectExecutorWithConfig(DefaultExecutorConfig())
}

// NewDirectExecutorWithConfig creates a new direct executor with custom config.
func NewDirectExecutorWithConfig(config ExecutorConfig) *DirectExecutor {
	logging.TactileDebug("Creating DirectExecutor with config: timeout=%s, maxOutput=%d bytes",
		config.DefaultTimeout, config.MaxOutputBytes)
	return &DirectExecutor{
		config:        config,
		auditCallback: config.AuditCallback,
	}
}

// SetAuditCallback sets the callback for audit events.
func (e *DirectExecutor) SetAuditCallback(callback func(AuditEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auditCallback = callback
}

// emitAudit emits an audit event if a callback is registered.
func (e *DirectExecutor) emitAudit(typ AuditEventType, cmd Command, result *ExecutionResult) {
	e.mu.RLock()
	callback := e.auditCallback
	e.mu.RUnlock()

	if callback != nil {
		callback(AuditEvent{
			Type:         typ,
			Timestamp:    time.Now(),
			Command:      cmd,
			Result:       result,
			RequestID:    cmd.RequestID,
			ExecutorName: "direct",
		})
	}
}

// Validate checks if a command can be executed.
func (e *DirectExecutor) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	return nil
}

// Execute runs a command directly on the host.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	timer := logging.StartTimer(logging.CategoryTactile, "Direct command execution")
	defer timer.Stop()

	if err := e.Validate(cmd); err != nil {
		logging.TactileWarn("Command validation failed: %s %v - %v", cmd.Binary, cmd.Arguments, err)
		return nil, err
	}

	cmd = e.config.Merge(cmd)
	logging.Tactile("Executing command: %s", cmd.CommandString())

	result := &ExecutionResult{
		ExitCode: -1,
		Command:  &cmd,
	}

	e.emitAudit(AuditEventStart, cmd, nil)

	timeout := e.config.DefaultTimeout
	if cmd.Limits != nil && cmd.Limits.TimeoutMs > 0 {
		timeout = time.Duration(cmd.Limits.TimeoutMs) * time.Millisecond
	}
	execCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	binary, args := cmd.Binary, cmd.Arguments
	if rlimits := createRlimits(cmd.Limits); len(rlimits) > 0 {
		var err error
		binary, args, err = e.wrapWithLimitShim(binary, args, rlimits)
		if err != nil {
			return e.infraFailure(cmd, result, err), nil
		}
		logging.TactileDebug("Applying rlimits through shim: %v", rlimits)
	}

	execCmd := exec.CommandContext(execCtx, binary, args...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = e.buildEnvironment(cmd.Environment)
	setupProcessGroup(execCmd)
	execCmd.Cancel = func() error { return killProcessGroup(execCmd) }
	execCmd.WaitDelay = waitDelay

	maxOutput := e.config.MaxOutputBytes
	if cmd.Limits != nil && cmd.Limits.MaxOutputBytes > 0 {
		maxOutput = cmd.Limits.MaxOutputBytes
	}
	var buf bytes.Buffer
	captured := &limitedWriter{w: &buf, max: maxOutput}

	// Using one writer for both streams makes os/exec share a single pipe,
	// which keeps the interleaving the child produced.
	execCmd.Stdout = captured
	execCmd.Stderr = captured
	if cmd.StdoutPath != "" {
		f, err := os.OpenFile(cmd.StdoutPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return e.infraFailure(cmd, result, fmt.Errorf("open stdout file: %w", err)), nil
		}
		defer f.Close()
		execCmd.Stdout = f
	}

	result.StartedAt = time.Now()
	err := execCmd.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	result.Combined = buf.String()

	if captured.truncated {
		result.Truncated = true
		result.TruncatedBytes = captured.discarded
		logging.TactileWarn("Command output truncated: %d bytes discarded", result.TruncatedBytes)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.Success = true
		result.ExitCode = 0
		logging.TactileDebug("Command succeeded with exit code 0")

	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		result.Success = true // Infrastructure worked, command was killed
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", timeout)
		logging.TactileWarn("Command killed (timeout): %s after %s", cmd.Binary, timeout)
		e.emitAudit(AuditEventKilled, cmd, result)

	case errors.Is(execCtx.Err(), context.Canceled):
		result.Success = true
		result.Killed = true
		result.KillReason = "context canceled"
		logging.TactileDebug("Command canceled: %s", cmd.Binary)
		e.emitAudit(AuditEventKilled, cmd, result)

	case errors.As(err, &exitErr):
		result.Success = true // Command ran, just returned non-zero
		result.ExitCode = exitErr.ExitCode()
		if reason, limit, ok := signalKill(exitErr.ProcessState); ok {
			result.Killed = true
			result.KillReason = reason
			result.LimitExceeded = limit
			logging.TactileWarn("Command killed by signal: %s (%s)", cmd.Binary, reason)
			e.emitAudit(AuditEventKilled, cmd, result)
		} else {
			logging.TactileDebug("Command exited non-zero: %s -> %d", cmd.Binary, result.ExitCode)
		}

	default:
		return e.infraFailure(cmd, result, err), nil
	}

	result.ResourceUsage = e.getResourceUsage(execCmd)

	e.emitAudit(AuditEventComplete, cmd, result)
	logging.Tactile("Command completed: %s -> exit=%d, duration=%s, output=%d bytes",
		cmd.Binary, result.ExitCode, result.Duration, len(result.Combined))

	return result, nil
}

func (e *DirectExecutor) infraFailure(cmd Command, result *ExecutionResult, err error) *ExecutionResult {
	result.Success = false
	result.Error = err.Error()
	if result.FinishedAt.IsZero() {
		result.StartedAt = time.Now()
		result.FinishedAt = result.StartedAt
	}
	logging.TactileError("Command failed: %s - %v", cmd.Binary, err)
	e.emitAudit(AuditEventError, cmd, result)
	return result
}

// wrapWithLimitShim routes the command through the limit shim.
func (e *DirectExecutor) wrapWithLimitShim(binary string, args []string, rlimits map[int]Rlimit) (string, []string, error) {
	self := e.config.ShimBinary
	if self == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", nil, fmt.Errorf("locate limit shim: %w", err)
		}
		self = exe
	}
	wrapped := make([]string, 0, len(args)+3)
	wrapped = append(wrapped, shimArg, encodeRlimits(rlimits), binary)
	wrapped = append(wrapped, args...)
	return self, wrapped, nil
}

// buildEnvironment creates the environment variable list.
func (e *DirectExecutor) buildEnvironment(cmdEnv []string) []string {
	env := make([]string, 0, len(e.config.AllowedEnvironment)+len(cmdEnv))

	for _, key := range e.config.AllowedEnvironment {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}

	return append(env, cmdEnv...)
}

// getResourceUsage extracts resource usage from the command (platform-specific).
func (e *DirectExecutor) getResourceUsage(cmd *exec.Cmd) *ResourceUsage {
	if !e.config.EnableResourceUsage {
		return nil
	}
	return getProcessResourceUsage(cmd)
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	mu        sync.Mutex
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	n := len(p)
	if lw.max <= 0 {
		written, err := lw.w.Write(p)
		lw.written += int64(written)
		return written, err
	}

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil // Pretend we wrote it
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err // Return original length to avoid "short write" errors
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
