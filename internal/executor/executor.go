package executor

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Result is the executor's structured result for a command. Command-level
// failures are encoded here, never as an error.
type Result map[string]any

// Executor carries out an approved command. A returned error means the
// executor itself is unavailable, not that the command failed.
type Executor interface {
	Execute(ctx context.Context, command string) (Result, error)
}

// Func adapts a function to the Executor interface.
type Func func(ctx context.Context, command string) (Result, error)

func (f Func) Execute(ctx context.Context, command string) (Result, error) { return f(ctx, command) }

// LogExecutor records commands instead of running them.
type LogExecutor struct {
	logger *zap.Logger
}

// NewLogExecutor creates a LogExecutor that writes to the given logger.
func NewLogExecutor(logger *zap.Logger) *LogExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogExecutor{logger: logger}
}

func (e *LogExecutor) Execute(_ context.Context, command string) (Result, error) {
	e.logger.Info("simulated command execution", zap.String("command", command))
	return Result{"status": "simulated", "command": command}, nil
}

// Recorder is an in-memory Executor that remembers every command it was
// handed, in order.
type Recorder struct {
	mu       sync.Mutex
	commands []string
}

func (r *Recorder) Execute(_ context.Context, command string) (Result, error) {
	r.mu.Lock()
	r.commands = append(r.commands, command)
	r.mu.Unlock()
	return Result{"status": "recorded", "command": command}, nil
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}
