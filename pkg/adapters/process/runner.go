package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
)

// DefaultWaitDelay bounds how long Evaluate waits for stdout to close after
// the process was killed (grandchildren may hold the pipe open).
const DefaultWaitDelay = 500 * time.Millisecond

// Runner resolves evaluator refs to local processes.
// It follows a Strict Registry pattern for security (Allow-Listing).
type Runner struct {
	registry    map[string]RegisteredProcess
	baseDir     string
	argvPayload bool
	waitDelay   time.Duration
	logger      *slog.Logger
}

// RegisteredProcess defines an allowed command execution.
type RegisteredProcess struct {
	Command string
	Args    []string
	// Script, when set, is appended to Args and must exist on disk for the
	// evaluator to resolve.
	Script string
	Env    map[string]string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(evaluators map[string]EvaluatorConfig) RunnerOption {
	return func(r *Runner) {
		for name, ev := range evaluators {
			r.registry[name] = RegisteredProcess{
				Command: ev.Command,
				Args:    ev.Args,
				Script:  ev.Script,
				Env:     ev.Environment,
			}
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithArgvPayload also passes the request JSON as the last command-line
// argument, for legacy scripts that read sys.argv[1].
func WithArgvPayload(enabled bool) RunnerOption {
	return func(r *Runner) {
		r.argvPayload = enabled
	}
}

// WithWaitDelay overrides DefaultWaitDelay.
func WithWaitDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.waitDelay = d
	}
}

// WithLogger sets the logger used for stderr diagnostics.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry:  make(map[string]RegisteredProcess),
		waitDelay: DefaultWaitDelay,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.registry[name] = RegisteredProcess{
		Command: command,
		Args:    args,
	}
}

// Resolve satisfies ports.EvaluatorResolver. A ref resolves only when it is
// registered, its command is on PATH and its script (if any) exists.
func (r *Runner) Resolve(ref string) (ports.Evaluator, bool) {
	proc, ok := r.registry[ref]
	if !ok || proc.Command == "" {
		return nil, false
	}
	if _, err := exec.LookPath(proc.Command); err != nil {
		r.logger.Debug("Evaluator command not found", "evaluator", ref, "command", proc.Command, "err", err)
		return nil, false
	}
	if proc.Script != "" {
		if _, err := os.Stat(proc.Script); err != nil {
			r.logger.Debug("Evaluator script missing", "evaluator", ref, "script", proc.Script)
			return nil, false
		}
	}
	return &evaluator{runner: r, name: ref, proc: proc}, true
}

// payload is the JSON written to the evaluator's stdin. The legacy keys
// input_value and current_tree_list are kept for older scripts.
type payload struct {
	ports.EvaluationRequest
	InputValue      any                `json:"input_value"`
	CurrentTreeList []domain.Candidate `json:"current_tree_list"`
}

type evaluator struct {
	runner *Runner
	name   string
	proc   RegisteredProcess
}

// Evaluate runs the process once. The request is sent on stdin; stdout must
// carry the narrowed candidate list.
func (e *evaluator) Evaluate(ctx context.Context, req ports.EvaluationRequest) ([]domain.Candidate, error) {
	body, err := json.Marshal(payload{
		EvaluationRequest: req,
		InputValue:        req.Parameter.Value(),
		CurrentTreeList:   req.Candidates,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode evaluator request: %w", err)
	}

	args := append([]string(nil), e.proc.Args...)
	if e.proc.Script != "" {
		args = append(args, e.proc.Script)
	}
	if e.runner.argvPayload {
		args = append(args, string(body))
	}

	cmd := exec.CommandContext(ctx, e.proc.Command, args...)
	cmd.Dir = e.runner.baseDir
	cmd.WaitDelay = e.runner.waitDelay
	cmd.Stdin = bytes.NewReader(body)

	// Arguments travel on stdin, never as interpolated shell text.
	env := cmd.Environ()
	for k, v := range e.proc.Env {
		env = append(env, k+"="+v)
	}
	paramJSON, err := json.Marshal(req.Parameter)
	if err != nil {
		return nil, fmt.Errorf("failed to encode evaluator parameter: %w", err)
	}
	env = append(env,
		"CANOPY_PARAMETER_ID="+req.ParameterID,
		"CANOPY_PARAMETER="+string(paramJSON),
	)
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("evaluator %s: %w", e.name, ctxErr)
	}
	if stderr.Len() > 0 {
		e.runner.logger.Debug("Evaluator stderr", "evaluator", e.name, "stderr", stderr.String())
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("%w: %s exited with %d: %s", domain.ErrMalformedOutput, e.name, exitErr.ExitCode(), stderr.String())
		}
		// Start failures (permissions, bad working dir) mean the evaluator is unavailable.
		return nil, fmt.Errorf("%w: %s failed to start: %w", ports.ErrEvaluatorNotFound, e.name, runErr)
	}

	return DecodeOutput(stdout.Bytes())
}
