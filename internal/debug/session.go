package debug

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/calvex/runbook/internal/engine"
	"github.com/calvex/runbook/internal/logging"
	"github.com/calvex/runbook/pkg/schema"
)

// commandKind enumerates the debug commands a session accepts.
type commandKind int

const (
	cmdStart commandKind = iota
	cmdPause
	cmdResume
	cmdStep
	cmdStop
	cmdRestart
	cmdSetBreakpoint
	cmdRemoveBreakpoint
	cmdSetVariable
	cmdView
)

type command struct {
	kind   commandKind
	stepID string
	name   string
	value  any
	reply  chan error
	view   chan View
}

// View is a consistent snapshot of a session, safe to use after the
// session moves on.
type View struct {
	ID            string              `json:"id"`
	WorkflowID    string              `json:"workflow_id"`
	WorkflowName  string              `json:"workflow_name"`
	State         schema.SessionState `json:"state"`
	RunID         string              `json:"run_id,omitempty"`
	NextStepIndex int                 `json:"next_step_index"`
	NextStepID    string              `json:"next_step_id,omitempty"`
	Breakpoints   []string            `json:"breakpoints,omitempty"`
	Records       []schema.StepRecord `json:"records,omitempty"`
	Variables     map[string]any      `json:"variables,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// commandQueueSize bounds how many commands may wait while a step is in
// flight. Producers block only when the queue is full.
const commandQueueSize = 16

// Session is an interactive debug execution of one workflow. All state is
// owned by a single goroutine; commands and queries go through a queue,
// so they take effect at step boundaries and never race with a running step.
// Pause, Stop, and breakpoint edits are enqueue-and-ack: they return as
// soon as the command is queued, not when the loop applies it.
type Session struct {
	ID string

	workflow  *schema.Workflow // session's own copy, immutable after creation
	cmds      chan command
	closed    chan struct{}
	closeOnce sync.Once
}

type sessionLoop struct {
	id       string
	exec     *engine.Executor
	workflow *schema.Workflow
	args     map[string]any
	logger   *slog.Logger
	baseCtx  context.Context

	state       schema.SessionState
	run         *engine.Run
	runCtx      context.Context
	index       int
	breakpoints map[string]bool
	resumeOnce  bool
	lastError   string
	result      *schema.RunResult
}

// NewSession creates a debug session over its own copy of the workflow.
// Arguments are fixed at creation so Restart replays the same run.
func NewSession(ctx context.Context, id string, exec *engine.Executor, wf *schema.Workflow, args map[string]any, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	owned := copyWorkflow(wf)
	s := &Session{
		ID:       id,
		workflow: owned,
		cmds:     make(chan command, commandQueueSize),
		closed:   make(chan struct{}),
	}
	loop := &sessionLoop{
		id:          id,
		exec:        exec,
		workflow:    owned,
		args:        args,
		logger:      logger,
		baseCtx:     logging.WithSessionID(ctx, id),
		state:       schema.SessionNotStarted,
		breakpoints: make(map[string]bool),
	}
	go s.serve(loop)
	return s
}

// serve owns the session state. While running it interleaves pending
// commands with step execution; otherwise it blocks waiting for commands.
func (s *Session) serve(l *sessionLoop) {
	for {
		if l.state == schema.SessionRunning {
			select {
			case cmd := <-s.cmds:
				l.handle(cmd)
			case <-s.closed:
				return
			default:
				l.advance()
			}
		} else {
			select {
			case cmd := <-s.cmds:
				l.handle(cmd)
			case <-s.closed:
				return
			}
		}
	}
}

// Close releases the session goroutine. A closed session rejects all
// further commands.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *Session) send(cmd command) error {
	select {
	case s.cmds <- cmd:
	case <-s.closed:
		return schema.NewErrorf(schema.ErrCodeSessionNotFound, "session %q is closed", s.ID)
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-s.closed:
		return schema.NewErrorf(schema.ErrCodeSessionNotFound, "session %q is closed", s.ID)
	}
}

// sendAsync enqueues a command without waiting for the loop to apply it,
// so a producer is never held behind an in-flight step. The loop processes
// commands in order, so a View issued afterwards observes the effect.
func (s *Session) sendAsync(cmd command) error {
	select {
	case s.cmds <- cmd:
		return nil
	case <-s.closed:
		return schema.NewErrorf(schema.ErrCodeSessionNotFound, "session %q is closed", s.ID)
	}
}

// Start begins execution from the first step.
func (s *Session) Start() error {
	return s.send(command{kind: cmdStart, reply: make(chan error, 1)})
}

// Pause requests a halt at the next step boundary. It returns once the
// request is queued; the step in flight, if any, completes first. Pausing
// a session that is already paused is a no-op.
func (s *Session) Pause() error {
	return s.sendAsync(command{kind: cmdPause})
}

// Resume continues execution from a pause or a breakpoint.
func (s *Session) Resume() error {
	return s.send(command{kind: cmdResume, reply: make(chan error, 1)})
}

// StepOver executes exactly one step and pauses again.
func (s *Session) StepOver() error {
	return s.send(command{kind: cmdStep, reply: make(chan error, 1)})
}

// StepInto behaves as StepOver: steps are atomic at this level, there is
// no finer granularity to descend into.
func (s *Session) StepInto() error { return s.StepOver() }

// StepOut behaves as StepOver for the same reason.
func (s *Session) StepOut() error { return s.StepOver() }

// Stop terminates the session between steps. It returns once the request
// is queued; the step in flight, if any, completes first. Stopping a
// session that already ended is a no-op.
func (s *Session) Stop() error {
	return s.sendAsync(command{kind: cmdStop})
}

// Restart discards the run state and returns to not_started. Breakpoints
// survive; history, variables, and the run identity do not. A running
// session must be paused or stopped first.
func (s *Session) Restart() error {
	return s.send(command{kind: cmdRestart, reply: make(chan error, 1)})
}

// SetBreakpoint marks a step; execution will halt before it runs. The
// step is validated against the session's workflow copy up front, so the
// edit itself never waits on a running step.
func (s *Session) SetBreakpoint(stepID string) error {
	if s.workflow.FindStep(stepID) == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound,
			"workflow %q has no step %q", s.workflow.Name, stepID)
	}
	return s.sendAsync(command{kind: cmdSetBreakpoint, stepID: stepID})
}

// RemoveBreakpoint clears a breakpoint. Unknown breakpoints are ignored.
func (s *Session) RemoveBreakpoint(stepID string) error {
	return s.sendAsync(command{kind: cmdRemoveBreakpoint, stepID: stepID})
}

// SetVariable writes a context variable while the session is halted.
func (s *Session) SetVariable(name string, value any) error {
	return s.send(command{kind: cmdSetVariable, name: name, value: value, reply: make(chan error, 1)})
}

// View returns a snapshot of the session.
func (s *Session) View() (View, error) {
	cmd := command{kind: cmdView, reply: make(chan error, 1), view: make(chan View, 1)}
	if err := s.send(cmd); err != nil {
		return View{}, err
	}
	return <-cmd.view, nil
}

// --- loop internals ---

func (l *sessionLoop) handle(cmd command) {
	var err error
	switch cmd.kind {
	case cmdStart:
		err = l.start()
	case cmdPause:
		err = l.pause()
	case cmdResume:
		err = l.resume()
	case cmdStep:
		err = l.stepOnce()
	case cmdStop:
		err = l.stop()
	case cmdRestart:
		err = l.restart()
	case cmdSetBreakpoint:
		l.breakpoints[cmd.stepID] = true
	case cmdRemoveBreakpoint:
		delete(l.breakpoints, cmd.stepID)
	case cmdSetVariable:
		err = l.setVariable(cmd.name, cmd.value)
	case cmdView:
		cmd.view <- l.snapshot()
	}
	if cmd.reply != nil {
		cmd.reply <- err
		return
	}
	// Enqueue-and-ack commands were already acknowledged; a rejection
	// here means the command arrived in a state where it has no effect.
	if err != nil {
		l.logger.Debug("debug command had no effect", "session_id", l.id, "error", err)
	}
}

// transition moves the session to the target state, consulting the
// transition table. Command handlers return the error to the caller;
// loop-internal paths go through mustTransition.
func (l *sessionLoop) transition(to schema.SessionState) error {
	if !CanTransition(l.state, to) {
		return invalidTransition(l.id, l.state, to)
	}
	l.state = to
	return nil
}

// mustTransition is for transitions the loop itself initiates, where a
// table rejection would mean the loop and the table disagree.
func (l *sessionLoop) mustTransition(to schema.SessionState) {
	if err := l.transition(to); err != nil {
		l.logger.Error("session state machine violation", "session_id", l.id, "error", err)
	}
}

func (l *sessionLoop) start() error {
	if l.state != schema.SessionNotStarted {
		return invalidTransition(l.id, l.state, schema.SessionRunning)
	}
	if err := l.beginRun(); err != nil {
		return err
	}
	return l.transition(schema.SessionRunning)
}

func (l *sessionLoop) beginRun() error {
	run, err := l.exec.NewRun(l.workflow, l.args)
	if err != nil {
		return err
	}
	run.Mode = "debug"
	run.SessionID = l.id
	l.run = run
	l.runCtx = l.exec.BeginRun(l.baseCtx, run)
	l.index = 0
	l.lastError = ""
	l.result = nil
	return nil
}

func (l *sessionLoop) pause() error {
	if l.state == schema.SessionPaused {
		return nil
	}
	if err := l.transition(schema.SessionPaused); err != nil {
		return err
	}
	l.exec.Emit(l.runCtx, l.run, schema.EventSessionPaused, l.nextStepID(), nil)
	return nil
}

func (l *sessionLoop) resume() error {
	switch l.state {
	case schema.SessionPaused:
	case schema.SessionStepBreakpoint:
		// Resuming from a breakpoint must not immediately re-trigger it.
		l.resumeOnce = true
	default:
		return invalidTransition(l.id, l.state, schema.SessionRunning)
	}
	if err := l.transition(schema.SessionRunning); err != nil {
		return err
	}
	l.exec.Emit(l.runCtx, l.run, schema.EventSessionResumed, l.nextStepID(), nil)
	return nil
}

func (l *sessionLoop) stepOnce() error {
	switch l.state {
	case schema.SessionNotStarted:
		if err := l.beginRun(); err != nil {
			return err
		}
	case schema.SessionPaused:
	case schema.SessionStepBreakpoint:
		l.resumeOnce = true
	default:
		return invalidTransition(l.id, l.state, schema.SessionPaused)
	}

	// One step runs, so the session passes through running even when the
	// result is an immediate re-pause.
	if err := l.transition(schema.SessionRunning); err != nil {
		return err
	}
	l.executeNext()
	if l.state == schema.SessionRunning {
		return l.transition(schema.SessionPaused)
	}
	return nil
}

func (l *sessionLoop) stop() error {
	switch l.state {
	case schema.SessionStopped, schema.SessionCompleted, schema.SessionFailed:
		// Already ended; stopping again is a no-op.
		return nil
	}
	if err := l.transition(schema.SessionStopped); err != nil {
		return err
	}
	if l.run != nil && l.result == nil {
		l.result = l.exec.FinishRun(l.runCtx, l.run, schema.RunStatusStopped, "", nil)
	}
	return nil
}

func (l *sessionLoop) restart() error {
	if l.state == schema.SessionNotStarted {
		return nil
	}
	if err := l.transition(schema.SessionNotStarted); err != nil {
		return err
	}
	if l.run != nil {
		if l.result == nil {
			l.result = l.exec.FinishRun(l.runCtx, l.run, schema.RunStatusStopped, "", nil)
		}
		l.exec.Emit(l.runCtx, l.run, schema.EventSessionRestart, "", nil)
	}
	l.run = nil
	l.runCtx = nil
	l.index = 0
	l.resumeOnce = false
	l.lastError = ""
	l.result = nil
	return nil
}

func (l *sessionLoop) setVariable(name string, value any) error {
	if l.run == nil {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"session %q has no run; start it before setting variables", l.id)
	}
	switch l.state {
	case schema.SessionPaused, schema.SessionStepBreakpoint:
	default:
		return invalidTransition(l.id, l.state, schema.SessionPaused)
	}
	l.run.Vars[name] = value
	l.exec.Emit(l.runCtx, l.run, schema.EventVariableSet, "", map[string]any{"name": name})
	return nil
}

// advance is called from the serve loop while running: it parks on
// breakpoints and otherwise executes the next step.
func (l *sessionLoop) advance() {
	if l.index >= len(l.run.Workflow.Steps) {
		l.complete()
		return
	}
	step := &l.run.Workflow.Steps[l.index]
	if l.breakpoints[step.ID] && !l.resumeOnce {
		l.mustTransition(schema.SessionStepBreakpoint)
		// The snapshot in the event equals the pre-step snapshot the
		// record will carry once the step eventually runs.
		l.exec.Emit(l.runCtx, l.run, schema.EventBreakpointHit, step.ID, map[string]any{
			"index":     l.index,
			"variables": engine.Snapshot(l.run.Vars),
		})
		return
	}
	l.executeNext()
}

// executeNext runs the step at the current index unconditionally.
func (l *sessionLoop) executeNext() {
	if l.index >= len(l.run.Workflow.Steps) {
		l.complete()
		return
	}
	l.resumeOnce = false
	rec, err := l.exec.ExecuteStep(l.runCtx, l.run, l.index)
	l.index++
	if err != nil {
		l.mustTransition(schema.SessionFailed)
		l.lastError = err.Error()
		l.result = l.exec.FinishRun(l.runCtx, l.run, schema.RunStatusFailed, rec.StepID, err)
		return
	}
	if l.index >= len(l.run.Workflow.Steps) {
		l.complete()
	}
}

func (l *sessionLoop) complete() {
	l.mustTransition(schema.SessionCompleted)
	l.result = l.exec.FinishRun(l.runCtx, l.run, schema.RunStatusCompleted, "", nil)
}

func (l *sessionLoop) nextStepID() string {
	if l.run == nil || l.index >= len(l.run.Workflow.Steps) {
		return ""
	}
	return l.run.Workflow.Steps[l.index].ID
}

func (l *sessionLoop) snapshot() View {
	v := View{
		ID:            l.id,
		WorkflowID:    l.workflow.ID,
		WorkflowName:  l.workflow.Name,
		State:         l.state,
		NextStepIndex: l.index,
		NextStepID:    l.nextStepID(),
		Error:         l.lastError,
	}
	for id := range l.breakpoints {
		v.Breakpoints = append(v.Breakpoints, id)
	}
	sort.Strings(v.Breakpoints)
	if l.run != nil {
		v.RunID = l.run.ID
		v.Records = append([]schema.StepRecord(nil), l.run.Records...)
		v.Variables = engine.Snapshot(l.run.Vars)
	}
	return v
}

// copyWorkflow deep-copies a workflow so session edits never leak into the
// library's shared definition.
func copyWorkflow(wf *schema.Workflow) *schema.Workflow {
	out := *wf
	out.Tags = append([]string(nil), wf.Tags...)
	out.Shells = append([]string(nil), wf.Shells...)
	out.Arguments = append([]schema.Argument(nil), wf.Arguments...)
	out.Steps = make([]schema.Step, len(wf.Steps))
	copy(out.Steps, wf.Steps)
	if wf.Environment != nil {
		out.Environment = make(map[string]string, len(wf.Environment))
		for k, v := range wf.Environment {
			out.Environment[k] = v
		}
	}
	return &out
}
