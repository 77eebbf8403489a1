package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/calvex/runbook/internal/expressions"
	"github.com/calvex/runbook/internal/logging"
	"github.com/calvex/runbook/internal/procrun"
	"github.com/calvex/runbook/internal/store"
	"github.com/calvex/runbook/internal/streaming"
	"github.com/calvex/runbook/internal/tools"
	"github.com/calvex/runbook/pkg/schema"
)

const maxSubWorkflowDepth = 10

// PluginHost routes plugin_action steps to external plugin processes.
type PluginHost interface {
	Invoke(ctx context.Context, plugin, action string, args map[string]any) (string, error)
}

// WorkflowSource resolves sub_workflow targets by name.
type WorkflowSource interface {
	Get(name string) (*schema.Workflow, error)
}

// WorkflowValidator checks a workflow before any step runs.
type WorkflowValidator interface {
	Validate(wf *schema.Workflow) *schema.ValidationResult
}

// Config holds executor tunables. All timeouts are optional; zero means
// no bound beyond the caller's context.
type Config struct {
	DefaultStepTimeout time.Duration
	WorkflowTimeout    time.Duration
	// PromptTimeout bounds agent-prompt waits. It is deliberately an
	// explicit knob: an unset value means a prompt waits until the run
	// context is cancelled.
	PromptTimeout time.Duration
}

// Deps are the executor's injected collaborators. Runner, Tools, and
// Validator are required; the rest degrade gracefully when absent.
type Deps struct {
	Runner     procrun.Runner
	Tools      tools.Invoker
	Plugins    PluginHost
	Source     WorkflowSource
	Store      store.Store
	Hub        streaming.EventHub
	Prompts    *PromptBroker
	Validator  WorkflowValidator
	Conditions expressions.Engine
	Logger     *slog.Logger
}

// Executor runs one workflow instance to completion or first failure,
// dispatching steps to its collaborators and emitting lifecycle events.
type Executor struct {
	deps Deps
	cfg  Config
	jq   *expressions.GoJQEngine
}

// New creates an Executor. A CEL condition engine is installed when none
// is provided.
func New(deps Deps, cfg Config) (*Executor, error) {
	if deps.Runner == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "executor requires a process runner")
	}
	if deps.Tools == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "executor requires a tool invoker")
	}
	if deps.Validator == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "executor requires a workflow validator")
	}
	if deps.Prompts == nil {
		deps.Prompts = NewPromptBroker()
	}
	if deps.Conditions == nil {
		celEngine, err := expressions.NewCELEngine()
		if err != nil {
			return nil, err
		}
		deps.Conditions = celEngine
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Executor{
		deps: deps,
		cfg:  cfg,
		jq:   expressions.NewGoJQEngine(),
	}, nil
}

// Prompts exposes the broker so control surfaces can deliver replies.
func (e *Executor) Prompts() *PromptBroker {
	return e.deps.Prompts
}

// Run is one in-flight workflow execution. It is owned exclusively by the
// goroutine driving it; nothing here is locked.
type Run struct {
	ID        string
	SessionID string
	Mode      string // direct | debug | scheduled
	Workflow  *schema.Workflow
	Vars      map[string]any
	Records   []schema.StepRecord
	Outputs   map[string]any
	StartedAt time.Time

	depth int // sub-workflow nesting
}

// NewRun validates the workflow and seeds the execution context.
// Validation failures prevent the run from starting at all.
func (e *Executor) NewRun(wf *schema.Workflow, args map[string]any) (*Run, error) {
	if result := e.deps.Validator.Validate(wf); !result.Valid() {
		return nil, result.ToError()
	}
	if missing := MissingRequiredArgs(wf, args); len(missing) > 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"missing required arguments: %v", missing).
			WithDetails(map[string]any{"missing_arguments": missing})
	}

	return &Run{
		ID:       uuid.NewString(),
		Mode:     "direct",
		Workflow: wf,
		Vars:     SeedContext(wf, args),
		Outputs:  make(map[string]any),
	}, nil
}

// Run executes a workflow with the given arguments: strict declaration
// order, first failure stops, remaining steps never start.
func (e *Executor) Run(ctx context.Context, wf *schema.Workflow, args map[string]any) (*schema.RunResult, error) {
	run, err := e.NewRun(wf, args)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, run)
}

// Execute drives a prepared Run to its outcome. The returned error is
// reserved for engine-level problems; step failures surface in the result.
func (e *Executor) Execute(ctx context.Context, run *Run) (*schema.RunResult, error) {
	if d := e.workflowTimeout(run.Workflow); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	ctx = e.BeginRun(ctx, run)

	for i := range run.Workflow.Steps {
		if err := ctx.Err(); err != nil {
			cancelErr := schema.NewError(schema.ErrCodeCancelled, "run cancelled").WithCause(err)
			return e.FinishRun(ctx, run, schema.RunStatusFailed, "", cancelErr), nil
		}
		rec, err := e.ExecuteStep(ctx, run, i)
		if err != nil {
			return e.FinishRun(ctx, run, schema.RunStatusFailed, rec.StepID, err), nil
		}
	}

	return e.FinishRun(ctx, run, schema.RunStatusCompleted, "", nil), nil
}

// BeginRun persists the run header and emits run_started. Callers that
// drive steps one at a time (the debug controller) use this together with
// ExecuteStep and FinishRun instead of Execute.
func (e *Executor) BeginRun(ctx context.Context, run *Run) context.Context {
	ctx = logging.WithRunID(ctx, run.ID)
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	e.persistRunStart(ctx, run)
	e.emit(ctx, run, schema.EventRunStarted, "", map[string]any{
		"workflow_id":   run.Workflow.ID,
		"workflow_name": run.Workflow.Name,
	})
	return ctx
}

// ExecuteStep runs the step at index: condition check, dispatch with
// retries, output handling, record bookkeeping. The record's variables
// snapshot is taken before the step runs. The returned error, if any, is
// the step failure already reflected in the record.
func (e *Executor) ExecuteStep(ctx context.Context, run *Run, index int) (schema.StepRecord, error) {
	step := &run.Workflow.Steps[index]
	ctx = logging.WithStepID(ctx, step.ID)

	rec := schema.StepRecord{
		Index:     index,
		StepID:    step.ID,
		StepName:  step.Name,
		Status:    schema.StepStatusRunning,
		StartedAt: time.Now().UTC(),
		Variables: Snapshot(run.Vars),
	}
	e.emit(ctx, run, schema.EventStepStarted, step.ID, map[string]any{"index": index})

	// Condition gate: false skips the step without side effects.
	if step.Condition != "" {
		pass, err := e.evalCondition(ctx, step.Condition, run.Vars)
		if err != nil {
			return e.failStep(ctx, run, rec, err)
		}
		if !pass {
			rec.Status = schema.StepStatusSkipped
			now := time.Now().UTC()
			rec.FinishedAt = &now
			e.appendRecord(ctx, run, rec)
			e.emit(ctx, run, schema.EventStepSkipped, step.ID, map[string]any{"condition": step.Condition})
			return rec, nil
		}
	}

	stepCtx := ctx
	if d := e.stepTimeout(step); d > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	// Dispatch with per-step retries.
	attempts := step.Retries + 1
	var raw string
	var dispatchErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, dispatchErr = e.dispatch(stepCtx, run, step)
		if dispatchErr == nil {
			break
		}
		if attempt == attempts || !IsRetryableError(dispatchErr) {
			break
		}
		delay := ComputeBackoff(attempt)
		e.emit(ctx, run, schema.EventStepRetrying, step.ID, map[string]any{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    dispatchErr.Error(),
		})
		if err := WaitForBackoff(stepCtx, delay); err != nil {
			dispatchErr = schema.NewError(schema.ErrCodeCancelled, "run cancelled during retry backoff").WithCause(err)
			break
		}
	}
	if dispatchErr != nil {
		return e.failStep(ctx, run, rec, dispatchErr)
	}

	// Output handling.
	captured, err := e.applyOutput(stepCtx, step, raw)
	if err != nil {
		return e.failStep(ctx, run, rec, err)
	}
	if step.Output != nil && step.Output.Variable != "" {
		run.Vars[step.Output.Variable] = captured
		run.Outputs[step.Output.Variable] = captured
	}

	rec.Status = schema.StepStatusCompleted
	rec.Output = raw
	now := time.Now().UTC()
	rec.FinishedAt = &now
	e.appendRecord(ctx, run, rec)
	e.emit(ctx, run, schema.EventStepCompleted, step.ID, map[string]any{"output": raw})
	return rec, nil
}

// dispatch routes the step to its backend by kind. The kind set is closed,
// so this is a plain tagged-union switch rather than an open registry.
func (e *Executor) dispatch(ctx context.Context, run *Run, step *schema.Step) (string, error) {
	switch step.Kind {
	case schema.StepKindCommand:
		return e.runCommand(ctx, run, step)
	case schema.StepKindAgentPrompt:
		return e.runAgentPrompt(ctx, run, step)
	case schema.StepKindToolCall:
		return e.runToolCall(ctx, run, step)
	case schema.StepKindSubWorkflow:
		return e.runSubWorkflow(ctx, run, step)
	case schema.StepKindPluginAction:
		return e.runPluginAction(ctx, run, step)
	default:
		// Unreachable: unknown kinds are rejected at decode time.
		return "", schema.NewErrorf(schema.ErrCodeInternal, "unknown step kind %q", step.Kind)
	}
}

func (e *Executor) runCommand(ctx context.Context, run *Run, step *schema.Step) (string, error) {
	spec := step.Command

	command, err := expressions.ResolveText(spec.Command, run.Vars)
	if err != nil {
		return "", err
	}
	args := make([]string, len(spec.Args))
	for i, a := range spec.Args {
		resolved, rErr := expressions.ResolveText(a, run.Vars)
		if rErr != nil {
			return "", rErr
		}
		args[i] = resolved
	}
	workingDir, err := expressions.ResolveText(spec.WorkingDir, run.Vars)
	if err != nil {
		return "", err
	}

	env, err := e.resolveEnvironment(run, step)
	if err != nil {
		return "", err
	}

	handle, err := e.deps.Runner.Submit(ctx, procrun.Request{
		Command:    command,
		Args:       args,
		WorkingDir: workingDir,
		Env:        env,
		Timeout:    e.stepTimeout(step),
	})
	if err != nil {
		return "", err
	}

	out, res := procrun.Collect(handle)
	if res.Err != nil {
		return out, schema.NewErrorf(schema.ErrCodeCommandFailed,
			"command %q: %s", command, res.Err.Error()).WithCause(res.Err).WithStep(step.ID)
	}
	if res.Killed {
		return out, schema.NewErrorf(schema.ErrCodeTimeout,
			"command %q killed after %s", command, res.Duration.Round(time.Millisecond)).WithStep(step.ID)
	}
	if res.ExitCode != 0 {
		return out, schema.NewErrorf(schema.ErrCodeCommandFailed,
			"command %q exited with status %d", command, res.ExitCode).
			WithStep(step.ID).
			WithDetails(map[string]any{"exit_code": res.ExitCode, "output": tail(out, 512)})
	}
	return out, nil
}

func (e *Executor) runAgentPrompt(ctx context.Context, run *Run, step *schema.Step) (string, error) {
	spec := step.Prompt

	message, err := expressions.ResolveText(spec.Message, run.Vars)
	if err != nil {
		return "", err
	}

	req := PromptRequest{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		SessionID: run.SessionID,
		StepID:    step.ID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	replies := e.deps.Prompts.Open(req)
	defer e.deps.Prompts.Close(req.ID)

	e.emit(ctx, run, schema.EventPromptRequested, step.ID, map[string]any{
		"prompt_id": req.ID,
		"message":   message,
	})

	waitCtx := ctx
	if e.cfg.PromptTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, e.cfg.PromptTimeout)
		defer cancel()
	}

	select {
	case reply := <-replies:
		e.emit(ctx, run, schema.EventPromptAnswered, step.ID, map[string]any{"prompt_id": req.ID})
		if spec.InputVariable != "" {
			run.Vars[spec.InputVariable] = reply
		}
		return reply, nil
	case <-waitCtx.Done():
		return "", schema.NewErrorf(schema.ErrCodePromptAborted,
			"prompt %s abandoned: %s", req.ID, waitCtx.Err().Error()).
			WithCause(waitCtx.Err()).WithStep(step.ID)
	}
}

func (e *Executor) runToolCall(ctx context.Context, run *Run, step *schema.Step) (string, error) {
	spec := step.Tool

	resolved, err := expressions.ResolveValue(toAnyMap(spec.Arguments), run.Vars)
	if err != nil {
		return "", err
	}
	args, _ := resolved.(map[string]any)

	return e.deps.Tools.Invoke(ctx, spec.ToolName, args)
}

func (e *Executor) runSubWorkflow(ctx context.Context, run *Run, step *schema.Step) (string, error) {
	spec := step.Sub

	if e.deps.Source == nil {
		return "", schema.NewError(schema.ErrCodeWorkflowNotFound,
			"no workflow source configured for sub_workflow steps").WithStep(step.ID)
	}
	if run.depth+1 > maxSubWorkflowDepth {
		return "", schema.NewErrorf(schema.ErrCodeStepFailed,
			"sub-workflow nesting exceeds depth %d", maxSubWorkflowDepth).WithStep(step.ID)
	}

	child, err := e.deps.Source.Get(spec.WorkflowName)
	if err != nil {
		return "", err
	}

	resolvedArgs, err := expressions.ResolveStringMap(spec.Args, run.Vars)
	if err != nil {
		return "", err
	}
	childArgs := make(map[string]any, len(resolvedArgs))
	for k, v := range resolvedArgs {
		childArgs[k] = v
	}

	childRun, err := e.NewRun(child, childArgs)
	if err != nil {
		return "", err
	}
	childRun.SessionID = run.SessionID
	childRun.Mode = run.Mode
	childRun.depth = run.depth + 1

	result, err := e.Execute(ctx, childRun)
	if err != nil {
		return "", err
	}
	if result.Status != schema.RunStatusCompleted {
		return "", schema.NewErrorf(schema.ErrCodeStepFailed,
			"sub-workflow %q failed: %s", spec.WorkflowName, result.Error).
			WithStep(step.ID).
			WithDetails(map[string]any{"child_run_id": result.RunID, "failed_step_id": result.FailedStepID})
	}

	data, mErr := json.Marshal(result.Outputs)
	if mErr != nil {
		return "", schema.NewError(schema.ErrCodeInternal, "marshal sub-workflow outputs").WithCause(mErr)
	}
	return string(data), nil
}

func (e *Executor) runPluginAction(ctx context.Context, run *Run, step *schema.Step) (string, error) {
	spec := step.Plugin

	if e.deps.Plugins == nil {
		return "", schema.NewError(schema.ErrCodePluginFailed,
			"no plugin host configured for plugin_action steps").WithStep(step.ID)
	}

	resolved, err := expressions.ResolveValue(toAnyMap(spec.Arguments), run.Vars)
	if err != nil {
		return "", err
	}
	args, _ := resolved.(map[string]any)

	return e.deps.Plugins.Invoke(ctx, spec.PluginName, spec.ActionName, args)
}

// applyOutput post-processes the raw merged output per the step's mode and
// returns the value to capture.
func (e *Executor) applyOutput(ctx context.Context, step *schema.Step, raw string) (any, error) {
	switch step.Output.EffectiveMode() {
	case schema.OutputModeRaw:
		return raw, nil

	case schema.OutputModeJSON:
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeOutputParse,
				"step output is not valid JSON: %s", err.Error()).
				WithCause(err).WithStep(step.ID).
				WithDetails(map[string]any{"output": tail(raw, 256)})
		}
		return parsed, nil

	case schema.OutputModeRegex:
		re, err := regexp.Compile(step.Output.Pattern)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeOutputParse,
				"invalid output pattern %q: %s", step.Output.Pattern, err.Error()).
				WithCause(err).WithStep(step.ID)
		}
		if re.NumSubexp() != 1 {
			return nil, schema.NewErrorf(schema.ErrCodeOutputParse,
				"output pattern %q must contain exactly one capture group (has %d)",
				step.Output.Pattern, re.NumSubexp()).WithStep(step.ID)
		}
		idx := re.FindStringSubmatchIndex(raw)
		if idx == nil {
			return nil, schema.NewErrorf(schema.ErrCodeOutputParse,
				"output pattern %q did not match step output", step.Output.Pattern).
				WithStep(step.ID).
				WithDetails(map[string]any{"output": tail(raw, 256)})
		}
		if idx[2] < 0 {
			return nil, schema.NewErrorf(schema.ErrCodeOutputParse,
				"output pattern %q matched without capturing", step.Output.Pattern).WithStep(step.ID)
		}
		return raw[idx[2]:idx[3]], nil

	case schema.OutputModeJQ:
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeOutputParse,
				"step output is not valid JSON for jq query: %s", err.Error()).
				WithCause(err).WithStep(step.ID)
		}
		result, err := e.jq.Query(ctx, step.Output.Query, parsed)
		if err != nil {
			return nil, err
		}
		return result, nil

	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown output mode %q", step.Output.Mode).WithStep(step.ID)
	}
}

// evalCondition evaluates a boolean condition expression against the
// current bindings.
func (e *Executor) evalCondition(ctx context.Context, condition string, vars map[string]any) (bool, error) {
	out, err := e.deps.Conditions.Evaluate(ctx, condition, vars)
	if err != nil {
		return false, err
	}
	pass, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeCondition,
			"condition %q evaluated to %T, expected boolean", condition, out)
	}
	return pass, nil
}

func (e *Executor) resolveEnvironment(run *Run, step *schema.Step) (map[string]string, error) {
	if len(run.Workflow.Environment) == 0 && len(step.Environment) == 0 {
		return nil, nil
	}
	merged := make(map[string]string, len(run.Workflow.Environment)+len(step.Environment))
	for k, v := range run.Workflow.Environment {
		merged[k] = v
	}
	for k, v := range step.Environment {
		merged[k] = v
	}
	return expressions.ResolveStringMap(merged, run.Vars)
}

// failStep finalizes a failed record, persists it, and emits the failure.
func (e *Executor) failStep(ctx context.Context, run *Run, rec schema.StepRecord, stepErr error) (schema.StepRecord, error) {
	rec.Status = schema.StepStatusFailed
	rec.Error = stepErr.Error()
	now := time.Now().UTC()
	rec.FinishedAt = &now
	e.appendRecord(ctx, run, rec)
	e.emit(ctx, run, schema.EventStepFailed, rec.StepID, map[string]any{"error": stepErr.Error()})
	return rec, stepErr
}

func (e *Executor) appendRecord(ctx context.Context, run *Run, rec schema.StepRecord) {
	run.Records = append(run.Records, rec)
	if e.deps.Store != nil {
		if err := e.deps.Store.AppendStepRecord(context.WithoutCancel(ctx), run.ID, rec); err != nil {
			logging.LogWith(ctx, e.deps.Logger).Warn("persist step record failed",
				slog.String("error", err.Error()))
		}
	}
}

// FinishRun assembles the run result, persists the terminal state, and
// emits the outcome event.
func (e *Executor) FinishRun(ctx context.Context, run *Run, status schema.RunStatus, failedStepID string, runErr error) *schema.RunResult {
	now := time.Now().UTC()
	result := &schema.RunResult{
		RunID:        run.ID,
		WorkflowID:   run.Workflow.ID,
		WorkflowName: run.Workflow.Name,
		Status:       status,
		Records:      run.Records,
		Outputs:      run.Outputs,
		FailedStepID: failedStepID,
		StartedAt:    run.StartedAt,
		FinishedAt:   &now,
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	if e.deps.Store != nil {
		upd := store.RunUpdate{Status: status, FinishedAt: &now}
		if runErr != nil {
			msg := runErr.Error()
			upd.Error = &msg
		}
		if err := e.deps.Store.UpdateRun(context.WithoutCancel(ctx), run.ID, upd); err != nil {
			logging.LogWith(ctx, e.deps.Logger).Warn("persist run outcome failed",
				slog.String("error", err.Error()))
		}
	}

	switch status {
	case schema.RunStatusCompleted:
		e.emit(ctx, run, schema.EventRunCompleted, "", map[string]any{"steps": len(run.Records)})
	case schema.RunStatusStopped:
		e.emit(ctx, run, schema.EventRunStopped, "", nil)
	default:
		payload := map[string]any{}
		if runErr != nil {
			payload["error"] = runErr.Error()
		}
		if failedStepID != "" {
			payload["failed_step_id"] = failedStepID
		}
		e.emit(ctx, run, schema.EventRunFailed, "", payload)
	}
	return result
}

func (e *Executor) persistRunStart(ctx context.Context, run *Run) {
	if e.deps.Store == nil {
		return
	}
	rec := &store.Run{
		ID:           run.ID,
		WorkflowID:   run.Workflow.ID,
		WorkflowName: run.Workflow.Name,
		SessionID:    run.SessionID,
		Mode:         run.Mode,
		Status:       schema.RunStatusRunning,
		StartedAt:    run.StartedAt,
	}
	if err := e.deps.Store.CreateRun(context.WithoutCancel(ctx), rec); err != nil {
		logging.LogWith(ctx, e.deps.Logger).Warn("persist run start failed",
			slog.String("error", err.Error()))
	}
}

// emit journals and publishes one event. Delivery failures are logged
// only; they never abort a run.
func (e *Executor) emit(ctx context.Context, run *Run, typ, stepID string, payload map[string]any) {
	ev := schema.Event{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		SessionID: run.SessionID,
		Type:      typ,
		StepID:    stepID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	// Terminal events must still flow after cancellation.
	emitCtx := context.WithoutCancel(ctx)
	if e.deps.Store != nil {
		if err := e.deps.Store.AppendEvent(emitCtx, &ev); err != nil {
			logging.LogWith(ctx, e.deps.Logger).Warn("journal event failed",
				slog.String("event_type", typ), slog.String("error", err.Error()))
		}
	}
	if e.deps.Hub != nil {
		if err := e.deps.Hub.Publish(emitCtx, ev); err != nil {
			logging.LogWith(ctx, e.deps.Logger).Warn("publish event failed",
				slog.String("event_type", typ), slog.String("error", err.Error()))
		}
	}
}

// Emit journals and publishes a session-level event for a run driven from
// outside Execute, such as debug pause and breakpoint notifications.
func (e *Executor) Emit(ctx context.Context, run *Run, typ, stepID string, payload map[string]any) {
	e.emit(ctx, run, typ, stepID, payload)
}

// EmitEngineError surfaces an engine-fatal condition as a distinct event
// carrying the run identifier, kept separate from ordinary step failures.
func (e *Executor) EmitEngineError(ctx context.Context, runID, sessionID, message string) {
	e.emit(ctx, &Run{ID: runID, SessionID: sessionID}, schema.EventEngineError, "", map[string]any{
		"message": message,
	})
}

func (e *Executor) stepTimeout(step *schema.Step) time.Duration {
	if step.Timeout != "" {
		if d, err := time.ParseDuration(step.Timeout); err == nil && d > 0 {
			return d
		}
	}
	return e.cfg.DefaultStepTimeout
}

func (e *Executor) workflowTimeout(wf *schema.Workflow) time.Duration {
	if wf.Timeout != "" {
		if d, err := time.ParseDuration(wf.Timeout); err == nil && d > 0 {
			return d
		}
	}
	return e.cfg.WorkflowTimeout
}

func toAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("... (%d bytes omitted)", len(s)-n) + s[len(s)-n:]
}
