// Package orchestration executes tasks against one or more capabilities
// with single, sequential, and parallel modes, bounded retries, and
// aggregated cost/token accounting.
package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketbeam/orchestrator/internal/capability"
	"github.com/marketbeam/orchestrator/internal/completion"
	"github.com/marketbeam/orchestrator/internal/config"
	"github.com/marketbeam/orchestrator/internal/credentials"
	"github.com/marketbeam/orchestrator/internal/metrics"
	"github.com/marketbeam/orchestrator/internal/session"
	"github.com/marketbeam/orchestrator/internal/tracing"
)

// CompletionClient is the completion endpoint surface the orchestrator
// consumes.
type CompletionClient interface {
	Complete(ctx context.Context, req *completion.Request) (*completion.Response, error)
}

// CredentialResolver resolves provider credentials for completion calls.
type CredentialResolver interface {
	ResolveCompletionConfig(ctx context.Context, provider string) (*credentials.CompletionConfig, bool)
}

// Orchestrator executes tasks for a single tenant and user. Instances are
// created per (tenant, user) by the registry.
type Orchestrator struct {
	tenantID    string
	userID      string
	registry    *capability.Registry
	credentials CredentialResolver
	completion  CompletionClient
	sessions    *session.Manager
	cfg         config.OrchestratorConfig
	logger      *zap.Logger
}

// New creates an orchestrator. sessions may be nil when conversation
// continuity is not needed.
func New(tenantID, userID string, registry *capability.Registry, creds CredentialResolver,
	client CompletionClient, sessions *session.Manager, cfg config.OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "openai"
	}
	return &Orchestrator{
		tenantID:    tenantID,
		userID:      userID,
		registry:    registry,
		credentials: creds,
		completion:  client,
		sessions:    sessions,
		cfg:         cfg,
		logger: logger.With(
			zap.String("tenant_id", tenantID),
			zap.String("user_id", userID),
		),
	}
}

// ExecuteTask runs a task and returns an aggregated result. It never
// returns an error: malformed tasks yield a result with an empty result
// list, a descriptive final response, and overall success false.
func (o *Orchestrator) ExecuteTask(ctx context.Context, task *Task) *Result {
	start := time.Now()

	if reason := validateTask(task); reason != "" {
		o.logger.Warn("Rejected malformed task", zap.String("reason", reason))
		return &Result{
			TaskID:        taskID(task),
			Results:       []CapabilityResult{},
			FinalResponse: "Task could not be executed: " + reason,
			Success:       false,
		}
	}

	ctx, span := tracing.StartTaskSpan(ctx, task.ID, string(task.Mode))
	defer span.End()

	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	metrics.TasksStarted.WithLabelValues(string(task.Mode)).Inc()
	o.logger.Info("Executing task",
		zap.String("task_id", task.ID),
		zap.String("mode", string(task.Mode)),
		zap.Strings("capability_ids", task.CapabilityIDs),
	)

	var results []CapabilityResult
	switch task.Mode {
	case ModeSingle:
		results = o.executeSingle(ctx, task)
	case ModeSequential:
		results = o.executeSequential(ctx, task)
	case ModeParallel:
		results = o.executeParallel(ctx, task)
	}

	result := aggregate(task.ID, results)
	result.Duration = time.Since(start)

	status := "success"
	if !result.Success {
		status = "failure"
	}
	metrics.RecordTaskMetrics(string(task.Mode), status, result.Duration.Seconds(), result.TotalTokens, result.TotalCostUSD)
	o.logger.Info("Task finished",
		zap.String("task_id", task.ID),
		zap.Bool("success", result.Success),
		zap.Int("result_count", len(result.Results)),
		zap.Int("total_tokens", result.TotalTokens),
		zap.Float64("total_cost_usd", result.TotalCostUSD),
		zap.Duration("duration", result.Duration),
	)
	return result
}

func validateTask(task *Task) string {
	switch {
	case task == nil:
		return "task is nil"
	case len(task.CapabilityIDs) == 0:
		return "no capabilities listed"
	case !task.Mode.Valid():
		return fmt.Sprintf("unrecognized execution mode %q", task.Mode)
	}
	return ""
}

func taskID(task *Task) string {
	if task == nil {
		return ""
	}
	return task.ID
}

func (o *Orchestrator) executeSingle(ctx context.Context, task *Task) []CapabilityResult {
	taskCtx := task.Context
	result := o.executeCapability(ctx, task.CapabilityIDs[0], task.Input, &taskCtx)
	return []CapabilityResult{result}
}

// executeSequential runs capabilities in list order. Each step sees all
// prior results in its context and the previous step's response as its
// input; a failed step stops the sequence.
func (o *Orchestrator) executeSequential(ctx context.Context, task *Task) []CapabilityResult {
	taskCtx := task.Context
	input := task.Input

	var results []CapabilityResult
	for _, id := range task.CapabilityIDs {
		result := o.executeCapability(ctx, id, input, &taskCtx)
		results = append(results, result)
		if !result.Success {
			break
		}
		taskCtx.PreviousResults = append(taskCtx.PreviousResults, result)
		if result.Response != "" {
			input = result.Response
		}
	}
	return results
}

// executeParallel fans out all capabilities concurrently against the
// original input and context and waits for every one to settle. Capability
// IDs missing from the registry are skipped, not failed.
func (o *Orchestrator) executeParallel(ctx context.Context, task *Task) []CapabilityResult {
	var known []string
	for _, id := range task.CapabilityIDs {
		if _, ok := o.registry.Get(id); ok {
			known = append(known, id)
		} else {
			o.logger.Debug("Skipping unknown capability in parallel task",
				zap.String("task_id", task.ID),
				zap.String("capability_id", id))
		}
	}

	results := make([]CapabilityResult, len(known))
	var wg sync.WaitGroup
	for i, id := range known {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			// Each goroutine gets its own context copy so no step can
			// observe another's partial output.
			taskCtx := task.Context
			results[i] = o.executeCapability(ctx, id, task.Input, &taskCtx)
		}(i, id)
	}
	wg.Wait()
	return results
}

// executeCapability runs one capability invocation end to end: descriptor
// lookup, credential resolution, prompt construction, the completion call
// with bounded retries, and suggestion extraction.
func (o *Orchestrator) executeCapability(ctx context.Context, capabilityID, input string, taskCtx *Context) CapabilityResult {
	start := time.Now()
	ctx, span := tracing.StartCapabilitySpan(ctx, capabilityID)
	defer span.End()

	result := CapabilityResult{
		CapabilityID: capabilityID,
		Timestamp:    start,
	}
	fail := func(errMsg string) CapabilityResult {
		result.Success = false
		result.Error = errMsg
		result.Duration = time.Since(start)
		metrics.RecordCapabilityMetrics(capabilityID, "failure", float64(result.Duration.Milliseconds()))
		return result
	}

	desc, ok := o.registry.Get(capabilityID)
	if !ok {
		return fail(fmt.Sprintf("unknown capability %q", capabilityID))
	}
	if !desc.IsActive() {
		return fail(fmt.Sprintf("capability %q is not active (status: %s)", capabilityID, desc.Status))
	}

	provider, model, pref := o.modelPreference(desc)
	cfg, ok := o.credentials.ResolveCompletionConfig(ctx, provider)
	if !ok {
		return fail(fmt.Sprintf("missing credential for provider %q", provider))
	}

	req := &completion.Request{
		Provider:     provider,
		Model:        model,
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Prompt:       buildPrompt(desc, taskCtx, input),
		TenantID:     o.tenantID,
		CapabilityID: capabilityID,
	}
	if pref != nil {
		req.MaxTokens = pref.MaxTokens
		req.Temperature = pref.Temperature
		req.TopP = pref.TopP
		req.FrequencyPenalty = pref.FrequencyPenalty
		req.PresencePenalty = pref.PresencePenalty
	}

	resp, err := o.completeWithRetry(ctx, req)
	if err != nil {
		return fail(fmt.Sprintf("completion failed: %v", err))
	}

	result.Success = true
	result.Response = resp.Content
	result.Data = resp.Data
	result.TokensUsed = resp.TokensUsed
	result.CostUSD = resp.Cost
	result.Suggestions = extractSuggestions(resp.Content)
	if len(result.Suggestions) == 0 {
		result.Suggestions = fallbackSuggestions(desc.Name, desc.Category)
	}
	result.Duration = time.Since(start)
	metrics.RecordCapabilityMetrics(capabilityID, "success", float64(result.Duration.Milliseconds()))
	return result
}

// completeWithRetry issues the completion call with up to MaxRetries
// additional attempts after the first, sleeping attempt x base delay
// between attempts.
func (o *Orchestrator) completeWithRetry(ctx context.Context, req *completion.Request) (*completion.Response, error) {
	attempts := 1 + o.cfg.MaxRetries

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := o.completion.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		metrics.CapabilityRetries.WithLabelValues(req.CapabilityID).Inc()
		o.logger.Warn("Completion attempt failed, retrying",
			zap.String("capability_id", req.CapabilityID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		delay := time.Duration(attempt) * o.cfg.RetryBaseDelay
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// modelPreference picks the capability's highest-priority declared model,
// falling back to the configured defaults.
func (o *Orchestrator) modelPreference(desc *capability.Capability) (provider, model string, pref *capability.ModelPreference) {
	if len(desc.ModelPreferences) == 0 {
		return o.cfg.DefaultProvider, o.cfg.DefaultModel, nil
	}

	best := &desc.ModelPreferences[0]
	for i := 1; i < len(desc.ModelPreferences); i++ {
		if desc.ModelPreferences[i].Priority < best.Priority {
			best = &desc.ModelPreferences[i]
		}
	}
	provider = best.Provider
	if provider == "" {
		provider = o.cfg.DefaultProvider
	}
	model = best.Model
	if model == "" {
		model = o.cfg.DefaultModel
	}
	return provider, model, best
}

// aggregate folds per-capability results into one task result: a
// pass-through response for a single result, a labeled multi-section
// summary otherwise.
func aggregate(taskID string, results []CapabilityResult) *Result {
	out := &Result{
		TaskID:  taskID,
		Results: results,
		Success: len(results) > 0,
	}

	for _, r := range results {
		out.TotalTokens += r.TokensUsed
		out.TotalCostUSD += r.CostUSD
		if !r.Success {
			out.Success = false
		}
	}

	switch len(results) {
	case 0:
		out.FinalResponse = "No capabilities produced a result."
	case 1:
		if results[0].Success {
			out.FinalResponse = results[0].Response
		} else {
			out.FinalResponse = fmt.Sprintf("%s failed: %s", results[0].CapabilityID, results[0].Error)
		}
	default:
		var b strings.Builder
		for i, r := range results {
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "## %s\n", r.CapabilityID)
			if r.Success {
				b.WriteString(r.Response)
			} else {
				fmt.Fprintf(&b, "Failed: %s", r.Error)
			}
		}
		out.FinalResponse = b.String()
	}
	return out
}

// BuildTaskFromMessage turns a raw user message into a single-mode task,
// choosing the capability via intent classification and attaching recent
// conversation history when a conversation is named.
func (o *Orchestrator) BuildTaskFromMessage(ctx context.Context, text, conversationID string) *Task {
	intent := AnalyzeIntent(text)
	metrics.IntentClassifications.WithLabelValues(intent.PrimaryCapability).Inc()

	task := &Task{
		ID:            uuid.New().String(),
		Mode:          ModeSingle,
		CapabilityIDs: []string{intent.PrimaryCapability},
		Input:         text,
		Context: Context{
			TenantID:       o.tenantID,
			UserID:         o.userID,
			ConversationID: conversationID,
		},
	}

	if conversationID != "" && o.sessions != nil {
		conv, err := o.sessions.Get(ctx, o.tenantID, conversationID)
		if err == nil {
			task.Context.History = conv.RecentHistory(historyWindow)
		} else {
			o.logger.Debug("No conversation history attached",
				zap.String("conversation_id", conversationID),
				zap.Error(err))
		}
	}
	return task
}
