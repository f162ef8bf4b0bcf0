package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/marketbeam/orchestrator/internal/capability"
	"github.com/marketbeam/orchestrator/internal/completion"
	"github.com/marketbeam/orchestrator/internal/config"
	"github.com/marketbeam/orchestrator/internal/credentials"
)

const testCatalog = `
capabilities:
  - id: blog_writer
    name: Blog Writer
    category: content
    description: Long-form blog drafting
    features: [drafting, editing]
    system_prompt: "You are an expert content writer."
    model_preferences:
      - provider: openai
        model: gpt-4o-mini
        priority: 1
  - id: seo_optimizer
    name: SEO Optimizer
    category: seo
    description: Keyword research
  - id: data_analyst
    name: Data Analyst
    category: analytics
    description: Reporting
  - id: broken_tool
    name: Broken Tool
    category: misc
    description: Permanently under maintenance
    status: maintenance
`

type fakeCompletion struct {
	mu       sync.Mutex
	requests []*completion.Request
	// respond decides the outcome per request; nil means generic success.
	respond func(req *completion.Request) (*completion.Response, error)
}

func (f *fakeCompletion) Complete(_ context.Context, req *completion.Request) (*completion.Response, error) {
	cp := *req
	f.mu.Lock()
	f.requests = append(f.requests, &cp)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(req)
	}
	return &completion.Response{Content: "done: " + req.CapabilityID, TokensUsed: 10, Cost: 0.0001}, nil
}

func (f *fakeCompletion) requestsFor(capabilityID string) []*completion.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*completion.Request
	for _, r := range f.requests {
		if r.CapabilityID == capabilityID {
			out = append(out, r)
		}
	}
	return out
}

type fakeCredentials struct {
	missing map[string]bool
}

func (f *fakeCredentials) ResolveCompletionConfig(_ context.Context, provider string) (*credentials.CompletionConfig, bool) {
	if f.missing[provider] {
		return nil, false
	}
	return &credentials.CompletionConfig{Provider: provider, APIKey: "sk-test-0123456789abcdef"}, true
}

func testConfig() config.OrchestratorConfig {
	return config.OrchestratorConfig{
		MaxRetries:      3,
		RetryBaseDelay:  time.Millisecond,
		DefaultProvider: "openai",
		DefaultModel:    "gpt-4o-mini",
	}
}

func newTestOrchestrator(t *testing.T, client CompletionClient, creds CredentialResolver) *Orchestrator {
	t.Helper()
	reg, err := capability.Load([]byte(testCatalog))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if creds == nil {
		creds = &fakeCredentials{}
	}
	return New("tenant-1", "user-1", reg, creds, client, nil, testConfig(), zap.NewNop())
}

func TestSingleModeEndToEnd(t *testing.T) {
	fc := &fakeCompletion{}
	o := newTestOrchestrator(t, fc, nil)

	result := o.ExecuteTask(context.Background(), &Task{
		ID:            "t1",
		Mode:          ModeSingle,
		CapabilityIDs: []string{"blog_writer"},
		Input:         "Write about X",
	})

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if len(result.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(result.Results))
	}
	if result.Results[0].Response == "" || result.FinalResponse == "" {
		t.Error("empty response")
	}
	if result.TotalTokens != 10 {
		t.Errorf("token accounting wrong: %d", result.TotalTokens)
	}

	reqs := fc.requestsFor("blog_writer")
	if len(reqs) != 1 {
		t.Fatalf("expected exactly 1 completion call, got %d", len(reqs))
	}
	prompt := reqs[0].Prompt
	for _, want := range []string{"expert content writer", "Blog Writer", "drafting", "Request: Write about X", "Suggestions"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestSequentialShortCircuit(t *testing.T) {
	fc := &fakeCompletion{
		respond: func(req *completion.Request) (*completion.Response, error) {
			if req.CapabilityID == "blog_writer" {
				return nil, errors.New("model exploded")
			}
			return &completion.Response{Content: "ok"}, nil
		},
	}
	o := newTestOrchestrator(t, fc, nil)

	result := o.ExecuteTask(context.Background(), &Task{
		ID:            "t2",
		Mode:          ModeSequential,
		CapabilityIDs: []string{"blog_writer", "seo_optimizer", "data_analyst"},
		Input:         "analyze",
	})

	if result.Success {
		t.Error("expected failure")
	}
	if len(result.Results) != 1 || result.Results[0].CapabilityID != "blog_writer" {
		t.Fatalf("expected only the failing step's result, got %+v", result.Results)
	}
	if len(fc.requestsFor("seo_optimizer")) != 0 || len(fc.requestsFor("data_analyst")) != 0 {
		t.Error("later steps were invoked after a failure")
	}
}

func TestSequentialPipesOutputForward(t *testing.T) {
	fc := &fakeCompletion{
		respond: func(req *completion.Request) (*completion.Response, error) {
			return &completion.Response{Content: "output-of-" + req.CapabilityID, TokensUsed: 5}, nil
		},
	}
	o := newTestOrchestrator(t, fc, nil)

	result := o.ExecuteTask(context.Background(), &Task{
		ID:            "t3",
		Mode:          ModeSequential,
		CapabilityIDs: []string{"blog_writer", "seo_optimizer"},
		Input:         "original input",
	})

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	second := fc.requestsFor("seo_optimizer")
	if len(second) != 1 {
		t.Fatalf("expected 1 call, got %d", len(second))
	}
	if !strings.Contains(second[0].Prompt, "Request: output-of-blog_writer") {
		t.Error("second step did not receive first step's output as input")
	}
	if !strings.Contains(second[0].Prompt, "[blog_writer]") {
		t.Error("second step's context missing prior result")
	}
	if result.TotalTokens != 10 {
		t.Errorf("token accounting wrong: %d", result.TotalTokens)
	}
	if !strings.Contains(result.FinalResponse, "## blog_writer") || !strings.Contains(result.FinalResponse, "## seo_optimizer") {
		t.Errorf("final response missing section labels:\n%s", result.FinalResponse)
	}
}

func TestParallelIndependence(t *testing.T) {
	run := func(firstFails bool) string {
		fc := &fakeCompletion{
			respond: func(req *completion.Request) (*completion.Response, error) {
				if firstFails && req.CapabilityID == "blog_writer" {
					return nil, errors.New("down")
				}
				return &completion.Response{Content: "ok"}, nil
			},
		}
		o := newTestOrchestrator(t, fc, nil)
		o.ExecuteTask(context.Background(), &Task{
			ID:            "t4",
			Mode:          ModeParallel,
			CapabilityIDs: []string{"blog_writer", "seo_optimizer"},
			Input:         "shared input",
		})
		reqs := fc.requestsFor("seo_optimizer")
		if len(reqs) == 0 {
			t.Fatal("seo_optimizer never invoked")
		}
		return reqs[0].Prompt
	}

	clean := run(false)
	withFailure := run(true)
	if clean != withFailure {
		t.Error("parallel step's input changed based on sibling outcome")
	}
	if !strings.Contains(clean, "Request: shared input") {
		t.Error("parallel step did not receive the original input")
	}
	if strings.Contains(clean, "Output from previous steps") {
		t.Error("parallel step observed sibling output")
	}
}

func TestParallelSkipsUnknownCapability(t *testing.T) {
	fc := &fakeCompletion{}
	o := newTestOrchestrator(t, fc, nil)

	result := o.ExecuteTask(context.Background(), &Task{
		ID:            "t5",
		Mode:          ModeParallel,
		CapabilityIDs: []string{"blog_writer", "no_such_thing"},
		Input:         "go",
	})

	if !result.Success {
		t.Errorf("unknown capability counted as failure: %+v", result)
	}
	if len(result.Results) != 1 {
		t.Errorf("expected 1 result, got %d", len(result.Results))
	}
}

func TestRetryBound(t *testing.T) {
	calls := 0
	fc := &fakeCompletion{
		respond: func(*completion.Request) (*completion.Response, error) {
			calls++
			return nil, errors.New("always down")
		},
	}
	o := newTestOrchestrator(t, fc, nil)

	result := o.ExecuteTask(context.Background(), &Task{
		ID:            "t6",
		Mode:          ModeSingle,
		CapabilityIDs: []string{"blog_writer"},
		Input:         "go",
	})

	if calls != 4 {
		t.Errorf("expected 4 attempts (1 initial + 3 retries), got %d", calls)
	}
	if result.Success {
		t.Error("expected failure")
	}
	if result.Results[0].Error == "" {
		t.Error("failed result missing error detail")
	}
}

func TestUnknownCapabilityFailsWithoutRetry(t *testing.T) {
	fc := &fakeCompletion{}
	o := newTestOrchestrator(t, fc, nil)

	result := o.ExecuteTask(context.Background(), &Task{
		ID:            "t7",
		Mode:          ModeSingle,
		CapabilityIDs: []string{"no_such_thing"},
		Input:         "go",
	})

	if result.Success || len(result.Results) != 1 {
		t.Fatalf("expected one failed result, got %+v", result)
	}
	if len(fc.requests) != 0 {
		t.Error("remote call made for unknown capability")
	}
}

func TestInactiveCapabilityFailsWithStatus(t *testing.T) {
	fc := &fakeCompletion{}
	o := newTestOrchestrator(t, fc, nil)

	result := o.ExecuteTask(context.Background(), &Task{
		ID:            "t8",
		Mode:          ModeSingle,
		CapabilityIDs: []string{"broken_tool"},
		Input:         "go",
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Results[0].Error, "maintenance") {
		t.Errorf("error missing status detail: %q", result.Results[0].Error)
	}
	if len(fc.requests) != 0 {
		t.Error("remote call made for inactive capability")
	}
}

func TestMissingCredentialFailsWithoutRetry(t *testing.T) {
	fc := &fakeCompletion{}
	o := newTestOrchestrator(t, fc, &fakeCredentials{missing: map[string]bool{"openai": true}})

	result := o.ExecuteTask(context.Background(), &Task{
		ID:            "t9",
		Mode:          ModeSingle,
		CapabilityIDs: []string{"blog_writer"},
		Input:         "go",
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Results[0].Error, "missing credential") {
		t.Errorf("unexpected error: %q", result.Results[0].Error)
	}
	if len(fc.requests) != 0 {
		t.Error("completion invoked without a credential")
	}
}

func TestMalformedTaskNeverPanics(t *testing.T) {
	o := newTestOrchestrator(t, &fakeCompletion{}, nil)

	for _, task := range []*Task{
		nil,
		{ID: "x", Mode: ModeSingle},
		{ID: "y", Mode: "round_robin", CapabilityIDs: []string{"blog_writer"}},
	} {
		result := o.ExecuteTask(context.Background(), task)
		if result.Success {
			t.Errorf("malformed task reported success: %+v", task)
		}
		if result.Results == nil || len(result.Results) != 0 {
			t.Errorf("expected empty result list, got %+v", result.Results)
		}
		if result.FinalResponse == "" {
			t.Error("missing descriptive final response")
		}
	}
}

func TestBuildTaskFromMessage(t *testing.T) {
	o := newTestOrchestrator(t, &fakeCompletion{}, nil)

	task := o.BuildTaskFromMessage(context.Background(), "write a blog post about spring campaigns", "conv-1")
	if task.Mode != ModeSingle {
		t.Errorf("expected single mode, got %s", task.Mode)
	}
	if len(task.CapabilityIDs) != 1 || task.CapabilityIDs[0] != "blog_writer" {
		t.Errorf("unexpected capability: %v", task.CapabilityIDs)
	}
	if task.Context.TenantID != "tenant-1" || task.Context.UserID != "user-1" {
		t.Errorf("context identity missing: %+v", task.Context)
	}
	if task.Context.ConversationID != "conv-1" {
		t.Errorf("conversation id missing: %+v", task.Context)
	}
	if task.ID == "" {
		t.Error("task missing generated ID")
	}
}
