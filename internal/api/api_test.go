package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kandev/conductor/internal/agentclient"
	"github.com/kandev/conductor/internal/common/logger"
	"github.com/kandev/conductor/internal/deployment"
	"github.com/kandev/conductor/internal/design"
	"github.com/kandev/conductor/internal/eventlog"
	"github.com/kandev/conductor/internal/pattern"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}
	return log
}

func setupTestServer(t *testing.T) (*gin.Engine, *deployment.Tracker) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := testLogger(t)

	backend := &agentclient.StubBackend{}
	client := agentclient.NewClient(backend, agentclient.NewRegistry(), nil, time.Second, log)

	runner := &design.Runner{
		Runtime:           &pattern.Runtime{Client: client},
		MaxParallelBlocks: 2,
		Log:               log,
	}

	store := eventlog.NewMemoryStore(100)
	bus := eventlog.NewBus(store, log)
	hub := eventlog.NewHub(bus, log)

	executor := deployment.NewExecutor(runner, store, bus, log)
	tracker := deployment.NewTracker()
	deployService := deployment.NewService(tracker, executor)
	designs := design.NewStore()

	router := NewRouter(&Server{
		Executor:    executor,
		Designs:     designs,
		Deployments: deployService,
		Tracker:     tracker,
		Store:       store,
		Hub:         hub,
		Log:         log,
	})
	return router, tracker
}

func TestExecuteSequentialPattern(t *testing.T) {
	router, _ := setupTestServer(t)

	body := PatternRequest{
		Task:   "say hello",
		Agents: []AgentSpec{{Name: "writer", SystemPrompt: "be terse"}},
	}
	raw, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/patterns/sequential", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp PatternResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Pattern != v1.PatternSequential {
		t.Errorf("expected pattern sequential, got %s", resp.Pattern)
	}
	if resp.Status != string(v1.ExecutionCompleted) {
		t.Errorf("expected completed, got %s", resp.Status)
	}
	if resp.ExecutionID == "" {
		t.Error("expected non-empty execution id")
	}
}

func TestExecutePatternRejectsMissingAgents(t *testing.T) {
	router, _ := setupTestServer(t)

	body := PatternRequest{Task: "say hello"}
	raw, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/patterns/sequential", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestExecuteUnknownDesignReturns404(t *testing.T) {
	router, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/designs/missing/execute", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown design, got %d", w.Code)
	}
}

func TestCancelUnknownExecutionReturns404(t *testing.T) {
	router, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/executions/never-existed/cancel", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestTriggerUnknownDeploymentReturns404(t *testing.T) {
	router, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/deployed/my/pipeline", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDeploymentTriggerAndLogLookup(t *testing.T) {
	router, tracker := setupTestServer(t)
	tracker.Register(&deployment.Deployment{
		ID:   "dep1",
		Path: "/my/pipeline",
		Design: &v1.Design{
			ID: "d1",
			Blocks: []v1.Block{
				{ID: "b1", Pattern: v1.PatternSequential, Agents: []v1.Agent{{Name: "a1"}}, Task: "go"},
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/deployed/my/pipeline", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp TriggerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ExecutionID == "" || resp.LogID != resp.ExecutionID {
		t.Fatalf("unexpected trigger response: %+v", resp)
	}

	// Poll until the deployment log resolves to a terminal execution.
	deadline := time.After(time.Second)
	for {
		logReq := httptest.NewRequest(http.MethodGet, "/deployments/dep1/logs/"+resp.LogID, nil)
		logW := httptest.NewRecorder()
		router.ServeHTTP(logW, logReq)
		if logW.Code == http.StatusOK {
			var exec v1.Execution
			if err := json.Unmarshal(logW.Body.Bytes(), &exec); err == nil && exec.Status.Terminal() {
				return
			}
		}
		select {
		case <-deadline:
			t.Fatal("deployment execution never reached terminal state")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestListDeploymentLogs(t *testing.T) {
	router, tracker := setupTestServer(t)
	tracker.Register(&deployment.Deployment{ID: "dep1", Path: "/p", Design: &v1.Design{ID: "d1"}})
	tracker.RecordTrigger("dep1", "exec-1")
	tracker.RecordTrigger("dep1", "exec-2")

	req := httptest.NewRequest(http.MethodGet, "/deployments/dep1/logs?limit=1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		LogIDs []string `json:"log_ids"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.LogIDs) != 1 || resp.LogIDs[0] != "exec-2" {
		t.Errorf("expected [exec-2], got %v", resp.LogIDs)
	}
}
