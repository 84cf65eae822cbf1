package health

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "sync"
    "time"

    "github.com/gorilla/mux"

    "github.com/hamzaKhattat/lead-router-core/pkg/logger"
)

// HealthService exposes liveness and readiness endpoints backed by named
// checks. Liveness checks answer "is the process worth keeping running";
// readiness checks answer "can it currently serve traffic" — a caller
// registers under whichever set fits (internal/db's ping goes on both).
type HealthService struct {
    mu        sync.RWMutex
    liveness  map[string]Checker
    readiness map[string]Checker
    server    *http.Server
}

type Checker interface {
    Check(ctx context.Context) error
}

type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error {
    return f(ctx)
}

type HealthResponse struct {
    Status    string                 `json:"status"`
    Timestamp time.Time              `json:"timestamp"`
    Checks    map[string]CheckResult `json:"checks,omitempty"`
    TotalTime string                 `json:"total_time,omitempty"`
}

type CheckResult struct {
    Status   string `json:"status"`
    Error    string `json:"error,omitempty"`
    Duration string `json:"duration"`
}

func NewHealthService(port int) *HealthService {
    hs := &HealthService{
        liveness:  make(map[string]Checker),
        readiness: make(map[string]Checker),
    }

    router := mux.NewRouter()
    router.HandleFunc("/health/live", hs.handleLiveness).Methods("GET")
    router.HandleFunc("/health/ready", hs.handleReadiness).Methods("GET")

    hs.server = &http.Server{
        Addr:         fmt.Sprintf(":%d", port),
        Handler:      router,
        ReadTimeout:  10 * time.Second,
        WriteTimeout: 10 * time.Second,
    }

    return hs
}

func (hs *HealthService) Start() error {
    logger.WithField("addr", hs.server.Addr).Info("health service started")
    return hs.server.ListenAndServe()
}

func (hs *HealthService) Stop() error {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    return hs.server.Shutdown(ctx)
}

func (hs *HealthService) RegisterLivenessCheck(name string, check Checker) {
    hs.mu.Lock()
    defer hs.mu.Unlock()
    hs.liveness[name] = check
}

func (hs *HealthService) RegisterReadinessCheck(name string, check Checker) {
    hs.mu.Lock()
    defer hs.mu.Unlock()
    hs.readiness[name] = check
}

func (hs *HealthService) handleLiveness(w http.ResponseWriter, r *http.Request) {
    hs.respond(w, r, hs.liveness)
}

func (hs *HealthService) handleReadiness(w http.ResponseWriter, r *http.Request) {
    hs.respond(w, r, hs.readiness)
}

type namedResult struct {
    name   string
    result CheckResult
}

// respond runs every check in checks concurrently and waits for all of them
// before writing a response — a hung check would otherwise block the whole
// endpoint, but these are expected to be fast pings with their own timeouts.
func (hs *HealthService) respond(w http.ResponseWriter, r *http.Request, checks map[string]Checker) {
    ctx := r.Context()
    start := time.Now()

    hs.mu.RLock()
    defer hs.mu.RUnlock()

    results := runChecks(ctx, checks)

    response := HealthResponse{
        Status:    "ok",
        Timestamp: start,
        Checks:    make(map[string]CheckResult, len(results)),
    }
    for name, result := range results {
        response.Checks[name] = result
        if result.Status != "ok" {
            response.Status = "failed"
        }
    }
    response.TotalTime = time.Since(start).String()

    w.Header().Set("Content-Type", "application/json")
    if response.Status != "ok" {
        w.WriteHeader(http.StatusServiceUnavailable)
    }
    json.NewEncoder(w).Encode(response)
}

func runChecks(ctx context.Context, checks map[string]Checker) map[string]CheckResult {
    resultChan := make(chan namedResult, len(checks))

    var wg sync.WaitGroup
    for name, check := range checks {
        wg.Add(1)
        go func(name string, check Checker) {
            defer wg.Done()
            resultChan <- namedResult{name: name, result: runOne(ctx, check)}
        }(name, check)
    }

    go func() {
        wg.Wait()
        close(resultChan)
    }()

    results := make(map[string]CheckResult, len(checks))
    for res := range resultChan {
        results[res.name] = res.result
    }
    return results
}

func runOne(ctx context.Context, check Checker) CheckResult {
    start := time.Now()
    err := check.Check(ctx)
    result := CheckResult{Status: "ok", Duration: time.Since(start).String()}
    if err != nil {
        result.Status = "failed"
        result.Error = err.Error()
    }
    return result
}
