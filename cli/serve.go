// ABOUTME: HTTP trigger for runs, for schedulers that invoke a URL
// ABOUTME: Serves /run, /healthz, and Prometheus /metrics with one run at a time
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harperreed/latecancel/workflow"
)

const platform = "latecancel serve"

type runResponse struct {
	Success   bool              `json:"success"`
	Timestamp string            `json:"timestamp"`
	Platform  string            `json:"platform"`
	Message   string            `json:"message,omitempty"`
	Error     string            `json:"error,omitempty"`
	Stage     string            `json:"stage,omitempty"`
	Stack     []string          `json:"stack,omitempty"`
	Summary   *workflow.Summary `json:"summary,omitempty"`
}

type runHandler struct {
	mu     sync.Mutex
	run    func(context.Context) (workflow.Summary, error)
	now    func() time.Time
	logger *log.Logger
}

// newServeMux wires the HTTP endpoints around run.
func newServeMux(run func(context.Context) (workflow.Summary, error), logger *log.Logger) *http.ServeMux {
	h := &runHandler{run: run, now: time.Now, logger: logger}
	mux := http.NewServeMux()
	mux.Handle("/run", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (h *runHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := runResponse{Platform: platform}
	if !h.mu.TryLock() {
		resp.Timestamp = h.now().UTC().Format(time.RFC3339)
		resp.Error = "a run is already in progress"
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	defer h.mu.Unlock()

	// The run outlives a dropped client connection
	summary, err := h.run(context.WithoutCancel(r.Context()))
	resp.Timestamp = h.now().UTC().Format(time.RFC3339)

	if err != nil {
		h.logger.Error("triggered run failed", "err", err)
		resp.Error = err.Error()
		var stageErr *workflow.StageError
		if errors.As(err, &stageErr) {
			resp.Stage = string(stageErr.Stage)
		}
		resp.Stack = errorChain(err)
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	resp.Success = true
	resp.Message = fmt.Sprintf("Processed %d members, cancelled %d bookings", summary.Members, summary.BookingsCancelled)
	resp.Stage = string(workflow.StageSummary)
	resp.Summary = &summary
	writeJSON(w, http.StatusOK, resp)
}

// errorChain lists err and every error it wraps, outermost first.
func errorChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		err = errors.Unwrap(err)
	}
	return chain
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ServeCommand listens until SIGINT or SIGTERM.
func (a *App) ServeCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", a.Config.Server.ListenAddress, "Listen address")
	_ = fs.Parse(args)

	if err := a.preflight(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr: *addr,
		Handler: newServeMux(func(ctx context.Context) (workflow.Summary, error) {
			return a.RunOnce(ctx, false)
		}, a.Logger),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	fmt.Fprintf(a.out(), "✓ Listening on %s (POST /run, /healthz, /metrics)\n", *addr)

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	fmt.Fprintln(a.out(), "\n✓ Shutting down")
	return server.Shutdown(shutdownCtx)
}
