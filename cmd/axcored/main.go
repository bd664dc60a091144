// Command axcored is the process that hosts the connection core: it
// performs the macOS-specific startup preconditions (§6), wires platform
// bindings through to the command layer, and drives the main-thread
// native event loop. It links a minimal built-in engine (nullEngine)
// sufficient to exercise the core end-to-end; a real tiling WM engine
// replaces nullEngine by implementing command.WMEngine.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/tilepilot/axcore/internal/audit"
	"github.com/tilepilot/axcore/internal/command"
	"github.com/tilepilot/axcore/internal/config"
	"github.com/tilepilot/axcore/internal/conn"
	"github.com/tilepilot/axcore/internal/eventsrc"
	"github.com/tilepilot/axcore/internal/platform"
	"github.com/tilepilot/axcore/internal/telemetry"
	"github.com/tilepilot/axcore/internal/wmerr"
	"github.com/tilepilot/axcore/internal/wmtypes"
)

// init pins the main goroutine to the OS main thread, on which
// bindings.RunMainLoop must run the native event loop.
func init() {
	runtime.LockOSThread()
}

func main() {
	configFile := flag.String("config", "", "optional TOML config overlay (floating-owner list, AX/metrics knobs)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("axcored: loading configuration: %v", err)
	}
	if *configFile != "" {
		if err := config.LoadFile(cfg, *configFile); err != nil {
			log.Fatalf("axcored: loading config overlay: %v", err)
		}
	}

	metrics := telemetry.NewRegistry()
	auditLogger, err := audit.New(cfg.AuditLogFile)
	if err != nil {
		log.Fatalf("axcored: opening audit log: %v", err)
	}
	defer auditLogger.Close()

	bindings := platform.New()

	// Process-level preconditions, in the order spec.md §6 requires:
	// trust check, messaging timeout, regular activation policy, self
	// activation.
	if !bindings.ProcessIsAccessibilityTrusted(cfg.PromptForTrust) {
		log.Fatal(wmerr.ErrNotTrusted)
	}
	if err := bindings.SetGlobalMessagingTimeout(cfg.MessagingTimeout.Seconds()); err != nil {
		log.Fatalf("axcored: setting messaging timeout: %v", err)
	}
	if err := bindings.ConfigureAsRegularActivationPolicy(); err != nil {
		log.Fatalf("axcored: configuring activation policy: %v", err)
	}
	if err := bindings.ActivateSelf(); err != nil {
		log.Fatalf("axcored: activating self: %v", err)
	}

	events, err := eventsrc.Get(bindings)
	if err != nil {
		log.Fatalf("axcored: starting event source: %v", err)
	}
	state := conn.New(bindings, events.NotificationHandler())
	state.SetTelemetry(metrics)
	layer := command.New(bindings, state, events, metrics, auditLogger)
	layer.SetHidePointMargin(cfg.HidePointMargin)
	engine := newNullEngine()

	if err := layer.ManageExistingClients(engine); err != nil {
		log.Printf("axcored: manage_existing_clients: %v", err)
	}

	if cfg.MetricsAddress != "" {
		go serveMetrics(cfg.MetricsAddress, metrics)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runEventLoop(layer, engine, events, metrics, cfg.Debug)
	}()

	// Notification-driven refreshes (event dispatch, lookup misses) cover
	// the common case; this ticker is the fallback for anything the OS
	// notification streams miss (spec.md's refresh-interval safety net).
	go runRefreshLoop(state, cfg.RefreshInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("axcored: received signal %v, shutting down", sig)
		os.Exit(0)
	}()

	// RunMainLoop blocks forever servicing accessibility/workspace
	// callbacks on this, the OS-designated main thread; the event loop
	// above runs on its own goroutine, matching the two-thread model of
	// spec.md §5.
	bindings.RunMainLoop()
	wg.Wait()
}

// runEventLoop is the engine thread: it blocks on NextEvent and
// dispatches every event to the command layer until the channel closes,
// sampling the source's backlog into the depth gauge after each one.
// When debug is set, every dispatched event is logged.
func runEventLoop(layer *command.Layer, engine command.WMEngine, events *eventsrc.Source, metrics *telemetry.Registry, debug bool) {
	for {
		evt, err := layer.NextEvent()
		if err != nil {
			log.Printf("axcored: event channel closed: %v", err)
			return
		}
		if debug {
			log.Printf("axcored: dispatching %v", evt)
		}
		if err := layer.HandleEvent(evt, engine); err != nil {
			log.Printf("axcored: handling %v: %v", evt, err)
		}
		metrics.SetEventChannelDepth(events.QueueDepth())
	}
}

// runRefreshLoop re-reads the running-app/on-screen-window lists on a
// fixed interval, as a backstop against a missed or coalesced OS
// notification. It never returns.
func runRefreshLoop(state *conn.State, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if err := state.WithLock(func(lk *conn.Locked) error {
			return lk.UpdateKnownAppsAndWindows()
		}); err != nil {
			log.Printf("axcored: scheduled refresh: %v", err)
		}
	}
}

func serveMetrics(addr string, registry *telemetry.Registry) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if err := registry.WritePrometheus(w); err != nil {
			log.Printf("axcored: writing metrics: %v", err)
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	log.Printf("axcored: metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("axcored: metrics server: %v", err)
	}
}

// nullEngine is the minimal command.WMEngine that lets axcored run
// end-to-end without a real tiling engine linked in: it tracks which
// client is focused and always reports the first screen, but applies no
// layout. A production WM engine replaces this type entirely.
type nullEngine struct {
	mu      sync.Mutex
	current wmtypes.WinId
	hasCur  bool
}

func newNullEngine() *nullEngine { return &nullEngine{} }

func (e *nullEngine) Manage(id wmtypes.WinId) error   { return nil }
func (e *nullEngine) Unmanage(id wmtypes.WinId) error { return nil }

func (e *nullEngine) FocusClient(id wmtypes.WinId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current, e.hasCur = id, true
	return nil
}

func (e *nullEngine) CurrentClient() (wmtypes.WinId, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.hasCur
}

func (e *nullEngine) ScreenContaining(p wmtypes.Point) (int, bool) { return 0, true }
