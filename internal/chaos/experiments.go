// internal/chaos/experiments.go
package chaos

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"bookswap/internal/auth"
	"bookswap/internal/clients"
	"bookswap/internal/exchange"
)

// RaceConfig parameterises ApprovalRaceExperiment.
type RaceConfig struct {
	SenderID    int64
	RecipientID int64
	BookID      int64
	Concurrency int
	// Strict must match the service's transition mode; it selects the
	// expected outcome.
	Strict bool
}

// ApprovalRaceExperiment fires concurrent approvals at one fresh request.
// Without prior-status checks every approval succeeds and records a fact;
// with them exactly one does.
func ApprovalRaceExperiment(svc exchange.Service, cfg RaceConfig) Experiment {
	var (
		requestID int64
		accepted  atomic.Int64
		rejected  atomic.Int64
	)
	want := float64(cfg.Concurrency)
	if cfg.Strict {
		want = 1
	}

	return Experiment{
		Name:       "concurrent-approval-race",
		Hypothesis: fmt.Sprintf("%d concurrent approvals of one request yield %.0f accepted approvals", cfg.Concurrency, want),
		SteadyState: []Metric{
			{
				Name: "exchange_store_reachable",
				Query: func(ctx context.Context) (float64, error) {
					if _, err := svc.ListMine(ctx, cfg.RecipientID); err != nil {
						return 0, err
					}
					return 1, nil
				},
				Threshold: Threshold{Operator: "==", Value: 1},
			},
		},
		Observe: []Metric{
			{
				Name: "approvals_accepted",
				Query: func(context.Context) (float64, error) {
					return float64(accepted.Load()), nil
				},
			},
			{
				Name: "approvals_refused",
				Query: func(context.Context) (float64, error) {
					return float64(rejected.Load()), nil
				},
			},
			{
				Name: "approval_facts",
				Query: func(ctx context.Context) (float64, error) {
					id := atomic.LoadInt64(&requestID)
					if id == 0 {
						return 0, errors.New("no request under test")
					}
					facts, err := svc.History(ctx, cfg.RecipientID, id)
					if err != nil {
						return 0, err
					}
					n := 0
					for _, f := range facts {
						if f.Type == "exchange_approved" {
							n++
						}
					}
					return float64(n), nil
				},
			},
		},
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "exchange-service",
				Execute: func(ctx context.Context) error {
					req, err := svc.Create(ctx, cfg.SenderID, cfg.BookID, cfg.RecipientID)
					if err != nil {
						return fmt.Errorf("create request under test: %w", err)
					}
					atomic.StoreInt64(&requestID, req.ID)

					start := make(chan struct{})
					var wg sync.WaitGroup
					for i := 0; i < cfg.Concurrency; i++ {
						wg.Add(1)
						go func() {
							defer wg.Done()
							<-start
							if _, err := svc.Approve(ctx, cfg.RecipientID, req.ID); err != nil {
								rejected.Add(1)
								return
							}
							accepted.Add(1)
						}()
					}
					close(start)
					wg.Wait()
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "approvals_accepted",
				Condition: func(v float64) bool { return v == want },
				Message:   fmt.Sprintf("expected %.0f accepted approvals", want),
			},
			{
				Metric:    "approval_facts",
				Condition: func(v float64) bool { return v == want },
				Message:   fmt.Sprintf("expected %.0f exchange_approved facts", want),
			},
		},
		Duration: 2 * time.Second,
	}
}

// faultProxy forwards to the identity service until it is cut, then drops
// every connection without answering.
type faultProxy struct {
	proxy *httputil.ReverseProxy
	down  atomic.Bool
}

func (p *faultProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.down.Load() {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	p.proxy.ServeHTTP(w, r)
}

// VerifierOutageExperiment starts a local listener serving two routes:
// /validate, a cuttable proxy to the identity service, and /probe, guarded
// by the same middleware and identity client catalog and exchange use,
// pointed at that proxy. Cutting the proxy must make /probe fail closed with
// 503, never pass and never surface as 500. The returned func stops the
// listener.
func VerifierOutageExperiment(identityURL, token string, logger *zap.Logger) (Experiment, func() error, error) {
	target, err := url.Parse(identityURL)
	if err != nil {
		return Experiment{}, nil, fmt.Errorf("parse identity url: %w", err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return Experiment{}, nil, fmt.Errorf("listen: %w", err)
	}
	base := "http://" + l.Addr().String()

	fp := &faultProxy{proxy: httputil.NewSingleHostReverseProxy(target)}
	mux := http.NewServeMux()
	mux.Handle("/validate", fp)
	mux.Handle("/probe", auth.Middleware(clients.NewIdentityClient(base), logger)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
	))

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("outage proxy stopped", zap.Error(err))
		}
	}()

	probe := func(ctx context.Context) (float64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/probe", nil)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		return float64(resp.StatusCode), nil
	}

	exp := Experiment{
		Name:       "credential-verifier-outage",
		Hypothesis: "Authenticated requests fail with 503 while the identity service is unreachable",
		SteadyState: []Metric{
			{
				Name:      "authenticated_status",
				Query:     probe,
				Threshold: Threshold{Operator: "==", Value: http.StatusOK},
			},
		},
		Observe: []Metric{
			{Name: "status_during_outage", Query: probe},
		},
		Method: []Action{
			{
				Type:   "network-partition",
				Target: "identity-service",
				Execute: func(context.Context) error {
					fp.down.Store(true)
					return nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "restore-network",
				Target: "identity-service",
				Execute: func(context.Context) error {
					fp.down.Store(false)
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "status_during_outage",
				Condition: func(v float64) bool { return v == http.StatusServiceUnavailable },
				Message:   "requests should fail closed with 503 during the outage",
			},
		},
		Duration: 3 * time.Second,
	}
	return exp, server.Close, nil
}
