package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"

	"golang.org/x/time/rate"

	"github.com/nao1215/stealthfetch/internal/config"
	"github.com/nao1215/stealthfetch/internal/detect"
	"github.com/nao1215/stealthfetch/internal/handler"
	"github.com/nao1215/stealthfetch/internal/identity"
	"github.com/nao1215/stealthfetch/internal/log"
	"github.com/nao1215/stealthfetch/internal/pacer"
	"github.com/nao1215/stealthfetch/internal/proxypool"
	"github.com/nao1215/stealthfetch/internal/retry"
	"github.com/nao1215/stealthfetch/internal/session"
	"github.com/nao1215/stealthfetch/internal/tor"
	"github.com/nao1215/stealthfetch/internal/transport"
)

// pacerSeedOffset separates the pacer's random stream from the generator's
// when both are derived from the same --seed.
const pacerSeedOffset = 0x9e3779b97f4a7c15

// fetchEnv holds the collaborators shared by every session of one run.
//
// Design decision: the pool, pacer, limiter and transport are built once
// and handed to the session factory, so concurrent workers share pacing
// state and proxy health while each session keeps its own identity.
type fetchEnv struct {
	cfg       *config.Config
	logger    *slog.Logger
	generator *identity.Generator
	pool      *proxypool.Pool
	transport *transport.HTTPTransport
	handler   handler.Handler
	factory   session.Factory

	// embeddedTor is non-nil when --tor started a daemon.
	embeddedTor *tor.EmbeddedTor
}

// setupLogger creates the run logger. Every logger is wrapped by the
// secure handler so cookies and proxy credentials never reach the output.
func setupLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.LogJSON {
		return log.NewSecureJSONLogger(w, cfg.Verbose)
	}
	return log.NewSecureLogger(w, cfg.Verbose)
}

// seededRand returns a PCG source for seed, or nil when seed is 0 so the
// components fall back to their own time-based seeding.
func seededRand(seed, offset uint64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(seed, seed^offset)) //nolint:gosec // fingerprint choice, not crypto
}

// newFetchEnv wires the run's components from cfg. progress receives
// human-readable status lines (Tor bootstrap). The caller must Close the
// returned environment.
func newFetchEnv(ctx context.Context, cfg *config.Config, logger *slog.Logger, progress io.Writer) (*fetchEnv, error) {
	env := &fetchEnv{cfg: cfg, logger: logger}

	h, err := handler.ByName(cfg.Handler)
	if err != nil {
		return nil, err
	}
	env.handler = h

	env.generator, err = identity.NewGenerator(identity.WithRand(seededRand(cfg.Seed, 1)))
	if err != nil {
		return nil, fmt.Errorf("failed to create identity generator: %w", err)
	}

	p, err := pacer.New(cfg.RequestsPerSecond,
		pacer.WithJitter(cfg.MinDelay, cfg.MaxDelay),
		pacer.WithRand(seededRand(cfg.Seed, pacerSeedOffset)),
		pacer.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pacer: %w", err)
	}

	env.pool, err = loadPool(cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.UseTor {
		if err := env.startTor(ctx, progress); err != nil {
			env.Close()
			return nil, err
		}
	}

	env.transport = transport.NewHTTPTransport(
		transport.WithMaxBodySize(cfg.MaxBodySize),
		transport.WithLogger(logger),
	)

	policy := retry.NewPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.BackoffFactor = cfg.BackoffFactor
	policy.MaxBackoff = cfg.MaxBackoff

	opts := []session.Option{
		session.WithPacer(p),
		session.WithPolicy(policy),
		session.WithResponseHook(detect.ChallengeHook),
		session.WithRotateEvery(cfg.RotateEvery),
		session.WithTimeout(cfg.Timeout),
		session.WithVerifyTLS(cfg.VerifyTLS),
		session.WithCookies(cfg.Cookies),
		session.WithHeaderOverlay(cfg.SiteConfigs.Header),
		session.WithLogger(logger),
	}
	if env.pool.Len() > 0 {
		opts = append(opts, session.WithPool(env.pool))
	}
	if cfg.GlobalRate > 0 {
		burst := max(1, int(math.Ceil(cfg.GlobalRate)))
		opts = append(opts, session.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.GlobalRate), burst)))
	}
	if cfg.Verbose {
		opts = append(opts, session.WithObserver(func(from, to session.State) {
			if to.IsTerminal() {
				logger.Debug("request finished", "from", from.String(), "outcome", to.String())
			}
		}))
	}

	env.factory = session.NewFactory(env.generator, env.transport, opts...)
	return env, nil
}

// loadPool builds the proxy pool from the proxy file and inline specs.
// Malformed lines in the file are skipped; a malformed inline spec is an
// error because the user typed it on purpose.
func loadPool(cfg *config.Config, logger *slog.Logger) (*proxypool.Pool, error) {
	pool := proxypool.NewPool(
		proxypool.WithMaxFailures(cfg.MaxProxyFailures),
		proxypool.WithLogger(logger),
	)
	if cfg.ProxyFile != "" {
		if _, err := pool.LoadFile(cfg.ProxyFile); err != nil {
			return nil, fmt.Errorf("failed to load proxy file: %w", err)
		}
	}
	for _, spec := range cfg.Proxies {
		if _, err := pool.AddFromSpec(spec); err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", log.RedactURLs(spec), err)
		}
	}
	return pool, nil
}

// startTor starts the embedded Tor daemon, verifies its SOCKS port and adds
// it to the pool.
func (e *fetchEnv) startTor(ctx context.Context, progress io.Writer) error {
	fmt.Fprintln(progress, "Starting embedded Tor daemon...")
	fmt.Fprintf(progress, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embedded := tor.NewEmbeddedTor(
		tor.WithStartupTimeout(e.cfg.TorStartupTimeout),
		tor.WithLogger(e.logger),
	)
	if err := embedded.Start(ctx); err != nil {
		return fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	e.embeddedTor = embedded

	entry, err := embedded.Entry()
	if err != nil {
		return err
	}
	if status := tor.CheckSOCKS5(ctx, entry); status != tor.ProxyStatusOK {
		return fmt.Errorf("embedded Tor proxy check failed: %s", status)
	}

	e.pool.Add(entry)
	e.logger.Info("embedded Tor daemon added to proxy pool", "proxy", entry.String())
	fmt.Fprintf(progress, "Embedded Tor daemon started (SOCKS proxy: %s)\n\n", embedded.SocksAddr())
	return nil
}

// Close logs pool health, releases idle connections and stops the embedded
// Tor daemon.
func (e *fetchEnv) Close() {
	if e.pool != nil && e.pool.Len() > 0 {
		st := e.pool.Stats()
		e.logger.Info("proxy pool after run", "total", st.Total, "usable", st.Usable, "retired", st.Retired)
	}
	if e.transport != nil {
		e.transport.Close()
	}
	if e.embeddedTor != nil {
		e.logger.Info("stopping embedded Tor daemon")
		if err := e.embeddedTor.Stop(); err != nil {
			e.logger.Error("failed to stop embedded Tor", "error", err)
		}
	}
}
