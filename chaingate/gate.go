// Package chaingate keeps a connected wallet on the one chain the backend
// accepts. A mismatch is advisory: the gate asks the wallet to switch and
// tells the user, it never blocks sign-in.
package chaingate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/sirupsen/logrus"

	"github.com/layer-3/siwegate/internal/eth"
	"github.com/layer-3/siwegate/internal/logging"
)

const (
	DefaultAttempts  = 4
	DefaultBaseDelay = 250 * time.Millisecond
)

// State of the gate
type State string

const (
	StateIdle      State = "idle"
	StateSwitching State = "switching"
)

// NativeCurrency as expected by wallet_addEthereumChain
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Config describes the target chain and the retry policy
type Config struct {
	ChainID           uint64
	ChainName         string
	RPCURLs           []string
	BlockExplorerURLs []string
	Currency          NativeCurrency

	Attempts  uint
	BaseDelay time.Duration
}

type switchParams struct {
	ChainID string `json:"chainId"`
}

type addChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
}

// Gate reconciles the wallet's active chain against the target chain.
// One Gate serves one mount: the initial reconciliation runs once, and
// nothing reaches the notifier after Unmount.
type Gate struct {
	provider Provider
	notifier Notifier
	cfg      Config
	log      *logrus.Entry

	once   sync.Once
	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}

	// notifyMu serialises notifier callbacks against Unmount. Callbacks never
	// run under mu, so they may read State.
	notifyMu sync.Mutex

	mu         sync.Mutex
	mounted    bool
	state      State
	mismatched bool
}

func New(provider Provider, notifier Notifier, cfg Config) *Gate {
	if cfg.Attempts == 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.ChainName == "" {
		cfg.ChainName = fmt.Sprintf("chain %d", cfg.ChainID)
	}
	return &Gate{
		provider: provider,
		notifier: notifier,
		cfg:      cfg,
		log:      logging.Logger.WithField("chain_id", cfg.ChainID),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		state:    StateIdle,
	}
}

// Mount starts the gate once the session is authenticated. Only the first
// call has an effect.
func (g *Gate) Mount(ctx context.Context) {
	g.once.Do(func() {
		ctx, g.cancel = context.WithCancel(ctx)
		g.mu.Lock()
		g.mounted = true
		g.mu.Unlock()
		go g.run(ctx)
	})
}

// Unmount stops the gate and waits for its loop to exit. In-flight retries
// are cancelled and their results dropped.
func (g *Gate) Unmount() {
	g.notifyMu.Lock()
	g.mu.Lock()
	g.mounted = false
	g.mu.Unlock()
	g.notifyMu.Unlock()

	g.once.Do(func() { close(g.done) })
	if g.cancel != nil {
		g.cancel()
	}
	<-g.done
}

// Ready is closed when the initial reconciliation has finished
func (g *Gate) Ready() <-chan struct{} {
	return g.ready
}

// State reports whether a switch is in progress
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) run(ctx context.Context) {
	defer close(g.done)

	g.reconcile(ctx)
	close(g.ready)

	events := g.provider.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			g.onEvent(ctx, ev)
		}
	}
}

// reconcile reads the current chain and drives the wallet to the target
func (g *Gate) reconcile(ctx context.Context) {
	current, err := g.currentChain(ctx)
	if err == nil && current == g.cfg.ChainID {
		return
	}
	if err != nil {
		g.log.WithError(err).Debug("chain id unreadable, requesting switch")
	}

	g.setState(StateSwitching)
	defer g.setState(StateIdle)

	err = g.switchChain(ctx)
	if ctx.Err() != nil {
		return
	}

	switch {
	case err == nil:
		g.setMismatch(false)
		g.notify(g.notifier.Success, "Switched to "+g.cfg.ChainName)
	case unrecoverable(err) || errors.Is(err, errAddChain):
		g.setMismatch(true)
		g.log.WithError(err).Info("network switch refused")
		g.notify(g.notifier.Error, g.failureMessage(err))
	default:
		g.setMismatch(true)
		g.log.WithError(err).Warn("network switch gave up after retries")
	}
}

var errAddChain = errors.New("adding chain failed")

// switchChain requests the switch with bounded exponential backoff
func (g *Gate) switchChain(ctx context.Context) error {
	var lastErr error
	added := false

	action := func(attempt uint) error {
		lastErr = g.provider.Request(ctx, nil, MethodSwitchChain, switchParams{ChainID: eth.ChainIDHex(g.cfg.ChainID)})
		if errorCode(lastErr) == CodeUnrecognizedChain && !added {
			added = true
			if err := g.addChain(ctx); err != nil {
				lastErr = fmt.Errorf("%w: %w", errAddChain, err)
				return lastErr
			}
			lastErr = g.provider.Request(ctx, nil, MethodSwitchChain, switchParams{ChainID: eth.ChainIDHex(g.cfg.ChainID)})
		}
		if lastErr != nil {
			g.log.WithError(lastErr).WithField("attempt", attempt+1).Debug("switch attempt failed")
		}
		return lastErr
	}

	return retry.Retry(action,
		g.keepGoing(ctx, &lastErr),
		strategy.Limit(g.cfg.Attempts),
		wait(ctx, backoff.Exponential(g.cfg.BaseDelay, 2)),
	)
}

// keepGoing stops retrying on cancellation and on errors a retry cannot fix
func (g *Gate) keepGoing(ctx context.Context, lastErr *error) strategy.Strategy {
	return func(attempt uint) bool {
		if ctx.Err() != nil {
			return false
		}
		if attempt == 0 {
			return true
		}
		return !unrecoverable(*lastErr) && !errors.Is(*lastErr, errAddChain)
	}
}

// wait is strategy.Backoff that gives up when ctx is cancelled
func wait(ctx context.Context, algorithm backoff.Algorithm) strategy.Strategy {
	return func(attempt uint) bool {
		if attempt == 0 {
			return true
		}
		t := time.NewTimer(algorithm(attempt))
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}
}

func (g *Gate) addChain(ctx context.Context) error {
	return g.provider.Request(ctx, nil, MethodAddChain, addChainParams{
		ChainID:           eth.ChainIDHex(g.cfg.ChainID),
		ChainName:         g.cfg.ChainName,
		RPCURLs:           g.cfg.RPCURLs,
		BlockExplorerURLs: g.cfg.BlockExplorerURLs,
		NativeCurrency:    g.cfg.Currency,
	})
}

// onEvent re-evaluates the chain after a wallet event. It warns, it does
// not switch.
func (g *Gate) onEvent(ctx context.Context, ev Event) {
	var current uint64
	switch ev.Kind {
	case ChainChanged:
		current = ev.ChainID
	case AccountsChanged:
		if len(ev.Accounts) == 0 {
			// wallet locked or disconnected
			return
		}
		var err error
		if current, err = g.currentChain(ctx); err != nil {
			g.log.WithError(err).Debug("chain id unreadable after accounts change")
			return
		}
	default:
		return
	}

	if current != g.cfg.ChainID {
		g.setMismatch(true)
		g.notify(g.notifier.Warning, fmt.Sprintf("Wrong network: please switch to %s", g.cfg.ChainName))
		return
	}
	if g.setMismatch(false) {
		g.notify(g.notifier.Success, "Connected to "+g.cfg.ChainName)
	}
}

func (g *Gate) currentChain(ctx context.Context) (uint64, error) {
	var hex string
	if err := g.provider.Request(ctx, &hex, MethodChainID); err != nil {
		return 0, err
	}
	return eth.ParseChainIDHex(hex)
}

func (g *Gate) failureMessage(err error) string {
	switch {
	case errors.Is(err, errAddChain), errorCode(err) == CodeUnsupported:
		return fmt.Sprintf("%s is not supported by your wallet", g.cfg.ChainName)
	case errorCode(err) == CodeUserRejected:
		return "Network switch rejected"
	default:
		return "Could not switch network"
	}
}

func (g *Gate) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// setMismatch records the mismatch flag and reports whether it was set before
func (g *Gate) setMismatch(v bool) (was bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	was = g.mismatched
	g.mismatched = v
	return was
}

// notify drops messages once the gate is unmounted
func (g *Gate) notify(fn func(string), msg string) {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	mounted := g.mounted
	g.mu.Unlock()
	if !mounted {
		return
	}
	fn(msg)
}
