package wallet

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/layer-3/siwegate/chaingate"
	"github.com/layer-3/siwegate/internal/eth"
	"github.com/layer-3/siwegate/internal/logging"
)

const DefaultPollInterval = 2 * time.Second

// RPCProvider exposes a JSON-RPC wallet endpoint as a chaingate.Provider.
// JSON-RPC has no push channel for wallet events, so chainChanged and
// accountsChanged are synthesised by polling.
type RPCProvider struct {
	client   *rpc.Client
	interval time.Duration
	events   chan chaingate.Event

	startOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

var _ chaingate.Provider = (*RPCProvider)(nil)

// Dial connects to the wallet endpoint at url
func Dial(ctx context.Context, url string, interval time.Duration) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dialing wallet rpc: %w", err)
	}
	return NewRPCProvider(client, interval), nil
}

func NewRPCProvider(client *rpc.Client, interval time.Duration) *RPCProvider {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &RPCProvider{
		client:   client,
		interval: interval,
		events:   make(chan chaingate.Event, 8),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *RPCProvider) Request(ctx context.Context, result any, method string, params ...any) error {
	return p.client.CallContext(ctx, result, method, params...)
}

func (p *RPCProvider) Events() <-chan chaingate.Event {
	return p.events
}

// Start begins polling the wallet. The first poll only records a baseline.
func (p *RPCProvider) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		go p.poll(ctx)
	})
}

// Close stops polling and closes the connection
func (p *RPCProvider) Close() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	started := true
	p.startOnce.Do(func() { started = false })
	if started {
		<-p.done
	}
	p.client.Close()
}

func (p *RPCProvider) poll(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var (
		chainID  uint64
		accounts []string
		primed   bool
	)
	for {
		c, cErr := p.chainID(ctx)
		a, aErr := p.accounts(ctx)
		if cErr != nil || aErr != nil {
			logging.Logger.WithError(firstErr(cErr, aErr)).Debug("wallet poll failed")
		} else {
			if primed && c != chainID {
				p.emit(chaingate.Event{Kind: chaingate.ChainChanged, ChainID: c})
			}
			if primed && !slices.Equal(a, accounts) {
				p.emit(chaingate.Event{Kind: chaingate.AccountsChanged, Accounts: a})
			}
			chainID, accounts, primed = c, a, true
		}

		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
		}
	}
}

func (p *RPCProvider) emit(ev chaingate.Event) {
	select {
	case p.events <- ev:
	default:
		logging.Logger.WithField("event", ev.Kind).Warn("wallet event dropped, consumer is not keeping up")
	}
}

func (p *RPCProvider) chainID(ctx context.Context) (uint64, error) {
	var hex string
	if err := p.client.CallContext(ctx, &hex, chaingate.MethodChainID); err != nil {
		return 0, err
	}
	return eth.ParseChainIDHex(hex)
}

func (p *RPCProvider) accounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, chaingate.MethodAccounts); err != nil {
		return nil, err
	}
	for i := range accounts {
		accounts[i] = strings.ToLower(accounts[i])
	}
	return accounts, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
