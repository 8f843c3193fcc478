package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/siwegate/chaingate"
	"github.com/layer-3/siwegate/internal/eth"
)

type walletState struct {
	mu       sync.Mutex
	chainID  uint64
	accounts []string
	rejects  int
}

type ethAPI struct{ s *walletState }

func (a *ethAPI) ChainId() hexutil.Uint64 {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return hexutil.Uint64(a.s.chainID)
}

func (a *ethAPI) Accounts() []string {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return append([]string(nil), a.s.accounts...)
}

type switchRequest struct {
	ChainID string `json:"chainId"`
}

type walletAPI struct{ s *walletState }

func (a *walletAPI) SwitchEthereumChain(req switchRequest) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if a.s.rejects > 0 {
		a.s.rejects--
		return &chaingate.ProviderError{Code: chaingate.CodeRequestPending, Message: "request already pending"}
	}
	id, err := eth.ParseChainIDHex(req.ChainID)
	if err != nil {
		return err
	}
	a.s.chainID = id
	return nil
}

func newInProc(t *testing.T, s *walletState) *RPCProvider {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", &ethAPI{s}))
	require.NoError(t, server.RegisterName("wallet", &walletAPI{s}))
	t.Cleanup(server.Stop)

	p := NewRPCProvider(rpc.DialInProc(server), 10*time.Millisecond)
	t.Cleanup(p.Close)
	return p
}

func TestRPCProviderRequest(t *testing.T) {
	s := &walletState{chainID: 1}
	p := newInProc(t, s)

	var hex string
	require.NoError(t, p.Request(context.Background(), &hex, chaingate.MethodChainID))
	assert.Equal(t, "0x1", hex)

	s.rejects = 1
	err := p.Request(context.Background(), nil, chaingate.MethodSwitchChain, map[string]string{"chainId": "0x13882"})
	var rpcErr rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, chaingate.CodeRequestPending, rpcErr.ErrorCode())
}

func TestRPCProviderPollsEvents(t *testing.T) {
	s := &walletState{chainID: 1, accounts: []string{"0xAbC0000000000000000000000000000000000001"}}
	p := newInProc(t, s)
	p.Start(context.Background())

	// let the baseline poll run
	time.Sleep(30 * time.Millisecond)

	s.mu.Lock()
	s.chainID = 80002
	s.mu.Unlock()

	select {
	case ev := <-p.Events():
		assert.Equal(t, chaingate.ChainChanged, ev.Kind)
		assert.Equal(t, uint64(80002), ev.ChainID)
	case <-time.After(2 * time.Second):
		t.Fatal("no chainChanged event")
	}

	s.mu.Lock()
	s.accounts = nil
	s.mu.Unlock()

	select {
	case ev := <-p.Events():
		assert.Equal(t, chaingate.AccountsChanged, ev.Kind)
		assert.Empty(t, ev.Accounts)
	case <-time.After(2 * time.Second):
		t.Fatal("no accountsChanged event")
	}
}

type countingNotifier struct {
	mu      sync.Mutex
	success int
	errors  int
}

func (n *countingNotifier) Success(string) { n.mu.Lock(); n.success++; n.mu.Unlock() }
func (n *countingNotifier) Warning(string) {}
func (n *countingNotifier) Error(string)   { n.mu.Lock(); n.errors++; n.mu.Unlock() }

func TestGateOverRPC(t *testing.T) {
	s := &walletState{chainID: 1, rejects: 2}
	p := newInProc(t, s)
	n := &countingNotifier{}

	g := chaingate.New(p, n, chaingate.Config{ChainID: 80002, ChainName: "Polygon Amoy", BaseDelay: time.Millisecond})
	g.Mount(context.Background())
	defer g.Unmount()
	<-g.Ready()

	s.mu.Lock()
	assert.Equal(t, uint64(80002), s.chainID)
	s.mu.Unlock()
	n.mu.Lock()
	assert.Equal(t, 1, n.success)
	assert.Equal(t, 0, n.errors)
	n.mu.Unlock()
}
