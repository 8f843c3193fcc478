// Command siwectl talks to a siwegate server from the terminal: it signs in
// with a local key, authorizes payments and keeps a wallet on the right chain.
package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"

	"github.com/layer-3/siwegate"
	"github.com/layer-3/siwegate/adapters/wallet"
	"github.com/layer-3/siwegate/chaingate"
	"github.com/layer-3/siwegate/internal/logging"
)

// defaultServer matches the server's default HTTP_ADDR
const defaultServer = "http://localhost:8080"

func main() {
	app := &cli.App{
		Name:  "siwectl",
		Usage: "Sign-In with Ethereum client for siwegate",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: defaultServer, EnvVars: []string{"SIWEGATE_URL"}},
			&cli.Uint64Flag{Name: "chain-id", Value: 80002, EnvVars: []string{"ACCEPTED_CHAIN_ID"}},
			&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"LOG_LEVEL"}},
		},
		Before: func(c *cli.Context) error {
			logging.Init("siwectl", c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "print a new secp256k1 key and its address",
				Action: func(c *cli.Context) error {
					key, err := crypto.GenerateKey()
					if err != nil {
						return err
					}
					fmt.Printf("key:     %x\naddress: %s\n", crypto.FromECDSA(key), crypto.PubkeyToAddress(key.PublicKey).Hex())
					return nil
				},
			},
			{
				Name:  "login",
				Usage: "sign in with a local key and print the session",
				Flags: []cli.Flag{
					keyFlag,
					&cli.DurationFlag{Name: "expiry", Usage: "expiration time of the signed message"},
					&cli.StringFlag{Name: "statement", Value: "Sign in to the academy"},
				},
				Action: login,
			},
			{
				Name:  "pay",
				Usage: "sign in and authorize a course payment",
				Flags: []cli.Flag{
					keyFlag,
					&cli.StringFlag{Name: "course", Required: true},
					&cli.StringFlag{Name: "amount", Required: true},
					&cli.StringFlag{Name: "currency", Value: "USDC"},
				},
				Action: pay,
			},
			{
				Name:  "gate",
				Usage: "keep a wallet rpc endpoint on the accepted chain",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "wallet", Value: "ws://localhost:8546", EnvVars: []string{"WALLET_RPC_URL"}},
					&cli.StringFlag{Name: "chain-name", Value: "Polygon Amoy"},
					&cli.StringSliceFlag{Name: "rpc-url", Value: cli.NewStringSlice("https://rpc-amoy.polygon.technology")},
					&cli.StringSliceFlag{Name: "explorer-url", Value: cli.NewStringSlice("https://amoy.polygonscan.com")},
					&cli.StringFlag{Name: "currency", Value: "POL"},
					&cli.DurationFlag{Name: "poll", Value: 2 * time.Second},
				},
				Action: gate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Logger.WithError(err).Fatal("siwectl failed")
	}
}

var keyFlag = &cli.StringFlag{
	Name:     "key",
	Usage:    "hex encoded secp256k1 private key",
	EnvVars:  []string{"SIWE_PRIVATE_KEY"},
	Required: true,
}

func loadKey(c *cli.Context) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.String("key"), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing key: %w", err)
	}
	return key, nil
}

func signIn(c *cli.Context) (*siwegate.HTTPClient, *ecdsa.PrivateKey, *siwegate.Login, error) {
	key, err := loadKey(c)
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := siwegate.NewHTTPClient(c.String("server"))
	if err != nil {
		return nil, nil, nil, err
	}
	login, err := client.SignIn(c.Context, key, siwegate.SignInOptions{
		ChainID:   c.Uint64("chain-id"),
		Statement: c.String("statement"),
		Expiry:    c.Duration("expiry"),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return client, key, login, nil
}

func login(c *cli.Context) error {
	_, _, res, err := signIn(c)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func pay(c *cli.Context) error {
	client, key, _, err := signIn(c)
	if err != nil {
		return err
	}
	auth, err := client.AuthorizePayment(c.Context, key, siwegate.Payment{
		CourseID: c.String("course"),
		Amount:   c.String("amount"),
		Currency: c.String("currency"),
	})
	if err != nil {
		return err
	}
	return printJSON(auth)
}

func gate(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := wallet.Dial(ctx, c.String("wallet"), c.Duration("poll"))
	if err != nil {
		return err
	}
	defer provider.Close()
	provider.Start(ctx)

	g := chaingate.New(provider, printer{}, chaingate.Config{
		ChainID:           c.Uint64("chain-id"),
		ChainName:         c.String("chain-name"),
		RPCURLs:           c.StringSlice("rpc-url"),
		BlockExplorerURLs: c.StringSlice("explorer-url"),
		Currency:          chaingate.NativeCurrency{Name: c.String("currency"), Symbol: c.String("currency"), Decimals: 18},
	})
	g.Mount(ctx)
	defer g.Unmount()

	<-ctx.Done()
	return nil
}

// printer shows gate notifications on the terminal
type printer struct{}

func (printer) Success(msg string) { fmt.Println("✓", msg) }
func (printer) Warning(msg string) { fmt.Println("!", msg) }
func (printer) Error(msg string)   { fmt.Fprintln(os.Stderr, "✗", msg) }

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
