// Command blockchat runs one participant of a BlockChat network: either
// the fixed bootstrap (id 0) or a peer that joins an already-running
// bootstrap over UDP.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/avtzis/blockchat/chain"
	"github.com/avtzis/blockchat/node"
)

var gitCommit = ""
var gitDate = ""

func main() {
	app := &cli.App{
		Name:    "blockchat",
		Usage:   "run a BlockChat bootstrap or peer node",
		Version: fmt.Sprintf("%s %s", gitCommit, gitDate),
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "bootstrap", Usage: "run as the fixed bootstrap participant (id 0)"},
			&cli.StringFlag{Name: "host", Value: "127.0.0.1", Usage: "local host to bind"},
			&cli.IntFlag{Name: "port", Value: 0, Usage: "local port to bind (bootstrap must set a fixed port)"},
			&cli.StringFlag{Name: "bootstrap-host", Value: "127.0.0.1", Usage: "bootstrap's advertised host (peer only)"},
			&cli.IntFlag{Name: "bootstrap-port", Usage: "bootstrap's advertised port (peer only)"},
			&cli.IntFlag{Name: "nodes", Usage: "total peer count, excluding bootstrap (bootstrap only)"},
			&cli.IntFlag{Name: "capacity", Value: 5, Usage: "transactions per block"},
			&cli.Float64Flag{Name: "stake", Value: 10, Usage: "stake to commit once activated (peer only)"},
			&cli.BoolFlag{Name: "verbose", Usage: "log informational events"},
			&cli.BoolFlag{Name: "debug", Usage: "log debug events"},
			&cli.DurationFlag{Name: "ping-retry", Value: 100 * time.Millisecond, Usage: "bootstrap ping retry interval"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := node.Config{
		NodesCount:     c.Int("nodes"),
		Capacity:       c.Int("capacity"),
		InitialStake:   c.Float64("stake"),
		BootstrapHost:  c.String("bootstrap-host"),
		BootstrapPort:  c.Int("bootstrap-port"),
		Verbose:        c.Bool("verbose"),
		Debug:          c.Bool("debug"),
		PingRetryEvery: c.Duration("ping-retry"),
	}

	if c.Bool("bootstrap") {
		return runBootstrap(cfg, c.String("host"), c.Int("port"))
	}
	return runPeer(cfg, c.String("host"), c.Int("port"))
}

func runBootstrap(cfg node.Config, host string, port int) error {
	b, err := node.NewBootstrap(cfg)
	if err != nil {
		return fmt.Errorf("blockchat: bootstrap: %w", err)
	}
	if err := b.Bind(host, port); err != nil {
		return fmt.Errorf("blockchat: bootstrap: bind: %w", err)
	}
	if err := b.CreateGenesisAndSelf(); err != nil {
		return fmt.Errorf("blockchat: bootstrap: genesis: %w", err)
	}

	b.Start()
	b.Log().Info("bootstrap ready", "nodes_expected", cfg.NodesCount)

	waitForever()
	return nil
}

func runPeer(cfg node.Config, host string, port int) error {
	n, err := node.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("blockchat: peer: %w", err)
	}
	if err := n.Bind(host, port); err != nil {
		return fmt.Errorf("blockchat: peer: bind: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := n.Join(ctx); err != nil {
		return fmt.Errorf("blockchat: peer: join: %w", err)
	}

	n.Start()
	n.Log().Info("peer active", "id", n.ID())

	if cfg.InitialStake > 0 {
		go stakeOnceFunded(n, cfg.InitialStake)
	}

	waitForever()
	return nil
}

// stakeOnceFunded commits the configured stake as soon as the genesis
// coin credit lands locally. There is no explicit "ready" signal on the
// wire, so this polls the local balance cache the way the rest of the
// protocol tolerates best-effort timing.
func stakeOnceFunded(n *node.Node, amount float64) {
	for i := 0; i < 100; i++ {
		if n.LocalBalance() >= amount {
			if err := n.ExecuteTransaction(-1, chain.TxStake, amount); err != nil {
				n.Log().Warn("initial stake failed", "err", err)
			}
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	n.Log().Warn("initial stake skipped: never observed sufficient balance")
}

func waitForever() {
	select {}
}
