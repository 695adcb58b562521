// Command dobnode starts a single dobcore cluster node from environment
// configuration, the C12 entry point added by SPEC_FULL.md. Exit codes
// follow §6: 0 normal, 1 configuration error, 2 startup synchronization
// failed, 3 fatal runtime error.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/consoden/dobcore/internal/config"
	"github.com/consoden/dobcore/pkg/dob"
	"github.com/consoden/dobcore/pkg/dob/definition"
	"github.com/consoden/dobcore/pkg/dob/types"
	"github.com/prometheus/client_golang/prometheus"
)

// instanceResource is the Synchronized handle this node registers for its
// SAFIR_INSTANCE, per §4.8: the first dobnode process sharing an instance
// creates the instance's runtime directory tree, every process records its
// use, and the last one to exit removes it.
type instanceResource struct {
	root string
	log  types.Logger
}

func (r instanceResource) Create() error {
	r.log.Infof("dobnode: creating runtime tree at %s", r.root)
	return os.MkdirAll(r.root, 0o755)
}

func (r instanceResource) Use() error {
	r.log.Debugf("dobnode: joining existing runtime tree at %s", r.root)
	return nil
}

func (r instanceResource) Destroy() {
	r.log.Infof("dobnode: removing runtime tree at %s", r.root)
	os.RemoveAll(r.root)
}

func main() {
	app := &cli.App{
		Name:  "dobnode",
		Usage: "run a single dobcore distributed object broker node",
		Flags: []cli.Flag{
			&cli.Uint64Flag{Name: "node-id", Required: true, Usage: "local node id"},
			&cli.Uint64Flag{Name: "node-type-id", Value: 1, Usage: "local node type id"},
			&cli.StringFlag{Name: "node-type-name", Value: "server", Usage: "local node type name"},
			&cli.Uint64Flag{Name: "priority", Value: 10, Usage: "local node election priority"},
			&cli.StringSliceFlag{Name: "seed", Usage: "existing cluster member address to join"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

type exitCoded interface {
	ExitCode() int
}

func exitCodeFor(err error) int {
	if ec, ok := err.(exitCoded); ok {
		return ec.ExitCode()
	}
	return 3
}

type configError struct{ error }

func (configError) ExitCode() int { return 1 }

type syncError struct{ error }

func (syncError) ExitCode() int { return 2 }

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return configError{fmt.Errorf("loading configuration: %w", err)}
	}

	log := definition.NewDefaultLogger(cfg.LLLLogLevel)

	localTypeID := types.NodeTypeID(c.Uint64("node-type-id"))
	opts := dob.NodeOptions{
		Local: types.Node{
			ID:        types.NodeID(c.Uint64("node-id")),
			Type:      localTypeID,
			BirthTime: uint64(time.Now().UnixNano()),
		},
		LocalPriority: uint32(c.Uint64("priority")),
		NodeTypes: map[types.NodeTypeID]types.NodeType{
			localTypeID: {
				ID:       localTypeID,
				Name:     c.String("node-type-name"),
				Priority: uint32(c.Uint64("priority")),
			},
		},
		Seeds: c.StringSlice("seed"),
	}

	node, err := dob.NewNode(cfg, log, prometheus.DefaultRegisterer, opts)
	if err != nil {
		return fmt.Errorf("building node: %w", err)
	}

	resource := instanceResource{root: filepath.Join(cfg.SafirRuntime, cfg.SafirInstance), log: log}
	release, err := node.Synchronize(cfg.SafirInstance, resource)
	if err != nil {
		return syncError{fmt.Errorf("synchronizing instance %q: %w", cfg.SafirInstance, err)}
	}
	defer release()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	defer node.Stop()

	log.Infof("dobnode started as node %d", opts.Local.ID)
	<-ctx.Done()
	log.Infof("dobnode shutting down")
	return nil
}
