// Command auditor finds container-listing entries whose underlying object
// data no longer exists on any replica or handoff, optionally deletes the
// orphaned row, and optionally triggers a replica rescue when the data
// turns up only on a handoff.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codegangsta/cli"
	log "github.com/golang/glog"

	"github.com/objaudit/auditor/internal/auditor"
	"github.com/objaudit/auditor/internal/directclient"
	"github.com/objaudit/auditor/internal/input"
	"github.com/objaudit/auditor/internal/ring"
)

func main() {
	app := cli.NewApp()
	app.Name = "auditor"
	app.Usage = "audit container listings against the object data they reference"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "c", Value: auditor.DefaultConfig.Concurrency, Usage: "worker concurrency"},
		cli.StringFlag{Name: "r", Value: auditor.DefaultConfig.RingDir, Usage: "ring directory"},
		cli.StringFlag{Name: "e", Usage: "error file path; one missing object per line"},
		cli.BoolFlag{Name: "d", Usage: "delete confirmed-missing container rows"},
		cli.BoolFlag{Name: "p", Usage: "check every device in the ring, not just 2R"},
		cli.BoolFlag{Name: "t", Usage: "thorough: scan every container replica, not just the first that completes"},
		cli.IntFlag{Name: "m", Usage: "ignore entries younger than this many seconds"},
		cli.BoolFlag{Name: "v", Usage: "verbose: log found-on-primary hits"},
		cli.BoolFlag{Name: "f", Usage: "dispatch rescues over ssh instead of locally"},
		cli.StringFlag{Name: "i", Usage: "read targets from file, one per line"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(c *cli.Context) error {
	cfg := auditor.DefaultConfig
	cfg.Concurrency = c.Int("c")
	cfg.RingDir = c.String("r")
	cfg.ErrorFilePath = c.String("e")
	cfg.Delete = c.Bool("d")
	cfg.CheckAll = c.Bool("p")
	cfg.Thorough = c.Bool("t")
	cfg.Verbose = c.Bool("v")
	cfg.SSHRescue = c.Bool("f")

	if secs := c.Int("m"); secs > 0 {
		cfg.MinAge = time.Duration(secs) * time.Second
	}

	targets, err := input.ReadTargets(c.Args(), c.String("i"), os.Stdin, isTerminal(os.Stdin))
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		cli.ShowAppHelp(c)
		return fmt.Errorf("no targets given")
	}

	r, err := ring.NewDirRing(cfg.RingDir)
	if err != nil {
		return fmt.Errorf("loading ring from %s: %s", cfg.RingDir, err)
	}
	direct := directclient.New()

	a, err := auditor.New(cfg, r, direct)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Warningf("received signal, finishing in-flight work and shutting down")
		cancel()
	}()
	defer signal.Stop(sig)

	snap := a.Run(ctx, targets)
	fmt.Println(snap.String())
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
