// Package rescue is the Rescue Dispatcher: de-duplicates partitions that
// need a replica rescue, caps concurrent/total rescues, and spawns the
// external replicator helper either locally or via SSH on the handoff's
// owning node.
//
// Every spawn is tracked in a slice of *exec.Cmd and joined at shutdown,
// fire-and-forget in between. SSH mode shells out to
// "ssh -oStrictHostKeyChecking=no user@host cmd", scoped to one device.
package rescue

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	log "github.com/golang/glog"

	"github.com/objaudit/auditor/internal/core"
	"github.com/objaudit/auditor/pkg/retry"
)

// MaxPartsToRescue caps how many distinct partitions one run will request
// rescue for.
const MaxPartsToRescue = 50

// Config configures the dispatcher's external helper invocation.
type Config struct {
	// SSHMode runs the helper remotely, scoped to one (device, partition),
	// instead of locally with just the partition number.
	SSHMode bool
	// SSHUser is the remote user for SSH-mode dispatch.
	SSHUser string
	// LocalHelper is the local helper binary, invoked as
	// "<LocalHelper> <partition>".
	LocalHelper string
	// SSHHelper is the remote helper command template, invoked as
	// "<SSHHelper> -partitions <p> -devices <d> -once".
	SSHHelper string
}

// DefaultConfig holds the documented helper binary names.
var DefaultConfig = Config{
	LocalHelper: "rescueparts",
	SSHHelper:   "object-replicator",
}

// Dispatcher tracks in-flight and historical rescue requests for one run.
type Dispatcher struct {
	cfg Config

	mu              sync.Mutex
	partsToRescue   map[int]bool
	devicesRescuing map[string]int // "ip/device" -> count
	procs           []*exec.Cmd
	retrier         retry.Retrier
}

// New creates a Dispatcher for one run.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		cfg:             cfg,
		partsToRescue:   make(map[int]bool),
		devicesRescuing: make(map[string]int),
		retrier: retry.Retrier{
			MinSleep:      200 * time.Millisecond,
			MaxSleep:      2 * time.Second,
			MaxNumRetries: 2,
		},
	}
}

// RequestRescue asks the dispatcher to rescue the partition held (only) on
// handoff node n. It de-duplicates by partition, enforces the rescue caps,
// and never blocks the caller on the subprocess itself.
func (d *Dispatcher) RequestRescue(part int, n core.Node) {
	d.mu.Lock()
	if d.partsToRescue[part] {
		d.mu.Unlock()
		return
	}
	if len(d.partsToRescue) >= MaxPartsToRescue {
		d.mu.Unlock()
		log.Warningf("rescue cap (%d) reached; dropping rescue request for partition %d", MaxPartsToRescue, part)
		return
	}
	if d.cfg.SSHMode {
		key := n.IP + "/" + n.Device
		if d.devicesRescuing[key] > 0 {
			d.mu.Unlock()
			log.Warningf("rescue already dispatched for device %s this run; dropping request for partition %d", key, part)
			return
		}
		d.devicesRescuing[key]++
	}
	d.partsToRescue[part] = true
	d.mu.Unlock()

	d.spawn(part, n)
}

func (d *Dispatcher) spawn(part int, n core.Node) {
	var cmd *exec.Cmd
	if d.cfg.SSHMode {
		script := fmt.Sprintf("%s -partitions %d -devices %s -once", d.cfg.SSHHelper, part, n.Device)
		options := []string{
			"-oStrictHostKeyChecking=no",
			fmt.Sprintf("%s@%s", d.cfg.SSHUser, n.IP),
			script,
		}
		cmd = exec.Command("ssh", options...)
	} else {
		cmd = exec.Command(d.cfg.LocalHelper, fmt.Sprintf("%d", part))
	}

	var started bool
	d.retrier.Do(context.Background(), func(i int) bool {
		if err := cmd.Start(); err != nil {
			log.Warningf("rescue spawn attempt %d for partition %d failed: %s", i, part, err)
			return false
		}
		started = true
		return true
	})
	if !started {
		log.Errorf("giving up on rescue spawn for partition %d after retries", part)
		return
	}

	log.Infof("dispatched rescue for partition %d (ssh=%v node=%s)", part, d.cfg.SSHMode, n.Addr())
	d.mu.Lock()
	d.procs = append(d.procs, cmd)
	d.mu.Unlock()
}

// PartsToRescueCount reports how many distinct partitions were requested
// this run (bounded by MaxPartsToRescue).
func (d *Dispatcher) PartsToRescueCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.partsToRescue)
}

// WaitForRescues joins every spawned rescue subprocess. This is
// unconditional: a hung subprocess hangs the shutdown too. A more robust
// design would impose a timeout and inspect exit codes; this one doesn't.
func (d *Dispatcher) WaitForRescues() {
	d.mu.Lock()
	procs := d.procs
	d.procs = nil
	d.mu.Unlock()

	for _, cmd := range procs {
		if err := cmd.Wait(); err != nil {
			log.Warningf("rescue subprocess exited with error: %s", err)
		}
	}
}
