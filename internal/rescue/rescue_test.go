package rescue

import (
	"testing"
	"time"

	"github.com/objaudit/auditor/internal/core"
	"github.com/objaudit/auditor/pkg/retry"
)

func testConfig() Config {
	return Config{
		LocalHelper: "true", // always succeeds, present on every test box
	}
}

func TestRequestRescueDedupesByPartition(t *testing.T) {
	d := New(testConfig())
	n := core.Node{IP: "10.0.0.1", Port: 6000, Device: "sda"}
	d.RequestRescue(5, n)
	d.RequestRescue(5, n)
	d.RequestRescue(5, n)
	d.WaitForRescues()
	if got := d.PartsToRescueCount(); got != 1 {
		t.Errorf("PartsToRescueCount() = %d, want 1", got)
	}
}

func TestRequestRescueCap(t *testing.T) {
	d := New(testConfig())
	n := core.Node{IP: "10.0.0.1", Port: 6000, Device: "sda"}
	for p := 0; p < MaxPartsToRescue+10; p++ {
		d.RequestRescue(p, n)
	}
	d.WaitForRescues()
	if got := d.PartsToRescueCount(); got != MaxPartsToRescue {
		t.Errorf("PartsToRescueCount() = %d, want %d", got, MaxPartsToRescue)
	}
}

func TestRequestRescueSSHCapsPerDevice(t *testing.T) {
	cfg := testConfig()
	cfg.SSHMode = true
	cfg.SSHUser = "nobody"
	d := New(cfg)
	n := core.Node{IP: "10.0.0.1", Port: 6000, Device: "sda"}
	d.RequestRescue(1, n)
	d.RequestRescue(2, n) // same device, different partition: should be dropped
	d.WaitForRescues()
	if got := d.PartsToRescueCount(); got != 1 {
		t.Errorf("PartsToRescueCount() = %d, want 1 (second request shares device %s)", got, n.Device)
	}
}

func TestRequestRescueGivesUpAfterRetries(t *testing.T) {
	cfg := testConfig()
	cfg.LocalHelper = "/nonexistent/binary/that/cannot/be/started"
	d := New(cfg)
	d.retrier = retry.Retrier{MinSleep: time.Millisecond, MaxSleep: 2 * time.Millisecond, MaxNumRetries: 1}
	n := core.Node{IP: "10.0.0.1", Port: 6000, Device: "sda"}
	d.RequestRescue(1, n)
	d.WaitForRescues() // must not hang even though spawn never succeeded
	if got := d.PartsToRescueCount(); got != 1 {
		t.Errorf("PartsToRescueCount() = %d, want 1 (request is counted even though spawn failed)", got)
	}
}

func TestWaitForRescuesClearsProcs(t *testing.T) {
	d := New(testConfig())
	n := core.Node{IP: "10.0.0.1", Port: 6000, Device: "sda"}
	d.RequestRescue(1, n)
	time.Sleep(10 * time.Millisecond)
	d.WaitForRescues()
	d.mu.Lock()
	remaining := len(d.procs)
	d.mu.Unlock()
	if remaining != 0 {
		t.Errorf("procs not cleared after WaitForRescues: %d remaining", remaining)
	}
}
