package ring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeRingFiles(t *testing.T, dir string, replicas, devices int) {
	t.Helper()
	type dev struct {
		IP     string `json:"ip"`
		Port   int    `json:"port"`
		Device string `json:"device"`
	}
	var ds []dev
	for i := 0; i < devices; i++ {
		ds = append(ds, dev{IP: "10.0.0.1", Port: 6000 + i, Device: "sd" + string(rune('a'+i))})
	}
	desc := struct {
		Replicas int   `json:"replicas"`
		Devices  []dev `json:"devices"`
	}{Replicas: replicas, Devices: ds}

	for _, name := range []string{"object.ring.json", "container.ring.json", "account.ring.json"} {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("create %s: %s", name, err)
		}
		if err := json.NewEncoder(f).Encode(desc); err != nil {
			t.Fatalf("encode %s: %s", name, err)
		}
		f.Close()
	}
}

func TestDirRingLocateObjectDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeRingFiles(t, dir, 3, 10)

	r, err := NewDirRing(dir)
	if err != nil {
		t.Fatalf("NewDirRing: %s", err)
	}

	part1, primaries1, _, err := r.LocateObject("a", "c", "o")
	if err != nil {
		t.Fatalf("LocateObject: %s", err)
	}
	part2, primaries2, _, err := r.LocateObject("a", "c", "o")
	if err != nil {
		t.Fatalf("LocateObject: %s", err)
	}
	if part1 != part2 {
		t.Errorf("partition not deterministic: %d != %d", part1, part2)
	}
	if len(primaries1) != 3 {
		t.Errorf("got %d primaries, want 3", len(primaries1))
	}
	for i := range primaries1 {
		if primaries1[i] != primaries2[i] {
			t.Errorf("primary order not deterministic at %d: %+v != %+v", i, primaries1[i], primaries2[i])
		}
	}
}

func TestDirRingHandoffsDisjointFromPrimaries(t *testing.T) {
	dir := t.TempDir()
	writeRingFiles(t, dir, 3, 10)
	r, err := NewDirRing(dir)
	if err != nil {
		t.Fatalf("NewDirRing: %s", err)
	}

	_, primaries, handoffs, err := r.LocateObject("a", "c", "o")
	if err != nil {
		t.Fatalf("LocateObject: %s", err)
	}
	primarySet := make(map[string]bool)
	for _, n := range primaries {
		primarySet[n.Device] = true
	}
	count := 0
	for {
		n, ok := handoffs.Next()
		if !ok {
			break
		}
		if primarySet[n.Device] {
			t.Errorf("handoff device %s also a primary", n.Device)
		}
		count++
	}
	if count != 7 {
		t.Errorf("got %d handoffs, want 7 (10 devices - 3 primaries)", count)
	}
}

func TestDirRingAllDevicesStableOrder(t *testing.T) {
	dir := t.TempDir()
	writeRingFiles(t, dir, 3, 5)
	r, err := NewDirRing(dir)
	if err != nil {
		t.Fatalf("NewDirRing: %s", err)
	}
	devs := r.AllDevices()
	if len(devs) != 5 {
		t.Fatalf("got %d devices, want 5", len(devs))
	}
	for i := 1; i < len(devs); i++ {
		if devs[i].ID < devs[i-1].ID {
			t.Errorf("AllDevices not sorted: %+v before %+v", devs[i-1], devs[i])
		}
	}
}

func TestNewDirRingMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewDirRing(dir); err == nil {
		t.Errorf("NewDirRing on empty dir should have failed")
	}
}

func TestLoadDescriptorRejectsZeroReplicas(t *testing.T) {
	dir := t.TempDir()
	writeRingFiles(t, dir, 0, 5)
	if _, err := NewDirRing(dir); err == nil {
		t.Errorf("NewDirRing with replicas=0 should have failed")
	}
}
