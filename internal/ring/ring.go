// Package ring wraps the ring-topology lookup the real cluster provides.
// The production ring format (a gzipped pickle of a consistent-hash table)
// is explicitly out of scope for this core; DirRing below is a minimal,
// swappable stand-in that is enough to drive and test everything above it.
package ring

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"

	"github.com/objaudit/auditor/internal/core"
)

// HandoffIterator lazily yields handoff nodes for one partition, beyond the
// primaries. It may be arbitrarily long; callers must not assume it's
// bounded without consulting Next's second return value.
type HandoffIterator interface {
	// Next returns the next handoff node and true, or a zero Node and
	// false once exhausted.
	Next() (core.Node, bool)
}

// Ring is the abstract interface the rest of the auditor consumes. A real
// deployment binds this to the actual ring library; DirRing is the
// reference implementation used for standalone runs and tests.
type Ring interface {
	LocateAccount(account string) (partition int, primaries []core.Node, err error)
	LocateContainer(account, container string) (partition int, primaries []core.Node, err error)
	LocateObject(account, container, object string) (partition int, primaries []core.Node, handoffs HandoffIterator, err error)
	AllDevices() []core.Node
}

// descriptor is the on-disk JSON shape of one ring file:
// {"replicas": 3, "devices": [{"ip":"...", "port":6000, "device":"sdb"}...]}
type descriptor struct {
	Replicas int `json:"replicas"`
	Devices  []struct {
		IP     string `json:"ip"`
		Port   int    `json:"port"`
		Device string `json:"device"`
	} `json:"devices"`
}

func loadDescriptor(path string) (descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return descriptor{}, err
	}
	defer f.Close()
	var d descriptor
	if err := json.NewDecoder(f).Decode(&d); err != nil {
		return descriptor{}, fmt.Errorf("decode %s: %s", path, err)
	}
	if d.Replicas <= 0 {
		return descriptor{}, fmt.Errorf("%s: replicas must be > 0", path)
	}
	if len(d.Devices) == 0 {
		return descriptor{}, fmt.Errorf("%s: no devices", path)
	}
	return d, nil
}

// DirRing loads three ring descriptors (object, container, account) from a
// directory and resolves paths to partitions with a simple deterministic
// hash, consistent for the life of the process — enough to exercise every
// invariant the core cares about (stable iteration order, a primary/handoff
// split, a lazy handoff tail) without depending on the real ring format.
type DirRing struct {
	object, container, account descriptor
}

// NewDirRing loads object.ring.json, container.ring.json and
// account.ring.json from dir.
func NewDirRing(dir string) (*DirRing, error) {
	obj, err := loadDescriptor(filepath.Join(dir, "object.ring.json"))
	if err != nil {
		return nil, err
	}
	cont, err := loadDescriptor(filepath.Join(dir, "container.ring.json"))
	if err != nil {
		return nil, err
	}
	acct, err := loadDescriptor(filepath.Join(dir, "account.ring.json"))
	if err != nil {
		return nil, err
	}
	return &DirRing{object: obj, container: cont, account: acct}, nil
}

func partitionFor(key string, numDevices int) int {
	h := fnv.New64a()
	h.Write([]byte(key))
	if numDevices == 0 {
		return 0
	}
	return int(h.Sum64() % uint64(numDevices))
}

// order returns devices in a deterministic rotation starting at start,
// mirroring the ring's job of assigning a stable, shuffled-but-repeatable
// device order per partition.
func order(d descriptor, start int) []core.Node {
	n := len(d.Devices)
	out := make([]core.Node, n)
	for i := 0; i < n; i++ {
		dev := d.Devices[(start+i)%n]
		out[i] = core.Node{IP: dev.IP, Port: dev.Port, Device: dev.Device, ID: uint64((start + i) % n)}
	}
	return out
}

func locate(d descriptor, key string) (partition int, primaries []core.Node) {
	part := partitionFor(key, len(d.Devices))
	nodes := order(d, part)
	r := d.Replicas
	if r > len(nodes) {
		r = len(nodes)
	}
	return part, nodes[:r]
}

// LocateAccount implements Ring.
func (dr *DirRing) LocateAccount(account string) (int, []core.Node, error) {
	if len(dr.account.Devices) == 0 {
		return 0, nil, fmt.Errorf("account ring not loaded")
	}
	part, primaries := locate(dr.account, account)
	return part, primaries, nil
}

// LocateContainer implements Ring.
func (dr *DirRing) LocateContainer(account, container string) (int, []core.Node, error) {
	if len(dr.container.Devices) == 0 {
		return 0, nil, fmt.Errorf("container ring not loaded")
	}
	part, primaries := locate(dr.container, account+"/"+container)
	return part, primaries, nil
}

type sliceHandoffIterator struct {
	nodes []core.Node
	pos   int
}

func (it *sliceHandoffIterator) Next() (core.Node, bool) {
	if it.pos >= len(it.nodes) {
		return core.Node{}, false
	}
	n := it.nodes[it.pos]
	it.pos++
	return n, true
}

// LocateObject implements Ring.
func (dr *DirRing) LocateObject(account, container, object string) (int, []core.Node, HandoffIterator, error) {
	if len(dr.object.Devices) == 0 {
		return 0, nil, nil, fmt.Errorf("object ring not loaded")
	}
	key := account + "/" + container + "/" + object
	part := partitionFor(key, len(dr.object.Devices))
	nodes := order(dr.object, part)
	r := dr.object.Replicas
	if r > len(nodes) {
		r = len(nodes)
	}
	primaries := nodes[:r]
	handoffs := &sliceHandoffIterator{nodes: nodes[r:]}
	return part, primaries, handoffs, nil
}

// AllDevices implements Ring: every device in the object ring, in a stable
// order.
func (dr *DirRing) AllDevices() []core.Node {
	out := make([]core.Node, 0, len(dr.object.Devices))
	for i, dev := range dr.object.Devices {
		out = append(out, core.Node{IP: dev.IP, Port: dev.Port, Device: dev.Device, ID: uint64(i)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
