// Package stats is the Stats Reporter: counters and last-modified
// histograms mutated from worker tasks, snapshotted periodically and on
// every account/process boundary.
package stats

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StatsInterval is the minimum cadence for periodic snapshots.
const StatsInterval = 300 * time.Second

var promCounters = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "auditor",
	Name:      "events_total",
}, []string{"counter"})

// Reporter owns every counter and histogram for one audit run. It is a
// field on the Auditor value, not package-scope state, so concurrent runs
// in the same process never share counters.
type Reporter struct {
	mu sync.Mutex

	accountsChecked       int64
	accountsFailed        int64
	containersChecked     int64
	containersFailed      int64
	objectsChecked        int64
	missingObjects        int64
	objectsDeleted        int64
	potentiallyMissing    int64
	accountObjectsChecked int64
	accountObjsEstimated  int64

	missingByDay            map[string]int64
	potentiallyMissingByDay map[string]int64

	start         time.Time
	latestMissing string

	stop chan struct{}
	once sync.Once
}

// New creates an empty Reporter.
func New() *Reporter {
	return &Reporter{
		missingByDay:            make(map[string]int64),
		potentiallyMissingByDay: make(map[string]int64),
		start:                   time.Now(),
		stop:                    make(chan struct{}),
	}
}

func dayOf(lastModified string) string {
	if len(lastModified) >= 10 {
		return lastModified[:10]
	}
	return "unknown"
}

func bump(c *int64, promName string, n int64) {
	*c += n
	promCounters.WithLabelValues(promName).Add(float64(n))
}

// StartAccount increments accounts_checked and resets the per-account
// object counter for the account about to be walked.
func (r *Reporter) StartAccount(estimatedObjects int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bump(&r.accountsChecked, "accounts_checked", 1)
	r.accountObjectsChecked = 0
	r.accountObjsEstimated = estimatedObjects
}

// AccountFailed increments accounts_failed.
func (r *Reporter) AccountFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	bump(&r.accountsFailed, "accounts_failed", 1)
}

// ContainerChecked increments containers_checked.
func (r *Reporter) ContainerChecked() {
	r.mu.Lock()
	defer r.mu.Unlock()
	bump(&r.containersChecked, "containers_checked", 1)
}

// ContainerFailed increments containers_failed.
func (r *Reporter) ContainerFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	bump(&r.containersFailed, "containers_failed", 1)
}

// ObjectChecked increments objects_checked and account_objects_checked.
func (r *Reporter) ObjectChecked() {
	r.mu.Lock()
	defer r.mu.Unlock()
	bump(&r.objectsChecked, "objects_checked", 1)
	r.accountObjectsChecked++
}

// Missing records a confirmed-missing object, keyed by the day of its
// (possibly absent) last-modified timestamp.
func (r *Reporter) Missing(lastModified string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bump(&r.missingObjects, "missing_objects", 1)
	day := dayOf(lastModified)
	r.missingByDay[day]++
	if day > r.latestMissing {
		r.latestMissing = day
	}
}

// PotentiallyMissing records a potentially-missing object by day.
func (r *Reporter) PotentiallyMissing(lastModified string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bump(&r.potentiallyMissing, "potentially_missing", 1)
	r.potentiallyMissingByDay[dayOf(lastModified)]++
}

// Deleted increments objects_deleted.
func (r *Reporter) Deleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	bump(&r.objectsDeleted, "objects_deleted", 1)
}

// Snapshot is an immutable copy of the counters at one instant.
type Snapshot struct {
	AccountsChecked, AccountsFailed                int64
	ContainersChecked, ContainersFailed            int64
	ObjectsChecked, MissingObjects, ObjectsDeleted int64
	PotentiallyMissing                             int64
	AccountObjectsChecked, AccountObjsEstimated    int64
	ThroughputPerSec                               float64
	LatestMissingDay                               string
	MissingByDay, PotentiallyMissingByDay          map[string]int64
}

// Snapshot copies out the current counters.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	elapsed := time.Since(r.start).Seconds()
	var throughput float64
	if elapsed > 0 {
		throughput = float64(r.objectsChecked) / elapsed
	}
	return Snapshot{
		AccountsChecked:         r.accountsChecked,
		AccountsFailed:          r.accountsFailed,
		ContainersChecked:       r.containersChecked,
		ContainersFailed:        r.containersFailed,
		ObjectsChecked:          r.objectsChecked,
		MissingObjects:          r.missingObjects,
		ObjectsDeleted:          r.objectsDeleted,
		PotentiallyMissing:      r.potentiallyMissing,
		AccountObjectsChecked:   r.accountObjectsChecked,
		AccountObjsEstimated:    r.accountObjsEstimated,
		ThroughputPerSec:        throughput,
		LatestMissingDay:        r.latestMissing,
		MissingByDay:            cloneMap(r.missingByDay),
		PotentiallyMissingByDay: cloneMap(r.potentiallyMissingByDay),
	}
}

func cloneMap(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String renders a Snapshot with right-aligned, 30-character-wide labels.
func (s Snapshot) String() string {
	line := func(label string, v interface{}) string {
		return fmt.Sprintf("%30s: %v\n", label, v)
	}
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(line("Accounts Checked", s.AccountsChecked))
	b.WriteString(line("Accounts Failed", s.AccountsFailed))
	b.WriteString(line("Containers Checked", s.ContainersChecked))
	b.WriteString(line("Containers Failed", s.ContainersFailed))
	b.WriteString(line("Objects Checked", s.ObjectsChecked))
	b.WriteString(line("Missing", s.MissingObjects))
	b.WriteString(line("Potentially Missing", s.PotentiallyMissing))
	b.WriteString(line("Deleted", s.ObjectsDeleted))
	b.WriteString(line("Account Objects Checked", s.AccountObjectsChecked))
	b.WriteString(line("Account Objects Estimated", s.AccountObjsEstimated))
	b.WriteString(line("Objects/sec", fmt.Sprintf("%.2f", s.ThroughputPerSec)))
	b.WriteString(line("Latest Missing Date", emptyDash(s.LatestMissingDay)))
	return b.String()
}

func emptyDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// RunPeriodic starts a goroutine that calls report every interval until
// Stop is called. report is also expected to be called directly by the
// Auditor on every account completion and on process exit.
func (r *Reporter) RunPeriodic(interval time.Duration, report func(Snapshot)) {
	if interval <= 0 {
		interval = StatsInterval
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				report(r.Snapshot())
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop terminates the periodic reporter goroutine, if running.
func (r *Reporter) Stop() {
	r.once.Do(func() { close(r.stop) })
}
