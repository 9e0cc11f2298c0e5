// Package lister implements the Container Lister and Account Lister:
// they page through listings on the ring's replicas and spawn audit tasks
// on the Scheduler's pools.
package lister

import (
	"context"
	"time"

	log "github.com/golang/glog"

	"github.com/objaudit/auditor/internal/core"
	"github.com/objaudit/auditor/internal/directclient"
	"github.com/objaudit/auditor/internal/prober"
	"github.com/objaudit/auditor/internal/ring"
	"github.com/objaudit/auditor/internal/scheduler"
	"github.com/objaudit/auditor/internal/stats"
)

// Config controls container-listing completion policy and age filtering.
type Config struct {
	// Thorough continues through every container replica instead of
	// stopping at the first replica that returns an empty page.
	Thorough bool
	// MinAge suppresses probing of entries younger than this (does not
	// apply to explicit object targets — those never go through the
	// Container Lister at all).
	MinAge time.Duration
}

// ContainerLister pages one container's listing on its ring replicas and
// spawns an object-probe task per (sufficiently old) entry.
type ContainerLister struct {
	ring     ring.Ring
	direct   *directclient.Client
	prober   *prober.Prober
	objects  *scheduler.Pool
	reporter *stats.Reporter
	cfg      Config
	now      func() time.Time
}

// New creates a ContainerLister.
func New(r ring.Ring, direct *directclient.Client, p *prober.Prober, objects *scheduler.Pool, reporter *stats.Reporter, cfg Config) *ContainerLister {
	return &ContainerLister{ring: r, direct: direct, prober: p, objects: objects, reporter: reporter, cfg: cfg, now: time.Now}
}

// Audit walks account/container, spawning object-probe tasks on the
// Objects pool. It increments containers_checked on completion and
// containers_failed if every replica errored out.
func (cl *ContainerLister) Audit(ctx context.Context, account, container string) {
	part, primaries, err := cl.ring.LocateContainer(account, container)
	if err != nil || len(primaries) == 0 {
		log.Errorf("cannot locate container %s/%s: %v", account, container, err)
		cl.reporter.ContainerFailed()
		return
	}

	anyReplicaSucceeded := false
	for _, n := range primaries {
		ok := cl.walkReplica(ctx, account, container, part, n)
		anyReplicaSucceeded = anyReplicaSucceeded || ok
		if ok && !cl.cfg.Thorough {
			break
		}
	}

	if !anyReplicaSucceeded {
		cl.reporter.ContainerFailed()
		return
	}
	cl.reporter.ContainerChecked()
}

// walkReplica pages through one container replica from an empty marker
// until an empty page. It returns whether the replica was usable
// (completed its scan without error) at all. If a replica errors
// mid-scan, the caller moves to the next replica, restarting from
// marker="" there.
func (cl *ContainerLister) walkReplica(ctx context.Context, account, container string, part int, n core.Node) bool {
	marker := ""
	for {
		entries, callErr := cl.direct.ListContainer(ctx, n, part, account, container, directclient.ListOptions{Marker: marker})
		if callErr != nil {
			log.Warningf("listing %s/%s on replica %s failed: %s", account, container, n.Addr(), callErr)
			return false
		}
		if len(entries) == 0 {
			return true
		}
		listTime := cl.now()
		for _, e := range entries {
			if cl.skipByAge(e, listTime) {
				continue
			}
			entry := e
			cl.objects.Spawn(func() {
				_, err := cl.prober.Probe(ctx, account, container, entry.Name, entry.LastModified, listTime)
				if err != nil {
					log.Errorf("probe for %s/%s/%s failed: %s", account, container, entry.Name, err)
				}
			})
		}
		marker = entries[len(entries)-1].Name
	}
}

func (cl *ContainerLister) skipByAge(e core.ListingEntry, now time.Time) bool {
	if cl.cfg.MinAge <= 0 {
		return false
	}
	t, err := time.Parse("2006-01-02T15:04:05.000000", e.LastModified)
	if err != nil {
		return false
	}
	return now.Sub(t) < cl.cfg.MinAge
}
