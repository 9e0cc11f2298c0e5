package lister

import (
	"context"
	"strconv"

	log "github.com/golang/glog"

	"github.com/objaudit/auditor/internal/directclient"
	"github.com/objaudit/auditor/internal/ring"
	"github.com/objaudit/auditor/internal/scheduler"
	"github.com/objaudit/auditor/internal/stats"
)

const headerAccountObjectCount = "X-Account-Object-Count"

// AccountLister pages an account's container listing on its ring replicas
// and spawns a container-audit task per entry.
type AccountLister struct {
	ring       ring.Ring
	direct     *directclient.Client
	scheduler  *scheduler.Scheduler
	containerL *ContainerLister
	reporter   *stats.Reporter
}

// NewAccountLister creates an AccountLister. sched is used to quiesce both
// pools on completion.
func NewAccountLister(r ring.Ring, direct *directclient.Client, sched *scheduler.Scheduler, cl *ContainerLister, reporter *stats.Reporter) *AccountLister {
	return &AccountLister{ring: r, direct: direct, scheduler: sched, containerL: cl, reporter: reporter}
}

// Audit walks account, spawning container-audit tasks, then quiesces both
// pools and reports completion stats.
func (al *AccountLister) Audit(ctx context.Context, account string) {
	part, primaries, err := al.ring.LocateAccount(account)
	if err != nil || len(primaries) == 0 {
		log.Errorf("cannot locate account %s: %v", account, err)
		al.reporter.AccountFailed()
		return
	}

	anySucceeded := false
	firstPage := true
	for _, n := range primaries {
		marker := ""
		replicaOK := false
		for {
			entries, headers, callErr := al.direct.ListAccount(ctx, n, part, account, directclient.ListOptions{Marker: marker})
			if callErr != nil {
				log.Warningf("listing account %s on replica %s failed: %s", account, n.Addr(), callErr)
				break
			}
			replicaOK = true
			if firstPage {
				firstPage = false
				var estimate int64
				if v := headers.Get(headerAccountObjectCount); v != "" {
					if n, err := strconv.ParseInt(v, 10, 64); err == nil {
						estimate = n
					}
				}
				al.reporter.StartAccount(estimate)
			}
			if len(entries) == 0 {
				break
			}
			for _, e := range entries {
				containerName := e.Name
				al.scheduler.Containers.Spawn(func() {
					al.containerL.Audit(ctx, account, containerName)
				})
			}
			marker = entries[len(entries)-1].Name
		}
		if replicaOK {
			anySucceeded = true
			break
		}
	}

	if !anySucceeded {
		al.reporter.AccountFailed()
		return
	}

	al.scheduler.QuiesceAll()
	log.Infof("account %s complete%s", account, al.reporter.Snapshot())
}
