// Package prober implements the Object Prober: for one (account,
// container, object), runs the multi-replica probe, decides the outcome,
// and performs confirm-and-delete.
package prober

import (
	"context"
	"fmt"
	"time"

	log "github.com/golang/glog"

	"github.com/objaudit/auditor/internal/core"
	"github.com/objaudit/auditor/internal/directclient"
	"github.com/objaudit/auditor/internal/rescue"
	"github.com/objaudit/auditor/internal/ring"
	"github.com/objaudit/auditor/internal/stats"
)

// Config controls probe-window sizing and run-wide behavior toggles.
type Config struct {
	// CheckAll expands the probe window to every device in the ring
	// instead of 2R (primaries + first R handoffs).
	CheckAll bool
	// Delete enables deleting confirmed-missing container rows.
	Delete bool
	// Verbose logs found-object hits on primaries; hits on handoffs
	// trigger a rescue request but are never logged as "found".
	Verbose bool
}

// Prober runs one object probe at a time per call; it holds no per-object
// state between calls, so the same value is reused by every worker.
type Prober struct {
	ring     ring.Ring
	direct   *directclient.Client
	rescue   *rescue.Dispatcher
	reporter *stats.Reporter
	errFile  *stats.ErrorFile
	cfg      Config
	now      func() time.Time
}

// New creates a Prober. errFile may be nil (no -e flag).
func New(r ring.Ring, direct *directclient.Client, resc *rescue.Dispatcher, reporter *stats.Reporter, errFile *stats.ErrorFile, cfg Config) *Prober {
	return &Prober{ring: r, direct: direct, rescue: resc, reporter: reporter, errFile: errFile, cfg: cfg, now: time.Now}
}

// Action is what the auditor decided to do about one probed object, once
// the confirmation listing (if any) has been taken into account. It is
// distinct from core.Outcome: Outcome is the pure HEAD-phase classification,
// independent of any listing; Action also weighs StillListed.
type Action int

const (
	// ActionNone means no listing mutation: the object is present, or it
	// was already cleanly removed from the listing before we got here.
	ActionNone Action = iota
	// ActionReportMissing means the row was logged/recorded as missing
	// and, if delete mode is on, a delete was attempted.
	ActionReportMissing
	// ActionReportPotentiallyMissing means the row was logged as
	// potentially missing; state is never mutated for this action.
	ActionReportPotentiallyMissing
)

// Result summarizes the decision made for one object, mainly for tests and
// for the "Missing object: ..." stdout line.
type Result struct {
	Outcome      core.Outcome // pure HEAD-phase classification
	Action       Action       // post-confirmation decision
	LastModified string       // from the confirmation listing, else the caller's hint, else ""
	StillListed  bool
	ListTime     time.Time
	ProbeTime    time.Time
	Deleted      bool
}

func (r Result) String(path core.Path) string {
	lm := r.LastModified
	if lm == "" {
		lm = "not-in-listing"
	}
	return fmt.Sprintf("Missing object: /%s last-mod: %s list-time: %s probe-time: %s",
		path.String(), lm, r.ListTime.Format(time.RFC3339Nano), r.ProbeTime.Format(time.RFC3339Nano))
}

// buildWindow returns nodes in probe order with their rank, and R.
func (p *Prober) buildWindow(account, container, object string) (window []core.RankedNode, r int, partition int, err error) {
	part, primaries, handoffs, err := p.ring.LocateObject(account, container, object)
	if err != nil {
		return nil, 0, 0, err
	}
	r = len(primaries)
	for i, n := range primaries {
		window = append(window, core.RankedNode{Node: n, Rank: i})
	}
	if p.cfg.CheckAll {
		rank := r
		for {
			n, ok := handoffs.Next()
			if !ok {
				break
			}
			window = append(window, core.RankedNode{Node: n, Rank: rank})
			rank++
		}
	} else {
		for i := 0; i < r; i++ {
			n, ok := handoffs.Next()
			if !ok {
				break
			}
			window = append(window, core.RankedNode{Node: n, Rank: r + i})
		}
	}
	return window, r, part, nil
}

// Probe runs the full probe-and-decide algorithm for one object and
// returns its decision. listTime is the wall-clock at which the entry was
// read from a container listing (zero if this is an explicit
// input-driven target with no known listing context).
func (p *Prober) Probe(ctx context.Context, account, container, object, lastModifiedHint string, listTime time.Time) (Result, error) {
	window, r, part, err := p.buildWindow(account, container, object)
	if err != nil {
		return Result{}, err
	}

	var foundReplicas int
	var exceptionCount int
	primaryWindowSize := 2 * r

	for _, n := range window {
		ok, callErr := p.direct.HeadObject(ctx, n.Node, part, account, container, object, true)
		if ok {
			foundReplicas++
			if n.Rank >= r {
				// Found only on a handoff: replica underpopulation.
				p.rescue.RequestRescue(part, n.Node)
			} else if p.cfg.Verbose {
				log.Infof("found %s/%s/%s on primary %s", account, container, object, n.Addr())
			}
			break
		}
		if callErr != nil && callErr.Class == core.ClassUncertain {
			if n.Rank < primaryWindowSize {
				exceptionCount++
			}
			// Beyond the window, errors are ignored entirely.
		}
	}

	probeTime := p.now()
	res := Result{ProbeTime: probeTime, ListTime: listTime}

	if foundReplicas > 0 {
		res.Outcome = core.OutcomePresent
		res.Action = ActionNone
		p.reporter.ObjectChecked()
		return res, nil
	}

	// Pure HEAD-phase classification, independent of the listing.
	if exceptionCount == 0 {
		res.Outcome = core.OutcomeAbsent
	} else {
		res.Outcome = core.OutcomeUncertain
	}

	stillListed, authoritativeLM := p.confirm(ctx, account, container, object)
	res.StillListed = stillListed
	res.LastModified = authoritativeLM
	if res.LastModified == "" {
		res.LastModified = lastModifiedHint
	}

	switch {
	case !stillListed:
		// Cleanly removed under us; no action regardless of exceptions.
		res.Action = ActionNone
	case res.Outcome == core.OutcomeAbsent:
		res.Action = ActionReportMissing
		p.onMissing(ctx, account, container, object, &res)
	default: // OutcomeUncertain && stillListed
		res.Action = ActionReportPotentiallyMissing
		log.Infof("Potentially missing object: /%s/%s/%s (exceptions=%d)", account, container, object, exceptionCount)
		p.reporter.PotentiallyMissing(res.LastModified)
	}

	p.reporter.ObjectChecked()
	return res, nil
}

// confirm re-reads the container listing on every container replica,
// looking for object with prefix=object, limit=1. If every replica's
// listing call fails, we refuse to conclude presence: we cannot prove the
// entry exists, so we cannot delete it.
func (p *Prober) confirm(ctx context.Context, account, container, object string) (stillListed bool, lastModified string) {
	cpart, primaries, err := p.ring.LocateContainer(account, container)
	if err != nil {
		return false, ""
	}
	for _, n := range primaries {
		entries, callErr := p.direct.ListContainer(ctx, n, cpart, account, container, directclient.ListOptions{Prefix: object, Limit: 1})
		if callErr != nil {
			continue
		}
		for _, e := range entries {
			if e.Name == object {
				return true, e.LastModified
			}
		}
	}
	return false, ""
}

// onMissing logs, records to the error file, updates the histogram, and
// (if delete mode is on) deletes the row from every container replica.
func (p *Prober) onMissing(ctx context.Context, account, container, object string, res *Result) {
	path := core.Path{Account: account, Container: container, Object: object}
	fmt.Println(res.String(path))
	p.reporter.Missing(res.LastModified)
	if p.errFile != nil {
		if err := p.errFile.Record(path.String()); err != nil {
			log.Errorf("failed to write error-file record for %s: %s", path.String(), err)
		}
	}
	if !p.cfg.Delete {
		return
	}

	cpart, primaries, err := p.ring.LocateContainer(account, container)
	if err != nil {
		log.Errorf("cannot locate container %s/%s for delete: %s", account, container, err)
		return
	}
	ts := p.now()
	succeeded := 0
	for _, n := range primaries {
		callErr := p.direct.DeleteContainerRow(ctx, n, cpart, account, container, object, ts)
		if callErr == nil {
			succeeded++
		}
	}
	if succeeded > 0 {
		res.Deleted = succeeded == len(primaries)
	}
	if succeeded == len(primaries) {
		p.reporter.Deleted()
	} else if succeeded > 0 {
		log.Warningf("delete for %s only succeeded on %d/%d container replicas", path.String(), succeeded, len(primaries))
	} else {
		log.Errorf("delete for %s failed on every container replica", path.String())
	}
}
