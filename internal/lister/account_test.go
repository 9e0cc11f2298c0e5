package lister

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/objaudit/auditor/internal/core"
	"github.com/objaudit/auditor/internal/directclient"
	"github.com/objaudit/auditor/internal/prober"
	"github.com/objaudit/auditor/internal/rescue"
	"github.com/objaudit/auditor/internal/scheduler"
	"github.com/objaudit/auditor/internal/stats"
)

// accountPagingHandler serves an account-level container listing of
// containerNames, one per page, with X-Account-Object-Count set on the
// first response.
func accountPagingHandler(containerNames []string, objectCount string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marker := r.URL.Query().Get("marker")
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Account-Object-Count", objectCount)
		idx := 0
		for i, n := range containerNames {
			if n == marker {
				idx = i + 1
				break
			}
		}
		if idx >= len(containerNames) {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[{"Name":"` + containerNames[idx] + `"}]`))
	}
}

func newAccountLister(t *testing.T, n core.Node) (*AccountLister, *stats.Reporter) {
	t.Helper()
	r := &oneContainerRing{primaries: []core.Node{n}}
	direct := directclient.New()
	resc := rescue.New(rescue.Config{LocalHelper: "true"})
	reporter := stats.New()
	pr := prober.New(r, direct, resc, reporter, nil, prober.Config{})
	sched := scheduler.New(4)
	cl := New(r, direct, pr, sched.Objects, reporter, Config{})
	return NewAccountLister(r, direct, sched, cl, reporter), reporter
}

func TestAccountListerReadsObjectCountEstimate(t *testing.T) {
	srv := httptest.NewServer(accountPagingHandler(nil, "123"))
	defer srv.Close()
	n := nodeFromServer(t, srv, "sda")

	al, reporter := newAccountLister(t, n)
	al.Audit(context.Background(), "a")

	snap := reporter.Snapshot()
	if snap.AccountObjsEstimated != 123 {
		t.Errorf("AccountObjsEstimated = %d, want 123", snap.AccountObjsEstimated)
	}
	if snap.AccountsChecked != 1 {
		t.Errorf("AccountsChecked = %d, want 1", snap.AccountsChecked)
	}
}

func TestAccountListerSpawnsContainerAudits(t *testing.T) {
	srv := httptest.NewServer(accountPagingHandler([]string{"c1", "c2"}, "0"))
	defer srv.Close()
	n := nodeFromServer(t, srv, "sda")

	al, reporter := newAccountLister(t, n)
	al.Audit(context.Background(), "a")

	snap := reporter.Snapshot()
	if snap.ContainersChecked != 2 {
		t.Errorf("ContainersChecked = %d, want 2", snap.ContainersChecked)
	}
}

func TestAccountListerFailsWhenEveryReplicaErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	n := nodeFromServer(t, srv, "sda")

	al, reporter := newAccountLister(t, n)
	al.Audit(context.Background(), "a")

	snap := reporter.Snapshot()
	if snap.AccountsFailed != 1 {
		t.Errorf("AccountsFailed = %d, want 1", snap.AccountsFailed)
	}
}
