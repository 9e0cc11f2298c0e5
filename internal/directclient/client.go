// Package directclient issues direct HTTP operations against storage
// nodes: HEAD object, GET container/account listings, DELETE a container
// row. It is the only component that talks the cluster's wire protocol.
package directclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/golang/glog"

	"github.com/objaudit/auditor/internal/core"
)

const (
	// ConnectTimeout bounds dialing a storage node.
	ConnectTimeout = 10 * time.Second
	// ResponseTimeout bounds waiting for a full response once connected.
	ResponseTimeout = 30 * time.Second
	// DefaultPageSize bounds one listing page.
	DefaultPageSize = 1000

	headerForceAcquire = "X-Force-Acquire"
	headerTimestamp    = "X-Timestamp"
)

// Client performs direct HTTP calls against storage nodes. It is safe for
// concurrent use by many workers.
type Client struct {
	http *http.Client
}

// New returns a Client whose transport dials with ConnectTimeout and whose
// whole request (dial included) is bounded by ConnectTimeout+ResponseTimeout.
func New() *Client {
	dialer := &net.Dialer{Timeout: ConnectTimeout}
	transport := &http.Transport{
		DialContext: dialer.DialContext,
	}
	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   ConnectTimeout + ResponseTimeout,
		},
	}
}

// FormatTimestamp renders t in the cluster's internal timestamp format:
// seconds with five decimal places, zero-padded to 16 characters so it
// sorts as a string, used for X-Timestamp.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%016.5f", float64(t.UnixNano())/1e9)
}

func nodeURL(n core.Node, part int, segments ...string) string {
	u := &url.URL{
		Scheme: "http",
		Host:   n.Addr(),
	}
	path := fmt.Sprintf("/%s/%d", n.Device, part)
	for _, s := range segments {
		path += "/" + url.QueryEscape(s)
	}
	u.Path = path
	return u.String()
}

func classify(resp *http.Response, err error) core.ErrClass {
	if err != nil {
		return core.ClassUncertain
	}
	return core.ClassifyStatus(resp.StatusCode)
}

// HeadObject performs HEAD on one node for one object. bypassQuarantine
// sets X-Force-Acquire so the server serves even a quarantined replica.
func (c *Client) HeadObject(ctx context.Context, n core.Node, part int, account, container, object string, bypassQuarantine bool) (ok bool, callErr *core.CallError) {
	req, err := http.NewRequest(http.MethodHead, nodeURL(n, part, account, container, object), nil)
	if err != nil {
		return false, &core.CallError{Class: core.ClassUncertain, Err: err}
	}
	req = req.WithContext(ctx)
	if bypassQuarantine {
		req.Header.Set(headerForceAcquire, "true")
	}
	resp, err := c.http.Do(req)
	class := classify(resp, err)
	if resp != nil {
		defer resp.Body.Close()
		ioutil.ReadAll(resp.Body)
	}
	switch class {
	case core.ClassOK:
		return true, nil
	case core.ClassAbsent:
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return false, &core.CallError{Class: class, Status: status}
	default:
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return false, &core.CallError{Class: class, Status: status, Err: err}
	}
}

// ListOptions bounds one page of a container or account listing.
type ListOptions struct {
	Marker string
	Prefix string
	Limit  int
}

// ListContainer fetches one page of a container listing from one node.
func (c *Client) ListContainer(ctx context.Context, n core.Node, part int, account, container string, opt ListOptions) ([]core.ListingEntry, *core.CallError) {
	entries, _, err := c.list(ctx, n, part, opt, account, container)
	return entries, err
}

// ListAccount fetches one page of an account's container listing from one
// node, along with the response headers (used for X-Account-Object-Count).
func (c *Client) ListAccount(ctx context.Context, n core.Node, part int, account string, opt ListOptions) ([]core.ListingEntry, http.Header, *core.CallError) {
	return c.list(ctx, n, part, opt, account)
}

func (c *Client) list(ctx context.Context, n core.Node, part int, opt ListOptions, segments ...string) ([]core.ListingEntry, http.Header, *core.CallError) {
	if opt.Limit <= 0 {
		opt.Limit = DefaultPageSize
	}
	u := nodeURL(n, part, segments...)
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, &core.CallError{Class: core.ClassUncertain, Err: err}
	}
	req = req.WithContext(ctx)
	q := req.URL.Query()
	q.Set("format", "json")
	q.Set("marker", opt.Marker)
	q.Set("limit", strconv.Itoa(opt.Limit))
	if opt.Prefix != "" {
		q.Set("prefix", opt.Prefix)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.http.Do(req)
	class := classify(resp, err)
	if class != core.ClassOK {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			resp.Body.Close()
		}
		return nil, nil, &core.CallError{Class: class, Status: status, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, resp.Header, nil
	}
	var entries []core.ListingEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, resp.Header, &core.CallError{Class: core.ClassUncertain, Err: err}
	}
	return entries, resp.Header, nil
}

// DeleteContainerRow removes one object's row from one container replica.
// ts must be greater than any known listing entry's timestamp.
func (c *Client) DeleteContainerRow(ctx context.Context, n core.Node, part int, account, container, object string, ts time.Time) *core.CallError {
	req, err := http.NewRequest(http.MethodDelete, nodeURL(n, part, account, container, object), nil)
	if err != nil {
		return &core.CallError{Class: core.ClassUncertain, Err: err}
	}
	req = req.WithContext(ctx)
	req.Header.Set(headerTimestamp, FormatTimestamp(ts))
	resp, err := c.http.Do(req)
	class := classify(resp, err)
	if resp != nil {
		defer resp.Body.Close()
		ioutil.ReadAll(resp.Body)
	}
	if class == core.ClassOK {
		return nil
	}
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	log.V(1).Infof("delete %s/%s/%s on %s failed: status=%d err=%v", account, container, object, n.Addr(), status, err)
	return &core.CallError{Class: class, Status: status, Err: err}
}
