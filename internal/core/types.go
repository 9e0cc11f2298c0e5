// Package core defines the data model shared by every component of the
// auditor: paths, nodes, listing entries and probe outcomes.
package core

import (
	"fmt"
	"net/url"
	"strings"
)

// Path identifies an audit target: an account, a container within an
// account, or an object within a container. Container and Object are empty
// for account-level and container-level targets respectively.
type Path struct {
	Account   string
	Container string
	Object    string
}

// String renders the path URL-encoded, segment by segment, the way it
// travels on the wire to storage nodes.
func (p Path) String() string {
	segs := []string{url.QueryEscape(p.Account)}
	if p.Container != "" {
		segs = append(segs, url.QueryEscape(p.Container))
	}
	if p.Object != "" {
		segs = append(segs, url.QueryEscape(p.Object))
	}
	return strings.Join(segs, "/")
}

// IsAccount reports whether this path names only an account.
func (p Path) IsAccount() bool { return p.Container == "" }

// IsContainer reports whether this path names an account and a container,
// but no object.
func (p Path) IsContainer() bool { return p.Container != "" && p.Object == "" }

// IsObject reports whether this path fully names an object.
func (p Path) IsObject() bool { return p.Object != "" }

// ParsePath decodes a URL-encoded "account[/container[/object]]" string
// into a Path. Everything after the second "/" becomes the object name, so
// "a/c/x/y" yields Object "x/y". It returns an error for an empty path or
// if any segment fails to decode.
func ParsePath(raw string) (Path, error) {
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return Path{}, fmt.Errorf("empty path")
	}
	parts := strings.SplitN(raw, "/", 3)
	out := make([]string, len(parts))
	for i, part := range parts {
		dec, err := url.QueryUnescape(part)
		if err != nil {
			return Path{}, fmt.Errorf("bad path segment %q: %s", part, err)
		}
		out[i] = dec
	}
	var p Path
	p.Account = out[0]
	if len(out) > 1 {
		p.Container = out[1]
	}
	if len(out) > 2 {
		p.Object = out[2]
	}
	return p, nil
}

// Node is a storage endpoint as handed back by the Ring Adapter. It is
// opaque to everything except the Direct Client Adapter.
type Node struct {
	IP     string
	Port   int
	Device string
	ID     uint64
}

// Addr returns the "ip:port" dial target for this node.
func (n Node) Addr() string {
	return fmt.Sprintf("%s:%d", n.IP, n.Port)
}

// RankedNode pairs a Node with its rank in a probe's iteration order.
// Rank < R means primary; rank >= R means handoff.
type RankedNode struct {
	Node
	Rank int
}

// ListingEntry is one row of a container listing.
type ListingEntry struct {
	Name         string
	LastModified string // ISO-8601, e.g. "2024-01-15T00:00:00.000000"
	Bytes        int64
	ContentType  string
}

// Outcome is the terminal classification of one object probe.
type Outcome int

const (
	// OutcomePresent means HEAD succeeded on some node, primary or handoff.
	OutcomePresent Outcome = iota
	// OutcomeAbsent means no HEAD succeeded and no node within the probe
	// window produced anything but 404/507. It is decided from the HEAD
	// phase alone; the container listing is not consulted.
	OutcomeAbsent
	// OutcomeUncertain means no HEAD succeeded, but at least one
	// primary/handoff within the probe window produced a non-404/507 error.
	OutcomeUncertain
)

func (o Outcome) String() string {
	switch o {
	case OutcomePresent:
		return "Present"
	case OutcomeAbsent:
		return "Missing"
	case OutcomeUncertain:
		return "PotentiallyMissing"
	default:
		return "Unknown"
	}
}
