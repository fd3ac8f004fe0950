package query

import (
	"time"

	"github.com/openthread/dnsclient/internal/wire"
)

// Query is the unit of work the store tracks: one in-flight resolution,
// possibly one of several siblings composing a single caller request.
type Query struct {
	ID         uint16
	Kind       Kind
	RecordType uint16 // meaningful only for KindRecord

	Name      string // the name being queried, presentation form, FQDN
	Questions []wire.Question

	Config Config

	Callback func(*wire.Response, error)

	TxCount          int
	NextRetransmitAt time.Time

	// UsingTCP marks a query whose most recent transmission went out over
	// the TCP fallback endpoint, either because Config.Transport requests
	// it, the message didn't fit in a UDP datagram, or a UDP response came
	// back truncated. An unexpected TCP disconnect finalizes every query
	// with this set, per §4.6.
	UsingTCP bool

	// ShouldResolveHostAddr marks a service query that, lacking a host
	// AAAA in its own response, must spawn a follow-up Ip6Address sibling
	// before the group can finalize (resolveServiceAndHostAddress).
	ShouldResolveHostAddr bool

	// InstanceLabel is the service-instance first label for
	// resolveService/resolveServiceAndHostAddress queries; empty for
	// browse, which resolves instances from the response itself.
	InstanceLabel string

	// MainQuery is nil for a main query, or points to the query that owns
	// this one's sibling group.
	MainQuery *Query
	// Siblings holds the non-main members of this query's group; only
	// populated on the main query. Capacity is always small (the planner
	// produces at most two siblings: SRV+TXT, or a host-address follow-up).
	Siblings []*Query

	SavedResponse *wire.Response

	// TermErr is the terminal error this individual query's part of the
	// group ended with (response parse failure, timeout, or abort). Nil if
	// SavedResponse was delivered without error.
	TermErr error

	// AliasChanges counts CNAME-driven restarts so far, bounding
	// kMaxCnameAliasNameChanges across the query's lifetime (restarts, not
	// just hops within one response).
	AliasChanges int

	// HostFollowupSpawned marks a resolveServiceAndHostAddress main query
	// that has already spawned its follow-up Ip6Address sibling, so a
	// second response for the same group cannot spawn another.
	HostFollowupSpawned bool

	// finalized guards against double-invoking Callback.
	finalized bool
}

// IsMain reports whether q is the head of its sibling group.
func (q *Query) IsMain() bool {
	return q.MainQuery == nil
}

// Main returns the main query of q's group (q itself if q is main).
func (q *Query) Main() *Query {
	if q.MainQuery != nil {
		return q.MainQuery
	}
	return q
}

// Group returns every query in q's sibling group, main first.
func (q *Query) Group() []*Query {
	main := q.Main()
	group := make([]*Query, 0, 1+len(main.Siblings))
	group = append(group, main)
	group = append(group, main.Siblings...)
	return group
}

// AttachSibling links sib into q's group, with q's main query as the
// group's owner. q need not itself be the main query.
func AttachSibling(q, sib *Query) {
	main := q.Main()
	sib.MainQuery = main
	main.Siblings = append(main.Siblings, sib)
}

// CanFinalize reports whether every member of q's group has either
// received a response (SavedResponse set) or reached a terminal state
// (finalized, e.g. by timeout). The main query itself must also satisfy
// this: it is checked by the caller alongside its siblings.
func (q *Query) CanFinalize() bool {
	for _, member := range q.Group() {
		if member.SavedResponse == nil && !member.finalized {
			return false
		}
	}
	return true
}

// MarkFinalized records that this individual query's part of the group
// has reached a terminal outcome (response received or given up), without
// invoking any callback. The group-level Finalize (owned by the engine)
// decides when to actually call back.
func (q *Query) MarkFinalized() {
	q.finalized = true
}

// Finalized reports whether MarkFinalized has been called on q.
func (q *Query) Finalized() bool {
	return q.finalized
}
