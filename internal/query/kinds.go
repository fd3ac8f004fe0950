package query

// Kind identifies the shape of a query: what question(s) it asks and
// which typed response it ultimately produces.
type Kind int

const (
	KindIP6Address Kind = iota
	KindIP4Address
	KindBrowse
	KindServiceSrvTxt
	KindServiceSrv
	KindServiceTxt
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindIP6Address:
		return "ip6-address"
	case KindIP4Address:
		return "ip4-address"
	case KindBrowse:
		return "browse"
	case KindServiceSrvTxt:
		return "service-srv-txt"
	case KindServiceSrv:
		return "service-srv"
	case KindServiceTxt:
		return "service-txt"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// IsServiceQuery reports whether k is one of the three service-resolution
// kinds the service-mode planner produces.
func (k Kind) IsServiceQuery() bool {
	return k == KindServiceSrvTxt || k == KindServiceSrv || k == KindServiceTxt
}
