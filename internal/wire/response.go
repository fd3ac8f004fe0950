package wire

import (
	"net/netip"
	"strings"

	"github.com/miekg/dns"

	"github.com/openthread/dnsclient/internal/dnserr"
	"github.com/openthread/dnsclient/internal/protocol"
)

// Section tags which part of the response a RecordInfo came from.
type Section int

const (
	SectionAnswer Section = iota
	SectionAuthority
	SectionAdditional
)

// RecordInfo is the generic per-record projection used by queryRecord.
type RecordInfo struct {
	Section Section
	Name    string
	Type    uint16
	Class   uint16
	TTL     uint32
	RData   []byte
}

// ServiceInfo is the SRV+TXT+host projection used by resolveService and browse.
type ServiceInfo struct {
	TTL         uint32
	Priority    uint16
	Weight      uint16
	Port        uint16
	HostName    string
	TXT         []string
	HostAddress netip.Addr
}

// Response is a read-only projection over a parsed message. It is valid
// only for the duration of the callback that receives it, matching §3.
type Response struct {
	Msg           *dns.Msg
	QueryName     string
	EffectiveName string
	AliasHops     int
	Next          *Response
}

// rcodeKind maps an RCODE to the resolver's error taxonomy, per §4.4 step 1.
func rcodeKind(rcode int) dnserr.Kind {
	switch rcode {
	case dns.RcodeSuccess:
		return dnserr.KindNone
	case dns.RcodeFormatError:
		return dnserr.KindFailedResponse
	case dns.RcodeServerFailure:
		return dnserr.KindFailedResponse
	case dns.RcodeNameError:
		return dnserr.KindNotFound
	case dns.RcodeNotImplemented, dns.RcodeRefused:
		return dnserr.KindFailedResponse
	default:
		return dnserr.KindFailedResponse
	}
}

// IsFormatError reports whether the response RCODE was FormatError, the
// signal ServerProfile uses to record a server as single-question-only.
func IsFormatError(msg *dns.Msg) bool {
	return msg.Rcode == dns.RcodeFormatError
}

// NewResponse validates the header and chases any CNAME rewrite of
// queryName, producing the effective owner name projections should use.
// It implements §4.4 steps 1-3.
func NewResponse(msg *dns.Msg, queryName string) (*Response, *dnserr.Error) {
	if !msg.Response || msg.Opcode != dns.OpcodeQuery {
		return nil, dnserr.New("parseResponse", dnserr.KindParse)
	}
	if kind := rcodeKind(msg.Rcode); kind != dnserr.KindNone {
		return nil, dnserr.New("parseResponse", kind)
	}

	effective := dns.Fqdn(queryName)
	hops := 0
	for {
		target, ok := cnameTarget(msg, effective)
		if !ok {
			break
		}
		hops++
		if hops > protocol.MaxCNAMEAliasNameChanges {
			return nil, dnserr.New("parseResponse", dnserr.KindParse)
		}
		effective = target
	}

	return &Response{
		Msg:           msg,
		QueryName:     dns.Fqdn(queryName),
		EffectiveName: effective,
		AliasHops:     hops,
	}, nil
}

func cnameTarget(msg *dns.Msg, owner string) (string, bool) {
	for _, rr := range msg.Answer {
		cname, ok := rr.(*dns.CNAME)
		if !ok {
			continue
		}
		if strings.EqualFold(cname.Hdr.Name, owner) {
			return dns.Fqdn(cname.Target), true
		}
	}
	return "", false
}

// HasRecord reports whether the answer section contains a record of the
// given type owned by name. The engine uses this to decide whether an
// alias rewrite already terminated in this response or requires a
// restart with the new name (§4.7 onReceive step 2).
func (r *Response) HasRecord(name string, rrType uint16) bool {
	for _, rr := range r.Msg.Answer {
		if rr.Header().Rrtype == rrType && strings.EqualFold(rr.Header().Name, name) {
			return true
		}
	}
	return false
}

// HostName returns the originally-queried name as a fully-qualified name
// (with its trailing dot), satisfying the round-trip-name testable
// property in §8.
func (r *Response) HostName() string {
	return r.QueryName
}

// GetAddress returns the index-th AAAA record owned by the effective
// name from the answer section only, per the §4.4/§9 open-question table
// (AAAA queries are answer-only).
func (r *Response) GetAddress(index int) (netip.Addr, uint32, *dnserr.Error) {
	return scanAddress(r.Msg.Answer, nil, r.EffectiveName, index)
}

// GetHostAddress returns the index-th AAAA record owned by name, scanning
// the answer section and then the additional section, per the §4.4/§9
// open-question table (browse/service host lookups are answer-then-additional).
func (r *Response) GetHostAddress(name string, index int) (netip.Addr, uint32, *dnserr.Error) {
	return scanAddress(r.Msg.Answer, r.Msg.Extra, dns.Fqdn(name), index)
}

func scanAddress(primary, secondary []dns.RR, owner string, index int) (netip.Addr, uint32, *dnserr.Error) {
	n := 0
	for _, section := range [][]dns.RR{primary, secondary} {
		for _, rr := range section {
			aaaa, ok := rr.(*dns.AAAA)
			if !ok || !strings.EqualFold(aaaa.Hdr.Name, owner) {
				continue
			}
			if n == index {
				addr, ok := netip.AddrFromSlice(aaaa.AAAA)
				if !ok {
					return netip.Addr{}, 0, dnserr.New("getAddress", dnserr.KindParse)
				}
				return addr, aaaa.Hdr.Ttl, nil
			}
			n++
		}
		if secondary == nil {
			break
		}
	}
	return netip.Addr{}, 0, dnserr.New("getAddress", dnserr.KindNotFound)
}

// GetServiceInstance returns the index-th PTR target's first label (the
// service instance name) from the answer section.
func (r *Response) GetServiceInstance(index int) (string, *dnserr.Error) {
	n := 0
	for _, rr := range r.Msg.Answer {
		ptr, ok := rr.(*dns.PTR)
		if !ok {
			continue
		}
		if n == index {
			labels := dns.SplitDomainName(ptr.Ptr)
			if len(labels) == 0 {
				return "", dnserr.New("getServiceInstance", dnserr.KindParse)
			}
			return labels[0], nil
		}
		n++
	}
	return "", dnserr.New("getServiceInstance", dnserr.KindNotFound)
}

// GetServiceInfo locates the SRV record for instanceLabel (in answer, then
// additional), and attaches TXT data and the target's first AAAA address
// if present, per §4.4 step 4. TXT data is looked up in this response
// first, then in the sibling responses chained via Next (a separate TXT
// query's response).
func (r *Response) GetServiceInfo(instanceLabel string) (*ServiceInfo, *dnserr.Error) {
	owner := r.EffectiveName
	if instanceLabel != "" {
		owner = dns.Fqdn(instanceLabel + "." + r.EffectiveName)
	}

	srv := findSRV(r.Msg.Answer, owner)
	if srv == nil {
		srv = findSRV(r.Msg.Extra, owner)
	}
	if srv == nil {
		return nil, dnserr.New("getServiceInfo", dnserr.KindNotFound)
	}

	info := &ServiceInfo{
		TTL:      srv.Hdr.Ttl,
		Priority: srv.Priority,
		Weight:   srv.Weight,
		Port:     srv.Port,
		HostName: strings.TrimSuffix(srv.Target, "."),
	}

	if txt := findTXT(r.Msg.Answer, srv.Hdr.Name); txt != nil {
		info.TXT = txt.Txt
	} else if txt := findTXT(r.Msg.Extra, srv.Hdr.Name); txt != nil {
		info.TXT = txt.Txt
	}
	for n := r.Next; info.TXT == nil && n != nil; n = n.Next {
		if txt := findTXT(n.Msg.Answer, srv.Hdr.Name); txt != nil {
			info.TXT = txt.Txt
		}
	}

	if addr, _, err := scanAddress(r.Msg.Answer, r.Msg.Extra, dns.Fqdn(srv.Target), 0); err == nil {
		info.HostAddress = addr
	}

	return info, nil
}

func findSRV(rrs []dns.RR, owner string) *dns.SRV {
	for _, rr := range rrs {
		if srv, ok := rr.(*dns.SRV); ok && strings.EqualFold(srv.Hdr.Name, owner) {
			return srv
		}
	}
	return nil
}

func findTXT(rrs []dns.RR, owner string) *dns.TXT {
	for _, rr := range rrs {
		if txt, ok := rr.(*dns.TXT); ok && strings.EqualFold(txt.Hdr.Name, owner) {
			return txt
		}
	}
	return nil
}

// decompressibleTypes is the set of RR types whose RDATA is itself a
// domain name that GetRecordInfo must decompress into recordLength,
// per §4.4 step 4.
var decompressibleTypes = map[uint16]bool{
	dns.TypePTR:   true,
	dns.TypeCNAME: true,
	dns.TypeDNAME: true,
	dns.TypeNS:    true,
	dns.TypeSRV:   true,
}

// GetRecordInfo returns the index-th record across answer, authority,
// then additional, per §4.4 step 4.
func (r *Response) GetRecordInfo(index int) (*RecordInfo, *dnserr.Error) {
	sections := []struct {
		tag Section
		rrs []dns.RR
	}{
		{SectionAnswer, r.Msg.Answer},
		{SectionAuthority, r.Msg.Ns},
		{SectionAdditional, r.Msg.Extra},
	}

	n := 0
	for _, s := range sections {
		for _, rr := range s.rrs {
			if n != index {
				n++
				continue
			}
			hdr := rr.Header()
			info := &RecordInfo{
				Section: s.tag,
				Name:    strings.TrimSuffix(hdr.Name, "."),
				Type:    hdr.Rrtype,
				Class:   hdr.Class,
				TTL:     hdr.Ttl,
			}
			if decompressibleTypes[hdr.Rrtype] {
				info.RData = []byte(recordNameTarget(rr))
			} else {
				raw, err := packRDATA(rr)
				if err != nil {
					return nil, dnserr.Wrap("getRecordInfo", dnserr.KindNoBufs, err)
				}
				info.RData = raw
			}
			return info, nil
		}
	}
	return nil, dnserr.New("getRecordInfo", dnserr.KindNotFound)
}

// recordNameTarget extracts the embedded name from one of the
// decompressibleTypes records, already decompressed by miekg/dns's Unpack.
func recordNameTarget(rr dns.RR) string {
	switch v := rr.(type) {
	case *dns.PTR:
		return v.Ptr
	case *dns.CNAME:
		return v.Target
	case *dns.DNAME:
		return v.Target
	case *dns.NS:
		return v.Ns
	case *dns.SRV:
		return v.Target
	default:
		return ""
	}
}

// packRDATA serializes just the RDATA portion of rr by packing the full
// record and slicing past its fixed header.
func packRDATA(rr dns.RR) ([]byte, error) {
	buf := make([]byte, dns.Len(rr)+1)
	off, err := dns.PackRR(rr, buf, 0, nil, false)
	if err != nil {
		return nil, err
	}
	full := buf[:off]
	rdlenOffset := len(full) - int(rr.Header().Rdlength)
	if rdlenOffset < 0 || rdlenOffset > len(full) {
		return nil, dns.ErrBuf
	}
	return full[rdlenOffset:], nil
}

// NAT64Needed reports whether the answer section contains no AAAA record
// while the additional section contains at least one A record, the
// signal the engine uses (for Ip6Address queries only) to decide whether
// to replace the query with an Ip4Address query for NAT64 synthesis,
// per §4.4 step 5.
func (r *Response) NAT64Needed() bool {
	for _, rr := range r.Msg.Answer {
		if _, ok := rr.(*dns.AAAA); ok {
			return false
		}
	}
	for _, rr := range r.Msg.Extra {
		if _, ok := rr.(*dns.A); ok {
			return true
		}
	}
	return false
}

// FirstIPv4 returns the first A record address found in the answer then
// additional sections, used when projecting an Ip4Address query's result
// through NAT64 synthesis.
func (r *Response) FirstIPv4() (netip.Addr, uint32, *dnserr.Error) {
	for _, section := range [][]dns.RR{r.Msg.Answer, r.Msg.Extra} {
		for _, rr := range section {
			if a, ok := rr.(*dns.A); ok {
				addr, ok := netip.AddrFromSlice(a.A.To4())
				if !ok {
					continue
				}
				return addr, a.Hdr.Ttl, nil
			}
		}
	}
	return netip.Addr{}, 0, dnserr.New("firstIPv4", dnserr.KindNotFound)
}
