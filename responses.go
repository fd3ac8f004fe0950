package dnsclient

import (
	"net/netip"

	"github.com/openthread/dnsclient/internal/dnserr"
	"github.com/openthread/dnsclient/internal/nat64"
	"github.com/openthread/dnsclient/internal/wire"
)

// AddressResponse is delivered to resolveAddress and resolveIp4Address
// callbacks. Per §9's "polymorphic response type" note, this and the other
// three response kinds below are tagged accessor projections over the
// single internal wire.Response, not distinct wire representations.
type AddressResponse struct {
	resp   *wire.Response
	synth  bool
	prefix netip.Prefix
}

func newAddressResponse(resp *wire.Response, synthesizeNAT64 bool, prefix netip.Prefix) *AddressResponse {
	return &AddressResponse{resp: resp, synth: synthesizeNAT64, prefix: prefix}
}

// HostName returns the originally-queried name, satisfying the
// round-trip-name testable property.
func (r *AddressResponse) HostName() string {
	if r == nil || r.resp == nil {
		return ""
	}
	return r.resp.HostName()
}

// Address returns the index-th address. For a query that was converted to
// NAT64 synthesis (§4.7 step 3), only index 0 is meaningful: it is the
// synthesized AAAA built from the response's first A record and the
// configured NAT64 prefix.
func (r *AddressResponse) Address(index int) (netip.Addr, uint32, error) {
	if r == nil || r.resp == nil {
		return netip.Addr{}, 0, dnserr.New("getAddress", dnserr.KindNotFound)
	}
	if !r.synth {
		addr, ttl, err := r.resp.GetAddress(index)
		return addr, ttl, errOrNil(err)
	}
	if index != 0 {
		return netip.Addr{}, 0, dnserr.New("getAddress", dnserr.KindNotFound)
	}
	v4, ttl, err := r.resp.FirstIPv4()
	if err != nil {
		return netip.Addr{}, 0, err
	}
	addr, ok := nat64.Synthesize(r.prefix, v4)
	if !ok {
		return netip.Addr{}, 0, dnserr.New("getAddress", dnserr.KindInvalidState)
	}
	return addr, ttl, nil
}

// BrowseResponse is delivered to browse callbacks.
type BrowseResponse struct {
	resp *wire.Response
}

func newBrowseResponse(resp *wire.Response) *BrowseResponse {
	return &BrowseResponse{resp: resp}
}

// ServiceName returns the originally-queried service name.
func (r *BrowseResponse) ServiceName() string {
	if r == nil || r.resp == nil {
		return ""
	}
	return r.resp.HostName()
}

// ServiceInstance returns the index-th discovered instance label.
func (r *BrowseResponse) ServiceInstance(index int) (string, error) {
	if r == nil || r.resp == nil {
		return "", dnserr.New("getServiceInstance", dnserr.KindNotFound)
	}
	name, err := r.resp.GetServiceInstance(index)
	return name, errOrNil(err)
}

// ServiceInfo returns the SRV/TXT projection for instanceLabel.
func (r *BrowseResponse) ServiceInfo(instanceLabel string) (*wire.ServiceInfo, error) {
	if r == nil || r.resp == nil {
		return nil, dnserr.New("getServiceInfo", dnserr.KindNotFound)
	}
	info, err := r.resp.GetServiceInfo(instanceLabel)
	return info, errOrNil(err)
}

// HostAddress returns the index-th AAAA address owned by hostName,
// scanning answer then additional per §4.4/§9's open-question table.
func (r *BrowseResponse) HostAddress(hostName string, index int) (netip.Addr, uint32, error) {
	if r == nil || r.resp == nil {
		return netip.Addr{}, 0, dnserr.New("getHostAddress", dnserr.KindNotFound)
	}
	addr, ttl, err := r.resp.GetHostAddress(hostName, index)
	return addr, ttl, errOrNil(err)
}

// ServiceResponse is delivered to resolveService and
// resolveServiceAndHostAddress callbacks.
type ServiceResponse struct {
	resp          *wire.Response
	followup      *wire.Response
	instanceLabel string
	serviceName   string
}

func newServiceResponse(resp, followup *wire.Response, instanceLabel, serviceName string) *ServiceResponse {
	return &ServiceResponse{resp: resp, followup: followup, instanceLabel: instanceLabel, serviceName: serviceName}
}

// ServiceName returns the instance label and service name the caller
// originally requested.
func (r *ServiceResponse) ServiceName() (instanceLabel, serviceName string) {
	if r == nil {
		return "", ""
	}
	return r.instanceLabel, r.serviceName
}

// ServiceInfo returns the SRV/TXT projection for this response's instance.
// The underlying response was queried under its full instance.service
// owner name already (see planServiceQuery), so no instance-label prefix
// is reapplied here.
func (r *ServiceResponse) ServiceInfo() (*wire.ServiceInfo, error) {
	if r == nil || r.resp == nil {
		return nil, dnserr.New("getServiceInfo", dnserr.KindNotFound)
	}
	info, err := r.resp.GetServiceInfo("")
	return info, errOrNil(err)
}

// HostAddress returns the SRV target's address. If resolveServiceAndHostAddress
// spawned a follow-up host query, its address takes precedence over
// whatever address happened to ride along in the original service
// response, per §4.7 step 5.
func (r *ServiceResponse) HostAddress() (netip.Addr, uint32, error) {
	if r == nil {
		return netip.Addr{}, 0, dnserr.New("getHostAddress", dnserr.KindNotFound)
	}
	if r.followup != nil {
		return r.followup.GetAddress(0)
	}
	info, err := r.ServiceInfo()
	if err != nil {
		return netip.Addr{}, 0, err
	}
	if !info.HostAddress.IsValid() {
		return netip.Addr{}, 0, dnserr.New("getHostAddress", dnserr.KindNotFound)
	}
	return info.HostAddress, info.TTL, nil
}

// RecordResponse is delivered to queryRecord callbacks.
type RecordResponse struct {
	resp *wire.Response
}

func newRecordResponse(resp *wire.Response) *RecordResponse {
	return &RecordResponse{resp: resp}
}

// QueryName returns the originally-queried name.
func (r *RecordResponse) QueryName() string {
	if r == nil || r.resp == nil {
		return ""
	}
	return r.resp.HostName()
}

// RecordInfo returns the index-th record across answer, authority, then
// additional.
func (r *RecordResponse) RecordInfo(index int) (*wire.RecordInfo, error) {
	if r == nil || r.resp == nil {
		return nil, dnserr.New("getRecordInfo", dnserr.KindNotFound)
	}
	info, err := r.resp.GetRecordInfo(index)
	return info, errOrNil(err)
}

// errOrNil converts a possibly-nil *dnserr.Error into a plain error,
// avoiding the classic non-nil-interface-wrapping-nil-pointer trap.
func errOrNil(err *dnserr.Error) error {
	if err == nil {
		return nil
	}
	return err
}
