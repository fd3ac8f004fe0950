package dnsclient

import (
	"net/netip"
	"time"

	"github.com/openthread/dnsclient/internal/nat64"
	"github.com/openthread/dnsclient/internal/protocol"
	"github.com/openthread/dnsclient/internal/query"
	"github.com/openthread/dnsclient/internal/srp"
)

// Logger is the optional structured-logging collaborator. A Client with no
// Logger configured logs nothing; nothing in this package requires a
// logging backend to function.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Warnf(string, ...any)  {}

// options holds everything resolved from New's functional options: the
// per-query defaults ConfigResolver falls back to (query.Config), plus the
// client-level collaborators (transport, NAT64, SRP, logging) that have no
// per-query counterpart.
type options struct {
	defaults query.Config

	userSetServerAddr bool
	autoServerFromSRP bool
	srpSource         srp.ServerSource

	tcpEnabled    bool
	nat64Provider nat64.PrefixProvider

	logger Logger
}

// Option configures a Client at construction time. Options follow the
// functional-options pattern; unset fields fall back to DefaultConfig.
type Option func(*options) error

// DefaultConfig returns the build-time defaults ConfigResolver.resetDefaults
// repopulates from: recursion desired, the richest service mode (composite
// SRV+TXT with automatic downgrade), NAT64 disallowed, UDP only, and the
// retransmission constants in package protocol.
func DefaultConfig() options {
	return options{
		defaults: query.Config{
			ResponseTimeout: protocol.DefaultResponseTimeout,
			MaxTxAttempts:   protocol.DefaultMaxTxAttempts,
			Recursion:       query.RecursionDesired,
			NAT64:           query.NAT64Disallow,
			ServiceMode:     query.ServiceModeSrvTxtOptimize,
			Transport:       query.TransportUDP,
		},
		logger: noopLogger{},
	}
}

// WithServerAddress sets the default recursive server. It must be supplied
// unless WithAutoServerFromSRP is used instead, since Validate requires a
// concrete default.
func WithServerAddress(addr netip.AddrPort) Option {
	return func(o *options) error {
		o.defaults.ServerAddr = addr
		o.userSetServerAddr = true
		return nil
	}
}

// WithResponseTimeout overrides the default per-attempt response timeout.
func WithResponseTimeout(d time.Duration) Option {
	return func(o *options) error {
		o.defaults.ResponseTimeout = d
		return nil
	}
}

// WithMaxTxAttempts overrides the default retransmission budget.
func WithMaxTxAttempts(n int) Option {
	return func(o *options) error {
		o.defaults.MaxTxAttempts = n
		return nil
	}
}

// WithRecursion overrides the default RD-bit policy.
func WithRecursion(flag query.RecursionFlag) Option {
	return func(o *options) error {
		o.defaults.Recursion = flag
		return nil
	}
}

// WithServiceMode overrides the default SRV/TXT query planning strategy.
func WithServiceMode(mode query.ServiceMode) Option {
	return func(o *options) error {
		o.defaults.ServiceMode = mode
		return nil
	}
}

// WithNAT64 enables address synthesis for resolveAddress when a queried
// name has no AAAA but does have an A record, using provider to supply the
// /96 prefix in effect. A nil provider is only valid with query.NAT64Disallow.
func WithNAT64(mode query.NAT64Mode, provider nat64.PrefixProvider) Option {
	return func(o *options) error {
		o.defaults.NAT64 = mode
		o.nat64Provider = provider
		return nil
	}
}

// WithTCP enables the TCP fallback endpoint for oversized or truncated
// responses. Disabled by default, per §9's "isolated behind a feature
// flag" design note — a UDP-only client remains fully correct.
func WithTCP(enabled bool) Option {
	return func(o *options) error {
		o.tcpEnabled = enabled
		return nil
	}
}

// WithAutoServerFromSRP puts the client in "auto server address" mode: New
// takes the default server address from source's selected server at
// construction time, unless the caller also calls WithServerAddress, which
// always wins. Later changes to source's selection are not picked up.
func WithAutoServerFromSRP(source srp.ServerSource) Option {
	return func(o *options) error {
		o.autoServerFromSRP = true
		o.srpSource = source
		return nil
	}
}

// WithLogger installs a structured logger. Debugf traces retransmissions,
// alias restarts, and query-plan downgrades; Warnf reports dropped
// malformed packets and transport errors.
func WithLogger(logger Logger) Option {
	return func(o *options) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}
