// Package protocol holds the wire-level constants shared across the
// resolver: defaults, size bounds, and the named limits carried over from
// the OpenThread DNS client this package is modeled on.
package protocol

import "time"

const (
	// DefaultPort is the standard DNS port used when a caller-supplied
	// server address omits one.
	DefaultPort = 53

	// UDPQueryMaxSize is the largest outbound message the transport will
	// send over UDP before the engine must fall back to TCP or fail with
	// NoBufs. Named kUdpQueryMaxSize in the source this client is modeled on.
	UDPQueryMaxSize = 512

	// MaxCNAMEAliasNameChanges bounds the number of CNAME rewrites a single
	// resolve will follow before giving up. Named kMaxCnameAliasNameChanges
	// in the source this client is modeled on.
	MaxCNAMEAliasNameChanges = 40

	// LimitedQueryServersArraySize is the capacity of the ServerProfile ring
	// buffer. Named kLimitedQueryServersArraySize in the source this client
	// is modeled on.
	LimitedQueryServersArraySize = 3

	// MaxLabelLength and MaxNameLength are the RFC 1035 §3.1 wire-format
	// bounds on a single label and a full encoded name.
	MaxLabelLength = 63
	MaxNameLength  = 255

	// TCPLengthPrefixSize is the width of the length prefix RFC 1035
	// §4.2.2 uses to frame DNS messages over a TCP stream.
	TCPLengthPrefixSize = 2

	// DefaultResponseTimeout and DefaultMaxTxAttempts are the build-time
	// retransmission defaults consulted by ConfigResolver.resetDefaults.
	DefaultResponseTimeout = 2 * time.Second
	DefaultMaxTxAttempts   = 3
)
