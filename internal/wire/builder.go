// Package wire implements the MessageBuilder and ResponseParser: the
// resolver's only dependency on a DNS wire-format codec, supplied here by
// github.com/miekg/dns rather than a hand-rolled name-compression
// implementation.
package wire

import (
	"github.com/miekg/dns"
)

// Question is one QNAME/QTYPE pair to place in an outgoing message's
// question section. QCLASS is always IN.
type Question struct {
	Name string
	Type uint16
}

// BuildQuery constructs an outgoing query message: header with the given
// id, QR=0, Opcode=Query, RD set per recursionDesired, and one question
// per entry in questions (composite service queries carry two).
func BuildQuery(id uint16, questions []Question, recursionDesired bool) *dns.Msg {
	msg := new(dns.Msg)
	msg.Id = id
	msg.Opcode = dns.OpcodeQuery
	msg.RecursionDesired = recursionDesired
	msg.Question = make([]dns.Question, len(questions))
	for i, q := range questions {
		msg.Question[i] = dns.Question{
			Name:   dns.Fqdn(q.Name),
			Qtype:  q.Type,
			Qclass: dns.ClassINET,
		}
	}
	return msg
}

// Pack serializes msg to wire format.
func Pack(msg *dns.Msg) ([]byte, error) {
	return msg.Pack()
}

// Unpack parses buf into a message.
func Unpack(buf []byte) (*dns.Msg, error) {
	msg := new(dns.Msg)
	if err := msg.Unpack(buf); err != nil {
		return nil, err
	}
	return msg, nil
}
