package profile

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func addr(s string) netip.Addr { return netip.MustParseAddr(s) }

func TestProfile_RecordAndIsLimited(t *testing.T) {
	p := New()
	a := addr("2001:db8::1")

	assert.False(t, p.IsLimited(a))
	p.RecordLimitedToSingleQuestion(a)
	assert.True(t, p.IsLimited(a))
}

func TestProfile_MonotonicityOnceRecorded(t *testing.T) {
	p := New()
	a := addr("2001:db8::1")
	p.RecordLimitedToSingleQuestion(a)
	p.RecordLimitedToSingleQuestion(a) // recording twice must not break IsLimited
	assert.True(t, p.IsLimited(a))
}

func TestProfile_BoundedRingDisplacesOldest(t *testing.T) {
	p := New()
	a1, a2, a3, a4 := addr("2001:db8::1"), addr("2001:db8::2"), addr("2001:db8::3"), addr("2001:db8::4")

	p.RecordLimitedToSingleQuestion(a1)
	p.RecordLimitedToSingleQuestion(a2)
	p.RecordLimitedToSingleQuestion(a3)
	p.RecordLimitedToSingleQuestion(a4) // displaces a1, the oldest

	assert.False(t, p.IsLimited(a1))
	assert.True(t, p.IsLimited(a2))
	assert.True(t, p.IsLimited(a3))
	assert.True(t, p.IsLimited(a4))
}
