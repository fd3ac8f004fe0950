package query

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/openthread/dnsclient/internal/dnserr"
)

// Store owns every live query, keyed by its 16-bit message id, and is
// the only place new ids are minted. This is QueryStore (C2).
type Store struct {
	byID map[uint16]*Query
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byID: make(map[uint16]*Query)}
}

// Allocate reserves a fresh, store-unique id for q and inserts it. The
// caller supplies a fully-formed Query; Allocate only assigns the id and
// tracks it.
func (s *Store) Allocate(q *Query) error {
	id, err := s.freshID()
	if err != nil {
		return err
	}
	q.ID = id
	s.byID[id] = q
	return nil
}

// freshID draws random 16-bit ids until one is not already live. The
// store is small (bounded by concurrently in-flight queries), so
// collisions are rare and a handful of retries always succeed.
func (s *Store) freshID() (uint16, error) {
	var buf [2]byte
	for attempt := 0; attempt < 64; attempt++ {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, dnserr.Wrap("allocateQuery", dnserr.KindNoBufs, err)
		}
		id := binary.BigEndian.Uint16(buf[:])
		if _, exists := s.byID[id]; !exists {
			return id, nil
		}
	}
	return 0, dnserr.New("allocateQuery", dnserr.KindNoBufs)
}

// Free detaches q's sibling chain and removes every member of its group
// from the store.
func (s *Store) Free(q *Query) {
	for _, member := range q.Group() {
		delete(s.byID, member.ID)
	}
	main := q.Main()
	main.Siblings = nil
}

// FindByID looks up a live query by its message id.
func (s *Store) FindByID(id uint16) (*Query, bool) {
	q, ok := s.byID[id]
	return q, ok
}

// All returns every live query, main and sibling alike, for the timer's
// retransmission scan. Order is unspecified.
func (s *Store) All() []*Query {
	out := make([]*Query, 0, len(s.byID))
	for _, q := range s.byID {
		out = append(out, q)
	}
	return out
}

// Len reports the number of live queries.
func (s *Store) Len() int {
	return len(s.byID)
}
