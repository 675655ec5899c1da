package chain

import (
	mapset "github.com/deckarep/golang-set"
)

// Participant is one admitted member of the network, held by value inside
// the chain-owned Roster: participants live as values in a chain-owned
// map, never as separately-owned records behind pointers.
type Participant struct {
	ID        int
	Host      string
	Port      int
	PublicKey string
	Balance   float64
	Stake     float64
	Nonce     uint64
}

// Available returns the portion of Balance not locked as Stake, the
// balance coins/message transactions are checked against.
func (p Participant) Available() float64 {
	return p.Balance - p.Stake
}

// Roster is the chain-owned set of admitted participants, indexable by id
// and by public key (wire "address"). All mutation happens through Chain's
// lock; Roster itself holds no lock of its own.
type Roster struct {
	byID      map[int]Participant
	admitted  mapset.Set
	nextID    int
}

// NewRoster builds an empty roster. The bootstrap participant (id 0) is
// added by the caller like any other participant.
func NewRoster() *Roster {
	return &Roster{
		byID:     make(map[int]Participant),
		admitted: mapset.NewThreadUnsafeSet(),
		nextID:   0,
	}
}

// Add inserts or replaces a participant record.
func (r *Roster) Add(p Participant) {
	r.byID[p.ID] = p
	r.admitted.Add(p.ID)
}

// Get looks a participant up by id.
func (r *Roster) Get(id int) (Participant, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// ByPublicKey looks a participant up by its wire address (PEM public key).
func (r *Roster) ByPublicKey(key string) (Participant, bool) {
	for _, p := range r.byID {
		if p.PublicKey == key {
			return p, true
		}
	}
	return Participant{}, false
}

// Update replaces the stored record for id, the only way roster state is
// ever mutated once a participant is admitted.
func (r *Roster) Update(p Participant) {
	r.byID[p.ID] = p
}

// Size returns the number of admitted participants, including bootstrap.
func (r *Roster) Size() int {
	return r.admitted.Cardinality()
}

// NextPeerID returns the next sequential id to assign a newly admitted
// peer (bootstrap is always id 0 and is added directly via Add).
func (r *Roster) NextPeerID() int {
	r.nextID++
	return r.nextID
}

// All returns every admitted participant, in no particular order.
func (r *Roster) All() []Participant {
	out := make([]Participant, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	return out
}
