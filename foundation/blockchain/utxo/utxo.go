// Package utxo maintains the set of unspent transaction outputs.
package utxo

import (
	"bytes"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/ardanlabs/blockforest/foundation/blockchain/database"
)

// Set related errors.
var (
	ErrFrozen   = errors.New("unspent output set is frozen")
	ErrNotFound = errors.New("output not found")
)

// Entry pairs an unspent output with its reference.
type Entry struct {
	Ref    database.OutputRef `json:"ref"`
	Output database.Output    `json:"output"`
}

// Set manages the outputs that have been produced and not yet consumed by
// any transaction applied to it. Once frozen a set can't change and is
// safe for unsynchronized concurrent reads.
type Set struct {
	outputs map[database.OutputRef]database.Output
	frozen  bool
	mu      sync.RWMutex
}

// New constructs an empty set.
func New() *Set {
	return &Set{
		outputs: make(map[database.OutputRef]database.Output),
	}
}

// Freeze makes the set read-only.
func (s *Set) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frozen = true
}

// Frozen reports whether the set is read-only.
func (s *Set) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.frozen
}

// Add inserts the output under the specified reference.
func (s *Set) Add(ref database.OutputRef, output database.Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrFrozen
	}

	s.outputs[ref] = output
	return nil
}

// Remove deletes the output under the specified reference.
func (s *Set) Remove(ref database.OutputRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return ErrFrozen
	}

	if _, exists := s.outputs[ref]; !exists {
		return ErrNotFound
	}

	delete(s.outputs, ref)
	return nil
}

// Get returns the output under the specified reference.
func (s *Set) Get(ref database.OutputRef) (database.Output, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	output, exists := s.outputs[ref]
	return output, exists
}

// Contains reports whether the reference is unspent in this set.
func (s *Set) Contains(ref database.OutputRef) bool {
	_, exists := s.Get(ref)
	return exists
}

// Len returns the number of unspent outputs.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.outputs)
}

// Clone makes a mutable copy of the set.
func (s *Set) Clone() *Set {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := Set{
		outputs: make(map[database.OutputRef]database.Output, len(s.outputs)),
	}
	for ref, output := range s.outputs {
		set.outputs[ref] = output
	}
	return &set
}

// Copy makes a copy of the current outputs.
func (s *Set) Copy() map[database.OutputRef]database.Output {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outputs := make(map[database.OutputRef]database.Output, len(s.outputs))
	for ref, output := range s.outputs {
		outputs[ref] = output
	}
	return outputs
}

// Equal reports whether both sets hold exactly the same outputs.
func (s *Set) Equal(other *Set) bool {
	a := s.Copy()
	b := other.Copy()

	if len(a) != len(b) {
		return false
	}

	for ref, output := range a {
		if o, exists := b[ref]; !exists || o != output {
			return false
		}
	}
	return true
}

// Entries returns every unspent output ordered by reference.
func (s *Set) Entries() []Entry {
	return s.filter(func(database.Output) bool { return true })
}

// ByOwner returns the unspent outputs owned by the specified account
// ordered by reference.
func (s *Set) ByOwner(account database.AccountID) []Entry {
	return s.filter(func(o database.Output) bool {
		return strings.EqualFold(string(o.Owner), string(account))
	})
}

// Balance returns the total value of the outputs owned by the account. A
// total beyond the int64 range is clamped to its bound.
func (s *Set) Balance(account database.AccountID) int64 {
	var total int64
	for _, entry := range s.ByOwner(account) {
		sum, ok := database.AddValue(total, entry.Output.Value)
		if !ok {
			if entry.Output.Value > 0 {
				return math.MaxInt64
			}
			return math.MinInt64
		}
		total = sum
	}
	return total
}

// =============================================================================

func (s *Set) filter(keep func(database.Output) bool) []Entry {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.outputs))
	{
		for ref, output := range s.outputs {
			if keep(output) {
				entries = append(entries, Entry{Ref: ref, Output: output})
			}
		}
	}
	s.mu.RUnlock()

	sort.Sort(byRef(entries))
	return entries
}

// byRef provides sorting support by the output reference.
type byRef []Entry

// Len returns the number of entries in the list.
func (br byRef) Len() int {
	return len(br)
}

// Less orders entries by transaction hash and then output index.
func (br byRef) Less(i, j int) bool {
	if c := bytes.Compare(br[i].Ref.TxHash[:], br[j].Ref.TxHash[:]); c != 0 {
		return c < 0
	}
	return br[i].Ref.Index < br[j].Ref.Index
}

// Swap moves entries in the order of the reference.
func (br byRef) Swap(i, j int) {
	br[i], br[j] = br[j], br[i]
}
