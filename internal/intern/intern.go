// Package intern provides the identifier economy for the compiler: a
// deduplicating string interner and a monotone UID generator for nominal
// type occurrences.
package intern

import "sync"

// Key is a handle to an interned string. Distinct strings produce distinct
// keys; equal strings always produce the same key.
type Key uint32

// Name is a Key tagged as an identifier (as opposed to a file path).
type Name Key

// FileName is a Key tagged as a canonical absolute file path.
type FileName Key

// Fqn is the only cross-file identity for a global binding.
type Fqn struct {
	File FileName
	Name Name
}

// Interner is a dense string<->Key table. Zero value is not usable; use
// New.
type Interner struct {
	mu      sync.Mutex
	strings []string
	lookup  map[string]Key
}

// New creates an empty Interner.
func New() *Interner {
	return &Interner{
		lookup: make(map[string]Key),
	}
}

// Intern returns the Key for s, minting a new one if s has not been seen
// before. Intern is idempotent: repeated calls with equal strings return
// the same Key.
func (in *Interner) Intern(s string) Key {
	in.mu.Lock()
	defer in.mu.Unlock()

	if k, ok := in.lookup[s]; ok {
		return k
	}
	k := Key(len(in.strings))
	// copy to avoid retaining caller's backing array
	cp := string([]byte(s))
	in.strings = append(in.strings, cp)
	in.lookup[cp] = k
	return k
}

// InternName interns s and tags it as a Name.
func (in *Interner) InternName(s string) Name {
	return Name(in.Intern(s))
}

// InternFileName interns s and tags it as a FileName.
func (in *Interner) InternFileName(s string) FileName {
	return FileName(in.Intern(s))
}

// Lookup returns the original bytes for k. Panics if k was never minted by
// this Interner, which indicates a programmer error (a Key crossing
// Interner instances).
func (in *Interner) Lookup(k Key) string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.strings[k]
}

// LookupName returns the original bytes for a Name.
func (in *Interner) LookupName(n Name) string { return in.Lookup(Key(n)) }

// LookupFileName returns the original bytes for a FileName.
func (in *Interner) LookupFileName(f FileName) string { return in.Lookup(Key(f)) }

// Len reports how many distinct strings have been interned so far.
func (in *Interner) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.strings)
}

// UIDGenerator hands out strictly increasing 32-bit integers identifying
// nominal type occurrences (distinct wrappers, struct declarations). UIDs
// are never reused within one generator's lifetime.
type UIDGenerator struct {
	mu   sync.Mutex
	next uint32
}

// NewUIDGenerator creates a generator starting at 0.
func NewUIDGenerator() *UIDGenerator {
	return &UIDGenerator{}
}

// Next mints and returns the next UID.
func (g *UIDGenerator) Next() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	uid := g.next
	g.next++
	return uid
}
