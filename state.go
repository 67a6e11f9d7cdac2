package slicescan

// State enumerates what is known about one block.
//
// The zero value, NotFound, is the state of every block when a session
// starts. The String method returns a short lower-case name.
type State uint8

const (
	// NotFound means no candidate has proven the block present yet.
	NotFound State = iota

	// FoundIntact means the block's bytes were found verbatim.
	FoundIntact

	// FoundInDamagedFile means the block was rebuilt from damaged data, by
	// single-byte correction or by joining two fragments.
	FoundInDamagedFile

	// AllZero means the block content is all zeros and needs no source.
	AllZero

	// Reversible means the block is at most four bytes long and its content
	// follows from its CRC.
	Reversible

	// Duplicate means the block's content equals another found block,
	// recorded in Discovery.Source.
	Duplicate
)

var stateNames = map[State]string{
	NotFound:           "not-found",
	FoundIntact:        "found",
	FoundInDamagedFile: "found-damaged",
	AllZero:            "all-zero",
	Reversible:         "reversible",
	Duplicate:          "duplicate",
}

func (s State) String() string { return stateNames[s] }

// Available reports whether the block's content can be produced without
// erasure-code reconstruction.
func (s State) Available() bool { return s != NotFound }

// located reports whether the block was matched against candidate bytes.
func (s State) located() bool { return s == FoundIntact || s == FoundInDamagedFile }

// Discovery is the per-block result. Source is meaningful only when State is
// Duplicate and names the block whose content is identical.
type Discovery struct {
	State  State
	Source uint32
}

// Table holds the Discovery of every block of a recovery set together with
// the transient "seen in the current file" marker.
//
// Updates are additive: once a block leaves NotFound it never goes back and
// its state is never rewritten. A Table belongs to one session and is not
// safe for concurrent use.
type Table struct {
	states []Discovery
	seen   []bool
	// touched lists the blocks whose seen marker is set, so beginFile can
	// clear them without walking the whole table.
	touched []uint32
	found   int
}

// NewTable returns a table with every block NotFound.
func NewTable(blocks int) *Table {
	return &Table{
		states: make([]Discovery, blocks),
		seen:   make([]bool, blocks),
	}
}

// Len returns the number of blocks tracked.
func (t *Table) Len() int { return len(t.states) }

// Get returns the discovery of block i.
func (t *Table) Get(i int) Discovery { return t.states[i] }

// Available returns how many blocks are in any state other than NotFound.
func (t *Table) Available() int { return t.found }

// Missing returns the indexes of the blocks still NotFound.
func (t *Table) Missing() []int {
	var out []int
	for i, d := range t.states {
		if d.State == NotFound {
			out = append(out, i)
		}
	}
	return out
}

// Snapshot returns a copy of every block's discovery.
func (t *Table) Snapshot() []Discovery { return append([]Discovery(nil), t.states...) }

// mark records a discovery for block i. It reports whether the block moved
// out of NotFound.
func (t *Table) mark(i int, d Discovery) bool {
	if t.states[i].State != NotFound || d.State == NotFound {
		return false
	}
	t.states[i] = d
	t.found++
	return true
}

func (t *Table) isSeen(i int) bool { return t.seen[i] }

func (t *Table) see(i int) {
	if !t.seen[i] {
		t.seen[i] = true
		t.touched = append(t.touched, uint32(i))
	}
}

// beginFile clears the seen markers of the previous file.
func (t *Table) beginFile() {
	for _, i := range t.touched {
		t.seen[i] = false
	}
	t.touched = t.touched[:0]
}

// Merge folds the located and calculated blocks of other into t. Because
// updates are additive the result does not depend on merge order, except
// that a block found by both keeps the first state recorded.
func (t *Table) Merge(other *Table) int {
	n := 0
	for i, d := range other.states {
		if t.mark(i, d) {
			n++
		}
	}
	return n
}
