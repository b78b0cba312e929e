// Package memory implements the memory image tracker. It keeps the latest
// value of every stack, heap and global cell and produces, at each slice
// boundary, the init memory table the next slice uses to justify its first
// read of each address.
package memory

import (
	"sort"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/trace"
)

// Key addresses one cell
type Key struct {
	Location trace.LocationType
	Address  uint32
}

// Less orders keys by location class, then address
func (k Key) Less(o Key) bool {
	if k.Location != o.Location {
		return k.Location < o.Location
	}
	return k.Address < o.Address
}

// Cell is the latest known value of one location
type Cell struct {
	_ struct{} `cbor:",toarray"`

	Location trace.LocationType `json:"ltype"`
	Address  uint32             `json:"offset"`
	Type     trace.ValueType    `json:"vtype"`
	Mutable  bool               `json:"is_mutable"`
	Value    uint64             `json:"value"`

	// Eid is the step that last wrote the cell, 0 when the value comes
	// from the program image
	Eid uint32 `json:"eid"`
}

// Key returns the address of the cell
func (c Cell) Key() Key {
	return Key{Location: c.Location, Address: c.Address}
}

// Table is an init memory table sorted by (location, address)
type Table []Cell

// Lookup finds the cell at (loc, addr)
func (t Table) Lookup(loc trace.LocationType, addr uint32) (Cell, bool) {
	k := Key{Location: loc, Address: addr}
	i := sort.Search(len(t), func(i int) bool { return !t[i].Key().Less(k) })
	if i < len(t) && t[i].Key() == k {
		return t[i], true
	}
	return Cell{}, false
}

// Count returns the number of cells of one location class
func (t Table) Count(loc trace.LocationType) int {
	n := 0
	for _, c := range t {
		if c.Location == loc {
			n++
		}
	}
	return n
}

func sortedTable(cells map[Key]Cell) Table {
	out := make(Table, 0, len(cells))
	for _, c := range cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}
