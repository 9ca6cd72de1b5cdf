package fingerprint

import (
	"encoding/binary"
	"hash/fnv"
	"slices"
)

// atomInvariant hashes the radius-0 environment of atom i: element, heavy
// degree, hydrogen count, formal charge, aromaticity and ring membership.
func (m *Molecule) atomInvariant(i int) uint64 {
	a := m.atoms[i]
	heavy := 0
	for _, bi := range m.adj[i] {
		if m.atoms[m.bonds[bi].other(i)].number != 1 {
			heavy++
		}
	}
	flags := uint64(0)
	if a.aromatic {
		flags |= 1
	}
	if m.ringAtom[i] {
		flags |= 2
	}
	return hashWords(
		uint64(a.number),
		uint64(heavy),
		uint64(a.hydrogens),
		uint64(int64(a.charge)+16),
		flags,
	)
}

// morganBits folds ECFP-style circular environments up to radius into nBits
func (m *Molecule) morganBits(radius, nBits int) []float32 {
	bits := make([]float32, nBits)
	set := func(h uint64) {
		bits[h%uint64(nBits)] = 1
	}

	n := len(m.atoms)
	current := make([]uint64, n)
	for i := range m.atoms {
		current[i] = m.atomInvariant(i)
		set(current[i])
	}

	neighbours := make([]uint64, 0, 8)
	for r := 1; r <= radius; r++ {
		next := make([]uint64, n)
		for i := range m.atoms {
			neighbours = neighbours[:0]
			for _, bi := range m.adj[i] {
				b := m.bonds[bi]
				neighbours = append(neighbours, hashWords(uint64(b.order), current[b.other(i)]))
			}
			slices.Sort(neighbours)

			words := make([]uint64, 0, len(neighbours)+2)
			words = append(words, uint64(r), current[i])
			words = append(words, neighbours...)
			next[i] = hashWords(words...)
			set(next[i])
		}
		current = next
	}
	return bits
}

func hashWords(words ...uint64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, w := range words {
		binary.LittleEndian.PutUint64(buf[:], w)
		h.Write(buf[:])
	}
	return h.Sum64()
}
