package fingerprint

import (
	"fmt"
	"strings"
)

// maxStructureLength bounds the input accepted by Parse
const maxStructureLength = 4096

type bondOrder int

const (
	bondSingle    bondOrder = 1
	bondDouble    bondOrder = 2
	bondTriple    bondOrder = 3
	bondQuadruple bondOrder = 4
	bondAromatic  bondOrder = 5
)

type atom struct {
	symbol    string
	number    int
	aromatic  bool
	bracket   bool
	isotope   int
	charge    int
	hydrogens int
}

type bond struct {
	a, b  int
	order bondOrder
}

func (b bond) other(i int) int {
	if b.a == i {
		return b.b
	}
	return b.a
}

// Molecule is the graph parsed from a SMILES string, with implicit
// hydrogens assigned and ring membership computed.
type Molecule struct {
	atoms    []atom
	bonds    []bond
	adj      [][]int
	ringBond []bool
	ringAtom []bool
}

// AtomCount returns the number of explicit atoms
func (m *Molecule) AtomCount() int { return len(m.atoms) }

// BondCount returns the number of bonds
func (m *Molecule) BondCount() int { return len(m.bonds) }

// RingBondCount returns the number of bonds that belong to a ring
func (m *Molecule) RingBondCount() int {
	n := 0
	for _, r := range m.ringBond {
		if r {
			n++
		}
	}
	return n
}

type ringOpening struct {
	atom  int
	order bondOrder
}

type parser struct {
	s        string
	pos      int
	mol      *Molecule
	prev     int
	pending  bondOrder
	branches []int
	rings    map[int]ringOpening
}

// Parse reads a SMILES string into a Molecule. Parse failures are reported as
// a plain error; the extractor wraps them into InvalidStructureError.
func Parse(smiles string) (*Molecule, error) {
	s := strings.TrimSpace(smiles)
	if s == "" {
		return nil, fmt.Errorf("empty structure")
	}
	if len(s) > maxStructureLength {
		return nil, fmt.Errorf("structure longer than %d characters", maxStructureLength)
	}

	p := &parser{
		s:     s,
		mol:   &Molecule{},
		prev:  -1,
		rings: make(map[int]ringOpening),
	}
	if err := p.run(); err != nil {
		return nil, err
	}

	m := p.mol
	m.markRings()
	if err := m.assignHydrogens(); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("at position %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) afterOpenBranch() bool {
	return p.pos > 0 && p.s[p.pos-1] == '('
}

func (p *parser) run() error {
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		switch {
		case c == '(':
			if p.prev < 0 {
				return p.errorf("branch opened without a preceding atom")
			}
			if p.afterOpenBranch() {
				return p.errorf("branch must start with a bond or an atom")
			}
			p.branches = append(p.branches, p.prev)
			p.pos++
		case c == ')':
			if len(p.branches) == 0 {
				return p.errorf("unbalanced ')'")
			}
			if p.afterOpenBranch() {
				return p.errorf("empty branch")
			}
			if p.pending != 0 {
				return p.errorf("bond symbol before ')'")
			}
			p.prev = p.branches[len(p.branches)-1]
			p.branches = p.branches[:len(p.branches)-1]
			p.pos++
		case c == '.':
			if p.pending != 0 {
				return p.errorf("bond symbol before '.'")
			}
			p.prev = -1
			p.pos++
		case isBondSymbol(c):
			if p.prev < 0 {
				return p.errorf("bond %q without a preceding atom", c)
			}
			if p.pending != 0 {
				return p.errorf("consecutive bond symbols")
			}
			p.pending = bondFromSymbol(c)
			p.pos++
		case c >= '0' && c <= '9':
			if err := p.ringClosure(int(c - '0')); err != nil {
				return err
			}
			p.pos++
		case c == '%':
			if p.pos+2 >= len(p.s) || !isDigit(p.s[p.pos+1]) || !isDigit(p.s[p.pos+2]) {
				return p.errorf("'%%' must be followed by two digits")
			}
			n := int(p.s[p.pos+1]-'0')*10 + int(p.s[p.pos+2]-'0')
			if err := p.ringClosure(n); err != nil {
				return err
			}
			p.pos += 3
		case c == '[':
			a, err := p.bracketAtom()
			if err != nil {
				return err
			}
			if err := p.addAtom(a); err != nil {
				return err
			}
		default:
			a, err := p.organicAtom()
			if err != nil {
				return err
			}
			if err := p.addAtom(a); err != nil {
				return err
			}
		}
	}

	switch {
	case len(p.branches) > 0:
		return fmt.Errorf("unbalanced '('")
	case len(p.rings) > 0:
		return fmt.Errorf("%d unclosed ring bond(s)", len(p.rings))
	case p.pending != 0:
		return fmt.Errorf("dangling bond at end of structure")
	case len(p.mol.atoms) == 0:
		return fmt.Errorf("no atoms")
	}
	return nil
}

func (p *parser) addAtom(a atom) error {
	idx := len(p.mol.atoms)
	p.mol.atoms = append(p.mol.atoms, a)
	p.mol.adj = append(p.mol.adj, nil)

	if p.prev >= 0 {
		order := p.pending
		if order == 0 {
			order = p.defaultOrder(p.prev, idx)
		}
		if err := p.addBond(p.prev, idx, order); err != nil {
			return err
		}
	}
	p.pending = 0
	p.prev = idx
	return nil
}

func (p *parser) defaultOrder(a, b int) bondOrder {
	if p.mol.atoms[a].aromatic && p.mol.atoms[b].aromatic {
		return bondAromatic
	}
	return bondSingle
}

func (p *parser) addBond(a, b int, order bondOrder) error {
	if a == b {
		return p.errorf("atom bonded to itself")
	}
	for _, bi := range p.mol.adj[a] {
		if p.mol.bonds[bi].other(a) == b {
			return p.errorf("duplicate bond between atoms %d and %d", a, b)
		}
	}
	bi := len(p.mol.bonds)
	p.mol.bonds = append(p.mol.bonds, bond{a: a, b: b, order: order})
	p.mol.adj[a] = append(p.mol.adj[a], bi)
	p.mol.adj[b] = append(p.mol.adj[b], bi)
	return nil
}

func (p *parser) ringClosure(n int) error {
	if p.prev < 0 {
		return p.errorf("ring closure %d without a preceding atom", n)
	}
	open, ok := p.rings[n]
	if !ok {
		p.rings[n] = ringOpening{atom: p.prev, order: p.pending}
		p.pending = 0
		return nil
	}

	order := p.pending
	switch {
	case order == 0:
		order = open.order
	case open.order != 0 && open.order != order:
		return p.errorf("conflicting bond orders on ring closure %d", n)
	}
	if order == 0 {
		order = p.defaultOrder(open.atom, p.prev)
	}
	if err := p.addBond(open.atom, p.prev, order); err != nil {
		return err
	}
	delete(p.rings, n)
	p.pending = 0
	return nil
}

func (p *parser) organicAtom() (atom, error) {
	rest := p.s[p.pos:]
	for _, two := range []string{"Cl", "Br"} {
		if strings.HasPrefix(rest, two) {
			p.pos += 2
			return newAtom(two, false), nil
		}
	}

	c := rest[0]
	switch c {
	case 'B', 'C', 'N', 'O', 'P', 'S', 'F', 'I':
		p.pos++
		return newAtom(string(c), false), nil
	case 'b', 'c', 'n', 'o', 'p', 's':
		p.pos++
		return newAtom(aromaticSymbols[string(c)], true), nil
	case '*':
		p.pos++
		return atom{symbol: "*"}, nil
	}
	return atom{}, p.errorf("unexpected character %q", c)
}

func newAtom(symbol string, aromatic bool) atom {
	return atom{symbol: symbol, number: elements[symbol].number, aromatic: aromatic}
}

func (p *parser) bracketAtom() (atom, error) {
	end := strings.IndexByte(p.s[p.pos:], ']')
	if end < 0 {
		return atom{}, p.errorf("unterminated bracket atom")
	}
	body := p.s[p.pos+1 : p.pos+end]
	start := p.pos
	p.pos += end + 1

	fail := func(format string, args ...any) (atom, error) {
		return atom{}, fmt.Errorf("at position %d: bracket atom [%s]: %s", start, body, fmt.Sprintf(format, args...))
	}

	a := atom{bracket: true}
	i := 0
	for i < len(body) && isDigit(body[i]) {
		a.isotope = a.isotope*10 + int(body[i]-'0')
		i++
	}
	if i >= len(body) {
		return fail("missing element symbol")
	}

	switch c := body[i]; {
	case c == '*':
		a.symbol = "*"
		i++
	case isUpper(c):
		if i+1 < len(body) && isLower(body[i+1]) {
			if _, ok := elements[body[i:i+2]]; ok {
				a.symbol = body[i : i+2]
				i += 2
			}
		}
		if a.symbol == "" {
			a.symbol = body[i : i+1]
			i++
		}
	case isLower(c):
		if i+1 < len(body) {
			if sym, ok := aromaticSymbols[body[i:i+2]]; ok {
				a.symbol, a.aromatic = sym, true
				i += 2
			}
		}
		if a.symbol == "" {
			sym, ok := aromaticSymbols[body[i:i+1]]
			if !ok {
				return fail("unknown aromatic symbol %q", body[i:i+1])
			}
			a.symbol, a.aromatic = sym, true
			i++
		}
	default:
		return fail("unexpected character %q", c)
	}

	if a.symbol != "*" {
		el, ok := elements[a.symbol]
		if !ok {
			return fail("unknown element %q", a.symbol)
		}
		a.number = el.number
	}

	// Chirality is accepted and ignored
	if i < len(body) && body[i] == '@' {
		for i < len(body) && body[i] == '@' {
			i++
		}
		if i+1 < len(body) && isUpper(body[i]) && isUpper(body[i+1]) {
			i += 2
			for i < len(body) && isDigit(body[i]) {
				i++
			}
		}
	}

	if i < len(body) && body[i] == 'H' {
		i++
		a.hydrogens = 1
		if i < len(body) && isDigit(body[i]) {
			a.hydrogens = 0
			for i < len(body) && isDigit(body[i]) {
				a.hydrogens = a.hydrogens*10 + int(body[i]-'0')
				i++
			}
		}
	}

	if i < len(body) && (body[i] == '+' || body[i] == '-') {
		sign := body[i]
		i++
		n := 1
		if i < len(body) && isDigit(body[i]) {
			n = 0
			for i < len(body) && isDigit(body[i]) {
				n = n*10 + int(body[i]-'0')
				i++
			}
		} else {
			for i < len(body) && body[i] == sign {
				n++
				i++
			}
		}
		if sign == '-' {
			n = -n
		}
		a.charge = n
	}

	if i < len(body) && body[i] == ':' {
		i++
		if i >= len(body) || !isDigit(body[i]) {
			return fail("atom class must be numeric")
		}
		for i < len(body) && isDigit(body[i]) {
			i++
		}
	}

	if i != len(body) {
		return fail("unexpected %q", body[i:])
	}
	return a, nil
}

// markRings flags every non-bridge bond as a ring bond
func (m *Molecule) markRings() {
	n := len(m.atoms)
	disc := make([]int, n)
	low := make([]int, n)
	bridge := make([]bool, len(m.bonds))
	timer := 0

	var visit func(u, parentBond int)
	visit = func(u, parentBond int) {
		timer++
		disc[u], low[u] = timer, timer
		for _, bi := range m.adj[u] {
			if bi == parentBond {
				continue
			}
			v := m.bonds[bi].other(u)
			if disc[v] == 0 {
				visit(v, bi)
				low[u] = min(low[u], low[v])
				if low[v] > disc[u] {
					bridge[bi] = true
				}
			} else {
				low[u] = min(low[u], disc[v])
			}
		}
	}
	for i := 0; i < n; i++ {
		if disc[i] == 0 {
			visit(i, -1)
		}
	}

	m.ringBond = make([]bool, len(m.bonds))
	m.ringAtom = make([]bool, n)
	for bi, b := range m.bonds {
		if !bridge[bi] {
			m.ringBond[bi] = true
			m.ringAtom[b.a] = true
			m.ringAtom[b.b] = true
		}
	}
}

// assignHydrogens fills implicit hydrogens for organic-subset atoms and
// rejects impossible valences and aromatic atoms outside rings.
func (m *Molecule) assignHydrogens() error {
	for i := range m.atoms {
		a := &m.atoms[i]
		if a.aromatic && !m.ringAtom[i] {
			return fmt.Errorf("aromatic atom %s (%d) is not in a ring", a.symbol, i)
		}
		if a.bracket || a.symbol == "*" {
			continue
		}
		valences, ok := defaultValences[a.symbol]
		if !ok {
			continue
		}

		explicit, aromaticBonds := 0, 0
		for _, bi := range m.adj[i] {
			if o := m.bonds[bi].order; o == bondAromatic {
				aromaticBonds++
			} else {
				explicit += int(o)
			}
		}

		if a.aromatic {
			a.hydrogens = max(0, valences[0]-explicit-aromaticBonds-1)
			continue
		}

		a.hydrogens = -1
		for _, v := range valences {
			if v >= explicit+aromaticBonds {
				a.hydrogens = v - explicit - aromaticBonds
				break
			}
		}
		if a.hydrogens < 0 {
			return fmt.Errorf("valence %d of %s (%d) exceeds the allowed maximum %d",
				explicit+aromaticBonds, a.symbol, i, valences[len(valences)-1])
		}
	}
	return nil
}

func isBondSymbol(c byte) bool {
	switch c {
	case '-', '=', '#', '$', ':', '/', '\\':
		return true
	}
	return false
}

func bondFromSymbol(c byte) bondOrder {
	switch c {
	case '=':
		return bondDouble
	case '#':
		return bondTriple
	case '$':
		return bondQuadruple
	case ':':
		return bondAromatic
	}
	return bondSingle
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
