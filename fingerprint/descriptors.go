package fingerprint

type bondCounts struct {
	single, double, triple, aromatic int
	doubleToOxygen                   bool
}

func (m *Molecule) bondCounts(i int) bondCounts {
	var c bondCounts
	for _, bi := range m.adj[i] {
		b := m.bonds[bi]
		switch b.order {
		case bondDouble:
			c.double++
			if m.atoms[b.other(i)].number == 8 {
				c.doubleToOxygen = true
			}
		case bondTriple, bondQuadruple:
			c.triple++
		case bondAromatic:
			c.aromatic++
		default:
			c.single++
		}
	}
	return c
}

// MolecularWeight sums atomic weights including implicit hydrogens
func (m *Molecule) MolecularWeight() float64 {
	var w float64
	for _, a := range m.atoms {
		if el, ok := elements[a.symbol]; ok {
			w += el.weight
		}
		w += float64(a.hydrogens) * hydrogenWeight
	}
	return w
}

// LogP estimates the octanol/water partition coefficient with a reduced
// Wildman-Crippen atom contribution table.
func (m *Molecule) LogP() float64 {
	var logp float64
	for i, a := range m.atoms {
		c := m.bondCounts(i)
		switch a.symbol {
		case "C":
			switch {
			case a.aromatic:
				logp += 0.1581
			case c.doubleToOxygen:
				logp -= 0.1002
			case c.triple > 0:
				logp += 0.2500
			default:
				logp += 0.1441
			}
			logp += 0.1230 * float64(a.hydrogens)
		case "N":
			switch {
			case a.charge > 0:
				logp -= 0.3239
			case a.aromatic:
				logp -= 0.4806
			case c.triple > 0:
				logp -= 0.5660
			case a.hydrogens >= 2:
				logp -= 1.0190
			case a.hydrogens == 1:
				logp -= 0.7096
			default:
				logp -= 0.3187
			}
			logp += 0.2142 * float64(a.hydrogens)
		case "O":
			switch {
			case a.charge < 0:
				logp -= 1.3260
			case a.aromatic:
				logp += 0.1552
			case c.double > 0:
				logp -= 0.1526
			case a.hydrogens > 0:
				logp -= 0.2893
			default:
				logp -= 0.0684
			}
			logp += 0.2980 * float64(a.hydrogens)
		case "S":
			if a.aromatic {
				logp += 0.6237
			} else {
				logp += 0.6482
			}
		case "P":
			logp += 0.8612
		case "F":
			logp += 0.4202
		case "Cl":
			logp += 0.6895
		case "Br":
			logp += 0.8456
		case "I":
			logp += 0.8857
		case "B":
			logp += 0.1000
		}
	}
	return logp
}

// TPSA is the Ertl topological polar surface area over N and O atoms
func (m *Molecule) TPSA() float64 {
	var tpsa float64
	for i, a := range m.atoms {
		c := m.bondCounts(i)
		switch a.symbol {
		case "N":
			switch {
			case a.aromatic && a.charge > 0:
				tpsa += 4.10
			case a.aromatic && a.hydrogens > 0:
				tpsa += 15.79
			case a.aromatic:
				tpsa += 12.89
			case a.charge > 0 && c.double > 0:
				tpsa += 3.01
			case c.triple > 0:
				tpsa += 23.79
			case c.double > 0 && a.hydrogens > 0:
				tpsa += 23.85
			case c.double > 0:
				tpsa += 12.36
			case a.hydrogens == 0:
				tpsa += 3.24
			case a.hydrogens == 1:
				tpsa += 12.03
			default:
				tpsa += 26.02
			}
		case "O":
			switch {
			case a.aromatic:
				tpsa += 13.14
			case c.double > 0:
				tpsa += 17.07
			case a.charge < 0:
				tpsa += 23.06
			case a.hydrogens > 0:
				tpsa += 20.23
			default:
				tpsa += 9.23
			}
		}
	}
	return tpsa
}
