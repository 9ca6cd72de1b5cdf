package fingerprint

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/giygas/ddi-engine/entities"
)

func TestParse_Valid(t *testing.T) {
	testCases := []struct {
		name      string
		smiles    string
		atoms     int
		bonds     int
		ringBonds int
	}{
		{"Ethanol", "CCO", 3, 2, 0},
		{"Benzene", "c1ccccc1", 6, 6, 6},
		{"Cyclohexane", "C1CCCCC1", 6, 6, 6},
		{"Aspirin", "CC(=O)Oc1ccccc1C(=O)O", 13, 13, 6},
		{"Salt", "[Na+].[Cl-]", 2, 0, 0},
		{"Pyrrole", "[nH]1cccc1", 5, 5, 5},
		{"Percent ring", "C%12CCCC%12", 5, 5, 5},
		{"Chiral", "N[C@@H](C)C(=O)O", 6, 5, 0},
		{"Naphthalene", "c1ccc2ccccc2c1", 10, 11, 11},
		{"Nitrile", "CC#N", 3, 2, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mol, err := Parse(tc.smiles)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tc.smiles, err)
			}
			if mol.AtomCount() != tc.atoms {
				t.Errorf("Expected %d atoms, got %d", tc.atoms, mol.AtomCount())
			}
			if mol.BondCount() != tc.bonds {
				t.Errorf("Expected %d bonds, got %d", tc.bonds, mol.BondCount())
			}
			if mol.RingBondCount() != tc.ringBonds {
				t.Errorf("Expected %d ring bonds, got %d", tc.ringBonds, mol.RingBondCount())
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	testCases := []struct {
		name   string
		smiles string
	}{
		{"Empty", ""},
		{"Whitespace", "   "},
		{"Unclosed ring", "C1CC"},
		{"Unbalanced open", "C(C"},
		{"Unbalanced close", "CC)"},
		{"Dangling bond", "CC="},
		{"Leading bond", "=CC"},
		{"Double bond symbol", "C==C"},
		{"Carbon valence", "C(=O)(=O)=O"},
		{"Nitrogen valence", "N(C)(C)(C)C"},
		{"Unknown element", "[Xx]"},
		{"Unterminated bracket", "C[NH4+"},
		{"Aromatic chain", "cc"},
		{"Self ring closure", "C11"},
		{"Duplicate bond", "C1C1"},
		{"Garbage", "not a molecule"},
		{"Branch without atom", "(C)C"},
		{"Empty branch", "C()C"},
		{"Nested branch open", "CC((C))"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.smiles); err == nil {
				t.Errorf("Expected Parse(%q) to fail", tc.smiles)
			}
		})
	}
}

func TestParse_Hydrogens(t *testing.T) {
	mol, err := Parse("CCO")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := []int{3, 2, 1}
	for i, h := range want {
		if mol.atoms[i].hydrogens != h {
			t.Errorf("Atom %d: expected %d hydrogens, got %d", i, h, mol.atoms[i].hydrogens)
		}
	}

	mol, err = Parse("[NH4+]")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if mol.atoms[0].hydrogens != 4 || mol.atoms[0].charge != 1 {
		t.Errorf("Expected NH4+, got H=%d charge=%d", mol.atoms[0].hydrogens, mol.atoms[0].charge)
	}

	mol, err = Parse("[13CH3-]")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if a := mol.atoms[0]; a.isotope != 13 || a.hydrogens != 3 || a.charge != -1 {
		t.Errorf("Unexpected bracket atom %+v", a)
	}

	mol, err = Parse("c1ccncc1")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	for i, a := range mol.atoms {
		want := 1
		if a.symbol == "N" {
			want = 0
		}
		if a.hydrogens != want {
			t.Errorf("Pyridine atom %d (%s): expected %d hydrogens, got %d", i, a.symbol, want, a.hydrogens)
		}
	}
}

func TestDescriptors(t *testing.T) {
	testCases := []struct {
		smiles string
		weight float64
		tpsa   float64
	}{
		{"CCO", 46.069, 20.23},
		{"c1ccccc1", 78.114, 0},
		{"CC(=O)Oc1ccccc1C(=O)O", 180.159, 63.60},
		{"CC#N", 41.053, 23.79},
	}

	for _, tc := range testCases {
		mol, err := Parse(tc.smiles)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tc.smiles, err)
		}
		if got := mol.MolecularWeight(); math.Abs(got-tc.weight) > 0.01 {
			t.Errorf("%s: expected weight %.3f, got %.3f", tc.smiles, tc.weight, got)
		}
		if got := mol.TPSA(); math.Abs(got-tc.tpsa) > 0.01 {
			t.Errorf("%s: expected TPSA %.2f, got %.2f", tc.smiles, tc.tpsa, got)
		}
	}

	benzene, _ := Parse("c1ccccc1")
	ethanol, _ := Parse("CCO")
	if benzene.LogP() <= ethanol.LogP() {
		t.Errorf("Benzene should be more lipophilic than ethanol: %.3f vs %.3f", benzene.LogP(), ethanol.LogP())
	}
}

func TestCompute_Deterministic(t *testing.T) {
	a, err := Compute("CC(=O)Oc1ccccc1C(=O)O", 2, 512)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	b, err := Compute("CC(=O)Oc1ccccc1C(=O)O", 2, 512)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if !a.Equal(b) {
		t.Error("Same structure should produce identical fingerprints")
	}
	if a.Dim() != 512+entities.DescriptorCount {
		t.Errorf("Expected dim %d, got %d", 512+entities.DescriptorCount, a.Dim())
	}
	if a.OnBits() == 0 {
		t.Error("Expected some bits set")
	}
}

func TestCompute_DistinguishesStructures(t *testing.T) {
	pairs := [][2]string{
		{"CCCCCC", "C1CCCCC1"},
		{"CCO", "CCN"},
		{"c1ccccc1", "c1ccncc1"},
	}
	for _, p := range pairs {
		a, err := Compute(p[0], 2, 512)
		if err != nil {
			t.Fatalf("Compute(%q) failed: %v", p[0], err)
		}
		b, err := Compute(p[1], 2, 512)
		if err != nil {
			t.Fatalf("Compute(%q) failed: %v", p[1], err)
		}
		if a.Equal(b) {
			t.Errorf("%s and %s should not share a fingerprint", p[0], p[1])
		}
	}
}

func TestCompute_InvalidStructureError(t *testing.T) {
	_, err := Compute("C1CC", 2, 512)
	var ise *entities.InvalidStructureError
	if !errors.As(err, &ise) {
		t.Fatalf("Expected InvalidStructureError, got %v", err)
	}
	if ise.Structure != "C1CC" {
		t.Errorf("Expected structure C1CC, got %q", ise.Structure)
	}
}

func TestExtractor_Memoizes(t *testing.T) {
	e := NewExtractor(0, 0)
	if e.Dim() != DefaultBits+entities.DescriptorCount {
		t.Errorf("Expected default dim, got %d", e.Dim())
	}

	first, err := e.Extract("CCO")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	second, err := e.Extract(" CCO ")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if first != second {
		t.Error("Expected memoized fingerprint to be returned")
	}

	_, err1 := e.Extract("C(")
	_, err2 := e.Extract("C(")
	if err1 == nil || err1 != err2 {
		t.Errorf("Expected the same memoized error, got %v and %v", err1, err2)
	}

	if e.Size() != 2 {
		t.Errorf("Expected 2 memoized structures, got %d", e.Size())
	}
}

func TestExtractor_Concurrent(t *testing.T) {
	e := NewExtractor(2, 256)
	structures := []string{"CCO", "c1ccccc1", "CC(=O)O", "C1CC", "CCN"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = e.Extract(structures[i%len(structures)])
		}(i)
	}
	wg.Wait()

	if e.Size() != len(structures) {
		t.Errorf("Expected %d memoized structures, got %d", len(structures), e.Size())
	}
}
