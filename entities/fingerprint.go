package entities

// DescriptorCount is the number of scalar descriptors appended after the bits
const DescriptorCount = 3

// Fingerprint is the fixed-length feature vector of one molecule:
// circular substructure bits followed by molecular weight, LogP and TPSA.
type Fingerprint struct {
	Bits            []float32
	MolecularWeight float32
	LogP            float32
	TPSA            float32
}

// Dim returns the total number of features
func (f *Fingerprint) Dim() int {
	if f == nil {
		return 0
	}
	return len(f.Bits) + DescriptorCount
}

// AppendTo appends the full feature vector to dst
func (f *Fingerprint) AppendTo(dst []float32) []float32 {
	dst = append(dst, f.Bits...)
	return append(dst, f.MolecularWeight, f.LogP, f.TPSA)
}

// OnBits counts the set bits
func (f *Fingerprint) OnBits() int {
	n := 0
	for _, b := range f.Bits {
		if b != 0 {
			n++
		}
	}
	return n
}

// Equal reports whether two fingerprints are bit-identical
func (f *Fingerprint) Equal(other *Fingerprint) bool {
	if f == nil || other == nil {
		return f == other
	}
	if len(f.Bits) != len(other.Bits) {
		return false
	}
	for i := range f.Bits {
		if f.Bits[i] != other.Bits[i] {
			return false
		}
	}
	return f.MolecularWeight == other.MolecularWeight &&
		f.LogP == other.LogP &&
		f.TPSA == other.TPSA
}
