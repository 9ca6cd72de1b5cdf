package fingerprint

type element struct {
	number int
	weight float64
}

const hydrogenWeight = 1.008

// elements covers the organic subset plus the metals and halogens that show
// up in salt forms and contrast agents of marketed drugs.
var elements = map[string]element{
	"H":  {1, 1.008},
	"He": {2, 4.003},
	"Li": {3, 6.941},
	"B":  {5, 10.811},
	"C":  {6, 12.011},
	"N":  {7, 14.007},
	"O":  {8, 15.999},
	"F":  {9, 18.998},
	"Na": {11, 22.990},
	"Mg": {12, 24.305},
	"Al": {13, 26.982},
	"Si": {14, 28.086},
	"P":  {15, 30.974},
	"S":  {16, 32.065},
	"Cl": {17, 35.453},
	"K":  {19, 39.098},
	"Ca": {20, 40.078},
	"Cr": {24, 51.996},
	"Mn": {25, 54.938},
	"Fe": {26, 55.845},
	"Co": {27, 58.933},
	"Ni": {28, 58.693},
	"Cu": {29, 63.546},
	"Zn": {30, 65.38},
	"Ga": {31, 69.723},
	"Ge": {32, 72.630},
	"As": {33, 74.922},
	"Se": {34, 78.971},
	"Br": {35, 79.904},
	"Sr": {38, 87.62},
	"Tc": {43, 98.0},
	"Ag": {47, 107.868},
	"Sn": {50, 118.710},
	"Sb": {51, 121.760},
	"Te": {52, 127.60},
	"I":  {53, 126.904},
	"Ba": {56, 137.327},
	"Gd": {64, 157.25},
	"Pt": {78, 195.084},
	"Au": {79, 196.967},
	"Hg": {80, 200.592},
	"Bi": {83, 208.980},
}

// defaultValences lists the allowed valences of organic-subset atoms written
// without brackets, smallest first.
var defaultValences = map[string][]int{
	"B":  {3},
	"C":  {4},
	"N":  {3},
	"O":  {2},
	"P":  {3, 5},
	"S":  {2, 4, 6},
	"F":  {1},
	"Cl": {1},
	"Br": {1},
	"I":  {1},
}

// aromaticSymbols maps lowercase aromatic symbols to their element
var aromaticSymbols = map[string]string{
	"b":  "B",
	"c":  "C",
	"n":  "N",
	"o":  "O",
	"p":  "P",
	"s":  "S",
	"se": "Se",
	"as": "As",
	"te": "Te",
}
