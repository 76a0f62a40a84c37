// Package nuc provides the nucleotide alphabet, encoded aligned
// sequences and substitution count tables.
package nuc

// NState is the nucleotide alphabet size.
const NState = 4

// NONUC marks a residue which is not an unambiguous nucleotide.
const NONUC = byte(255)

var (
	// Alphabet is the nucleotide alphabet in index order.
	Alphabet = [NState]byte{'A', 'C', 'G', 'T'}
	// rAlphabet is the reverse nucleotide alphabet (letter to a number).
	rAlphabet = map[byte]byte{'A': 0, 'C': 1, 'G': 2, 'T': 3}

	// iupac maps ambiguity codes to the set of compatible states.
	iupac = map[byte][]byte{
		'A': {0}, 'C': {1}, 'G': {2}, 'T': {3}, 'U': {3},
		'R': {0, 2}, 'Y': {1, 3}, 'S': {1, 2}, 'W': {0, 3},
		'K': {2, 3}, 'M': {0, 1},
		'B': {1, 2, 3}, 'D': {0, 2, 3}, 'H': {0, 1, 3}, 'V': {0, 1, 2},
	}
)

// State returns the state number for an unambiguous nucleotide
// letter, or NONUC otherwise.
func State(letter byte) byte {
	if s, ok := rAlphabet[letter]; ok {
		return s
	}
	return NONUC
}

// Letter returns the nucleotide letter for a state number.
func Letter(state byte) byte {
	if int(state) < NState {
		return Alphabet[state]
	}
	return 'N'
}

// Profile returns the tip likelihood profile for a letter. An
// unambiguous nucleotide constrains the profile to a single state,
// IUPAC ambiguity codes spread it over the compatible states, and
// everything else (N, gaps) is uniform evidence.
func Profile(letter byte, prof []float64) []float64 {
	if prof == nil {
		prof = make([]float64, NState)
	}
	states, ok := iupac[letter]
	if !ok {
		for i := range prof {
			prof[i] = 1
		}
		return prof
	}
	for i := range prof {
		prof[i] = 0
	}
	for _, s := range states {
		prof[s] = 1
	}
	return prof
}
