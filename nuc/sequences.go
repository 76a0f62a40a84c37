package nuc

import (
	"errors"
	"fmt"

	"github.com/phylodate/phylodate/bio"
)

// Sequence stores an aligned nucleotide sequence. Letters keeps the
// original (uppercase) residues, Sequence the encoded states with
// NONUC for everything that is not an unambiguous nucleotide.
type Sequence struct {
	Name     string
	Letters  []byte
	Sequence []byte
}

// Sequences stores an alignment of encoded sequences.
type Sequences []Sequence

// ToSequences encodes a parsed alignment. All sequences must have
// equal length.
func ToSequences(seqs bio.Sequences) (Sequences, error) {
	if len(seqs) == 0 {
		return nil, errors.New("empty alignment")
	}
	ns := make(Sequences, 0, len(seqs))
	length := len(seqs[0].Sequence)
	for _, seq := range seqs {
		if len(seq.Sequence) != length {
			return nil, fmt.Errorf("sequence <%s> has length %d, expected %d",
				seq.Name, len(seq.Sequence), length)
		}
		s := Sequence{
			Name:     seq.Name,
			Letters:  []byte(seq.Sequence),
			Sequence: make([]byte, 0, length),
		}
		for i := 0; i < length; i++ {
			s.Sequence = append(s.Sequence, State(seq.Sequence[i]))
		}
		ns = append(ns, s)
	}
	return ns, nil
}

// Length returns the alignment length.
func (seqs Sequences) Length() int {
	if len(seqs) == 0 {
		return 0
	}
	return len(seqs[0].Sequence)
}

// String returns the alignment in FASTA format.
func (seqs Sequences) String() (s string) {
	for _, seq := range seqs {
		s += ">" + seq.Name + "\n" + bio.Wrap(string(seq.Letters), 80)
	}
	return s
}

// NFixed calculates the number of constant positions in the alignment.
func (seqs Sequences) NFixed() (f int) {
	f = seqs.Length()
	for pos := 0; pos < seqs.Length(); pos++ {
		for i := 1; i < len(seqs); i++ {
			if seqs[i].Sequence[pos] != seqs[0].Sequence[pos] {
				f--
				break
			}
		}
	}
	return
}

// NAmbiguous calculates the number of positions with at least one
// ambiguous residue.
func (seqs Sequences) NAmbiguous() (count int) {
	for pos := 0; pos < seqs.Length(); pos++ {
		for _, seq := range seqs {
			if seq.Sequence[pos] == NONUC {
				count++
				break
			}
		}
	}
	return
}

// NDistinct returns the number of distinct unambiguous residues
// observed in the alignment.
func (seqs Sequences) NDistinct() int {
	var seen [NState]bool
	n := 0
	for _, seq := range seqs {
		for _, s := range seq.Sequence {
			if s != NONUC && !seen[s] {
				seen[s] = true
				n++
			}
		}
	}
	return n
}

// F0 returns uniform equilibrium frequencies.
func F0() []float64 {
	freq := make([]float64, NState)
	for i := range freq {
		freq[i] = 1 / float64(NState)
	}
	return freq
}

// FEQ computes empirical equilibrium frequencies from the alignment
// with a single pseudocount per state.
func FEQ(seqs Sequences) []float64 {
	freq := make([]float64, NState)
	total := float64(NState)
	for i := range freq {
		freq[i] = 1
	}
	for _, seq := range seqs {
		for _, s := range seq.Sequence {
			if s != NONUC {
				freq[s]++
				total++
			}
		}
	}
	for i := range freq {
		freq[i] /= total
	}
	return freq
}
