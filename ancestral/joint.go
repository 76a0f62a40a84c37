package ancestral

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/phylodate/phylodate/nuc"
)

// jointScratch holds the per-worker buffers of the joint
// reconstruction (Pupko et al. 2000). lmax[cat][nodeId*NState+i] is
// the best subtree probability given parent state i, bp the matching
// state choice.
type jointScratch struct {
	lmax  [][]float64
	bp    [][]byte
	sub   []float64
	logLc []float64
	rootS []byte
}

func (r *Reconstructor) newJointScratch() *jointScratch {
	ncat := len(r.rates)
	n := (r.t.MaxNodeId() + 1) * nuc.NState
	s := &jointScratch{
		lmax:  make([][]float64, ncat),
		bp:    make([][]byte, ncat),
		sub:   make([]float64, nuc.NState),
		logLc: make([]float64, ncat),
		rootS: make([]byte, ncat),
	}
	for c := 0; c < ncat; c++ {
		s.lmax[c] = make([]float64, n)
		s.bp[c] = make([]byte, n)
	}
	return s
}

// Joint reconstructs the single most likely joint assignment of
// ancestral states, in parallel over alignment columns. Ties go to
// the alphabetically first residue. Returns the log-likelihood of the
// reconstructed assignment.
func (r *Reconstructor) Joint() float64 {
	// branch lengths may have changed since the last pass
	r.ExpBranches()
	r.allocSequences()

	colL := make([]float64, r.ls)
	tasks := make(chan int, r.nProc*2)
	var wg sync.WaitGroup
	for w := 0; w < r.nProc; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scratch := r.newJointScratch()
			for pos := range tasks {
				colL[pos] = r.jointColumn(pos, scratch)
			}
		}()
	}
	for pos := 0; pos < r.ls; pos++ {
		tasks <- pos
	}
	close(tasks)
	wg.Wait()

	r.lnL = floats.Sum(colL)
	log.Debugf("joint reconstruction lnL=%f", r.lnL)
	return r.lnL
}

func (r *Reconstructor) jointColumn(pos int, s *jointScratch) float64 {
	ncat := len(r.rates)
	pi := r.model.Pi()
	root := r.t.Node

	for c := 0; c < ncat; c++ {
		lc := s.lmax[c]
		bc := s.bp[c]
		logScale := 0.0

		for _, node := range r.postFull {
			if node.IsRoot() {
				continue
			}
			q := r.eQts[c][node.Id]
			if node.IsTerminal() {
				nuc.Profile(r.tip[node.LeafId].Letters[pos], s.sub)
			} else {
				for j := 0; j < nuc.NState; j++ {
					s.sub[j] = 1
				}
				for _, child := range node.ChildNodes() {
					cl := lc[child.Id*nuc.NState : child.Id*nuc.NState+nuc.NState]
					for j := 0; j < nuc.NState; j++ {
						s.sub[j] *= cl[j]
					}
				}
			}
			l := lc[node.Id*nuc.NState : node.Id*nuc.NState+nuc.NState]
			b := bc[node.Id*nuc.NState : node.Id*nuc.NState+nuc.NState]
			for i := 0; i < nuc.NState; i++ {
				best := 0
				bestVal := q[i*nuc.NState] * s.sub[0]
				for j := 1; j < nuc.NState; j++ {
					if v := q[i*nuc.NState+j] * s.sub[j]; v > bestVal {
						bestVal = v
						best = j
					}
				}
				l[i] = bestVal
				b[i] = byte(best)
			}
			if m := maxVec(l); m > 0 {
				for i := range l {
					l[i] /= m
				}
				logScale += math.Log(m)
			}
		}

		best := 0
		bestVal := math.Inf(-1)
		for i := 0; i < nuc.NState; i++ {
			v := pi[i]
			for _, child := range root.ChildNodes() {
				v *= lc[child.Id*nuc.NState+i]
			}
			if v > bestVal {
				bestVal = v
				best = i
			}
		}
		s.rootS[c] = byte(best)
		s.logLc[c] = logScale + math.Log(bestVal)
	}

	// the column is assigned to its best rate category
	best := 0
	for c := 1; c < ncat; c++ {
		if s.logLc[c] > s.logLc[best] {
			best = c
		}
	}

	root.Sequence[pos] = nuc.Alphabet[s.rootS[best]]
	bc := s.bp[best]
	for _, node := range r.preorder {
		if node.IsRoot() {
			continue
		}
		parentState := nuc.State(node.Parent.Sequence[pos])
		node.Sequence[pos] = nuc.Alphabet[bc[node.Id*nuc.NState+int(parentState)]]
	}

	return s.logLc[best]
}
