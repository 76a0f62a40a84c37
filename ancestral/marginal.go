package ancestral

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/phylodate/phylodate/nuc"
)

// marginalScratch holds the per-worker buffers of the marginal
// reconstruction. Vectors are flat, indexed by nodeId*NState.
type marginalScratch struct {
	down  [][]float64
	up    [][]float64
	pdown [][]float64
	logLc []float64
	catW  []float64
	post  []float64
	msg   []float64
}

func (r *Reconstructor) newMarginalScratch() *marginalScratch {
	ncat := len(r.rates)
	n := (r.t.MaxNodeId() + 1) * nuc.NState
	s := &marginalScratch{
		down:  make([][]float64, ncat),
		up:    make([][]float64, ncat),
		pdown: make([][]float64, ncat),
		logLc: make([]float64, ncat),
		catW:  make([]float64, ncat),
		post:  make([]float64, nuc.NState),
		msg:   make([]float64, nuc.NState),
	}
	for c := 0; c < ncat; c++ {
		s.down[c] = make([]float64, n)
		s.up[c] = make([]float64, n)
		s.pdown[c] = make([]float64, n)
	}
	return s
}

// Marginal reconstructs the marginal posterior state at every node
// and assigns the most likely residue, in parallel over alignment
// columns. Ties go to the alphabetically first residue. Returns the
// alignment log-likelihood.
func (r *Reconstructor) Marginal() float64 {
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
			scratch := r.newMarginalScratch()
			for pos := range tasks {
				colL[pos] = r.marginalColumn(pos, scratch)
			}
		}()
	}
	for pos := 0; pos < r.ls; pos++ {
		tasks <- pos
	}
	close(tasks)
	wg.Wait()

	r.lnL = floats.Sum(colL)
	log.Debugf("marginal reconstruction lnL=%f", r.lnL)
	return r.lnL
}

func (r *Reconstructor) marginalColumn(pos int, s *marginalScratch) float64 {
	ncat := len(r.rates)
	pi := r.model.Pi()
	root := r.t.Node

	for c := 0; c < ncat; c++ {
		dc := s.down[c]
		pc := s.pdown[c]
		logScale := 0.0

		for _, leaf := range r.leaves {
			nuc.Profile(r.tip[leaf.LeafId].Letters[pos], dc[leaf.Id*nuc.NState:leaf.Id*nuc.NState+nuc.NState])
		}
		for _, node := range r.order {
			d := dc[node.Id*nuc.NState : node.Id*nuc.NState+nuc.NState]
			for i := range d {
				d[i] = 1
			}
			for _, child := range node.ChildNodes() {
				q := r.eQts[c][child.Id]
				cd := dc[child.Id*nuc.NState : child.Id*nuc.NState+nuc.NState]
				p := pc[child.Id*nuc.NState : child.Id*nuc.NState+nuc.NState]
				for i := 0; i < nuc.NState; i++ {
					p[i] = q[i*nuc.NState]*cd[0] + q[i*nuc.NState+1]*cd[1] +
						q[i*nuc.NState+2]*cd[2] + q[i*nuc.NState+3]*cd[3]
					d[i] *= p[i]
				}
			}
			m := maxVec(d)
			if m > 0 {
				for i := range d {
					d[i] /= m
				}
				logScale += math.Log(m)
			}
		}

		l := 0.0
		for i := 0; i < nuc.NState; i++ {
			l += pi[i] * dc[root.Id*nuc.NState+i]
		}
		s.logLc[c] = logScale + math.Log(l)
	}

	lse := floats.LogSumExp(s.logLc)
	for c := 0; c < ncat; c++ {
		s.catW[c] = math.Exp(s.logLc[c] - lse)
	}

	// upward messages, preorder
	for c := 0; c < ncat; c++ {
		uc := s.up[c]
		pc := s.pdown[c]
		copy(uc[root.Id*nuc.NState:root.Id*nuc.NState+nuc.NState], pi)
		for _, node := range r.preorder {
			u := uc[node.Id*nuc.NState : node.Id*nuc.NState+nuc.NState]
			children := node.ChildNodes()
			for _, child := range children {
				q := r.eQts[c][child.Id]
				cu := uc[child.Id*nuc.NState : child.Id*nuc.NState+nuc.NState]
				for i := 0; i < nuc.NState; i++ {
					m := u[i]
					for _, other := range children {
						if other != child {
							m *= pc[other.Id*nuc.NState+i]
						}
					}
					s.msg[i] = m
				}
				for j := 0; j < nuc.NState; j++ {
					cu[j] = s.msg[0]*q[j] + s.msg[1]*q[nuc.NState+j] +
						s.msg[2]*q[2*nuc.NState+j] + s.msg[3]*q[3*nuc.NState+j]
				}
				if m := maxVec(cu); m > 0 {
					for j := range cu {
						cu[j] /= m
					}
				}
			}
		}
	}

	// mixture posterior and assignment
	for _, node := range r.preorder {
		for i := range s.post {
			s.post[i] = 0
		}
		for c := 0; c < ncat; c++ {
			dc := s.down[c]
			uc := s.up[c]
			var p [nuc.NState]float64
			tot := 0.0
			for i := 0; i < nuc.NState; i++ {
				p[i] = dc[node.Id*nuc.NState+i] * uc[node.Id*nuc.NState+i]
				tot += p[i]
			}
			if tot <= 0 {
				continue
			}
			for i := 0; i < nuc.NState; i++ {
				s.post[i] += s.catW[c] * p[i] / tot
			}
		}
		best := 0
		for i := 1; i < nuc.NState; i++ {
			if s.post[i] > s.post[best] {
				best = i
			}
		}
		node.Sequence[pos] = nuc.Alphabet[best]
	}

	return lse - math.Log(float64(ncat))
}

func maxVec(v []float64) (m float64) {
	m = v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return
}
