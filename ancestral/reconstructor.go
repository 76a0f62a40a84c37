// Package ancestral implements ancestral sequence reconstruction by
// Felsenstein's pruning algorithm, both marginal (posterior per node)
// and joint (single best assignment), plus branch length
// reoptimization from the reconstructed states.
package ancestral

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"

	"github.com/phylodate/phylodate/dist"
	"github.com/phylodate/phylodate/gtr"
	"github.com/phylodate/phylodate/nuc"
	"github.com/phylodate/phylodate/tree"
)

// log is the package logging variable.
var log = logging.MustGetLogger("ancestral")

const (
	// minBranch is the branch length floor used during
	// reconstruction, so zero-length branches keep a nonzero
	// substitution probability.
	minBranch = 1e-9
	// maxBranch is the branch length ceiling for reoptimization
	// (substitutions per site).
	maxBranch = 4
	// brTol is the branch length optimization tolerance.
	brTol = 1e-8
)

// Reconstructor reconstructs ancestral sequences on a tree under a
// substitution model. The tree topology may change between calls
// (e.g. rerooting); call Refresh afterwards.
type Reconstructor struct {
	t     *tree.Tree
	model gtr.Model
	index map[string]int
	seqs  nuc.Sequences
	ls    int
	rates []float64
	nProc int

	// tip sequences indexed by LeafId
	tip []nuc.Sequence
	// cached traversal orders
	leaves   []*tree.Node
	order    []*tree.Node
	preorder []*tree.Node
	postFull []*tree.Node

	// eQts[cat][nodeId] is the row-major transition matrix for the
	// branch above the node at the category rate.
	eQts [][][]float64
	lnL  float64
}

// New creates a reconstructor for a tree and an alignment. Every tree
// leaf must have a sequence in the alignment.
func New(t *tree.Tree, seqs nuc.Sequences, model gtr.Model) (*Reconstructor, error) {
	index := make(map[string]int, len(seqs))
	for i, seq := range seqs {
		index[seq.Name] = i
	}
	r := &Reconstructor{
		t:     t,
		model: model,
		index: index,
		seqs:  seqs,
		ls:    seqs.Length(),
		rates: []float64{1},
		nProc: runtime.GOMAXPROCS(0),
	}
	if err := r.Refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// SetModel replaces the substitution model (e.g. after refitting).
func (r *Reconstructor) SetModel(model gtr.Model) {
	r.model = model
	r.eQts = nil
}

// SetProcs sets the number of worker goroutines.
func (r *Reconstructor) SetProcs(nProc int) {
	if nProc > 0 {
		r.nProc = nProc
	}
}

// SetGamma enables discrete gamma rate variation across sites with
// the given shape and number of categories.
func (r *Reconstructor) SetGamma(alpha float64, nCat int) {
	if nCat <= 1 {
		r.rates = []float64{1}
	} else {
		r.rates = dist.DiscreteGamma(alpha, alpha, nCat, false, nil, nil)
	}
	r.eQts = nil
	log.Debugf("site rate categories: %v", r.rates)
}

// LnL returns the log-likelihood of the last reconstruction.
func (r *Reconstructor) LnL() float64 {
	return r.lnL
}

// Refresh re-reads the tree topology. It must be called after
// rerooting or any other topology change.
func (r *Reconstructor) Refresh() error {
	r.leaves = r.leaves[:0]
	r.preorder = r.preorder[:0]
	r.t.ClearCache()
	for node := range r.t.Walker(nil) {
		r.preorder = append(r.preorder, node)
		if node.IsTerminal() {
			r.leaves = append(r.leaves, node)
		}
	}
	r.order = r.t.NodeOrder()
	r.postFull = append(append(r.postFull[:0], r.leaves...), r.order...)

	r.tip = make([]nuc.Sequence, len(r.leaves))
	for _, leaf := range r.leaves {
		i, ok := r.index[leaf.Name]
		if !ok {
			return fmt.Errorf("no sequence for tree leaf <%s>", leaf.Name)
		}
		r.tip[leaf.LeafId] = r.seqs[i]
	}
	r.eQts = nil
	return nil
}

// ExpBranches computes the per-branch, per-category transition
// matrices in parallel.
func (r *Reconstructor) ExpBranches() {
	nni := r.t.MaxNodeId() + 1
	r.eQts = make([][][]float64, len(r.rates))
	for c := range r.eQts {
		r.eQts[c] = make([][]float64, nni)
	}

	type task struct {
		cat  int
		node *tree.Node
	}
	tasks := make(chan task, r.nProc*2)
	var wg sync.WaitGroup
	for w := 0; w < r.nProc; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scratch := mat.NewDense(nuc.NState, nuc.NState, nil)
			for tk := range tasks {
				bl := tk.node.BranchLength
				if bl < minBranch {
					bl = minBranch
				}
				r.model.TransitionProbability(r.rates[tk.cat]*bl, scratch)
				r.eQts[tk.cat][tk.node.Id] = append([]float64{}, scratch.RawMatrix().Data...)
			}
		}()
	}
	for _, node := range r.preorder {
		if node.IsRoot() {
			continue
		}
		for c := range r.rates {
			tasks <- task{c, node}
		}
	}
	close(tasks)
	wg.Wait()
}

// allocSequences makes sure every node has a sequence buffer of the
// alignment length.
func (r *Reconstructor) allocSequences() {
	for _, node := range r.preorder {
		if len(node.Sequence) != r.ls {
			node.Sequence = make([]byte, r.ls)
		}
	}
}

// ComputeMutations diffs every node against its parent and stores the
// substitutions on the node. Positions where either residue is not an
// unambiguous nucleotide are skipped. Returns the total number of
// mutations.
func (r *Reconstructor) ComputeMutations() (total int) {
	for _, node := range r.preorder {
		if node.IsRoot() {
			continue
		}
		node.Mutations = node.Mutations[:0]
		for pos := 0; pos < r.ls; pos++ {
			from := node.Parent.Sequence[pos]
			to := node.Sequence[pos]
			if from == to {
				continue
			}
			if nuc.State(from) == nuc.NONUC || nuc.State(to) == nuc.NONUC {
				continue
			}
			node.Mutations = append(node.Mutations, tree.Mutation{From: from, Pos: pos, To: to})
		}
		total += len(node.Mutations)
	}
	return total
}

// Counts accumulates the substitution sufficient statistics from the
// reconstructed sequences and the current branch lengths.
func (r *Reconstructor) Counts() *nuc.Counts {
	counts := &nuc.Counts{}
	enc := make([][]byte, r.t.MaxNodeId()+1)
	for _, node := range r.preorder {
		e := make([]byte, r.ls)
		for pos, letter := range node.Sequence {
			e[pos] = nuc.State(letter)
		}
		enc[node.Id] = e
	}
	for _, node := range r.preorder {
		if node.IsRoot() {
			counts.AddRoot(enc[node.Id])
			continue
		}
		counts.AddBranch(enc[node.Parent.Id], enc[node.Id], node.BranchLength)
	}
	return counts
}

// OptimizeBranchLengths reoptimizes every branch length by maximizing
// the probability of the reconstructed parent and child states, in
// parallel over branches. Requires a prior reconstruction.
func (r *Reconstructor) OptimizeBranchLengths() {
	tasks := make(chan *tree.Node, r.nProc*2)
	var wg sync.WaitGroup
	for w := 0; w < r.nProc; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scratch := mat.NewDense(nuc.NState, nuc.NState, nil)
			var counts [nuc.NState][nuc.NState]float64
			for node := range tasks {
				for i := range counts {
					for j := range counts[i] {
						counts[i][j] = 0
					}
				}
				n := 0
				for pos := 0; pos < r.ls; pos++ {
					pi := nuc.State(node.Parent.Sequence[pos])
					ci := nuc.State(node.Sequence[pos])
					if pi == nuc.NONUC || ci == nuc.NONUC {
						continue
					}
					counts[pi][ci]++
					n++
				}
				if n == 0 {
					continue
				}
				node.BranchLength = optimizeBranch(r.model, &counts, scratch)
			}
		}()
	}
	for _, node := range r.preorder {
		if !node.IsRoot() {
			tasks <- node
		}
	}
	close(tasks)
	wg.Wait()
	r.eQts = nil
}

// Alignment returns the reconstructed sequences of every named node,
// in preorder.
func (r *Reconstructor) Alignment() nuc.Sequences {
	seqs := make(nuc.Sequences, 0, len(r.preorder))
	for _, node := range r.preorder {
		if node.Name == "" || len(node.Sequence) != r.ls {
			continue
		}
		seq := nuc.Sequence{
			Name:     node.Name,
			Letters:  append([]byte{}, node.Sequence...),
			Sequence: make([]byte, r.ls),
		}
		for pos, letter := range node.Sequence {
			seq.Sequence[pos] = nuc.State(letter)
		}
		seqs = append(seqs, seq)
	}
	return seqs
}
