// Package timetree orchestrates time tree inference: iterated
// ancestral reconstruction, clock fitting, rerooting, node dating and
// coalescent fitting on a fixed topology.
package timetree

import (
	"errors"
	"fmt"
	"math"

	"github.com/op/go-logging"

	"github.com/phylodate/phylodate/ancestral"
	"github.com/phylodate/phylodate/bio"
	"github.com/phylodate/phylodate/checkpoint"
	"github.com/phylodate/phylodate/clock"
	"github.com/phylodate/phylodate/coalescent"
	"github.com/phylodate/phylodate/gtr"
	"github.com/phylodate/phylodate/nuc"
	"github.com/phylodate/phylodate/tree"
)

// log is the package logging variable.
var log = logging.MustGetLogger("timetree")

// convergence thresholds on the relative change of the clock rate and
// the reconstruction log-likelihood between iterations
const convTol = 1e-4

// gtrPseudoCount regularizes the GTR estimation.
const gtrPseudoCount = 0.1

// Engine runs the inference. Create with New, run with Run, then read
// the results through the accessors.
type Engine struct {
	cfg   *Config
	t     *tree.Tree
	seqs  nuc.Sequences
	dates bio.Dates

	model       *gtr.GTR
	rec         *ancestral.Reconstructor
	clockModel  *clock.Model
	coal        coalescent.Model
	skyline     *coalescent.Skyline
	multipliers []float64

	ckp        *checkpoint.IO
	warnings   []string
	converged  bool
	resolved   bool
	iterations int
	lnL        float64
}

// New validates the inputs and builds an engine. Every tree leaf must
// have an aligned sequence and a sampling date.
func New(cfg *Config, t *tree.Tree, aln bio.Sequences, dates bio.Dates) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Reroot {
	case "", "best", "midpoint":
	default:
		if t.FindNode(cfg.Reroot) == nil {
			return nil, &ConfigError{Option: "reroot", Value: cfg.Reroot,
				Reason: "no such node in the tree"}
		}
	}

	seqs, err := nuc.ToSequences(aln)
	if err != nil {
		return nil, err
	}
	aligned := make(map[string]bool, len(seqs))
	for _, seq := range seqs {
		aligned[seq.Name] = true
		if _, ok := dates[seq.Name]; !ok {
			return nil, &ConfigError{Option: "dates", Value: seq.Name,
				Reason: "aligned sample has no sampling date"}
		}
	}
	for leaf := range t.Terminals() {
		if !aligned[leaf.Name] {
			return nil, &ConfigError{Option: "alignment", Value: leaf.Name,
				Reason: "leaf has no aligned sequence"}
		}
	}

	e := &Engine{
		cfg:   cfg,
		t:     t,
		seqs:  seqs,
		dates: dates,
		model: gtr.JC69(),
	}
	e.rec, err = ancestral.New(t, seqs, e.model)
	if err != nil {
		return nil, err
	}
	if cfg.NCat > 1 {
		e.rec.SetGamma(cfg.GammaAlpha, cfg.NCat)
	}
	if cfg.NProc > 0 {
		e.rec.SetProcs(cfg.NProc)
	}
	return e, nil
}

// SetCheckpoint attaches a checkpoint store; the engine saves its
// state after every outer iteration and resumes from a saved state.
func (e *Engine) SetCheckpoint(ckp *checkpoint.IO) {
	e.ckp = ckp
}

// warn logs a recoverable problem and records it on the engine.
func (e *Engine) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Warning(msg)
	e.warnings = append(e.warnings, msg)
}

// Run performs up to MaxIter outer iterations. Numeric degeneracies
// degrade gracefully into warnings; only unusable inputs return an
// error.
func (e *Engine) Run() error {
	startIter, err := e.resume()
	if err != nil {
		return err
	}

	prevRate, prevLnL := math.NaN(), math.NaN()
	for iter := startIter; iter < e.cfg.MaxIter; iter++ {
		e.iterations = iter + 1
		log.Noticef("=== iteration %d ===", e.iterations)

		lnL := e.rec.Marginal()
		if e.cfg.OptimizeBranchLengths {
			e.rec.OptimizeBranchLengths()
			lnL = e.rec.Marginal()
		}

		if iter == 0 && e.cfg.Reroot != "" {
			if err := e.reroot(); err != nil {
				return err
			}
			lnL = e.rec.Marginal()
		}

		cm, err := clock.Fit(e.t, e.dates)
		if err != nil {
			if !errors.Is(err, clock.ErrDegenerate) {
				return fmt.Errorf("clock regression: %w", err)
			}
			e.warn("clock regression failed (%v), skipping the dating stages", err)
			cm = nil
		}
		if cm != nil && cm.Rate <= 0 {
			e.warn("non-positive clock rate %g, dating with its magnitude; "+
				"check the rooting and the sampling dates", cm.Rate)
			cm.Rate = math.Abs(cm.Rate)
			if cm.Rate == 0 {
				e.warn("clock rate is zero, skipping the dating stages")
				cm = nil
			}
		}
		e.clockModel = cm

		if cm != nil {
			cm.AssignDates(e.t, e.dates)
			clock.ConstrainDates(e.t)
			e.fitCoalescent()

			if !e.cfg.KeepPolytomies && !e.resolved && e.t.NPolytomies() > 0 {
				e.resolvePolytomies()
				// resolution changes the coalescent intervals
				e.fitCoalescent()
				lnL = e.rec.Marginal()
			}
		}

		if e.cfg.InferGTR {
			if e.inferGTR() {
				lnL = e.rec.Marginal()
			}
		}

		if cm != nil {
			var prior func() float64
			if e.coal != nil {
				prior = func() float64 {
					return e.coal.LnL(coalescent.Intervals(e.t))
				}
			}
			clock.RefineDates(e.t, cm.Rate, prior, 2)
			clock.ConstrainDates(e.t)

			if e.cfg.Relax != nil {
				e.multipliers = clock.Relax(e.t, cm.Rate,
					e.cfg.Relax.Slack, e.cfg.Relax.Coupling)
			}
			cm.RescaleBranchLengths(e.t, e.multipliers)
		}
		e.lnL = lnL

		dLnL := math.Abs(lnL-prevLnL) / math.Max(math.Abs(prevLnL), 1)
		dRate := 0.0
		if cm != nil {
			dRate = math.Abs(cm.Rate-prevRate) / math.Abs(prevRate)
			log.Infof("iteration %d: lnL=%.2f, rate=%g", e.iterations, lnL, cm.Rate)
			prevRate = cm.Rate
		} else {
			log.Infof("iteration %d: lnL=%.2f", e.iterations, lnL)
			prevRate = math.NaN()
		}
		prevLnL = lnL

		if dRate < convTol && dLnL < convTol {
			e.converged = true
			e.save(iter+1, true)
			break
		}
		e.save(iter+1, iter+1 == e.cfg.MaxIter)
	}

	if !e.converged && e.cfg.MaxIter > 1 {
		e.warn("run did not converge after %d iterations", e.iterations)
	}

	e.t.NameInternalNodes()
	e.rec.Refresh()
	e.rec.Marginal()
	e.rec.ComputeMutations()
	return nil
}

// reroot applies the configured rerooting and refreshes the
// reconstructor.
func (e *Engine) reroot() error {
	switch e.cfg.Reroot {
	case "best":
		if _, err := clock.BestRoot(e.t, e.dates); err != nil {
			if errors.Is(err, clock.ErrDegenerate) {
				e.warn("best root search failed (%v), keeping the input rooting", err)
			} else {
				return err
			}
		}
	case "midpoint":
		if err := e.t.MidpointRoot(); err != nil {
			e.warn("midpoint rooting failed (%v), keeping the input rooting", err)
		}
	default:
		node := e.t.FindNode(e.cfg.Reroot)
		if node == nil {
			return &ConfigError{Option: "reroot", Value: e.cfg.Reroot,
				Reason: "no such node in the tree"}
		}
		e.t.Reroot(node)
	}
	return e.rec.Refresh()
}

// resolvePolytomies breaks multifurcations into date-ordered
// bifurcations, using the coalescent prior for the merge times when
// one is configured.
func (e *Engine) resolvePolytomies() {
	n := e.t.NPolytomies()
	var prior func() float64
	if e.coal != nil {
		prior = func() float64 {
			return e.coal.LnL(coalescent.Intervals(e.t))
		}
	}
	e.t.ResolvePolytomies(prior)
	clock.ConstrainDates(e.t)
	log.Noticef("resolved %d polytomies", n)
	e.resolved = true
	if err := e.rec.Refresh(); err != nil {
		// resolution adds internal nodes only, leaves are unchanged
		panic(err)
	}
}

// inferGTR re-estimates the substitution model from the reconstructed
// sequences; returns true when the model was replaced.
func (e *Engine) inferGTR() bool {
	counts := e.rec.Counts()
	m, err := gtr.Estimate(counts, gtrPseudoCount)
	if err != nil {
		e.warn("GTR estimation failed (%v), keeping %s", err, e.model.Name)
		return false
	}
	e.model = m
	e.rec.SetModel(m)
	log.Infof("inferred model:\n%s", m)
	return true
}

// fitCoalescent fits the configured coalescent prior to the current
// node dates.
func (e *Engine) fitCoalescent() {
	intervals := coalescent.Intervals(e.t)
	switch e.cfg.Tc.Mode {
	case TcNone:
	case TcFixed:
		e.coal = &coalescent.Constant{Tc: e.cfg.Tc.Value}
	case TcOpt:
		m, err := coalescent.FitConstant(intervals)
		if err != nil {
			e.warn("coalescent fit failed: %v", err)
			return
		}
		e.coal = m
	case TcSkyline:
		s, err := coalescent.FitSkyline(intervals, e.cfg.SkylineSegments,
			e.cfg.SkylinePenalty, e.cfg.SkylineMethod)
		if err != nil {
			e.warn("skyline fit failed: %v", err)
			return
		}
		e.skyline = s
		e.coal = s
	}
}

// save stores the engine state in the checkpoint database. Saves are
// rate limited, only a final state is always written.
func (e *Engine) save(iteration int, final bool) {
	if e.ckp == nil {
		return
	}
	if !final && !e.ckp.Old() {
		return
	}
	nodes := e.t.NodeIdArray()
	state := &checkpoint.State{
		Iteration:     iteration,
		LnL:           e.lnL,
		BranchLengths: make([]float64, len(nodes)),
		Dates:         make([]float64, len(nodes)),
		Final:         final,
	}
	if e.clockModel != nil {
		state.Rate = e.clockModel.Rate
		state.Intercept = e.clockModel.Intercept
	}
	for id, node := range nodes {
		if node == nil {
			state.Dates[id] = math.NaN()
			continue
		}
		state.BranchLengths[id] = node.BranchLength
		state.Dates[id] = node.Date
	}
	e.ckp.Save(state)
}

// resume restores a saved state and returns the iteration to continue
// from. Checkpoints from a different tree (node count mismatch) are
// ignored.
func (e *Engine) resume() (int, error) {
	if e.ckp == nil {
		return 0, nil
	}
	state, err := e.ckp.Load()
	if err != nil {
		return 0, err
	}
	if state == nil {
		return 0, nil
	}
	nodes := e.t.NodeIdArray()
	if len(state.Dates) != len(nodes) {
		log.Warning("checkpoint does not match the input tree, starting over")
		return 0, nil
	}
	for id, node := range nodes {
		if node == nil {
			continue
		}
		node.BranchLength = state.BranchLengths[id]
		node.Date = state.Dates[id]
	}
	if state.Rate != 0 {
		e.clockModel = &clock.Model{Rate: state.Rate, Intercept: state.Intercept}
	}
	e.lnL = state.LnL
	if state.Final {
		e.converged = true
		return e.cfg.MaxIter, nil
	}
	return state.Iteration, nil
}

// GTR returns the substitution model of the final iteration.
func (e *Engine) GTR() *gtr.GTR { return e.model }

// Clock returns the fitted clock, or nil when the date regression was
// degenerate and the tree could not be dated.
func (e *Engine) Clock() *clock.Model { return e.clockModel }

// Tree returns the dated tree. Branch lengths are in expected
// substitutions per site; call BranchLengthsToYears for calendar
// units.
func (e *Engine) Tree() *tree.Tree { return e.t }

// BranchLengthsToYears converts the tree branch lengths to years.
func (e *Engine) BranchLengthsToYears() {
	clock.BranchLengthsToYears(e.t)
}

// ReconstructedAlignment returns the sequences of all named nodes.
func (e *Engine) ReconstructedAlignment() nuc.Sequences {
	return e.rec.Alignment()
}

// Skyline returns the fitted skyline, or nil.
func (e *Engine) Skyline() *coalescent.Skyline { return e.skyline }

// Coalescent returns the fitted coalescent prior, or nil.
func (e *Engine) Coalescent() coalescent.Model { return e.coal }

// Multipliers returns the relaxed clock branch multipliers, or nil.
func (e *Engine) Multipliers() []float64 { return e.multipliers }

// Warnings returns the recoverable problems hit during the run.
func (e *Engine) Warnings() []string { return e.warnings }

// Converged reports whether the run converged before MaxIter.
func (e *Engine) Converged() bool { return e.converged }

// Iterations returns the number of outer iterations performed.
func (e *Engine) Iterations() int { return e.iterations }

// LnL returns the reconstruction log-likelihood of the last
// iteration.
func (e *Engine) LnL() float64 { return e.lnL }
