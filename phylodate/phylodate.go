/*

Phylodate infers a time-calibrated phylogenetic tree from a multiple
sequence alignment, a starting topology and per-sample collection
dates. Along the way it reconstructs ancestral sequences, estimates a
GTR substitution model and optionally fits a coalescent or skyline
demographic history.

The basic usage looks like this:

	phylodate alignment.fst tree.nwk dates.csv

The dates file has one 'name,date' pair per line, with the date either
in decimal years (2012.15) or as a calendar date (2012-02-24).

To see all the options run:

	phylodate -h

*/
package main

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"github.com/phylodate/phylodate/bio"
	"github.com/phylodate/phylodate/checkpoint"
	"github.com/phylodate/phylodate/timetree"
	"github.com/phylodate/phylodate/tree"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("phylodate")
var formatter = logging.MustStringFormatter(`%{message}`)

// Command line parameters.
var (
	app = kingpin.New("phylodate", "time-calibrated phylogenetic tree inference").Version(version)

	// input
	alignmentFileName = app.Arg("alignment", "sequence alignment").Required().ExistingFile()
	treeFileName      = app.Arg("tree", "starting phylogenetic tree").Required().ExistingFile()
	datesFileName     = app.Arg("dates", "sampling dates table (name,date[,sigma])").Required().ExistingFile()

	// model
	inferGTR  = app.Flag("infergtr", "re-estimate the GTR model from the reconstructed sequences").Bool()
	ncat      = app.Flag("ncat", "number of categories for the site gamma rate variation (no variation by default)").Default("1").Int()
	alpha     = app.Flag("alpha", "gamma shape for the site rate variation").Default("1.0").Float64()
	optBrLen  = app.Flag("optbrlen", "reoptimize branch lengths from the reconstructed sequences").Bool()
	rerootStr = app.Flag("reroot", "rerooting: 'best' (maximize the clock signal), 'midpoint', a node name, or 'none'").Default("best").String()
	keepPoly  = app.Flag("keeppolytomies", "do not resolve multifurcations").Bool()
	maxIter   = app.Flag("maxiter", "maximum number of outer iterations").Default("2").Int()

	// relaxed clock
	relax         = app.Flag("relax", "fit per-branch rate multipliers (relaxed clock)").Bool()
	relaxSlack    = app.Flag("relaxslack", "relaxed clock penalty toward the strict clock").Default("1.0").Float64()
	relaxCoupling = app.Flag("relaxcoupling", "relaxed clock penalty between neighboring branches").Default("0.5").Float64()

	// coalescent
	tcStr           = app.Flag("tc", "coalescent timescale: a number in years, 'opt' or 'skyline' ('0' disables the prior)").Default("0").String()
	skylineSegments = app.Flag("skylinesegments", "maximum number of skyline segments").Default("20").Int()
	skylinePenalty  = app.Flag("skylinepenalty", "skyline smoothing strength").Default("1.0").Float64()
	skylineMethod   = app.Flag("skylinemethod", "skyline smoothing optimizer (lbfgsb, simplex or bfgs)").Default("lbfgsb").String()
	generations     = app.Flag("gen", "generations per year for the inferred population size").Default("50").Float64()

	// technical
	nThreads      = app.Flag("nt", "number of threads to use").Int()
	seed          = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	cpuProfile    = app.Flag("cpuprofile", "write cpu profile to file").String()
	checkpointF   = app.Flag("checkpoint", "checkpoint database file, allows resuming an interrupted run").String()
	checkpointSec = app.Flag("checkpointsec", "minimum seconds between checkpoint saves").Default("30").Float64()

	// output
	outLogF   = app.Flag("log", "write log to a file").String()
	outTreeF  = app.Flag("outtree", "write the dated tree in NEXUS format to a file").Default("timetree.nexus").String()
	outAlnF   = app.Flag("outaln", "write the reconstructed ancestral sequences to a FASTA file").String()
	skylineF  = app.Flag("skyline", "write the inferred skyline to a TSV file").String()
	jsonF     = app.Flag("json", "write json output to a file").String()
	yearBrLen = app.Flag("years", "write branch lengths in years instead of substitutions per site").Bool()
	logLevel  = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").String()
)

// run performs the inference and returns the run summary.
func run() (summary *RunSummary, err error) {
	summary = &RunSummary{}
	startTime := time.Now()

	cfg, err := buildConfig()
	if err != nil {
		return nil, err
	}

	alnF, err := os.Open(*alignmentFileName)
	if err != nil {
		return nil, fmt.Errorf("opening alignment: %w", err)
	}
	defer alnF.Close()
	aln, err := bio.ParseFasta(alnF)
	if err != nil {
		return nil, fmt.Errorf("reading alignment: %w", err)
	}
	log.Infof("Read %d sequences of length %d", len(aln), len(aln[0].Sequence))

	treeF, err := os.Open(*treeFileName)
	if err != nil {
		return nil, fmt.Errorf("opening tree: %w", err)
	}
	defer treeF.Close()
	t, err := tree.ParseNewick(treeF)
	if err != nil {
		return nil, fmt.Errorf("reading tree: %w", err)
	}
	log.Infof("Read a tree with %d leaves", t.NLeaves())
	summary.StartingTree = t.String()

	datesF, err := os.Open(*datesFileName)
	if err != nil {
		return nil, fmt.Errorf("opening dates: %w", err)
	}
	defer datesF.Close()
	dates, err := bio.ParseDates(datesF)
	if err != nil {
		return nil, fmt.Errorf("reading dates: %w", err)
	}
	log.Infof("Read %d sampling dates", len(dates))

	engine, err := timetree.New(cfg, t, aln, dates)
	if err != nil {
		return nil, err
	}

	if *checkpointF != "" {
		db, err := bolt.Open(*checkpointF, 0644, nil)
		if err != nil {
			return nil, fmt.Errorf("opening checkpoint database: %w", err)
		}
		defer db.Close()
		engine.SetCheckpoint(checkpoint.NewIO(db, inputKey(), *checkpointSec))
	}

	if err = engine.Run(); err != nil {
		return nil, err
	}

	summary.GTR = engine.GTR().String()
	summary.LnL = engine.LnL()
	summary.Iterations = engine.Iterations()
	summary.Converged = engine.Converged()
	summary.Warnings = engine.Warnings()
	if c := engine.Coalescent(); c != nil {
		summary.Coalescent = c.String()
	}

	if m := engine.Clock(); m != nil {
		summary.Clock = m
		log.Noticef("Inferred clock: %s", m)
		log.Noticef("Root date: %.2f", engine.Tree().Node.Date)
	} else {
		log.Warning("No clock could be fitted, the tree was not dated")
	}

	if err = writeOutputs(engine); err != nil {
		return nil, err
	}
	summary.FinalTree = engine.Tree().String()

	deltaT := time.Now().Sub(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.Time = deltaT.Seconds()
	return summary, nil
}

// buildConfig translates the command line into an engine
// configuration.
func buildConfig() (*timetree.Config, error) {
	cfg := timetree.DefaultConfig()
	cfg.InferGTR = *inferGTR
	cfg.OptimizeBranchLengths = *optBrLen
	cfg.KeepPolytomies = *keepPoly
	cfg.MaxIter = *maxIter
	cfg.NCat = *ncat
	cfg.GammaAlpha = *alpha
	cfg.SkylineSegments = *skylineSegments
	cfg.SkylinePenalty = *skylinePenalty
	cfg.SkylineMethod = *skylineMethod
	cfg.SkylineGenerations = *generations
	cfg.Seed = *seed
	if *nThreads > 0 {
		cfg.NProc = *nThreads
	}

	if *rerootStr == "none" {
		cfg.Reroot = ""
	} else {
		cfg.Reroot = *rerootStr
	}

	tc, err := timetree.ParseTc(*tcStr)
	if err != nil {
		return nil, err
	}
	cfg.Tc = tc

	if *relax {
		cfg.Relax = &timetree.RelaxConfig{
			Slack:    *relaxSlack,
			Coupling: *relaxCoupling,
		}
	}
	return cfg, nil
}

// writeOutputs writes the tree, alignment and skyline files.
func writeOutputs(engine *timetree.Engine) error {
	if *yearBrLen {
		engine.BranchLengthsToYears()
	}

	if *outTreeF != "" {
		f, err := os.Create(*outTreeF)
		if err != nil {
			return fmt.Errorf("creating tree output file: %w", err)
		}
		f.WriteString(engine.Tree().NexusString())
		f.Close()
		log.Noticef("Wrote the dated tree to %s", *outTreeF)
	}

	if *outAlnF != "" {
		f, err := os.Create(*outAlnF)
		if err != nil {
			return fmt.Errorf("creating alignment output file: %w", err)
		}
		f.WriteString(engine.ReconstructedAlignment().String())
		f.Close()
		log.Noticef("Wrote the ancestral sequences to %s", *outAlnF)
	}

	if *skylineF != "" {
		s := engine.Skyline()
		if s == nil {
			log.Warning("No skyline was fitted (use --tc skyline), skipping the skyline output")
			return nil
		}
		f, err := os.Create(*skylineF)
		if err != nil {
			return fmt.Errorf("creating skyline output file: %w", err)
		}
		fmt.Fprintln(f, "date\tne")
		for _, p := range s.Inferred(*generations) {
			fmt.Fprintf(f, "%f\t%f\n", p.Time, p.Tc)
		}
		f.Close()
		log.Noticef("Wrote the inferred skyline to %s", *skylineF)
	}
	return nil
}

// inputKey derives a checkpoint key from the input file names, so a
// checkpoint database can be shared between runs on different data.
func inputKey() []byte {
	h := sha256.New()
	fmt.Fprintln(h, *alignmentFileName, *treeFileName, *datesFileName)
	return h.Sum(nil)
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, pkg := range []string{
		"phylodate", "timetree", "ancestral", "clock", "coalescent",
		"gtr", "optimize", "checkpoint",
	} {
		logging.SetLevel(level, pkg)
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)

	rand.Seed(*seed)
	if *nThreads > 0 {
		runtime.GOMAXPROCS(*nThreads)
	}

	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.\n", effectiveNThreads)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	summary, err := run()
	if err != nil {
		log.Fatal(err)
	}
	summary.NThreads = effectiveNThreads
	summary.Version = version
	summary.CommandLine = os.Args
	summary.Seed = *seed

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}
