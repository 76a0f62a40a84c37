package main

import "github.com/phylodate/phylodate/clock"

// RunSummary stores phylodate run summary information.
type RunSummary struct {
	// Version stores phylodate version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NThreads is the number of processes used.
	NThreads int `json:"nThreads"`
	// StartingTree is the input tree.
	StartingTree string `json:"startingTree"`
	// FinalTree is the dated tree.
	FinalTree string `json:"finalTree,omitempty"`
	// Clock is the fitted molecular clock.
	Clock *clock.Model `json:"clock,omitempty"`
	// GTR is a report of the final substitution model.
	GTR string `json:"gtr,omitempty"`
	// Coalescent is a report of the fitted coalescent prior.
	Coalescent string `json:"coalescent,omitempty"`
	// LnL is the reconstruction log-likelihood of the last iteration.
	LnL float64 `json:"lnL"`
	// Iterations is the number of outer iterations performed.
	Iterations int `json:"iterations"`
	// Converged reports whether the run converged before the iteration cap.
	Converged bool `json:"converged"`
	// Warnings lists the recoverable problems hit during the run.
	Warnings []string `json:"warnings,omitempty"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
}
