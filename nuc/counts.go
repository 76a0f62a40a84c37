package nuc

// Counts accumulates the sufficient statistics of a substitution
// model: the number of observed i->j substitutions along branches,
// the time spent in every state and the root state counts.
type Counts struct {
	// Nij[i][j] is the number of i->j substitutions (i != j).
	Nij [NState][NState]float64
	// Ti is the total branch time spent in state i.
	Ti [NState]float64
	// Root counts the root sequence states.
	Root [NState]float64
	// TotalTime is the total branch length over all counted branches.
	TotalTime float64
}

// AddBranch accumulates counts for one branch given the encoded
// parent and child sequences and the branch length. Positions where
// either residue is ambiguous are skipped.
func (c *Counts) AddBranch(parent, child []byte, t float64) {
	for pos, pi := range parent {
		ci := child[pos]
		if pi == NONUC || ci == NONUC {
			continue
		}
		if pi == ci {
			c.Ti[pi] += t
		} else {
			c.Nij[pi][ci]++
			c.Ti[pi] += t / 2
			c.Ti[ci] += t / 2
		}
	}
	c.TotalTime += t
}

// AddRoot accumulates root state counts from the encoded root
// sequence.
func (c *Counts) AddRoot(root []byte) {
	for _, s := range root {
		if s != NONUC {
			c.Root[s]++
		}
	}
}

// NSubstitutions returns the total number of counted substitutions.
func (c *Counts) NSubstitutions() (n float64) {
	for i := 0; i < NState; i++ {
		for j := 0; j < NState; j++ {
			n += c.Nij[i][j]
		}
	}
	return
}

// TimeTotal returns the total state occupancy time.
func (c *Counts) TimeTotal() (t float64) {
	for i := 0; i < NState; i++ {
		t += c.Ti[i]
	}
	return
}
