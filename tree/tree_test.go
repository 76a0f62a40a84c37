package tree

import (
	"math"
	"strings"
	"testing"
)

const smallDiff = 1e-9

func parse(tst *testing.T, newick string) *Tree {
	t, err := ParseNewick(strings.NewReader(newick))
	if err != nil {
		tst.Fatal(err)
	}
	return t
}

// rootToTip returns the path length from the root to a node.
func rootToTip(node *Node) (d float64) {
	for n := node; n.Parent != nil; n = n.Parent {
		d += n.BranchLength
	}
	return
}

func leafDistances(t *Tree) map[string]float64 {
	dist := make(map[string]float64)
	for node := range t.Terminals() {
		dist[node.Name] = rootToTip(node)
	}
	return dist
}

func TestParseNewick(tst *testing.T) {
	t := parse(tst, "((a:0.02,b:0.07)ab:0.08,c:0.2)root;")
	if t.NLeaves() != 3 {
		tst.Errorf("%d leaves, expected 3", t.NLeaves())
	}
	if t.NNodes() != 5 {
		tst.Errorf("%d nodes, expected 5", t.NNodes())
	}
	ab := t.FindNode("ab")
	if ab == nil || math.Abs(ab.BranchLength-0.08) > smallDiff {
		tst.Fatalf("internal node parsed as %v", ab)
	}
	if !t.Node.IsRoot() || t.Node.Name != "root" {
		tst.Errorf("root parsed as %v", t.Node.LongString())
	}
	a := t.FindNode("a")
	if a == nil || !a.IsTerminal() || a.Parent != ab {
		tst.Fatalf("leaf a parsed as %v", a)
	}
	// leaf ids are dense and unique
	seen := make(map[int]bool)
	for node := range t.Terminals() {
		if node.LeafId < 0 || node.LeafId >= t.NLeaves() || seen[node.LeafId] {
			tst.Errorf("bad leaf id %d for %s", node.LeafId, node.Name)
		}
		seen[node.LeafId] = true
	}
}

func TestParseNewickRoundtrip(tst *testing.T) {
	in := "((a:0.020000,b:0.070000)ab:0.080000,c:0.200000)root:0.000000;"
	t := parse(tst, in)
	if s := t.Node.String(); s != in {
		tst.Errorf("roundtrip produced %s", s)
	}
}

func TestParseNewickErrors(tst *testing.T) {
	for _, bad := range []string{
		")a;",
		"(a,b)),c;",
		"a,b;",
		"(a:xyz,b);",
		"(a,b)",
	} {
		if _, err := ParseNewick(strings.NewReader(bad)); err == nil {
			tst.Errorf("no error for %q", bad)
		}
	}
}

func TestNodeOrder(tst *testing.T) {
	t := parse(tst, "((a:1,b:1)ab:1,(c:1,d:1)cd:1)root;")
	seen := make(map[*Node]bool)
	for _, node := range t.NodeOrder() {
		for _, child := range node.ChildNodes() {
			if !child.IsTerminal() && !seen[child] {
				tst.Errorf("node %s visited before child %s", node.Name, child.Name)
			}
		}
		seen[node] = true
	}
	if !seen[t.Node] {
		tst.Error("root missing from the node order")
	}
}

func TestReroot(tst *testing.T) {
	t := parse(tst, "((a:0.02,b:0.07)ab:0.08,c:0.2)root;")
	t.Reroot(t.FindNode("ab"))

	if t.Node.Name != "ab" || !t.Node.IsRoot() {
		tst.Fatalf("new root is %v", t.Node.LongString())
	}
	// the old bifurcating root is collapsed
	if t.NNodes() != 4 {
		tst.Errorf("%d nodes after reroot, expected 4", t.NNodes())
	}
	dist := leafDistances(t)
	if len(dist) != 3 {
		tst.Fatalf("leaves after reroot: %v", dist)
	}
	// a-c path length is invariant under rerooting
	if d := dist["a"] + dist["c"]; math.Abs(d-0.3) > smallDiff {
		tst.Errorf("a-c distance %v, expected 0.3", d)
	}
	if math.Abs(dist["b"]-0.07) > smallDiff {
		tst.Errorf("b is %v from the new root, expected 0.07", dist["b"])
	}
}

func TestSplitBranch(tst *testing.T) {
	t := parse(tst, "((a:0.02,b:0.07)ab:0.08,c:0.2)root;")
	c := t.FindNode("c")
	mid := t.SplitBranch(c, 0.05)
	if math.Abs(c.BranchLength-0.05) > smallDiff ||
		math.Abs(mid.BranchLength-0.15) > smallDiff {
		tst.Errorf("split lengths %v and %v", c.BranchLength, mid.BranchLength)
	}
	if c.Parent != mid || mid.Parent != t.Node {
		tst.Error("split node not spliced into the branch")
	}
	if t.NNodes() != 6 {
		tst.Errorf("%d nodes after split, expected 6", t.NNodes())
	}
}

func TestMidpointRoot(tst *testing.T) {
	t := parse(tst, "((a:0.02,b:0.07)ab:0.08,c:0.2)root;")
	if err := t.MidpointRoot(); err != nil {
		tst.Fatal(err)
	}
	// the b-c diameter is 0.35, both ends at 0.175 from the midpoint
	dist := leafDistances(t)
	if math.Abs(dist["b"]-0.175) > smallDiff || math.Abs(dist["c"]-0.175) > smallDiff {
		tst.Errorf("leaf distances after midpoint rooting: %v", dist)
	}
}

func TestMidpointRootDegenerate(tst *testing.T) {
	t := parse(tst, "((a:0,b:0)ab:0,c:0)root;")
	if err := t.MidpointRoot(); err == nil {
		tst.Error("expected an error for an all-zero tree")
	}
}

func TestResolvePolytomies(tst *testing.T) {
	t := parse(tst, "(a:1,b:1,c:1,d:1)root;")
	dates := map[string]float64{"a": 2000, "b": 2005, "c": 2010, "d": 2018}
	for node := range t.Terminals() {
		node.Date = dates[node.Name]
	}
	t.Node.Date = 1990

	if t.NPolytomies() != 1 {
		tst.Fatalf("%d polytomies before resolution", t.NPolytomies())
	}
	t.ResolvePolytomies(nil)
	if t.NPolytomies() != 0 {
		tst.Errorf("%d polytomies left", t.NPolytomies())
	}
	for node := range t.NonTerminals() {
		if n := len(node.ChildNodes()); n != 2 {
			tst.Errorf("node %d has %d children", node.Id, n)
		}
	}
	// temporal order holds: no child predates its parent
	for node := range t.Walker(nil) {
		if node.IsRoot() || math.IsNaN(node.Date) {
			continue
		}
		if node.Date < node.Parent.Date-smallDiff {
			tst.Errorf("node %d predates its parent", node.Id)
		}
	}
	// the oldest tips coalesce deepest: a and b share the lowest new node
	a, b := t.FindNode("a"), t.FindNode("b")
	if a.Parent != b.Parent {
		tst.Error("the two oldest tips do not share a parent")
	}
}

func TestResolvePolytomiesPrior(tst *testing.T) {
	t := parse(tst, "(a:1,b:1,c:1)root;")
	for i, node := range []*Node{t.FindNode("a"), t.FindNode("b"), t.FindNode("c")} {
		node.Date = 2000 + float64(i)
	}
	t.Node.Date = 1990
	// a prior preferring early merges pins the new node to the parent
	// date; the candidate date is read off the attached merge node
	t.ResolvePolytomies(func() (v float64) {
		for node := range t.NonTerminals() {
			if node != t.Node && !math.IsNaN(node.Date) {
				v -= node.Date
			}
		}
		return v
	})
	for node := range t.NonTerminals() {
		if node == t.Node {
			continue
		}
		if math.Abs(node.Date-1990) > smallDiff {
			tst.Errorf("merge node dated %v, expected 1990", node.Date)
		}
	}
}

func TestNameInternalNodes(tst *testing.T) {
	t := parse(tst, "((a:1,b:1):1,(c:1,d:1)cd:1);")
	named := t.NameInternalNodes()
	if named != 2 {
		tst.Errorf("named %d nodes, expected 2", named)
	}
	seen := make(map[string]bool)
	for node := range t.Walker(nil) {
		if node.Name == "" {
			tst.Errorf("node %d left unnamed", node.Id)
		}
		if seen[node.Name] {
			tst.Errorf("duplicate node name %s", node.Name)
		}
		seen[node.Name] = true
	}
	if !seen["cd"] {
		tst.Error("existing internal label was not preserved")
	}
}

func TestNexusString(tst *testing.T) {
	t := parse(tst, "((a:0.02,b:0.07)ab:0.08,c:0.2)root;")
	t.FindNode("b").Name = "b 1"
	for node := range t.Walker(nil) {
		node.Date = 2000
	}
	a := t.FindNode("a")
	a.Mutations = []Mutation{{From: 'A', Pos: 136, To: 'G'}}

	s := t.NexusString()
	for _, want := range []string{
		"#NEXUS",
		"NTax=3",
		"date=2000.0000",
		`mutations="A137G"`,
		"Begin Trees;",
	} {
		if !strings.Contains(s, want) {
			tst.Errorf("nexus output misses %q", want)
		}
	}
	if !strings.Contains(s, "'b 1'") {
		tst.Error("taxon with a space is not quoted")
	}
}

func TestCopy(tst *testing.T) {
	t := parse(tst, "((a:0.02,b:0.07)ab:0.08,c:0.2)root;")
	t.FindNode("a").Date = 2000
	cp := t.Copy()
	if cp.NNodes() != t.NNodes() || cp.NLeaves() != t.NLeaves() {
		tst.Fatalf("copy has %d nodes and %d leaves", cp.NNodes(), cp.NLeaves())
	}
	ca := cp.FindNode("a")
	if ca == nil || math.Abs(ca.Date-2000) > smallDiff {
		tst.Fatalf("copied leaf a is %v", ca)
	}
	ca.BranchLength = 42
	if math.Abs(t.FindNode("a").BranchLength-0.02) > smallDiff {
		tst.Error("modifying the copy changed the original")
	}
}
