package flow

import "fmt"

// Node identifies a state of the reflection workflow.
type Node int

const (
	NodeCreateOrRefine Node = iota
	NodeCheckStructure
	NodeEvaluate
	NodeReformat
	NodeRefine
	NodeFinalize
)

func (n Node) String() string {
	switch n {
	case NodeCreateOrRefine:
		return "CREATE_OR_REFINE"
	case NodeCheckStructure:
		return "CHECK_STRUCTURE"
	case NodeEvaluate:
		return "EVALUATE"
	case NodeReformat:
		return "REFORMAT"
	case NodeRefine:
		return "REFINE"
	case NodeFinalize:
		return "FINALIZE"
	default:
		return fmt.Sprintf("Node(%d)", int(n))
	}
}

// Transitions lists the legal successors of every node. FINALIZE is terminal.
var Transitions = map[Node][]Node{
	NodeCreateOrRefine: {NodeCheckStructure},
	NodeCheckStructure: {NodeEvaluate},
	NodeEvaluate:       {NodeReformat, NodeFinalize, NodeRefine},
	NodeReformat:       {NodeEvaluate},
	NodeRefine:         {NodeCreateOrRefine},
	NodeFinalize:       nil,
}

// MaxFormatAttempts is the reformat ceiling; past it the best draft is finalized.
const MaxFormatAttempts = 2

// DefaultMaxIterations is the refine budget when none is configured.
const DefaultMaxIterations = 3

// Allowed reports whether to is a legal successor of from.
func Allowed(from, to Node) bool {
	for _, n := range Transitions[from] {
		if n == to {
			return true
		}
	}
	return false
}

// Decide picks the successor of EVALUATE. Rules apply in priority order:
// broken structure reformats (until the ceiling), approval finalizes, an
// exhausted budget finalizes, anything else refines.
func Decide(s *State) Node {
	switch {
	case !s.StructureOK && s.FormatAttempts >= MaxFormatAttempts:
		return NodeFinalize
	case !s.StructureOK:
		return NodeReformat
	case s.Approved:
		return NodeFinalize
	case s.Iteration >= s.MaxIterations:
		return NodeFinalize
	default:
		return NodeRefine
	}
}
