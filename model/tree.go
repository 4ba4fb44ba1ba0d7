// Package model holds the typed, read-only inputs of the compiler pipeline:
// the tree-ensemble model and the data-matrix containers.
package model

import (
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

//Element constrains the floating-point widths supported for thresholds,
//leaf outputs and matrix elements.
type Element interface {
	~float32 | ~float64
}

//NodeType distinguishes the three node flavors of a decision tree.
type NodeType uint8

const (
	LeafNode NodeType = iota
	NumericalTestNode
	CategoricalTestNode
)

func (nt NodeType) String() string {
	switch nt {
	case NumericalTestNode:
		return "numerical_test"
	case CategoricalTestNode:
		return "categorical_test"
	}
	return "leaf"
}

//MarshalJSON renders the node type as its textual name.
func (nt NodeType) MarshalJSON() ([]byte, error) {
	return json.Marshal(nt.String())
}

func (nt *NodeType) UnmarshalJSON(payload []byte) error {
	var name string
	if err := json.Unmarshal(payload, &name); err != nil {
		return err
	}
	switch name {
	case "leaf":
		*nt = LeafNode
	case "numerical_test":
		*nt = NumericalTestNode
	case "categorical_test":
		*nt = CategoricalTestNode
	default:
		return errors.Errorf("unknown node type %q", name)
	}
	return nil
}

//Operator is a comparison operator attached to a numerical test node.
type Operator uint8

const (
	OpNone Operator = iota
	OpEQ
	OpLT
	OpLE
	OpGT
	OpGE
)

func (op Operator) String() string {
	switch op {
	case OpEQ:
		return "=="
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	}
	return "?"
}

//MarshalJSON renders the operator in its textual form.
func (op Operator) MarshalJSON() ([]byte, error) {
	if op == OpNone {
		return json.Marshal("")
	}
	return json.Marshal(op.String())
}

func (op *Operator) UnmarshalJSON(payload []byte) error {
	var name string
	if err := json.Unmarshal(payload, &name); err != nil {
		return err
	}
	if name == "" {
		*op = OpNone
		return nil
	}
	parsed, ok := OperatorFromString(name)
	if !ok {
		return errors.Errorf("unknown comparison operator %q", name)
	}
	*op = parsed
	return nil
}

//OperatorFromString parses the textual form used in serialized models.
func OperatorFromString(s string) (Operator, bool) {
	switch s {
	case "==":
		return OpEQ, true
	case "<":
		return OpLT, true
	case "<=":
		return OpLE, true
	case ">":
		return OpGT, true
	case ">=":
		return OpGE, true
	}
	return OpNone, false
}

//CompareWithOp evaluates lhs op rhs in float64 arithmetic. Promoting float32
//operands to float64 is exact, so the result matches a comparison performed
//at the narrower width.
func CompareWithOp(lhs float64, op Operator, rhs float64) bool {
	switch op {
	case OpEQ:
		return lhs == rhs
	case OpLT:
		return lhs < rhs
	case OpLE:
		return lhs <= rhs
	case OpGT:
		return lhs > rhs
	case OpGE:
		return lhs >= rhs
	}
	return false
}

//Node is one node of a decision tree, stored in the array layout of Tree.
//LeftChild and RightChild are -1 on leaves. CategoryList is ascending.
type Node[T Element] struct {
	Type                   NodeType  `json:"type"`
	SplitIndex             int32     `json:"split_index"`
	DefaultLeft            bool      `json:"default_left"`
	Op                     Operator  `json:"op"`
	Threshold              T         `json:"threshold"`
	CategoryList           []uint32  `json:"category_list,omitempty"`
	CategoryListRightChild bool      `json:"category_list_right_child,omitempty"`
	LeftChild              int32     `json:"left_child"`
	RightChild             int32     `json:"right_child"`
	LeafValue              T         `json:"leaf_value"`
	LeafVector             []T       `json:"leaf_vector,omitempty"`
	Gain                   *float64  `json:"gain,omitempty"`
	DataCount              *uint64   `json:"data_count,omitempty"`
	SumHess                *float64  `json:"sum_hess,omitempty"`
}

//Tree is a single decision tree stored as an array of nodes; node ids are
//array indices and the root is node 0.
type Tree[T Element] struct {
	Nodes []Node[T] `json:"nodes"`
}

func (t *Tree[T]) NumNodes() int { return len(t.Nodes) }

func (t *Tree[T]) IsLeaf(nid int) bool { return t.Nodes[nid].Type == LeafNode }

func (t *Tree[T]) NodeKind(nid int) NodeType { return t.Nodes[nid].Type }

func (t *Tree[T]) SplitIndex(nid int) int32 { return t.Nodes[nid].SplitIndex }

func (t *Tree[T]) DefaultLeft(nid int) bool { return t.Nodes[nid].DefaultLeft }

func (t *Tree[T]) ComparisonOp(nid int) Operator { return t.Nodes[nid].Op }

func (t *Tree[T]) Threshold(nid int) T { return t.Nodes[nid].Threshold }

func (t *Tree[T]) CategoryList(nid int) []uint32 { return t.Nodes[nid].CategoryList }

func (t *Tree[T]) CategoryListRightChild(nid int) bool {
	return t.Nodes[nid].CategoryListRightChild
}

func (t *Tree[T]) LeftChild(nid int) int { return int(t.Nodes[nid].LeftChild) }

func (t *Tree[T]) RightChild(nid int) int { return int(t.Nodes[nid].RightChild) }

//DefaultChild returns the child followed when the split feature is missing.
func (t *Tree[T]) DefaultChild(nid int) int {
	if t.Nodes[nid].DefaultLeft {
		return t.LeftChild(nid)
	}
	return t.RightChild(nid)
}

func (t *Tree[T]) LeafValue(nid int) T { return t.Nodes[nid].LeafValue }

func (t *Tree[T]) LeafVector(nid int) []T { return t.Nodes[nid].LeafVector }

func (t *Tree[T]) HasGain(nid int) bool { return t.Nodes[nid].Gain != nil }

func (t *Tree[T]) Gain(nid int) float64 { return *t.Nodes[nid].Gain }

func (t *Tree[T]) HasDataCount(nid int) bool { return t.Nodes[nid].DataCount != nil }

func (t *Tree[T]) DataCount(nid int) uint64 { return *t.Nodes[nid].DataCount }

func (t *Tree[T]) HasSumHess(nid int) bool { return t.Nodes[nid].SumHess != nil }

func (t *Tree[T]) SumHess(nid int) float64 { return *t.Nodes[nid].SumHess }
