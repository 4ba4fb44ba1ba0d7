// Package ast holds the intermediate representation between the tree-ensemble
// model and C emission, together with the builder that lowers a model into it
// and the optimization passes that rewrite it.
package ast

import (
	"github.com/tarstars/tree_codegen/model"
)

//NodeID indexes a node inside the builder's arena. Parent links are plain
//ids, so the node graph stays acyclic from the garbage collector's point of
//view.
type NodeID int32

//NilNode marks an absent parent.
const NilNode NodeID = -1

//Payload is the kind-specific part of an AST node.
type Payload interface {
	isPayload()
}

//Main is the root payload. Its single child is a Quantizer or a Function.
type Main struct {
	BaseScores []float64
	//AverageFactor has num_target*max_num_class entries when tree averaging
	//is enabled and is nil otherwise.
	AverageFactor []int32
	Postprocessor string
}

//Quantizer owns the per-feature ascending threshold lists produced by the
//quantization pass. Its single child is a Function.
type Quantizer struct {
	ThresholdList [][]float64
}

//Function groups per-tree subtrees, or TranslationUnit nodes after the split
//pass.
type Function struct{}

//TranslationUnit wraps the trees emitted into one generated source file.
type TranslationUnit struct {
	UnitID int32
}

//NumericalCondition tests one feature against a threshold. After the
//quantization pass QuantizedThreshold holds the integer bin index and the
//original threshold is kept for reference only.
type NumericalCondition struct {
	SplitIndex         uint32
	DefaultLeft        bool
	Gain               *float64
	Op                 model.Operator
	Threshold          float64
	QuantizedThreshold *int
	ZeroQuantized      int
}

//CategoricalCondition tests membership of a feature value in an ascending
//category list.
type CategoricalCondition struct {
	SplitIndex             uint32
	DefaultLeft            bool
	Gain                   *float64
	CategoryList           []uint32
	CategoryListRightChild bool
}

//Output is a leaf. LeafOutput's length is implied by the (TargetID, ClassID)
//fan-out and the model's leaf-vector shape.
type Output struct {
	TargetID   int32
	ClassID    int32
	LeafOutput []float64
}

func (*Main) isPayload()                 {}
func (*Quantizer) isPayload()            {}
func (*Function) isPayload()             {}
func (*TranslationUnit) isPayload()      {}
func (*NumericalCondition) isPayload()   {}
func (*CategoricalCondition) isPayload() {}
func (*Output) isPayload()               {}

//Node is one arena slot. TreeID and TreeNode are copied from the source tree
//(-1 for nodes that have no source counterpart).
type Node struct {
	Payload   Payload
	Parent    NodeID
	Children  []NodeID
	TreeID    int32
	TreeNode  int32
	DataCount *uint64
	SumHess   *float64
}

//ConditionInfo returns the split fields shared by both condition payloads,
//or false when the node is not a condition.
func (n *Node) ConditionInfo() (splitIndex uint32, defaultLeft bool, ok bool) {
	switch p := n.Payload.(type) {
	case *NumericalCondition:
		return p.SplitIndex, p.DefaultLeft, true
	case *CategoricalCondition:
		return p.SplitIndex, p.DefaultLeft, true
	}
	return 0, false, false
}

//ModelMeta describes the type parameters and output geometry shared by every
//node of one compile.
type ModelMeta struct {
	NumTarget       int32
	NumClass        []int32
	LeafVectorShape [2]int32
	NumFeature      int32
	//IsCategorical[i] is set by the categorical-discovery pass.
	IsCategorical []bool
	SigmoidAlpha  float32
	RatioC        float32
	//TypeStr is "float32" or "float64"; thresholds and leaf outputs share it.
	TypeStr string
}

//MaxNumClass returns the widest class count across targets.
func (m *ModelMeta) MaxNumClass() int32 {
	max := int32(1)
	for _, n := range m.NumClass {
		if n > max {
			max = n
		}
	}
	return max
}
