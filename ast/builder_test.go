package ast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tarstars/tree_codegen/model"
	"github.com/tarstars/tree_codegen/tcerr"
)

func numericalTree(splitIndex int32, threshold, leftLeaf, rightLeaf float64) model.Tree[float64] {
	return model.Tree[float64]{Nodes: []model.Node[float64]{
		{Type: model.NumericalTestNode, SplitIndex: splitIndex, DefaultLeft: true, Op: model.OpLT,
			Threshold: threshold, LeftChild: 1, RightChild: 2},
		{Type: model.LeafNode, LeafValue: leftLeaf, LeftChild: -1, RightChild: -1},
		{Type: model.LeafNode, LeafValue: rightLeaf, LeftChild: -1, RightChild: -1},
	}}
}

func simpleModel(trees ...model.Tree[float64]) *model.Model {
	targetID := make([]int32, len(trees))
	classID := make([]int32, len(trees))
	return &model.Model{
		NumTarget:       1,
		NumClass:        []int32{1},
		LeafVectorShape: [2]int32{1, 1},
		NumFeature:      3,
		BaseScores:      []float64{0},
		Postprocessor:   "identity",
		SigmoidAlpha:    1,
		RatioC:          1,
		TargetID:        targetID,
		ClassID:         classID,
		Trees:           model.Float64Trees(trees),
	}
}

func builtBuilder(t *testing.T, m *model.Model) *Builder {
	t.Helper()
	b := NewBuilder(nil)
	require.NoError(t, b.Build(m))
	return b
}

func TestBuildInvariants(t *testing.T) {
	b := builtBuilder(t, simpleModel(numericalTree(0, 0.5, -1, 1), numericalTree(1, 2.5, -2, 2)))

	main := b.Node(b.Root())
	_, isMain := main.Payload.(*Main)
	require.True(t, isMain)
	require.Len(t, main.Children, 1)

	function := b.Node(main.Children[0])
	_, isFunction := function.Payload.(*Function)
	require.True(t, isFunction)
	require.Len(t, function.Children, 2)

	for id := 0; id < b.NumNodes(); id++ {
		node := b.Node(NodeID(id))
		switch node.Payload.(type) {
		case *NumericalCondition, *CategoricalCondition:
			require.Len(t, node.Children, 2)
		case *Output:
			require.Empty(t, node.Children)
		}
	}
}

func TestBuildTranscribesNodeIDs(t *testing.T) {
	b := builtBuilder(t, simpleModel(numericalTree(0, 0.5, -1, 1)))
	function := b.Node(b.Node(b.Root()).Children[0])
	head := b.Node(function.Children[0])
	require.Equal(t, int32(0), head.TreeID)
	require.Equal(t, int32(0), head.TreeNode)
	left := b.Node(head.Children[0])
	require.Equal(t, int32(1), left.TreeNode)
}

func TestBuildTwiceFails(t *testing.T) {
	m := simpleModel(numericalTree(0, 0.5, -1, 1))
	b := builtBuilder(t, m)
	err := b.Build(m)
	require.Error(t, err)
	require.Equal(t, tcerr.KindInvalidState, tcerr.KindOf(err))
}

func averageModel() *model.Model {
	m := &model.Model{
		NumTarget:       2,
		NumClass:        []int32{3, 2},
		LeafVectorShape: [2]int32{2, 3},
		NumFeature:      3,
		BaseScores:      make([]float64, 6),
		Postprocessor:   "identity",
		SigmoidAlpha:    1,
		RatioC:          1,
		AverageTreeOutput: true,
		TargetID:        []int32{-1, 0, 1, -1},
		ClassID:         []int32{-1, -1, 1, 0},
	}
	leaf := make([]float64, 6)
	tree := model.Tree[float64]{Nodes: []model.Node[float64]{
		{Type: model.LeafNode, LeafVector: leaf, LeftChild: -1, RightChild: -1},
	}}
	m.Trees = model.Float64Trees{tree, tree, tree, tree}
	return m
}

func TestAverageFactorDerivation(t *testing.T) {
	// All four trees are reassigned to (-1,-1) below, so each one reaches every
	// (t, c) with c < num_class[t]; slot (1, 2) lies past num_class[1] and stays 0.
	b := NewBuilder(nil)
	m := averageModel()
	// Leaves of trees with a fixed (target, class) carry scalar-shaped output;
	// keep every tree unrestricted over the full leaf vector shape instead.
	m.TargetID = []int32{-1, -1, -1, -1}
	m.ClassID = []int32{-1, -1, -1, -1}
	require.NoError(t, b.Build(m))
	payload := b.Node(b.Root()).Payload.(*Main)
	require.Equal(t, []int32{4, 4, 4, 4, 4, 0}, payload.AverageFactor)
}

func TestAverageFactorMixedAssignments(t *testing.T) {
	require.Equal(t, []int32{3, 2, 2, 2, 2, 0}, computeAverageFactor(averageModel()))
}

func TestAverageFactorAbsentWhenDisabled(t *testing.T) {
	b := builtBuilder(t, simpleModel(numericalTree(0, 0.5, -1, 1)))
	payload := b.Node(b.Root()).Payload.(*Main)
	require.Nil(t, payload.AverageFactor)
}

func TestLoadDataCounts(t *testing.T) {
	b := builtBuilder(t, simpleModel(numericalTree(0, 0.5, -1, 1)))
	require.NoError(t, b.LoadDataCounts([][]uint64{{10, 7, 3}}))
	function := b.Node(b.Node(b.Root()).Children[0])
	head := b.Node(function.Children[0])
	require.Equal(t, uint64(10), *head.DataCount)
	require.Equal(t, uint64(7), *b.Node(head.Children[0]).DataCount)

	err := b.LoadDataCounts([][]uint64{{1}})
	require.Error(t, err)
}

func TestSplitIntoTUs(t *testing.T) {
	trees := []model.Tree[float64]{
		numericalTree(0, 0.5, -1, 1),
		numericalTree(1, 1.5, -2, 2),
		numericalTree(2, 2.5, -3, 3),
	}
	b := builtBuilder(t, simpleModel(trees...))
	require.NoError(t, b.SplitIntoTUs(2))

	function := b.Node(b.Node(b.Root()).Children[0])
	require.Len(t, function.Children, 2)
	var treeIDs []int32
	for i, tuID := range function.Children {
		tu := b.Node(tuID)
		payload, isTU := tu.Payload.(*TranslationUnit)
		require.True(t, isTU)
		require.Equal(t, int32(i), payload.UnitID)
		require.Len(t, tu.Children, 1)
		inner := b.Node(tu.Children[0])
		_, isFunction := inner.Payload.(*Function)
		require.True(t, isFunction)
		for _, head := range inner.Children {
			treeIDs = append(treeIDs, b.Node(head).TreeID)
		}
	}
	// The union of trees across units equals the pre-split set, in order.
	require.Equal(t, []int32{0, 1, 2}, treeIDs)
}

func TestSplitIntoTUsMoreUnitsThanTrees(t *testing.T) {
	trees := []model.Tree[float64]{
		numericalTree(0, 0.5, -1, 1),
		numericalTree(1, 1.5, -2, 2),
	}
	b := builtBuilder(t, simpleModel(trees...))
	require.NoError(t, b.SplitIntoTUs(5))
	function := b.Node(b.Node(b.Root()).Children[0])
	require.Len(t, function.Children, 2)
}

func TestSplitIntoTUsTwiceFails(t *testing.T) {
	b := builtBuilder(t, simpleModel(numericalTree(0, 0.5, -1, 1)))
	require.NoError(t, b.SplitIntoTUs(1))
	err := b.SplitIntoTUs(1)
	require.Error(t, err)
	require.Equal(t, tcerr.KindInvalidState, tcerr.KindOf(err))
}

func TestSplitIntoTUsNoOp(t *testing.T) {
	b := builtBuilder(t, simpleModel(numericalTree(0, 0.5, -1, 1)))
	require.NoError(t, b.SplitIntoTUs(0))
	function := b.Node(b.Node(b.Root()).Children[0])
	_, isFunction := function.Payload.(*Function)
	require.True(t, isFunction)
	require.Len(t, function.Children, 1)
}

func categoricalTree(splitIndex int32, categories []uint32) model.Tree[float64] {
	return model.Tree[float64]{Nodes: []model.Node[float64]{
		{Type: model.CategoricalTestNode, SplitIndex: splitIndex, CategoryList: categories,
			LeftChild: 1, RightChild: 2},
		{Type: model.LeafNode, LeafValue: -1, LeftChild: -1, RightChild: -1},
		{Type: model.LeafNode, LeafValue: 1, LeftChild: -1, RightChild: -1},
	}}
}

func TestGenerateIsCategoricalArray(t *testing.T) {
	b := builtBuilder(t, simpleModel(numericalTree(0, 0.5, -1, 1), categoricalTree(2, []uint32{1, 3})))
	b.GenerateIsCategoricalArray()
	require.Equal(t, []bool{false, false, true}, b.Meta().IsCategorical)

	// Applying the pass twice yields the same array.
	b.GenerateIsCategoricalArray()
	require.Equal(t, []bool{false, false, true}, b.Meta().IsCategorical)
}

func TestQuantizeThresholds(t *testing.T) {
	trees := []model.Tree[float64]{
		numericalTree(0, 0.5, -1, 1),
		numericalTree(0, -1.5, -2, 2),
		numericalTree(1, 0.5, -3, 3),
	}
	b := builtBuilder(t, simpleModel(trees...))
	require.NoError(t, b.QuantizeThresholds())

	quantizer := b.Node(b.Node(b.Root()).Children[0])
	payload, isQuantizer := quantizer.Payload.(*Quantizer)
	require.True(t, isQuantizer)
	require.Equal(t, [][]float64{{-1.5, 0.5}, {0.5}, nil}, payload.ThresholdList)

	for id := 0; id < b.NumNodes(); id++ {
		if p, ok := b.Node(NodeID(id)).Payload.(*NumericalCondition); ok {
			require.NotNil(t, p.QuantizedThreshold)
			index := *p.QuantizedThreshold / 2
			require.Less(t, index, len(payload.ThresholdList[p.SplitIndex]))
			require.Equal(t, p.Threshold, payload.ThresholdList[p.SplitIndex][index])
		}
	}
}

func TestQuantizeZeroQuantized(t *testing.T) {
	trees := []model.Tree[float64]{
		numericalTree(0, -1.0, -1, 1),
		numericalTree(0, 0.0, -2, 2),
		numericalTree(0, 2.0, -3, 3),
		numericalTree(1, 0.5, -4, 4),
	}
	b := builtBuilder(t, simpleModel(trees...))
	require.NoError(t, b.QuantizeThresholds())

	zeroQuantized := map[uint32]int{}
	for id := 0; id < b.NumNodes(); id++ {
		if p, ok := b.Node(NodeID(id)).Payload.(*NumericalCondition); ok {
			zeroQuantized[p.SplitIndex] = p.ZeroQuantized
		}
	}
	// Feature 0: lists [-1, 0, 2]; 0.0 sits at index 1 -> 2.
	require.Equal(t, 2, zeroQuantized[0])
	// Feature 1: list [0.5]; insertion point of 0.0 is 0 -> -1.
	require.Equal(t, -1, zeroQuantized[1])
}

func TestQuantizeLeavesInfiniteThresholdsAlone(t *testing.T) {
	trees := []model.Tree[float64]{
		numericalTree(0, math.Inf(1), -1, 1),
	}
	b := builtBuilder(t, simpleModel(trees...))
	require.NoError(t, b.QuantizeThresholds())
	quantizer := b.Node(b.Node(b.Root()).Children[0])
	payload := quantizer.Payload.(*Quantizer)
	require.Empty(t, payload.ThresholdList[0])
	for id := 0; id < b.NumNodes(); id++ {
		if p, ok := b.Node(NodeID(id)).Payload.(*NumericalCondition); ok {
			require.Nil(t, p.QuantizedThreshold)
		}
	}
}

func TestQuantizeTwiceFails(t *testing.T) {
	b := builtBuilder(t, simpleModel(numericalTree(0, 0.5, -1, 1)))
	require.NoError(t, b.QuantizeThresholds())
	err := b.QuantizeThresholds()
	require.Error(t, err)
	require.Equal(t, tcerr.KindInvalidState, tcerr.KindOf(err))
}

func TestDumpDeterministic(t *testing.T) {
	build := func() string {
		b := builtBuilder(t, simpleModel(numericalTree(0, 0.5, -1, 1), categoricalTree(2, []uint32{1, 3})))
		b.GenerateIsCategoricalArray()
		require.NoError(t, b.QuantizeThresholds())
		return b.Dump()
	}
	first := build()
	second := build()
	require.Equal(t, first, second)
	require.Contains(t, first, "MainNode")
	require.Contains(t, first, "QuantizerNode")
	require.Contains(t, first, "CategoricalConditionNode")
	require.Contains(t, first, "leaf_vector_shape = [1, 1], num_feature = 3")
}

func TestQuantizeAfterSplitKeepsOrdering(t *testing.T) {
	trees := []model.Tree[float64]{
		numericalTree(0, 0.5, -1, 1),
		numericalTree(1, 1.5, -2, 2),
	}
	b := builtBuilder(t, simpleModel(trees...))
	require.NoError(t, b.SplitIntoTUs(2))
	require.NoError(t, b.QuantizeThresholds())

	// Main -> Quantizer -> Function -> TranslationUnits.
	quantizer := b.Node(b.Node(b.Root()).Children[0])
	_, isQuantizer := quantizer.Payload.(*Quantizer)
	require.True(t, isQuantizer)
	function := b.Node(quantizer.Children[0])
	_, isFunction := function.Payload.(*Function)
	require.True(t, isFunction)
	require.Len(t, function.Children, 2)
	for _, tu := range function.Children {
		_, isTU := b.Node(tu).Payload.(*TranslationUnit)
		require.True(t, isTU)
	}
}

func TestSplitAfterQuantizeFails(t *testing.T) {
	b := builtBuilder(t, simpleModel(numericalTree(0, 0.5, -1, 1)))
	require.NoError(t, b.QuantizeThresholds())
	err := b.SplitIntoTUs(2)
	require.Error(t, err)
	require.Equal(t, tcerr.KindInvalidState, tcerr.KindOf(err))
}
