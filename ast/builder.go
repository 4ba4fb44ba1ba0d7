package ast

import (
	"go.uber.org/zap"

	"github.com/tarstars/tree_codegen/model"
	"github.com/tarstars/tree_codegen/tcerr"
)

//Builder owns the arena of AST nodes and applies the lowering and
//optimization passes. Passes assume their predecessors: Build must run first,
//and QuantizeThresholds must run after SplitIntoTUs when both are requested.
type Builder struct {
	arena []Node
	root  NodeID
	meta  ModelMeta
	log   *zap.Logger
}

//NewBuilder creates an empty builder. A nil logger disables progress output.
func NewBuilder(log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{root: NilNode, log: log}
}

//Node resolves an arena id. The pointer stays valid only until the next
//addNode call.
func (b *Builder) Node(id NodeID) *Node {
	return &b.arena[id]
}

//Root returns the Main node's id, or NilNode before Build.
func (b *Builder) Root() NodeID {
	return b.root
}

//Meta exposes the shared model metadata.
func (b *Builder) Meta() *ModelMeta {
	return &b.meta
}

//NumNodes reports the arena size.
func (b *Builder) NumNodes() int {
	return len(b.arena)
}

func (b *Builder) addNode(parent NodeID, payload Payload) NodeID {
	id := NodeID(len(b.arena))
	b.arena = append(b.arena, Node{
		Payload:  payload,
		Parent:   parent,
		TreeID:   -1,
		TreeNode: -1,
	})
	return id
}

func computeAverageFactor(m *model.Model) []int32 {
	if !m.AverageTreeOutput {
		return nil
	}
	maxNumClass := m.MaxNumClass()
	averageFactor := make([]int32, int(m.NumTarget)*int(maxNumClass))
	for treeID := 0; treeID < m.NumTree(); treeID++ {
		targetID := m.TargetID[treeID]
		classID := m.ClassID[treeID]
		switch {
		case targetID < 0 && classID < 0:
			for t := int32(0); t < m.NumTarget; t++ {
				for k := int32(0); k < m.NumClass[t]; k++ {
					averageFactor[t*maxNumClass+k]++
				}
			}
		case targetID < 0:
			for t := int32(0); t < m.NumTarget; t++ {
				averageFactor[t*maxNumClass+classID]++
			}
		case classID < 0:
			for k := int32(0); k < m.NumClass[targetID]; k++ {
				averageFactor[targetID*maxNumClass+k]++
			}
		default:
			averageFactor[targetID*maxNumClass+classID]++
		}
	}
	return averageFactor
}

//Build lowers a model into the initial AST: Main -> Function -> one subtree
//per tree, transcribing node ids and tree ids from the source trees.
func (b *Builder) Build(m *model.Model) error {
	if b.root != NilNode {
		return tcerr.New(tcerr.KindInvalidState, "Build called twice on the same builder")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	b.meta = ModelMeta{
		NumTarget:       m.NumTarget,
		NumClass:        append([]int32(nil), m.NumClass...),
		LeafVectorShape: m.LeafVectorShape,
		NumFeature:      m.NumFeature,
		SigmoidAlpha:    m.SigmoidAlpha,
		RatioC:          m.RatioC,
		TypeStr:         m.ThresholdType(),
	}

	b.root = b.addNode(NilNode, &Main{
		BaseScores:    append([]float64(nil), m.BaseScores...),
		AverageFactor: computeAverageFactor(m),
		Postprocessor: m.Postprocessor,
	})
	function := b.addNode(b.root, &Function{})
	b.Node(b.root).Children = append(b.Node(b.root).Children, function)

	switch trees := m.Trees.(type) {
	case model.Float32Trees:
		for treeID := range trees {
			head := buildFromTree(b, &trees[treeID], int32(treeID), m.TargetID[treeID], m.ClassID[treeID], 0, function)
			b.Node(function).Children = append(b.Node(function).Children, head)
		}
	case model.Float64Trees:
		for treeID := range trees {
			head := buildFromTree(b, &trees[treeID], int32(treeID), m.TargetID[treeID], m.ClassID[treeID], 0, function)
			b.Node(function).Children = append(b.Node(function).Children, head)
		}
	default:
		return tcerr.New(tcerr.KindInvalidModel, "unrecognized tree variant")
	}
	return nil
}

//buildFromTree transcribes one source-tree node and its descendants into the
//arena, returning the id of the created node.
func buildFromTree[T model.Element](b *Builder, tree *model.Tree[T], treeID, targetID, classID int32, nid int, parent NodeID) NodeID {
	var id NodeID
	if tree.IsLeaf(nid) {
		var leafOutput []float64
		if b.meta.LeafVectorShape == [2]int32{1, 1} {
			leafOutput = []float64{float64(tree.LeafValue(nid))}
		} else {
			vector := tree.LeafVector(nid)
			leafOutput = make([]float64, len(vector))
			for i, v := range vector {
				leafOutput[i] = float64(v)
			}
		}
		id = b.addNode(parent, &Output{
			TargetID:   targetID,
			ClassID:    classID,
			LeafOutput: leafOutput,
		})
	} else {
		if tree.NodeKind(nid) == model.NumericalTestNode {
			id = b.addNode(parent, &NumericalCondition{
				SplitIndex:    uint32(tree.SplitIndex(nid)),
				DefaultLeft:   tree.DefaultLeft(nid),
				Op:            tree.ComparisonOp(nid),
				Threshold:     float64(tree.Threshold(nid)),
				ZeroQuantized: -1,
			})
		} else {
			id = b.addNode(parent, &CategoricalCondition{
				SplitIndex:             uint32(tree.SplitIndex(nid)),
				DefaultLeft:            tree.DefaultLeft(nid),
				CategoryList:           append([]uint32(nil), tree.CategoryList(nid)...),
				CategoryListRightChild: tree.CategoryListRightChild(nid),
			})
		}
		if tree.HasGain(nid) {
			gain := tree.Gain(nid)
			switch p := b.Node(id).Payload.(type) {
			case *NumericalCondition:
				p.Gain = &gain
			case *CategoricalCondition:
				p.Gain = &gain
			}
		}
		left := buildFromTree(b, tree, treeID, targetID, classID, tree.LeftChild(nid), id)
		right := buildFromTree(b, tree, treeID, targetID, classID, tree.RightChild(nid), id)
		b.Node(id).Children = append(b.Node(id).Children, left, right)
	}
	node := b.Node(id)
	node.TreeID = treeID
	node.TreeNode = int32(nid)
	if tree.HasDataCount(nid) {
		count := tree.DataCount(nid)
		node.DataCount = &count
	}
	if tree.HasSumHess(nid) {
		hess := tree.SumHess(nid)
		node.SumHess = &hess
	}
	return id
}
