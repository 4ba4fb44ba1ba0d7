package ast

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/tarstars/tree_codegen/tcerr"
)

//LoadDataCounts overwrites the data_count of every node that has a source
//counterpart with the visit count recorded by the branch annotator. The
//counts layout is counts[tree_id][node_id].
func (b *Builder) LoadDataCounts(counts [][]uint64) error {
	for id := range b.arena {
		node := &b.arena[id]
		if node.TreeID < 0 || node.TreeNode < 0 {
			continue
		}
		if int(node.TreeID) >= len(counts) || int(node.TreeNode) >= len(counts[node.TreeID]) {
			return tcerr.Errorf(tcerr.KindInvalidParam,
				"annotation does not cover tree %d node %d; was it produced for a different model?",
				node.TreeID, node.TreeNode)
		}
		count := counts[node.TreeID][node.TreeNode]
		node.DataCount = &count
	}
	return nil
}

//SplitIntoTUs partitions the per-tree subtrees under the top Function node
//into groups of ceil(ntree/numTU) contiguous trees, one translation unit per
//group; when the trees run out early, fewer than numTU units are created. A
//non-positive numTU is a no-op. Unit ids continue any numbering already present in the arena.
func (b *Builder) SplitIntoTUs(numTU int) error {
	if numTU <= 0 {
		b.log.Info("Parallel compilation disabled; all member trees will be " +
			"dumped to a single source file. This may increase " +
			"compilation time and memory usage.")
		return nil
	}
	b.log.Info("Parallel compilation enabled; member trees will be divided into translation units",
		zap.Int("num_translation_units", numTU))
	main := b.Node(b.root)
	if len(main.Children) != 1 {
		return tcerr.Errorf(tcerr.KindInvalidState,
			"Main must have exactly one child, got %d", len(main.Children))
	}
	topFunc := main.Children[0]
	if _, ok := b.Node(topFunc).Payload.(*Function); !ok {
		return tcerr.New(tcerr.KindInvalidState, "SplitIntoTUs requires a Function directly under Main")
	}

	treeHead := append([]NodeID(nil), b.Node(topFunc).Children...)
	for _, head := range treeHead {
		switch b.Node(head).Payload.(type) {
		case *NumericalCondition, *CategoricalCondition, *Output:
		default:
			return tcerr.New(tcerr.KindInvalidState,
				"SplitIntoTUs called twice: the Function already holds translation units")
		}
	}

	currentNumTU := 0
	for id := range b.arena {
		if _, ok := b.arena[id].Payload.(*TranslationUnit); ok {
			currentNumTU++
		}
	}

	ntree := len(treeHead)
	unitSize := (ntree + numTU - 1) / numTU
	var tuList []NodeID
	for unitID := 0; unitID < numTU; unitID++ {
		treeBegin := unitID * unitSize
		treeEnd := (unitID + 1) * unitSize
		if treeEnd > ntree {
			treeEnd = ntree
		}
		if treeBegin >= treeEnd {
			continue
		}
		tu := b.addNode(topFunc, &TranslationUnit{UnitID: int32(currentNumTU + unitID)})
		function := b.addNode(tu, &Function{})
		b.Node(tu).Children = append(b.Node(tu).Children, function)
		for treeID := treeBegin; treeID < treeEnd; treeID++ {
			head := treeHead[treeID]
			b.Node(head).Parent = function
			b.Node(function).Children = append(b.Node(function).Children, head)
		}
		tuList = append(tuList, tu)
	}
	b.Node(topFunc).Children = tuList
	return nil
}

//GenerateIsCategoricalArray records which features appear in a categorical
//condition. The result lives in the shared metadata and feeds both the
//is_categorical[] array in main.c and the quantize loop's feature skip.
func (b *Builder) GenerateIsCategoricalArray() {
	isCategorical := make([]bool, b.meta.NumFeature)
	for id := range b.arena {
		if p, ok := b.arena[id].Payload.(*CategoricalCondition); ok {
			isCategorical[p.SplitIndex] = true
		}
	}
	b.meta.IsCategorical = isCategorical
}

//QuantizeThresholds collects the finite thresholds of every feature into
//ascending unique lists, rewrites each finite numerical threshold to twice
//its list index and inserts a Quantizer node between Main and the top
//Function. Calling it twice is an InvalidState error.
func (b *Builder) QuantizeThresholds() error {
	main := b.Node(b.root)
	if len(main.Children) != 1 {
		return tcerr.Errorf(tcerr.KindInvalidState,
			"Main must have exactly one child, got %d", len(main.Children))
	}
	topFunc := main.Children[0]
	if _, ok := b.Node(topFunc).Payload.(*Function); !ok {
		return tcerr.New(tcerr.KindInvalidState,
			"QuantizeThresholds called twice: Main's child is already a Quantizer")
	}

	cutPts := make([][]float64, b.meta.NumFeature)
	seen := make([]map[float64]struct{}, b.meta.NumFeature)
	for i := range seen {
		seen[i] = make(map[float64]struct{})
	}
	for id := range b.arena {
		p, ok := b.arena[id].Payload.(*NumericalCondition)
		if !ok {
			continue
		}
		if p.QuantizedThreshold != nil {
			return tcerr.New(tcerr.KindInvalidState, "threshold is already quantized")
		}
		if !math.IsInf(p.Threshold, 0) {
			if _, dup := seen[p.SplitIndex][p.Threshold]; !dup {
				seen[p.SplitIndex][p.Threshold] = struct{}{}
				cutPts[p.SplitIndex] = append(cutPts[p.SplitIndex], p.Threshold)
			}
		}
	}
	for i := range cutPts {
		sort.Float64s(cutPts[i])
	}

	// Rewrite finite thresholds as bin indices; infinite thresholds stay.
	for id := range b.arena {
		p, ok := b.arena[id].Payload.(*NumericalCondition)
		if !ok || math.IsInf(p.Threshold, 0) {
			continue
		}
		list := cutPts[p.SplitIndex]
		loc := sort.SearchFloat64s(list, p.Threshold)
		if loc == len(list) || list[loc] != p.Threshold {
			return tcerr.Errorf(tcerr.KindInvalidState,
				"threshold %v of feature %d vanished from its threshold list", p.Threshold, p.SplitIndex)
		}
		quantized := loc * 2
		p.QuantizedThreshold = &quantized
		zeroLoc := sort.SearchFloat64s(list, 0.0)
		p.ZeroQuantized = zeroLoc * 2
		if zeroLoc == len(list) || list[zeroLoc] != 0.0 {
			p.ZeroQuantized--
		}
	}

	quantizer := b.addNode(b.root, &Quantizer{ThresholdList: cutPts})
	b.Node(quantizer).Children = append(b.Node(quantizer).Children, topFunc)
	b.Node(topFunc).Parent = quantizer
	b.Node(b.root).Children[0] = quantizer
	return nil
}
