package codegen

import (
	"fmt"

	"github.com/tarstars/tree_codegen/ast"
	"github.com/tarstars/tree_codegen/tcerr"
)

//handleOutputNode emits the accumulation statements of one leaf. The result
//array inside predict() is the slice output(row, :, :), indexed by
//target_id * MAX_N_CLASS + class_id.
func handleOutputNode(b *ast.Builder, id ast.NodeID, payload *ast.Output, gencode *CodeCollection) error {
	if len(b.Node(id).Children) != 0 {
		return tcerr.New(tcerr.KindInvalidState, "an output node must have no children")
	}
	meta := b.Meta()
	numTarget := meta.NumTarget
	numClass := meta.NumClass
	maxNumClass := meta.MaxNumClass()
	leaf := payload.LeafOutput

	checkShape := func(rows, cols int32) error {
		if meta.LeafVectorShape != [2]int32{rows, cols} {
			return tcerr.Errorf(tcerr.KindInvalidModel,
				"leaf at tree %d node %d implies leaf_vector_shape [%d, %d], model declares [%d, %d]",
				b.Node(id).TreeID, b.Node(id).TreeNode, rows, cols,
				meta.LeafVectorShape[0], meta.LeafVectorShape[1])
		}
		return nil
	}
	checkLen := func(expected int32) error {
		if int32(len(leaf)) != expected {
			return tcerr.Errorf(tcerr.KindInvalidModel,
				"leaf at tree %d node %d must carry %d values, got %d",
				b.Node(id).TreeID, b.Node(id).TreeNode, expected, len(leaf))
		}
		return nil
	}

	push := func(offset int32, value float64) {
		gencode.PushFragment(fmt.Sprintf("result[%d] += %s;", offset, formatLeaf(value, meta.TypeStr)))
	}

	switch {
	case payload.TargetID < 0 && payload.ClassID < 0:
		// Output for all targets and all classes
		if err := checkShape(numTarget, maxNumClass); err != nil {
			return err
		}
		if err := checkLen(numTarget * maxNumClass); err != nil {
			return err
		}
		for targetID := int32(0); targetID < numTarget; targetID++ {
			for classID := int32(0); classID < numClass[targetID]; classID++ {
				push(targetID*maxNumClass+classID, leaf[targetID*maxNumClass+classID])
			}
		}
	case payload.TargetID < 0:
		// Output for all targets and a single class
		if err := checkShape(numTarget, 1); err != nil {
			return err
		}
		if err := checkLen(numTarget); err != nil {
			return err
		}
		classID := payload.ClassID
		for targetID := int32(0); targetID < numTarget; targetID++ {
			push(targetID*maxNumClass+classID, leaf[targetID])
		}
	case payload.ClassID < 0:
		// Output for all classes and a single target
		if err := checkShape(1, maxNumClass); err != nil {
			return err
		}
		if err := checkLen(maxNumClass); err != nil {
			return err
		}
		targetID := payload.TargetID
		for classID := int32(0); classID < numClass[targetID]; classID++ {
			push(targetID*maxNumClass+classID, leaf[classID])
		}
	default:
		// Output for a single target and a single class
		if err := checkShape(1, 1); err != nil {
			return err
		}
		if err := checkLen(1); err != nil {
			return err
		}
		push(payload.TargetID*maxNumClass+payload.ClassID, leaf[0])
	}
	return nil
}
