// Package annotate runs a tree-ensemble model over a training matrix and
// counts how often each tree node is visited. The counts seed the branch
// prediction hints of the generated C code.
package annotate

import (
	"math"

	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/tarstars/tree_codegen/model"
	"github.com/tarstars/tree_codegen/tcerr"
	"github.com/tarstars/tree_codegen/threading"
)

//Counts is the annotator output: counts[tree_id][node_id] visit counts.
type Counts [][]uint64

//featureRow is a thread-local view of one matrix row: a value and a presence
//flag per feature column.
type featureRow struct {
	values  []float64
	present []bool
}

func newFeatureRow(numCol uint64) *featureRow {
	return &featureRow{
		values:  make([]float64, numCol),
		present: make([]bool, numCol),
	}
}

//traverse walks one tree for one row, incrementing the visit count of every
//node on the path. Missing features follow the default child; categorical
//tests match the generated C exactly: out-of-range or negative values fail
//the membership clause before any inversion is applied.
func traverse[T model.Element](tree *model.Tree[T], row *featureRow, nid int, outCounts []uint64) {
	outCounts[nid]++
	if tree.IsLeaf(nid) {
		return
	}
	splitIndex := tree.SplitIndex(nid)
	if int(splitIndex) >= len(row.present) || !row.present[splitIndex] {
		traverse(tree, row, tree.DefaultChild(nid), outCounts)
		return
	}
	fvalue := row.values[splitIndex]
	var result bool
	if tree.NodeKind(nid) == model.NumericalTestNode {
		result = model.CompareWithOp(fvalue, tree.ComparisonOp(nid), float64(tree.Threshold(nid)))
	} else {
		result = categoryMatches(fvalue, tree.CategoryList(nid))
		if tree.CategoryListRightChild(nid) {
			result = !result
		}
	}
	if result {
		traverse(tree, row, tree.LeftChild(nid), outCounts)
	} else {
		traverse(tree, row, tree.RightChild(nid), outCounts)
	}
}

func categoryMatches(fvalue float64, categoryList []uint32) bool {
	if math.IsNaN(fvalue) || fvalue < 0 || fvalue > float64(uint32(1)<<24) {
		return false
	}
	category := uint32(fvalue)
	lo, hi := 0, len(categoryList)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case categoryList[mid] == category:
			return true
		case categoryList[mid] < category:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return false
}

//fillRowDense populates the thread-local row from a matrix row and reports an
//error for NaN cells when the sentinel is not NaN.
func fillRowDense[E model.Element](dmat *model.Dense[E], rid uint64, row *featureRow) error {
	nanMissing := dmat.NaNMissing()
	for j, v := range dmat.Row(rid) {
		value := float64(v)
		if math.IsNaN(value) {
			if !nanMissing {
				return tcerr.New(tcerr.KindInvalidModel,
					"the missing_value argument must be set to NaN if there is any NaN in the matrix")
			}
		} else if nanMissing || v != dmat.MissingValue {
			row.values[j] = value
			row.present[j] = true
		}
	}
	return nil
}

func clearRow(row *featureRow) {
	for j := range row.present {
		row.present[j] = false
	}
}

type rowFiller func(rid uint64, row *featureRow) error

func denseFiller[E model.Element](dmat *model.Dense[E]) rowFiller {
	return func(rid uint64, row *featureRow) error {
		return fillRowDense(dmat, rid, row)
	}
}

func csrFiller[E model.Element](dmat *model.CSR[E]) rowFiller {
	return func(rid uint64, row *featureRow) error {
		for i := dmat.RowPtr[rid]; i < dmat.RowPtr[rid+1]; i++ {
			row.values[dmat.ColInd[i]] = float64(dmat.Data[i])
			row.present[dmat.ColInd[i]] = true
		}
		return nil
	}
}

//treeWalker visits every tree of the model for one prepared row, writing into
//the flat per-thread counts buffer at the given tree offsets.
type treeWalker func(row *featureRow, counts []uint64, countRowPtr []uint64)

func walkerFor(m *model.Model) (treeWalker, []uint64) {
	countRowPtr := []uint64{0}
	var walker treeWalker
	switch trees := m.Trees.(type) {
	case model.Float32Trees:
		for i := range trees {
			countRowPtr = append(countRowPtr, countRowPtr[len(countRowPtr)-1]+uint64(trees[i].NumNodes()))
		}
		walker = func(row *featureRow, counts []uint64, ptr []uint64) {
			for i := range trees {
				traverse(&trees[i], row, 0, counts[ptr[i]:ptr[i+1]])
			}
		}
	case model.Float64Trees:
		for i := range trees {
			countRowPtr = append(countRowPtr, countRowPtr[len(countRowPtr)-1]+uint64(trees[i].NumNodes()))
		}
		walker = func(row *featureRow, counts []uint64, ptr []uint64) {
			for i := range trees {
				traverse(&trees[i], row, 0, counts[ptr[i]:ptr[i+1]])
			}
		}
	}
	return walker, countRowPtr
}

//Annotate traverses every tree for every row of dmat and reduces the
//per-thread visit counts into counts[tree][node]. Parallelism is over rows,
//chunked into 20 bands with progress reported between bands when verbose is
//positive.
func Annotate(m *model.Model, dmat model.DMatrix, nthread, verbose int, log *zap.Logger) (Counts, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if dmat == nil {
		return nil, tcerr.New(tcerr.KindInvalidModel, "dangling data matrix reference detected")
	}
	walker, countRowPtr := walkerFor(m)
	if walker == nil {
		return nil, tcerr.New(tcerr.KindInvalidModel, "unrecognized tree variant")
	}
	ntree := m.NumTree()
	totalNodes := countRowPtr[ntree]
	threadConfig := threading.ConfigureThreadConfig(nthread)

	// Flat [nthread, total_nodes] buffer; each worker owns one slice.
	countsTloc := tensor.New(tensor.WithShape(threadConfig.NThread, int(totalNodes)), tensor.Of(tensor.Uint64))
	tlocData := countsTloc.Data().([]uint64)

	var filler rowFiller
	switch concrete := dmat.(type) {
	case *model.Dense[float32]:
		filler = denseFiller(concrete)
	case *model.Dense[float64]:
		filler = denseFiller(concrete)
	case *model.CSR[float32]:
		filler = csrFiller(concrete)
	case *model.CSR[float64]:
		filler = csrFiller(concrete)
	default:
		return nil, tcerr.New(tcerr.KindInvalidModel, "unrecognized data matrix variant")
	}

	rows := make([]*featureRow, threadConfig.NThread)
	for i := range rows {
		rows[i] = newFeatureRow(dmat.NumCol())
	}

	numRow := dmat.NumRow()
	pstep := (numRow + 19) / 20
	for rbegin := uint64(0); rbegin < numRow; rbegin += pstep {
		rend := rbegin + pstep
		if rend > numRow {
			rend = numRow
		}
		err := threading.ParallelFor(rbegin, rend, threadConfig, threading.Static(0),
			func(rid uint64, threadID int) error {
				row := rows[threadID]
				if err := filler(rid, row); err != nil {
					return err
				}
				off := uint64(threadID) * totalNodes
				walker(row, tlocData[off:off+totalNodes], countRowPtr)
				clearRow(row)
				return nil
			})
		if err != nil {
			return nil, err
		}
		if verbose > 0 {
			log.Info("rows processed", zap.Uint64("done", rend), zap.Uint64("total", numRow))
		}
	}

	// Reduce per-thread counts in thread order; the result is deterministic.
	reduced := make([]uint64, totalNodes)
	for tid := 0; tid < threadConfig.NThread; tid++ {
		off := uint64(tid) * totalNodes
		for i := uint64(0); i < totalNodes; i++ {
			reduced[i] += tlocData[off+i]
		}
	}

	counts := make(Counts, ntree)
	for i := 0; i < ntree; i++ {
		counts[i] = append([]uint64(nil), reduced[countRowPtr[i]:countRowPtr[i+1]]...)
	}
	return counts, nil
}
