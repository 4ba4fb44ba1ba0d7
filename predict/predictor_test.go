package predict

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tarstars/tree_codegen/model"
	"github.com/tarstars/tree_codegen/threading"
)

func TestSplitBatchEvenAndRemainder(t *testing.T) {
	require.Equal(t, []uint64{0, 3, 6, 9}, splitBatch(9, 3))
	require.Equal(t, []uint64{0, 4, 7, 10}, splitBatch(10, 3))
	require.Equal(t, []uint64{0, 1}, splitBatch(1, 1))
	require.Equal(t, []uint64{0, 1, 2}, splitBatch(2, 2))
}

func TestEntry32Encoding(t *testing.T) {
	buf := newBuffer32(3)
	require.Equal(t, missing32, buf[0])

	buf.set(1, 1.5)
	require.Equal(t, entry32(math.Float32bits(1.5)), buf[1])

	buf.reset(1)
	require.Equal(t, missing32, buf[1])
}

func TestEntry64Encoding(t *testing.T) {
	buf := newBuffer64(2)
	// The low word aliases the missing tag of the C union on little-endian
	// targets.
	require.Equal(t, uint64(0xFFFFFFFF), uint64(buf[0])&0xFFFFFFFF)

	buf.set(0, -2.25)
	require.Equal(t, entry64(math.Float64bits(-2.25)), buf[0])
	buf.clear()
	require.Equal(t, missing64, buf[0])
}

//decodeEntries64 reads a C-visible Entry vector back into Go for inspection.
func decodeEntries64(data unsafe.Pointer, n int) []entry64 {
	return append([]entry64(nil), unsafe.Slice((*entry64)(data), n)...)
}

func TestApplyBatchDenseFillsAndResets(t *testing.T) {
	dmat, err := model.NewDense([]float64{
		1.0, math.NaN(), 3.0,
		4.0, 5.0, math.NaN(),
	}, math.NaN(), 2, 3)
	require.NoError(t, err)

	buf := newBuffer64(3)
	out := make([]float64, 2)
	var seen [][]entry64
	call := func(data unsafe.Pointer, predMargin int32, result unsafe.Pointer) {
		seen = append(seen, decodeEntries64(data, 3))
		*(*float64)(result) = float64(len(seen))
	}
	outPtr := func(rid uint64) unsafe.Pointer { return unsafe.Pointer(&out[rid]) }

	require.NoError(t, applyBatchDense(dmat, buf, 0, 2, 1, call, outPtr))
	require.Len(t, seen, 2)

	// Row 0: features 0 and 2 present, feature 1 missing.
	require.Equal(t, entry64(math.Float64bits(1.0)), seen[0][0])
	require.Equal(t, missing64, seen[0][1])
	require.Equal(t, entry64(math.Float64bits(3.0)), seen[0][2])
	// Row 1 starts from a clean buffer: the previous row's slots were reset.
	require.Equal(t, entry64(math.Float64bits(4.0)), seen[1][0])
	require.Equal(t, entry64(math.Float64bits(5.0)), seen[1][1])
	require.Equal(t, missing64, seen[1][2])

	require.Equal(t, []float64{1, 2}, out)
}

func TestApplyBatchDenseSentinelMissing(t *testing.T) {
	dmat, err := model.NewDense([]float64{-999, 2}, -999, 1, 2)
	require.NoError(t, err)
	buf := newBuffer64(2)
	out := make([]float64, 1)
	call := func(data unsafe.Pointer, predMargin int32, result unsafe.Pointer) {
		entries := decodeEntries64(data, 2)
		if entries[0] == missing64 && entries[1] == entry64(math.Float64bits(2)) {
			*(*float64)(result) = 1
		}
	}
	outPtr := func(rid uint64) unsafe.Pointer { return unsafe.Pointer(&out[rid]) }
	require.NoError(t, applyBatchDense(dmat, buf, 0, 1, 0, call, outPtr))
	require.Equal(t, []float64{1}, out)
}

func TestApplyBatchDenseRejectsNaNWithoutNaNSentinel(t *testing.T) {
	dmat, err := model.NewDense([]float64{math.NaN(), 2}, -999, 1, 2)
	require.NoError(t, err)
	buf := newBuffer64(2)
	out := make([]float64, 1)
	call := func(data unsafe.Pointer, predMargin int32, result unsafe.Pointer) {}
	outPtr := func(rid uint64) unsafe.Pointer { return unsafe.Pointer(&out[rid]) }
	require.Error(t, applyBatchDense(dmat, buf, 0, 1, 0, call, outPtr))
}

func TestApplyBatchCSROnlyPresentColumns(t *testing.T) {
	// Two rows over four columns; row 0 holds columns 1 and 3, row 1 is empty.
	dmat, err := model.NewCSR([]float64{7, 9}, []uint32{1, 3}, []uint64{0, 2, 2}, 2, 4)
	require.NoError(t, err)

	buf := newBuffer64(4)
	out := make([]float64, 2)
	var seen [][]entry64
	call := func(data unsafe.Pointer, predMargin int32, result unsafe.Pointer) {
		seen = append(seen, decodeEntries64(data, 4))
	}
	outPtr := func(rid uint64) unsafe.Pointer { return unsafe.Pointer(&out[rid]) }
	require.NoError(t, applyBatchCSR(dmat, buf, 0, 2, 0, call, outPtr))

	require.Equal(t, missing64, seen[0][0])
	require.Equal(t, entry64(math.Float64bits(7)), seen[0][1])
	require.Equal(t, missing64, seen[0][2])
	require.Equal(t, entry64(math.Float64bits(9)), seen[0][3])
	for j := 0; j < 4; j++ {
		require.Equal(t, missing64, seen[1][j])
	}
}

func TestApplyBatchFloat32InputNarrowing(t *testing.T) {
	dmat, err := model.NewDense([]float32{0.1, 2}, float32(math.NaN()), 1, 2)
	require.NoError(t, err)
	buf := newBuffer32(2)
	out := make([]float32, 1)
	var row []entry32
	call := func(data unsafe.Pointer, predMargin int32, result unsafe.Pointer) {
		row = append([]entry32(nil), unsafe.Slice((*entry32)(data), 2)...)
	}
	outPtr := func(rid uint64) unsafe.Pointer { return unsafe.Pointer(&out[rid]) }
	require.NoError(t, applyBatch(dmat, buf, 0, 1, 0, call, outPtr))
	require.Equal(t, entry32(math.Float32bits(0.1)), row[0])
	require.Equal(t, entry32(math.Float32bits(2)), row[1])
}

func fakePredictor(numTarget int32, numClass []int32, leafType string, fn callFunc) *Predictor {
	maxNumClass := int32(1)
	for _, n := range numClass {
		if n > maxNumClass {
			maxNumClass = n
		}
	}
	return &Predictor{
		threadConfig:  threading.ConfigureThreadConfig(4),
		log:           zap.NewNop(),
		numTarget:     numTarget,
		numClass:      numClass,
		maxNumClass:   maxNumClass,
		numFeature:    2,
		thresholdType: leafType,
		leafOutput:    leafType,
		predictFn:     fn,
	}
}

func TestPredictBatchWritesDisjointRowSlices(t *testing.T) {
	// The fake library writes the value of feature 0 into its result cell, so
	// the output exposes exactly which row each worker processed.
	p := fakePredictor(1, []int32{1}, model.TypeFloat64, func(data unsafe.Pointer, predMargin int32, result unsafe.Pointer) {
		entries := unsafe.Slice((*entry64)(data), 2)
		*(*float64)(result) = math.Float64frombits(uint64(entries[0]))
	})

	const numRow = 100
	data := make([]float64, numRow*2)
	for i := 0; i < numRow; i++ {
		data[i*2] = float64(i)
	}
	dmat, err := model.NewDense(data, math.NaN(), numRow, 2)
	require.NoError(t, err)

	out := make([]float64, p.OutputSize(dmat))
	require.NoError(t, p.PredictBatch(dmat, 0, false, out))
	for i := 0; i < numRow; i++ {
		require.Equal(t, float64(i), out[i])
	}
}

func TestPredictBatchEmptyMatrixReturnsImmediately(t *testing.T) {
	called := false
	p := fakePredictor(1, []int32{1}, model.TypeFloat64, func(data unsafe.Pointer, predMargin int32, result unsafe.Pointer) {
		called = true
	})
	dmat, err := model.NewDense([]float64{}, math.NaN(), 0, 2)
	require.NoError(t, err)
	out := make([]float64, 0)
	require.NoError(t, p.PredictBatch(dmat, 0, false, out))
	require.False(t, called)
}

func TestPredictBatchValidatesOutputBuffer(t *testing.T) {
	p := fakePredictor(1, []int32{1}, model.TypeFloat64, func(data unsafe.Pointer, predMargin int32, result unsafe.Pointer) {})
	dmat, err := model.NewDense([]float64{1, 2}, math.NaN(), 1, 2)
	require.NoError(t, err)

	require.Error(t, p.PredictBatch(dmat, 0, false, make([]float32, 1)))
	require.Error(t, p.PredictBatch(dmat, 0, false, make([]float64, 0)))
	require.Error(t, p.PredictBatch(dmat, 0, false, "not a buffer"))
}

func TestPredictBatchForwardsPredMargin(t *testing.T) {
	var margins []int32
	p := fakePredictor(1, []int32{1}, model.TypeFloat64, func(data unsafe.Pointer, predMargin int32, result unsafe.Pointer) {
		margins = append(margins, predMargin)
	})
	dmat, err := model.NewDense([]float64{1, 2}, math.NaN(), 1, 2)
	require.NoError(t, err)
	out := make([]float64, 1)
	require.NoError(t, p.PredictBatch(dmat, 0, true, out))
	require.NoError(t, p.PredictBatch(dmat, 0, false, out))
	require.Equal(t, []int32{1, 0}, margins)
}

func TestPredictBatchRejectsWideMatrix(t *testing.T) {
	p := fakePredictor(1, []int32{1}, model.TypeFloat64, func(data unsafe.Pointer, predMargin int32, result unsafe.Pointer) {})
	dmat, err := model.NewDense([]float64{1, 2, 3}, math.NaN(), 1, 3)
	require.NoError(t, err)
	require.Error(t, p.PredictBatch(dmat, 0, false, make([]float64, 1)))
}

func TestOutputShapeRange(t *testing.T) {
	p := fakePredictor(2, []int32{3, 2}, model.TypeFloat64, nil)
	dmat, err := model.NewDense(make([]float64, 20), math.NaN(), 10, 2)
	require.NoError(t, err)

	require.Equal(t, [3]uint64{10, 2, 3}, p.OutputShape(dmat))
	shape, err := p.OutputShapeRange(dmat, 2, 7)
	require.NoError(t, err)
	require.Equal(t, [3]uint64{5, 2, 3}, shape)
	_, err = p.OutputShapeRange(dmat, 7, 2)
	require.Error(t, err)
	_, err = p.OutputShapeRange(dmat, 0, 11)
	require.Error(t, err)
}

func TestOutputTensorShape(t *testing.T) {
	p := fakePredictor(1, []int32{3}, model.TypeFloat64, nil)
	dmat, err := model.NewDense(make([]float64, 4), math.NaN(), 2, 2)
	require.NoError(t, err)
	out := make([]float64, p.OutputSize(dmat))
	view := p.OutputTensor(dmat, out)
	require.Equal(t, []int{2, 1, 3}, []int(view.Shape()))
}
