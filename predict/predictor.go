package predict

import (
	"time"
	"unsafe"

	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/tarstars/tree_codegen/model"
	"github.com/tarstars/tree_codegen/tcerr"
	"github.com/tarstars/tree_codegen/threading"
)

//Predictor drives batched inference through a compiled model library. The
//loaded function pointers stay valid until Close.
type Predictor struct {
	lib          *SharedLibrary
	threadConfig threading.ThreadConfig
	log          *zap.Logger

	numTarget     int32
	numClass      []int32
	maxNumClass   int32
	numFeature    int32
	thresholdType string
	leafOutput    string

	predictFn callFunc
}

//Load opens a compiled model library, resolves the query symbols and caches
//the model geometry. numWorkerThread bounds the parallelism of PredictBatch;
//zero or a negative value selects one worker per logical CPU.
func Load(libpath string, numWorkerThread int, log *zap.Logger) (*Predictor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	lib, err := OpenSharedLibrary(libpath)
	if err != nil {
		return nil, err
	}
	p := &Predictor{
		lib:          lib,
		threadConfig: threading.ConfigureThreadConfig(numWorkerThread),
		log:          log,
	}

	var getNumTarget func() int32
	if err := lib.LoadFunction(&getNumTarget, "get_num_target"); err != nil {
		return nil, err
	}
	p.numTarget = getNumTarget()

	var getNumClass func([]int32)
	if err := lib.LoadFunction(&getNumClass, "get_num_class"); err != nil {
		return nil, err
	}
	p.numClass = make([]int32, p.numTarget)
	getNumClass(p.numClass)
	p.maxNumClass = 1
	for _, n := range p.numClass {
		if n > p.maxNumClass {
			p.maxNumClass = n
		}
	}

	var getNumFeature func() int32
	if err := lib.LoadFunction(&getNumFeature, "get_num_feature"); err != nil {
		return nil, err
	}
	p.numFeature = getNumFeature()

	var getThresholdType func() string
	if err := lib.LoadFunction(&getThresholdType, "get_threshold_type"); err != nil {
		return nil, err
	}
	p.thresholdType = getThresholdType()

	var getLeafOutputType func() string
	if err := lib.LoadFunction(&getLeafOutputType, "get_leaf_output_type"); err != nil {
		return nil, err
	}
	p.leafOutput = getLeafOutputType()

	if p.thresholdType != p.leafOutput {
		return nil, tcerr.Errorf(tcerr.KindABI,
			"threshold type %q and leaf output type %q must be identical", p.thresholdType, p.leafOutput)
	}
	if p.thresholdType != model.TypeFloat32 && p.thresholdType != model.TypeFloat64 {
		return nil, tcerr.Errorf(tcerr.KindABI, "unrecognized threshold type %q", p.thresholdType)
	}

	if err := lib.LoadFunction(&p.predictFn, "predict"); err != nil {
		return nil, err
	}
	return p, nil
}

//Close releases the shared-library handle; the predictor must not be used
//afterwards.
func (p *Predictor) Close() error {
	return p.lib.Close()
}

func (p *Predictor) NumTarget() int32 { return p.numTarget }

func (p *Predictor) NumClass() []int32 { return append([]int32(nil), p.numClass...) }

func (p *Predictor) MaxNumClass() int32 { return p.maxNumClass }

func (p *Predictor) NumFeature() int32 { return p.numFeature }

func (p *Predictor) ThresholdType() string { return p.thresholdType }

func (p *Predictor) LeafOutputType() string { return p.leafOutput }

//OutputShape reports the logical shape of the prediction tensor for a batch.
func (p *Predictor) OutputShape(dmat model.DMatrix) [3]uint64 {
	return [3]uint64{dmat.NumRow(), uint64(p.numTarget), uint64(p.maxNumClass)}
}

//OutputShapeRange reports the output shape for the row range [rbegin, rend).
func (p *Predictor) OutputShapeRange(dmat model.DMatrix, rbegin, rend uint64) ([3]uint64, error) {
	if rbegin > rend || rend > dmat.NumRow() {
		return [3]uint64{}, tcerr.Errorf(tcerr.KindInvalidParam,
			"invalid row range [%d, %d) for a matrix of %d rows", rbegin, rend, dmat.NumRow())
	}
	return [3]uint64{rend - rbegin, uint64(p.numTarget), uint64(p.maxNumClass)}, nil
}

//OutputSize reports the number of elements the output buffer must hold.
func (p *Predictor) OutputSize(dmat model.DMatrix) uint64 {
	shape := p.OutputShape(dmat)
	return shape[0] * shape[1] * shape[2]
}

//splitBatch partitions numRow rows into splitFactor contiguous ranges; the
//remainder is spread over the first ranges.
func splitBatch(numRow, splitFactor uint64) []uint64 {
	portion := numRow / splitFactor
	remainder := numRow % splitFactor
	rowPtr := make([]uint64, splitFactor+1)
	accum := uint64(0)
	for i := uint64(0); i < splitFactor; i++ {
		size := portion
		if i < remainder {
			size++
		}
		accum += size
		rowPtr[i+1] = accum
	}
	return rowPtr
}

//PredictBatch runs inference over every row of dmat into out, which must be a
//[]float32 or []float64 matching the library's leaf output type, zero-filled,
//of at least OutputSize elements. Worker goroutines own disjoint contiguous
//row ranges, so no output cell is written by two workers.
func (p *Predictor) PredictBatch(dmat model.DMatrix, verbose int, predMargin bool, out interface{}) error {
	numRow := dmat.NumRow()
	if numRow == 0 {
		return nil
	}
	if dmat.NumCol() > uint64(p.numFeature) {
		return tcerr.Errorf(tcerr.KindInvalidModel,
			"matrix has %d columns but the model consumes only %d features", dmat.NumCol(), p.numFeature)
	}

	stride := uint64(p.numTarget) * uint64(p.maxNumClass)
	need := numRow * stride
	var outPtr func(rid uint64) unsafe.Pointer
	switch buffer := out.(type) {
	case []float32:
		if p.leafOutput != model.TypeFloat32 {
			return tcerr.Errorf(tcerr.KindABI,
				"output buffer is []float32 but the library produces %s", p.leafOutput)
		}
		if uint64(len(buffer)) < need {
			return tcerr.Errorf(tcerr.KindInvalidParam,
				"output buffer needs %d elements, got %d", need, len(buffer))
		}
		outPtr = func(rid uint64) unsafe.Pointer { return unsafe.Pointer(&buffer[rid*stride]) }
	case []float64:
		if p.leafOutput != model.TypeFloat64 {
			return tcerr.Errorf(tcerr.KindABI,
				"output buffer is []float64 but the library produces %s", p.leafOutput)
		}
		if uint64(len(buffer)) < need {
			return tcerr.Errorf(tcerr.KindInvalidParam,
				"output buffer needs %d elements, got %d", need, len(buffer))
		}
		outPtr = func(rid uint64) unsafe.Pointer { return unsafe.Pointer(&buffer[rid*stride]) }
	default:
		return tcerr.New(tcerr.KindInvalidParam, "output buffer must be []float32 or []float64")
	}

	tstart := time.Now()
	nthread := uint64(p.threadConfig.NThread)
	if nthread > numRow {
		nthread = numRow
	}
	rowPtr := splitBatch(numRow, nthread)
	bufLen := dmat.NumCol()
	if uint64(p.numFeature) > bufLen {
		bufLen = uint64(p.numFeature)
	}
	margin := int32(0)
	if predMargin {
		margin = 1
	}
	err := threading.ParallelFor(0, nthread, p.threadConfig, threading.Static(0),
		func(threadID uint64, _ int) error {
			var buf workBuffer
			if p.thresholdType == model.TypeFloat32 {
				buf = newBuffer32(bufLen)
			} else {
				buf = newBuffer64(bufLen)
			}
			return applyBatch(dmat, buf, rowPtr[threadID], rowPtr[threadID+1], margin, p.predictFn, outPtr)
		})
	if err != nil {
		return err
	}
	if verbose > 0 {
		p.log.Info("finished prediction", zap.Duration("elapsed", time.Since(tstart)))
	}
	return nil
}

//OutputTensor wraps a prediction buffer in a dense tensor of shape
//[rows, num_target, max_num_class] without copying.
func (p *Predictor) OutputTensor(dmat model.DMatrix, out interface{}) *tensor.Dense {
	shape := p.OutputShape(dmat)
	return tensor.New(
		tensor.WithShape(int(shape[0]), int(shape[1]), int(shape[2])),
		tensor.WithBacking(out),
	)
}
