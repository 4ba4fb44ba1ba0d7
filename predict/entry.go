package predict

import (
	"math"
	"unsafe"

	"github.com/tarstars/tree_codegen/model"
	"github.com/tarstars/tree_codegen/tcerr"
)

//The generated C reads feature values through union Entry { int missing;
//T fvalue; int qvalue; }. The working buffers below reproduce that layout
//bit-for-bit on little-endian targets: the missing tag aliases the low four
//bytes of the slot.

type entry32 uint32

const missing32 = entry32(0xFFFFFFFF)

type entry64 uint64

const missing64 = entry64(0x00000000FFFFFFFF)

//workBuffer is a thread-local vector of Entry slots, one per feature column.
type workBuffer interface {
	set(j uint64, v float64)
	reset(j uint64)
	clear()
	ptr() unsafe.Pointer
}

type buffer32 []entry32

func newBuffer32(n uint64) buffer32 {
	buf := make(buffer32, n)
	buf.clear()
	return buf
}

func (b buffer32) set(j uint64, v float64) {
	b[j] = entry32(math.Float32bits(float32(v)))
}

func (b buffer32) reset(j uint64) {
	b[j] = missing32
}

func (b buffer32) clear() {
	for j := range b {
		b[j] = missing32
	}
}

func (b buffer32) ptr() unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}

type buffer64 []entry64

func newBuffer64(n uint64) buffer64 {
	buf := make(buffer64, n)
	buf.clear()
	return buf
}

func (b buffer64) set(j uint64, v float64) {
	b[j] = entry64(math.Float64bits(v))
}

func (b buffer64) reset(j uint64) {
	b[j] = missing64
}

func (b buffer64) clear() {
	for j := range b {
		b[j] = missing64
	}
}

func (b buffer64) ptr() unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}

//callFunc invokes the loaded predict() for one row: a pointer to the Entry
//vector, the pred_margin flag and a pointer into the output tensor.
type callFunc func(data unsafe.Pointer, predMargin int32, result unsafe.Pointer)

//applyBatchDense feeds rows [rbegin, rend) of a dense matrix through the
//loaded predict function, resetting touched slots to missing after each row.
func applyBatchDense[E model.Element](dmat *model.Dense[E], buf workBuffer, rbegin, rend uint64,
	predMargin int32, call callFunc, outPtr func(rid uint64) unsafe.Pointer) error {
	nanMissing := dmat.NaNMissing()
	numCol := dmat.NumCol()
	for rid := rbegin; rid < rend; rid++ {
		row := dmat.Row(rid)
		for j := uint64(0); j < numCol; j++ {
			v := float64(row[j])
			if math.IsNaN(v) {
				if !nanMissing {
					return tcerr.New(tcerr.KindInvalidModel,
						"the missing_value argument must be set to NaN if there is any NaN in the matrix")
				}
			} else if nanMissing || row[j] != dmat.MissingValue {
				buf.set(j, v)
			}
		}
		call(buf.ptr(), predMargin, outPtr(rid))
		for j := uint64(0); j < numCol; j++ {
			buf.reset(j)
		}
	}
	return nil
}

//applyBatchCSR feeds rows [rbegin, rend) of a CSR matrix through the loaded
//predict function; only the columns present in a row are populated.
func applyBatchCSR[E model.Element](dmat *model.CSR[E], buf workBuffer, rbegin, rend uint64,
	predMargin int32, call callFunc, outPtr func(rid uint64) unsafe.Pointer) error {
	for rid := rbegin; rid < rend; rid++ {
		ibegin := dmat.RowPtr[rid]
		iend := dmat.RowPtr[rid+1]
		for i := ibegin; i < iend; i++ {
			buf.set(uint64(dmat.ColInd[i]), float64(dmat.Data[i]))
		}
		call(buf.ptr(), predMargin, outPtr(rid))
		for i := ibegin; i < iend; i++ {
			buf.reset(uint64(dmat.ColInd[i]))
		}
	}
	return nil
}

//applyBatch dispatches on the concrete matrix shape.
func applyBatch(dmat model.DMatrix, buf workBuffer, rbegin, rend uint64,
	predMargin int32, call callFunc, outPtr func(rid uint64) unsafe.Pointer) error {
	switch concrete := dmat.(type) {
	case *model.Dense[float32]:
		return applyBatchDense(concrete, buf, rbegin, rend, predMargin, call, outPtr)
	case *model.Dense[float64]:
		return applyBatchDense(concrete, buf, rbegin, rend, predMargin, call, outPtr)
	case *model.CSR[float32]:
		return applyBatchCSR(concrete, buf, rbegin, rend, predMargin, call, outPtr)
	case *model.CSR[float64]:
		return applyBatchCSR(concrete, buf, rbegin, rend, predMargin, call, outPtr)
	}
	return tcerr.New(tcerr.KindInvalidModel, "unrecognized data matrix variant")
}
