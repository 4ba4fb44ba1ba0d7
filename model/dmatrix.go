package model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/tarstars/tree_codegen/tcerr"
)

//DMatrix is the tagged union of the four concrete matrix shapes accepted by
//the annotator and the predictor: dense or CSR, over float32 or float64
//elements. The pipeline never mutates a DMatrix.
type DMatrix interface {
	NumRow() uint64
	NumCol() uint64
	//ElementType reports "float32" or "float64".
	ElementType() string
}

//Dense is a row-major dense matrix with an explicit missing-value sentinel.
//The sentinel may be NaN, in which case NaN cells are treated as missing.
type Dense[E Element] struct {
	Data         []E
	MissingValue E
	Rows         uint64
	Cols         uint64
}

//NewDense validates the data length against the declared shape.
func NewDense[E Element](data []E, missingValue E, numRow, numCol uint64) (*Dense[E], error) {
	if uint64(len(data)) != numRow*numCol {
		return nil, tcerr.Errorf(tcerr.KindInvalidModel,
			"dense matrix needs %d*%d = %d elements, got %d", numRow, numCol, numRow*numCol, len(data))
	}
	return &Dense[E]{Data: data, MissingValue: missingValue, Rows: numRow, Cols: numCol}, nil
}

func (d *Dense[E]) NumRow() uint64 { return d.Rows }
func (d *Dense[E]) NumCol() uint64 { return d.Cols }

func (d *Dense[E]) ElementType() string {
	var zero E
	switch any(zero).(type) {
	case float32:
		return TypeFloat32
	default:
		return TypeFloat64
	}
}

//NaNMissing reports whether the sentinel itself is NaN.
func (d *Dense[E]) NaNMissing() bool {
	return math.IsNaN(float64(d.MissingValue))
}

//Row returns the row-major slice backing row rid.
func (d *Dense[E]) Row(rid uint64) []E {
	return d.Data[rid*d.Cols : (rid+1)*d.Cols]
}

//CSR is a compressed-sparse-row matrix. RowPtr has NumRow+1 entries and
//RowPtr[NumRow] == len(Data) == len(ColInd).
type CSR[E Element] struct {
	Data   []E
	ColInd []uint32
	RowPtr []uint64
	Rows   uint64
	Cols   uint64
}

//NewCSR validates the CSR shape invariant.
func NewCSR[E Element](data []E, colInd []uint32, rowPtr []uint64, numRow, numCol uint64) (*CSR[E], error) {
	if uint64(len(rowPtr)) != numRow+1 {
		return nil, tcerr.Errorf(tcerr.KindInvalidModel,
			"row_ptr must have num_row+1 = %d entries, got %d", numRow+1, len(rowPtr))
	}
	if rowPtr[numRow] != uint64(len(data)) || len(data) != len(colInd) {
		return nil, tcerr.Errorf(tcerr.KindInvalidModel,
			"row_ptr[num_row] = %d must equal len(data) = %d and len(col_ind) = %d",
			rowPtr[numRow], len(data), len(colInd))
	}
	return &CSR[E]{Data: data, ColInd: colInd, RowPtr: rowPtr, Rows: numRow, Cols: numCol}, nil
}

func (c *CSR[E]) NumRow() uint64 { return c.Rows }
func (c *CSR[E]) NumCol() uint64 { return c.Cols }

func (c *CSR[E]) ElementType() string {
	var zero E
	switch any(zero).(type) {
	case float32:
		return TypeFloat32
	default:
		return TypeFloat64
	}
}

//DenseFromMat copies a gonum dense matrix into a Dense[float64] with the given
//missing-value sentinel. Feature matrices loaded from npy files arrive as
//*mat.Dense.
func DenseFromMat(m *mat.Dense, missingValue float64) *Dense[float64] {
	h, w := m.Dims()
	data := make([]float64, h*w)
	for p := 0; p < h; p++ {
		for q := 0; q < w; q++ {
			data[p*w+q] = m.At(p, q)
		}
	}
	return &Dense[float64]{
		Data:         data,
		MissingValue: missingValue,
		Rows:         uint64(h),
		Cols:         uint64(w),
	}
}
