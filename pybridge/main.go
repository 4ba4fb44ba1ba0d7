// SPDX-License-Identifier: Apache-2.0

package main

/*
#cgo CFLAGS: -I.
#include <stdlib.h>
*/
import "C"

import (
	"errors"
	"sync"
	"unsafe"

	"github.com/tarstars/tree_codegen/annotate"
	"github.com/tarstars/tree_codegen/compiler"
	"github.com/tarstars/tree_codegen/model"
	"github.com/tarstars/tree_codegen/predict"
)

var (
	handleMu   sync.Mutex
	nextHandle uint64 = 1
	predictors        = make(map[uint64]*predict.Predictor)

	lastErrorMu sync.Mutex
	lastError   string
)

func setLastError(err error) {
	lastErrorMu.Lock()
	defer lastErrorMu.Unlock()
	if err != nil {
		lastError = err.Error()
	} else {
		lastError = ""
	}
}

func getLastError() string {
	lastErrorMu.Lock()
	defer lastErrorMu.Unlock()
	return lastError
}

func storePredictor(p *predict.Predictor) uint64 {
	handleMu.Lock()
	defer handleMu.Unlock()
	handle := nextHandle
	predictors[handle] = p
	nextHandle++
	return handle
}

func fetchPredictor(handle uint64) (*predict.Predictor, error) {
	handleMu.Lock()
	defer handleMu.Unlock()
	p, ok := predictors[handle]
	if !ok {
		return nil, errors.New("invalid predictor handle")
	}
	return p, nil
}

//export TreeCodegenGetLastError
func TreeCodegenGetLastError() *C.char {
	return C.CString(getLastError())
}

//export TreeCodegenCompileModel
func TreeCodegenCompileModel(modelPath, paramsJSON, outDir *C.char) C.int {
	param, err := compiler.ParseParamFromJSON(C.GoString(paramsJSON))
	if err != nil {
		setLastError(err)
		return -1
	}
	m, err := model.LoadJSON(C.GoString(modelPath))
	if err != nil {
		setLastError(err)
		return -1
	}
	if err := compiler.CompileModel(m, param, C.GoString(outDir), nil); err != nil {
		setLastError(err)
		return -1
	}
	setLastError(nil)
	return 0
}

//export TreeCodegenDumpAST
func TreeCodegenDumpAST(modelPath, paramsJSON *C.char) *C.char {
	param, err := compiler.ParseParamFromJSON(C.GoString(paramsJSON))
	if err != nil {
		setLastError(err)
		return nil
	}
	m, err := model.LoadJSON(C.GoString(modelPath))
	if err != nil {
		setLastError(err)
		return nil
	}
	dump, err := compiler.DumpAST(m, param, nil)
	if err != nil {
		setLastError(err)
		return nil
	}
	setLastError(nil)
	return C.CString(dump)
}

func buildDense(data *C.double, numRow, numCol C.ulonglong, missing C.double) (*model.Dense[float64], error) {
	rows := uint64(numRow)
	cols := uint64(numCol)
	if rows > 0 && cols > 0 && data == nil {
		return nil, errors.New("null pointer for non-empty matrix")
	}
	src := unsafe.Slice((*float64)(unsafe.Pointer(data)), rows*cols)
	copied := make([]float64, rows*cols)
	copy(copied, src)
	return model.NewDense(copied, float64(missing), rows, cols)
}

//export TreeCodegenAnnotate
func TreeCodegenAnnotate(modelPath *C.char, data *C.double, numRow, numCol C.ulonglong,
	missing C.double, nthread, verbose C.int, outPath *C.char) C.int {
	m, err := model.LoadJSON(C.GoString(modelPath))
	if err != nil {
		setLastError(err)
		return -1
	}
	dmat, err := buildDense(data, numRow, numCol, missing)
	if err != nil {
		setLastError(err)
		return -1
	}
	counts, err := annotate.Annotate(m, dmat, int(nthread), int(verbose), nil)
	if err != nil {
		setLastError(err)
		return -1
	}
	if err := counts.SaveFile(C.GoString(outPath)); err != nil {
		setLastError(err)
		return -1
	}
	setLastError(nil)
	return 0
}

//export TreeCodegenPredictorLoad
func TreeCodegenPredictorLoad(libPath *C.char, numWorkerThread C.int) C.ulonglong {
	p, err := predict.Load(C.GoString(libPath), int(numWorkerThread), nil)
	if err != nil {
		setLastError(err)
		return 0
	}
	setLastError(nil)
	return C.ulonglong(storePredictor(p))
}

//export TreeCodegenPredictorNumFeature
func TreeCodegenPredictorNumFeature(handle C.ulonglong) C.int {
	p, err := fetchPredictor(uint64(handle))
	if err != nil {
		setLastError(err)
		return -1
	}
	return C.int(p.NumFeature())
}

//export TreeCodegenPredictorOutputSize
func TreeCodegenPredictorOutputSize(handle C.ulonglong, numRow C.ulonglong) C.ulonglong {
	p, err := fetchPredictor(uint64(handle))
	if err != nil {
		setLastError(err)
		return 0
	}
	return C.ulonglong(uint64(numRow) * uint64(p.NumTarget()) * uint64(p.MaxNumClass()))
}

//export TreeCodegenPredictorPredictDense
func TreeCodegenPredictorPredictDense(handle C.ulonglong, data *C.double,
	numRow, numCol C.ulonglong, missing C.double, verbose, predMargin C.int, out *C.double) C.int {
	p, err := fetchPredictor(uint64(handle))
	if err != nil {
		setLastError(err)
		return -1
	}
	if p.LeafOutputType() != model.TypeFloat64 {
		setLastError(errors.New("this entry point requires a float64 model library"))
		return -1
	}
	dmat, err := buildDense(data, numRow, numCol, missing)
	if err != nil {
		setLastError(err)
		return -1
	}
	size := uint64(numRow) * uint64(p.NumTarget()) * uint64(p.MaxNumClass())
	outSlice := unsafe.Slice((*float64)(unsafe.Pointer(out)), size)
	if err := p.PredictBatch(dmat, int(verbose), predMargin != 0, outSlice); err != nil {
		setLastError(err)
		return -1
	}
	setLastError(nil)
	return 0
}

//export TreeCodegenPredictorFree
func TreeCodegenPredictorFree(handle C.ulonglong) {
	handleMu.Lock()
	p, ok := predictors[uint64(handle)]
	delete(predictors, uint64(handle))
	handleMu.Unlock()
	if ok {
		setLastError(p.Close())
	}
}

func main() {}
