package codegen

import (
	"fmt"

	"github.com/tarstars/tree_codegen/ast"
	"github.com/tarstars/tree_codegen/tcerr"
)

const quantizeFunctionTemplate = `
/*
 * \brief Function to convert a feature value into bin index.
 * \param val Feature value, in floating-point
 * \param fid Feature identifier
 * \return bin Index corresponding to given feature value
 */
{quantize_function_signature} {
  const size_t offset = th_begin[fid];
  const {threshold_type}* array = &threshold[offset];
  int len = th_len[fid];
  int low = 0;
  int high = len;
  int mid;
  {threshold_type} mval;
  // It is possible th_begin[i] == [total_num_threshold]. This means that
  // all features i, (i+1), ... are not used for any of the splits in the model.
  // So in this case, just return something
  if (offset == {total_num_threshold} || val < array[0]) {
    return -10;
  }
  while (low + 1 < high) {
    mid = (low + high) / 2;
    mval = array[mid];
    if (val == mval) {
      return mid * 2;
    } else if (val < mval) {
      high = mid;
    } else {
      low = mid;
    }
  }
  if (array[low] == val) {
    return low * 2;
  } else if (high == len) {
    return len * 2;
  } else {
    return low * 2 + 1;
  }
}`

const quantizeLoopTemplate = `
// Quantize data
for (int i = 0; i < {num_feature}; ++i) {
  if (data[i].missing != -1 && !is_categorical[i]) {
    data[i].qvalue = quantize(data[i].fvalue, i);
  }
}
`

const quantizeArraysTemplate = `
#include "header.h"

static const {threshold_type} threshold[] = {
{array_threshold}
};

static const int th_begin[] = {
{array_th_begin}
};

static const int th_len[] = {
{array_th_len}
};`

//handleQuantizerNode renders the static threshold arrays and the quantize()
//binary search into quantize.c, the quantize loop into the current file, and
//the prototype into the header. Features whose threshold lists are all empty
//produce no quantization machinery at all.
func handleQuantizerNode(b *ast.Builder, id ast.NodeID, payload *ast.Quantizer, gencode *CodeCollection) error {
	meta := b.Meta()
	thresholdCType := cType(meta.TypeStr)

	// threshold[] concatenates the per-feature threshold lists; the range
	// th_begin[i]:(th_begin[i]+th_len[i]) is the ascending list of feature i.
	thresholdFormatter := NewArrayFormatter(80, 2)
	beginFormatter := NewArrayFormatter(80, 2)
	lenFormatter := NewArrayFormatter(80, 2)
	totalNumThreshold := 0
	for _, list := range payload.ThresholdList {
		beginFormatter.AppendInt(totalNumThreshold)
		lenFormatter.AppendInt(len(list))
		totalNumThreshold += len(list)
		for _, v := range list {
			thresholdFormatter.Append(arrayFloatToken(v, meta.TypeStr))
		}
	}

	arrayThreshold := thresholdFormatter.String()
	arrayThBegin := beginFormatter.String()
	arrayThLen := lenFormatter.String()

	currentFile := gencode.CurrentSourceFile()
	if arrayThreshold != "" && arrayThBegin != "" && arrayThLen != "" {
		gencode.PushFragment(render(quantizeLoopTemplate, map[string]string{
			"num_feature": fmt.Sprint(meta.NumFeature),
		}))

		signature := fmt.Sprintf("int quantize(%s val, unsigned fid)", thresholdCType)

		gencode.SwitchToSourceFile("header.h")
		gencode.PushFragment(signature + ";")

		gencode.SwitchToSourceFile("quantize.c")
		gencode.PushFragment(render(quantizeArraysTemplate, map[string]string{
			"threshold_type":  thresholdCType,
			"array_threshold": arrayThreshold,
			"array_th_begin":  arrayThBegin,
			"array_th_len":    arrayThLen,
		}))
		gencode.PushFragment(render(quantizeFunctionTemplate, map[string]string{
			"quantize_function_signature": signature,
			"threshold_type":              thresholdCType,
			"total_num_threshold":         fmt.Sprint(totalNumThreshold),
		}))
		gencode.SwitchToSourceFile(currentFile)
	}
	if len(b.Node(id).Children) != 1 {
		return tcerr.Errorf(tcerr.KindInvalidState,
			"a quantizer must have exactly one child, got %d", len(b.Node(id).Children))
	}
	return generateFromNode(b, b.Node(id).Children[0], gencode)
}
