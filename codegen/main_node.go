package codegen

import (
	"fmt"

	"github.com/tarstars/tree_codegen/ast"
	"github.com/tarstars/tree_codegen/tcerr"
)

const headerTemplate = `
#include <stdio.h>
#include <stdlib.h>
#include <string.h>
#include <float.h>
#include <math.h>
#include <stdint.h>

#if defined(__clang__) || defined(__GNUC__)
#define LIKELY(x)   __builtin_expect(!!(x), 1)
#define UNLIKELY(x) __builtin_expect(!!(x), 0)
#else
#define LIKELY(x)   (x)
#define UNLIKELY(x) (x)
#endif

#define N_TARGET {num_target}
#define MAX_N_CLASS {max_num_class}

union Entry {
  int missing;
  {threshold_ctype} fvalue;
  int qvalue;
};

int32_t get_num_target(void);
void get_num_class(int32_t* out);
int32_t get_num_feature(void);
const char* get_threshold_type(void);
const char* get_leaf_output_type(void);
void predict(union Entry* data, int pred_margin, {leaf_output_ctype}* result);
void postprocess({leaf_output_ctype}* result);`

const mainStartTemplate = `
#include "header.h"

{array_is_categorical}
{array_num_class}

int32_t get_num_target(void) {
  return N_TARGET;
}
void get_num_class(int32_t* out) {
  for (int i = 0; i < N_TARGET; ++i) {
    out[i] = num_class[i];
  }
}
int32_t get_num_feature(void) {
  return {num_feature};
}
const char* get_threshold_type(void) {
  return "{threshold_type}";
}
const char* get_leaf_output_type(void) {
  return "{leaf_output_type}";
}

void predict(union Entry* data, int pred_margin, {leaf_output_ctype}* result) {`

func renderIsCategoricalArray(isCategorical []bool) string {
	if len(isCategorical) == 0 {
		return ""
	}
	formatter := NewArrayFormatter(80, 2)
	for _, e := range isCategorical {
		if e {
			formatter.AppendInt(1)
		} else {
			formatter.AppendInt(0)
		}
	}
	return "const unsigned char is_categorical[] = {" + formatter.String() + "};"
}

func renderNumClassArray(numClass []int32) string {
	formatter := NewArrayFormatter(80, 2)
	for _, e := range numClass {
		formatter.AppendInt(int(e))
	}
	return "static const int32_t num_class[] = {" + formatter.String() + "};"
}

func handleMainNode(b *ast.Builder, id ast.NodeID, payload *ast.Main, gencode *CodeCollection) error {
	meta := b.Meta()
	thresholdCType := cType(meta.TypeStr)
	leafOutputCType := cType(meta.TypeStr)
	numTarget := meta.NumTarget
	numClass := meta.NumClass
	maxNumClass := meta.MaxNumClass()

	gencode.SwitchToSourceFile("header.h")
	gencode.PushFragment(render(headerTemplate, map[string]string{
		"threshold_ctype":   thresholdCType,
		"leaf_output_ctype": leafOutputCType,
		"num_target":        fmt.Sprint(numTarget),
		"max_num_class":     fmt.Sprint(maxNumClass),
	}))

	gencode.SwitchToSourceFile("main.c")
	gencode.PushFragment(render(mainStartTemplate, map[string]string{
		"array_is_categorical": renderIsCategoricalArray(meta.IsCategorical),
		"array_num_class":      renderNumClassArray(numClass),
		"num_feature":          fmt.Sprint(meta.NumFeature),
		"threshold_type":       meta.TypeStr,
		"leaf_output_type":     meta.TypeStr,
		"leaf_output_ctype":    leafOutputCType,
	}))
	gencode.ChangeIndent(1)
	if len(b.Node(id).Children) != 1 {
		return tcerr.Errorf(tcerr.KindInvalidState,
			"Main must have exactly one child, got %d", len(b.Node(id).Children))
	}
	if err := generateFromNode(b, b.Node(id).Children[0], gencode); err != nil {
		return err
	}

	// Tree averaging
	if payload.AverageFactor != nil {
		gencode.PushFragment("\n// Average tree outputs")
		for targetID := int32(0); targetID < numTarget; targetID++ {
			for classID := int32(0); classID < numClass[targetID]; classID++ {
				offset := targetID*maxNumClass + classID
				gencode.PushFragment(fmt.Sprintf("result[%d] /= %d;", offset, payload.AverageFactor[offset]))
			}
		}
	}

	// Apply base_scores
	gencode.PushFragment("\n// Apply base_scores")
	for targetID := int32(0); targetID < numTarget; targetID++ {
		for classID := int32(0); classID < numClass[targetID]; classID++ {
			offset := targetID*maxNumClass + classID
			gencode.PushFragment(fmt.Sprintf("result[%d] += %s;",
				offset, ToStringHighPrecision(payload.BaseScores[offset], "float64")))
		}
	}

	// Apply postprocessor
	gencode.PushFragment("\n// Apply postprocessor" +
		"\nif (!pred_margin) { postprocess(result); }")
	gencode.ChangeIndent(-1)
	gencode.PushFragment("}")
	postprocessor, err := postprocessorFunc(meta, payload.Postprocessor)
	if err != nil {
		return err
	}
	gencode.PushFragment(postprocessor)
	return nil
}
