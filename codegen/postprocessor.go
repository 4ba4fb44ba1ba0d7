package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tarstars/tree_codegen/ast"
	"github.com/tarstars/tree_codegen/tcerr"
)

func expCFunc(leafOutputCType string) string {
	if leafOutputCType == "float" {
		return "expf"
	}
	return "exp"
}

func exp2CFunc(leafOutputCType string) string {
	if leafOutputCType == "float" {
		return "exp2f"
	}
	return "exp2"
}

func log1pCFunc(leafOutputCType string) string {
	if leafOutputCType == "float" {
		return "log1pf"
	}
	return "log1p"
}

func copySignCFunc(leafOutputCType string) string {
	if leafOutputCType == "float" {
		return "copysignf"
	}
	return "copysign"
}

func formatAlpha(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

func identityBody(meta *ast.ModelMeta) string {
	return render(`
void postprocess({leaf_output_type}* result) {
  // Do nothing
}`, map[string]string{"leaf_output_type": cType(meta.TypeStr)})
}

func signedSquareBody(meta *ast.ModelMeta) string {
	leafOutputCType := cType(meta.TypeStr)
	return render(`
void postprocess({leaf_output_type}* result) {
  // signed_square
  {leaf_output_type} margin;
  for (size_t i = 0; i < N_TARGET * MAX_N_CLASS; ++i) {
    margin = result[i];
    result[i] = {copysign}(margin * margin, margin);
  }
}`, map[string]string{
		"leaf_output_type": leafOutputCType,
		"copysign":         copySignCFunc(leafOutputCType),
	})
}

func hingeBody(meta *ast.ModelMeta) string {
	return render(`
void postprocess({leaf_output_type}* result) {
  // hinge
  for (size_t i = 0; i < N_TARGET * MAX_N_CLASS; ++i) {
    if (result[i] > 0) {
      result[i] = ({leaf_output_type})(1);
    } else {
      result[i] = ({leaf_output_type})(0);
    }
  }
}`, map[string]string{"leaf_output_type": cType(meta.TypeStr)})
}

func sigmoidBody(meta *ast.ModelMeta) (string, error) {
	if meta.SigmoidAlpha <= 0 {
		return "", tcerr.New(tcerr.KindInvalidModel, "sigmoid: alpha must be strictly positive")
	}
	leafOutputCType := cType(meta.TypeStr)
	return render(`
void postprocess({leaf_output_type}* result) {
  // sigmoid
  const {leaf_output_type} alpha = ({leaf_output_type}){alpha};
  for (size_t i = 0; i < N_TARGET * MAX_N_CLASS; ++i) {
    result[i] = ({leaf_output_type})(1) / (({leaf_output_type})(1) + {exp}(-alpha * result[i]));
  }
}`, map[string]string{
		"leaf_output_type": leafOutputCType,
		"alpha":            formatAlpha(meta.SigmoidAlpha),
		"exp":              expCFunc(leafOutputCType),
	}), nil
}

func exponentialBody(meta *ast.ModelMeta) string {
	leafOutputCType := cType(meta.TypeStr)
	return render(`
void postprocess({leaf_output_type}* result) {
  // exponential
  for (size_t i = 0; i < N_TARGET * MAX_N_CLASS; ++i) {
    result[i] = {exp}(result[i]);
  }
}`, map[string]string{
		"leaf_output_type": leafOutputCType,
		"exp":              expCFunc(leafOutputCType),
	})
}

func exponentialStandardRatioBody(meta *ast.ModelMeta) string {
	leafOutputCType := cType(meta.TypeStr)
	return render(`
void postprocess({leaf_output_type}* result) {
  // exponential_standard_ratio
  const {leaf_output_type} ratio_c = ({leaf_output_type}){ratio_c};
  for (size_t i = 0; i < N_TARGET * MAX_N_CLASS; ++i) {
    result[i] = {exp2}(-result[i] / ratio_c);
  }
}`, map[string]string{
		"leaf_output_type": leafOutputCType,
		"ratio_c":          formatAlpha(meta.RatioC),
		"exp2":             exp2CFunc(leafOutputCType),
	})
}

func logarithmOnePlusExpBody(meta *ast.ModelMeta) string {
	leafOutputCType := cType(meta.TypeStr)
	return render(`
void postprocess({leaf_output_type}* result) {
  // logarithm_one_plus_exp
  for (size_t i = 0; i < N_TARGET * MAX_N_CLASS; ++i) {
    result[i] = {log1p}({exp}(result[i]));
  }
}`, map[string]string{
		"leaf_output_type": leafOutputCType,
		"exp":              expCFunc(leafOutputCType),
		"log1p":            log1pCFunc(leafOutputCType),
	})
}

//perTargetCalls renders one postprocess_impl call per target; softmax and
//one-vs-all transforms operate on per-target slices of num_class[t] entries.
func perTargetCalls(meta *ast.ModelMeta) string {
	var sb strings.Builder
	maxNumClass := meta.MaxNumClass()
	for targetID := int32(0); targetID < meta.NumTarget; targetID++ {
		fmt.Fprintf(&sb, "  postprocess_impl(&result[%d], %d);\n",
			targetID*maxNumClass, meta.NumClass[targetID])
	}
	sb.WriteString("}\n")
	return sb.String()
}

func softmaxBody(meta *ast.ModelMeta) string {
	leafOutputCType := cType(meta.TypeStr)
	head := render(`
// Apply postprocessor for a single target
static void postprocess_impl({leaf_output_type}* target_result, int num_class) {
  {leaf_output_type} max_margin = target_result[0];
  double norm_const = 0.0;
  {leaf_output_type} t;
  for (int k = 1; k < num_class; ++k) {
    if (target_result[k] > max_margin) {
      max_margin = target_result[k];
    }
  }
  for (int k = 0; k < num_class; ++k) {
    t = {exp}(target_result[k] - max_margin);
    norm_const += t;
    target_result[k] = t;
  }
  for (int k = 0; k < num_class; ++k) {
    target_result[k] /= ({leaf_output_type})norm_const;
  }
}

void postprocess({leaf_output_type}* result) {
  // softmax
`, map[string]string{
		"leaf_output_type": leafOutputCType,
		"exp":              expCFunc(leafOutputCType),
	})
	return head + perTargetCalls(meta)
}

func multiclassOvaBody(meta *ast.ModelMeta) (string, error) {
	if meta.SigmoidAlpha <= 0 {
		return "", tcerr.New(tcerr.KindInvalidModel, "multiclass_ova: alpha must be strictly positive")
	}
	leafOutputCType := cType(meta.TypeStr)
	head := render(`
// Apply postprocessor for a single target
static void postprocess_impl({leaf_output_type}* target_result, int num_class) {
  const {leaf_output_type} alpha = ({leaf_output_type}){alpha};
  for (int k = 0; k < num_class; ++k) {
    target_result[k] =
      ({leaf_output_type})(1) / (({leaf_output_type})(1) + {exp}(-alpha * target_result[k]));
  }
}

void postprocess({leaf_output_type}* result) {
  // multiclass_ova
`, map[string]string{
		"leaf_output_type": leafOutputCType,
		"alpha":            formatAlpha(meta.SigmoidAlpha),
		"exp":              expCFunc(leafOutputCType),
	})
	return head + perTargetCalls(meta), nil
}

//postprocessorFunc renders the body of postprocess() for one of the ten
//recognized postprocessor names.
func postprocessorFunc(meta *ast.ModelMeta, postprocessor string) (string, error) {
	switch postprocessor {
	case "identity":
		return identityBody(meta), nil
	case "signed_square":
		return signedSquareBody(meta), nil
	case "hinge":
		return hingeBody(meta), nil
	case "sigmoid":
		return sigmoidBody(meta)
	case "exponential":
		return exponentialBody(meta), nil
	case "exponential_standard_ratio":
		return exponentialStandardRatioBody(meta), nil
	case "logarithm_one_plus_exp":
		return logarithmOnePlusExpBody(meta), nil
	case "identity_multiclass":
		// Kept as a separate registry entry; the body matches "identity".
		return identityBody(meta), nil
	case "softmax":
		return softmaxBody(meta), nil
	case "multiclass_ova":
		return multiclassOvaBody(meta)
	}
	return "", tcerr.Errorf(tcerr.KindInvalidModel, "unknown postprocessor function: %q", postprocessor)
}
