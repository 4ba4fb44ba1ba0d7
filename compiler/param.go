// Package compiler parses compiler parameters and orchestrates the pipeline:
// lowering, optimization passes and C emission.
package compiler

import (
	"github.com/goccy/go-json"

	"github.com/tarstars/tree_codegen/tcerr"
)

//CompilerParam is the value record of recognized pipeline options. Unknown
//keys, type mismatches and negative ranges are fatal parse errors.
type CompilerParam struct {
	//AnnotateIn is the path of a counts JSON to splice into the AST;
	//"NULL" disables the annotate pass.
	AnnotateIn string
	//Quantize inserts a Quantizer and rewrites numerical thresholds when
	//positive.
	Quantize int
	//ParallelComp splits the function body into this many translation units
	//when positive.
	ParallelComp int
	//Verbose emits progress on the info log when positive.
	Verbose int
	//NativeLibName is the target name recorded in recipe.json.
	NativeLibName string
}

//DefaultParam returns the documented defaults.
func DefaultParam() CompilerParam {
	return CompilerParam{
		AnnotateIn:    "NULL",
		Quantize:      0,
		ParallelComp:  0,
		Verbose:       0,
		NativeLibName: "predictor",
	}
}

//ParseParamFromJSON decodes a JSON object into a CompilerParam, starting from
//the defaults.
func ParseParamFromJSON(paramJSON string) (CompilerParam, error) {
	param := DefaultParam()

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(paramJSON), &doc); err != nil {
		return param, tcerr.Wrapf(tcerr.KindInvalidParam, err, "got an invalid JSON string:\n%s", paramJSON)
	}
	for key, raw := range doc {
		switch key {
		case "annotate_in":
			if err := json.Unmarshal(raw, &param.AnnotateIn); err != nil {
				return param, tcerr.New(tcerr.KindInvalidParam, "expected a string for 'annotate_in'")
			}
		case "quantize":
			if err := json.Unmarshal(raw, &param.Quantize); err != nil {
				return param, tcerr.New(tcerr.KindInvalidParam, "expected an integer for 'quantize'")
			}
			if param.Quantize < 0 {
				return param, tcerr.New(tcerr.KindInvalidParam, "'quantize' must be 0 or greater")
			}
		case "parallel_comp":
			if err := json.Unmarshal(raw, &param.ParallelComp); err != nil {
				return param, tcerr.New(tcerr.KindInvalidParam, "expected an integer for 'parallel_comp'")
			}
			if param.ParallelComp < 0 {
				return param, tcerr.New(tcerr.KindInvalidParam, "'parallel_comp' must be 0 or greater")
			}
		case "verbose":
			if err := json.Unmarshal(raw, &param.Verbose); err != nil {
				return param, tcerr.New(tcerr.KindInvalidParam, "expected an integer for 'verbose'")
			}
		case "native_lib_name":
			if err := json.Unmarshal(raw, &param.NativeLibName); err != nil {
				return param, tcerr.New(tcerr.KindInvalidParam, "expected a string for 'native_lib_name'")
			}
		default:
			return param, tcerr.Errorf(tcerr.KindInvalidParam, "unrecognized key %q in JSON", key)
		}
	}
	return param, nil
}
