package compiler

import (
	"os"

	"go.uber.org/zap"

	"github.com/tarstars/tree_codegen/annotate"
	"github.com/tarstars/tree_codegen/ast"
	"github.com/tarstars/tree_codegen/codegen"
	"github.com/tarstars/tree_codegen/model"
	"github.com/tarstars/tree_codegen/tcerr"
)

//BuildAST runs the lowering and the optimization passes in their enforced
//order: build, annotation splice, translation-unit split, categorical
//discovery, threshold quantization. Splitting must precede quantizing
//because the quantize pass requires a Function directly under Main.
func BuildAST(m *model.Model, param CompilerParam, log *zap.Logger) (*ast.Builder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	builder := ast.NewBuilder(log)
	if err := builder.Build(m); err != nil {
		return nil, err
	}
	if param.AnnotateIn != "NULL" && param.AnnotateIn != "" {
		if param.Verbose > 0 {
			log.Info("reading branch annotation", zap.String("path", param.AnnotateIn))
		}
		counts, err := annotate.LoadFile(param.AnnotateIn)
		if err != nil {
			return nil, err
		}
		if err := builder.LoadDataCounts(counts); err != nil {
			return nil, err
		}
	}
	if param.ParallelComp > 0 {
		if err := builder.SplitIntoTUs(param.ParallelComp); err != nil {
			return nil, err
		}
	}
	builder.GenerateIsCategoricalArray()
	if param.Quantize > 0 {
		if param.Verbose > 0 {
			log.Info("quantizing thresholds")
		}
		if err := builder.QuantizeThresholds(); err != nil {
			return nil, err
		}
	}
	return builder, nil
}

//CompileModel runs the full pipeline and materializes the generated source
//files plus recipe.json under dirpath.
func CompileModel(m *model.Model, param CompilerParam, dirpath string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	builder, err := BuildAST(m, param, log)
	if err != nil {
		return err
	}
	if param.Verbose > 0 {
		log.Info("generating C code", zap.String("dirpath", dirpath))
	}
	gencode, err := codegen.GenerateCode(builder)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dirpath, 0o755); err != nil {
		return tcerr.Wrapf(tcerr.KindIO, err, "can't create output directory %s", dirpath)
	}
	if err := codegen.WriteCodeToDisk(dirpath, gencode); err != nil {
		return err
	}
	return codegen.WriteBuildRecipeToDisk(dirpath, param.NativeLibName, gencode)
}

//DumpAST runs the pipeline's passes and returns the text rendering of the
//resulting AST. The output is deterministic in the model and the parameters.
func DumpAST(m *model.Model, param CompilerParam, log *zap.Logger) (string, error) {
	builder, err := BuildAST(m, param, log)
	if err != nil {
		return "", err
	}
	return builder.Dump(), nil
}
