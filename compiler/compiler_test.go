package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tarstars/tree_codegen/annotate"
	"github.com/tarstars/tree_codegen/model"
)

func testModel() *model.Model {
	trees := model.Float64Trees{
		{Nodes: []model.Node[float64]{
			{Type: model.NumericalTestNode, SplitIndex: 0, DefaultLeft: true, Op: model.OpLT,
				Threshold: 0.5, LeftChild: 1, RightChild: 2},
			{Type: model.LeafNode, LeafValue: -1, LeftChild: -1, RightChild: -1},
			{Type: model.LeafNode, LeafValue: 1, LeftChild: -1, RightChild: -1},
		}},
		{Nodes: []model.Node[float64]{
			{Type: model.NumericalTestNode, SplitIndex: 1, DefaultLeft: false, Op: model.OpLE,
				Threshold: 2.5, LeftChild: 1, RightChild: 2},
			{Type: model.LeafNode, LeafValue: -0.5, LeftChild: -1, RightChild: -1},
			{Type: model.LeafNode, LeafValue: 0.5, LeftChild: -1, RightChild: -1},
		}},
	}
	return &model.Model{
		NumTarget:       1,
		NumClass:        []int32{1},
		LeafVectorShape: [2]int32{1, 1},
		NumFeature:      2,
		BaseScores:      []float64{0},
		Postprocessor:   "sigmoid",
		SigmoidAlpha:    1,
		RatioC:          1,
		TargetID:        []int32{0, 0},
		ClassID:         []int32{0, 0},
		Trees:           trees,
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(payload)
}

func TestCompileModelWritesSources(t *testing.T) {
	dir := t.TempDir()
	param, err := ParseParamFromJSON(`{"quantize": 1, "parallel_comp": 2, "native_lib_name": "mymodel"}`)
	require.NoError(t, err)
	require.NoError(t, CompileModel(testModel(), param, dir, nil))

	for _, name := range []string{"header.h", "main.c", "quantize.c", "tu0.c", "tu1.c", "recipe.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
	}

	recipe := readFile(t, filepath.Join(dir, "recipe.json"))
	require.Contains(t, recipe, `"target": "mymodel"`)
	require.Contains(t, recipe, `"name": "main"`)
	require.Contains(t, recipe, `"name": "tu0"`)
	require.Contains(t, recipe, `"name": "quantize"`)
	require.NotContains(t, recipe, `"name": "header"`)

	mainC := readFile(t, filepath.Join(dir, "main.c"))
	require.Contains(t, mainC, "predict_unit0(data, result);")
	require.Contains(t, mainC, "// sigmoid")
}

func TestCompileModelDeterministic(t *testing.T) {
	param, err := ParseParamFromJSON(`{"quantize": 1, "parallel_comp": 2}`)
	require.NoError(t, err)

	dirFirst := t.TempDir()
	require.NoError(t, CompileModel(testModel(), param, dirFirst, nil))
	dirSecond := t.TempDir()
	require.NoError(t, CompileModel(testModel(), param, dirSecond, nil))

	entries, err := os.ReadDir(dirFirst)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, entry := range entries {
		first := readFile(t, filepath.Join(dirFirst, entry.Name()))
		second := readFile(t, filepath.Join(dirSecond, entry.Name()))
		require.Equal(t, first, second, entry.Name())
	}
}

func TestCompileModelWithAnnotation(t *testing.T) {
	dir := t.TempDir()
	counts := annotate.Counts{{100, 75, 25}, {100, 40, 60}}
	annotationPath := filepath.Join(dir, "annotation.json")
	require.NoError(t, counts.SaveFile(annotationPath))

	param := DefaultParam()
	param.AnnotateIn = annotationPath
	outDir := filepath.Join(dir, "generated")
	require.NoError(t, CompileModel(testModel(), param, outDir, nil))

	mainC := readFile(t, filepath.Join(outDir, "main.c"))
	require.Contains(t, mainC, "LIKELY(")
	require.Contains(t, mainC, "UNLIKELY(")
}

func TestCompileModelMissingAnnotationFileFails(t *testing.T) {
	param := DefaultParam()
	param.AnnotateIn = filepath.Join(t.TempDir(), "no_such_file.json")
	err := CompileModel(testModel(), param, t.TempDir(), nil)
	require.Error(t, err)
}

func TestDumpASTDeterministic(t *testing.T) {
	param, err := ParseParamFromJSON(`{"quantize": 1}`)
	require.NoError(t, err)
	first, err := DumpAST(testModel(), param, nil)
	require.NoError(t, err)
	second, err := DumpAST(testModel(), param, nil)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Contains(t, first, "QuantizerNode")
}
