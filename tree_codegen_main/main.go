package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/sbinet/npyio"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/tarstars/tree_codegen/annotate"
	"github.com/tarstars/tree_codegen/compiler"
	"github.com/tarstars/tree_codegen/model"
	"github.com/tarstars/tree_codegen/predict"
)

func handleError(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

//readNpy reads the content of an npy file into a dense matrix.
func readNpy(fileName string) (denseMat *mat.Dense) {
	f, err := os.Open(fileName)
	handleError(err)
	defer func() { handleError(f.Close()) }()

	r, err := npyio.NewReader(f)
	handleError(err)

	denseMat = &mat.Dense{}
	handleError(r.Read(denseMat))
	return
}

func writeNpy(fileName string, m *mat.Dense) {
	f, err := os.Create(fileName)
	handleError(err)
	defer func() { handleError(f.Close()) }()
	handleError(npyio.Write(f, m))
}

func parseMissing(s string) float64 {
	if s == "nan" || s == "NaN" || s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	handleError(err)
	return v
}

func newLogger(verbose int) *zap.Logger {
	if verbose <= 0 {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	handleError(err)
	return logger
}

//CompileConfig collects one compile job; a config file may carry several.
type CompileConfig struct {
	FileNameModel string `json:"filename_model"`
	OutDir        string `json:"out_dir"`
	Params        string `json:"params"`
}

func decodeConfig(srcConfig string, out interface{}) {
	file, err := os.Open(srcConfig)
	handleError(err)
	defer func() { handleError(file.Close()) }()

	decoder := json.NewDecoder(file)
	handleError(decoder.Decode(out))
}

func compileOne(modelPath, paramsJSON, outDir string) {
	param, err := compiler.ParseParamFromJSON(paramsJSON)
	handleError(err)
	m, err := model.LoadJSON(modelPath)
	handleError(err)
	handleError(compiler.CompileModel(m, param, outDir, newLogger(param.Verbose)))
}

func compileCommand(args []string) {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	modelPath := fs.String("model", "", "path of the model JSON")
	outDir := fs.String("out", "./generated", "output directory for the generated sources")
	params := fs.String("params", "{}", "compiler parameters as a JSON object")
	configPath := fs.String("config", "", "compile jobs as a JSON config file")
	handleError(fs.Parse(args))

	if *configPath != "" {
		var jobs []CompileConfig
		decodeConfig(*configPath, &jobs)
		for _, job := range jobs {
			params := job.Params
			if params == "" {
				params = "{}"
			}
			compileOne(job.FileNameModel, params, job.OutDir)
		}
		return
	}
	compileOne(*modelPath, *params, *outDir)
}

func dumpASTCommand(args []string) {
	fs := flag.NewFlagSet("dumpast", flag.ExitOnError)
	modelPath := fs.String("model", "", "path of the model JSON")
	params := fs.String("params", "{}", "compiler parameters as a JSON object")
	handleError(fs.Parse(args))

	param, err := compiler.ParseParamFromJSON(*params)
	handleError(err)
	m, err := model.LoadJSON(*modelPath)
	handleError(err)
	dump, err := compiler.DumpAST(m, param, newLogger(param.Verbose))
	handleError(err)
	fmt.Println(dump)
}

func renderCommand(args []string) {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	modelPath := fs.String("model", "", "path of the model JSON")
	params := fs.String("params", "{}", "compiler parameters as a JSON object")
	figureType := fs.String("figure", "svg", "figure type: png, svg or jpg")
	outPath := fs.String("out", "ast.svg", "output image path")
	handleError(fs.Parse(args))

	param, err := compiler.ParseParamFromJSON(*params)
	handleError(err)
	m, err := model.LoadJSON(*modelPath)
	handleError(err)
	builder, err := compiler.BuildAST(m, param, newLogger(param.Verbose))
	handleError(err)
	handleError(builder.RenderGraph(*figureType, *outPath))
}

func annotateCommand(args []string) {
	fs := flag.NewFlagSet("annotate", flag.ExitOnError)
	modelPath := fs.String("model", "", "path of the model JSON")
	dataPath := fs.String("data", "", "path of the training matrix (npy)")
	missing := fs.String("missing", "nan", "missing-value sentinel")
	nthread := fs.Int("nthread", 0, "number of worker threads; 0 selects all CPUs")
	verbose := fs.Int("verbose", 0, "emit progress when positive")
	outPath := fs.String("out", "annotation.json", "output annotation path")
	handleError(fs.Parse(args))

	m, err := model.LoadJSON(*modelPath)
	handleError(err)
	dmat := model.DenseFromMat(readNpy(*dataPath), parseMissing(*missing))
	counts, err := annotate.Annotate(m, dmat, *nthread, *verbose, newLogger(*verbose))
	handleError(err)
	handleError(counts.SaveFile(*outPath))
}

func predictCommand(args []string) {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	libPath := fs.String("lib", "", "path of the compiled model library")
	dataPath := fs.String("data", "", "path of the input matrix (npy)")
	missing := fs.String("missing", "nan", "missing-value sentinel")
	nthread := fs.Int("nthread", 0, "number of worker threads; 0 selects all CPUs")
	verbose := fs.Int("verbose", 0, "emit progress when positive")
	margin := fs.Bool("margin", false, "skip the postprocessor and emit raw margins")
	outPath := fs.String("out", "prediction.npy", "output prediction path")
	handleError(fs.Parse(args))

	logger := newLogger(*verbose)
	predictor, err := predict.Load(*libPath, *nthread, logger)
	handleError(err)
	defer func() { handleError(predictor.Close()) }()

	dmat := model.DenseFromMat(readNpy(*dataPath), parseMissing(*missing))
	shape := predictor.OutputShape(dmat)

	switch predictor.LeafOutputType() {
	case model.TypeFloat64:
		out := make([]float64, shape[0]*shape[1]*shape[2])
		handleError(predictor.PredictBatch(dmat, *verbose, *margin, out))
		writeNpy(*outPath, mat.NewDense(int(shape[0]), int(shape[1]*shape[2]), out))
	case model.TypeFloat32:
		out := make([]float32, shape[0]*shape[1]*shape[2])
		handleError(predictor.PredictBatch(dmat, *verbose, *margin, out))
		widened := make([]float64, len(out))
		for i, v := range out {
			widened[i] = float64(v)
		}
		writeNpy(*outPath, mat.NewDense(int(shape[0]), int(shape[1]*shape[2]), widened))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tree_codegen_main <compile|dumpast|render|annotate|predict> [flags]")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "compile":
		compileCommand(os.Args[2:])
	case "dumpast":
		dumpASTCommand(os.Args[2:])
	case "render":
		renderCommand(os.Args[2:])
	case "annotate":
		annotateCommand(os.Args[2:])
	case "predict":
		predictCommand(os.Args[2:])
	default:
		usage()
	}
}
