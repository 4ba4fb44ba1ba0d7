package model

import (
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/tarstars/tree_codegen/tcerr"
)

//modelJSON is the serialized form of a Model. Tree values are stored as
//float64 regardless of the bound element type; ThresholdType selects the
//variant on load. Storing a float32 in a float64 field is exact.
type modelJSON struct {
	NumTarget         int32          `json:"num_target"`
	NumClass          []int32        `json:"num_class"`
	LeafVectorShape   [2]int32       `json:"leaf_vector_shape"`
	NumFeature        int32          `json:"num_feature"`
	BaseScores        []float64      `json:"base_scores"`
	Postprocessor     string         `json:"postprocessor"`
	SigmoidAlpha      float32        `json:"sigmoid_alpha"`
	RatioC            float32        `json:"ratio_c"`
	AverageTreeOutput bool           `json:"average_tree_output"`
	TargetID          []int32        `json:"target_id"`
	ClassID           []int32        `json:"class_id"`
	ThresholdType     string         `json:"threshold_type"`
	Trees             []Tree[float64] `json:"trees"`
}

func narrowTree(src Tree[float64]) Tree[float32] {
	dst := Tree[float32]{Nodes: make([]Node[float32], len(src.Nodes))}
	for i, n := range src.Nodes {
		var vec []float32
		if n.LeafVector != nil {
			vec = make([]float32, len(n.LeafVector))
			for j, v := range n.LeafVector {
				vec[j] = float32(v)
			}
		}
		dst.Nodes[i] = Node[float32]{
			Type:                   n.Type,
			SplitIndex:             n.SplitIndex,
			DefaultLeft:            n.DefaultLeft,
			Op:                     n.Op,
			Threshold:              float32(n.Threshold),
			CategoryList:           n.CategoryList,
			CategoryListRightChild: n.CategoryListRightChild,
			LeftChild:              n.LeftChild,
			RightChild:             n.RightChild,
			LeafValue:              float32(n.LeafValue),
			LeafVector:             vec,
			Gain:                   n.Gain,
			DataCount:              n.DataCount,
			SumHess:                n.SumHess,
		}
	}
	return dst
}

func widenTree(src Tree[float32]) Tree[float64] {
	dst := Tree[float64]{Nodes: make([]Node[float64], len(src.Nodes))}
	for i, n := range src.Nodes {
		var vec []float64
		if n.LeafVector != nil {
			vec = make([]float64, len(n.LeafVector))
			for j, v := range n.LeafVector {
				vec[j] = float64(v)
			}
		}
		dst.Nodes[i] = Node[float64]{
			Type:                   n.Type,
			SplitIndex:             n.SplitIndex,
			DefaultLeft:            n.DefaultLeft,
			Op:                     n.Op,
			Threshold:              float64(n.Threshold),
			CategoryList:           n.CategoryList,
			CategoryListRightChild: n.CategoryListRightChild,
			LeftChild:              n.LeftChild,
			RightChild:             n.RightChild,
			LeafValue:              float64(n.LeafValue),
			LeafVector:             vec,
			Gain:                   n.Gain,
			DataCount:              n.DataCount,
			SumHess:                n.SumHess,
		}
	}
	return dst
}

//Read decodes a Model from its JSON representation.
func Read(r io.Reader) (*Model, error) {
	var raw modelJSON
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&raw); err != nil {
		return nil, tcerr.Wrap(tcerr.KindInvalidModel, err, "failed to decode model JSON")
	}
	m := &Model{
		NumTarget:         raw.NumTarget,
		NumClass:          raw.NumClass,
		LeafVectorShape:   raw.LeafVectorShape,
		NumFeature:        raw.NumFeature,
		BaseScores:        raw.BaseScores,
		Postprocessor:     raw.Postprocessor,
		SigmoidAlpha:      raw.SigmoidAlpha,
		RatioC:            raw.RatioC,
		AverageTreeOutput: raw.AverageTreeOutput,
		TargetID:          raw.TargetID,
		ClassID:           raw.ClassID,
	}
	switch raw.ThresholdType {
	case TypeFloat32:
		trees := make(Float32Trees, len(raw.Trees))
		for i, t := range raw.Trees {
			trees[i] = narrowTree(t)
		}
		m.Trees = trees
	case TypeFloat64:
		trees := make(Float64Trees, len(raw.Trees))
		copy(trees, raw.Trees)
		m.Trees = trees
	default:
		return nil, tcerr.Errorf(tcerr.KindInvalidModel,
			"threshold_type must be %q or %q, got %q", TypeFloat32, TypeFloat64, raw.ThresholdType)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

//Write encodes a Model as indented JSON.
func Write(w io.Writer, m *Model) error {
	raw := modelJSON{
		NumTarget:         m.NumTarget,
		NumClass:          m.NumClass,
		LeafVectorShape:   m.LeafVectorShape,
		NumFeature:        m.NumFeature,
		BaseScores:        m.BaseScores,
		Postprocessor:     m.Postprocessor,
		SigmoidAlpha:      m.SigmoidAlpha,
		RatioC:            m.RatioC,
		AverageTreeOutput: m.AverageTreeOutput,
		TargetID:          m.TargetID,
		ClassID:           m.ClassID,
		ThresholdType:     m.ThresholdType(),
	}
	switch trees := m.Trees.(type) {
	case Float32Trees:
		raw.Trees = make([]Tree[float64], len(trees))
		for i, t := range trees {
			raw.Trees[i] = widenTree(t)
		}
	case Float64Trees:
		raw.Trees = trees
	}
	payload, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return tcerr.Wrap(tcerr.KindIO, err, "failed to encode model JSON")
	}
	_, err = w.Write(payload)
	return tcerr.Wrap(tcerr.KindIO, err, "failed to write model JSON")
}

//LoadJSON reads a Model from a file on disk.
func LoadJSON(path string) (*Model, error) {
	source, err := os.Open(path)
	if err != nil {
		return nil, tcerr.Wrapf(tcerr.KindIO, err, "can't open model file %s", path)
	}
	defer source.Close()
	return Read(source)
}

//SaveJSON writes a Model to a file on disk.
func SaveJSON(path string, m *Model) error {
	dest, err := os.Create(path)
	if err != nil {
		return tcerr.Wrapf(tcerr.KindIO, err, "can't open file %s to write", path)
	}
	defer dest.Close()
	return Write(dest, m)
}
