package model

import (
	"github.com/tarstars/tree_codegen/tcerr"
)

//Type strings shared by the model boundary, the generated C and the
//predictor ABI.
const (
	TypeFloat32 = "float32"
	TypeFloat64 = "float64"
)

//Postprocessor names recognized by the code generator.
var KnownPostprocessors = []string{
	"identity",
	"signed_square",
	"hinge",
	"sigmoid",
	"exponential",
	"exponential_standard_ratio",
	"logarithm_one_plus_exp",
	"identity_multiclass",
	"softmax",
	"multiclass_ova",
}

//Trees is the two-armed variant of the per-model tree list. Threshold and
//leaf-output element types are bound together and fixed for a whole model.
type Trees interface {
	NumTree() int
	//TypeString reports the bound element type, "float32" or "float64".
	TypeString() string
}

//Float32Trees binds thresholds and leaf outputs to float32.
type Float32Trees []Tree[float32]

func (t Float32Trees) NumTree() int       { return len(t) }
func (t Float32Trees) TypeString() string { return TypeFloat32 }

//Float64Trees binds thresholds and leaf outputs to float64.
type Float64Trees []Tree[float64]

func (t Float64Trees) NumTree() int       { return len(t) }
func (t Float64Trees) TypeString() string { return TypeFloat64 }

//Model is the immutable input of the compiler pipeline.
type Model struct {
	NumTarget         int32
	NumClass          []int32
	LeafVectorShape   [2]int32
	NumFeature        int32
	BaseScores        []float64
	Postprocessor     string
	SigmoidAlpha      float32
	RatioC            float32
	AverageTreeOutput bool
	//TargetID[i] and ClassID[i] assign tree i to an output slot; -1 means
	//"applies to all".
	TargetID []int32
	ClassID  []int32
	Trees    Trees
}

func (m *Model) NumTree() int {
	return m.Trees.NumTree()
}

//MaxNumClass returns the widest class count across targets.
func (m *Model) MaxNumClass() int32 {
	max := int32(1)
	for _, n := range m.NumClass {
		if n > max {
			max = n
		}
	}
	return max
}

//ThresholdType reports the element type bound to the model's trees.
func (m *Model) ThresholdType() string {
	return m.Trees.TypeString()
}

//Validate checks the structural consistency of the model record.
func (m *Model) Validate() error {
	if m.NumTarget <= 0 {
		return tcerr.Errorf(tcerr.KindInvalidModel, "num_target must be positive, got %d", m.NumTarget)
	}
	if len(m.NumClass) != int(m.NumTarget) {
		return tcerr.Errorf(tcerr.KindInvalidModel,
			"num_class must have num_target = %d entries, got %d", m.NumTarget, len(m.NumClass))
	}
	if m.NumFeature <= 0 {
		return tcerr.Errorf(tcerr.KindInvalidModel, "num_feature must be positive, got %d", m.NumFeature)
	}
	if m.Trees == nil {
		return tcerr.New(tcerr.KindInvalidModel, "model has no trees")
	}
	ntree := m.Trees.NumTree()
	if len(m.TargetID) != ntree || len(m.ClassID) != ntree {
		return tcerr.Errorf(tcerr.KindInvalidModel,
			"target_id and class_id must have one entry per tree (%d), got %d and %d",
			ntree, len(m.TargetID), len(m.ClassID))
	}
	maxNumClass := m.MaxNumClass()
	shape := m.LeafVectorShape
	shapeOK := (shape == [2]int32{1, 1}) ||
		(shape == [2]int32{m.NumTarget, 1}) ||
		(shape == [2]int32{1, maxNumClass}) ||
		(shape == [2]int32{m.NumTarget, maxNumClass})
	if !shapeOK {
		return tcerr.Errorf(tcerr.KindInvalidModel,
			"leaf_vector_shape [%d, %d] is not one of [1,1], [num_target,1], [1,max_num_class], [num_target,max_num_class]",
			shape[0], shape[1])
	}
	if len(m.BaseScores) != int(m.NumTarget)*int(maxNumClass) {
		return tcerr.Errorf(tcerr.KindInvalidModel,
			"base_scores must have num_target*max_num_class = %d entries, got %d",
			int(m.NumTarget)*int(maxNumClass), len(m.BaseScores))
	}
	known := false
	for _, name := range KnownPostprocessors {
		if m.Postprocessor == name {
			known = true
			break
		}
	}
	if !known {
		return tcerr.Errorf(tcerr.KindInvalidModel, "unknown postprocessor: %q", m.Postprocessor)
	}
	return nil
}
