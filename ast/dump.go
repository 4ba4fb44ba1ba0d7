package ast

import (
	"fmt"
	"strconv"
	"strings"
)

func formatValue(v float64, typeStr string) string {
	if typeStr == "float32" {
		return strconv.FormatFloat(v, 'g', -1, 32)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatValueList(values []float64, typeStr string) string {
	var sb strings.Builder
	sb.WriteString("[")
	for _, v := range values {
		sb.WriteString(formatValue(v, typeStr))
		sb.WriteString(", ")
	}
	sb.WriteString("]")
	return sb.String()
}

//dumpLine renders a single node as one line of the text dump.
func (b *Builder) dumpLine(node *Node) string {
	switch p := node.Payload.(type) {
	case *Main:
		return fmt.Sprintf("MainNode { base_scores: float64%s }", formatValueList(p.BaseScores, "float64"))
	case *Quantizer:
		var sb strings.Builder
		sb.WriteString("[ ")
		for _, list := range p.ThresholdList {
			sb.WriteString("[ ")
			for _, v := range list {
				sb.WriteString(formatValue(v, b.meta.TypeStr))
				sb.WriteString(", ")
			}
			sb.WriteString("], ")
		}
		sb.WriteString("]")
		return fmt.Sprintf("QuantizerNode { threshold_list: %s%s }", b.meta.TypeStr, sb.String())
	case *Function:
		return "FunctionNode {}"
	case *TranslationUnit:
		return fmt.Sprintf("TranslationUnitNode { unit_id: %d }", p.UnitID)
	case *NumericalCondition:
		condition := fmt.Sprintf("split_index: %d, default_left: %t", p.SplitIndex, p.DefaultLeft)
		if p.Gain != nil {
			condition += fmt.Sprintf(", gain: %v", *p.Gain)
		}
		quantized := ""
		if p.QuantizedThreshold != nil {
			quantized = fmt.Sprintf("quantized_threshold: int(%d), ", *p.QuantizedThreshold)
		}
		return fmt.Sprintf("NumericalConditionNode { %s, op: %s, threshold: %s(%s), %szero_quantized: %d }",
			condition, p.Op, b.meta.TypeStr, formatValue(p.Threshold, b.meta.TypeStr), quantized, p.ZeroQuantized)
	case *CategoricalCondition:
		condition := fmt.Sprintf("split_index: %d, default_left: %t", p.SplitIndex, p.DefaultLeft)
		if p.Gain != nil {
			condition += fmt.Sprintf(", gain: %v", *p.Gain)
		}
		var sb strings.Builder
		sb.WriteString("[")
		for _, c := range p.CategoryList {
			fmt.Fprintf(&sb, "%d, ", c)
		}
		sb.WriteString("]")
		return fmt.Sprintf("CategoricalConditionNode { %s, category_list: %s, category_list_right_child: %t }",
			condition, sb.String(), p.CategoryListRightChild)
	case *Output:
		return fmt.Sprintf("OutputNode { target_id: %d, class_id: %d, output: %s%s }",
			p.TargetID, p.ClassID, b.meta.TypeStr, formatValueList(p.LeafOutput, b.meta.TypeStr))
	}
	return "<unknown node>"
}

func (b *Builder) dumpFromNode(sb *strings.Builder, id NodeID, indent int) {
	node := b.Node(id)
	sb.WriteString(strings.Repeat(" ", indent))
	sb.WriteString(b.dumpLine(node))
	sb.WriteString("\n")
	for _, child := range node.Children {
		b.dumpFromNode(sb, child, indent+2)
	}
}

//Dump returns a human-readable text rendering of the AST, one node per line
//indented by depth, followed by a metadata line.
func (b *Builder) Dump() string {
	var sb strings.Builder
	b.dumpFromNode(&sb, b.root, 0)
	sb.WriteString("Metadata: \n")
	sb.WriteString("is_categorical = [")
	for _, e := range b.meta.IsCategorical {
		sb.WriteString(strconv.FormatBool(e))
		sb.WriteString(", ")
	}
	fmt.Fprintf(&sb, "], leaf_vector_shape = [%d, %d], num_feature = %d",
		b.meta.LeafVectorShape[0], b.meta.LeafVectorShape[1], b.meta.NumFeature)
	return sb.String()
}
