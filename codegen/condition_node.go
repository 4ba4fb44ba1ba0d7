package codegen

import (
	"fmt"
	"math"
	"strings"

	"github.com/tarstars/tree_codegen/ast"
	"github.com/tarstars/tree_codegen/model"
	"github.com/tarstars/tree_codegen/tcerr"
)

func fabsCFunc(thresholdCType string) string {
	if thresholdCType == "float" {
		return "fabsf"
	}
	return "fabs"
}

//extractNumericalCondition renders the raw comparison for a numerical split.
//Quantized splits compare the integer bin; infinite thresholds fold to a
//constant (IEEE 754 fixes the comparison's value for every finite operand).
func extractNumericalCondition(meta *ast.ModelMeta, p *ast.NumericalCondition) string {
	if p.QuantizedThreshold != nil {
		return fmt.Sprintf("data[%d].qvalue %s %d", p.SplitIndex, p.Op, *p.QuantizedThreshold)
	}
	if math.IsInf(p.Threshold, 0) {
		if model.CompareWithOp(0, p.Op, p.Threshold) {
			return "1"
		}
		return "0"
	}
	return fmt.Sprintf("data[%d].fvalue %s (%s)%s",
		p.SplitIndex, p.Op, cType(meta.TypeStr), ToStringHighPrecision(p.Threshold, meta.TypeStr))
}

//categoricalBitmap packs an ascending category list into 64-bit words.
func categoricalBitmap(categoryList []uint32) []uint64 {
	if len(categoryList) == 0 {
		return []uint64{0}
	}
	maxCategory := categoryList[len(categoryList)-1]
	bitmap := make([]uint64, (maxCategory+1+63)/64)
	for _, category := range categoryList {
		bitmap[category/64] |= uint64(1) << (category % 64)
	}
	return bitmap
}

//extractCategoricalCondition renders the full test for a categorical split,
//including its own missing-value guard.
func extractCategoricalCondition(meta *ast.ModelMeta, p *ast.CategoricalCondition) string {
	thresholdCType := cType(meta.TypeStr)
	bitmap := categoricalBitmap(p.CategoryList)
	allZeros := true
	for _, word := range bitmap {
		if word != 0 {
			allZeros = false
			break
		}
	}
	if allZeros {
		return "0"
	}
	var sb strings.Builder
	rightCategoriesFlag := ""
	if p.CategoryListRightChild {
		rightCategoriesFlag = "!"
	}
	if p.DefaultLeft {
		fmt.Fprintf(&sb, "data[%d].missing == -1 || %s((tmp = (unsigned int)(data[%d].fvalue) ), ",
			p.SplitIndex, rightCategoriesFlag, p.SplitIndex)
	} else {
		fmt.Fprintf(&sb, "data[%d].missing != -1 && %s((tmp = (unsigned int)(data[%d].fvalue) ), ",
			p.SplitIndex, rightCategoriesFlag, p.SplitIndex)
	}
	fmt.Fprintf(&sb, "((data[%d].fvalue >= 0) && (%s(data[%d].fvalue) <= (%s)(1U << FLT_MANT_DIG)) && (",
		p.SplitIndex, fabsCFunc(thresholdCType), p.SplitIndex, thresholdCType)
	fmt.Fprintf(&sb, "(tmp >= 0 && tmp < 64 && (( (uint64_t)%dU >> tmp) & 1) )", bitmap[0])
	for i := 1; i < len(bitmap); i++ {
		fmt.Fprintf(&sb, " || (tmp >= %d && tmp < %d && (( (uint64_t)%dU >> (tmp - %d) ) & 1) )",
			i*64, (i+1)*64, bitmap[i], i*64)
	}
	sb.WriteString(")))")
	return sb.String()
}

func handleConditionNode(b *ast.Builder, id ast.NodeID, gencode *CodeCollection) error {
	node := b.Node(id)
	var conditionWithNACheck string
	switch p := node.Payload.(type) {
	case *ast.NumericalCondition:
		condition := extractNumericalCondition(b.Meta(), p)
		if p.DefaultLeft {
			conditionWithNACheck = fmt.Sprintf("!(data[%d].missing != -1) || (%s)", p.SplitIndex, condition)
		} else {
			conditionWithNACheck = fmt.Sprintf(" (data[%d].missing != -1) && (%s)", p.SplitIndex, condition)
		}
	case *ast.CategoricalCondition:
		conditionWithNACheck = extractCategoricalCondition(b.Meta(), p)
	default:
		return tcerr.New(tcerr.KindInvalidState, "condition handler called on a non-condition node")
	}
	if len(node.Children) != 2 {
		return tcerr.Errorf(tcerr.KindInvalidState,
			"a condition must have exactly two children, got %d", len(node.Children))
	}
	left, right := node.Children[0], node.Children[1]
	if b.Node(left).DataCount != nil && b.Node(right).DataCount != nil {
		keyword := "UNLIKELY"
		if *b.Node(left).DataCount > *b.Node(right).DataCount {
			keyword = "LIKELY"
		}
		conditionWithNACheck = fmt.Sprintf(" %s( %s ) ", keyword, conditionWithNACheck)
	}
	gencode.PushFragment(fmt.Sprintf("if (%s) {\n", conditionWithNACheck))
	gencode.ChangeIndent(1)
	if err := generateFromNode(b, left, gencode); err != nil {
		return err
	}
	gencode.ChangeIndent(-1)
	gencode.PushFragment("} else {")
	gencode.ChangeIndent(1)
	if err := generateFromNode(b, right, gencode); err != nil {
		return err
	}
	gencode.ChangeIndent(-1)
	gencode.PushFragment("}")
	return nil
}
