package codegen

import (
	"fmt"

	"github.com/tarstars/tree_codegen/ast"
	"github.com/tarstars/tree_codegen/tcerr"
)

//handleTranslationUnitNode splits a group of trees into its own source file
//tu{unit_id}.c. The caller's file receives a call to the unit's function and
//the header its prototype.
func handleTranslationUnitNode(b *ast.Builder, id ast.NodeID, payload *ast.TranslationUnit, gencode *CodeCollection) error {
	meta := b.Meta()
	leafOutputCType := cType(meta.TypeStr)
	unitName := fmt.Sprintf("predict_unit%d", payload.UnitID)

	gencode.PushFragment(fmt.Sprintf("%s(data, result);", unitName))

	currentFile := gencode.CurrentSourceFile()
	gencode.SwitchToSourceFile("header.h")
	gencode.PushFragment(fmt.Sprintf("void %s(union Entry* data, %s* result);", unitName, leafOutputCType))

	gencode.SwitchToSourceFile(fmt.Sprintf("tu%d.c", payload.UnitID))
	gencode.PushFragment("#include \"header.h\"\n")
	gencode.PushFragment(fmt.Sprintf("void %s(union Entry* data, %s* result) {", unitName, leafOutputCType))
	gencode.ChangeIndent(1)
	if len(b.Node(id).Children) != 1 {
		return tcerr.Errorf(tcerr.KindInvalidState,
			"a translation unit must have exactly one child, got %d", len(b.Node(id).Children))
	}
	if err := generateFromNode(b, b.Node(id).Children[0], gencode); err != nil {
		return err
	}
	gencode.ChangeIndent(-1)
	gencode.PushFragment("}")
	gencode.SwitchToSourceFile(currentFile)
	return nil
}
