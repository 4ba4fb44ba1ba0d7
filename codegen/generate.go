package codegen

import (
	"github.com/tarstars/tree_codegen/ast"
	"github.com/tarstars/tree_codegen/tcerr"
)

//GenerateCode runs the recursive emission pass over the AST rooted at the
//builder's Main node and returns the collected source files.
func GenerateCode(b *ast.Builder) (*CodeCollection, error) {
	if b.Root() == ast.NilNode {
		return nil, tcerr.New(tcerr.KindInvalidState, "GenerateCode requires a built AST")
	}
	gencode := NewCodeCollection()
	if err := generateFromNode(b, b.Root(), gencode); err != nil {
		return nil, err
	}
	return gencode, nil
}

func generateFromNode(b *ast.Builder, id ast.NodeID, gencode *CodeCollection) error {
	node := b.Node(id)
	switch payload := node.Payload.(type) {
	case *ast.Main:
		return handleMainNode(b, id, payload, gencode)
	case *ast.Function:
		return handleFunctionNode(b, id, gencode)
	case *ast.NumericalCondition, *ast.CategoricalCondition:
		return handleConditionNode(b, id, gencode)
	case *ast.Output:
		return handleOutputNode(b, id, payload, gencode)
	case *ast.TranslationUnit:
		return handleTranslationUnitNode(b, id, payload, gencode)
	case *ast.Quantizer:
		return handleQuantizerNode(b, id, payload, gencode)
	}
	return tcerr.New(tcerr.KindInvalidState, "unrecognized AST node type")
}
