package codegen

import (
	"github.com/tarstars/tree_codegen/ast"
)

//handleFunctionNode opens the scratch variable used by categorical tests and
//emits every child in tree order. Children are per-tree subtrees, or
//TranslationUnit nodes after the split pass.
func handleFunctionNode(b *ast.Builder, id ast.NodeID, gencode *CodeCollection) error {
	gencode.PushFragment("unsigned int tmp;")
	for _, child := range b.Node(id).Children {
		if err := generateFromNode(b, child, gencode); err != nil {
			return err
		}
	}
	return nil
}
