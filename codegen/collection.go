// Package codegen converts the AST into multi-file C source with a build
// recipe. Emission is a single recursive pass dispatching on node kind.
package codegen

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/tarstars/tree_codegen/tcerr"
)

//Fragment is one block of generated text plus the indent (in spaces) applied
//to each of its lines when written out.
type Fragment struct {
	Content string
	Indent  int
}

type sourceFile struct {
	fragments     []Fragment
	currentIndent int
}

//CodeCollection maps source-file names to ordered fragment sequences. One
//file is "current" at any time; PushFragment appends to it.
type CodeCollection struct {
	sources map[string]*sourceFile
	current string
}

func NewCodeCollection() *CodeCollection {
	return &CodeCollection{sources: make(map[string]*sourceFile)}
}

//CurrentSourceFile reports the name of the file receiving fragments.
func (c *CodeCollection) CurrentSourceFile() string {
	return c.current
}

//SwitchToSourceFile changes the current file, creating it on first use.
func (c *CodeCollection) SwitchToSourceFile(name string) {
	if _, ok := c.sources[name]; !ok {
		c.sources[name] = &sourceFile{}
	}
	c.current = name
}

//ChangeIndent moves the current file's indent by delta levels of two spaces.
func (c *CodeCollection) ChangeIndent(delta int) {
	file := c.sources[c.current]
	file.currentIndent += delta * 2
	if file.currentIndent < 0 {
		file.currentIndent = 0
	}
}

//PushFragment appends a text block to the current file at its current indent.
func (c *CodeCollection) PushFragment(content string) {
	file := c.sources[c.current]
	file.fragments = append(file.fragments, Fragment{Content: content, Indent: file.currentIndent})
}

//FileNames lists the collected files in lexicographic order.
func (c *CodeCollection) FileNames() []string {
	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

//Fragments returns the fragment sequence of one file.
func (c *CodeCollection) Fragments(name string) []Fragment {
	if file, ok := c.sources[name]; ok {
		return file.fragments
	}
	return nil
}

//FileContent renders one file: fragments with indentation applied, separated
//by newlines, with a trailing newline.
func (c *CodeCollection) FileContent(name string) string {
	var sb strings.Builder
	for _, fragment := range c.Fragments(name) {
		sb.WriteString(IndentMultiLineString(fragment.Content, fragment.Indent))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (c *CodeCollection) String() string {
	var sb strings.Builder
	for _, name := range c.FileNames() {
		sb.WriteString("======== ")
		sb.WriteString(name)
		sb.WriteString(" ========\n")
		sb.WriteString(c.FileContent(name))
	}
	return sb.String()
}

//lineCount counts the newline characters inside a file's raw fragments; the
//build recipe reports this figure per source.
func (c *CodeCollection) lineCount(name string) int {
	count := 0
	for _, fragment := range c.Fragments(name) {
		count += strings.Count(fragment.Content, "\n")
	}
	return count
}

//WriteCodeToDisk materializes every collected file under dirpath.
func WriteCodeToDisk(dirpath string, collection *CodeCollection) error {
	for _, name := range collection.FileNames() {
		if err := writeFile(filepath.Join(dirpath, name), collection.FileContent(name)); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path, content string) (err error) {
	of, err := os.Create(path)
	if err != nil {
		return tcerr.Wrapf(tcerr.KindIO, err, "can't create %s", path)
	}
	defer func() {
		err = multierr.Append(err, tcerr.Wrapf(tcerr.KindIO, of.Close(), "can't close %s", path))
	}()
	w := bufio.NewWriter(of)
	if _, err := w.WriteString(content); err != nil {
		return tcerr.Wrapf(tcerr.KindIO, err, "can't write %s", path)
	}
	return tcerr.Wrapf(tcerr.KindIO, w.Flush(), "can't write %s", path)
}

//WriteBuildRecipeToDisk emits recipe.json: the target library name plus the
//name and line count of every generated .c file, with single-line arrays.
func WriteBuildRecipeToDisk(dirpath, nativeLibName string, collection *CodeCollection) error {
	var sb strings.Builder
	sb.WriteString("{\n")
	sb.WriteString("    \"target\": \"" + nativeLibName + "\",\n")
	sb.WriteString("    \"sources\": [")
	first := true
	for _, name := range collection.FileNames() {
		if !strings.HasSuffix(name, ".c") {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		stem := strings.TrimSuffix(name, ".c")
		sb.WriteString("{ \"name\": \"" + stem + "\", \"length\": " + itoa(collection.lineCount(name)) + " }")
	}
	sb.WriteString("]\n")
	sb.WriteString("}\n")
	return writeFile(filepath.Join(dirpath, "recipe.json"), sb.String())
}
