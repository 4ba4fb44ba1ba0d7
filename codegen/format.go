package codegen

import (
	"fmt"
	"strconv"
	"strings"
)

func itoa(v int) string {
	return strconv.Itoa(v)
}

//IndentMultiLineString prefixes every line of a multi-line string with the
//given number of spaces.
func IndentMultiLineString(s string, indent int) string {
	if indent == 0 {
		return s
	}
	pad := strings.Repeat(" ", indent)
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = pad + lines[i]
	}
	return strings.Join(lines, "\n")
}

//render substitutes {name} placeholders in a template. C braces pass through
//untouched since only registered placeholders are replaced.
func render(template string, vars map[string]string) string {
	pairs := make([]string, 0, 2*len(vars))
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

//cType maps a type string of the model boundary to the C type used in the
//generated source.
func cType(typeStr string) string {
	if typeStr == "float32" {
		return "float"
	}
	return "double"
}

//ToStringHighPrecision renders a floating-point constant with enough digits
//to survive a decimal round trip, plus a two-digit safety margin.
func ToStringHighPrecision(v float64, typeStr string) string {
	if typeStr == "float32" {
		return fmt.Sprintf("%.11g", v)
	}
	return fmt.Sprintf("%.19g", v)
}

//formatLeaf renders a leaf constant at full (shortest round-trip) precision.
func formatLeaf(v float64, typeStr string) string {
	if typeStr == "float32" {
		return strconv.FormatFloat(v, 'g', -1, 32)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

//arrayFloatToken renders one element of a static array initializer.
func arrayFloatToken(v float64, typeStr string) string {
	if typeStr == "float32" {
		return fmt.Sprintf("%.8g", v)
	}
	return fmt.Sprintf("%.17g", v)
}

//ArrayFormatter lays out array initializer elements, wrapped to a maximum
//text width with a fixed indent.
type ArrayFormatter struct {
	sb         strings.Builder
	textWidth  int
	indent     int
	lineLength int
	empty      bool
}

func NewArrayFormatter(textWidth, indent int) *ArrayFormatter {
	return &ArrayFormatter{textWidth: textWidth, indent: indent, lineLength: indent, empty: true}
}

//Append adds one rendered element followed by a comma separator.
func (f *ArrayFormatter) Append(element string) *ArrayFormatter {
	if f.empty {
		f.empty = false
		f.sb.WriteString(strings.Repeat(" ", f.indent))
	}
	token := element + ", "
	if f.lineLength+len(token) <= f.textWidth {
		f.sb.WriteString(token)
		f.lineLength += len(token)
	} else {
		f.sb.WriteString("\n")
		f.sb.WriteString(strings.Repeat(" ", f.indent))
		f.sb.WriteString(token)
		f.lineLength = len(token) + f.indent
	}
	return f
}

func (f *ArrayFormatter) AppendInt(v int) *ArrayFormatter {
	return f.Append(strconv.Itoa(v))
}

func (f *ArrayFormatter) String() string {
	return f.sb.String()
}
