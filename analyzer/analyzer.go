// Package analyzer statically vets guest Python source before it runs.
//
// Source is parsed into a syntax tree with tree-sitter. Every import of a
// blocked module, every bare-name call or other use of a blocked builtin,
// every access to a blocked or non-allowed dunder attribute, and every
// reference to a blocked name is reported; analysis never stops at the
// first violation.
// Calls made through ordinary attribute access (mod.exec()) are not
// inspected.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// DefaultMaxSourceBytes bounds the size of a single source unit.
const DefaultMaxSourceBytes = 1 << 20

// Verdict is the outcome of analyzing one source unit.
type Verdict struct {
	Safe bool `json:"safe"`
	// Reason joins every violation with "; ". Empty when Safe.
	Reason     string   `json:"reason,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

func safeVerdict() Verdict {
	return Verdict{Safe: true}
}

func unsafeVerdict(violations ...string) Verdict {
	return Verdict{
		Safe:       false,
		Reason:     strings.Join(violations, "; "),
		Violations: violations,
	}
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMaxSourceBytes rejects sources larger than n bytes with a parse error.
func WithMaxSourceBytes(n int) Option {
	return func(a *Analyzer) {
		a.maxSourceBytes = n
	}
}

// Analyzer checks Python source against a Blocklist. It holds no mutable
// state and is safe for concurrent use.
type Analyzer struct {
	modules        map[string]struct{}
	builtins       map[string]struct{}
	attributes     map[string]struct{}
	names          map[string]struct{}
	maxSourceBytes int
}

// allowedDunders are the dunder attributes ordinary class code needs. Any
// other dunder attribute (__globals__, __subclasses__, __traceback__, ...)
// is rejected.
var allowedDunders = toSet([]string{
	"__init__",
	"__name__",
	"__qualname__",
	"__module__",
	"__doc__",
	"__class__",
	"__str__",
	"__repr__",
	"__len__",
	"__eq__",
	"__ne__",
	"__lt__",
	"__le__",
	"__gt__",
	"__ge__",
	"__hash__",
	"__iter__",
	"__next__",
	"__contains__",
	"__getitem__",
	"__setitem__",
	"__add__",
})

// New returns an Analyzer enforcing bl.
func New(bl Blocklist, opts ...Option) *Analyzer {
	a := &Analyzer{
		modules:        toSet(bl.Modules),
		builtins:       toSet(bl.Builtins),
		attributes:     toSet(bl.Attributes),
		names:          toSet(bl.Names),
		maxSourceBytes: DefaultMaxSourceBytes,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze parses source and returns its verdict.
func (a *Analyzer) Analyze(ctx context.Context, source string) Verdict {
	if a.maxSourceBytes > 0 && len(source) > a.maxSourceBytes {
		return unsafeVerdict(fmt.Sprintf("Parse Error: source is %d bytes, limit is %d", len(source), a.maxSourceBytes))
	}

	src := []byte(source)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return unsafeVerdict("Parse Error: " + err.Error())
	}
	if tree == nil {
		return unsafeVerdict("Parse Error: parser produced no syntax tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return unsafeVerdict("Syntax Error: " + describeSyntaxError(root))
	}

	violations := a.walk(root, src)
	if len(violations) == 0 {
		return safeVerdict()
	}
	return unsafeVerdict(violations...)
}

// walk visits named nodes in source order and collects violations.
func (a *Analyzer) walk(root *sitter.Node, src []byte) []string {
	var violations []string

	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch n.Type() {
		case "import_statement":
			violations = append(violations, a.checkImport(n, src)...)
		case "import_from_statement":
			if v, ok := a.checkImportFrom(n, src); ok {
				violations = append(violations, v)
			}
		case "call":
			if v, ok := a.checkCall(n, src); ok {
				violations = append(violations, v)
			}
		case "attribute":
			if v, ok := a.checkAttribute(n, src); ok {
				violations = append(violations, v)
			}
		case "identifier":
			if v, ok := a.checkName(n, src); ok {
				violations = append(violations, v)
			}
		case "exec_statement":
			// Python 2 form, accepted by the grammar.
			if _, blocked := a.builtins["exec"]; blocked {
				violations = append(violations, "Calling 'exec()' is not allowed")
			}
		}

		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.NamedChild(i))
		}
	}

	return violations
}

// checkImport handles "import a.b, c as d". Aliases do not hide the module.
func (a *Analyzer) checkImport(n *sitter.Node, src []byte) []string {
	var violations []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		nameNode := child
		if child.Type() == "aliased_import" {
			nameNode = child.ChildByFieldName("name")
		}
		if nameNode == nil || nameNode.Type() != "dotted_name" {
			continue
		}

		top := topLevel(nameNode.Content(src))
		if a.moduleBlocked(top) {
			violations = append(violations, fmt.Sprintf("Importing '%s' is not allowed", top))
		}
	}
	return violations
}

// checkImportFrom handles "from a.b import c", including relative forms.
func (a *Analyzer) checkImportFrom(n *sitter.Node, src []byte) (string, bool) {
	moduleNode := n.ChildByFieldName("module_name")
	if moduleNode == nil {
		return "", false
	}

	module := normalizeDotted(moduleNode.Content(src))
	module = strings.TrimLeft(module, ".")
	if module == "" {
		return "", false
	}

	if a.moduleBlocked(topLevel(module)) {
		return fmt.Sprintf("Importing from '%s' is not allowed", module), true
	}
	return "", false
}

func (a *Analyzer) checkCall(n *sitter.Node, src []byte) (string, bool) {
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" {
		return "", false
	}

	name := fn.Content(src)
	if _, blocked := a.builtins[name]; blocked {
		return fmt.Sprintf("Calling '%s()' is not allowed", name), true
	}
	return "", false
}

// moduleBlocked reports whether importing top is forbidden. Private
// modules (_io, _thread, ...) expose the same machinery as their public
// counterparts and are always blocked.
func (a *Analyzer) moduleBlocked(top string) bool {
	if _, blocked := a.modules[top]; blocked {
		return true
	}
	return strings.HasPrefix(top, "_") && top != "__future__"
}

func (a *Analyzer) checkAttribute(n *sitter.Node, src []byte) (string, bool) {
	attr := n.ChildByFieldName("attribute")
	if attr == nil {
		return "", false
	}

	name := attr.Content(src)
	_, blocked := a.attributes[name]
	if !blocked && isDunder(name) {
		_, allowed := allowedDunders[name]
		blocked = !allowed
	}
	if blocked {
		return fmt.Sprintf("Accessing '%s' is not allowed", name), true
	}
	return "", false
}

// checkName flags references to blocked identifiers, and blocked builtins
// used as values (reduce(getattr, ...)). Calls are left to checkCall, the
// attribute part of x.name to checkAttribute.
func (a *Analyzer) checkName(n *sitter.Node, src []byte) (string, bool) {
	name := n.Content(src)
	_, blocked := a.names[name]
	if !blocked {
		_, builtin := a.builtins[name]
		blocked = builtin && !isField(n.Parent(), "function", n)
	}
	if !blocked {
		return "", false
	}

	p := n.Parent()
	if isField(p, "attribute", n) || (p != nil && p.Type() == "keyword_argument" && isField(p, "name", n)) {
		return "", false
	}
	return fmt.Sprintf("Using '%s' is not allowed", name), true
}

// isField reports whether n is the named field of parent.
func isField(parent *sitter.Node, field string, n *sitter.Node) bool {
	if parent == nil {
		return false
	}
	child := parent.ChildByFieldName(field)
	return child != nil && child.StartByte() == n.StartByte() && child.EndByte() == n.EndByte()
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

// describeSyntaxError reports the deepest ERROR or MISSING node, the first
// one in source order on ties. An ERROR node wraps the tokens the parser
// could not fit, ending with the offending one, so its last child's
// position is reported.
func describeSyntaxError(root *sitter.Node) string {
	type entry struct {
		node  *sitter.Node
		depth int
	}

	var found *sitter.Node
	foundDepth := -1

	stack := []entry{{root, 0}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if (e.node.IsMissing() || e.node.Type() == "ERROR") && e.depth > foundDepth {
			found, foundDepth = e.node, e.depth
		}

		for i := int(e.node.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, entry{e.node.Child(i), e.depth + 1})
		}
	}

	if found == nil {
		return "invalid syntax"
	}

	if found.IsMissing() {
		pos := found.StartPoint()
		return fmt.Sprintf("expected '%s' at line %d, column %d", found.Type(), pos.Row+1, pos.Column+1)
	}

	pos := found.StartPoint()
	if c := int(found.ChildCount()); c > 0 {
		pos = found.Child(c - 1).StartPoint()
	}
	return fmt.Sprintf("invalid syntax at line %d, column %d", pos.Row+1, pos.Column+1)
}

func normalizeDotted(name string) string {
	return strings.Join(strings.Fields(name), "")
}

func topLevel(dotted string) string {
	dotted = normalizeDotted(dotted)
	if i := strings.IndexByte(dotted, '.'); i >= 0 {
		return dotted[:i]
	}
	return dotted
}
