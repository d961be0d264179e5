// Package lint provides static analysis checks for hand-written requests.
//
// The analyzer inspects domain.OpDescriptor and domain.InputList literals
// and reports:
//   - descriptors with a missing or empty Name
//   - names that do not parse as "<epa>:<op>" or "<epa>.<op>"
//   - the same identifier listed twice in one Input list
//   - two descriptors with the same ID in one slice literal
//
// Usage:
//
//	go install github.com/example/stratus-lite/cmd/stratus-lint@latest
//	stratus-lint ./...
package lint

import (
	"go/ast"
	"go/token"
	"go/types"
	"strconv"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"

	"github.com/example/stratus-lite/internal/domain"
)

// Analyzer is the op descriptor lint analyzer.
var Analyzer = &analysis.Analyzer{
	Name:     "opsetlint",
	Doc:      "checks for mistakes in OpDescriptor literals",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (any, error) {
	inspect := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{(*ast.CompositeLit)(nil)}
	inspect.Preorder(nodeFilter, func(n ast.Node) {
		lit := n.(*ast.CompositeLit)
		t := pass.TypesInfo.TypeOf(lit)
		switch {
		case isDomainType(t, "OpDescriptor"):
			checkDescriptor(pass, lit)
		case isDomainType(t, "InputList"):
			checkInputList(pass, lit)
		case isDescriptorSlice(t):
			checkDuplicateIDs(pass, lit)
		}
	})

	return nil, nil
}

func isDomainType(t types.Type, name string) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Name() == name && obj.Pkg() != nil && obj.Pkg().Name() == "domain"
}

func isDescriptorSlice(t types.Type) bool {
	if t == nil {
		return false
	}
	s, ok := t.Underlying().(*types.Slice)
	return ok && isDomainType(s.Elem(), "OpDescriptor")
}

// checkDescriptor reports a missing, empty or malformed Name.
func checkDescriptor(pass *analysis.Pass, lit *ast.CompositeLit) {
	if len(lit.Elts) > 0 {
		if _, keyed := lit.Elts[0].(*ast.KeyValueExpr); !keyed {
			// Positional literals must list every field; Name is second.
			if len(lit.Elts) > 1 {
				checkName(pass, lit.Elts[1])
			}
			return
		}
	}
	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		if key, ok := kv.Key.(*ast.Ident); ok && key.Name == "Name" {
			checkName(pass, kv.Value)
			return
		}
	}
	pass.Reportf(lit.Pos(), "OpDescriptor without a Name - no backend can be selected for it")
}

func checkName(pass *analysis.Pass, expr ast.Expr) {
	name, ok := stringLit(expr)
	if !ok {
		return
	}
	if name == "" {
		pass.Reportf(expr.Pos(), "OpDescriptor with an empty Name - no backend can be selected for it")
		return
	}
	if _, _, err := domain.ParseName(name); err != nil {
		pass.Reportf(expr.Pos(), "malformed op name %q", name)
	}
}

// checkInputList reports identifiers listed more than once.
func checkInputList(pass *analysis.Pass, lit *ast.CompositeLit) {
	seen := make(map[string]token.Pos)
	for _, elt := range lit.Elts {
		id, ok := stringLit(elt)
		if !ok {
			continue
		}
		if prev, exists := seen[id]; exists {
			pass.Reportf(elt.Pos(), "duplicate input %q (first seen at %v)", id, pass.Fset.Position(prev))
			continue
		}
		seen[id] = elt.Pos()
	}
}

// checkDuplicateIDs reports descriptors sharing a literal ID within one
// slice literal.
func checkDuplicateIDs(pass *analysis.Pass, lit *ast.CompositeLit) {
	seen := make(map[string]token.Pos)
	for _, elt := range lit.Elts {
		desc, ok := elt.(*ast.CompositeLit)
		if !ok {
			continue
		}
		for _, field := range desc.Elts {
			kv, ok := field.(*ast.KeyValueExpr)
			if !ok {
				continue
			}
			key, ok := kv.Key.(*ast.Ident)
			if !ok || key.Name != "ID" {
				continue
			}
			id, ok := stringLit(kv.Value)
			if !ok || id == "" {
				continue
			}
			if prev, exists := seen[id]; exists {
				pass.Reportf(kv.Value.Pos(), "duplicate op id %q (first seen at %v)", id, pass.Fset.Position(prev))
				continue
			}
			seen[id] = kv.Value.Pos()
		}
	}
}

func stringLit(expr ast.Expr) (string, bool) {
	lit, ok := expr.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	s, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", false
	}
	return s, true
}
