// Package wiregen writes MarshalWire and UnmarshalWire methods for structs
// marked with a //wire:generate comment. The generated methods produce the
// same bytes as the reflective wire strategies, so a type can move between
// the two without a protocol change.
package wiregen

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"reflect"
	"strconv"
)

// Directive marks a struct type for generation.
const Directive = "//wire:generate"

type Kind int

const (
	KindScalar Kind = iota
	KindString
	KindBytes
	KindByteArray
	KindStruct
	KindSlice
)

// Plan says how one field, or one slice element, is written.
type Plan struct {
	Kind   Kind
	Method string // Writer/Reader suffix for scalars, e.g. "Uint32"
	Base   string // builtin type behind a named scalar
	Conv   string // named scalar type, empty for builtins
	GoType string // type expression, used for make
	Elem   *Plan
}

type Field struct {
	Name string
	Plan *Plan
}

type Type struct {
	Name   string
	Fields []Field
}

type File struct {
	Package string
	Types   []Type
}

var scalarMethods = map[string]string{
	"bool":    "Bool",
	"int8":    "Int8",
	"uint8":   "Uint8",
	"byte":    "Uint8",
	"int16":   "Int16",
	"uint16":  "Uint16",
	"int32":   "Int32",
	"uint32":  "Uint32",
	"int64":   "Int64",
	"uint64":  "Uint64",
	"float32": "Float32",
	"float64": "Float64",
}

// Parse reads Go source and plans every marked struct in it.
func Parse(filename string, src []byte) (*File, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	p := &planner{
		fset:    fset,
		scalars: map[string]string{},
		marked:  map[string]*ast.StructType{},
	}
	var order []string
	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts := spec.(*ast.TypeSpec)
			switch t := ts.Type.(type) {
			case *ast.Ident:
				if _, ok := scalarMethods[t.Name]; ok {
					p.scalars[ts.Name.Name] = t.Name
				}
			case *ast.StructType:
				doc := ts.Doc
				if doc == nil && len(gd.Specs) == 1 {
					doc = gd.Doc
				}
				if hasDirective(doc) {
					p.marked[ts.Name.Name] = t
					order = append(order, ts.Name.Name)
				}
			}
		}
	}

	out := &File{Package: f.Name.Name}
	for _, name := range order {
		typ, err := p.planStruct(name, p.marked[name])
		if err != nil {
			return nil, err
		}
		out.Types = append(out.Types, typ)
	}
	return out, nil
}

func hasDirective(doc *ast.CommentGroup) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		if c.Text == Directive {
			return true
		}
	}
	return false
}

type planner struct {
	fset    *token.FileSet
	scalars map[string]string // named scalar -> builtin
	marked  map[string]*ast.StructType
}

func (p *planner) planStruct(name string, st *ast.StructType) (Type, error) {
	typ := Type{Name: name}
	for _, f := range st.Fields.List {
		if len(f.Names) == 0 {
			return Type{}, p.errorf(f.Pos(), "%s: embedded fields are not supported", name)
		}
		if f.Tag != nil {
			tag, err := strconv.Unquote(f.Tag.Value)
			if err == nil && reflect.StructTag(tag).Get("wire") == "-" {
				continue
			}
		}
		var names []string
		for _, n := range f.Names {
			if n.IsExported() {
				names = append(names, n.Name)
			}
		}
		if len(names) == 0 {
			continue
		}
		plan, err := p.plan(f.Type, false)
		if err != nil {
			return Type{}, p.errorf(f.Pos(), "%s.%s: %v", name, names[0], err)
		}
		for _, n := range names {
			typ.Fields = append(typ.Fields, Field{Name: n, Plan: plan})
		}
	}
	return typ, nil
}

func (p *planner) plan(expr ast.Expr, inSlice bool) (*Plan, error) {
	goType := types.ExprString(expr)
	switch t := expr.(type) {
	case *ast.Ident:
		if m, ok := scalarMethods[t.Name]; ok {
			return &Plan{Kind: KindScalar, Method: m, Base: t.Name, GoType: goType}, nil
		}
		if base, ok := p.scalars[t.Name]; ok {
			return &Plan{Kind: KindScalar, Method: scalarMethods[base], Base: base, Conv: t.Name, GoType: goType}, nil
		}
		if _, ok := p.marked[t.Name]; ok {
			return &Plan{Kind: KindStruct, GoType: goType}, nil
		}
		switch t.Name {
		case "string":
			return &Plan{Kind: KindString, GoType: goType}, nil
		case "int", "uint", "uintptr":
			return nil, fmt.Errorf("%s has no fixed width", t.Name)
		}
		return nil, fmt.Errorf("type %s is neither a scalar nor marked %s", t.Name, Directive)

	case *ast.ArrayType:
		if t.Len == nil {
			if isByte(t.Elt) {
				if inSlice {
					return nil, fmt.Errorf("nested sequences are not supported")
				}
				return &Plan{Kind: KindBytes, GoType: goType}, nil
			}
			if inSlice {
				return nil, fmt.Errorf("nested sequences are not supported")
			}
			elem, err := p.plan(t.Elt, true)
			if err != nil {
				return nil, err
			}
			return &Plan{Kind: KindSlice, GoType: goType, Elem: elem}, nil
		}
		if isByte(t.Elt) {
			return &Plan{Kind: KindByteArray, GoType: goType}, nil
		}
		return nil, fmt.Errorf("fixed arrays of %s are not supported", types.ExprString(t.Elt))
	}
	return nil, fmt.Errorf("unsupported field type %s", goType)
}

func isByte(expr ast.Expr) bool {
	id, ok := expr.(*ast.Ident)
	return ok && (id.Name == "byte" || id.Name == "uint8")
}

func (p *planner) errorf(pos token.Pos, format string, args ...any) error {
	return fmt.Errorf("%s: %s", p.fset.Position(pos), fmt.Sprintf(format, args...))
}
