package wiregen

import (
	"bytes"
	"fmt"
	"go/format"
	"strings"
	"text/template"
)

// DefaultWireImport is the import path of the runtime the generated code
// calls into.
const DefaultWireImport = "gamewire/wire"

var fileTemplate = template.Must(template.New("wire").Funcs(template.FuncMap{
	"encode": func(f Field) string { return encodeField("m."+f.Name, f.Plan) },
	"decode": func(f Field) string { return decodeField("m."+f.Name, f.Plan) },
}).Parse(`// Code generated by wiregen; DO NOT EDIT.

package {{.Package}}

import "{{.Import}}"
{{range .Types}}
func (m *{{.Name}}) MarshalWire(w *wire.Writer) error {
{{- range .Fields}}
{{encode .}}
{{- end}}
	return nil
}

func (m *{{.Name}}) UnmarshalWire(r *wire.Reader) error {
{{- if .Fields}}
	var err error
{{- range .Fields}}
{{decode .}}
{{- end}}
{{- end}}
	return nil
}
{{end}}`))

// Render formats the generated source for f.
func Render(f *File, wireImport string) ([]byte, error) {
	if wireImport == "" {
		wireImport = DefaultWireImport
	}
	var buf bytes.Buffer
	err := fileTemplate.Execute(&buf, struct {
		*File
		Import string
	}{f, wireImport})
	if err != nil {
		return nil, err
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("wiregen: formatting output: %w\n%s", err, buf.Bytes())
	}
	return out, nil
}

// Generate is Parse followed by Render.
func Generate(filename string, src []byte, wireImport string) ([]byte, error) {
	f, err := Parse(filename, src)
	if err != nil {
		return nil, err
	}
	if len(f.Types) == 0 {
		return nil, fmt.Errorf("wiregen: %s has no %s types", filename, Directive)
	}
	return Render(f, wireImport)
}

const returnErr = " err != nil {\nreturn err\n}"

func encodeField(expr string, p *Plan) string {
	switch p.Kind {
	case KindScalar:
		arg := expr
		if p.Conv != "" {
			arg = p.Base + "(" + expr + ")"
		}
		return "w.Write" + p.Method + "(" + arg + ")"
	case KindString:
		return "if err := w.WriteString(" + expr + ");" + returnErr
	case KindBytes:
		return "if err := w.WriteByteSequence(" + expr + ");" + returnErr
	case KindByteArray:
		return "w.WriteRaw(" + expr + "[:])"
	case KindStruct:
		return "if err := " + expr + ".MarshalWire(w);" + returnErr
	case KindSlice:
		var b strings.Builder
		b.WriteString("if err := w.WriteSequenceLen(len(" + expr + "));" + returnErr + "\n")
		b.WriteString("for i := range " + expr + " {\n")
		b.WriteString(encodeField(expr+"[i]", p.Elem))
		b.WriteString("\n}")
		return b.String()
	}
	panic(fmt.Sprintf("wiregen: unknown kind %d", p.Kind))
}

func decodeField(expr string, p *Plan) string {
	switch p.Kind {
	case KindScalar:
		if p.Conv == "" {
			return "if " + expr + ", err = r.Read" + p.Method + "();" + returnErr
		}
		return "{\nvar v " + p.Base + "\nif v, err = r.Read" + p.Method + "();" + returnErr + "\n" +
			expr + " = " + p.Conv + "(v)\n}"
	case KindString:
		return "if " + expr + ", err = r.ReadString();" + returnErr
	case KindBytes:
		return "if " + expr + ", err = r.ReadByteSequence();" + returnErr
	case KindByteArray:
		return "if err = r.ReadFull(" + expr + "[:]);" + returnErr
	case KindStruct:
		return "if err = " + expr + ".UnmarshalWire(r);" + returnErr
	case KindSlice:
		var b strings.Builder
		b.WriteString("{\nvar n int\nif n, err = r.ReadSequenceLen();" + returnErr + "\n")
		b.WriteString(expr + " = make(" + p.GoType + ", n)\n")
		b.WriteString("for i := range " + expr + " {\n")
		b.WriteString(decodeField(expr+"[i]", p.Elem))
		b.WriteString("\n}\n}")
		return b.String()
	}
	panic(fmt.Sprintf("wiregen: unknown kind %d", p.Kind))
}
