package compile

import (
	"bytes"
	"fmt"
	"go/format"
	"text/template"

	"go.bbrapi.dev/runner/pkg/module"
	"go.bbrapi.dev/runner/pkg/source"
)

const sdkAlias = "runnermodule"

var factoryTemplate = template.Must(template.New("factory").Parse(`package {{.Package}}

import {{.Alias}} "{{.ImportPath}}"

func {{.Func}}(inst *{{.Alias}}.Instance) {
	p := new({{.Type}})
	p.Base.Instance = inst
{{- range .Refs}}
	p.{{.}} = inst.Ref({{printf "%q" .}})
{{- end}}
{{- range .Sections}}
	inst.Section({{printf "%q" .Field}}, &p.{{.Field}}, {{.Shared}})
{{- end}}
{{- range .Callbacks}}
	inst.{{.}}(p.{{.}})
{{- end}}
}
`))

// Factory generates the source of the function that constructs the module
// type of u and wires it to its instance.
func Factory(u *source.Unit) (string, error) {
	pkg := u.Package
	if pkg == "" {
		pkg = "main"
	}
	callbacks := make([]string, len(u.Callbacks))
	for i, c := range u.Callbacks {
		callbacks[i] = c.String()
	}
	var buf bytes.Buffer
	err := factoryTemplate.Execute(&buf, map[string]any{
		"Package":    pkg,
		"Alias":      sdkAlias,
		"ImportPath": module.ImportPath,
		"Func":       FactoryName,
		"Type":       u.Name,
		"Refs":       u.Refs,
		"Sections":   u.Sections,
		"Callbacks":  callbacks,
	})
	if err != nil {
		return "", fmt.Errorf("render factory for %s: %w", u.Name, err)
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("format factory for %s: %w", u.Name, err)
	}
	return string(out), nil
}
