package compile

import (
	"errors"
	"fmt"
	"go/scanner"
	"regexp"
	"strings"
)

// Diagnostic codes.
const (
	CodeSyntax   = "syntax"
	CodeCompile  = "compile"
	CodeFactory  = "factory"
	CodeInternal = "internal"
)

// Diagnostic is one error-severity compiler message.
type Diagnostic struct {
	Code     string
	Message  string
	Position string // file:line:col, empty when unknown
}

func (d Diagnostic) String() string {
	if d.Position == "" {
		return d.Code + ": " + d.Message
	}
	return d.Position + ": " + d.Code + ": " + d.Message
}

// Diagnostics is the error returned when a unit does not compile.
type Diagnostics []Diagnostic

func (ds Diagnostics) Error() string {
	lines := make([]string, len(ds))
	for i, d := range ds {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}

var positioned = regexp.MustCompile(`^(\S+?:\d+:\d+):\s*(.*)$`)

// diagnose converts an interpreter error into diagnostics. The interpreter
// names sources it was handed as strings "_.go"; file replaces that name.
func diagnose(err error, code, file string) Diagnostics {
	var list scanner.ErrorList
	if errors.As(err, &list) {
		ds := make(Diagnostics, 0, len(list))
		for _, e := range list {
			pos := e.Pos
			if pos.Filename == "" || pos.Filename == "_.go" {
				pos.Filename = file
			}
			ds = append(ds, Diagnostic{Code: CodeSyntax, Message: e.Msg, Position: pos.String()})
		}
		return ds
	}
	var ds Diagnostics
	for _, line := range strings.Split(strings.TrimSpace(err.Error()), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		d := Diagnostic{Code: code, Message: line}
		if m := positioned.FindStringSubmatch(line); m != nil {
			d.Position = strings.Replace(m[1], "_.go", file, 1)
			d.Message = m[2]
		}
		ds = append(ds, d)
	}
	if len(ds) == 0 {
		ds = Diagnostics{{Code: code, Message: fmt.Sprint(err)}}
	}
	return ds
}
