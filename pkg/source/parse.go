package source

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ast/inspector"

	"go.bbrapi.dev/runner/pkg/internal/hashutil"
	"go.bbrapi.dev/runner/pkg/module"
	"go.bbrapi.dev/runner/pkg/util/errs"
)

// ParseFile reads and parses the module source at path.
func ParseFile(path string) (*Unit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewReadSourceError(path, err)
	}
	return Parse(path, src)
}

// Parse statically inspects src, which was read from path.
func Parse(path string, src []byte) (*Unit, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, errs.NewSyntaxError(path, err)
	}

	alias, ok := moduleImportName(f)
	if !ok {
		return nil, errs.NewNoModuleTypeError(path)
	}

	p := &parse{alias: alias}
	in := inspector.New([]*ast.File{f})
	in.Preorder([]ast.Node{(*ast.GenDecl)(nil)}, p.genDecl)

	switch len(p.types) {
	case 0:
		return nil, errs.NewNoModuleTypeError(path)
	case 1:
	default:
		names := make([]string, len(p.types))
		for i, t := range p.types {
			names[i] = t.spec.Name.Name
		}
		return nil, errs.NewMultipleTypesError(path, names)
	}
	typ := p.types[0]
	name := typ.spec.Name.Name

	fileName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if fileName != name {
		return nil, errs.NewNameMismatchError(path, fileName, name)
	}

	u := &Unit{
		Name:    name,
		Path:    path,
		Package: f.Name.Name,
		Source:  src,
		Hash:    hashutil.Sum(src),
	}
	if err := u.directives(typ.doc); err != nil {
		return nil, err
	}
	u.fields(typ.st, alias)

	in.Preorder([]ast.Node{(*ast.FuncDecl)(nil)}, func(n ast.Node) {
		fn := n.(*ast.FuncDecl)
		if fn.Recv == nil || len(fn.Recv.List) != 1 || receiverName(fn.Recv.List[0].Type) != name {
			return
		}
		if c, ok := module.CallbackByMethod(fn.Name.Name); ok && !slices.Contains(u.Callbacks, c) {
			u.Callbacks = append(u.Callbacks, c)
		}
	})
	slices.Sort(u.Callbacks)
	return u, nil
}

// moduleImportName returns the identifier the file uses for the SDK package.
func moduleImportName(f *ast.File) (string, bool) {
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil || p != module.ImportPath {
			continue
		}
		if imp.Name != nil {
			if imp.Name.Name == "_" || imp.Name.Name == "." {
				return "", false
			}
			return imp.Name.Name, true
		}
		return "module", true
	}
	return "", false
}

type candidate struct {
	spec *ast.TypeSpec
	st   *ast.StructType
	doc  *ast.CommentGroup
}

type parse struct {
	alias string
	types []candidate
}

func (p *parse) genDecl(n ast.Node) {
	gd := n.(*ast.GenDecl)
	if gd.Tok != token.TYPE {
		return
	}
	for _, s := range gd.Specs {
		ts := s.(*ast.TypeSpec)
		st, ok := ts.Type.(*ast.StructType)
		if !ok || !ts.Name.IsExported() || !p.embedsBase(st) {
			continue
		}
		doc := ts.Doc
		if doc == nil && !gd.Lparen.IsValid() {
			doc = gd.Doc
		}
		p.types = append(p.types, candidate{spec: ts, st: st, doc: doc})
	}
}

func (p *parse) embedsBase(st *ast.StructType) bool {
	for _, field := range st.Fields.List {
		if len(field.Names) == 0 && isSDKType(field.Type, p.alias, "Base") {
			return true
		}
	}
	return false
}

func isSDKType(expr ast.Expr, alias, name string) bool {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != name {
		return false
	}
	x, ok := sel.X.(*ast.Ident)
	return ok && x.Name == alias
}

func receiverName(expr ast.Expr) string {
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	if id, ok := expr.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

func (u *Unit) directives(doc *ast.CommentGroup) error {
	if doc == nil {
		return errs.NewMissingInfoError(u.Name)
	}
	var infos int
	for _, c := range doc.List {
		switch {
		case hasDirective(c.Text, module.InfoDirective):
			infos++
			if infos > 1 {
				return errs.NewDuplicateInfoError(u.Name)
			}
			desc, ver, err := parseInfo(strings.TrimPrefix(c.Text, module.InfoDirective))
			if err != nil {
				return errs.NewMalformedDirectiveError(u.Name, module.InfoDirective, err)
			}
			u.Description, u.Version = desc, ver
		case hasDirective(c.Text, module.RequireDirective):
			names := strings.Fields(strings.TrimPrefix(c.Text, module.RequireDirective))
			if len(names) == 0 {
				return errs.NewMalformedDirectiveError(u.Name, module.RequireDirective, errors.New("no module names given"))
			}
			for _, n := range names {
				if !token.IsIdentifier(n) {
					return errs.NewMalformedDirectiveError(u.Name, module.RequireDirective,
						fmt.Errorf("%q is not a module name", n))
				}
				if !slices.Contains(u.Requires, n) {
					u.Requires = append(u.Requires, n)
				}
			}
		}
	}
	if infos == 0 {
		return errs.NewMissingInfoError(u.Name)
	}
	return nil
}

// hasDirective matches "//module:info" but not "//module:information".
func hasDirective(text, directive string) bool {
	rest, ok := strings.CutPrefix(text, directive)
	return ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t')
}

// parseInfo reads ` description="..." version="..."`.
func parseInfo(args string) (description, version string, err error) {
	var seenDesc, seenVer bool
	rest := strings.TrimSpace(args)
	for rest != "" {
		key, after, ok := strings.Cut(rest, "=")
		if !ok {
			return "", "", fmt.Errorf("expected key=value, got %q", rest)
		}
		key = strings.TrimSpace(key)
		var value string
		if strings.HasPrefix(after, `"`) {
			quoted, err := strconv.QuotedPrefix(after)
			if err != nil {
				return "", "", fmt.Errorf("value of %s: %w", key, err)
			}
			value, _ = strconv.Unquote(quoted)
			after = after[len(quoted):]
		} else {
			value, after, _ = strings.Cut(after, " ")
		}
		switch key {
		case "description":
			if seenDesc {
				return "", "", errors.New("description given twice")
			}
			description, seenDesc = value, true
		case "version":
			if seenVer {
				return "", "", errors.New("version given twice")
			}
			version, seenVer = value, true
		default:
			return "", "", fmt.Errorf("unknown key %q", key)
		}
		rest = strings.TrimSpace(after)
	}
	if !seenDesc || !seenVer {
		return "", "", errors.New("description and version are both required")
	}
	return description, version, nil
}

func (u *Unit) fields(st *ast.StructType, alias string) {
	for _, field := range st.Fields.List {
		if len(field.Names) == 0 {
			continue
		}
		isRef := false
		if star, ok := field.Type.(*ast.StarExpr); ok {
			isRef = isSDKType(star.X, alias, "Ref")
		}
		var tag string
		if field.Tag != nil {
			if t, err := strconv.Unquote(field.Tag.Value); err == nil {
				tag = reflect.StructTag(t).Get(module.ConfigTag)
			}
		}
		for _, id := range field.Names {
			if !id.IsExported() {
				continue
			}
			if isRef {
				u.Refs = append(u.Refs, id.Name)
				if !slices.Contains(u.Requires, id.Name) && !slices.Contains(u.Optional, id.Name) {
					u.Optional = append(u.Optional, id.Name)
				}
				continue
			}
			if cfg, shared := module.ParseConfigTag(tag); cfg {
				u.Sections = append(u.Sections, SectionField{Field: id.Name, Shared: shared})
			}
		}
	}
}
