package compile

import (
	"slices"

	"go.bbrapi.dev/runner/pkg/internal/hashutil"
	"go.bbrapi.dev/runner/pkg/source"
)

// FactoryName is the function every image's factory source declares.
const FactoryName = "RunnerFactory"

// Reference is a compiled sibling an image was built against.
type Reference struct {
	Name string
	Hash uint64
}

// Image is the compiled form of a unit, ready to be loaded.
// Images are immutable and shared between cache, registry and loader.
type Image struct {
	Name    string
	Package string
	Path    string
	Source  string
	// Factory is generated source declaring FactoryName in the unit's package.
	Factory string
	// GoPath is where the interpreter resolves third-party imports.
	GoPath string
	// Hash covers source, factory, library and reference hashes.
	Hash       uint64
	References []Reference
	Unit       *source.Unit
}

// FactoryExpr is the expression that yields the factory once the image
// is evaluated.
func (img *Image) FactoryExpr() string {
	if img.Package == "" || img.Package == "main" {
		return FactoryName
	}
	return img.Package + "." + FactoryName
}

// Stale reports whether img was built against other references than refs.
func (img *Image) Stale(refs []*Image) bool {
	return !slices.Equal(img.References, ReferencesOf(refs))
}

// HashHex is the image hash formatted for logs.
func (img *Image) HashHex() string { return hashutil.Hex(img.Hash) }

// ReferencesOf returns the references of an image built against refs, sorted by name.
func ReferencesOf(refs []*Image) []Reference {
	out := make([]Reference, 0, len(refs))
	for _, r := range refs {
		if r == nil {
			continue
		}
		out = append(out, Reference{Name: r.Name, Hash: r.Hash})
	}
	slices.SortFunc(out, func(a, b Reference) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}
