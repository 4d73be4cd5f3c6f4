// Package source statically inspects module source files.
//
// Nothing here compiles or executes module code. A Unit is everything the
// runner learns from reading one file: the module name, its dependencies, the
// callbacks it implements and its configuration sections.
package source

import (
	"golang.org/x/mod/semver"

	"go.bbrapi.dev/runner/pkg/internal/hashutil"
	"go.bbrapi.dev/runner/pkg/module"
)

// Unit is one parsed module source file. A Unit is immutable once parsed.
type Unit struct {
	Name    string // module type name, equal to the file base name
	Path    string
	Package string // Go package clause of the file
	Source  []byte
	Hash    uint64

	Description string
	Version     string

	Requires []string // //module:require names, in declaration order
	Optional []string // *module.Ref fields not listed in Requires
	Refs     []string // every *module.Ref field, in declaration order

	Sections  []SectionField
	Callbacks []module.Callback
}

// SectionField is an exported field tagged as a configuration section.
type SectionField struct {
	Field  string
	Shared bool
}

// Dependencies returns the required and optional names, required first.
func (u *Unit) Dependencies() []string {
	deps := make([]string, 0, len(u.Requires)+len(u.Optional))
	deps = append(deps, u.Requires...)
	return append(deps, u.Optional...)
}

// SemVer returns the canonical semantic version of the declared version,
// or "" when it is not a semantic version.
func (u *Unit) SemVer() string {
	v := u.Version
	if v == "" {
		return ""
	}
	if v[0] != 'v' {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// DisplayVersion is the canonical semantic version, or the version as
// declared when it is not one.
func (u *Unit) DisplayVersion() string {
	if v := u.SemVer(); v != "" {
		return v
	}
	return u.Version
}

// HashHex is the content hash formatted for logs.
func (u *Unit) HashHex() string { return hashutil.Hex(u.Hash) }
