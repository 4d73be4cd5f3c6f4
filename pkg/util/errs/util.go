// Package errs holds the runner's error taxonomy.
//
// Every failure the module lifecycle can report carries a stable code so operators
// and tests can tell a syntax error from a missing dependency without string matching.
package errs

import (
	"errors"
	"strings"

	goerrors "github.com/agilira/go-errors"
)

// Source parsing and validation (1000-1099)
const (
	ErrCodeSyntax             = "SOURCE_1001"
	ErrCodeNoModuleType       = "SOURCE_1002"
	ErrCodeMultipleTypes      = "SOURCE_1003"
	ErrCodeNameMismatch       = "SOURCE_1004"
	ErrCodeMissingInfo        = "SOURCE_1005"
	ErrCodeDuplicateInfo      = "SOURCE_1006"
	ErrCodeMalformedDirective = "SOURCE_1007"
	ErrCodeReadSource         = "SOURCE_1008"
)

// Dependency errors (2000-2099)
const (
	ErrCodeMissingDependency = "DEPENDENCY_2001"
	ErrCodeDependencyCycle   = "DEPENDENCY_2002"
)

// Compile errors (3000-3099)
const (
	ErrCodeCompile = "COMPILE_3001"
)

// Load errors (4000-4099)
const (
	ErrCodeNoFactory          = "LOAD_4001"
	ErrCodeGenerationUnloaded = "LOAD_4002"
	ErrCodeEvaluate           = "LOAD_4003"
	ErrCodeInstantiate        = "LOAD_4004"
)

// Registry errors (5000-5099)
const (
	ErrCodeDuplicateModule = "REGISTRY_5001"
	ErrCodeUnknownModule   = "REGISTRY_5002"
)

// Configuration errors (6000-6099)
const (
	ErrCodeSectionLoad    = "CONFIG_6001"
	ErrCodeSectionSave    = "CONFIG_6002"
	ErrCodeUnknownSection = "CONFIG_6003"
)

// HasCode reports whether any error in err's chain carries the given code.
func HasCode(err error, code string) bool {
	var e *goerrors.Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == goerrors.ErrorCode(code) {
			return true
		}
		err = errors.Unwrap(e)
	}
	return false
}

// Code returns the code of the first coded error in err's chain, or "".
func Code(err error) string {
	var e *goerrors.Error
	if errors.As(err, &e) {
		return string(e.Code)
	}
	return ""
}

// Source errors

func NewSyntaxError(path string, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, ErrCodeSyntax, "Module source does not parse").
		WithUserMessage("The module file contains Go syntax errors").
		WithContext("path", path).
		WithSeverity("error")
}

func NewReadSourceError(path string, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, ErrCodeReadSource, "Module source could not be read").
		WithContext("path", path).
		WithSeverity("error")
}

func NewNoModuleTypeError(path string) *goerrors.Error {
	return goerrors.New(ErrCodeNoModuleType, "No exported struct embeds module.Base").
		WithUserMessage("A module file must declare exactly one exported type embedding module.Base").
		WithContext("path", path).
		WithSeverity("error")
}

func NewMultipleTypesError(path string, names []string) *goerrors.Error {
	return goerrors.New(ErrCodeMultipleTypes, "More than one exported struct embeds module.Base: "+strings.Join(names, ", ")).
		WithUserMessage("A module file must declare exactly one exported type embedding module.Base").
		WithContext("path", path).
		WithContext("types", names).
		WithSeverity("error")
}

func NewNameMismatchError(path, fileName, typeName string) *goerrors.Error {
	return goerrors.New(ErrCodeNameMismatch, "Module type "+typeName+" does not match file name "+fileName).
		WithUserMessage("The module file must be named after its module type").
		WithContext("path", path).
		WithContext("file_name", fileName).
		WithContext("type_name", typeName).
		WithSeverity("error")
}

func NewMissingInfoError(name string) *goerrors.Error {
	return goerrors.New(ErrCodeMissingInfo, "Module "+name+" has no //module:info directive").
		WithUserMessage("Declare description and version with //module:info on the module type").
		WithContext("module", name).
		WithSeverity("error")
}

func NewDuplicateInfoError(name string) *goerrors.Error {
	return goerrors.New(ErrCodeDuplicateInfo, "Module "+name+" declares //module:info more than once").
		WithContext("module", name).
		WithSeverity("error")
}

func NewMalformedDirectiveError(name, directive string, cause error) *goerrors.Error {
	msg := "Malformed directive " + directive + " on module " + name
	var err *goerrors.Error
	if cause != nil {
		err = goerrors.Wrap(cause, ErrCodeMalformedDirective, msg)
	} else {
		err = goerrors.New(ErrCodeMalformedDirective, msg)
	}
	return err.
		WithContext("module", name).
		WithContext("directive", directive).
		WithSeverity("error")
}

// Dependency errors

func NewMissingDependencyError(name string, missing []string) *goerrors.Error {
	return goerrors.New(ErrCodeMissingDependency, "Module "+name+" is missing required modules: "+strings.Join(missing, ", ")).
		WithUserMessage("Required modules must be present and load successfully").
		WithContext("module", name).
		WithContext("missing", missing).
		WithSeverity("error")
}

func NewDependencyCycleError(name string, cycle []string) *goerrors.Error {
	return goerrors.New(ErrCodeDependencyCycle, "Module "+name+" is part of a dependency cycle: "+strings.Join(cycle, " -> ")).
		WithContext("module", name).
		WithContext("cycle", cycle).
		WithSeverity("error")
}

// Compile errors

func NewCompileError(name string, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, ErrCodeCompile, "Module "+name+" failed to compile").
		WithContext("module", name).
		WithSeverity("error")
}

// Load errors

func NewNoFactoryError(name string, cause error) *goerrors.Error {
	msg := "Module " + name + " has no usable module type after evaluation"
	if cause != nil {
		return goerrors.Wrap(cause, ErrCodeNoFactory, msg).
			WithContext("module", name).
			WithSeverity("error")
	}
	return goerrors.New(ErrCodeNoFactory, msg).
		WithContext("module", name).
		WithSeverity("error")
}

func NewEvaluateError(name string, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, ErrCodeEvaluate, "Module "+name+" failed to evaluate").
		WithContext("module", name).
		WithSeverity("error")
}

func NewGenerationUnloadedError(name string, generation uint64) *goerrors.Error {
	return goerrors.New(ErrCodeGenerationUnloaded, "Module "+name+" belongs to an unloaded generation").
		WithContext("module", name).
		WithContext("generation", generation).
		WithSeverity("error")
}

func NewInstantiateError(name string, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, ErrCodeInstantiate, "Module "+name+" could not be instantiated").
		WithContext("module", name).
		WithSeverity("error")
}

// Registry errors

func NewDuplicateModuleError(name string, paths []string) *goerrors.Error {
	return goerrors.New(ErrCodeDuplicateModule, "Module "+name+" is declared by more than one file: "+strings.Join(paths, ", ")).
		WithUserMessage("Module names must be unique, no modules were loaded").
		WithContext("module", name).
		WithContext("paths", paths).
		WithSeverity("critical")
}

func NewUnknownModuleError(name string) *goerrors.Error {
	return goerrors.New(ErrCodeUnknownModule, "Module "+name+" is not known").
		WithContext("module", name).
		WithSeverity("warning")
}

// Configuration section errors

func NewSectionLoadError(module, section, path string, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, ErrCodeSectionLoad, "Failed to load configuration section "+module+"."+section).
		WithContext("module", module).
		WithContext("section", section).
		WithContext("path", path).
		WithSeverity("error")
}

func NewSectionSaveError(module, section, path string, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, ErrCodeSectionSave, "Failed to save configuration section "+module+"."+section).
		WithContext("module", module).
		WithContext("section", section).
		WithContext("path", path).
		WithSeverity("error")
}

func NewUnknownSectionError(module, section string) *goerrors.Error {
	return goerrors.New(ErrCodeUnknownSection, "Module "+module+" has no configuration section "+section).
		WithContext("module", module).
		WithContext("section", section).
		WithSeverity("warning")
}
