// Package compile turns parsed units into loadable images.
//
// Module sources are type checked by the interpreter without being executed.
// An image is identified by a hash over everything that went into it, so
// compiling the same inputs twice is served from the cache.
package compile

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"go.bbrapi.dev/runner/pkg/internal/cachutil"
	"go.bbrapi.dev/runner/pkg/internal/hashutil"
	"go.bbrapi.dev/runner/pkg/module"
	"go.bbrapi.dev/runner/pkg/source"
	"go.bbrapi.dev/runner/pkg/util/errs"
)

// Options for New.
type Options struct {
	// GoPath is the interpreter GOPATH. Libraries modules import live in
	// <GoPath>/src/<import path>.
	GoPath string
	Logger logr.Logger
	// CacheTTL is how long an unused image is kept. Defaults to one hour.
	CacheTTL time.Duration
	// CacheSize bounds the number of cached images. Zero means unbounded.
	CacheSize uint64
}

// Service compiles units. It is safe for concurrent use.
type Service struct {
	goPath string
	log    logr.Logger
	cache  *cachutil.Cache[*Image]
}

// New returns a compile service.
func New(opts Options) *Service {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &Service{
		goPath: opts.GoPath,
		log:    opts.Logger,
		cache:  cachutil.New[*Image](opts.CacheTTL, opts.CacheSize),
	}
}

// NewInterpreter returns an interpreter that can run module sources.
func NewInterpreter(goPath string) (*interp.Interpreter, error) {
	i := interp.New(interp.Options{GoPath: goPath})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("use stdlib symbols: %w", err)
	}
	if err := i.Use(module.Symbols); err != nil {
		return nil, fmt.Errorf("use module symbols: %w", err)
	}
	return i, nil
}

// Compile builds the image of u against the images of its dependencies.
// cached reports whether an identical image was already known.
// Compile failures are returned as a coded error wrapping Diagnostics.
func (s *Service) Compile(ctx context.Context, u *source.Unit, refs []*Image) (img *Image, cached bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	factory, err := Factory(u)
	if err != nil {
		return nil, false, errs.NewCompileError(u.Name, Diagnostics{{Code: CodeFactory, Message: err.Error()}})
	}
	libs, err := libraryHash(s.goPath)
	if err != nil {
		return nil, false, fmt.Errorf("hash libraries in %s: %w", s.goPath, err)
	}
	references := ReferencesOf(refs)
	hash := imageHash(u, factory, libs, references)

	img, cached, err = s.cache.GetOrLoad(hashutil.Hex(hash), func() (*Image, error) {
		start := time.Now()
		if err := s.check(u, factory); err != nil {
			return nil, err
		}
		s.log.V(1).Info("compiled module", "module", u.Name, "hash", hashutil.Hex(hash), "took", time.Since(start).Round(time.Millisecond))
		return &Image{
			Name:       u.Name,
			Package:    u.Package,
			Path:       u.Path,
			Source:     string(u.Source),
			Factory:    factory,
			GoPath:     s.goPath,
			Hash:       hash,
			References: references,
			Unit:       u,
		}, nil
	})
	if err != nil {
		return nil, false, errs.NewCompileError(u.Name, err)
	}
	return img, cached, nil
}

// Forget drops img from the cache so the next Compile of it runs the compiler.
func (s *Service) Forget(img *Image) {
	if img != nil {
		s.cache.Delete(img.HashHex())
	}
}

// check type checks the unit and its factory in a scratch interpreter.
// Nothing is executed.
func (s *Service) check(u *source.Unit, factory string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Diagnostics{{Code: CodeInternal, Message: fmt.Sprint(r)}}
		}
	}()
	i, err := NewInterpreter(s.goPath)
	if err != nil {
		return Diagnostics{{Code: CodeInternal, Message: err.Error()}}
	}
	if _, err := i.Compile(string(u.Source)); err != nil {
		return diagnose(err, CodeCompile, filepath.Base(u.Path))
	}
	if _, err := i.Compile(factory); err != nil {
		return diagnose(err, CodeFactory, FactoryName+".go")
	}
	return nil
}

func imageHash(u *source.Unit, factory string, libs uint64, refs []Reference) uint64 {
	parts := [][]byte{
		[]byte(module.ImportPath),
		[]byte(u.Path),
		u.Source,
		[]byte(factory),
		[]byte(hashutil.Hex(libs)),
	}
	for _, r := range refs {
		parts = append(parts, []byte(r.Name+"="+hashutil.Hex(r.Hash)))
	}
	return hashutil.Combine(parts...)
}

// libraryHash fingerprints the Go sources below goPath/src.
func libraryHash(goPath string) (uint64, error) {
	if goPath == "" {
		return 0, nil
	}
	root := filepath.Join(goPath, "src")
	var parts [][]byte
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".go" {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		parts = append(parts, []byte(filepath.ToSlash(rel)), b)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(parts) == 0 {
		return 0, nil
	}
	return hashutil.Combine(parts...), nil
}
