package loader

import (
	"context"
	"fmt"

	"go.bbrapi.dev/runner/pkg/compile"
	"go.bbrapi.dev/runner/pkg/module"
	"go.bbrapi.dev/runner/pkg/util/errs"
)

// Interpreter evaluates each image in its own interpreter. The interpreter
// lives as long as the returned factory is referenced.
type Interpreter struct{}

var _ Evaluator = Interpreter{}

func (Interpreter) Evaluate(ctx context.Context, img *compile.Image) (Factory, error) {
	i, err := compile.NewInterpreter(img.GoPath)
	if err != nil {
		return nil, errs.NewEvaluateError(img.Name, err)
	}
	if _, err := i.EvalWithContext(ctx, img.Source); err != nil {
		return nil, errs.NewEvaluateError(img.Name, err)
	}
	if _, err := i.EvalWithContext(ctx, img.Factory); err != nil {
		return nil, errs.NewEvaluateError(img.Name, err)
	}
	v, err := i.EvalWithContext(ctx, img.FactoryExpr())
	if err != nil {
		return nil, errs.NewNoFactoryError(img.Name, err)
	}
	if !v.IsValid() || !v.CanInterface() {
		return nil, errs.NewNoFactoryError(img.Name, nil)
	}
	fn, ok := v.Interface().(func(*module.Instance))
	if !ok {
		return nil, errs.NewNoFactoryError(img.Name, fmt.Errorf("%s has type %s", img.FactoryExpr(), v.Type()))
	}
	return fn, nil
}
