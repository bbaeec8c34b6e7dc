package minipy

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Execute a sequence of statements. A non-nil ControlFlow stops the
// sequence and is handed to the enclosing construct.
func (ctx *Context) executeStatements(statements []AstStatement, env *Environment) (ControlFlow, error) {
	for _, statement := range statements {
		if err := ctx.checkInterrupt(); err != nil {
			return nil, traced(err, statement.StatementLocation(), env)
		}
		flow, err := statement.Eval(ctx, env)
		if err != nil {
			if _, ok := statement.(astCommand); ok {
				return nil, traced(err, statement.StatementLocation(), env)
			}
			return nil, err
		}
		if flow != nil {
			return flow, nil
		}
	}
	return nil, nil
}

// Evaluate a block header expression, recording the header as a frame on
// failure.
func evalHeader(ctx *Context, env *Environment, location *SourceLocation, expression AstExpression) (*Thing, error) {
	value, err := expression.Eval(ctx, env)
	if err != nil {
		return nil, traced(err, location, env)
	}
	return value, nil
}

func (ctx *Context) truthyHeader(env *Environment, location *SourceLocation, expression AstExpression) (bool, error) {
	value, err := evalHeader(ctx, env, location, expression)
	if err != nil {
		return false, err
	}
	truthy, err := ctx.Truthy(value)
	if err != nil {
		return false, traced(err, location, env)
	}
	return truthy, nil
}

func (ctx *Context) unpack(value *Thing, count int) ([]*Thing, error) {
	elements, err := ctx.Collect(value)
	if err != nil {
		if ctx.isException(err, ctx.Classes.TypeError) {
			return nil, ctx.Errorf(ctx.Classes.TypeError, "cannot unpack non-iterable %s object", typeName(value))
		}
		return nil, err
	}
	if len(elements) < count {
		return nil, ctx.Errorf(ctx.Classes.ValueError, "not enough values to unpack (expected %d, got %d)", count, len(elements))
	}
	if len(elements) > count {
		return nil, ctx.Errorf(ctx.Classes.ValueError, "too many values to unpack (expected %d)", count)
	}
	return elements, nil
}

// Store value into an assignment target.
func (ctx *Context) assign(target AstExpression, value *Thing, env *Environment) error {
	switch target := target.(type) {
	case AstExpressionIdentifier:
		env.Let(target.Name, value)
		return nil
	case AstExpressionParened:
		return ctx.assign(target.Expression, value, env)
	case AstExpressionAttribute:
		object, err := target.Object.Eval(ctx, env)
		if err != nil {
			return err
		}
		object.Namespace.Set(target.Name, value)
		return nil
	case AstExpressionIndex:
		object, err := target.Object.Eval(ctx, env)
		if err != nil {
			return err
		}
		index, err := target.Index.Eval(ctx, env)
		if err != nil {
			return err
		}
		return ctx.setItem(object, index, value)
	case AstExpressionSlice:
		object, slice, err := target.slice(ctx, env)
		if err != nil {
			return err
		}
		return ctx.setItem(object, slice, value)
	case AstExpressionTuple:
		return ctx.assignEach(target.Elements, value, env)
	case AstExpressionList:
		return ctx.assignEach(target.Elements, value, env)
	}
	return InternalError{target.ExpressionLocation(), fmt.Sprintf("unassignable target %T", target)}
}

func (ctx *Context) assignEach(targets []AstExpression, value *Thing, env *Environment) error {
	values, err := ctx.unpack(value, len(targets))
	if err != nil {
		return err
	}
	for i, target := range targets {
		if err := ctx.assign(target, values[i], env); err != nil {
			return err
		}
	}
	return nil
}

func (ctx *Context) setItem(object, index, value *Thing) error {
	_, ok, err := ctx.callMethod(object, "__setitem__", index, value)
	if !ok {
		return ctx.Errorf(ctx.Classes.TypeError, "'%s' object does not support item assignment", typeName(object))
	}
	return err
}

func (ctx *Context) delete(target AstExpression, env *Environment) error {
	switch target := target.(type) {
	case AstExpressionIdentifier:
		if err := env.Delete(target.Name); err != nil {
			return ctx.Errorf(ctx.Classes.NameError, "name '%s' is not defined", target.Name)
		}
		return nil
	case AstExpressionParened:
		return ctx.delete(target.Expression, env)
	case AstExpressionAttribute:
		object, err := target.Object.Eval(ctx, env)
		if err != nil {
			return err
		}
		if !object.Namespace.Delete(target.Name) {
			return ctx.Errorf(ctx.Classes.AttributeError, "'%s' object has no attribute '%s'", typeName(object), target.Name)
		}
		return nil
	case AstExpressionIndex, AstExpressionSlice:
		var object, index *Thing
		var err error
		if slice, ok := target.(AstExpressionSlice); ok {
			object, index, err = slice.slice(ctx, env)
		} else {
			subscript := target.(AstExpressionIndex)
			if object, err = subscript.Object.Eval(ctx, env); err == nil {
				index, err = subscript.Index.Eval(ctx, env)
			}
		}
		if err != nil {
			return err
		}
		_, ok, err := ctx.callMethod(object, "__delitem__", index)
		if !ok {
			return ctx.Errorf(ctx.Classes.TypeError, "'%s' object does not support item deletion", typeName(object))
		}
		return err
	case AstExpressionTuple:
		for _, element := range target.Elements {
			if err := ctx.delete(element, env); err != nil {
				return err
			}
		}
		return nil
	case AstExpressionList:
		for _, element := range target.Elements {
			if err := ctx.delete(element, env); err != nil {
				return err
			}
		}
		return nil
	}
	return InternalError{target.ExpressionLocation(), fmt.Sprintf("undeletable target %T", target)}
}

func (self AstStatementExpression) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	_, err := self.Expression.Eval(ctx, env)
	return nil, err
}

func (self AstStatementAssign) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	value, err := self.Value.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	return nil, ctx.assign(self.Target, value, env)
}

func (self AstStatementPass) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	return nil, nil
}

func (self AstStatementBreak) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	return Break{self.Location}, nil
}

func (self AstStatementContinue) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	return Continue{self.Location}, nil
}

func (self AstStatementReturn) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	if self.Value == nil {
		return Return{self.Location, ctx.None}, nil
	}
	value, err := self.Value.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	return Return{self.Location, value}, nil
}

func (self AstStatementRaise) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	if self.Value == nil {
		if ctx.handling == nil {
			return nil, ctx.Errorf(ctx.Classes.Exception, "no active exception to re-raise")
		}
		return nil, ctx.handling
	}

	value, err := self.Value.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	if value.IsClass() && value.IsSubclassOf(ctx.Classes.Exception) {
		if value, err = ctx.Instantiate(value, nil, nil); err != nil {
			return nil, err
		}
	}
	if !value.IsInstanceOf(ctx.Classes.Exception) {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "exceptions must derive from Exception")
	}
	if ctx.handling != nil && ctx.handling.Value == value {
		return nil, ctx.handling
	}
	raised := &Error{Value: value, Trace: []TraceElement{}}
	if ctx.handling != nil {
		linkBelow(raised, ctx.handling)
	}
	return nil, raised
}

func (self AstStatementDel) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	return nil, ctx.delete(self.Target, env)
}

func (self AstStatementIf) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	for _, branch := range self.Branches {
		truthy, err := ctx.truthyHeader(env, branch.Location, branch.Condition)
		if err != nil {
			return nil, err
		}
		if truthy {
			return ctx.executeStatements(branch.Body, env)
		}
	}
	if self.Else != nil {
		return ctx.executeStatements(self.Else, env)
	}
	return nil, nil
}

// Run one loop iteration body. done reports that the loop must stop;
// a Break stops it without propagating.
func (ctx *Context) loopBody(body []AstStatement, env *Environment) (flow ControlFlow, done bool, broke bool, err error) {
	flow, err = ctx.executeStatements(body, env)
	if err != nil {
		return nil, true, false, err
	}
	switch flow.(type) {
	case Break:
		return nil, true, true, nil
	case Continue, nil:
		return nil, false, false, nil
	}
	return flow, true, false, nil
}

func (self AstStatementWhile) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	for {
		truthy, err := ctx.truthyHeader(env, self.Location, self.Condition)
		if err != nil {
			return nil, err
		}
		if !truthy {
			break
		}
		flow, done, broke, err := ctx.loopBody(self.Body, env)
		if broke {
			return nil, nil
		}
		if done {
			return flow, err
		}
	}
	if self.Else != nil {
		return ctx.executeStatements(self.Else, env)
	}
	return nil, nil
}

func (self AstStatementFor) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	iterable, err := evalHeader(ctx, env, self.Location, self.Iterable)
	if err != nil {
		return nil, err
	}
	iterator, err := ctx.Iter(iterable)
	if err != nil {
		return nil, traced(err, self.Location, env)
	}
	for {
		element, ok, err := ctx.Next(iterator)
		if err != nil {
			return nil, traced(err, self.Location, env)
		}
		if !ok {
			break
		}
		if err := ctx.assign(self.Target, element, env); err != nil {
			return nil, traced(err, self.Location, env)
		}
		flow, done, broke, err := ctx.loopBody(self.Body, env)
		if broke {
			return nil, nil
		}
		if done {
			return flow, err
		}
	}
	if self.Else != nil {
		return ctx.executeStatements(self.Else, env)
	}
	return nil, nil
}

func (ctx *Context) matchHandler(handler AstExceptHandler, raised *Error, env *Environment) (bool, error) {
	if handler.Class == nil {
		return raised.Value.IsInstanceOf(ctx.Classes.Exception), nil
	}
	class, err := evalHeader(ctx, env, handler.Location, handler.Class)
	if err != nil {
		return false, err
	}
	classes := []*Thing{class}
	if tuple, ok := class.Primitive.(*TupleData); ok {
		classes = tuple.Elements
	}
	for _, class := range classes {
		if !class.IsClass() || !class.IsSubclassOf(ctx.Classes.Exception) {
			return false, traced(ctx.Errorf(ctx.Classes.TypeError, "catching classes that do not inherit from Exception is not allowed"), handler.Location, env)
		}
		if raised.Value.IsInstanceOf(class) {
			return true, nil
		}
	}
	return false, nil
}

func (ctx *Context) runHandler(handler AstExceptHandler, raised *Error, env *Environment) (ControlFlow, error) {
	previous := ctx.handling
	ctx.handling = raised
	defer func() { ctx.handling = previous }()

	if handler.Name != "" {
		env.Let(handler.Name, raised.Value)
		defer env.Namespace().Delete(handler.Name)
	}
	flow, err := ctx.executeStatements(handler.Body, env)
	if err != nil {
		linkBelow(err, raised)
	}
	return flow, err
}

func (self AstStatementTry) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	flow, err := ctx.executeStatements(self.Body, env)

	var raised *Error
	if errors.As(err, &raised) {
		for _, handler := range self.Handlers {
			matched, matchErr := ctx.matchHandler(handler, raised, env)
			if matchErr != nil {
				linkBelow(matchErr, raised)
				err = matchErr
				break
			}
			if matched {
				flow, err = ctx.runHandler(handler, raised, env)
				break
			}
		}
	} else if err == nil && flow == nil && self.Else != nil {
		flow, err = ctx.executeStatements(self.Else, env)
	}

	if self.Finally != nil {
		finalFlow, finalErr := ctx.executeStatements(self.Finally, env)
		if finalErr != nil {
			if err != nil {
				linkBelow(finalErr, err)
			}
			return nil, finalErr
		}
		if finalFlow != nil {
			return finalFlow, nil
		}
	}
	return flow, err
}

func (self AstStatementDef) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	defaults := map[string]*Thing{}
	for _, parameter := range self.Parameters {
		if parameter.Default == nil {
			continue
		}
		value, err := evalHeader(ctx, env, self.Location, parameter.Default)
		if err != nil {
			return nil, err
		}
		defaults[parameter.Name] = value
	}

	definition := self
	function := &Thing{
		Class:     ctx.Classes.Function,
		Namespace: NewNamespace(),
		Function: &Function{
			Name:       self.Name,
			Definition: &definition,
			Closure:    env.scope(),
			Defaults:   defaults,
		},
	}
	function.Namespace.Set("__name__", ctx.NewString(self.Name))
	env.Let(self.Name, function)
	return nil, nil
}

func (self AstStatementClass) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	var base *Thing
	if self.Base != nil {
		var err error
		if base, err = evalHeader(ctx, env, self.Location, self.Base); err != nil {
			return nil, err
		}
		if !base.IsClass() {
			return nil, traced(ctx.Errorf(ctx.Classes.TypeError, "base of class %s must be a class, not '%s'", self.Name, typeName(base)), self.Location, env)
		}
	}

	members := NewNamespace()
	body := newClassEnvironment(env, members, self.Name)
	if _, err := ctx.executeStatements(self.Body, body); err != nil {
		return nil, err
	}
	env.Let(self.Name, ctx.NewClass(self.Name, base, members))
	return nil, nil
}

// Bind a module found along path. Without an alias the first path element
// is bound and intermediate elements become synthetic modules.
func (ctx *Context) bindImport(env *Environment, path []string, alias string, module *Thing) {
	if alias != "" {
		env.Let(alias, module)
		return
	}
	if len(path) == 1 {
		env.Let(path[0], module)
		return
	}

	root, err := env.Get(path[0])
	if err != nil || root.Class != ctx.Classes.Module {
		root = ctx.NewModule(path[0], NewNamespace())
	}
	env.Let(path[0], root)
	parent := root
	for i, name := range path[1 : len(path)-1] {
		child, ok := parent.Namespace.Get(name)
		if !ok || child.Class != ctx.Classes.Module {
			child = ctx.NewModule(joinPath(path[:i+2]), NewNamespace())
			parent.Namespace.Set(name, child)
		}
		parent = child
	}
	parent.Namespace.Set(path[len(path)-1], module)
}

func importerDirectory(location *SourceLocation) string {
	if location == nil {
		return "."
	}
	return filepath.Dir(location.File)
}

func (self AstStatementImport) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	module, job, err := ctx.loadModule(joinPath(self.Path), importerDirectory(self.Location))
	if err != nil {
		return nil, err
	}
	if job != nil {
		bound := self.Path[0]
		if self.Alias != "" {
			bound = self.Alias
		}
		env.Namespace().Forbid(bound)
		job.whenDone(func(module *Thing) error {
			ctx.bindImport(env, self.Path, self.Alias, module)
			return nil
		})
		return nil, nil
	}
	ctx.bindImport(env, self.Path, self.Alias, module)
	return nil, nil
}

func (ctx *Context) bindFrom(env *Environment, path []string, names []string, star bool, module *Thing) error {
	if star {
		for _, name := range module.Namespace.Keys() {
			if len(name) > 0 && name[0] == '_' {
				continue
			}
			value, _ := module.Namespace.Get(name)
			env.Let(name, value)
		}
		return nil
	}
	for _, name := range names {
		value, ok := module.Namespace.Get(name)
		if !ok {
			return ctx.Errorf(ctx.Classes.ImportError, "cannot import name '%s' from '%s'", name, joinPath(path))
		}
		env.Let(name, value)
	}
	return nil
}

func (self AstStatementFromImport) Eval(ctx *Context, env *Environment) (ControlFlow, error) {
	module, job, err := ctx.loadModule(joinPath(self.Path), importerDirectory(self.Location))
	if err != nil {
		return nil, err
	}
	if job != nil {
		if self.Star {
			return nil, ctx.Errorf(ctx.Classes.ImportError, "cannot import * from '%s' during its circular import", joinPath(self.Path))
		}
		for _, name := range self.Names {
			env.Namespace().Forbid(name)
		}
		job.whenDone(func(module *Thing) error {
			return traced(ctx.bindFrom(env, self.Path, self.Names, false, module), self.Location, env)
		})
		return nil, nil
	}
	return nil, ctx.bindFrom(env, self.Path, self.Names, self.Star, module)
}

func (self AstProgram) Eval(ctx *Context, env *Environment) error {
	flow, err := ctx.executeStatements(self.Statements, env)
	if err != nil {
		return err
	}
	if flow != nil {
		return InternalError{flow.ControlFlowLocation(), "control flow escaped the module body"}
	}
	return nil
}
