package relaytest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// ErrInvalidMethod is returned by NewHandler for a method that is not
// func(context.Context, params...) ([result,] error).
var ErrInvalidMethod = errors.New("invalid relay method")

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// method is one entry of the relay method table.
type method struct {
	fn        reflect.Value
	params    []reflect.Type
	hasResult bool
}

func newMethod(name string, fn any) (method, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return method{}, fmt.Errorf("%w %s: %T is not a function", ErrInvalidMethod, name, fn)
	}
	t := v.Type()
	if t.NumIn() == 0 || t.In(0) != contextType {
		return method{}, fmt.Errorf("%w %s: first argument must be context.Context", ErrInvalidMethod, name)
	}
	switch {
	case t.NumOut() == 0 || t.NumOut() > 2:
		return method{}, fmt.Errorf("%w %s: must return ([result,] error)", ErrInvalidMethod, name)
	case t.Out(t.NumOut()-1) != errorType:
		return method{}, fmt.Errorf("%w %s: last result must be error", ErrInvalidMethod, name)
	}

	m := method{fn: v, hasResult: t.NumOut() == 2}
	for i := 1; i < t.NumIn(); i++ {
		m.params = append(m.params, t.In(i))
	}
	return m, nil
}

// invoke decodes the positional params into the method arguments and calls it. Missing trailing
// params are passed as zero values. Undecodable or surplus params are reported as *Error with
// CodeInvalidParams.
func (m method) invoke(ctx context.Context, params []json.RawMessage) (any, error) {
	if len(params) > len(m.params) {
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("expected at most %d params, got %d", len(m.params), len(params))}
	}

	args := make([]reflect.Value, 0, len(m.params)+1)
	args = append(args, reflect.ValueOf(ctx))
	for i, typ := range m.params {
		arg := reflect.New(typ)
		if i < len(params) {
			if err := json.Unmarshal(params[i], arg.Interface()); err != nil {
				return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("param %d: %v", i, err)}
			}
		}
		args = append(args, arg.Elem())
	}

	out := m.fn.Call(args)
	err, _ := out[len(out)-1].Interface().(error)
	if !m.hasResult {
		return nil, err
	}
	return out[0].Interface(), err
}
