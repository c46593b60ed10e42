package cerr

import (
	"fmt"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
)

// F is shorthand for attaching several fields at once.
type F map[string]any

type ErrorContext struct {
	fields  []field
	wrapped error
}

type field struct {
	key   string
	value any
}

func Field(key string, value any) ErrorContext {
	return ErrorContext{}.Field(key, value)
}

func Fields(f F) ErrorContext {
	return ErrorContext{}.Fields(f)
}

func Wrap(err error) ErrorContext {
	return ErrorContext{}.Wrap(err)
}

func Error(msg string) error {
	return ErrorContext{}.errorWithDepth(1, msg)
}

func (c ErrorContext) Field(key string, value any) ErrorContext {
	newCtx := c
	newCtx.fields = append(newCtx.fields[:len(newCtx.fields):len(newCtx.fields)], field{key: key, value: value})
	return newCtx
}

func (c ErrorContext) Fields(f F) ErrorContext {
	newCtx := c
	for key, value := range f {
		newCtx = newCtx.Field(key, value)
	}
	return newCtx
}

func (c ErrorContext) Wrap(err error) ErrorContext {
	newCtx := c
	newCtx.wrapped = err
	return newCtx
}

func (c ErrorContext) Error(msg string) error {
	return c.errorWithDepth(1, msg)
}

func (c ErrorContext) errorWithDepth(depth int, msg string) error {
	var err error
	if c.wrapped != nil {
		err = errors.WrapWithDepth(depth+1, c.wrapped, msg)
	} else {
		err = errors.NewWithDepth(depth+1, msg)
	}

	for _, f := range c.fields {
		err = errors.WithDetail(err, fmt.Sprintf("%s: %+v", f.key, f.value))
	}

	return err
}

// Log reports the error and all accumulated details to the app logger.
func Log(err error) {
	if err == nil {
		return
	}

	logger := log.Log
	for i, detail := range errors.GetAllDetails(err) {
		logger = logger.WithField(fmt.Sprintf("detail_%d", i), detail)
	}

	logger.Error(err.Error())
}
