package reflext

import (
	"reflect"

	"github.com/pkg/errors"
)

// SetPointer stores srcValue into the variable dstPtr points to. srcValue
// must be assignable to it, e.g. a bool into a *bool or a concrete type into
// a pointer to an interface it implements.
func SetPointer(dstPtr, srcValue interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("Panic while setting pointer: %v", r)
		}
	}()

	dst := reflect.ValueOf(dstPtr)
	if dst.Kind() != reflect.Ptr || dst.IsNil() {
		return errors.Errorf("Destination must be a non-nil pointer, got %T", dstPtr)
	}

	src := reflect.ValueOf(srcValue)
	if !src.IsValid() {
		dst.Elem().Set(reflect.Zero(dst.Elem().Type()))
		return nil
	}
	if !src.Type().AssignableTo(dst.Elem().Type()) {
		return errors.Errorf("Cannot assign %s to %s", src.Type(), dst.Elem().Type())
	}
	dst.Elem().Set(src)
	return nil
}
