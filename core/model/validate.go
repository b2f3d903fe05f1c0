package model

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest is wrapped by every ValidationError.
var ErrInvalidRequest = errors.New("invalid allocation payload")

// ValidationError lists offending fields by their JSON path.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%v: %s", ErrInvalidRequest, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if prev, ok := e.Fields[field]; ok {
		msg = prev + ", " + msg
	}
	e.Fields[field] = msg
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func collect(verr *ValidationError, err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	for _, fe := range fieldErrs {
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		verr.add(path, msg)
	}
	return nil
}

// Validate checks field constraints and charger id uniqueness.
func (r AllocationRequest) Validate() error {
	verr := &ValidationError{}
	if err := collect(verr, validate.Struct(r)); err != nil {
		return err
	}
	seen := make(map[string]int, len(r.Chargers))
	for i, c := range r.Chargers {
		if c.ChargerID == "" {
			continue
		}
		if j, dup := seen[c.ChargerID]; dup {
			verr.add(fmt.Sprintf("chargers[%d].chargerId", i), fmt.Sprintf("duplicate of chargers[%d]", j))
			continue
		}
		seen[c.ChargerID] = i
	}
	return verr.orNil()
}

// ValidateFor checks the response schema and that it names every charger of
// req exactly once and nothing else.
func (p AllocationResponse) ValidateFor(req AllocationRequest) error {
	verr := &ValidationError{}
	if err := collect(verr, validate.Struct(p)); err != nil {
		return err
	}
	want := make(map[string]bool, len(req.Chargers))
	for _, c := range req.Chargers {
		want[c.ChargerID] = true
	}
	seen := make(map[string]bool, len(p.Allocations))
	for i, a := range p.Allocations {
		field := fmt.Sprintf("allocations[%d].chargerId", i)
		switch {
		case !want[a.ChargerID]:
			verr.add(field, "unknown charger "+a.ChargerID)
		case seen[a.ChargerID]:
			verr.add(field, "duplicate charger "+a.ChargerID)
		}
		seen[a.ChargerID] = true
	}
	for _, c := range req.Chargers {
		if !seen[c.ChargerID] {
			verr.add("allocations", "missing charger "+c.ChargerID)
		}
	}
	return verr.orNil()
}
