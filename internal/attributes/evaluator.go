package attributes

import (
	"fmt"
	"log"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mrzor/procwatch/internal/config"
	"github.com/mrzor/procwatch/internal/registry"
)

// Evaluator compiles custom attribute expressions once and evaluates them
// against process records.
type Evaluator struct {
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
}

// exprEnv is the typed environment expressions are checked against. The
// same field names are populated per record at evaluation time.
func exprEnv() map[string]interface{} {
	return map[string]interface{}{
		"pid":     0,
		"ppid":    0,
		"name":    "",
		"cmdline": "",
		"exe":     "",
		"sha256":  "",
		"source":  "",
	}
}

// NewEvaluator pre-compiles all custom attribute expressions. A compile
// failure is fatal: a bad expression should stop the run before any
// monitoring happens.
func NewEvaluator(customAttrs []config.CustomAttribute) (*Evaluator, error) {
	compiledExprs := make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		program, err := expr.Compile(attr.Expression, expr.Env(exprEnv()))
		if err != nil {
			return nil, fmt.Errorf("compiling expression for attribute %q: %w", attr.Name, err)
		}
		compiledExprs[i] = program
	}

	return &Evaluator{
		customAttrs:   customAttrs,
		compiledExprs: compiledExprs,
	}, nil
}

// Evaluate returns the custom attributes for one record. An evaluation
// failure skips that attribute for that record and is reported as a
// warning; the remaining attributes still apply.
func (e *Evaluator) Evaluate(rec registry.Record) []attribute.KeyValue {
	if len(e.customAttrs) == 0 {
		return nil
	}

	env := map[string]interface{}{
		"pid":     int(rec.PID),
		"ppid":    int(rec.ParentPID),
		"name":    rec.Name,
		"cmdline": rec.Cmdline,
		"exe":     rec.ExePath,
		"sha256":  rec.SHA256,
		"source":  rec.Source,
	}

	var attrs []attribute.KeyValue
	for i, customAttr := range e.customAttrs {
		output, err := expr.Run(e.compiledExprs[i], env)
		if err != nil {
			log.Printf("Warning: evaluating attribute %q for pid %d: %v", customAttr.Name, rec.PID, err)
			continue
		}
		attrs = append(attrs, expand(customAttr.Name, output)...)
	}
	return attrs
}

// expand converts one expression result into attributes. A map result is
// flattened into dotted names, one attribute per key; everything else
// becomes a single string attribute.
func expand(name string, output interface{}) []attribute.KeyValue {
	value := reflect.ValueOf(output)
	if value.Kind() != reflect.Map {
		return []attribute.KeyValue{attribute.String(name, fmt.Sprint(output))}
	}

	var attrs []attribute.KeyValue
	for _, key := range value.MapKeys() {
		attrName := name + "." + sanitizeAttributeName(fmt.Sprintf("%v", key.Interface()))
		attrs = append(attrs, attribute.String(attrName, fmt.Sprintf("%v", value.MapIndex(key).Interface())))
	}
	return attrs
}

// sanitizeAttributeName replaces anything outside [A-Za-z0-9_] with an
// underscore so flattened keys stay valid attribute names.
func sanitizeAttributeName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}
