// Package validator checks calculation requests at the HTTP boundary and
// returns per-field error details.
package validator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/calculator"
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// ValidateSubmitRequest checks operand presence, decodes the operation and
// rejects division by zero. On success it returns the decoded operation.
func ValidateSubmitRequest(req *calculator.SubmitRequest) (calculator.Operation, error) {
	errs := make(map[string]string)

	checkOperand(errs, "firstNumber", req.FirstNumber)
	checkOperand(errs, "secondNumber", req.SecondNumber)

	var op calculator.Operation
	if strings.TrimSpace(req.Operation) == "" {
		errs["operation"] = "operation is required"
	} else {
		parsed, err := calculator.ParseOperation(req.Operation)
		if err != nil {
			errs["operation"] = "invalid operation, supported operations: " + supportedList()
		} else {
			op = parsed
		}
	}

	if op == calculator.Divide && req.SecondNumber != nil && *req.SecondNumber == 0 {
		errs["secondNumber"] = "division by zero is not allowed"
	}

	if len(errs) > 0 {
		return 0, &ValidationError{Fields: errs}
	}
	return op, nil
}

func checkOperand(errs map[string]string, field string, v *float64) {
	switch {
	case v == nil:
		errs[field] = field + " is required"
	case math.IsInf(*v, 0) || math.IsNaN(*v):
		errs[field] = field + " must be a finite number"
	}
}

func supportedList() string {
	names := make([]string, 0, len(calculator.Operations))
	for _, op := range calculator.Operations {
		names = append(names, op.String())
	}
	return strings.Join(names, ", ")
}
