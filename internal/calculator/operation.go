package calculator

import (
	"fmt"
	"math"
	"strings"
)

// Operation is the closed set of arithmetic operations the worker evaluates.
type Operation uint8

const (
	Add Operation = iota + 1
	Subtract
	Multiply
	Divide
)

// Operations lists every supported operation in display order.
var Operations = []Operation{Add, Subtract, Multiply, Divide}

var operationNames = map[Operation]string{
	Add:      "add",
	Subtract: "subtract",
	Multiply: "multiply",
	Divide:   "divide",
}

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return "unknown"
}

// ParseOperation decodes the text form of an operation, ignoring case and
// surrounding whitespace. Unknown names yield a *ComputeError of kind
// UnsupportedOperation that quotes the raw input.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add":
		return Add, nil
	case "subtract":
		return Subtract, nil
	case "multiply":
		return Multiply, nil
	case "divide":
		return Divide, nil
	}
	return 0, &ComputeError{Kind: UnsupportedOperation, Operation: s}
}

// Apply evaluates the operation. The only failures are division by zero and
// results that cannot be represented on the wire (±Inf, NaN). op must come
// from ParseOperation or the declared constants; any other value panics.
func (op Operation) Apply(a, b float64) (float64, error) {
	var result float64
	switch op {
	case Add:
		result = a + b
	case Subtract:
		result = a - b
	case Multiply:
		result = a * b
	case Divide:
		if b == 0 {
			return 0, &ComputeError{Kind: DivideByZero, Operation: op.String()}
		}
		result = a / b
	default:
		panic(fmt.Sprintf("calculator: Apply on invalid Operation %d", int(op)))
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return 0, &ComputeError{Kind: NonFiniteResult, Operation: op.String()}
	}
	return result, nil
}
