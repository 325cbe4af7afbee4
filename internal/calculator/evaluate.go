package calculator

import (
	"errors"
	"time"
)

// ComputeErrorKind classifies why an evaluation produced no result.
type ComputeErrorKind uint8

const (
	DivideByZero ComputeErrorKind = iota + 1
	UnsupportedOperation
	NonFiniteResult
)

func (k ComputeErrorKind) String() string {
	switch k {
	case DivideByZero:
		return "divide_by_zero"
	case UnsupportedOperation:
		return "unsupported_operation"
	case NonFiniteResult:
		return "non_finite_result"
	default:
		return "unknown"
	}
}

// ComputeError is an evaluation failure. It is always captured into the
// response payload and never returned from message handling.
type ComputeError struct {
	Kind      ComputeErrorKind
	Operation string
}

func (e *ComputeError) Error() string {
	switch e.Kind {
	case DivideByZero:
		return "attempted to divide by zero"
	case UnsupportedOperation:
		return "unsupported operation: " + e.Operation
	case NonFiniteResult:
		return "result is not a finite number"
	default:
		return "calculation failed"
	}
}

// IsComputeError reports whether err is (or wraps) a *ComputeError.
func IsComputeError(err error) bool {
	var ce *ComputeError
	return errors.As(err, &ce)
}

// Evaluate decodes the request's operation and applies it to the operands.
func Evaluate(req CalculationRequest) (float64, error) {
	op, err := ParseOperation(req.Operation)
	if err != nil {
		return 0, err
	}
	return op.Apply(req.FirstNumber, req.SecondNumber)
}

// Calculate builds the response for req. It never fails: compute errors are
// reported through IsSuccess and ErrorMessage, and every field except
// ProcessedTime depends only on the request, so redelivered requests yield
// equal responses.
func Calculate(req CalculationRequest, processedAt time.Time) CalculationResponse {
	resp := CalculationResponse{
		ID:            req.ID,
		Operation:     req.Operation,
		ProcessedTime: processedAt.UTC(),
	}
	result, err := Evaluate(req)
	if err != nil {
		resp.ErrorMessage = err.Error()
		return resp
	}
	resp.IsSuccess = true
	resp.Result = result
	return resp
}
