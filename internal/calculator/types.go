// Package calculator defines the request and response records exchanged on
// the calculation topics, the closed set of supported operations, and the
// pure evaluation that turns a request into a response.
package calculator

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// CalculationRequest is published on the request topic. It is built once at
// the HTTP boundary and treated as read-only afterwards.
type CalculationRequest struct {
	ID           uuid.UUID `json:"id"`
	FirstNumber  float64   `json:"firstNumber"`
	SecondNumber float64   `json:"secondNumber"`
	Operation    string    `json:"operation"`
	RequestTime  time.Time `json:"requestTime"`
}

// NewCalculationRequest assigns a fresh identifier and the current UTC time
// to a validated operation and its operands.
func NewCalculationRequest(first, second float64, op Operation) CalculationRequest {
	return CalculationRequest{
		ID:           uuid.New(),
		FirstNumber:  first,
		SecondNumber: second,
		Operation:    op.String(),
		RequestTime:  time.Now().UTC(),
	}
}

// Key is the Kafka message key for the request.
func (r CalculationRequest) Key() string {
	return r.ID.String()
}

// Validate rejects decoded requests that carry no identifier.
func (r CalculationRequest) Validate() error {
	if r.ID == uuid.Nil {
		return errors.New("calculation request has no id")
	}
	return nil
}

// CalculationResponse is published on the response topic. Its ID always
// equals the ID of the request it answers.
type CalculationResponse struct {
	ID            uuid.UUID `json:"id"`
	Result        float64   `json:"result"`
	Operation     string    `json:"operation"`
	IsSuccess     bool      `json:"isSuccess"`
	ErrorMessage  string    `json:"errorMessage"`
	ProcessedTime time.Time `json:"processedTime"`
}

// Key is the Kafka message key for the response.
func (r CalculationResponse) Key() string {
	return r.ID.String()
}

// Validate rejects decoded responses that carry no identifier.
func (r CalculationResponse) Validate() error {
	if r.ID == uuid.Nil {
		return errors.New("calculation response has no id")
	}
	return nil
}

// SubmitRequest is the JSON body accepted by the calculate endpoint. The
// operands are pointers so a missing field can be told apart from zero.
type SubmitRequest struct {
	FirstNumber  *float64 `json:"firstNumber"`
	SecondNumber *float64 `json:"secondNumber"`
	Operation    string   `json:"operation"`
}

// SubmitResponse is returned once a request has been handed to Kafka.
type SubmitResponse struct {
	RequestID uuid.UUID `json:"requestId"`
	Message   string    `json:"message"`
}
