package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/calculator"
)

func f(v float64) *float64 { return &v }

func TestValidateSubmitRequestAccepts(t *testing.T) {
	op, err := ValidateSubmitRequest(&calculator.SubmitRequest{
		FirstNumber:  f(10),
		SecondNumber: f(5),
		Operation:    "MULTIPLY",
	})
	require.NoError(t, err)
	assert.Equal(t, calculator.Multiply, op)

	op, err = ValidateSubmitRequest(&calculator.SubmitRequest{
		FirstNumber:  f(0),
		SecondNumber: f(0),
		Operation:    "add",
	})
	require.NoError(t, err, "zero operands are present, not missing")
	assert.Equal(t, calculator.Add, op)
}

func TestValidateSubmitRequestRejects(t *testing.T) {
	tests := []struct {
		name  string
		req   calculator.SubmitRequest
		field string
		msg   string
	}{
		{"missing first", calculator.SubmitRequest{SecondNumber: f(1), Operation: "add"}, "firstNumber", "required"},
		{"missing second", calculator.SubmitRequest{FirstNumber: f(1), Operation: "add"}, "secondNumber", "required"},
		{"missing operation", calculator.SubmitRequest{FirstNumber: f(1), SecondNumber: f(1)}, "operation", "required"},
		{"unknown operation", calculator.SubmitRequest{FirstNumber: f(1), SecondNumber: f(1), Operation: "modulo"}, "operation", "add, subtract, multiply, divide"},
		{"divide by zero", calculator.SubmitRequest{FirstNumber: f(10), SecondNumber: f(0), Operation: "Divide"}, "secondNumber", "division by zero"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateSubmitRequest(&tt.req)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Contains(t, vErr.Fields[tt.field], tt.msg)
		})
	}
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{
		"secondNumber": "b",
		"firstNumber":  "a",
	}}
	assert.Equal(t, "firstNumber:a; secondNumber:b", err.Error())
}
