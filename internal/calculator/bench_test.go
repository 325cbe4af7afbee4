package calculator

import (
	"testing"
	"time"
)

// BenchmarkCalculate measures evaluating one request into a response.
func BenchmarkCalculate(b *testing.B) {
	req := request(1234.5, 6.7, "Divide")
	now := time.Now()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Calculate(req, now)
	}
}

// BenchmarkParseOperation measures decoding operation names.
func BenchmarkParseOperation(b *testing.B) {
	names := []string{"add", "SUBTRACT", " multiply ", "Divide", "modulo"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ParseOperation(names[i%len(names)])
	}
}
