package btsense

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	listOpen      = "["
	listClose     = "]"
	listSeparator = ", "
)

// EncodeValues serializes a sequence of values as a human readable list, e.g. `[21.5, 21.7, 22.0]`
func EncodeValues(values []float64) []byte {
	var sb strings.Builder
	sb.Grow(len(listOpen) + len(listClose) + len(values)*(len(listSeparator)+6))

	sb.WriteString(listOpen)
	for i, v := range values {
		if i > 0 {
			sb.WriteString(listSeparator)
		}
		sb.WriteString(formatValue(v))
	}
	sb.WriteString(listClose)

	return []byte(sb.String())
}

// DecodeValues parses a list as produced by EncodeValues
func DecodeValues(data []byte) ([]float64, error) {
	s := strings.TrimSpace(string(data))
	if !strings.HasPrefix(s, listOpen) || !strings.HasSuffix(s, listClose) {
		return nil, fmt.Errorf("invalid payload `%s`: missing list delimiters", s)
	}

	s = strings.TrimSpace(s[len(listOpen) : len(s)-len(listClose)])
	if s == "" {
		return []float64{}, nil
	}

	fields := strings.Split(s, ",")
	res := make([]float64, 0, len(fields))
	for _, field := range fields {
		v, err := parseValue(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("invalid payload element `%s`: %w", field, err)
		}
		res = append(res, v)
	}

	return res, nil
}

// MaxEncodedSize returns the worst case payload size of a chunk of n readings
// within the valid sensor range (e.g. `-39.99999999999999` per value)
func MaxEncodedSize(n int) int {
	if n <= 0 {
		return len(listOpen) + len(listClose)
	}
	return len(listOpen) + len(listClose) + n*maxValueWidth + (n-1)*len(listSeparator)
}

// Shortest round-trip representation of a value in [-40, 100]: sign, three
// integer digits, point and up to 17 significant digits
const maxValueWidth = 1 + 3 + 1 + 17

// formatValue uses the shortest representation that parses back to the same
// value, always keeping a fractional part for integral numbers
func formatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	if abs := math.Abs(v); abs >= 1e16 || (abs != 0 && abs < 1e-4) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}

	return s
}

func parseValue(s string) (float64, error) {
	switch s {
	case "nan":
		return math.NaN(), nil
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(s, 64)
}
