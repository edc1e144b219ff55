package output

import (
	"fmt"

	"github.com/itchyny/gojq"
)

// Filter applies a jq expression to data. A single result is returned as-is;
// multiple results are collected into a slice.
func Filter(expr string, data any) (any, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, ErrValidation(fmt.Sprintf("invalid --jq expression: %v", err))
	}

	var results []any
	iter := query.Run(NormalizeData(data))
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, ErrValidation(fmt.Sprintf("jq: %v", err))
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
