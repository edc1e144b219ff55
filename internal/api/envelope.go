package api

import "encoding/json"

// Envelope is the wrapper around every backend payload: {data}, {data, meta}
// for lists, or {message}.
type Envelope[T any] struct {
	Data    T               `json:"data"`
	Meta    *PaginationMeta `json:"meta,omitempty"`
	Message string          `json:"message,omitempty"`
}

// PaginationMeta describes one page of a list response.
type PaginationMeta struct {
	CurrentPage int `json:"currentPage"`
	PerPage     int `json:"perPage"`
	TotalItems  int `json:"totalItems"`
	TotalPages  int `json:"totalPages"`
}

// HasNext reports whether a later page exists.
func (m PaginationMeta) HasNext() bool {
	return m.CurrentPage > 0 && m.CurrentPage < m.TotalPages
}

// Page is a list payload paired with its pagination.
type Page[T any] struct {
	Items []T            `json:"items"`
	Meta  PaginationMeta `json:"meta"`
}

// errorEnvelope is the body of a non-2xx response.
type errorEnvelope struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// errorMessage extracts the message of an error envelope, or "".
func errorMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	if env.Message != "" {
		return env.Message
	}
	return env.Error
}

// DecodeData decodes body into v, accepting both a bare object and one
// wrapped as {"data": ...}.
func DecodeData(body []byte, v any) error {
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil &&
		len(wrapped.Data) > 0 && string(wrapped.Data) != "null" {
		return json.Unmarshal(wrapped.Data, v)
	}
	return json.Unmarshal(body, v)
}
