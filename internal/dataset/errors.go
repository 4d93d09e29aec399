package dataset

import "fmt"

// SchemaError reports a table that lacks a required column.
type SchemaError struct {
	Table   string
	Column  string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in %s: column %s: %s", e.Table, e.Column, e.Message)
}

func (e *SchemaError) IsTransient() bool {
	return false
}
