// Package domain is a stub for testing the request linter.
package domain

// InputList is a list of data identifiers.
type InputList []string

// OpDescriptor describes one requested operation.
type OpDescriptor struct {
	ID     string
	Name   string
	Input  InputList
	Result string
	Params map[string]any
}

// Request is a workflow request.
type Request struct {
	ID  string
	Ops []OpDescriptor
}
