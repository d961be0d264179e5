// Package a is a test package for the request linter.
package a

import "domain"

func missingName() domain.OpDescriptor {
	return domain.OpDescriptor{ID: "a", Result: "r1"} // want "OpDescriptor without a Name"
}

func emptyName() domain.OpDescriptor {
	return domain.OpDescriptor{Name: ""} // want "OpDescriptor with an empty Name"
}

func malformedName() domain.OpDescriptor {
	return domain.OpDescriptor{Name: "math::add"} // want `malformed op name "math::add"`
}

func emptyLiteral() domain.OpDescriptor {
	return domain.OpDescriptor{} // want "OpDescriptor without a Name"
}

func positionalEmptyName() domain.OpDescriptor {
	return domain.OpDescriptor{"a", "", nil, "r1", nil} // want "OpDescriptor with an empty Name"
}

func duplicateInput() domain.OpDescriptor {
	return domain.OpDescriptor{Name: "math:add", Input: domain.InputList{"x", "y", "x"}} // want `duplicate input "x"`
}

func duplicateIDs() *domain.Request {
	return &domain.Request{
		Ops: []domain.OpDescriptor{
			{ID: "a", Name: "math:const"},
			{ID: "a", Name: "math:add"}, // want `duplicate op id "a"`
			{Name: "math:add", Result: "r2"},
		},
	}
}

func elidedMissingName() []domain.OpDescriptor {
	return []domain.OpDescriptor{
		{ID: "b"}, // want "OpDescriptor without a Name"
	}
}

// Valid cases - should NOT produce warnings

func valid() *domain.Request {
	name := "math:add"
	return &domain.Request{
		Ops: []domain.OpDescriptor{
			{ID: "a", Name: "math:const", Result: "r1"},
			{ID: "b", Name: "math.sub", Result: "r2"},
			{ID: "c", Name: name, Input: domain.InputList{"r1", "r2"}},
			{"d", "math:mul", domain.InputList{"r1"}, "r4", nil},
		},
	}
}
