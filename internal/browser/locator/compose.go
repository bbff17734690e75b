// internal/browser/locator/compose.go
package locator

import (
	"fmt"
)

// Compose pairs the boundary chain of ec with a selector for f that is unique
// within ec.
func Compose(ec ExecutionContext, f DetectedField) (FieldDescriptor, error) {
	sel, err := Synthesize(f.Node, ec.Root)
	if err != nil {
		return FieldDescriptor{}, fmt.Errorf("compose descriptor for <%s> in %s context: %w", f.Tag, ec.Kind, err)
	}
	chain := ec.Chain
	if chain == nil {
		chain = Chain{}
	}
	return FieldDescriptor{
		LocalSelector: sel,
		BoundaryChain: chain,
		Tag:           f.Tag,
		InputKind:     f.InputKind,
		Name:          f.Name,
		Label:         f.Label,
		Kind:          f.Kind,
	}, nil
}
