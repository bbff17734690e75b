// internal/browser/locator/types.go
package locator

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/net/html"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ScanOptions bounds a scan.
type ScanOptions struct {
	IncludeShadowDOM bool `json:"include_shadow_dom" yaml:"include_shadow_dom"`
	IframeTraversal  bool `json:"iframe_traversal" yaml:"iframe_traversal"`
	// MaxDepth is the number of boundary crossings allowed. 0 scans the top document only.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`
}

// DefaultScanOptions enters shadow roots and frames up to five levels deep.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{IncludeShadowDOM: true, IframeTraversal: true, MaxDepth: 5}
}

// ContextKind tells how an execution context was entered.
type ContextKind int

const (
	ContextDocument ContextKind = iota
	ContextShadowRoot
	ContextFrame
)

func (k ContextKind) String() string {
	switch k {
	case ContextDocument:
		return "document"
	case ContextShadowRoot:
		return "shadow-root"
	case ContextFrame:
		return "frame"
	default:
		return "unknown"
	}
}

// ExecutionContext is one node-tree root reachable from the top document.
type ExecutionContext struct {
	Root  *html.Node
	Kind  ContextKind
	Chain Chain
	// Boundary is the shadow host or frame element the context was entered
	// through. Nil for the top document.
	Boundary *html.Node
	Depth    int
}

// CrossingKind discriminates BoundaryCrossing.
type CrossingKind int

const (
	CrossFrame CrossingKind = iota
	CrossShadowHost
)

// BoundaryCrossing is one hop from a context into a nested one. It is only
// meaningful relative to the context it was recorded in.
type BoundaryCrossing struct {
	Kind CrossingKind
	// Index is the position of the frame among all frame elements of the
	// context, in document order. Set for CrossFrame.
	Index int
	// Selector locates the shadow host in the context. Set for CrossShadowHost.
	Selector string
}

// FrameCrossing enters the document of the n-th frame element.
func FrameCrossing(n int) BoundaryCrossing {
	return BoundaryCrossing{Kind: CrossFrame, Index: n}
}

// ShadowCrossing enters the shadow root of the host matched by selector.
func ShadowCrossing(selector string) BoundaryCrossing {
	return BoundaryCrossing{Kind: CrossShadowHost, Selector: selector}
}

func (b BoundaryCrossing) String() string {
	if b.Kind == CrossFrame {
		return fmt.Sprintf("frame(%d)", b.Index)
	}
	return fmt.Sprintf("shadow(%s)", b.Selector)
}

// MarshalJSON encodes frames as numbers and shadow hosts as strings.
func (b BoundaryCrossing) MarshalJSON() ([]byte, error) {
	if b.Kind == CrossFrame {
		return json.Marshal(b.Index)
	}
	return json.Marshal(b.Selector)
}

// MarshalYAML mirrors MarshalJSON.
func (b BoundaryCrossing) MarshalYAML() (interface{}, error) {
	if b.Kind == CrossFrame {
		return b.Index, nil
	}
	return b.Selector, nil
}

// UnmarshalJSON accepts a number (frame index) or a string (host selector).
func (b *BoundaryCrossing) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var sel string
		if err := json.Unmarshal(data, &sel); err != nil {
			return err
		}
		if strings.TrimSpace(sel) == "" {
			return fmt.Errorf("empty shadow host selector in framePath")
		}
		*b = ShadowCrossing(sel)
		return nil
	}
	var idx int
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("framePath entry must be a string or an integer: %w", err)
	}
	if idx < 0 {
		return fmt.Errorf("negative frame index %d in framePath", idx)
	}
	*b = FrameCrossing(idx)
	return nil
}

// Chain is the ordered list of crossings from the top document to a context.
type Chain []BoundaryCrossing

// Extend returns a copy of c with b appended. c itself is never modified.
func (c Chain) Extend(b BoundaryCrossing) Chain {
	out := make(Chain, len(c), len(c)+1)
	copy(out, c)
	return append(out, b)
}

func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, b := range c {
		parts[i] = b.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Path returns the chain in its wire form: ints for frames, strings for hosts.
func (c Chain) Path() []any {
	out := make([]any, len(c))
	for i, b := range c {
		if b.Kind == CrossFrame {
			out[i] = b.Index
		} else {
			out[i] = b.Selector
		}
	}
	return out
}

// MarshalJSON always emits an array, never null.
func (c Chain) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]BoundaryCrossing(c))
}

// FieldDescriptor is a portable address for a form control.
type FieldDescriptor struct {
	LocalSelector string  `json:"selector" yaml:"selector"`
	Tag           string  `json:"tag" yaml:"tag"`
	InputKind     string  `json:"type" yaml:"type"`
	Name          *string `json:"name" yaml:"name"`
	Label         *string `json:"label" yaml:"label"`
	BoundaryChain Chain   `json:"framePath" yaml:"framePath,flow"`

	Kind FieldKind `json:"-" yaml:"-"`
}

// String renders the descriptor for logs.
func (d FieldDescriptor) String() string {
	return fmt.Sprintf("%s %s", d.BoundaryChain, d.LocalSelector)
}

// ScanResult is one complete scan of a page. Fields follow context discovery
// order, then document order within a context.
type ScanResult struct {
	ID                 uuid.UUID         `json:"id" yaml:"id"`
	CapturedAt         time.Time         `json:"capturedAt" yaml:"capturedAt"`
	Fields             []FieldDescriptor `json:"fields" yaml:"fields"`
	DepthExceeded      bool              `json:"depthExceeded" yaml:"depthExceeded"`
	InaccessibleFrames int               `json:"inaccessible" yaml:"inaccessible"`

	contexts []*html.Node
}

// ContextRoots returns the roots of every context the scan visited, in
// discovery order.
func (r *ScanResult) ContextRoots() []*html.Node {
	if r == nil {
		return nil
	}
	out := make([]*html.Node, len(r.contexts))
	copy(out, r.contexts)
	return out
}

// Warnings reports the informational outcomes of the scan: ErrDepthExceeded
// when the walk was truncated and ErrInaccessible when cross-origin frames
// were skipped. Neither makes the result invalid.
func (r *ScanResult) Warnings() []error {
	if r == nil {
		return nil
	}
	var out []error
	if r.DepthExceeded {
		out = append(out, ErrDepthExceeded)
	}
	if r.InaccessibleFrames > 0 {
		out = append(out, fmt.Errorf("%d frame(s) skipped: %w", r.InaccessibleFrames, ErrInaccessible))
	}
	return out
}

// EncodeDescriptors serializes descriptors as a JSON array.
func EncodeDescriptors(ds []FieldDescriptor) ([]byte, error) {
	if ds == nil {
		ds = []FieldDescriptor{}
	}
	return json.MarshalIndent(ds, "", "  ")
}

// DecodeDescriptors parses a JSON array of descriptors.
func DecodeDescriptors(data []byte) ([]FieldDescriptor, error) {
	var ds []FieldDescriptor
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to decode descriptors: %w", err)
	}
	for i, d := range ds {
		if strings.TrimSpace(d.LocalSelector) == "" {
			return nil, fmt.Errorf("descriptor %d has an empty selector", i)
		}
	}
	return ds, nil
}
