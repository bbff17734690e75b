package schemas

import (
	"time"
)

// -- Event Schemas --

// EventType identifies the payload carried by a bus message.
type EventType string

const (
	EventScanCompleted EventType = "SCAN_COMPLETED"
	EventFillCompleted EventType = "FILL_COMPLETED"
)

// ScanTrigger records why a scan ran.
type ScanTrigger string

const (
	TriggerInitial  ScanTrigger = "initial"
	TriggerMutation ScanTrigger = "mutation"
	TriggerManual   ScanTrigger = "manual"
)

// ScanCompleted is published after every successful scan.
type ScanCompleted struct {
	ScanID        string      `json:"scan_id"`
	CapturedAt    time.Time   `json:"captured_at"`
	Trigger       ScanTrigger `json:"trigger"`
	FieldCount    int         `json:"field_count"`
	ContextCount  int         `json:"context_count"`
	DepthExceeded bool        `json:"depth_exceeded"`
	Inaccessible  int         `json:"inaccessible"`
}

// EventType implements events.Event.
func (ScanCompleted) EventType() EventType { return EventScanCompleted }

// FieldStatus is the outcome of filling one field.
type FieldStatus string

const (
	FieldFilled  FieldStatus = "filled"
	FieldFailed  FieldStatus = "failed"
	FieldSkipped FieldStatus = "skipped"
)

// FieldOutcome reports one field of a fill pass.
type FieldOutcome struct {
	Selector  string      `json:"selector"`
	FramePath []any       `json:"frame_path"`
	Status    FieldStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
}

// FillCompleted is published when a fill pass ends, including aborted passes.
type FillCompleted struct {
	PassID     string         `json:"pass_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Aborted    bool           `json:"aborted"`
	Filled     int            `json:"filled"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Fields     []FieldOutcome `json:"fields"`
}

// EventType implements events.Event.
func (FillCompleted) EventType() EventType { return EventFillCompleted }
