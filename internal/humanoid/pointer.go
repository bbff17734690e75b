// internal/humanoid/pointer.go
package humanoid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
)

// Click presses and releases the pointer on the element, holding it for a
// bounded random duration, then fires "click".
func (h *Humanoid) Click(ctx context.Context, el *dom.ElementHandle) error {
	if err := el.Dispatch("mousedown"); err != nil {
		return fmt.Errorf("humanoid: failed to press on <%s>: %w", el.TagName(), err)
	}
	if err := h.sleep(ctx, h.clickHold()); err != nil {
		return err
	}
	if err := el.Dispatch("mouseup"); err != nil {
		return err
	}
	return el.Dispatch("click")
}

// Select clicks the control open and picks the option whose value, or text
// when the option has none, equals value.
func (h *Humanoid) Select(ctx context.Context, el *dom.ElementHandle, value string) error {
	if err := h.Click(ctx, el); err != nil {
		return err
	}
	if err := h.sleep(ctx, h.keyDelay(nil, 0)); err != nil {
		return err
	}
	if err := el.SetValue(value); err != nil {
		return fmt.Errorf("humanoid: failed to select %q: %w", value, err)
	}
	if err := el.Dispatch("input"); err != nil {
		return err
	}
	return el.Dispatch("change")
}

// SetChecked clicks a checkbox or radio until its checkedness matches want.
func (h *Humanoid) SetChecked(ctx context.Context, el *dom.ElementHandle, want bool) error {
	if el.Checked() == want {
		return nil
	}
	if err := h.Click(ctx, el); err != nil {
		return err
	}
	if el.Checked() != want {
		// A radio cannot be unchecked by clicking it.
		return fmt.Errorf("humanoid: %s input stayed checked=%t", el.InputType(), el.Checked())
	}
	h.logger.Debug("Toggled control.", zap.String("type", el.InputType()), zap.Bool("checked", want))
	return el.Dispatch("change")
}

func (h *Humanoid) clickHold() time.Duration {
	if !h.cfg.Enabled {
		return 0
	}
	lo, hi := h.cfg.ClickHoldMinMs, h.cfg.ClickHoldMaxMs
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}
	return time.Duration(lo+h.intn(hi-lo+1)) * time.Millisecond
}

// ParseBool interprets a mapping value for a checkable control.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on", "checked":
		return true
	default:
		return false
	}
}
