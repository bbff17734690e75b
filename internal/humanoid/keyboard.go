// internal/humanoid/keyboard.go
package humanoid

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
)

// -- keyboardNeighbors maps characters to their adjacent keys on a QWERTY layout --
var keyboardNeighbors = map[rune]string{
	'1': "2q`", '2': "13wq", '3': "24we", '4': "35er", '5': "46rt", '6': "57ty",
	'7': "68yu", '8': "79ui", '9': "80io", '0': "9-op",
	'q': "wa1s", 'w': "qase23", 'e': "wsdr34", 'r': "edft45", 't': "rfgy56",
	'y': "tghu67", 'u': "yhji78", 'i': "ujko89", 'o': "iklp90", 'p': "ol;0-",
	'a': "qwsz", 's': "awedxz", 'd': "serfcx", 'f': "drtgvc", 'g': "ftyhbv",
	'h': "gyujnb", 'j': "huikmn", 'k': "jiol,m", 'l': "kop;.",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn", 'n': "bhjm", 'm': "njk,",
}

// -- commonNgrams contains common letter combinations to simulate rhythmic typing --
var commonNgrams = map[string]bool{
	"th": true, "he": true, "in": true, "er": true, "an": true, "re": true,
	"es": true, "on": true, "st": true, "nt": true,
	"the": true, "and": true, "ing": true, "ion": true, "tio": true,
}

// Type replaces the element's value with text one character at a time. Each
// keystroke updates the value and fires "input"; "change" fires once at the
// end. Cancellation is checked between keystrokes and leaves the partial value.
func (h *Humanoid) Type(ctx context.Context, el *dom.ElementHandle, text string) error {
	if err := el.Dispatch("focus"); err != nil {
		return fmt.Errorf("humanoid: failed to focus <%s>: %w", el.TagName(), err)
	}
	if el.Value() != "" {
		if err := h.setValue(el, ""); err != nil {
			return err
		}
	}

	runes := []rune(text)
	typed := make([]rune, 0, len(runes))
	for i, r := range runes {
		if err := h.sleep(ctx, h.keyDelay(runes, i)); err != nil {
			return err
		}
		if h.shouldTypo() {
			if err := h.neighborTypo(ctx, el, typed, r); err != nil {
				return err
			}
		}
		typed = append(typed, r)
		if err := h.setValue(el, string(typed)); err != nil {
			return err
		}
	}

	if err := el.Dispatch("change"); err != nil {
		return err
	}
	h.logger.Debug("Typed value.", zap.String("tag", el.TagName()), zap.Int("chars", len(runes)))
	return el.Dispatch("blur")
}

// setValue applies one keystroke's worth of value change.
func (h *Humanoid) setValue(el *dom.ElementHandle, v string) error {
	if err := el.SetValue(v); err != nil {
		return fmt.Errorf("humanoid: failed to set value on <%s>: %w", el.TagName(), err)
	}
	return el.Dispatch("input")
}

func (h *Humanoid) shouldTypo() bool {
	return h.cfg.TypoRate > 0 && h.float64() < h.cfg.TypoRate
}

// neighborTypo types an adjacent key, pauses, and backspaces it.
func (h *Humanoid) neighborTypo(ctx context.Context, el *dom.ElementHandle, typed []rune, char rune) error {
	neighbors, ok := keyboardNeighbors[unicode.ToLower(char)]
	if !ok || len(neighbors) == 0 {
		return nil
	}
	typo := rune(neighbors[h.intn(len(neighbors))])
	if unicode.IsUpper(char) {
		typo = unicode.ToUpper(typo)
	}

	if err := h.setValue(el, string(typed)+string(typo)); err != nil {
		return err
	}
	// Noticing the mistake takes longer than a normal keystroke.
	if err := h.sleep(ctx, 2*h.keyDelay(nil, 0)); err != nil {
		return err
	}
	if err := h.setValue(el, string(typed)); err != nil {
		return err
	}
	return h.sleep(ctx, h.keyDelay(nil, 0))
}

// keyDelay samples the inter-key delay (IKD) before runes[index], bounded by
// KeyPauseMin and KeyPauseMax.
func (h *Humanoid) keyDelay(runes []rune, index int) time.Duration {
	if !h.cfg.Enabled {
		return 0
	}
	mean := h.cfg.KeyPauseMean
	minDelay := h.cfg.KeyPauseMin

	// Adjust for common N-grams to simulate rhythmic typing.
	ngramFactor := 1.0
	if runes != nil && index > 1 {
		trigraph := strings.ToLower(string(runes[index-2 : index+1]))
		if commonNgrams[trigraph] {
			ngramFactor = h.cfg.KeyPauseNgramFactor3
		}
	}
	if ngramFactor == 1.0 && runes != nil && index > 0 {
		digraph := strings.ToLower(string(runes[index-1 : index+1]))
		if commonNgrams[digraph] {
			ngramFactor = h.cfg.KeyPauseNgramFactor2
		}
	}
	mean *= ngramFactor

	delay := h.sampleGaussian(mean, h.cfg.KeyPauseStdDev)
	return millis(clamp(delay, minDelay, h.cfg.KeyPauseMax))
}
