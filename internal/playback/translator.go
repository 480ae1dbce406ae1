// Package playback turns flattened scenario actions into wire payloads and
// drives them through a client transport, recording every step in a
// structured log for assertions and post-run export.
package playback

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/autorp/autorp/internal/scenario"
	"github.com/autorp/autorp/internal/transport"
)

// ErrUntranslatable reports an action the wire protocol has no encoding for.
var ErrUntranslatable = fmt.Errorf("playback: untranslatable action")

// Translator encodes one action into the newline protocol the game client
// consumes. Translation is pure; pacing and waiting happen in the Runner.
type Translator struct{}

// NewTranslator returns a translator with the default token set.
func NewTranslator() *Translator { return &Translator{} }

// Translate returns the payload sequence for a single action. Compound
// actions (keypress press, key_sequence, key_combo, mouse_drag) lower to
// several payloads; the order is part of the protocol contract.
func (t *Translator) Translate(a scenario.Action) ([]string, error) {
	switch a.Kind {
	case scenario.KindCommand:
		cmd := a.Str("command", a.Str("value", ""))
		if cmd == "" {
			return nil, fmt.Errorf("%w: command without payload", ErrUntranslatable)
		}
		return []string{cmd}, nil

	case scenario.KindChat:
		return []string{transport.TokenChat + a.Str("message", a.Str("text", ""))}, nil

	case scenario.KindWait:
		return []string{transport.TokenWait + ":" + formatFloat(a.Float("seconds", a.Float("delay", 0)))}, nil

	case scenario.KindWaitFor:
		phrase := a.Str("phrase", a.Str("value", ""))
		timeout := a.Float("timeout", a.Float("seconds", 10.0))
		return []string{fmt.Sprintf("%s:%s:%s", transport.TokenWaitFor, formatFloat(timeout), phrase)}, nil

	case scenario.KindTeleport:
		coords := strings.Join([]string{
			formatFloat(a.Float("x", 0)),
			formatFloat(a.Float("y", 0)),
			formatFloat(a.Float("z", 0)),
		}, ",")
		return []string{fmt.Sprintf("%s:%s:%d:%d",
			transport.TokenTeleport, coords, a.Int("interior", 0), a.Int("world", 0))}, nil

	case scenario.KindKeypress, scenario.KindKey:
		key := strings.ToUpper(strings.TrimSpace(a.Str("key", "")))
		if key == "" {
			return nil, fmt.Errorf("%w: keypress without a key", ErrUntranslatable)
		}
		switch state := strings.ToLower(a.Str("state", "press")); state {
		case "press":
			return []string{keyPayload(key, "down"), keyPayload(key, "up")}, nil
		case "down", "hold":
			return []string{keyPayload(key, "down")}, nil
		case "up", "release":
			return []string{keyPayload(key, "up")}, nil
		default:
			return nil, fmt.Errorf("%w: key state %q", ErrUntranslatable, state)
		}

	case scenario.KindKeySequence:
		keys := a.Strings("keys")
		if len(keys) == 0 {
			return nil, fmt.Errorf("%w: key_sequence without keys", ErrUntranslatable)
		}
		interval := a.Float("interval", 0)
		var out []string
		for i, k := range keys {
			if i > 0 && interval > 0 {
				out = append(out, transport.TokenWait+":"+formatFloat(interval))
			}
			k = strings.ToUpper(strings.TrimSpace(k))
			out = append(out, keyPayload(k, "down"), keyPayload(k, "up"))
		}
		return out, nil

	case scenario.KindKeyCombo:
		keys := a.Strings("keys")
		if len(keys) == 0 {
			return nil, fmt.Errorf("%w: key_combo without keys", ErrUntranslatable)
		}
		hold := a.Float("hold", 0.1)
		out := make([]string, 0, 2*len(keys)+1)
		for _, k := range keys {
			out = append(out, keyPayload(strings.ToUpper(strings.TrimSpace(k)), "down"))
		}
		out = append(out, transport.TokenWait+":"+formatFloat(hold))
		for i := len(keys) - 1; i >= 0; i-- {
			out = append(out, keyPayload(strings.ToUpper(strings.TrimSpace(keys[i])), "up"))
		}
		return out, nil

	case scenario.KindTypeText:
		text, ok := firstParam(a, "text", "value")
		if !ok {
			return nil, fmt.Errorf("%w: type_text without text", ErrUntranslatable)
		}
		return []string{transport.TokenType + ":" + text}, nil

	case scenario.KindFocusWindow:
		if title := a.Str("title", ""); title != "" {
			return []string{transport.TokenFocus + ":" + title}, nil
		}
		return []string{transport.TokenFocus}, nil

	case scenario.KindMouseMove:
		if _, ok := a.Params["x"]; !ok {
			return nil, fmt.Errorf("%w: mouse_move without coordinates", ErrUntranslatable)
		}
		if _, ok := a.Params["y"]; !ok {
			return nil, fmt.Errorf("%w: mouse_move without coordinates", ErrUntranslatable)
		}
		return []string{mousePayload(
			a.Str("mode", "absolute"),
			a.Float("x", 0), a.Float("y", 0),
			a.Float("duration", 0),
		)}, nil

	case scenario.KindMouseClick:
		button := a.Str("button", "left")
		state := a.Str("state", a.Str("mode", "click"))
		return []string{fmt.Sprintf("%s:%s:%s", transport.TokenMouseClick, button, state)}, nil

	case scenario.KindMouseScroll:
		direction := a.Str("direction", "down")
		steps := a.Int("steps", 1)
		return []string{fmt.Sprintf("%s:%s:%d:0", transport.TokenMouseScroll, direction, steps)}, nil

	case scenario.KindMouseDrag:
		button := a.Str("button", "left")
		hold := a.Float("hold", 0.1)
		duration := a.Float("duration", 0)
		return []string{
			mousePayload(a.Str("mode", "absolute"), a.Float("from_x", 0), a.Float("from_y", 0), duration),
			fmt.Sprintf("%s:%s:down", transport.TokenMouseClick, button),
			transport.TokenWait + ":" + formatFloat(hold),
			mousePayload(a.Str("mode", "absolute"), a.Float("to_x", 0), a.Float("to_y", 0), duration),
			fmt.Sprintf("%s:%s:up", transport.TokenMouseClick, button),
		}, nil

	case scenario.KindScreenshot:
		name := a.Str("name", "capture")
		if target := a.Str("path", a.Str("directory", "")); target != "" {
			return []string{fmt.Sprintf("%s:%s:%s", transport.TokenScreenshot, name, target)}, nil
		}
		return []string{transport.TokenScreenshot + ":" + name}, nil

	case scenario.KindOption:
		name := a.Str("name", a.Str("key", ""))
		if name == "" {
			return nil, fmt.Errorf("%w: option without a name", ErrUntranslatable)
		}
		return []string{fmt.Sprintf("%s:%s=%s", transport.TokenOption, name, a.Str("value", ""))}, nil

	case scenario.KindConfig:
		name := a.Str("name", a.Str("key", ""))
		if name == "" {
			return nil, fmt.Errorf("%w: config without a name", ErrUntranslatable)
		}
		return []string{fmt.Sprintf("%s:%s=%s", transport.TokenConfig, name, a.Str("value", ""))}, nil

	case scenario.KindMacro:
		commands := a.Strings("commands")
		if commands == nil {
			commands = a.Strings("steps")
		}
		if commands == nil {
			return nil, fmt.Errorf("%w: macro without a command list", ErrUntranslatable)
		}
		return commands, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUntranslatable, a.Kind)
}

func keyPayload(key, state string) string {
	return fmt.Sprintf("%s:%s:%s", transport.TokenKey, key, state)
}

func mousePayload(mode string, x, y, duration float64) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s",
		transport.TokenMouse, mode, formatFloat(x), formatFloat(y), formatFloat(duration))
}

// formatFloat renders a float with an explicit fractional part so payloads
// stay stable across integral and non-integral values (1 -> "1.0").
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func firstParam(a scenario.Action, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := a.Params[k]; ok && v != nil {
			return fmt.Sprintf("%v", v), true
		}
	}
	return "", false
}
