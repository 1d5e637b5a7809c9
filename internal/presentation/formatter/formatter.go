// Package formatter renders run events as terminal text.
package formatter

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"storybook/internal/events"
)

// Indent prefixes nested lines (outputs, sub-calls).
const Indent = "  "

// FormatEvent renders one event. It reports false for events that are not
// shown in the log (progress updates drive the current-step line instead).
func FormatEvent(ev events.Event) (string, bool) {
	switch ev.Type {
	case events.TypeRunStart:
		return "Run started at " + ev.Start, true
	case events.TypeCallStart:
		desc := ""
		if ev.Tool != nil {
			desc = ev.Tool.Description
		}
		return "Tool starting: " + desc, true
	case events.TypeCallChat:
		return "Chat in progress with your input >> " + ev.InputText(), true
	case events.TypeCallProgress:
		return "", false
	case events.TypeCallFinish:
		var b strings.Builder
		b.WriteString("Call finished: ")
		for _, out := range ev.Output {
			b.WriteString("\n" + Indent + out.Content)
		}
		return b.String(), true
	case events.TypeRunFinish:
		return "Run finished at " + ev.End, true
	case events.TypeCallSubCalls:
		return formatOutputs("Sub-calls in progress:", ev.Output), true
	case events.TypeCallContinue:
		return formatOutputs("Call continues:", ev.Output), true
	case events.TypeCallConfirm:
		return formatOutputs("Call confirm:", ev.Output), true
	case events.TypeStreamError:
		return "Stream error: " + ev.Error, true
	default:
		return prettyJSON(ev), true
	}
}

// FormatLog renders every shown event of log, one block per event.
func FormatLog(log []events.Event) []string {
	lines := make([]string, 0, len(log))
	for _, ev := range log {
		if text, ok := FormatEvent(ev); ok {
			lines = append(lines, text)
		}
	}
	return lines
}

func formatOutputs(title string, outputs []events.Output) string {
	var b strings.Builder
	b.WriteString(title)
	for _, out := range outputs {
		if out.Content != "" {
			b.WriteString("\n" + Indent + out.Content)
		}
		for _, key := range sortedKeys(out.SubCalls) {
			sub := out.SubCalls[key]
			b.WriteString("\n" + Indent + "Subcall " + key)
			b.WriteString("\n" + Indent + Indent + "Tool ID: " + sub.ToolID)
			b.WriteString("\n" + Indent + Indent + "Input: " + sub.InputText())
		}
	}
	return b.String()
}

func sortedKeys(m map[string]events.SubCall) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func prettyJSON(ev events.Event) string {
	data, err := json.Marshal(ev)
	if err != nil {
		return ev.String()
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return string(data)
	}
	return out.String()
}
