package formatter

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storybook/internal/events"
)

func TestFormatEvent(t *testing.T) {
	subCalls := []events.Output{{
		Content: "planning pages",
		SubCalls: map[string]events.SubCall{
			"b2": {ToolID: "illustrate", Input: json.RawMessage(`"page two"`)},
			"a1": {ToolID: "write-page", Input: json.RawMessage(`{"page":1}`)},
		},
	}}

	cases := []struct {
		name  string
		event events.Event
		wants []string
	}{
		{
			name:  "run start",
			event: events.Event{Type: events.TypeRunStart, Start: "2024-05-01T10:00:00Z"},
			wants: []string{"Run started at 2024-05-01T10:00:00Z"},
		},
		{
			name:  "call start",
			event: events.Event{Type: events.TypeCallStart, Tool: &events.Tool{Description: "Write the outline"}},
			wants: []string{"Tool starting: Write the outline"},
		},
		{
			name:  "call chat",
			event: events.Event{Type: events.TypeCallChat, Input: json.RawMessage(`"a dragon who bakes"`)},
			wants: []string{"Chat in progress with your input >> a dragon who bakes"},
		},
		{
			name:  "call finish",
			event: events.Event{Type: events.TypeCallFinish, Output: []events.Output{{Content: "page 1 done"}, {Content: "page 2 done"}}},
			wants: []string{"Call finished: ", "  page 1 done", "  page 2 done"},
		},
		{
			name:  "sub calls",
			event: events.Event{Type: events.TypeCallSubCalls, Output: subCalls},
			wants: []string{"Sub-calls in progress:", "planning pages", "Subcall a1", "Tool ID: write-page", `Input: {"page":1}`, "Subcall b2", "Input: page two"},
		},
		{
			name:  "continue",
			event: events.Event{Type: events.TypeCallContinue, Output: subCalls},
			wants: []string{"Call continues:", "Subcall a1"},
		},
		{
			name:  "confirm",
			event: events.Event{Type: events.TypeCallConfirm, Output: subCalls},
			wants: []string{"Call confirm:", "Tool ID: illustrate"},
		},
		{
			name:  "stream error",
			event: events.NewStreamError(assert.AnError),
			wants: []string{"Stream error: " + assert.AnError.Error()},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, shown := FormatEvent(tc.event)
			require.True(t, shown)
			for _, want := range tc.wants {
				assert.Contains(t, got, want)
			}
		})
	}
}

func TestFormatEventSubCallsAreOrdered(t *testing.T) {
	got, _ := FormatEvent(events.Event{Type: events.TypeCallSubCalls, Output: []events.Output{{
		SubCalls: map[string]events.SubCall{"z": {}, "m": {}, "a": {}},
	}}})
	assert.Less(t, strings.Index(got, "Subcall a"), strings.Index(got, "Subcall m"))
	assert.Less(t, strings.Index(got, "Subcall m"), strings.Index(got, "Subcall z"))
}

func TestFormatEventSuppressesProgress(t *testing.T) {
	got, shown := FormatEvent(events.Event{Type: events.TypeCallProgress, Output: []events.Output{{Content: "typing"}}})
	assert.False(t, shown)
	assert.Empty(t, got)
}

func TestFormatEventPrettyPrintsUnknownTypes(t *testing.T) {
	var ev events.Event
	require.NoError(t, json.Unmarshal([]byte(`{"type":"callHeartbeat","seq":7}`), &ev))

	got, shown := FormatEvent(ev)
	require.True(t, shown)
	assert.Equal(t, "{\n  \"type\": \"callHeartbeat\",\n  \"seq\": 7\n}", got)
}

func TestFormatLogSkipsHiddenEvents(t *testing.T) {
	lines := FormatLog([]events.Event{
		{Type: events.TypeCallStart, Tool: &events.Tool{Description: "Outline"}},
		{Type: events.TypeCallProgress},
		{Type: events.TypeCallFinish},
	})
	assert.Equal(t, []string{"Tool starting: Outline", "Call finished: "}, lines)
}
