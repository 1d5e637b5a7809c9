package stream

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"storybook/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderOneByteAtATime(t *testing.T) {
	want := sampleEvents()
	r := NewReader(iotest.OneByteReader(bytes.NewReader(encodeAll(t, want))))

	var got []events.Event
	for ev, err := range r.All() {
		require.NoError(t, err)
		got = append(got, ev)
	}
	assert.Equal(t, types(want), types(got))

	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderReportsTruncation(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte(`event: {"type":"callProgress"`)))

	_, err := r.Next()
	var truncErr *TruncatedError
	assert.True(t, errors.As(err, &truncErr))
}

func TestReaderSurfacesTransportErrorAfterPendingEvents(t *testing.T) {
	boom := errors.New("connection reset")
	data := encodeAll(t, sampleEvents()[:2])
	r := NewReader(iotest.DataErrReader(io.MultiReader(bytes.NewReader(data), iotest.ErrReader(boom))))

	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, events.TypeRunStart, first.Type)
	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, events.TypeCallStart, second.Type)

	_, err = r.Next()
	assert.ErrorIs(t, err, boom)
	_, err = r.Next()
	assert.ErrorIs(t, err, boom)
}

func TestReaderAllStopsEarly(t *testing.T) {
	r := NewReader(bytes.NewReader(encodeAll(t, sampleEvents())))
	count := 0
	for range r.All() {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)

	next, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, events.TypeCallProgress, next.Type)
}
