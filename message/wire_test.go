package message

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWireRoundTrip(t *testing.T) {
	want := Message{Topic: "generate", Data: []byte{1, 2, 3, 4}}

	var buf bytes.Buffer
	n, err := want.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)

	var got Message
	_, err = got.ReadFrom(&buf)
	require.NoError(t, err)
	require.Equal(t, want.Topic, got.Topic)
	require.Equal(t, want.Data, got.Data)
}

func TestWireEmptyData(t *testing.T) {
	want := Message{Topic: "t", Data: nil}

	var buf bytes.Buffer
	_, err := want.WriteTo(&buf)
	require.NoError(t, err)

	var got Message
	_, err = got.ReadFrom(&buf)
	require.NoError(t, err)
	require.Equal(t, "t", got.Topic)
}

func TestWireMultipleFrames(t *testing.T) {
	msgs := []Message{
		{Topic: "a", Data: []byte("one")},
		{Topic: "b", Data: []byte("two")},
		{Topic: "a", Data: []byte("three")},
	}

	var buf bytes.Buffer
	for _, m := range msgs {
		_, err := m.WriteTo(&buf)
		require.NoError(t, err)
	}

	for _, want := range msgs {
		var got Message
		_, err := got.ReadFrom(&buf)
		require.NoError(t, err)
		require.Equal(t, want.Topic, got.Topic)
		require.Equal(t, want.Data, got.Data)
	}
}

func TestWireReadFromClosedReturnsEOF(t *testing.T) {
	var m Message
	_, err := m.ReadFrom(bytes.NewReader(nil))
	require.ErrorIs(t, err, io.EOF)
}

func TestWireFrameTooSmall(t *testing.T) {
	var hdr [hdrSize]byte // all zero -> size field is 0, below hdrSize
	var m Message
	_, err := m.ReadFrom(bytes.NewReader(hdr[:]))
	require.ErrorIs(t, err, ErrFrameTooSmall)
}

func TestClone(t *testing.T) {
	orig := Message{Topic: "t", Data: []byte{1, 2, 3}}
	clone := orig.Clone()
	clone.Data[0] = 99
	require.Equal(t, byte(1), orig.Data[0], "clone must not alias original data")
	require.Equal(t, orig.Topic, clone.Topic)
}
