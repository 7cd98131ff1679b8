package message

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBindMessageRoundTrip(t *testing.T) {
	want := NewBindMessage(1234, 1000)
	b, err := Encode(want)
	assert.NoError(t, err)

	got, err := Decode(bytes.TrimRight(b, "\n"))
	assert.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestInhibitMessageRoundTrip(t *testing.T) {
	until := time.Now().Add(50 * time.Millisecond)
	want := NewInhibitMessage(1234, 1000, until)
	b, err := Encode(want)
	assert.NoError(t, err)

	got, err := Decode(bytes.TrimRight(b, "\n"))
	assert.NoError(t, err)
	gotMsg := got.(InhibitMessage)
	assert.Equal(t, want.Pid, gotMsg.Pid)
	assert.Equal(t, want.Uid, gotMsg.Uid)
	assert.WithinDuration(t, until, gotMsg.ExpiryTime(), time.Microsecond)
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"SomethingElse"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestWriteToAddsNewline(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteTo(&buf, NewBindMessage(1, 1))
	assert.NoError(t, err)
	assert.Equal(t, n, buf.Len())
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
}

func TestReadLinesSplitsOnNewline(t *testing.T) {
	r := bytes.NewBufferString("{\"type\":\"BindMessage\",\"version\":2,\"pid\":1,\"uid\":1}\n")
	lines, errs := ReadLines(r)

	line, ok := <-lines
	assert.True(t, ok)
	msg, err := Decode(line)
	assert.NoError(t, err)
	assert.Equal(t, TypeBind, msg.(BindMessage).Type)

	_, ok = <-lines
	assert.False(t, ok)
	for range errs {
	}
}
