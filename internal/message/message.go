// Package message defines the line-delimited JSON wire format spoken over
// the daemon's named pipe, client to daemon only.
package message

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Version is the current protocol version clients must send. Decode
// accepts older versions tolerantly; it is never validated against on
// decode per spec.md's open question, beyond a warning the caller may log.
const Version = 2

// Type discriminates the two message kinds carried over the pipe.
type Type string

const (
	TypeBind    Type = "BindMessage"
	TypeInhibit Type = "InhibitMessage"
)

// ErrDecode wraps any failure to parse a line as a known message.
var ErrDecode = errors.New("message: decode error")

// ErrUnknownType is returned when the type field doesn't match a known kind.
var ErrUnknownType = errors.New("message: unknown type")

// BindMessage announces a client pid/uid to the daemon.
type BindMessage struct {
	Type    Type `json:"type"`
	Version int  `json:"version"`
	Pid     int  `json:"pid"`
	Uid     int  `json:"uid"`
}

// NewBindMessage builds a BindMessage with the current Version.
func NewBindMessage(pid, uid int) BindMessage {
	return BindMessage{Type: TypeBind, Version: Version, Pid: pid, Uid: uid}
}

// InhibitMessage asks the daemon to hold the sleep lock until Expiry.
type InhibitMessage struct {
	Type    Type    `json:"type"`
	Version int     `json:"version"`
	Pid     int     `json:"pid"`
	Uid     int     `json:"uid"`
	Expiry  float64 `json:"expiry_timestamp"`
}

// NewInhibitMessage builds an InhibitMessage with the current Version.
func NewInhibitMessage(pid, uid int, until time.Time) InhibitMessage {
	return InhibitMessage{
		Type:    TypeInhibit,
		Version: Version,
		Pid:     pid,
		Uid:     uid,
		Expiry:  float64(until.UnixNano()) / 1e9,
	}
}

// ExpiryTime converts the fractional epoch-seconds Expiry field to a
// time.Time.
func (m InhibitMessage) ExpiryTime() time.Time {
	sec := int64(m.Expiry)
	nsec := int64((m.Expiry - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// envelope is used only to sniff the type field before decoding the
// concrete message.
type envelope struct {
	Type Type `json:"type"`
}

// Decode parses one line (without its trailing newline) into a
// BindMessage or InhibitMessage. The returned value is one of those two
// types; callers type-switch on it.
func Decode(line []byte) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	switch env.Type {
	case TypeBind:
		var m BindMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return m, nil
	case TypeInhibit:
		var m InhibitMessage
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// Encode serializes a BindMessage or InhibitMessage followed by a newline.
func Encode(m interface{}) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// WriteTo encodes m and writes it, newline-terminated, to w. It returns
// the number of bytes written.
func WriteTo(w io.Writer, m interface{}) (int, error) {
	b, err := Encode(m)
	if err != nil {
		return 0, err
	}
	return w.Write(b)
}

// MaxAtomicLine is the largest line length the kernel guarantees to write
// atomically to a pipe (Linux default pipe buffer size). Lines from this
// size up to ReadLines' 64 KiB limit are still decoded, but callers should
// log a warning: the sender's write may have been split across reads.
const MaxAtomicLine = 4096

// ReadLines starts a goroutine that scans newline-delimited lines from r
// and sends each one (sans trailing newline) on the returned channel. The
// channel is closed when r returns an error (including io.EOF) or the
// scanner fails, e.g. on a line longer than 64 KiB. A non-EOF error is
// sent to errCh before both channels close; at EOF nothing is sent.
func ReadLines(r io.Reader) (lines <-chan []byte, errCh <-chan error) {
	lch := make(chan []byte)
	ech := make(chan error, 1)
	go func() {
		defer close(lch)
		defer close(ech)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, MaxAtomicLine), 64*1024)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			lch <- line
		}
		if err := scanner.Err(); err != nil {
			ech <- err
		}
	}()
	return lch, ech
}
