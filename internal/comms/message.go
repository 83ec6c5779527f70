package comms

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ProtocolVersion is sent with HELLO
const ProtocolVersion = 1

// Request keywords
const (
	KeywordHello               = "HELLO"
	KeywordCreateAccount       = "CREATE_ACCOUNT"
	KeywordLogin               = "LOGIN"
	KeywordRequestTimestamp    = "REQUEST_TIMESTAMP"
	KeywordRequestHighestID    = "REQUEST_HIGHEST_ID"
	KeywordRequestFlightsSince = "REQUEST_FLIGHTS_SINCE"
	KeywordSendingFlights      = "SENDING_FLIGHTS"
	KeywordSaveChanges         = "SAVE_CHANGES"
	KeywordEndOfSession        = "END_OF_SESSION"
)

// Reply keywords
const (
	KeywordOK          = "OK"
	KeywordError       = "ERROR"
	KeywordUserExists  = "USER_EXISTS"
	KeywordBadLogin    = "BAD_LOGIN"
	KeywordNotLoggedIn = "NOT_LOGGED_IN"
	KeywordTimestamp   = "TIMESTAMP"
	KeywordID          = "ID"
	KeywordFlights     = "FLIGHTS"
)

// KeySize is the length of a login key
const KeySize = sha256.Size

// ErrMalformed is returned for message payloads that cannot be decoded
var ErrMalformed = errors.New("malformed message")

// Message is a keyword with its keyword-specific data
type Message struct {
	Keyword string
	Data    []byte
}

// NewMessage creates a message
func NewMessage(keyword string, data []byte) Message {
	return Message{Keyword: keyword, Data: data}
}

// Encode returns the packet payload of the message
func (m Message) Encode() []byte {
	out := make([]byte, 2+len(m.Keyword)+len(m.Data))
	binary.BigEndian.PutUint16(out, uint16(len(m.Keyword)))
	copy(out[2:], m.Keyword)
	copy(out[2+len(m.Keyword):], m.Data)
	return out
}

// DecodeMessage parses a packet payload
func DecodeMessage(payload []byte) (Message, error) {
	if len(payload) < 2 {
		return Message{}, fmt.Errorf("%w: payload of %d bytes", ErrMalformed, len(payload))
	}
	n := int(binary.BigEndian.Uint16(payload))
	if n == 0 || len(payload) < 2+n {
		return Message{}, fmt.Errorf("%w: keyword length %d", ErrMalformed, n)
	}
	return Message{Keyword: string(payload[2 : 2+n]), Data: payload[2+n:]}, nil
}

func (m Message) String() string {
	return fmt.Sprintf("%s (%d bytes)", m.Keyword, len(m.Data))
}

// LoginKey derives the key sent with LOGIN and CREATE_ACCOUNT. The password
// itself never leaves the client.
func LoginKey(username, password string) [KeySize]byte {
	return sha256.Sum256([]byte(username + ":" + password))
}

// EncodeHello encodes the HELLO data
func EncodeHello(version uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, version)
}

// DecodeHello decodes the HELLO data
func DecodeHello(data []byte) (uint16, error) {
	if len(data) != 2 {
		return 0, fmt.Errorf("%w: hello of %d bytes", ErrMalformed, len(data))
	}
	return binary.BigEndian.Uint16(data), nil
}

// EncodeCredentials encodes the LOGIN and CREATE_ACCOUNT data
func EncodeCredentials(username string, key [KeySize]byte) []byte {
	out := binary.BigEndian.AppendUint16(nil, uint16(len(username)))
	out = append(out, username...)
	return append(out, key[:]...)
}

// DecodeCredentials decodes the LOGIN and CREATE_ACCOUNT data
func DecodeCredentials(data []byte) (string, [KeySize]byte, error) {
	var key [KeySize]byte
	if len(data) < 2 {
		return "", key, fmt.Errorf("%w: credentials of %d bytes", ErrMalformed, len(data))
	}
	n := int(binary.BigEndian.Uint16(data))
	if n == 0 || len(data) != 2+n+KeySize {
		return "", key, fmt.Errorf("%w: credentials of %d bytes for a %d byte name", ErrMalformed, len(data), n)
	}
	copy(key[:], data[2+n:])
	return string(data[2 : 2+n]), key, nil
}

// EncodeInt64 encodes the data of TIMESTAMP, ID and REQUEST_FLIGHTS_SINCE
func EncodeInt64(v int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(v))
}

// DecodeInt64 decodes what EncodeInt64 wrote
func DecodeInt64(data []byte) (int64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: int64 of %d bytes", ErrMalformed, len(data))
	}
	v := binary.BigEndian.Uint64(data)
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: negative value", ErrMalformed)
	}
	return int64(v), nil
}

// ErrorMessage builds an ERROR reply
func ErrorMessage(format string, args ...any) Message {
	return Message{Keyword: KeywordError, Data: []byte(fmt.Sprintf(format, args...))}
}

// ErrNotLoggedIn is wrapped by the error for a NOT_LOGGED_IN reply
var ErrNotLoggedIn = errors.New("not logged in")

// RemoteError is an unexpected reply from the other side
type RemoteError struct {
	Request string
	Reply   string
	Detail  string
}

// Unwrap gives the sentinel for replies that have one
func (e *RemoteError) Unwrap() error {
	if e.Reply == KeywordNotLoggedIn {
		return ErrNotLoggedIn
	}
	return nil
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: server replied %s: %s", e.Request, e.Reply, e.Detail)
	}
	return fmt.Sprintf("%s: server replied %s", e.Request, e.Reply)
}

// Expect checks that reply carries the wanted keyword
func Expect(request string, reply Message, want string) error {
	if reply.Keyword == want {
		return nil
	}
	err := &RemoteError{Request: request, Reply: reply.Keyword}
	if reply.Keyword == KeywordError {
		err.Detail = string(reply.Data)
	}
	return err
}
