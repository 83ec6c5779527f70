package comms

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yegors/flightlog/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPacket_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, []byte("hello")))

	raw := buf.Bytes()
	assert.Equal(t, Magic[:], raw[:8])
	assert.Equal(t, byte(0), raw[8])
	assert.Equal(t, uint32(5), binary.BigEndian.Uint32(raw[9:13]))

	payload, err := ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), payload)
}

func TestPacket_Compressed(t *testing.T) {
	payload := []byte(strings.Repeat("EHAM-EKBI KL1234 ", 200))

	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, payload))
	raw := buf.Bytes()
	assert.Equal(t, byte(flagCompressed), raw[8])
	assert.Less(t, len(raw), len(payload))

	got, err := ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestPacket_IncompressibleStaysPlain(t *testing.T) {
	payload := make([]byte, 2048)
	seed := uint32(2463534242)
	for i := range payload {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		payload[i] = byte(seed)
	}

	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, payload))
	assert.Equal(t, byte(0), buf.Bytes()[8])
}

func TestPacket_Errors(t *testing.T) {
	_, err := ReadPacket(bytes.NewReader([]byte("NOTMAGIC\x00\x00\x00\x00\x01x")))
	assert.ErrorIs(t, err, ErrBadMagic)

	header := append(Magic[:], 0)
	header = binary.BigEndian.AppendUint32(header, MaxPayload+1)
	_, err = ReadPacket(bytes.NewReader(header))
	assert.ErrorIs(t, err, ErrPacketTooLarge)

	header = append(Magic[:], 0)
	header = binary.BigEndian.AppendUint32(header, 10)
	_, err = ReadPacket(bytes.NewReader(append(header, "short"...)))
	assert.Error(t, err)

	assert.ErrorIs(t, WritePacket(&bytes.Buffer{}, make([]byte, MaxPayload+1)), ErrPacketTooLarge)
}

func TestMessage(t *testing.T) {
	msg := NewMessage(KeywordTimestamp, EncodeInt64(1700000000))
	decoded, err := DecodeMessage(msg.Encode())
	require.NoError(t, err)
	assert.Equal(t, KeywordTimestamp, decoded.Keyword)

	ts, err := DecodeInt64(decoded.Data)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), ts)

	_, err = DecodeMessage([]byte{0})
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = DecodeMessage([]byte{0, 9, 'O', 'K'})
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = DecodeInt64([]byte{1, 2})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCredentials(t *testing.T) {
	key := LoginKey("pilot", "secret")
	assert.NotEqual(t, key, LoginKey("pilot", "Secret"))

	user, got, err := DecodeCredentials(EncodeCredentials("pilot", key))
	require.NoError(t, err)
	assert.Equal(t, "pilot", user)
	assert.Equal(t, key, got)

	_, _, err = DecodeCredentials(EncodeCredentials("pilot", key)[:10])
	assert.ErrorIs(t, err, ErrMalformed)

	version, err := DecodeHello(EncodeHello(ProtocolVersion))
	require.NoError(t, err)
	assert.Equal(t, uint16(ProtocolVersion), version)
}

func TestExpect(t *testing.T) {
	assert.NoError(t, Expect(KeywordLogin, NewMessage(KeywordOK, nil), KeywordOK))

	err := Expect(KeywordLogin, ErrorMessage("database %s", "locked"), KeywordOK)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "database locked", remote.Detail)
	assert.Contains(t, err.Error(), "LOGIN")
	assert.NotErrorIs(t, err, ErrNotLoggedIn)

	err = Expect(KeywordRequestHighestID, NewMessage(KeywordNotLoggedIn, nil), KeywordID)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, KeywordNotLoggedIn, remote.Reply)
}

// echoServer answers every request with OK carrying the request keyword
func echoServer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				c := NewConn(conn, time.Second)
				defer c.Close()
				for {
					msg, err := c.Receive(context.Background())
					if err != nil || msg.Keyword == KeywordEndOfSession {
						return
					}
					if err := c.Send(context.Background(), NewMessage(KeywordOK, []byte(msg.Keyword))); err != nil {
						return
					}
				}
			}()
		}
	}()
	return ln
}

func TestClient_Call(t *testing.T) {
	ln := echoServer(t)
	defer ln.Close()

	ctx := context.Background()
	client, err := Dial(ctx, ClientConfig{Address: ln.Addr().String()}, logger.NewNop())
	require.NoError(t, err)

	reply, err := client.Call(ctx, KeywordSaveChanges, nil, KeywordOK)
	require.NoError(t, err)
	assert.Equal(t, KeywordSaveChanges, string(reply.Data))

	_, err = client.Call(ctx, KeywordSaveChanges, nil, KeywordFlights)
	var remote *RemoteError
	assert.ErrorAs(t, err, &remote)

	require.NoError(t, client.Close())
}

func TestClient_CancelledRequest(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// a server that accepts but never answers
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := Dial(context.Background(), ClientConfig{Address: ln.Addr().String()}, logger.NewNop())
	require.NoError(t, err)
	serverSide := <-accepted
	defer serverSide.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Call(ctx, KeywordRequestTimestamp, nil, KeywordTimestamp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	client.Conn.Close()
}

func TestDial_GivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), ClientConfig{
		Address:    addr,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, logger.NewNop())
	assert.ErrorContains(t, err, "after 2 attempts")
}
