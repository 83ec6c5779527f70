package server

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/google/uuid"

	"github.com/yegors/flightlog/internal/comms"
	"github.com/yegors/flightlog/internal/flight"
	"github.com/yegors/flightlog/internal/storage/sqlite"
	"github.com/yegors/flightlog/pkg/logger"
)

// session is the state of one client connection
type session struct {
	server *Server
	conn   *comms.Conn
	logger *logger.Logger

	user     string
	pending  []flight.Flight
	received int
	saved    int
}

func (s *Server) handle(netConn net.Conn) {
	id := uuid.NewString()
	sess := &session{
		server: s,
		conn:   comms.NewConn(netConn, s.config.IdleTimeout),
		logger: s.logger.WithSession(id),
	}
	sess.logger.Info("Session started", logger.String("remote", netConn.RemoteAddr().String()))

	ctx := context.Background()
	for {
		msg, err := sess.conn.Receive(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				sess.logger.Debug("Session read ended", logger.Error(err))
			}
			break
		}
		if msg.Keyword == comms.KeywordEndOfSession {
			break
		}

		reply := sess.dispatch(ctx, msg)
		if err := sess.conn.Send(ctx, reply); err != nil {
			sess.logger.Warn("Failed to send reply", logger.String("keyword", reply.Keyword), logger.Error(err))
			break
		}
	}

	if len(sess.pending) > 0 {
		sess.logger.Warn("Discarding unsaved flights", logger.Int("count", len(sess.pending)))
	}
	sess.logger.Info("Session ended",
		logger.String("user", sess.user),
		logger.Int("received", sess.received),
		logger.Int("saved", sess.saved))
}

func (sess *session) dispatch(ctx context.Context, msg comms.Message) comms.Message {
	switch msg.Keyword {
	case comms.KeywordHello:
		return sess.hello(msg)
	case comms.KeywordCreateAccount:
		return sess.createAccount(ctx, msg)
	case comms.KeywordLogin:
		return sess.login(ctx, msg)
	}

	if sess.user == "" {
		return comms.NewMessage(comms.KeywordNotLoggedIn, nil)
	}

	switch msg.Keyword {
	case comms.KeywordRequestTimestamp:
		return comms.NewMessage(comms.KeywordTimestamp, comms.EncodeInt64(sess.server.now().Unix()))
	case comms.KeywordRequestHighestID:
		id, err := sess.server.store.HighestFlightID(ctx, sess.user)
		if err != nil {
			return sess.internalError(msg, err)
		}
		return comms.NewMessage(comms.KeywordID, comms.EncodeInt64(id))
	case comms.KeywordRequestFlightsSince:
		return sess.flightsSince(ctx, msg)
	case comms.KeywordSendingFlights:
		return sess.receiveFlights(msg)
	case comms.KeywordSaveChanges:
		return sess.saveChanges(ctx, msg)
	default:
		return comms.ErrorMessage("unknown request %q", msg.Keyword)
	}
}

func (sess *session) hello(msg comms.Message) comms.Message {
	version, err := comms.DecodeHello(msg.Data)
	if err != nil {
		return comms.ErrorMessage("%v", err)
	}
	if version != comms.ProtocolVersion {
		return comms.ErrorMessage("unsupported protocol version %d", version)
	}
	return comms.NewMessage(comms.KeywordOK, nil)
}

func (sess *session) createAccount(ctx context.Context, msg comms.Message) comms.Message {
	if !sess.server.config.AllowRegistration {
		return comms.ErrorMessage("registration is closed")
	}
	username, key, err := comms.DecodeCredentials(msg.Data)
	if err != nil {
		return comms.ErrorMessage("%v", err)
	}

	err = sess.server.createUser(ctx, username, key)
	if errors.Is(err, sqlite.ErrUserExists) {
		return comms.NewMessage(comms.KeywordUserExists, nil)
	}
	if err != nil {
		return sess.internalError(msg, err)
	}

	sess.user = sqlite.NormalizeUsername(username)
	sess.logger.Info("Account created", logger.String("user", sess.user))
	return comms.NewMessage(comms.KeywordOK, nil)
}

func (sess *session) login(ctx context.Context, msg comms.Message) comms.Message {
	username, key, err := comms.DecodeCredentials(msg.Data)
	if err != nil {
		return comms.ErrorMessage("%v", err)
	}

	ok, err := sess.server.checkLogin(ctx, username, key)
	if errors.Is(err, sqlite.ErrNotFound) || (err == nil && !ok) {
		sess.logger.Warn("Bad login", logger.String("user", username))
		return comms.NewMessage(comms.KeywordBadLogin, nil)
	}
	if err != nil {
		return sess.internalError(msg, err)
	}

	sess.user = sqlite.NormalizeUsername(username)
	sess.logger.Info("Logged in", logger.String("user", sess.user))
	return comms.NewMessage(comms.KeywordOK, nil)
}

func (sess *session) flightsSince(ctx context.Context, msg comms.Message) comms.Message {
	since, err := comms.DecodeInt64(msg.Data)
	if err != nil {
		return comms.ErrorMessage("%v", err)
	}
	flights, err := sess.server.store.FlightsSince(ctx, sess.user, since)
	if err != nil {
		return sess.internalError(msg, err)
	}
	sess.logger.Debug("Sending flights", logger.Int64("since", since), logger.Int("count", len(flights)))
	return comms.NewMessage(comms.KeywordFlights, flight.MarshalList(flights))
}

func (sess *session) receiveFlights(msg comms.Message) comms.Message {
	flights, err := flight.UnmarshalList(msg.Data)
	if err != nil {
		return comms.ErrorMessage("%v", err)
	}
	for _, f := range flights {
		if f.ID <= 0 {
			return comms.ErrorMessage("flight without ID: %s", f)
		}
	}
	sess.pending = append(sess.pending, flights...)
	sess.received += len(flights)
	return comms.NewMessage(comms.KeywordOK, nil)
}

// saveChanges commits the pending flights stamped with the server clock and
// replies with that time
func (sess *session) saveChanges(ctx context.Context, msg comms.Message) comms.Message {
	now := sess.server.now().Unix()
	for i := range sess.pending {
		sess.pending[i].Timestamp = now
	}
	if err := sess.server.store.SaveFlights(ctx, sess.user, sess.pending); err != nil {
		return sess.internalError(msg, err)
	}
	sess.saved += len(sess.pending)
	sess.pending = nil
	return comms.NewMessage(comms.KeywordTimestamp, comms.EncodeInt64(now))
}

// internalError logs the cause and gives the client a generic reply
func (sess *session) internalError(msg comms.Message, err error) comms.Message {
	sess.logger.Error("Request failed", logger.String("keyword", msg.Keyword), logger.Error(err))
	return comms.ErrorMessage("internal error handling %s", msg.Keyword)
}
