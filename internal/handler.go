package internal

import (
	"context"
	"errors"

	"github.com/zefir/statki-go-backend/internal/auth"
	ships "github.com/zefir/statki-go-backend/internal/shipsengine"
)

var errUnknownMessage = errors.New("unknown message type")

func (s *Server) handleMessage(ctx context.Context, cc *ClientConn, msgType MsgType, payload []byte) {
	if !cc.limiter.Allow() {
		s.reject(cc, msgType, ErrRateLimited)
		return
	}

	var err error
	switch msgType {
	case ClientCmds.Pong:
		// connection alive
	case ClientCmds.Auth, ClientCmds.SignUp, ClientCmds.TokenAuth:
		err = s.handleAuth(ctx, cc, msgType, payload)
	case ClientCmds.SearchingForGame:
		err = s.handleSearch(ctx, cc, payload)
	case ClientCmds.AcceptedGame:
		err = s.handleMatchResponse(cc, payload, true)
	case ClientCmds.DeclinedGame:
		err = s.handleMatchResponse(cc, payload, false)
	case ClientCmds.PlaceShip:
		err = s.handlePlaceShip(cc, payload)
	case ClientCmds.Attack:
		err = s.handleAttack(ctx, cc, payload)
	case ClientCmds.RequestState:
		err = s.handleRequestState(cc)
	case ClientCmds.Logout:
		err = s.handleLogout(ctx, cc)
	case ClientCmds.CloseSocket:
		cc.log.Debug().Msg("client wants to close socket")
		cc.Shutdown()
	default:
		err = errUnknownMessage
	}
	if err != nil {
		s.reject(cc, msgType, err)
	}
}

func (s *Server) reject(cc *ClientConn, msgType MsgType, err error) {
	code := rejectCode(err)
	if errors.Is(err, errUnknownMessage) {
		code = CodeUnknownMessage
	}
	ev := cc.log.Debug()
	if code == CodeInternal {
		ev = cc.log.Error()
	}
	ev.Err(err).Uint16("msg", uint16(msgType)).Uint8("code", uint8(code)).Msg("request rejected")
	cc.Send(ServerCmds.Rejected, rejectedMsg(msgType, code))
}

// authReason is the text sent with AuthFailed. Store faults are not shown
// to the client.
func authReason(err error) string {
	for _, known := range []error{
		auth.ErrBadCredentials, auth.ErrBadToken, auth.ErrUserExists,
		auth.ErrInvalidUsername, auth.ErrWeakPassword,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}

func (s *Server) handleAuth(ctx context.Context, cc *ClientConn, msgType MsgType, payload []byte) error {
	if cc.user != "" {
		return ErrAlreadyAuthorized
	}

	var user, token string
	switch msgType {
	case ClientCmds.TokenAuth:
		tok, err := decodeToken(payload)
		if err != nil {
			return err
		}
		token = tok
		user, err = s.accounts.VerifyToken(ctx, tok)
		if err != nil {
			return s.authFailed(cc, err)
		}
	default:
		username, password, err := decodeCredentials(payload)
		if err != nil {
			return err
		}
		user = username
		if msgType == ClientCmds.SignUp {
			token, err = s.accounts.SignUp(ctx, username, password)
		} else {
			token, err = s.accounts.Verify(ctx, username, password)
		}
		if err != nil {
			return s.authFailed(cc, err)
		}
	}

	cc.user = user
	cc.client = s.hub.Attach(user, cc)
	cc.log.Info().Str("player", user).Msg("authenticated")
	cc.Send(ServerCmds.ClientAuthenticated, pack(AuthenticatedLayout, token, user))

	// a game stored before a restart comes back on the first login
	sess, ok, err := s.keeper.ResumeFor(ctx, user)
	if err != nil {
		cc.log.Error().Err(err).Str("player", user).Msg("resume game")
		return nil
	}
	if ok {
		return s.join(sess, cc.client)
	}
	return nil
}

// join seats client in sess and saves the game when that resumed it.
func (s *Server) join(sess *GameSession, client *Client) error {
	_, resumed, err := sess.Attach(client)
	if err != nil {
		return err
	}
	if resumed {
		s.persist(sess)
	}
	return nil
}

func (s *Server) authFailed(cc *ClientConn, err error) error {
	reason := authReason(err)
	if reason == "internal error" {
		cc.log.Error().Err(err).Msg("authentication")
	}
	cc.Send(ServerCmds.AuthFailed, pack(ReasonLayout, reason))
	return nil
}

func (s *Server) handleLogout(ctx context.Context, cc *ClientConn) error {
	if cc.user == "" {
		return ErrNotAuthenticated
	}
	if err := s.accounts.Logout(ctx, cc.user); err != nil {
		return err
	}
	s.release(cc)
	return nil
}

func (s *Server) handleSearch(ctx context.Context, cc *ClientConn, payload []byte) error {
	if cc.user == "" {
		return ErrNotAuthenticated
	}
	mode, err := decodeMode(payload)
	if err != nil {
		return err
	}
	m, ok := s.matchmakers[mode]
	if !ok {
		return ErrUnknownMode
	}
	sess, playing, err := s.keeper.ResumeFor(ctx, cc.user)
	if err != nil {
		return err
	}
	if playing {
		// a stored game the login could not resume comes back here
		if err := s.join(sess, cc.client); err != nil {
			return err
		}
		return ErrAlreadyPlaying
	}
	client, ok := s.hub.Get(cc.user)
	if !ok {
		return ErrNotAuthenticated
	}
	cc.log.Debug().Str("player", cc.user).Stringer("mode", mode).Msg("searching for game")
	return m.Enqueue(client)
}

func (s *Server) handleMatchResponse(cc *ClientConn, payload []byte, accept bool) error {
	if cc.user == "" {
		return ErrNotAuthenticated
	}
	id, err := decodeMatchID(payload)
	if err != nil {
		return err
	}
	for _, m := range s.matchmakers {
		m.Respond(id, cc.user, accept)
	}
	return nil
}

func (s *Server) session(cc *ClientConn) (*GameSession, error) {
	if cc.user == "" {
		return nil, ErrNotAuthenticated
	}
	sess, ok := s.keeper.Lookup(cc.user)
	if !ok {
		return nil, ErrUnknownSession
	}
	return sess, nil
}

// placementReason is the reason text of a rejected placement.
func placementReason(err error) string {
	var perr *ships.PlacementError
	if errors.As(err, &perr) {
		return perr.Reason.Error()
	}
	return err.Error()
}

func (s *Server) handlePlaceShip(cc *ClientConn, payload []byte) error {
	sess, err := s.session(cc)
	if err != nil {
		return err
	}
	p, err := decodePlacement(payload)
	if err == nil {
		_, err = sess.PlaceShip(cc.user, p)
	}
	if errors.Is(err, ships.ErrInvalidPlacement) {
		left, lerr := sess.Remaining(cc.user)
		if lerr != nil {
			return lerr
		}
		cc.Send(ServerCmds.PlacementResult, placementResultMsg(false, placementReason(err), p.Name, left))
		return nil
	}
	if err != nil {
		return err
	}
	s.persist(sess)
	return nil
}

func (s *Server) handleAttack(ctx context.Context, cc *ClientConn, payload []byte) error {
	sess, err := s.session(cc)
	if err != nil {
		return err
	}
	cell, err := decodeCell(payload)
	if err != nil {
		return err
	}
	res, err := sess.Attack(cc.user, cell)
	if err != nil {
		return err
	}
	if res.Defeated {
		s.finishGame(ctx, sess)
		return nil
	}
	s.persist(sess)
	return nil
}

func (s *Server) handleRequestState(cc *ClientConn) error {
	sess, err := s.session(cc)
	if err != nil {
		return err
	}
	st, err := sess.State(cc.user)
	if err != nil {
		return err
	}
	cc.Send(ServerCmds.GameState, encodeJSON(st))
	return nil
}
