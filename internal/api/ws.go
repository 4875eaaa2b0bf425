package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/errors"
	"github.com/victornm/clueboard/internal/realtime"
	"github.com/victornm/clueboard/internal/room"
	"github.com/victornm/clueboard/internal/telemetry"
)

// Connect upgrades to a websocket that streams the room's broadcasts for the requested role and accepts actions.
// Hosts authenticate with token, players with playerId. A player is connected while at least one of their sockets
// on this instance is open.
func (a *API) Connect(c *gin.Context) {
	role, err := parseRole(c.Query("role"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	code := domain.NormalizeCode(c.Param("code"))
	token, playerID := c.Query("token"), c.Query("playerId")

	r, err := a.rs.State(c.Request.Context(), room.StateRequest{
		RoomCode:  code,
		Role:      role,
		HostToken: token,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	if role == domain.RolePlayer {
		if playerID == "" {
			abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("playerId is required")))
			return
		}
		if _, ok := r.FindPlayer(playerID); !ok {
			abortWithError(c, errors.New(errors.CodeNotFound, errors.WithMessagef("player not found: %s", playerID)))
			return
		}
	}

	ws, err := realtime.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already replied.
		slog.WarnContext(c.Request.Context(), "api: websocket upgrade failed", "room", code, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stop := context.AfterFunc(a.ctx, cancel)
	defer stop()

	channel := realtime.Channel(a.prefix, code, role)
	sub := a.hub.Subscribe(channel)
	defer a.hub.Unsubscribe(channel, sub)
	defer telemetry.TrackConnection(string(role))()

	// Snapshots carry a version, so one that races with a broadcast is harmless.
	if b, err := encodeNotification(EventRoomState, r); err == nil {
		select {
		case sub <- b:
		default:
		}
	}

	if role == domain.RolePlayer {
		leave := a.attach(ctx, room.PresenceRequest{RoomCode: code, PlayerID: playerID})
		defer leave()
	}

	realtime.Serve(ctx, ws, sub, a.socketHandler(code, role, token, playerID))
}

// presence counts the open sockets of one player.
type presence struct {
	mu      sync.Mutex
	sockets int
	refs    int
}

// attach registers a player socket. The first socket marks the player connected, and the returned func marks them
// disconnected once their last socket is gone.
func (a *API) attach(ctx context.Context, req room.PresenceRequest) func() {
	key := req.RoomCode + "/" + req.PlayerID

	a.presenceMu.Lock()
	p, ok := a.presence[key]
	if !ok {
		p = new(presence)
		a.presence[key] = p
	}
	p.refs++
	a.presenceMu.Unlock()

	p.mu.Lock()
	p.sockets++
	if p.sockets == 1 {
		if err := a.rs.MarkConnected(ctx, req); err != nil {
			slog.WarnContext(ctx, "api: mark player connected failed", "room", req.RoomCode, "player", req.PlayerID, "error", err)
		}
	}
	p.mu.Unlock()

	return func() {
		ctx := context.WithoutCancel(ctx)

		p.mu.Lock()
		p.sockets--
		if p.sockets == 0 {
			if err := a.rs.MarkDisconnected(ctx, req); err != nil {
				slog.WarnContext(ctx, "api: mark player disconnected failed", "room", req.RoomCode, "player", req.PlayerID, "error", err)
			}
		}
		p.mu.Unlock()

		a.presenceMu.Lock()
		p.refs--
		if p.refs == 0 {
			delete(a.presence, key)
		}
		a.presenceMu.Unlock()
	}
}

// socketHandler dispatches actions sent over the socket. A socket only acts as the identity it connected with.
func (a *API) socketHandler(code string, role domain.Role, token, playerID string) realtime.Handler {
	return func(ctx context.Context, msg []byte) []byte {
		var req ActionRequest
		err := json.Unmarshal(msg, &req)
		if err != nil || req.Action == "" {
			err = errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid action message"))
		} else {
			req.HostToken, req.PlayerID = "", playerID
			if role == domain.RoleHost {
				req.HostToken, req.PlayerID = token, ""
			}

			err = a.dispatch(ctx, code, req)
		}

		res := ActionResult{Action: req.Action, OK: err == nil}
		if err != nil {
			e := errors.Convert(err)
			res.Code, res.Message = int(e.Code), e.Message
		}

		b, err := encodeNotification(EventActionResult, res)
		if err != nil {
			slog.ErrorContext(ctx, "api: encode action result failed", "error", err)
			return nil
		}

		return b
	}
}
