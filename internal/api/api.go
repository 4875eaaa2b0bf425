package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/errors"
	"github.com/victornm/clueboard/internal/event"
	"github.com/victornm/clueboard/internal/realtime"
	"github.com/victornm/clueboard/internal/room"
	"github.com/victornm/clueboard/internal/standings"
)

type Config struct {
	Router    gin.IRouter
	EventBus  *event.Bus
	Room      *room.Service
	Standings *standings.Service
	Hub       *realtime.Hub
	Publisher realtime.Publisher
	// PubsubPrefix namespaces the broadcast channels.
	PubsubPrefix string
}

type API struct {
	rs *room.Service
	ss *standings.Service

	// ctx is cancelled by Close to end open websockets, which outlive HTTP shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	hub       *realtime.Hub
	publisher realtime.Publisher
	prefix    string

	presenceMu sync.Mutex
	presence   map[string]*presence
}

func New(c Config) *API {
	a := &API{
		rs:        c.Room,
		ss:        c.Standings,
		hub:       c.Hub,
		publisher: c.Publisher,
		prefix:    c.PubsubPrefix,
		presence:  make(map[string]*presence),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	// HTTP APIs
	rooms := c.Router.Group("/rooms")
	rooms.POST("", a.CreateRoom)
	rooms.POST("/:code/join", a.JoinRoom)
	rooms.POST("/:code/actions", a.Action)
	rooms.GET("/:code/state", a.State)
	rooms.GET("/:code/standings", a.Standings)
	rooms.GET("/:code/ws", a.Connect)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameRoomUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishRoomUpdated(ctx, e.(domain.EventRoomUpdated))
	})
	c.EventBus.Subscribe(domain.EventNameCountdownTicked, func(ctx context.Context, e event.Event) error {
		return a.PublishCountdownTicked(ctx, e.(domain.EventCountdownTicked))
	})

	return a
}

// Close ends every open websocket.
func (a *API) Close() {
	a.cancel()
}

type (
	CreateRoomRequest struct {
		Title           string              `json:"title" binding:"max=120"`
		PlayerLimit     int                 `json:"playerLimit"`
		QuestionSet     *domain.QuestionSet `json:"questionSet"`
		TwistDefault    *bool               `json:"twistDefault"`
		AutoOpenAnswers bool                `json:"autoOpenAnswers"`
		AutoFinalize    bool                `json:"autoFinalize"`
	}

	CreateRoomResponse struct {
		RoomCode  string `json:"roomCode"`
		HostToken string `json:"hostToken"`
	}

	JoinRoomRequest struct {
		Name string `json:"name" binding:"required,max=40"`
	}

	JoinRoomResponse struct {
		PlayerID string `json:"playerId"`
		Name     string `json:"name"`
	}
)

func (a *API) CreateRoom(c *gin.Context) {
	var req CreateRoomRequest
	// Every field is optional, so an empty body is fine.
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		abortWithError(c, invalidBody(err))
		return
	}

	twist := true
	if req.TwistDefault != nil {
		twist = *req.TwistDefault
	}

	r, err := a.rs.CreateRoom(c.Request.Context(), room.CreateRoomRequest{
		Title:           req.Title,
		PlayerLimit:     req.PlayerLimit,
		QuestionSet:     req.QuestionSet,
		TwistDefault:    twist,
		AutoOpenAnswers: req.AutoOpenAnswers,
		AutoFinalize:    req.AutoFinalize,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateRoomResponse{
		RoomCode:  r.Code,
		HostToken: r.HostToken,
	})
}

func (a *API) JoinRoom(c *gin.Context) {
	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, invalidBody(err))
		return
	}

	p, err := a.rs.JoinRoom(c.Request.Context(), room.JoinRoomRequest{
		RoomCode: c.Param("code"),
		Name:     req.Name,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, JoinRoomResponse{
		PlayerID: p.ID,
		Name:     p.Name,
	})
}

func (a *API) Action(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, invalidBody(err))
		return
	}

	if err := a.dispatch(c.Request.Context(), c.Param("code"), req); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) State(c *gin.Context) {
	role, err := parseRole(c.Query("role"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	r, err := a.rs.State(c.Request.Context(), room.StateRequest{
		RoomCode:  c.Param("code"),
		Role:      role,
		HostToken: c.Query("token"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (a *API) Standings(c *gin.Context) {
	st, err := a.ss.GetStandings(c.Request.Context(), standings.GetStandingsRequest{
		RoomCode: c.Param("code"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}

func parseRole(s string) (domain.Role, error) {
	switch domain.Role(s) {
	case "", domain.RolePlayer:
		return domain.RolePlayer, nil
	case domain.RoleHost:
		return domain.RoleHost, nil
	default:
		return "", errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid role: %q", s))
	}
}

func invalidBody(err error) error {
	return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid request: %v", err), errors.WithCause(err))
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal || e.Code == errors.CodeUnavailable {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
