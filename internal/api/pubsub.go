package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/realtime"
	"github.com/victornm/clueboard/internal/telemetry"
)

const (
	EventRoomState       = "room:state"
	EventCountdownUpdate = "countdown:update"
	EventActionResult    = "action:result"
)

var roles = []domain.Role{domain.RoleHost, domain.RolePlayer}

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Countdown struct {
		SecondsLeft int `json:"secondsLeft"`
	}

	ActionResult struct {
		Action  string `json:"action"`
		OK      bool   `json:"ok"`
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	}
)

// PublishRoomUpdated pushes the snapshot to each role's channel, projected for that role.
func (a *API) PublishRoomUpdated(ctx context.Context, e domain.EventRoomUpdated) error {
	r := e.Room

	var eg errgroup.Group
	for _, role := range roles {
		v := r.ForRole(role)
		eg.Go(func() error {
			return a.publishNotification(ctx, r.Code, role, EventRoomState, v)
		})
	}

	return eg.Wait()
}

func (a *API) PublishCountdownTicked(ctx context.Context, e domain.EventCountdownTicked) error {
	data := Countdown{SecondsLeft: e.SecondsLeft}

	var eg errgroup.Group
	for _, role := range roles {
		eg.Go(func() error {
			return a.publishNotification(ctx, e.RoomCode, role, EventCountdownUpdate, data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, code string, role domain.Role, event string, data any) error {
	b, err := encodeNotification(event, data)
	if err != nil {
		return err
	}

	if err := a.publisher.Publish(ctx, realtime.Channel(a.prefix, code, role), b); err != nil {
		return fmt.Errorf("pubsub: publish %s: %w", event, err)
	}

	telemetry.ObserveBroadcast(event)
	return nil
}

func encodeNotification(event string, data any) ([]byte, error) {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("pubsub: marshal %s: %w", event, err)
	}

	return b, nil
}
