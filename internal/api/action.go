package api

import (
	"context"
	"time"

	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/errors"
	"github.com/victornm/clueboard/internal/room"
	"github.com/victornm/clueboard/internal/telemetry"
)

const (
	ActionStartGame         = "host:startGame"
	ActionSelectClue        = "host:selectClue"
	ActionOpenAnswers       = "host:openAnswers"
	ActionLockAnswers       = "host:lockAnswers"
	ActionRevealCorrect     = "host:revealCorrect"
	ActionToggleTwist       = "host:toggleTwistForClue"
	ActionTriggerTwist      = "host:triggerTwist"
	ActionFinalizeClue      = "host:finalizeClue"
	ActionEndGame           = "host:endGame"
	ActionSubmitAnswer      = "player:submitAnswer"
	ActionSubmitTwistChoice = "player:submitTwistChoice"
	ActionLeave             = "player:leave"
)

// ActionRequest is one host or player action. Which fields are read depends on the action.
type ActionRequest struct {
	Action      string             `json:"action" binding:"required"`
	HostToken   string             `json:"hostToken"`
	PlayerID    string             `json:"playerId"`
	ClueID      string             `json:"clueId"`
	Enabled     bool               `json:"enabled"`
	ChoiceIndex *int               `json:"choiceIndex"`
	Choice      domain.TwistChoice `json:"choice"`
}

func (a *API) dispatch(ctx context.Context, code string, req ActionRequest) (err error) {
	start := time.Now()
	defer func() {
		label := req.Action
		if !knownAction(label) {
			label = "unknown"
		}

		var c int
		if err != nil {
			c = int(errors.Convert(err).Code)
		}
		telemetry.ObserveAction(label, c, time.Since(start))
	}()

	host := room.HostRequest{RoomCode: code, HostToken: req.HostToken}

	switch req.Action {
	case ActionStartGame:
		_, err = a.rs.StartGame(ctx, host)
	case ActionSelectClue:
		_, err = a.rs.SelectClue(ctx, room.SelectClueRequest{HostRequest: host, ClueID: req.ClueID})
	case ActionOpenAnswers:
		_, err = a.rs.OpenAnswers(ctx, host)
	case ActionLockAnswers:
		_, err = a.rs.LockAnswers(ctx, host)
	case ActionRevealCorrect:
		_, err = a.rs.RevealCorrect(ctx, host)
	case ActionToggleTwist:
		_, err = a.rs.ToggleTwist(ctx, room.ToggleTwistRequest{HostRequest: host, Enabled: req.Enabled})
	case ActionTriggerTwist:
		_, err = a.rs.TriggerTwist(ctx, host)
	case ActionFinalizeClue:
		_, err = a.rs.FinalizeClue(ctx, host)
	case ActionEndGame:
		_, err = a.rs.EndGame(ctx, host)
	case ActionSubmitAnswer:
		if req.ChoiceIndex == nil {
			return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("choiceIndex is required"))
		}
		err = a.rs.SubmitAnswer(ctx, room.SubmitAnswerRequest{
			RoomCode:    code,
			PlayerID:    req.PlayerID,
			ChoiceIndex: *req.ChoiceIndex,
		})
	case ActionSubmitTwistChoice:
		err = a.rs.SubmitTwistChoice(ctx, room.SubmitTwistChoiceRequest{
			RoomCode: code,
			PlayerID: req.PlayerID,
			Choice:   req.Choice,
		})
	case ActionLeave:
		err = a.rs.MarkDisconnected(ctx, room.PresenceRequest{RoomCode: code, PlayerID: req.PlayerID})
	default:
		err = errors.New(errors.CodeInvalidArgument, errors.WithMessagef("unknown action: %q", req.Action))
	}

	return err
}

func knownAction(action string) bool {
	switch action {
	case ActionStartGame, ActionSelectClue, ActionOpenAnswers, ActionLockAnswers, ActionRevealCorrect,
		ActionToggleTwist, ActionTriggerTwist, ActionFinalizeClue, ActionEndGame,
		ActionSubmitAnswer, ActionSubmitTwistChoice, ActionLeave:
		return true
	default:
		return false
	}
}
