package domain

import (
	"strings"
	"time"
)

type Status string

const (
	StatusLobby      Status = "lobby"
	StatusInProgress Status = "inProgress"
	StatusFinished   Status = "finished"
)

// Phase is the state of the clue currently in play.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseClue     Phase = "clue"
	PhaseOpen     Phase = "open"
	PhaseLocked   Phase = "locked"
	PhaseRevealed Phase = "revealed"
	PhaseTwist    Phase = "twist"
	PhaseFinal    Phase = "final"
)

type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

type TwistChoice string

const (
	TwistDouble    TwistChoice = "double"
	TwistKeep      TwistChoice = "keep"
	TwistRisk      TwistChoice = "risk"
	TwistNoPenalty TwistChoice = "no-penalty"
)

const (
	// ChoiceCount is the number of answer choices every clue carries.
	ChoiceCount = 4

	// UnknownIndex replaces the correct choice of clues a player is not allowed to see yet.
	UnknownIndex = -1

	MinPlayers = 2
	MaxPlayers = 12
)

// Room is one match instance, identified by a short code.
type Room struct {
	Code      string      `json:"code"`
	HostToken string      `json:"hostToken,omitempty"`
	Status    Status      `json:"status"`
	Config    RoomConfig  `json:"config"`
	Players   []*Player   `json:"players"`
	Board     []Category  `json:"board"`
	Current   CurrentClue `json:"currentClue"`
	Answers   AnswerMap   `json:"answers,omitempty"`
	Results   ResultsMap  `json:"results,omitempty"`
	Version   int64       `json:"version"`
	CreatedAt time.Time   `json:"createdAt"`
}

// RoomConfig is fixed at creation.
type RoomConfig struct {
	Title           string `json:"title,omitempty"`
	PlayerLimit     int    `json:"playerLimit"`
	TwistDefault    bool   `json:"twistDefault"`
	AutoOpenAnswers bool   `json:"autoOpenAnswers"`
	AutoFinalize    bool   `json:"autoFinalize"`
}

type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

type Category struct {
	Title string `json:"title"`
	Clues []Clue `json:"clues"`
}

type Clue struct {
	ID           string              `json:"id"`
	Value        int                 `json:"value"`
	Question     string              `json:"question"`
	Choices      [ChoiceCount]string `json:"choices"`
	CorrectIndex int                 `json:"correctIndex"`
	Used         bool                `json:"used"`
}

// CurrentClue is the cursor over the clue in play.
type CurrentClue struct {
	ClueID        string     `json:"clueId,omitempty"`
	Phase         Phase      `json:"phase"`
	OpenedAt      *time.Time `json:"openedAt,omitempty"`
	LockedAt      *time.Time `json:"lockedAt,omitempty"`
	RevealedAt    *time.Time `json:"revealedAt,omitempty"`
	TwistEnabled  bool       `json:"twistEnabled"`
	TwistDeadline *time.Time `json:"twistDeadline,omitempty"`
}

// AnswerMap maps a player id to the submitted choice index.
type AnswerMap map[string]int

type ResultEntry struct {
	Answered    bool        `json:"answered"`
	Correct     bool        `json:"correct"`
	Delta       int         `json:"delta"`
	TwistChoice TwistChoice `json:"twistChoice,omitempty"`
	TwistDelta  int         `json:"twistDelta,omitempty"`
}

type ResultsMap map[string]ResultEntry

// QuestionSet is the raw description a board is built from.
type QuestionSet struct {
	Categories []QuestionCategory `json:"categories"`
}

type QuestionCategory struct {
	Title string         `json:"title"`
	Clues []QuestionClue `json:"clues"`
}

type QuestionClue struct {
	Value        *int     `json:"value"`
	Question     string   `json:"question"`
	Choices      []string `json:"choices"`
	CorrectIndex int      `json:"correctIndex"`
}

func IdleClue() CurrentClue {
	return CurrentClue{Phase: PhaseIdle}
}

// NormalizeCode upper-cases a user supplied room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *Room) FindClue(id string) (*Clue, bool) {
	for i := range r.Board {
		for j := range r.Board[i].Clues {
			if r.Board[i].Clues[j].ID == id {
				return &r.Board[i].Clues[j], true
			}
		}
	}

	return nil, false
}

func (r *Room) FindPlayer(id string) (*Player, bool) {
	for _, p := range r.Players {
		if p.ID == id {
			return p, true
		}
	}

	return nil, false
}

func (r *Room) FindPlayerByName(name string) (*Player, bool) {
	for _, p := range r.Players {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}

	return nil, false
}

// Scores returns the cumulative score of every player keyed by player id.
func (r *Room) Scores() map[string]int {
	m := make(map[string]int, len(r.Players))
	for _, p := range r.Players {
		m[p.ID] = p.Score
	}

	return m
}

func (r *Room) InPlay() bool {
	return r.Current.ClueID != ""
}

// ForRole returns the projection of the room visible to the given role.
// The host sees everything. Players never see the host token, the live answers and results,
// or any correct choice other than the one of the clue in play once it has been revealed.
func (r *Room) ForRole(role Role) Room {
	if role == RoleHost {
		return *r
	}

	out := *r
	out.HostToken = ""
	out.Answers = nil
	out.Results = nil

	revealed := r.Current.Phase == PhaseRevealed || r.Current.Phase == PhaseTwist || r.Current.Phase == PhaseFinal

	out.Board = make([]Category, len(r.Board))
	for i, c := range r.Board {
		clues := make([]Clue, len(c.Clues))
		for j, cl := range c.Clues {
			if !revealed || cl.ID != r.Current.ClueID {
				cl.CorrectIndex = UnknownIndex
			}
			clues[j] = cl
		}
		out.Board[i] = Category{Title: c.Title, Clues: clues}
	}

	out.Players = make([]*Player, len(r.Players))
	for i, p := range r.Players {
		cp := *p
		out.Players[i] = &cp
	}

	return out
}

// Standings ranks the players of a room by score.
type Standings struct {
	RoomCode string     `json:"roomCode"`
	Status   Status     `json:"status"`
	Entries  []Standing `json:"entries"`
}

type Standing struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}
