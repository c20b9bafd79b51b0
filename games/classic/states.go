package classic

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wfunc/minigame/logger"
	"github.com/wfunc/minigame/state"
)

var ErrUnknownAction = errors.New("unknown action")

// Action is a player action sent while playing.
type Action struct {
	Type   string `json:"type"`
	Points int    `json:"points,omitempty"`
}

// waitingState 等待玩家, 人数够了就开始倒计时
type waitingState struct {
	state.Base
	game *Game
}

func (s *waitingState) OnEnter(c state.Context) {
	s.game.clearScores(c.ArenaID())
}

func (s *waitingState) OnUpdate(c state.Context) bool {
	return c.PlayerCount() >= s.game.intSetting(SettingMinPlayers, defaultMinPlayers)
}

// countdownState 倒计时, 仍然可以加入
type countdownState struct {
	state.Base
	game *Game
}

func (s *countdownState) OnUpdate(c state.Context) bool {
	return c.Elapsed() >= s.game.durationSetting(SettingCountdown, defaultCountdown)
}

// playingState 游戏进行状态
type playingState struct {
	state.Base
	game *Game
}

func (s *playingState) OnEnter(c state.Context) {
	logger.Log.Infof("arena %s started a round with %d players", c.ArenaID(), c.PlayerCount())
	s.game.startScores(c.ArenaID(), c.Players())
}

// OnUpdate ends the round when time is up or everyone left.
func (s *playingState) OnUpdate(c state.Context) bool {
	if c.PlayerCount() == 0 {
		return true
	}
	return c.Elapsed() >= s.game.durationSetting(SettingRoundDuration, defaultRoundDuration)
}

func (s *playingState) HandleAction(c state.Context, player state.PlayerID, actionData []byte) error {
	var action Action
	if err := json.Unmarshal(actionData, &action); err != nil {
		return fmt.Errorf("failed to unmarshal action data: %w", err)
	}

	switch action.Type {
	case "score":
		points := action.Points
		if points <= 0 {
			points = 1
		}
		s.game.addScore(c.ArenaID(), player, points)
	case "spin":
		reels := [3]int{s.game.rand(8), s.game.rand(8), s.game.rand(8)}
		s.game.addScore(c.ArenaID(), player, slotPayout(reels))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action.Type)
	}
	return nil
}

// slotPayout pays for three equal reels, most for 7-7-7.
func slotPayout(reels [3]int) int {
	if reels[0] != reels[1] || reels[1] != reels[2] {
		return 0
	}
	if reels[0] == 7 {
		return 1000
	}
	return 100
}

// endingState 结算, 最终状态
type endingState struct {
	state.Base
	game *Game
}

func (s *endingState) OnEnter(c state.Context) {
	ranking := s.game.Ranking(c.ArenaID())
	if len(ranking) > 0 {
		logger.Log.Infof("arena %s round over, winner %s with %d points", c.ArenaID(), ranking[0].Player, ranking[0].Score)
		return
	}
	logger.Log.Infof("arena %s round over without players", c.ArenaID())
}
