package minigame

import (
	"errors"
	"fmt"

	"github.com/wfunc/minigame/state"
)

var (
	ErrArenaFull  = errors.New("arena is full")
	ErrJoinClosed = errors.New("arena is not accepting players in its current state")
)

// JoinPolicy decides whether player may join the arena described by c.
// A non-nil error refuses the join.
type JoinPolicy interface {
	AllowJoin(c state.Context, current state.State, player state.PlayerID) error
}

// JoinPolicyFunc adapts a function to JoinPolicy.
type JoinPolicyFunc func(c state.Context, current state.State, player state.PlayerID) error

func (f JoinPolicyFunc) AllowJoin(c state.Context, current state.State, player state.PlayerID) error {
	return f(c, current, player)
}

// MaxPlayers refuses joins once the arena holds n players.
func MaxPlayers(n int) JoinPolicy {
	return JoinPolicyFunc(func(c state.Context, _ state.State, _ state.PlayerID) error {
		if c.PlayerCount() >= n {
			return fmt.Errorf("%w (%d players)", ErrArenaFull, n)
		}
		return nil
	})
}

// JoinableIn refuses joins unless the current state has one of the given ids.
func JoinableIn(ids ...string) JoinPolicy {
	open := make(map[string]bool, len(ids))
	for _, id := range ids {
		open[id] = true
	}
	return JoinPolicyFunc(func(_ state.Context, current state.State, _ state.PlayerID) error {
		if current == nil || !open[current.ID()] {
			return ErrJoinClosed
		}
		return nil
	})
}

// AllOf requires every policy to allow the join. The first refusal wins.
func AllOf(policies ...JoinPolicy) JoinPolicy {
	return JoinPolicyFunc(func(c state.Context, current state.State, player state.PlayerID) error {
		for _, p := range policies {
			if p == nil {
				continue
			}
			if err := p.AllowJoin(c, current, player); err != nil {
				return err
			}
		}
		return nil
	})
}
