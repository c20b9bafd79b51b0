package network

import (
	"encoding/json"

	"github.com/wfunc/minigame/arena"
)

const (
	MsgTypeHeartbeat   = 1
	MsgTypeListArenas  = 101
	MsgTypeCreateArena = 102
	MsgTypeJoinArena   = 103
	MsgTypeLeaveArena  = 104
	MsgTypeAction      = 201
	MsgTypeArenaState  = 301
	MsgTypeError       = 900
)

// 错误码
const (
	CodeBadRequest     = 400
	CodeRefused        = 403
	CodeNotFound       = 404
	CodeConflict       = 409
	CodeRateLimited    = 429
	CodeInternal       = 500
	CodeUnknownMessage = 501
)

type HeartbeatPayload struct {
	Time int64 `json:"time"`
}

type ListArenasRequest struct {
	Minigame string `json:"minigame,omitempty"`
}

type ListArenasResponse struct {
	Arenas []arena.Snapshot `json:"arenas"`
}

type CreateArenaRequest struct {
	Minigame string `json:"minigame"`
}

type CreateArenaResponse struct {
	ArenaID string `json:"arena_id"`
}

// JoinArenaRequest joins a specific arena, or any open arena of Minigame
// when ArenaID is empty.
type JoinArenaRequest struct {
	ArenaID  string `json:"arena_id,omitempty"`
	Minigame string `json:"minigame,omitempty"`
}

type LeaveArenaResponse struct {
	ArenaID string `json:"arena_id"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	MsgID   uint16 `json:"msg_id,omitempty"`
}

// Marshal encodes a payload, returning an empty object for nil.
func Marshal(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}
