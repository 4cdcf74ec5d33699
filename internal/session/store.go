// Package session は会話セッション状態の保存を提供する。
//
// 本番ではRedisを一次ストアとし、接続できない場合はプロセス内メモリへ
// 黙って切り替える。状態は厳密なJSONとして保存し、コードとして評価することはない。
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/schemebot/internal/model"
)

// ErrCorruptState は保存データが復元できない場合に返される。
var ErrCorruptState = errors.New("corrupt session state")

// Store はセッション状態の取得と保存を行うインターフェース。
type Store interface {
	// Get はセッション状態を取得する。存在しない場合はnil, nilを返す。
	Get(ctx context.Context, sessionID string) (*model.SessionState, error)
	// Put はセッション状態を保存する。
	Put(ctx context.Context, sessionID string, state *model.SessionState) error
}

// encodeState はセッション状態をJSONに変換する。
func encodeState(state *model.SessionState) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("session state is nil")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session state: %w", err)
	}
	return data, nil
}

// decodeState はJSONからセッション状態を復元する。
// 未知のキーや未定義のステップを含む場合はErrCorruptStateを返す。
func decodeState(data []byte) (*model.SessionState, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var state model.SessionState
	if err := dec.Decode(&state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if !state.Step.Valid() {
		return nil, fmt.Errorf("%w: unknown step %q", ErrCorruptState, state.Step)
	}
	return &state, nil
}
