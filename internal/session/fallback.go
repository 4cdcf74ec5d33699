package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/schemebot/internal/model"
)

// FallbackRecorder は一次ストア障害によるフォールバックを記録するインターフェース。
type FallbackRecorder interface {
	RecordSessionStoreFallback(op string)
}

// FallbackStore は一次ストアが使えない場合にメモリへ切り替えるStore実装。
// 一次ストアの障害は呼び出し元に返さず、ログとメトリクスにのみ残す。
type FallbackStore struct {
	primary  Store
	memory   *MemoryStore
	logger   *slog.Logger
	recorder FallbackRecorder
}

// NewFallbackStore はFallbackStoreを生成する。
// primaryがnilの場合は常にメモリストアを使用する。recorderはnilでもよい。
func NewFallbackStore(primary Store, logger *slog.Logger, recorder FallbackRecorder) *FallbackStore {
	return &FallbackStore{
		primary:  primary,
		memory:   NewMemoryStore(),
		logger:   logger,
		recorder: recorder,
	}
}

// Get は一次ストアから取得し、見つからないか障害の場合はメモリから取得する。
// メモリ上のコピーは一次ストアへの保存に失敗した後の書き込みなので、
// 一次ストアが応答してもメモリ側を優先し、一次ストアへ書き戻す。
// 一次ストアのデータ破損はErrCorruptStateとして返す。
func (s *FallbackStore) Get(ctx context.Context, sessionID string) (*model.SessionState, error) {
	pending, err := s.memory.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.primary == nil {
		return pending, nil
	}
	if pending != nil {
		s.writeBack(ctx, sessionID, pending)
		return pending, nil
	}

	state, err := s.primary.Get(ctx, sessionID)
	switch {
	case err == nil:
		return state, nil
	case errors.Is(err, ErrCorruptState):
		return nil, err
	default:
		s.fallback("get", sessionID, err)
		return nil, nil
	}
}

// writeBack はメモリ上のコピーを一次ストアへ移す。失敗した場合はメモリに残す。
func (s *FallbackStore) writeBack(ctx context.Context, sessionID string, state *model.SessionState) {
	if err := s.primary.Put(ctx, sessionID, state); err != nil {
		s.fallback("get", sessionID, err)
		return
	}
	s.memory.Delete(sessionID)
	s.logger.Info("session state restored to primary store",
		slog.String("session_id", sessionID),
	)
}

// Put は一次ストアに保存し、失敗した場合はメモリに保存する。
// 一次ストアへの保存に成功した場合、古いメモリ上のコピーは削除する。
func (s *FallbackStore) Put(ctx context.Context, sessionID string, state *model.SessionState) error {
	if s.primary != nil {
		err := s.primary.Put(ctx, sessionID, state)
		if err == nil {
			s.memory.Delete(sessionID)
			return nil
		}
		s.fallback("put", sessionID, err)
	}
	return s.memory.Put(ctx, sessionID, state)
}

// MemoryLen はメモリ上に保持しているセッション数を返す。
func (s *FallbackStore) MemoryLen() int {
	return s.memory.Len()
}

func (s *FallbackStore) fallback(op, sessionID string, err error) {
	s.logger.Warn("session store unavailable, using in-memory fallback",
		slog.String("op", op),
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
	)
	if s.recorder != nil {
		s.recorder.RecordSessionStoreFallback(op)
	}
}

var _ Store = (*FallbackStore)(nil)
