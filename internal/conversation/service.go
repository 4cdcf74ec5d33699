package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/schemebot/internal/metrics"
	"github.com/hitoshi/schemebot/internal/model"
	"github.com/hitoshi/schemebot/internal/session"
)

// TurnResult は1ターンの処理結果。
type TurnResult struct {
	SessionID string
	Step      model.Step
	Reply     model.ConversationReply
}

// Service は会話ターンの境界を担うサービス。
// セッションごとの排他、状態の読み書き、内部障害からの復旧を行う。
type Service struct {
	engine  *Engine
	store   session.Store
	locker  *session.KeyedLocker
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewService はServiceを生成する。metricsがnilの場合は記録しない。
func NewService(engine *Engine, store session.Store, collector metrics.MetricsCollector, logger *slog.Logger) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		engine:  engine,
		store:   store,
		locker:  session.NewKeyedLocker(),
		metrics: collector,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Submit は1件のメッセージを処理して応答を返す。
// sessionIDが空の場合は新しいIDを発行する。
// 内部障害は応答に変換し、ロック待ち中のコンテキスト終了のみエラーとして返す。
func (s *Service) Submit(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	start := time.Now()
	if sessionID == "" {
		sessionID = s.newID()
	}

	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("wait for session %s: %w", sessionID, err)
	}
	defer unlock()

	now := s.now()
	state, reply := s.turn(ctx, sessionID, text, now)
	state.LastActiveAt = now

	if err := s.store.Put(ctx, sessionID, state); err != nil {
		s.logger.Error("failed to save session state",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	s.metrics.RecordTurn(string(state.Step))
	s.metrics.RecordTurnLatency(time.Since(start))

	return &TurnResult{
		SessionID: sessionID,
		Step:      state.Step,
		Reply:     reply,
	}, nil
}

// turn は状態を読み込んでEngineを1ステップ進める。
// 状態の破損、未定義の状態、panicはいずれもWELCOMEへのリセットと定型文で応答する。
func (s *Service) turn(ctx context.Context, sessionID, text string, now time.Time) (state *model.SessionState, reply model.ConversationReply) {
	state, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return s.fail(sessionID, now, "load", err)
	}
	if state == nil {
		state = model.NewSessionState(sessionID, now)
	}
	state.SessionID = sessionID

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in conversation step",
				slog.String("session_id", sessionID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			state, reply = s.fail(sessionID, now, "panic", nil)
		}
	}()

	reply, err = s.engine.Step(ctx, state, text)
	if err != nil {
		return s.fail(sessionID, now, "step", err)
	}
	return state, reply
}

func (s *Service) fail(sessionID string, now time.Time, reason string, err error) (*model.SessionState, model.ConversationReply) {
	if err != nil {
		s.logger.Error("conversation turn failed, resetting session",
			slog.String("session_id", sessionID),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
	}
	s.metrics.RecordTurnFailure(reason)
	return model.NewSessionState(sessionID, now), withQuickReplies(msgInternalFail, menuQuickReplies()...)
}
