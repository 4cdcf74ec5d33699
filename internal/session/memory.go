package session

import (
	"context"
	"sync"

	"github.com/hitoshi/schemebot/internal/model"
)

// MemoryStore はプロセス内マップによるStore実装。
// 有効期限はなく、プロセス再起動で消える。
// 保存時にエンコードするため、呼び出し元が後から状態を変更しても影響しない。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get はセッション状態を取得する。
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*model.SessionState, error) {
	s.mu.RLock()
	data, ok := s.data[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decodeState(data)
}

// Put はセッション状態を保存する。
func (s *MemoryStore) Put(_ context.Context, sessionID string, state *model.SessionState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[sessionID] = data
	s.mu.Unlock()
	return nil
}

// Delete はセッション状態を削除する。
func (s *MemoryStore) Delete(sessionID string) {
	s.mu.Lock()
	delete(s.data, sessionID)
	s.mu.Unlock()
}

// Len は保持しているセッション数を返す。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ Store = (*MemoryStore)(nil)
