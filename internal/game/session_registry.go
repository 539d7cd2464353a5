package game

import (
	"sync"

	apperrors "github.com/wfunc/liar-bar/internal/errors"
)

// SessionRegistry 玩家到进行中对局的映射，每个玩家最多一个对局
type SessionRegistry struct {
	mu    sync.RWMutex
	seats map[string]string
}

// NewSessionRegistry 创建注册表
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{seats: make(map[string]string)}
}

// Reserve 为一组玩家登记对局，任一玩家已在其他对局中则全部不登记
func (r *SessionRegistry) Reserve(matchID string, players []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range players {
		if current, ok := r.seats[p]; ok {
			return apperrors.Newf(apperrors.ErrPlayerAlreadySeated, "玩家 %s 已在对局 %s 中", p, current)
		}
	}
	for _, p := range players {
		r.seats[p] = matchID
	}
	return nil
}

// Release 释放属于该对局的登记
func (r *SessionRegistry) Release(matchID string, players []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range players {
		if r.seats[p] == matchID {
			delete(r.seats, p)
		}
	}
}

// Lookup 查询玩家所在对局
func (r *SessionRegistry) Lookup(playerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.seats[playerID]
	return id, ok
}

// Count 已登记玩家数
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.seats)
}
