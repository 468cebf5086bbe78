// Package credential 提供可在并发请求间轮换的凭据池。
package credential

import (
	"errors"
	"sync"
)

// ErrEmptyPool 表示凭据池为空。
var ErrEmptyPool = errors.New("[credential] 凭据池为空")

// Pool 按顺序轮换一组可互换的凭据（API Key、密钥对、User-Agent 等）。
// 并发安全：游标由互斥锁保护。
type Pool[T any] struct {
	mu    sync.Mutex
	items []T
	next  int
}

// NewPool 创建凭据池，items 不能为空。
func NewPool[T any](items []T) (*Pool[T], error) {
	if len(items) == 0 {
		return nil, ErrEmptyPool
	}
	cp := make([]T, len(items))
	copy(cp, items)
	return &Pool[T]{items: cp}, nil
}

// Next 返回下一个凭据并推进游标。
func (p *Pool[T]) Next() T {
	p.mu.Lock()
	defer p.mu.Unlock()

	item := p.items[p.next]
	p.next = (p.next + 1) % len(p.items)
	return item
}

// Len 返回凭据数量。
func (p *Pool[T]) Len() int {
	return len(p.items)
}
