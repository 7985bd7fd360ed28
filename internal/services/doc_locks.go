package services

import "sync"

// DocLocks 文档级读写锁注册表。
// 生命周期操作（入库、删除）持写锁，查询在状态复核与检索期间持读锁，
// 因此查询要么看到完整ready的文档与索引，要么看到删除/重建完成后的状态，
// 绝不会看到索引已清空而记录仍为ready的中间状态。
type DocLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.RWMutex
}

// NewDocLocks 创建锁注册表
func NewDocLocks() *DocLocks {
	return &DocLocks{locks: make(map[uint]*sync.RWMutex)}
}

func (l *DocLocks) get(id uint) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.locks[id]
	if !ok {
		mu = &sync.RWMutex{}
		l.locks[id] = mu
	}
	return mu
}

// Lock 获取文档写锁，调用方负责在返回的锁上Unlock
func (l *DocLocks) Lock(id uint) *sync.RWMutex {
	mu := l.get(id)
	mu.Lock()
	return mu
}

// RLock 获取文档读锁，调用方负责在返回的锁上RUnlock
func (l *DocLocks) RLock(id uint) *sync.RWMutex {
	mu := l.get(id)
	mu.RLock()
	return mu
}

// evict 文档删除成功后回收锁条目。
// 调用方仍持有该锁的写锁；持有旧引用的等待者被唤醒后会发现
// 文档记录已不存在，后续操作拿到新锁也得到同样结果。
func (l *DocLocks) evict(id uint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, id)
}
