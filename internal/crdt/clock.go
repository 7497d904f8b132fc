package crdt

import "sync"

// LamportClock логические часы Лампорта для меток записей реплики.
// Метка записи используется при разрешении конфликтов и для порядка first-writer-wins.
type LamportClock struct {
	counter int64      // монотонно возрастающий счетчик
	mu      sync.Mutex // мьютекс для потокобезопасности
}

// NewLamportClock создает часы с нулевым счетчиком.
func NewLamportClock() *LamportClock {
	return &LamportClock{}
}

// Tick увеличивает счетчик для нового локального события и возвращает метку.
func (lc *LamportClock) Tick() int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.counter++
	return lc.counter
}

// Observe учитывает метку события, полученного от другого узла:
// counter = max(local_counter, remote_timestamp) + 1
func (lc *LamportClock) Observe(remoteTimestamp int64) int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if remoteTimestamp > lc.counter {
		lc.counter = remoteTimestamp
	}
	lc.counter++

	return lc.counter
}

// Now возвращает текущее значение счетчика без изменения.
func (lc *LamportClock) Now() int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	return lc.counter
}

// Restore поднимает счетчик до timestamp после перезапуска узла.
// Счетчик никогда не уменьшается.
func (lc *LamportClock) Restore(timestamp int64) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if timestamp > lc.counter {
		lc.counter = timestamp
	}
}
