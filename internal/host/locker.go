package host

import "sync"

// KeyedLocker мьютекс на каждый ключ. Запись удаляется, когда ключ никто не держит и не ждет.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocker создает KeyedLocker
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*refLock)}
}

// Lock захватывает блокировку ключа и возвращает функцию освобождения
func (l *KeyedLocker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &refLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Len количество ключей с активными блокировками
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
