package pipeline

import "sync"

// CancelRegistry — реестр запросов отмены выполняющихся задач.
//
// Runner регистрирует задачу на время прогона и проверяет флаг на
// границах стадий. Запрос отмены для незарегистрированной задачи
// запоминается: если задача выполняется в другом процессе, флаг
// дойдёт до неё через broadcast, а локальная запись отсеет повтор.
type CancelRegistry struct {
	mu        sync.Mutex
	active    map[string]struct{}
	cancelled map[string]struct{}
}

// NewCancelRegistry создаёт пустой реестр.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{
		active:    make(map[string]struct{}),
		cancelled: make(map[string]struct{}),
	}
}

// Register отмечает задачу как выполняющуюся в этом процессе.
func (r *CancelRegistry) Register(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[taskID] = struct{}{}
}

// Unregister снимает задачу с учёта и забывает её флаг отмены.
func (r *CancelRegistry) Unregister(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, taskID)
	delete(r.cancelled, taskID)
}

// RequestCancel выставляет флаг отмены. Возвращает true, если задача
// выполняется в этом процессе.
func (r *CancelRegistry) RequestCancel(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled[taskID] = struct{}{}
	_, local := r.active[taskID]
	return local
}

// IsCancelled проверяет флаг отмены задачи.
func (r *CancelRegistry) IsCancelled(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, cancelled := r.cancelled[taskID]
	return cancelled
}

// IsActive проверяет, выполняется ли задача в этом процессе.
func (r *CancelRegistry) IsActive(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, active := r.active[taskID]
	return active
}

// ActiveCount возвращает число выполняющихся задач.
func (r *CancelRegistry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
