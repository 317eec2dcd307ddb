package network

import (
	"sync"

	"pixsim-server/pkg/api"
)

// Hub занимается только рассылкой событий подписчикам сессий.
// Подписчик - HUD, дашборд или редактор, смотрящий на сессию.
// Доставка at-least-once: переполненный канал означает потерю для
// МЕДЛЕННОГО подписчика, журнал событий в сторе остается полным.
type Hub struct {
	mu sync.RWMutex
	// sessionID -> список личных каналов подписчиков
	subscribers map[string][]chan api.Event
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string][]chan api.Event),
	}
}

// Subscribe создает личный канал подписчика на сессию.
func (h *Hub) Subscribe(sessionID string) chan api.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan api.Event, 128)
	h.subscribers[sessionID] = append(h.subscribers[sessionID], ch)
	return ch
}

// Unsubscribe удаляет и закрывает канал подписчика.
func (h *Hub) Unsubscribe(sessionID string, ch chan api.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[sessionID]
	for i, c := range subs {
		if c == ch {
			close(c)
			h.subscribers[sessionID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subscribers[sessionID]) == 0 {
		delete(h.subscribers, sessionID)
	}
}

// Publish рассылает событие всем подписчикам сессии.
// Неблокирующая отправка: писатель сессии не должен ждать клиентов.
func (h *Hub) Publish(sessionID string, ev api.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[sessionID] {
		select {
		case ch <- ev:
		default:
			// Подписчик не успевает; догонит по журналу событий.
		}
	}
}

// HasSubscribers - смотрит ли кто-то на сессию.
// Используется для оптимизации (не собирать снапшоты впустую).
func (h *Hub) HasSubscribers(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[sessionID]) > 0
}

// SubscriberCount возвращает количество активных подписчиков сессии.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[sessionID])
}
