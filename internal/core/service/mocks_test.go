package service

import (
	"image"
	"sync"

	"github.com/rl1809/stockroom/internal/port"
)

type published struct {
	topic   string
	payload any
}

// Mock Publisher
type mockPublisher struct {
	mu     sync.Mutex
	events []published
}

func (m *mockPublisher) Publish(topic string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, published{topic: topic, payload: payload})
}

func (m *mockPublisher) byTopic(topic string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, e := range m.events {
		if e.topic == topic {
			out = append(out, e.payload)
		}
	}
	return out
}

var _ port.Publisher = (*mockPublisher)(nil)

// Mock CodeReader that succeeds on the hitOn-th call (1-based). Zero never succeeds.
type mockReader struct {
	mu     sync.Mutex
	code   string
	hitOn  int
	calls  int
	images []image.Image
}

func (m *mockReader) Read(img image.Image) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.images = append(m.images, img)
	if m.hitOn > 0 && m.calls == m.hitOn {
		return m.code, true
	}
	return "", false
}
