package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrBufferFull is returned by MemoryClient.Publish when no consumer keeps up.
var ErrBufferFull = errors.New("memory bus buffer full")

// MemoryClient is an in-process bus: published messages are buffered and handed to
// Consume. It keeps a copy of everything published for inspection.
type MemoryClient struct {
	topic  string
	ch     chan Message
	logger *zap.Logger

	mu        sync.Mutex
	published []Message
	offset    int64
}

// NewMemoryClient buffers up to size undelivered messages.
func NewMemoryClient(topic string, size int, logger *zap.Logger) *MemoryClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryClient{topic: topic, ch: make(chan Message, size), logger: logger}
}

// Publish implements Client.
func (m *MemoryClient) Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.offset++
	msg := Message{
		Topic:   m.topic,
		Key:     append([]byte(nil), key...),
		Value:   append([]byte(nil), value...),
		Headers: headers,
		Offset:  m.offset,
		Time:    time.Now(),
	}
	m.published = append(m.published, msg)
	m.mu.Unlock()

	select {
	case m.ch <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Consume implements Client. Handler errors are logged, there is no redelivery.
func (m *MemoryClient) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-m.ch:
			if err := handler(ctx, msg); err != nil {
				m.logger.Error("memory bus handler failed",
					zap.String("topic", msg.Topic),
					zap.Int64("offset", msg.Offset),
					zap.ByteString("key", msg.Key),
					zap.Error(err),
				)
			}
		}
	}
}

// Topic implements Client.
func (m *MemoryClient) Topic() string { return m.topic }

// Published returns every message published so far.
func (m *MemoryClient) Published() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.published))
	copy(out, m.published)
	return out
}
