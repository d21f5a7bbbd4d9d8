package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/tessera/internal/logging"
	"github.com/aretw0/tessera/pkg/domain"
)

// Topics accepted by GET /events.
const (
	TopicBlocks      = "blocks"
	TopicValidations = "validations"
)

// StreamManager handles active SSE connections
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // Topic -> Set of Channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a buffered channel on topic. The returned function
// unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(topic string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[topic]; !ok {
		sm.subscribers[topic] = make(map[chan<- string]struct{})
	}
	sm.subscribers[topic][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[topic]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, topic)
				}
			}
		})
	}
}

// Broadcast sends msg to every subscriber of topic without blocking.
func (sm *StreamManager) Broadcast(topic string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[topic] {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message", "topic", topic)
		}
	}
}

// Hooks returns registry hooks that broadcast writes on TopicBlocks and
// validation outcomes on TopicValidations.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	block := func(_ context.Context, e *domain.BlockEvent) {
		if e.Err != nil {
			return
		}
		sm.publish(TopicBlocks, e)
	}
	return domain.LifecycleHooks{
		OnRegister:      block,
		OnMetricsUpdate: block,
		OnTransition:    block,
		OnValidate: func(_ context.Context, e *domain.ValidationEvent) {
			sm.publish(TopicValidations, e)
		},
	}
}

func (sm *StreamManager) publish(topic string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		sm.logger.Warn("SSE: Event encode failed", "topic", topic, "err", err)
		return
	}
	sm.Broadcast(topic, string(data))
}

// SubscribeEvents handles the GET /events request (SSE). The topic query
// parameter takes a comma-separated list; it defaults to blocks.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	topics := []string{TopicBlocks}
	if v := r.URL.Query().Get("topic"); v != "" {
		topics = topics[:0]
		for _, t := range strings.Split(v, ",") {
			t = strings.TrimSpace(t)
			if t != TopicBlocks && t != TopicValidations {
				s.writeError(w, r, badRequest(fmt.Sprintf("unknown topic %q", t)))
				return
			}
			topics = append(topics, t)
		}
	}

	merged := make(chan string, 10)
	var wg sync.WaitGroup
	for _, topic := range topics {
		ch, cancel := s.Streams.Subscribe(topic)
		defer cancel()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-r.Context().Done():
					return
				case msg, ok := <-ch:
					if !ok {
						return
					}
					select {
					case merged <- "event: " + topic + "\ndata: " + msg + "\n\n":
					case <-r.Context().Done():
						return
					}
				}
			}
		}()
	}
	defer wg.Wait()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: Client subscribed", "topics", topics)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected")
			return
		case frame := <-merged:
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
	}
}
