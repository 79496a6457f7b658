package middleware

import (
	"sync"

	tghelpers "github.com/m3rciful/markerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Serializer runs each sender's updates one at a time, in the order the middleware saw
// them, while different senders proceed in parallel. It only keeps arrival order when
// the bot dispatches updates synchronously (tele.Settings.Synchronous).
type Serializer struct {
	onError func(error, tele.Context)

	mu     sync.Mutex
	queues map[string][]func()
	wg     sync.WaitGroup
}

// NewSerializer builds a Serializer. Handler errors are passed to onError, since the
// middleware itself returns before the handler runs.
func NewSerializer(onError func(error, tele.Context)) *Serializer {
	return &Serializer{onError: onError, queues: make(map[string][]func())}
}

// Middleware queues the rest of the chain on the sender's FIFO. Updates without a
// sender run inline.
func (s *Serializer) Middleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		key := tghelpers.OwnerID(c)
		if key == "" {
			return next(c)
		}
		s.submit(key, func() {
			if err := next(c); err != nil && s.onError != nil {
				s.onError(err, c)
			}
		})
		return nil
	}
}

// Wait blocks until every queued update has been handled.
func (s *Serializer) Wait() {
	s.wg.Wait()
}

// Pending reports how many senders have queued or running work.
func (s *Serializer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}

func (s *Serializer) submit(key string, job func()) {
	s.mu.Lock()
	q, running := s.queues[key]
	s.queues[key] = append(q, job)
	if !running {
		s.wg.Add(1)
	}
	s.mu.Unlock()
	if !running {
		go s.drain(key)
	}
}

// drain owns the sender's queue until it is empty; the map entry marks it as running.
func (s *Serializer) drain(key string) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		q := s.queues[key]
		if len(q) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		job := q[0]
		q[0] = nil
		s.queues[key] = q[1:]
		s.mu.Unlock()
		job()
	}
}
