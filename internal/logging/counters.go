package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type counterKey struct {
	component string
	event     string
}

type counterValue struct {
	count int64
	last  []slog.Attr
}

// eventCounter batches noisy events (rejected nodes, failed mutation
// callbacks, heartbeat errors) into one event_batch record per window.
type eventCounter struct {
	log    *slog.Logger
	window time.Duration

	mu     sync.Mutex
	counts map[counterKey]*counterValue

	done chan struct{}
	wg   sync.WaitGroup
}

func newEventCounter(log *slog.Logger, window time.Duration) *eventCounter {
	c := &eventCounter{
		log:    log,
		window: window,
		counts: make(map[counterKey]*counterValue),
		done:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *eventCounter) run() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.done:
			return
		}
	}
}

func (c *eventCounter) add(component, event string, fields []slog.Attr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := counterKey{component: component, event: event}
	v := c.counts[key]
	if v == nil {
		v = &counterValue{}
		c.counts[key] = v
	}
	v.count++
	if len(fields) > 0 {
		v.last = fields
	}
}

// stop ends the window loop and flushes what is pending. Call once.
func (c *eventCounter) stop() {
	close(c.done)
	c.wg.Wait()
	c.flush()
}

func (c *eventCounter) flush() {
	c.mu.Lock()
	pending := c.counts
	c.counts = make(map[counterKey]*counterValue)
	c.mu.Unlock()

	for key, v := range pending {
		attrs := append([]slog.Attr{
			slog.String("component", key.component),
			slog.String("event", key.event),
			slog.Int64("count", v.count),
			slog.Int("window_seconds", int(c.window.Seconds())),
		}, v.last...)
		c.log.LogAttrs(context.Background(), slog.LevelInfo, "event_batch", attrs...)
	}
}
