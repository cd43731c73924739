package sampler

import "sync"

// Notifier fans out data-less change signals to subscribers. Signals are
// delivered without blocking; a subscriber that has not drained its pending
// signal sees a single signal for several publishes.
type Notifier struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool
}

// NewNotifier returns an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subscribers: make(map[*subscriber]struct{})}
}

// Subscribe registers a listener. The returned function unsubscribes and
// closes the channel; it is safe to call more than once. After CloseAll the
// channel is returned already closed.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	sub := newSubscriber()

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		sub.close()
		return sub.channel(), func() {}
	}
	n.subscribers[sub] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subscribers, sub)
			n.mu.Unlock()
			sub.close()
		})
	}
	return sub.channel(), unsubscribe
}

// Notify signals every current subscriber.
func (n *Notifier) Notify() {
	n.mu.Lock()
	targets := make([]*subscriber, 0, len(n.subscribers))
	for sub := range n.subscribers {
		targets = append(targets, sub)
	}
	n.mu.Unlock()

	for _, sub := range targets {
		sub.send()
	}
}

// Len returns the number of active subscribers.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subscribers)
}

// CloseAll unsubscribes everyone. Later subscriptions receive a closed
// channel.
func (n *Notifier) CloseAll() {
	n.mu.Lock()
	n.closed = true
	targets := n.subscribers
	n.subscribers = make(map[*subscriber]struct{})
	n.mu.Unlock()

	for sub := range targets {
		sub.close()
	}
}

type subscriber struct {
	ch     chan struct{}
	mu     sync.Mutex
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{
		ch: make(chan struct{}, 1),
	}
}

func (s *subscriber) channel() <-chan struct{} {
	return s.ch
}

func (s *subscriber) send() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
		// A signal is already pending.
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}
