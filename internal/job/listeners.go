package job

import "log"

const listenerBuffer = 100

// Subscribe registers a listener for the messages of every job and returns
// its channel. Subscribing an existing id replaces the old channel.
func (c *Controller) Subscribe(id string) <-chan Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeLocked(id)
}

// Follow subscribes like Subscribe and also returns the progress of the
// current job so far. Both are taken under one lock, so an update is either
// in the replay or on the channel, never both.
func (c *Controller) Follow(id string) (<-chan Message, []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var replay []Message
	if c.current != nil {
		for _, p := range c.latest {
			replay = append(replay, ProgressMessage{JobID: c.current.ID, Progress: p})
		}
	}
	return c.subscribeLocked(id), replay
}

func (c *Controller) subscribeLocked(id string) <-chan Message {
	if existing, ok := c.listeners[id]; ok {
		close(existing)
		delete(c.listeners, id)
	}

	ch := make(chan Message, listenerBuffer)
	c.listeners[id] = ch

	log.Printf("controller: listener %s subscribed (total: %d)", id, len(c.listeners))
	return ch
}

// Unsubscribe removes the listener registered under id and closes its
// channel. It does nothing when id has since been subscribed again with a
// different channel.
func (c *Controller) Unsubscribe(id string, ch <-chan Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.listeners[id]
	if !ok || current != ch {
		return
	}
	close(current)
	delete(c.listeners, id)
	log.Printf("controller: listener %s unsubscribed (remaining: %d)", id, len(c.listeners))
}

// ListenerCount returns the number of subscribed listeners.
func (c *Controller) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// broadcastLocked delivers m to every listener without blocking. A full
// listener loses its oldest pending message so terminal messages get through.
func (c *Controller) broadcastLocked(m Message) {
	for id, ch := range c.listeners {
		select {
		case ch <- m:
			continue
		default:
		}

		select {
		case <-ch:
		default:
		}
		select {
		case ch <- m:
		default:
			log.Printf("controller: listener %s channel full, skipping message", id)
		}
	}
}
