// Package listener reacts to PostgreSQL notifications.
package listener

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/lib/pq"
)

const (
	channelName       = "institution_link_created"
	reconnectInterval = 5 * time.Second
	handleTimeout     = 2 * time.Minute
)

// LinkCreated is the payload sent by the institution_links insert trigger
type LinkCreated struct {
	LinkID int64 `json:"link_id"`
	UserID int64 `json:"user_id"`
}

// HandlerFunc processes one newly created link
type HandlerFunc func(ctx context.Context, event LinkCreated) error

// LinkListener listens for new institution links so their accounts can be
// populated without waiting for the daily run.
type LinkListener struct {
	connStr    string
	handler    HandlerFunc
	shutdownCh chan struct{}
	done       chan struct{}
}

// NewLinkListener creates a new listener for link creation notifications
func NewLinkListener(connStr string, handler HandlerFunc) *LinkListener {
	return &LinkListener{
		connStr:    connStr,
		handler:    handler,
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins listening for notifications in a background goroutine
func (l *LinkListener) Start(ctx context.Context) {
	go l.listen(ctx)
	log.Println("Link notification listener started")
}

// Stop gracefully shuts down the listener
func (l *LinkListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	log.Println("Link notification listener stopped")
}

func (l *LinkListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		// Wait before reconnecting
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			log.Println("Reconnecting to PostgreSQL for notifications...")
		}
	}
}

func (l *LinkListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("Listener error: %v", err)
		}
		switch ev {
		case pq.ListenerEventConnected:
			log.Println("Connected to PostgreSQL notification channel")
		case pq.ListenerEventDisconnected:
			log.Println("Disconnected from PostgreSQL notification channel")
		case pq.ListenerEventReconnected:
			log.Println("Reconnected to PostgreSQL notification channel")
		case pq.ListenerEventConnectionAttemptFailed:
			log.Printf("Connection attempt failed: %v", err)
		}
	})

	defer listener.Close()

	if err := listener.Listen(channelName); err != nil {
		log.Printf("Failed to listen on channel %s: %v", channelName, err)
		return
	}

	log.Printf("Listening on channel: %s", channelName)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				// Connection lost, break to reconnect
				return
			}
			l.handleNotification(n)
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					log.Printf("Listener ping failed: %v", err)
				}
			}()
		}
	}
}

func (l *LinkListener) handleNotification(n *pq.Notification) {
	event, err := parsePayload(n.Extra)
	if err != nil {
		log.Printf("Failed to parse notification payload: %v", err)
		return
	}

	// Detached from the listen context so shutdown does not cut a populate short
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()

		if err := l.handler(ctx, event); err != nil {
			log.Printf("Link %d: failed to handle creation: %v", event.LinkID, err)
			return
		}
		log.Printf("Link %d: handled creation for user %d", event.LinkID, event.UserID)
	}()
}

func parsePayload(extra string) (LinkCreated, error) {
	var event LinkCreated
	err := json.Unmarshal([]byte(extra), &event)
	return event, err
}
