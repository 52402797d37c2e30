package server

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	RealtimeEventPointsAwarded = "points-awarded"
	RealtimeEventRanksUpdated  = "ranks-updated"
	realtimeEventConnected     = "connected"
	realtimeEventHeartbeat     = "heartbeat"
)

// RealtimeMessage is one event delivered to a user's open streams.
type RealtimeMessage struct {
	UserID       string
	EventType    string
	SubmissionID string
	UserPoints   int64
	Updated      int
	Timestamp    time.Time
}

func (m RealtimeMessage) payload() gin.H {
	payload := gin.H{"timestamp_s": m.Timestamp.Unix()}
	switch m.EventType {
	case RealtimeEventPointsAwarded:
		payload["submission_id"] = m.SubmissionID
		payload["user_points"] = m.UserPoints
	case RealtimeEventRanksUpdated:
		payload["updated"] = m.Updated
	}
	return payload
}

type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(userID, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message to the streams of message.UserID. Slow
// subscribers with a full buffer miss the message.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.UserID]
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	deliver(copies, message)
}

// Broadcast delivers the message to every open stream.
func (d *RealtimeDispatcher) Broadcast(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	var copies []*realtimeSubscriber
	for _, subscribers := range d.subscribers {
		for _, subscriber := range subscribers {
			copies = append(copies, subscriber)
		}
	}
	d.mu.RUnlock()
	deliver(copies, message)
}

// PointsAwarded tells the awarded user's streams about their new total.
func (d *RealtimeDispatcher) PointsAwarded(userID, submissionID string, userPoints int64) {
	d.Publish(RealtimeMessage{
		UserID:       userID,
		EventType:    RealtimeEventPointsAwarded,
		SubmissionID: submissionID,
		UserPoints:   userPoints,
		Timestamp:    d.clock().UTC(),
	})
}

// RanksUpdated tells every stream that stored ranks changed.
func (d *RealtimeDispatcher) RanksUpdated(updated int) {
	d.Broadcast(RealtimeMessage{
		EventType: RealtimeEventRanksUpdated,
		Updated:   updated,
		Timestamp: d.clock().UTC(),
	})
}

func deliver(subscribers []*realtimeSubscriber, message RealtimeMessage) {
	for _, subscriber := range subscribers {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(userID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(userID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}
