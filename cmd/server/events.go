package main

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"sahyog-sutra/core/domain"
)

var errEventNotFound = errors.New("event not found")

// event é uma campanha de voluntariado. Datas no formato do formulário
// ("2006-01-02" e "15:04"), no fuso do servidor.
type event struct {
	ID          int    `json:"id"`
	Name        string `json:"eventname"`
	Location    string `json:"location"`
	Description string `json:"description"`
	EndDate     string `json:"enddate"`
	EndTime     string `json:"endtime"`
	Email       string `json:"email"`
}

func (e event) candidate() domain.Candidate {
	return domain.Candidate{
		ID:      strconv.Itoa(e.ID),
		EndDate: e.EndDate,
		EndTime: e.EndTime,
		Email:   e.Email,
		Details: "eventname: " + e.Name + "\nlocation: " + e.Location + "\nends: " + e.EndDate + " " + e.EndTime,
	}
}

// eventDB simula o banco de eventos: orientado a conexão e bloqueante.
// Cada operação custa latency, como um round-trip real.
type eventDB struct {
	mu      sync.Mutex
	events  map[int]event
	nextID  int
	latency time.Duration
}

func newEventDB(latency time.Duration) *eventDB {
	return &eventDB{events: make(map[int]event), nextID: 1, latency: latency}
}

// open implementa infra.Opener.
func (db *eventDB) open(ctx context.Context) (*eventConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &eventConn{db: db}, nil
}

type eventConn struct {
	db     *eventDB
	closed bool
}

func (c *eventConn) Close() error {
	if c.closed {
		return errors.New("event conn already closed")
	}
	c.closed = true
	return nil
}

func (c *eventConn) roundTrip() {
	if c.db.latency > 0 {
		time.Sleep(c.db.latency)
	}
}

func (c *eventConn) list() []event {
	c.roundTrip()
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	out := make([]event, 0, len(c.db.events))
	for _, e := range c.db.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *eventConn) count() int {
	c.roundTrip()
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	return len(c.db.events)
}

// countEnded conta eventos já vencidos que o sweep ainda não removeu.
func (c *eventConn) countEnded(now time.Time, loc *time.Location) int {
	c.roundTrip()
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	n := 0
	for _, e := range c.db.events {
		if end, err := e.candidate().EndsAt(loc); err == nil && !end.After(now) {
			n++
		}
	}
	return n
}

func (c *eventConn) insert(e event) event {
	c.roundTrip()
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	e.ID = c.db.nextID
	c.db.nextID++
	c.db.events[e.ID] = e
	return e
}

func (c *eventConn) delete(id int) error {
	c.roundTrip()
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	if _, ok := c.db.events[id]; !ok {
		return errEventNotFound
	}
	delete(c.db.events, id)
	return nil
}

// campaignsView é o que o slot de /campaigns guarda.
type campaignsView struct {
	Events   []event
	LoadedAt time.Time
}
