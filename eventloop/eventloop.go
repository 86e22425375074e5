// Package eventloop provides an event loop that dispatches typed events to
// registered handlers. The engine's components communicate through it:
// lifecycle transitions are added as events, and observers such as the
// metrics aggregator and the audit log react to them.
package eventloop

import (
	"context"
	"reflect"
	"sync"
	"time"
)

// EventHandler processes an event.
type EventHandler func(event any)

type handlerOpts struct {
	runInAddEvent bool
	priority      bool
}

// HandlerOption sets configuration options for event handlers.
type HandlerOption func(*handlerOpts)

// Prioritize instructs the event loop to run the handler before handlers
// that do not have priority. Use it only when a handler must observe an
// event before the others.
func Prioritize() HandlerOption {
	return func(ho *handlerOpts) {
		ho.priority = true
	}
}

// UnsafeRunInAddEvent instructs the event loop to run the handler as part of
// AddEvent. Because AddEvent may be called outside the event loop goroutine,
// only thread-safe handlers may use this option.
func UnsafeRunInAddEvent() HandlerOption {
	return func(ho *handlerOpts) {
		ho.runInAddEvent = true
	}
}

type handler struct {
	callback EventHandler
	opts     handlerOpts
}

type ticker struct {
	interval time.Duration
	callback func(time.Time) any
	cancel   context.CancelFunc
}

type startTickerEvent struct {
	tickerID int
}

// EventLoop accepts events of any type and executes the handlers registered
// for each event's type.
type EventLoop struct {
	eventQ queue

	mut sync.Mutex // protects the following:

	ctx context.Context // set by Run

	handlers map[reflect.Type][]handler

	tickers  map[int]*ticker
	tickerID int
}

// New returns a new event loop with the requested buffer size.
func New(bufferSize uint) *EventLoop {
	return &EventLoop{
		ctx:      context.Background(),
		eventQ:   newQueue(bufferSize),
		handlers: make(map[reflect.Type][]handler),
		tickers:  make(map[int]*ticker),
	}
}

// RegisterHandler registers the given event handler for the given event type
// with the given handler options, if any. eventType should be the zero value
// of the event type. The returned id can be used to unregister the handler.
func (el *EventLoop) RegisterHandler(eventType any, callback EventHandler, opts ...HandlerOption) int {
	h := handler{callback: callback}
	for _, opt := range opts {
		opt(&h.opts)
	}

	el.mut.Lock()
	defer el.mut.Unlock()
	t := reflect.TypeOf(eventType)
	handlers := el.handlers[t]

	// search for a free slot for the handler
	i := 0
	for ; i < len(handlers); i++ {
		if handlers[i].callback == nil {
			break
		}
	}

	if i == len(handlers) {
		handlers = append(handlers, h)
	} else {
		handlers[i] = h
	}

	el.handlers[t] = handlers
	return i
}

// RegisterObserver registers a handler with priority.
func (el *EventLoop) RegisterObserver(eventType any, callback EventHandler) int {
	return el.RegisterHandler(eventType, callback, Prioritize())
}

// UnregisterHandler unregisters the handler for the given event type with
// the given id.
func (el *EventLoop) UnregisterHandler(eventType any, id int) {
	el.mut.Lock()
	defer el.mut.Unlock()
	el.handlers[reflect.TypeOf(eventType)][id].callback = nil
}

// AddEvent adds an event to the event queue.
func (el *EventLoop) AddEvent(event any) {
	if event != nil {
		// run handlers with the runInAddEvent option
		el.processEvent(event, true)
		el.eventQ.push(event)
	}
}

// Context returns the context associated with the event loop, which is the
// context last passed to Run or Tick, or context.Background before either
// has been called.
func (el *EventLoop) Context() context.Context {
	el.mut.Lock()
	defer el.mut.Unlock()
	return el.ctx
}

func (el *EventLoop) setContext(ctx context.Context) {
	el.mut.Lock()
	defer el.mut.Unlock()
	el.ctx = ctx
}

// Run runs the event loop until the context is cancelled. Events remaining
// in the queue at cancellation time are processed before Run returns.
func (el *EventLoop) Run(ctx context.Context) {
	el.setContext(ctx)

loop:
	for {
		event, ok := el.eventQ.pop()
		if !ok {
			select {
			case <-el.eventQ.ready():
				continue loop
			case <-ctx.Done():
				break loop
			}
		}
		if e, ok := event.(startTickerEvent); ok {
			el.startTicker(e.tickerID)
			continue
		}
		el.processEvent(event, false)
	}

	l := el.eventQ.len()
	for i := 0; i < l; i++ {
		event, _ := el.eventQ.pop()
		el.processEvent(event, false)
	}
}

// Tick processes a single event. It returns true if an event was handled.
func (el *EventLoop) Tick(ctx context.Context) bool {
	el.setContext(ctx)

	event, ok := el.eventQ.pop()
	if !ok {
		return false
	}

	if e, ok := event.(startTickerEvent); ok {
		el.startTicker(e.tickerID)
	} else {
		el.processEvent(event, false)
	}

	return true
}

// processEvent dispatches the event to the correct handlers.
func (el *EventLoop) processEvent(event any, runningInAddEvent bool) {
	t := reflect.TypeOf(event)

	// Handlers are copied out so that they run after the mutex is released.
	// Few handlers are registered per event type, so this stays cheap.
	var priorityList, handlerList []EventHandler

	el.mut.Lock()
	for _, handler := range el.handlers[t] {
		if handler.opts.runInAddEvent != runningInAddEvent || handler.callback == nil {
			continue
		}
		if handler.opts.priority {
			priorityList = append(priorityList, handler.callback)
		} else {
			handlerList = append(handlerList, handler.callback)
		}
	}
	el.mut.Unlock()

	for _, callback := range priorityList {
		callback(event)
	}
	for _, callback := range handlerList {
		callback(event)
	}
}

// AddTicker adds a ticker with the specified interval and returns the ticker
// id. The ticker calls callback at each interval and adds the returned event
// to the queue. It does not start before the event loop is running, and it
// inherits the event loop's context.
func (el *EventLoop) AddTicker(interval time.Duration, callback func(tick time.Time) (event any)) int {
	el.mut.Lock()

	id := el.tickerID
	el.tickerID++

	el.tickers[id] = &ticker{
		interval: interval,
		callback: callback,
		cancel:   func() {}, // replaced when the ticker starts
	}

	el.mut.Unlock()

	// The ticker must inherit the event loop's context, so it is started
	// from the run loop.
	el.eventQ.push(startTickerEvent{id})

	return id
}

// RemoveTicker removes the ticker with the given id, reporting whether a
// ticker with that id existed.
func (el *EventLoop) RemoveTicker(id int) bool {
	el.mut.Lock()
	defer el.mut.Unlock()

	ticker, ok := el.tickers[id]
	if !ok {
		return false
	}
	ticker.cancel()
	delete(el.tickers, id)
	return true
}

func (el *EventLoop) startTicker(id int) {
	// hold the mutex so the ticker cannot be removed before it has started
	el.mut.Lock()
	defer el.mut.Unlock()
	ticker, ok := el.tickers[id]
	if !ok {
		return
	}
	ctx := el.ctx
	ctx, ticker.cancel = context.WithCancel(ctx)
	go el.runTicker(ctx, ticker)
}

func (el *EventLoop) runTicker(ctx context.Context, ticker *ticker) {
	t := time.NewTicker(ticker.interval)
	defer t.Stop()

	if ctx.Err() != nil {
		return
	}

	for {
		select {
		case tick := <-t.C:
			el.AddEvent(ticker.callback(tick))
		case <-ctx.Done():
			return
		}
	}
}
