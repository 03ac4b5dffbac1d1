package room

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Polqt/collabroom/crdt"
	"github.com/Polqt/collabroom/effects"
	"github.com/Polqt/collabroom/history"
	"github.com/Polqt/collabroom/presence"
	"github.com/Polqt/collabroom/pubsub"
)

const (
	defaultThrottleDelay     = 100 * time.Millisecond
	defaultHeartbeatInterval = 30 * time.Second
	defaultPongTimeout       = 2 * time.Second
)

// Room is the client-side state machine for one room: one connection
// FSM, one presence/storage tree, one undo/redo history, and the typed
// subscriptions a caller attaches to them.
//
// Room is not safe for concurrent calls on its public API in the sense
// that two calls never interleave their effects — internally every call
// is serialized onto one goroutine (loop), per SPEC_FULL.md §5, so
// callers don't need their own locking but also can't assume a call
// observes a consistent world unless they account for other goroutines
// calling Room concurrently (exactly like any other library whose
// methods happen to share internal state).
type Room struct {
	opts   Options
	logger *slog.Logger
	eff    effects.Effects

	reg                  *crdt.Registry
	storageLoaded        bool
	storageLoadedWaiters []chan map[string]crdt.SerializedCrdt
	offlineOps           map[string]crdt.Op
	pendingOutboundOps   []crdt.Op
	pendingBroadcasts    []json.RawMessage

	myPresence      presence.Data
	presenceBuffer  *presence.Buffer
	others          map[int64]presence.User
	gotInitial      map[int64]bool          // actor -> has received its initial presence
	pendingPresence map[int64]presence.Data // actor -> patches buffered before gotInitial

	hist     *history.Stacks
	batching atomic.Bool // set for the duration of a Batch callback; checked by Batch/Undo/Redo before exec

	state              ConnState
	socket             effects.Socket
	actor              int64
	hadPriorConnection bool
	backoffAttempt     int
	reconnectTimer     effects.TimerHandle
	heartbeatTimer     effects.TimerHandle
	pongTimer          effects.TimerHandle
	flushTimer         effects.TimerHandle
	awaitingPong       bool
	explicitlyClosed   bool

	connTopic          *pubsub.Topic[ConnState]
	othersTopic        *pubsub.Topic[presence.Others]
	myPresenceTopic    *pubsub.Topic[presence.Data]
	storageStatusTopic *pubsub.Topic[bool]
	eventTopic         *pubsub.Topic[EventPayload]
	errorTopic         *pubsub.Topic[error]
	nodeTopics         map[string]*pubsub.Topic[NodeUpdate]
	deepTopics         map[string]*pubsub.Topic[NodeUpdate]

	cmd    chan func()
	closed chan struct{}
}

// New constructs a Room in ConnClosed state. Call Connect to start the
// connection FSM.
func New(opts Options) *Room {
	if opts.Effects == nil {
		opts.Effects = effects.NewDefaultEffects()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ThrottleDelay <= 0 {
		opts.ThrottleDelay = defaultThrottleDelay
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = defaultPongTimeout
	}

	// instanceID distinguishes this Room's log lines from any other Room
	// connected to the same RoomID (e.g. two tabs, or a test harness that
	// opens a fresh Room per case) since RoomID alone isn't unique enough
	// for log correlation across reconnects.
	instanceID := uuid.NewString()
	logger := opts.Logger.With("room", opts.RoomID, "instance", instanceID)

	reg := crdt.NewRegistry()
	root := crdt.NewObjectNode(reg, "root", crdt.Data{})
	reg.Add(root)
	reg.SetRoot(root.ID())
	if opts.InitialStorage != nil {
		crdt.ApplyDefaults(reg, opts.InitialStorage)
	}

	r := &Room{
		opts:       opts,
		logger:     logger,
		eff:        opts.Effects,
		reg:        reg,
		offlineOps: map[string]crdt.Op{},
		myPresence:      opts.InitialPresence.Clone(),
		others:          map[int64]presence.User{},
		gotInitial:      map[int64]bool{},
		pendingPresence: map[int64]presence.Data{},
		hist:            history.NewStacks(),
		state:           ConnState{Kind: ConnClosed},

		connTopic:          pubsub.NewTopic[ConnState](),
		othersTopic:        pubsub.NewTopic[presence.Others](),
		myPresenceTopic:    pubsub.NewTopic[presence.Data](),
		storageStatusTopic: pubsub.NewTopic[bool](),
		eventTopic:         pubsub.NewTopic[EventPayload](),
		errorTopic:         pubsub.NewTopic[error](),
		nodeTopics:         map[string]*pubsub.Topic[NodeUpdate]{},
		deepTopics:         map[string]*pubsub.Topic[NodeUpdate]{},

		cmd:    make(chan func()),
		closed: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Room) loop() {
	for {
		select {
		case fn := <-r.cmd:
			fn()
		case <-r.closed:
			return
		}
	}
}

// exec runs fn on the loop goroutine and blocks until it returns,
// letting callers read/write Room's internal state from fn without
// racing the connection FSM or message router, which also only ever run
// on loop. A call issued after the room has been destroyed (Shutdown)
// is silently dropped rather than hanging forever.
//
// A panic inside fn (the batching guard of Batch/Undo/Redo, reached
// reentrantly from inside a Batch callback, is the one case that
// deliberately raises one) is recovered on loop and re-raised here on the caller's
// own goroutine instead, so it surfaces as a normal panic at the call
// site rather than crashing the shared loop goroutine out from under
// every other in-flight Room call.
func (r *Room) exec(fn func()) {
	done := make(chan struct{})
	var recovered any
	select {
	case r.cmd <- func() {
		defer func() {
			recovered = recover()
			close(done)
		}()
		fn()
	}:
		<-done
		if recovered != nil {
			panic(recovered)
		}
	case <-r.closed:
	}
}

// Shutdown tears down the room's internal goroutine and any outstanding
// timers/socket. A Room cannot be reused after Shutdown.
func (r *Room) Shutdown() {
	r.exec(func() {
		r.teardownConnection()
	})
	close(r.closed)
}
