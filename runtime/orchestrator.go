// Package runtime moves commands and events between sessions, the
// worker pool and the sinks. It contains no room rules of its own.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"planet-chat/contract"
	"planet-chat/domain"
	"planet-chat/domain/event"
	"planet-chat/moderation"
	"planet-chat/repositories"
	"planet-chat/runtime/workers"
)

type Orchestrator struct {
	mu              sync.Mutex
	log             *slog.Logger
	numWorkers      int
	permanentSinks  []contract.EventSink
	supervisor      contract.ISupervisor
	registry        contract.IRegistry
	commands        chan domain.Command
	rawEvents       chan event.DomainEvent
	domainEvents    chan event.DomainEvent
	messages        repositories.IMessageRepository
	sinkTimeout     time.Duration
	charReplacement rune
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry contract.IRegistry, messages repositories.IMessageRepository,
	numWorkers, bufferSize int, sinkTimeout time.Duration, charReplacement rune) *Orchestrator {
	return &Orchestrator{
		log:             log,
		numWorkers:      numWorkers,
		supervisor:      supervisor,
		registry:        registry,
		commands:        make(chan domain.Command, bufferSize),
		rawEvents:       make(chan event.DomainEvent, bufferSize),
		domainEvents:    make(chan event.DomainEvent, bufferSize),
		messages:        messages,
		sinkTimeout:     sinkTimeout,
		charReplacement: charReplacement,
	}
}

// Add registers permanent sinks that see every event regardless of
// room membership. Must be called before Start.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Dispatch hands a command to the worker pool. A full channel drops
// the command rather than blocking the caller's session goroutine.
func (o *Orchestrator) Dispatch(cmd domain.Command) {
	select {
	case o.commands <- cmd:
	default:
		o.log.Warn(fmt.Sprintf("Command channel full for room %s, dropping command", cmd.RoomID()))
	}
}

// Publish enqueues an already-formed domain event straight onto the
// fanout, bypassing the censor pass. Used for presence and lifecycle
// events whose payload is not user text.
func (o *Orchestrator) Publish(e event.DomainEvent) {
	select {
	case o.domainEvents <- e:
	default:
		o.log.Warn(fmt.Sprintf("Event channel full for room %s, dropping event", e.RoomID()))
	}
}

func (o *Orchestrator) RegisterParticipant(pID string, roomID domain.RoomID, sink contract.EventSink) {
	o.registry.Subscribe(pID, roomID, sink)
}

func (o *Orchestrator) UnregisterParticipant(pID string, roomID domain.RoomID) {
	o.registry.Unsubscribe(pID, roomID)
}

// Start prepares all workers and then runs the supervisor, blocking
// until shutdown. Heavy setup (dictionary load, automaton build) is
// done outside the lock.
func (o *Orchestrator) Start(ctx context.Context) error {
	poolWorkers := o.preparePoolWorkers()

	censorWorker, err := o.prepareCensor()
	if err != nil {
		return err
	}

	fanoutWorker := o.prepareFanout()

	o.mu.Lock()
	o.supervisor.Add(censorWorker)
	o.supervisor.Add(fanoutWorker)
	for _, w := range poolWorkers {
		o.supervisor.Add(w)
	}
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	return nil
}

func (o *Orchestrator) preparePoolWorkers() []contract.Worker {
	var res []contract.Worker
	for i := 0; i < o.numWorkers; i++ {
		res = append(res, workers.NewPoolUnitWorker(o.commands, o.rawEvents, o.log))
	}
	return res
}

// prepareCensor loads the embedded dictionaries and builds the
// Aho-Corasick automaton once.
func (o *Orchestrator) prepareCensor() (contract.Worker, error) {
	words, err := moderation.LoadEmbedded()
	if err != nil {
		return nil, err
	}
	o.log.Info(fmt.Sprintf("%d censored words loaded", len(words)))

	censor, err := moderation.NewCensor(words, o.charReplacement, o.log)
	if err != nil {
		return nil, err
	}
	return workers.NewCensorWorker(censor, o.rawEvents, o.domainEvents, o.log), nil
}

func (o *Orchestrator) prepareFanout() contract.Worker {
	o.mu.Lock()
	sinks := append([]contract.EventSink{repositories.NewDiskSink(o.messages, o.log)}, o.permanentSinks...)
	o.mu.Unlock()

	return workers.NewEventFanout(o.log, o.registry, o.domainEvents, sinks, o.sinkTimeout)
}

// Stop cancels the supervision context. Workers drain their current
// item and exit; Start returns once all of them are done.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
