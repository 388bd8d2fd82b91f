package keeper

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/sessionstream/pkg/snapshot"
	"github.com/go-go-golems/sessionstream/pkg/transport"
)

const correlationIDKey = "correlation_id"

// Service is the long-running execution unit. It consumes command messages
// from the backend, drives the manager, and publishes replies and the
// periodic poll signal. The application layer and the service share no
// memory; the backend's topics are the entire contract between them.
type Service struct {
	cfg     Config
	backend transport.Backend
	manager *Manager

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewService builds the manager with the scheduler's poll signal wired to the
// poll topic.
func NewService(ctx context.Context, cfg Config, backend transport.Backend, guarantee ExecutionGuarantee, indicator Indicator, store snapshot.Store) (*Service, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{cfg: cfg, backend: backend}
	s.manager = NewManager(ctx, cfg, guarantee, indicator, store, s.publishPollSignal)
	return s, nil
}

func (s *Service) Manager() *Manager {
	if s == nil {
		return nil
	}
	return s.manager
}

// Start subscribes to the command topic and begins the consume loop. Starting
// twice is a no-op.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	ch, err := s.backend.Subscriber().Subscribe(runCtx, s.cfg.CommandTopic)
	if err != nil {
		s.Stop()
		return err
	}
	go s.consume(runCtx, ch)
	return nil
}

func (s *Service) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.running = false
	s.mu.Unlock()
}

// Close tears everything down in order: scheduler and guarantee (via the
// manager), then the consume loop, then the transport. Each step is
// idempotent so cleanup can run from a partially-initialized state.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	if s.manager != nil {
		if err := s.manager.Close(); err != nil {
			log.Warn().Err(err).Str("component", "keeper").Msg("manager close failed")
		}
	}
	s.Stop()
	if s.backend != nil {
		return s.backend.Close()
	}
	return nil
}

func (s *Service) consume(ctx context.Context, ch <-chan *message.Message) {
	log.Info().Str("component", "keeper").Str("topic", s.cfg.CommandTopic).Msg("command loop started")
	// One message handled to completion at a time; this loop is the only
	// thing that mutates the manager.
	for msg := range ch {
		reply := s.handle(ctx, msg)
		s.publishReply(msg, reply)
		msg.Ack()
	}
	log.Info().Str("component", "keeper").Msg("command loop stopped")
}

func (s *Service) handle(ctx context.Context, msg *message.Message) CommandReply {
	var env CommandEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		log.Warn().Err(err).Str("component", "keeper").Msg("failed to decode command envelope")
		return CommandReply{OK: false, Code: ReplyCodeValidation, Error: "malformed command payload"}
	}

	switch env.Command {
	case CommandStartExecution:
		return replyForErr(s.manager.StartExecution(ctx, env.SessionIDs))
	case CommandStopExecution:
		return replyForErr(s.manager.StopExecution(ctx, env.SessionIDs))
	case CommandKeepAlive:
		return replyForErr(s.manager.KeepAlive(ctx))
	case CommandSaveStates:
		return replyForErr(s.manager.SaveStates(ctx, env.Entries, env.Reason))
	case CommandRecoverStates:
		entries, err := s.manager.RecoverStates(ctx)
		if err != nil {
			return CommandReply{OK: false, Code: ReplyCodeInternal, Error: err.Error()}
		}
		return CommandReply{OK: true, Entries: entries}
	default:
		// Unknown commands are answered, not logged as errors.
		return CommandReply{OK: false, Code: ReplyCodeNotImplemented, Error: "not implemented: " + env.Command}
	}
}

func replyForErr(err error) CommandReply {
	if err == nil {
		return CommandReply{OK: true}
	}
	if IsValidationError(err) {
		return CommandReply{OK: false, Code: ReplyCodeValidation, Error: err.Error()}
	}
	return CommandReply{OK: false, Code: ReplyCodeInternal, Error: err.Error()}
}

func (s *Service) publishReply(cmd *message.Message, reply CommandReply) {
	payload, err := json.Marshal(reply)
	if err != nil {
		log.Error().Err(err).Str("component", "keeper").Msg("failed to encode reply")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(correlationIDKey, correlationID(cmd))
	if err := s.backend.Publisher().Publish(s.cfg.ReplyTopic, msg); err != nil {
		log.Warn().Err(err).Str("component", "keeper").Msg("failed to publish reply")
	}
}

func (s *Service) publishPollSignal() {
	msg := message.NewMessage(watermill.NewUUID(), []byte(`{}`))
	msg.Metadata.Set("signal", SignalPollStreams)
	if err := s.backend.Publisher().Publish(s.cfg.PollTopic, msg); err != nil {
		log.Warn().Err(err).Str("component", "keeper").Msg("failed to publish poll signal")
	}
}

func correlationID(msg *message.Message) string {
	if msg != nil {
		if id := msg.Metadata.Get(correlationIDKey); id != "" {
			return id
		}
		if msg.UUID != "" {
			return msg.UUID
		}
	}
	return uuid.NewString()
}
