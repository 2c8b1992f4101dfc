package rsm

import (
	"context"
	"log/slog"

	"github.com/nordhaven/rsmcore/api"
	"github.com/nordhaven/rsmcore/pkg/logger"
	"github.com/nordhaven/rsmcore/pkg/metrics"
	"github.com/nordhaven/rsmcore/revtable"
)

type hostBuilder struct {
	// required
	name            string
	self            api.PeerID
	initArgs        any
	fsm             api.FSM
	consensus       api.ConsensusServer
	consensusEvents <-chan api.ConsensusEvent
	agent           api.Agent
	bus             api.EventBus
	revTable        *revtable.Table

	// optional with defaults
	cfg     *api.HostConfig
	logger  *slog.Logger
	metrics api.MetricsRecorder
}

// NewHostBuilder mirrors the teacher's NewNodeBuilder: the collaborators
// an RSM Host cannot function without are required constructor
// arguments, everything else defaults and can be overridden with a
// With* call before Build.
func NewHostBuilder(
	name string,
	self api.PeerID,
	initArgs any,
	fsm api.FSM,
	consensus api.ConsensusServer,
	consensusEvents <-chan api.ConsensusEvent,
	agent api.Agent,
	bus api.EventBus,
	revTable *revtable.Table,
) api.HostBuilder {
	return &hostBuilder{
		name:            name,
		self:            self,
		initArgs:        initArgs,
		fsm:             fsm,
		consensus:       consensus,
		consensusEvents: consensusEvents,
		agent:           agent,
		bus:             bus,
		revTable:        revTable,
		cfg:             DefaultConfig(),
	}
}

func (b *hostBuilder) Build() (api.Host, error) {
	ctx, cancel := context.WithCancel(context.Background())

	log := b.logger
	if log == nil {
		log = logger.NewLogger(b.cfg.Log.Env, false).With(slog.String("rsm", b.name))
	}

	rec := b.metrics
	if rec == nil {
		if b.cfg.Metrics.Enabled {
			rec = metrics.NewRecorder()
		} else {
			rec = metrics.Noop{}
		}
	}

	h := &Host{
		name:            b.name,
		self:            b.self,
		initArgs:        b.initArgs,
		fsm:             b.fsm,
		consensus:       b.consensus,
		consensusEvents: b.consensusEvents,
		agent:           b.agent,
		bus:             b.bus,
		revTable:        b.revTable,
		cfg:             b.cfg,
		logger:          log,
		metrics:         rec,
		reqCh:           make(chan hostRequest),
		timerCh:         make(chan syncTimeoutMsg, 8),
		readerCh:        make(chan readerDelivery, 1),
		ctx:             ctx,
		cancel:          cancel,
		pending:         newPendingClients(),
		syncQueue:       newSyncRevisionQueue(),
		leader:          followerState(),
	}
	return h, nil
}

func (b *hostBuilder) WithConfig(cfg *api.HostConfig) api.HostBuilder {
	b.cfg = cfg
	return b
}

func (b *hostBuilder) WithLogger(l *slog.Logger) api.HostBuilder {
	b.logger = l
	return b
}

func (b *hostBuilder) WithMetrics(m api.MetricsRecorder) api.HostBuilder {
	b.metrics = m
	return b
}
