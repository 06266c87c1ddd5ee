package di

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"TradeDeck/internal/adapter/consensus"
	"TradeDeck/internal/adapter/httppoll"
	"TradeDeck/internal/adapter/logstream"
	"TradeDeck/internal/adapter/redismirror"
	"TradeDeck/internal/broadcast"
	"TradeDeck/internal/derive"
	"TradeDeck/internal/domain/repository"
	"TradeDeck/internal/handler/api"
	"TradeDeck/internal/health"
	"TradeDeck/internal/ingest"
	"TradeDeck/internal/state"
	"TradeDeck/internal/transport"
	"TradeDeck/internal/usecase"
	"TradeDeck/pkg/config"
	xhttp "TradeDeck/pkg/http"
	applogger "TradeDeck/pkg/logger"
	"TradeDeck/pkg/metrics"
	"TradeDeck/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideEngine creates the derived metrics engine.
func ProvideEngine(cfg *config.Config) *derive.Engine {
	return derive.NewEngine(cfg.AllocationsBySource(), cfg.SourceIDs(), cfg.Aggregator.StalenessThreshold)
}

// ProvideStore creates the state store.
func ProvideStore(log *applogger.Logger, m repository.Metrics, engine *derive.Engine, cfg *config.Config) *state.Store {
	return state.NewStore(log, m, engine, state.WithCapacity(cfg.Aggregator.BufferCapacity))
}

// ProvideBroadcaster creates the snapshot broadcaster.
func ProvideBroadcaster(log *applogger.Logger) *broadcast.Broadcaster {
	return broadcast.New(log)
}

// ProvideAggregator creates the serialized apply pipeline.
func ProvideAggregator(log *applogger.Logger, store *state.Store, bcast *broadcast.Broadcaster, cfg *config.Config) *usecase.Aggregator {
	return usecase.NewAggregator(log, store, bcast, cfg.Aggregator.QueueSize)
}

// ProvideMonitor creates the health monitor, emitting into the apply queue.
func ProvideMonitor(log *applogger.Logger, agg *usecase.Aggregator, cfg *config.Config) *health.Monitor {
	opts := make([]health.MonitorOption, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		opts = append(opts, health.WithThreshold(s.ID, s.FailureThreshold))
	}
	return health.NewMonitor(log, agg.Emit, opts...)
}

// ProvideNormalizer creates the ingest normalizer.
func ProvideNormalizer(log *applogger.Logger, m repository.Metrics) *ingest.Normalizer {
	return ingest.NewNormalizer(log, m)
}

// ProvideManager creates the transport manager.
func ProvideManager(log *applogger.Logger, m repository.Metrics, norm *ingest.Normalizer, monitor *health.Monitor, agg *usecase.Aggregator, cfg *config.Config) *transport.Manager {
	return transport.NewManager(log, m, norm, monitor, agg.Queue(),
		transport.WithBackoff(cfg.Aggregator.BackoffBase, cfg.Aggregator.BackoffCap),
		transport.WithMaxPending(cfg.Aggregator.MaxPending),
	)
}

// ProvideAdapters builds one adapter per configured source.
func ProvideAdapters(cfg *config.Config) ([]repository.Adapter, error) {
	adapters := make([]repository.Adapter, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		switch {
		case s.Kind == "consensus" && len(s.Brokers) > 0:
			var opts []consensus.ClientOption
			if s.GroupID != "" {
				opts = append(opts, consensus.WithGroupID(s.GroupID))
			}
			adapters = append(adapters, consensus.New(s.ID, s.Brokers, s.Topic, opts...))
		case s.Kind == "logs" && s.Mode == "stream":
			adapters = append(adapters, logstream.New(s.ID, s.URL))
		case s.Mode == "poll":
			kind, err := payloadKind(s.Kind)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", s.ID, err)
			}
			var opts []httppoll.PollerOption
			if s.Kind == "trade_history" {
				adapters = append(adapters, httppoll.NewHistory(s.ID, s.URL, s.PollInterval, s.HistoryLimit, opts...))
				continue
			}
			adapters = append(adapters, httppoll.New(s.ID, kind, s.URL, s.PollInterval, opts...))
		default:
			return nil, fmt.Errorf("source %s: unsupported kind/mode %s/%s", s.ID, s.Kind, s.Mode)
		}
	}
	return adapters, nil
}

func payloadKind(kind string) (repository.PayloadKind, error) {
	switch kind {
	case "platform_status":
		return repository.PayloadPlatformStatus, nil
	case "trade_history":
		return repository.PayloadTradeHistory, nil
	case "positions":
		return repository.PayloadPositions, nil
	case "logs":
		return repository.PayloadLogs, nil
	case "consensus":
		return repository.PayloadConsensus, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", kind)
	}
}

// ProvideMirror creates the optional Redis snapshot mirror. Returns nil when disabled.
func ProvideMirror(log *applogger.Logger, cfg *config.Config) *redismirror.Mirror {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return redismirror.New(log, client, cfg.Redis.Key, cfg.Redis.Channel)
}

// ProvideHandler creates the snapshot API handler.
func ProvideHandler(log *applogger.Logger, store *state.Store, manager *transport.Manager, bcast *broadcast.Broadcaster) *api.SnapshotHandler {
	return api.NewSnapshotHandler(log, store, manager, bcast)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, log *applogger.Logger, handler *api.SnapshotHandler) *xhttp.Server {
	return xhttp.NewServer(log, handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	agg *usecase.Aggregator,
	manager *transport.Manager,
	bcast *broadcast.Broadcaster,
	adapters []repository.Adapter,
	httpServer *xhttp.Server,
	mirror *redismirror.Mirror,
) *server.App {
	return server.New(cfg, log, agg, manager, bcast, adapters, httpServer, mirror)
}
