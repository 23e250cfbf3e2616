package bootstrap

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"triage_server/adapter/in/worker"
	"triage_server/adapter/out/messaging"
	"triage_server/config"
	"triage_server/internal/stream"
	"triage_server/pkg/logger"
)

// Worker runs the reply-processing side: a Redis Streams consumer group
// feeding the in-process worker pool.
type Worker struct {
	pool     *worker.Pool
	consumer *messaging.Consumer
	deps     *Dependencies
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	zlog     zerolog.Logger
}

func NewWorker(cfg *config.Config, deps *Dependencies) *Worker {
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	handler := worker.NewHandler(deps.TriageService, logger.Default())

	poolConfig := worker.DefaultPoolConfig()
	if cfg.WorkerMax > 0 {
		poolConfig.MaxWorkers = cfg.WorkerMax
	}
	if cfg.WorkerQueueSize > 0 {
		poolConfig.QueueSize = cfg.WorkerQueueSize
	}
	if cfg.WorkerRatePerSec > 0 {
		poolConfig.RatePerSecond = cfg.WorkerRatePerSec
	}

	pool := worker.NewPool(handler, poolConfig, zlog)

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		pool:   pool,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		zlog:   zlog,
	}

	// StreamBridge does not ack on pool saturation, so the entry stays
	// pending and is reclaimed later.
	bridge := worker.NewStreamBridge(pool)
	w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
		Group:      cfg.ConsumerGroup,
		Consumer:   cfg.ConsumerID,
		Streams:    []string{stream.StreamReplyEvents},
		Handler:    bridge,
		Logger:     zlog,
		MaxRetries: cfg.ConsumerMaxRetries,
	})

	return w
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pool.Start()
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.zlog.Info().Str("stream", stream.StreamReplyEvents).Msg("starting stream consumer")
		if err := w.consumer.Run(w.ctx); err != nil && err != context.Canceled {
			w.zlog.Error().Err(err).Msg("stream consumer error")
		}
	}()

	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	w.cancel()
	w.pool.Stop()
	w.wg.Wait()
}

func (w *Worker) Submit(msg *worker.Message) bool {
	if msg.IsPriority() {
		return w.pool.SubmitPriority(msg)
	}
	return w.pool.Submit(msg)
}

func (w *Worker) GetMetrics() worker.PoolMetrics {
	return w.pool.GetMetrics()
}
