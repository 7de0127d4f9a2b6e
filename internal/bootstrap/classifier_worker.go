package bootstrap

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"classifier_server/adapter/in/worker"
	"classifier_server/adapter/out/messaging"
	"classifier_server/config"
	"classifier_server/pkg/logger"
)

type streamConsumer interface {
	Run(ctx context.Context) error
}

// Worker consumes classify and feedback jobs from Redis Streams.
type Worker struct {
	consumer streamConsumer // nil without Redis
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	zlog     zerolog.Logger
}

func NewWorker(cfg *config.Config, deps *Dependencies) *Worker {
	zlog := logger.WithField("component", "worker").Zerolog()

	// Redis Stream Consumer (only with Redis)
	var consumer streamConsumer
	if deps.Redis != nil {
		handler := worker.NewStreamHandler(deps.Classifier, deps.Publisher, logger.WithField("component", "stream-handler"))
		streams := handler.Streams()

		consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
			Group:      cfg.ConsumerGroup,
			Consumer:   cfg.WorkerID,
			Streams:    streams,
			Handler:    handler,
			Logger:     zlog,
			MaxRetries: cfg.ConsumerMaxRetries,
		})
		logger.Info("Redis Stream Consumer configured for %d streams", len(streams))
	} else {
		logger.Warn("Redis not available, worker has nothing to consume")
	}

	return newWorker(consumer, zlog)
}

func newWorker(consumer streamConsumer, zlog zerolog.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		consumer: consumer,
		ctx:      ctx,
		cancel:   cancel,
		zlog:     zlog,
	}
}

// Start blocks until Stop is called and the consumer has returned, so callers
// can release Redis once Start is done.
func (w *Worker) Start() {
	if w.consumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.zlog.Info().Msg("Starting Redis Stream Consumer...")
			if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.zlog.Error().Err(err).Msg("Redis Stream Consumer error")
			}
		}()
	}

	<-w.ctx.Done()
	w.wg.Wait()
}

func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
}
