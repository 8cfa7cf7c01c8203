package intake

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Electrostatics/apbs-aws/internal/common"
	"github.com/Electrostatics/apbs-aws/internal/interfaces"
	"github.com/Electrostatics/apbs-aws/internal/models"
)

// Daemon drains object-store notification events from a queue and hands
// each one to the intake handler. Events are deleted only after successful
// processing so transient failures redeliver.
type Daemon struct {
	handler *Handler
	events  interfaces.Queue
	config  *common.Config
	logger  arbor.ILogger
}

func NewDaemon(handler *Handler, events interfaces.Queue, config *common.Config, logger arbor.ILogger) *Daemon {
	return &Daemon{
		handler: handler,
		events:  events,
		config:  config,
		logger:  logger,
	}
}

// Run polls until the context is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info().Msg("Intake daemon started")
	for {
		if err := ctx.Err(); err != nil {
			d.logger.Info().Msg("Intake daemon stopping")
			return err
		}

		msg, err := d.events.Receive(ctx, d.config.Queue.ReceiveTimeout)
		if errors.Is(err, models.ErrNoMessage) {
			d.sleep(ctx)
			continue
		}
		if err != nil {
			d.logger.Warn().Err(err).Msg("Failed to receive notification event")
			d.sleep(ctx)
			continue
		}

		var event models.S3Event
		if err := json.Unmarshal([]byte(msg.Body), &event); err != nil {
			// A malformed event will never parse; drop it.
			d.logger.Error().Err(err).Msg("Discarding undecodable notification event")
			if err := d.events.Delete(ctx, msg); err != nil {
				d.logger.Warn().Err(err).Msg("Failed to delete notification event")
			}
			continue
		}

		if err := d.handler.HandleEvent(ctx, &event); err != nil {
			d.logger.Error().Err(err).Msg("Failed to process notification event")
			continue
		}
		if err := d.events.Delete(ctx, msg); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to delete notification event")
		}
	}
}

func (d *Daemon) sleep(ctx context.Context) {
	retry := time.Duration(d.config.Queue.RetryTime) * time.Second
	select {
	case <-ctx.Done():
	case <-time.After(retry):
	}
}
