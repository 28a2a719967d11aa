package worker

import (
	"context"

	"exchange-service/internal/broker"
	"exchange-service/internal/service"
	"exchange-service/internal/util"

	"go.uber.org/zap"
)

// SettlementWorker consumes negotiation events and settles finished negotiations
type SettlementWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewSettlementWorker creates a new settlement worker
func NewSettlementWorker(consumer *broker.Consumer, settlement *service.Settlement) *SettlementWorker {
	return &SettlementWorker{
		consumer:     consumer,
		eventHandler: NewEventHandler(settlement),
		logger:       util.GetLogger(),
	}
}

// NewEventHandler routes negotiation events to settlement
func NewEventHandler(settlement *service.Settlement) *broker.EventHandler {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnApproved(settlement.HandleApproved)
	eventHandler.OnClosed(settlement.HandleClosed)
	return eventHandler
}

// Start starts the worker
func (w *SettlementWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting settlement worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SettlementWorker) Stop() error {
	w.logger.Info("Stopping settlement worker")
	return w.consumer.Close()
}
