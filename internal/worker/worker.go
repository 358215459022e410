package worker

import (
	"context"
	"log"

	"inventory-sync/internal/broker"
	"inventory-sync/internal/service"
)

// IngressWorker consumes order-flow events from the broker and feeds them
// into the ledger
type IngressWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	ingress      *service.IngressService
}

// NewIngressWorker creates a new ingress worker
func NewIngressWorker(
	consumer *broker.Consumer,
	ingress *service.IngressService,
) *IngressWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnOrderPlaced(ingress.HandleOrderPlaced)
	eventHandler.OnOrderCancelled(ingress.HandleOrderCancelled)
	eventHandler.OnStockReceived(ingress.HandleStockReceived)

	return &IngressWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		ingress:      ingress,
	}
}

// Start starts the worker
func (w *IngressWorker) Start(ctx context.Context) error {
	log.Println("Starting ingress worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *IngressWorker) Stop() error {
	log.Println("Stopping ingress worker...")
	return w.consumer.Close()
}
