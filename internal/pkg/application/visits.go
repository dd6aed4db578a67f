package application

import (
	"context"
	"fmt"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/workflow"
)

const visitRecordedTopic = "sensor-visit-recorded"

//visitRecorded is published when a technician commits the sensors serviced on a site
type visitRecorded struct {
	workflow.Visit
}

func (v *visitRecorded) ContentType() string {
	return "application/json"
}

func (v *visitRecorded) TopicName() string {
	return visitRecordedTopic
}

//VisitPublisher records committed visits by publishing them on the message bus
type VisitPublisher struct {
	messenger MessagingContext
	log       logging.Logger
}

//NewVisitPublisher publishes visits through messenger
func NewVisitPublisher(messenger MessagingContext, log logging.Logger) *VisitPublisher {
	return &VisitPublisher{messenger: messenger, log: log}
}

//RecordVisit publishes visit on the visit topic
func (p *VisitPublisher) RecordVisit(ctx context.Context, visit workflow.Visit) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.messenger.PublishOnTopic(&visitRecorded{Visit: visit}); err != nil {
		return fmt.Errorf("failed to publish visit %s: %w", visit.ID, err)
	}

	p.log.Debugf("Published visit %s on %s", visit.ID, visitRecordedTopic)
	return nil
}
