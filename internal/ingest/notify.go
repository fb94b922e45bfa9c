package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"campusrag/internal/config"
)

// Publisher is the message-queue surface the notifier needs; satisfied
// by *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Notifier publishes run reports to the ingest result topic so anything
// watching the queue can react to corpus updates.
type Notifier struct {
	pub Publisher
}

func NewNotifier(pub Publisher) *Notifier {
	return &Notifier{pub: pub}
}

func (n *Notifier) PublishReport(ctx context.Context, report RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if err := n.pub.Publish(config.TopicIngestResult, payload); err != nil {
		return fmt.Errorf("publish run report: %w", err)
	}
	slog.InfoContext(ctx, "published run report", "topic", config.TopicIngestResult)
	return nil
}
