package config

const (
	// TopicIngestResult is the NSQ topic ingestion run reports are
	// published on when PUBLISH_REPORTS is enabled.
	TopicIngestResult = "ingest.result"
)
