package ports

// Notifier defines the interface for sending notifications to external systems
type Notifier interface {
	// NotifyNewAdvisories sends notification for advisories found by live discovery
	NotifyNewAdvisories(advisories []AdvisoryNotification) error

	// NotifyIngestionSummary sends notification once an update run completes
	NotifyIngestionSummary(summary IngestionNotification) error
}

// Notification data structures

type AdvisoryNotification struct {
	AdvisoryID string
	Title      string
	URL        string
}

type IngestionNotification struct {
	Advisories int
	IOCsStored int
	BySource   map[string]int
	Failures   []string
}
