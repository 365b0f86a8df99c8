package solana

import "context"

// LogStream subscribes to program log notifications over the RPC WebSocket.
type LogStream interface {
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)
	Close() error
}

// LogsFilter selects transactions mentioning any of the listed accounts.
// An empty filter subscribes to all non-vote transactions.
type LogsFilter struct {
	Mentions []string
}

// LogNotification is one logsNotification message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}

// Failed reports whether the notified transaction errored on chain.
func (n LogNotification) Failed() bool {
	return n.Err != nil
}
