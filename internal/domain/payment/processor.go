package payment

import "context"

// Input is the opaque verdict-producing material forwarded from the client.
// The core never interprets it beyond the processor's verdict.
type Input struct {
	Approved  bool
	Reference string
}

type Verdict struct {
	Approved  bool
	Reference string
}

// Processor is the external payment collaborator. Authorize is called before
// any stock-affecting critical section and no lock is held across it.
type Processor interface {
	Authorize(ctx context.Context, userID string, input Input) (Verdict, error)
}
