package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultMaxAttempts  = 8
	DefaultInitialDelay = 500 * time.Millisecond
)

// Decision is the outcome of inspecting one thread snapshot.
type Decision int

const (
	DecisionPending Decision = iota
	DecisionCompleted
	DecisionFailed
	DecisionEmpty
	DecisionExhausted
)

func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionCompleted:
		return "completed"
	case DecisionFailed:
		return "failed"
	case DecisionEmpty:
		return "empty"
	case DecisionExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Terminal reports whether polling stops on this decision.
func (d Decision) Terminal() bool {
	return d != DecisionPending
}

var failedStatuses = map[string]bool{
	"FAILED":    true,
	"CANCELLED": true,
	"ERROR":     true,
}

// classify inspects the last message of a thread.
//
//	no message                         -> empty
//	assistant + COMPLETED              -> completed
//	FAILED | CANCELLED | ERROR         -> failed
//	anything else                      -> pending
func classify(messages []threadMessage) Decision {
	if len(messages) == 0 {
		return DecisionEmpty
	}
	last := messages[len(messages)-1]
	status := strings.ToUpper(strings.TrimSpace(last.Status))
	switch {
	case strings.EqualFold(last.Role, "assistant") && status == "COMPLETED":
		return DecisionCompleted
	case failedStatuses[status]:
		return DecisionFailed
	default:
		return DecisionPending
	}
}

// parseContent turns a completed message's content into the tool payload.
// A JSON string is decoded as JSON; an object is used as-is.
func parseContent(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrMalformed)
	}
	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(text), &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if out == nil {
			return nil, fmt.Errorf("%w: content is not an object", ErrMalformed)
		}
		return out, nil
	case '{':
		var out map[string]any
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported content type", ErrMalformed)
	}
}

// PollResult is what polling a thread produced. Payload is nil unless
// Decision is DecisionCompleted.
type PollResult struct {
	Decision Decision
	Attempts int
	Slept    time.Duration
	Payload  map[string]any
}

type SleepFunc func(ctx context.Context, d time.Duration) error

// Poller waits for the assistant to answer on a thread. Only "pending"
// snapshots are retried; transport errors and malformed content end polling.
type Poller struct {
	Client       *Client
	MaxAttempts  int
	InitialDelay time.Duration
	Sleep        SleepFunc
}

func NewPoller(client *Client) *Poller {
	return &Poller{
		Client:       client,
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		Sleep:        sleepContext,
	}
}

func (p *Poller) Poll(ctx context.Context, threadID string) (PollResult, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	delay := p.InitialDelay
	if delay <= 0 {
		delay = DefaultInitialDelay
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := p.Client.logger.With().Str("thread_id", threadID).Logger()

	res := PollResult{}
	for res.Attempts < maxAttempts {
		res.Attempts++
		state, err := p.Client.GetThread(ctx, threadID)
		if err != nil {
			res.Decision = DecisionFailed
			p.Client.metrics.ObservePoll(res.Decision.String(), res.Attempts)
			return res, err
		}

		res.Decision = classify(state.Messages)
		if res.Decision == DecisionCompleted {
			payload, err := parseContent(state.Messages[len(state.Messages)-1].Content)
			if err != nil {
				logger.Error().Err(err).Int("attempt", res.Attempts).Msg("assistant content could not be parsed")
				res.Decision = DecisionFailed
				p.Client.metrics.ObservePoll(res.Decision.String(), res.Attempts)
				return res, err
			}
			res.Payload = payload
			p.Client.metrics.ObservePoll(res.Decision.String(), res.Attempts)
			return res, nil
		}
		if res.Decision.Terminal() {
			logger.Warn().Str("decision", res.Decision.String()).Int("attempt", res.Attempts).Msg("thread has no usable answer")
			p.Client.metrics.ObservePoll(res.Decision.String(), res.Attempts)
			return res, nil
		}

		logger.Debug().Int("attempt", res.Attempts).Dur("delay", delay).Msg("assistant still working")
		if err := sleep(ctx, delay); err != nil {
			res.Decision = DecisionFailed
			p.Client.metrics.ObservePoll(res.Decision.String(), res.Attempts)
			return res, err
		}
		res.Slept += delay
		delay *= 2
	}

	res.Decision = DecisionExhausted
	logger.Warn().Int("attempts", res.Attempts).Dur("waited", res.Slept).Msg("gave up waiting for assistant")
	p.Client.metrics.ObservePoll(res.Decision.String(), res.Attempts)
	return res, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
