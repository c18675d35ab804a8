// Package invoke triggers the next driver invocation for a job without
// waiting for it.
package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Invoker starts a driver invocation for jobID and returns immediately.
type Invoker interface {
	Invoke(ctx context.Context, jobID string) error
}

// HandlerFunc runs one driver invocation.
type HandlerFunc func(ctx context.Context, jobID string)

// Message is the payload carried by queue-based invokers.
type Message struct {
	JobID string `json:"job_id"`
}

// EncodeMessage returns the JSON payload for jobID.
func EncodeMessage(jobID string) ([]byte, error) {
	return json.Marshal(Message{JobID: jobID})
}

// DecodeMessage extracts the job id from a payload. A non-JSON body is
// taken as the bare id.
func DecodeMessage(body []byte) (string, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var m Message
		if err := json.Unmarshal(body, &m); err != nil {
			return "", fmt.Errorf("decoding message: %w", err)
		}
		trimmed = strings.TrimSpace(m.JobID)
	}
	if trimmed == "" {
		return "", fmt.Errorf("message has no job_id")
	}
	return trimmed, nil
}

// Local runs the handler on a new goroutine in this process. The handler
// gets a context detached from the caller's cancellation.
type Local struct {
	Handle HandlerFunc
	wg     sync.WaitGroup
}

func (l *Local) Invoke(ctx context.Context, jobID string) error {
	if l.Handle == nil {
		return fmt.Errorf("local invoker has no handler")
	}
	detached := context.WithoutCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.Handle(detached, jobID)
	}()
	return nil
}

// Wait blocks until every invocation started by l, including ones started
// by those invocations, has returned.
func (l *Local) Wait() {
	l.wg.Wait()
}
