package command

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
)

type ResultKind uint8

const (
	ResultAcknowledged ResultKind = iota + 1
	ResultRejected
	ResultTimeout
	ResultQueued
)

// Result is the single outcome of SendCommand.
// Local=true marks Acknowledged produced by FallbackApplyLocal without vehicle confirmation.
type Result struct {
	Kind   ResultKind
	Reason string
	Local  bool
}

func Acknowledged() Result          { return Result{Kind: ResultAcknowledged} }
func Rejected(reason string) Result { return Result{Kind: ResultRejected, Reason: reason} }
func Timeout() Result               { return Result{Kind: ResultTimeout} }
func Queued() Result                { return Result{Kind: ResultQueued} }
func (r Result) OK() bool           { return r.Kind == ResultAcknowledged }

func (r Result) String() string {
	switch r.Kind {
	case ResultAcknowledged:
		if r.Local {
			return "acknowledged(local)"
		}
		return "acknowledged"
	case ResultRejected:
		return "rejected: " + r.Reason
	case ResultTimeout:
		return "timeout"
	case ResultQueued:
		return "queued"
	}
	return fmt.Sprintf("Result(%d)", r.Kind)
}

// FallbackPolicy decides outcome when command could not reach broker.
type FallbackPolicy uint8

const (
	// Apply command status transition to stored vehicle and report Acknowledged.
	// Operator sees no error during short broker outage, vehicle state may diverge.
	FallbackApplyLocal FallbackPolicy = iota
	// Persist frame in outbox for delivery after reconnect, report Queued.
	FallbackQueue
	// Report Rejected with transport error.
	FallbackReject
)

var fallbackNames = map[FallbackPolicy]string{
	FallbackApplyLocal: "apply_local",
	FallbackQueue:      "queue",
	FallbackReject:     "reject",
}

func (p FallbackPolicy) String() string {
	if s, ok := fallbackNames[p]; ok {
		return s
	}
	return fmt.Sprintf("FallbackPolicy(%d)", p)
}

// ParseFallback empty means FallbackApplyLocal.
func ParseFallback(s string) (FallbackPolicy, error) {
	if s == "" {
		return FallbackApplyLocal, nil
	}
	for p, name := range fallbackNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, errors.NotValidf("command fallback=%s", s)
}
