package app

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/allsafeASM/rulegen/internal/common"
	"github.com/allsafeASM/rulegen/internal/models"
)

// StdoutSink writes rules as JSON lines
type StdoutSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdoutSink creates a sink writing to w
func NewStdoutSink(w io.Writer) *StdoutSink {
	return &StdoutSink{w: w}
}

type ruleLine struct {
	RunID string `json:"run_id"`
	models.Rule
}

// StoreRules writes one JSON object per rule
func (s *StdoutSink) StoreRules(_ context.Context, runID string, rules []models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.w)
	enc.SetEscapeHTML(false)
	for _, rule := range rules {
		if err := enc.Encode(ruleLine{RunID: runID, Rule: rule}); err != nil {
			return common.NewInternalError("failed to write rule", err)
		}
	}
	return nil
}

// Name returns the sink name
func (s *StdoutSink) Name() string {
	return "stdout"
}
