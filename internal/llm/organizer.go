package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dgnsrekt/tabmark/internal/metrics"
	"github.com/dgnsrekt/tabmark/internal/types"
)

const (
	DefaultSingleLimit = 30
	DefaultBatchSize   = 25
)

// Completer performs one prompt/response exchange.
type Completer interface {
	Complete(ctx context.Context, token types.Token, prompt string) (string, error)
}

// Organizer turns tab records into an organized markdown body, either in one
// request or in sequential batches followed by a merge request.
type Organizer struct {
	llm     Completer
	metrics *metrics.Collector

	SingleLimit int
	BatchSize   int
}

func NewOrganizer(llm Completer, m *metrics.Collector) *Organizer {
	return &Organizer{
		llm:         llm,
		metrics:     m,
		SingleLimit: DefaultSingleLimit,
		BatchSize:   DefaultBatchSize,
	}
}

// Organize returns the organized body. Errors from the single or batch
// requests are returned as ORGANIZER_UNAVAILABLE; a failed merge degrades to
// the concatenated batch outputs.
func (o *Organizer) Organize(ctx context.Context, records []types.TabRecord, token types.Token) (string, error) {
	if len(records) <= o.SingleLimit {
		text, err := o.call(ctx, "single", token, organizationPrompt(records))
		if err != nil {
			return "", unavailable(err)
		}
		return text, nil
	}

	batches := chunk(records, o.BatchSize)
	results := make([]string, 0, len(batches))
	for i, batch := range batches {
		slog.Debug("Organizing batch", "batch", i+1, "batches", len(batches), "tab_count", len(batch))
		text, err := o.call(ctx, "batch", token, batchPrompt(batch, i+1, len(batches)))
		if err != nil {
			return "", unavailable(err)
		}
		results = append(results, text)
	}

	merged, err := o.call(ctx, "merge", token, mergePrompt(results))
	if err != nil || merged == "" {
		slog.Warn("Merge request did not produce a document, joining batch outputs", "error", err)
		return strings.Join(results, mergeFallbackSep), nil
	}
	return merged, nil
}

func (o *Organizer) call(ctx context.Context, kind string, token types.Token, prompt string) (string, error) {
	start := time.Now()
	text, err := o.llm.Complete(ctx, token, prompt)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.metrics.RecordLLMRequest(kind, outcome, time.Since(start))
	return text, err
}

func unavailable(err error) error {
	return types.NewError(types.CodeOrganizerUnavailable, err.Error(), err)
}

func chunk(records []types.TabRecord, size int) [][]types.TabRecord {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]types.TabRecord, 0, (len(records)+size-1)/size)
	for i := 0; i < len(records); i += size {
		end := min(i+size, len(records))
		out = append(out, records[i:end])
	}
	return out
}
