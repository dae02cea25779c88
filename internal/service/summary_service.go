package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"fleetpulse-backend/config"
	"fleetpulse-backend/internal/model"
	"fleetpulse-backend/internal/parser"
	"fleetpulse-backend/internal/repository"
)

// representativeMaxLen bounds the stored representative of a recurring line.
const representativeMaxLen = 200

type SummaryService interface {
	// Summarize computes a summary from raw log text. It never fails;
	// empty or malformed input yields an all-zero summary.
	Summarize(content string) model.LogSummary
	// SummarizeAndStore loads the log, computes its summary and attaches it
	// to the log's metadata under the reserved key. Returns (nil, nil) when
	// the log does not exist.
	SummarizeAndStore(ctx context.Context, logID string) (*model.LogSummary, error)
}

type summaryService struct {
	logRepo repository.LogRepository
	topN    int
}

func NewSummaryService(cfg *config.Config, logRepo repository.LogRepository) SummaryService {
	topN := cfg.Analysis.TopN
	if topN <= 0 {
		topN = 3
	}
	return &summaryService{
		logRepo: logRepo,
		topN:    topN,
	}
}

func (s *summaryService) Summarize(content string) model.LogSummary {
	summary := model.LogSummary{}

	var errorLines, warnLines []string
	for _, line := range strings.Split(content, "\n") {
		switch parser.Classify(line) {
		case parser.LineError:
			summary.ErrorCount++
			errorLines = append(errorLines, line)
		case parser.LineWarning:
			summary.WarnCount++
			warnLines = append(warnLines, line)
		case parser.LineInfo:
			summary.InfoCount++
		case parser.LineNone:
			continue
		}
		summary.LineCount++
	}

	if summary.LineCount > 0 {
		rate := float64(summary.ErrorCount) / float64(summary.LineCount)
		summary.ErrorRate = math.Round(rate*1000) / 1000
	}

	summary.TopErrors = topRecurring(errorLines, parser.Normalize, s.topN)
	summary.TopWarnings = topRecurring(warnLines, func(line string) string { return line }, s.topN)
	summary.Keywords = parser.ExtractKeywords(content)

	if timestamps := parser.ExtractTimestamps(content); len(timestamps) > 0 {
		summary.Timespan = &model.Timespan{
			First: timestamps[0],
			Last:  timestamps[len(timestamps)-1],
		}
	}

	summary.OneLiner = buildOneLiner(summary)
	return summary
}

func (s *summaryService) SummarizeAndStore(ctx context.Context, logID string) (*model.LogSummary, error) {
	entry, err := s.logRepo.GetByID(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("failed to load log %s: %w", logID, err)
	}
	if entry == nil {
		log.Debug().Str("log_id", logID).Msg("Log not found, nothing to summarize")
		return nil, nil
	}

	summary := s.Summarize(entry.Content)
	if err := s.logRepo.MergeMetadata(ctx, logID, model.MetadataSummaryKey, summary); err != nil {
		return nil, fmt.Errorf("failed to attach summary to log %s: %w", logID, err)
	}

	log.Debug().
		Str("log_id", logID).
		Int("lines", summary.LineCount).
		Int("errors", summary.ErrorCount).
		Msg("Summary computed and attached")
	return &summary, nil
}

// topRecurring groups lines by the key function, ranks groups by frequency
// descending (first appearance breaks ties) and returns up to n original
// representatives, truncated to representativeMaxLen.
func topRecurring(lines []string, keyFn func(string) string, n int) []string {
	if len(lines) == 0 {
		return nil
	}

	type group struct {
		representative string
		count          int
		firstSeen      int
	}
	groups := make(map[string]*group)
	order := make([]*group, 0)

	for i, line := range lines {
		key := keyFn(line)
		g, ok := groups[key]
		if !ok {
			g = &group{representative: truncate(line, representativeMaxLen), firstSeen: i}
			groups[key] = g
			order = append(order, g)
		}
		g.count++
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return order[i].firstSeen < order[j].firstSeen
	})

	if len(order) > n {
		order = order[:n]
	}
	top := make([]string, len(order))
	for i, g := range order {
		top[i] = g.representative
	}
	return top
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func buildOneLiner(s model.LogSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d lines", s.LineCount)
	if s.ErrorCount == 0 && s.WarnCount == 0 {
		b.WriteString(". No errors or warnings detected")
		return b.String()
	}
	if s.ErrorCount > 0 {
		fmt.Fprintf(&b, ", %d errors (%.1f%%)", s.ErrorCount, s.ErrorRate*100)
	}
	if s.WarnCount > 0 {
		fmt.Fprintf(&b, ", %d warnings", s.WarnCount)
	}
	if len(s.TopErrors) > 0 {
		fmt.Fprintf(&b, ". Top error: %s", s.TopErrors[0])
	}
	return b.String()
}
