package providers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/richtext"
)

// Fields are JMESPath expressions locating record attributes in a list response.
// Items is evaluated against the whole body, the rest against each item. Empty expressions are skipped.
type Fields struct {
	Items       string
	ID          string
	Title       string
	Body        string
	BodyFormat  string
	Completed   string
	CompletedAt string
	Due         string
	Start       string
	End         string
	URL         string
	Assignee    string
	Creator     string
	Project     string

	// Format applies when BodyFormat is empty or yields an unknown value.
	Format richtext.Format
}

// Extract evaluates f against a decoded response body. Only a body without a readable item list is an error;
// an item that fails to evaluate comes back with Invalid set so the pass can skip it alone.
func (b *Base) Extract(data any, f Fields) ([]models.RemoteRecord, error) {
	items, err := b.deps.Evaluator.EvaluateSlice(f.Items, data)
	if err != nil {
		return nil, err
	}

	records := make([]models.RemoteRecord, 0, len(items))
	for _, item := range items {
		record, err := b.extractOne(item, f)
		if err != nil {
			record = models.RemoteRecord{
				ID:       record.ID,
				Metadata: metadataOf(item),
				Invalid:  fmt.Errorf("%w: %s item %q: %w", ErrInvalidRecord, b.opts.Provider, record.ID, err),
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func (b *Base) extractOne(item any, f Fields) (models.RemoteRecord, error) {
	eval := b.deps.Evaluator
	str := func(expr string) (string, error) {
		if expr == "" {
			return "", nil
		}
		return eval.EvaluateString(expr, item)
	}
	at := func(expr string) (*time.Time, error) {
		if expr == "" {
			return nil, nil
		}
		v, err := eval.Evaluate(expr, item)
		if err != nil {
			return nil, err
		}
		return ParseTime(v), nil
	}

	var (
		record models.RemoteRecord
		err    error
	)
	if record.ID, err = str(f.ID); err != nil {
		return record, err
	}
	if record.Title, err = str(f.Title); err != nil {
		return record, err
	}
	if record.Body, err = str(f.Body); err != nil {
		return record, err
	}
	format, err := str(f.BodyFormat)
	if err != nil {
		return record, err
	}
	record.BodyFormat = formatOf(format, f.Format)

	if f.Completed != "" {
		if record.Completed, err = eval.EvaluateBool(f.Completed, item); err != nil {
			return record, err
		}
	}
	if record.CompletedAt, err = at(f.CompletedAt); err != nil {
		return record, err
	}
	if record.DueAt, err = at(f.Due); err != nil {
		return record, err
	}
	if record.StartAt, err = at(f.Start); err != nil {
		return record, err
	}
	if record.EndAt, err = at(f.End); err != nil {
		return record, err
	}
	if record.URL, err = str(f.URL); err != nil {
		return record, err
	}
	if record.Assignee, err = str(f.Assignee); err != nil {
		return record, err
	}
	if record.Creator, err = str(f.Creator); err != nil {
		return record, err
	}
	if record.ProjectID, err = str(f.Project); err != nil {
		return record, err
	}

	record.Metadata = metadataOf(item)
	return record, nil
}

func metadataOf(item any) map[string]any {
	if m, ok := item.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": item}
}

func formatOf(value string, fallback richtext.Format) richtext.Format {
	switch strings.ToLower(value) {
	case "html":
		return richtext.FormatHTML
	case "markdown", "md":
		return richtext.FormatMarkdown
	case "text", "plain":
		return richtext.FormatPlain
	}
	if fallback == "" {
		return richtext.FormatPlain
	}
	return fallback
}

// Fractional seconds are accepted after any seconds field.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700", // TickTick
	"2006-01-02T15:04:05",      // Microsoft Graph dateTimeTimeZone, requested in UTC
	"2006-01-02",
}

// ParseTime reads the timestamp shapes providers send: RFC 3339, zone-less date-times (taken as UTC),
// plain dates, and unix epochs in seconds or milliseconds (as numbers or digit strings).
func ParseTime(v any) *time.Time {
	switch value := v.(type) {
	case nil:
		return nil
	case float64:
		return fromEpoch(int64(value))
	case string:
		value = strings.TrimSpace(value)
		if value == "" {
			return nil
		}
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return fromEpoch(n)
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				t = t.UTC()
				return &t
			}
		}
		return nil
	default:
		return ParseTime(fmt.Sprint(value))
	}
}

func fromEpoch(n int64) *time.Time {
	if n <= 0 {
		return nil
	}
	var t time.Time
	if n > 1e11 {
		t = time.UnixMilli(n).UTC()
	} else {
		t = time.Unix(n, 0).UTC()
	}
	return &t
}
