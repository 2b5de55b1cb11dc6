package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"

	"github.com/dhcgn/imap-reader/message"
	"github.com/dhcgn/imap-reader/model"
)

type Op string

const (
	OpStructure Op = "structure"
	OpHeader    Op = "header"
	OpBody      Op = "body"
	OpOverview  Op = "overview"
	OpRepair    Op = "repair"
)

type Event struct {
	Op    Op
	UID   imapv2.UID
	Path  string
	Bytes int
	Err   error
}

type Summary struct {
	Structures int
	Headers    int
	Bodies     int
	Overviews  int
	Repairs    int
	Bytes      int64
	Errors     int
	LastError  error
}

// Fetches is the number of session round trips recorded.
func (s Summary) Fetches() int {
	return s.Structures + s.Headers + s.Bodies + s.Overviews
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"structures", s.Structures,
		"headers", s.Headers,
		"bodies", s.Bodies,
		"overviews", s.Overviews,
		"repairs", s.Repairs,
		"bytes", s.Bytes,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) Record(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Op {
	case OpStructure:
		c.summary.Structures++
	case OpHeader:
		c.summary.Headers++
	case OpBody:
		c.summary.Bodies++
	case OpOverview:
		c.summary.Overviews++
	case OpRepair:
		c.summary.Repairs++
	}
	c.summary.Bytes += int64(evt.Bytes)
	if evt.Err != nil {
		c.summary.Errors++
		c.summary.LastError = evt.Err
	}
}

// RepairHook returns a message.Options.OnRepair callback that counts
// repaired structures.
func (c *Collector) RepairHook() func(uid imapv2.UID, reported, reconstructed int) {
	return func(uid imapv2.UID, reported, reconstructed int) {
		c.Record(Event{Op: OpRepair, UID: uid})
	}
}

// Counting wraps a session and records every fetch in a Collector.
type Counting struct {
	message.Session
	collector *Collector
}

func NewCounting(s message.Session, c *Collector) *Counting {
	return &Counting{Session: s, collector: c}
}

func (s *Counting) FetchStructure(ctx context.Context, uid imapv2.UID) (imapv2.BodyStructure, error) {
	bs, err := s.Session.FetchStructure(ctx, uid)
	s.collector.Record(Event{Op: OpStructure, UID: uid, Err: err})
	return bs, err
}

func (s *Counting) FetchHeader(ctx context.Context, uid imapv2.UID) ([]byte, error) {
	header, err := s.Session.FetchHeader(ctx, uid)
	s.collector.Record(Event{Op: OpHeader, UID: uid, Bytes: len(header), Err: err})
	return header, err
}

func (s *Counting) FetchBody(ctx context.Context, uid imapv2.UID, path string) ([]byte, error) {
	body, err := s.Session.FetchBody(ctx, uid, path)
	s.collector.Record(Event{Op: OpBody, UID: uid, Path: path, Bytes: len(body), Err: err})
	return body, err
}

func (s *Counting) FetchOverview(ctx context.Context, uid imapv2.UID) (model.Overview, error) {
	ov, err := s.Session.FetchOverview(ctx, uid)
	s.collector.Record(Event{Op: OpOverview, UID: uid, Err: err})
	return ov, err
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(c *Collector, logger *slog.Logger) *Reporter {
	return &Reporter{
		collector: c,
		logger:    logger,
		started:   time.Now(),
	}
}

// Report logs the summary collected so far.
func (r *Reporter) Report() Summary {
	summary := r.collector.Snapshot()
	if r.logger != nil {
		attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
		r.logger.Debug("fetch summary", attrs...)
	}
	return summary
}
