// internal/historian/historian.go
//
// Package historian drains the game action queue in batches and archives the
// records, marking games abandoned once they stop producing actions.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/scoretracker/internal/cache"
	"github.com/jason-s-yu/scoretracker/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sink is where drained action records end up.
type Sink interface {
	InsertGameActions(ctx context.Context, records []cache.GameActionRecord) error
	MarkGameAbandoned(ctx context.Context, gameID string) error
}

// Options tune the service. Zero values fall back to defaults.
type Options struct {
	QueueName     string
	BatchSize     int
	FlushInterval time.Duration
	Inactivity    time.Duration
	SweepInterval time.Duration
	PopTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueName == "" {
		o.QueueName = cache.DefaultQueueName
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 500 * time.Millisecond
	}
	if o.Inactivity <= 0 {
		o.Inactivity = 10 * time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.PopTimeout <= 0 {
		o.PopTimeout = 3 * time.Second
	}
	return o
}

// gameActivity is what the service knows about one game. Status only follows
// the newest record seen, so a late older record cannot revive a finished game.
type gameActivity struct {
	lastSeen  time.Time
	newestTS  int64
	newestIdx int
	finished  bool
}

func (a *gameActivity) isNewer(rec cache.GameActionRecord) bool {
	if rec.Timestamp != a.newestTS {
		return rec.Timestamp > a.newestTS
	}
	return rec.ActionIndex > a.newestIdx
}

// Service captures game actions from Redis and writes them to the sink.
type Service struct {
	rdb    *redis.Client
	sink   Sink
	opts   Options
	logger *logrus.Logger

	activityMu sync.Mutex
	activity   map[string]*gameActivity

	batchMu sync.Mutex
	batch   []cache.GameActionRecord

	now func() time.Time
}

// New builds a Service. logger may be nil.
func New(rdb *redis.Client, sink Sink, opts Options, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	opts = opts.withDefaults()
	return &Service{
		rdb:      rdb,
		sink:     sink,
		opts:     opts,
		logger:   logger,
		activity: make(map[string]*gameActivity),
		batch:    make([]cache.GameActionRecord, 0, opts.BatchSize),
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled, then flushes whatever is still buffered.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.readLoop(ctx) }()
	go func() { defer wg.Done(); s.flushLoop(ctx) }()
	go func() { defer wg.Done(); s.inactivityLoop(ctx) }()

	s.logger.Infof("historian started on queue %s", s.opts.QueueName)
	<-ctx.Done()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(shutdownCtx)
	s.logger.Info("historian shutting down")
}

// readLoop uses BLPop so cancellation is noticed at least every PopTimeout.
func (s *Service) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := s.rdb.BLPop(ctx, s.opts.PopTimeout, s.opts.QueueName).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.logger.Errorf("BLPop: %v", err)
			time.Sleep(s.opts.FlushInterval)
			continue
		}
		// res[0] is the queue name, res[1] the payload
		if len(res) < 2 {
			continue
		}
		s.handlePayload(ctx, res[1])
	}
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

func (s *Service) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepInactive(ctx)
		}
	}
}

// handlePayload decodes one queue entry and buffers it.
func (s *Service) handlePayload(ctx context.Context, payload string) {
	var record cache.GameActionRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		s.logger.Warnf("invalid action record: %v", err)
		return
	}
	if record.GameID == "" {
		s.logger.Warn("action record without game id")
		return
	}

	s.trackActivity(record)

	if s.appendToBatch(record) {
		s.Flush(ctx)
	}
}

// appendToBatch reports whether the batch is now full.
func (s *Service) appendToBatch(record cache.GameActionRecord) bool {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.batch = append(s.batch, record)
	return len(s.batch) >= s.opts.BatchSize
}

// Flush writes the buffered records in one call to the sink. A failed batch is
// put back at the front of the buffer for the next attempt.
func (s *Service) Flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	pending := make([]cache.GameActionRecord, len(s.batch))
	copy(pending, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	if err := s.sink.InsertGameActions(ctx, pending); err != nil {
		s.logger.Errorf("flush %d actions: %v", len(pending), err)
		s.batchMu.Lock()
		s.batch = append(pending, s.batch...)
		s.batchMu.Unlock()
		return
	}
	s.logger.Debugf("flushed %d actions", len(pending))
}

// trackActivity refreshes the game's idle clock and, for the newest record,
// whether the game is finished.
func (s *Service) trackActivity(record cache.GameActionRecord) {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()

	a, ok := s.activity[record.GameID]
	if !ok {
		a = &gameActivity{}
		s.activity[record.GameID] = a
	}
	a.lastSeen = s.now()
	if ok && !a.isNewer(record) {
		return
	}
	a.newestTS, a.newestIdx = record.Timestamp, record.ActionIndex
	status, _ := record.ActionPayload["status"].(string)
	a.finished = status == string(models.StatusFinished)
}

// SweepInactive marks every unfinished game idle for longer than the
// inactivity window as abandoned. Idle finished games are just forgotten.
func (s *Service) SweepInactive(ctx context.Context) {
	now := s.now()
	var stale []string

	s.activityMu.Lock()
	for gameID, a := range s.activity {
		if now.Sub(a.lastSeen) <= s.opts.Inactivity {
			continue
		}
		if a.finished {
			delete(s.activity, gameID)
			continue
		}
		stale = append(stale, gameID)
	}
	s.activityMu.Unlock()

	for _, gameID := range stale {
		if err := s.sink.MarkGameAbandoned(ctx, gameID); err != nil {
			s.logger.Warnf("failed to mark game %s abandoned: %v", gameID, err)
			continue
		}
		s.logger.Infof("marked game %s abandoned after %s of inactivity", gameID, s.opts.Inactivity)
		s.activityMu.Lock()
		delete(s.activity, gameID)
		s.activityMu.Unlock()
	}
}

// tracked reports how many games the service is watching.
func (s *Service) tracked() int {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()
	return len(s.activity)
}

// Pending returns the number of buffered, unflushed records.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}
