package eventsink

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseSink is the optional durable mirror: events are batched in
// memory and flushed to a ClickHouse table on its own size/interval cadence
// (chBatchSize, chFlushEvery), so a restart or a dashboard query never depends
// on the in-process ring buffer. Flush failures are logged and dropped —
// analytics durability is best-effort, it must never back-pressure the
// pipeline the way a provider timeout would.
type ClickHouseSink struct {
	conn  clickhouse.Conn
	table string
	log   *slog.Logger

	mu    sync.Mutex
	batch []Event

	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

const (
	chBatchSize  = 200
	chFlushEvery = 2 * time.Second
	chChanBuffer = 5000
)

// NewClickHouseSink opens a connection to addr (host:port) and verifies it
// with a ping before returning, mirroring the Redis-cache constructors'
// fail-fast-on-construct convention elsewhere in this codebase.
func NewClickHouseSink(ctx context.Context, addr, database, username, password, table string, log *slog.Logger) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	s := &ClickHouseSink{
		conn:  conn,
		table: table,
		log:   log,
		ch:    make(chan Event, chChanBuffer),
		done:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

func (s *ClickHouseSink) Emit(e Event) {
	select {
	case s.ch <- e:
	default:
		s.log.Warn("clickhouse_sink_dropped_event")
	}
}

func (s *ClickHouseSink) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(chFlushEvery)
	defer ticker.Stop()

	flush := func() {
		s.mu.Lock()
		batch := s.batch
		s.batch = nil
		s.mu.Unlock()
		if len(batch) > 0 {
			s.insert(ctx, batch)
		}
	}

	for {
		select {
		case e := <-s.ch:
			s.mu.Lock()
			s.batch = append(s.batch, e)
			full := len(s.batch) >= chBatchSize
			s.mu.Unlock()
			if full {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.done:
			for {
				select {
				case e := <-s.ch:
					s.mu.Lock()
					s.batch = append(s.batch, e)
					s.mu.Unlock()
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *ClickHouseSink) insert(ctx context.Context, events []Event) {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table)
	if err != nil {
		s.log.WarnContext(ctx, "clickhouse_prepare_batch_failed", slog.String("error", err.Error()))
		return
	}
	for _, e := range events {
		if err := batch.Append(
			e.ID.String(), e.Provider, e.Model, e.Priority.String(),
			uint32(e.Usage.PromptTokens), uint32(e.Usage.CompletionTokens),
			uint16(e.Status), e.FromCache, e.CacheTier, e.Similarity,
			uint32(e.Savings.Tokens), e.Savings.Cost, e.CreatedAt,
		); err != nil {
			s.log.WarnContext(ctx, "clickhouse_batch_append_failed", slog.String("error", err.Error()))
			return
		}
	}
	if err := batch.Send(); err != nil {
		s.log.WarnContext(ctx, "clickhouse_batch_send_failed", slog.String("error", err.Error()))
	}
}

func (s *ClickHouseSink) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return s.conn.Close()
}
