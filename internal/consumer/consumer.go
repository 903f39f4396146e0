package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"smartmart/internal/entity"
	"smartmart/internal/sharding"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const (
	maxAttempts  = 3
	retryBackoff = 500 * time.Millisecond
	queueSize    = 64
)

// Reader is implemented by *kafka.Reader.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type GDPRJobs interface {
	ProcessExport(ctx context.Context, id int64) error
	ProcessDeletion(ctx context.Context, id int64) error
}

type BoxJobs interface {
	CreateBox(ctx context.Context, subscriptionID int64, periodStart, periodEnd time.Time) (bool, error)
}

type OrderNotifier interface {
	NotifyOrderEvent(ctx context.Context, event entity.OrderEvent) error
}

type Consumer struct {
	gdpr     GDPRJobs
	boxes    BoxJobs
	notifier OrderNotifier
	router   *sharding.ShardRouter
	backoff  time.Duration
}

func NewConsumer(gdpr GDPRJobs, boxes BoxJobs, notifier OrderNotifier, workers int) *Consumer {
	return &Consumer{
		gdpr:     gdpr,
		boxes:    boxes,
		notifier: notifier,
		router:   sharding.NewShardRouter(workers),
		backoff:  retryBackoff,
	}
}

// Run reads from every reader until ctx is cancelled. Messages of one user go to the
// same worker so they are handled in order. A partition's offset is committed only
// up to the last message below which every message has been handled.
func (c *Consumer) Run(ctx context.Context, readers ...Reader) error {
	tracker := newOffsetTracker()
	queues := make([]chan delivery, c.router.ShardCount)
	var workers sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan delivery, queueSize)
		workers.Add(1)
		go func(queue <-chan delivery) {
			defer workers.Done()
			for d := range queue {
				c.handle(ctx, d, tracker)
			}
		}(queues[i])
	}

	var fetchers sync.WaitGroup
	for _, reader := range readers {
		fetchers.Add(1)
		go func(reader Reader) {
			defer fetchers.Done()
			c.fetch(ctx, reader, queues, tracker)
		}(reader)
	}

	fetchers.Wait()
	for _, queue := range queues {
		close(queue)
	}
	workers.Wait()
	return ctx.Err()
}

type delivery struct {
	reader Reader
	msg    kafka.Message
}

func (c *Consumer) fetch(ctx context.Context, reader Reader, queues []chan delivery, tracker *offsetTracker) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("Error reading message")
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		tracker.track(reader, msg)
		shard := c.router.GetShard(routingID(msg))
		select {
		case queues[shard] <- delivery{reader: reader, msg: msg}:
		case <-ctx.Done():
			return
		}
	}
}

// routingID extracts the user id both payload kinds carry.
func routingID(msg kafka.Message) int64 {
	var payload struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return 0
	}
	return payload.UserID
}

func (c *Consumer) handle(ctx context.Context, d delivery, tracker *offsetTracker) {
	key := string(d.msg.Key)
	for attempt := 1; ; attempt++ {
		err := c.processMessage(ctx, d.msg)
		if err == nil {
			break
		}
		if errors.Is(err, errMalformed) || attempt >= maxAttempts {
			logger.Error().Err(err).Msgf("Dropping message %s after %d attempt(s)", key, attempt)
			break
		}
		logger.Warn().Err(err).Msgf("Retrying message %s", key)
		if !sleep(ctx, c.backoff*time.Duration(attempt)) {
			return
		}
	}

	if err := tracker.done(ctx, d.reader, d.msg); err != nil {
		logger.Error().Err(err).Msgf("Error committing message %s", key)
	}
}

type partitionKey struct {
	reader    Reader
	partition int
}

// partitionOffsets holds the offsets fetched from one partition that are not
// committed yet, in fetch order.
type partitionOffsets struct {
	mu       sync.Mutex
	inflight []int64
	handled  map[int64]kafka.Message
}

type offsetTracker struct {
	mu         sync.Mutex
	partitions map[partitionKey]*partitionOffsets
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: map[partitionKey]*partitionOffsets{}}
}

func (t *offsetTracker) partition(reader Reader, partition int) *partitionOffsets {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := partitionKey{reader: reader, partition: partition}
	p, ok := t.partitions[key]
	if !ok {
		p = &partitionOffsets{handled: map[int64]kafka.Message{}}
		t.partitions[key] = p
	}
	return p
}

func (t *offsetTracker) track(reader Reader, msg kafka.Message) {
	p := t.partition(reader, msg.Partition)
	p.mu.Lock()
	p.inflight = append(p.inflight, msg.Offset)
	p.mu.Unlock()
}

// done marks msg handled and commits the highest message of its partition that
// has no unhandled message before it. Commits of one partition are serialized.
func (t *offsetTracker) done(ctx context.Context, reader Reader, msg kafka.Message) error {
	p := t.partition(reader, msg.Partition)
	p.mu.Lock()
	defer p.mu.Unlock()

	p.handled[msg.Offset] = msg
	var (
		commit kafka.Message
		ready  bool
	)
	for len(p.inflight) > 0 {
		m, ok := p.handled[p.inflight[0]]
		if !ok {
			break
		}
		delete(p.handled, p.inflight[0])
		p.inflight = p.inflight[1:]
		commit, ready = m, true
	}
	if !ready {
		return nil
	}
	return reader.CommitMessages(ctx, commit)
}

var errMalformed = errors.New("malformed message")

// processMessage dispatches on the key: "job.<type>.<id>" or "order.<event>.<id>".
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	key := string(msg.Key)
	listKey := strings.Split(key, ".")
	if len(listKey) < 3 {
		return fmt.Errorf("%w: key %q", errMalformed, key)
	}

	switch listKey[0] {
	case "job":
		var job entity.Job
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		return c.runJob(ctx, job)
	case "order":
		var event entity.OrderEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
		return c.notifier.NotifyOrderEvent(ctx, event)
	default:
		logger.Info().Msgf("Ignoring message %s", key)
		return nil
	}
}

func (c *Consumer) runJob(ctx context.Context, job entity.Job) error {
	switch job.Type {
	case entity.JobGDPRExport:
		return c.gdpr.ProcessExport(ctx, job.ID)
	case entity.JobGDPRDeletion:
		return c.gdpr.ProcessDeletion(ctx, job.ID)
	case entity.JobSubscriptionBox:
		created, err := c.boxes.CreateBox(ctx, job.ID, job.PeriodStart, job.PeriodEnd)
		if err == nil && !created {
			logger.Info().Msgf("Box for subscription %d starting %s already exists", job.ID, job.PeriodStart.Format(time.RFC3339))
		}
		return err
	default:
		return fmt.Errorf("%w: unknown job type %q", errMalformed, job.Type)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
