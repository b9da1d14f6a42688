//go:build integration

package relay_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"entrypass/internal/events"
	"entrypass/internal/events/outbox"
	"entrypass/internal/events/publisher"
	"entrypass/internal/events/relay"
	"entrypass/internal/platform/config"
	"entrypass/internal/platform/kafka"
	"entrypass/internal/platform/postgres"
	"entrypass/pkg/testutil/containers"
)

// RelaySuite drives the outbox from Postgres to a real broker.
type RelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	brokers  []string
	producer *kafka.Producer
	outbox   *outbox.PostgresStore
	runner   *postgres.TxRunner
	topic    string
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.brokers = containers.GetManager().GetRedpanda(s.T()).Brokers
	s.topic = "entrypass.events.test"

	ctx := context.Background()
	producer, err := kafka.NewProducer(ctx, config.KafkaConfig{Brokers: s.brokers, Topic: s.topic})
	s.Require().NoError(err)
	s.Require().NoError(producer.EnsureTopic(ctx, 1))
	// second call sees TopicAlreadyExists
	s.Require().NoError(producer.EnsureTopic(ctx, 1))
	s.producer = producer

	s.outbox = outbox.NewPostgres(s.postgres.DB)
	s.runner = postgres.NewTxRunner(s.postgres.DB, 5*time.Second)
}

func (s *RelaySuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))
}

func (s *RelaySuite) append(eventType events.Type, code string, at time.Time) events.Event {
	e, err := events.New(eventType, code, map[string]string{"code": code}, at)
	s.Require().NoError(err)
	s.Require().NoError(s.outbox.Append(context.Background(), e))
	return e
}

func (s *RelaySuite) consume(n int) []*kgo.Record {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	var out []*kgo.Record
	for len(out) < n {
		fetches := client.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out after %d records", len(out))
		fetches.EachRecord(func(r *kgo.Record) { out = append(out, r) })
	}
	return out
}

func (s *RelaySuite) TestRelayPublishesPendingEventsOnce() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)
	created := s.append(events.RegistrationCreated, "K4P1Z9", base)
	s.append(events.CheckInRecorded, "K4P1Z9", base.Add(time.Second))

	r := relay.New(s.outbox, publisher.NewKafka(s.producer), s.runner,
		relay.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		relay.WithBatchSize(10),
	)

	n, err := r.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	n, err = r.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Zero(n, "published rows are not relayed again")

	records := s.consume(2)
	s.Equal("K4P1Z9", string(records[0].Key))
	headers := map[string]string{}
	for _, h := range records[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal(created.ID.String(), headers["event_id"])
	s.Equal(string(events.RegistrationCreated), headers["event_type"])
}

func (s *RelaySuite) TestPendingSkipsRowsLockedByAnotherRelay() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := range 4 {
		s.append(events.PaymentPaid, "A1A1A1", base.Add(time.Duration(i)*time.Millisecond))
	}

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.runner.RunInTx(ctx, func(ctx context.Context) error {
			batch, err := s.outbox.Pending(ctx, 3)
			if err != nil {
				return err
			}
			s.Len(batch, 3)
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		batch, err := s.outbox.Pending(ctx, 10)
		if err != nil {
			return err
		}
		s.Len(batch, 1)
		return nil
	})
	close(release)
	s.Require().NoError(err)
	s.Require().NoError(<-done)
}
