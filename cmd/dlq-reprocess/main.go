package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ois/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ois/internal/metrics"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second

	headerReplayedFrom = "x-replayed-from"
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
	// reasons == nil: переотправляются записи с любой причиной.
	reasons     map[string]bool
	skipInvalid bool
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

// replayProducer — часть kafka.Producer, нужная для переотправки.
type replayProducer interface {
	Publish(topic, key string, value []byte, headers map[string]string) error
	Close() error
}

// saramaConsumer приводит sarama.Consumer к partitionConsumerSource.
type saramaConsumer struct {
	sarama.Consumer
}

func (c saramaConsumer) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return c.Consumer.ConsumePartition(topic, partition, offset)
}

// replayDeps — подключения к Kafka; producer есть только в режиме execute.
type replayDeps struct {
	client   offsetClient
	consumer partitionConsumerSource
	producer replayProducer
}

func (d replayDeps) close() {
	if d.producer != nil {
		_ = d.producer.Close()
	}
	if d.consumer != nil {
		_ = d.consumer.Close()
	}
	if d.client != nil {
		_ = d.client.Close()
	}
}

var newReplayDeps = func(cfg config) (replayDeps, error) {
	client, err := sarama.NewClient(cfg.brokers, consumerConfig())
	if err != nil {
		return replayDeps{}, fmt.Errorf("create kafka client: %w", err)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return replayDeps{}, fmt.Errorf("create kafka consumer: %w", err)
	}
	deps := replayDeps{client: client, consumer: saramaConsumer{consumer}}
	if !cfg.execute {
		return deps, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers)
	if err != nil {
		deps.close()
		return replayDeps{}, err
	}
	deps.producer = producer
	return deps, nil
}

func consumerConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.Consumer.Return.Errors = true
	return c
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("не удалось прочитать .env")
	}

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		fail("%v", err)
	}

	if _, err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func parseConfig(args []string, lookup func(string) (string, bool)) (config, error) {
	var (
		cfg        config
		brokersRaw string
		reasonsRaw string
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderCreated, "topic for dead letters without original_topic")
	fs.StringVar(&reasonsRaw, "reasons", metrics.ReasonExhausted, `comma-separated DLQ reasons to replay, or "all"`)
	fs.BoolVar(&cfg.skipInvalid, "skip-invalid", true, "skip payloads that are not valid order created events")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of dead letters to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish replayed events; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the newest dead letters first (bounded by limit)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw, _ = lookup("KAFKA_BROKERS")
	}
	cfg.brokers = splitList(brokersRaw)
	cfg.reasons = parseReasons(reasonsRaw)
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case cfg.sourceTopic == "":
		return config{}, errors.New("source-topic is required")
	case cfg.targetTopic == "":
		return config{}, errors.New("target-topic is required")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	case cfg.reasons != nil && len(cfg.reasons) == 0:
		return config{}, errors.New("reasons must not be empty")
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var items []string
	for _, chunk := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(chunk); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// parseReasons возвращает nil для "all".
func parseReasons(raw string) map[string]bool {
	if strings.EqualFold(strings.TrimSpace(raw), "all") {
		return nil
	}
	reasons := make(map[string]bool)
	for _, reason := range splitList(strings.ToLower(raw)) {
		reasons[reason] = true
	}
	return reasons
}

func reasonList(reasons map[string]bool) []string {
	if reasons == nil {
		return []string{"all"}
	}
	list := make([]string, 0, len(reasons))
	for reason := range reasons {
		list = append(list, reason)
	}
	sort.Strings(list)
	return list
}

func run(ctx context.Context, cfg config) (replayStats, error) {
	deps, err := newReplayDeps(cfg)
	if err != nil {
		return replayStats{}, err
	}
	defer deps.close()

	r, err := newReplayer(cfg, deps)
	if err != nil {
		return replayStats{}, err
	}
	return r.run(ctx)
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *replayStats) add(other replayStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
}

// replayer просматривает DLQ по партициям и переотправляет исходные события.
type replayer struct {
	cfg    config
	deps   replayDeps
	logger *log.Entry
}

func newReplayer(cfg config, deps replayDeps) (*replayer, error) {
	if deps.client == nil || deps.consumer == nil {
		return nil, errors.New("kafka client and consumer are required")
	}
	if cfg.execute && deps.producer == nil {
		return nil, errors.New("producer is required in execute mode")
	}
	return &replayer{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithField("component", "dlq-reprocess"),
	}, nil
}

func (r *replayer) run(ctx context.Context) (replayStats, error) {
	r.logger.WithFields(log.Fields{
		"source_topic": r.cfg.sourceTopic,
		"limit":        r.cfg.limit,
		"reasons":      reasonList(r.cfg.reasons),
		"execute":      r.cfg.execute,
		"from_newest":  r.cfg.fromNewest,
	}).Info("starting dlq replay")

	partitions, err := r.deps.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return replayStats{}, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var total replayStats
	for _, partition := range partitions {
		budget := r.cfg.limit - total.scanned
		if budget <= 0 {
			break
		}
		stats, err := r.scanPartition(ctx, partition, budget)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	r.logger.WithFields(log.Fields{
		"execute":  r.cfg.execute,
		"scanned":  total.scanned,
		"replayed": total.replayed,
		"skipped":  total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

// window возвращает диапазон [start, end) оффсетов для просмотра.
func (r *replayer) window(partition int32, budget int) (int64, int64, error) {
	oldest, err := r.deps.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.deps.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}

	start := oldest
	if r.cfg.fromNewest {
		start = max(newest-int64(budget), oldest)
	}
	return start, newest, nil
}

func (r *replayer) scanPartition(ctx context.Context, partition int32, budget int) (replayStats, error) {
	var stats replayStats

	start, end, err := r.window(partition, budget)
	if err != nil || start >= end {
		return stats, err
	}

	pc, err := r.deps.consumer.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.scanned < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumerErr := <-pc.Errors():
			if consumerErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return stats, nil
			}
			idle.Reset(r.cfg.idleTimeout)

			stats.scanned++
			replayed, err := r.handle(msg)
			if err != nil {
				return stats, err
			}
			if replayed {
				stats.replayed++
			} else {
				stats.skipped++
			}
			if msg.Offset+1 >= end {
				return stats, nil
			}
		}
	}
	return stats, nil
}

// handle возвращает ошибку только при сбое публикации; неподходящие записи
// пропускаются с предупреждением в логе.
func (r *replayer) handle(msg *sarama.ConsumerMessage) (bool, error) {
	entry := r.logger.WithFields(log.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	letter, err := decodeDeadLetter(msg.Value)
	if err == nil {
		err = r.check(letter)
	}
	if err != nil {
		entry.WithError(err).Warn("skip dlq message")
		return false, nil
	}

	target := strings.TrimSpace(letter.OriginalTopic)
	if target == "" {
		target = r.cfg.targetTopic
	}
	entry = entry.WithFields(log.Fields{
		"target_topic": target,
		"key":          letter.OriginalKey,
		"reason":       letter.Reason,
	})

	if !r.cfg.execute {
		entry.Info("dlq replay candidate")
		return true, nil
	}
	if err := publishReplay(r.deps.producer, target, letter, msg); err != nil {
		return false, fmt.Errorf("publish replay message: %w", err)
	}
	entry.Info("dlq message replayed")
	return true, nil
}

func (r *replayer) check(letter kafka.DeadLetter) error {
	if r.cfg.reasons != nil && !r.cfg.reasons[strings.ToLower(letter.Reason)] {
		return fmt.Errorf("reason %q is not selected for replay", letter.Reason)
	}
	if r.cfg.skipInvalid {
		if _, err := kafka.ParseOrderCreated([]byte(letter.OriginalValue)); err != nil {
			return err
		}
	}
	return nil
}

var errNotDeadLetter = errors.New("message is not a dead letter")

func decodeDeadLetter(value []byte) (kafka.DeadLetter, error) {
	var letter kafka.DeadLetter
	if err := json.Unmarshal(value, &letter); err != nil {
		return kafka.DeadLetter{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if letter.OriginalValue == "" {
		return kafka.DeadLetter{}, errNotDeadLetter
	}
	return letter, nil
}

func publishReplay(producer replayProducer, topic string, letter kafka.DeadLetter, source *sarama.ConsumerMessage) error {
	if producer == nil {
		return errors.New("producer is nil")
	}

	var headers map[string]string
	if source != nil {
		headers = map[string]string{
			headerReplayedFrom: fmt.Sprintf("%s/%d@%d", source.Topic, source.Partition, source.Offset),
		}
	}
	return producer.Publish(topic, letter.OriginalKey, []byte(letter.OriginalValue), headers)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
