package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ois/internal/domain"
	"github.com/vladislavdragonenkov/ois/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ois/internal/service/ingest"
)

type config struct {
	brokers     []string
	topic       string
	total       int
	concurrency int
	customers   int
	maxItems    int
	startID     int64
	seed        uint64
	legacy      bool
	outputPath  string
}

// publisher — часть kafka.Producer, которой пользуется утилита.
type publisher interface {
	PublishOrderCreated(topic string, event domain.OrderCreatedEvent) error
	Publish(topic, key string, value []byte, headers map[string]string) error
	Close() error
}

var newPublisher = func(brokers []string) (publisher, error) {
	return kafka.NewProducer(brokers)
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// report содержит ожидаемые суммы по клиентам: их можно сверить
// с GET /api/v1/customers/{id}/orders/total после обработки.
type report struct {
	StartedAt       time.Time         `json:"started_at"`
	DurationSeconds float64           `json:"duration_seconds"`
	Topic           string            `json:"topic"`
	Published       int64             `json:"published"`
	Failed          int64             `json:"failed"`
	ErrorRate       float64           `json:"error_rate"`
	RPS             float64           `json:"rps"`
	LatencyMs       latencySummary    `json:"latency_ms"`
	ExpectedTotals  map[string]string `json:"expected_totals"`
}

type collector struct {
	mu        sync.Mutex
	published int64
	failed    int64
	latencies []float64
	totals    map[int64]decimal.Decimal
}

func newCollector() *collector {
	return &collector{totals: make(map[int64]decimal.Decimal)}
}

func (c *collector) record(order domain.Order, latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latencies = append(c.latencies, float64(latency.Microseconds())/1000.0)
	if err != nil {
		c.failed++
		return
	}
	c.published++
	c.totals[order.CustomerID] = c.totals[order.CustomerID].Add(order.Total)
}

func (c *collector) buildReport(topic string, startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Topic:           topic,
		Published:       c.published,
		Failed:          c.failed,
		ErrorRate:       ratio(c.failed, c.published+c.failed),
		LatencyMs:       buildLatencySummary(c.latencies),
		ExpectedTotals:  make(map[string]string, len(c.totals)),
	}
	if duration > 0 {
		result.RPS = float64(c.published) / duration.Seconds()
	}
	for customerID, total := range c.totals {
		result.ExpectedTotals[strconv.FormatInt(customerID, 10)] = total.String()
	}
	return result
}

func parseConfig(args []string, lookup func(string) (string, bool)) (config, error) {
	var (
		cfg        config
		brokersRaw string
	)

	fs := flag.NewFlagSet("publish-orders", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	fs.StringVar(&cfg.topic, "topic", kafka.TopicOrderCreated, "target topic")
	fs.IntVar(&cfg.total, "total", 100, "number of events to publish")
	fs.IntVar(&cfg.concurrency, "concurrency", 4, "number of concurrent publishers")
	fs.IntVar(&cfg.customers, "customers", 10, "number of distinct customers")
	fs.IntVar(&cfg.maxItems, "max-items", 3, "max line items per order (0 allows empty orders only)")
	fs.Int64Var(&cfg.startID, "start-id", 1, "first orderId")
	fs.Uint64Var(&cfg.seed, "seed", 1, "seed for generated items")
	fs.BoolVar(&cfg.legacy, "legacy", false, "use legacy field names (codigoPedido, itens, ...)")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		if v, ok := lookup("KAFKA_BROKERS"); ok {
			brokersRaw = v
		}
	}
	for _, broker := range strings.Split(brokersRaw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			cfg.brokers = append(cfg.brokers, broker)
		}
	}

	switch {
	case len(cfg.brokers) == 0:
		return cfg, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.topic) == "":
		return cfg, errors.New("topic is required")
	case cfg.total <= 0:
		return cfg, errors.New("total must be > 0")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.customers <= 0:
		return cfg, errors.New("customers must be > 0")
	case cfg.maxItems < 0:
		return cfg, errors.New("max-items must be >= 0")
	case cfg.startID <= 0:
		return cfg, errors.New("start-id must be > 0")
	}

	return cfg, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("не удалось прочитать .env")
	}

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "publish failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.Failed > 0 {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) (report, error) {
	producer, err := newPublisher(cfg.brokers)
	if err != nil {
		return report{}, err
	}
	defer func() { _ = producer.Close() }()

	startedAt := time.Now()
	col := newCollector()
	jobs := make(chan int64, cfg.concurrency*2)

	var wg sync.WaitGroup
	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for orderID := range jobs {
				event := generateEvent(cfg, orderID)
				started := time.Now()
				publishErr := publishOne(producer, cfg, event)
				if publishErr != nil {
					log.WithError(publishErr).WithField("order_id", orderID).Warn("publish order failed")
				}
				col.record(ingest.Translate(event), time.Since(started), publishErr)
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	return col.buildReport(cfg.topic, startedAt, time.Since(startedAt)), ctx.Err()
}

func dispatchJobs(ctx context.Context, jobs chan<- int64, cfg config) {
	defer close(jobs)

	for i := 0; i < cfg.total; i++ {
		select {
		case <-ctx.Done():
			return
		case jobs <- cfg.startID + int64(i):
		}
	}
}

// generateEvent детерминирован по (seed, orderID), поэтому повторный запуск
// с теми же флагами публикует те же заказы.
func generateEvent(cfg config, orderID int64) domain.OrderCreatedEvent {
	rng := rand.New(rand.NewPCG(cfg.seed, uint64(orderID)))

	items := make([]domain.EventLineItem, 0, cfg.maxItems)
	if cfg.maxItems > 0 {
		count := rng.IntN(cfg.maxItems) + 1
		for i := 0; i < count; i++ {
			items = append(items, domain.EventLineItem{
				ProductID: fmt.Sprintf("SKU-%03d", rng.IntN(100)),
				Quantity:  int64(rng.IntN(5) + 1),
				Price:     decimal.New(int64(rng.IntN(10000)+1), -2),
			})
		}
	}

	return domain.OrderCreatedEvent{
		OrderID:    orderID,
		CustomerID: (orderID-cfg.startID)%int64(cfg.customers) + 1,
		Items:      items,
	}
}

type legacyItem struct {
	Produto    string          `json:"produto"`
	Quantidade int64           `json:"quantidade"`
	Preco      decimal.Decimal `json:"preco"`
}

type legacyEvent struct {
	CodigoPedido  int64        `json:"codigoPedido"`
	CodigoCliente int64        `json:"codigoCliente"`
	Itens         []legacyItem `json:"itens"`
}

func encodeLegacy(event domain.OrderCreatedEvent) ([]byte, error) {
	legacy := legacyEvent{
		CodigoPedido:  event.OrderID,
		CodigoCliente: event.CustomerID,
		Itens:         make([]legacyItem, 0, len(event.Items)),
	}
	for _, item := range event.Items {
		legacy.Itens = append(legacy.Itens, legacyItem{
			Produto:    item.ProductID,
			Quantidade: item.Quantity,
			Preco:      item.Price,
		})
	}
	return json.Marshal(legacy)
}

func publishOne(producer publisher, cfg config, event domain.OrderCreatedEvent) error {
	if !cfg.legacy {
		return producer.PublishOrderCreated(cfg.topic, event)
	}

	payload, err := encodeLegacy(event)
	if err != nil {
		return fmt.Errorf("encode legacy event: %w", err)
	}
	return producer.Publish(cfg.topic, strconv.FormatInt(event.OrderID, 10), payload, nil)
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- путь задаётся явно флагом утилиты.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report) {
	_, _ = fmt.Fprintln(w, "Publish summary")
	_, _ = fmt.Fprintf(w, "topic=%s published=%d failed=%d error_rate=%.4f\n",
		result.Topic, result.Published, result.Failed, result.ErrorRate)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	_, _ = fmt.Fprintf(w, "latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.LatencyMs.Min,
		result.LatencyMs.Avg,
		result.LatencyMs.P50,
		result.LatencyMs.P95,
		result.LatencyMs.P99,
		result.LatencyMs.Max,
	)

	customers := make([]string, 0, len(result.ExpectedTotals))
	for customer := range result.ExpectedTotals {
		customers = append(customers, customer)
	}
	sort.Slice(customers, func(i, j int) bool {
		a, _ := strconv.ParseInt(customers[i], 10, 64)
		b, _ := strconv.ParseInt(customers[j], 10, 64)
		return a < b
	})
	for _, customer := range customers {
		_, _ = fmt.Fprintf(w, "customer=%s expected_total=%s\n", customer, result.ExpectedTotals[customer])
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
