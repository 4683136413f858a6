package metrics

import (
	"context"
	"time"

	"github.com/bubblethoughts/book-management-system/internal/repo"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const namespace = "lending"

// StatsSource provides the catalog snapshot exported as gauges
type StatsSource interface {
	Stats(ctx context.Context) (repo.Stats, error)
}

// Metrics holds the lending counters
type Metrics struct {
	BooksAdded prometheus.Counter
	Borrows    prometheus.Counter
	Returns    prometheus.Counter
}

// New creates the lending metrics and registers them, together with the catalog gauges, on reg
func New(reg prometheus.Registerer, source StatsSource, log *zap.Logger) *Metrics {
	m := &Metrics{
		BooksAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "books_added_total",
			Help:      "Number of books added to the catalog.",
		}),
		Borrows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "borrows_total",
			Help:      "Number of borrow records opened.",
		}),
		Returns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "returns_total",
			Help:      "Number of book returns processed.",
		}),
	}

	reg.MustRegister(m.BooksAdded, m.Borrows, m.Returns)
	if source != nil {
		reg.MustRegister(newCatalogCollector(source, log))
	}
	return m
}

// catalogCollector reads the catalog state at scrape time
type catalogCollector struct {
	source    StatsSource
	log       *zap.Logger
	total     *prometheus.Desc
	available *prometheus.Desc
	open      *prometheus.Desc
}

func newCatalogCollector(source StatsSource, log *zap.Logger) *catalogCollector {
	return &catalogCollector{
		source:    source,
		log:       log,
		total:     prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "books_total"), "Books in the catalog.", nil, nil),
		available: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "books_available"), "Books not currently lent.", nil, nil),
		open:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "borrows_open"), "Borrow records not yet returned.", nil, nil),
	}
}

func (c *catalogCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.available
	ch <- c.open
}

func (c *catalogCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	stats, err := c.source.Stats(ctx)
	if err != nil {
		c.log.Error("Failed to collect catalog stats", zap.Error(err))
		return
	}

	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(stats.TotalBooks))
	ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, float64(stats.AvailableBooks))
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(stats.OpenBorrows))
}
