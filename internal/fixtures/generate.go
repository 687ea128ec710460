package fixtures

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"
)

// Default row counts per table.
var DefaultVolumes = map[string]int{
	CustomerEvents:      2_000_000,
	InventorySnapshots:  500_000,
	PaymentTransactions: 1_000_000,
	SupportTickets:      300_000,
}

// Reference vocabularies.
var (
	eventTypes      = []string{"page_view", "product_view", "add_to_cart", "remove_from_cart", "checkout_start", "purchase"}
	deviceTypes     = []string{"desktop", "mobile", "tablet"}
	referrerSources = []string{"google", "facebook", "instagram", "direct", "email", "affiliate", "bing", "twitter"}
	pageSections    = []string{"products", "category", "cart", "checkout"}
	paymentMethods  = []string{"credit_card", "debit_card", "paypal", "apple_pay", "google_pay", "bank_transfer"}
	paymentStatuses = []string{"completed", "pending", "failed", "refunded", "cancelled"}
	responseCodes   = []string{"00", "01", "05", "51", "54", "61", "65"}
	currencies      = []string{"USD", "EUR", "GBP", "CAD", "AUD"}
	countries       = []string{"US", "UK", "CA", "AU", "DE", "FR", "IT", "ES", "NL", "BE"}
	ticketTypes     = []string{"order_issue", "product_inquiry", "shipping_delay", "refund_request", "technical_support", "account_issue"}
	priorities      = []string{"low", "medium", "high", "urgent"}
	ticketStatuses  = []string{"open", "in_progress", "waiting_customer", "resolved", "closed"}
	channels        = []string{"email", "chat", "phone", "social_media"}
	userAgents      = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X)",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
		"Mozilla/5.0 (iPad; CPU OS 15_0 like Mac OS X)",
	}
	subjects = []string{
		"Order not received", "Product defect", "Refund request", "Shipping delay",
		"Wrong item received", "Account login issue", "Payment failed", "Tracking not updating",
		"Cancel order request", "Product inquiry", "Billing question", "Damaged package",
	}
)

const (
	tsLayout   = "2006-01-02 15:04:05"
	dateLayout = "2006-01-02"
)

// Generator synthesizes fixture rows. It is not safe for concurrent use.
type Generator struct {
	rng    *rand.Rand
	start  time.Time
	end    time.Time
	logger *slog.Logger
}

// NewGenerator creates a generator. The same seed yields the same files.
func NewGenerator(seed uint64, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Generator{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		start:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		end:    time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		logger: logger,
	}
}

// between returns an integer in [lo, hi].
func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

func (g *Generator) pick(values []string) string {
	return values[g.rng.IntN(len(values))]
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// date returns a random moment: a whole day offset inside the range plus up
// to one day of seconds.
func (g *Generator) date() time.Time {
	days := int(g.end.Sub(g.start).Hours() / 24)
	return g.start.AddDate(0, 0, g.between(0, days)).Add(time.Duration(g.between(0, 86400)) * time.Second)
}

func (g *Generator) id(prefix string, width, lo, hi int) string {
	return fmt.Sprintf("%s%0*d", prefix, width, g.between(lo, hi))
}

func (g *Generator) ip() string {
	return fmt.Sprintf("%d.%d.%d.%d", g.between(1, 255), g.between(0, 255), g.between(0, 255), g.between(1, 255))
}

func money(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// Row returns row i (1-based) of table.
func (g *Generator) Row(table string, i int) ([]string, error) {
	switch table {
	case CustomerEvents:
		return g.customerEvent(i), nil
	case InventorySnapshots:
		return g.inventorySnapshot(i), nil
	case PaymentTransactions:
		return g.paymentTransaction(i), nil
	case SupportTickets:
		return g.supportTicket(i), nil
	}
	return nil, fmt.Errorf("unknown fixture table %q", table)
}

func (g *Generator) customerEvent(i int) []string {
	eventType := g.pick(eventTypes)
	row := []string{
		fmt.Sprintf("EVT%09d", i),
		g.id("CUST", 6, 1, 100000),
		g.id("SESS", 8, 1, 500000),
		eventType,
		g.date().Format(tsLayout),
		fmt.Sprintf("https://shop.example.com/%s/%d", g.pick(pageSections), g.between(1, 1000)),
		"", "",
	}
	if slices.Contains([]string{"product_view", "add_to_cart", "remove_from_cart"}, eventType) {
		row[6] = g.id("PROD", 5, 1, 10000)
		row[7] = g.id("CAT", 3, 1, 100)
	}
	return append(row, g.pick(referrerSources), g.pick(deviceTypes), g.pick(userAgents), g.ip())
}

func (g *Generator) inventorySnapshot(i int) []string {
	onHand := g.between(0, 5000)
	reserved := g.between(0, min(onHand, 500))
	return []string{
		fmt.Sprintf("SNAP%09d", i),
		g.id("PROD", 5, 1, 10000),
		g.id("WH", 3, 1, 20),
		g.date().Format(dateLayout),
		strconv.Itoa(onHand),
		strconv.Itoa(reserved),
		strconv.Itoa(onHand - reserved),
		strconv.Itoa(g.between(50, 500)),
		strconv.Itoa(g.between(100, 1000)),
		g.id("SUP", 4, 1, 200),
		g.date().Format(dateLayout),
		money(g.uniform(5, 500)),
	}
}

func (g *Generator) paymentTransaction(i int) []string {
	method := g.pick(paymentMethods)
	status := g.pick(paymentStatuses)
	amount := math.Round(g.uniform(10, 2000)*100) / 100
	currency := g.pick(currencies)
	at := g.date().Format(tsLayout)
	code := "00"
	if status != "completed" {
		code = g.pick(responseCodes)
	}
	return []string{
		fmt.Sprintf("TXN%09d", i),
		fmt.Sprintf("ORD%09d", i),
		g.id("CUST", 6, 1, 100000),
		method,
		status,
		money(amount),
		currency,
		at,
		code,
		money(amount * g.uniform(0.02, 0.04)),
		g.id("MERCH", 4, 1, 50),
		g.pick(countries),
		money(g.uniform(0, 100)),
	}
}

func (g *Generator) supportTicket(i int) []string {
	customer := g.id("CUST", 6, 1, 100000)
	order := ""
	if g.rng.Float64() > 0.2 {
		order = g.id("ORD", 9, 1, 1000000)
	}
	ticketType := g.pick(ticketTypes)
	priority := g.pick(priorities)
	status := g.pick(ticketStatuses)
	created := g.date()
	closed := status == "resolved" || status == "closed"

	var firstResponse, resolution, agent, satisfaction string
	if status != "open" {
		firstResponse = created.Add(time.Duration(g.between(1, 48)) * time.Hour).Format(tsLayout)
	}
	if closed {
		resolution = created.AddDate(0, 0, g.between(1, 14)).Format(tsLayout)
	}
	if status != "open" {
		agent = g.id("AGT", 4, 1, 100)
	}
	if closed {
		satisfaction = strconv.Itoa(g.between(1, 5))
	}

	return []string{
		fmt.Sprintf("TKT%08d", i),
		customer, order, ticketType, priority, status,
		created.Format(tsLayout), firstResponse, resolution, agent, satisfaction,
		g.pick(subjects), g.pick(channels),
	}
}

// progressEvery is how often generation progress is logged per table.
var progressEvery = map[string]int{
	CustomerEvents:      100_000,
	InventorySnapshots:  50_000,
	PaymentTransactions: 100_000,
	SupportTickets:      50_000,
}

// Write streams rows rows of table, header first, as CSV to w.
func (g *Generator) Write(ctx context.Context, w io.Writer, table string, rows int) error {
	t, ok := Lookup(table)
	if !ok {
		return fmt.Errorf("unknown fixture table %q", table)
	}
	g.logger.Info("generating fixture", "table", table, "rows", rows)

	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	every := progressEvery[table]
	for i := 1; i <= rows; i++ {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row, err := g.Row(table, i)
		if err != nil {
			return err
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
		if every > 0 && i%every == 0 {
			g.logger.Info("generation progress", "table", table, "rows", i, "total", rows,
				"percent", fmt.Sprintf("%.1f", float64(i)/float64(rows)*100))
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", table, err)
	}
	g.logger.Info("generated fixture", "table", table, "rows", rows)
	return nil
}

// WriteFiles writes <dir>/<table>.csv for every table in volumes, in load
// order, and returns the written paths.
func (g *Generator) WriteFiles(ctx context.Context, dir string, volumes map[string]int) (paths []string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	for _, table := range Names() {
		rows, ok := volumes[table]
		if !ok {
			continue
		}
		path := filepath.Join(dir, table+".csv")
		if err := g.writeFile(ctx, path, table, rows); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (g *Generator) writeFile(ctx context.Context, path, table string, rows int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	return g.Write(ctx, f, table, rows)
}
