package fixtures

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/medallion/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generate(t *testing.T, seed uint64, table string, rows int) [][]string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewGenerator(seed, nil).Write(context.Background(), &buf, table, rows))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	return records
}

func column(t *testing.T, table, name string) int {
	t.Helper()
	c, ok := Lookup(table)
	require.True(t, ok)
	for i, col := range c.Columns {
		if col == name {
			return i
		}
	}
	t.Fatalf("no column %s in %s", name, table)
	return -1
}

func TestTables(t *testing.T) {
	assert.Equal(t, []string{CustomerEvents, InventorySnapshots, PaymentTransactions, SupportTickets}, Names())

	tables := Tables()
	tables[0].Columns[0] = "mutated"
	assert.Equal(t, "event_id", Tables()[0].Columns[0], "Tables returns copies")

	for _, tbl := range Tables() {
		assert.Contains(t, tbl.Columns, tbl.Key, tbl.Name)
	}
	_, ok := Lookup("orders")
	assert.False(t, ok)
}

func TestGenerator_Headers(t *testing.T) {
	for _, tbl := range Tables() {
		t.Run(tbl.Name, func(t *testing.T) {
			records := generate(t, 1, tbl.Name, 25)
			require.Len(t, records, 26)
			assert.Equal(t, tbl.Columns, records[0])
			for _, rec := range records[1:] {
				assert.Len(t, rec, len(tbl.Columns))
			}
		})
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	a := generate(t, 42, SupportTickets, 200)
	b := generate(t, 42, SupportTickets, 200)
	c := generate(t, 43, SupportTickets, 200)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestGenerator_CustomerEvents(t *testing.T) {
	records := generate(t, 7, CustomerEvents, 2000)[1:]
	eventType := column(t, CustomerEvents, "event_type")
	product := column(t, CustomerEvents, "product_id")
	category := column(t, CustomerEvents, "category_id")
	ts := column(t, CustomerEvents, "event_timestamp")
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "EVT000000001", records[0][0])
	for _, rec := range records {
		switch rec[eventType] {
		case "product_view", "add_to_cart", "remove_from_cart":
			assert.Regexp(t, `^PROD\d{5}$`, rec[product])
			assert.Regexp(t, `^CAT\d{3}$`, rec[category])
		default:
			assert.Empty(t, rec[product])
			assert.Empty(t, rec[category])
		}
		at, err := time.Parse(tsLayout, rec[ts])
		require.NoError(t, err)
		assert.False(t, at.Before(first) || at.After(last), rec[ts])
		assertIP(t, rec[len(rec)-1])
		assert.Regexp(t, `^https://shop\.example\.com/(products|category|cart|checkout)/\d+$`, rec[column(t, CustomerEvents, "page_url")])
	}
}

func assertIP(t *testing.T, ip string) {
	t.Helper()
	parts := strings.Split(ip, ".")
	require.Len(t, parts, 4, ip)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		require.NoError(t, err)
		lo := 0
		if i == 0 || i == 3 {
			lo = 1
		}
		assert.True(t, n >= lo && n <= 255, ip)
	}
}

func TestGenerator_Inventory(t *testing.T) {
	records := generate(t, 7, InventorySnapshots, 2000)[1:]
	for _, rec := range records {
		onHand, _ := strconv.Atoi(rec[4])
		reserved, _ := strconv.Atoi(rec[5])
		available, _ := strconv.Atoi(rec[6])
		assert.LessOrEqual(t, reserved, min(onHand, 500))
		assert.Equal(t, onHand-reserved, available)

		cost, err := strconv.ParseFloat(rec[11], 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, cost, 5.0)
		assert.LessOrEqual(t, cost, 500.0)
	}
}

func TestGenerator_Payments(t *testing.T) {
	records := generate(t, 7, PaymentTransactions, 2000)[1:]
	status := column(t, PaymentTransactions, "payment_status")
	code := column(t, PaymentTransactions, "processor_response_code")
	assert.Equal(t, "ORD000000001", records[0][1])
	for _, rec := range records {
		if rec[status] == "completed" {
			assert.Equal(t, "00", rec[code])
		}
		assert.Contains(t, responseCodes, rec[code])
	}
}

func TestGenerator_Tickets(t *testing.T) {
	records := generate(t, 7, SupportTickets, 2000)[1:]
	status := column(t, SupportTickets, "status")
	var withOrder int
	for _, rec := range records {
		open := rec[status] == "open"
		closed := rec[status] == "resolved" || rec[status] == "closed"

		assert.Equal(t, open, rec[7] == "", "first response iff not open")
		assert.Equal(t, open, rec[9] == "", "agent iff not open")
		assert.Equal(t, !closed, rec[8] == "", "resolution iff closed")
		assert.Equal(t, !closed, rec[10] == "", "satisfaction iff closed")
		if rec[2] != "" {
			withOrder++
		}
	}
	assert.InDelta(t, 0.8, float64(withOrder)/float64(len(records)), 0.05)
}

func TestGenerator_Unknown(t *testing.T) {
	err := NewGenerator(1, nil).Write(context.Background(), io.Discard, "orders", 1)
	require.Error(t, err)
}

func TestGenerator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewGenerator(1, nil).Write(ctx, io.Discard, CustomerEvents, 5000)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWriteFiles_DirSource(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seeds")
	g := NewGenerator(3, testutil.NewTestLogger(t))

	paths, err := g.WriteFiles(context.Background(), dir, map[string]int{
		PaymentTransactions: 10,
		CustomerEvents:      5,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "customer_events.csv"),
		filepath.Join(dir, "payment_transactions.csv"),
	}, paths)

	rc, err := DirSource{Dir: dir}.Open(context.Background(), PaymentTransactions)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	records, err := csv.NewReader(rc).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 11)

	_, err = DirSource{Dir: dir}.Open(context.Background(), SupportTickets)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestBucketSource_Config(t *testing.T) {
	_, err := NewBucketSource(BucketConfig{Bucket: "raw"}, nil)
	require.Error(t, err)

	s, err := NewBucketSource(BucketConfig{Endpoint: "localhost:9000", Bucket: "raw", Prefix: "ecommerce/2024"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ecommerce/2024/support_tickets.csv", s.ObjectName(SupportTickets))

	s, err = NewBucketSource(BucketConfig{Endpoint: "localhost:9000", Bucket: "raw"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "customer_events.csv", s.ObjectName(CustomerEvents))
}
