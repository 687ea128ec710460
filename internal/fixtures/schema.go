// Package fixtures defines the raw e-commerce fixture tables, generates
// synthetic CSV files for them, and serves them to the seeder from a local
// directory or an object store bucket.
package fixtures

import "slices"

// Table is the header contract of one fixture file.
type Table struct {
	Name    string
	Columns []string
	// Key is the column that identifies a row uniquely.
	Key string
}

// Fixture table names.
const (
	CustomerEvents      = "customer_events"
	InventorySnapshots  = "inventory_snapshots"
	PaymentTransactions = "payment_transactions"
	SupportTickets      = "support_tickets"
)

var tables = []Table{
	{
		Name: CustomerEvents,
		Key:  "event_id",
		Columns: []string{
			"event_id", "customer_id", "session_id", "event_type", "event_timestamp",
			"page_url", "product_id", "category_id", "referrer_source", "device_type",
			"user_agent", "ip_address",
		},
	},
	{
		Name: InventorySnapshots,
		Key:  "snapshot_id",
		Columns: []string{
			"snapshot_id", "product_id", "warehouse_id", "snapshot_date", "quantity_on_hand",
			"quantity_reserved", "quantity_available", "reorder_point", "reorder_quantity",
			"supplier_id", "last_received_date", "unit_cost",
		},
	},
	{
		Name: PaymentTransactions,
		Key:  "transaction_id",
		Columns: []string{
			"transaction_id", "order_id", "customer_id", "payment_method", "payment_status",
			"amount", "currency", "transaction_timestamp", "processor_response_code",
			"gateway_fee", "merchant_id", "billing_country", "risk_score",
		},
	},
	{
		Name: SupportTickets,
		Key:  "ticket_id",
		Columns: []string{
			"ticket_id", "customer_id", "order_id", "ticket_type", "priority", "status",
			"created_timestamp", "first_response_timestamp", "resolution_timestamp",
			"agent_id", "satisfaction_score", "subject", "channel",
		},
	},
}

// Tables returns the fixture contracts in load order.
func Tables() []Table {
	out := make([]Table, len(tables))
	for i, t := range tables {
		out[i] = Table{Name: t.Name, Key: t.Key, Columns: slices.Clone(t.Columns)}
	}
	return out
}

// Names returns the fixture table names in load order.
func Names() []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}

// Lookup returns the contract for a table name.
func Lookup(name string) (Table, bool) {
	for _, t := range Tables() {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}
