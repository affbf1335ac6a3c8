package stripebridge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

// OrderStore persists orders for the gateway. The shop backend owns order
// creation; this gateway loads, mutates the payment lifecycle fields and
// saves. ClaimPaymentIntent is the single conditional write that makes
// finalization at-most-once.
type OrderStore interface {
	Load(ctx context.Context, orderID int64) (*Order, error)
	Save(ctx context.Context, order *Order) error

	// ClaimPaymentIntent durably stores the captured record, but only when
	// no payment intent is recorded yet. Returns false when another request
	// already claimed the order. Callers hold the per-order lock, so the
	// order's blob is current and other gateways' entries survive the write.
	ClaimPaymentIntent(ctx context.Context, order *Order, rec PaymentRecord) (bool, error)
}

// MySQLOrderStore implements OrderStore on a MySQL orders table.
type MySQLOrderStore struct {
	db *sql.DB
}

// ConnectOrderDatabase opens the MySQL connection from the environment.
func ConnectOrderDatabase() (*sql.DB, error) {
	connectionString := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		os.Getenv("MYSQL_USER"),
		os.Getenv("MYSQL_PASSWORD"),
		os.Getenv("MYSQL_HOST"),
		os.Getenv("MYSQL_PORT"),
		os.Getenv("MYSQL_DATABASE"),
	)

	db, err := sql.Open("mysql", connectionString)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func NewMySQLOrderStore(db *sql.DB) *MySQLOrderStore {
	return &MySQLOrderStore{db: db}
}

// EnsureSchema creates the orders table when it does not exist yet.
func (s *MySQLOrderStore) EnsureSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS orders(
				id BIGINT PRIMARY KEY,
				document_number VARCHAR(64) NOT NULL DEFAULT '',
				total DECIMAL(12,2) NOT NULL DEFAULT 0,
				currency CHAR(3) NOT NULL DEFAULT '',
				member_id BIGINT NOT NULL DEFAULT 0,
				checked_out BOOLEAN NOT NULL DEFAULT FALSE,
				date_paid DATETIME NULL,
				status VARCHAR(64) NOT NULL DEFAULT '',
				items JSON,
				surcharges JSON,
				billing JSON,
				payment_data JSON,
				payment_intent VARCHAR(255) NOT NULL DEFAULT '',
				INDEX idx_payment_intent (payment_intent)
				);`

	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Create inserts a new order row. The shop pipeline normally does this;
// it exists here for integration setups and tests against a real table.
func (s *MySQLOrderStore) Create(ctx context.Context, order *Order) error {
	items, surcharges, billing, paymentData, err := encodeOrderBlobs(order)
	if err != nil {
		return NewGatewayError(ErrPersistenceFailed, "encode order", order.ID, err)
	}

	query := `INSERT INTO orders
			  (id, document_number, total, currency, member_id, checked_out, date_paid, status, items, surcharges, billing, payment_data, payment_intent)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		order.ID, order.DocumentNumber, order.Total.StringFixed(2), order.Currency,
		order.MemberID, order.CheckedOut, nullableTime(order.DatePaid), order.Status,
		items, surcharges, billing, paymentData, ReadPaymentRecord(order).PaymentIntent)
	if err != nil {
		return NewGatewayError(ErrPersistenceFailed, "insert order", order.ID, err)
	}
	return nil
}

func (s *MySQLOrderStore) Load(ctx context.Context, orderID int64) (*Order, error) {
	query := `SELECT id, document_number, total, currency, member_id, checked_out, date_paid, status, items, surcharges, billing, payment_data
			  FROM orders WHERE id = ?`

	var (
		order      Order
		total      string
		datePaid   sql.NullTime
		items      []byte
		surcharges []byte
		billing    []byte
		blob       []byte
	)

	err := s.db.QueryRowContext(ctx, query, orderID).Scan(
		&order.ID, &order.DocumentNumber, &total, &order.Currency,
		&order.MemberID, &order.CheckedOut, &datePaid, &order.Status,
		&items, &surcharges, &billing, &blob)
	if err != nil {
		return nil, NewGatewayError(ErrPersistenceFailed, "load order", orderID, err)
	}

	order.Total, err = decimal.NewFromString(total)
	if err != nil {
		return nil, NewGatewayError(ErrPersistenceFailed, "decode order total", orderID, err)
	}
	if datePaid.Valid {
		order.DatePaid = datePaid.Time
	}

	if err := decodeOrderBlobs(&order, items, surcharges, billing, blob); err != nil {
		return nil, NewGatewayError(ErrPersistenceFailed, "decode order", orderID, err)
	}

	return &order, nil
}

func (s *MySQLOrderStore) Save(ctx context.Context, order *Order) error {
	_, _, _, paymentData, err := encodeOrderBlobs(order)
	if err != nil {
		return NewGatewayError(ErrPersistenceFailed, "encode order", order.ID, err)
	}

	query := `UPDATE orders
			  SET checked_out = ?, date_paid = ?, status = ?, payment_data = ?
			  WHERE id = ?`

	_, err = s.db.ExecContext(ctx, query,
		order.CheckedOut, nullableTime(order.DatePaid), order.Status, paymentData, order.ID)
	if err != nil {
		return NewGatewayError(ErrPersistenceFailed, "save order", order.ID, err)
	}
	return nil
}

func (s *MySQLOrderStore) ClaimPaymentIntent(ctx context.Context, order *Order, rec PaymentRecord) (bool, error) {
	rec.Version = paymentRecordVersion

	raw, err := json.Marshal(rec)
	if err != nil {
		return false, NewGatewayError(ErrPersistenceFailed, "encode payment record", order.ID, err)
	}

	merged := make(map[string]json.RawMessage, len(order.PaymentData)+1)
	for k, v := range order.PaymentData {
		merged[k] = v
	}
	merged[PaymentDataKey] = raw

	blob, err := json.Marshal(merged)
	if err != nil {
		return false, NewGatewayError(ErrPersistenceFailed, "encode payment data", order.ID, err)
	}

	query := `UPDATE orders
			  SET payment_intent = ?, payment_data = ?
			  WHERE id = ? AND payment_intent = ''`

	result, err := s.db.ExecContext(ctx, query, rec.PaymentIntent, blob, order.ID)
	if err != nil {
		return false, NewGatewayError(ErrPersistenceFailed, "claim payment intent", order.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, NewGatewayError(ErrPersistenceFailed, "claim payment intent", order.ID, err)
	}

	return affected == 1, nil
}

func encodeOrderBlobs(order *Order) (items, surcharges, billing, paymentData []byte, err error) {
	if items, err = json.Marshal(order.Items); err != nil {
		return
	}
	if surcharges, err = json.Marshal(order.Surcharges); err != nil {
		return
	}
	if billing, err = json.Marshal(order.Billing); err != nil {
		return
	}
	if order.PaymentData == nil {
		paymentData = []byte("{}")
		return
	}
	paymentData, err = json.Marshal(order.PaymentData)
	return
}

func decodeOrderBlobs(order *Order, items, surcharges, billing, blob []byte) error {
	if len(items) > 0 {
		if err := json.Unmarshal(items, &order.Items); err != nil {
			return err
		}
	}
	if len(surcharges) > 0 {
		if err := json.Unmarshal(surcharges, &order.Surcharges); err != nil {
			return err
		}
	}
	if len(billing) > 0 {
		if err := json.Unmarshal(billing, &order.Billing); err != nil {
			return err
		}
	}
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &order.PaymentData); err != nil {
			return err
		}
	}
	return nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
