package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrDuplicateCheckout = errors.New("order already placed for this checkout attempt")
)

// OutboxEvent is one unpublished row of the order outbox. Events are written
// in the same transaction as the order so a crash never loses a placement
// notification.
type OutboxEvent struct {
	ID          int64
	AggregateID string // order number, used as the Kafka message key
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// RepoInterface is what the placement service and the outbox poller need
// from storage.
type RepoInterface interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrderByCheckoutID(ctx context.Context, checkoutID uuid.UUID) (*Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error)
	ListOrdersByOwner(ctx context.Context, ownerID string) ([]*Order, error)
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	Close() error
}

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}
	return nil
}

// CreateOrder inserts the order and its outbox event in one transaction.
// A repeat insert for the same checkout attempt returns
// ErrDuplicateCheckout; the caller re-reads the already-placed order.
func (r *Repository) CreateOrder(ctx context.Context, order *Order) error {
	linesJSON, err := json.Marshal(order.Lines)
	if err != nil {
		return fmt.Errorf("failed to marshal order lines: %w", err)
	}
	shippingJSON, err := json.Marshal(order.ShippingInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping info: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO orders
	          (order_number, checkout_id, owner_id, device_id, lines, subtotal, shipping_cost, tax, total,
	           shipping_method, shipping_info, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())`

	_, insertErr := tx.ExecContext(ctx, query,
		order.OrderNumber,
		order.CheckoutID,
		order.OwnerID,
		order.DeviceID,
		linesJSON,
		order.Subtotal,
		order.ShippingCost,
		order.Tax,
		order.Total,
		order.ShippingMethod,
		shippingJSON,
		order.Status)
	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateCheckout
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"order_number": order.OrderNumber,
		"owner_id":     order.OwnerID,
		"device_id":    order.DeviceID,
		"lines":        order.Lines,
		"total":        order.Total,
		"placed_at":    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	outboxQuery := `INSERT INTO order_outbox (aggregate_id, event_type, payload, created_at)
	                VALUES ($1, $2, $3, NOW())`
	if _, err := tx.ExecContext(ctx, outboxQuery, order.OrderNumber, "order.placed", payload); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return tx.Commit()
}

const orderColumns = `order_number, checkout_id, owner_id, device_id, lines, subtotal, shipping_cost, tax, total,
	 shipping_method, shipping_info, status, created_at, updated_at`

func (r *Repository) GetOrderByCheckoutID(ctx context.Context, checkoutID uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE checkout_id = $1`
	return r.scanOrder(r.db.QueryRowContext(ctx, query, checkoutID))
}

func (r *Repository) GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`
	return r.scanOrder(r.db.QueryRowContext(ctx, query, orderNumber))
}

func (r *Repository) scanOrder(row *sql.Row) (*Order, error) {
	var order Order
	var linesJSON, shippingJSON []byte
	err := row.Scan(
		&order.OrderNumber,
		&order.CheckoutID,
		&order.OwnerID,
		&order.DeviceID,
		&linesJSON,
		&order.Subtotal,
		&order.ShippingCost,
		&order.Tax,
		&order.Total,
		&order.ShippingMethod,
		&shippingJSON,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal(linesJSON, &order.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal order lines: %w", err)
	}
	if err := json.Unmarshal(shippingJSON, &order.ShippingInfo); err != nil {
		return nil, fmt.Errorf("unmarshal shipping info: %w", err)
	}
	return &order, nil
}

func (r *Repository) ListOrdersByOwner(ctx context.Context, ownerID string) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE owner_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query orders by owner: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		var order Order
		var linesJSON, shippingJSON []byte
		if err := rows.Scan(
			&order.OrderNumber,
			&order.CheckoutID,
			&order.OwnerID,
			&order.DeviceID,
			&linesJSON,
			&order.Subtotal,
			&order.ShippingCost,
			&order.Tax,
			&order.Total,
			&order.ShippingMethod,
			&shippingJSON,
			&order.Status,
			&order.CreatedAt,
			&order.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		if err := json.Unmarshal(linesJSON, &order.Lines); err != nil {
			return nil, fmt.Errorf("unmarshal order lines: %w", err)
		}
		if err := json.Unmarshal(shippingJSON, &order.ShippingInfo); err != nil {
			return nil, fmt.Errorf("unmarshal shipping info: %w", err)
		}
		orders = append(orders, &order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM order_outbox WHERE processed_at IS NULL ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE order_outbox SET processed_at = NOW() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
