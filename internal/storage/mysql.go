package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"

	"ticket-checkout/internal/config"
	"ticket-checkout/internal/logger"
	"ticket-checkout/internal/models"
)

const mysqlDuplicateEntry = 1062

type MySQLStore struct {
	db  *bun.DB
	log *logger.Logger
}

type mysqlTxKey struct{}

// DSN builds the driver DSN. clientFoundRows makes UPDATE report matched rows,
// so setting a counter to its current value is not mistaken for a missing row.
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

func NewMySQLStore(cfg config.DatabaseConfig, log *logger.Logger) (*MySQLStore, error) {
	log.LogDatabase("CONNECT", "mysql", fmt.Sprintf("Connecting to MySQL at %s:%s", cfg.Host, cfg.Port))

	sqldb, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		log.Error("DATABASE", "Failed to open MySQL connection: "+err.Error())
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Error("DATABASE", "Failed to ping MySQL: "+err.Error())
		_ = sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.LogDatabase("SUCCESS", "mysql", "MySQL connection established")
	return NewMySQLStoreFromDB(sqldb, log), nil
}

func NewMySQLStoreFromDB(sqldb *sql.DB, log *logger.Logger) *MySQLStore {
	return &MySQLStore{
		db:  bun.NewDB(sqldb, mysqldialect.New()),
		log: log,
	}
}

// WithTx runs fn in a READ COMMITTED transaction so that sums taken after a
// row lock see the rows committed by the previous lock holder.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(mysqlTxKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	return s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, mysqlTxKey{}, tx))
	})
}

func (s *MySQLStore) SaveEvent(ctx context.Context, event *models.Event) error {
	s.log.LogDatabase("UPSERT", "mysql", fmt.Sprintf("Saving event %s", event.ID))

	_, err := s.idb(ctx).NewInsert().
		Model(event).
		On("DUPLICATE KEY UPDATE").
		Set("name = VALUES(name)").
		Set("updated_at = VALUES(updated_at)").
		Set("deleted_at = COALESCE(deleted_at, VALUES(deleted_at))").
		Exec(ctx)
	if err != nil {
		return s.fail("save event", event.ID, err)
	}
	return nil
}

func (s *MySQLStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	event := new(models.Event)
	if err := s.idb(ctx).NewSelect().Model(event).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, s.fail("get event", id, err)
	}
	return event, nil
}

func (s *MySQLStore) ListEvents(ctx context.Context) ([]*models.Event, error) {
	var events []*models.Event
	if err := s.idb(ctx).NewSelect().Model(&events).Where("deleted_at IS NULL").Order("id").Scan(ctx); err != nil {
		return nil, s.fail("list events", "", err)
	}
	return events, nil
}

func (s *MySQLStore) LockEvent(ctx context.Context, id string) (*models.Event, error) {
	event := new(models.Event)
	if err := s.idb(ctx).NewSelect().Model(event).Where("id = ?", id).For("UPDATE").Scan(ctx); err != nil {
		return nil, s.fail("lock event", id, err)
	}
	return event, nil
}

func (s *MySQLStore) SetEventTotalTickets(ctx context.Context, id string, total int) error {
	res, err := s.idb(ctx).NewUpdate().
		Model((*models.Event)(nil)).
		Set("total_tickets = ?", total).
		Where("id = ?", id).
		Exec(ctx)
	return s.expectRow(res, err, "set event total", id)
}

func (s *MySQLStore) SaveTicketType(ctx context.Context, ticketType *models.TicketType) error {
	s.log.LogDatabase("INSERT", "mysql", fmt.Sprintf("Saving ticket type %s", ticketType.ID))

	if _, err := s.idb(ctx).NewInsert().Model(ticketType).Exec(ctx); err != nil {
		return s.fail("save ticket type", ticketType.ID, err)
	}
	return nil
}

func (s *MySQLStore) UpdateTicketType(ctx context.Context, ticketType *models.TicketType) error {
	res, err := s.idb(ctx).NewUpdate().
		Model(ticketType).
		Column("name", "unit_price", "capacity", "updated_at").
		WherePK().
		Exec(ctx)
	return s.expectRow(res, err, "update ticket type", ticketType.ID)
}

func (s *MySQLStore) GetTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	tt := new(models.TicketType)
	if err := s.idb(ctx).NewSelect().Model(tt).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, s.fail("get ticket type", id, err)
	}
	return tt, nil
}

func (s *MySQLStore) LockTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	tt := new(models.TicketType)
	if err := s.idb(ctx).NewSelect().Model(tt).Where("id = ?", id).For("UPDATE").Scan(ctx); err != nil {
		return nil, s.fail("lock ticket type", id, err)
	}
	return tt, nil
}

func (s *MySQLStore) ListTicketTypes(ctx context.Context, eventID string) ([]*models.TicketType, error) {
	var out []*models.TicketType
	err := s.idb(ctx).NewSelect().
		Model(&out).
		Where("event_id = ?", eventID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, s.fail("list ticket types", eventID, err)
	}
	return out, nil
}

func (s *MySQLStore) SetTicketTypeSold(ctx context.Context, id string, sold int) error {
	res, err := s.idb(ctx).NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("sold = ?", sold).
		Where("id = ?", id).
		Exec(ctx)
	return s.expectRow(res, err, "set ticket type sold", id)
}

func (s *MySQLStore) SaveTicket(ctx context.Context, ticket *models.Ticket) error {
	s.log.LogDatabase("INSERT", "mysql", fmt.Sprintf("Saving ticket %s", ticket.ID))

	if _, err := s.idb(ctx).NewInsert().Model(ticket).Exec(ctx); err != nil {
		return s.fail("save ticket", ticket.ID, err)
	}
	return nil
}

func (s *MySQLStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	ticket := new(models.Ticket)
	if err := s.idb(ctx).NewSelect().Model(ticket).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, s.fail("get ticket", id, err)
	}
	return ticket, nil
}

func (s *MySQLStore) LockTicket(ctx context.Context, id string) (*models.Ticket, error) {
	ticket := new(models.Ticket)
	if err := s.idb(ctx).NewSelect().Model(ticket).Where("id = ?", id).For("UPDATE").Scan(ctx); err != nil {
		return nil, s.fail("lock ticket", id, err)
	}
	return ticket, nil
}

func (s *MySQLStore) GetTickets(ctx context.Context, ids []string) ([]*models.Ticket, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []*models.Ticket
	err := s.idb(ctx).NewSelect().Model(&out).Where("id IN (?)", bun.In(ids)).Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, s.fail("get tickets", fmt.Sprintf("%d ids", len(ids)), err)
	}
	return out, nil
}

func (s *MySQLStore) DeleteTicket(ctx context.Context, id string) error {
	s.log.LogDatabase("DELETE", "mysql", fmt.Sprintf("Deleting ticket %s", id))

	res, err := s.idb(ctx).NewDelete().Model((*models.Ticket)(nil)).Where("id = ?", id).Exec(ctx)
	return s.expectRow(res, err, "delete ticket", id)
}

func (s *MySQLStore) SumTicketsByType(ctx context.Context, ticketTypeID string) (int, error) {
	return s.sumTickets(ctx, "ticket_type_id", ticketTypeID)
}

func (s *MySQLStore) SumTicketsByEvent(ctx context.Context, eventID string) (int, error) {
	return s.sumTickets(ctx, "event_id", eventID)
}

func (s *MySQLStore) sumTickets(ctx context.Context, column, value string) (int, error) {
	var total int
	err := s.idb(ctx).NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("COALESCE(SUM(quantity), 0)").
		Where("? = ?", bun.Ident(column), value).
		Scan(ctx, &total)
	if err != nil {
		return 0, s.fail("sum tickets by "+column, value, err)
	}
	return total, nil
}

func (s *MySQLStore) IsTicketOrdered(ctx context.Context, ticketID string) (bool, error) {
	ok, err := s.idb(ctx).NewSelect().
		Model((*models.OrderTicket)(nil)).
		Where("ticket_id = ?", ticketID).
		Exists(ctx)
	if err != nil {
		return false, s.fail("check ticket ordered", ticketID, err)
	}
	return ok, nil
}

func (s *MySQLStore) SaveOrder(ctx context.Context, order *models.Order) error {
	s.log.LogDatabase("INSERT", "mysql", fmt.Sprintf("Saving order %s (reference %s)", order.ID, order.PaymentReference))

	return s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.lockOrderTickets(ctx, order.TicketIDs); err != nil {
			return err
		}
		if _, err := s.idb(ctx).NewInsert().Model(order).Exec(ctx); err != nil {
			return s.fail("save order", order.ID, err)
		}

		links := make([]models.OrderTicket, 0, len(order.TicketIDs))
		for _, ticketID := range order.TicketIDs {
			links = append(links, models.OrderTicket{OrderID: order.ID, TicketID: ticketID})
		}
		if _, err := s.idb(ctx).NewInsert().Model(&links).Exec(ctx); err != nil {
			return s.fail("save order tickets", order.ID, err)
		}
		return nil
	})
}

// lockOrderTickets holds the ticket rows until the order commits, so a
// concurrent release either finishes first or sees the order.
func (s *MySQLStore) lockOrderTickets(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var locked []string
	err := s.idb(ctx).NewSelect().
		Model((*models.Ticket)(nil)).
		Column("id").
		Where("id IN (?)", bun.In(ids)).
		Order("id").
		For("UPDATE").
		Scan(ctx, &locked)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return s.fail("lock order tickets", fmt.Sprintf("%d ids", len(ids)), err)
	}

	found := make(map[string]bool, len(locked))
	for _, id := range locked {
		found[id] = true
	}
	for _, id := range ids {
		if !found[id] {
			return fmt.Errorf("%w: ticket %s", ErrNotFound, id)
		}
	}
	return nil
}

func (s *MySQLStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order := new(models.Order)
	if err := s.idb(ctx).NewSelect().Model(order).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, s.fail("get order", id, err)
	}
	return order, s.loadTicketIDs(ctx, order)
}

func (s *MySQLStore) GetOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	order := new(models.Order)
	if err := s.idb(ctx).NewSelect().Model(order).Where("payment_reference = ?", reference).Scan(ctx); err != nil {
		return nil, s.fail("get order by reference", reference, err)
	}
	return order, s.loadTicketIDs(ctx, order)
}

func (s *MySQLStore) MarkOrderPaid(ctx context.Context, reference string, at time.Time) (bool, error) {
	res, err := s.idb(ctx).NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderPaid).
		Set("paid_at = ?", at).
		Where("payment_reference = ?", reference).
		Where("status = ?", models.OrderPending).
		Exec(ctx)
	if err != nil {
		return false, s.fail("mark order paid", reference, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	s.log.LogDatabase("UPDATE", "mysql", fmt.Sprintf("Order %s pending->paid rows=%d", reference, n))
	return n == 1, nil
}

func (s *MySQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MySQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "mysql", "Closing MySQL connection")
	return s.db.Close()
}

// DB exposes the underlying handle for migrations.
func (s *MySQLStore) DB() *bun.DB {
	return s.db
}

func (s *MySQLStore) loadTicketIDs(ctx context.Context, order *models.Order) error {
	var ids []string
	err := s.idb(ctx).NewSelect().
		Model((*models.OrderTicket)(nil)).
		Column("ticket_id").
		Where("order_id = ?", order.ID).
		Order("ticket_id ASC").
		Scan(ctx, &ids)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return s.fail("load order tickets", order.ID, err)
	}
	order.TicketIDs = ids
	return nil
}

func (s *MySQLStore) idb(ctx context.Context) bun.IDB {
	if tx, ok := ctx.Value(mysqlTxKey{}).(bun.Tx); ok {
		return tx
	}
	return s.db
}

func (s *MySQLStore) expectRow(res sql.Result, err error, op, id string) error {
	if err != nil {
		return s.fail(op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		s.log.LogDatabase("NOT_FOUND", "mysql", fmt.Sprintf("%s: %s not found", op, id))
		return ErrNotFound
	}
	return nil
}

func (s *MySQLStore) fail(op, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		s.log.LogDatabase("NOT_FOUND", "mysql", fmt.Sprintf("%s: %s not found", op, id))
		return ErrNotFound
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return ErrDuplicate
	}
	s.log.Error("DATABASE", fmt.Sprintf("Failed to %s %s: %s", op, id, err.Error()))
	return fmt.Errorf("failed to %s: %w", op, err)
}
