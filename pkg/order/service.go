package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"shopper/pkg/cart"
	"shopper/pkg/logger"
	"shopper/pkg/metrics"
	"shopper/pkg/product"
)

// Event is emitted after a successful state change. Delivery is best-effort
// and never affects the committed transaction.
type Event struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	TotalPrice int       `json:"totalPrice"`
	OccurredAt time.Time `json:"occurredAt"`
}

const (
	EventPlaced    = "order.placed"
	EventCancelled = "order.cancelled"
	EventPaid      = "order.paid"
)

// EventPublisher delivers order events to interested consumers.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}

// Config bounds the conflict retry loop.
type Config struct {
	// MaxRetries is how many times a placement is re-attempted after a
	// concurrency conflict before the conflict is surfaced.
	MaxRetries int
	// RetryBackoff is slept between attempts.
	RetryBackoff time.Duration
}

// DefaultConfig is used where a field is left zero.
var DefaultConfig = Config{MaxRetries: 3, RetryBackoff: 25 * time.Millisecond}

// Service orchestrates order placement, cancellation and payment
// confirmation over one unit of work.
type Service struct {
	uow  UnitOfWork
	repo Repository
	pub  EventPublisher
	m    *metrics.OrderMetrics
	log  *logger.Logger
	cfg  Config
}

// NewService creates the orchestrator. pub and m may be nil.
func NewService(uow UnitOfWork, repo Repository, pub EventPublisher, m *metrics.OrderMetrics, log *logger.Logger, cfg Config) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig.RetryBackoff
	}
	return &Service{uow: uow, repo: repo, pub: pub, m: m, log: log, cfg: cfg}
}

// Place converts the selected cart lines into a PENDING order: it validates
// the caller, the destination and every line, reserves stock per line,
// stores the order with its snapshots and the computed total, and deletes
// the consumed cart lines, all in one atomic unit. A concurrency conflict
// restarts the whole attempt from a fresh read, up to the configured bound.
func (s *Service) Place(ctx context.Context, userID, addressID string, cartLineIDs []string) (Order, error) {
	if len(cartLineIDs) == 0 {
		return Order{}, ErrEmptySelection
	}

	var placed Order
	for attempt := 0; ; attempt++ {
		err := s.uow.Run(ctx, func(tx Tx) error {
			o, err := s.placeOnce(ctx, tx, userID, addressID, cartLineIDs)
			if err != nil {
				return err
			}
			placed = o
			return nil
		})
		if err == nil {
			break
		}
		if errors.Is(err, product.ErrConflict) && attempt < s.cfg.MaxRetries {
			s.m.ConflictRetried()
			s.log.Info(ctx, "placement conflict, retrying", "user_id", userID, "attempt", attempt+1)
			time.Sleep(s.cfg.RetryBackoff)
			continue
		}
		return Order{}, err
	}

	s.m.OrderPlaced()
	s.publish(ctx, Event{
		Type: EventPlaced, OrderID: placed.ID, UserID: placed.UserID,
		TotalPrice: placed.TotalPrice, OccurredAt: placed.CreatedAt,
	})
	return placed, nil
}

func (s *Service) placeOnce(ctx context.Context, tx Tx, userID, addressID string, cartLineIDs []string) (Order, error) {
	if _, err := tx.FindUser(ctx, userID); err != nil {
		return Order{}, err
	}
	if _, err := tx.FindAddress(ctx, addressID, userID); err != nil {
		return Order{}, err
	}

	lines := make([]cart.Line, 0, len(cartLineIDs))
	for _, id := range cartLineIDs {
		l, err := tx.CartLineForUser(ctx, id, userID)
		if err != nil {
			return Order{}, err
		}
		lines = append(lines, l)
	}

	o := Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		AddressID: addressID,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	// Lines are reserved in selection order: when two lines name the same
	// product, the second one validates against the already-decremented
	// stock and loses ties for the last units.
	total := 0
	for _, cl := range lines {
		p, err := tx.GetProduct(ctx, cl.ProductID)
		if err != nil {
			return Order{}, err
		}
		if p.Status != product.StatusActive {
			return Order{}, product.ErrUnavailable
		}
		if cl.Quantity > p.Stock {
			return Order{}, product.ErrOutOfStock
		}
		if err := tx.ReserveStock(ctx, p.ID, cl.Quantity, p.Version); err != nil {
			return Order{}, err
		}
		// The same read supplies both the total and the snapshot, so the
		// two can never drift.
		total += p.Price * cl.Quantity
		o.Lines = append(o.Lines, Line{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			ProductID:   p.ID,
			ProductName: p.Name,
			Price:       p.Price,
			Quantity:    cl.Quantity,
		})
	}
	o.TotalPrice = total

	if err := tx.CreateOrder(ctx, o); err != nil {
		return Order{}, err
	}
	for _, cl := range lines {
		if err := tx.DeleteCartLine(ctx, cl.ID); err != nil {
			return Order{}, err
		}
	}
	return o, nil
}

// Cancel reverses a PENDING order: every line's quantity is released back
// to its product and the order becomes CANCELLED, atomically. PAID and
// already-CANCELLED orders are rejected without touching stock.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) error {
	var cancelled Order
	err := s.uow.Run(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUser(ctx, orderID, userID)
		if err != nil {
			return err
		}
		switch o.Status {
		case StatusPaid:
			return ErrAlreadyPaid
		case StatusCancelled:
			return ErrCancelNotAllowed
		}
		for _, l := range o.Lines {
			if err := tx.ReleaseStock(ctx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		if err := tx.UpdateOrderStatus(ctx, o.ID, StatusCancelled); err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return err
	}

	s.m.OrderCancelled()
	s.publish(ctx, Event{
		Type: EventCancelled, OrderID: cancelled.ID, UserID: cancelled.UserID,
		TotalPrice: cancelled.TotalPrice, OccurredAt: time.Now().UTC(),
	})
	return nil
}

// MarkPaid records an external payment confirmation. Only PENDING orders
// can become PAID.
func (s *Service) MarkPaid(ctx context.Context, orderID string) error {
	var paid Order
	err := s.uow.Run(ctx, func(tx Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusPending {
			return ErrNotPayable
		}
		if err := tx.UpdateOrderStatus(ctx, o.ID, StatusPaid); err != nil {
			return err
		}
		paid = o
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, Event{
		Type: EventPaid, OrderID: paid.ID, UserID: paid.UserID,
		TotalPrice: paid.TotalPrice, OccurredAt: time.Now().UTC(),
	})
	return nil
}

// Get returns one of the caller's orders with its line snapshots.
func (s *Service) Get(ctx context.Context, userID, orderID string) (Order, error) {
	return s.repo.GetForUser(ctx, orderID, userID)
}

// List returns the caller's orders, newest first.
func (s *Service) List(ctx context.Context, userID string, page product.Page) ([]Order, error) {
	return s.repo.ListByUser(ctx, userID, page)
}

func (s *Service) publish(ctx context.Context, e Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, e); err != nil {
		s.log.Error(ctx, "publish order event", "type", e.Type, "order_id", e.OrderID, "error", err)
	}
}
