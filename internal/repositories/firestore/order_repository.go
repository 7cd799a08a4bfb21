package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/domain"
	pfirestore "github.com/nguyenthanhthao141104/eco-planner-sub000/internal/platform/firestore"
	"github.com/nguyenthanhthao141104/eco-planner-sub000/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists orders in Firestore. Stock reservation and status
// transitions run inside Firestore transactions so concurrent checkouts never
// oversell and concurrent callbacks never double-apply.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productDocument]
}

// NewOrderRepository constructs a Firestore backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil),
	}, nil
}

// CreateWithReservation checks and decrements stock for every requested line
// and inserts the order document in the same transaction. Either every line is
// reserved and the order exists, or nothing changed.
func (r *OrderRepository) CreateWithReservation(ctx context.Context, req repositories.OrderCreateRequest, price repositories.PricingFunc) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return domain.Order{}, errors.New("order create: order id is required")
	}
	if len(req.Items) == 0 {
		return domain.Order{}, errors.New("order create: at least one item is required")
	}
	if price == nil {
		return domain.Order{}, errors.New("order create: pricing function is required")
	}

	quantities := make(map[string]int, len(req.Items))
	for _, item := range req.Items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorProductNotFound, "order create: product id is required", nil)
		}
		if item.Quantity <= 0 {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorUnknown, fmt.Sprintf("order create: quantity for %s must be > 0", id), nil)
		}
		quantities[id] += item.Quantity
	}
	productIDs := make([]string, 0, len(quantities))
	for id := range quantities {
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)

	now := req.Now.UTC()
	var created domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, req.OrderID)
		if err != nil {
			return err
		}

		type reservedLine struct {
			ref  *firestore.DocumentRef
			doc  productDocument
			item domain.OrderItem
		}
		lines := make([]reservedLine, 0, len(productIDs))

		for _, productID := range productIDs {
			qty := quantities[productID]
			productRef, err := r.products.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewOrderError(repositories.OrderErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
				}
				return err
			}
			var product productDocument
			if err := snap.DataTo(&product); err != nil {
				return fmt.Errorf("decode product %s: %w", productID, err)
			}
			if product.Stock < qty {
				return repositories.NewOrderError(repositories.OrderErrorInsufficientStock, fmt.Sprintf("insufficient stock for %s", productID), nil)
			}
			lines = append(lines, reservedLine{
				ref: productRef,
				doc: product,
				item: domain.OrderItem{
					ProductID:   productID,
					ProductName: strings.TrimSpace(product.Name),
					Quantity:    qty,
					UnitPrice:   product.Price,
				},
			})
		}

		items := make([]domain.OrderItem, len(lines))
		for i, line := range lines {
			items[i] = line.item
		}
		totals := price(items)

		for _, line := range lines {
			line.doc.Stock -= line.item.Quantity
			line.doc.UpdatedAt = now
			if err := tx.Set(line.ref, line.doc); err != nil {
				return err
			}
		}

		order := domain.Order{
			ID:              req.OrderID,
			UserID:          strings.TrimSpace(req.UserID),
			Status:          domain.OrderStatusPending,
			Items:           items,
			Subtotal:        totals.Subtotal,
			ShippingFee:     totals.ShippingFee,
			Discount:        totals.Discount,
			Total:           totals.Total,
			PaymentMethod:   req.PaymentMethod,
			ShippingAddress: req.ShippingAddress,
			Note:            strings.TrimSpace(req.Note),
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("order.create", err)
	}
	return created, nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorUnknown, "order find: order id is required", nil)
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		var ferr *pfirestore.Error
		if errors.As(err, &ferr) && ferr.IsNotFound() {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
		}
		return domain.Order{}, wrapOrderError("order.find", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	if r == nil || r.orders == nil {
		return nil, errors.New("order repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, repositories.NewOrderError(repositories.OrderErrorUnknown, "order list: user id is required", nil)
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, wrapOrderError("order.list", err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

// UpdateStatus validates the lifecycle transition against the order's current
// status and applies it. Cancelling out of a stock-holding status restores the
// reserved quantities within the same transaction.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, to domain.OrderStatus, now time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorUnknown, "order update: order id is required", nil)
	}
	if _, err := domain.ParseOrderStatus(string(to)); err != nil {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorIllegalTransition, err.Error(), err)
	}

	now = now.UTC()
	var updated domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		from, err := domain.ParseOrderStatus(doc.Status)
		if err != nil {
			return fmt.Errorf("order %s has invalid status %q: %w", orderID, doc.Status, err)
		}
		if err := domain.Transition(from, to); err != nil {
			return repositories.NewOrderError(repositories.OrderErrorIllegalTransition, fmt.Sprintf("order %s: %s -> %s", orderID, from, to), err)
		}

		restock := to == domain.OrderStatusCancelled && domain.RestocksOnCancel(from)

		type restockLine struct {
			ref *firestore.DocumentRef
			doc productDocument
			qty int
		}
		var restocks []restockLine
		if restock {
			seen := make(map[string]int)
			for _, item := range doc.Items {
				seen[item.ProductID] += item.Quantity
			}
			productIDs := make([]string, 0, len(seen))
			for id := range seen {
				productIDs = append(productIDs, id)
			}
			sort.Strings(productIDs)
			for _, productID := range productIDs {
				productRef, err := r.products.DocumentRef(ctx, productID)
				if err != nil {
					return err
				}
				psnap, err := tx.Get(productRef)
				if err != nil {
					if status.Code(err) == codes.NotFound {
						// Product removed from catalog since purchase; nothing to restore.
						continue
					}
					return err
				}
				var product productDocument
				if err := psnap.DataTo(&product); err != nil {
					return fmt.Errorf("decode product %s: %w", productID, err)
				}
				restocks = append(restocks, restockLine{ref: productRef, doc: product, qty: seen[productID]})
			}
		}

		for _, line := range restocks {
			line.doc.Stock += line.qty
			line.doc.UpdatedAt = now
			if err := tx.Set(line.ref, line.doc); err != nil {
				return err
			}
		}

		doc.Status = string(to)
		doc.UpdatedAt = now
		switch to {
		case domain.OrderStatusConfirmed:
			doc.ConfirmedAt = &now
		case domain.OrderStatusCancelled:
			doc.CancelledAt = &now
		}

		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("order.updateStatus", err)
	}
	return updated, nil
}

// Document structures --------------------------------------------------------

type orderDocument struct {
	UserID      string              `firestore:"userId"`
	Status      string              `firestore:"status"`
	Items       []orderItemDocument `firestore:"items"`
	Subtotal    int64               `firestore:"subtotal"`
	ShippingFee int64               `firestore:"shippingFee"`
	Discount    int64               `firestore:"discount"`
	Total       int64               `firestore:"total"`
	Payment     string              `firestore:"paymentMethod"`
	Address     addressDocument     `firestore:"shippingAddress"`
	Note        string              `firestore:"note,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt"`
	ConfirmedAt *time.Time          `firestore:"confirmedAt,omitempty"`
	CancelledAt *time.Time          `firestore:"cancelledAt,omitempty"`
}

type orderItemDocument struct {
	ProductID   string `firestore:"productId"`
	ProductName string `firestore:"productName"`
	Quantity    int    `firestore:"qty"`
	UnitPrice   int64  `firestore:"unitPrice"`
}

type addressDocument struct {
	Recipient string `firestore:"recipient"`
	Phone     string `firestore:"phone"`
	Line1     string `firestore:"line1"`
	Ward      string `firestore:"ward,omitempty"`
	District  string `firestore:"district,omitempty"`
	City      string `firestore:"city"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
	}
	return orderDocument{
		UserID:      order.UserID,
		Status:      string(order.Status),
		Items:       items,
		Subtotal:    order.Subtotal,
		ShippingFee: order.ShippingFee,
		Discount:    order.Discount,
		Total:       order.Total,
		Payment:     string(order.PaymentMethod),
		Address: addressDocument{
			Recipient: order.ShippingAddress.Recipient,
			Phone:     order.ShippingAddress.Phone,
			Line1:     order.ShippingAddress.Line1,
			Ward:      order.ShippingAddress.Ward,
			District:  order.ShippingAddress.District,
			City:      order.ShippingAddress.City,
		},
		Note:        order.Note,
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),
		ConfirmedAt: order.ConfirmedAt,
		CancelledAt: order.CancelledAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
	}
	return domain.Order{
		ID:            id,
		UserID:        d.UserID,
		Status:        domain.OrderStatus(d.Status),
		Items:         items,
		Subtotal:      d.Subtotal,
		ShippingFee:   d.ShippingFee,
		Discount:      d.Discount,
		Total:         d.Total,
		PaymentMethod: domain.PaymentMethod(d.Payment),
		ShippingAddress: domain.Address{
			Recipient: d.Address.Recipient,
			Phone:     d.Address.Phone,
			Line1:     d.Address.Line1,
			Ward:      d.Address.Ward,
			District:  d.Address.District,
			City:      d.Address.City,
		},
		Note:        d.Note,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		ConfirmedAt: d.ConfirmedAt,
		CancelledAt: d.CancelledAt,
	}
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ordErr *repositories.OrderError
	if errors.As(err, &ordErr) {
		if ordErr.Op == "" {
			ordErr.Op = op
		}
		return ordErr
	}
	return pfirestore.WrapError(op, err)
}
