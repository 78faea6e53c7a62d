package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/metalyard/metalyard/internal/ledger"
	"github.com/metalyard/metalyard/internal/observability"
	"github.com/metalyard/metalyard/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort abstracts the processed-key store.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates the purchase/sale workflow. Creation and deletion wrap
// the row write and the ledger append in one unit of work so a failed append
// leaves no transaction row behind, and vice versa.
type Service struct {
	repo        RepositoryPort
	engine      *ledger.Engine
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     *observability.Metrics
}

// NewService builds Service. audit, idempotency and metrics may be nil.
func NewService(repo RepositoryPort, engine *ledger.Engine, audit AuditPort, idempotency IdempotencyPort, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, engine: engine, audit: audit, idempotency: idempotency, metrics: metrics}
}

// PurchaseInput describes a purchase save request.
type PurchaseInput struct {
	MaterialID       int64
	SupplierName     string
	SupplierDocument string
	SupplierPhone    string
	Quantity         decimal.Decimal
	UnitPrice        decimal.Decimal
	OccurredAt       time.Time
	Note             string
	IdempotencyKey   string
}

// SaleInput describes a sale save request.
type SaleInput struct {
	MaterialID     int64
	CustomerName   string
	CustomerTaxID  string
	CustomerPhone  string
	CustomerEmail  string
	InvoiceNumber  string
	PaymentStatus  PaymentStatus
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	OccurredAt     time.Time
	Note           string
	IdempotencyKey string
}

// CreatePurchase persists the purchase row and its PURCHASE movement
// atomically.
func (s *Service) CreatePurchase(ctx context.Context, in PurchaseInput) (Purchase, error) {
	if err := validatePurchase(in); err != nil {
		return Purchase{}, err
	}

	claimed, err := s.claimKey(ctx, in.IdempotencyKey)
	if err != nil {
		return Purchase{}, err
	}

	now := time.Now().UTC()
	p := Purchase{
		MaterialID:       in.MaterialID,
		SupplierName:     in.SupplierName,
		SupplierDocument: in.SupplierDocument,
		SupplierPhone:    in.SupplierPhone,
		Quantity:         in.Quantity,
		UnitPrice:        in.UnitPrice,
		TotalValue:       in.Quantity.Mul(in.UnitPrice),
		OccurredAt:       occurredOrNow(in.OccurredAt, now),
		Note:             in.Note,
		CreatedAt:        now,
	}

	var mv ledger.Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPurchase(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		mv, err = s.engine.RecordPurchase(ctx, tx.Ledger(), p.MaterialID, p.Quantity, id,
			fmt.Sprintf("purchase #%d from %s", id, p.SupplierName))
		return err
	})
	if err != nil {
		s.releaseKey(ctx, claimed)
		return Purchase{}, err
	}

	s.metrics.CountMovement(string(mv.Kind))
	s.recordAudit(ctx, "trading:purchase:create", "purchase", p.ID, map[string]any{
		"material_id": p.MaterialID,
		"quantity":    p.Quantity.String(),
		"total_value": p.TotalValue.String(),
	})
	return p, nil
}

// UpdatePurchase changes supplier details, pricing or dates. Quantity is
// immutable after creation because the recorded movement already reflects it.
func (s *Service) UpdatePurchase(ctx context.Context, id int64, in PurchaseInput) (Purchase, error) {
	if err := validatePurchase(in); err != nil {
		return Purchase{}, err
	}
	current, err := s.repo.GetPurchase(ctx, id)
	if err != nil {
		return Purchase{}, err
	}
	if !in.Quantity.Equal(current.Quantity) {
		return Purchase{}, ErrQuantityImmutable
	}

	current.SupplierName = in.SupplierName
	current.SupplierDocument = in.SupplierDocument
	current.SupplierPhone = in.SupplierPhone
	current.UnitPrice = in.UnitPrice
	current.TotalValue = current.Quantity.Mul(in.UnitPrice)
	current.OccurredAt = occurredOrNow(in.OccurredAt, current.OccurredAt)
	current.Note = in.Note

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePurchase(ctx, current)
	})
	if err != nil {
		return Purchase{}, err
	}

	s.recordAudit(ctx, "trading:purchase:update", "purchase", id, map[string]any{
		"total_value": current.TotalValue.String(),
	})
	return current, nil
}

// DeletePurchase removes the row and appends the compensating adjustment in
// one unit of work.
func (s *Service) DeletePurchase(ctx context.Context, id int64) error {
	current, err := s.repo.GetPurchase(ctx, id)
	if err != nil {
		return err
	}

	var reversal ledger.Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		mv, err := tx.Ledger().BySourcePurchase(ctx, id)
		if err != nil {
			return err
		}
		reversal, err = s.engine.Reverse(ctx, tx.Ledger(), mv.ID,
			fmt.Sprintf("reversal of deleted purchase #%d", id))
		if err != nil {
			return err
		}
		return tx.DeletePurchase(ctx, id)
	})
	if err != nil {
		return err
	}

	s.metrics.CountMovement(string(reversal.Kind))
	s.recordAudit(ctx, "trading:purchase:delete", "purchase", id, map[string]any{
		"material_id": current.MaterialID,
		"quantity":    current.Quantity.String(),
	})
	return nil
}

// GetPurchase loads one purchase.
func (s *Service) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	return s.repo.GetPurchase(ctx, id)
}

// ListPurchases lists purchases newest-first.
func (s *Service) ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error) {
	return s.repo.ListPurchases(ctx, filter)
}

// CreateSale persists the sale row and its SALE movement atomically. A sale
// may drive the balance negative under the default permissive policy.
func (s *Service) CreateSale(ctx context.Context, in SaleInput) (Sale, error) {
	if err := validateSale(in); err != nil {
		return Sale{}, err
	}

	claimed, err := s.claimKey(ctx, in.IdempotencyKey)
	if err != nil {
		return Sale{}, err
	}

	now := time.Now().UTC()
	sale := Sale{
		MaterialID:    in.MaterialID,
		CustomerName:  in.CustomerName,
		CustomerTaxID: in.CustomerTaxID,
		CustomerPhone: in.CustomerPhone,
		CustomerEmail: in.CustomerEmail,
		InvoiceNumber: in.InvoiceNumber,
		PaymentStatus: statusOrPending(in.PaymentStatus),
		Quantity:      in.Quantity,
		UnitPrice:     in.UnitPrice,
		TotalValue:    in.Quantity.Mul(in.UnitPrice),
		OccurredAt:    occurredOrNow(in.OccurredAt, now),
		Note:          in.Note,
		CreatedAt:     now,
	}

	var mv ledger.Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = id
		mv, err = s.engine.RecordSale(ctx, tx.Ledger(), sale.MaterialID, sale.Quantity, id,
			fmt.Sprintf("sale #%d to %s", id, sale.CustomerName))
		return err
	})
	if err != nil {
		s.releaseKey(ctx, claimed)
		return Sale{}, err
	}

	s.metrics.CountMovement(string(mv.Kind))
	s.recordAudit(ctx, "trading:sale:create", "sale", sale.ID, map[string]any{
		"material_id": sale.MaterialID,
		"quantity":    sale.Quantity.String(),
		"total_value": sale.TotalValue.String(),
	})
	return sale, nil
}

// UpdateSale changes customer details, pricing, invoice or payment status.
// Quantity is immutable after creation.
func (s *Service) UpdateSale(ctx context.Context, id int64, in SaleInput) (Sale, error) {
	if err := validateSale(in); err != nil {
		return Sale{}, err
	}
	current, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return Sale{}, err
	}
	if !in.Quantity.Equal(current.Quantity) {
		return Sale{}, ErrQuantityImmutable
	}

	current.CustomerName = in.CustomerName
	current.CustomerTaxID = in.CustomerTaxID
	current.CustomerPhone = in.CustomerPhone
	current.CustomerEmail = in.CustomerEmail
	current.InvoiceNumber = in.InvoiceNumber
	current.PaymentStatus = statusOrPending(in.PaymentStatus)
	current.UnitPrice = in.UnitPrice
	current.TotalValue = current.Quantity.Mul(in.UnitPrice)
	current.OccurredAt = occurredOrNow(in.OccurredAt, current.OccurredAt)
	current.Note = in.Note

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateSale(ctx, current)
	})
	if err != nil {
		return Sale{}, err
	}

	s.recordAudit(ctx, "trading:sale:update", "sale", id, map[string]any{
		"payment_status": string(current.PaymentStatus),
	})
	return current, nil
}

// DeleteSale removes the row and appends the compensating adjustment in one
// unit of work.
func (s *Service) DeleteSale(ctx context.Context, id int64) error {
	current, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return err
	}

	var reversal ledger.Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		mv, err := tx.Ledger().BySourceSale(ctx, id)
		if err != nil {
			return err
		}
		reversal, err = s.engine.Reverse(ctx, tx.Ledger(), mv.ID,
			fmt.Sprintf("reversal of deleted sale #%d", id))
		if err != nil {
			return err
		}
		return tx.DeleteSale(ctx, id)
	})
	if err != nil {
		return err
	}

	s.metrics.CountMovement(string(reversal.Kind))
	s.recordAudit(ctx, "trading:sale:delete", "sale", id, map[string]any{
		"material_id": current.MaterialID,
		"quantity":    current.Quantity.String(),
	})
	return nil
}

// GetSale loads one sale.
func (s *Service) GetSale(ctx context.Context, id int64) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// ListSales lists sales newest-first.
func (s *Service) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	return s.repo.ListSales(ctx, filter)
}

func validatePurchase(in PurchaseInput) error {
	if in.MaterialID == 0 {
		return fmt.Errorf("%w: material required", ErrInvalidInput)
	}
	if in.SupplierName == "" {
		return fmt.Errorf("%w: supplier name required", ErrInvalidInput)
	}
	if !in.Quantity.IsPositive() {
		return ledger.ErrInvalidQuantity
	}
	if in.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must not be negative", ErrInvalidInput)
	}
	return nil
}

func validateSale(in SaleInput) error {
	if in.MaterialID == 0 {
		return fmt.Errorf("%w: material required", ErrInvalidInput)
	}
	if in.CustomerName == "" {
		return fmt.Errorf("%w: customer name required", ErrInvalidInput)
	}
	if !in.Quantity.IsPositive() {
		return ledger.ErrInvalidQuantity
	}
	if in.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must not be negative", ErrInvalidInput)
	}
	switch in.PaymentStatus {
	case "", PaymentPending, PaymentPaid, PaymentCancelled:
		return nil
	default:
		return fmt.Errorf("%w: unknown payment status %q", ErrInvalidInput, in.PaymentStatus)
	}
}

func statusOrPending(status PaymentStatus) PaymentStatus {
	if status == "" {
		return PaymentPending
	}
	return status
}

func occurredOrNow(occurred, fallback time.Time) time.Time {
	if occurred.IsZero() {
		return fallback
	}
	return occurred
}

// claimKey claims an optional client idempotency key and reports whether a
// claim was made.
func (s *Service) claimKey(ctx context.Context, key string) (string, error) {
	if key == "" || s.idempotency == nil {
		return "", nil
	}
	if _, err := uuid.Parse(key); err != nil {
		return "", fmt.Errorf("%w: idempotency key must be a uuid: %v", ErrInvalidInput, err)
	}
	if err := s.idempotency.CheckAndInsert(ctx, key, "trading"); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Service) releaseKey(ctx context.Context, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	_ = s.idempotency.Delete(ctx, key)
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
