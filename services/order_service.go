package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bestwork/mlm-system/models"
	"github.com/bestwork/mlm-system/repositories"
)

// orderNumberAttempts bounds the retry loop when a concurrent checkout claims
// the same order number.
const orderNumberAttempts = 3

type CheckoutInput struct {
	// AddressID selects a saved address. When empty, Address must carry a new
	// delivery address, saved to the member's address book when SaveAddress is
	// set.
	AddressID   string        `json:"address_id"`
	Address     *AddressInput `json:"address"`
	SaveAddress bool          `json:"save_address"`
}

type OrderService interface {
	Checkout(ctx context.Context, memberID int, input CheckoutInput) (*models.Order, error)
	GetOrder(ctx context.Context, memberID, orderID int) (*models.Order, error)
	ListOrders(ctx context.Context, memberID int) ([]models.Order, error)
}

type orderService struct {
	db          *sql.DB
	orderRepo   repositories.OrderRepository
	addressRepo repositories.AddressRepository
	memberRepo  repositories.MemberRepository
	cartSvc     CartService
	catalogSvc  CatalogService
	emailSvc    *EmailService
	logger      *slog.Logger
}

func NewOrderService(
	db *sql.DB,
	orderRepo repositories.OrderRepository,
	addressRepo repositories.AddressRepository,
	memberRepo repositories.MemberRepository,
	cartSvc CartService,
	catalogSvc CatalogService,
	emailSvc *EmailService,
	logger *slog.Logger,
) OrderService {
	return &orderService{
		db:          db,
		orderRepo:   orderRepo,
		addressRepo: addressRepo,
		memberRepo:  memberRepo,
		cartSvc:     cartSvc,
		catalogSvc:  catalogSvc,
		emailSvc:    emailSvc,
		logger:      logger,
	}
}

func (s *orderService) Checkout(ctx context.Context, memberID int, input CheckoutInput) (*models.Order, error) {
	lines, err := s.cartSvc.Lines(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrCartEmpty
	}

	address, err := s.resolveAddress(ctx, memberID, input)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		MemberID: memberID,
		Status:   models.OrderStatusPreparing,

		DeliveryLabel:      address.Label,
		DeliveryLine:       address.Line,
		DeliveryCity:       address.City,
		DeliveryDistrict:   address.District,
		DeliveryPostalCode: address.PostalCode,
		DeliveryNote:       address.Note,
	}

	for _, line := range lines {
		product, err := s.catalogSvc.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				continue
			}
			return nil, err
		}
		if !product.Active {
			continue
		}
		order.Items = append(order.Items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  line.Quantity,
		})
		order.Total += product.Price * float64(line.Quantity)
	}
	if len(order.Items) == 0 {
		return nil, ErrCartEmpty
	}

	// Two checkouts in the same second can compute the same daily sequence;
	// the unique index on order_number rejects the loser, which recounts and
	// tries again.
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber, err = s.nextOrderNumber(ctx, time.Now())
		if err != nil {
			return nil, err
		}
		err = s.createOrder(ctx, order)
		if err == nil || !errors.Is(err, repositories.ErrOrderNumberTaken) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	if err := s.cartSvc.Clear(ctx, memberID); err != nil {
		s.logger.Warn("failed to clear cart after checkout",
			slog.Int("member_id", memberID), slog.Any("error", err))
	}

	if s.emailSvc != nil {
		if member, err := s.memberRepo.GetByID(ctx, memberID); err == nil {
			if err := s.emailSvc.SendOrderConfirmationEmail(member.Email, order.OrderNumber, order.Total); err != nil {
				s.logger.Warn("failed to send order confirmation email",
					slog.String("order_number", order.OrderNumber), slog.Any("error", err))
			}
		}
	}

	return order, nil
}

func (s *orderService) createOrder(ctx context.Context, order *models.Order) error {
	if s.db == nil {
		return s.orderRepo.Create(ctx, nil, order)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin checkout transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		if errors.Is(err, repositories.ErrOrderMemberInvalid) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return tx.Commit()
}

// resolveAddress returns the delivery address for a checkout: either a saved
// address referenced by ID or a fresh one from the payload.
func (s *orderService) resolveAddress(ctx context.Context, memberID int, input CheckoutInput) (*models.Address, error) {
	if input.AddressID != "" {
		address, err := s.addressRepo.GetByAddressID(ctx, memberID, input.AddressID)
		if err != nil {
			if errors.Is(err, repositories.ErrAddressNotFound) {
				return nil, ErrAddressNotFound
			}
			return nil, err
		}
		return address, nil
	}

	if input.Address == nil || input.Address.Line == "" || input.Address.City == "" {
		return nil, ErrAddressIncomplete
	}
	address := &models.Address{
		Label:      input.Address.Label,
		Line:       input.Address.Line,
		City:       input.Address.City,
		District:   input.Address.District,
		PostalCode: input.Address.PostalCode,
		Note:       input.Address.Note,
	}
	if input.SaveAddress {
		if err := s.addressRepo.Create(ctx, memberID, address); err != nil {
			return nil, fmt.Errorf("failed to save delivery address: %w", err)
		}
	}
	return address, nil
}

// nextOrderNumber builds a human-readable order number: the timestamp down to
// seconds plus a three-digit sequence within the day.
func (s *orderService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	prefix := now.Format("060102")
	count, err := s.orderRepo.CountByNumberPrefix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to count today's orders: %w", err)
	}
	return fmt.Sprintf("%s%s%03d", prefix, now.Format("150405"), count+1), nil
}

func (s *orderService) GetOrder(ctx context.Context, memberID, orderID int) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.MemberID != memberID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, memberID int) ([]models.Order, error) {
	return s.orderRepo.ListByMember(ctx, memberID)
}
