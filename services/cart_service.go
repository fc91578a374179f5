package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bestwork/mlm-system/models"
	"github.com/bestwork/mlm-system/repositories"
	"github.com/redis/go-redis/v9"
)

const cartTTL = 7 * 24 * time.Hour

type CartService interface {
	Get(ctx context.Context, memberID int) (*models.Cart, error)
	SetItem(ctx context.Context, memberID, productID, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, memberID, productID int) (*models.Cart, error)
	Clear(ctx context.Context, memberID int) error
	// Lines returns the raw product/quantity pairs without the catalog join.
	Lines(ctx context.Context, memberID int) ([]models.CartLine, error)
}

type cartService struct {
	rdb         *redis.Client
	productRepo repositories.ProductRepository
}

func NewCartService(rdb *redis.Client, productRepo repositories.ProductRepository) CartService {
	return &cartService{rdb: rdb, productRepo: productRepo}
}

func cartKey(memberID int) string {
	return fmt.Sprintf("cart:%d", memberID)
}

func (s *cartService) Get(ctx context.Context, memberID int) (*models.Cart, error) {
	lines, err := s.Lines(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return s.buildCart(ctx, lines)
}

func (s *cartService) SetItem(ctx context.Context, memberID, productID, quantity int) (*models.Cart, error) {
	if quantity < 0 {
		return nil, ErrQuantityInvalid
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, memberID, productID)
	}

	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if !product.Active {
		return nil, ErrProductNotFound
	}

	key := cartKey(memberID)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(productID), quantity)
	pipe.Expire(ctx, key, cartTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to store cart line: %w", err)
	}

	return s.Get(ctx, memberID)
}

func (s *cartService) RemoveItem(ctx context.Context, memberID, productID int) (*models.Cart, error) {
	if err := s.rdb.HDel(ctx, cartKey(memberID), strconv.Itoa(productID)).Err(); err != nil {
		return nil, fmt.Errorf("failed to remove cart line: %w", err)
	}
	return s.Get(ctx, memberID)
}

func (s *cartService) Clear(ctx context.Context, memberID int) error {
	if err := s.rdb.Del(ctx, cartKey(memberID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (s *cartService) Lines(ctx context.Context, memberID int) ([]models.CartLine, error) {
	entries, err := s.rdb.HGetAll(ctx, cartKey(memberID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	lines := make([]models.CartLine, 0, len(entries))
	for field, value := range entries {
		productID, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		quantity, err := strconv.Atoi(value)
		if err != nil || quantity <= 0 {
			continue
		}
		lines = append(lines, models.CartLine{ProductID: productID, Quantity: quantity})
	}
	return lines, nil
}

// buildCart joins cart lines against the catalog. Lines whose product has been
// removed or deactivated since they were added are silently dropped.
func (s *cartService) buildCart(ctx context.Context, lines []models.CartLine) (*models.Cart, error) {
	cart := &models.Cart{Items: []models.CartItem{}}
	for _, line := range lines {
		product, err := s.productRepo.GetByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, repositories.ErrProductNotFound) {
				continue
			}
			return nil, err
		}
		if !product.Active {
			continue
		}
		subtotal := product.Price * float64(line.Quantity)
		cart.Items = append(cart.Items, models.CartItem{
			Product:  *product,
			Quantity: line.Quantity,
			Subtotal: subtotal,
		})
		cart.Total += subtotal
	}
	return cart, nil
}
