package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bestwork/mlm-system/models"
	"github.com/bestwork/mlm-system/repositories"
	"github.com/bestwork/mlm-system/storage"
)

type ProductInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	PointValue  float64 `json:"point_value"`
	Active      *bool   `json:"active"`
}

type CatalogService interface {
	ListProducts(ctx context.Context, includeInactive bool) ([]models.Product, error)
	GetProduct(ctx context.Context, id int) (*models.Product, error)
	CreateProduct(ctx context.Context, input ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, id int, input ProductInput) (*models.Product, error)
	DeleteProduct(ctx context.Context, id int) error
	UploadProductImage(ctx context.Context, id int, contentType string, file io.Reader) (*models.Product, error)
}

type catalogService struct {
	productRepo repositories.ProductRepository
	uploader    storage.FileUploader
	logger      *slog.Logger
}

func NewCatalogService(productRepo repositories.ProductRepository, uploader storage.FileUploader, logger *slog.Logger) CatalogService {
	return &catalogService{
		productRepo: productRepo,
		uploader:    uploader,
		logger:      logger,
	}
}

func (s *catalogService) ListProducts(ctx context.Context, includeInactive bool) ([]models.Product, error) {
	products, err := s.productRepo.List(ctx, !includeInactive)
	if err != nil {
		return nil, err
	}
	for i := range products {
		s.fillImageURL(&products[i])
	}
	return products, nil
}

func (s *catalogService) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	s.fillImageURL(product)
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, input ProductInput) (*models.Product, error) {
	if err := validateProductInput(input); err != nil {
		return nil, err
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}
	product := &models.Product{
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		PointValue:  input.PointValue,
		Active:      active,
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, id int, input ProductInput) (*models.Product, error) {
	if err := validateProductInput(input); err != nil {
		return nil, err
	}
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	product.Name = input.Name
	product.Description = input.Description
	product.Price = input.Price
	product.PointValue = input.PointValue
	if input.Active != nil {
		product.Active = *input.Active
	}

	if err := s.productRepo.Update(ctx, product); err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	s.fillImageURL(product)
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, id int) error {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return ErrProductNotFound
		}
		return err
	}
	if err := s.productRepo.Delete(ctx, id); err != nil {
		return err
	}
	if product.ImageKey != nil && s.uploader != nil {
		if err := s.uploader.Delete(ctx, *product.ImageKey); err != nil {
			s.logger.Warn("failed to delete product image",
				slog.String("key", *product.ImageKey), slog.Any("error", err))
		}
	}
	return nil
}

func (s *catalogService) UploadProductImage(ctx context.Context, id int, contentType string, file io.Reader) (*models.Product, error) {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	ext := extensionForContentType(contentType)
	if ext == "" {
		return nil, fmt.Errorf("%w: unsupported image content type %q", ErrValidationFailed, contentType)
	}

	key := fmt.Sprintf("products/%d%s", id, ext)
	result, err := s.uploader.Upload(ctx, key, contentType, file)
	if err != nil {
		return nil, fmt.Errorf("failed to upload product image: %w", err)
	}
	if err := s.productRepo.UpdateImageKey(ctx, id, &result.Key); err != nil {
		return nil, err
	}

	product.ImageKey = &result.Key
	s.fillImageURL(product)
	return product, nil
}

func (s *catalogService) fillImageURL(product *models.Product) {
	if product.ImageKey == nil || s.uploader == nil {
		return
	}
	url := s.uploader.GetPublicURL(*product.ImageKey)
	product.ImageURL = &url
}

func validateProductInput(input ProductInput) error {
	if input.Name == "" {
		return fmt.Errorf("%w: product name is required", ErrValidationFailed)
	}
	if input.Price < 0 || input.PointValue < 0 {
		return fmt.Errorf("%w: price and point value must not be negative", ErrValidationFailed)
	}
	return nil
}
