package catalog

import (
	"context"
	"fmt"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Amadou-dot/restockd/internal/validation"
)

// Blobs stores product images.
type Blobs interface {
	Put(ctx context.Context, prefix, name, contentType string, body []byte) (string, error)
	Delete(ctx context.Context, url string) error
}

const imagePrefix = "products"

// Service implements the public and admin catalog operations.
type Service struct {
	repo     Repository
	blobs    Blobs
	validate *validatorv10.Validate
	perPage  int
	logger   zerolog.Logger
	nowFunc  func() time.Time
	newID    func() string
}

func NewService(repo Repository, blobs Blobs, perPage int, logger zerolog.Logger) *Service {
	v := validation.New()
	v.RegisterStructValidation(inputRules, Input{})
	return &Service{
		repo:     repo,
		blobs:    blobs,
		validate: v,
		perPage:  perPage,
		logger:   logger.With().Str("component", "catalog").Logger(),
		nowFunc:  time.Now,
		newID:    uuid.NewString,
	}
}

// List pages through every product, newest first.
func (s *Service) List(ctx context.Context, page int) (Page, error) {
	all, err := s.repo.List(ctx, "")
	if err != nil {
		return Page{}, err
	}
	return paginate(all, page, s.perPage), nil
}

// ListOwned pages through the products created by ownerID.
func (s *Service) ListOwned(ctx context.Context, ownerID string, page int) (Page, error) {
	all, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return Page{}, err
	}
	return paginate(all, page, s.perPage), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProductNotFound
	}
	return p, nil
}

// Create validates in, uploads the image and stores a product owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID string, in Input, img *Image) (*Product, error) {
	if ownerID == "" {
		return nil, validation.Field("userId", "User ID is required")
	}
	in = in.trimmed()
	if err := validation.Struct(s.validate, in); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, validation.Field("image", "Product image is required and must be a file")
	}
	if err := checkImage(img); err != nil {
		return nil, err
	}

	url, err := s.blobs.Put(ctx, imagePrefix, img.Filename, img.ContentType, img.Data)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}

	now := s.nowFunc().UTC()
	p := Product{
		ID:          s.newID(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Image:       url,
		UserID:      ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		s.discardImage(ctx, url)
		return nil, err
	}
	s.logger.Info().Str("product_id", p.ID).Str("user_id", ownerID).Msg("product created")
	return &p, nil
}

// Update replaces the editable fields of a product owned by ownerID. The
// image is only replaced when img is non-nil.
func (s *Service) Update(ctx context.Context, ownerID, id string, in Input, img *Image) (*Product, error) {
	existing, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	in = in.trimmed()
	if err := validation.Struct(s.validate, in); err != nil {
		return nil, err
	}

	updated := *existing
	updated.Name = in.Name
	updated.Description = in.Description
	updated.Price = in.Price
	updated.UpdatedAt = s.nowFunc().UTC()

	if img != nil {
		if err := checkImage(img); err != nil {
			return nil, err
		}
		url, err := s.blobs.Put(ctx, imagePrefix, img.Filename, img.ContentType, img.Data)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
		updated.Image = url
	}

	if err := s.repo.Update(ctx, updated); err != nil {
		if updated.Image != existing.Image {
			s.discardImage(ctx, updated.Image)
		}
		return nil, err
	}
	if updated.Image != existing.Image {
		s.discardImage(ctx, existing.Image)
	}
	return &updated, nil
}

// Delete removes a product owned by ownerID and its image.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	existing, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.discardImage(ctx, existing.Image)
	s.logger.Info().Str("product_id", id).Str("user_id", ownerID).Msg("product deleted")
	return nil
}

func (s *Service) owned(ctx context.Context, ownerID, id string) (*Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != ownerID {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *Service) discardImage(ctx context.Context, url string) {
	if url == "" {
		return
	}
	if err := s.blobs.Delete(ctx, url); err != nil {
		s.logger.Warn().Err(err).Str("image", url).Msg("failed to delete image")
	}
}

// inputRules rejects prices with more than two decimal places.
func inputRules(sl validatorv10.StructLevel) {
	in := sl.Current().Interface().(Input)
	if !in.Price.Equal(in.Price.Round(2)) {
		sl.ReportError(in.Price, "price", "Price", "cents", "")
	}
}

func checkImage(img *Image) error {
	if len(img.Data) == 0 {
		return validation.Field("image", "Product image is required and must be a file")
	}
	if len(img.Data) > MaxImageSize {
		return validation.Field("image", "Image must be 5MB or smaller")
	}
	if !allowedImageTypes[img.ContentType] {
		return validation.Field("image", "Image must be a JPEG, PNG or WebP file")
	}
	return nil
}
