package services

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/ports"
)

var _ ports.CatalogService = (*CatalogService)(nil)

type CatalogService struct {
	api ports.CatalogAPI
}

func NewCatalogService(api ports.CatalogAPI) *CatalogService {
	return &CatalogService{api: api}
}

// ProductDetails loads the product and its related gallery. A failing
// catalog listing only empties the gallery.
func (s *CatalogService) ProductDetails(ctx context.Context, productID string) (*domain.ProductDetails, error) {
	if productID == "" {
		return nil, domain.ErrProductNotFound
	}

	var (
		product domain.Product
		all     []domain.Product
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		product, err = s.api.FetchProduct(gctx, productID)
		return err
	})
	g.Go(func() error {
		var err error
		if all, err = s.api.FetchProducts(gctx); err != nil {
			slog.Warn("Related products unavailable", "product_id", productID, "error", err)
			all = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.ProductDetails{
		Product: product,
		Related: domain.RelatedGallery(product, all),
	}, nil
}
