package catalog

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/zsp-sports/gymbooking/internal/domain"
	"github.com/zsp-sports/gymbooking/internal/repository"
)

type CatalogUseCase interface {
	ListPackages(ctx context.Context) ([]domain.Package, error)
	AvailabilityByPackage(ctx context.Context, packageID int64) ([]domain.TimeslotAvailability, error)
}

// Cache is read-through: a miss falls back to the store and repopulates.
// A nil cache disables caching entirely.
type Cache interface {
	GetPackages(ctx context.Context) ([]domain.Package, error)
	SetPackages(ctx context.Context, packages []domain.Package) error
	GetAvailability(ctx context.Context, packageID int64) ([]domain.TimeslotAvailability, error)
	SetAvailability(ctx context.Context, packageID int64, slots []domain.TimeslotAvailability) error
}

type CatalogService struct {
	repo  repository.CatalogRepository
	cache Cache
}

func NewCatalogService(repo repository.CatalogRepository, cache Cache) *CatalogService {
	return &CatalogService{repo: repo, cache: cache}
}

func (s *CatalogService) ListPackages(ctx context.Context) ([]domain.Package, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetPackages(ctx); err == nil && cached != nil {
			return cached, nil
		}
	}

	packages, err := s.repo.ListActivePackages(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetPackages(ctx, packages); err != nil {
			log.Debug().Err(err).Msg("failed to cache packages")
		}
	}
	return packages, nil
}

func (s *CatalogService) AvailabilityByPackage(ctx context.Context, packageID int64) ([]domain.TimeslotAvailability, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetAvailability(ctx, packageID); err == nil && cached != nil {
			return cached, nil
		}
	}

	slots, err := s.repo.AvailabilityByPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetAvailability(ctx, packageID, slots); err != nil {
			log.Debug().Err(err).Int64("package_id", packageID).Msg("failed to cache availability")
		}
	}
	return slots, nil
}

// RefreshAvailability rebuilds the availability cache for every active
// package. The worker calls this on a ticker so listings stay warm without
// the request path paying for the joins.
func (s *CatalogService) RefreshAvailability(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}

	packages, err := s.repo.ListActivePackages(ctx)
	if err != nil {
		return err
	}
	for _, pkg := range packages {
		slots, err := s.repo.AvailabilityByPackage(ctx, pkg.ID)
		if err != nil {
			return err
		}
		if err := s.cache.SetAvailability(ctx, pkg.ID, slots); err != nil {
			log.Debug().Err(err).Int64("package_id", pkg.ID).Msg("failed to refresh availability cache")
		}
	}
	return nil
}

var _ CatalogUseCase = (*CatalogService)(nil)
