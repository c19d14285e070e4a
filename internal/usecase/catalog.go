package usecase

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/hsmazur/Taberna3/internal/entity"
)

type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
}

func (in ProductInput) product() domain.Product {
	return domain.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price.Round(2),
		ImageURL:    strings.TrimSpace(in.ImageURL),
	}
}

type Catalog struct{ repo ProductRepo }

func NewCatalog(repo ProductRepo) *Catalog { return &Catalog{repo: repo} }

func (uc *Catalog) List(ctx context.Context) ([]domain.Product, error) {
	return uc.repo.List(ctx)
}

func (uc *Catalog) Get(ctx context.Context, id int64) (*domain.Product, error) {
	return uc.repo.Get(ctx, id)
}

func (uc *Catalog) Create(ctx context.Context, in ProductInput) (*domain.Product, error) {
	p := in.product()
	if err := p.Validate(); err != nil {
		return nil, invalidf("name and a positive price are required")
	}
	if err := uc.repo.Create(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update replaces a product. Prices already snapshotted on order lines are not touched.
func (uc *Catalog) Update(ctx context.Context, id int64, in ProductInput) (*domain.Product, error) {
	p := in.product()
	p.ID = id
	if err := p.Validate(); err != nil {
		return nil, invalidf("name and a positive price are required")
	}
	if err := uc.repo.Update(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (uc *Catalog) Delete(ctx context.Context, id int64) error {
	return uc.repo.Delete(ctx, id)
}
