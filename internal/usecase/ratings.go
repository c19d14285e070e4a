package usecase

import (
	"context"
	"strings"
	"time"

	domain "github.com/hsmazur/Taberna3/internal/entity"
)

type RatingInput struct {
	ProductID int64
	Score     int
	Comment   string
}

// Actor is the authenticated caller of an operation that checks ownership.
type Actor struct {
	UserID int64
	Role   domain.Role
}

func (a Actor) owns(userID int64) bool {
	return a.UserID == userID || a.Role == domain.RoleEmployee
}

type Ratings struct {
	repo     RatingRepo
	products ProductRepo
	now      func() time.Time
}

func NewRatings(repo RatingRepo, products ProductRepo) *Ratings {
	return &Ratings{repo: repo, products: products, now: time.Now}
}

// Create records a rating for a product the user bought in an Approved order.
func (uc *Ratings) Create(ctx context.Context, userID int64, in RatingInput) (*domain.Rating, error) {
	if !domain.ValidScore(in.Score) {
		return nil, ErrInvalidScore
	}
	if _, err := uc.products.Get(ctx, in.ProductID); err != nil {
		return nil, err
	}
	ok, err := uc.repo.HasConsumed(ctx, userID, in.ProductID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotConsumed
	}
	r := &domain.Rating{
		ProductID: in.ProductID,
		UserID:    userID,
		Score:     in.Score,
		Comment:   strings.TrimSpace(in.Comment),
		CreatedAt: uc.now().UTC(),
	}
	// one rating per (user, product) is enforced by the store
	if err := uc.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (uc *Ratings) Update(ctx context.Context, actor Actor, id int64, score int, comment string) (*domain.Rating, error) {
	if !domain.ValidScore(score) {
		return nil, ErrInvalidScore
	}
	r, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.owns(r.UserID) {
		return nil, ErrForbidden
	}
	r.Score = score
	r.Comment = strings.TrimSpace(comment)
	if err := uc.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (uc *Ratings) Delete(ctx context.Context, actor Actor, id int64) error {
	r, err := uc.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.owns(r.UserID) {
		return ErrForbidden
	}
	return uc.repo.Delete(ctx, id)
}

func (uc *Ratings) ByProduct(ctx context.Context, productID int64) ([]domain.Rating, error) {
	return uc.repo.ListByProduct(ctx, productID)
}

func (uc *Ratings) ByUser(ctx context.Context, userID int64) ([]domain.Rating, error) {
	return uc.repo.ListByUser(ctx, userID)
}

// Unrated lists products the user bought but has not rated yet.
func (uc *Ratings) Unrated(ctx context.Context, userID int64) ([]domain.Product, error) {
	return uc.repo.ConsumedNotRated(ctx, userID)
}

// Best returns the product with the highest average score; ties go to the one with more ratings.
func (uc *Ratings) Best(ctx context.Context) (*domain.ProductScore, error) {
	scores, err := uc.repo.Scores(ctx)
	if err != nil {
		return nil, err
	}
	var best *domain.ProductScore
	for i := range scores {
		s := &scores[i]
		if best == nil {
			best = s
			continue
		}
		switch c := s.Average.Cmp(best.Average); {
		case c > 0, c == 0 && s.Count > best.Count:
			best = s
		}
	}
	if best == nil {
		return nil, ErrRatingNotFound
	}
	out := *best
	out.Average = out.Average.Round(2)
	return &out, nil
}
