package service

import (
	"context"
	"strings"

	"smartmart/internal/entity"
)

type CategoryService struct {
	categoryRepo CategoryRepository
}

func NewCategoryService(categoryRepo CategoryRepository) *CategoryService {
	return &CategoryService{categoryRepo: categoryRepo}
}

func (s *CategoryService) Tree(ctx context.Context) ([]*entity.Category, error) {
	categories, err := s.categoryRepo.GetCategories(ctx)
	if err != nil {
		return nil, err
	}
	return entity.BuildCategoryTree(categories), nil
}

func (s *CategoryService) Create(ctx context.Context, category *entity.Category) (*entity.Category, error) {
	if err := validateCategory(category); err != nil {
		return nil, err
	}
	if category.ParentID != nil {
		if _, err := s.categoryRepo.GetCategory(ctx, *category.ParentID); err != nil {
			if translate(err) == ErrNotFound {
				return nil, invalid("parent_id", "does not exist")
			}
			return nil, err
		}
	}
	return s.categoryRepo.CreateCategory(ctx, category)
}

func (s *CategoryService) Update(ctx context.Context, category *entity.Category) (*entity.Category, error) {
	if err := validateCategory(category); err != nil {
		return nil, err
	}
	if _, err := s.categoryRepo.GetCategory(ctx, category.ID); err != nil {
		return nil, translate(err)
	}
	if category.ParentID != nil {
		if err := s.checkParent(ctx, category.ID, *category.ParentID); err != nil {
			return nil, err
		}
	}
	return s.categoryRepo.UpdateCategory(ctx, category)
}

func (s *CategoryService) Delete(ctx context.Context, id int64) error {
	return translate(s.categoryRepo.DeleteCategory(ctx, id))
}

// checkParent walks up from parentID and rejects the assignment when it reaches id.
// The walk stops at MaxCategoryDepth or on an already visited node.
func (s *CategoryService) checkParent(ctx context.Context, id, parentID int64) error {
	visited := map[int64]bool{}
	current := &parentID
	for depth := 0; current != nil; depth++ {
		if *current == id {
			return ErrCircularCategory
		}
		if visited[*current] || depth >= entity.MaxCategoryDepth {
			return ErrCircularCategory
		}
		visited[*current] = true

		node, err := s.categoryRepo.GetCategory(ctx, *current)
		if err != nil {
			if translate(err) == ErrNotFound {
				return invalid("parent_id", "does not exist")
			}
			return err
		}
		current = node.ParentID
	}
	return nil
}

func validateCategory(c *entity.Category) error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name", "is required")
	}
	if c.Slug == "" {
		c.Slug = slugify(c.Name)
	}
	return nil
}
