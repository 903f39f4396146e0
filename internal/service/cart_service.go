package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"smartmart/internal/entity"
)

type CartService struct {
	cartRepo    CartRepository
	productRepo ProductRepository
}

func NewCartService(cartRepo CartRepository, productRepo ProductRepository) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo}
}

// Get returns the owner's cart, or an empty unsaved cart when there is none.
func (s *CartService) Get(ctx context.Context, owner entity.CartOwner) (*entity.Cart, error) {
	cart, err := s.cartRepo.GetCartByOwner(ctx, owner)
	if err != nil {
		if translate(err) == ErrNotFound {
			return &entity.Cart{UserID: owner.UserID, SessionID: owner.SessionID, Items: []entity.CartItem{}, Subtotal: decimal.Zero}, nil
		}
		return nil, err
	}
	return cart, nil
}

func (s *CartService) getOrCreate(ctx context.Context, owner entity.CartOwner) (*entity.Cart, error) {
	if owner.IsZero() {
		return nil, invalid("cart", "no cart owner")
	}
	cart, err := s.cartRepo.GetCartByOwner(ctx, owner)
	if err == nil {
		return cart, nil
	}
	if translate(err) != ErrNotFound {
		return nil, err
	}
	return s.cartRepo.CreateCart(ctx, &entity.Cart{UserID: owner.UserID, SessionID: owner.SessionID})
}

// AddItem adds qty of a product or variant, merging with an existing line.
func (s *CartService) AddItem(ctx context.Context, owner entity.CartOwner, productID int64, variantID *int64, qty int) (*entity.Cart, error) {
	if qty < 1 {
		return nil, invalid("quantity", "must be at least 1")
	}

	product, err := s.productRepo.GetProductByID(ctx, productID)
	if err != nil {
		if translate(err) == ErrNotFound {
			return nil, invalid("product_id", "does not exist")
		}
		return nil, err
	}
	if !product.IsActive {
		return nil, invalid("product_id", "is not available")
	}
	price, sku, ok := product.PriceFor(variantID)
	if !ok {
		return nil, invalid("variant_id", "does not belong to this product")
	}

	cart, err := s.getOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}

	idx := cart.FindItem(productID, variantID)
	wanted := qty
	if idx >= 0 {
		wanted += cart.Items[idx].Quantity
	}
	if !product.InStock(variantID, wanted) {
		return nil, &ValidationError{Fields: map[string]string{
			"quantity": fmt.Sprintf("only %d of %s available", availableQuantity(product, variantID), product.Name),
		}}
	}

	if idx >= 0 {
		item := &cart.Items[idx]
		item.Quantity = wanted
		item.UnitPrice = price
		item.TotalPrice = price.Mul(decimal.NewFromInt(int64(wanted)))
		if err := s.cartRepo.UpdateCartItem(ctx, item); err != nil {
			return nil, err
		}
	} else {
		name := product.Name
		for _, v := range product.Variants {
			if variantID != nil && v.ID == *variantID {
				name = product.Name + " - " + v.Name
			}
		}
		item := entity.CartItem{
			CartID:     cart.ID,
			ProductID:  productID,
			VariantID:  variantID,
			Name:       name,
			SKU:        sku,
			Quantity:   qty,
			UnitPrice:  price,
			TotalPrice: price.Mul(decimal.NewFromInt(int64(qty))),
		}
		if err := s.cartRepo.InsertCartItem(ctx, &item); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}

	return s.saveTotals(ctx, cart)
}

func availableQuantity(p *entity.Product, variantID *int64) int {
	if variantID == nil {
		return p.Quantity
	}
	for _, v := range p.Variants {
		if v.ID == *variantID {
			return v.Quantity
		}
	}
	return 0
}

// UpdateItem sets the quantity of one line; zero removes it.
func (s *CartService) UpdateItem(ctx context.Context, owner entity.CartOwner, itemID int64, qty int) (*entity.Cart, error) {
	if qty < 0 {
		return nil, invalid("quantity", "must not be negative")
	}
	if qty == 0 {
		return s.RemoveItem(ctx, owner, itemID)
	}

	cart, err := s.cartRepo.GetCartByOwner(ctx, owner)
	if err != nil {
		return nil, translate(err)
	}
	idx := itemIndex(cart, itemID)
	if idx < 0 {
		return nil, ErrNotFound
	}

	item := &cart.Items[idx]
	product, err := s.productRepo.GetProductByID(ctx, item.ProductID)
	if err != nil {
		return nil, translate(err)
	}
	if !product.InStock(item.VariantID, qty) {
		return nil, invalid("quantity", fmt.Sprintf("only %d of %s available", availableQuantity(product, item.VariantID), product.Name))
	}

	item.Quantity = qty
	item.TotalPrice = item.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
	if err := s.cartRepo.UpdateCartItem(ctx, item); err != nil {
		return nil, err
	}
	return s.saveTotals(ctx, cart)
}

func (s *CartService) RemoveItem(ctx context.Context, owner entity.CartOwner, itemID int64) (*entity.Cart, error) {
	cart, err := s.cartRepo.GetCartByOwner(ctx, owner)
	if err != nil {
		return nil, translate(err)
	}
	idx := itemIndex(cart, itemID)
	if idx < 0 {
		return nil, ErrNotFound
	}
	if err := s.cartRepo.DeleteCartItem(ctx, cart.ID, itemID); err != nil {
		return nil, translate(err)
	}
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	return s.saveTotals(ctx, cart)
}

func (s *CartService) Clear(ctx context.Context, owner entity.CartOwner) error {
	cart, err := s.cartRepo.GetCartByOwner(ctx, owner)
	if err != nil {
		if translate(err) == ErrNotFound {
			return nil
		}
		return err
	}
	return s.cartRepo.ClearCart(ctx, cart.ID)
}

// MergeGuestCart moves a guest cart into the user's cart after login. When the
// user has no cart the guest cart is simply reassigned.
func (s *CartService) MergeGuestCart(ctx context.Context, sessionID string, userID int64) error {
	if sessionID == "" {
		return nil
	}
	guest, err := s.cartRepo.GetCartByOwner(ctx, entity.CartOwner{SessionID: sessionID})
	if err != nil {
		if translate(err) == ErrNotFound {
			return nil
		}
		return err
	}

	user, err := s.cartRepo.GetCartByOwner(ctx, entity.CartOwner{UserID: &userID})
	if err != nil {
		if translate(err) != ErrNotFound {
			return err
		}
		return s.cartRepo.AssignCartToUser(ctx, guest.ID, userID)
	}

	for _, item := range guest.Items {
		item := item
		idx := user.FindItem(item.ProductID, item.VariantID)
		if idx >= 0 {
			line := &user.Items[idx]
			line.Quantity += item.Quantity
			line.TotalPrice = line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
			if err := s.cartRepo.UpdateCartItem(ctx, line); err != nil {
				return err
			}
			continue
		}
		item.ID = 0
		item.CartID = user.ID
		if err := s.cartRepo.InsertCartItem(ctx, &item); err != nil {
			return err
		}
		user.Items = append(user.Items, item)
	}

	if _, err := s.saveTotals(ctx, user); err != nil {
		return err
	}
	return s.cartRepo.DeleteCart(ctx, guest.ID)
}

func (s *CartService) saveTotals(ctx context.Context, cart *entity.Cart) (*entity.Cart, error) {
	cart.Recalculate()
	if err := s.cartRepo.SaveCartTotals(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

func itemIndex(cart *entity.Cart, itemID int64) int {
	for i, item := range cart.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}
