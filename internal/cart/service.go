package cart

import (
	"context"
	"sort"
	"strings"

	"tienda-be/internal/apperr"
	"tienda-be/internal/logger"
	"tienda-be/internal/product"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Service defines the business logic for carts. Every mutation returns the
// recomputed cart view.
type Service interface {
	GetCart(ctx context.Context, owner Owner) (*Cart, error)
	AddLine(ctx context.Context, owner Owner, in LineInput) (*Cart, error)
	UpdateQuantity(ctx context.Context, owner Owner, in LineInput) (*Cart, error)
	RemoveLine(ctx context.Context, owner Owner, key product.VariantKey) (*Cart, error)
	MergeOnLogin(ctx context.Context, userID int64, sessionID string, anonymous []LineInput) (*Cart, error)
}

type service struct {
	users       Repository
	guests      *GuestStore
	productRepo product.Repository
}

// NewService creates a new cart service
func NewService(users Repository, guests *GuestStore, productRepo product.Repository) Service {
	return &service{users: users, guests: guests, productRepo: productRepo}
}

func (s *service) store(owner Owner) Store {
	if owner.IsGuest() {
		return s.guests
	}
	return s.users
}

func validKey(k product.VariantKey) bool {
	return k.ProductID > 0 &&
		k.ColorCode != "" && k.Size != "" &&
		!strings.Contains(k.ColorCode, "|") && !strings.Contains(k.Size, "|")
}

func (s *service) GetCart(ctx context.Context, owner Owner) (*Cart, error) {
	if !owner.Valid() {
		return nil, ErrMissingOwner
	}
	lines, err := s.store(owner).Lines(ctx, owner)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to read cart", zap.Error(err))
		return nil, errors.Wrap(ErrFailedGetCart, err.Error())
	}
	return s.view(ctx, lines)
}

// AddLine increments an existing line or inserts a new one.
func (s *service) AddLine(ctx context.Context, owner Owner, in LineInput) (*Cart, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "AddLine"),
		zap.Stringer("key", in.Key()),
	)

	if !owner.Valid() {
		return nil, ErrMissingOwner
	}
	if !validKey(in.Key()) {
		return nil, ErrInvalidKey
	}
	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	variant, err := s.liveVariant(ctx, in.Key())
	if err != nil {
		return nil, err
	}
	if in.Quantity > variant.Stock {
		return nil, stockExceeded(in.Key(), in.Quantity, variant.Stock)
	}

	if _, err := s.store(owner).Increment(ctx, owner, in.Key(), in.Quantity, variant.Stock); err != nil {
		if errors.Is(err, ErrStockExceeded) {
			log.Info("add rejected by stock bound", zap.Int("stock", variant.Stock))
			return nil, stockExceeded(in.Key(), in.Quantity, variant.Stock)
		}
		log.Error("failed to increment cart line", zap.Error(err))
		return nil, errors.Wrap(ErrFailedUpdateCart, err.Error())
	}

	return s.GetCart(ctx, owner)
}

// UpdateQuantity sets an absolute quantity, re-checked against live stock.
// Zero removes the line.
func (s *service) UpdateQuantity(ctx context.Context, owner Owner, in LineInput) (*Cart, error) {
	if !owner.Valid() {
		return nil, ErrMissingOwner
	}
	if !validKey(in.Key()) {
		return nil, ErrInvalidKey
	}
	if in.Quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if in.Quantity == 0 {
		return s.RemoveLine(ctx, owner, in.Key())
	}

	variant, err := s.liveVariant(ctx, in.Key())
	if err != nil {
		return nil, err
	}
	if in.Quantity > variant.Stock {
		return nil, stockExceeded(in.Key(), in.Quantity, variant.Stock)
	}

	if err := s.store(owner).SetQuantity(ctx, owner, in.Key(), in.Quantity); err != nil {
		if errors.Is(err, ErrLineNotFound) {
			return nil, ErrLineNotFound
		}
		logger.FromCtx(ctx).Error("failed to set cart quantity", zap.Error(err))
		return nil, errors.Wrap(ErrFailedUpdateCart, err.Error())
	}

	return s.GetCart(ctx, owner)
}

// RemoveLine is idempotent: a missing line is not an error.
func (s *service) RemoveLine(ctx context.Context, owner Owner, key product.VariantKey) (*Cart, error) {
	if !owner.Valid() {
		return nil, ErrMissingOwner
	}
	if !validKey(key) {
		return nil, ErrInvalidKey
	}
	if err := s.store(owner).Remove(ctx, owner, key); err != nil {
		logger.FromCtx(ctx).Error("failed to remove cart line", zap.Error(err))
		return nil, errors.Wrap(ErrFailedUpdateCart, err.Error())
	}
	return s.GetCart(ctx, owner)
}

// MergeOnLogin sums the guest session cart and any client-held lines into
// the user's cart. The user's cart changes in a single transaction; on
// failure the drained guest lines are put back.
func (s *service) MergeOnLogin(ctx context.Context, userID int64, sessionID string, anonymous []LineInput) (*Cart, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "MergeOnLogin"),
		zap.Int64("user_id", userID),
	)

	if userID <= 0 {
		return nil, ErrMissingOwner
	}
	for _, in := range anonymous {
		if !validKey(in.Key()) {
			return nil, ErrInvalidKey
		}
		if in.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	var drained []Line
	if sessionID != "" {
		var err error
		drained, err = s.guests.Drain(ctx, sessionID)
		if err != nil {
			log.Error("failed to drain guest cart", zap.Error(err))
			return nil, errors.Wrap(ErrFailedMergeCart, err.Error())
		}
	}

	incoming := make([]Line, 0, len(drained)+len(anonymous))
	incoming = append(incoming, drained...)
	for _, in := range anonymous {
		incoming = append(incoming, Line{Key: in.Key(), Quantity: in.Quantity})
	}
	merged := sumLines(incoming)

	if len(merged) > 0 {
		if err := s.users.Merge(ctx, userID, merged); err != nil {
			log.Error("failed to merge into user cart", zap.Error(err))
			if rErr := s.guests.Restore(ctx, sessionID, drained); rErr != nil && sessionID != "" {
				log.Error("failed to restore guest cart", zap.Error(rErr))
			}
			return nil, errors.Wrap(ErrFailedMergeCart, err.Error())
		}
	}

	log.Info("cart merged", zap.Int("lines", len(merged)))
	return s.GetCart(ctx, UserOwner(userID))
}

func (s *service) liveVariant(ctx context.Context, key product.VariantKey) (*product.Variant, error) {
	v, err := s.productRepo.GetVariant(ctx, key)
	if errors.Is(err, product.ErrVariantNotFound) {
		return nil, ErrInvalidVariant
	}
	if err != nil {
		return nil, err
	}
	if !v.Available() {
		return nil, apperr.New(apperr.InvalidInput, "product "+key.String()+" is not available")
	}
	return v, nil
}

// view decorates stored lines with live price and stock.
func (s *service) view(ctx context.Context, lines []Line) (*Cart, error) {
	if len(lines) == 0 {
		return newCart(nil), nil
	}

	keys := make([]product.VariantKey, len(lines))
	for i, l := range lines {
		keys[i] = l.Key
	}
	variants, err := s.productRepo.GetVariants(ctx, keys)
	if err != nil {
		return nil, err
	}

	for i := range lines {
		v, ok := variants[lines[i].Key]
		if !ok {
			continue
		}
		lines[i].ProductName = v.ProductName
		lines[i].UnitPrice = v.Price
		lines[i].StockSnapshot = v.Stock
		lines[i].Available = v.Available()
	}
	return newCart(lines), nil
}

func sumLines(lines []Line) []Line {
	idx := make(map[product.VariantKey]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if i, ok := idx[l.Key]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.Key] = len(out)
		out = append(out, Line{Key: l.Key, Quantity: l.Quantity})
	}
	sortLines(out)
	return out
}

func sortLines(lines []Line) {
	sort.Slice(lines, func(i, j int) bool {
		a, b := lines[i].Key, lines[j].Key
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		if a.ColorCode != b.ColorCode {
			return a.ColorCode < b.ColorCode
		}
		return a.Size < b.Size
	})
}
