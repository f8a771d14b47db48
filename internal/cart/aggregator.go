// Package cart owns guest and user carts and prices them against the live catalog.
package cart

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"shoemart_back_end/internal/apperr"
	"shoemart_back_end/internal/catalog"
	"shoemart_back_end/internal/models"
)

const fetchConcurrency = 8

type Aggregator struct {
	store    Store
	catalog  catalog.Catalog
	shipping ShippingPolicy
	now      func() time.Time
}

func NewAggregator(store Store, cat catalog.Catalog, shipping ShippingPolicy) *Aggregator {
	return &Aggregator{store: store, catalog: cat, shipping: shipping, now: time.Now}
}

// orderable returns the variant when it exists and is on sale.
func (a *Aggregator) orderable(ctx context.Context, key models.VariantKey) (models.Variant, error) {
	v, err := a.catalog.GetVariant(ctx, key)
	if err != nil {
		return v, err
	}
	if !v.Active {
		return v, apperr.New(apperr.ErrProductNotFound, "product is no longer available: "+key.String(), nil)
	}
	return v, nil
}

func checkOwner(owner models.CartOwner) error {
	if !owner.Valid() {
		return apperr.Validation("owner", "a user or a guest session is required")
	}
	return nil
}

func checkKey(key models.VariantKey) error {
	if key.ProductID == "" || key.Size == "" || key.Color == "" {
		return apperr.Validation("product_id", "product, size and color are required")
	}
	return nil
}

// AddItem adds qty pairs of a variant, summing with an existing line. The
// cumulative quantity must be covered by the current stock.
func (a *Aggregator) AddItem(ctx context.Context, owner models.CartOwner, key models.VariantKey, qty int) (models.CartView, error) {
	if err := checkOwner(owner); err != nil {
		return models.CartView{}, err
	}
	if err := checkKey(key); err != nil {
		return models.CartView{}, err
	}
	if qty < 1 {
		return models.CartView{}, apperr.Validation("quantity", "quantity must be at least 1")
	}
	v, err := a.orderable(ctx, key)
	if err != nil {
		return models.CartView{}, err
	}

	_, err = a.store.Update(ctx, owner, func(c *models.Cart) error {
		i := c.Find(key)
		want := qty
		if i >= 0 {
			want += c.Items[i].Quantity
		}
		if want > v.Stock {
			return apperr.OutOfStock(key.String(), v.Stock, want)
		}
		if i >= 0 {
			c.Items[i].Quantity = want
			return nil
		}
		c.Items = append(c.Items, models.CartItem{
			ProductID: key.ProductID,
			Size:      key.Size,
			Color:     key.Color,
			Quantity:  qty,
			AddedAt:   a.now(),
		})
		return nil
	})
	if err != nil {
		return models.CartView{}, err
	}
	return a.ComputeView(ctx, owner)
}

// UpdateItem sets the quantity of an existing line.
func (a *Aggregator) UpdateItem(ctx context.Context, owner models.CartOwner, key models.VariantKey, qty int) (models.CartView, error) {
	if err := checkOwner(owner); err != nil {
		return models.CartView{}, err
	}
	if qty < 1 {
		return models.CartView{}, apperr.Validation("quantity", "quantity must be at least 1")
	}
	v, err := a.orderable(ctx, key)
	if err != nil {
		return models.CartView{}, err
	}
	if qty > v.Stock {
		return models.CartView{}, apperr.OutOfStock(key.String(), v.Stock, qty)
	}

	_, err = a.store.Update(ctx, owner, func(c *models.Cart) error {
		i := c.Find(key)
		if i < 0 {
			return apperr.New(apperr.ErrCartLineNotFound, "no cart line for "+key.String(), nil)
		}
		c.Items[i].Quantity = qty
		return nil
	})
	if err != nil {
		return models.CartView{}, err
	}
	return a.ComputeView(ctx, owner)
}

func (a *Aggregator) RemoveItem(ctx context.Context, owner models.CartOwner, key models.VariantKey) (models.CartView, error) {
	if err := checkOwner(owner); err != nil {
		return models.CartView{}, err
	}
	_, err := a.store.Update(ctx, owner, func(c *models.Cart) error {
		i := c.Find(key)
		if i < 0 {
			return apperr.New(apperr.ErrCartLineNotFound, "no cart line for "+key.String(), nil)
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	})
	if err != nil {
		return models.CartView{}, err
	}
	return a.ComputeView(ctx, owner)
}

func (a *Aggregator) Clear(ctx context.Context, owner models.CartOwner) error {
	if err := checkOwner(owner); err != nil {
		return err
	}
	return a.store.Delete(ctx, owner)
}

// Merge folds the guest cart of sessionID into the cart of userID and drops
// the guest cart. Shared lines are summed and clamped to stock, other lines
// are copied. An empty or missing guest cart is a no-op.
func (a *Aggregator) Merge(ctx context.Context, sessionID, userID string) (models.CartView, error) {
	from, to := models.GuestOwner(sessionID), models.UserOwner(userID)
	if sessionID == "" || userID == "" {
		return models.CartView{}, apperr.Validation("session_id", "session and user are required")
	}

	guest, err := a.store.Load(ctx, from)
	if err != nil {
		return models.CartView{}, err
	}
	if len(guest.Items) == 0 {
		return a.ComputeView(ctx, to)
	}

	stock := make(map[models.VariantKey]int, len(guest.Items))
	for _, it := range guest.Items {
		v, err := a.catalog.GetVariant(ctx, it.Key())
		switch {
		case err == nil:
			stock[it.Key()] = v.Stock
		case errors.Is(err, apperr.ErrProductNotFound):
		default:
			return models.CartView{}, err
		}
	}

	_, err = a.store.Merge(ctx, from, to, func(src, dst *models.Cart) error {
		for _, it := range src.Items {
			i := dst.Find(it.Key())
			if i < 0 {
				dst.Items = append(dst.Items, it)
				continue
			}
			merged := dst.Items[i].Quantity + it.Quantity
			if s, ok := stock[it.Key()]; ok && merged > s {
				merged = s
			}
			if merged < 1 {
				merged = dst.Items[i].Quantity
			}
			dst.Items[i].Quantity = merged
		}
		return nil
	})
	if err != nil {
		return models.CartView{}, err
	}
	return a.ComputeView(ctx, to)
}

// ComputeView prices every line from the catalog. Lines that are gone,
// inactive or short on stock stay visible but do not count towards totals.
func (a *Aggregator) ComputeView(ctx context.Context, owner models.CartOwner) (models.CartView, error) {
	if err := checkOwner(owner); err != nil {
		return models.CartView{}, err
	}
	c, err := a.store.Load(ctx, owner)
	if err != nil {
		return models.CartView{}, err
	}

	lines := make([]models.CartLine, len(c.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, it := range c.Items {
		i, it := i, it
		g.Go(func() error {
			line := models.CartLine{CartItem: it}
			v, err := a.catalog.GetVariant(gctx, it.Key())
			if errors.Is(err, apperr.ErrProductNotFound) {
				lines[i] = line
				return nil
			}
			if err != nil {
				return err
			}
			line.VendorID = v.VendorID
			line.Name = v.Name
			line.Image = v.Image
			line.UnitPrice = v.SellingPrice
			line.FinalPrice = v.FinalPrice()
			line.LineTotal = line.FinalPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
			line.Stock = v.Stock
			line.Available = v.Active
			line.InStock = v.Active && v.Stock >= it.Quantity
			lines[i] = line
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.CartView{}, err
	}

	return a.price(owner, lines), nil
}

func (a *Aggregator) price(owner models.CartOwner, lines []models.CartLine) models.CartView {
	view := models.CartView{
		Owner:           owner,
		Lines:           lines,
		Vendors:         []models.VendorShipping{},
		Subtotal:        decimal.Zero,
		ShippingCharges: decimal.Zero,
	}

	perVendor := map[string]decimal.Decimal{}
	for _, l := range lines {
		if !l.InStock {
			continue
		}
		view.Subtotal = view.Subtotal.Add(l.LineTotal)
		view.ItemCount += l.Quantity
		perVendor[l.VendorID] = perVendor[l.VendorID].Add(l.LineTotal)
	}

	vendors := make([]string, 0, len(perVendor))
	for id := range perVendor {
		vendors = append(vendors, id)
	}
	sort.Strings(vendors)
	for _, id := range vendors {
		charge := a.shipping.Charge(id, perVendor[id])
		view.Vendors = append(view.Vendors, models.VendorShipping{VendorID: id, Subtotal: perVendor[id], Charge: charge})
		view.ShippingCharges = view.ShippingCharges.Add(charge)
	}
	view.Total = view.Subtotal.Add(view.ShippingCharges)
	return view
}
