package memstore

import (
	"context"
	"sync"
	"time"

	"shoemart_back_end/internal/models"
)

// Carts serialises every cart mutation behind one mutex.
type Carts struct {
	mu       sync.Mutex
	carts    map[models.CartOwner]models.Cart
	watchers map[models.CartOwner][]chan string
}

func NewCarts() *Carts {
	return &Carts{
		carts:    make(map[models.CartOwner]models.Cart),
		watchers: make(map[models.CartOwner][]chan string),
	}
}

func cloneCart(c models.Cart) models.Cart {
	c.Items = append([]models.CartItem(nil), c.Items...)
	return c
}

func (s *Carts) Load(_ context.Context, owner models.CartOwner) (models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(owner), nil
}

func (s *Carts) get(owner models.CartOwner) models.Cart {
	c, ok := s.carts[owner]
	if !ok {
		return models.Cart{Owner: owner}
	}
	return cloneCart(c)
}

func (s *Carts) put(c models.Cart) {
	if len(c.Items) == 0 {
		delete(s.carts, c.Owner)
		s.publish(c.Owner, "cleared")
		return
	}
	c.UpdatedAt = time.Now()
	s.carts[c.Owner] = c
	s.publish(c.Owner, "updated")
}

func (s *Carts) Update(_ context.Context, owner models.CartOwner, fn func(*models.Cart) error) (models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.get(owner)
	if err := fn(&c); err != nil {
		return models.Cart{}, err
	}
	s.put(c)
	return cloneCart(c), nil
}

func (s *Carts) Delete(_ context.Context, owner models.CartOwner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, owner)
	s.publish(owner, "cleared")
	return nil
}

func (s *Carts) Merge(_ context.Context, from, to models.CartOwner, fn func(from, to *models.Cart) error) (models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, dst := s.get(from), s.get(to)
	if len(src.Items) == 0 {
		return dst, nil
	}
	if err := fn(&src, &dst); err != nil {
		return models.Cart{}, err
	}
	s.put(dst)
	delete(s.carts, from)
	s.publish(from, "cleared")
	return cloneCart(dst), nil
}

func (s *Carts) Watch(ctx context.Context, owner models.CartOwner) (<-chan string, error) {
	ch := make(chan string, 8)
	s.mu.Lock()
	s.watchers[owner] = append(s.watchers[owner], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.watchers[owner]
		for i, w := range list {
			if w == ch {
				s.watchers[owner] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// publish must be called with mu held.
func (s *Carts) publish(owner models.CartOwner, event string) {
	for _, w := range s.watchers[owner] {
		select {
		case w <- event:
		default:
		}
	}
}
