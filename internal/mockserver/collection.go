package mockserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/internal/storage"
)

// collection is a list of records kept as one JSON document under key.
// Ids are assigned from a numeric sequence.
type collection[T any] struct {
	mu   sync.Mutex
	kv   storage.KV
	key  string
	idOf func(*T) *models.ID
}

func newCollection[T any](kv storage.KV, key string, idOf func(*T) *models.ID) *collection[T] {
	return &collection[T]{kv: kv, key: key, idOf: idOf}
}

func (c *collection[T]) load(ctx context.Context) ([]T, error) {
	var items []T
	err := storage.GetJSON(ctx, c.kv, c.key, &items)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return items, nil
}

func (c *collection[T]) index(items []T, id models.ID) int {
	for i := range items {
		if *c.idOf(&items[i]) == id {
			return i
		}
	}
	return -1
}

// list returns the items accepted by keep, or all when keep is nil
func (c *collection[T]) list(ctx context.Context, keep func(T) bool) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep == nil || keep(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (c *collection[T]) get(ctx context.Context, id models.ID) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	i := c.index(items, id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s %s", errNotFound, c.name(), id)
	}
	item := items[i]
	return &item, nil
}

func (c *collection[T]) create(ctx context.Context, item T) (models.ID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.load(ctx)
	if err != nil {
		return "", err
	}

	var highest int64
	for i := range items {
		if n, err := strconv.ParseInt(c.idOf(&items[i]).String(), 10, 64); err == nil && n > highest {
			highest = n
		}
	}
	id := models.ID(strconv.FormatInt(highest+1, 10))
	*c.idOf(&item) = id

	items = append(items, item)
	if err := storage.SetJSON(ctx, c.kv, c.key, items); err != nil {
		return "", err
	}
	return id, nil
}

// modify applies fn to the stored item with id
func (c *collection[T]) modify(ctx context.Context, id models.ID, fn func(*T) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.load(ctx)
	if err != nil {
		return err
	}
	i := c.index(items, id)
	if i < 0 {
		return fmt.Errorf("%w: %s %s", errNotFound, c.name(), id)
	}
	if err := fn(&items[i]); err != nil {
		return err
	}
	*c.idOf(&items[i]) = id
	return storage.SetJSON(ctx, c.kv, c.key, items)
}

func (c *collection[T]) replace(ctx context.Context, id models.ID, item T) error {
	return c.modify(ctx, id, func(stored *T) error {
		*stored = item
		return nil
	})
}

func (c *collection[T]) delete(ctx context.Context, id models.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.load(ctx)
	if err != nil {
		return err
	}
	i := c.index(items, id)
	if i < 0 {
		return fmt.Errorf("%w: %s %s", errNotFound, c.name(), id)
	}
	items = append(items[:i], items[i+1:]...)
	return storage.SetJSON(ctx, c.kv, c.key, items)
}

// count reports how many items are stored
func (c *collection[T]) count(ctx context.Context) (int, error) {
	items, err := c.list(ctx, nil)
	return len(items), err
}

func (c *collection[T]) name() string {
	return strings.TrimPrefix(c.key, "mock:")
}

// collectionRoutes mounts the admin CRUD endpoints of c; lists are
// wrapped under listKey
func collectionRoutes[T any](s *Server, c *collection[T], listKey string, validate func(*T) error) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			items, err := c.list(r.Context(), nil)
			if err != nil {
				s.respondFailure(w, "list "+listKey, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]interface{}{listKey: items, "total": len(items)})
		})

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var item T
			if err := decodeJSON(r, &item); err != nil {
				s.respondFailure(w, "create "+listKey, err)
				return
			}
			if err := validate(&item); err != nil {
				s.respondFailure(w, "create "+listKey, err)
				return
			}
			id, err := c.create(r.Context(), item)
			if err != nil {
				s.respondFailure(w, "create "+listKey, err)
				return
			}
			s.logger.Info("record created", "collection", listKey, "id", id)
			respondJSON(w, http.StatusCreated, map[string]interface{}{"id": id, "message": "创建成功"})
		})

		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			item, err := c.get(r.Context(), models.ID(chi.URLParam(r, "id")))
			if err != nil {
				s.respondFailure(w, "load "+listKey, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]interface{}{"data": item})
		})

		r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
			var item T
			if err := decodeJSON(r, &item); err != nil {
				s.respondFailure(w, "update "+listKey, err)
				return
			}
			if err := validate(&item); err != nil {
				s.respondFailure(w, "update "+listKey, err)
				return
			}
			if err := c.replace(r.Context(), models.ID(chi.URLParam(r, "id")), item); err != nil {
				s.respondFailure(w, "update "+listKey, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]string{"message": "更新成功"})
		})

		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := c.delete(r.Context(), models.ID(chi.URLParam(r, "id"))); err != nil {
				s.respondFailure(w, "delete "+listKey, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]string{"message": "删除成功"})
		})
	}
}
