package mockserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/gradpush/extrapoints/internal/config"
	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/internal/storage"
)

const usersKey = "mock:users"

var (
	errNotFound           = errors.New("record not found")
	errConflict           = errors.New("record already exists")
	errInvalidCredentials = errors.New("invalid credentials")
)

// userRecord is a stored account; the hash never leaves the server
type userRecord struct {
	models.User
	PasswordHash string `json:"passwordHash"`
}

// userStore keeps accounts as one JSON document keyed by username
type userStore struct {
	mu sync.Mutex
	kv storage.KV
}

func newUserStore(kv storage.KV) *userStore {
	return &userStore{kv: kv}
}

func (u *userStore) load(ctx context.Context) (map[string]userRecord, error) {
	records := make(map[string]userRecord)
	err := storage.GetJSON(ctx, u.kv, usersKey, &records)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return records, nil
}

func (u *userStore) save(ctx context.Context, records map[string]userRecord) error {
	return storage.SetJSON(ctx, u.kv, usersKey, records)
}

func (u *userStore) get(ctx context.Context, username string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	records, err := u.load(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := records[username]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", errNotFound, username)
	}
	user := rec.User
	return &user, nil
}

// authenticate checks the password and stamps lastLogin
func (u *userStore) authenticate(ctx context.Context, username, password string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	records, err := u.load(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := records[username]
	if !ok {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}

	rec.LastLogin = time.Now().UTC().Format(time.RFC3339)
	records[username] = rec
	if err := u.save(ctx, records); err != nil {
		return nil, err
	}
	user := rec.User
	return &user, nil
}

func (u *userStore) create(ctx context.Context, user models.User, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	records, err := u.load(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := records[user.Username]; ok {
		return nil, fmt.Errorf("%w: user %s", errConflict, user.Username)
	}

	user.ID = nextUserID(records)
	records[user.Username] = userRecord{User: user, PasswordHash: string(hash)}
	if err := u.save(ctx, records); err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *userStore) setPassword(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	records, err := u.load(ctx)
	if err != nil {
		return err
	}
	rec, ok := records[username]
	if !ok {
		return fmt.Errorf("%w: user %s", errNotFound, username)
	}
	rec.PasswordHash = string(hash)
	records[username] = rec
	return u.save(ctx, records)
}

// list returns users with role, ordered by id; an empty role lists all
func (u *userStore) list(ctx context.Context, role models.Role) ([]models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	records, err := u.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(records))
	for _, rec := range records {
		if role == "" || rec.Role == role {
			out = append(out, rec.User)
		}
	}
	sortByID(out, func(user models.User) models.ID { return user.ID })
	return out, nil
}

func (u *userStore) byID(records map[string]userRecord, id models.ID) (string, bool) {
	for username, rec := range records {
		if rec.ID == id {
			return username, true
		}
	}
	return "", false
}

func (u *userStore) getByID(ctx context.Context, id models.ID) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	records, err := u.load(ctx)
	if err != nil {
		return nil, err
	}
	username, ok := u.byID(records, id)
	if !ok {
		return nil, fmt.Errorf("%w: user %s", errNotFound, id)
	}
	user := records[username].User
	return &user, nil
}

// update replaces the profile of id; username and id are kept
func (u *userStore) update(ctx context.Context, id models.ID, user models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	records, err := u.load(ctx)
	if err != nil {
		return err
	}
	username, ok := u.byID(records, id)
	if !ok {
		return fmt.Errorf("%w: user %s", errNotFound, id)
	}
	rec := records[username]
	user.ID = rec.ID
	user.Username = rec.Username
	if user.Role == "" {
		user.Role = rec.Role
	}
	user.LastLogin = rec.LastLogin
	rec.User = user
	records[username] = rec
	return u.save(ctx, records)
}

func (u *userStore) delete(ctx context.Context, id models.ID) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	records, err := u.load(ctx)
	if err != nil {
		return err
	}
	username, ok := u.byID(records, id)
	if !ok {
		return fmt.Errorf("%w: user %s", errNotFound, id)
	}
	delete(records, username)
	return u.save(ctx, records)
}

// seed creates the configured accounts that do not exist yet
func (u *userStore) seed(ctx context.Context, users []config.SeedUser) (int, error) {
	created := 0
	for _, seed := range users {
		_, err := u.create(ctx, models.User{
			Username:  seed.Username,
			Name:      seed.Name,
			Role:      models.Role(seed.Role),
			StudentID: seed.StudentID,
		}, seed.Password)
		if errors.Is(err, errConflict) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("failed to seed user %s: %w", seed.Username, err)
		}
		created++
	}
	return created, nil
}

func nextUserID(records map[string]userRecord) models.ID {
	var highest int64
	for _, rec := range records {
		if n, err := strconv.ParseInt(rec.ID.String(), 10, 64); err == nil && n > highest {
			highest = n
		}
	}
	return models.ID(strconv.FormatInt(highest+1, 10))
}

// sortByID orders numeric ids numerically and the rest lexically after them
func sortByID[T any](items []T, id func(T) models.ID) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := id(items[i]).String(), id(items[j]).String()
		na, erra := strconv.ParseInt(a, 10, 64)
		nb, errb := strconv.ParseInt(b, 10, 64)
		switch {
		case erra == nil && errb == nil:
			return na < nb
		case erra == nil:
			return true
		case errb == nil:
			return false
		default:
			return a < b
		}
	})
}

// studentRequest is the admin payload for a student account
type studentRequest struct {
	models.User
	Password string `json:"password,omitempty"`
}

func (s *Server) studentRoutes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		students, err := s.users.list(r.Context(), models.RoleStudent)
		if err != nil {
			s.respondFailure(w, "list students", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"students": students, "total": len(students)})
	})

	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		var req studentRequest
		if err := decodeJSON(r, &req); err != nil {
			s.respondFailure(w, "create student", err)
			return
		}
		if req.Username == "" || req.StudentID == "" {
			respondError(w, http.StatusBadRequest, "validation_error", "username and studentId are required")
			return
		}
		// Imported students log in with their student id until they reset it.
		password := req.Password
		if password == "" {
			password = req.StudentID
		}
		req.User.Role = models.RoleStudent

		user, err := s.users.create(r.Context(), req.User, password)
		if err != nil {
			s.respondFailure(w, "create student", err)
			return
		}
		s.logger.Info("student created", "username", user.Username, "id", user.ID)
		respondJSON(w, http.StatusCreated, map[string]interface{}{"id": user.ID, "message": "创建成功"})
	})

	r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
		user, err := s.users.getByID(r.Context(), models.ID(chi.URLParam(r, "id")))
		if err != nil {
			s.respondFailure(w, "load student", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"data": user})
	})

	r.Put("/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req studentRequest
		if err := decodeJSON(r, &req); err != nil {
			s.respondFailure(w, "update student", err)
			return
		}
		if err := s.users.update(r.Context(), models.ID(chi.URLParam(r, "id")), req.User); err != nil {
			s.respondFailure(w, "update student", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"message": "更新成功"})
	})

	r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := s.users.delete(r.Context(), models.ID(chi.URLParam(r, "id"))); err != nil {
			s.respondFailure(w, "delete student", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"message": "删除成功"})
	})
}
