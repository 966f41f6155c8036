package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gradpush/extrapoints/internal/models"
)

// DecodeList decodes a list response. Backends answer either with a bare
// array or with an object wrapping the array under one of keys.
func DecodeList(raw json.RawMessage, out interface{}, keys ...string) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return fmt.Errorf("failed to decode list: %w", err)
	}
	candidates := append(append([]string{}, keys...), "data", "items")
	for _, key := range candidates {
		if inner, ok := wrapper[key]; ok && !bytes.Equal(bytes.TrimSpace(inner), []byte("null")) {
			return json.Unmarshal(inner, out)
		}
	}
	return nil
}

// Faculties lists all faculties
func (c *Client) Faculties(ctx context.Context) ([]models.Faculty, error) {
	var out []models.Faculty
	if err := c.getList(ctx, "/faculties", &out, "faculties"); err != nil {
		return nil, err
	}
	return out, nil
}

// Departments lists the departments of a faculty
func (c *Client) Departments(ctx context.Context, facultyID models.ID) ([]models.Department, error) {
	var out []models.Department
	if err := c.getList(ctx, "/departments/"+url.PathEscape(facultyID.String()), &out, "departments"); err != nil {
		return nil, err
	}
	return out, nil
}

// Majors lists the majors of a department
func (c *Client) Majors(ctx context.Context, departmentID models.ID) ([]models.Major, error) {
	var out []models.Major
	if err := c.getList(ctx, "/majors/"+url.PathEscape(departmentID.String()), &out, "majors"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getList(ctx context.Context, endpoint string, out interface{}, keys ...string) error {
	raw, err := c.Request(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if err := DecodeList(raw, out, keys...); err != nil {
		return &RequestError{Kind: KindDecode, Method: http.MethodGet, Endpoint: endpoint, Message: "failed to decode list", Cause: err}
	}
	return nil
}

// Resource is an admin CRUD collection following the
// list/get/create/update/delete/PATCH-status pattern.
type Resource[T any] struct {
	client  *Client
	path    string
	listKey string
}

// AdminFaculties manages faculties
func (c *Client) AdminFaculties() *Resource[models.Faculty] {
	return &Resource[models.Faculty]{client: c, path: "/admin/faculties", listKey: "faculties"}
}

// AdminDepartments manages departments
func (c *Client) AdminDepartments() *Resource[models.Department] {
	return &Resource[models.Department]{client: c, path: "/admin/departments", listKey: "departments"}
}

// AdminMajors manages majors
func (c *Client) AdminMajors() *Resource[models.Major] {
	return &Resource[models.Major]{client: c, path: "/admin/majors", listKey: "majors"}
}

// AdminStudents manages student accounts
func (c *Client) AdminStudents() *Resource[models.User] {
	return &Resource[models.User]{client: c, path: "/admin/students", listKey: "students"}
}

// Rules manages scoring rules
func (c *Client) Rules() *Resource[models.Rule] {
	return &Resource[models.Rule]{client: c, path: "/admin/rules", listKey: "rules"}
}

// Path returns the collection path
func (r *Resource[T]) Path() string {
	return r.path
}

// List returns the collection, optionally filtered by query
func (r *Resource[T]) List(ctx context.Context, query url.Values) ([]T, error) {
	endpoint := r.path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var out []T
	if err := r.client.getList(ctx, endpoint, &out, r.listKey); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one item
func (r *Resource[T]) Get(ctx context.Context, id models.ID) (*T, error) {
	endpoint := r.itemPath(id)
	raw, err := r.client.Request(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var item T
	if err := decodeItem(raw, &item); err != nil {
		return nil, &RequestError{Kind: KindDecode, Method: http.MethodGet, Endpoint: endpoint, Message: "failed to decode item", Cause: err}
	}
	return &item, nil
}

// Create adds an item and returns the id assigned by the backend
func (r *Resource[T]) Create(ctx context.Context, item T) (models.ID, error) {
	var resp struct {
		ID   models.ID `json:"id"`
		Data *struct {
			ID models.ID `json:"id"`
		} `json:"data"`
	}
	if err := r.client.RequestInto(ctx, http.MethodPost, r.path, item, &resp); err != nil {
		return "", err
	}
	if resp.ID.IsZero() && resp.Data != nil {
		resp.ID = resp.Data.ID
	}
	return resp.ID, nil
}

// Update replaces an item
func (r *Resource[T]) Update(ctx context.Context, id models.ID, item T) error {
	_, err := r.client.Request(ctx, http.MethodPut, r.itemPath(id), item)
	return err
}

// Delete removes an item
func (r *Resource[T]) Delete(ctx context.Context, id models.ID) error {
	_, err := r.client.Request(ctx, http.MethodDelete, r.itemPath(id), nil)
	return err
}

// SetStatus changes an item's status, e.g. enabling or disabling a rule
func (r *Resource[T]) SetStatus(ctx context.Context, id models.ID, status string) error {
	body := map[string]string{"status": status}
	_, err := r.client.Request(ctx, http.MethodPatch, r.itemPath(id)+"/status", body)
	return err
}

func (r *Resource[T]) itemPath(id models.ID) string {
	return r.path + "/" + url.PathEscape(id.String())
}

// decodeItem accepts a bare object or one wrapped under "data"
func decodeItem(raw json.RawMessage, out interface{}) error {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Data) > 0 && wrapper.Data[0] == '{' {
		return json.Unmarshal(wrapper.Data, out)
	}
	return json.Unmarshal(raw, out)
}
