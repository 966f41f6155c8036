package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gradpush/extrapoints/internal/models"
)

// GraduateFileUpload describes a document published to students
type GraduateFileUpload struct {
	File        models.Upload
	Uploader    string
	Description string
	Category    string
	FacultyID   models.ID
}

// UploadGraduateFile uploads one document
func (c *Client) UploadGraduateFile(ctx context.Context, upload GraduateFileUpload) (*models.GraduateFile, error) {
	form := NewMultipart().
		AddFile("file", upload.File.Name, upload.File.ContentType, upload.File.Content)
	if upload.Uploader != "" {
		form.AddField("uploader", upload.Uploader)
	}
	if upload.Description != "" {
		form.AddField("description", upload.Description)
	}
	if upload.Category != "" {
		form.AddField("category", upload.Category)
	}
	if !upload.FacultyID.IsZero() {
		form.AddField("faculty_id", upload.FacultyID.String())
	}

	const endpoint = "/admin/graduate-files"
	raw, err := c.Request(ctx, http.MethodPost, endpoint, form)
	if err != nil {
		return nil, err
	}

	var resp struct {
		File *models.GraduateFile `json:"file"`
	}
	if err := json.Unmarshal(raw, &resp); err == nil && resp.File != nil {
		return resp.File, nil
	}
	var file models.GraduateFile
	if err := decodeItem(raw, &file); err != nil {
		return nil, &RequestError{Kind: KindDecode, Method: http.MethodPost, Endpoint: endpoint, Message: "failed to decode file", Cause: err}
	}
	return &file, nil
}

// GraduateFiles lists documents for administrators
func (c *Client) GraduateFiles(ctx context.Context, facultyID models.ID) ([]models.GraduateFile, error) {
	return c.graduateFiles(ctx, "/admin/graduate-files", facultyID)
}

// PublicGraduateFiles lists documents visible to students
func (c *Client) PublicGraduateFiles(ctx context.Context, facultyID models.ID) ([]models.GraduateFile, error) {
	return c.graduateFiles(ctx, "/admin/public/graduate-files", facultyID)
}

// DeleteGraduateFile removes a document
func (c *Client) DeleteGraduateFile(ctx context.Context, id models.ID) error {
	_, err := c.Request(ctx, http.MethodDelete, "/admin/graduate-files/"+url.PathEscape(id.String()), nil)
	return err
}

func (c *Client) graduateFiles(ctx context.Context, path string, facultyID models.ID) ([]models.GraduateFile, error) {
	if !facultyID.IsZero() {
		path += "?" + url.Values{"faculty_id": {facultyID.String()}}.Encode()
	}
	var out []models.GraduateFile
	if err := c.getList(ctx, path, &out, "files"); err != nil {
		return nil, err
	}
	return out, nil
}
