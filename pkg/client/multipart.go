package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
)

// Multipart is a form body. The transport sets the Content-Type with the
// boundary, so callers never set it themselves.
type Multipart struct {
	parts []part
}

type part struct {
	field       string
	filename    string
	contentType string
	value       []byte
	content     io.Reader
}

// NewMultipart creates an empty form
func NewMultipart() *Multipart {
	return &Multipart{}
}

// AddField appends a text field
func (m *Multipart) AddField(name, value string) *Multipart {
	m.parts = append(m.parts, part{field: name, value: []byte(value)})
	return m
}

// AddJSON appends v encoded as JSON under name
func (m *Multipart) AddJSON(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	m.parts = append(m.parts, part{field: name, value: data})
	return nil
}

// AddFile appends a file part. An empty contentType defaults to
// application/octet-stream.
func (m *Multipart) AddFile(field, filename, contentType string, content io.Reader) *Multipart {
	m.parts = append(m.parts, part{
		field:       field,
		filename:    filename,
		contentType: contentType,
		content:     content,
	})
	return m
}

// Len returns the number of parts
func (m *Multipart) Len() int {
	return len(m.parts)
}

func (m *Multipart) encode() (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, p := range m.parts {
		if p.content == nil {
			if err := w.WriteField(p.field, string(p.value)); err != nil {
				return nil, "", fmt.Errorf("failed to write field %s: %w", p.field, err)
			}
			continue
		}

		contentType := p.contentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", multipartDisposition(p.field, p.filename))
		header.Set("Content-Type", contentType)
		pw, err := w.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create part %s: %w", p.field, err)
		}
		if _, err := io.Copy(pw, p.content); err != nil {
			return nil, "", fmt.Errorf("failed to copy %s: %w", p.filename, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

func multipartDisposition(field, filename string) string {
	return fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename)
}
