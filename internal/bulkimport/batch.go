// Package bulkimport accumulates files into a single multipart batch and
// submits it to an entity's import route as one unit.
package bulkimport

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/cargolog/console/model"
)

// File is one accumulated upload. Content is opaque; nothing here parses it.
type File struct {
	Name    string
	Content []byte
}

// Batch accumulates files under one multipart field key plus ancillary
// scalar fields appended at submit time. Once submitted it is spent; a new
// batch must be built for the next import.
type Batch struct {
	fileKey   string
	files     []File
	fields    map[string]string
	submitted bool
}

// NewBatch creates a batch for the given multipart field key.
func NewBatch(fileKey string) *Batch {
	if fileKey == "" {
		fileKey = "files"
	}
	return &Batch{
		fileKey: fileKey,
		fields:  make(map[string]string),
	}
}

// AddFile appends a file to the batch.
func (b *Batch) AddFile(name string, content []byte) {
	b.files = append(b.files, File{Name: name, Content: content})
}

// SetField stages an ancillary scalar field (month, year, file type).
func (b *Batch) SetField(key, value string) {
	b.fields[key] = value
}

// Field returns a staged ancillary value.
func (b *Batch) Field(key string) string {
	return b.fields[key]
}

// Fields returns the staged ancillary values as a record for validation.
func (b *Batch) Fields() model.Record {
	rec := make(model.Record, len(b.fields))
	for k, v := range b.fields {
		rec[k] = v
	}
	return rec
}

// FileCount returns the number of accumulated files.
func (b *Batch) FileCount() int {
	return len(b.files)
}

// CountLabel renders the running count for display.
func (b *Batch) CountLabel() string {
	switch n := len(b.files); n {
	case 0:
		return "Nenhum documento selecionado"
	case 1:
		return "1 documento"
	default:
		return fmt.Sprintf("%d documentos", n)
	}
}

// Submitted reports whether the batch has already been sent.
func (b *Batch) Submitted() bool {
	return b.submitted
}

// Build encodes the batch as a multipart payload: every file under the
// configured key, then the ancillary fields. Returns the payload reader and
// its content type.
func (b *Batch) Build() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range b.files {
		part, err := w.CreateFormFile(b.fileKey, f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("bulkimport: adding file %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", fmt.Errorf("bulkimport: writing file %s: %w", f.Name, err)
		}
	}
	for key, value := range b.fields {
		if err := w.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("bulkimport: adding field %s: %w", key, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("bulkimport: closing payload: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}
