package dialog

import (
	"context"
	"errors"
	"fmt"

	"github.com/vulnsphere/console/internal/apiclient"
	"github.com/vulnsphere/console/internal/vulnsphere"
)

const importFallback = "Failed to import CSV"

// ImportOutcome is what the import dialog shows after an upload: how many
// rows were created and which ones failed. Both can be non-empty.
type ImportOutcome struct {
	Created int
	Errors  []vulnsphere.RowError
}

// Success is true when at least one row was created.
func (o ImportOutcome) Success() bool { return o.Created > 0 }

func (o ImportOutcome) Partial() bool { return o.Created > 0 && len(o.Errors) > 0 }

func (o ImportOutcome) Summary() string {
	switch {
	case o.Created == 0 && len(o.Errors) == 0:
		return "No rows were imported"
	case o.Created == 0:
		return fmt.Sprintf("No rows were imported, %d failed", len(o.Errors))
	case len(o.Errors) == 0:
		return fmt.Sprintf("Successfully imported %d items", o.Created)
	}
	return fmt.Sprintf("Successfully imported %d items, %d failed", o.Created, len(o.Errors))
}

// UploadFunc sends a CSV file and returns the per-row result.
type UploadFunc func(ctx context.Context, filename string, data []byte) (vulnsphere.ImportResult, error)

// Importer is the CSV import dialog. OnSuccess only runs when rows were
// created; a fully rejected file leaves the list untouched.
type Importer struct {
	upload    UploadFunc
	onSuccess func(ImportOutcome)
}

func NewImporter(upload UploadFunc, onSuccess func(ImportOutcome)) *Importer {
	return &Importer{upload: upload, onSuccess: onSuccess}
}

func (i *Importer) Import(ctx context.Context, filename string, data []byte) (ImportOutcome, error) {
	if err := vulnsphere.ValidateCSVFilename(filename); err != nil {
		return ImportOutcome{}, Invalid("file", err)
	}

	res, err := i.upload(ctx, filename, data)
	if err != nil {
		return ImportOutcome{}, importError(err)
	}

	out := ImportOutcome{Created: res.Created, Errors: res.Errors}
	if out.Success() && i.onSuccess != nil {
		i.onSuccess(out)
	}
	return out, nil
}

// importError prefers the body's error over detail.
func importError(err error) error {
	if errors.Is(err, apiclient.ErrLoginRequired) {
		return err
	}
	var he *apiclient.HTTPError
	if errors.As(err, &he) {
		p := he.Problem()
		if p.Error != "" {
			return &ServerError{Message: p.Error, cause: err}
		}
		if p.Detail != "" {
			return &ServerError{Message: p.Detail, cause: err}
		}
	}
	return &ServerError{Message: importFallback, cause: err}
}
