package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicelayout/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func invoice(id string, index int, status models.Status, number string, total float64) models.VirtualInvoiceResult {
	return models.VirtualInvoiceResult{
		ID:         id,
		SourceFile: "a.pdf",
		Index:      index,
		PageStart:  index,
		PageEnd:    index,
		Status:     status,
		Header: &models.InvoiceHeader{
			InvoiceNumber: number,
			TotalAmount:   &total,
		},
		Lines: []models.InvoiceLine{
			{Description: "Produkt", TotalAmount: total, LineNumber: 1},
		},
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	doc := Document{Path: "/in/a.pdf", PageCount: 2, Duration: 1500 * time.Millisecond}
	invoices := []models.VirtualInvoiceResult{
		invoice("b", 2, models.StatusReview, "INV-2", 50),
		invoice("a", 1, models.StatusOK, "INV-1", 375),
	}
	require.NoError(t, s.Save(ctx, doc, invoices))

	got, err := s.Invoices(ctx, "/in/a.pdf")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "INV-1", got[0].Header.InvoiceNumber)
	assert.Equal(t, 375.0, *got[0].Header.TotalAmount)
	assert.Equal(t, "Produkt", got[0].Lines[0].Description)
	assert.Equal(t, models.StatusReview, got[1].Status)

	stored, err := s.Document(ctx, "/in/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", stored.Filename)
	assert.Equal(t, 2, stored.PageCount)
	assert.Equal(t, 1500*time.Millisecond, stored.Duration)
	assert.False(t, stored.ProcessedAt.IsZero())
}

func TestStore_SaveReplacesPreviousRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	doc := Document{Path: "/in/a.pdf", PageCount: 2}
	require.NoError(t, s.Save(ctx, doc, []models.VirtualInvoiceResult{
		invoice("a", 1, models.StatusReview, "INV-1", 375),
		invoice("b", 2, models.StatusReview, "INV-2", 50),
	}))
	require.NoError(t, s.Save(ctx, doc, []models.VirtualInvoiceResult{
		invoice("a", 1, models.StatusOK, "INV-1", 375),
	}))

	got, err := s.Invoices(ctx, "/in/a.pdf")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.StatusOK, got[0].Status)

	docs, err := s.Documents(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestStore_SameNameInDifferentFolders(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Save(ctx, Document{Path: "/in/a/invoice.pdf"}, []models.VirtualInvoiceResult{
		invoice("id-a", 1, models.StatusOK, "INV-1", 100),
	}))
	require.NoError(t, s.Save(ctx, Document{Path: "/in/b/invoice.pdf"}, []models.VirtualInvoiceResult{
		invoice("id-b", 1, models.StatusOK, "INV-2", 200),
	}))

	for path, want := range map[string]string{"/in/a/invoice.pdf": "INV-1", "/in/b/invoice.pdf": "INV-2"} {
		got, err := s.Invoices(ctx, path)
		require.NoError(t, err)
		require.Len(t, got, 1, path)
		assert.Equal(t, want, got[0].Header.InvoiceNumber)
	}
}

func TestStore_RejectsIDOfAnotherDocument(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Save(ctx, Document{Path: "/in/a/invoice.pdf"}, []models.VirtualInvoiceResult{
		invoice("same", 1, models.StatusOK, "INV-1", 100),
	}))
	err := s.Save(ctx, Document{Path: "/in/b/invoice.pdf"}, []models.VirtualInvoiceResult{
		invoice("same", 1, models.StatusOK, "INV-2", 200),
	})
	require.ErrorIs(t, err, ErrDuplicateID)

	got, err := s.Invoices(ctx, "/in/a/invoice.pdf")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "INV-1", got[0].Header.InvoiceNumber)

	_, err = s.Document(ctx, "/in/b/invoice.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ByStatus(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Save(ctx, Document{Path: "/in/a.pdf"}, []models.VirtualInvoiceResult{
		invoice("a1", 1, models.StatusOK, "INV-1", 10),
		invoice("a2", 2, models.StatusReview, "", 20),
	}))
	require.NoError(t, s.Save(ctx, Document{Path: "/in/b.pdf"}, []models.VirtualInvoiceResult{
		invoice("b1", 1, models.StatusReview, "INV-3", 30),
	}))

	review, err := s.ByStatus(ctx, models.StatusReview)
	require.NoError(t, err)
	require.Len(t, review, 2)
	assert.Equal(t, "a2", review[0].ID)
	assert.Equal(t, "b1", review[1].ID)

	failed, err := s.ByStatus(ctx, models.StatusFailed)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Document(ctx, "/missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Invoices(ctx, "/missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, Document{Path: "/in/a.pdf"}, []models.VirtualInvoiceResult{
		invoice("a", 1, models.StatusOK, "INV-1", 10),
	}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Invoices(ctx, "/in/a.pdf")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
