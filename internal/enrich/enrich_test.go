package enrich

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/type/date"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"invoicelayout/pkg/models"
)

type fakeChat struct {
	replies []string
	errs    []error
	calls   int
	last    openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := f.calls
	f.calls++
	f.last = req
	if i < len(f.errs) && f.errs[i] != nil {
		return openai.ChatCompletionResponse{}, f.errs[i]
	}
	if i >= len(f.replies) {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.replies[i]}}},
	}, nil
}

func reviewRequest() Request {
	return Request{
		Path:      "inv.pdf",
		PageStart: 1,
		PageEnd:   1,
		Text:      "Acme AB\nFaktura 1001\nAtt betala 1 796,88",
		Header:    models.InvoiceHeader{InvoiceNumber: "1001", Vendor: "Acme AB"},
	}
}

func TestRequestMissing(t *testing.T) {
	req := reviewRequest()
	assert.Equal(t, []string{FieldCustomer, FieldInvoiceDate, FieldReference}, req.Missing())

	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	req.Header = models.InvoiceHeader{Vendor: "a", Customer: "b", Reference: "c", InvoiceDate: &d}
	assert.Empty(t, req.Missing())
}

func TestOpenAIEnricher_RetriesUntilValidJSON(t *testing.T) {
	chat := &fakeChat{
		errs:    []error{errors.New("rate limited")},
		replies: []string{"", "not json", "```json\n{\"customer\": \"Beta Oy\", \"invoice_date\": \"2024-03-01\", \"reference\": \"\", \"confidence\": 0.8}\n```"},
	}
	e := newOpenAIEnricher(chat, OpenAIConfig{MaxRetries: 3})

	fields, err := e.Enrich(context.Background(), reviewRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, chat.calls)
	assert.Equal(t, "Beta Oy", fields.Customer)
	assert.Equal(t, "2024-03-01", fields.InvoiceDate)
	assert.Empty(t, fields.Reference)
	assert.Equal(t, 0.8, fields.Confidence[FieldCustomer])
	_, hasRef := fields.Confidence[FieldReference]
	assert.False(t, hasRef)

	assert.Equal(t, DefaultOpenAIModel, chat.last.Model)
	require.NotNil(t, chat.last.ResponseFormat)
	assert.Contains(t, chat.last.Messages[1].Content, "Missing fields: customer, invoice_date, reference")
}

func TestOpenAIEnricher_GivesUp(t *testing.T) {
	chat := &fakeChat{errs: []error{errors.New("a"), errors.New("b")}}
	e := newOpenAIEnricher(chat, OpenAIConfig{MaxRetries: 2})

	_, err := e.Enrich(context.Background(), reviewRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, 2, chat.calls)
}

func TestOpenAIEnricher_NothingMissing(t *testing.T) {
	chat := &fakeChat{}
	e := newOpenAIEnricher(chat, OpenAIConfig{})
	d := time.Now()
	req := reviewRequest()
	req.Header = models.InvoiceHeader{Vendor: "a", Customer: "b", Reference: "c", InvoiceDate: &d}

	fields, err := e.Enrich(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, &Fields{}, fields)
	assert.Zero(t, chat.calls)
}

func TestOpenAIEnricher_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newOpenAIEnricher(&fakeChat{}, OpenAIConfig{})

	_, err := e.Enrich(ctx, reviewRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewOpenAIEnricher_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEnricher("", OpenAIConfig{})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestNew(t *testing.T) {
	e, err := New(context.Background(), Options{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, e)

	_, err = New(context.Background(), Options{Provider: "bard"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	e, err = New(context.Background(), Options{Provider: "OpenAI", OpenAIAPIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, e.Name())

	_, err = New(context.Background(), Options{Provider: ProviderDocumentAI})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestApply(t *testing.T) {
	h := &models.InvoiceHeader{InvoiceNumber: "1001", Vendor: "Acme AB"}
	notes := Apply(ProviderOpenAI, h, &Fields{
		Vendor:        "Other Vendor",
		Customer:      " Beta Oy ",
		InvoiceDate:   "01.03.2024",
		InvoiceNumber: "1002",
		Total:         "1796.88",
		Confidence:    map[string]float64{FieldCustomer: 0.9},
	})

	assert.Equal(t, "Acme AB", h.Vendor)
	assert.Equal(t, "Beta Oy", h.Customer)
	require.NotNil(t, h.InvoiceDate)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *h.InvoiceDate)
	assert.Equal(t, "1001", h.InvoiceNumber)
	assert.Equal(t, []string{
		"customer filled by openai: Beta Oy (confidence 0.90)",
		"invoice_date filled by openai: 2024-03-01",
		"openai suggests invoice number 1002 (not applied)",
		"openai suggests total 1796.88 (not applied)",
	}, notes)

	assert.Nil(t, Apply(ProviderOpenAI, h, nil))
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024-03-01", "01.03.2024", "1.3.2024", "1 March 2024"} {
		d, ok := ParseDate(s)
		require.True(t, ok, s)
		assert.Equal(t, time.March, d.Month(), s)
	}
	_, ok := ParseDate("next tuesday")
	assert.False(t, ok)
}

type fakeProcessor struct {
	resp *documentaipb.ProcessResponse
	err  error
	req  *documentaipb.ProcessRequest
}

func (f *fakeProcessor) ProcessDocument(_ context.Context, req *documentaipb.ProcessRequest, _ ...gax.CallOption) (*documentaipb.ProcessResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeProcessor) Close() error { return nil }

func writePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inv.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7\n%%EOF\n"), 0o644))
	return path
}

func TestDocumentAIEnricher_MapsEntities(t *testing.T) {
	proc := &fakeProcessor{resp: &documentaipb.ProcessResponse{Document: &documentaipb.Document{
		Entities: []*documentaipb.Document_Entity{
			{Type: "supplier_name", MentionText: "Acme\nAB", Confidence: 0.7},
			{Type: "supplier_name", MentionText: "ACME", Confidence: 0.4},
			{Type: "receiver_name", MentionText: "Beta Oy", Confidence: 0.9},
			{
				Type:            "invoice_date",
				MentionText:     "1 mars 2024",
				Confidence:      0.95,
				NormalizedValue: &documentaipb.Document_Entity_NormalizedValue{StructuredValue: &documentaipb.Document_Entity_NormalizedValue_DateValue{DateValue: &date.Date{Year: 2024, Month: 3, Day: 1}}},
			},
			{Type: "invoice_id", MentionText: "1001", Confidence: 0.99},
			{Type: "line_item", MentionText: "ignored"},
		},
	}}}
	e := newDocumentAIEnricher(proc, DocumentAIConfig{ProjectID: "p", Location: "eu", ProcessorID: "abc"})

	req := reviewRequest()
	req.Path = writePDF(t)
	req.PageStart, req.PageEnd = 2, 3
	fields, err := e.Enrich(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Acme AB", fields.Vendor)
	assert.Equal(t, "Beta Oy", fields.Customer)
	assert.Equal(t, "2024-03-01", fields.InvoiceDate)
	assert.Equal(t, "1001", fields.InvoiceNumber)
	assert.InDelta(t, 0.7, fields.Confidence[FieldVendor], 1e-6)

	assert.Equal(t, "projects/p/locations/eu/processors/abc", proc.req.GetName())
	assert.Equal(t, []int32{2, 3}, proc.req.GetProcessOptions().GetIndividualPageSelector().GetPages())
}

func TestDocumentAIEnricher_Errors(t *testing.T) {
	e := newDocumentAIEnricher(&fakeProcessor{}, DocumentAIConfig{ProjectID: "p", ProcessorID: "abc"})

	notPDF := filepath.Join(t.TempDir(), "x.pdf")
	require.NoError(t, os.WriteFile(notPDF, []byte("hello"), 0o644))
	_, err := e.Enrich(context.Background(), Request{Path: notPDF, PageStart: 1, PageEnd: 1})
	assert.ErrorIs(t, err, ErrInvalidPDF)

	denied := newDocumentAIEnricher(&fakeProcessor{err: status.Error(codes.PermissionDenied, "no")}, DocumentAIConfig{ProjectID: "p", ProcessorID: "abc"})
	_, err = denied.Enrich(context.Background(), Request{Path: writePDF(t), PageStart: 1, PageEnd: 1})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	empty := newDocumentAIEnricher(&fakeProcessor{resp: &documentaipb.ProcessResponse{}}, DocumentAIConfig{ProjectID: "p", ProcessorID: "abc"})
	_, err = empty.Enrich(context.Background(), Request{Path: writePDF(t), PageStart: 1, PageEnd: 1})
	assert.ErrorIs(t, err, ErrNoResponse)
}
