package enrich

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"invoicelayout/internal/logger"
)

// MaxDocumentSizeBytes is the Document AI online processing limit (20MB).
const MaxDocumentSizeBytes = 20 * 1024 * 1024

type documentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// DocumentAIConfig names the invoice processor.
type DocumentAIConfig struct {
	ProjectID   string
	Location    string // "us" or "eu"
	ProcessorID string
	Timeout     time.Duration
}

// DocumentAIEnricher runs the pages of an invoice range through a Document
// AI invoice processor and maps its entities to header fields.
type DocumentAIEnricher struct {
	client documentProcessor
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIEnricher creates the client with credentials from the
// environment (GOOGLE_CREDENTIALS or GOOGLE_APPLICATION_CREDENTIALS).
func NewDocumentAIEnricher(ctx context.Context, config DocumentAIConfig) (*DocumentAIEnricher, error) {
	const op = "NewDocumentAIEnricher"

	if config.ProjectID == "" {
		return nil, NewEnrichError(op, ErrInvalidConfiguration, "GOOGLE_CLOUD_PROJECT is required")
	}
	if config.ProcessorID == "" {
		return nil, NewEnrichError(op, ErrInvalidConfiguration, "DOCUMENT_AI_PROCESSOR_ID is required")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	var clientOptions []option.ClientOption
	if config.Location != "us" {
		clientOptions = append(clientOptions, option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)))
	}
	hasCredentials := false
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
		hasCredentials = true
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
		hasCredentials = true
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if !hasCredentials {
			return nil, NewEnrichError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, NewEnrichError(op, err, fmt.Sprintf("failed to create Document AI client for location %s", config.Location))
	}
	return newDocumentAIEnricher(client, config), nil
}

func newDocumentAIEnricher(client documentProcessor, config DocumentAIConfig) *DocumentAIEnricher {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &DocumentAIEnricher{
		client: client,
		config: config,
		log:    logger.WithComponent("enrich.documentai"),
	}
}

func (e *DocumentAIEnricher) Name() string { return ProviderDocumentAI }

func (e *DocumentAIEnricher) Close() error { return e.client.Close() }

// Enrich processes the pages of the range and reads supplier, receiver,
// date and reference entities.
func (e *DocumentAIEnricher) Enrich(ctx context.Context, req Request) (*Fields, error) {
	const op = "Enrich"

	content, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, NewEnrichError(op, err, "failed to read PDF")
	}
	if len(content) > MaxDocumentSizeBytes {
		return nil, NewEnrichError(op, ErrDocumentTooLarge, fmt.Sprintf("file size: %d bytes", len(content)))
	}
	if len(content) < 4 || string(content[:4]) != "%PDF" {
		return nil, NewEnrichError(op, ErrInvalidPDF, "missing PDF header")
	}

	pages := make([]int32, 0, req.PageEnd-req.PageStart+1)
	for p := req.PageStart; p <= req.PageEnd; p++ {
		pages = append(pages, int32(p))
	}

	processCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	resp, err := e.client.ProcessDocument(processCtx, &documentaipb.ProcessRequest{
		Name: e.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: "application/pdf",
			},
		},
		ProcessOptions: &documentaipb.ProcessOptions{
			PageRange: &documentaipb.ProcessOptions_IndividualPageSelector_{
				IndividualPageSelector: &documentaipb.ProcessOptions_IndividualPageSelector{Pages: pages},
			},
		},
	})
	if err != nil {
		return nil, e.handleProcessingError(op, err)
	}
	if resp.GetDocument() == nil {
		return nil, NewEnrichError(op, ErrNoResponse, "no document in response")
	}

	fields := entityFields(resp.GetDocument().GetEntities())
	e.log.Info().
		Int("page_start", req.PageStart).
		Int("page_end", req.PageEnd).
		Int("entities", len(resp.GetDocument().GetEntities())).
		Msg("Document AI enrichment completed")
	return fields, nil
}

func (e *DocumentAIEnricher) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		e.config.ProjectID, e.config.Location, e.config.ProcessorID)
}

// handleProcessingError maps gRPC status codes to enrichment errors.
func (e *DocumentAIEnricher) handleProcessingError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewEnrichError(op, err, "processing interrupted")
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return NewEnrichError(op, ErrMissingCredentials, "insufficient permissions for Document AI")
	case codes.NotFound:
		return NewEnrichError(op, ErrInvalidConfiguration, fmt.Sprintf("processor not found: %s", e.config.ProcessorID))
	case codes.InvalidArgument:
		return NewEnrichError(op, ErrInvalidPDF, "document format not supported or corrupted")
	case codes.DeadlineExceeded:
		return NewEnrichError(op, context.DeadlineExceeded, "processing timeout")
	default:
		return NewEnrichError(op, ErrProviderFailed, err.Error())
	}
}

// entityFields keeps the highest-confidence mention per entity type.
func entityFields(entities []*documentaipb.Document_Entity) *Fields {
	fields := &Fields{Confidence: map[string]float64{}}
	set := func(field string, target *string, value string, conf float32) {
		if value == "" {
			return
		}
		if prev, ok := fields.Confidence[field]; ok && prev >= float64(conf) {
			return
		}
		*target = value
		fields.Confidence[field] = float64(conf)
	}

	for _, entity := range entities {
		value := strings.Join(strings.Fields(entity.GetMentionText()), " ")
		conf := entity.GetConfidence()
		switch entity.GetType() {
		case "supplier_name", "vendor_name":
			set(FieldVendor, &fields.Vendor, value, conf)
		case "receiver_name", "buyer_name", "customer_name":
			set(FieldCustomer, &fields.Customer, value, conf)
		case "invoice_date":
			set(FieldInvoiceDate, &fields.InvoiceDate, entityDate(entity, value), conf)
		case "purchase_order", "reference_number":
			set(FieldReference, &fields.Reference, value, conf)
		case "invoice_id", "invoice_number":
			set("invoice_number", &fields.InvoiceNumber, value, conf)
		case "total_amount", "gross_amount":
			set("total", &fields.Total, value, conf)
		}
	}
	return fields
}

// entityDate prefers the normalized date over the printed mention.
func entityDate(entity *documentaipb.Document_Entity, mention string) string {
	if d := entity.GetNormalizedValue().GetDateValue(); d != nil && d.GetYear() > 0 {
		return fmt.Sprintf("%04d-%02d-%02d", d.GetYear(), d.GetMonth(), d.GetDay())
	}
	return mention
}
