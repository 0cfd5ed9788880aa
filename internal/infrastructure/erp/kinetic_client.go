package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/erp/kksync/internal/domain/integration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxResponseSize is the maximum allowed response size from the ERP (50MB).
// Ingestion pages hold up to a thousand wide rows.
const maxResponseSize = 50 * 1024 * 1024

const tracerName = "github.com/erp/kksync/internal/infrastructure/erp"

// KineticClient implements integration.SourceClient over the Kinetic
// OData export views
type KineticClient struct {
	config     *KineticConfig
	httpClient *http.Client
	logger     *zap.Logger
	tracer     trace.Tracer
}

// odataPage is the envelope of an OData collection response
type odataPage struct {
	Count *int64           `json:"@odata.count"`
	Value []map[string]any `json:"value"`
}

// NewKineticClient creates a new Kinetic client
func NewKineticClient(config *KineticConfig, logger *zap.Logger) (*KineticClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	tlsConfig, err := config.TLSConfig()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &KineticClient{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// GetPage reads one page of an export view with $skip/$top paging.
// The entity order keeps pages stable while the view is read.
func (c *KineticClient) GetPage(ctx context.Context, entity integration.SourceEntity, skip, top int, filter string) (integration.SourcePage, error) {
	query := url.Values{}
	query.Set("$skip", strconv.Itoa(skip))
	query.Set("$top", strconv.Itoa(top))
	query.Set("$count", "true")
	if filter != "" {
		query.Set("$filter", filter)
	}
	if entity.OrderBy != "" {
		query.Set("$orderby", entity.OrderBy)
	}

	var page odataPage
	if err := c.doRequest(ctx, http.MethodGet, entity.Resource, query, nil, &page); err != nil {
		return integration.SourcePage{}, err
	}

	result := integration.SourcePage{Rows: page.Value}
	if page.Count != nil {
		result.TotalCount = *page.Count
	} else {
		result.TotalCount = int64(skip + len(page.Value))
	}
	c.logger.Debug("kinetic page read",
		zap.String("entity", entity.Name),
		zap.Int("skip", skip),
		zap.Int("rows", len(page.Value)),
		zap.Int64("total", result.TotalCount),
	)
	return result, nil
}

// MarkProcessed posts the staging table name to the processed function
func (c *KineticClient) MarkProcessed(ctx context.Context, table string) error {
	return c.doRequest(ctx, http.MethodPost, c.config.ProcessedFunction, nil, map[string]string{"tableName": table}, nil)
}

func (c *KineticClient) doRequest(ctx context.Context, method, resource string, query url.Values, payload, out any) error {
	resource = strings.TrimPrefix(resource, "/")

	ctx, span := c.tracer.Start(ctx, "kinetic "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("kinetic.resource", resource)),
	)
	defer span.End()

	target := c.config.CompanyRoot() + resource
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("kinetic: failed to encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("kinetic: failed to create request: %w", err)
	}
	req.SetBasicAuth(c.config.Username, c.config.Password)
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("x-api-key", c.config.APIKey)
	}
	if c.config.License != "" {
		req.Header.Set("License", c.config.License)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		return fmt.Errorf("%w: %v", integration.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", integration.ErrPlatformUnavailable, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		var decoded any
		if err := json.Unmarshal(respBody, &decoded); err != nil {
			decoded = strings.TrimSpace(string(respBody))
		}
		return &integration.HTTPError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Resource:   resource,
			Body:       decoded,
		}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: failed to parse response: %v", integration.ErrPlatformInvalidResponse, err)
	}
	return nil
}

var _ integration.SourceClient = (*KineticClient)(nil)
