package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/erp/kksync/internal/domain/integration"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// emptyMarker is the ERP placeholder for a blank value
const emptyMarker = "****"

// Product status values of the commerce platform
const (
	productEnabled  = 1
	productDisabled = 2
)

// passThroughCodes are copied unmapped whatever their input type
var passThroughCodes = map[string]bool{
	"visibility":   true,
	"tax_class_id": true,
}

// AttributeValue is one transformed attribute.
type AttributeValue struct {
	Code  string
	Value any
}

// Attributes is the transformed payload of one record, ordered by code.
type Attributes []AttributeValue

// Get returns the value of code
func (a Attributes) Get(code string) (any, bool) {
	for _, av := range a {
		if av.Code == code {
			return av.Value, true
		}
	}
	return nil, false
}

// Text returns the value of code rendered as a string
func (a Attributes) Text(code string) string {
	v, _ := a.Get(code)
	return integration.AsString(v)
}

// Transformer maps raw staging payloads onto commerce attribute values.
// Option labels missing from the mapping table are created in commerce;
// concurrent requests for the same attribute and label share one call.
type Transformer struct {
	client integration.CommerceClient
	logger *zap.Logger
	group  singleflight.Group
}

// NewTransformer creates a Transformer
func NewTransformer(client integration.CommerceClient, logger *zap.Logger) *Transformer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{client: client, logger: logger}
}

// Transform maps raw through every attribute of table. Option ids created
// along the way are cached in table.
func (t *Transformer) Transform(ctx context.Context, raw map[string]any, table *integration.MappingTable) Attributes {
	mappings := table.Attributes()
	out := make(Attributes, 0, len(mappings))
	for _, m := range mappings {
		code := m.AttributeCode
		value := raw[m.Source()]
		if s, ok := value.(string); ok && s == emptyMarker {
			value = ""
		}

		if code == "status" {
			out = append(out, AttributeValue{Code: code, Value: productStatus(value)})
			continue
		}
		if passThroughCodes[code] {
			out = append(out, AttributeValue{Code: code, Value: value})
			continue
		}

		switch m.FrontendInput {
		case integration.InputSelect:
			if label, ok := optionLabel(value); ok {
				if id := t.resolveOption(ctx, table, code, label); id != "" {
					out = append(out, AttributeValue{Code: code, Value: id})
				}
			}
		case integration.InputMultiselect:
			if ids := t.resolveOptions(ctx, table, code, integration.AsString(value)); len(ids) > 0 {
				out = append(out, AttributeValue{Code: code, Value: strings.Join(ids, ",")})
			}
		case integration.InputBoolean:
			if b, ok := value.(bool); ok && !b {
				out = append(out, AttributeValue{Code: code, Value: 0})
			} else {
				out = append(out, AttributeValue{Code: code, Value: 1})
			}
		default:
			out = append(out, AttributeValue{Code: code, Value: value})
		}
	}
	return out
}

// productStatus maps the ERP active flag onto the commerce status.
func productStatus(v any) int {
	switch t := v.(type) {
	case bool:
		if t {
			return productEnabled
		}
	case float64:
		if t == 1 {
			return productEnabled
		}
	case int:
		if t == 1 {
			return productEnabled
		}
	case string:
		switch strings.ToLower(t) {
		case "1", "y", "yes":
			return productEnabled
		}
	}
	return productDisabled
}

// optionLabel returns the label of a select value; false, zero and blank
// values have none.
func optionLabel(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case bool:
		if !t {
			return "", false
		}
	case float64:
		if t == 0 {
			return "", false
		}
	}
	label := strings.TrimSpace(integration.AsString(v))
	return label, label != ""
}

func (t *Transformer) resolveOptions(ctx context.Context, table *integration.MappingTable, code, value string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(value, ",") {
		label := strings.TrimSpace(part)
		if label == "" {
			continue
		}
		id := t.resolveOption(ctx, table, code, label)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// resolveOption returns the option id of label, creating the option when
// the table has no id for it. Failures are logged and yield "".
func (t *Transformer) resolveOption(ctx context.Context, table *integration.MappingTable, code, label string) string {
	if id, ok := table.LookupOption(code, label); ok {
		return id
	}

	key := code + "\x00" + integration.OptionKey(label)
	v, err, _ := t.group.Do(key, func() (any, error) {
		if id, ok := table.LookupOption(code, label); ok {
			return id, nil
		}
		id, err := t.createOption(ctx, code, label)
		if err != nil {
			return "", err
		}
		table.AddOption(code, label, id)
		return id, nil
	})
	if err != nil {
		t.logger.Error("Failed to create attribute option",
			zap.String("attribute_code", code),
			zap.String("label", label),
			zap.Error(err),
		)
		return ""
	}
	return v.(string)
}

func (t *Transformer) createOption(ctx context.Context, code, label string) (string, error) {
	payload := OptionPayload{Option: OptionLabel{Label: label}}
	var resp json.RawMessage
	resource := "products/attributes/" + url.PathEscape(code) + "/options"
	if err := t.client.Post(ctx, resource, payload, &resp); err != nil {
		return "", err
	}
	id := parseOptionID(resp)
	if id == "" {
		return "", fmt.Errorf("%w: empty option id for %s", integration.ErrPlatformInvalidResponse, code)
	}
	t.logger.Info("Created attribute option",
		zap.String("attribute_code", code),
		zap.String("label", label),
		zap.String("option_id", id),
	)
	return id, nil
}

// parseOptionID reads the id returned by the option endpoint, which may be
// a JSON string or number. Some versions prefix the id with "id_".
func parseOptionID(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	id := strings.TrimSpace(integration.AsString(v))
	return strings.TrimPrefix(id, "id_")
}
