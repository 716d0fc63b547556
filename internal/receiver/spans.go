package receiver

import (
	"fmt"

	"github.com/fidde/kodama/internal/normalize"
	"github.com/fidde/kodama/pkg/models"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

const (
	// SpanRecord is the record OTLP spans are stored under.
	SpanRecord = "spans"

	// ProjectAttribute is the resource attribute naming the project.
	ProjectAttribute = "kodama.project"

	serviceNameAttribute = "service.name"
)

// SpanConverter turns OTLP spans into records: one record per span, grouped
// by span name.
type SpanConverter struct {
	defaultProject string
	normalizer     *normalize.Normalizer
}

// NewSpanConverter creates a converter. A non-nil normalizer rewrites span
// names into templates before they become group_by values.
func NewSpanConverter(defaultProject string, normalizer *normalize.Normalizer) *SpanConverter {
	return &SpanConverter{defaultProject: defaultProject, normalizer: normalizer}
}

// Convert returns the records of req. Spans of resources without a valid
// project and service name are skipped and counted in rejected.
func (c *SpanConverter) Convert(req *coltracepb.ExportTraceServiceRequest) (records []*models.Record, rejected int64) {
	for _, resourceSpans := range req.GetResourceSpans() {
		attrs := extractAttributes(resourceSpans.GetResource().GetAttributes())

		service := attrs[serviceNameAttribute]
		project := attrs[ProjectAttribute]
		if project == "" {
			project = c.defaultProject
		}
		valid := models.ValidateName(project) == nil && models.ValidateName(service) == nil

		for _, scopeSpans := range resourceSpans.GetScopeSpans() {
			if !valid {
				rejected += int64(len(scopeSpans.GetSpans()))
				continue
			}
			for _, span := range scopeSpans.GetSpans() {
				records = append(records, c.spanRecord(project, service, span))
			}
		}
	}
	return records, rejected
}

func (c *SpanConverter) spanRecord(project, service string, span *tracepb.Span) *models.Record {
	var duration uint64
	if end, start := span.GetEndTimeUnixNano(), span.GetStartTimeUnixNano(); end > start {
		duration = (end - start) / 1000
	}

	var ts *models.Timestamp
	if start := span.GetStartTimeUnixNano(); start > 0 {
		ts = &models.Timestamp{Microseconds: start / 1000}
	}

	var failed int64
	if span.GetStatus().GetCode() == tracepb.Status_STATUS_CODE_ERROR {
		failed = 1
	}

	groupBy := span.GetName()
	if c.normalizer != nil {
		groupBy = c.normalizer.Normalize(groupBy)
	}

	return &models.Record{
		ProjectName:     project,
		ServiceName:     service,
		RecordName:      SpanRecord,
		GroupBy:         groupBy,
		Timestamp:       ts,
		ExecutionTimeUs: duration,
		Error:           failed,
	}
}

func extractAttributes(attrs []*commonpb.KeyValue) map[string]string {
	result := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		result[attr.GetKey()] = attributeValueToString(attr.GetValue())
	}
	return result
}

func attributeValueToString(value *commonpb.AnyValue) string {
	if value == nil {
		return ""
	}

	switch v := value.Value.(type) {
	case *commonpb.AnyValue_StringValue:
		return v.StringValue
	case *commonpb.AnyValue_IntValue:
		return fmt.Sprintf("%d", v.IntValue)
	case *commonpb.AnyValue_BoolValue:
		return fmt.Sprintf("%t", v.BoolValue)
	default:
		return ""
	}
}
