// Package models defines the data structures shared by the kodama server,
// its clients and the admin surface.
package models

// Project is a top-level namespace for services.
type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Service belongs to exactly one project and owns its own record store.
type Service struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RecordInfo identifies a record within a service.
type RecordInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DataEntry holds the statistics of one group_by value within a record.
// All durations are in microseconds.
type DataEntry struct {
	// GroupBy is the aggregation key
	GroupBy string `json:"group_by"`

	// Count is the total number of observations
	Count int64 `json:"count"`

	// Errors is the number of observations flagged as errors
	Errors int64 `json:"errors"`

	// ExecutionTime is the summed execution time
	ExecutionTime uint64 `json:"execution_time"`

	Min uint64 `json:"min"`
	Max uint64 `json:"max"`

	// Avg is rounded to the nearest microsecond
	Avg uint64 `json:"avg"`

	// P50 and P95 are nearest-rank percentiles with a truncated rank
	P50 uint64 `json:"p50"`
	P95 uint64 `json:"p95"`
}

// ErrorResponse is the body of every failed admin request.
type ErrorResponse struct {
	Code    uint16 `json:"code"`
	Message string `json:"message"`
}

// Admin request and response bodies.

type CreateProjectRequest struct {
	ProjectName        string `json:"project_name"`
	ProjectDescription string `json:"project_description"`
}

type CreateProjectResponse struct {
	ProjectID int64 `json:"project_id"`
}

type ListProjectsResponse struct {
	Projects []Project `json:"projects"`
}

type CreateServiceRequest struct {
	ProjectName        string `json:"project_name"`
	ServiceName        string `json:"service_name"`
	ServiceDescription string `json:"service_description"`
}

type CreateServiceResponse struct {
	ServiceID int64 `json:"service_id"`
}

type ListServicesRequest struct {
	ProjectName string `json:"project_name"`
}

type ListServicesResponse struct {
	Services []Service `json:"services"`
}

type ListRecordsRequest struct {
	ProjectName string `json:"project_name"`
	ServiceName string `json:"service_name"`
}

type ListRecordsResponse struct {
	Records []RecordInfo `json:"records"`
}

type RecordDataRequest struct {
	ProjectName string `json:"project_name"`
	ServiceName string `json:"service_name"`
	RecordName  string `json:"record_name"`
}

type RecordDataResponse struct {
	Entries []DataEntry `json:"entries"`
}
