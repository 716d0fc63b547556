// Package adminclient talks to the kodama admin API.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fidde/kodama/pkg/models"
)

// DefaultURL is the admin API of a local server.
const DefaultURL = "http://127.0.0.1:49001"

// APIError is a failed admin request.
type APIError struct {
	Status  int
	Code    uint16
	Message string
}

func (e *APIError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("admin api: http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("admin api: %s (code %d)", e.Message, e.Code)
}

// Client is an admin API client.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) CreateProject(ctx context.Context, name, description string) (int64, error) {
	var resp models.CreateProjectResponse
	err := c.do(ctx, http.MethodPut, "/project", models.CreateProjectRequest{
		ProjectName:        name,
		ProjectDescription: description,
	}, &resp)
	return resp.ProjectID, err
}

func (c *Client) ListProjects(ctx context.Context) ([]models.Project, error) {
	var resp models.ListProjectsResponse
	err := c.do(ctx, http.MethodPost, "/projects", nil, &resp)
	return resp.Projects, err
}

func (c *Client) CreateService(ctx context.Context, project, name, description string) (int64, error) {
	var resp models.CreateServiceResponse
	err := c.do(ctx, http.MethodPut, "/service", models.CreateServiceRequest{
		ProjectName:        project,
		ServiceName:        name,
		ServiceDescription: description,
	}, &resp)
	return resp.ServiceID, err
}

func (c *Client) ListServices(ctx context.Context, project string) ([]models.Service, error) {
	var resp models.ListServicesResponse
	err := c.do(ctx, http.MethodPost, "/services", models.ListServicesRequest{ProjectName: project}, &resp)
	return resp.Services, err
}

func (c *Client) ListRecords(ctx context.Context, project, service string) ([]models.RecordInfo, error) {
	var resp models.ListRecordsResponse
	err := c.do(ctx, http.MethodPost, "/records", models.ListRecordsRequest{
		ProjectName: project,
		ServiceName: service,
	}, &resp)
	return resp.Records, err
}

func (c *Client) RecordEntries(ctx context.Context, project, service, record string) ([]models.DataEntry, error) {
	var resp models.RecordDataResponse
	err := c.do(ctx, http.MethodPost, "/record", models.RecordDataRequest{
		ProjectName: project,
		ServiceName: service,
		RecordName:  record,
	}, &resp)
	return resp.Entries, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		var er models.ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Message != "" {
			apiErr.Code = er.Code
			apiErr.Message = er.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
