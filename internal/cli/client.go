package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StageResponse — стадия задачи из API.
type StageResponse struct {
	Name      string `json:"name"`
	Number    int    `json:"number"`
	Status    string `json:"status"`
	SubName   string `json:"sub_name,omitempty"`
	Message   string `json:"message,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// TaskResponse — задача из API.
type TaskResponse struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	NormalizedTitle string          `json:"normalized_title"`
	Username        string          `json:"username,omitempty"`
	MainFile        string          `json:"main_file,omitempty"`
	Status          string          `json:"status"`
	Message         string          `json:"message,omitempty"`
	Results         map[string]any  `json:"results,omitempty"`
	Stages          []StageResponse `json:"stages,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

// PoolResponse — статус пула соединений из API.
type PoolResponse struct {
	Name        string  `json:"name"`
	Baseline    int     `json:"baseline"`
	Overflow    int     `json:"overflow"`
	Open        int     `json:"open"`
	CheckedIn   int     `json:"checked_in"`
	CheckedOut  int     `json:"checked_out"`
	Utilization float64 `json:"utilization"`
}

// HealthResponse — ответ health check.
type HealthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	ActiveTasks int    `json:"active_tasks"`
}

// --- Request types ---

// CreateTaskRequest — создание задачи.
type CreateTaskRequest struct {
	Title    string         `json:"title"`
	Username string         `json:"username,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
}

// ListTasksOpts — параметры фильтрации задач.
type ListTasksOpts struct {
	Status   string
	Username string
	Limit    int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для API сервиса перевода.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tasks ---

// ListTasks возвращает список задач с фильтрацией.
func (c *Client) ListTasks(opts ListTasksOpts) ([]TaskResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Username != "" {
		params.Set("username", opts.Username)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var tasks []TaskResponse
	err := c.list("/api/v1/tasks", params, &tasks)
	return tasks, err
}

// SubmitTask создаёт новую задачу перевода.
func (c *Client) SubmitTask(req CreateTaskRequest) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks", req, &task)
	return &task, err
}

// GetTask возвращает задачу со стадиями.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+id, &task)
	return &task, err
}

// CancelTask запрашивает отмену задачи.
func (c *Client) CancelTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks/"+id+"/cancel", nil, &task)
	return &task, err
}

// RestartTask перезапускает задачу из терминального статуса.
func (c *Client) RestartTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks/"+id+"/restart", nil, &task)
	return &task, err
}

// --- Pools ---

// ListPools возвращает статус всех пулов.
func (c *Client) ListPools() ([]PoolResponse, error) {
	var pools []PoolResponse
	err := c.list("/api/v1/pools", nil, &pools)
	return pools, err
}

// GetPool возвращает статус пула по классу нагрузки.
func (c *Client) GetPool(class string) (*PoolResponse, error) {
	var pool PoolResponse
	err := c.get("/api/v1/pools/"+class, &pool)
	return &pool, err
}

// --- Health ---

// Health возвращает состояние сервиса.
func (c *Client) Health() (*HealthResponse, error) {
	resp, err := c.do(http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Health отвечает без конверта data и с 503 при деградации.
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &health, nil
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if lr.Data == nil {
		return nil
	}
	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
