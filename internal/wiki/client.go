// Package wiki — минимальный клиент MediaWiki Action API: чтение
// викитекста страниц, скачивание и загрузка файлов.
package wiki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Mdwiki-TD/svg-translate-web/internal/config"
)

// Ошибки клиента.
var (
	// ErrPageNotFound — страница или файл не существует.
	ErrPageNotFound = errors.New("page not found")

	// ErrAPIResponse — API вернул ошибку или неожиданный ответ.
	ErrAPIResponse = errors.New("unexpected api response")
)

const defaultTimeout = 30 * time.Second

// Client — HTTP-клиент MediaWiki Action API.
type Client struct {
	apiURL    string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

// NewClient создаёт клиент по конфигурации.
func NewClient(cfg config.WikiConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiURL:    cfg.APIURL,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// apiEnvelope — общая обёртка ответа Action API.
type apiEnvelope struct {
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
	Query *struct {
		Pages map[string]struct {
			Missing   *string `json:"missing"`
			Title     string  `json:"title"`
			Revisions []struct {
				Slots map[string]struct {
					Content string `json:"*"`
				} `json:"slots"`
				Content string `json:"*"`
			} `json:"revisions"`
			ImageInfo []struct {
				URL string `json:"url"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

// PageText возвращает викитекст страницы.
func (c *Client) PageText(ctx context.Context, title string) (string, error) {
	params := url.Values{
		"action":  {"query"},
		"format":  {"json"},
		"prop":    {"revisions"},
		"rvprop":  {"content"},
		"rvslots": {"main"},
		"titles":  {title},
	}

	var envelope apiEnvelope
	if err := c.get(ctx, params, &envelope); err != nil {
		return "", err
	}
	if envelope.Query == nil {
		return "", fmt.Errorf("%w: no query section", ErrAPIResponse)
	}

	for _, page := range envelope.Query.Pages {
		if page.Missing != nil {
			return "", fmt.Errorf("%w: %s", ErrPageNotFound, title)
		}
		if len(page.Revisions) == 0 {
			continue
		}
		rev := page.Revisions[0]
		if slot, ok := rev.Slots["main"]; ok && slot.Content != "" {
			return slot.Content, nil
		}
		if rev.Content != "" {
			return rev.Content, nil
		}
	}
	return "", fmt.Errorf("%w: no revisions for %s", ErrAPIResponse, title)
}

// FileURL возвращает прямой URL файла по его заголовку.
func (c *Client) FileURL(ctx context.Context, title string) (string, error) {
	if !strings.HasPrefix(title, "File:") {
		title = "File:" + title
	}

	params := url.Values{
		"action": {"query"},
		"format": {"json"},
		"prop":   {"imageinfo"},
		"iiprop": {"url"},
		"titles": {title},
	}

	var envelope apiEnvelope
	if err := c.get(ctx, params, &envelope); err != nil {
		return "", err
	}
	if envelope.Query == nil {
		return "", fmt.Errorf("%w: no query section", ErrAPIResponse)
	}

	for _, page := range envelope.Query.Pages {
		if page.Missing != nil {
			return "", fmt.Errorf("%w: %s", ErrPageNotFound, title)
		}
		if len(page.ImageInfo) > 0 && page.ImageInfo[0].URL != "" {
			return page.ImageInfo[0].URL, nil
		}
	}
	return "", fmt.Errorf("%w: no imageinfo for %s", ErrAPIResponse, title)
}

// DownloadFile скачивает файл в dir и возвращает путь на диске.
func (c *Client) DownloadFile(ctx context.Context, title, dir string) (string, error) {
	fileURL, err := c.FileURL(ctx, title)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", title, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrPageNotFound, title)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: download %s: HTTP %d", ErrAPIResponse, title, resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	name := filepath.Base(strings.TrimPrefix(title, "File:"))
	path := filepath.Join(dir, name)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	c.logger.Debug("file downloaded", "title", title, "path", path)
	return path, nil
}

// UploadResult — результат загрузки файла.
type UploadResult struct {
	Filename string
	URL      string
}

// Upload загружает файл под именем filename с комментарием comment.
// token — CSRF-токен полученный вызывающим; пустой токен допустим
// только для тестовых вики без авторизации.
func (c *Client) Upload(ctx context.Context, filename, path, comment, token string) (*UploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"action":         "upload",
		"format":         "json",
		"filename":       filename,
		"comment":        comment,
		"token":          token,
		"ignorewarnings": "1",
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", key, err)
		}
	}

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result struct {
		Error *struct {
			Code string `json:"code"`
			Info string `json:"info"`
		} `json:"error"`
		Upload *struct {
			Result    string `json:"result"`
			Filename  string `json:"filename"`
			ImageInfo struct {
				URL string `json:"url"`
			} `json:"imageinfo"`
		} `json:"upload"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAPIResponse, err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrAPIResponse, result.Error.Code, result.Error.Info)
	}
	if result.Upload == nil || result.Upload.Result != "Success" {
		return nil, fmt.Errorf("%w: upload not successful", ErrAPIResponse)
	}

	c.logger.Info("file uploaded", "filename", result.Upload.Filename)
	return &UploadResult{
		Filename: result.Upload.Filename,
		URL:      result.Upload.ImageInfo.URL,
	}, nil
}

// get выполняет GET-запрос к Action API и декодирует ответ.
func (c *Client) get(ctx context.Context, params url.Values, out *apiEnvelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrAPIResponse, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrAPIResponse, err)
	}
	if out.Error != nil {
		return fmt.Errorf("%w: %s: %s", ErrAPIResponse, out.Error.Code, out.Error.Info)
	}
	return nil
}
