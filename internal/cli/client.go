package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"
)

// Пути и имя поля дублируются из internal/api: CLI не импортирует сервер.
const (
	submitPath  = "/jenkins/job/user-data-proc/buildWithParameters"
	pingPath    = "/pipePing"
	uploadField = "config.json"
)

// SubmitResult: ответ front door на загрузку.
type SubmitResult struct {
	Status   string `json:"status"`
	Location string `json:"location"`
	FileName string `json:"file_name"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client: HTTP-клиент front door.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для front door.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Submit загружает descriptor из файла.
// Файл всегда отправляется под именем config.json.
func (c *Client) Submit(file, successURL, failureURL string) (*SubmitResult, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(uploadField, uploadField)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	params := url.Values{}
	params.Set("success_url", successURL)
	params.Set("failure_url", failureURL)

	req, err := http.NewRequest(http.MethodPost, c.baseURL+submitPath+"?"+params.Encode(), &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	var status string
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	location := resp.Header.Get("Location")
	res := &SubmitResult{Status: status, Location: location}
	if location != "" {
		res.FileName = path.Base(location)
	}
	return res, nil
}

// Ping публикует ping через front door и возвращает ответ сервера.
func (c *Client) Ping() (string, error) {
	resp, err := c.httpClient.Get(c.baseURL + pingPath)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return "", err
	}

	var reply string
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return reply, nil
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	data, _ := io.ReadAll(resp.Body)

	var er errorResponse
	if err := json.Unmarshal(data, &er); err != nil || er.Error.Code == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
