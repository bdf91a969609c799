package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/provio/fieldsync/internal/config"
	"github.com/provio/fieldsync/internal/logger"
	"github.com/provio/fieldsync/models"
)

type httpTransport struct {
	client *resty.Client
	logger *logger.Logger

	token string
}

// NewHTTPTransport constructs the HTTP/JSON implementation of [Transport].
// It normalises and validates the base URL from adapterCfg.HTTPAddress and
// configures the underlying resty client with the resolved base URL and
// request timeout. The configured token, if any, is installed immediately.
//
// Returns an error if adapterCfg.HTTPAddress is empty or cannot be parsed as
// a valid URL.
func NewHTTPTransport(adapterCfg config.AdapterConfig, log *logger.Logger) (Transport, error) {
	baseURL, err := normalizeBaseURL(adapterCfg.HTTPAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid adapter http address: %w", err)
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(adapterCfg.RequestTimeout)

	t := &httpTransport{client: client, logger: log}
	t.SetToken(adapterCfg.Token)
	return t, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty address")
	}

	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("address must include host and scheme")
	}

	return strings.TrimRight(u.String(), "/"), nil
}

// SetToken implements [Transport]. It stores token (whitespace-trimmed) for
// use in the Authorization header of all subsequent requests.
func (h *httpTransport) SetToken(token string) {
	h.token = strings.TrimSpace(token)
}

// Scope implements [Transport]. The server infers the technician from the
// bearer token; the client only needs the same identifier to partition
// scoped tables, so the token is parsed without signature verification.
func (h *httpTransport) Scope() (string, error) {
	if h.token == "" {
		return "", errors.New("no token set")
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(h.token, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject claim")
	}
	return sub, nil
}

// Pull implements [Transport]. It issues
// GET <path>?updatedSince=<RFC3339>&limit=<n> (plus scope when set) and
// decodes the page envelope. Returns an error if the request, response
// mapping, or JSON decoding fails.
func (h *httpTransport) Pull(ctx context.Context, path string, since time.Time, limit int, scope string) (models.PullResponse, error) {
	req := h.authedRequest(ctx).
		SetQueryParam("limit", strconv.Itoa(limit))
	if !since.IsZero() {
		req.SetQueryParam("updatedSince", since.UTC().Format(time.RFC3339Nano))
	}
	if scope != "" {
		req.SetQueryParam("scope", scope)
	}

	resp, err := req.Get(path)
	if err != nil {
		return models.PullResponse{}, fmt.Errorf("pull request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.PullResponse{}, err
	}

	var page models.PullResponse
	if err = json.Unmarshal(resp.Body(), &page); err != nil {
		return models.PullResponse{}, fmt.Errorf("decode pull response: %w", err)
	}

	return page, nil
}

// Push implements [Transport]. It POSTs the batch to <path> and decodes the
// per-item results. A non-2xx status maps to a request-level error; row-level
// rejections are carried inside the result slice.
func (h *httpTransport) Push(ctx context.Context, path string, items []models.PushItem) ([]models.PushItemResult, error) {
	resp, err := h.authedRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(models.PushRequest{Items: items}).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("push request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	var pr models.PushResponse
	if err = json.Unmarshal(resp.Body(), &pr); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}

	return pr.Results, nil
}

// UploadAttachment implements [Transport]. The payload goes out as multipart
// form data; inline bytes win over a file path when both are set.
func (h *httpTransport) UploadAttachment(ctx context.Context, path string, upload models.AttachmentUpload) (models.AttachmentRef, error) {
	req := h.authedRequest(ctx).
		SetFormData(map[string]string{
			"entity":  upload.Entity,
			"localId": upload.RecordLocalID,
			"field":   upload.Field,
		})

	fileName := upload.FileName
	if fileName == "" {
		fileName = filepath.Base(upload.FilePath)
	}
	if len(upload.Data) > 0 {
		req.SetFileReader("file", fileName, bytes.NewReader(upload.Data))
	} else {
		req.SetFile("file", upload.FilePath)
	}

	resp, err := req.Post(path)
	if err != nil {
		return models.AttachmentRef{}, fmt.Errorf("upload request: %w", err)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.AttachmentRef{}, err
	}

	var ref models.AttachmentRef
	if err = json.Unmarshal(resp.Body(), &ref); err != nil {
		return models.AttachmentRef{}, fmt.Errorf("decode upload response: %w", err)
	}

	return ref, nil
}

func (h *httpTransport) authedRequest(ctx context.Context) *resty.Request {
	req := h.client.R().SetContext(ctx)
	if h.token != "" {
		req.SetHeader("Authorization", "Bearer "+h.token)
	}
	return req
}

func mapHTTPError(resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusOK && resp.StatusCode() < http.StatusMultipleChoices {
		return nil
	}

	if resp.StatusCode() == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	body := strings.TrimSpace(string(resp.Body()))
	if body == "" {
		body = http.StatusText(resp.StatusCode())
	}
	return &StatusError{Code: resp.StatusCode(), Message: body}
}
