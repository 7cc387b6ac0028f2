package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

const snippetLimit = 8 << 10

// StatusError is returned for any non-2xx response.
type StatusError struct {
	URL    string
	Status string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s: %s: %s", e.URL, e.Status, e.Body)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > snippetLimit {
		s = s[:snippetLimit]
	}
	return s
}

func statusError(url string, resp *http.Response, body []byte) error {
	return &StatusError{URL: url, Status: resp.Status, Code: resp.StatusCode, Body: snippet(body)}
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func decode[r any](url string, resp *http.Response) (r, error) {
	var response r

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return response, err
	}

	if !ok(resp) {
		return response, statusError(url, resp, responseBytes)
	}

	if err := json.Unmarshal(responseBytes, &response); err != nil {
		return response, fmt.Errorf("unmarshal %s: %w: %s", url, err, snippet(responseBytes))
	}

	return response, nil
}

func Get[r any](h http.Client, ctx context.Context, url string, headers map[string]string) (r, error) {

	var response r

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return response, err
	}

	for key, val := range headers {
		req.Header.Set(key, val)
	}

	resp, err := h.Do(req)
	if err != nil {
		return response, err
	}
	defer resp.Body.Close()

	return decode[r](url, resp)
}

// Part is one section of a multipart/form-data body. Parts without a Filename are
// sent as plain form values.
type Part struct {
	Name        string
	Filename    string
	ContentType string
	Body        []byte
}

func PostMultipart[r any](h http.Client, ctx context.Context, url string, parts []Part, headers map[string]string) (r, error) {

	var response r

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		hdr := make(textproto.MIMEHeader)
		if p.Filename != "" {
			hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.Name, p.Filename))
		} else {
			hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, p.Name))
		}
		if p.ContentType != "" {
			hdr.Set("Content-Type", p.ContentType)
		}
		w, err := mw.CreatePart(hdr)
		if err != nil {
			return response, err
		}
		if _, err := w.Write(p.Body); err != nil {
			return response, err
		}
	}
	if err := mw.Close(); err != nil {
		return response, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return response, err
	}

	for key, val := range headers {
		req.Header.Set(key, val)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.Do(req)
	if err != nil {
		return response, err
	}
	defer resp.Body.Close()

	return decode[r](url, resp)
}

// Stream issues a GET and hands back the open response for the caller to consume.
// The caller closes the body. Non-2xx responses are closed here and reported as a
// *StatusError.
func Stream(h http.Client, ctx context.Context, url string, headers map[string]string) (*http.Response, error) {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	for key, val := range headers {
		req.Header.Set(key, val)
	}

	resp, err := h.Do(req)
	if err != nil {
		return nil, err
	}

	if !ok(resp) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, snippetLimit))
		_ = resp.Body.Close()
		return nil, statusError(url, resp, body)
	}

	return resp, nil
}
