package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type payload struct {
	Name string `json:"name"`
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Key") != "Key k" {
			t.Errorf("got X-Key %q", r.Header.Get("X-Key"))
		}
		switch r.URL.Path {
		case "/ok":
			_, _ = io.WriteString(w, `{"name":"kandinsky"}`)
		case "/bad":
			_, _ = io.WriteString(w, `not json`)
		default:
			http.Error(w, "nope", http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	headers := map[string]string{"X-Key": "Key k"}

	t.Run("decodes_json", func(t *testing.T) {
		got, err := Get[payload](*srv.Client(), context.Background(), srv.URL+"/ok", headers)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Name != "kandinsky" {
			t.Fatalf("got %q want %q", got.Name, "kandinsky")
		}
	})

	t.Run("status_error", func(t *testing.T) {
		_, err := Get[payload](*srv.Client(), context.Background(), srv.URL+"/missing", headers)
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("got %v want *StatusError", err)
		}
		if se.Code != http.StatusUnauthorized || se.Body != "nope" {
			t.Fatalf("got code %d body %q", se.Code, se.Body)
		}
	})

	t.Run("invalid_json", func(t *testing.T) {
		_, err := Get[payload](*srv.Client(), context.Background(), srv.URL+"/bad", headers)
		if err == nil || !strings.Contains(err.Error(), "not json") {
			t.Fatalf("got %v", err)
		}
	})
}

func TestPostMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got := r.FormValue("model_id"); got != "4" {
			http.Error(w, "model_id "+got, http.StatusBadRequest)
			return
		}
		fh := r.MultipartForm.File["params"]
		if len(fh) != 1 || fh[0].Filename != "blob" || fh[0].Header.Get("Content-Type") != "application/json" {
			http.Error(w, "params part", http.StatusBadRequest)
			return
		}
		f, _ := fh[0].Open()
		b, _ := io.ReadAll(f)
		_, _ = io.WriteString(w, `{"name":`+string(b)+`}`)
	}))
	defer srv.Close()

	parts := []Part{
		{Name: "model_id", Body: []byte("4")},
		{Name: "params", Filename: "blob", ContentType: "application/json", Body: []byte(`"echo"`)},
	}
	got, err := PostMultipart[payload](*srv.Client(), context.Background(), srv.URL, parts, nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if got.Name != "echo" {
		t.Fatalf("got %q want %q", got.Name, "echo")
	}
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, strings.Repeat("x", snippetLimit*2))
			return
		}
		_, _ = io.WriteString(w, "body")
	}))
	defer srv.Close()

	resp, err := Stream(*srv.Client(), context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(b) != "body" {
		t.Fatalf("got %q want %q", b, "body")
	}

	_, err = Stream(*srv.Client(), context.Background(), srv.URL+"/fail", nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("got %v want *StatusError", err)
	}
	if se.Code != http.StatusBadGateway || len(se.Body) != snippetLimit {
		t.Fatalf("got code %d body len %d", se.Code, len(se.Body))
	}
}
