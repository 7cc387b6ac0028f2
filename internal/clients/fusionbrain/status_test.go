package fusionbrain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestScanner_SkipsUnrelatedValues(t *testing.T) {
	img := jpegBase64(t, 16, 16)
	bodies := map[string]string{
		"reordered": fmt.Sprintf(`{"censored":false,"status":"DONE","uuid":"job-1","images":[%q]}`, img),
		"nested": fmt.Sprintf(`{ "meta" : {"a":[1,2,{"b":"}]\""}],"c":null} , "n":-1.5e3,`+
			`"ok":true,"status":"DONE","result":{"files":[]},"images":%q }`, img),
		"whitespace": fmt.Sprintf("{\n  \"status\": \"DONE\",\n  \"images\": [\n    %q\n  ]\n}", img),
		"escaped_slashes": `{"status":"DONE","images":["` + strings.ReplaceAll(img, "/", `\/`) + `"]}`,
		"wrapped_lines":   `{"status":"DONE","images":["` + wrap(img, 76) + `"]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.client.job = "job-1"
			if err := h.client.readStatus(context.Background(), "job-1", strings.NewReader(body)); err != nil {
				t.Fatalf("read status: %v", err)
			}
			if h.client.Status() != StatusDone || h.ends != 1 {
				t.Fatalf("got status %q, %d end callbacks", h.client.Status(), h.ends)
			}
			assertCovers(t, h.tiles, 16, 16)
		})
	}
}

// wrap splits s into JSON-escaped lines, as some encoders emit them.
func wrap(s string, n int) string {
	var b strings.Builder
	for len(s) > n {
		b.WriteString(s[:n])
		b.WriteString(`\n`)
		s = s[n:]
	}
	b.WriteString(s)
	return b.String()
}

func TestScanner_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"empty":           ``,
		"truncated_key":   `{"sta`,
		"missing_colon":   `{"status" "DONE"}`,
		"status_number":   `{"status":3}`,
		"long_status":     `{"status":"` + strings.Repeat("X", maxStatusLen+1) + `"}`,
		"long_key":        `{"` + strings.Repeat("k", maxKeyLen+1) + `":1}`,
		"deep_nesting":    `{"a":` + strings.Repeat("[", maxDepth+1) + strings.Repeat("]", maxDepth+1) + `}`,
		"unterminated":    `{"uuid":"job-1",`,
		"images_is_bogus": `{"status":"DONE","images":42}`,
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.client.job = "job-1"
			err := h.client.readStatus(context.Background(), "job-1", strings.NewReader(body))
			if !errors.Is(err, ErrProtocol) {
				t.Fatalf("got %v want %v", err, ErrProtocol)
			}
		})
	}
}

func TestStringReader(t *testing.T) {
	s := newScanner(strings.NewReader(`abc\/d\\e\u0041f\ng"tail`))
	got, err := io.ReadAll(&stringReader{r: s.r})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if want := `abc/d\efg`; string(got) != want {
		t.Fatalf("got %q want %q", got, want)
	}
	rest, _ := io.ReadAll(s.r)
	if string(rest) != "tail" {
		t.Fatalf("read past the closing quote, left %q", rest)
	}

	_, err = io.ReadAll(&stringReader{r: newScanner(strings.NewReader("abc")).r})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("unterminated string: got %v want %v", err, io.ErrUnexpectedEOF)
	}
}
