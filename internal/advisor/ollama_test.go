package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestGenerateSendsModelAndOptions(t *testing.T) {
	var captured map[string]any
	client := NewOllamaClient("http://localhost:11434/api/generate")
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.String() != "http://localhost:11434/api/generate" {
			t.Fatalf("unexpected URL: %s", req.URL)
		}
		if ct := req.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content type = %q", ct)
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request: %v", err)
		}
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		payload, _ := json.Marshal(map[string]any{"response": "  Ventilar de inmediato \n"})
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(payload)),
			Header:     make(http.Header),
		}, nil
	}))

	opts := GenerateOptions{
		Model:       "deepseek-r1:8b",
		Temperature: 0.8,
		MaxTokens:   500,
		TopP:        0.9,
		Timeout:     time.Second,
	}
	reply, err := client.Generate(context.Background(), opts, "analiza el invernadero")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Ventilar de inmediato" {
		t.Fatalf("reply = %q", reply)
	}

	if captured["model"] != "deepseek-r1:8b" {
		t.Fatalf("model = %v", captured["model"])
	}
	if captured["stream"] != false {
		t.Fatalf("stream = %v", captured["stream"])
	}
	if captured["prompt"] != "analiza el invernadero" {
		t.Fatalf("prompt = %v", captured["prompt"])
	}
	options, ok := captured["options"].(map[string]any)
	if !ok {
		t.Fatalf("options = %v", captured["options"])
	}
	if options["temperature"] != 0.8 || options["max_tokens"] != 500.0 || options["top_p"] != 0.9 {
		t.Fatalf("options = %v", options)
	}
}

func TestGenerateOmitsTopPWhenUnset(t *testing.T) {
	var captured map[string]any
	client := NewOllamaClient("http://localhost:11434/api/generate")
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		payload, _ := json.Marshal(map[string]any{"response": "ok"})
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(payload)),
			Header:     make(http.Header),
		}, nil
	}))

	opts := GenerateOptions{Model: "tinyllama:1.1b", Temperature: 0.7, MaxTokens: 100}
	if _, err := client.Generate(context.Background(), opts, "alerta"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	options := captured["options"].(map[string]any)
	if _, present := options["top_p"]; present {
		t.Fatalf("top_p should be omitted, options = %v", options)
	}
}

func TestGenerateFailures(t *testing.T) {
	client := NewOllamaClient("http://localhost:11434/api/generate")
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusInternalServerError,
			Status:     "500 Internal Server Error",
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Header:     make(http.Header),
		}, nil
	}))
	if _, err := client.Generate(context.Background(), GenerateOptions{Model: "tinyllama:1.1b"}, "x"); err == nil {
		t.Fatal("expected error for upstream failure")
	}

	unconfigured := NewOllamaClient("")
	if _, err := unconfigured.Generate(context.Background(), GenerateOptions{Model: "tinyllama:1.1b"}, "x"); err == nil {
		t.Fatal("expected error for missing URL")
	}
}
