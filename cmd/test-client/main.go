// Package main provides a standalone CLI tool for posting test send requests
// to the ingest server's WebEngage webhook. It supports repeated recipients,
// template variables, media headers and batch sending with rate limiting.
//
// Usage:
//
//	test-client --tenant acme --subject 64b7f0c2a1b2c3d4e5f60718 --to 919812345678 --template order_update --var Asha
//	test-client --count 100 --rate 10 --to 919812345678 --template order_update
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sungwon/wa-dispatch/internal/transform"
)

type config struct {
	baseURL   string
	tenant    string
	subject   string
	to        stringSlice
	template  string
	vars      stringSlice
	msgType   string
	mediaURL  string
	fileName  string
	buttonURL string
	count     int
	rate      float64
	timeout   time.Duration
}

// stringSlice implements flag.Value for repeatable flags.
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func main() {
	cfg := parseFlags()

	if len(cfg.to) == 0 {
		fmt.Fprintln(os.Stderr, "error: at least one --to is required")
		flag.Usage()
		os.Exit(2)
	}
	if cfg.template == "" {
		fmt.Fprintln(os.Stderr, "error: --template is required")
		flag.Usage()
		os.Exit(2)
	}

	url := fmt.Sprintf("%s/webhook/webengage/%s/%s", strings.TrimRight(cfg.baseURL, "/"), cfg.tenant, cfg.subject)

	fmt.Printf("Webhook Test Client\n")
	fmt.Printf("  URL:      %s\n", url)
	fmt.Printf("  Template: %s (%s)\n", cfg.template, cfg.msgType)
	fmt.Printf("  To:       %s\n", strings.Join(cfg.to, ", "))
	fmt.Printf("  Count:    %d\n", cfg.count)
	if cfg.count > 1 {
		fmt.Printf("  Rate:     %.1f requests/sec\n", cfg.rate)
	}
	fmt.Println()

	client := &http.Client{Timeout: cfg.timeout}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.rate), 1)
	}

	var (
		successCount int
		failCount    int
		totalSend    time.Duration
	)

	ctx := context.Background()
	total := cfg.count * len(cfg.to)
	seq := 0
	for i := 0; i < cfg.count; i++ {
		for _, to := range cfg.to {
			seq++
			if err := limiter.Wait(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "rate limiter: %v\n", err)
				os.Exit(1)
			}

			sendStart := time.Now()
			status, body, err := send(client, url, buildRequest(cfg, to))
			sendDuration := time.Since(sendStart)
			totalSend += sendDuration

			switch {
			case err != nil:
				failCount++
				fmt.Printf("  [%d/%d] FAIL (%s): %v\n", seq, total, sendDuration, err)
			case status != http.StatusAccepted:
				failCount++
				fmt.Printf("  [%d/%d] FAIL (%s): %d %s\n", seq, total, sendDuration, status, body)
			default:
				successCount++
				fmt.Printf("  [%d/%d] OK   (%s)\n", seq, total, sendDuration)
			}
		}
	}

	fmt.Println()
	fmt.Printf("Results: %d accepted, %d failed, total time %s\n", successCount, failCount, totalSend)

	if failCount > 0 {
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config

	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "Ingest server base URL")
	flag.StringVar(&cfg.tenant, "tenant", "super_admin", "Tenant path segment")
	flag.StringVar(&cfg.subject, "subject", "", "Subject (account) object id")
	flag.Var(&cfg.to, "to", "Recipient phone number (can be specified multiple times)")
	flag.StringVar(&cfg.template, "template", "", "Template name")
	flag.Var(&cfg.vars, "var", "Template variable (can be specified multiple times, in order)")
	flag.StringVar(&cfg.msgType, "type", "TEXT", "Message type: TEXT, IMAGE, VIDEO, DOCUMENT")
	flag.StringVar(&cfg.mediaURL, "media-url", "", "Media header URL")
	flag.StringVar(&cfg.fileName, "file-name", "", "Document file name")
	flag.StringVar(&cfg.buttonURL, "button-url-param", "", "Dynamic button URL parameter")
	flag.IntVar(&cfg.count, "count", 1, "Number of requests per recipient (for batch testing)")
	flag.Float64Var(&cfg.rate, "rate", 1, "Requests per second for batch sending; 0 sends unpaced")
	flag.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "HTTP request timeout")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: test-client [options]\n\n")
		fmt.Fprintf(os.Stderr, "A CLI tool for posting test send requests to the ingest server.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  test-client --subject 64b7f0c2a1b2c3d4e5f60718 --to 919812345678 --template order_update --var Asha\n")
		fmt.Fprintf(os.Stderr, "  test-client --type IMAGE --media-url https://example.com/a.png --to 919812345678 --template promo\n")
		fmt.Fprintf(os.Stderr, "  test-client --count 100 --rate 10 --to 919812345678 --template order_update\n")
	}

	flag.Parse()
	return cfg
}

func buildRequest(cfg config, to string) transform.Request {
	var req transform.Request
	req.Version = "1.0"
	req.Metadata.Timestamp = time.Now().UTC().Format(time.RFC3339)
	req.Metadata.MessageID = uuid.NewString()

	req.WhatsAppData.ToNumber = to
	td := &req.WhatsAppData.TemplateData
	td.TemplateName = cfg.template
	td.TemplateVariables = cfg.vars
	td.Type = cfg.msgType
	td.MediaURL = cfg.mediaURL
	td.FileName = cfg.fileName
	td.ButtonURLParam = cfg.buttonURL
	return req
}

func send(client *http.Client, url string, req transform.Request) (int, string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, "", fmt.Errorf("marshal: %w", err)
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, strings.TrimSpace(string(respBody)), nil
}
