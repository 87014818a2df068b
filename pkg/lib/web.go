package lib

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

var ErrUnsupportedContentType = errors.New("unsupported content type")

const UserAgentString = "aifeed/1.0 (+https://github.com/aifeedco/aifeed)"

// FetchTextFromURL fetches a URL and extracts readable plain text from it.
// HTML documents go through readability extraction, PDFs through the PDF
// text extractor.
func FetchTextFromURL(ctx context.Context, logger *zerolog.Logger, url string) (string, error) {
	resp, err := FetchURL(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetch url: %w", err)
	}

	defer resp.Body.Close()

	text, err := TextFromHTTPResponse(logger, resp)
	if err != nil {
		return "", fmt.Errorf("text from http response: %w", err)
	}

	return text, nil
}

// FetchURL fetches a URL and returns the http response.
// The response body should be closed by the caller.
func FetchURL(ctx context.Context, url string) (*http.Response, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgentString)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch url: %w", err)
	}

	return resp, nil
}

func TextFromHTTPResponse(logger *zerolog.Logger, resp *http.Response) (string, error) {
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	url := resp.Request.URL.String()

	if strings.Contains(contentType, "application/pdf") || strings.HasSuffix(url, ".pdf") {
		return extractTextFromPDF(resp.Body)
	}

	if strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml+xml") {
		return extractTextFromHTML(logger, resp.Request.URL, resp.Body)
	}

	logger.Warn().
		Str("url", url).
		Str("content_type", contentType).
		Msg("Unsupported content type")

	return "", ErrUnsupportedContentType
}

func extractTextFromPDF(body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("create pdf reader: %w", err)
	}

	plainText, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("get plain text: %w", err)
	}

	textBytes, err := io.ReadAll(plainText)
	if err != nil {
		return "", fmt.Errorf("read plain text: %w", err)
	}

	return string(textBytes), nil
}

// extractTextFromHTML runs readability extraction and falls back to a
// plain body-text scrape when readability can't make sense of the page.
func extractTextFromHTML(logger *zerolog.Logger, pageURL *neturl.URL, body io.Reader) (result string, resultErr error) {
	defer func() {
		if r := recover(); r != nil {
			// Readability panics on some malformed pages.
			// Log to investigate further.
			logger.Error().
				Str("url", pageURL.String()).
				Interface("panic", r).
				Msg("html parsing panic")
		}
	}()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return article.TextContent, nil
	}

	doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if docErr != nil {
		if err != nil {
			return "", fmt.Errorf("readability from reader: %w", err)
		}
		return "", fmt.Errorf("parse html: %w", docErr)
	}

	doc.Find("script, style, noscript").Remove()
	text := strings.TrimSpace(doc.Find("body").Text())
	if text == "" {
		return "", fmt.Errorf("no readable text in document")
	}

	logger.Debug().
		Str("url", pageURL.String()).
		Msg("readability extraction empty, used body text fallback")

	return text, nil
}

// StripURL removes the protocol, www., and trailing slash from a URL.
func StripURL(url string) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "www.")
	url = strings.TrimSuffix(url, "/")
	return url
}

// StripURLHost returns the host part of a URL without a www. prefix.
func StripURLHost(url string) (string, error) {
	parsedURL, err := neturl.Parse(url)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	if parsedURL.Host == "" {
		return "", fmt.Errorf("url has no host")
	}

	return strings.TrimPrefix(parsedURL.Host, "www."), nil
}
