package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/carlmjohnson/requests"
	"github.com/ticketguy/Keepshot/lib/models"
	"go.uber.org/zap"
)

// Content is the normalized result of fetching a bookmark: comparable text, a
// content-addressable hash over it, and opaque fetch metadata.
type Content struct {
	Text     string
	Hash     string
	Title    string
	Metadata models.JSONMap
}

type Scraper struct {
	log       *zap.Logger
	transport http.RoundTripper
}

func NewScraper(log *zap.Logger, transport http.RoundTripper) *Scraper {
	return &Scraper{log, transport}
}

// Fetch routes a bookmark to the handler for its content kind.
func (s *Scraper) Fetch(ctx context.Context, bm *models.Bookmark) (*Content, error) {
	switch bm.ContentKind {
	case models.ContentURL:
		return s.fetchPage(ctx, bm.URL)
	case models.ContentText:
		return s.processText(bm.RawContent), nil
	case models.ContentImage, models.ContentVideo, models.ContentPDF:
		return s.fetchResource(ctx, bm.ContentKind, bm.URL)
	default:
		return nil, fmt.Errorf("unsupported content kind: %s", bm.ContentKind)
	}
}

func (s *Scraper) fetchPage(ctx context.Context, url string) (*Content, error) {
	var raw string
	err := requests.URL(url).
		Transport(s.transport).
		ToString(&raw).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := htmlquery.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}

	text := SelectText(doc, "//body")
	if text == "" {
		text = compactWhitespace(raw)
	}
	title := SelectText(doc, "/html/head/title")

	meta := models.JSONMap{
		"url":        url,
		"title":      title,
		"scraped_at": time.Now().UTC().Format(time.RFC3339),
	}
	if og := SelectMeta(doc, "//meta[@property = 'og:title']"); og != "" {
		meta["og_title"] = og
	}
	if og := SelectMeta(doc, "//meta[@property = 'og:description']"); og != "" {
		meta["og_description"] = og
	}

	return &Content{
		Text:     text,
		Hash:     models.DigestContent(text),
		Title:    title,
		Metadata: meta,
	}, nil
}

func (s *Scraper) processText(raw string) *Content {
	return &Content{
		Text:  raw,
		Hash:  models.DigestContent(raw),
		Title: "",
		Metadata: models.JSONMap{
			"length":     len(raw),
			"word_count": len(strings.Fields(raw)),
		},
	}
}

// fetchResource downloads binary content (image/video/pdf) and summarizes it.
// Text extraction from binary formats is not attempted; the hash covers the
// fetched bytes so any byte-level change is still detected.
func (s *Scraper) fetchResource(ctx context.Context, kind models.ContentKind, url string) (*Content, error) {
	var buf bytes.Buffer
	headers := http.Header{}
	err := requests.URL(url).
		Transport(s.transport).
		CopyHeaders(headers).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}

	data := buf.Bytes()
	contentType := headers.Get("Content-Type")
	text := fmt.Sprintf("%s: %s (%d bytes, %s)", strings.ToUpper(string(kind)), url, len(data), contentType)

	return &Content{
		Text: text,
		Hash: models.DigestBytes(data),
		Metadata: models.JSONMap{
			"url":          url,
			"size_bytes":   len(data),
			"content_type": contentType,
		},
	}, nil
}
