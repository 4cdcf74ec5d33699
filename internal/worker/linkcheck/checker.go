// Package linkcheck はスキームリンクの死活確認ワーカーを提供する。
// カタログとポータルのリンクを定期的に取得し、SSRF対策済みのクライアントで
// 並列数を制限しながら確認する。
package linkcheck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result はHTTPステータスコードに基づくリンク確認結果の分類。
type Result int

const (
	// ResultOK はリンクが到達可能（2xx/3xx）。
	ResultOK Result = iota
	// ResultBroken はリンク切れ（404/410/5xx、接続失敗、SSRF拒否）。
	ResultBroken
	// ResultInconclusive はボット拒否やレート制限で判定できない（401/403/405/429）。
	ResultInconclusive
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultBroken:
		return "broken"
	default:
		return "inconclusive"
	}
}

// maxDrainBytes はコネクション再利用のために読み捨てるボディの上限。
const maxDrainBytes = 4 << 10

// ClassifyHTTPStatus はHTTPステータスコードをリンク確認結果に分類する。
func ClassifyHTTPStatus(statusCode int) Result {
	switch {
	case statusCode >= 200 && statusCode < 400:
		return ResultOK
	case statusCode == 401 || statusCode == 403 || statusCode == 405 || statusCode == 429:
		return ResultInconclusive
	default:
		return ResultBroken
	}
}

// URLValidator はリンクURLの事前検証インターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// LinkRecorder はリンク確認結果の記録先インターフェース。
type LinkRecorder interface {
	RecordLinkCheck(ok bool)
}

// Finding は1件のリンク確認結果。
type Finding struct {
	Link       Link
	Result     Result
	StatusCode int
	Err        error
}

// Report は1サイクル分の確認結果の集計。
type Report struct {
	Checked      int
	OK           int
	Inconclusive int
	Broken       []Finding
}

// Checker はリンクの死活確認を行う。
type Checker struct {
	client         *http.Client
	validator      URLValidator
	recorder       LinkRecorder
	logger         *slog.Logger
	maxConcurrency int
}

// NewChecker はCheckerの新しいインスタンスを生成する。
// clientにはSSRF対策済みのクライアントを渡す。maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewChecker(
	client *http.Client,
	validator URLValidator,
	recorder LinkRecorder,
	logger *slog.Logger,
	maxConcurrency int,
) *Checker {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Checker{
		client:         client,
		validator:      validator,
		recorder:       recorder,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Check は1件のリンクを確認する。HEADが許可されない場合はGETで再確認する。
func (c *Checker) Check(ctx context.Context, link Link) Finding {
	f := Finding{Link: link}

	if err := c.validator.ValidateURL(link.URL); err != nil {
		f.Result = ResultBroken
		f.Err = fmt.Errorf("blocked by SSRF guard: %w", err)
		return f
	}

	status, err := c.probe(ctx, http.MethodHead, link.URL)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		status, err = c.probe(ctx, http.MethodGet, link.URL)
	}
	if err != nil {
		f.Result = ResultBroken
		f.Err = err
		return f
	}

	f.StatusCode = status
	f.Result = ClassifyHTTPStatus(status)
	return f
}

func (c *Checker) probe(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "schemebot-linkcheck/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	return resp.StatusCode, nil
}

// RunOnce は全Sourceからリンクを集め、重複URLを除いて並列に確認する。
// 一部のSourceが失敗しても残りのリンクは確認する。
func (c *Checker) RunOnce(ctx context.Context, sources ...Source) (*Report, error) {
	start := time.Now()

	var links []Link
	seen := make(map[string]bool)
	for _, src := range sources {
		ls, err := src.Links(ctx)
		if err != nil {
			c.logger.Error("failed to collect links", slog.String("error", err.Error()))
			continue
		}
		for _, l := range ls {
			if seen[l.URL] {
				continue
			}
			seen[l.URL] = true
			links = append(links, l)
		}
	}

	findings := make([]Finding, len(links))

	var g errgroup.Group
	g.SetLimit(c.maxConcurrency)
	for i, link := range links {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			findings[i] = c.Check(ctx, link)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Checked: len(findings)}
	for _, f := range findings {
		switch f.Result {
		case ResultOK:
			report.OK++
			c.recorder.RecordLinkCheck(true)
		case ResultBroken:
			report.Broken = append(report.Broken, f)
			c.recorder.RecordLinkCheck(false)
			attrs := []any{
				slog.String("source", f.Link.Source),
				slog.String("scheme", f.Link.Name),
				slog.String("url", f.Link.URL),
				slog.Int("status_code", f.StatusCode),
			}
			if f.Err != nil {
				attrs = append(attrs, slog.String("error", f.Err.Error()))
			}
			c.logger.Warn("broken scheme link", attrs...)
		case ResultInconclusive:
			report.Inconclusive++
			c.logger.Debug("link check inconclusive",
				slog.String("url", f.Link.URL),
				slog.Int("status_code", f.StatusCode),
			)
		}
	}

	c.logger.Info("link check cycle completed",
		slog.Int("checked", report.Checked),
		slog.Int("ok", report.OK),
		slog.Int("broken", len(report.Broken)),
		slog.Int("inconclusive", report.Inconclusive),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return report, nil
}
