package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pbaille/platelog/internal/domain"
	"github.com/pbaille/platelog/internal/stream"
)

// Image is one photo to upload
type Image struct {
	Name string
	Data []byte
}

// ImageFromFile reads a photo from disk
func ImageFromFile(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	return Image{Name: filepath.Base(path), Data: data}, nil
}

func (img Image) contentType() string {
	switch strings.ToLower(filepath.Ext(img.Name)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// AnalyzeOptions selects the recognition model and the LogMeal quantity path
type AnalyzeOptions struct {
	Model      string
	UseLogMeal bool
}

func (o AnalyzeOptions) query() url.Values {
	q := url.Values{}
	if o.Model != "" {
		q.Set("model", o.Model)
	}
	q.Set("use_logmeal", strconv.FormatBool(o.UseLogMeal))
	return q
}

func multipartBody(images []Image, opts AnalyzeOptions) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for i, img := range images {
		name := img.Name
		if name == "" {
			name = fmt.Sprintf("image-%d.jpg", i+1)
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
		h.Set("Content-Type", img.contentType())

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", fmt.Errorf("write image part: %w", err)
		}
	}

	if opts.Model != "" {
		if err := w.WriteField("model", opts.Model); err != nil {
			return nil, "", fmt.Errorf("write model field: %w", err)
		}
	}
	if opts.UseLogMeal {
		if err := w.WriteField("use_logmeal", "true"); err != nil {
			return nil, "", fmt.Errorf("write use_logmeal field: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) postImages(ctx context.Context, path string, images []Image, opts AnalyzeOptions, out any) error {
	if len(images) == 0 {
		return ErrNoImages
	}

	body, contentType, err := multipartBody(images, opts)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	return c.do(req, out)
}

// Upload sends the images for streamed analysis and returns the job id
func (c *Client) Upload(ctx context.Context, images []Image, opts AnalyzeOptions) (string, error) {
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := c.postImages(ctx, "/upload", images, opts, &resp); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("upload: response has no job_id")
	}
	return resp.JobID, nil
}

// OpenStream opens the phase event stream for a job. The caller owns the
// returned stream and must close it.
func (c *Client) OpenStream(ctx context.Context, jobID string, opts AnalyzeOptions) (*stream.Stream, error) {
	q := opts.query()
	q.Set("job_id", jobID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/analyze_sse", q), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, fmt.Errorf("open stream: %w", decodeAPIError(resp.StatusCode, body))
	}

	return stream.New(resp.Body), nil
}

// Analyze runs the non-streaming analysis and returns the full result
func (c *Client) Analyze(ctx context.Context, images []Image, opts AnalyzeOptions) (*domain.AnalysisResult, error) {
	var result domain.AnalysisResult
	if err := c.postImages(ctx, "/analyze", images, opts, &result); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	c.ResolveURLs(&result)
	return &result, nil
}

// AnalyzeText estimates nutrition from a free-text meal description
func (c *Client) AnalyzeText(ctx context.Context, hint string) (*domain.AnalysisResult, error) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return nil, ErrEmptyHint
	}

	var result domain.AnalysisResult
	if err := c.postJSON(ctx, "/analyze_text", map[string]string{"hint": hint}, &result); err != nil {
		return nil, fmt.Errorf("analyze text: %w", err)
	}
	c.ResolveURLs(&result)
	return &result, nil
}

// HealthScore scores a finished analysis
func (c *Client) HealthScore(ctx context.Context, in domain.HealthScoreInput) (*domain.HealthScoreOutput, error) {
	var resp struct {
		domain.HealthScoreOutput
		Score   *float64 `json:"health_score"`
		Error   string   `json:"error"`
		Message string   `json:"message"`
	}
	if err := c.postJSON(ctx, "/health-score", in, &resp); err != nil {
		return nil, fmt.Errorf("health score: %w", err)
	}

	// The scorer reports its own failures with a 200 and an error body
	if resp.Error != "" || resp.Score == nil {
		detail := resp.Message
		if detail == "" {
			detail = resp.Error
		}
		if detail == "" {
			detail = "no score in response"
		}
		return nil, fmt.Errorf("%w: %s", ErrScoreFailed, detail)
	}

	out := resp.HealthScoreOutput
	out.HealthScore = *resp.Score
	return &out, nil
}

// History lists recent server-side analyses
func (c *Client) History(ctx context.Context, limit int) ([]domain.HistoryItem, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Items []domain.HistoryItem `json:"items"`
	}
	if err := c.getJSON(ctx, "/history", q, &resp); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return resp.Items, nil
}

// Absolutize prefixes the API base onto relative backend URLs
func (c *Client) Absolutize(u string) string {
	if u == "" {
		return ""
	}
	if parsed, err := url.Parse(u); err == nil && parsed.IsAbs() {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return c.baseURL + u
}

// ResolveURLs absolutizes the image and overlay URLs of r in place
func (c *Client) ResolveURLs(r *domain.AnalysisResult) {
	if r == nil {
		return
	}
	if r.OverlayURL != nil {
		u := c.Absolutize(*r.OverlayURL)
		r.OverlayURL = &u
	}
	if r.ImageURL != nil {
		u := c.Absolutize(*r.ImageURL)
		r.ImageURL = &u
	}
}
