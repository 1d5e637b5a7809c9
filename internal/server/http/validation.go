package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"storybook/internal/executor"
	"storybook/internal/server/app"
)

// runScriptRequest is the job request body. The story/pages/path names are
// accepted as aliases of prompt/pageCount/outputPath.
type runScriptRequest struct {
	Prompt     string    `json:"prompt"`
	PageCount  pageCount `json:"pageCount"`
	OutputPath string    `json:"outputPath"`

	Story string    `json:"story"`
	Pages pageCount `json:"pages"`
	Path  string    `json:"path"`
}

func (r runScriptRequest) job() executor.Job {
	job := executor.Job{Prompt: r.Prompt, PageCount: r.PageCount.n, OutputPath: r.OutputPath}
	if strings.TrimSpace(job.Prompt) == "" {
		job.Prompt = r.Story
	}
	if !r.PageCount.set {
		job.PageCount = r.Pages.n
	}
	if job.OutputPath == "" {
		job.OutputPath = r.Path
	}
	return job
}

// pageCount accepts a JSON number or a numeric string, as page selectors
// commonly submit the option value as text.
type pageCount struct {
	n   int
	set bool
}

func (p *pageCount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var text string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	} else {
		text = string(data)
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return fmt.Errorf("page count %s is not an integer", data)
	}
	p.n, p.set = n, true
	return nil
}

// decodeJob parses a job request body.
func decodeJob(data []byte) (executor.Job, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return executor.Job{}, app.ValidationError("request body is empty")
	}
	var req runScriptRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return executor.Job{}, fmt.Errorf("%w: %v", app.ErrValidation, err)
	}
	return req.job(), nil
}

// readJob reads at most limit bytes from an HTTP request body.
func readJob(w http.ResponseWriter, r *http.Request, limit int64) (executor.Job, error) {
	body := r.Body
	if limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return executor.Job{}, err
		}
		return executor.Job{}, fmt.Errorf("read request body: %w", err)
	}
	return decodeJob(data)
}
