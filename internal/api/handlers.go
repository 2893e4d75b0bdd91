package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/siteintel/analyzer/internal/analysis"
	"github.com/siteintel/analyzer/internal/metrics"
	"github.com/siteintel/analyzer/internal/runner"
)

type analyzeRequest struct {
	URL          string   `json:"url"`
	Modules      []string `json:"modules,omitempty"`
	ContentType  string   `json:"content_type,omitempty"`
	Platforms    []string `json:"platforms,omitempty"`
	CampaignType string   `json:"campaign_type,omitempty"`
	CompanyName  string   `json:"company_name,omitempty"`
	Humorous     bool     `json:"humorous,omitempty"`
}

type jobSummary struct {
	JobID     string    `json:"job_id"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Submitted time.Time `json:"submitted_at"`
}

type moduleResponse struct {
	Success   bool      `json:"success"`
	Type      string    `json:"type"`
	URL       string    `json:"url"`
	Analysis  string    `json:"analysis,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// normalizeURL accepts bare domains and prepends https. The host must
// contain a dot so obvious garbage is rejected before a job is created.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" || !strings.Contains(u.Host, ".") {
		return "", errors.New("url must include a valid host")
	}
	return u.String(), nil
}

func paramsFromRequest(req analyzeRequest) analysis.ModuleParams {
	return analysis.ModuleParams{
		ContentType:  req.ContentType,
		Platforms:    req.Platforms,
		CampaignType: req.CampaignType,
		CompanyName:  req.CompanyName,
		Humorous:     req.Humorous,
	}
}

func (s *Server) submitCompleteAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	target, err := normalizeURL(req.URL)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	modules := analysis.AllModules()
	if len(req.Modules) > 0 {
		modules = modules[:0]
		seen := make(map[analysis.Module]bool)
		for _, name := range req.Modules {
			m, err := analysis.ParseModule(name)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			if !seen[m] {
				seen[m] = true
				modules = append(modules, m)
			}
		}
	}

	jobID, err := s.enqueueJob(r.Context(), target, modules, paramsFromRequest(req))
	if err != nil {
		s.logger.Error("enqueue job failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "could not accept job")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(analysis.JobStatusQueued),
	})
}

// enqueueJob creates the job record first so a poll immediately after
// submission finds it, then hands the item to the dispatcher.
func (s *Server) enqueueJob(ctx context.Context, target string, modules []analysis.Module, params analysis.ModuleParams) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := analysis.Job{
		ID:        jobID,
		URL:       target,
		Modules:   modules,
		Params:    params,
		Status:    analysis.JobStatusQueued,
		Submitted: now,
	}
	if err := s.jobStore.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	enqueueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := analysis.QueueItem{
		JobID:     jobID,
		URL:       target,
		Modules:   modules,
		Params:    params,
		Submitted: now.Unix(),
	}
	if err := s.dispatcher.Enqueue(enqueueCtx, item); err != nil {
		_ = s.jobStore.UpdateJob(ctx, jobID, func(j *analysis.Job) {
			j.Status = analysis.JobStatusFailed
			j.ErrorText = "queue full, job rejected"
		})
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, analysis.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	ids, err := s.jobStore.ListJobIDs(r.Context())
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	summaries := make([]jobSummary, 0, len(ids))
	for _, id := range ids {
		job, err := s.jobStore.GetJob(r.Context(), id)
		if err != nil {
			continue
		}
		summaries = append(summaries, jobSummary{
			JobID:     job.ID,
			URL:       job.URL,
			Status:    string(job.Status),
			Progress:  job.Progress,
			Submitted: job.Submitted,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  summaries,
		"count": len(summaries),
	})
}

// analyzeModule runs a single module synchronously. Results are cached
// per module, URL, and parameter set.
func (s *Server) analyzeModule(w http.ResponseWriter, r *http.Request) {
	module, err := analysis.ParseModule(chi.URLParam(r, "module"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	target, err := normalizeURL(req.URL)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params := paramsFromRequest(req)

	cacheKey := ""
	if s.cache != nil {
		key, keyErr := s.cache.Key(module, target, params)
		if keyErr == nil {
			cacheKey = key
			if cached, ok := s.cache.Get(key); ok {
				metrics.ObserveCacheLookup(true)
				s.writeJSON(w, http.StatusOK, moduleResponse{
					Success:   true,
					Type:      string(module),
					URL:       target,
					Analysis:  cached.Output,
					Provider:  cached.Provider,
					Timestamp: s.clock.Now(),
					Message:   "served from cache",
				})
				return
			}
			metrics.ObserveCacheLookup(false)
		}
	}

	page, err := s.fetcher.Fetch(r.Context(), target)
	if err != nil {
		s.logger.Warn("sync fetch failed", zap.String("url", target), zap.Error(err))
		s.writeJSON(w, http.StatusBadGateway, moduleResponse{
			Success:   false,
			Type:      string(module),
			URL:       target,
			Timestamp: s.clock.Now(),
			Error:     fmt.Sprintf("fetch failed: %v", err),
		})
		return
	}

	task := s.runner.Run(r.Context(), module, page, params)
	result := s.arbiter.Select(r.Context(), module, task.Candidates)
	metrics.ObserveModuleTask(string(module), string(task.Status))
	if result.Failed {
		s.writeJSON(w, http.StatusBadGateway, moduleResponse{
			Success:   false,
			Type:      string(module),
			URL:       target,
			Timestamp: s.clock.Now(),
			Error:     result.Error,
		})
		return
	}

	if s.cache != nil && cacheKey != "" {
		s.cache.Put(cacheKey, result)
	}
	s.writeJSON(w, http.StatusOK, moduleResponse{
		Success:   true,
		Type:      string(module),
		URL:       target,
		Analysis:  result.Output,
		Provider:  result.Provider,
		Timestamp: s.clock.Now(),
	})
}

const maxCompetitors = 5

type competitorsRequest struct {
	URL            string   `json:"url"`
	CompetitorURLs []string `json:"competitor_urls"`
}

type competitorsResponse struct {
	Success        bool      `json:"success"`
	Type           string    `json:"type"`
	URL            string    `json:"url"`
	CompetitorURLs []string  `json:"competitor_urls"`
	Analysis       string    `json:"analysis,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Error          string    `json:"error,omitempty"`
}

// analyzeCompetitors compares the target site against competitor sites
// synchronously. An unreachable site does not fail the request; its
// prompt section notes the limitation instead.
func (s *Server) analyzeCompetitors(w http.ResponseWriter, r *http.Request) {
	var req competitorsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	target, err := normalizeURL(req.URL)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.CompetitorURLs) == 0 {
		s.writeError(w, http.StatusBadRequest, "competitor_urls is required")
		return
	}
	if len(req.CompetitorURLs) > maxCompetitors {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d competitor_urls allowed", maxCompetitors))
		return
	}
	competitorTargets := make([]string, 0, len(req.CompetitorURLs))
	for _, raw := range req.CompetitorURLs {
		u, err := normalizeURL(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("competitor url %q: %v", raw, err))
			return
		}
		competitorTargets = append(competitorTargets, u)
	}

	main := s.fetchCompetitorSite(r.Context(), target)
	competitors := make([]runner.CompetitorSite, 0, len(competitorTargets))
	for _, u := range competitorTargets {
		competitors = append(competitors, s.fetchCompetitorSite(r.Context(), u))
	}

	prompt := runner.BuildCompetitorPrompt(main, competitors)
	task := s.runner.RunPrompt(r.Context(), analysis.ModuleCompetitors, prompt)
	result := s.arbiter.Select(r.Context(), analysis.ModuleCompetitors, task.Candidates)
	metrics.ObserveModuleTask(string(analysis.ModuleCompetitors), string(task.Status))
	if result.Failed {
		s.writeJSON(w, http.StatusBadGateway, competitorsResponse{
			Success:        false,
			Type:           string(analysis.ModuleCompetitors),
			URL:            target,
			CompetitorURLs: competitorTargets,
			Timestamp:      s.clock.Now(),
			Error:          result.Error,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, competitorsResponse{
		Success:        true,
		Type:           string(analysis.ModuleCompetitors),
		URL:            target,
		CompetitorURLs: competitorTargets,
		Analysis:       result.Output,
		Provider:       result.Provider,
		Timestamp:      s.clock.Now(),
	})
}

func (s *Server) fetchCompetitorSite(ctx context.Context, url string) runner.CompetitorSite {
	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		s.logger.Warn("competitor fetch failed", zap.String("url", url), zap.Error(err))
		return runner.CompetitorSite{URL: url}
	}
	return runner.CompetitorSite{
		URL:        url,
		Title:      page.Title,
		Text:       page.Text,
		Accessible: true,
	}
}

// websiteInfo fetches the page and returns the extracted content
// without invoking any model.
func (s *Server) websiteInfo(w http.ResponseWriter, r *http.Request) {
	target, err := normalizeURL(r.URL.Query().Get("url"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.fetcher.Fetch(r.Context(), target)
	if err != nil {
		s.logger.Warn("website info fetch failed", zap.String("url", target), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("fetch failed: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"url":              page.URL,
		"domain":           page.Domain,
		"status_code":      page.StatusCode,
		"title":            page.Title,
		"meta_description": page.MetaDescription,
		"keywords":         page.Keywords,
		"text_length":      len(page.Text),
		"link_count":       len(page.Links),
		"image_count":      len(page.Images),
		"rendered":         page.Rendered,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
