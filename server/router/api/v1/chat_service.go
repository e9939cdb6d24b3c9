package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/warintorn/shoptalk/bot/fallback"
	"github.com/warintorn/shoptalk/bot/routing"
	"github.com/warintorn/shoptalk/store"
)

// ChatRequest is the transport envelope for both chat endpoints.
type ChatRequest struct {
	BusinessID string            `json:"business_id"`
	Message    string            `json:"message"`
	History    []routing.Message `json:"history,omitempty"`
}

func (r *ChatRequest) validate() error {
	if strings.TrimSpace(r.BusinessID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "business_id is required")
	}
	if strings.TrimSpace(r.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	return nil
}

// RouteChat runs the cascade and returns the buffered result. When the
// cascade falls through to the terminal layer a generative backend is
// consulted before responding.
func (s *APIV1Service) RouteChat(c echo.Context) error {
	ctx := c.Request().Context()

	req := &ChatRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request").SetInternal(err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	cfg, err := s.Store.GetBusinessConfig(ctx, req.BusinessID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown business: %s", req.BusinessID))
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load business config").SetInternal(err)
	}

	start := s.clock.Now()
	res := s.Pipeline.Route(&routing.Request{
		CurrentMessage: req.Message,
		History:        req.History,
		Config:         cfg,
	})

	if res.Trace.FinalLayer == routing.LayerDefaultFallback && s.Dispatcher.Enabled() {
		prompt := fallback.BuildPrompt(cfg, req.History, req.Message)
		res = s.Dispatcher.Dispatch(ctx, prompt, res)
		s.observeFallback(res)
	}

	s.Metrics.ObserveRoute(res.Trace.FinalLayer, res.Trace.FinalLayerName, string(res.Trace.Mode), s.clock.Now().Sub(start))
	return c.JSON(http.StatusOK, res)
}

// StreamChat runs the cascade and streams the response as SSE events:
// the pipeline trace first, then content deltas, then a [DONE] sentinel.
func (s *APIV1Service) StreamChat(c echo.Context) error {
	ctx := c.Request().Context()

	req := &ChatRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request").SetInternal(err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	cfg, err := s.Store.GetBusinessConfig(ctx, req.BusinessID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown business: %s", req.BusinessID))
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load business config").SetInternal(err)
	}

	start := s.clock.Now()
	res := s.Pipeline.Route(&routing.Request{
		CurrentMessage: req.Message,
		History:        req.History,
		Config:         cfg,
	})

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if res.Trace.FinalLayer == routing.LayerDefaultFallback {
		prompt := fallback.BuildPrompt(cfg, req.History, req.Message)
		for ev := range s.Dispatcher.DispatchStream(ctx, prompt, res) {
			if err := writeSSE(w, ev); err != nil {
				return err
			}
		}
		s.observeFallback(res)
	} else {
		events := []fallback.Event{
			{Trace: res.Trace},
			{Content: res.Content},
			{Done: true},
		}
		for _, ev := range events {
			if err := writeSSE(w, ev); err != nil {
				return err
			}
		}
	}

	s.Metrics.ObserveRoute(res.Trace.FinalLayer, res.Trace.FinalLayerName, string(res.Trace.Mode), s.clock.Now().Sub(start))
	return nil
}

// writeSSE frames one event. The terminal sentinel is the literal
// [DONE] payload, matching the OpenAI stream convention.
func writeSSE(w *echo.Response, ev fallback.Event) error {
	if ev.Done {
		if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
			return err
		}
		w.Flush()
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func (s *APIV1Service) observeFallback(res *routing.Result) {
	switch res.Trace.Mode {
	case routing.ModeGenerative:
		s.Metrics.ObserveFallback(res.Trace.FinalLayerName, "ok")
	case routing.ModeGenerativeFailed:
		s.Metrics.ObserveFallback(fallback.FailedBackend(res.Trace), "error")
	}
}
