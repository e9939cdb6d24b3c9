package v1

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/warintorn/shoptalk/bot/fallback"
	"github.com/warintorn/shoptalk/bot/metrics"
	"github.com/warintorn/shoptalk/bot/routing"
	"github.com/warintorn/shoptalk/internal/profile"
	"github.com/warintorn/shoptalk/store"
)

// Off-hours window for annotated replies, local business time.
const (
	offHoursTimezone  = "Asia/Bangkok"
	businessOpenHour  = 9
	businessCloseHour = 21
)

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store

	Pipeline   *routing.Pipeline
	Dispatcher *fallback.Dispatcher
	Metrics    *metrics.Exporter

	clock routing.Clock
}

func NewAPIV1Service(ctx context.Context, profile *profile.Profile, store *store.Store) (*APIV1Service, error) {
	clock := routing.SystemClock{}

	annotators, err := buildOffHoursAnnotators(ctx, store, clock)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load off-hours notes")
	}

	pipeline := routing.NewPipeline(
		routing.WithClock(clock),
		routing.WithOffHoursAnnotators(annotators),
	)

	backends := buildBackends(profile)
	dispatcher := fallback.NewDispatcher(backends, fallback.WithClock(clock))

	return &APIV1Service{
		Profile:    profile,
		Store:      store,
		Pipeline:   pipeline,
		Dispatcher: dispatcher,
		Metrics:    metrics.NewExporter(metrics.DefaultConfig()),
		clock:      clock,
	}, nil
}

// buildBackends assembles the generative backend chain from the profile:
// the primary backend first, then the optional secondary tried once when
// the primary fails.
func buildBackends(p *profile.Profile) []fallback.Backend {
	var backends []fallback.Backend

	if p.IsGenerativeEnabled() {
		primary, err := fallback.NewOpenAIBackend(fallback.OpenAIConfig{
			Provider: p.LLMProvider,
			Model:    p.LLMModel,
			APIKey:   p.LLMAPIKey,
			BaseURL:  p.LLMBaseURL,
			Timeout:  p.LLMTimeout,
		})
		if err != nil {
			slog.Warn("failed to initialize primary backend", "provider", p.LLMProvider, "error", err)
		} else {
			backends = append(backends, primary)
			slog.Info("generative backend initialized", "provider", p.LLMProvider, "model", p.LLMModel)
		}
	}

	if p.LLMFallbackAPIKey != "" && p.LLMFallbackProvider != "" {
		secondary, err := fallback.NewOpenAIBackend(fallback.OpenAIConfig{
			Provider: p.LLMFallbackProvider,
			Model:    p.LLMFallbackModel,
			APIKey:   p.LLMFallbackAPIKey,
			BaseURL:  p.LLMFallbackBaseURL,
			Timeout:  p.LLMTimeout,
		})
		if err != nil {
			slog.Warn("failed to initialize secondary backend", "provider", p.LLMFallbackProvider, "error", err)
		} else {
			backends = append(backends, secondary)
		}
	}

	return backends
}

// buildOffHoursAnnotators turns each configured off-hours note into an
// annotator that appends the note outside the business window.
func buildOffHoursAnnotators(ctx context.Context, s *store.Store, clock routing.Clock) (map[string]routing.OffHoursAnnotator, error) {
	notes, err := s.ListOffHoursNotes(ctx)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(offHoursTimezone)
	if err != nil {
		loc = time.UTC
	}

	annotators := make(map[string]routing.OffHoursAnnotator, len(notes))
	for businessID, note := range notes {
		note := note
		annotators[businessID] = func(content string) string {
			hour := clock.Now().In(loc).Hour()
			if hour >= businessOpenHour && hour < businessCloseHour {
				return content
			}
			return content + "\n\n" + note
		}
	}
	return annotators, nil
}

func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	chatGroup := e.Group("/api/v1/chat")
	chatGroup.POST("/route", s.RouteChat)
	chatGroup.POST("/stream", s.StreamChat)

	e.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
}
