package httpapi

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"talion/internal/manager"
	"talion/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Generate(ctx context.Context, req types.GenerateRequest) (manager.Result, error)
	Status() types.StatusResponse
	Ready() bool
	// Warm starts a background load if the model is not loaded yet.
	Warm()
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				w.Header().Set(middleware.RequestIDHeader, rid)
			}
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: []string{middleware.RequestIDHeader, "X-Generation-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/", indexHandler(svc))
	r.Get("/health", healthHandler)
	r.Post("/generate/", generateHandler(svc))
	r.Post("/generate", generateHandler(svc))

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if swaggerEnabled {
		mountSwagger(r)
	}
	return r
}

// healthHandler reports liveness. It does not depend on model state.
//
// @Summary      Health check
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.HealthResponse
// @Router       /health [get]
func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, types.HealthResponse{Status: "ok"})
}

// generateHandler runs one generation.
//
// @Summary      Generate text
// @Description  Continues the prompt up to max_length total tokens. The output echoes the prompt.
// @Description  Inputs come from query parameters or a JSON body; body fields win.
// @Tags         generate
// @Accept       json
// @Produce      json
// @Param        prompt      query     string                 false  "Prompt text (required here or in the body)"
// @Param        max_length  query     int                    false  "Total length bound in tokens"  default(100)
// @Param        request     body      types.GenerateRequest  false  "Generation request"
// @Success      200         {object}  types.GenerateResponse
// @Failure      422         {object}  types.ErrorResponse
// @Failure      429         {object}  types.ErrorResponse
// @Failure      500         {object}  types.ErrorResponse
// @Failure      503         {object}  types.ErrorResponse
// @Failure      504         {object}  types.ErrorResponse
// @Router       /generate/ [post]
func generateHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeGenerateRequest(w, r)
		if err != nil {
			writeJSONError(w, statusForError(err), err.Error())
			return
		}
		lvl := requestLogLevel(r)
		l := requestLog(r)
		switch {
		case lvl >= LevelDebug:
			l.Debug().Int("max_length", req.MaxLength).Str("prompt", req.Prompt).Msg("generate start")
		case lvl >= LevelInfo:
			l.Info().Int("max_length", req.MaxLength).Int("prompt_bytes", len(req.Prompt)).Msg("generate start")
		}

		// Shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		start := time.Now()
		res, err := svc.Generate(ctx, req)
		if res.ID != "" {
			w.Header().Set("X-Generation-Id", res.ID)
			l = l.With().Str("generation_id", res.ID).Logger()
		}
		if err != nil {
			// Client went away; nobody to answer.
			if r.Context().Err() != nil {
				return
			}
			status := statusForError(err)
			msg := err.Error()
			if serverBaseCtx.Err() != nil && errors.Is(err, context.Canceled) {
				status, msg = http.StatusServiceUnavailable, "server shutting down"
			}
			if status == http.StatusTooManyRequests {
				IncrementBackpressure(manager.TooBusyReason(err))
			}
			writeJSONError(w, status, msg)
			if ev := endEvent(&l, lvl, status); ev != nil {
				ev.Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("generate end")
			}
			return
		}
		writeJSON(w, types.GenerateResponse{GeneratedText: res.Text})
		if ev := endEvent(&l, lvl, http.StatusOK); ev != nil {
			ev = ev.Int("status", http.StatusOK).Dur("dur", time.Since(start)).
				Int("prompt_tokens", res.PromptTokens).Int("completion_tokens", res.CompletionTokens).
				Str("finish_reason", res.FinishReason)
			if lvl >= LevelDebug {
				ev = ev.Str("generated_text", res.Text)
			}
			ev.Msg("generate end")
		}
	}
}

// generateBody mirrors types.GenerateRequest with pointers so absent fields
// can be told apart from zero values.
type generateBody struct {
	Prompt      *string  `json:"prompt"`
	MaxLength   *int     `json:"max_length"`
	Temperature *float64 `json:"temperature"`
	TopP        *float64 `json:"top_p"`
	TopK        *int     `json:"top_k"`
	Seed        *int64   `json:"seed"`
}

// decodeGenerateRequest reads prompt and max_length from the query string,
// then overlays a JSON body when the request declares one.
func decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (types.GenerateRequest, error) {
	req := types.GenerateRequest{MaxLength: int(defaultMaxLength.Load())}
	q := r.URL.Query()
	hasPrompt := q.Has("prompt")
	req.Prompt = q.Get("prompt")
	if q.Has("max_length") {
		n, err := strconv.Atoi(q.Get("max_length"))
		if err != nil {
			return req, validationError{"max_length must be an integer"}
		}
		req.MaxLength = n
	}

	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var body generateBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return req, validationError{"request body too large"}
			}
			return req, validationError{"invalid JSON body"}
		}
		if body.Prompt != nil {
			req.Prompt, hasPrompt = *body.Prompt, true
		}
		if body.MaxLength != nil {
			req.MaxLength = *body.MaxLength
		}
		if body.Temperature != nil {
			req.Temperature = *body.Temperature
		}
		if body.TopP != nil {
			req.TopP = *body.TopP
		}
		if body.TopK != nil {
			req.TopK = *body.TopK
		}
		if body.Seed != nil {
			req.Seed = *body.Seed
		}
	}
	if !hasPrompt {
		return req, validationError{"prompt is required"}
	}
	return req, nil
}
