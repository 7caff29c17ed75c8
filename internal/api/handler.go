// Package api exposes the judge's pipelines over HTTP: POST /run for a
// single program, POST /interactive for a coupled solution/interactor
// pair, plus /languages, /system and /test introspection endpoints
// mirroring camisole's own.
package api

import (
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/akshayaggarwal99/judge/internal/lang"
	"github.com/akshayaggarwal99/judge/internal/metrics"
	"github.com/akshayaggarwal99/judge/internal/pipeline"
	"github.com/akshayaggarwal99/judge/internal/sandbox"
	"github.com/akshayaggarwal99/judge/internal/wire"
)

// uname reports the kernel facts camisole's system handler includes; it
// is stubbed on non-Linux build targets.
var uname = unameLinux

// Handler wires the HTTP surface to the registry and pipelines.
type Handler struct {
	registry    *lang.Registry
	pipeline    *pipeline.Pipeline
	interactive *pipeline.InteractivePipeline
	apiKey      string
}

// NewHandler builds a Handler over a registry, the single-program and
// interactive pipelines, and an optional API key.
func NewHandler(registry *lang.Registry, p *pipeline.Pipeline, ip *pipeline.InteractivePipeline, apiKey string) *Handler {
	return &Handler{registry: registry, pipeline: p, interactive: ip, apiKey: apiKey}
}

// RegisterRoutes mounts every endpoint on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("")
	if h.apiKey != "" {
		g.Use(h.authMiddleware)
	}

	g.GET("/", h.index)
	g.POST("/run", h.run)
	g.POST("/interactive", h.runInteractive)
	g.GET("/languages", h.languages)
	g.GET("/system", h.system)
	g.GET("/test", h.test)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (h *Handler) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get("X-Judge-Api-Key")
		if key == "" {
			key = c.QueryParam("api_key")
		}
		if key != h.apiKey {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
		}
		return next(c)
	}
}

func (h *Handler) index(c echo.Context) error {
	return c.String(http.StatusOK, "judge is up. POST source and tests to /run or /interactive.\n")
}

func (h *Handler) readBody(c echo.Context, v any) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	return decodeBody(c.Request().Header.Get(echo.HeaderContentType), body, v)
}

// run handles POST /run: compile (if applicable) and execute one program
// against its test list.
func (h *Handler) run(c echo.Context) error {
	var req wire.SingleRun
	if err := h.readBody(c, &req); err != nil {
		metrics.RequestsTotal.WithLabelValues("run", "bad_request").Inc()
		return writeNegotiated(c, http.StatusBadRequest, wire.ErrorResult(fmt.Sprintf("malformed payload: %v", err)))
	}

	desc, err := h.registry.Lookup(req.Lang)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("run", "unknown_language").Inc()
		return writeNegotiated(c, http.StatusOK, wire.ErrorResult(fmt.Sprintf("incorrect language %s", req.Lang)))
	}

	result, err := h.pipeline.Run(c.Request().Context(), lang.NewInstance(desc), req.ToOptionBag())
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("run", "internal_error").Inc()
		log.Error().Err(err).Str("lang", req.Lang).Msg("run failed")
		return writeNegotiated(c, http.StatusInternalServerError, wire.ErrorResult(err.Error()))
	}

	metrics.RequestsTotal.WithLabelValues("run", "ok").Inc()
	countShortCircuits(result.Tests)
	return writeNegotiated(c, http.StatusOK, wire.FromPipelineResult(result))
}

// runInteractive handles POST /interactive: compile a program and an
// interactor independently, then couple them test by test.
func (h *Handler) runInteractive(c echo.Context) error {
	var req wire.Interactive
	if err := h.readBody(c, &req); err != nil {
		metrics.RequestsTotal.WithLabelValues("interactive", "bad_request").Inc()
		return writeNegotiated(c, http.StatusBadRequest, wire.ErrorResult(fmt.Sprintf("malformed payload: %v", err)))
	}

	progDesc, err := h.registry.Lookup(req.Prog.Lang)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("interactive", "unknown_language").Inc()
		return writeNegotiated(c, http.StatusOK, wire.ErrorResult(fmt.Sprintf("incorrect program language %s", req.Prog.Lang)))
	}
	interDesc, err := h.registry.Lookup(req.Interact.Lang)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("interactive", "unknown_language").Inc()
		return writeNegotiated(c, http.StatusOK, wire.ErrorResult(fmt.Sprintf("incorrect interactor language %s", req.Interact.Lang)))
	}

	result, err := h.interactive.Run(c.Request().Context(),
		lang.NewInstance(progDesc), lang.NewInstance(interDesc),
		req.Prog.ToOptionBag(), req.Interact.ToOptionBag())
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("interactive", "internal_error").Inc()
		log.Error().Err(err).Msg("interactive run failed")
		return writeNegotiated(c, http.StatusInternalServerError, wire.ErrorResult(err.Error()))
	}

	metrics.RequestsTotal.WithLabelValues("interactive", "ok").Inc()
	countShortCircuits(result.Prog.Tests)
	countShortCircuits(result.Interact.Tests)
	return writeNegotiated(c, http.StatusOK, wire.FromPipelineInteractiveResult(result))
}

func countShortCircuits(tests []pipeline.TestResult) {
	for _, t := range tests {
		if t.Meta.Status == sandbox.StatusShortCircuit {
			metrics.TestsShortCircuited.Inc()
		}
	}
}

type languageInfo struct {
	Name     string   `json:"name"`
	Eligible bool     `json:"eligible"`
	Programs []string `json:"programs"`
}

// languages reports every registered language descriptor and whether its
// required programs resolved on this host.
func (h *Handler) languages(c echo.Context) error {
	out := make(map[string]languageInfo)
	for key, d := range h.registry.All() {
		var programs []string
		if d.Compiler != nil {
			programs = append(programs, d.Compiler.Path)
		}
		if d.Interpreter != nil {
			programs = append(programs, d.Interpreter.Path)
		}
		out[key] = languageInfo{Name: d.Name, Eligible: d.Eligible(), Programs: programs}
	}
	return writeNegotiated(c, http.StatusOK, map[string]any{"success": true, "languages": out})
}

// system reports basic host facts, the Go analogue of camisole's
// platform/uname dump.
func (h *Handler) system(c echo.Context) error {
	info := map[string]any{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}
	if sysname, release, machine, err := uname(); err != nil {
		log.Warn().Err(err).Msg("uname probe failed")
	} else {
		info["kernel"] = sysname
		info["kernel_release"] = release
		info["machine"] = machine
	}
	return writeNegotiated(c, http.StatusOK, map[string]any{"success": true, "system": info})
}

// test runs each eligible language's reference source (if declared) as a
// cheap end-to-end smoke check, skipping any language named in the
// "exclude" query parameter (repeated or comma-separated).
func (h *Handler) test(c echo.Context) error {
	exclude := make(map[string]bool)
	for _, v := range c.QueryParams()["exclude"] {
		for _, name := range strings.Split(v, ",") {
			exclude[strings.TrimSpace(name)] = true
		}
	}

	results := make(map[string]any)
	for key, d := range h.registry.Eligible() {
		if exclude[key] {
			continue
		}
		if d.ReferenceSource == "" {
			results[key] = map[string]any{"success": true, "raw": "no reference source declared"}
			continue
		}
		result, err := h.pipeline.Run(c.Request().Context(), lang.NewInstance(d), pipeline.OptionBag{
			Source: []byte(d.ReferenceSource),
			Tests:  []pipeline.TestSpec{{}},
		})
		if err != nil {
			results[key] = map[string]any{"success": false, "raw": err.Error()}
			continue
		}
		ok := result.Compile == nil || result.Compile.Status == sandbox.StatusOK
		for _, t := range result.Tests {
			ok = ok && t.Meta.Status == sandbox.StatusOK
		}
		results[key] = map[string]any{"success": ok, "raw": wire.FromPipelineResult(result)}
	}
	return writeNegotiated(c, http.StatusOK, map[string]any{"success": true, "results": results})
}
