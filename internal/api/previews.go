package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/previewflow/internal/preview"
	"go.opentelemetry.io/otel/attribute"
)

const (
	HeaderPreviewTrace  = "X-Preview-Trace"
	HeaderPreviewWidth  = "X-Preview-Width"
	HeaderPreviewHeight = "X-Preview-Height"
)

// handleRenderPreview renders the request body synchronously with the service
// preview configuration and answers with the JPEG.
func (s *Server) handleRenderPreview(w http.ResponseWriter, r *http.Request) {
	if s.previews == nil {
		writeError(w, http.StatusServiceUnavailable, "preview rendering is unavailable")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "source image is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	query := r.URL.Query()
	identifier := strings.TrimSpace(query.Get("identifier"))
	verbose, _ := strconv.ParseBool(query.Get("verbose"))

	var trace *bytes.Buffer
	if verbose {
		trace = &bytes.Buffer{}
	}

	ctx, span := s.tracer.Start(r.Context(), "preview.render")
	started := time.Now()
	res, err := s.previews.Render(ctx, s.previewCfg, body, identifier, traceWriter(trace))
	s.metrics.observeRender(res, time.Since(started), err)
	if err != nil {
		span.RecordError(err)
		span.End()
		status, msg := previewErrorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error().Err(err).Int("bytes", len(body)).Msg("preview render failed")
		}
		writeError(w, status, msg)
		return
	}
	span.SetAttributes(
		attribute.Int("preview.width", res.Width),
		attribute.Int("preview.height", res.Height),
		attribute.Int("preview.source_width", res.SourceWidth),
		attribute.Int("preview.source_height", res.SourceHeight),
	)
	span.End()

	if trace != nil {
		w.Header().Set(HeaderPreviewTrace, traceHeader(trace.String()))
	}
	if name := strings.TrimSpace(query.Get("name")); name != "" {
		w.Header().Set("Content-Disposition", `inline; filename="`+preview.FilteredName(path.Base(name))+`"`)
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set(HeaderPreviewWidth, strconv.Itoa(res.Width))
	w.Header().Set(HeaderPreviewHeight, strconv.Itoa(res.Height))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func traceWriter(buf *bytes.Buffer) io.Writer {
	if buf == nil {
		return nil
	}
	return buf
}

func traceHeader(trace string) string {
	lines := strings.Split(strings.TrimRight(trace, "\n"), "\n")
	return strings.Join(lines, "; ")
}

func previewErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, preview.ErrDecode):
		return http.StatusUnprocessableEntity, "source is not a decodable image"
	case errors.Is(err, preview.ErrConfig):
		return http.StatusUnprocessableEntity, "image cannot be sized with the current preview settings"
	case errors.Is(err, preview.ErrScale):
		return http.StatusUnprocessableEntity, "image is too large to preview"
	default:
		return http.StatusInternalServerError, "failed to render preview"
	}
}
