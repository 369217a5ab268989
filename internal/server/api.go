package server

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/onfert/analyst/internal/errors"
	"github.com/onfert/analyst/internal/live"
	"github.com/onfert/analyst/internal/models"
	"github.com/onfert/analyst/internal/report"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	xlsxFilename    = "relatorio-onfert.xlsx"

	genericMessage  = "Ocorreu um erro inesperado. Por favor, tente novamente."
	liveOffMessage  = "O Assistente ao Vivo está desativado."
	noImageMessage  = "Por favor, envie uma imagem da cultura ou do solo."
	badFieldMessage = "Por favor, corrija os dados do solo: o campo %s deve ser numérico."
)

// ReportResponse is the company report as shown in the UI.
type ReportResponse struct {
	Items []*models.SavedAnalysis `json:"items"`
	Rows  []report.Row            `json:"rows"`
}

// LiveResponse describes the live session.
type LiveResponse struct {
	State   live.State                  `json:"state"`
	Active  bool                        `json:"active"`
	Entries []models.TranscriptionEntry `json:"entries,omitempty"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

func statusFor(category errors.Category) int {
	switch category {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConnection, errors.CategoryResponseFormat:
		return http.StatusBadGateway
	case errors.CategoryDeviceUnavailable, errors.CategoryConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// userMessage hides uncategorized internals from the UI.
func userMessage(err error) string {
	if errors.GetCategory(err) == errors.CategoryGeneric {
		return genericMessage
	}
	return errors.UserMessage(err)
}

// fail logs and reports err, then writes the JSON error body.
func (s *Server) fail(c echo.Context, op string, err error) error {
	s.logger.Warn("request failed", slog.String("op", op), slog.Any("error", err))
	s.reporter.Capture("server", err)
	return respondError(c, err)
}

func respondError(c echo.Context, err error) error {
	category := errors.GetCategory(err)
	return c.JSON(statusFor(category), errorResponse{Error: userMessage(err), Category: string(category)})
}

func (s *Server) handleAnalyze(c echo.Context) error {
	soil, err := s.soilFromForm(c)
	if err != nil {
		return s.fail(c, "analyze", err)
	}

	image, err := s.readImage(c)
	if err != nil {
		return s.fail(c, "analyze", err)
	}

	a, err := s.analysis.Analyze(c.Request().Context(), soil, image)
	if err != nil {
		return s.fail(c, "analyze", err)
	}
	return c.JSON(http.StatusOK, a)
}

// soilFromForm reads the soil fields. Absent fields keep the values the
// form starts with.
func (s *Server) soilFromForm(c echo.Context) (models.SoilData, error) {
	soil := models.DefaultSoilData()
	params, err := c.FormParams()
	if err != nil {
		if mapped := s.tooLarge(err); mapped != err {
			return soil, mapped
		}
		return soil, errors.New(errors.CategoryValidation, "server.analyze", "Formulário inválido.", err)
	}

	for name, dst := range map[string]*string{
		"crop":     &soil.Crop,
		"soilType": &soil.SoilType,
		"history":  &soil.History,
		"climate":  &soil.Climate,
	} {
		if vs, ok := params[name]; ok && len(vs) > 0 {
			*dst = vs[0]
		}
	}

	numbers := []struct {
		name string
		dst  *float64
	}{
		{"ph", &soil.PH},
		{"nitrogen", &soil.Nitrogen},
		{"phosphorus", &soil.Phosphorus},
		{"potassium", &soil.Potassium},
	}
	for _, f := range numbers {
		vs, ok := params[f.name]
		if !ok || len(vs) == 0 {
			continue
		}
		n, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(vs[0]), ",", "."), 64)
		if err != nil {
			return soil, errors.Validation("server.analyze", fmt.Sprintf(badFieldMessage, f.name))
		}
		*f.dst = n
	}
	return soil, nil
}

// readImage reads at most one byte past the cap so the service can reject
// oversized uploads by length.
func (s *Server) readImage(c echo.Context) ([]byte, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		return nil, errors.Validation("server.analyze", noImageMessage)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}

func (s *Server) handleSave(c echo.Context) error {
	saved, err := s.analysis.Save(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, "save", err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) reportResponse(analyses []*models.SavedAnalysis) ReportResponse {
	if analyses == nil {
		analyses = []*models.SavedAnalysis{}
	}
	return ReportResponse{Items: analyses, Rows: report.Rows(analyses, s.loc)}
}

func (s *Server) handleReport(c echo.Context) error {
	analyses, err := s.analysis.Report(c.Request().Context())
	if err != nil {
		return s.fail(c, "report", err)
	}
	return c.JSON(http.StatusOK, s.reportResponse(analyses))
}

func (s *Server) handleReportXLSX(c echo.Context) error {
	analyses, err := s.analysis.Report(c.Request().Context())
	if err != nil {
		return s.fail(c, "report.xlsx", err)
	}
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, analyses, s.loc); err != nil {
		return s.fail(c, "report.xlsx", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", xlsxFilename))
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (s *Server) liveResponse(withEntries bool) LiveResponse {
	st := s.live.State()
	resp := LiveResponse{State: st, Active: st.Active()}
	if withEntries {
		resp.Entries = s.live.Transcript()
	}
	return resp
}

func (s *Server) liveDisabled(c echo.Context) error {
	return respondError(c, errors.New(errors.CategoryConfiguration, "server.live", liveOffMessage, nil))
}

func (s *Server) handleLiveStart(c echo.Context) error {
	if s.live == nil {
		return s.liveDisabled(c)
	}
	// The session already logged and reported start failures.
	if err := s.live.Start(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, s.liveResponse(false))
}

func (s *Server) handleLiveStop(c echo.Context) error {
	if s.live == nil {
		return s.liveDisabled(c)
	}
	s.live.Stop()
	return c.JSON(http.StatusOK, s.liveResponse(false))
}

func (s *Server) handleLiveTranscript(c echo.Context) error {
	if s.live == nil {
		return s.liveDisabled(c)
	}
	return c.JSON(http.StatusOK, s.liveResponse(true))
}
