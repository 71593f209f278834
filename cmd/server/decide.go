package main

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/liamcoop/decisioncentral/codec"
	"github.com/liamcoop/decisioncentral/decision"
	"github.com/liamcoop/decisioncentral/feel"
	"github.com/liamcoop/decisioncentral/internal/logger"
	"github.com/liamcoop/decisioncentral/registry"
)

const tableSuffix = "_table"

// wantsJSON reports whether the Accept header lists application/json.
func wantsJSON(r *http.Request) bool {
	for _, field := range r.Header.Values("Accept") {
		for _, part := range strings.Split(field, ",") {
			mediaType, _, _ := strings.Cut(part, ";")
			if strings.EqualFold(strings.TrimSpace(mediaType), "application/json") {
				return true
			}
		}
	}
	return false
}

// decodeInput reads the decide request body. Form posts come from the HTML
// pages: values are trimmed, blanks dropped and the rest decoded as literals.
// Anything else must be a JSON object.
func decodeInput(r *http.Request) (map[string]feel.Value, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("failed to parse form: %w", err)
		}
		data := make(map[string]feel.Value, len(r.PostForm))
		for name, values := range r.PostForm {
			if len(values) == 0 {
				continue
			}
			value := strings.TrimSpace(values[0])
			if value == "" {
				continue
			}
			data[name] = codec.DecodeForm(value)
		}
		return data, nil
	}

	v, err := codec.DecodeJSON(r.Body)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(feel.Map)
	if !ok {
		return nil, errors.New("request body must be a JSON object")
	}
	return map[string]feel.Value(obj), nil
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, param(r, "name"), "")
}

// handleDecideTable serves /api/{name}_table/{sheet}. A path naming an
// existing service without the suffix is a malformed table route.
func (s *Server) handleDecideTable(w http.ResponseWriter, r *http.Request) {
	service, sheet := param(r, "name"), param(r, "sheet")
	name, ok := strings.CutSuffix(service, tableSuffix)
	if ok {
		s.decide(w, r, name, sheet)
		return
	}
	if _, err := s.registry.Get(service); err != nil {
		s.missingService(w, r, service, err)
		return
	}

	want := path("api", service+tableSuffix, sheet)
	logger.Debug("decision table route without suffix", "name", service, "sheet", sheet)
	if wantsJSON(r) {
		respondError(w, http.StatusBadRequest, "invalid decision table route",
			fmt.Errorf("decision table %s of %s is served at %s", sheet, service, want))
		return
	}
	render(w, r, http.StatusBadRequest, messagePage("Decision Central - bad request",
		"Invalid decision table route for Decision Service "+service,
		[]string{"Decision table " + sheet + " is served at " + want}))
}

func (s *Server) missingService(w http.ResponseWriter, r *http.Request, name string, err error) {
	if wantsJSON(r) {
		respondError(w, http.StatusNotFound, "decision service not found", err)
		return
	}
	render(w, r, http.StatusBadRequest, noServicePage(name))
}

// decide runs the whole decision, or one table when sheet is set, and
// answers in JSON or HTML depending on the Accept header.
func (s *Server) decide(w http.ResponseWriter, r *http.Request, name, sheet string) {
	asJSON := wantsJSON(r)
	entry, err := s.registry.Get(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.missingService(w, r, name, err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get decision service", err)
		return
	}

	data, err := decodeInput(r)
	if err != nil {
		if asJSON {
			respondError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
		render(w, r, http.StatusBadRequest, messagePage("Decision Central - bad request", "Invalid request for Decision Service "+name, []string{err.Error()}))
		return
	}

	start := time.Now()
	var (
		status  decision.Status
		outcome decision.Outcome
	)
	if sheet == "" {
		status, outcome = entry.Service.Decide(data)
	} else {
		status, outcome = entry.Service.DecideTables(data, []string{sheet})
	}
	elapsed := time.Since(start)
	s.metrics.ObserveDecision(name, status.OK(), elapsed)
	logger.Debug("decision made",
		"name", name,
		"sheet", sheet,
		"ok", status.OK(),
		"records", len(outcome.Records),
		"duration_ms", elapsed.Milliseconds(),
	)

	if asJSON {
		respondJSON(w, http.StatusOK, decision.Normalize(status, outcome))
		return
	}
	if !status.OK() {
		render(w, r, http.StatusBadRequest, messagePage(
			"Decision Central - bad status from Decision Service "+name,
			"Your Decision Service "+name+" returned a bad status",
			status.Errors,
		))
		return
	}
	render(w, r, http.StatusOK, resultPage(name, decision.NewReport(status, outcome)))
}

// handleUpload creates or replaces a service from a multipart file upload.
// The service is named after the file without its extension.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	accepted := false
	defer func() { s.metrics.ObserveUpload(accepted) }()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			render(w, r, http.StatusRequestEntityTooLarge, messagePage("Decision Central - file too large",
				fmt.Sprintf("The uploaded file exceeds %d bytes", tooLarge.Limit), nil))
		case r.MultipartForm != nil && len(r.MultipartForm.Value["file"]) > 0:
			// A file part without a filename is parsed as a plain value.
			render(w, r, http.StatusBadRequest, messagePage("Decision Central - No filename", "No filename found in the upload request", nil))
		default:
			render(w, r, http.StatusBadRequest, messagePage("Decision Central - No file part", "No file part found in the upload request", nil))
		}
		return
	}
	defer file.Close()

	if header.Filename == "" {
		render(w, r, http.StatusBadRequest, messagePage("Decision Central - No filename", "No filename found in the upload request", nil))
		return
	}
	format, ok := registry.FormatForFile(header.Filename)
	if !ok {
		render(w, r, http.StatusBadRequest, messagePage("Decision Central - invalid file extension", "Invalid file extension in the upload request", nil))
		return
	}

	source, err := io.ReadAll(file)
	if err != nil {
		render(w, r, http.StatusBadRequest, messagePage("Decision Central - Bad file", "The uploaded file could not be read", []string{err.Error()}))
		return
	}

	name := registry.NameFromFile(header.Filename)
	entry, err := s.registry.Register(name, format, source)
	if err != nil {
		var invalid *registry.ValidationError
		if errors.As(err, &invalid) {
			logger.Warn("rejected decision service upload", "name", name, "errors", len(invalid.Errors))
			render(w, r, http.StatusBadRequest, messagePage("Decision Central - Invalid DMN", "There were Errors in your DMN rules", invalid.Errors))
			return
		}
		logger.Error("failed to register decision service", "name", name, "error", err)
		render(w, r, http.StatusInternalServerError, messagePage("Decision Central - error", "Failed to store the decision service", []string{err.Error()}))
		return
	}

	accepted = true
	logger.Info("decision service uploaded", "name", entry.Name, "id", entry.ID, "format", entry.Format)
	render(w, r, http.StatusCreated, component("Decision Central - uploaded", func(m *markup) {
		m.raw(`<h2 ` + centerStyle + `>Your DMN compatible workbook or DMN compliant XML file has been successfully uploaded</h2>`)
		m.raw(`<h3 ` + centerStyle + `>Your Decision Service has been created</h3>`)
		m.back(path("show", entry.Name), entry.Name)
		m.back("/", returnHome)
	}))
}

// handleDelete is the HTML delete link.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := param(r, "name")
	if err := s.registry.Delete(name); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			render(w, r, http.StatusBadRequest, noServicePage(name))
			return
		}
		logger.Error("failed to delete decision service", "name", name, "error", err)
		render(w, r, http.StatusInternalServerError, messagePage("Decision Central - error", "Failed to delete decision service "+name, []string{err.Error()}))
		return
	}
	logger.Info("decision service deleted", "name", name)
	render(w, r, http.StatusOK, messagePage("Decision Central - deleted", "Your DMN Decision Service "+name+" has been deleted.", nil))
}

func (s *Server) handleDeleteAPI(w http.ResponseWriter, r *http.Request) {
	name := param(r, "name")
	if err := s.registry.Delete(name); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			respondError(w, http.StatusNotFound, "decision service not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete decision service", err)
		return
	}
	logger.Info("decision service deleted", "name", name)
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"name":   name,
	})
}
