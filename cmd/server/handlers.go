package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"

	"github.com/liamcoop/decisioncentral/decision"
	"github.com/liamcoop/decisioncentral/internal/logger"
	"github.com/liamcoop/decisioncentral/openapi"
	"github.com/liamcoop/decisioncentral/registry"
)

// param returns a decoded path parameter. Service names never contain '%',
// so unescaping an already decoded value is harmless.
func param(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// serverURL is the origin advertised in generated documents.
func serverURL(r *http.Request) string {
	h := r.Header.Clone()
	if h.Get("Host") == "" && r.Host != "" {
		h.Set("Host", r.Host)
	}
	origin, _ := openapi.ServerURL(h)
	return origin
}

// lookedUp is a registry entry with the document cache generation read just
// before the registry lookup.
type lookedUp struct {
	registry.Entry
	generation uint64
}

// lookup finds a service for an HTML route, writing the error page when it
// is missing.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request, name string) (lookedUp, bool) {
	generation := s.docs.Generation()
	entry, err := s.registry.Get(name)
	if err == nil {
		return lookedUp{Entry: entry, generation: generation}, true
	}
	if errors.Is(err, registry.ErrNotFound) {
		logger.Debug("no such decision service", "name", name)
		render(w, r, http.StatusBadRequest, noServicePage(name))
		return lookedUp{}, false
	}
	logger.Error("failed to get decision service", "name", name, "error", err)
	render(w, r, http.StatusInternalServerError, messagePage("Decision Central - error", "Failed to get decision service "+name, []string{err.Error()}))
	return lookedUp{}, false
}

func (s *Server) serviceDocument(entry lookedUp, server string) ([]byte, error) {
	doc, err := s.docs.GetOrBuild(entry.Name, "", entry.generation, func() (*openapi.Document, error) {
		return openapi.DecideDocument(entry.Service.Glossary(), entry.Name, ""), nil
	})
	if err != nil {
		return nil, err
	}
	return doc.Render(server)
}

func (s *Server) tableDocument(entry lookedUp, sheet, server string) ([]byte, error) {
	doc, err := s.docs.GetOrBuild(entry.Name, sheet, entry.generation, func() (*openapi.Document, error) {
		glossary, _ := entry.Service.TableGlossary(sheet)
		return openapi.DecideDocument(glossary, entry.Name, sheet), nil
	})
	if err != nil {
		return nil, err
	}
	return doc.Render(server)
}

func findSheet(svc decision.Service, name string) (decision.Sheet, bool) {
	for _, sheet := range svc.Sheets() {
		if sheet.Name == name {
			return sheet, true
		}
	}
	return decision.Sheet{}, false
}

func documentFailed(w http.ResponseWriter, r *http.Request, err error) {
	logger.Error("failed to generate OpenAPI document", "path", r.URL.Path, "error", err)
	render(w, r, http.StatusInternalServerError, messagePage("Decision Central - error", "Failed to generate the OpenAPI specification", []string{err.Error()}))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, indexPage(s.registry.List()))
}

func (s *Server) handleUploadAPI(w http.ResponseWriter, r *http.Request) {
	server := serverURL(r)
	doc, err := openapi.Upload(server)
	if err != nil {
		documentFailed(w, r, err)
		return
	}
	render(w, r, http.StatusOK, apiPage{
		Title:       "Decision Service file upload Open API Specification",
		Heading:     "Open API Specification for Decision Service file upload",
		Document:    doc,
		Download:    "/downloaduploadapi",
		DownloadFor: "Decision Central file upload",
		ServerURL:   server,
		Back:        "/",
		BackLabel:   returnHome,
	}.component())
}

func (s *Server) handleDownloadUploadAPI(w http.ResponseWriter, r *http.Request) {
	doc, err := openapi.Upload(serverURL(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate OpenAPI document", err)
		return
	}
	sendAttachment(w, "DecisionCentral_upload.yaml", doc)
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	name := param(r, "name")
	entry, ok := s.lookup(w, r, name)
	if !ok {
		return
	}
	render(w, r, http.StatusOK, servicePage(name, entry.Service))
}

// handleShowPart serves the glossary, decision and api views. Any other part
// names a decision table.
func (s *Server) handleShowPart(w http.ResponseWriter, r *http.Request) {
	name, part := param(r, "name"), param(r, "part")
	entry, ok := s.lookup(w, r, name)
	if !ok {
		return
	}
	svc := entry.Service

	switch part {
	case "glossary":
		render(w, r, http.StatusOK, glossaryPage(name, svc))
	case "decision":
		render(w, r, http.StatusOK, decisionPage(name, svc))
	case "api":
		server := serverURL(r)
		doc, err := s.serviceDocument(entry, server)
		if err != nil {
			documentFailed(w, r, err)
			return
		}
		render(w, r, http.StatusOK, apiPage{
			Title:       "Decision Service " + name + " Open API Specification",
			Heading:     "Open API Specification for the " + name + " Decision Service",
			Document:    doc,
			Download:    path("download", name),
			DownloadFor: "Decision Service " + name,
			ServerURL:   server,
			Back:        path("show", name),
			BackLabel:   returnToService(name),
		}.component())
	default:
		sheet, ok := findSheet(svc, part)
		if !ok {
			logger.Warn("no such decision table", "name", name, "sheet", part)
			render(w, r, http.StatusBadRequest, noTablePage(part))
			return
		}
		glossary, _ := svc.TableGlossary(part)
		render(w, r, http.StatusOK, sheetPage(name, sheet, glossary, svc.GlossaryNames()))
	}
}

func (s *Server) handleShowTableAPI(w http.ResponseWriter, r *http.Request) {
	name, sheet := param(r, "name"), param(r, "sheet")
	entry, ok := s.lookup(w, r, name)
	if !ok {
		return
	}
	if !decision.HasSheet(entry.Service, sheet) {
		logger.Warn("no such decision table", "name", name, "sheet", sheet)
		render(w, r, http.StatusBadRequest, noTablePage(sheet))
		return
	}
	server := serverURL(r)
	doc, err := s.tableDocument(entry, sheet, server)
	if err != nil {
		documentFailed(w, r, err)
		return
	}
	render(w, r, http.StatusOK, apiPage{
		Title:       "Decision Service " + name + " Open API Specification for " + sheet + " Decision Table",
		Heading:     "Open API Specification for the Decision Table " + sheet + " in the Decision Service " + name,
		Document:    doc,
		Download:    path("download", name, sheet),
		DownloadFor: "Decision Table " + sheet + " in Decision Service " + name,
		ServerURL:   server,
		Back:        path("show", name),
		BackLabel:   returnToService(name),
	}.component())
}

func (s *Server) handleShowDeleteAPI(w http.ResponseWriter, r *http.Request) {
	name := param(r, "name")
	server := serverURL(r)
	doc, err := openapi.Delete(name, server)
	if err != nil {
		documentFailed(w, r, err)
		return
	}
	render(w, r, http.StatusOK, apiPage{
		Title:       "Delete Decision Service " + name + " Open API Specification",
		Heading:     "Open API Specification for deleting the " + name + " Decision Service",
		Document:    doc,
		Download:    path("download_delete", name),
		DownloadFor: "deleting the " + name + " Decision Service",
		ServerURL:   server,
		Back:        path("show", name),
		BackLabel:   returnToService(name),
	}.component())
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := param(r, "name")
	entry, ok := s.lookup(w, r, name)
	if !ok {
		return
	}
	doc, err := s.serviceDocument(entry, serverURL(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate OpenAPI document", err)
		return
	}
	sendAttachment(w, secureFilename(name+".yaml"), doc)
}

func (s *Server) handleDownloadTable(w http.ResponseWriter, r *http.Request) {
	name, sheet := param(r, "name"), param(r, "sheet")
	entry, ok := s.lookup(w, r, name)
	if !ok {
		return
	}
	if !decision.HasSheet(entry.Service, sheet) {
		render(w, r, http.StatusBadRequest, noTablePage(sheet))
		return
	}
	doc, err := s.tableDocument(entry, sheet, serverURL(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate OpenAPI document", err)
		return
	}
	sendAttachment(w, secureFilename(name+"_"+sheet+".yaml"), doc)
}

func (s *Server) handleDownloadDelete(w http.ResponseWriter, r *http.Request) {
	name := param(r, "name")
	if _, ok := s.lookup(w, r, name); !ok {
		return
	}
	doc, err := openapi.Delete(name, serverURL(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate OpenAPI document", err)
		return
	}
	sendAttachment(w, secureFilename(name+"_delete.yaml"), doc)
}

func sendAttachment(w http.ResponseWriter, filename string, doc []byte) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc); err != nil {
		logger.Warn("failed to write attachment", "filename", filename, "error", err)
	}
}

// secureFilename reduces a name to ASCII letters, digits, '_', '.' and '-',
// with runs of whitespace and path separators collapsed to '_'.
func secureFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return ' '
		}
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), "_")

	var b bytes.Buffer
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "decision_service.yaml"
	}
	return out
}
