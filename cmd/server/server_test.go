package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/decisioncentral/internal/config"
	"github.com/liamcoop/decisioncentral/internal/metrics"
	"github.com/liamcoop/decisioncentral/registry"
)

func testConfig() config.Config {
	return config.Config{
		Port:             8080,
		MaxUploadBytes:   1 << 20,
		RequestTimeout:   5 * time.Second,
		ShutdownTimeout:  time.Second,
		SlowRequest:      time.Second,
		MetricsNamespace: "decisioncentral",
	}
}

// newTestServer returns a server with the premium workbook registered as
// "Premium".
func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(registry.NewMemoryStore(), nil)
	s := NewServer(testConfig(), reg, metrics.New("decisioncentral", reg.Len))

	source, err := os.ReadFile("../../dmn/testdata/premium.yaml")
	require.NoError(t, err)
	_, err = reg.Register("Premium", registry.FormatWorkbook, source)
	require.NoError(t, err)
	return s, reg
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, s, httptest.NewRequest(http.MethodGet, target, nil))
}

func postJSON(t *testing.T, s *Server, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return do(t, s, req)
}

func postForm(t *testing.T, s *Server, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/html")
	return do(t, s, req)
}

// upload posts a multipart request. An empty field name sends no file
// part at all.
func upload(t *testing.T, s *Server, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		h.Set("Content-Type", "application/octet-stream")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("comment", "no file here"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return do(t, s, req)
}

type envelope struct {
	Result       map[string]any `json:"Result"`
	ExecutedRule [][]string     `json:"Executed Rule"`
	Status       struct {
		Errors []string `json:"errors"`
	} `json:"Status"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["servicesLoaded"])
}

func TestIndexListsServices(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `<a href="/show/Premium">Premium</a>`)
	assert.Contains(t, rec.Body.String(), `action="/upload"`)
}

func TestDecideJSON(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postJSON(t, s, "/api/Premium", `{"Applicant": {"age": 55, "sector": "retail"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	env := decodeEnvelope(t, rec)
	assert.Empty(t, env.Status.Errors)
	assert.Equal(t, "medium", env.Result["Risk"])
	assert.Equal(t, float64(100), env.Result["Premium"])
	assert.Equal(t, []any{"loyalty", "senior"}, env.Result["Discounts"])
	assert.Equal(t, float64(55), env.Result["Age"])
	assert.Equal(t, [][]string{
		{"Assess risk", "Risk", "R2"},
		{"Price policy", "Premium", "P3"},
		{"Collect discounts", "Discounts", "D1"},
		{"Collect discounts", "Discounts", "D2"},
	}, env.ExecutedRule)
}

func TestDecideTableJSON(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postJSON(t, s, "/api/Premium_table/Risk", `{"Age": 70}`)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Empty(t, env.Status.Errors)
	assert.Equal(t, "high", env.Result["Risk"])
	assert.Equal(t, "", env.Result["Premium"])
	assert.Equal(t, [][]string{{"Assess risk", "Risk", "R3"}}, env.ExecutedRule)
}

func TestDecideErrorsJSON(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postJSON(t, s, "/api/Premium_table/Nope", `{"Age": 70}`)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.NotEmpty(t, env.Status.Errors)
	assert.Empty(t, env.Result)
	assert.Empty(t, env.ExecutedRule)
	assert.Contains(t, rec.Body.String(), `"Executed Rule":[]`)
}

func TestDecideBadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
		body   string
		status int
	}{
		{"unknown service", "/api/Nope", `{}`, http.StatusNotFound},
		{"table path without suffix", "/api/Premium/Risk", `{}`, http.StatusBadRequest},
		{"table path for unknown service", "/api/Nope/Risk", `{}`, http.StatusNotFound},
		{"malformed JSON", "/api/Premium", `{"Age":`, http.StatusBadRequest},
		{"not an object", "/api/Premium", `[1, 2]`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, s, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestDecideTableRouteWithoutSuffix(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postJSON(t, s, "/api/Premium/Risk", `{"Age": 70}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid decision table route", body["error"])
	assert.Contains(t, body["details"], "/api/Premium_table/Risk")
	assert.NotContains(t, rec.Body.String(), "not found")

	rec = postForm(t, s, "/api/Premium/Risk", url.Values{"Age": {"70"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid decision table route for Decision Service Premium")
	assert.NotContains(t, rec.Body.String(), "No decision service named")
}

const divisionWorkbook = `
glossary:
  - variables: [{name: Base}, {name: Ratio}]
tables:
  - name: Ratio
    inputs: [Base]
    outputs: [Ratio]
    rules:
      - {when: ["-"], then: ['cel: data["Base"] / 0.0']}
`

func TestDecideNonFiniteResultJSON(t *testing.T) {
	s, reg := newTestServer(t)
	_, err := reg.Register("Div", registry.FormatWorkbook, []byte(divisionWorkbook))
	require.NoError(t, err)

	rec := postJSON(t, s, "/api/Div", `{"Base": 1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Body.Bytes())

	env := decodeEnvelope(t, rec)
	assert.Empty(t, env.Status.Errors)
	assert.Equal(t, "Infinity", env.Result["Ratio"])
	assert.Len(t, env.ExecutedRule, 1)
}

func TestRespondJSONEncodingFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusOK, map[string]any{"bad": math.Inf(1)})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "failed to encode response", body["error"])
	assert.Contains(t, body["details"], "unsupported value")
}

func TestDecideForm(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postForm(t, s, "/api/Premium", url.Values{
		"Age":       {" 55 "},
		"Sector":    {"retail"},
		"Applicant": {"   "},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()

	assert.Contains(t, body, "<h2>The Decision</h2>")
	assert.Contains(t, body, `<td style="border:2px solid">Premium</td><td style="border:2px solid">100</td>`)
	assert.Contains(t, body, `<td style="border:2px solid">Discounts</td><td style="border:2px solid">[loyalty, senior]</td>`)
	assert.Contains(t, body, "<h2>The Deciders</h2>")
	assert.Contains(t, body, `<td style="border:2px solid">D2</td>`)
	assert.Contains(t, body, `href="/show/Premium"`)
	assert.Contains(t, body, "Return to Decision Central")
}

func TestDecideFormErrors(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postForm(t, s, "/api/Premium_table/Nope", url.Values{"Age": {"30"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "returned a bad status")
	assert.Contains(t, rec.Body.String(), "<pre>")

	rec = postForm(t, s, "/api/Nope", url.Values{"Age": {"30"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No decision service named Nope")
}

func TestUpload(t *testing.T) {
	s, reg := newTestServer(t)
	source, err := os.ReadFile("../../dmn/testdata/loan.dmn")
	require.NoError(t, err)

	rec := upload(t, s, "file", "Loan Approval.dmn", source)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "successfully uploaded")
	assert.Contains(t, rec.Body.String(), `href="/show/Loan%20Approval"`)

	entry, err := reg.Get("Loan Approval")
	require.NoError(t, err)
	assert.Equal(t, registry.FormatDMN, entry.Format)

	rec = get(t, s, "/show/Loan%20Approval")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadRejections(t *testing.T) {
	s, reg := newTestServer(t)

	tests := []struct {
		name     string
		field    string
		filename string
		content  string
		want     string
	}{
		{"no file part", "", "", "", "No file part found"},
		{"no filename", "file", "", "tables: []", "No filename found"},
		{"bad extension", "file", "rules.txt", "tables: []", "Invalid file extension"},
		{"engine errors", "file", "Broken.yaml", "tables: []\n", "<pre>no decision tables defined</pre>"},
		{"bad name", "file", "Pricing_table.yaml", "tables: []\n", "There were Errors"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, s, tt.field, tt.filename, []byte(tt.content))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
			assert.Contains(t, rec.Body.String(), "Return to Decision Central")
		})
	}
	assert.Equal(t, 1, reg.Len())
}

func TestUploadTooLarge(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.MaxUploadBytes = 256

	rec := upload(t, s, "file", "Big.yaml", bytes.Repeat([]byte("#"), 4096))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServicePages(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"service", "/show/Premium", []string{
			`action="/api/Premium"`,
			`name="Applicant"`,
			`name="Age"`,
			"in years",
			`href="/show/Premium/glossary"`,
			`href="/show/Premium/Risk"`,
			`href="/delete/Premium"`,
			`href="/show_delete/Premium/"`,
		}},
		{"glossary", "/show/Premium/glossary", []string{
			"Glossary - Glossary",
			`<th style="border:2px solid;background-color:DarkSeaGreen">Notes</th>`,
			`rowspan="2"`,
			`<td style="border:2px solid">age</td>`,
		}},
		{"decision", "/show/Premium/decision", []string{
			"Decision - Determine Premium",
			`<th style="border:2px solid;background-color:DodgerBlue">Age</th>`,
			`<th style="border:2px solid;background-color:LightSteelBlue">Decisions</th>`,
			`<td style="border:2px solid">&gt;= 18</td>`,
		}},
		{"sheet", "/show/Premium/Risk", []string{
			`The Decision sheet &#34;Risk&#34; for Decision Service Premium`,
			`action="/api/Premium_table/Risk"`,
			`href="/show_api/Premium/Risk"`,
			"retirement age",
		}},
		{"api", "/show/Premium/api", []string{
			"Open API Specification for the Premium Decision Service",
			"<pre>",
			`href="/download/Premium"`,
			"[curl example.com/download/Premium]",
		}},
		{"table api", "/show_api/Premium/Risk", []string{
			"Decision Table Risk in the Decision Service Premium",
			"/api/Premium_table/Risk",
			`href="/download/Premium/Risk"`,
		}},
		{"delete api", "/show_delete/Premium/", []string{
			"Open API Specification for deleting the Premium Decision Service",
			"/delete/Premium",
			`href="/download_delete/Premium"`,
		}},
		{"upload api", "/uploadapi", []string{
			"Open API Specification for Decision Service file upload",
			"multipart/form-data",
			`href="/downloaduploadapi"`,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s, tt.target)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			for _, want := range tt.want {
				assert.Contains(t, rec.Body.String(), want)
			}
		})
	}
}

func TestUnknownServicePages(t *testing.T) {
	s, _ := newTestServer(t)

	for _, target := range []string{
		"/show/Nope",
		"/show/Nope/glossary",
		"/show_api/Nope/Risk",
		"/download/Nope",
		"/download/Nope/Risk",
		"/download_delete/Nope",
		"/delete/Nope",
	} {
		t.Run(target, func(t *testing.T) {
			rec := get(t, s, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "No decision service named Nope")
			assert.Contains(t, rec.Body.String(), "Return to Decision Central")
		})
	}

	for _, target := range []string{"/show/Premium/Nope", "/show_api/Premium/Nope", "/download/Premium/Nope"} {
		t.Run(target, func(t *testing.T) {
			rec := get(t, s, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "No decision table named Nope")
		})
	}
}

func TestDownloads(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		target   string
		filename string
		want     string
	}{
		{"/download/Premium", "Premium.yaml", "title: Decision Service Premium"},
		{"/download/Premium/Risk", "Premium_Risk.yaml", "/api/Premium_table/Risk"},
		{"/download_delete/Premium", "Premium_delete.yaml", "/delete/Premium"},
		{"/downloaduploadapi", "DecisionCentral_upload.yaml", "/upload"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(t, s, tt.target)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, `attachment; filename="`+tt.filename+`"`, rec.Header().Get("Content-Disposition"))
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestDocumentCacheInvalidatedOnChange(t *testing.T) {
	s, reg := newTestServer(t)

	require.Equal(t, http.StatusOK, get(t, s, "/show/Premium/api").Code)
	require.Equal(t, http.StatusOK, get(t, s, "/download/Premium").Code)
	assert.Equal(t, 1, s.docs.Len())

	require.Equal(t, http.StatusOK, get(t, s, "/download/Premium/Risk").Code)
	assert.Equal(t, 2, s.docs.Len())

	source, err := os.ReadFile("../../dmn/testdata/premium.yaml")
	require.NoError(t, err)
	_, err = reg.Register("Premium", registry.FormatWorkbook, source)
	require.NoError(t, err)
	assert.Equal(t, 0, s.docs.Len())
}

func TestDocumentCacheIgnoresHost(t *testing.T) {
	s, _ := newTestServer(t)

	for i := 0; i < 200; i++ {
		req := httptest.NewRequest(http.MethodGet, "/download/Premium", nil)
		req.Host = fmt.Sprintf("client-%d.example", i)
		rec := do(t, s, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), fmt.Sprintf("url: client-%d.example", i))
	}
	assert.Equal(t, 1, s.docs.Len())

	metricsBody := get(t, s, "/metrics").Body.String()
	assert.Contains(t, metricsBody, `decisioncentral_openapi_cache_total{result="hit"} 199`)
	assert.Contains(t, metricsBody, `decisioncentral_openapi_cache_total{result="miss"} 1`)
}

func TestDelete(t *testing.T) {
	s, reg := newTestServer(t)

	rec := get(t, s, "/delete/Premium")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your DMN Decision Service Premium has been deleted.")
	assert.Equal(t, 0, reg.Len())

	req := httptest.NewRequest(http.MethodDelete, "/api/Premium", nil)
	rec = do(t, s, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAPI(t *testing.T) {
	s, reg := newTestServer(t)

	rec := do(t, s, httptest.NewRequest(http.MethodDelete, "/api/Premium", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "deleted", body["status"])
	assert.Equal(t, 0, reg.Len())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	postJSON(t, s, "/api/Premium", `{"Age": 30}`)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "decisioncentral_decisions_total")
	assert.Contains(t, rec.Body.String(), "decisioncentral_services 1")
}

func TestWantsJSON(t *testing.T) {
	tests := []struct {
		accept string
		want   bool
	}{
		{"", false},
		{"text/html", false},
		{"application/json", true},
		{"text/html, application/json;q=0.9", true},
		{"application/jsonx", false},
	}
	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/x", nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			assert.Equal(t, tt.want, wantsJSON(req))
		})
	}
}

func TestSecureFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Premium.yaml", "Premium.yaml"},
		{"Loan Approval.yaml", "Loan_Approval.yaml"},
		{"../../etc/passwd", "etc_passwd"},
		{"Ünïcode rules.yaml", "ncode_rules.yaml"},
		{"a*b?.yaml", "ab.yaml"},
		{"...", "decision_service.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, secureFilename(tt.in))
		})
	}
}
