package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/liamcoop/decisioncentral/decision"
	"github.com/liamcoop/decisioncentral/internal/logger"
	"github.com/liamcoop/decisioncentral/registry"
)

const (
	bodyStyle    = `style="font-size:120%"`
	centerStyle  = `style="text-align:center"`
	borderStyle  = `style="border:2px solid"`
	headingStyle = `style="border:2px solid;background-color:LightSteelBlue"`
	extraStyle   = `style="border:2px solid;background-color:DarkSeaGreen"`
	inputStyle   = `style="border:2px solid;background-color:DodgerBlue"`
	titleBar     = `style="width:25%;background-color:black;color:white"`
)

// markup accumulates an HTML document. text escapes, raw does not.
type markup struct {
	strings.Builder
}

func (m *markup) raw(s string) { m.WriteString(s) }

func (m *markup) text(s string) { m.WriteString(templ.EscapeString(s)) }

func (m *markup) textf(format string, args ...any) { m.text(fmt.Sprintf(format, args...)) }

func (m *markup) link(href, label string) {
	m.raw(`<a href="` + templ.EscapeString(href) + `">`)
	m.text(label)
	m.raw(`</a>`)
}

// back writes a centered bold link, as every page ends with one.
func (m *markup) back(href, label string) {
	m.raw(`<p ` + centerStyle + `><b>`)
	m.link(href, label)
	m.raw(`</b></p>`)
}

// component turns a page builder into a templ component wrapped in the
// common document shell.
func component(title string, body func(m *markup)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var m markup
		m.raw(`<html><head><title>`)
		m.text(title)
		m.raw(`</title><link rel="icon" href="data:,"></head><body ` + bodyStyle + `>`)
		body(&m)
		m.raw(`</body></html>`)
		_, err := io.WriteString(w, m.String())
		return err
	})
}

// render writes c as an HTML response.
func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		logger.Error("failed to render page", "path", r.URL.Path, "error", err)
	}
}

// path joins escaped segments into an absolute URL path.
func path(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

func returnToService(name string) string { return "Return to Decision Service " + name }

const returnHome = "Return to Decision Central"

// messagePage is a heading, optional preformatted details and a link back to
// the home page.
func messagePage(title, heading string, details []string) templ.Component {
	return component(title, func(m *markup) {
		m.raw(`<h2 ` + centerStyle + `>`)
		m.text(heading)
		m.raw(`</h2>`)
		for _, d := range details {
			m.raw(`<pre>`)
			m.text(d)
			m.raw(`</pre>`)
		}
		m.back("/", returnHome)
	})
}

func noServicePage(name string) templ.Component {
	return messagePage("Decision Central - no such Decision Service", "No decision service named "+name, nil)
}

func noTablePage(sheet string) templ.Component {
	return messagePage("Decision Central - no such Decision Table", "No decision table named "+sheet, nil)
}

func indexPage(entries []registry.Entry) templ.Component {
	return component("Decision Central", func(m *markup) {
		m.raw(`<h1 ` + centerStyle + `>Welcome to Decision Central</h1>`)
		m.raw(`<h3 ` + centerStyle + `>Your home for all your DMN Decision Services</h3>`)
		m.raw(`<div style="text-align:center;margin:auto"><b>Here you can create a Decision Service by simply`)
		m.raw(`<br/>uploading a DMN compatible workbook or DMN compliant XML file</b></div>`)
		m.raw(`<br/><table width="90%" style="text-align:left;margin:auto;font-size:120%">`)
		m.raw(`<tr><th style="padding-left:3ch">With each created Decision Service you get</th>`)
		m.raw(`<th>Available Decision Services</th></tr>`)
		m.raw(`<tr><td><ol>`)
		m.raw(`<li style="text-align:left">An API which you can use to test integration to your Decision Service`)
		m.raw(`<li style="text-align:left">A user interface where you can perform simple tests of your Decision Service`)
		m.raw(`<li style="text-align:left">A list of links to HTML renditions of the Decision Tables in your Decision Service`)
		m.raw(`<li style="text-align:left">A link to the Open API YAML file which describes your Decision Service`)
		m.raw(`</ol></td><td>`)
		for _, e := range entries {
			m.raw(`<br/>`)
			m.link(path("show", e.Name), e.Name)
		}
		m.raw(`</td></tr>`)
		m.raw(`<tr><td><p>Upload your DMN compatible workbook (.yaml, .yml, .json) or DMN compliant XML file (.xml, .dmn) here</p>`)
		m.raw(`<form id="form" action="/upload" method="post" enctype="multipart/form-data">`)
		m.raw(`<input id="file" type="file" name="file">`)
		m.raw(`<input id="submit" type="submit" value="Upload your workbook or XML file"></p>`)
		m.raw(`</form></td><td></td></tr></table>`)
		m.back("/uploadapi", "OpenAPI Specification for Decision Central file upload")
	})
}

// inputForm writes one text input per concept and per variable. The first
// annotation column is shown beside each variable when the service has any.
func inputForm(m *markup, action string, glossary decision.Glossary, glossaryNames []string) {
	m.raw(`<form id="form" action="` + templ.EscapeString(action) + `" method="post">`)
	m.raw(`<h5>Enter values for these Variables</h5>`)
	m.raw(`<table style="border-spacing:0">`)
	for _, c := range glossary {
		if c.Name != decision.DataConcept {
			m.raw(`<tr><td>`)
			m.text(c.Name)
			m.raw(`</td><td colspan="3"><input type="text" name="` + templ.EscapeString(c.Name) + `" style="text-align:left;width:100%"></input></td></tr>`)
		}
		for _, v := range c.Variables {
			m.raw(`<tr><td></td><td style="text-align:right">`)
			m.text(v.Name)
			m.raw(`</td><td><input type="text" name="` + templ.EscapeString(v.Name) + `" style="text-align:left"></input></td>`)
			if len(glossaryNames) > 1 {
				m.raw(`<td style="text-align:left">`)
				if len(v.Attributes) > 0 {
					m.text(v.Attributes[0])
				}
				m.raw(`</td>`)
			}
			m.raw(`</tr>`)
		}
	}
	m.raw(`</table>`)
	m.raw(`<h5>then click the "Make a Decision" button</h5>`)
	m.raw(`<input type="submit" value="Make a Decision"/></p>`)
	m.raw(`</form>`)
}

func servicePage(name string, svc decision.Service) templ.Component {
	return component("Decision Service "+name, func(m *markup) {
		m.raw(`<h2 ` + centerStyle + `>`)
		m.textf("Your Decision Service %s", name)
		m.raw(`</h2>`)
		m.raw(`<table style="text-align:left;margin:auto;font-size:120%"><tr><th>`)
		m.textf("Test Decision Service %s", name)
		m.raw(`</th><th>`)
		m.textf("The Decision Services %s parts", name)
		m.raw(`</th></tr><tr><td>`)
		inputForm(m, path("api", name), svc.Glossary(), svc.GlossaryNames())
		m.raw(`</td><td style="vertical-align:top"><br/>`)
		m.link(path("show", name, "glossary"), "Glossary")
		m.raw(`<br/>`)
		m.link(path("show", name, "decision"), "Decision Table")
		for _, sheet := range svc.Sheets() {
			m.raw(`<br/>`)
			m.link(path("show", name, sheet.Name), sheet.Name)
		}
		m.raw(`<br/><br/>`)
		m.link(path("show", name, "api"), "OpenAPI specification")
		m.raw(`<br/><br/><br/><br/><br/>`)
		m.link(path("delete", name), "Delete the "+name+" Decision Service")
		m.raw(`<br/>`)
		m.link(path("show_delete", name)+"/", "API for deleting the "+name+" Decision Service")
		m.raw(`</td></tr></table>`)
		m.back("/", returnHome)
	})
}

func glossaryPage(name string, svc decision.Service) templ.Component {
	names := svc.GlossaryNames()
	return component("Decision Service "+name+" Glossary", func(m *markup) {
		m.raw(`<h2 ` + centerStyle + `>`)
		m.textf("The Glossary for the %s Decision Service", name)
		m.raw(`</h2><div ` + titleBar + `>`)
		m.text("Glossary - " + names[0])
		m.raw(`</div><table style="border-collapse:collapse;border:2px solid"><tr>`)
		m.raw(`<th ` + headingStyle + `>Variable</th><th ` + headingStyle + `>Business Concept</th><th ` + headingStyle + `>Attribute</th>`)
		for _, extra := range names[1:] {
			m.raw(`<th ` + extraStyle + `>`)
			m.text(extra)
			m.raw(`</th>`)
		}
		m.raw(`</tr>`)
		for _, c := range svc.Glossary() {
			for i, v := range c.Variables {
				m.raw(`<tr><td ` + borderStyle + `>`)
				m.text(v.Name)
				m.raw(`</td>`)
				if i == 0 {
					m.raw(`<td rowspan="` + strconv.Itoa(len(c.Variables)) + `" ` + borderStyle + `>`)
					m.text(c.Name)
					m.raw(`</td>`)
				}
				m.raw(`<td ` + borderStyle + `>`)
				m.text(v.Attribute())
				m.raw(`</td>`)
				for j := range names[1:] {
					m.raw(`<td ` + borderStyle + `>`)
					if j < len(v.Attributes) {
						m.text(v.Attributes[j])
					}
					m.raw(`</td>`)
				}
				m.raw(`</tr>`)
			}
		}
		m.raw(`</table>`)
		m.back(path("show", name), returnToService(name))
	})
}

// decisionPage colours the header row: condition variables, then the
// decision and table columns, then anything after them.
func decisionPage(name string, svc decision.Service) templ.Component {
	sheet := svc.Decision()
	return component("Decision Service "+name+" Decision Table", func(m *markup) {
		m.raw(`<h2 ` + centerStyle + `>`)
		m.textf("The Decision Table for the %s Decision Service", name)
		m.raw(`</h2><div ` + titleBar + `>`)
		m.text("Decision - " + sheet.Name)
		m.raw(`</div><table style="border-collapse:collapse;border:2px solid">`)
		for i, row := range sheet.Rows {
			m.raw(`<tr>`)
			style := inputStyle
			for _, cell := range row {
				if i == 0 {
					if cell == "Decisions" {
						style = headingStyle
					}
					m.raw(`<th ` + style + `>`)
					m.text(cell)
					m.raw(`</th>`)
					if cell == "Execute Decision Tables" {
						style = extraStyle
					}
					continue
				}
				if cell == "-" {
					m.raw(`<td style="text-align:center;border:2px solid">-</td>`)
					continue
				}
				m.raw(`<td ` + borderStyle + `>`)
				m.text(cell)
				m.raw(`</td>`)
			}
			m.raw(`</tr>`)
		}
		m.raw(`</table>`)
		m.back(path("show", name), returnToService(name))
	})
}

func sheetPage(name string, sheet decision.Sheet, glossary decision.Glossary, glossaryNames []string) templ.Component {
	return component(fmt.Sprintf("Decision Service %s sheet %q", name, sheet.Name), func(m *markup) {
		m.raw(`<h2 ` + centerStyle + `>`)
		m.textf("The Decision sheet %q for Decision Service %s", sheet.Name, name)
		m.raw(`</h2>`)
		m.raw(sheet.HTML)
		m.raw(`<br/>`)
		inputForm(m, path("api", name+"_table", sheet.Name), glossary, glossaryNames)
		m.back(path("show_api", name, sheet.Name), "OpenAPI specification")
		m.back(path("show", name), returnToService(name))
	})
}

// apiPage shows a generated OpenAPI document with a download link and a curl
// hint for fetching it.
type apiPage struct {
	Title       string
	Heading     string
	Document    []byte
	Download    string
	DownloadFor string
	ServerURL   string
	Back        string
	BackLabel   string
}

func (p apiPage) component() templ.Component {
	return component(p.Title, func(m *markup) {
		m.raw(`<h2 ` + centerStyle + `>`)
		m.text(p.Heading)
		m.raw(`</h2><pre>`)
		m.text(string(p.Document))
		m.raw(`</pre>`)
		m.back(p.Download, "Download the OpenAPI Specification for "+p.DownloadFor)
		m.raw(`<div style="text-align:center;margin:auto">`)
		m.text("[curl " + p.ServerURL + p.Download + "]")
		m.raw(`</div>`)
		m.back(p.Back, p.BackLabel)
	})
}

func resultPage(name string, report decision.Report) templ.Component {
	return component("The decision from Decision Service "+name, func(m *markup) {
		m.raw(`<h1>`)
		m.textf("Decision Service %s", name)
		m.raw(`</h1><h2>The Decision</h2><table style="width:70%">`)
		m.raw(`<tr><th ` + borderStyle + `>Variable</th><th ` + borderStyle + `>Value</th></tr>`)
		for _, row := range report.Rows {
			m.raw(`<tr><td ` + borderStyle + `>`)
			m.text(row.Variable)
			m.raw(`</td><td ` + borderStyle + `>`)
			m.text(row.Value)
			m.raw(`</td></tr>`)
		}
		m.raw(`</table><h2>The Deciders</h2><table style="width:70%">`)
		m.raw(`<tr><th ` + borderStyle + `>Executed Decision</th><th ` + borderStyle + `>Decision Table</th><th ` + borderStyle + `>Rule Id</th></tr>`)
		for _, rule := range report.Rules {
			m.raw(`<tr><td ` + borderStyle + `>`)
			m.text(rule.Decision)
			m.raw(`</td><td ` + borderStyle + `>`)
			m.text(rule.Table)
			m.raw(`</td><td ` + borderStyle + `>`)
			m.text(rule.RuleID)
			m.raw(`</td></tr>`)
		}
		m.raw(`</table>`)
		m.back(path("show", name), returnToService(name))
		m.back("/", returnHome)
	})
}
