package registry

import (
	"path/filepath"
	"strings"

	"github.com/liamcoop/decisioncentral/decision"
	"github.com/liamcoop/decisioncentral/dmn"
)

// Format identifies the source format of a decision service.
type Format string

const (
	// FormatWorkbook is a YAML or JSON workbook.
	FormatWorkbook Format = "workbook"
	// FormatDMN is DMN XML.
	FormatDMN Format = "dmn"
)

// FormatForFile picks the format from a file name extension.
func FormatForFile(filename string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml", ".json":
		return FormatWorkbook, true
	case ".xml", ".dmn":
		return FormatDMN, true
	default:
		return "", false
	}
}

// Builder turns a stored source into a ready decision service. A non-OK
// status means the source was rejected.
type Builder func(format Format, source []byte) (decision.Service, decision.Status)

// Build is the default Builder backed by the dmn engine.
func Build(format Format, source []byte) (decision.Service, decision.Status) {
	en, err := dmn.New()
	if err != nil {
		return nil, decision.Errorf("failed to create engine: %v", err)
	}

	var status decision.Status
	switch format {
	case FormatWorkbook:
		status = en.Use(source)
	case FormatDMN:
		status = en.UseXML(source)
	default:
		return nil, decision.Errorf("unsupported format %q", format)
	}
	if !status.OK() {
		return nil, status
	}
	return en, status
}
