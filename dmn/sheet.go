package dmn

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
)

const (
	cellStyle   = `style="border:2px solid"`
	inputStyle  = `style="border:2px solid;background-color:DodgerBlue"`
	outputStyle = `style="border:2px solid;background-color:LightSteelBlue"`
	annotStyle  = `style="border:2px solid;background-color:DarkSeaGreen"`
)

// sheetComponent renders a decision table as an HTML table: the hit policy,
// one column per input and output, then the rule annotations.
func sheetComponent(t *table) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<table style="border-collapse:collapse;border:2px solid">`)
		b.WriteString(`<tr><th ` + outputStyle + `>` + templ.EscapeString(string(t.policy)) + `</th>`)
		for _, in := range t.inputs {
			b.WriteString(`<th ` + inputStyle + `>` + templ.EscapeString(in) + `</th>`)
		}
		for _, out := range t.outputs {
			b.WriteString(`<th ` + outputStyle + `>` + templ.EscapeString(out) + `</th>`)
		}
		b.WriteString(`<th ` + annotStyle + `>Annotation</th></tr>`)

		for _, r := range t.rules {
			b.WriteString(`<tr><td ` + cellStyle + `>` + templ.EscapeString(r.id) + `</td>`)
			for _, tst := range r.tests {
				b.WriteString(cell(tst.text))
			}
			for _, out := range r.outputs {
				b.WriteString(cell(out.text))
			}
			b.WriteString(`<td ` + cellStyle + `>` + templ.EscapeString(r.annotation) + `</td></tr>`)
		}
		b.WriteString(`</table>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func cell(text string) string {
	if text == "" || text == "-" {
		return `<td style="text-align:center;border:2px solid">-</td>`
	}
	return `<td ` + cellStyle + `>` + templ.EscapeString(text) + `</td>`
}

func renderTable(t *table) (string, error) {
	var b strings.Builder
	if err := sheetComponent(t).Render(context.Background(), &b); err != nil {
		return "", fmt.Errorf("failed to render table: %w", err)
	}
	return b.String(), nil
}
