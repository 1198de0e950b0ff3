package db

import (
	"bytes"
	"fmt"
	"html/template"

	"bandersnatch/data"
)

var tableTemplate = template.Must(template.New("table").Parse(`<table class="dataframe">
  <thead>
    <tr>
      <th></th>
{{- range .Columns}}
      <th>{{.}}</th>
{{- end}}
    </tr>
  </thead>
  <tbody>
{{- range $i, $row := .Rows}}
    <tr>
      <th>{{$i}}</th>
{{- range $row}}
      <td>{{.}}</td>
{{- end}}
    </tr>
{{- end}}
  </tbody>
</table>
`))

// HTMLTable renders the whole collection as an HTML table with a leading
// row index column.
func (d *Database) HTMLTable() (template.HTML, error) {
	table, err := d.Table()
	if err != nil {
		return "", err
	}
	return RenderTable(table)
}

func RenderTable(table *data.Table) (template.HTML, error) {
	columns := table.Columns()
	rows := make([][]string, table.Len())
	for i := range rows {
		record := table.Row(i)
		cells := make([]string, len(columns))
		for j, column := range columns {
			cells[j] = formatCell(record[column])
		}
		rows[i] = cells
	}

	var buf bytes.Buffer
	err := tableTemplate.Execute(&buf, struct {
		Columns []string
		Rows    [][]string
	}{columns, rows})
	if err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}
