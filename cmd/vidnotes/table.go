package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// sourceColumnWidth bounds the source column in job and note tables.
const sourceColumnWidth = 48

type tableColumn struct {
	Header string
	Align  text.Align
}

var (
	jobTableColumns = []tableColumn{
		{Header: "ID"},
		{Header: "Status"},
		{Header: "Stage"},
		{Header: "Progress", Align: text.AlignRight},
		{Header: "Source"},
		{Header: "Updated"},
	}
	noteTableColumns = []tableColumn{
		{Header: "Job"},
		{Header: "Transcript"},
		{Header: "Frames", Align: text.AlignRight},
		{Header: "Source"},
		{Header: "Created"},
	}
)

// renderTable draws rows under columns. Short rows are padded with blanks.
func renderTable(columns []tableColumn, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.Header
		align := col.Align
		if align == text.AlignDefault {
			align = text.AlignLeft
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}
