package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/zime-ai/nucleus/internal/domain/dealstage"
)

type mappingColumn struct {
	header string
	align  text.Align
	merge  bool
	value  func(dealstage.Mapping) string
}

// mappingColumns lists company and pipeline first so repeated values merge
// into one cell per pipeline.
var mappingColumns = []mappingColumn{
	{header: "Company", merge: true, value: func(m dealstage.Mapping) string { return m.CompanyName }},
	{header: "Pipeline", merge: true, value: func(m dealstage.Mapping) string { return m.PipelineName }},
	{header: "Stage ID", align: text.AlignRight, value: func(m dealstage.Mapping) string { return strconv.Itoa(m.CRMStageID) }},
	{header: "CRM Stage", value: func(m dealstage.Mapping) string { return m.CRMStageName }},
	{header: "Zime Category", value: func(m dealstage.Mapping) string { return m.CategoryName }},
	{header: "Confirmed By", value: func(m dealstage.Mapping) string { return m.ConfirmedBy }},
	{header: "Confirmed At", value: func(m dealstage.Mapping) string {
		if m.ConfirmedAt.IsZero() {
			return ""
		}
		return m.ConfirmedAt.UTC().Format("2006-01-02 15:04")
	}},
}

// renderMappings draws confirmed mappings as a table with a stage count footer.
func renderMappings(mappings []dealstage.Mapping) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, 0, len(mappingColumns))
	configs := make([]table.ColumnConfig, 0, len(mappingColumns))
	for i, col := range mappingColumns {
		header = append(header, col.header)
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       col.align,
			AlignHeader: text.AlignLeft,
			AutoMerge:   col.merge,
		})
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, m := range mappings {
		row := make(table.Row, 0, len(mappingColumns))
		for _, col := range mappingColumns {
			row = append(row, col.value(m))
		}
		tw.AppendRow(row)
	}

	footer := table.Row{fmt.Sprintf("%d stages", len(mappings))}
	for len(footer) < len(mappingColumns) {
		footer = append(footer, "")
	}
	tw.AppendFooter(footer)

	return tw.Render()
}
