package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ivlev/phrase2video/internal/timeline"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// maxPhraseWidth truncates segment text in the timeline table.
const maxPhraseWidth = 48

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func renderTimeline(tl *timeline.Timeline) string {
	headers := []string{"#", "Start", "End", "Image", "Score", "Segment"}
	aligns := []columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignRight, alignLeft}

	rows := make([][]string, 0, len(tl.Scenes))
	for i, s := range tl.Scenes {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%.3f", s.Start),
			fmt.Sprintf("%.3f", s.End),
			s.Image,
			fmt.Sprintf("%.1f", s.Source.Similarity),
			text.Trim(s.Source.SegmentText, maxPhraseWidth),
		})
	}
	return renderTable(headers, rows, aligns)
}
