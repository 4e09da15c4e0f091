package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"subsync/pkg/contract"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

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
			WidthMax:    60,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// sentenceTable 渲染句子列表；limit>0 时只显示前 limit 句。
func sentenceTable(sents []contract.Sentence, limit int) string {
	headers := []string{"#", "开始", "结束", "原文", "译文", "匹配"}
	n := len(sents)
	if limit > 0 && n > limit {
		n = limit
	}
	rows := make([][]string, 0, n)
	for i, s := range sents[:n] {
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			clock(s.StartMs),
			clock(s.EndMs),
			s.Text,
			s.Translation,
			s.Match.String(),
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignRight, alignRight})
}

// clock 将毫秒格式化为 HH:MM:SS.mmm。
func clock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}
