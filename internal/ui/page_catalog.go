package ui

import (
	"strconv"
	"strings"
	"time"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/macro"
	"mdl-rewrite/internal/manifest"

	. "maragu.dev/gomponents"
	data "maragu.dev/gomponents-datastar"
	. "maragu.dev/gomponents/html"
)

type modelRowData struct {
	Name       string
	PrimaryKey string
	Columns    string
	RefSQL     string
}

type metricRowData struct {
	Name        string
	BaseObject  string
	Measures    string
	RefreshTime string
	NextRefresh string
	LastStatus  string
}

type macroRowData struct {
	Name       string
	Definition string
}

type catalogPageData struct {
	Catalog       string
	Schema        string
	Models        []modelRowData
	Relationships []string
	Metrics       []metricRowData
	Macros        []macroRowData
}

func buildCatalogData(cat *manifest.Catalog, runs []domain.RefreshRun) catalogPageData {
	last := make(map[string]string, len(runs))
	for _, run := range runs {
		last[run.Metric] = run.Status
	}
	now := time.Now()

	d := catalogPageData{Catalog: cat.CatalogName(), Schema: cat.SchemaName()}
	for _, m := range cat.ListModels() {
		cols := make([]string, 0, len(m.Columns))
		for _, c := range m.Columns {
			cols = append(cols, c.Name)
		}
		d.Models = append(d.Models, modelRowData{
			Name:       m.Name,
			PrimaryKey: m.PrimaryKey,
			Columns:    strings.Join(cols, ", "),
			RefSQL:     m.RefSQL,
		})
	}
	for _, rel := range cat.ListRelationships() {
		d.Relationships = append(d.Relationships, rel.Name+": "+rel.Condition)
	}
	for _, mt := range cat.ListMetrics() {
		row := metricRowData{Name: mt.Name, BaseObject: mt.BaseObject, RefreshTime: "-", NextRefresh: "-", LastStatus: "-"}
		names := make([]string, 0, len(mt.Measures))
		for _, c := range mt.Measures {
			names = append(names, c.Name)
		}
		row.Measures = strings.Join(names, ", ")
		if mt.Cached {
			row.RefreshTime = mt.RefreshTime
			if next, ok := cat.NextRefresh(mt.Name, now); ok {
				row.NextRefresh = formatTime(next)
			}
			if status, ok := last[mt.Name]; ok {
				row.LastStatus = status
			}
		}
		d.Metrics = append(d.Metrics, row)
	}
	for _, m := range cat.ListMacros() {
		d.Macros = append(d.Macros, macroRowData{Name: m.Name, Definition: macro.FormatDefinition(m)})
	}
	return d
}

func runTone(status string) string {
	switch status {
	case domain.StatusSucceeded:
		return "success"
	case domain.StatusFailed:
		return "danger"
	}
	return "accent"
}

func catalogPage(principal string, d catalogPageData) Node {
	modelRows := make([]Node, 0, len(d.Models))
	for i := range d.Models {
		m := d.Models[i]
		modelRows = append(modelRows, Tr(data.Show(containsExpr(m.Name+" "+m.Columns)),
			Td(Strong(Text(m.Name))), Td(Text(m.PrimaryKey)), Td(Text(m.Columns)), Td(Pre(Text(m.RefSQL)))))
	}

	metricRows := make([]Node, 0, len(d.Metrics))
	for i := range d.Metrics {
		m := d.Metrics[i]
		metricRows = append(metricRows, Tr(data.Show(containsExpr(m.Name+" "+m.BaseObject+" "+m.Measures)),
			Td(Strong(Text(m.Name))), Td(Text(m.BaseObject)), Td(Text(m.Measures)), Td(Text(m.RefreshTime)),
			Td(Text(m.NextRefresh)), Td(statusLabel(m.LastStatus, runTone(m.LastStatus)))))
	}

	macroRows := make([]Node, 0, len(d.Macros))
	for i := range d.Macros {
		m := d.Macros[i]
		macroRows = append(macroRows, Tr(data.Show(containsExpr(m.Name)), Td(Strong(Text(m.Name))), Td(Pre(Text(m.Definition)))))
	}

	relItems := make([]Node, 0, len(d.Relationships))
	for _, rel := range d.Relationships {
		relItems = append(relItems, Li(data.Show(containsExpr(rel)), Text(rel)))
	}

	return page("Catalog "+d.Catalog+"."+d.Schema, principal,
		Div(data.Signals(map[string]any{"q": ""}),
			quickFilterCard("Filter by model, metric, column or macro"),
			Div(Class("card"),
				H2(Text("Models ("+strconv.Itoa(len(d.Models))+")")),
				Table(Class("data-table"),
					THead(Tr(Th(Text("Name")), Th(Text("Primary key")), Th(Text("Columns")), Th(Text("Reference SQL")))),
					TBody(Group(modelRows)),
				),
			),
			Div(Class("card"),
				H2(Text("Relationships")),
				Ul(Group(relItems)),
			),
			Div(Class("card"),
				H2(Text("Metrics ("+strconv.Itoa(len(d.Metrics))+")")),
				Table(Class("data-table"),
					THead(Tr(Th(Text("Name")), Th(Text("Base object")), Th(Text("Measures")), Th(Text("Refresh")), Th(Text("Next refresh")), Th(Text("Last run")))),
					TBody(Group(metricRows)),
				),
			),
			Div(Class("card"),
				H2(Text("Macros")),
				Table(Class("data-table"),
					THead(Tr(Th(Text("Name")), Th(Text("Definition")))),
					TBody(Group(macroRows)),
				),
			),
		),
	)
}
