package ui

import (
	"strconv"
	"strings"
	"time"

	. "maragu.dev/gomponents"
	data "maragu.dev/gomponents-datastar"
	. "maragu.dev/gomponents/html"
)

const stylesheet = `body{font-family:Inter,system-ui,sans-serif;margin:0;background:#f6f8fa;color:#1f2328}
.layout{max-width:1100px;margin:0 auto;padding:24px}
.card{background:#fff;border:1px solid #d0d7de;border-radius:6px;padding:16px;margin-bottom:16px}
.data-table{width:100%;border-collapse:collapse}.data-table td,.data-table th{text-align:left;padding:6px 8px;border-bottom:1px solid #eaeef2;vertical-align:top}
.Label{border:1px solid #d0d7de;border-radius:2em;padding:0 7px;font-size:12px}.Label--success{color:#1a7f37}.Label--danger{color:#cf222e}.Label--accent{color:#0969da}
.muted{color:#656d76}pre{white-space:pre-wrap;margin:0;font-size:12px}input[type=search]{width:100%;padding:6px 8px}`

func page(title, principal string, body ...Node) Node {
	if principal == "" {
		principal = "unknown"
	}
	return HTML(
		Lang("en"),
		Head(
			Meta(Charset("utf-8")),
			Meta(Name("viewport"), Content("width=device-width, initial-scale=1")),
			TitleEl(Text(title+" | MDL")),
			Link(Rel("icon"), Href("data:,")),
			StyleEl(Raw(stylesheet)),
			Script(
				Type("module"),
				Src("https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.7/bundles/datastar.js"),
			),
		),
		Body(
			Main(Class("layout"),
				H1(Text(title)),
				P(Class("muted"), Text("Signed in as "+principal)),
				Group(body),
			),
		),
	)
}

// containsExpr is a datastar expression showing an element when the quick
// filter is empty or matches value.
func containsExpr(value string) string {
	lower := strings.ToLower(value)
	return "$q === '' || " + strconv.Quote(lower) + ".includes($q.toLowerCase())"
}

func quickFilterCard(placeholder string) Node {
	return Div(Class("card"),
		Label(Text("Quick filter")),
		Input(Type("search"), Placeholder(placeholder), data.Bind("q"), AutoComplete("off")),
	)
}

func statusLabel(text, tone string) Node {
	className := "Label"
	if tone != "" {
		className += " Label--" + tone
	}
	return Span(Class(className), Text(text))
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format(time.RFC3339)
}
