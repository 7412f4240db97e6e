package report

import (
	"html/template"
)

type overlay struct {
	ID     string
	Top    int
	Right  int
	Bottom int
	Left   int
	ZIndex int
}

type page struct {
	Identifier string
	Notice     string
	Diff       template.URL
	Reference  template.URL
	Overlays   []overlay
}

// The page shows the diff image. Hovering a region reveals the reference clipped to it,
// clicking anywhere switches between the full diff and the full reference.
var pageTemplate = template.Must(template.New("report").Parse(`<html>
<head>
<meta charset="utf-8">
<title>{{.Identifier}}</title>
<script type="text/javascript">var difference = true;
function switchImage() {
  difference = !difference;
  document.getElementById('reference').style.display = difference ? 'none' : 'block';
  document.getElementById('diff').style.display = difference ? 'block' : 'none';
}</script>
</head>
<body onclick="switchImage()">
<div id="diff" style="display: block; position: absolute; top: 0px; left: 0px;"><img src="{{.Diff}}"/><span style="position: absolute; top: 0px; left: 0px; opacity: 0.4; font-weight: bold;">{{if .Notice}}{{.Notice}}{{else}}Image for this run{{end}}</span></div>
<div id="reference" style="display: none; position: absolute; top: 0px; left: 0px; z-index: 999;"><img src="{{.Reference}}"/></div>
{{- range .Overlays}}
<div onmouseover="document.getElementById({{.ID}}).style.display='block'" style="z-index: 66; position: absolute; top: 0px; left: 0px; clip: rect({{.Top}}px, {{.Right}}px, {{.Bottom}}px, {{.Left}}px);"><img src="{{$.Diff}}"/></div>
<div class="popUpDiv" id="{{.ID}}" onmouseout="this.style.display='none'" style="display: none; position: absolute; top: 0px; left: 0px; clip: rect({{.Top}}px, {{.Right}}px, {{.Bottom}}px, {{.Left}}px); z-index: {{.ZIndex}};"><img src="{{$.Reference}}"/></div>
{{- end}}
</body>
</html>
`))
