package assets

//Report is the asciidoc template of a scan report
var Report = `:title-page:
:icons: font
:author: cipherscan v{{ .Version }}
:revdate: {{ .TimeStamp }}
:description: Cipher preferences of scanned TLS servers
:sectnums:
:listing-caption:

= Cipherscan Report
:source-highlighter: rouge

== Summary
This is a report of the cipher suites offered by the scanned server(s), collected on {{ .TimeStamp }}

[cols="1a,1a",%autowidth.stretch,frame=none,grid=none]
|===
|image::{{ .ProtocolChart }}[align=center, pdfwidth=3.0in]
|image::{{ .OrderingChart }}[align=center, pdfwidth=3.0in]
|===

[cols="2,5",stripes=even,%autowidth.stretch]
.Scan Metrics
|===
| Scan ID | {{ .Summary.Request.ScanID }}
| Targets requested | {{ join .Summary.Request.Targets ", " }}
| Targets scanned | {{ .Summary.Progress }} of {{ .Summary.HostCount }}
| Endpoints found | {{ len .ScanResults }}
| Endpoints negotiating TLS | {{ .Summary.TLSCount }}
| Endpoints with server side ordering | {{ .Summary.ServerSideCount }}
|===

<<<

== Details of Individual Scan Results

{{ range $index, $scan := .ScanResults }}
{{ template "SCANRESULT" $scan }}
{{ end }}

{{ define "SCANRESULT" }}
=== {{ .HumanScanResult.Target }}{{ if .HumanScanResult.ServerName }} ({{ .HumanScanResult.ServerName }}){{ end }}

{{ if .HumanScanResult.CipherSuites }}
image::{{ .Chart }}[align=center, pdfwidth=3.0in]

[cols="1,6,4,2,5,2,2,2,4", options="header", stripes=even]
|===
| Prio | Cipher Suite | Protocols | Public Key | Signature | Trusted | Ticket Hint | OCSP | PFS
{{ cipherRows .HumanScanResult.CipherSuites }}
|===

Server side ordering: {{ .HumanScanResult.ServerSide }}
{{ else }}
No cipher could be negotiated ({{ .HumanScanResult.Outcome }})
{{ end }}
{{ range $note := .HumanScanResult.Notes }}
NOTE: {{ $note }}
{{ end }}
{{ end }}
`
