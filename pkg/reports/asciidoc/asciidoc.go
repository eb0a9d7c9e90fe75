package asciidoc

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"text/template"
	"time"

	"github.com/adedayo/cipherscan/pkg/assets"
	tlsmodel "github.com/adedayo/cipherscan/pkg/model"
	"github.com/adedayo/cipherscan/pkg/openssl"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/wcharczuk/go-chart"
	"github.com/wcharczuk/go-chart/drawing"
)

var (
	asciidocExec = func() string {
		executable := "asciidoctor-pdf"
		switch runtime.GOOS {
		case "windows":
			return fmt.Sprintf("%s.exe", executable)
		default:
			return executable
		}
	}()

	funcMap = template.FuncMap{
		"cipherRows": cipherRows,
		"join":       strings.Join,
	}

	rgbaFix    = regexp.MustCompile(`rgba\((\d+,\d+,\d+),1.0\)`)
	greenStyle = chart.Style{
		FillColor:   drawing.ColorFromHex("008000"), //green
		StrokeColor: drawing.ColorFromHex("008000"),
		StrokeWidth: 0,
	}
	blueStyle = chart.Style{
		FillColor:   drawing.ColorBlue,
		StrokeColor: drawing.ColorBlue,
		StrokeWidth: 0,
	}
)

//GenerateReport writes a report of the scan results into dir and returns its path. The report is
//converted to PDF when asciidoctor-pdf is available, otherwise the asciidoc source is returned
func GenerateReport(summary tlsmodel.ScanSummary, results []tlsmodel.HumanScanResult, version, dir string) (reportPath string, err error) {
	files := []string{}
	cleanUp := func() {
		for _, file := range files {
			os.Remove(file)
		}
	}

	model := reportModel{
		Version:   version,
		Summary:   summary,
		TimeStamp: summary.ScanStart.UTC().Format(time.RFC1123),
	}

	protocolChart, err := renderBars("Protocol Support", protocolCounts(results), blueStyle)
	if err != nil {
		return reportPath, err
	}
	if model.ProtocolChart, err = generateFile(dir, []byte(protocolChart), "cipherscan_chart.*.svg"); err != nil {
		return reportPath, err
	}
	files = append(files, model.ProtocolChart)

	orderingChart, err := renderBars("Cipher Ordering", orderingCounts(results), greenStyle)
	if err != nil {
		cleanUp()
		return reportPath, err
	}
	if model.OrderingChart, err = generateFile(dir, []byte(orderingChart), "cipherscan_chart.*.svg"); err != nil {
		cleanUp()
		return reportPath, err
	}
	files = append(files, model.OrderingChart)

	for _, r := range results {
		sr := scanResult{HumanScanResult: r}
		if len(r.CipherSuites) > 0 {
			svg, err := renderBars("Ciphers per Protocol", cipherCounts(r), blueStyle)
			if err != nil {
				cleanUp()
				return reportPath, err
			}
			if sr.Chart, err = generateFile(dir, []byte(svg), "cipherscan_chart.*.svg"); err != nil {
				cleanUp()
				return reportPath, err
			}
			files = append(files, sr.Chart)
		}
		model.ScanResults = append(model.ScanResults, sr)
	}

	t, err := template.New("").Funcs(funcMap).Parse(assets.Report)
	if err != nil {
		cleanUp()
		return reportPath, err
	}
	var buf bytes.Buffer
	if err = t.Execute(&buf, model); err != nil {
		cleanUp()
		return reportPath, err
	}

	aDoc, err := generateFile(dir, buf.Bytes(), "report*.adoc")
	if err != nil {
		cleanUp()
		return reportPath, err
	}

	asciidocPath, err := exec.LookPath(asciidocExec)
	if err != nil {
		log.Warnf("%s not found in your $PATH, leaving the report as asciidoc", asciidocExec)
		return aDoc, nil
	}
	cmd := exec.Command(asciidocPath, aDoc)
	reportPath = strings.Replace(aDoc, ".adoc", ".pdf", -1)
	if out, err := cmd.CombinedOutput(); err != nil {
		return aDoc, errors.Wrap(err, string(out))
	}
	cleanUp()
	os.Remove(aDoc)
	return
}

type bar struct {
	label string
	count int
}

func renderBars(title string, bars []bar, style chart.Style) (string, error) {
	max := 1
	values := []chart.Value{}
	for _, b := range bars {
		if b.count > max {
			max = b.count
		}
		values = append(values, chart.Value{
			Label: b.label,
			Value: float64(b.count),
			Style: style,
		})
	}
	graph := chart.BarChart{
		Width:      512,
		Height:     512,
		BarWidth:   50,
		BarSpacing: 20,
		Title:      title,
		Background: chart.Style{
			Padding: chart.Box{
				Top: 40,
			},
		},
		YAxis: chart.YAxis{
			Name: "Count",
			Range: &chart.ContinuousRange{
				Max: float64(max),
				Min: 0,
			},
			ValueFormatter: func(v interface{}) string {
				if x, ok := v.(float64); ok {
					return fmt.Sprintf("%d", int64(x))
				}
				return fmt.Sprintf("%v", v)
			},
		},
		Bars: values,
	}
	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.SVG, buffer); err != nil {
		return "", err
	}
	return fixSVGColour(buffer.String()), nil
}

//protocolCounts counts the endpoints negotiating at least one cipher under each protocol
func protocolCounts(results []tlsmodel.HumanScanResult) (bars []bar) {
	for _, p := range openssl.Protocols {
		count := 0
		for _, r := range results {
			if supports(r, p.Label) {
				count++
			}
		}
		bars = append(bars, bar{label: p.Label, count: count})
	}
	return
}

func supports(r tlsmodel.HumanScanResult, protocol string) bool {
	for _, c := range r.CipherSuites {
		for _, p := range c.Protocols {
			if p == protocol {
				return true
			}
		}
	}
	return false
}

func orderingCounts(results []tlsmodel.HumanScanResult) []bar {
	server, client, none := 0, 0, 0
	for _, r := range results {
		switch {
		case len(r.CipherSuites) == 0:
			none++
		case r.ServerSide == "True":
			server++
		default:
			client++
		}
	}
	return []bar{{"Server side", server}, {"Client side", client}, {"No TLS", none}}
}

func cipherCounts(r tlsmodel.HumanScanResult) (bars []bar) {
	for _, p := range openssl.Protocols {
		count := 0
		for _, c := range r.CipherSuites {
			for _, cp := range c.Protocols {
				if cp == p.Label {
					count++
				}
			}
		}
		bars = append(bars, bar{label: p.Label, count: count})
	}
	return
}

func cipherRows(ciphers []tlsmodel.HumanCipher) (rows string) {
	for i, c := range ciphers {
		rows += fmt.Sprintf("| %d | %s | %s | %s | %s | %s | %s | %s | %s\n", i+1, c.Cipher,
			strings.Join(c.Protocols, ", "), c.PublicKey, c.SignatureAlgorithm, c.Trusted, c.TicketHint, c.OCSPStapling, c.PFS)
	}
	return
}

func fixSVGColour(svg string) string {
	return rgbaFix.ReplaceAllString(svg, "rgb($1)")
}

func generateFile(dir string, data []byte, nameGlob string) (fileName string, err error) {
	file, err := ioutil.TempFile(dir, nameGlob)
	if err != nil {
		return
	}

	if _, err = file.Write(data); err != nil {
		file.Close()
		return
	}

	if err = file.Close(); err != nil {
		return
	}

	return file.Name(), nil
}
