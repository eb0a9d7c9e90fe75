// Copyright © 2019 Adedayo Adetoye (aka Dayo)
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//
// 1. Redistributions of source code must retain the above copyright notice,
//    this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright notice,
//    this list of conditions and the following disclaimer in the documentation
//    and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its contributors
//    may be used to endorse or promote products derived from this software
//    without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.


package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	cipherscan "github.com/adedayo/cipherscan/pkg"
	tlsmodel "github.com/adedayo/cipherscan/pkg/model"
	"github.com/adedayo/cipherscan/pkg/reports/asciidoc"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	app        = "cipherscan"
	appVersion = "0.0.0"
	rootCmd    = &cobra.Command{
		Use:     app,
		Short:   "Discover the cipher suites a TLS server supports, in the server's order of preference",
		Example: "cipherscan example.com\ncipherscan --starttls smtp mail.example.com:25\ncipherscan --json 10.10.10.1:443/30",
		RunE:    runner,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(version string) {
	appVersion = version
	cipherscan.Version = version
	rootCmd.Version = version
	rootCmd.Long = fmt.Sprintf(`cipherscan - Discover the cipher suites a TLS server supports, in the server's order of preference
	
	Version: %s`, version)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var output, input, service, report, opensslPath, caFile, caPath, trustDir, certsDir, serverName, startTLS string
var jsonOut, allCiphers, hideCerts, quiet, verbose bool
var timeout, delay, rate, api int

func init() {
	rootCmd.Flags().StringVar(&opensslPath, "openssl", "openssl", "path to the openssl binary used to perform handshakes")
	rootCmd.Flags().BoolVarP(&allCiphers, "all-ciphers", "a", false, "probe ALL:COMPLEMENTOFALL, including the ciphers openssl does not enable by default (default: false)")
	rootCmd.Flags().StringVar(&caFile, "cafile", "", "verify certificates against the CA bundle in FILE (PEM or PKCS#7)")
	rootCmd.Flags().StringVar(&caPath, "capath", "", "verify certificates against the CA certificates in DIR")
	rootCmd.Flags().StringVar(&trustDir, "save-trust", "", "save verified CA certificates into DIR under subject-hash aliases")
	rootCmd.Flags().StringVar(&certsDir, "save-certs", "", "save every other scanned certificate into DIR")
	rootCmd.Flags().IntVarP(&delay, "delay", "d", 0, "DELAY (in milliseconds) between consecutive handshakes")
	rootCmd.Flags().IntVarP(&timeout, "timeout", "t", 10, "TIMEOUT (in seconds) to adjust how much we are willing to wait for each handshake. Smaller timeout sacrifices accuracy for speed")
	rootCmd.Flags().StringVar(&serverName, "servername", "", "use NAME for SNI instead of the target host")
	rootCmd.Flags().StringVar(&startTLS, "starttls", "", "negotiate STARTTLS over PROTOCOL (e.g. smtp, imap, xmpp) before the handshake")
	rootCmd.Flags().BoolVarP(&jsonOut, "json", "j", false, "generate JSON output")
	rootCmd.Flags().BoolVarP(&hideCerts, "hide-certs", "c", false, "suppress certificate information in output (default: false)")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "control whether to produce a running commentary of progress or stay quiet till the end (default: false)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every handshake (default: false)")
	rootCmd.Flags().IntVarP(&rate, "rate", "r", 1000, "the rate (in packets per second) that we should use to scan for open ports in CIDR ranges")
	rootCmd.Flags().StringVar(&report, "report", ".", "write a report of the results into DIR (PDF when asciidoctor-pdf is installed)")
	rootCmd.Flag("report").NoOptDefVal = "."
	rootCmd.Flags().IntVar(&api, "api", 12345, "run as an API service on the specified port")
	rootCmd.Flags().StringVarP(&output, "output", "o", "cipherscan.txt", `write results into an output FILE`)
	rootCmd.Flag("output").NoOptDefVal = "cipherscan.txt"
	rootCmd.Flags().StringVarP(&input, "input", "i", "cipherscan_input.txt", `read the targets to scan from an input FILE separated by commas, or newlines`)
	rootCmd.Flag("input").NoOptDefVal = "cipherscan_input.txt"
	rootCmd.Flags().StringVarP(&service, "service", "s", cipherscan.ConfigPath, fmt.Sprintf("run %s as a service", app))
	rootCmd.Flag("service").NoOptDefVal = cipherscan.ConfigPath
}

func runner(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !cmd.Flag("service").Changed && !cmd.Flag("api").Changed && !cmd.Flag("input").Changed {
		return cmd.Usage()
	}
	switch {
	case verbose:
		log.SetLevel(log.DebugLevel)
	case quiet:
		log.SetLevel(log.WarnLevel)
	}

	if cmd.Flag("service").Changed { // run as a scheduled service with API
		return cipherscan.Service(service)
	}

	if cmd.Flag("api").Changed { // run as simple API service
		return cipherscan.ServeAPI(api)
	}

	if cmd.Flag("input").Changed {
		fromFile, err := getTargetsFromFile(input)
		if err != nil {
			return err
		}
		args = append(args, fromFile...)
	}
	//make the input textually unique
	deDuplicate(&args)

	config := tlsmodel.ScanConfig{
		OpenSSL:          opensslPath,
		Timeout:          timeout,
		PacketsPerSecond: rate,
		Delay:            delay,
		AllCiphers:       allCiphers,
		ServerName:       serverName,
		StartTLS:         startTLS,
		CAFile:           caFile,
		CAPath:           caPath,
		TrustDir:         trustDir,
		CertsDir:         certsDir,
		HideCerts:        hideCerts,
		Quiet:            quiet,
	}.WithDefaults()

	scanner, err := cipherscan.NewScanner(config)
	if err != nil {
		return err
	}
	if !config.Quiet {
		fmt.Printf("Starting cipherscan %s\nScanning: %s\n", appVersion, strings.Join(args, ", "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	scanStart := time.Now()
	scan := make(map[string]tlsmodel.ScanResult)
	for index, target := range args {
		start := time.Now()
		for result := range scanner.Scan(ctx, target) {
			key := result.Target()
			if _, present := scan[key]; !present {
				scan[key] = result
			}
		}
		if !config.Quiet {
			fmt.Printf("Finished scan of %s. Progress %f%% %d targets of a total of %d in %f seconds\n",
				target, 100*float32(index+1)/float32(len(args)), index+1, len(args), time.Since(start).Seconds())
		}
	}
	var scanResults []tlsmodel.ScanResult
	for k := range scan {
		scanResults = append(scanResults, scan[k])
	}
	sort.Sort(tlsmodel.ScanResultSorter(scanResults))

	out := io.Writer(os.Stdout)
	if cmd.Flag("output").Changed {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = io.MultiWriter(os.Stdout, f)
	}
	if jsonOut {
		err = outputJSON(out, scanResults)
	} else {
		err = outputText(out, scanResults, config)
	}
	if err != nil || !cmd.Flag("report").Changed {
		return err
	}

	summary := tlsmodel.ScanSummary{
		Request:   tlsmodel.ScanRequest{Targets: args, Config: config},
		HostCount: len(args),
		Progress:  len(args),
		ScanStart: scanStart,
		ScanEnd:   time.Now(),
	}
	summary.Count(scanResults)
	human := []tlsmodel.HumanScanResult{}
	for _, r := range scanResults {
		human = append(human, r.ToStringStruct())
	}
	reportPath, err := asciidoc.GenerateReport(summary, human, appVersion, report)
	if err != nil {
		return err
	}
	if !config.Quiet {
		fmt.Printf("Report written to %s\n", reportPath)
	}
	return nil
}

func getTargetsFromFile(input string) (args []string, err error) {
	file, err := os.Open(input)
	if err != nil {
		return args, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Split(bufio.ScanLines)
	for scanner.Scan() {
		uncommented := strings.Split(scanner.Text(), "#")[0] //get rid of comments
		for _, arg := range strings.Split(uncommented, ",") {
			v := strings.TrimSpace(arg)
			if v != "" {
				args = append(args, v)
			}
		}
	}
	return args, scanner.Err()
}

func deDuplicate(data *[]string) {
	j := 0
	found := make(map[string]bool)
	for _, x := range *data {
		if !found[x] {
			found[x] = true
			(*data)[j] = x
			j++
		}
	}
	*data = (*data)[:j]
}

func outputJSON(w io.Writer, results []tlsmodel.ScanResult) error {
	out := []tlsmodel.HumanScanResult{}
	for _, r := range results {
		out = append(out, r.ToStringStruct())
	}
	jsonData, err := json.Marshal(out)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", string(jsonData))
	return err
}

func outputText(w io.Writer, results []tlsmodel.ScanResult, config tlsmodel.ScanConfig) error {
	for _, scan := range results {
		if _, err := fmt.Fprintf(w, "%s\n", scan.ToString(config)); err != nil {
			return err
		}
	}
	return nil
}
