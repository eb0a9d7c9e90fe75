package cipherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	tlsmodel "github.com/adedayo/cipherscan/pkg/model"
	"github.com/adedayo/cipherscan/pkg/reports/asciidoc"
	"github.com/carlescere/scheduler"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

var (
	//ConfigPath is the default config path of the cipherscan service
	ConfigPath = filepath.FromSlash(".cipherscan/config/CipherScanConfig.yml")
	//Version is stamped on generated reports
	Version    = "0.0.0"
	routes     = mux.NewRouter()
	//scheduled scans do not overlap
	runLock sync.Mutex
	//settings of every scan started over the API
	serviceScanConfig = tlsmodel.ScanConfig{}.WithDefaults()
)

func init() {
	if path, err := homedir.Expand(filepath.FromSlash("~/.cipherscan/config/CipherScanConfig.yml")); err == nil {
		ConfigPath = path
	}
	AddCipherScanRoutes(routes)
}

//AddCipherScanRoutes adds the cipherscan service's routes to an existing router setup
func AddCipherScanRoutes(r *mux.Router) {
	r.HandleFunc("/scan", RealtimeScan).Methods("GET")
	r.HandleFunc("/listscans/{rewind}", getScanRequests).Methods("GET")
	r.HandleFunc("/getscandata/{date}/{scanID}", getScanData).Methods("GET")
	r.HandleFunc("/getscansummaries/{rewind}", getScanSummaries).Methods("GET")
	r.HandleFunc("/getscanreport/{date}/{scanID}", getScanReport).Methods("GET")
}

//Service schedules the scans of the configuration file and serves the API
func Service(configPath string) error {
	log.Info("Running cipherscan service ...")
	ConfigPath = configPath
	config, err := LoadServiceConfig(configPath)
	if err != nil {
		return err
	}
	serviceScanConfig = config.Scan
	if err := ScheduleScans(config); err != nil {
		return err
	}
	return ServeAPI(config.ServicePort)
}

//ServeAPI provides a TLS API endpoint for interacting with cipherscan on the given port
func ServeAPI(port int) error {
	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins([]string{"http://localhost:4200",
			fmt.Sprintf("https://localhost:%d", port)}),
		handlers.AllowedMethods([]string{"GET", "HEAD", "POST"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "Accept",
			"Accept-Language", "Origin"}),
		handlers.AllowCredentials(),
	}
	certFile, keyFile, err := genCerts()
	if err != nil {
		return errors.Wrap(err, "preparing API certificate")
	}
	allowedOrigins = append(allowedOrigins, fmt.Sprintf("localhost:%d", port))
	log.Infof("Serving the cipherscan API on port %d", port)
	return http.ListenAndServeTLS(fmt.Sprintf(":%d", port), certFile, keyFile, handlers.CORS(corsOptions...)(routes))
}

func getScanRequests(w http.ResponseWriter, req *http.Request) {
	json.NewEncoder(w).Encode(ListScans(rewind(req)))
}

func getScanData(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	json.NewEncoder(w).Encode(GetScanData(vars["date"], vars["scanID"]))
}

func getScanSummaries(w http.ResponseWriter, req *http.Request) {
	json.NewEncoder(w).Encode(GetScanSummaries(rewind(req)))
}

func getScanReport(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	summary, err := GetScanSummary(vars["date"], vars["scanID"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	dir, err := ioutil.TempDir("", "cipherscan-report")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(dir)
	report, err := asciidoc.GenerateReport(summary, GetScanData(vars["date"], vars["scanID"]), Version, dir)
	if err != nil {
		log.Error(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(report)))
	http.ServeFile(w, req, report)
}

func rewind(req *http.Request) int {
	if r, err := strconv.Atoi(mux.Vars(req)["rewind"]); err == nil {
		return r
	}
	return 365
}

//LoadServiceConfig reads the YAML service configuration
func LoadServiceConfig(path string) (config tlsmodel.ServiceConfig, e error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return config, errors.Wrapf(err, "reading %s", path)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, errors.Wrapf(err, "parsing %s", path)
	}
	if config.ServicePort == 0 {
		config.ServicePort = 12345
	}
	config.Scan = config.Scan.WithDefaults()
	return config, nil
}

//ScheduleScans runs a scan of the configured targets at each daily schedule. Outside
//production the scan runs every two hours instead
func ScheduleScans(config tlsmodel.ServiceConfig) error {
	scanJob := func() {
		if err := runScheduledScan(config); err != nil {
			log.Error(err)
		}
	}
	if !config.IsProduction {
		if _, err := scheduler.Every(2).Hours().Run(scanJob); err != nil {
			return errors.Wrap(err, "scheduling scan")
		}
		return nil
	}
	for _, t := range config.DailySchedules {
		log.Infof("Scheduling daily scan at %s", t)
		if _, err := scheduler.Every().Day().At(t).Run(scanJob); err != nil {
			return errors.Wrapf(err, "scheduling scan at %s", t)
		}
	}
	return nil
}

func runScheduledScan(config tlsmodel.ServiceConfig) error {
	if len(config.Targets) == 0 {
		return nil
	}
	scanner, err := NewScanner(config.Scan)
	if err != nil {
		return err
	}
	psr := NewScanRequest(config.Targets, config.Scan)
	return RunScan(context.Background(), scanner, psr, nil)
}

//NewScanRequest starts a fresh scan of targets
func NewScanRequest(targets []string, config tlsmodel.ScanConfig) tlsmodel.PersistedScanRequest {
	now := time.Now()
	return tlsmodel.PersistedScanRequest{
		Request: tlsmodel.ScanRequest{
			Day:     now.Format(dayFormat),
			ScanID:  GetNextScanID(),
			Targets: targets,
			Config:  config,
		},
		Hosts:     targets,
		HostCount: len(targets),
		ScanStart: now,
	}
}

//RunScan scans every target of a scan request not yet covered by its progress, persisting results
//as it goes. The callback, if any, receives the results of each target
func RunScan(ctx context.Context, scanner *Scanner, psr tlsmodel.PersistedScanRequest,
	callback func(position int, results []tlsmodel.ScanResult, narrative string)) error {
	runLock.Lock()
	defer runLock.Unlock()

	var result *multierror.Error
	if err := PersistScanRequest(psr); err != nil {
		result = multierror.Append(result, err)
	}
	for index, target := range psr.Hosts {
		position := index + 1
		if position <= psr.Progress {
			continue
		}
		if ctx.Err() != nil {
			result = multierror.Append(result, ctx.Err())
			break
		}
		scanResults := []tlsmodel.ScanResult{}
		for r := range scanner.Scan(ctx, target) {
			scanResults = append(scanResults, r)
		}
		sort.Sort(tlsmodel.ScanResultSorter(scanResults))
		if err := PersistScans(psr, target, scanResults); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "persisting %s", target))
		}

		psr.Progress = position
		psr.ScanEnd = time.Now()
		if err := PersistScanRequest(psr); err != nil {
			result = multierror.Append(result, err)
		}
		if callback != nil {
			narrative := fmt.Sprintf("Finished scan of %s. Progress %f%% %d hosts of a total of %d in %f seconds\n",
				target, 100*float32(position)/float32(psr.HostCount), position, psr.HostCount, psr.ScanEnd.Sub(psr.ScanStart).Seconds())
			callback(position, scanResults, narrative)
		}
	}
	CompactDB(psr.Request.Day, psr.Request.ScanID)
	return result.ErrorOrNil()
}
