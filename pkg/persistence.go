package cipherscan

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
	"time"

	tlsmodel "github.com/adedayo/cipherscan/pkg/model"
	"github.com/dgraph-io/badger"
	"github.com/gofrs/uuid"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	dayFormat           = "2006-01-02"
	baseScanDBDirectory = filepath.FromSlash(".cipherscan/scan")
	//badger holds a directory lock per open database
	dbLock sync.Mutex
)

func init() {
	if dir, err := homedir.Expand(filepath.FromSlash("~/.cipherscan/scan")); err == nil {
		baseScanDBDirectory = dir
	}
}

//SetDataDirectory changes where scan requests and results are persisted
func SetDataDirectory(dir string) {
	dbLock.Lock()
	defer dbLock.Unlock()
	baseScanDBDirectory = dir
}

func openDB(dir string) (*badger.DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", dir)
	}
	opts := badger.DefaultOptions(dir).
		WithNumVersionsToKeep(1).
		WithLogger(log.StandardLogger())
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", dir)
	}
	return db, nil
}

func requestDir(day, scanID string) string {
	return filepath.Join(baseScanDBDirectory, day, scanID, "request")
}

func resultDir(day, scanID string) string {
	return filepath.Join(baseScanDBDirectory, day, scanID)
}

//ListScans returns the scan requests persisted in the last rewindDays days
func ListScans(rewindDays int) (result []tlsmodel.ScanRequest) {
	for _, psr := range listPersistedScans(rewindDays) {
		result = append(result, psr.Request)
	}
	return
}

func listPersistedScans(rewindDays int) (result []tlsmodel.PersistedScanRequest) {
	if rewindDays < 0 {
		log.Warn("The number of days in the past must be non-negative.")
		return
	}
	dirs, err := ioutil.ReadDir(baseScanDBDirectory)
	if err != nil {
		log.Debug(err)
		return
	}

	allowedDates := make(map[string]bool)
	today := time.Now()
	for d := rewindDays; d >= 0; d-- {
		allowedDates[today.AddDate(0, 0, -1*d).Format(dayFormat)] = true
	}

	for _, d := range dirs {
		day := d.Name()
		if !allowedDates[day] {
			continue
		}
		scans, err := ioutil.ReadDir(filepath.Join(baseScanDBDirectory, day))
		if err != nil {
			log.Error(err)
			continue
		}
		for _, sID := range scans {
			if psr, err := LoadScanRequest(day, sID.Name()); err == nil {
				result = append(result, psr)
			}
		}
	}
	return
}

//GetScanSummaries summarises the scans of the last rewindDays days
func GetScanSummaries(rewindDays int) []tlsmodel.ScanSummary {
	summaries := []tlsmodel.ScanSummary{}
	for _, psr := range listPersistedScans(rewindDays) {
		summaries = append(summaries, summarise(psr))
	}
	return summaries
}

//GetScanSummary summarises a single persisted scan
func GetScanSummary(day, scanID string) (tlsmodel.ScanSummary, error) {
	psr, err := LoadScanRequest(day, scanID)
	if err != nil {
		return tlsmodel.ScanSummary{}, err
	}
	return summarise(psr), nil
}

func summarise(psr tlsmodel.PersistedScanRequest) tlsmodel.ScanSummary {
	summary := tlsmodel.ScanSummary{
		Request:   psr.Request,
		HostCount: psr.HostCount,
		Progress:  psr.Progress,
		ScanStart: psr.ScanStart,
		ScanEnd:   psr.ScanEnd,
	}
	streamExistingResult(psr, func(_ int, results []tlsmodel.ScanResult, _ string) {
		summary.Count(results)
	})
	return summary
}

//GetScanData returns all the results of a persisted scan
func GetScanData(day, scanID string) []tlsmodel.HumanScanResult {
	out := []tlsmodel.HumanScanResult{}
	StreamScan(day, scanID, func(_, _ int, results []tlsmodel.HumanScanResult) {
		out = append(out, results...)
	})
	return out
}

//StreamScan streams the result to a callback function
func StreamScan(day, scanID string, callback func(progress, total int, results []tlsmodel.HumanScanResult)) {
	if psr, err := LoadScanRequest(day, scanID); err == nil {
		total := psr.HostCount
		streamExistingResult(psr, func(progress int, results []tlsmodel.ScanResult, narrative string) {
			callback(progress, total, humanise(results))
		})
	}
}

func humanise(in []tlsmodel.ScanResult) (out []tlsmodel.HumanScanResult) {
	for _, r := range in {
		out = append(out, r.ToStringStruct())
	}
	return
}

//streamExistingResult sends the persisted results of each target to a callback function
func streamExistingResult(psr tlsmodel.PersistedScanRequest,
	callback func(progress int, result []tlsmodel.ScanResult, narrative string)) {
	dbLock.Lock()
	defer dbLock.Unlock()
	db, err := openDB(resultDir(psr.Request.Day, psr.Request.ScanID))
	if err != nil {
		log.Error(err)
		return
	}
	defer db.Close()

	total := psr.HostCount
	position := 0
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 100
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			host := string(item.Key())
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			results, err := tlsmodel.UnmarshallScanResults(data)
			if err != nil {
				return errors.Wrapf(err, "decoding results of %s", host)
			}
			position++
			narrative := fmt.Sprintf("Finished scan of %s. Progress %f%% %d hosts of a total of %d in %f seconds\n",
				host, 100*float32(position)/float32(total), position, total, psr.ScanEnd.Sub(psr.ScanStart).Seconds())
			callback(position, results, narrative)
		}
		return nil
	})
	if err != nil {
		log.Error(err)
	}
}

//PersistScans persists the results of the scan of one target
func PersistScans(psr tlsmodel.PersistedScanRequest, target string, scans []tlsmodel.ScanResult) error {
	data, err := tlsmodel.MarshallScanResults(scans)
	if err != nil {
		return errors.Wrapf(err, "encoding results of %s", target)
	}
	dbLock.Lock()
	defer dbLock.Unlock()
	db, err := openDB(resultDir(psr.Request.Day, psr.Request.ScanID))
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(target), data)
	})
}

//LoadScanRequest retrieves a persisted scan request
func LoadScanRequest(day, scanID string) (psr tlsmodel.PersistedScanRequest, e error) {
	dir := requestDir(day, scanID)
	if _, err := os.Stat(dir); err != nil {
		return psr, errors.Wrapf(err, "no scan %s on %s", scanID, day)
	}
	dbLock.Lock()
	defer dbLock.Unlock()
	db, err := openDB(dir)
	if err != nil {
		return psr, err
	}
	defer db.Close()

	var data []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(scanID))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return psr, errors.Wrapf(err, "loading scan %s", scanID)
	}
	return tlsmodel.UnmarshallPersistedScanRequest(data)
}

//PersistScanRequest persists a scan request and its progress
func PersistScanRequest(psr tlsmodel.PersistedScanRequest) error {
	data := psr.Marshall()
	if data == nil {
		return errors.Errorf("could not encode scan request %s", psr.Request.ScanID)
	}
	dbLock.Lock()
	defer dbLock.Unlock()
	db, err := openDB(requestDir(psr.Request.Day, psr.Request.ScanID))
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(psr.Request.ScanID), data)
	})
}

//CompactDB reclaims space used by a finished scan
func CompactDB(day, scanID string) {
	dbLock.Lock()
	defer dbLock.Unlock()
	for _, dir := range []string{requestDir(day, scanID), resultDir(day, scanID)} {
		db, err := openDB(dir)
		if err != nil {
			log.Error(err)
			continue
		}
		lsmx, vlogx := db.Size()
		for db.RunValueLogGC(.8) == nil {
			lsmy, vlogy := db.Size()
			log.Debugf("Compacted %s. Before LSM: %d, VLOG: %d, After LSM: %d, VLOG: %d", dir, lsmx, vlogx, lsmy, vlogy)
			lsmx, vlogx = lsmy, vlogy
		}
		db.Close()
	}
}

//GetNextScanID returns a new unique scan ID
func GetNextScanID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return id.String()
}
