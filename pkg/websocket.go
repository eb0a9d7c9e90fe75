package cipherscan

import (
	"context"
	"net/http"

	tlsmodel "github.com/adedayo/cipherscan/pkg/model"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var (
	allowedOrigins = []string{
		"localhost:12345",
	}

	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == r.Host {
					return true
				}
			}
			return false
		},
	}

	//scanners for realtime scans
	scannerFactory = func(config tlsmodel.ScanConfig) (*Scanner, error) {
		return NewScanner(config)
	}
)

//RealtimeScan reads a ScanRequest from a websocket, runs it and streams the progress back.
//A request carrying the Day and ScanID of an earlier scan resumes it after replaying what was already found.
//Scans run with the service's own configuration, adjusted only by the request's Options
func RealtimeScan(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Error(err)
		return
	}
	go func() {
		defer conn.Close()
		var request tlsmodel.ScanRequest
		if err := conn.ReadJSON(&request); err != nil {
			log.Error(err)
			return
		}

		var psr tlsmodel.PersistedScanRequest
		if request.ScanID == "" {
			psr = NewScanRequest(request.Targets, request.Options.Apply(serviceScanConfig))
			psr.Request.Options = request.Options
		} else {
			psr, err = LoadScanRequest(request.Day, request.ScanID)
			if err != nil {
				conn.WriteJSON(tlsmodel.ScanProgress{ScanID: request.ScanID, Narrative: err.Error()})
				return
			}
		}
		scanID := psr.Request.ScanID

		callback := func(position int, results []tlsmodel.ScanResult, narrative string) {
			progress := float32(100)
			if psr.HostCount > 0 {
				progress = 100 * float32(position) / float32(psr.HostCount)
			}
			if err := conn.WriteJSON(tlsmodel.ScanProgress{
				ScanID:      scanID,
				Progress:    progress,
				ScanResults: humanise(results),
				Narrative:   narrative,
			}); err != nil {
				log.Debugf("Websocket client went away: %s", err.Error())
			}
		}

		if psr.Progress > 0 {
			streamExistingResult(psr, callback)
		}

		scanner, err := scannerFactory(psr.Request.Options.Apply(serviceScanConfig))
		if err != nil {
			conn.WriteJSON(tlsmodel.ScanProgress{ScanID: scanID, Narrative: err.Error()})
			return
		}
		if err := RunScan(context.Background(), scanner, psr, callback); err != nil {
			log.Error(err)
		}
	}()
}
