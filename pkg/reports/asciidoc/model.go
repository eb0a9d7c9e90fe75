package asciidoc

import tlsmodel "github.com/adedayo/cipherscan/pkg/model"

type reportModel struct {
	Version       string
	ProtocolChart string
	OrderingChart string
	Summary       tlsmodel.ScanSummary
	ScanResults   []scanResult
	TimeStamp     string
}

type scanResult struct {
	HumanScanResult tlsmodel.HumanScanResult
	Chart           string
}
