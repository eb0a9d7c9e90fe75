package cipherscan

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	cidrlib "github.com/adedayo/cidr"
	tlsmodel "github.com/adedayo/cipherscan/pkg/model"
	portscan "github.com/adedayo/tcpscan"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	//DefaultPort is scanned when a target does not name one
	DefaultPort = "443"
	//number of endpoints of a range scanned at the same time
	parallelTargets = 16
)

//ParseHostPort reads host, host:port, [ipv6]:port or a bare IPv6 address
func ParseHostPort(target string) (tlsmodel.HostAndPort, error) {
	target = strings.TrimSpace(target)
	host, port := target, DefaultPort
	if strings.HasPrefix(target, "[") || strings.Count(target, ":") == 1 {
		h, p, err := net.SplitHostPort(target)
		if err != nil {
			return tlsmodel.HostAndPort{}, errors.Wrapf(err, "bad target %q", target)
		}
		host, port = h, p
	}
	if host == "" {
		return tlsmodel.HostAndPort{}, errors.Errorf("bad target %q: no host", target)
	}
	if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
		return tlsmodel.HostAndPort{}, errors.Errorf("bad target %q: invalid port %q", target, port)
	}
	return tlsmodel.HostAndPort{Hostname: host, Port: port}, nil
}

//Scan scans a target: a single endpoint (host, host:port) or a range,
//either ip:port/mask with the port given or a bare CIDR whose open ports are discovered first
func (s *Scanner) Scan(ctx context.Context, target string) <-chan tlsmodel.ScanResult {
	if strings.Contains(target, "/") {
		return s.ScanCIDR(ctx, target)
	}
	hostPort, err := ParseHostPort(target)
	if err != nil {
		log.Error(err)
		out := make(chan tlsmodel.ScanResult)
		close(out)
		return out
	}
	return s.scanHost(ctx, hostPort, "")
}

//ScanCIDR combines a port scan with a cipher scan for a CIDR range and returns the results over a channel.
//If ports are specified (ip:port/mask) no port scan is done
func (s *Scanner) ScanCIDR(ctx context.Context, cidr string) <-chan tlsmodel.ScanResult {
	scanResults := make(chan tlsmodel.ScanResult)
	go func() {
		defer close(scanResults)
		var acks <-chan portscan.PortACK
		if strings.Count(cidr, ":") == 1 {
			acks = generateFakeACKs(cidr)
		} else {
			acks = portscan.ScanCIDR(portscan.ScanConfig{
				Timeout:          s.config.Timeout,
				PacketsPerSecond: s.config.PacketsPerSecond,
				Quiet:            true,
			}, cidr)
		}

		scanned := make(map[string]bool)
		slots := make(chan struct{}, parallelTargets)
		resultChannels := []<-chan tlsmodel.ScanResult{}
		for ack := range acks {
			if !ack.IsOpen() {
				continue
			}
			hostPort := tlsmodel.HostAndPort{
				Hostname: ack.Host,
				Port:     strings.Split(ack.Port, "(")[0],
			}
			if scanned[hostPort.String()] {
				continue
			}
			scanned[hostPort.String()] = true
			resultChannels = append(resultChannels, s.scanHostWithSlot(ctx, hostPort, slots))
		}
		for res := range MergeResultChannels(resultChannels...) {
			scanResults <- res
		}
	}()
	return scanResults
}

func (s *Scanner) scanHost(ctx context.Context, hostPort tlsmodel.HostAndPort, serverName string) <-chan tlsmodel.ScanResult {
	out := make(chan tlsmodel.ScanResult, 1)
	go func() {
		defer close(out)
		out <- s.ScanTarget(ctx, hostPort, serverName)
	}()
	return out
}

func (s *Scanner) scanHostWithSlot(ctx context.Context, hostPort tlsmodel.HostAndPort, slots chan struct{}) <-chan tlsmodel.ScanResult {
	out := make(chan tlsmodel.ScanResult, 1)
	go func() {
		defer close(out)
		slots <- struct{}{}
		defer func() { <-slots }()
		out <- s.ScanTarget(ctx, hostPort, "")
	}()
	return out
}

func generateFakeACKs(cidr string) <-chan portscan.PortACK {
	output := make(chan portscan.PortACK)
	go func() {
		defer close(output)
		cidrRange, ports, err := cidrlib.ExpandWithPort(cidr)
		if err != nil {
			log.Errorf("Bad CIDR %s: %s", cidr, err.Error())
			return
		}
		for _, pp := range ports {
			port := fmt.Sprintf("%d", pp)
			for _, host := range cidrRange {
				output <- portscan.PortACK{
					Host: host,
					Port: port,
					SYN:  true,
				}
			}
		}
	}()
	return output
}

//MergeResultChannels fans in scan results
func MergeResultChannels(channels ...<-chan tlsmodel.ScanResult) <-chan tlsmodel.ScanResult {
	var wg sync.WaitGroup
	out := make(chan tlsmodel.ScanResult)
	output := func(c <-chan tlsmodel.ScanResult) {
		for n := range c {
			out <- n
		}
		wg.Done()
	}
	wg.Add(len(channels))
	for _, c := range channels {
		go output(c)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
