package transport

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
)

// mDNS service types advertised by the engine.
const (
	PublisherService = "_simengine-pub._tcp"
	CommandService   = "_simengine-cmd._tcp"
)

// DiscoveredService is an engine endpoint found via mDNS.
type DiscoveredService struct {
	ServiceName string
	Host        string
	Port        int
	TXTRecords  []string
}

// Addr returns host:port for the service.
func (s *DiscoveredService) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Discover returns the first instance of service that answers within timeout.
func Discover(service string, timeout time.Duration) (*DiscoveredService, error) {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	entriesCh := make(chan *mdns.ServiceEntry, 4)
	go func() {
		defer close(entriesCh)
		params := mdns.DefaultParams(service)
		params.Entries = entriesCh
		params.Timeout = timeout
		params.DisableIPv6 = true
		if err := mdns.Query(params); err != nil {
			slog.Debug("mDNS query failed", "service", service, "error", err)
		}
	}()

	select {
	case entry, ok := <-entriesCh:
		if !ok || entry == nil {
			return nil, fmt.Errorf("no %s service found", service)
		}

		var host string
		switch {
		case entry.AddrV4 != nil:
			host = entry.AddrV4.String()
		case entry.AddrV6 != nil:
			host = entry.AddrV6.String()
		default:
			return nil, fmt.Errorf("no valid address found for %s", entry.Name)
		}

		found := &DiscoveredService{
			ServiceName: entry.Name,
			Host:        host,
			Port:        entry.Port,
			TXTRecords:  entry.InfoFields,
		}
		slog.Info("Discovered engine service",
			"service_name", found.ServiceName,
			"host", found.Host,
			"port", found.Port,
		)
		return found, nil

	case <-time.After(timeout):
		return nil, fmt.Errorf("mDNS discovery timeout for %s", service)
	}
}

// Advertiser publishes engine endpoints over mDNS until Shutdown is called.
type Advertiser struct {
	servers []*mdns.Server
}

// Advertise announces each service type on its port under instance.
func Advertise(instance string, ports map[string]int, txt []string) (*Advertiser, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("lookup hostname: %w", err)
	}

	a := &Advertiser{}
	for service, port := range ports {
		svc, err := mdns.NewMDNSService(instance, service, "", host+".", port, nil, txt)
		if err != nil {
			a.Shutdown()
			return nil, fmt.Errorf("create mDNS service %s: %w", service, err)
		}
		server, err := mdns.NewServer(&mdns.Config{Zone: svc})
		if err != nil {
			a.Shutdown()
			return nil, fmt.Errorf("start mDNS server for %s: %w", service, err)
		}
		a.servers = append(a.servers, server)
		slog.Info("Advertising engine service", "service", service, "instance", instance, "port", port)
	}
	return a, nil
}

func (a *Advertiser) Shutdown() {
	for _, s := range a.servers {
		if err := s.Shutdown(); err != nil {
			slog.Debug("mDNS server shutdown failed", "error", err)
		}
	}
	a.servers = nil
}
