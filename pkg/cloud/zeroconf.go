package cloud

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/grandcat/zeroconf"
)

const (
	ZeroconfBroker  = "zeroconf"
	ZeroconfService = "_mqtt._tcp"
	ZeroconfDomain  = "local."
)

// LookupBrokerTimeout bounds the mDNS browse of LookupBroker.
var LookupBrokerTimeout = 3 * time.Second

// LookupBroker browses the local network for an MQTT broker and returns the
// first one found.
func LookupBroker(ctx context.Context, log logr.Logger) (*url.URL, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("zeroconf resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, LookupBrokerTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *url.URL, 1)
	go func() {
		for entry := range entries {
			if !strings.Contains(entry.Service, ZeroconfService) || len(entry.AddrIPv4) == 0 {
				continue
			}
			u := &url.URL{Scheme: "tcp", Host: fmt.Sprintf("%v:%v", entry.AddrIPv4[0], entry.Port)}
			log.Info("Found MQTT broker", "instance", entry.Instance, "url", u.String())
			select {
			case found <- u:
				cancel()
			default:
			}
		}
	}()

	if err := resolver.Browse(ctx, ZeroconfService, ZeroconfDomain, entries); err != nil {
		return nil, fmt.Errorf("zeroconf browse: %w", err)
	}
	<-ctx.Done()

	select {
	case u := <-found:
		return u, nil
	default:
		return nil, fmt.Errorf("no %s broker found", ZeroconfService)
	}
}
