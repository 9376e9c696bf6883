package viperwolf

/*------------------------------------------------------------------
 *
 * Purpose:   	Announce the KISS over TCP service using DNS-SD
 *
 * Description:
 *
 *     Most people have typed in enough IP addresses and ports by now, and
 *     would rather just select an available TNC that is automatically
 *     discovered on the local network.  Even more so on a mobile device
 *     such an Android or iOS phone or tablet.
 *
 *     This uses the pure-Go github.com/brutella/dnssd package for
 *     mDNS/DNS-SD service announcement without requiring any system
 *     daemon or C library dependencies.
 */

import (
	"context"
	"os"
	"strings"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

const DNSSDService = "_kiss-tnc._tcp"

/* Get a default service name to publish. By default,
 * "Viperwolf on <hostname>", or just "Viperwolf" if hostname cannot
 * be obtained.
 */
func DNSSDDefaultServiceName() string {
	var hostname, hostnameErr = os.Hostname()
	if hostnameErr != nil || hostname == "" {
		return "Viperwolf"
	}

	// on some systems, an FQDN is returned; remove domain part
	hostname, _, _ = strings.Cut(hostname, ".")

	return "Viperwolf on " + hostname
}

/*------------------------------------------------------------------
 *
 * Name:	AnnounceKiss
 *
 * Purpose:	Answer DNS-SD queries for the KISS TCP port until the
 *		context is done.
 *
 * Inputs:	name	- Service instance name.  Empty for the default.
 *		port	- KISS TCP port.
 *
 *---------------------------------------------------------------*/

func AnnounceKiss(ctx context.Context, name string, port int, logger *log.Logger) error {
	logger = defaultLogger(logger).With("dns_sd", DNSSDService)

	if name == "" {
		name = DNSSDDefaultServiceName()
	}

	var cfg = dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: DNSSDService,
		Port: port,
	}

	var sv, svErr = dnssd.NewService(cfg)
	if svErr != nil {
		return errors.Wrap(svErr, "DNS-SD: failed to create service")
	}

	var rp, rpErr = dnssd.NewResponder()
	if rpErr != nil {
		return errors.Wrap(rpErr, "DNS-SD: failed to create responder")
	}

	if _, err := rp.Add(sv); err != nil {
		return errors.Wrap(err, "DNS-SD: failed to add service")
	}

	logger.Info("announcing KISS TCP", "port", port, "name", name)

	var err = rp.Respond(ctx)
	if err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "DNS-SD: responder")
	}

	return nil
}
