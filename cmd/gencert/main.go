package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/harrylevesque/invitedeliver/internal/certs"
	"github.com/harrylevesque/invitedeliver/internal/utils"
)

// gencert writes a self-signed cert.pem/key.pem so the page server can run
// over HTTPS on a LAN, where browsers otherwise refuse the camera.
func main() {
	dir := flag.String("dir", utils.GetCertDir(), "directory to write cert.pem and key.pem into")
	hosts := flag.String("host", "localhost,127.0.0.1", "comma-separated host names and IPs")
	validFor := flag.Duration("valid-for", 365*24*time.Hour, "certificate lifetime")
	flag.Parse()

	var names []string
	for _, h := range strings.Split(*hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			names = append(names, h)
		}
	}

	cm := certs.NewCertManager(*dir)
	if err := cm.GenerateSelfSigned(names, *validFor); err != nil {
		if errors.Is(err, certs.ErrExists) {
			fmt.Fprintf(os.Stderr, "Error: %v. Refusing to overwrite.\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error generating certificate: %v\n", err)
		}
		os.Exit(1)
	}
	fmt.Printf("Certificate for %s written to %s\n", strings.Join(names, ", "), cm.Dir())
}
