package server

import (
	"net"
	"strconv"
)

// viewerURLs lists the URLs clients can open for a listener bound to addr.
// A wildcard bind expands to every routable interface address.
func viewerURLs(addr net.Addr, ifaces []net.Addr) []string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return []string{"http://" + addr.String() + "/"}
	}

	port := strconv.Itoa(tcp.Port)
	url := func(host string) string {
		return "http://" + net.JoinHostPort(host, port) + "/"
	}
	if !tcp.IP.IsUnspecified() {
		return []string{url(tcp.IP.String())}
	}

	var urls []string
	for _, a := range ifaces {
		n, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := n.IP
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			continue
		}
		urls = append(urls, url(ip.String()))
	}
	if len(urls) == 0 {
		urls = append(urls, url("localhost"))
	}
	return urls
}
