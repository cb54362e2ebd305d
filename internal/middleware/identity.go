package middleware

import (
	"net"

	"github.com/labstack/echo/v4"
)

// ClientIPExtractor resolves the client address from the TCP peer.  When
// trusted proxy ranges are given, X-Forwarded-For is honoured only for hops
// inside those ranges; loopback and private networks are not trusted
// implicitly.
func ClientIPExtractor(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

// clientIP is the address the abuse detector and limiters key on.  It goes
// through the echo instance's IPExtractor.
func clientIP(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return "unknown"
}
