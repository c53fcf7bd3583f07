// Package hopheaders names the per-request metadata headers propagated to
// upstreams as a request is forwarded hop to hop.
package hopheaders

const (
	Hops          = "X-Weave-Hops"
	Origin        = "X-Weave-Origin"
	OriginRelease = "X-Weave-Origin-Release"
	ArNSName      = "X-Weave-ArNS-Name"
	ArNSBasename  = "X-Weave-ArNS-Basename"
	ArNSRecord    = "X-Weave-ArNS-Record"

	Payment         = "X-Payment"
	PaymentResponse = "X-Payment-Response"
)
