// Package admission implements the request admission gate: IP allowlist,
// resource-name allowlist, optional x402 payment verification, and the
// rate-limit check-reserve-adjust protocol.
package admission

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weavegate/gateway/pkg/hopheaders"
	"github.com/weavegate/gateway/pkg/payment"
	"github.com/weavegate/gateway/pkg/ratelimit"
)

// Config wires the gate's collaborators. Payment is optional — a nil
// Payment means the gate never asks for one and denials always map to 429.
type Config struct {
	Limiter       *ratelimit.Limiter
	Payment       payment.Processor
	NameAllowlist map[string]struct{}
	Log           *logrus.Entry
}

// Gate evaluates incoming requests against the allowlists, payment
// verification, and rate limiter, in that order.
type Gate struct {
	cfg Config
}

// New constructs a Gate.
func New(cfg Config) *Gate {
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Gate{cfg: cfg}
}

// Decision is the outcome of Admit. When Allowed is false, StatusCode and
// Body are ready to write directly to the response. When Allowed is true,
// callers must call Finish once the response has been written so the
// rate-limit reservation can be trued up.
type Decision struct {
	Allowed     bool
	StatusCode  int
	Body        []byte
	PaymentResp string

	gate        *Gate
	reservation *ratelimit.Reservation
}

// Finish applies the adjust step for actualBytes written in the response.
// A no-op if the request bypassed the rate limiter (allowlisted).
func (d *Decision) Finish(actualBytes uint64) {
	if d == nil || d.reservation == nil || d.gate.cfg.Limiter == nil {
		return
	}
	d.gate.cfg.Limiter.Adjust(d.reservation, actualBytes)
}

// AdmitRequest is the shape Admit needs from an inbound request, kept
// independent of net/http so it composes cleanly with the HTTP router's
// middleware chain.
type AdmitRequest struct {
	Method        string
	Host          string
	Path          string
	ResolvedName  string
	PaymentHeader string
	DeclaredSize  uint64
	ContentType   string
	OriginalURL   string
	ClientIPs     []net.IP
}

// FromHTTP builds an AdmitRequest from a live *http.Request.
func FromHTTP(r *http.Request, resolvedName string, declaredSize uint64) AdmitRequest {
	return AdmitRequest{
		Method:        r.Method,
		Host:          r.Host,
		Path:          r.URL.Path,
		ResolvedName:  resolvedName,
		PaymentHeader: r.Header.Get(hopheaders.Payment),
		DeclaredSize:  declaredSize,
		ContentType:   r.Header.Get("Content-Type"),
		OriginalURL:   r.URL.String(),
		ClientIPs:     ExtractIPs(r),
	}
}

// Admit runs the full gate sequence for req.
func (g *Gate) Admit(ctx context.Context, req AdmitRequest) *Decision {
	for _, ip := range req.ClientIPs {
		if g.cfg.Limiter != nil && g.cfg.Limiter.Allowed(ip) {
			return &Decision{Allowed: true, gate: g}
		}
	}

	if _, ok := g.cfg.NameAllowlist[req.ResolvedName]; ok {
		return &Decision{Allowed: true, gate: g}
	}

	paymentVerified := false
	var paymentResponseHeader string

	if g.cfg.Payment != nil && req.PaymentHeader != "" {
		requirements := payment.Requirements{
			ContentSize: req.DeclaredSize,
			Protocol:    "https",
			Host:        req.Host,
			OriginalURL: req.OriginalURL,
			ContentType: req.ContentType,
		}

		verified, err := g.cfg.Payment.Verify(ctx, req.PaymentHeader, requirements)
		if err != nil {
			return g.paymentRequiredDecision(requirements)
		}
		receipt, err := g.cfg.Payment.Settle(ctx, verified)
		if err != nil {
			return g.paymentRequiredDecision(requirements)
		}
		paymentVerified = true
		paymentResponseHeader = receipt.Header

		if g.cfg.Limiter != nil && len(req.ClientIPs) > 0 {
			g.cfg.Limiter.TopOff(req.ClientIPs[0], ratelimit.ResourceKey(req.Method, req.Host, req.Path), req.DeclaredSize, nowFunc())
		}
	}

	if g.cfg.Limiter == nil || len(req.ClientIPs) == 0 {
		return &Decision{Allowed: true, gate: g}
	}

	resourceKey := ratelimit.ResourceKey(req.Method, req.Host, req.Path)
	reservation, _, ok := g.cfg.Limiter.Check(req.ClientIPs[0], resourceKey, req.DeclaredSize, nowFunc())
	if !ok {
		if g.cfg.Payment == nil || paymentVerified {
			return &Decision{Allowed: false, StatusCode: http.StatusTooManyRequests, gate: g}
		}
		return g.paymentRequiredDecision(payment.Requirements{
			ContentSize: req.DeclaredSize,
			Protocol:    "https",
			Host:        req.Host,
			OriginalURL: req.OriginalURL,
			ContentType: req.ContentType,
		})
	}

	return &Decision{
		Allowed:     true,
		PaymentResp: paymentResponseHeader,
		gate:        g,
		reservation: reservation,
	}
}

func (g *Gate) paymentRequiredDecision(req payment.Requirements) *Decision {
	body, err := json.Marshal(req)
	if err != nil {
		body = []byte(`{}`)
	}
	return &Decision{
		Allowed:    false,
		StatusCode: http.StatusPaymentRequired,
		Body:       body,
		gate:       g,
	}
}

// nowFunc is an indirection point for tests; production code always uses
// time.Now.
var nowFunc = time.Now
