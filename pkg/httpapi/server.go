// Package httpapi implements the gateway's external HTTP surface: the
// manifest-aware content routes, the raw byte route, and the rate-limit
// admin surface.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"lukechampine.com/blake3"

	"github.com/weavegate/gateway/pkg/admission"
	"github.com/weavegate/gateway/pkg/constants"
	"github.com/weavegate/gateway/pkg/datasource"
	"github.com/weavegate/gateway/pkg/gatewayerr"
	"github.com/weavegate/gateway/pkg/identifier"
	"github.com/weavegate/gateway/pkg/manifest"
	"github.com/weavegate/gateway/pkg/nameresolve"
	"github.com/weavegate/gateway/pkg/ratelimit"
	"github.com/weavegate/gateway/pkg/region"
)

const manifestContentType = "application/x.arweave-manifest+json"

// Config wires the HTTP surface's collaborators.
type Config struct {
	Content      *datasource.Composite
	Gate         *admission.Gate
	Limiter      *ratelimit.Limiter
	Manifest     manifest.Resolver   // optional
	Names        nameresolve.Resolver // optional
	AdminKey     string
	MaxHops      uint32
	Log          *logrus.Entry
}

// Server is the gateway's HTTP surface.
type Server struct {
	cfg    Config
	router chi.Router
}

// New builds a Server with all routes registered.
func New(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.MaxHops == 0 {
		cfg.MaxHops = constants.DefaultMaxHops
	}

	s := &Server{cfg: cfg}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	contentCORS := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	})

	r.Group(func(r chi.Router) {
		r.Use(contentCORS.Handler)
		r.Get("/{id}", s.handleManifestAware)
		r.Get("/{id}/{subpath}", s.handleSubpath)
	})

	r.Get("/raw/{id}", s.handleRaw)

	r.Get("/weave/rate-limit/ip/{ip}", s.handleGetIPBucket)
	r.Get("/weave/rate-limit/resource", s.handleGetResourceBucket)
	r.Post("/weave/rate-limit/ip/{ip}", s.handleTopOffIPBucket)
	r.Post("/weave/rate-limit/resource", s.handleTopOffResourceBucket)

	return r
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	securityHeaders(w)
	s.serveContent(w, r, chi.URLParam(r, "id"), true)
}

func (s *Server) handleManifestAware(w http.ResponseWriter, r *http.Request) {
	s.serveContent(w, r, chi.URLParam(r, "id"), false)
}

func (s *Server) handleSubpath(w http.ResponseWriter, r *http.Request) {
	manifestID := chi.URLParam(r, "id")
	subpath := chi.URLParam(r, "subpath")

	if s.cfg.Manifest == nil {
		writeError(w, gatewayerr.New(gatewayerr.KindNotFound, "manifest resolution not configured"))
		return
	}
	innerID, err := s.cfg.Manifest.ResolveSubpath(r.Context(), manifestID, subpath)
	if err != nil {
		writeError(w, err)
		return
	}
	s.serveContent(w, r, innerID, false)
}

// serveContent is the shared path for /{id} and /raw/{id}: resolve name,
// validate identifier, run admission, fetch, range, and cache-validate.
func (s *Server) serveContent(w http.ResponseWriter, r *http.Request, id string, raw bool) {
	resolvedName := id
	if s.cfg.Names != nil && !identifier.Valid(id) {
		resolved, err := s.cfg.Names.Resolve(r.Context(), id)
		if err != nil {
			writeError(w, gatewayerr.Wrap(gatewayerr.KindNotFound, "name did not resolve", id, err))
			return
		}
		id = resolved
	}

	if err := identifier.Validate(id); err != nil {
		writeError(w, err)
		return
	}

	attrs := attributesFromRequest(r)
	if attrs.Hops >= s.cfg.MaxHops {
		writeError(w, gatewayerr.New(gatewayerr.KindUnsatisfiable, "hop limit exceeded"))
		return
	}

	etag := contentETag(id)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		stripCacheValidationHeaders(w)
		return
	}

	ranges, hasRange := region.ParseRangeHeader(r.Header.Get("Range"))
	s.serveResolvedRange(w, r, id, resolvedName, attrs, raw, ranges, hasRange, etag)
}

// serveResolvedRange resolves the Range header against the content's total
// size (learned via a size probe fetch) before dispatching to a single-
// range or multipart response. Any Range header needs the total to produce
// a correct "Content-Range: bytes start-end/total" value, so there is no
// shortcut that skips the probe.
func (s *Server) serveResolvedRange(w http.ResponseWriter, r *http.Request, id, resolvedName string, attrs datasource.RequestAttributes, raw bool, ranges []region.Range, hasRange bool, etag string) {
	if !hasRange {
		s.fetchAndWrite(w, r, id, resolvedName, attrs, raw, nil, 0, etag)
		return
	}

	total, err := s.probeSize(r.Context(), id, resolvedName, attrs)
	if err != nil {
		writeError(w, err)
		return
	}

	if len(ranges) == 1 {
		reg, err := ranges[0].Resolve(total)
		if err != nil {
			writeRangeError(w, err, total)
			return
		}
		s.fetchAndWrite(w, r, id, resolvedName, attrs, raw, &reg, total, etag)
		return
	}

	s.serveMultipart(w, r, id, resolvedName, attrs, ranges, total, etag)
}

// probeSize learns the content's total size by fetching the full object
// and immediately closing the stream without reading its body.
func (s *Server) probeSize(ctx context.Context, id, resolvedName string, attrs datasource.RequestAttributes) (uint64, error) {
	data, err := s.cfg.Content.Fetch(ctx, datasource.Request{ID: id, Attributes: attrs})
	if err != nil {
		return 0, err
	}
	data.Stream.Close()
	return data.Size, nil
}

func (s *Server) fetchAndWrite(w http.ResponseWriter, r *http.Request, id, resolvedName string, attrs datasource.RequestAttributes, raw bool, reg *region.Region, total uint64, etag string) {
	var regionCopy *region.Region
	if reg != nil {
		rc := *reg
		regionCopy = &rc
	}

	data, err := s.cfg.Content.Fetch(r.Context(), datasource.Request{ID: id, Region: regionCopy, Attributes: attrs})
	if err != nil {
		writeError(w, err)
		return
	}
	defer data.Stream.Close()

	decision := s.admit(r, resolvedName, data.Size)
	if decision != nil && !decision.Allowed {
		writeDenied(w, decision)
		return
	}

	if !raw {
		contentType := data.SourceContentType
		if contentType == manifestContentType && s.cfg.Manifest == nil {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
	} else {
		w.Header().Set("Content-Type", data.SourceContentType)
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", cacheControlFor(data))

	written := uint64(0)
	if reg != nil {
		w.Header().Set("Content-Range", reg.ContentRangeHeader(total))
		w.Header().Set("Content-Length", strconv.FormatUint(reg.Size, 10))
		w.WriteHeader(http.StatusPartialContent)
		n, _ := io.Copy(w, data.Stream)
		written = uint64(n)
	} else {
		w.Header().Set("Content-Length", strconv.FormatUint(data.Size, 10))
		w.WriteHeader(http.StatusOK)
		n, _ := io.Copy(w, data.Stream)
		written = uint64(n)
	}

	if decision != nil {
		decision.Finish(written)
	}
}

func (s *Server) serveMultipart(w http.ResponseWriter, r *http.Request, id, resolvedName string, attrs datasource.RequestAttributes, ranges []region.Range, total uint64, etag string) {
	boundary := generateBoundary(id)
	w.Header().Set("Content-Type", fmt.Sprintf("multipart/byteranges; boundary=%s", boundary))
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusPartialContent)

	var totalWritten uint64
	for _, rg := range ranges {
		reg, err := rg.Resolve(total)
		if err != nil {
			continue
		}
		data, err := s.cfg.Content.Fetch(r.Context(), datasource.Request{ID: id, Region: &reg, Attributes: attrs})
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "--%s\r\nContent-Range: %s\r\n\r\n", boundary, reg.ContentRangeHeader(total))
		n, _ := io.Copy(w, data.Stream)
		data.Stream.Close()
		totalWritten += uint64(n)
		io.WriteString(w, "\r\n")
	}
	fmt.Fprintf(w, "--%s--\r\n", boundary)

	if decision := s.admit(r, resolvedName, totalWritten); decision != nil && decision.Allowed {
		decision.Finish(totalWritten)
	}
}

// generateBoundary produces a deterministic 50-char boundary beginning
// with at least 26 dashes followed by hex digits.
func generateBoundary(id string) string {
	sum := blake3.Sum256([]byte(id))
	hex := fmt.Sprintf("%x", sum)
	dashes := strings.Repeat("-", constants.MultipartBoundaryDashes)
	boundary := dashes + hex
	if len(boundary) > constants.MultipartBoundaryLength {
		boundary = boundary[:constants.MultipartBoundaryLength]
	}
	return boundary
}

func contentETag(id string) string {
	sum := blake3.Sum256([]byte(id))
	return fmt.Sprintf("%q", fmt.Sprintf("%x", sum[:16]))
}

// cacheControlFor treats Merkle-verified or tier-trusted content as stable
// (immutable, long max-age) and anything else as unstable.
func cacheControlFor(data *datasource.ContiguousData) string {
	if data.Verified || data.Trusted {
		return constants.StableCacheControl
	}
	return constants.UnstableCacheControl
}

func (s *Server) admit(r *http.Request, resolvedName string, declaredSize uint64) *admission.Decision {
	if s.cfg.Gate == nil {
		return nil
	}
	return s.cfg.Gate.Admit(r.Context(), admission.FromHTTP(r, resolvedName, declaredSize))
}

func writeDenied(w http.ResponseWriter, d *admission.Decision) {
	if d.PaymentResp != "" {
		w.Header().Set("X-Payment-Response", d.PaymentResp)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(d.StatusCode)
	if len(d.Body) > 0 {
		w.Write(d.Body)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeRangeError(w, err, 0)
}

// writeRangeError is writeError plus, for a KindUnsatisfiable error arising
// from range resolution against a known total size, the mandatory
// "Content-Range: bytes */total" header. total is 0 for non-range callers,
// in which case no Content-Range is set.
func writeRangeError(w http.ResponseWriter, err error, total uint64) {
	status := http.StatusInternalServerError
	switch {
	case gatewayerr.Is(err, gatewayerr.KindInvalidIdentifier):
		status = http.StatusBadRequest
	case gatewayerr.Is(err, gatewayerr.KindNotFound):
		status = http.StatusNotFound
		w.Header().Set("Cache-Control", constants.NotFoundCacheControl)
	case gatewayerr.Is(err, gatewayerr.KindUnsatisfiable):
		status = http.StatusRequestedRangeNotSatisfiable
		if total > 0 {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", total))
		}
	case gatewayerr.Is(err, gatewayerr.KindPaymentRequired):
		status = http.StatusPaymentRequired
	case gatewayerr.Is(err, gatewayerr.KindRateLimited):
		status = http.StatusTooManyRequests
	case gatewayerr.Is(err, gatewayerr.KindPayloadTooLarge):
		status = http.StatusRequestEntityTooLarge
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *Server) adminAuthorized(r *http.Request) bool {
	if s.cfg.AdminKey == "" {
		return false
	}
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := strings.TrimPrefix(header, prefix)
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminKey)) == 1
}

func (s *Server) handleGetIPBucket(w http.ResponseWriter, r *http.Request) {
	ip := net.ParseIP(chi.URLParam(r, "ip"))
	if ip == nil {
		http.Error(w, "invalid ip", http.StatusBadRequest)
		return
	}
	state, ok := s.cfg.Limiter.IPBucketState(ip, nowFunc())
	if !ok {
		http.NotFound(w, r)
		return
	}
	json.NewEncoder(w).Encode(state)
}

func (s *Server) handleGetResourceBucket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state, ok := s.cfg.Limiter.ResourceBucketState(q.Get("method"), q.Get("host"), q.Get("path"), nowFunc())
	if !ok {
		http.NotFound(w, r)
		return
	}
	json.NewEncoder(w).Encode(state)
}

type topOffBody struct {
	Tokens    float64 `json:"tokens"`
	TokenType string  `json:"tokenType"`
}

func (s *Server) handleTopOffIPBucket(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeTopOff(w, r) {
		return
	}
	ip := net.ParseIP(chi.URLParam(r, "ip"))
	if ip == nil {
		http.Error(w, "invalid ip", http.StatusBadRequest)
		return
	}
	body, ok := decodeTopOffBody(w, r)
	if !ok {
		return
	}
	s.cfg.Limiter.CreditIP(ip, body.Tokens, body.TokenType == "paid", nowFunc())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTopOffResourceBucket(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeTopOff(w, r) {
		return
	}
	q := r.URL.Query()
	key := ratelimit.ResourceKey(q.Get("method"), q.Get("host"), q.Get("path"))
	body, ok := decodeTopOffBody(w, r)
	if !ok {
		return
	}
	s.cfg.Limiter.CreditResource(key, body.Tokens, body.TokenType == "paid", nowFunc())
	w.WriteHeader(http.StatusNoContent)
}

// authorizeTopOff accepts either a verified X-Payment or a Bearer admin
// key.
func (s *Server) authorizeTopOff(w http.ResponseWriter, r *http.Request) bool {
	if s.adminAuthorized(r) {
		return true
	}
	if s.cfg.Gate == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	paymentHeader := r.Header.Get("X-Payment")
	if paymentHeader == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func decodeTopOffBody(w http.ResponseWriter, r *http.Request) (topOffBody, bool) {
	var body topOffBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return topOffBody{}, false
	}
	return body, true
}

var nowFunc = time.Now
