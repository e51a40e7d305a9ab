package capture

import (
	"bytes"
	"compress/gzip"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/regrada-ai/tracemark/internal/ca"
	"github.com/regrada-ai/tracemark/internal/config"
	"github.com/regrada-ai/tracemark/internal/trace"
)

// ForwardProxy is an HTTP CONNECT proxy that man-in-the-middles TLS to the
// allowlisted provider hosts and records the chat traffic passing through.
// Connections to any other host are tunneled untouched.
type ForwardProxy struct {
	cfg       *config.ProjectConfig
	store     trace.Store
	redactor  Redactor
	session   *Session
	proxy     *goproxy.ProxyHttpServer
	server    *http.Server
	ca        *ca.CA
	matcher   *hostMatcher
	stopAfter int
	done      chan struct{}

	mu    sync.Mutex
	count int
}

func NewForwardProxy(cfg *config.ProjectConfig, store trace.Store, redactor Redactor, session *Session) (*ForwardProxy, error) {
	caPath := cfg.Capture.CAPath
	if !ca.Exists(caPath) {
		return nil, fmt.Errorf("CA not found at %s. Run 'tracemark ca init' first", caPath)
	}
	caObj, err := ca.Load(caPath)
	if err != nil {
		return nil, fmt.Errorf("load CA: %w", err)
	}

	p := &ForwardProxy{
		cfg:      cfg,
		store:    store,
		redactor: redactor,
		session:  session,
		ca:       caObj,
		matcher:  newHostMatcher(cfg.Capture.AllowHosts),
		done:     make(chan struct{}),
	}
	p.setupProxy()
	return p, nil
}

func (p *ForwardProxy) setupProxy() {
	proxy := goproxy.NewProxyHttpServer()
	proxy.Verbose = false

	goproxy.GoproxyCa = tls.Certificate{
		Certificate: [][]byte{p.ca.Cert().Raw},
		PrivateKey:  p.ca.Key(),
		Leaf:        p.ca.Cert(),
	}

	// MITM only allowlisted hosts, tunnel the rest
	proxy.OnRequest().HandleConnect(goproxy.FuncHttpsHandler(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		if p.matcher.isAllowed(host) {
			return goproxy.MitmConnect, host
		}
		return goproxy.OkConnect, host
	}))

	proxy.OnRequest().DoFunc(p.handleRequest)
	proxy.OnResponse().DoFunc(p.handleResponse)

	proxy.Tr = &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	p.proxy = proxy
}

func (p *ForwardProxy) handleRequest(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	host := req.URL.Hostname()
	if host == "" {
		host = req.Host
	}

	if !p.matcher.isAllowed(host) {
		p.debugf("skipping %s (not in allowed hosts %v)", host, p.cfg.Capture.AllowHosts)
		return req, nil
	}
	p.debugf("capturing %s %s", req.Method, req.URL.String())

	capture := &captureContext{
		startTime: time.Now(),
		provider:  p.matcher.provider(host),
		url:       req.URL.String(),
	}
	if req.Body != nil {
		body, _ := io.ReadAll(req.Body)
		capture.requestBody = body
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	ctx.UserData = capture
	return req, nil
}

func (p *ForwardProxy) handleResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	capture, ok := ctx.UserData.(*captureContext)
	if !ok || capture == nil || resp == nil {
		return resp
	}

	var raw []byte
	if resp.Body != nil {
		raw, _ = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(raw))
	}

	doc, modelName := BuildDocument(capture.requestBody, decodeBody(raw, resp.Header))
	if len(doc.Events) == 0 {
		p.debugf("no chat events in %s, not recording", capture.url)
		return resp
	}
	if p.redactor != nil {
		p.redactor.Apply(doc)
	}

	meta, err := p.store.Save(doc, trace.Meta{
		CapturedAt: capture.startTime.UTC(),
		Source:     capture.provider,
		Model:      modelName,
		URL:        capture.url,
	})
	if err != nil {
		p.debugf("save trace: %v", err)
		return resp
	}

	if p.session != nil {
		p.session.AddTrace(meta.ID)
	}
	p.mu.Lock()
	p.count++
	reached := p.stopAfter > 0 && p.count >= p.stopAfter
	p.mu.Unlock()

	p.debugf("recorded trace %s (source: %s, model: %s, latency: %dms)",
		meta.ID, meta.Source, meta.Model, time.Since(capture.startTime).Milliseconds())

	if reached {
		go func() {
			_ = p.Stop()
		}()
	}
	return resp
}

// Start begins serving on the configured listen address. It returns
// immediately; Stop closes the listener.
func (p *ForwardProxy) Start() error {
	addr := p.cfg.Capture.Listen
	if addr == "" {
		addr = "127.0.0.1:8788"
	}
	p.server = &http.Server{
		Addr:    addr,
		Handler: p.proxy,
	}
	go func() {
		_ = p.server.ListenAndServe()
		close(p.done)
	}()
	return nil
}

func (p *ForwardProxy) Stop() error {
	if p.server == nil {
		return nil
	}
	return p.server.Close()
}

// Done is closed once the server has stopped serving.
func (p *ForwardProxy) Done() <-chan struct{} {
	return p.done
}

func (p *ForwardProxy) TraceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func (p *ForwardProxy) Session() *Session {
	return p.session
}

// SetStopAfter makes the proxy shut itself down once n traces are recorded.
func (p *ForwardProxy) SetStopAfter(n int) {
	p.stopAfter = n
}

func (p *ForwardProxy) debugf(format string, args ...any) {
	if p.cfg.Capture.Debug {
		fmt.Printf("[debug] "+format+"\n", args...)
	}
}

type captureContext struct {
	startTime   time.Time
	provider    string
	url         string
	requestBody []byte
}

type hostMatcher struct {
	allowHosts map[string]string
}

func newHostMatcher(hosts []string) *hostMatcher {
	m := &hostMatcher{allowHosts: make(map[string]string)}
	for _, host := range hosts {
		m.allowHosts[strings.ToLower(host)] = deriveProvider(host)
	}
	return m
}

func (m *hostMatcher) isAllowed(host string) bool {
	_, ok := m.allowHosts[normalizeHost(host)]
	return ok
}

func (m *hostMatcher) provider(host string) string {
	return m.allowHosts[normalizeHost(host)]
}

// normalizeHost lowercases and strips any port, so CONNECT targets like
// api.openai.com:443 match bare allowlist entries.
func normalizeHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}

// deriveProvider maps an API host to a short provider label for trace
// metadata.
func deriveProvider(host string) string {
	host = strings.ToLower(host)
	if strings.Contains(host, "openai") {
		if strings.Contains(host, "azure") {
			return "azure_openai"
		}
		return "openai"
	}
	if strings.Contains(host, "anthropic") {
		return "anthropic"
	}
	if strings.Contains(host, "bedrock") || strings.Contains(host, "amazonaws") {
		return "bedrock"
	}
	if parts := strings.Split(host, "."); len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "unknown"
}

// decodeBody undoes gzip content encoding for parsing, leaving the original
// bytes untouched for the client.
func decodeBody(raw []byte, headers http.Header) []byte {
	if headers.Get("Content-Encoding") != "gzip" {
		return raw
	}
	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return raw
	}
	defer gr.Close()
	decoded, err := io.ReadAll(gr)
	if err != nil {
		return raw
	}
	return decoded
}
