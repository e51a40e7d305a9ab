package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/regrada-ai/tracemark/internal/config"
	"github.com/regrada-ai/tracemark/internal/trace"
)

// ReverseProxy fronts a single upstream chat API: clients point their base
// URL at the listen address and every exchange is recorded on the way
// through. No CA is needed since the client terminates TLS at the proxy.
type ReverseProxy struct {
	cfg       *config.ProjectConfig
	store     trace.Store
	redactor  Redactor
	session   *Session
	upstream  *url.URL
	provider  string
	server    *http.Server
	done      chan struct{}
	stopAfter int

	mu    sync.Mutex
	count int
}

func NewReverseProxy(cfg *config.ProjectConfig, store trace.Store, redactor Redactor, session *Session) (*ReverseProxy, error) {
	upstream, err := url.Parse(cfg.Capture.Target)
	if err != nil {
		return nil, fmt.Errorf("parse capture target: %w", err)
	}
	if upstream.Host == "" {
		return nil, fmt.Errorf("capture target %q has no host", cfg.Capture.Target)
	}

	return &ReverseProxy{
		cfg:      cfg,
		store:    store,
		redactor: redactor,
		session:  session,
		upstream: upstream,
		provider: deriveProvider(upstream.Hostname()),
		done:     make(chan struct{}),
	}, nil
}

func (p *ReverseProxy) Start() error {
	addr := p.cfg.Capture.Listen
	if addr == "" {
		addr = "127.0.0.1:8788"
	}
	p.server = &http.Server{
		Addr:    addr,
		Handler: http.HandlerFunc(p.handle),
	}
	go func() {
		_ = p.server.ListenAndServe()
		close(p.done)
	}()
	return nil
}

func (p *ReverseProxy) Stop() error {
	if p.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.server.Shutdown(ctx)
}

// Done is closed once the server has stopped serving.
func (p *ReverseProxy) Done() <-chan struct{} {
	return p.done
}

func (p *ReverseProxy) TraceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func (p *ReverseProxy) Session() *Session {
	return p.session
}

// SetStopAfter makes the proxy shut itself down once n traces are recorded.
func (p *ReverseProxy) SetStopAfter(n int) {
	p.stopAfter = n
}

func (p *ReverseProxy) handle(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	requestBody, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(requestBody))

	proxy := httputil.NewSingleHostReverseProxy(p.upstream)
	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = p.upstream.Host
	}
	proxy.ModifyResponse = func(resp *http.Response) error {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(raw))

		p.record(requestBody, decodeBody(raw, resp.Header), req.URL.Path, start)
		return nil
	}
	proxy.ErrorHandler = func(rw http.ResponseWriter, req *http.Request, err error) {
		http.Error(rw, err.Error(), http.StatusBadGateway)
	}
	proxy.ServeHTTP(w, req)
}

func (p *ReverseProxy) record(requestBody, responseBody []byte, path string, start time.Time) {
	doc, modelName := BuildDocument(requestBody, responseBody)
	if len(doc.Events) == 0 {
		return
	}
	if p.redactor != nil {
		p.redactor.Apply(doc)
	}

	meta, err := p.store.Save(doc, trace.Meta{
		CapturedAt: start.UTC(),
		Source:     p.provider,
		Model:      modelName,
		URL:        p.upstream.Scheme + "://" + p.upstream.Host + path,
	})
	if err != nil {
		if p.cfg.Capture.Debug {
			fmt.Printf("[debug] save trace: %v\n", err)
		}
		return
	}

	if p.session != nil {
		p.session.AddTrace(meta.ID)
	}

	p.mu.Lock()
	p.count++
	reached := p.stopAfter > 0 && p.count >= p.stopAfter
	p.mu.Unlock()

	fmt.Printf("[capture] recorded trace %s (%dms)\n", meta.ID, time.Since(start).Milliseconds())

	if reached {
		go func() {
			_ = p.Stop()
		}()
	}
}
