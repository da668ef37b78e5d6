package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const timeout time.Duration = 10 * time.Second

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("spitwit v" + releaseVersion + "\n"))
		if err != nil {
			return
		}

		cfg.log.Debug().
			Str("size", humanReadableSize(int64(written))).
			Str("client", realIP(r)).
			Dur("elapsed", time.Since(startTime).Round(time.Microsecond)).
			Msg("served version page")
	}
}

// serveRoomPage is the share surface for a room: the room code, the
// websocket URL to join with, and a QR code pointing back here.
func serveRoomPage(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		if rm.lookup(code) == nil {
			http.NotFound(w, r)
			return
		}

		wsURL := fmt.Sprintf("%s://%s%s/room/%s/ws", wsScheme(cfg), r.Host, cfg.prefix, code)

		body := fmt.Sprintf(
			"Room %s<br>Join with:<br><code>spitwit join --name YOU --url %s</code><br><img src=%q alt=\"QR code\">",
			code, wsURL, cfg.prefix+"/room/"+code+"/qr",
		)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		_, _ = io.WriteString(w, newPage("spitwit | Room "+code, body))
	}
}

// qrHandler renders a PNG QR code for a room's share page.
func qrHandler(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		if rm.lookup(code) == nil {
			http.NotFound(w, r)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		png, err := qrcode.Encode(url, qrcode.Medium, 320)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// redirectNewRoom creates a fresh room and redirects to its share page.
func redirectNewRoom(cfg *Config, rm *RoomManager, prompts PromptSource) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		room := rm.create(cfg.settings(), cfg.scoreboardTime, prompts, logNotifier{cfg.log})
		cfg.log.Info().Str("room", room.code).Msg("created room")
		http.Redirect(w, r, cfg.prefix+"/room/"+room.code, http.StatusTemporaryRedirect)
	}
}

func wsScheme(cfg *Config) string {
	if cfg.scheme() == "https" {
		return "wss"
	}
	return "ws"
}

// ServeHost runs the host process: the HTTP server carrying the websocket
// transport plus the share and health endpoints, with one room ready to
// play on startup.
func ServeHost(ctx context.Context, cfg *Config) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	cfg.log.Info().Str("version", releaseVersion).Msg("starting spitwit host")

	pool := defaultPrompts
	if cfg.promptPack != "" {
		pool, err = loadPromptPack(cfg.promptPack)
		if err != nil {
			return err
		}
		cfg.log.Info().Str("path", cfg.promptPack).Int("prompts", len(pool)).Msg("loaded prompt pack")
	}
	prompts := newPackSource(pool)

	clock := clockwork.NewRealClock()
	rm := newRoomManager(cfg.sessionTimeout, clock, cfg.log)
	room := rm.create(cfg.settings(), cfg.scoreboardTime, prompts, logNotifier{cfg.log})

	mux := httprouter.New()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		// No WriteTimeout: websocket connections outlive any sane value.
	}

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.GET(cfg.prefix+"/", serveHomePage(cfg))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg))

	mux.GET(cfg.prefix+"/new", redirectNewRoom(cfg, rm, prompts))

	mux.GET(cfg.prefix+"/room/:code", serveRoomPage(cfg, rm))

	mux.GET(cfg.prefix+"/room/:code/ws", serveRoomWS(cfg, rm))

	mux.GET(cfg.prefix+"/room/:code/qr", qrHandler(cfg, rm))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	cfg.log.Info().
		Str("room", room.code).
		Str("join_url", fmt.Sprintf("%s://%s%s/room/%s/ws", wsScheme(cfg), srv.Addr, cfg.prefix, room.code)).
		Msg("room ready")

	go func() {
		var err error
		cfg.log.Info().Str("listen", fmt.Sprintf("%s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)).Msg("listening")
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			cfg.log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
