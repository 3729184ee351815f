package main

import (
	"context"
	"flag"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sine-io/craft-stories/internal/site"
)

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(0)

	port := flag.Int("port", 0, "Port to bind (0 = random free port)")
	noOpen := flag.Bool("no-open", false, "Disable auto-opening the browser")
	dataDir := flag.String("data-dir", ".craftstories", "Directory for the post database and uploaded images")
	identityMode := flag.String("identity-mode", "session", "Identity strategy: session, injected, or external")
	identityTransport := flag.String("identity-transport", "bearer", "How identity rides on upstream generate calls: header, body, or bearer")
	generateUpstream := flag.String("generate-upstream", "", "Forward generation to this endpoint instead of calling Gemini in-process")
	geminiModel := flag.String("gemini-model", "", "Gemini model name (default gemini-1.5-flash)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	_ = godotenv.Load()

	zapCfg := zap.NewProductionConfig()
	if *verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("startup error: failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	mode, ok := site.ParseIdentityMode(*identityMode)
	if !ok {
		log.Fatalf("startup error: invalid --identity-mode %q (session, injected, or external)", *identityMode)
	}
	transport, ok := site.ParseIdentityTransport(*identityTransport)
	if !ok {
		log.Fatalf("startup error: invalid --identity-transport %q (header, body, or bearer)", *identityTransport)
	}

	listener, baseURL, err := site.ListenLocal(*port)
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port
	canonicalHostPort := fmt.Sprintf("127.0.0.1:%d", actualPort)
	baseOrigin127 := fmt.Sprintf("http://127.0.0.1:%d", actualPort)
	baseOriginLocalhost := fmt.Sprintf("http://localhost:%d", actualPort)

	store, err := site.NewPostStore(site.PostStoreConfig{
		Path:   filepath.Join(*dataDir, "posts.db"),
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}
	defer func() { _ = store.Close() }()

	blobs, err := site.NewBlobStore(site.BlobStoreConfig{
		Root:       filepath.Join(*dataDir, "media"),
		PublicBase: baseURL + "/media",
	})
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}

	registry := site.NewTokenRegistry()
	authState := site.NewAuthState()

	var provider site.Provider
	var injectedToken string
	external := site.NewExternalProvider()
	switch mode {
	case site.IdentityModeSession:
		provider = site.NewSessionProvider(authState)
	case site.IdentityModeInjected:
		injectedToken, err = registry.Mint("studio")
		if err != nil {
			log.Fatalf("startup error: failed to mint page identity: %v", err)
		}
		provider = site.NewInjectedProvider(injectedToken)
	case site.IdentityModeExternal:
		provider = external
	}

	generateCfg := site.GenerateConfig{
		Verifier: registry,
		Logger:   logger,
	}
	if *generateUpstream != "" {
		upstream, err := site.NewGeneratorClient(site.GeneratorClientConfig{
			Endpoint:        *generateUpstream,
			Transport:       transport,
			Identity:        provider,
			RequireIdentity: true,
			Logger:          logger,
		})
		if err != nil {
			log.Fatalf("startup error: %v", err)
		}
		generateCfg.Upstream = upstream
	} else {
		model, err := site.NewGeminiStoryModel(context.Background(), os.Getenv("GEMINI_API_KEY"), *geminiModel)
		if err != nil {
			log.Fatalf("startup error: %v (set GEMINI_API_KEY or --generate-upstream)", err)
		}
		generateCfg.Model = model
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		var feedHTML template.HTML
		posts, err := store.RecentPosts(r.Context(), site.DefaultFeedLimit)
		if err != nil {
			// An unavailable feed renders its own state, not "no posts yet".
			logger.Warn("failed to load feed for page render", zap.Error(err))
			feedHTML = site.FeedErrorHTML()
		} else if feedHTML, err = site.RenderFeedHTML(posts); err != nil {
			logger.Error("failed to render feed", zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		htmlBytes, err := site.RenderIndexHTML(site.IndexPageData{
			IdentityMode:  mode,
			InjectedToken: injectedToken,
			FeedHTML:      feedHTML,
		})
		if err != nil {
			logger.Error("failed to render index page", zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(htmlBytes)
	})

	mux.HandleFunc("GET /media/", site.MediaHandler(blobs))
	mux.HandleFunc("GET /api/feed", site.FeedHandler(site.FeedConfig{Posts: store, Logger: logger}))

	mux.HandleFunc("POST /api/auth/signin", site.SignInHandler(site.SignInConfig{
		Registry: registry,
		State:    authState,
		Logger:   logger,
	}))
	mux.HandleFunc("POST /api/auth/signout", site.SignOutHandler(authState))
	if mode == site.IdentityModeExternal {
		mux.HandleFunc("POST /api/identity/token", site.SetTokenHandler(site.SetTokenConfig{
			Provider:       external,
			Registry:       registry,
			DefaultSubject: "external",
			Logger:         logger,
		}))
	}

	mux.HandleFunc("POST /api/generate", site.GenerateHandler(generateCfg))
	mux.HandleFunc("POST /api/publish", site.PublishHandler(site.PublishConfig{
		Posts:    store,
		Uploads:  blobs,
		Verifier: registry,
		Logger:   logger,
	}))

	mux.HandleFunc("POST /api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	protected := site.RequireSameOrigin(mux, site.OriginGuardConfig{
		AllowedOrigins: []string{baseOrigin127, baseOriginLocalhost},
	})

	fmt.Println(baseURL)
	logger.Info("craft stories studio listening",
		zap.String("url", baseURL),
		zap.String("identityMode", string(mode)))

	if !*noOpen {
		if err := tryAutoOpen(baseURL); err != nil {
			logger.Warn("failed to auto-open browser", zap.Error(err))
		}
	}

	server := &http.Server{Handler: site.RedirectToCanonicalHost(canonicalHostPort, protected)}
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func tryAutoOpen(url string) error {
	var cmdName string
	switch runtime.GOOS {
	case "darwin":
		cmdName = "open"
	case "linux":
		cmdName = "xdg-open"
	default:
		return fmt.Errorf("unsupported OS for auto-open: %s", runtime.GOOS)
	}

	cmd := exec.Command(cmdName, url)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}
