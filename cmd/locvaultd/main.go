package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/amaydixit11/locvault/internal/config"
	"github.com/amaydixit11/locvault/internal/hooks"
	"github.com/amaydixit11/locvault/internal/invite"
	"github.com/amaydixit11/locvault/pkg/api"
	"github.com/amaydixit11/locvault/pkg/crypto"
	"github.com/amaydixit11/locvault/pkg/locshare"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		cmdServe(args)
	case "seal":
		cmdSeal(args)
	case "open":
		cmdOpen(args)
	case "grant":
		cmdGrant(args)
	case "revoke":
		cmdRevoke(args)
	case "view":
		cmdView(args)
	case "invite":
		cmdInvite(args)
	case "history":
		cmdHistory(args)
	case "status":
		cmdStatus(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`locvaultd - Time-bounded encrypted location sharing

Usage: locvaultd <command> [options]

Commands:
  serve    Start the HTTP server (--port 10000 --data ./data)
  seal     Search near a position and store the sealed result locally
  open     Decrypt an enc_data document (viewer side)
  grant    Grant a viewer access on a running server
  revoke   Revoke a viewer's access on a running server
  view     Fetch an owner's sealed location as a viewer
  invite   Print a share link and QR code for a live grant
  history  Show an owner's recent access events
  status   Show server counters
  help     Show this help

Configuration is read from the environment (PORT, ENCRYPT_PASSPHRASE,
ENCRYPT_RESPONSE, LOCVAULT_*). Flags override it. history needs
LOCVAULT_ADMIN_TOKEN to match the server's.

Examples:
  locvaultd serve --storage sqlite
  locvaultd grant --owner alice --viewer bob --minutes 10
  locvaultd view --owner alice --viewer bob | locvaultd open --prompt`)
}

func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func newLogger(cfg config.Config) *logrus.Logger {
	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return logger
}

func newSharer(cfg config.Config, logger logrus.FieldLogger) locshare.Sharer {
	s, err := locshare.New(locshare.Config{
		DataDir:         cfg.DataDir,
		Storage:         locshare.StorageKind(cfg.Storage),
		Passphrase:      []byte(cfg.Passphrase),
		KDF:             cfg.KDF,
		Cipher:          cfg.Cipher,
		PlacesFile:      cfg.PlacesFile,
		SearchRadius:    cfg.SearchRadius,
		EncryptResponse: bool(cfg.EncryptResponse),
		PublicURL:       cfg.PublicURL,
		DisableHistory:  !bool(cfg.History),
		HistoryLimit:    cfg.HistoryLimit,
		Logger:          logger,
	})
	if errors.Is(err, locshare.ErrPassphraseMismatch) {
		log.Fatalf("ENCRYPT_PASSPHRASE does not match the data in %s", cfg.DataDir)
	}
	if errors.Is(err, locshare.ErrCipherMismatch) {
		log.Fatalf("LOCVAULT_KDF/LOCVAULT_CIPHER do not match the data in %s: %v", cfg.DataDir, err)
	}
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	return s
}

func cmdServe(args []string) {
	cfg := loadConfig()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", cfg.Port, "HTTP port")
	dataDir := fs.String("data", cfg.DataDir, "Data directory")
	storageKind := fs.String("storage", cfg.Storage, "Payload storage: memory, file or sqlite")
	fs.Parse(args)

	cfg.Port = *port
	cfg.DataDir = *dataDir
	cfg.Storage = *storageKind
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := newLogger(cfg)
	s := newSharer(cfg, logger)
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.RunSweeper(ctx, cfg.SweepInterval)

	if cfg.WebhookURL != "" {
		hookEvents := make([]locshare.EventType, 0, len(cfg.WebhookEvents))
		for _, e := range cfg.WebhookEvents {
			hookEvents = append(hookEvents, locshare.EventType(e))
		}
		manager := hooks.NewManager(logger)
		if _, err := manager.RegisterWebhook(hooks.WebhookConfig{
			URL:    cfg.WebhookURL,
			Events: hookEvents,
			Secret: cfg.WebhookSecret,
		}); err != nil {
			logger.WithError(err).Fatal("Failed to register webhook")
		}
		sub := s.Subscribe("")
		defer s.Unsubscribe(sub)
		go manager.Run(ctx, sub)
		logger.WithField("url", cfg.WebhookURL).Info("Delivering access events to webhook")
	}

	server := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.New(s, api.Options{
			DefaultGrantMinutes: cfg.DefaultGrantMins,
			CORSOrigins:         cfg.CORSOrigins,
			AdminToken:          cfg.AdminToken,
			Logger:              logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("ListenAndServe failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
		return
	}
	logger.Info("Server stopped gracefully")
}

func cmdSeal(args []string) {
	cfg := loadConfig()

	fs := flag.NewFlagSet("seal", flag.ExitOnError)
	owner := fs.String("owner", "", "Owner identifier")
	query := fs.String("query", "", "What to search for")
	lat := fs.Float64("lat", 0, "Latitude")
	lon := fs.Float64("lon", 0, "Longitude")
	dataDir := fs.String("data", cfg.DataDir, "Data directory")
	storageKind := fs.String("storage", cfg.Storage, "Payload storage: file or sqlite")
	fs.Parse(args)

	if *query == "" {
		log.Fatal("--query is required")
	}
	if *storageKind == string(locshare.StorageMemory) {
		log.Fatal("seal needs file or sqlite storage")
	}
	cfg.DataDir = *dataDir
	cfg.Storage = *storageKind
	cfg.EncryptResponse = true

	s := newSharer(cfg, newLogger(cfg))
	defer s.Close()

	resp, err := s.Search(context.Background(), locshare.SearchRequest{
		Query: *query,
		Lat:   setFloat(fs, "lat", lat),
		Lon:   setFloat(fs, "lon", lon),
		Owner: *owner,
	})
	if err != nil {
		log.Fatalf("Seal failed: %v", err)
	}

	fmt.Fprintf(os.Stderr, "🔒 Sealed location stored for %s\n", resp.Owner)
	printJSON(resp.Envelope)
}

// setFloat returns v only when the named flag was given on the command line
func setFloat(fs *flag.FlagSet, name string, v *float64) *float64 {
	var set bool
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	if !set {
		return nil
	}
	return v
}

func cmdOpen(args []string) {
	cfg := loadConfig()

	fs := flag.NewFlagSet("open", flag.ExitOnError)
	file := fs.String("file", "", "enc_data JSON file (default stdin)")
	prompt := fs.Bool("prompt", false, "Read the passphrase from the terminal")
	kdf := fs.String("kdf", cfg.KDF, "Key derivation: argon2id or pbkdf2")
	suite := fs.String("cipher", cfg.Cipher, "Cipher suite")
	fs.Parse(args)

	var in io.Reader = os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			log.Fatalf("Failed to open %s: %v", *file, err)
		}
		defer f.Close()
		in = f
	}

	passphrase := []byte(cfg.Passphrase)
	if *prompt {
		fmt.Fprint(os.Stderr, "Enter passphrase: ")
		p, err := readPassword(os.Stdin, openTTY, *file == "")
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Fatalf("Error reading passphrase: %v", err)
		}
		passphrase = p
	}

	c, err := newCipher(*kdf, *suite)
	if err != nil {
		log.Fatal(err)
	}

	plaintext, err := openEnvelope(in, passphrase, c)
	if errors.Is(err, crypto.ErrAuthentication) {
		log.Fatal("Decryption failed: wrong passphrase or tampered data")
	}
	if err != nil {
		log.Fatalf("Decryption failed: %v", err)
	}

	var out bytes.Buffer
	if json.Indent(&out, plaintext, "", "  ") == nil {
		plaintext = out.Bytes()
	}
	os.Stdout.Write(plaintext)
	fmt.Println()
}

func newCipher(kdf, suite string) (*crypto.Cipher, error) {
	params, err := crypto.ParseKDFMethod(kdf)
	if err != nil {
		return nil, err
	}
	s, err := crypto.ParseSuite(suite)
	if err != nil {
		return nil, err
	}
	return crypto.NewCipher(params, s), nil
}

// openEnvelope decrypts an {"enc_data": {...}} or bare payload document
func openEnvelope(r io.Reader, passphrase []byte, c *crypto.Cipher) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	payload, err := crypto.ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	return c.Open(passphrase, payload)
}

func cmdGrant(args []string) {
	fs := flag.NewFlagSet("grant", flag.ExitOnError)
	server := serverFlag(fs)
	owner := fs.String("owner", "", "Owner identifier")
	viewer := fs.String("viewer", "", "Viewer identifier")
	minutes := fs.Int("minutes", 0, "Grant duration (0 = server default)")
	fs.Parse(args)

	body := map[string]interface{}{"owner": *owner, "viewer": *viewer}
	if *minutes != 0 {
		body["duration_minutes"] = *minutes
	}

	var resp struct {
		Rule locshare.Grant `json:"rule"`
	}
	if err := newClient(*server).post("/grant_access", body, &resp); err != nil {
		log.Fatalf("Grant failed: %v", err)
	}
	fmt.Printf("✅ %s can view %s until %s\n",
		resp.Rule.Viewer, resp.Rule.Owner, resp.Rule.ExpiresAt.Local().Format(time.RFC1123))
}

func cmdRevoke(args []string) {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	server := serverFlag(fs)
	owner := fs.String("owner", "", "Owner identifier")
	viewer := fs.String("viewer", "", "Viewer identifier")
	fs.Parse(args)

	body := map[string]string{"owner": *owner, "viewer": *viewer}
	if err := newClient(*server).post("/revoke_access", body, nil); err != nil {
		log.Fatalf("Revoke failed: %v", err)
	}
	fmt.Printf("Access for %s revoked\n", *viewer)
}

func cmdView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	server := serverFlag(fs)
	owner := fs.String("owner", "", "Owner identifier")
	viewer := fs.String("viewer", "", "Viewer identifier")
	code := fs.String("invite", "", "Invite code instead of owner/viewer")
	fs.Parse(args)

	body := map[string]string{"owner": *owner, "viewer": *viewer, "invite": *code}
	var env crypto.Envelope
	if err := newClient(*server).post("/view_location", body, &env); err != nil {
		log.Fatalf("View failed: %v", err)
	}
	printJSON(env)
}

func cmdInvite(args []string) {
	fs := flag.NewFlagSet("invite", flag.ExitOnError)
	server := serverFlag(fs)
	owner := fs.String("owner", "", "Owner identifier")
	viewer := fs.String("viewer", "", "Viewer identifier")
	fs.Parse(args)

	var inv locshare.Invite
	path := "/invite?owner=" + queryEscape(*owner) + "&viewer=" + queryEscape(*viewer)
	if err := newClient(*server).get(path, &inv); err != nil {
		log.Fatalf("Invite failed: %v", err)
	}

	qr, err := invite.LinkQRString(inv.URL)
	if err != nil {
		log.Fatalf("Failed to render QR: %v", err)
	}

	fmt.Println("📱 Share link (valid until " + inv.ExpiresAt.Local().Format(time.RFC1123) + "):")
	fmt.Println(qr)
	fmt.Println(inv.URL)
}

func cmdHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	server := serverFlag(fs)
	owner := fs.String("owner", "", "Owner identifier")
	limit := fs.Int("limit", 20, "Number of entries")
	fs.Parse(args)

	var resp struct {
		Entries []locshare.HistoryEntry `json:"entries"`
	}
	path := fmt.Sprintf("/history?owner=%s&limit=%d", queryEscape(*owner), *limit)
	if err := newClient(*server).get(path, &resp); err != nil {
		log.Fatalf("History failed: %v", err)
	}

	if len(resp.Entries) == 0 {
		fmt.Println("No access events")
		return
	}
	for _, e := range resp.Entries {
		line := fmt.Sprintf("%s  %-16s", e.At.Local().Format("2006-01-02 15:04:05"), e.Type)
		if e.Viewer != "" {
			line += "  " + e.Viewer
		}
		fmt.Println(line)
	}
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	server := serverFlag(fs)
	fs.Parse(args)

	var status map[string]interface{}
	if err := newClient(*server).get("/status", &status); err != nil {
		log.Fatalf("Status failed: %v", err)
	}
	printJSON(status)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

var errPromptNeedsTerminal = errors.New("--prompt needs a terminal when the envelope is read from stdin; use --file or ENCRYPT_PASSPHRASE")

func openTTY() (*os.File, error) {
	return os.Open("/dev/tty")
}

// readPassword reads a passphrase from stdin when it is a terminal, otherwise
// from the controlling terminal. stdin is only read as a fallback when it does
// not also carry the envelope.
func readPassword(stdin *os.File, tty func() (*os.File, error), stdinIsInput bool) ([]byte, error) {
	if fd := int(stdin.Fd()); term.IsTerminal(fd) {
		return term.ReadPassword(fd)
	}

	if f, err := tty(); err == nil {
		defer f.Close()
		if fd := int(f.Fd()); term.IsTerminal(fd) {
			return term.ReadPassword(fd)
		}
		return readLine(f)
	}

	if stdinIsInput {
		return nil, errPromptNeedsTerminal
	}
	// Fallback for non-interactive
	return readLine(stdin)
}

func readLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
