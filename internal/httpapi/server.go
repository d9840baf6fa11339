// Package httpapi is thin dispatch over the integration registry, the
// journal and the backfill syncer.
package httpapi

import (
	"context"
	"crypto/subtle"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/peakform/wearsync/internal/backfill"
	"github.com/peakform/wearsync/internal/journal"
	"github.com/peakform/wearsync/internal/observability"
	"github.com/peakform/wearsync/internal/wearable"
)

const defaultMaxBodyBytes = 1 << 20

type ServerOptions struct {
	Registry *wearable.Registry
	Journal  *journal.Journal
	Syncer   *backfill.Syncer
	Notifier wearable.Notifier
	Logger   zerolog.Logger

	// SyncSecret guards POST /api/integrations/sync when non-empty.
	SyncSecret string
	// RedirectURI is the OAuth redirect registered with each vendor. When
	// set, the callback completes the code exchange itself instead of
	// displaying the code for manual copy.
	RedirectURI string
	// SyncWebhooks runs the resolve/store/notify chain before responding
	// instead of fast-acking. Vendors with tight retry timers want the
	// default fast-ack; tests and synchronous callers want this.
	SyncWebhooks bool
	MaxBodyBytes int64
}

type Server struct {
	registry     *wearable.Registry
	journal      *journal.Journal
	syncer       *backfill.Syncer
	notifier     wearable.Notifier
	log          zerolog.Logger
	syncSecret   string
	redirectURI  string
	syncWebhooks bool
	maxBodyBytes int64
}

func NewServer(opts ServerOptions) *Server {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = wearable.NoopNotifier{}
	}
	maxBodyBytes := opts.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &Server{
		registry:     opts.Registry,
		journal:      opts.Journal,
		syncer:       opts.Syncer,
		notifier:     notifier,
		log:          opts.Logger,
		syncSecret:   opts.SyncSecret,
		redirectURI:  opts.RedirectURI,
		syncWebhooks: opts.SyncWebhooks,
		maxBodyBytes: maxBodyBytes,
	}
}

// Router builds the gin engine. gin.SetMode is the caller's concern.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/integrations")
	api.POST("/:vendor/webhook", s.handleWebhook)
	api.GET("/:vendor/connect", s.handleConnect)
	api.GET("/:vendor/callback", s.handleCallback)
	api.POST("/sync", s.handleSync)
	return router
}

// handleWebhook walks the delivery state machine in order: structure,
// signature, user match. The vendor is acked as soon as the delivery is
// trusted; resolution and storage run detached so slow downstream work
// never trips the vendor's retry timer.
func (s *Server) handleWebhook(c *gin.Context) {
	slug := c.Param("vendor")
	integration, ok := s.registry.Get(slug)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown integration"})
		return
	}
	vendor := integration.Slug()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		observability.RecordWebhookDelivery(vendor, "rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := integration.ValidateWebhook(body); err != nil {
		observability.RecordWebhookDelivery(vendor, "rejected")
		s.log.Info().Str("vendor", vendor).Err(err).Msg("webhook failed structural validation")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if !integration.VerifyWebhook(c.Request, body) {
		observability.RecordWebhookDelivery(vendor, "rejected")
		s.log.Info().Str("vendor", vendor).Msg("webhook failed verification")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "verification failed"})
		return
	}

	deliveryID := uuid.NewString()
	if s.syncWebhooks {
		outcome := s.processDelivery(c.Request.Context(), integration, body, deliveryID)
		c.JSON(http.StatusOK, gin.H{"status": outcome})
		return
	}

	observability.RecordWebhookDelivery(vendor, "accepted")
	go s.processDelivery(context.Background(), integration, body, deliveryID)
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// processDelivery is the downstream chain: resolve against the vendor API,
// normalize, persist, notify. Re-deliveries are harmless because the
// journal merge is idempotent.
func (s *Server) processDelivery(ctx context.Context, integration wearable.DeviceIntegration, body []byte, deliveryID string) string {
	vendor := integration.Slug()
	deliveryLog := s.log.With().Str("vendor", vendor).Str("delivery_id", deliveryID).Logger()

	event, err := integration.ParseWebhook(ctx, body)
	if err != nil {
		observability.RecordWebhookDelivery(vendor, "failed")
		deliveryLog.Error().Err(err).Msg("webhook resolution failed")
		return "failed"
	}
	if event == nil {
		observability.RecordWebhookDelivery(vendor, "ignored")
		deliveryLog.Debug().Msg("webhook carried nothing actionable")
		return "ignored"
	}
	if err := s.journal.StoreEvent(ctx, event); err != nil {
		observability.RecordWebhookDelivery(vendor, "failed")
		deliveryLog.Error().Err(err).Msg("storing webhook event failed")
		return "failed"
	}
	if err := s.notifier.NotifyEvent(ctx, event); err != nil {
		deliveryLog.Warn().Err(err).Msg("event notification failed")
	}
	observability.RecordWebhookDelivery(vendor, "processed")
	deliveryLog.Info().Str("kind", string(event.Kind)).Str("date", event.Date()).
		Msg("webhook event ingested")
	return "processed"
}

// handleConnect redirects the browser into the vendor's authorization flow.
func (s *Server) handleConnect(c *gin.Context) {
	slug := c.Param("vendor")
	integration, ok := s.registry.Get(slug)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown integration"})
		return
	}
	if !integration.IsConfigured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "integration not configured"})
		return
	}
	authURL, err := integration.AuthURL(s.redirectURI)
	if err != nil {
		s.log.Error().Str("vendor", integration.Slug()).Err(err).Msg("building authorization url failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authorization url unavailable"})
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// handleCallback finishes the authorization flow. With a configured redirect
// URI the code is exchanged and persisted immediately; otherwise it is
// rendered as inert text for manual copy into the setup flow. Every
// reflected value is attacker-controlled and escaped before it reaches the
// document.
func (s *Server) handleCallback(c *gin.Context) {
	slug := c.Param("vendor")
	integration, ok := s.registry.Get(slug)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown integration"})
		return
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>Authorization</title></head><body>")
	if errCode := c.Query("error"); errCode != "" {
		b.WriteString("<h1>Authorization failed</h1>")
		b.WriteString("<p>Error: <code>" + html.EscapeString(errCode) + "</code></p>")
		if desc := c.Query("error_description"); desc != "" {
			b.WriteString("<p>" + html.EscapeString(desc) + "</p>")
		}
	} else if code := c.Query("code"); code != "" {
		if s.redirectURI != "" {
			if _, err := integration.ExchangeCode(c.Request.Context(), code, s.redirectURI); err != nil {
				s.log.Error().Str("vendor", integration.Slug()).Err(err).Msg("authorization code exchange failed")
				b.WriteString("<h1>Authorization failed</h1>")
				b.WriteString("<p>The code exchange was rejected. Restart the flow and try again.</p>")
			} else {
				b.WriteString("<h1>Authorization complete</h1>")
				b.WriteString("<p>" + html.EscapeString(integration.Name()) + " is now connected.</p>")
			}
		} else {
			b.WriteString("<h1>Authorization code</h1>")
			b.WriteString("<p>Copy this code into the setup flow:</p>")
			b.WriteString("<pre>" + html.EscapeString(code) + "</pre>")
		}
	} else {
		b.WriteString("<h1>Missing authorization code</h1>")
	}
	b.WriteString("</body></html>")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(b.String()))
}

// handleSync triggers a multi-vendor backfill for one calendar date.
func (s *Server) handleSync(c *gin.Context) {
	if s.syncSecret != "" && !s.authorizedForSync(c.GetHeader("Authorization")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	date := c.Query("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	results := s.syncer.SyncDate(c.Request.Context(), date)
	c.JSON(http.StatusOK, gin.H{"date": date, "results": results})
}

func (s *Server) authorizedForSync(authHeader string) bool {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	presented := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.syncSecret)) == 1
}
