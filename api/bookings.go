package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/zsp-sports/gymbooking/internal/payments"
	"github.com/zsp-sports/gymbooking/internal/service/checkout"
	"github.com/zsp-sports/gymbooking/internal/service/reservation"
)

// WebhookVerifier checks the provider signature on raw webhook bodies.
type WebhookVerifier interface {
	Verify(payload []byte, signature string) (*payments.WebhookEvent, error)
}

type BookingHandler struct {
	reservations reservation.ReservationUseCase
	checkout     checkout.CheckoutUseCase
	verifier     WebhookVerifier
	redirectURL  string
}

func NewBookingHandler(reservations reservation.ReservationUseCase, co checkout.CheckoutUseCase, verifier WebhookVerifier, redirectURL string) *BookingHandler {
	return &BookingHandler{
		reservations: reservations,
		checkout:     co,
		verifier:     verifier,
		redirectURL:  redirectURL,
	}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/booking", h.directBooking)
	router.POST("/create-checkout-session", h.createCheckoutSession)
	router.POST("/create-payment-intent", h.createPaymentIntent)
	router.GET("/payment-success", h.paymentSuccess)
	router.POST("/webhook", h.webhook)
}

type directBookingRequest struct {
	CustomerID  int64                     `json:"customer_id"`
	PackageID   int64                     `json:"package_id"`
	TimeslotIDs []int64                   `json:"timeslot_ids"`
	AthleteIDs  []int64                   `json:"athlete_ids"`
	Payment     *reservation.PaymentInput `json:"payment"`
}

type directBookingResponse struct {
	OrderID     int64  `json:"order_id"`
	ReceiptCode string `json:"receipt_code"`
	OrderStatus string `json:"order_status"`
	Admitted    int    `json:"admitted"`
}

func (h *BookingHandler) directBooking(c *gin.Context) {
	var req directBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.reservations.DirectBooking(c.Request.Context(), reservation.DirectBookingInput{
		CustomerID:  req.CustomerID,
		PackageID:   req.PackageID,
		TimeslotIDs: req.TimeslotIDs,
		AthleteIDs:  req.AthleteIDs,
		Payment:     req.Payment,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, directBookingResponse{
		OrderID:     result.OrderID,
		ReceiptCode: result.ReceiptCode,
		OrderStatus: string(result.OrderStatus),
		Admitted:    len(result.Admitted),
	})
}

type checkoutRequest struct {
	CustomerID int64   `json:"customer_id"`
	PackageID  int64   `json:"package_id"`
	AthleteIDs []int64 `json:"athlete_ids"`
}

func (h *BookingHandler) createCheckoutSession(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.checkout.CreateCheckoutSession(c.Request.Context(), checkout.CheckoutInput{
		CustomerID: req.CustomerID,
		PackageID:  req.PackageID,
		AthleteIDs: req.AthleteIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": sess.ID, "url": sess.URL})
}

func (h *BookingHandler) createPaymentIntent(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	clientSecret, err := h.checkout.CreatePaymentIntent(c.Request.Context(), checkout.CheckoutInput{
		CustomerID: req.CustomerID,
		PackageID:  req.PackageID,
		AthleteIDs: req.AthleteIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"clientSecret": clientSecret})
}

// paymentSuccess is redirect-only. Finalization is webhook-driven; doing it
// here too would open a second racing finalize path.
func (h *BookingHandler) paymentSuccess(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, h.redirectURL)
}

// webhook handles provider confirmations. It answers 2xx only after a
// successful finalize (or a confirmed duplicate); anything else gets a
// non-2xx so the provider redelivers.
func (h *BookingHandler) webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	event, err := h.verifier.Verify(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		log.Warn().Err(err).Msg("webhook verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	switch event.Type {
	case payments.EventCheckoutCompleted, payments.EventIntentSucceeded:
		already, err := h.checkout.FinalizeCharge(c.Request.Context(), checkout.FinalizeInput{
			TransactionID: event.TransactionID,
			AmountCents:   event.AmountCents,
			Method:        event.Method,
			Status:        event.Status,
			Metadata:      event.Metadata,
		})
		if err != nil {
			log.Error().Err(err).Str("transaction_id", event.TransactionID).Msg("webhook finalize failed")
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true, "already_processed": already})
	default:
		// Unhandled event types are acknowledged so the provider stops
		// redelivering them.
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
