package controllers

import (
	"net/http"
	"strings"

	"plan-delivery-service/models"
	"plan-delivery-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CheckoutController struct {
	Stripe     *services.StripeService
	Logger     *zap.Logger
	SuccessURL string
	CancelURL  string
}

// CreateSession opens a Stripe Checkout session for a completed quiz. The
// generated quiz reference comes back on the payment webhook via session
// metadata and links the payment to these preferences.
func (cc *CheckoutController) CreateSession(c *gin.Context) {
	var req struct {
		Email       string                 `json:"email" binding:"required,email"`
		Amount      int                    `json:"amount" binding:"required,min=1"`
		Currency    string                 `json:"currency" binding:"required"`
		Preferences models.PlanPreferences `json:"preferences" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quizRef := uuid.NewString()
	session, err := cc.Stripe.CreateCheckoutSession(
		int64(req.Amount),
		strings.ToLower(req.Currency),
		req.Email,
		quizRef,
		cc.SuccessURL,
		cc.CancelURL,
	)
	if err != nil {
		cc.Logger.Error("Failed to create checkout session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}

	cc.Logger.Info("Checkout session created",
		zap.String("session_id", session.ID),
		zap.String("quiz_ref", quizRef),
	)
	c.JSON(http.StatusOK, gin.H{
		"session_id":   session.ID,
		"checkout_url": session.URL,
		"quiz_ref":     quizRef,
	})
}
