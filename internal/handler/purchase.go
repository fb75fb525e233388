package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/forgo/canvas/internal/middleware"
	"github.com/forgo/canvas/internal/model"
	"github.com/forgo/canvas/internal/service"
	"github.com/shopspring/decimal"
)

// PurchaseAPI is the part of the purchase service the handler calls
type PurchaseAPI interface {
	Purchase(ctx context.Context, assetID, buyerID string, expectedPrice decimal.Decimal) (*service.PurchaseResult, error)
}

// PurchaseHandler handles asset purchase endpoints
type PurchaseHandler struct {
	purchaseService PurchaseAPI
	logger          *slog.Logger
}

// NewPurchaseHandler creates a new purchase handler
func NewPurchaseHandler(purchaseService PurchaseAPI, logger *slog.Logger) *PurchaseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurchaseHandler{
		purchaseService: purchaseService,
		logger:          logger,
	}
}

// Purchase handles POST /v1/assets/{assetId}/purchase
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	buyerID := middleware.GetUserID(r.Context())
	if buyerID == "" {
		WriteError(w, model.NewUnauthorizedError("authentication required"))
		return
	}

	assetID := r.PathValue("assetId")
	if assetID == "" {
		WriteError(w, model.NewValidationError([]model.FieldError{
			{Field: "asset_id", Message: "asset_id is required"},
		}))
		return
	}

	var req model.PurchaseRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, model.NewBadRequestError("invalid request body"))
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		WriteError(w, model.NewValidationError(errs))
		return
	}

	result, err := h.purchaseService.Purchase(r.Context(), assetID, buyerID, *req.ExpectedPrice)
	if err != nil {
		pd := MapServiceErrorWithContext(err, "purchase")
		var serr *service.SettlementError
		if errors.As(err, &serr) {
			pd.Instance = "/v1/assets/" + assetID + "/purchase#" + string(serr.State)
		}
		if pd.Status >= http.StatusInternalServerError {
			h.logger.Error("purchase failed",
				slog.String("request_id", middleware.GetRequestID(r.Context())),
				slog.String("asset_id", assetID),
				slog.String("buyer_id", buyerID),
				slog.String("tx_id", pd.TransactionID),
				slog.String("error", err.Error()))
		}
		WriteError(w, pd)
		return
	}

	WriteData(w, http.StatusCreated, model.PurchaseResponse{
		Sale:          result.Sale,
		TransactionID: result.TransactionID,
		States:        result.StateNames(),
	}, nil)
}
