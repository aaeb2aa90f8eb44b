package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/dto"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/middleware"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/service"
)

type KycHandler struct {
	kycService service.KycService
}

func NewKycHandler(kycService service.KycService) *KycHandler {
	return &KycHandler{
		kycService: kycService,
	}
}

func kycResponse(v *model.KycVerification, missing []string) dto.KycResponse {
	return dto.KycResponse{
		VerificationID: v.ID,
		ShopID:         v.ShopID,
		Status:         v.Status,
		RequestedInfo:  v.RequestedInfo,
		MissingDocs:    missing,
	}
}

func (h *KycHandler) CreateVerification(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	var req dto.CreateKycRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	v, err := h.kycService.CreateVerification(ctx, actor, &service.CreateVerificationInput{
		ShopID:            req.ShopID,
		Type:              req.Type,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Email:             req.Email,
		Phone:             req.Phone,
		DateOfBirth:       req.DateOfBirth,
		Country:           req.Country,
		BusinessName:      req.BusinessName,
		BusinessTaxID:     req.BusinessTaxID,
		BusinessAddress:   req.BusinessAddress,
		BankAccountNumber: req.BankAccountNumber,
		BankRoutingNumber: req.BankRoutingNumber,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, kycResponse(v, nil))
}

func (h *KycHandler) GetVerification(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	summary, err := h.kycService.GetVerification(ctx, actor, c.Param("verificationID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, kycResponse(summary.Verification, summary.MissingDocs))
}

func (h *KycHandler) UploadDocument(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	docType := c.FormValue("doc_type")
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing document file")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable document file")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable document file")
	}

	doc, err := h.kycService.UploadDocument(ctx, actor, c.Param("verificationID"), docType, fileHeader.Filename, data)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"document_id": doc.ID,
		"doc_type":    doc.DocType,
	})
}

func (h *KycHandler) SubmitForReview(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	v, err := h.kycService.SubmitForReview(ctx, actor, c.Param("verificationID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, kycResponse(v, nil))
}

func (h *KycHandler) CancelVerification(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	if err := h.kycService.CancelVerification(ctx, actor, c.Param("verificationID")); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"status": model.KycRejected})
}

func (h *KycHandler) OnboardingLink(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	url, err := h.kycService.OnboardingLink(ctx, actor, c.Param("shopID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"url": url})
}

func (h *KycHandler) SyncShopStatus(c echo.Context) error {
	ctx := c.Request().Context()
	actor := middleware.ActorFrom(c)

	shop, err := h.kycService.SyncShopStatus(ctx, actor, c.Param("shopID"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"shop_id":             shop.ID,
		"kyc_status":          shop.KycStatus,
		"has_valid_kyc":       shop.HasValidKyc,
		"charges_enabled":     shop.ChargesEnabled,
		"payouts_enabled":     shop.PayoutsEnabled,
		"onboarding_complete": shop.OnboardingComplete,
	})
}
