package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tringuyen-psa/shopify-shop-sub001/internal/apperr"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/client"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/model"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/repository"
	"github.com/tringuyen-psa/shopify-shop-sub001/internal/util"
)

// Document types accepted for verification uploads.
const (
	DocIDFront              = "id_front"
	DocIDBack               = "id_back"
	DocPassport             = "passport"
	DocProofOfAddress       = "proof_of_address"
	DocBusinessRegistration = "business_registration"
	DocBankStatement        = "bank_statement"
)

var allowedDocTypes = map[string]bool{
	DocIDFront:              true,
	DocIDBack:               true,
	DocPassport:             true,
	DocProofOfAddress:       true,
	DocBusinessRegistration: true,
	DocBankStatement:        true,
}

// requiredDocTypes is advisory: the missing list is reported but submission
// is not blocked on it.
var requiredDocTypes = []string{DocIDFront, DocIDBack, DocPassport}

const cancelledByUserReason = "verification cancelled by user"

type CreateVerificationInput struct {
	ShopID string
	Type   string // individual | company

	FirstName   string
	LastName    string
	Email       string
	Phone       string
	DateOfBirth string
	Country     string

	BusinessName    string
	BusinessTaxID   string
	BusinessAddress string

	BankAccountNumber string
	BankRoutingNumber string
}

type VerificationSummary struct {
	Verification *model.KycVerification
	Documents    []*model.KycDocument
	MissingDocs  []string
}

type KycService interface {
	CreateVerification(ctx context.Context, actor *Actor, input *CreateVerificationInput) (*model.KycVerification, error)
	GetVerification(ctx context.Context, actor *Actor, verificationID string) (*VerificationSummary, error)
	UploadDocument(ctx context.Context, actor *Actor, verificationID, docType, fileName string, data []byte) (*model.KycDocument, error)
	SubmitForReview(ctx context.Context, actor *Actor, verificationID string) (*model.KycVerification, error)
	CancelVerification(ctx context.Context, actor *Actor, verificationID string) error
	OnboardingLink(ctx context.Context, actor *Actor, shopID string) (string, error)

	SyncShopStatus(ctx context.Context, actor *Actor, shopID string) (*model.Shop, error)
	SyncAllShopStatuses(ctx context.Context) error
	HandleAccountUpdated(ctx context.Context, account *model.StripeAccount) error

	CanShopReceivePayments(ctx context.Context, shopID string) (bool, error)
	CanShopReceivePayouts(ctx context.Context, shopID string) (bool, error)
}

type kycServiceImpl struct {
	kycRepo         repository.KycRepository
	shopRepo        repository.ShopRepository
	stripeClient    client.StripeClient
	frontendBaseURL string
}

func NewKycService(
	kycRepo repository.KycRepository,
	shopRepo repository.ShopRepository,
	stripeClient client.StripeClient,
	frontendBaseURL string,
) KycService {
	return &kycServiceImpl{
		kycRepo:         kycRepo,
		shopRepo:        shopRepo,
		stripeClient:    stripeClient,
		frontendBaseURL: frontendBaseURL,
	}
}

func (s *kycServiceImpl) findShop(ctx context.Context, shopID string) (*model.Shop, error) {
	shop, err := s.shopRepo.FindByID(ctx, shopID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("shop not found")
		}
		return nil, fmt.Errorf("find shop: %w", err)
	}
	return shop, nil
}

func authorizeShop(actor *Actor, shopID string) error {
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role == model.RoleShopOwner && actor.OwnsShop(shopID) {
		return nil
	}
	return apperr.Forbidden("not an owner of this shop")
}

func (s *kycServiceImpl) CreateVerification(ctx context.Context, actor *Actor, input *CreateVerificationInput) (*model.KycVerification, error) {
	if err := authorizeShop(actor, input.ShopID); err != nil {
		return nil, err
	}
	if input.Type != "individual" && input.Type != "company" {
		return nil, apperr.BadRequest("verification type must be individual or company")
	}

	shop, err := s.findShop(ctx, input.ShopID)
	if err != nil {
		return nil, err
	}

	pending, err := s.kycRepo.HasPendingVerification(ctx, shop.ID)
	if err != nil {
		return nil, fmt.Errorf("check pending verification: %w", err)
	}
	if pending {
		return nil, apperr.BadRequest("a pending verification already exists for this shop")
	}

	accountParams := &client.AccountParams{
		Type:          input.Type,
		Email:         input.Email,
		BusinessName:  input.BusinessName,
		Country:       input.Country,
		AccountNumber: input.BankAccountNumber,
		RoutingNumber: input.BankRoutingNumber,
	}

	accountID := shop.StripeAccountID
	if accountID == "" {
		account, err := s.stripeClient.CreateAccount(ctx, accountParams)
		if err != nil {
			return nil, err
		}
		accountID = account.ID
		if err := s.shopRepo.SetStripeAccountID(ctx, shop.ID, accountID); err != nil {
			return nil, fmt.Errorf("store stripe account id: %w", err)
		}
	} else {
		if err := s.stripeClient.UpdateAccount(ctx, accountID, accountParams); err != nil {
			return nil, err
		}
	}

	verification := &model.KycVerification{
		ID:                uuid.NewString(),
		ShopID:            shop.ID,
		Type:              input.Type,
		Status:            model.KycPending,
		FirstName:         input.FirstName,
		LastName:          input.LastName,
		Email:             input.Email,
		Phone:             input.Phone,
		DateOfBirth:       input.DateOfBirth,
		BusinessName:      input.BusinessName,
		BusinessTaxID:     input.BusinessTaxID,
		BusinessAddress:   input.BusinessAddress,
		BankAccountNumber: input.BankAccountNumber,
		BankRoutingNumber: input.BankRoutingNumber,
	}
	if err := s.kycRepo.CreateVerification(ctx, verification); err != nil {
		return nil, fmt.Errorf("store verification: %w", err)
	}

	// Pull the provider's initial requirements right away so the caller
	// sees what is still due.
	if _, err := s.syncShopStatus(ctx, shop.ID); err != nil {
		zap.L().Warn("initial kyc sync failed",
			zap.String("shop_id", shop.ID),
			zap.Error(err))
	}

	return s.kycRepo.FindVerificationByID(ctx, verification.ID)
}

func (s *kycServiceImpl) findVerification(ctx context.Context, verificationID string) (*model.KycVerification, error) {
	v, err := s.kycRepo.FindVerificationByID(ctx, verificationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("verification not found")
		}
		return nil, fmt.Errorf("find verification: %w", err)
	}
	return v, nil
}

func missingRequiredDocs(docs []*model.KycDocument) []string {
	have := make(map[string]bool, len(docs))
	for _, d := range docs {
		have[d.DocType] = true
	}

	// A passport substitutes for front/back id.
	if have[DocPassport] || (have[DocIDFront] && have[DocIDBack]) {
		return nil
	}

	var missing []string
	for _, t := range requiredDocTypes {
		if !have[t] {
			missing = append(missing, t)
		}
	}
	return missing
}

func (s *kycServiceImpl) GetVerification(ctx context.Context, actor *Actor, verificationID string) (*VerificationSummary, error) {
	v, err := s.findVerification(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if err := authorizeShop(actor, v.ShopID); err != nil {
		return nil, err
	}

	docs, err := s.kycRepo.GetDocuments(ctx, verificationID)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}

	return &VerificationSummary{
		Verification: v,
		Documents:    docs,
		MissingDocs:  missingRequiredDocs(docs),
	}, nil
}

func (s *kycServiceImpl) UploadDocument(ctx context.Context, actor *Actor, verificationID, docType, fileName string, data []byte) (*model.KycDocument, error) {
	v, err := s.findVerification(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if err := authorizeShop(actor, v.ShopID); err != nil {
		return nil, err
	}

	if !allowedDocTypes[docType] {
		return nil, apperr.BadRequest("unknown document type %q", docType)
	}
	if v.Status == model.KycApproved || v.Status == model.KycRejected || v.Status == model.KycRestricted {
		return nil, apperr.BadRequest("verification is already decided, start a new one")
	}
	if len(data) == 0 {
		return nil, apperr.BadRequest("document file is empty")
	}

	file, err := s.stripeClient.UploadVerificationFile(ctx, fileName, data)
	if err != nil {
		return nil, err
	}

	doc := &model.KycDocument{
		ID:             uuid.NewString(),
		VerificationID: v.ID,
		DocType:        docType,
		StripeFileID:   file.ID,
		FileName:       fileName,
	}
	if err := s.kycRepo.AddDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	return doc, nil
}

func (s *kycServiceImpl) SubmitForReview(ctx context.Context, actor *Actor, verificationID string) (*model.KycVerification, error) {
	v, err := s.findVerification(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if err := authorizeShop(actor, v.ShopID); err != nil {
		return nil, err
	}

	if v.Status != model.KycPending && v.Status != model.KycMoreInfoNeeded {
		return nil, apperr.BadRequest("verification cannot be submitted from status %q", v.Status)
	}

	now := time.Now()
	if err := s.kycRepo.UpdateVerification(ctx, v.ID, map[string]interface{}{
		"status":       model.KycInReview,
		"submitted_at": now,
	}); err != nil {
		return nil, err
	}

	if _, err := s.syncShopStatus(ctx, v.ShopID); err != nil {
		zap.L().Warn("kyc sync after submit failed",
			zap.String("shop_id", v.ShopID),
			zap.Error(err))
	}

	return s.findVerification(ctx, verificationID)
}

func (s *kycServiceImpl) CancelVerification(ctx context.Context, actor *Actor, verificationID string) error {
	v, err := s.findVerification(ctx, verificationID)
	if err != nil {
		return err
	}
	if err := authorizeShop(actor, v.ShopID); err != nil {
		return err
	}

	if v.Status == model.KycApproved {
		return apperr.BadRequest("approved verification cannot be cancelled")
	}

	now := time.Now()
	return s.kycRepo.UpdateVerification(ctx, v.ID, map[string]interface{}{
		"status":           model.KycRejected,
		"rejection_reason": cancelledByUserReason,
		"rejected_at":      now,
	})
}

func (s *kycServiceImpl) OnboardingLink(ctx context.Context, actor *Actor, shopID string) (string, error) {
	if err := authorizeShop(actor, shopID); err != nil {
		return "", err
	}

	shop, err := s.findShop(ctx, shopID)
	if err != nil {
		return "", err
	}
	if shop.StripeAccountID == "" {
		return "", apperr.BadRequest("shop has no payment account, start a verification first")
	}

	link, err := s.stripeClient.CreateAccountLink(ctx,
		shop.StripeAccountID,
		fmt.Sprintf("%s/dashboard/settings/payments", s.frontendBaseURL),
		fmt.Sprintf("%s/dashboard/settings/payments?refresh=1", s.frontendBaseURL),
	)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

// mapAccountStatus derives the verification status from the provider's
// outstanding-requirements lists.
func mapAccountStatus(account *model.StripeAccount) (status, detail string) {
	currentlyDue := account.Requirements.CurrentlyDue
	pastDue := account.Requirements.PastDue

	switch {
	case len(currentlyDue) == 0 && len(pastDue) == 0:
		return model.KycApproved, ""
	case len(currentlyDue) > 0:
		return model.KycMoreInfoNeeded, strings.Join(currentlyDue, ", ")
	default:
		return model.KycRejected, strings.Join(pastDue, ", ")
	}
}

// applyAccountSnapshot writes the provider's account state through to the
// latest verification attempt and the shop's capability flags. The whole
// snapshot is overwritten on every call (last write wins), so concurrent
// webhook and sweep syncs cannot interleave into a mixed state.
func (s *kycServiceImpl) applyAccountSnapshot(ctx context.Context, shop *model.Shop, account *model.StripeAccount) (*model.Shop, error) {
	status, detail := mapAccountStatus(account)

	requirementsJSON, _ := json.Marshal(account.Requirements)
	capabilitiesJSON, _ := json.Marshal(account.Capabilities)

	if v, err := s.kycRepo.FindLatestByShop(ctx, shop.ID); err == nil {
		updates := map[string]interface{}{
			"status":            status,
			"requirements_json": string(requirementsJSON),
			"capabilities_json": string(capabilitiesJSON),
		}
		now := time.Now()
		switch status {
		case model.KycApproved:
			updates["verified_at"] = now
		case model.KycMoreInfoNeeded:
			updates["requested_info"] = detail
		case model.KycRejected:
			updates["rejection_reason"] = detail
			updates["rejected_at"] = now
		}
		if err := s.kycRepo.UpdateVerification(ctx, v.ID, updates); err != nil {
			return nil, fmt.Errorf("update verification: %w", err)
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find latest verification: %w", err)
	}

	update := &repository.ShopCapabilityUpdate{
		ChargesEnabled: account.ChargesEnabled,
		PayoutsEnabled: account.PayoutsEnabled,
		// Never un-set the legacy onboarding flag for shops that predate
		// KYC tracking.
		OnboardingComplete: shop.OnboardingComplete || account.DetailsSubmitted,
		KycStatus:          status,
		HasValidKyc:        status == model.KycApproved,
	}
	if err := s.shopRepo.UpdateCapabilities(ctx, shop.ID, update); err != nil {
		return nil, fmt.Errorf("update shop capabilities: %w", err)
	}

	util.KycSyncsTotal.WithLabelValues(status).Inc()
	zap.L().Info("shop kyc status synced",
		zap.String("shop_id", shop.ID),
		zap.String("status", status),
		zap.Bool("charges_enabled", account.ChargesEnabled),
		zap.Bool("payouts_enabled", account.PayoutsEnabled))

	return s.shopRepo.FindByID(ctx, shop.ID)
}

// SyncShopStatus is the on-demand sync endpoint. Unlike the internal sweep
// it is actor-gated: capability flags and requirement details are only for
// the shop's owner or an admin.
func (s *kycServiceImpl) SyncShopStatus(ctx context.Context, actor *Actor, shopID string) (*model.Shop, error) {
	if err := authorizeShop(actor, shopID); err != nil {
		return nil, err
	}
	return s.syncShopStatus(ctx, shopID)
}

func (s *kycServiceImpl) syncShopStatus(ctx context.Context, shopID string) (*model.Shop, error) {
	shop, err := s.findShop(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if shop.StripeAccountID == "" {
		return nil, apperr.BadRequest("shop has no payment account")
	}

	account, err := s.stripeClient.RetrieveAccount(ctx, shop.StripeAccountID)
	if err != nil {
		return nil, err
	}

	return s.applyAccountSnapshot(ctx, shop, account)
}

// SyncAllShopStatuses is the safety-net sweep for shops whose local state may
// have gone stale (missed webhooks). Per-shop failures are logged and do not
// stop the sweep.
func (s *kycServiceImpl) SyncAllShopStatuses(ctx context.Context) error {
	shops, err := s.shopRepo.FindAllWithStripeAccount(ctx)
	if err != nil {
		return fmt.Errorf("list shops with payment accounts: %w", err)
	}

	for _, shop := range shops {
		if _, err := s.syncShopStatus(ctx, shop.ID); err != nil {
			zap.L().Warn("kyc sweep sync failed",
				zap.String("shop_id", shop.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (s *kycServiceImpl) HandleAccountUpdated(ctx context.Context, account *model.StripeAccount) error {
	shop, err := s.shopRepo.FindByStripeAccountID(ctx, account.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("no shop for payment account %s", account.ID)
		}
		return fmt.Errorf("find shop by account: %w", err)
	}

	_, err = s.applyAccountSnapshot(ctx, shop, account)
	return err
}

func (s *kycServiceImpl) CanShopReceivePayments(ctx context.Context, shopID string) (bool, error) {
	shop, err := s.findShop(ctx, shopID)
	if err != nil {
		return false, err
	}
	return shop.CanReceivePayments(), nil
}

func (s *kycServiceImpl) CanShopReceivePayouts(ctx context.Context, shopID string) (bool, error) {
	shop, err := s.findShop(ctx, shopID)
	if err != nil {
		return false, err
	}
	return shop.CanReceivePayouts(), nil
}
