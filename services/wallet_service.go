// services/wallet_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"arena-tournament-system/models"
	"arena-tournament-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletService is the single writer of wallet-balance mutations and the
// transaction log. Every balance change it makes is paired with exactly one
// Transaction row; nothing else in the codebase touches wallet_balance.
type WalletService struct {
	DB      *gorm.DB
	Gateway *GatewayClient

	MinDeposit    float64
	MinWithdrawal float64
}

func NewWalletService(db *gorm.DB, gateway *GatewayClient) *WalletService {
	minDeposit := envFloat("MIN_DEPOSIT_AMOUNT", 10)
	minWithdrawal := envFloat("MIN_WITHDRAWAL_AMOUNT", 50)
	return &WalletService{
		DB:            db,
		Gateway:       gateway,
		MinDeposit:    minDeposit,
		MinWithdrawal: minWithdrawal,
	}
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
		log.Printf("⚠️ invalid %s=%q, using default %.2f", key, os.Getenv(key), fallback)
	}
	return fallback
}

// ---------------------------------------------------------------------------
// Core ledger operations
// ---------------------------------------------------------------------------

// Reserve deducts an entry fee immediately: the balance is decremented with a
// conditional UPDATE guarded by wallet_balance >= amount, and a completed
// `deduction` Transaction is written in the same DB transaction. A guard miss
// surfaces InsufficientFunds with no state change.
func (s *WalletService) Reserve(userID string, amount float64, description string, tournamentID *string) (*models.Transaction, error) {
	if amount < 0 {
		return nil, ErrValidation("amount must be >= 0", nil)
	}

	txn := &models.Transaction{
		ID:                uuid.NewString(),
		UserID:            userID,
		Kind:              models.TxKindDeduction,
		Amount:            -amount,
		Status:            models.TxStatusCompleted,
		ExternalPaymentID: utils.NewPaymentRef("entry"),
		Description:       description,
		TournamentID:      tournamentID,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if amount > 0 {
			res := tx.Model(&models.User{}).
				Where("id = ? AND wallet_balance >= ?", userID, amount).
				Update("wallet_balance", gorm.Expr("wallet_balance - ?", amount))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// Either the user is gone or the balance is short — tell them apart.
				var count int64
				tx.Model(&models.User{}).Where("id = ?", userID).Count(&count)
				if count == 0 {
					return ErrNotFound("user not found")
				}
				return ErrInsufficientFunds(fmt.Sprintf("wallet balance below %.2f", amount))
			}
		}

		var user models.User
		if err := tx.Select("wallet_balance").First(&user, "id = ?", userID).Error; err != nil {
			return err
		}
		txn.BalanceAfter = user.WalletBalance

		return tx.Create(txn).Error
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Credit atomically increments the balance and writes a completed Transaction
// of the given kind. Used for deposit completion, prize payouts and
// compensating refunds.
func (s *WalletService) Credit(userID string, amount float64, kind, description string, tournamentID *string) (*models.Transaction, error) {
	if amount < 0 {
		return nil, ErrValidation("amount must be >= 0", nil)
	}

	txn := &models.Transaction{
		ID:                uuid.NewString(),
		UserID:            userID,
		Kind:              kind,
		Amount:            amount,
		Status:            models.TxStatusCompleted,
		ExternalPaymentID: utils.NewPaymentRef(kind),
		Description:       description,
		TournamentID:      tournamentID,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("wallet_balance", gorm.Expr("wallet_balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound("user not found")
		}

		var user models.User
		if err := tx.Select("wallet_balance").First(&user, "id = ?", userID).Error; err != nil {
			return err
		}
		txn.BalanceAfter = user.WalletBalance

		return tx.Create(txn).Error
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// InitiateDeposit opens a gateway order and parks a pending deposit
// Transaction keyed by the order id. The balance is only credited when the
// client-side payment is confirmed with a valid signature.
func (s *WalletService) InitiateDeposit(userID string, amount float64) (*GatewayOrder, *models.Transaction, error) {
	if amount < s.MinDeposit {
		return nil, nil, &AppError{
			Code: CodeBelowMinimum, Status: 400,
			Message: fmt.Sprintf("minimum deposit is %.2f", s.MinDeposit),
		}
	}

	order, err := s.Gateway.CreateOrder(amount, utils.NewPaymentRef("dep"))
	if err != nil {
		return nil, nil, err
	}

	txn := &models.Transaction{
		ID:              uuid.NewString(),
		UserID:          userID,
		Kind:            models.TxKindDeposit,
		Amount:          amount,
		Status:          models.TxStatusPending,
		ExternalOrderID: order.OrderID,
		Description:     fmt.Sprintf("wallet deposit of %.2f", amount),
	}
	if err := s.DB.Create(txn).Error; err != nil {
		return nil, nil, err
	}
	return order, txn, nil
}

// ConfirmDeposit verifies the gateway HMAC signature over orderID|paymentID
// and, exactly once, credits the wallet and completes the pending deposit row.
// A replayed confirmation finds no pending row and fails UnknownOrFinalized.
func (s *WalletService) ConfirmDeposit(orderID, paymentID, signature string) (*models.Transaction, error) {
	if !s.Gateway.VerifyPaymentSignature(orderID, paymentID, signature) {
		return nil, &AppError{Code: CodeSignatureMismatch, Status: 400, Message: "payment signature verification failed"}
	}

	var txn models.Transaction
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// Lock the row so two racing confirmations can't both see it pending.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("external_order_id = ? AND kind = ? AND status = ?",
				orderID, models.TxKindDeposit, models.TxStatusPending).
			First(&txn).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &AppError{Code: CodeUnknownOrFinalized, Status: 409, Message: "no pending deposit for this order"}
			}
			return err
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", txn.UserID).
			Update("wallet_balance", gorm.Expr("wallet_balance + ?", txn.Amount)).Error; err != nil {
			return err
		}

		var user models.User
		if err := tx.Select("wallet_balance").First(&user, "id = ?", txn.UserID).Error; err != nil {
			return err
		}

		return tx.Model(&txn).Updates(map[string]interface{}{
			"status":              models.TxStatusCompleted,
			"external_payment_id": paymentID,
			"balance_after":       user.WalletBalance,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// InitiateWithdrawal writes the guarded debit and the pending withdrawal
// Transaction in one DB transaction, then places the gateway payout and
// attaches its id to the row. When the gateway rejects the payout the row is
// flipped to failed and the debit refunded atomically, so the ledger never
// carries a balance change without its matching row — not even for the
// gateway's in-flight window.
func (s *WalletService) InitiateWithdrawal(userID string, amount float64, method string) (*models.Transaction, error) {
	if amount < s.MinWithdrawal {
		return nil, &AppError{
			Code: CodeBelowMinimum, Status: 400,
			Message: fmt.Sprintf("minimum withdrawal is %.2f", s.MinWithdrawal),
		}
	}
	if method != models.WithdrawMethodBank && method != models.WithdrawMethodUPI {
		return nil, ErrValidation("method must be 'bank' or 'upi'", map[string]string{"method": "invalid"})
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound("user not found")
		}
		return nil, err
	}
	if !user.HasPayoutDetails(method) {
		return nil, &AppError{Code: CodeMissingPayout, Status: 400, Message: "payout details for the selected method are incomplete"}
	}

	destination := user.UpiID
	if method == models.WithdrawMethodBank {
		destination = user.BankAccountNumber
	}

	reference := utils.NewPaymentRef("wd")
	txn := &models.Transaction{
		ID:                uuid.NewString(),
		UserID:            userID,
		Kind:              models.TxKindWithdrawal,
		Amount:            -amount,
		Status:            models.TxStatusPending,
		ExternalPaymentID: reference,
		Method:            method,
		Description:       fmt.Sprintf("withdrawal of %.2f via %s", amount, method),
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// The guarded update is the InsufficientFunds check; the pending row
		// lands in the same transaction as the debit it pairs with.
		res := tx.Model(&models.User{}).
			Where("id = ? AND wallet_balance >= ?", userID, amount).
			Update("wallet_balance", gorm.Expr("wallet_balance - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientFunds(fmt.Sprintf("wallet balance below %.2f", amount))
		}

		var u models.User
		if err := tx.Select("wallet_balance").First(&u, "id = ?", userID).Error; err != nil {
			return err
		}
		txn.BalanceAfter = u.WalletBalance
		return tx.Create(txn).Error
	})
	if err != nil {
		return nil, err
	}

	payout, err := s.Gateway.CreatePayout(amount, method, destination, reference)
	if err != nil {
		// Gateway never saw the payout — fail the row and give the money back.
		if ferr := s.failPendingWithdrawal(txn.ID, "withdrawal reversed: payout could not be placed"); ferr != nil {
			log.Printf("🚨 [LEDGER] compensation failed after payout error: user=%s ledger=%s amount=%.2f refund_err=%v payout_err=%v",
				userID, txn.ID, amount, ferr, err)
			return nil, ErrInvariant("withdrawal debit could not be reversed, manual reconciliation required")
		}
		return nil, err
	}

	if err := s.DB.Model(&models.Transaction{}).Where("id = ?", txn.ID).
		Update("external_payout_id", payout.PayoutID).Error; err != nil {
		log.Printf("🚨 [LEDGER] payout id not recorded: user=%s ledger=%s payout=%s err=%v",
			userID, txn.ID, payout.PayoutID, err)
		return nil, ErrInvariant("withdrawal placed but payout id not recorded, manual reconciliation required")
	}
	txn.ExternalPayoutID = payout.PayoutID
	return txn, nil
}

// failPendingWithdrawal flips a still-pending withdrawal to failed and applies
// the compensating credit, both in one transaction. Finding no pending row
// means someone else already finalized it — nothing to do.
func (s *WalletService) failPendingWithdrawal(txnID, reason string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var wd models.Transaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND kind = ? AND status = ?",
				txnID, models.TxKindWithdrawal, models.TxStatusPending).
			First(&wd).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Model(&wd).Update("status", models.TxStatusFailed).Error; err != nil {
			return err
		}
		return refundWithdrawal(tx, &wd, reason)
	})
}

// refundWithdrawal credits the debited amount back and writes the paired
// refund row. Runs inside the caller's transaction, alongside the status flip
// of the withdrawal it reverses.
func refundWithdrawal(tx *gorm.DB, wd *models.Transaction, reason string) error {
	amount := -wd.Amount // withdrawal amounts are negative
	res := tx.Model(&models.User{}).
		Where("id = ?", wd.UserID).
		Update("wallet_balance", gorm.Expr("wallet_balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound("user not found")
	}

	var u models.User
	if err := tx.Select("wallet_balance").First(&u, "id = ?", wd.UserID).Error; err != nil {
		return err
	}
	return tx.Create(&models.Transaction{
		ID:                uuid.NewString(),
		UserID:            wd.UserID,
		Kind:              models.TxKindRefund,
		Amount:            amount,
		Status:            models.TxStatusCompleted,
		BalanceAfter:      u.WalletBalance,
		ExternalPaymentID: utils.NewPaymentRef("refund"),
		Description:       reason,
	}).Error
}

// ReconcilePayoutStatus maps a gateway payout status onto the matching
// pending withdrawal. The balance was already debited at initiation, so a
// completed payout touches nothing; a failed one gets the compensating credit
// in the same transaction as the status flip, so a crash can never finalize
// the row with the refund missing. Finalized rows are left alone, making
// webhook replays harmless.
func (s *WalletService) ReconcilePayoutStatus(payoutID, gatewayStatus string) (*models.Transaction, error) {
	var newStatus string
	switch gatewayStatus {
	case "processed":
		newStatus = models.TxStatusCompleted
	case "failed", "rejected", "cancelled", "reversed":
		newStatus = models.TxStatusFailed
	case "queued", "processing":
		return nil, nil // not final yet, keep waiting
	default:
		log.Printf("⚠️ [LEDGER] unknown gateway payout status %q for %s", gatewayStatus, payoutID)
		return nil, nil
	}

	var txn models.Transaction
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("external_payout_id = ? AND kind = ? AND status = ?",
				payoutID, models.TxKindWithdrawal, models.TxStatusPending).
			First(&txn).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &AppError{Code: CodeUnknownOrFinalized, Status: 409, Message: "no pending withdrawal for this payout"}
			}
			return err
		}
		if err := tx.Model(&txn).Update("status", newStatus).Error; err != nil {
			return err
		}
		if newStatus == models.TxStatusFailed {
			return refundWithdrawal(tx, &txn, fmt.Sprintf("refund for failed payout %s", payoutID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if newStatus == models.TxStatusFailed {
		log.Printf("✅ [LEDGER] refunded %.2f to %s for failed payout %s", -txn.Amount, txn.UserID, payoutID)
	}
	return &txn, nil
}

// ---------------------------------------------------------------------------
// HTTP endpoints
// ---------------------------------------------------------------------------

// GetWallet returns the caller's balance plus the configured floors.
func (s *WalletService) GetWallet(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	var user models.User
	if err := s.DB.Select("wallet_balance").First(&user, "id = ?", userID).Error; err != nil {
		return respondErr(c, ErrNotFound("user not found"))
	}
	return c.JSON(fiber.Map{
		"success":        true,
		"balance":        user.WalletBalance,
		"min_deposit":    s.MinDeposit,
		"min_withdrawal": s.MinWithdrawal,
	})
}

// GetTransactions lists the caller's ledger entries, newest first.
func (s *WalletService) GetTransactions(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}

	var txns []models.Transaction
	if err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).
		Find(&txns).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "error": "internal_error", "message": "failed to load transactions"})
	}
	return c.JSON(fiber.Map{"success": true, "transactions": txns})
}

// Deposit opens a gateway order for client-side completion.
func (s *WalletService) Deposit(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	type Req struct {
		Amount float64 `json:"amount"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}

	order, txn, err := s.InitiateDeposit(userID, req.Amount)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(201).JSON(fiber.Map{
		"success":        true,
		"order_id":       order.OrderID,
		"amount":         order.Amount,
		"currency":       order.Currency,
		"transaction_id": txn.ID,
	})
}

// VerifyDeposit is the client-side payment confirmation callback.
func (s *WalletService) VerifyDeposit(c *fiber.Ctx) error {
	type Req struct {
		OrderID   string `json:"order_id"`
		PaymentID string `json:"payment_id"`
		Signature string `json:"signature"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return respondErr(c, ErrValidation("order_id, payment_id and signature are required", nil))
	}

	txn, err := s.ConfirmDeposit(req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "deposit confirmed", "transaction": txn})
}

// Withdraw places a payout for the caller's wallet money.
func (s *WalletService) Withdraw(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)

	type Req struct {
		Amount float64 `json:"amount"`
		Method string  `json:"method"` // bank | upi
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}

	txn, err := s.InitiateWithdrawal(userID, req.Amount, req.Method)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"success": true, "message": "withdrawal placed", "transaction": txn})
}

// PayoutWebhook receives asynchronous payout-status updates from the gateway.
func (s *WalletService) PayoutWebhook(c *fiber.Ctx) error {
	type Req struct {
		PayoutID string `json:"payout_id"`
		Status   string `json:"status"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ErrValidation("invalid JSON body", nil))
	}
	if req.PayoutID == "" || req.Status == "" {
		return respondErr(c, ErrValidation("payout_id and status are required", nil))
	}

	if _, err := s.ReconcilePayoutStatus(req.PayoutID, req.Status); err != nil {
		var appErr *AppError
		if errors.As(err, &appErr) && appErr.Code == CodeUnknownOrFinalized {
			// Replayed webhook — acknowledge so the gateway stops retrying.
			return c.JSON(fiber.Map{"success": true, "message": "already reconciled"})
		}
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
