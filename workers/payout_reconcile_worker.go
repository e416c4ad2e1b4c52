package workers

import (
	"context"
	"log"
	"time"

	"arena-tournament-system/models"
	"arena-tournament-system/services"

	"gorm.io/gorm"
)

// PayoutReconciler polls the payment gateway for withdrawals that are still
// pending and folds their final state back into the ledger. It is the safety
// net for the webhook path: if the gateway's callback never arrives, a
// withdrawal would otherwise stay pending forever.
type PayoutReconciler struct {
	DB     *gorm.DB
	Wallet *services.WalletService
}

func NewPayoutReconciler(db *gorm.DB, wallet *services.WalletService) *PayoutReconciler {
	return &PayoutReconciler{DB: db, Wallet: wallet}
}

// Run polls until ctx is cancelled. Withdrawals younger than graceWindow are
// skipped so the webhook gets first shot at reconciling them.
func (r *PayoutReconciler) Run(ctx context.Context, pollInterval, graceWindow time.Duration) {
	log.Println("Starting payout reconciliation polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Payout reconciliation stopped.")
			return
		case <-ticker.C:
			r.reconcileOnce(time.Now().Add(-graceWindow))
		}
	}
}

func (r *PayoutReconciler) reconcileOnce(cutoff time.Time) {
	var pending []models.Transaction
	err := r.DB.Where("kind = ? AND status = ? AND external_payout_id <> '' AND created_at <= ?",
		models.TxKindWithdrawal, models.TxStatusPending, cutoff).
		Limit(100).
		Find(&pending).Error
	if err != nil {
		log.Printf("❌ [RECONCILE] Failed to load pending withdrawals: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	log.Printf("📥 [RECONCILE] Checking %d pending withdrawal(s)...", len(pending))

	for _, txn := range pending {
		payout, err := r.Wallet.Gateway.FetchPayoutStatus(txn.ExternalPayoutID)
		if err != nil {
			log.Printf("❌ [RECONCILE] Gateway lookup failed for payout %s: %v", txn.ExternalPayoutID, err)
			continue
		}

		updated, err := r.Wallet.ReconcilePayoutStatus(payout.PayoutID, payout.Status)
		if err != nil {
			log.Printf("❌ [RECONCILE] Failed to reconcile payout %s (%s): %v",
				payout.PayoutID, payout.Status, err)
			continue
		}
		if updated != nil {
			log.Printf("✅ [RECONCILE] Payout %s settled as %s", payout.PayoutID, updated.Status)
		}
	}
}
