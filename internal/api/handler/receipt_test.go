package handler

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/model/dto"
	"github.com/qs3c/mirror_server/internal/pkg/payment"
	"github.com/qs3c/mirror_server/internal/testutil"
)

func receiptRouter(e *env, userID int64) http.Handler {
	router := routerAs(userID)
	router.GET("/receipts", e.receipt.List)
	router.GET("/receipts/:id", e.receipt.Get)
	router.GET("/receipts/:id/html", e.receipt.HTML)
	return router
}

func seedReceipt(t *testing.T, e *env, userID int64, number string) *model.Receipt {
	t.Helper()
	receipt := &model.Receipt{
		ReceiptNumber: number,
		UserID:        &userID,
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		AmountCents:   499,
		Currency:      "USD",
		PaymentMethod: "card",
		Description:   "Essential monthly subscription",
		Tier:          model.TierEssential,
		BillingPeriod: model.PeriodMonthly,
		IssuedAt:      time.Now(),
	}
	require.NoError(t, e.db.Create(receipt).Error)
	return receipt
}

func TestReceiptHandler_ListGetHTML(t *testing.T) {
	e := setupEnv(t)
	user := testutil.TestUser(t, e.db)
	other := testutil.TestUser(t, e.db)
	mine := seedReceipt(t, e, user.ID, "MOT-20260101-0001")
	foreign := seedReceipt(t, e, other.ID, "MOT-20260101-0002")
	router := receiptRouter(e, user.ID)

	w := performRequest(router, "GET", "/receipts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Total int64             `json:"total"`
		Items []dto.ReceiptInfo `json:"items"`
	}
	decodeData(t, w, &page)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "$4.99", page.Items[0].Amount)

	w = performRequest(router, "GET", fmt.Sprintf("/receipts/%d", mine.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info dto.ReceiptInfo
	decodeData(t, w, &info)
	assert.Equal(t, mine.ReceiptNumber, info.ReceiptNumber)
	assert.Empty(t, info.ArchiveURL)

	w = performRequest(router, "GET", fmt.Sprintf("/receipts/%d/html", mine.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, w.Body.String(), "MOT-20260101-0001")
	assert.Contains(t, w.Body.String(), "$4.99")

	w = performRequest(router, "GET", fmt.Sprintf("/receipts/%d", foreign.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = performRequest(router, "GET", fmt.Sprintf("/receipts/%d/html", foreign.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = performRequest(router, "GET", "/receipts/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// 支付成功的 webhook 出具收据，重复投递不会重复出具
func TestReceiptHandler_IssuedByWebhook(t *testing.T) {
	e := setupEnv(t)
	user := testutil.TestUser(t, e.db, testutil.WithStripeCustomer("cus_receipt"), testutil.WithTier(model.TierEssential))
	hook := paymentRouter(e, 0)

	e.provider.event = &payment.Event{
		ID:          "evt_inv",
		Type:        payment.EventInvoicePaid,
		CustomerID:  "cus_receipt",
		InvoiceID:   "in_1",
		AmountCents: 4999,
		Currency:    "usd",
	}
	for i := 0; i < 2; i++ {
		w := postWebhook(hook, "t=1,v1=ok")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := performRequest(receiptRouter(e, user.ID), "GET", "/receipts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Total int64             `json:"total"`
		Items []dto.ReceiptInfo `json:"items"`
	}
	decodeData(t, w, &page)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, "$49.99", page.Items[0].Amount)
	assert.Equal(t, "USD", page.Items[0].Currency)

	e.mailer.mu.Lock()
	defer e.mailer.mu.Unlock()
	require.Len(t, e.mailer.sent, 1)
	assert.Equal(t, "receipt", e.mailer.sent[0].Template)
}
