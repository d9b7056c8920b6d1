package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mirror_server/internal/model"
	"github.com/qs3c/mirror_server/internal/pkg/payment"
	"github.com/qs3c/mirror_server/internal/testutil"
)

func TestNewReceiptNumber(t *testing.T) {
	issued := time.Date(2025, 7, 4, 23, 30, 0, 0, time.UTC)
	number, err := NewReceiptNumber(issued)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^MOT-20250704-[A-HJ-NP-Z2-9]{6}$`), number)
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		cents    int64
		currency string
		want     string
	}{
		{999, "usd", "$9.99"},
		{4999, "", "$49.99"},
		{5, "USD", "$0.05"},
		{1000, "eur", "€10.00"},
		{250, "GBP", "£2.50"},
		{12345, "jpy", "123.45 JPY"},
		{-500, "usd", "-$5.00"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAmount(tt.cents, tt.currency))
		})
	}
}

func invoiceEvent(invoiceID, customerID string) *payment.Event {
	return &payment.Event{
		ID:          "evt_" + invoiceID,
		Type:        payment.EventInvoicePaid,
		CustomerID:  customerID,
		InvoiceID:   invoiceID,
		AmountCents: 999,
		Currency:    "usd",
	}
}

func TestReceiptService_IssueForInvoice(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	user := testutil.TestUser(t, env.db,
		testutil.WithName("Iris"),
		testutil.WithTier(model.TierPremium),
		testutil.WithStripeCustomer("cus_iris"))
	require.NoError(t, env.userRepo.UpdateFields(user.ID, map[string]interface{}{"subscription_period": model.PeriodMonthly}))

	receipt, err := env.receipts.IssueForInvoice(ctx, invoiceEvent("in_1", "cus_iris"))
	require.NoError(t, err)
	require.NotNil(t, receipt.UserID)
	assert.Equal(t, user.ID, *receipt.UserID)
	assert.Equal(t, "Iris", receipt.CustomerName)
	assert.Equal(t, user.Email, receipt.CustomerEmail)
	assert.Equal(t, "USD", receipt.Currency)
	assert.Equal(t, "card", receipt.PaymentMethod)
	assert.Equal(t, "Mirror of Truth Premium (monthly)", receipt.Description)
	assert.Equal(t, "receipts/"+receipt.ReceiptNumber+".html", receipt.ArchiveKey)

	archived := env.archive.puts[receipt.ArchiveKey]
	assert.Contains(t, string(archived), "$9.99")
	assert.Contains(t, string(archived), receipt.ReceiptNumber)

	mails := env.mailer.ByTemplate("receipt")
	require.Len(t, mails, 1)
	assert.Equal(t, user.Email, mails[0].To)

	again, err := env.receipts.IssueForInvoice(ctx, invoiceEvent("in_1", "cus_iris"))
	require.NoError(t, err)
	assert.Equal(t, receipt.ID, again.ID)
	assert.Len(t, env.mailer.ByTemplate("receipt"), 1)

	_, err = env.receipts.IssueForInvoice(ctx, invoiceEvent("", "cus_iris"))
	assert.ErrorIs(t, err, ErrMissingInvoice)
}

func TestReceiptService_ArchiveFailureKeepsReceipt(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	testutil.TestUser(t, env.db, testutil.WithStripeCustomer("cus_a"))
	env.archive.err = errors.New("bucket unavailable")

	receipt, err := env.receipts.IssueForInvoice(context.Background(), invoiceEvent("in_a", "cus_a"))
	require.NoError(t, err)
	assert.Empty(t, receipt.ArchiveKey)
	assert.Len(t, env.mailer.ByTemplate("receipt"), 1)

	// 存储恢复后补归档
	env.archive.err = nil
	archived, err := env.receipts.ArchivePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, archived)

	stored, err := env.receiptRepo.GetByID(receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, "receipts/"+receipt.ReceiptNumber+".html", stored.ArchiveKey)

	archived, err = env.receipts.ArchivePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, archived)
}

func TestReceiptService_ListAndGet(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	user := testutil.TestUser(t, env.db, testutil.WithStripeCustomer("cus_list"))
	for _, id := range []string{"in_x", "in_y", "in_z"} {
		_, err := env.receipts.IssueForInvoice(ctx, invoiceEvent(id, "cus_list"))
		require.NoError(t, err)
	}

	items, total, page, pageSize, err := env.receipts.List(user.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, 1, page)
	assert.Equal(t, 2, pageSize)
	require.Len(t, items, 2)
	assert.Equal(t, "$9.99", items[0].Amount)

	info, err := env.receipts.Get(user.ID, items[0].ID)
	require.NoError(t, err)
	assert.Contains(t, info.ArchiveURL, "https://oss.test/receipts/")

	html, err := env.receipts.HTML(user.ID, items[0].ID)
	require.NoError(t, err)
	assert.Contains(t, html, items[0].ReceiptNumber)

	other := testutil.TestUser(t, env.db)
	_, err = env.receipts.Get(other.ID, items[0].ID)
	assert.ErrorIs(t, err, ErrReceiptNotFound)
	_, err = env.receipts.HTML(other.ID, items[0].ID)
	assert.ErrorIs(t, err, ErrReceiptNotFound)
}

func TestReceiptService_UnknownCustomer(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	ev := invoiceEvent("in_guest", "cus_unknown")
	ev.CustomerEmail = "Guest@Example.com"
	ev.CustomerName = "Guest"
	ev.Description = "Gift: 3 months of Essential"

	receipt, err := env.receipts.IssueForInvoice(context.Background(), ev)
	require.NoError(t, err)
	assert.Nil(t, receipt.UserID)
	assert.Equal(t, "guest@example.com", receipt.CustomerEmail)
	assert.Equal(t, "Gift: 3 months of Essential", receipt.Description)
}
