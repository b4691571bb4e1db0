package invoice

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amadou-dot/restockd/internal/aws/awstest"
	"github.com/Amadou-dot/restockd/internal/orders"
	"github.com/Amadou-dot/restockd/internal/storage"
)

var (
	t0      = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	company = Company{Name: "Restock'd", Address: "123 Commerce St, Business City, BC 12345", Phone: "+1 (555) 123-4567", Email: "contact@restockd.com"}
)

func sampleOrder() *orders.Order {
	return &orders.Order{
		ID:     "ord-1",
		UserID: "u1",
		Status: orders.StatusCompleted,
		Items: []orders.Item{
			{ProductID: "p1", ProductName: "Mug", ProductPrice: decimal.RequireFromString("10.50"), Quantity: 2},
			{ProductID: "p2", ProductName: "Tea", ProductPrice: decimal.RequireFromString("5"), Quantity: 1},
		},
		TotalPrice: decimal.RequireFromString("26"),
		CreatedAt:  t0,
	}
}

func uncompressed() *Renderer {
	r := NewRenderer(company, decimal.RequireFromString("0.08"))
	r.compress = false
	return r
}

func TestRender(t *testing.T) {
	pdf, err := uncompressed().Render(sampleOrder(), Customer{Name: "Ada Lovelace", Email: "ada@example.com"})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))

	body := string(pdf)
	for _, want := range []string{
		"(INVOICE)",
		"(Invoice #: ord-1)",
		"(Date: 6/1/2024)",
		"(Status: COMPLETED)",
		"(Ada Lovelace)",
		"(ada@example.com)",
		"($21.00)",
		"($26.00)",
		"(Tax \\(8%\\):)",
		"($2.08)",
		"(Thank you for your business!)",
	} {
		assert.Contains(t, body, want)
	}
}

func TestRender_ManyLinesPaginates(t *testing.T) {
	o := sampleOrder()
	for i := 0; i < 30; i++ {
		o.Items = append(o.Items, orders.Item{ProductID: "x", ProductName: strings.Repeat("long name ", 10), ProductPrice: decimal.NewFromInt(1), Quantity: 1})
	}
	pdf, err := uncompressed().Render(o, Customer{Email: "a@b.c"})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, strings.Count(string(pdf), "/Type /Page\n"), 2)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "invoice-ord-1-1717243200000.pdf", Filename("ord-1", t0))
}

type fakeOrders struct {
	urls map[string]string
	err  error
}

func (f *fakeOrders) SetInvoiceURL(ctx context.Context, orderID, url string) error {
	if f.err != nil {
		return f.err
	}
	f.urls[orderID] = url
	return nil
}

func TestIssue(t *testing.T) {
	s3 := awstest.NewS3()
	blobs := storage.New(s3, "restockd-bucket", "us-east-1")
	ords := &fakeOrders{urls: map[string]string{}}
	svc := NewService(NewRenderer(company, decimal.RequireFromString("0.08")), blobs, ords, zerolog.Nop())
	svc.nowFunc = func() time.Time { return t0 }

	o := sampleOrder()
	url, err := svc.Issue(context.Background(), o, Customer{Email: "ada@example.com"})
	require.NoError(t, err)

	assert.Equal(t, url, o.InvoiceURL)
	assert.Equal(t, url, ords.urls["ord-1"])
	assert.True(t, strings.HasPrefix(url, "https://restockd-bucket.s3.us-east-1.amazonaws.com/invoices/"))
	assert.True(t, strings.HasSuffix(url, "_invoice-ord-1-1717243200000.pdf"))

	keys := s3.Keys()
	require.Len(t, keys, 1)
	obj, ok := s3.Object("restockd-bucket", strings.TrimPrefix(keys[0], "restockd-bucket/"))
	require.True(t, ok)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.True(t, bytes.HasPrefix(obj.Body, []byte("%PDF-")))
}

func TestIssue_Failures(t *testing.T) {
	s3 := awstest.NewS3()
	s3.PutErr = errors.New("access denied")
	ords := &fakeOrders{urls: map[string]string{}}
	svc := NewService(NewRenderer(company, decimal.Zero), storage.New(s3, "b", "us-east-1"), ords, zerolog.Nop())

	o := sampleOrder()
	_, err := svc.Issue(context.Background(), o, Customer{})
	require.ErrorIs(t, err, s3.PutErr)
	assert.Empty(t, o.InvoiceURL)
	assert.Empty(t, ords.urls)

	s3.PutErr = nil
	ords.err = orders.ErrNotFound
	_, err = svc.Issue(context.Background(), o, Customer{})
	assert.ErrorIs(t, err, orders.ErrNotFound)
	assert.Empty(t, o.InvoiceURL)
}
