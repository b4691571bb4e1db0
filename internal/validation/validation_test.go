package validation

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type priced struct {
	Name  string          `json:"name" validate:"required,max=5"`
	Price decimal.Decimal `json:"price" validate:"gte=0.01,lte=999999.99"`
}

func TestStruct_DecimalBounds(t *testing.T) {
	v := New()

	assert.NoError(t, Struct(v, priced{Name: "ok", Price: decimal.RequireFromString("0.01")}))
	assert.NoError(t, Struct(v, priced{Name: "ok", Price: decimal.RequireFromString("999999.99")}))

	err := Struct(v, priced{Name: "ok", Price: decimal.Zero})
	var ve *Error
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "price")

	err = Struct(v, priced{Name: "ok", Price: decimal.RequireFromString("1000000")})
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "price cannot exceed 999999.99", ve.Fields["price"])
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	err := Struct(New(), priced{Name: "toolong", Price: decimal.NewFromInt(1)})
	var ve *Error
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, map[string]string{"name": "name cannot exceed 5 characters"}, ve.Fields)
	assert.Equal(t, "Validation failed: name cannot exceed 5 characters", ve.Error())
}

func TestCompleteOrderRequest_RequiresSession(t *testing.T) {
	assert.Error(t, Struct(New(), CompleteOrderRequest{}))
	assert.NoError(t, Struct(New(), CompleteOrderRequest{SessionID: "cs_test_1"}))
}

func TestBindOptional(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	bind := func(body string) (AddToCartRequest, error) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")
		var req AddToCartRequest
		err := BindOptional(c, &req, v)
		return req, err
	}

	req, err := bind("")
	require.NoError(t, err)
	assert.Equal(t, 1, req.QuantityOrDefault())

	req, err = bind(`{"quantity":3}`)
	require.NoError(t, err)
	assert.Equal(t, 3, req.QuantityOrDefault())

	_, err = bind(`{"quantity":0}`)
	assert.Error(t, err)

	_, err = bind(`{"quantity":`)
	var ve *Error
	assert.True(t, errors.As(err, &ve))
}
