package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/entitlement/internal/app/service/catalog"
	"github.com/fatflowers/entitlement/internal/app/service/purchase"
	"github.com/fatflowers/entitlement/internal/app/service/receipt"
	"github.com/fatflowers/entitlement/pkg/response"
	"github.com/fatflowers/entitlement/pkg/types"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want response.APIResponseCode
	}{
		{purchase.ErrUnauthenticated, response.APIResponseCodeUnauthorized},
		{fmt.Errorf("resolve plan: %w", catalog.ErrPlanNotFound), response.APIResponseCodeBadRequest},
		{fmt.Errorf("%w: %w", purchase.ErrProductMapping, catalog.ErrPlanNotFound), response.APIResponseCodeBadRequest},
		{fmt.Errorf("failed to validate receipt: %w", receipt.ErrReceiptRejected), response.APIResponseCodeBadRequest},
		{fmt.Errorf("%w: 1000", purchase.ErrTransactionOwned), response.APIResponseCodeBadRequest},
		{fmt.Errorf("%w: sort on unknown field", types.ErrInvalidFilter), response.APIResponseCodeBadRequest},
		{errors.New("connection refused"), response.APIResponseCodeError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, errorCode(tc.err), tc.err.Error())
	}
}
