package sales_test

import (
	"testing"

	"api_artsale/internal/sales"
	"api_artsale/internal/sales/salestest"
)

func TestLocalStorage(t *testing.T) {
	salestest.RunStoreSuite(t, func(t *testing.T) sales.Store {
		return sales.NewLocalStorage()
	})
}
