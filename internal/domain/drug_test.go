package domain

import "testing"

func TestIsLowStock(t *testing.T) {
	tests := []struct {
		name    string
		stock   int64
		reorder int64
		want    bool
	}{
		{name: "well above reorder level", stock: 100, reorder: 5, want: false},
		{name: "just above reorder level", stock: 6, reorder: 5, want: false},
		{name: "at reorder level", stock: 5, reorder: 5, want: true},
		{name: "below reorder level", stock: 3, reorder: 5, want: true},
		// a drug at zero stock needs reordering most of all
		{name: "zero stock", stock: 0, reorder: 5, want: true},
		{name: "zero stock zero reorder", stock: 0, reorder: 0, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Drug{QuantityInStock: tt.stock, ReorderLevel: tt.reorder}
			if got := d.IsLowStock(); got != tt.want {
				t.Errorf("IsLowStock() = %v for stock %d, reorder %d, want %v",
					got, tt.stock, tt.reorder, tt.want)
			}
		})
	}
}

func TestStockStatus(t *testing.T) {
	tests := []struct {
		name    string
		stock   int64
		reorder int64
		want    StockStatus
	}{
		{name: "in stock", stock: 100, reorder: 5, want: StockStatusInStock},
		{name: "low stock", stock: 5, reorder: 5, want: StockStatusLowStock},
		// out-of-stock wins over low-stock for display
		{name: "zero stock shows out of stock", stock: 0, reorder: 5, want: StockStatusOutOfStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Drug{QuantityInStock: tt.stock, ReorderLevel: tt.reorder}
			if got := d.StockStatus(); got != tt.want {
				t.Errorf("StockStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}
